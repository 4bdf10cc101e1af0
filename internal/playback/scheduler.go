package playback

import (
	"fmt"
	"sync"
	"time"
)

// Source is one scheduled unit of decoded audio: a PCM buffer with a start
// offset on the output timeline.
type Source struct {
	ID         uint64
	Samples    []float32
	SampleRate int
	Start      time.Duration
	Duration   time.Duration
}

// Player carries scheduled sources to the output device. Play must begin
// playout at src.Start on the shared clock and invoke onEnded exactly once
// when the source finishes naturally. Stop force-stops a source; stopping a
// source that already finished returns an error, which callers swallow.
type Player interface {
	Play(src *Source, onEnded func()) error
	Stop(src *Source) error
}

// Scheduler places decoded payloads on a virtual timeline for strictly
// sequential, gapless playback. Each payload starts at the later of the
// virtual clock and the current output time; the virtual clock then advances
// by the payload's duration.
type Scheduler struct {
	clock  Clock
	player Player

	mu        sync.Mutex
	nextStart time.Duration
	sources   map[uint64]*Source
	nextID    uint64
	onIdle    func()
}

// NewScheduler creates a scheduler over the given clock and player.
func NewScheduler(clock Clock, player Player) (*Scheduler, error) {
	if clock == nil {
		return nil, fmt.Errorf("clock cannot be nil")
	}
	if player == nil {
		return nil, fmt.Errorf("player cannot be nil")
	}

	return &Scheduler{
		clock:   clock,
		player:  player,
		sources: make(map[uint64]*Source),
	}, nil
}

// SetIdleFunc registers a callback invoked whenever the live set drains
// through natural source completion (not through interruption).
func (s *Scheduler) SetIdleFunc(fn func()) {
	s.mu.Lock()
	s.onIdle = fn
	s.mu.Unlock()
}

// Schedule places a decoded payload on the timeline and hands it to the
// player. Empty payloads are ignored.
func (s *Scheduler) Schedule(samples []float32, sampleRate int) (*Source, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	duration := time.Duration(float64(len(samples)) / float64(sampleRate) * float64(time.Second))

	s.mu.Lock()
	start := s.nextStart
	if now := s.clock.Now(); now > start {
		start = now
	}

	s.nextID++
	src := &Source{
		ID:         s.nextID,
		Samples:    samples,
		SampleRate: sampleRate,
		Start:      start,
		Duration:   duration,
	}
	s.nextStart = start + duration
	s.sources[src.ID] = src
	s.mu.Unlock()

	if err := s.player.Play(src, func() { s.sourceEnded(src) }); err != nil {
		s.mu.Lock()
		delete(s.sources, src.ID)
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to start playback source: %w", err)
	}

	return src, nil
}

// sourceEnded removes a naturally finished source from the live set and
// fires the idle callback when the set drains.
func (s *Scheduler) sourceEnded(src *Source) {
	s.mu.Lock()
	if _, tracked := s.sources[src.ID]; !tracked {
		s.mu.Unlock()
		return
	}
	delete(s.sources, src.ID)
	idle := len(s.sources) == 0
	onIdle := s.onIdle
	s.mu.Unlock()

	if idle && onIdle != nil {
		onIdle()
	}
}

// Interrupt force-stops every scheduled source, clears the live set, and
// resets the virtual clock to zero. Errors from stopping already-finished
// sources are swallowed.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	stopped := make([]*Source, 0, len(s.sources))
	for _, src := range s.sources {
		stopped = append(stopped, src)
	}
	s.sources = make(map[uint64]*Source)
	s.nextStart = 0
	s.mu.Unlock()

	for _, src := range stopped {
		_ = s.player.Stop(src)
	}
}

// Reset tears the scheduler down to its initial state. Used on disconnect.
func (s *Scheduler) Reset() {
	s.Interrupt()
}

// Active returns the number of currently scheduled or playing sources.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// NextStart returns the virtual clock's current position.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}
