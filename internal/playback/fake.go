package playback

import (
	"fmt"
	"sync"
	"time"
)

// ManualClock is a Clock advanced explicitly by tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Duration
}

// NewManualClock creates a clock frozen at zero.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// FakePlayer records scheduled sources without touching hardware. Tests end
// sources explicitly through Finish.
type FakePlayer struct {
	mu      sync.Mutex
	played  []*Source
	stopped []*Source
	onEnded map[uint64]func()
}

// NewFakePlayer creates an inert player.
func NewFakePlayer() *FakePlayer {
	return &FakePlayer{onEnded: make(map[uint64]func())}
}

func (p *FakePlayer) Play(src *Source, onEnded func()) error {
	p.mu.Lock()
	p.played = append(p.played, src)
	p.onEnded[src.ID] = onEnded
	p.mu.Unlock()
	return nil
}

func (p *FakePlayer) Stop(src *Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, active := p.onEnded[src.ID]; !active {
		return fmt.Errorf("source %d already finished", src.ID)
	}
	delete(p.onEnded, src.ID)
	p.stopped = append(p.stopped, src)
	return nil
}

// Finish simulates natural completion of a source.
func (p *FakePlayer) Finish(src *Source) {
	p.mu.Lock()
	onEnded := p.onEnded[src.ID]
	delete(p.onEnded, src.ID)
	p.mu.Unlock()

	if onEnded != nil {
		onEnded()
	}
}

// Played returns every source handed to the player, in order.
func (p *FakePlayer) Played() []*Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Source(nil), p.played...)
}

// Stopped returns every force-stopped source.
func (p *FakePlayer) Stopped() []*Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Source(nil), p.stopped...)
}
