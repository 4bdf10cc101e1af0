package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CarlosDimare/CHATVOZ/internal/audio"
	"github.com/CarlosDimare/CHATVOZ/internal/live"
	"github.com/CarlosDimare/CHATVOZ/internal/metrics"
	"github.com/CarlosDimare/CHATVOZ/internal/playback"
	"github.com/CarlosDimare/CHATVOZ/internal/transcript"
	"github.com/CarlosDimare/CHATVOZ/internal/vad"
)

// State is the coarse connection state exposed to clients.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Phase is the fine-grained progress indicator within a state.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseInitializingAudio  Phase = "initializing-audio"
	PhaseRequestingMic      Phase = "requesting-mic"
	PhaseWaitingLiveSession Phase = "waiting-live-session"
	PhaseConnectedIdle      Phase = "connected-idle"
	PhaseCapturingAudio     Phase = "capturing-audio"
	PhaseWaitingModel       Phase = "waiting-model"
	PhasePlayingAudio       Phase = "playing-audio"
	PhaseInterrupted        Phase = "interrupted"
	PhaseClosed             Phase = "closed"
	PhaseTimeout            Phase = "timeout"
	PhaseSetupError         Phase = "setup-error"
)

// Default tunables, matching the capture and playback formats the streaming
// endpoint expects.
const (
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000
	DefaultSendInterval     = 40 * time.Millisecond
	DefaultConnectTimeout   = 12 * time.Second
	DefaultModel            = "models/gemini-2.0-flash-live-001"
)

// Config carries every engine tunable.
type Config struct {
	APIKey            string
	Endpoint          string
	Model             string
	SystemInstruction string
	VoiceName         string
	EnableSearch      bool

	InputSampleRate  int
	OutputSampleRate int
	BlockSize        int
	QueueCapacity    int
	SendInterval     time.Duration

	VADThreshold float64
	VolumeGain   float64

	ConnectTimeout             time.Duration
	PreserveHistoryOnReconnect bool
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = DefaultInputSampleRate
	}
	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = DefaultOutputSampleRate
	}
	if c.BlockSize <= 0 {
		c.BlockSize = audio.DefaultBlockSize
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = audio.DefaultQueueCapacity
	}
	if c.SendInterval <= 0 {
		c.SendInterval = DefaultSendInterval
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	return c
}

// Deps are the engine's injected collaborators.
type Deps struct {
	Dialer  live.Dialer
	Audio   audio.Context
	Player  playback.Player
	Clock   playback.Clock
	Metrics *metrics.Collector
	Logger  *slog.Logger

	// OnUpdate, when set, is called after every externally visible change.
	// It runs outside the engine lock.
	OnUpdate func()
}

// Snapshot is the externally visible engine state.
type Snapshot struct {
	State         State   `json:"state"`
	Phase         Phase   `json:"phase"`
	Volume        float64 `json:"volume"`
	Muted         bool    `json:"muted"`
	Error         string  `json:"error,omitempty"`
	QueueLength   int     `json:"queueLength"`
	QueueDropped  uint64  `json:"queueDropped"`
	ActiveSources int     `json:"activeSources"`
}

// Engine drives a live voice session.
type Engine struct {
	cfg     Config
	dialer  live.Dialer
	audio   audio.Context
	metrics *metrics.Collector
	logger  *slog.Logger
	onUpd   func()

	queue *audio.Queue
	sched *playback.Scheduler
	vad   *vad.Detector
	log   *transcript.Log

	mu             sync.Mutex
	gen            uint64
	state          State
	phase          Phase
	lastErr        error
	session        live.Session
	capture        audio.CaptureDevice
	pipeline       *audio.Pipeline
	connectTimer   *time.Timer
	pacerStop      chan struct{}
	volume         float64
	muted          bool
	reconnecting   bool
	firstAudioSeen bool
	firstTextSeen  bool
}

// NewEngine validates the dependencies and builds an idle engine.
func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	if deps.Dialer == nil {
		return nil, fmt.Errorf("dialer cannot be nil")
	}
	if deps.Audio == nil {
		return nil, fmt.Errorf("audio context cannot be nil")
	}
	if deps.Player == nil {
		return nil, fmt.Errorf("player cannot be nil")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock cannot be nil")
	}
	if deps.Metrics == nil {
		return nil, fmt.Errorf("metrics collector cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	cfg = cfg.withDefaults()

	detector, err := vad.NewDetector(cfg.VADThreshold, cfg.VolumeGain)
	if err != nil {
		return nil, fmt.Errorf("failed to create voice detector: %w", err)
	}

	sched, err := playback.NewScheduler(deps.Clock, deps.Player)
	if err != nil {
		return nil, fmt.Errorf("failed to create playback scheduler: %w", err)
	}

	e := &Engine{
		cfg:     cfg,
		dialer:  deps.Dialer,
		audio:   deps.Audio,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		onUpd:   deps.OnUpdate,
		queue:   audio.NewQueue(cfg.QueueCapacity),
		sched:   sched,
		vad:     detector,
		log:     transcript.NewLog(),
		state:   StateDisconnected,
		phase:   PhaseIdle,
	}
	sched.SetIdleFunc(e.onPlaybackIdle)
	return e, nil
}

// Transcript exposes the conversation log.
func (e *Engine) Transcript() *transcript.Log {
	return e.log
}

// Connect opens a new live session. Calling Connect while connecting or
// connected is a no-op.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()

	if e.state == StateConnecting || e.state == StateConnected {
		e.mu.Unlock()
		return nil
	}

	if e.cfg.APIKey == "" {
		err := fmt.Errorf("API key is not configured")
		e.state = StateDisconnected
		e.phase = PhaseSetupError
		e.lastErr = err
		e.mu.Unlock()
		e.notify()
		return err
	}

	gen := e.gen
	e.state = StateConnecting
	e.phase = PhaseInitializingAudio
	e.lastErr = nil
	e.firstAudioSeen = false
	e.firstTextSeen = false
	e.vad.ResetTurn()
	preserve := e.reconnecting && e.cfg.PreserveHistoryOnReconnect
	e.mu.Unlock()

	e.metrics.RecordSessionStart()
	if !preserve {
		e.log.Clear()
	}
	e.notify()

	// Microphone first: a session without input is useless, and a capture
	// failure must not leave a dangling connection.
	e.setPhase(gen, PhaseRequestingMic)

	capture, err := e.audio.NewCapture(nil, audio.CaptureConfig{
		SampleRate: uint32(e.cfg.InputSampleRate),
		Channels:   1,
	})
	if err != nil {
		e.failConnect(gen, PhaseSetupError, fmt.Errorf("failed to open capture device: %w", err))
		return err
	}

	pipeline, err := audio.NewPipeline(e.cfg.BlockSize, func(c audio.Chunk) {
		e.onCaptureChunk(gen, c)
	})
	if err != nil {
		capture.Close()
		e.failConnect(gen, PhaseSetupError, err)
		return err
	}

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		capture.Close()
		return fmt.Errorf("connection attempt superseded")
	}
	e.capture = capture
	e.pipeline = pipeline
	e.phase = PhaseWaitingLiveSession
	e.connectTimer = time.AfterFunc(e.cfg.ConnectTimeout, func() {
		e.onConnectTimeout(gen)
	})
	e.mu.Unlock()
	e.notify()

	sess, err := e.dialer.Dial(ctx, live.Config{
		Endpoint:          e.cfg.Endpoint,
		APIKey:            e.cfg.APIKey,
		Model:             e.cfg.Model,
		SystemInstruction: e.cfg.SystemInstruction,
		VoiceName:         e.cfg.VoiceName,
		EnableSearch:      e.cfg.EnableSearch,
	}, live.Callbacks{
		OnOpen:    func() { e.onOpen(gen) },
		OnMessage: func(msg live.ServerMessage) { e.onMessage(gen, msg) },
		OnClose:   func(err error) { e.onSessionClose(gen, err) },
		OnError:   func(err error) { e.onSessionError(gen, err) },
	})
	if err != nil {
		e.failConnect(gen, PhaseSetupError, fmt.Errorf("failed to open live session: %w", err))
		return err
	}

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		sess.Close()
		return fmt.Errorf("connection attempt superseded")
	}
	e.session = sess
	e.mu.Unlock()
	return nil
}

// Disconnect closes the current session. Idempotent.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	if e.session == nil && e.state == StateDisconnected && e.capture == nil {
		e.mu.Unlock()
		return
	}
	sess := e.teardownLocked(StateDisconnected, PhaseIdle)
	e.lastErr = nil
	e.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
	e.log.CloseAll()
	e.notify()
}

// Reconnect tears the session down and opens a fresh one, preserving the
// transcript when configured to.
func (e *Engine) Reconnect(ctx context.Context) error {
	e.metrics.RecordReconnect()

	e.mu.Lock()
	e.reconnecting = true
	e.mu.Unlock()

	e.Disconnect()
	err := e.Connect(ctx)

	e.mu.Lock()
	e.reconnecting = false
	e.mu.Unlock()
	return err
}

// SendText submits a typed user turn over the open session.
func (e *Engine) SendText(ctx context.Context, text string) error {
	if text == "" {
		return fmt.Errorf("text cannot be empty")
	}

	e.mu.Lock()
	if e.state != StateConnected || e.session == nil {
		e.mu.Unlock()
		return fmt.Errorf("not connected")
	}
	sess := e.session
	e.mu.Unlock()

	e.log.AddUserMessage(text)
	if err := sess.SendText(ctx, text); err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}
	e.notify()
	return nil
}

// SetMuted silences the outbound stream without detaching the microphone.
func (e *Engine) SetMuted(muted bool) {
	e.mu.Lock()
	e.muted = muted
	e.mu.Unlock()
	e.notify()
}

// Snapshot returns the externally visible state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		State:         e.state,
		Phase:         e.phase,
		Volume:        e.volume,
		Muted:         e.muted,
		QueueLength:   e.queue.Len(),
		QueueDropped:  e.queue.Dropped(),
		ActiveSources: e.sched.Active(),
	}
	if e.lastErr != nil {
		snap.Error = e.lastErr.Error()
	}
	return snap
}

// Close releases everything. The engine is unusable afterwards.
func (e *Engine) Close() {
	e.Disconnect()
}

// failConnect records a connection failure and tears down whatever the
// attempt had already acquired.
func (e *Engine) failConnect(gen uint64, phase Phase, err error) {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	e.lastErr = err
	sess := e.teardownLocked(StateError, phase)
	e.mu.Unlock()

	e.metrics.RecordSessionError()
	if sess != nil {
		sess.Close()
	}
	e.logger.Error("Live session connect failed", "error", err)
	e.notify()
}

// teardownLocked dismantles the running session and moves to a final state.
// It returns the live session, which the caller must close outside the
// lock. Bumping the generation first makes every in-flight completion for
// the old session a no-op.
func (e *Engine) teardownLocked(finalState State, finalPhase Phase) live.Session {
	e.gen++

	if e.connectTimer != nil {
		e.connectTimer.Stop()
		e.connectTimer = nil
	}
	if e.pacerStop != nil {
		close(e.pacerStop)
		e.pacerStop = nil
	}
	if e.pipeline != nil {
		e.pipeline.Stop()
		e.pipeline = nil
	}
	if e.capture != nil {
		e.capture.Stop()
		e.capture.Close()
		e.capture = nil
	}

	sess := e.session
	e.session = nil

	e.sched.Reset()
	e.queue.Clear()
	e.volume = 0
	e.firstAudioSeen = false
	e.firstTextSeen = false
	e.state = finalState
	e.phase = finalPhase
	return sess
}

// onOpen runs when the server acknowledges setup: capture and the pacer
// start here so no audio is queued before the session can accept it.
func (e *Engine) onOpen(gen uint64) {
	e.mu.Lock()
	if e.gen != gen || e.state != StateConnecting {
		e.mu.Unlock()
		return
	}

	if e.connectTimer != nil {
		e.connectTimer.Stop()
		e.connectTimer = nil
	}

	pipeline := e.pipeline
	capture := e.capture
	e.state = StateConnected
	e.phase = PhaseConnectedIdle

	stop := make(chan struct{})
	e.pacerStop = stop
	e.mu.Unlock()

	if err := pipeline.Start(capture); err != nil {
		e.failConnect(gen, PhaseSetupError, err)
		return
	}

	go e.runPacer(gen, stop)
	e.logger.Info("Live session established", "model", e.cfg.Model)
	e.notify()
}

// onConnectTimeout fires when setup takes too long.
func (e *Engine) onConnectTimeout(gen uint64) {
	e.mu.Lock()
	if e.gen != gen || e.state != StateConnecting {
		e.mu.Unlock()
		return
	}
	e.lastErr = fmt.Errorf("timed out waiting for live session after %s", e.cfg.ConnectTimeout)
	sess := e.teardownLocked(StateError, PhaseTimeout)
	e.mu.Unlock()

	e.metrics.RecordSessionError()
	if sess != nil {
		sess.Close()
	}
	e.logger.Error("Live session connect timed out", "timeout", e.cfg.ConnectTimeout)
	e.notify()
}

// onSessionClose runs when the connection ends from the remote side.
func (e *Engine) onSessionClose(gen uint64, err error) {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}

	var sess live.Session
	if err != nil {
		e.lastErr = err
		sess = e.teardownLocked(StateError, PhaseSetupError)
	} else {
		sess = e.teardownLocked(StateDisconnected, PhaseClosed)
	}
	e.mu.Unlock()

	if err != nil {
		e.metrics.RecordSessionError()
		e.logger.Error("Live session lost", "error", err)
	} else {
		e.logger.Info("Live session closed")
	}
	if sess != nil {
		sess.Close()
	}
	e.log.CloseAll()
	e.notify()
}

// onSessionError runs when the stream reports a protocol fault. It takes
// the same teardown path as a failed close.
func (e *Engine) onSessionError(gen uint64, err error) {
	e.onSessionClose(gen, fmt.Errorf("live session error: %w", err))
}

// onCaptureChunk handles one block of microphone audio.
func (e *Engine) onCaptureChunk(gen uint64, chunk audio.Chunk) {
	e.mu.Lock()
	if e.gen != gen || e.state != StateConnected {
		e.mu.Unlock()
		return
	}

	volume, onset := e.vad.Observe(chunk.RMS)
	e.volume = volume

	if onset && (e.phase == PhaseConnectedIdle || e.phase == PhaseInterrupted) {
		e.phase = PhaseCapturingAudio
	}

	var evicted bool
	if !e.muted {
		evicted = e.queue.Push(chunk)
	}
	e.mu.Unlock()

	e.metrics.ObserveInputRMS(chunk.RMS)
	if evicted {
		e.metrics.RecordChunkDropped()
	}
	e.notify()
}

// runPacer drains the outbound queue at a fixed cadence, one chunk per
// tick, so bursts from the capture side never flood the connection.
func (e *Engine) runPacer(gen uint64, stop chan struct{}) {
	ticker := time.NewTicker(e.cfg.SendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.pacerTick(gen)
		}
	}
}

func (e *Engine) pacerTick(gen uint64) {
	e.mu.Lock()
	if e.gen != gen || e.state != StateConnected || e.session == nil {
		e.mu.Unlock()
		return
	}
	chunk, ok := e.queue.Pop()
	sess := e.session
	rate := e.cfg.InputSampleRate
	e.mu.Unlock()

	if !ok {
		return
	}

	blob := audio.EncodePCM(chunk.Samples, rate)
	if err := sess.SendRealtimeInput(context.Background(), blob); err != nil {
		e.logger.Debug("Failed to send audio chunk", "error", err)
		return
	}
	e.metrics.RecordChunkSent()
}

// onMessage dispatches one server frame.
func (e *Engine) onMessage(gen uint64, msg live.ServerMessage) {
	sc := msg.ServerContent
	if sc == nil {
		return
	}

	e.mu.Lock()
	if e.gen != gen || e.state != StateConnected {
		e.mu.Unlock()
		return
	}

	if sc.Interrupted {
		e.sched.Interrupt()
		e.phase = PhaseInterrupted
		e.firstAudioSeen = false
		e.firstTextSeen = false
		e.vad.ResetTurn()
		e.mu.Unlock()
		e.log.CloseAll()
		e.notify()
		return
	}

	var firstAudioMs, firstTextMs int64 = -1, -1
	var samples [][]float32

	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			decoded, err := audio.DecodePCM(part.InlineData.Data)
			if err != nil {
				e.logger.Warn("Discarding undecodable audio part", "error", err)
				continue
			}
			samples = append(samples, decoded)
		}
	}

	if len(samples) > 0 {
		if !e.firstAudioSeen {
			e.firstAudioSeen = true
			if onset, ok := e.vad.OnsetTime(); ok {
				firstAudioMs = time.Since(onset).Milliseconds()
			}
		}
		e.phase = PhasePlayingAudio
		for _, s := range samples {
			if _, err := e.sched.Schedule(s, e.cfg.OutputSampleRate); err != nil {
				e.logger.Warn("Failed to schedule playback", "error", err)
			}
		}
	}

	var userText, modelText string
	var sources []transcript.Source

	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		userText = sc.InputTranscription.Text
		if e.phase == PhaseCapturingAudio {
			e.phase = PhaseWaitingModel
		}
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		modelText = sc.OutputTranscription.Text
		if !e.firstTextSeen {
			e.firstTextSeen = true
			if onset, ok := e.vad.OnsetTime(); ok {
				firstTextMs = time.Since(onset).Milliseconds()
			}
		}
	}
	if sc.GroundingMetadata != nil {
		for _, gc := range sc.GroundingMetadata.GroundingChunks {
			if gc.Web != nil && gc.Web.URI != "" {
				sources = append(sources, transcript.Source{
					Title: gc.Web.Title,
					URL:   gc.Web.URI,
				})
			}
		}
	}

	turnComplete := sc.TurnComplete
	if turnComplete {
		e.firstAudioSeen = false
		e.firstTextSeen = false
		e.vad.ResetTurn()
		if e.sched.Active() > 0 {
			e.phase = PhasePlayingAudio
		} else {
			e.phase = PhaseConnectedIdle
		}
	}
	e.mu.Unlock()

	if firstAudioMs >= 0 {
		e.metrics.RecordFirstAudioLatency(firstAudioMs)
	}
	if firstTextMs >= 0 {
		e.metrics.RecordFirstTextLatency(firstTextMs)
	}
	if userText != "" {
		e.log.AppendUser(userText)
	}
	if modelText != "" || len(sources) > 0 {
		e.log.AppendModel(modelText, sources)
	}
	if turnComplete {
		e.log.CloseAll()
	}
	e.notify()
}

// onPlaybackIdle fires when the last scheduled source drains.
func (e *Engine) onPlaybackIdle() {
	e.mu.Lock()
	if e.state == StateConnected && e.phase == PhasePlayingAudio {
		e.phase = PhaseConnectedIdle
	}
	e.mu.Unlock()
	e.notify()
}

// setPhase updates the phase if the attempt is still current.
func (e *Engine) setPhase(gen uint64, phase Phase) {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	e.phase = phase
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) notify() {
	if e.onUpd != nil {
		e.onUpd()
	}
}
