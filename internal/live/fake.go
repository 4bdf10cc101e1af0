package live

import (
	"context"
	"fmt"
	"sync"

	"github.com/CarlosDimare/CHATVOZ/internal/audio"
)

// FakeDialer is an in-memory Dialer for tests. It hands out FakeSessions
// and retains the callbacks so tests can drive server-side events.
type FakeDialer struct {
	mu       sync.Mutex
	failNext bool
	sessions []*FakeSession
}

func NewFakeDialer() *FakeDialer {
	return &FakeDialer{}
}

// FailNext makes the next Dial return an error.
func (d *FakeDialer) FailNext() {
	d.mu.Lock()
	d.failNext = true
	d.mu.Unlock()
}

func (d *FakeDialer) Dial(_ context.Context, cfg Config, cb Callbacks) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failNext {
		d.failNext = false
		return nil, fmt.Errorf("dial refused")
	}

	s := &FakeSession{Cfg: cfg, Callbacks: cb}
	d.sessions = append(d.sessions, s)
	return s, nil
}

// Sessions returns every session handed out so far.
func (d *FakeDialer) Sessions() []*FakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeSession(nil), d.sessions...)
}

// Last returns the most recently dialed session, or nil.
func (d *FakeDialer) Last() *FakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

// FakeSession records everything sent through it.
type FakeSession struct {
	Cfg       Config
	Callbacks Callbacks

	mu       sync.Mutex
	blobs    []audio.Blob
	texts    []string
	closed   bool
	failSend bool
}

// FailSends makes subsequent sends return an error.
func (s *FakeSession) FailSends() {
	s.mu.Lock()
	s.failSend = true
	s.mu.Unlock()
}

func (s *FakeSession) SendRealtimeInput(_ context.Context, blob audio.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session is closed")
	}
	if s.failSend {
		return fmt.Errorf("send failed")
	}
	s.blobs = append(s.blobs, blob)
	return nil
}

func (s *FakeSession) SendText(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session is closed")
	}
	if s.failSend {
		return fmt.Errorf("send failed")
	}
	s.texts = append(s.texts, text)
	return nil
}

func (s *FakeSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Open simulates the server acknowledging setup.
func (s *FakeSession) Open() {
	if s.Callbacks.OnOpen != nil {
		s.Callbacks.OnOpen()
	}
}

// Fault simulates a protocol-level error on the stream.
func (s *FakeSession) Fault(err error) {
	if s.Callbacks.OnError != nil {
		s.Callbacks.OnError(err)
	}
}

// Receive simulates a server frame.
func (s *FakeSession) Receive(msg ServerMessage) {
	if s.Callbacks.OnMessage != nil {
		s.Callbacks.OnMessage(msg)
	}
}

// Drop simulates the connection ending from the server side.
func (s *FakeSession) Drop(err error) {
	if s.Callbacks.OnClose != nil {
		s.Callbacks.OnClose(err)
	}
}

// Blobs returns the audio chunks sent so far.
func (s *FakeSession) Blobs() []audio.Blob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.Blob(nil), s.blobs...)
}

// Texts returns the typed turns sent so far.
func (s *FakeSession) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// Closed reports whether Close was called.
func (s *FakeSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
