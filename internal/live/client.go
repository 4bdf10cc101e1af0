package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/CarlosDimare/CHATVOZ/internal/audio"
)

// DefaultEndpoint is the production streaming endpoint.
const DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Config describes a session to open.
type Config struct {
	Endpoint          string
	APIKey            string
	Model             string
	SystemInstruction string
	VoiceName         string
	EnableSearch      bool
}

// Callbacks are the session event handlers. OnOpen fires once setup is
// acknowledged; OnClose fires exactly once when the connection ends for any
// reason other than a local Close; OnError reports protocol-level faults,
// such as an undecodable frame, without ending the connection.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(msg ServerMessage)
	OnClose   func(err error)
	OnError   func(err error)
}

// Session is an open bidirectional connection.
type Session interface {
	// SendRealtimeInput streams one audio chunk.
	SendRealtimeInput(ctx context.Context, blob audio.Blob) error
	// SendText submits a complete typed turn.
	SendText(ctx context.Context, text string) error
	// Close tears the connection down. Idempotent; suppresses further
	// callbacks.
	Close()
}

// Dialer opens sessions. The engine depends on this interface so tests can
// substitute an in-memory implementation.
type Dialer interface {
	Dial(ctx context.Context, cfg Config, cb Callbacks) (Session, error)
}

// WebsocketDialer dials the streaming endpoint over a websocket.
type WebsocketDialer struct {
	logger *slog.Logger
}

// NewWebsocketDialer creates a dialer logging through the given logger.
func NewWebsocketDialer(logger *slog.Logger) *WebsocketDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebsocketDialer{logger: logger}
}

// Dial connects, sends the setup frame and starts the read loop. The
// returned session is usable immediately, though the server ignores input
// until setup completes.
func (d *WebsocketDialer) Dial(ctx context.Context, cfg Config, cb Callbacks) (Session, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint+"?key="+cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial streaming endpoint: %w", err)
	}

	s := &wsSession{
		conn:   conn,
		cb:     cb,
		logger: d.logger,
	}

	if err := s.writeJSON(ClientMessage{Setup: setupFor(cfg)}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send setup: %w", err)
	}

	go s.readLoop()
	return s, nil
}

func setupFor(cfg Config) *Setup {
	setup := &Setup{
		Model: cfg.Model,
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if cfg.VoiceName != "" {
		setup.GenerationConfig.SpeechConfig = &SpeechConfig{
			VoiceConfig: &VoiceConfig{
				PrebuiltVoiceConfig: &PrebuiltVoiceConfig{VoiceName: cfg.VoiceName},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		setup.SystemInstruction = &Content{
			Parts: []Part{{Text: cfg.SystemInstruction}},
		}
	}
	if cfg.EnableSearch {
		setup.Tools = []Tool{{GoogleSearch: &struct{}{}}}
	}
	return setup
}

type wsSession struct {
	conn   *websocket.Conn
	cb     Callbacks
	logger *slog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

func (s *wsSession) SendRealtimeInput(_ context.Context, blob audio.Blob) error {
	return s.writeJSON(ClientMessage{
		RealtimeInput: &RealtimeInput{MediaChunks: []audio.Blob{blob}},
	})
}

func (s *wsSession) SendText(_ context.Context, text string) error {
	return s.writeJSON(ClientMessage{
		ClientContent: &ClientContent{
			Turns:        []Content{{Role: "user", Parts: []Part{{Text: text}}}},
			TurnComplete: true,
		},
	})
}

func (s *wsSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	s.conn.Close()
}

func (s *wsSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *wsSession) writeJSON(msg ClientMessage) error {
	if s.isClosed() {
		return fmt.Errorf("session is closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// readLoop decodes server frames until the connection drops. setupComplete
// maps to OnOpen, everything else is handed to OnMessage. Frames that fail
// to decode surface through OnError; the connection itself stays up.
func (s *wsSession) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.isClosed() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				if s.cb.OnClose != nil {
					s.cb.OnClose(nil)
				}
				return
			}
			s.logger.Debug("Session read failed", "error", err)
			if s.cb.OnClose != nil {
				s.cb.OnClose(err)
			}
			return
		}

		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("Discarding undecodable frame", "error", err)
			if s.cb.OnError != nil && !s.isClosed() {
				s.cb.OnError(fmt.Errorf("failed to decode server message: %w", err))
			}
			continue
		}

		if msg.SetupComplete != nil {
			if s.cb.OnOpen != nil {
				s.cb.OnOpen()
			}
			continue
		}
		if s.cb.OnMessage != nil {
			s.cb.OnMessage(msg)
		}
	}
}
