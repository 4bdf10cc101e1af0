package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CarlosDimare/CHATVOZ/internal/audio"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// testServer is a minimal in-process endpoint. It records the setup frame
// and every client frame after it, and lets tests push server frames back.
type testServer struct {
	srv *httptest.Server

	mu    sync.Mutex
	key   string
	setup *Setup
	conn  *websocket.Conn
	msgs  []ClientMessage
	ready chan struct{}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{ready: make(chan struct{})}

	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}

		var first ClientMessage
		if err := conn.ReadJSON(&first); err != nil {
			return
		}

		ts.mu.Lock()
		ts.key = r.URL.Query().Get("key")
		ts.setup = first.Setup
		ts.conn = conn
		ts.mu.Unlock()

		conn.WriteJSON(ServerMessage{SetupComplete: &struct{}{}})
		close(ts.ready)

		for {
			var msg ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			ts.mu.Lock()
			ts.msgs = append(ts.msgs, msg)
			ts.mu.Unlock()
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) endpoint() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *testServer) push(msg ServerMessage) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.conn.WriteJSON(msg)
}

func (ts *testServer) pushRaw(data []byte) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.conn.WriteMessage(websocket.TextMessage, data)
}

func (ts *testServer) received() []ClientMessage {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]ClientMessage(nil), ts.msgs...)
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for %s", what)
	}
}

func TestDialSendsSetup(t *testing.T) {
	ts := newTestServer(t)

	opened := make(chan struct{})
	dialer := NewWebsocketDialer(nil)
	sess, err := dialer.Dial(context.Background(), Config{
		Endpoint:          ts.endpoint(),
		APIKey:            "test-key",
		Model:             "models/test",
		SystemInstruction: "sé breve",
		VoiceName:         "Zephyr",
		EnableSearch:      true,
	}, Callbacks{
		OnOpen: func() { close(opened) },
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()

	waitFor(t, ts.ready, "setup")
	waitFor(t, opened, "OnOpen")

	ts.mu.Lock()
	setup := ts.setup
	key := ts.key
	ts.mu.Unlock()

	if key != "test-key" {
		t.Errorf("Expected API key in query, got '%s'", key)
	}
	if setup == nil {
		t.Fatalf("Expected setup frame")
	}
	if setup.Model != "models/test" {
		t.Errorf("Expected model in setup, got '%s'", setup.Model)
	}
	if setup.GenerationConfig == nil || len(setup.GenerationConfig.ResponseModalities) != 1 ||
		setup.GenerationConfig.ResponseModalities[0] != "AUDIO" {
		t.Errorf("Expected AUDIO response modality")
	}
	if setup.GenerationConfig.SpeechConfig == nil ||
		setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Zephyr" {
		t.Errorf("Expected voice name in setup")
	}
	if setup.SystemInstruction == nil || len(setup.SystemInstruction.Parts) != 1 {
		t.Errorf("Expected system instruction in setup")
	}
	if len(setup.Tools) != 1 || setup.Tools[0].GoogleSearch == nil {
		t.Errorf("Expected search tool in setup")
	}
	if setup.InputAudioTranscription == nil || setup.OutputAudioTranscription == nil {
		t.Errorf("Expected transcription enabled both ways")
	}
}

func TestDialValidation(t *testing.T) {
	dialer := NewWebsocketDialer(nil)

	if _, err := dialer.Dial(context.Background(), Config{Model: "m"}, Callbacks{}); err == nil {
		t.Errorf("Expected error without API key")
	}
	if _, err := dialer.Dial(context.Background(), Config{APIKey: "k"}, Callbacks{}); err == nil {
		t.Errorf("Expected error without model")
	}
}

func TestSendFrames(t *testing.T) {
	ts := newTestServer(t)

	dialer := NewWebsocketDialer(nil)
	sess, err := dialer.Dial(context.Background(), Config{
		Endpoint: ts.endpoint(),
		APIKey:   "k",
		Model:    "models/test",
	}, Callbacks{})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()
	waitFor(t, ts.ready, "setup")

	blob := audio.EncodePCM([]float32{0.1, -0.1}, 16000)
	if err := sess.SendRealtimeInput(context.Background(), blob); err != nil {
		t.Fatalf("SendRealtimeInput failed: %v", err)
	}
	if err := sess.SendText(context.Background(), "hola"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(ts.received()) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	msgs := ts.received()
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(msgs))
	}
	if msgs[0].RealtimeInput == nil || len(msgs[0].RealtimeInput.MediaChunks) != 1 {
		t.Errorf("Expected one media chunk in first frame")
	}
	if msgs[0].RealtimeInput.MediaChunks[0].MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("Expected PCM mime type, got '%s'", msgs[0].RealtimeInput.MediaChunks[0].MIMEType)
	}
	if msgs[1].ClientContent == nil || !msgs[1].ClientContent.TurnComplete {
		t.Errorf("Expected complete text turn in second frame")
	}
	if len(msgs[1].ClientContent.Turns) != 1 || msgs[1].ClientContent.Turns[0].Parts[0].Text != "hola" {
		t.Errorf("Expected text 'hola' in turn")
	}
}

func TestServerMessagesDispatched(t *testing.T) {
	ts := newTestServer(t)

	received := make(chan ServerMessage, 4)
	dialer := NewWebsocketDialer(nil)
	sess, err := dialer.Dial(context.Background(), Config{
		Endpoint: ts.endpoint(),
		APIKey:   "k",
		Model:    "models/test",
	}, Callbacks{
		OnMessage: func(msg ServerMessage) { received <- msg },
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()
	waitFor(t, ts.ready, "setup")

	if err := ts.push(ServerMessage{ServerContent: &ServerContent{
		OutputTranscription: &Transcription{Text: "hola"},
	}}); err != nil {
		t.Fatalf("Failed to push frame: %v", err)
	}

	select {
	case msg := <-received:
		if msg.ServerContent == nil || msg.ServerContent.OutputTranscription.Text != "hola" {
			t.Errorf("Expected output transcription frame")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for server frame")
	}
}

func TestUndecodableFrameReportsErrorAndKeepsReading(t *testing.T) {
	ts := newTestServer(t)

	errs := make(chan error, 1)
	received := make(chan ServerMessage, 1)
	dialer := NewWebsocketDialer(nil)
	sess, err := dialer.Dial(context.Background(), Config{
		Endpoint: ts.endpoint(),
		APIKey:   "k",
		Model:    "models/test",
	}, Callbacks{
		OnMessage: func(msg ServerMessage) { received <- msg },
		OnError:   func(err error) { errs <- err },
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer sess.Close()
	waitFor(t, ts.ready, "setup")

	if err := ts.pushRaw([]byte("{this is not json")); err != nil {
		t.Fatalf("Failed to push frame: %v", err)
	}

	select {
	case err := <-errs:
		if !strings.Contains(err.Error(), "decode") {
			t.Errorf("Expected decode error, got '%v'", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for error callback")
	}

	// The connection survives the bad frame.
	if err := ts.push(ServerMessage{ServerContent: &ServerContent{
		OutputTranscription: &Transcription{Text: "sigo aquí"},
	}}); err != nil {
		t.Fatalf("Failed to push frame: %v", err)
	}

	select {
	case msg := <-received:
		if msg.ServerContent == nil || msg.ServerContent.OutputTranscription.Text != "sigo aquí" {
			t.Errorf("Expected frame after the undecodable one")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for server frame")
	}
}

func TestCloseSuppressesCallbacks(t *testing.T) {
	ts := newTestServer(t)

	closed := make(chan error, 1)
	dialer := NewWebsocketDialer(nil)
	sess, err := dialer.Dial(context.Background(), Config{
		Endpoint: ts.endpoint(),
		APIKey:   "k",
		Model:    "models/test",
	}, Callbacks{
		OnClose: func(err error) { closed <- err },
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	waitFor(t, ts.ready, "setup")

	sess.Close()
	sess.Close() // idempotent

	select {
	case err := <-closed:
		t.Errorf("Expected no OnClose after local close, got %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	if err := sess.SendText(context.Background(), "tarde"); err == nil {
		t.Errorf("Expected error sending on closed session")
	}
}

func TestRemoteDropFiresOnClose(t *testing.T) {
	ts := newTestServer(t)

	closed := make(chan error, 1)
	dialer := NewWebsocketDialer(nil)
	_, err := dialer.Dial(context.Background(), Config{
		Endpoint: ts.endpoint(),
		APIKey:   "k",
		Model:    "models/test",
	}, Callbacks{
		OnClose: func(err error) { closed <- err },
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	waitFor(t, ts.ready, "setup")

	ts.mu.Lock()
	ts.conn.Close()
	ts.mu.Unlock()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for OnClose after remote drop")
	}
}
