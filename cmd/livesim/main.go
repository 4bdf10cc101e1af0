// livesim is a local stand-in for the live streaming endpoint. It speaks
// just enough of the wire protocol to exercise the client end to end:
// setup handshake, input transcription echoes for received audio, and a
// scripted audio-plus-text reply for each completed text turn.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CarlosDimare/CHATVOZ/internal/audio"
	"github.com/CarlosDimare/CHATVOZ/internal/live"
)

const replySampleRate = 24000

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9090", "Listen address")
	chunksPerEcho := flag.Int("chunks-per-echo", 25, "Audio chunks per input transcription echo")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("Upgrade failed", "error", err)
			return
		}
		logger.Info("Session connected", "remote", r.RemoteAddr, "key_present", r.URL.Query().Get("key") != "")
		serve(conn, logger, *chunksPerEcho)
	})

	logger.Info("Live simulator listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// serve runs one simulated session until the client disconnects.
func serve(conn *websocket.Conn, logger *slog.Logger, chunksPerEcho int) {
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(msg live.ServerMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(msg)
	}

	// The client's first frame must be setup.
	var first live.ClientMessage
	if err := conn.ReadJSON(&first); err != nil {
		logger.Error("Failed to read setup", "error", err)
		return
	}
	if first.Setup == nil {
		logger.Error("First frame was not setup")
		return
	}
	logger.Info("Setup received", "model", first.Setup.Model)

	if err := send(live.ServerMessage{SetupComplete: &struct{}{}}); err != nil {
		return
	}

	audioChunks := 0
	turn := 0

	for {
		var msg live.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			logger.Info("Session ended", "error", err)
			return
		}

		switch {
		case msg.RealtimeInput != nil:
			audioChunks += len(msg.RealtimeInput.MediaChunks)
			if chunksPerEcho > 0 && audioChunks%chunksPerEcho == 0 {
				_ = send(live.ServerMessage{ServerContent: &live.ServerContent{
					InputTranscription: &live.Transcription{Text: "... "},
				}})
			}

		case msg.ClientContent != nil:
			turn++
			reply(send, turn)

		case msg.Setup != nil:
			logger.Warn("Duplicate setup frame ignored")
		}
	}
}

// reply streams a short scripted answer: two audio parts, an output
// transcription in fragments, grounding on every other turn, then
// turnComplete.
func reply(send func(live.ServerMessage) error, turn int) {
	tone := audio.EncodePCM(sine(440, 200*time.Millisecond), replySampleRate)
	for i := 0; i < 2; i++ {
		_ = send(live.ServerMessage{ServerContent: &live.ServerContent{
			ModelTurn: &live.Content{Parts: []live.Part{{InlineData: &tone}}},
		}})
	}

	fragments := []string{"Respuesta ", fmt.Sprintf("número %d.", turn)}
	for _, f := range fragments {
		_ = send(live.ServerMessage{ServerContent: &live.ServerContent{
			OutputTranscription: &live.Transcription{Text: f},
		}})
		time.Sleep(20 * time.Millisecond)
	}

	if turn%2 == 0 {
		_ = send(live.ServerMessage{ServerContent: &live.ServerContent{
			GroundingMetadata: &live.GroundingMetadata{
				GroundingChunks: []live.GroundingChunk{
					{Web: &live.WebSource{URI: "https://example.com/fuente", Title: "Fuente de ejemplo"}},
				},
			},
		}})
	}

	_ = send(live.ServerMessage{ServerContent: &live.ServerContent{TurnComplete: true}})
}

// sine renders a mono test tone.
func sine(freq float64, d time.Duration) []float32 {
	n := int(float64(replySampleRate) * d.Seconds())
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.3 * math.Sin(2*math.Pi*freq*float64(i)/replySampleRate))
	}
	return samples
}
