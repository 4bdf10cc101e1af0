package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CarlosDimare/CHATVOZ/internal/config"
	"github.com/CarlosDimare/CHATVOZ/internal/metrics"
	"github.com/CarlosDimare/CHATVOZ/internal/session"
	"github.com/CarlosDimare/CHATVOZ/internal/transcript"
)

// HTTPServer provides HTTP API endpoints for session control and monitoring
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	engine  *session.Engine
	store   *transcript.Store
	metrics *metrics.Collector

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, engine *session.Engine, store *transcript.Store, m *metrics.Collector) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		engine:    engine,
		store:     store,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session state and transcript
	mux.HandleFunc("/state", h.withMetrics("/state", h.handleState))
	mux.HandleFunc("/messages", h.withMetrics("/messages", h.handleMessages))

	// Saved conversations
	mux.HandleFunc("/conversations", h.withMetrics("/conversations", h.handleConversations))
	mux.HandleFunc("/conversations/", h.withMetrics("/conversations/{id}", h.handleConversationDetail))

	// Session control
	mux.HandleFunc("/control/connect", h.withMetrics("/control/connect", h.handleConnect))
	mux.HandleFunc("/control/disconnect", h.withMetrics("/control/disconnect", h.handleDisconnect))
	mux.HandleFunc("/control/reconnect", h.withMetrics("/control/reconnect", h.handleReconnect))
	mux.HandleFunc("/control/send", h.withMetrics("/control/send", h.handleSend))
	mux.HandleFunc("/control/mute", h.withMetrics("/control/mute", h.handleMute))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		h.metrics.ObserveHTTPRequest(r.Method, endpoint, fmt.Sprintf("%d", ww.statusCode), duration)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := h.engine.Snapshot()
	uptime := time.Since(h.startTime)

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "chatvoz",
			"version": "1.0.0",
		},
		"session": map[string]interface{}{
			"state": snap.State,
			"phase": snap.Phase,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleState implements the /state endpoint
func (h *HTTPServer) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.engine.Snapshot())
}

// handleMessages implements the /messages endpoint
func (h *HTTPServer) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	items := h.engine.Transcript().Items()

	response := map[string]interface{}{
		"total":     len(items),
		"timestamp": time.Now().UTC(),
		"messages":  items,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleConversations implements the /conversations endpoint. GET lists the
// saved conversations; POST saves the current transcript as a new one.
func (h *HTTPServer) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		response := map[string]interface{}{
			"conversations": h.store.List(),
			"timestamp":     time.Now().UTC(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)

	case http.MethodPost:
		conv, err := h.store.Save(h.engine.Transcript().Items())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(conv)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleConversationDetail implements the /conversations/{id} endpoint.
// GET returns one conversation, DELETE removes it, POST restores it into
// the live transcript.
func (h *HTTPServer) handleConversationDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/conversations/")
	if id == "" {
		http.Error(w, "Conversation ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		conv, ok := h.store.Get(id)
		if !ok {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(conv)

	case http.MethodDelete:
		if err := h.store.Delete(id); err != nil {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodPost:
		conv, ok := h.store.Get(id)
		if !ok {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		h.engine.Transcript().Restore(conv.Messages)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleConnect implements POST /control/connect
func (h *HTTPServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.engine.Connect(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.engine.Snapshot())
}

// handleDisconnect implements POST /control/disconnect
func (h *HTTPServer) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.engine.Disconnect()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.engine.Snapshot())
}

// handleReconnect implements POST /control/reconnect
func (h *HTTPServer) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.engine.Reconnect(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.engine.Snapshot())
}

// handleSend implements POST /control/send
func (h *HTTPServer) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.engine.SendText(r.Context(), req.Text); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleMute implements POST /control/mute
func (h *HTTPServer) handleMute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Muted bool `json:"muted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	h.engine.SetMuted(req.Muted)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.engine.Snapshot())
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"api": map[string]interface{}{
			"model":         h.config.API.Model,
			"voice_name":    h.config.API.VoiceName,
			"enable_search": h.config.API.EnableSearch,
			// Note: API key is intentionally omitted for security
		},
		"audio": map[string]interface{}{
			"input_sample_rate":  h.config.Audio.InputSampleRate,
			"output_sample_rate": h.config.Audio.OutputSampleRate,
			"block_size":         h.config.Audio.BlockSize,
			"queue_capacity":     h.config.Audio.QueueCapacity,
			"send_interval_ms":   h.config.Audio.SendIntervalMs,
		},
		"vad": map[string]interface{}{
			"threshold":   h.config.VAD.Threshold,
			"volume_gain": h.config.VAD.VolumeGain,
		},
		"session": map[string]interface{}{
			"connect_timeout":               h.config.Session.ConnectTimeout,
			"preserve_history_on_reconnect": h.config.Session.PreserveHistoryOnReconnect,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := h.engine.Snapshot()
	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"session":   snap,
		"live":      h.metrics.Snapshot(),
		"transcript": map[string]interface{}{
			"messages": h.engine.Transcript().Len(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "CHATVOZ Live Voice Client",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                        "API documentation",
			"GET /health":                  "Service health check",
			"GET /state":                   "Current session state",
			"GET /messages":                "Current conversation transcript",
			"GET /conversations":           "List saved conversations",
			"POST /conversations":          "Save current transcript",
			"GET /conversations/{id}":      "Get a saved conversation",
			"POST /conversations/{id}":     "Restore a saved conversation",
			"DELETE /conversations/{id}":   "Delete a saved conversation",
			"POST /control/connect":        "Open a live session",
			"POST /control/disconnect":     "Close the live session",
			"POST /control/reconnect":      "Restart the live session",
			"POST /control/send":           "Send a typed message",
			"POST /control/mute":           "Mute or unmute the microphone",
			"GET /config":                  "Get service configuration",
			"GET /stats":                   "Get service statistics",
			"GET /metrics":                 "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
