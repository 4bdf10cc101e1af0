package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/CarlosDimare/CHATVOZ/internal/audio"
	"github.com/CarlosDimare/CHATVOZ/internal/config"
	"github.com/CarlosDimare/CHATVOZ/internal/live"
	"github.com/CarlosDimare/CHATVOZ/internal/metrics"
	"github.com/CarlosDimare/CHATVOZ/internal/playback"
	"github.com/CarlosDimare/CHATVOZ/internal/server"
	"github.com/CarlosDimare/CHATVOZ/internal/session"
	"github.com/CarlosDimare/CHATVOZ/internal/transcript"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "chatvoz"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	connectNow := flag.Bool("connect", false, "Open the live session immediately")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("model", cfg.API.Model),
		slog.String("voice_name", cfg.API.VoiceName),
		slog.Bool("enable_search", cfg.API.EnableSearch),
		slog.Int("input_sample_rate", cfg.Audio.InputSampleRate),
		slog.Int("output_sample_rate", cfg.Audio.OutputSampleRate),
		slog.Int("queue_capacity", cfg.Audio.QueueCapacity),
		slog.Float64("vad_threshold", cfg.VAD.Threshold),
		slog.Duration("connect_timeout", cfg.Session.GetConnectTimeout()),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	// Initialize the audio backend
	audioCtx, err := audio.NewContext()
	if err != nil {
		logger.Error("Failed to initialize audio backend", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer audioCtx.Close()

	// Initialize playback: one shared clock for scheduling and rendering
	clock := playback.NewClock()
	player, err := playback.NewDevice(cfg.Audio.OutputSampleRate, clock)
	if err != nil {
		logger.Error("Failed to open playback device", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer player.Close()
	logger.Info("Audio devices initialized",
		slog.Int("output_sample_rate", cfg.Audio.OutputSampleRate),
	)

	// Initialize conversation persistence
	store, err := transcript.NewStore(cfg.Transcript.Path, logger)
	if err != nil {
		logger.Error("Failed to open conversation store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the session engine
	engine, err := session.NewEngine(session.Config{
		APIKey:                     cfg.API.APIKey,
		Endpoint:                   cfg.API.Endpoint,
		Model:                      cfg.API.Model,
		SystemInstruction:          cfg.API.SystemInstruction,
		VoiceName:                  cfg.API.VoiceName,
		EnableSearch:               cfg.API.EnableSearch,
		InputSampleRate:            cfg.Audio.InputSampleRate,
		OutputSampleRate:           cfg.Audio.OutputSampleRate,
		BlockSize:                  cfg.Audio.BlockSize,
		QueueCapacity:              cfg.Audio.QueueCapacity,
		SendInterval:               cfg.Audio.GetSendInterval(),
		VADThreshold:               cfg.VAD.Threshold,
		VolumeGain:                 cfg.VAD.VolumeGain,
		ConnectTimeout:             cfg.Session.GetConnectTimeout(),
		PreserveHistoryOnReconnect: cfg.Session.PreserveHistoryOnReconnect,
	}, session.Deps{
		Dialer:  live.NewWebsocketDialer(logger),
		Audio:   audioCtx,
		Player:  player,
		Clock:   clock,
		Metrics: collector,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("Failed to create session engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Session engine initialized", slog.String("model", cfg.API.Model))

	// Persist transcript changes into the conversation store in the
	// background.
	saver := newAutosaver(store, logger)
	engine.Transcript().SetUpdateFunc(saver.onUpdate)

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, engine, store, collector)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)

		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Optionally open the live session right away
	if *connectNow {
		if err := engine.Connect(ctx); err != nil {
			logger.Error("Initial connect failed", slog.String("error", err.Error()))
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Close the live session and release audio resources
	engine.Close()

	// Flush any unsaved transcript changes
	saver.Stop()

	// Get final statistics
	liveStats := collector.Snapshot()
	logger.Info("Final session statistics",
		slog.Uint64("session_starts", liveStats.SessionStarts),
		slog.Uint64("session_errors", liveStats.SessionErrors),
		slog.Uint64("chunks_sent", liveStats.ChunksSent),
		slog.Uint64("chunks_dropped", liveStats.ChunksDropped),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
