package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	API        APIConfig        `yaml:"api"`
	Audio      AudioConfig      `yaml:"audio"`
	VAD        VADConfig        `yaml:"vad"`
	Session    SessionConfig    `yaml:"session"`
	HTTP       HTTPConfig       `yaml:"http"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// APIConfig contains live streaming API configuration
type APIConfig struct {
	APIKey            string `yaml:"api_key"`
	Endpoint          string `yaml:"endpoint"`
	Model             string `yaml:"model"`
	SystemInstruction string `yaml:"system_instruction"`
	VoiceName         string `yaml:"voice_name"`
	EnableSearch      bool   `yaml:"enable_search"`
}

// AudioConfig contains capture and playback parameters
type AudioConfig struct {
	InputSampleRate  int `yaml:"input_sample_rate"`
	OutputSampleRate int `yaml:"output_sample_rate"`
	BlockSize        int `yaml:"block_size"`     // samples
	QueueCapacity    int `yaml:"queue_capacity"` // chunks
	SendIntervalMs   int `yaml:"send_interval_ms"`
}

// VADConfig contains voice activity detection configuration
type VADConfig struct {
	Threshold  float64 `yaml:"threshold"`
	VolumeGain float64 `yaml:"volume_gain"`
}

// SessionConfig contains session lifecycle configuration
type SessionConfig struct {
	ConnectTimeout             int  `yaml:"connect_timeout"` // seconds
	PreserveHistoryOnReconnect bool `yaml:"preserve_history_on_reconnect"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// TranscriptConfig contains conversation persistence configuration
type TranscriptConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration with working defaults for every section
// except the API key, which must come from the file or the environment.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Model:     "models/gemini-2.0-flash-live-001",
			VoiceName: "Zephyr",
		},
		Audio: AudioConfig{
			InputSampleRate:  16000,
			OutputSampleRate: 24000,
			BlockSize:        2048,
			QueueCapacity:    6,
			SendIntervalMs:   40,
		},
		VAD: VADConfig{
			Threshold:  0.02,
			VolumeGain: 5,
		},
		Session: SessionConfig{
			ConnectTimeout:             12,
			PreserveHistoryOnReconnect: true,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Transcript: TranscriptConfig{
			Path: "conversations.json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file over the defaults. The
// GEMINI_API_KEY environment variable overrides the configured API key.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.API.APIKey = key
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Transcript.Validate(); err != nil {
		return fmt.Errorf("transcript config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates API configuration. The key may be absent here; the
// engine rejects connect attempts without it.
func (a *APIConfig) Validate() error {
	if a.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.InputSampleRate != 16000 {
		return fmt.Errorf("input_sample_rate must be 16000 Hz for the live API, got %d", a.InputSampleRate)
	}

	if a.OutputSampleRate != 24000 {
		return fmt.Errorf("output_sample_rate must be 24000 Hz for the live API, got %d", a.OutputSampleRate)
	}

	if a.BlockSize < 256 || a.BlockSize > 16384 {
		return fmt.Errorf("block_size must be between 256 and 16384 samples, got %d", a.BlockSize)
	}

	if a.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", a.QueueCapacity)
	}

	if a.SendIntervalMs < 10 || a.SendIntervalMs > 1000 {
		return fmt.Errorf("send_interval_ms must be between 10 and 1000, got %d", a.SendIntervalMs)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.Threshold < 0 || v.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", v.Threshold)
	}

	if v.VolumeGain <= 0 {
		return fmt.Errorf("volume_gain must be positive, got %f", v.VolumeGain)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.ConnectTimeout < 1 {
		return fmt.Errorf("connect_timeout must be at least 1 second, got %d", s.ConnectTimeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates transcript configuration
func (t *TranscriptConfig) Validate() error {
	if t.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetConnectTimeout returns the connect timeout as a time.Duration
func (s *SessionConfig) GetConnectTimeout() time.Duration {
	return time.Duration(s.ConnectTimeout) * time.Second
}

// GetSendInterval returns the pacer interval as a time.Duration
func (a *AudioConfig) GetSendInterval() time.Duration {
	return time.Duration(a.SendIntervalMs) * time.Millisecond
}
