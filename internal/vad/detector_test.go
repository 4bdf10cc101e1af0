package vad

import (
	"testing"
	"time"
)

func TestDetectorVolume(t *testing.T) {
	d, err := NewDetector(0.02, 5)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	tests := []struct {
		rms    float64
		volume float64
	}{
		{0, 0},
		{0.1, 0.5},
		{0.2, 1.0},
		{0.5, 1.0}, // clamped
	}

	for _, tt := range tests {
		volume, _ := d.Observe(tt.rms)
		if volume != tt.volume {
			t.Errorf("RMS %f: expected volume %f, got %f", tt.rms, tt.volume, volume)
		}
	}
}

func TestDetectorOnsetFiresOncePerTurn(t *testing.T) {
	d, err := NewDetector(0.02, 5)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	if _, onset := d.Observe(0.01); onset {
		t.Errorf("Expected no onset below threshold")
	}
	if _, ok := d.OnsetTime(); ok {
		t.Errorf("Expected no onset time before threshold crossing")
	}

	if _, onset := d.Observe(0.05); !onset {
		t.Errorf("Expected onset on first chunk above threshold")
	}
	if _, onset := d.Observe(0.08); onset {
		t.Errorf("Expected onset to fire only once per turn")
	}

	if _, ok := d.OnsetTime(); !ok {
		t.Errorf("Expected onset time to be recorded")
	}
}

func TestDetectorResetTurn(t *testing.T) {
	d, err := NewDetector(0.02, 5)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	d.Observe(0.05)
	d.ResetTurn()

	if _, ok := d.OnsetTime(); ok {
		t.Errorf("Expected onset cleared after turn reset")
	}
	if _, onset := d.Observe(0.05); !onset {
		t.Errorf("Expected onset to re-fire after turn reset")
	}
}

func TestDetectorOnsetTimestamp(t *testing.T) {
	d, err := NewDetector(0.02, 5)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	d.Observe(0.05)

	at, ok := d.OnsetTime()
	if !ok {
		t.Fatalf("Expected onset time")
	}
	if !at.Equal(fixed) {
		t.Errorf("Expected onset at %v, got %v", fixed, at)
	}
}

func TestDetectorDefaults(t *testing.T) {
	d, err := NewDetector(0, 0)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	if d.Threshold() != DefaultThreshold {
		t.Errorf("Expected default threshold %f, got %f", DefaultThreshold, d.Threshold())
	}
}

func TestDetectorInvalidThreshold(t *testing.T) {
	if _, err := NewDetector(1.5, 5); err == nil {
		t.Errorf("Expected error for threshold above 1")
	}
}

func TestDetectorStats(t *testing.T) {
	d, err := NewDetector(0.02, 5)
	if err != nil {
		t.Fatalf("Failed to create detector: %v", err)
	}

	d.Observe(0.01)
	d.Observe(0.05)
	d.Observe(0.05)
	d.Observe(0.01)

	stats := d.GetStats()
	if stats.TotalChunks != 4 {
		t.Errorf("Expected 4 total chunks, got %d", stats.TotalChunks)
	}
	if stats.VoiceChunks != 2 {
		t.Errorf("Expected 2 voice chunks, got %d", stats.VoiceChunks)
	}
	if stats.VoicePercentage != 50 {
		t.Errorf("Expected 50%% voice, got %f", stats.VoicePercentage)
	}
}
