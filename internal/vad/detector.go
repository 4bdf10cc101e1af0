package vad

import (
	"fmt"
	"sync"
	"time"
)

// DefaultThreshold is the RMS level above which a chunk counts as speech.
const DefaultThreshold = 0.02

// DefaultVolumeGain scales RMS into the [0, 1] volume signal.
const DefaultVolumeGain = 5

// Detector tracks voice activity across a user turn. The first chunk whose
// RMS exceeds the threshold marks the turn's onset; later chunks in the same
// turn do not re-fire until ResetTurn is called.
type Detector struct {
	threshold float64
	gain      float64
	now       func() time.Time

	mu          sync.Mutex
	onsetAt     time.Time
	totalChunks uint64
	voiceChunks uint64
}

// Stats is a snapshot of detector counters for monitoring.
type Stats struct {
	Threshold       float64 `json:"threshold"`
	TotalChunks     uint64  `json:"total_chunks"`
	VoiceChunks     uint64  `json:"voice_chunks"`
	VoicePercentage float64 `json:"voice_percentage"`
}

// NewDetector creates a detector with the given RMS threshold and volume
// gain. Non-positive values fall back to the defaults.
func NewDetector(threshold, gain float64) (*Detector, error) {
	if threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if gain <= 0 {
		gain = DefaultVolumeGain
	}

	return &Detector{
		threshold: threshold,
		gain:      gain,
		now:       time.Now,
	}, nil
}

// Observe processes one chunk's RMS loudness. It returns the bounded volume
// signal and whether this chunk is the turn's voice-activity onset.
func (d *Detector) Observe(rms float64) (volume float64, onset bool) {
	volume = rms * d.gain
	if volume > 1 {
		volume = 1
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.totalChunks++
	if rms > d.threshold {
		d.voiceChunks++
		if d.onsetAt.IsZero() {
			d.onsetAt = d.now()
			onset = true
		}
	}

	return volume, onset
}

// OnsetTime returns the timestamp of the current turn's voice-activity onset.
// The second return value is false when no onset has fired this turn.
func (d *Detector) OnsetTime() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.onsetAt, !d.onsetAt.IsZero()
}

// ResetTurn clears the onset so the next loud chunk starts a new turn.
// Called when the model's turn completes and on every connect.
func (d *Detector) ResetTurn() {
	d.mu.Lock()
	d.onsetAt = time.Time{}
	d.mu.Unlock()
}

// GetStats returns current detector statistics.
func (d *Detector) GetStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	voicePercentage := float64(0)
	if d.totalChunks > 0 {
		voicePercentage = float64(d.voiceChunks) / float64(d.totalChunks) * 100
	}

	return Stats{
		Threshold:       d.threshold,
		TotalChunks:     d.totalChunks,
		VoiceChunks:     d.voiceChunks,
		VoicePercentage: voicePercentage,
	}
}

// Threshold returns the configured RMS threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}
