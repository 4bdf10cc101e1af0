package metrics

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestCollector() *Collector {
	return NewCollector(prometheus.NewRegistry())
}

func TestCollectorCounters(t *testing.T) {
	c := newTestCollector()

	c.RecordSessionStart()
	c.RecordSessionError()
	c.RecordReconnect()
	c.RecordChunkSent()
	c.RecordChunkSent()
	c.RecordChunkDropped()

	snap := c.Snapshot()
	if snap.SessionStarts != 1 {
		t.Errorf("Expected 1 session start, got %d", snap.SessionStarts)
	}
	if snap.SessionErrors != 1 {
		t.Errorf("Expected 1 session error, got %d", snap.SessionErrors)
	}
	if snap.Reconnects != 1 {
		t.Errorf("Expected 1 reconnect, got %d", snap.Reconnects)
	}
	if snap.ChunksSent != 2 {
		t.Errorf("Expected 2 chunks sent, got %d", snap.ChunksSent)
	}
	if snap.ChunksDropped != 1 {
		t.Errorf("Expected 1 chunk dropped, got %d", snap.ChunksDropped)
	}
}

func TestCollectorLatencyNilUntilMeasured(t *testing.T) {
	c := newTestCollector()

	snap := c.Snapshot()
	if snap.FirstAudioLatencyMs != nil || snap.FirstTextLatencyMs != nil || snap.LastRoundTripMs != nil {
		t.Errorf("Expected latency fields nil before any measurement")
	}

	c.RecordFirstAudioLatency(120)
	c.RecordFirstTextLatency(250)

	snap = c.Snapshot()
	if snap.FirstAudioLatencyMs == nil || *snap.FirstAudioLatencyMs != 120 {
		t.Errorf("Expected first audio latency 120ms, got %v", snap.FirstAudioLatencyMs)
	}
	if snap.FirstTextLatencyMs == nil || *snap.FirstTextLatencyMs != 250 {
		t.Errorf("Expected first text latency 250ms, got %v", snap.FirstTextLatencyMs)
	}
	if snap.LastRoundTripMs == nil || *snap.LastRoundTripMs != 250 {
		t.Errorf("Expected round trip to follow first text, got %v", snap.LastRoundTripMs)
	}
}

func TestCollectorSessionStartResetsLatencies(t *testing.T) {
	c := newTestCollector()

	c.RecordFirstAudioLatency(120)
	c.RecordFirstTextLatency(250)
	c.RecordSessionStart()

	snap := c.Snapshot()
	if snap.FirstAudioLatencyMs != nil || snap.FirstTextLatencyMs != nil || snap.LastRoundTripMs != nil {
		t.Errorf("Expected latency fields reset on session start")
	}
}

func TestCollectorAvgInputRMS(t *testing.T) {
	c := newTestCollector()

	c.ObserveInputRMS(0.1)
	c.ObserveInputRMS(0.2)
	c.ObserveInputRMS(0.3)

	snap := c.Snapshot()
	if math.Abs(snap.AvgInputRMS-0.2) > 1e-9 {
		t.Errorf("Expected running average 0.2, got %f", snap.AvgInputRMS)
	}
}

func TestCollectorSnapshotIsolation(t *testing.T) {
	c := newTestCollector()
	c.RecordFirstAudioLatency(100)

	snap := c.Snapshot()
	*snap.FirstAudioLatencyMs = 999

	again := c.Snapshot()
	if *again.FirstAudioLatencyMs != 100 {
		t.Errorf("Expected snapshot to be isolated from callers, got %d", *again.FirstAudioLatencyMs)
	}
}
