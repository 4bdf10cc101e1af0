package playback

import (
	"testing"
	"time"
)

func newTestScheduler(t *testing.T) (*Scheduler, *ManualClock, *FakePlayer) {
	t.Helper()
	clock := NewManualClock()
	player := NewFakePlayer()
	s, err := NewScheduler(clock, player)
	if err != nil {
		t.Fatalf("Failed to create scheduler: %v", err)
	}
	return s, clock, player
}

// samplesFor returns a buffer with the given duration at 24 kHz.
func samplesFor(d time.Duration) []float32 {
	return make([]float32, int(float64(24000)*d.Seconds()))
}

func TestScheduleSequentialPayloads(t *testing.T) {
	s, _, player := newTestScheduler(t)

	first, err := s.Schedule(samplesFor(100*time.Millisecond), 24000)
	if err != nil {
		t.Fatalf("Failed to schedule: %v", err)
	}
	second, err := s.Schedule(samplesFor(50*time.Millisecond), 24000)
	if err != nil {
		t.Fatalf("Failed to schedule: %v", err)
	}

	if first.Start != 0 {
		t.Errorf("Expected first source at 0, got %v", first.Start)
	}
	if second.Start != 100*time.Millisecond {
		t.Errorf("Expected second source right after the first, got %v", second.Start)
	}
	if s.NextStart() != 150*time.Millisecond {
		t.Errorf("Expected virtual clock at 150ms, got %v", s.NextStart())
	}
	if len(player.Played()) != 2 {
		t.Errorf("Expected 2 sources handed to player, got %d", len(player.Played()))
	}
}

func TestScheduleAfterGapStartsAtCurrentTime(t *testing.T) {
	s, clock, _ := newTestScheduler(t)

	s.Schedule(samplesFor(100*time.Millisecond), 24000)

	// Playback drained and real time moved past the virtual clock.
	clock.Advance(300 * time.Millisecond)

	src, err := s.Schedule(samplesFor(50*time.Millisecond), 24000)
	if err != nil {
		t.Fatalf("Failed to schedule: %v", err)
	}

	if src.Start != 300*time.Millisecond {
		t.Errorf("Expected source to start at current time 300ms, got %v", src.Start)
	}
	if s.NextStart() != 350*time.Millisecond {
		t.Errorf("Expected virtual clock at 350ms, got %v", s.NextStart())
	}
}

func TestScheduleEmptyPayload(t *testing.T) {
	s, _, player := newTestScheduler(t)

	src, err := s.Schedule(nil, 24000)
	if err != nil {
		t.Errorf("Expected no error for empty payload, got %v", err)
	}
	if src != nil {
		t.Errorf("Expected no source for empty payload")
	}
	if len(player.Played()) != 0 {
		t.Errorf("Expected nothing handed to player")
	}
}

func TestScheduleInvalidRate(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	if _, err := s.Schedule(samplesFor(10*time.Millisecond), 0); err == nil {
		t.Errorf("Expected error for non-positive sample rate")
	}
}

func TestInterruptStopsAllAndResetsClock(t *testing.T) {
	s, _, player := newTestScheduler(t)

	s.Schedule(samplesFor(100*time.Millisecond), 24000)
	s.Schedule(samplesFor(100*time.Millisecond), 24000)

	s.Interrupt()

	if s.Active() != 0 {
		t.Errorf("Expected no active sources after interrupt, got %d", s.Active())
	}
	if s.NextStart() != 0 {
		t.Errorf("Expected virtual clock reset to 0, got %v", s.NextStart())
	}
	if len(player.Stopped()) != 2 {
		t.Errorf("Expected both sources stopped, got %d", len(player.Stopped()))
	}

	// Next payload starts a fresh timeline.
	src, err := s.Schedule(samplesFor(50*time.Millisecond), 24000)
	if err != nil {
		t.Fatalf("Failed to schedule after interrupt: %v", err)
	}
	if src.Start != 0 {
		t.Errorf("Expected fresh timeline after interrupt, got start %v", src.Start)
	}
}

func TestInterruptToleratesFinishedSources(t *testing.T) {
	s, _, player := newTestScheduler(t)

	src, _ := s.Schedule(samplesFor(100*time.Millisecond), 24000)
	other, _ := s.Schedule(samplesFor(100*time.Millisecond), 24000)

	// First source ends naturally just before the interrupt lands; the
	// player will report it as already finished.
	player.Finish(src)
	s.Interrupt()

	stopped := player.Stopped()
	if len(stopped) != 1 || stopped[0].ID != other.ID {
		t.Errorf("Expected only the live source stopped, got %d", len(stopped))
	}
	if s.Active() != 0 {
		t.Errorf("Expected no active sources, got %d", s.Active())
	}
}

func TestIdleCallbackFiresWhenSetDrains(t *testing.T) {
	s, _, player := newTestScheduler(t)

	idleCalls := 0
	s.SetIdleFunc(func() { idleCalls++ })

	first, _ := s.Schedule(samplesFor(100*time.Millisecond), 24000)
	second, _ := s.Schedule(samplesFor(100*time.Millisecond), 24000)

	player.Finish(first)
	if idleCalls != 0 {
		t.Errorf("Expected no idle callback while a source remains")
	}

	player.Finish(second)
	if idleCalls != 1 {
		t.Errorf("Expected idle callback when set drains, got %d calls", idleCalls)
	}
}

func TestIdleCallbackNotFiredByInterrupt(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	idleCalls := 0
	s.SetIdleFunc(func() { idleCalls++ })

	s.Schedule(samplesFor(100*time.Millisecond), 24000)
	s.Interrupt()

	if idleCalls != 0 {
		t.Errorf("Expected interrupt not to fire idle callback, got %d calls", idleCalls)
	}
}

func TestSourceDuration(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	src, err := s.Schedule(make([]float32, 24000), 24000)
	if err != nil {
		t.Fatalf("Failed to schedule: %v", err)
	}
	if src.Duration != time.Second {
		t.Errorf("Expected 1s duration for 24000 samples at 24kHz, got %v", src.Duration)
	}
}
