package playback

import "time"

// Clock reports elapsed time on the output timeline. It is distinct from the
// scheduler's virtual clock: the virtual clock is a scheduling cursor that is
// reset on interruption, while Clock keeps advancing.
type Clock interface {
	Now() time.Duration
}

type monotonicClock struct {
	start time.Time
}

// NewClock creates a monotonic clock starting at zero.
func NewClock() Clock {
	return &monotonicClock{start: time.Now()}
}

func (c *monotonicClock) Now() time.Duration {
	return time.Since(c.start)
}
