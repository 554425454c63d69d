package micdaq

import (
	"sync"
	"time"
)

// Clock abstracts the monotonic time source used by the sampler and writer,
// so tests can drive the pipeline with simulated time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock (which in Go carries a monotonic
// reading, so Sub() between two values is drift-free).
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock is a Clock for tests. Each call to Now returns the current
// simulated time, then advances it by a fixed step, imitating the forward
// march of time seen by a polling loop. Safe for concurrent use.
type ManualClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewManualClock returns a ManualClock starting at the given time and
// advancing by step on every Now call. A zero step gives a clock that moves
// only via Advance.
func NewManualClock(start time.Time, step time.Duration) *ManualClock {
	return &ManualClock{current: start, step: step}
}

// Now returns the simulated time and advances it by one step.
func (mc *ManualClock) Now() time.Time {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	t := mc.current
	mc.current = mc.current.Add(mc.step)
	return t
}

// Advance moves the simulated time forward by d without a poll.
func (mc *ManualClock) Advance(d time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.current = mc.current.Add(d)
}
