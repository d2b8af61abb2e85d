package engine

import "sync/atomic"

// Clock counts simulated sub-steps. It is the engine's only notion of time:
// simulated time is Current() / SimulationFrequency, so replaying the same
// inputs reproduces the same timeline exactly.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations), so a
// stats reader may sample it while the writer advances.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next advances the clock by one sub-step and returns the new count.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sub-step count without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
