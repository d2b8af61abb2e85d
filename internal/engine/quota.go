package engine

import "math"

// StepBudget converts accumulated wall time into sub-steps and enforces the
// per-Advance sub-step cap.
//
// The cap bounds the worst-case cost of one Advance after a stall (a paused
// process, a debugger). Time beyond the cap is dropped rather than queued,
// and the accumulator restarts from zero.
type StepBudget struct {
	frequency float64 // sub-steps per simulated second
	maxSteps  int
}

// NewStepBudget creates a budget for the given simulation frequency and cap.
func NewStepBudget(frequency int, maxSteps int) StepBudget {
	if maxSteps < 1 {
		maxSteps = 1
	}
	return StepBudget{frequency: float64(frequency), maxSteps: maxSteps}
}

// Split returns how many sub-steps acc seconds buys, the remainder to carry
// into the next call, and the seconds dropped by the cap.
func (b StepBudget) Split(acc float64) (steps int, remainder, dropped float64) {
	n := math.Floor(acc * b.frequency)
	if n > float64(b.maxSteps) {
		return b.maxSteps, 0, acc - float64(b.maxSteps)/b.frequency
	}
	steps = int(n)
	remainder = acc - float64(steps)/b.frequency
	if remainder < 0 {
		remainder = 0
	}
	return steps, remainder, 0
}

// MaxSteps returns the sub-step cap.
func (b StepBudget) MaxSteps() int {
	return b.maxSteps
}
