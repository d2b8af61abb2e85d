// Package engine implements the fixed-step engine simulation stepper.
//
// ARCHITECTURE:
//
// Single Writer:
// One goroutine owns an Engine and calls Advance, SetThrottle, SetIgnition
// and SetStarter. The engine takes no locks; callers serialise access.
//
// Accumulator Stepping:
// Advance converts a wall-clock delta into whole sub-steps of
// 1/SimulationFrequency seconds and carries the fractional remainder to the
// next call, so simulated time tracks wall time without drift. A StepBudget
// caps the sub-steps of one call; excess time after a stall is dropped.
//
// Sub-step Order:
//  1. FluidSimulationSteps fluid iterations, each stepping the manifold and
//     then every cylinder in firing order
//  2. one crank integration with the averaged cylinder torque, the starter
//     and the external load
//  3. the rev limiter and the logical clock
//
// Acoustic events are gathered per sub-step and mapped onto output channels
// once per Advance.
//
// Numeric instabilities, discarded non-finite steps and clamped state
// alike, are counted and logged, never returned. The simulation continues
// from the last finite, in-range state.
package engine
