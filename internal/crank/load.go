package crank

import (
	"math"

	"github.com/roach88/enginesim/internal/ir"
)

// LoadModel returns the resisting torque magnitude at angular velocity omega.
// Implementations must be deterministic.
type LoadModel interface {
	Torque(omega float64) float64
}

// DragCurve is the default load: c0 + c1·ω + c2·ω².
type DragCurve struct {
	Constant  float64
	Linear    float64
	Quadratic float64
}

// NewDragCurve builds a drag curve from its topology description.
func NewDragCurve(spec ir.LoadSpec) DragCurve {
	return DragCurve{Constant: spec.Constant, Linear: spec.Linear, Quadratic: spec.Quadratic}
}

// Torque implements LoadModel. The result is never negative.
func (d DragCurve) Torque(omega float64) float64 {
	w := math.Max(omega, 0)
	return math.Max(d.Constant+d.Linear*w+d.Quadratic*w*w, 0)
}

// LoadFunc adapts an externally supplied function to LoadModel.
type LoadFunc func(omega float64) float64

// Torque implements LoadModel.
func (f LoadFunc) Torque(omega float64) float64 { return f(omega) }

// Starter is the starter motor. Its torque falls linearly from full at rest
// to zero at the cutoff speed, and it contributes nothing when disengaged.
type Starter struct {
	Torque    float64
	CutoffRPM float64
	Engaged   bool
}

// NewStarter builds a starter, engaged when the topology asks for auto start.
func NewStarter(spec ir.StarterSpec) Starter {
	return Starter{Torque: spec.Torque, CutoffRPM: spec.CutoffRPM, Engaged: spec.Auto}
}

// Output returns the starter torque at the given crank speed.
func (s Starter) Output(rpm float64) float64 {
	if !s.Engaged || s.Torque <= 0 || s.CutoffRPM <= 0 || rpm >= s.CutoffRPM {
		return 0
	}
	return s.Torque * (1 - math.Max(rpm, 0)/s.CutoffRPM)
}
