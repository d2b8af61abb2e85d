// Package crank integrates the rotating assembly: crankshaft inertia,
// friction, external load and the starter motor.
//
// Integration is semi-implicit Euler (velocity first, then angle with the
// new velocity). The crank never turns backwards: any step that would
// drive angular velocity below zero stops the crank instead.
package crank

import "math"

// CycleAngle is one four-stroke cycle, two revolutions. Crank angles are
// kept in [0, CycleAngle).
const CycleAngle = 4 * math.Pi

// MaxOmega bounds angular velocity (about 30000 RPM). Anything faster is a
// numeric failure upstream, not a physical result.
const MaxOmega = 30000 * 2 * math.Pi / 60

// minInertia keeps the integrator well conditioned for degenerate specs.
const minInertia = 1e-4

// State is the crankshaft's kinematic state.
type State struct {
	Angle float64 // radians, [0, CycleAngle)
	Omega float64 // rad/s, >= 0
}

// RPM returns the rotational speed in revolutions per minute.
func (s State) RPM() float64 {
	return s.Omega * 60 / (2 * math.Pi)
}

// OmegaFromRPM converts revolutions per minute to rad/s.
func OmegaFromRPM(rpm float64) float64 {
	return rpm * 2 * math.Pi / 60
}

// Crankshaft holds the rotating-assembly constants.
type Crankshaft struct {
	Inertia  float64 // kg·m²
	Friction float64 // N·m, Coulomb
	Viscous  float64 // N·m·s/rad
}

// Integrate advances s by dt under the given torques. totalTorque is the
// signed driving torque (combustion, compression, starter). loadTorque is
// the magnitude of the external load and always resists rotation, like
// friction does.
//
// capped is true when the new velocity was limited to MaxOmega or was
// non-finite and reset. ok is false when an input was non-finite; the state
// is then returned unchanged. Callers count both as instabilities.
func (c Crankshaft) Integrate(s State, totalTorque, loadTorque, dt float64) (next State, capped, ok bool) {
	if !finite(totalTorque) || !finite(loadTorque) || !finite(dt) || dt <= 0 {
		return s, false, false
	}

	inertia := math.Max(c.Inertia, minInertia)
	resist := math.Max(loadTorque, 0) + math.Max(c.Friction, 0) + math.Max(c.Viscous, 0)*s.Omega

	omega := s.Omega
	switch {
	case omega > 0:
		omega += (totalTorque - resist) / inertia * dt
	case totalTorque > resist:
		// Break-away from rest needs more than static resistance.
		omega = (totalTorque - resist) / inertia * dt
	}
	switch {
	case !finite(omega):
		omega, capped = 0, true
	case omega < 0:
		omega = 0
	case omega > MaxOmega:
		omega, capped = MaxOmega, true
	}

	next = State{Angle: Wrap(s.Angle + omega*dt), Omega: omega}
	return next, capped, true
}

// Wrap reduces an angle to [0, CycleAngle).
func Wrap(angle float64) float64 {
	a := math.Mod(angle, CycleAngle)
	if a < 0 {
		a += CycleAngle
	}
	return a
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
