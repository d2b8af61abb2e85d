package fluid

import (
	"math"

	"github.com/roach88/enginesim/internal/ir"
)

// Manifold is the isothermal intake plenum between the throttle and the
// intake valves.
type Manifold struct {
	volume       float64 // m³
	throttleArea float64 // m², fully open
	idleBypass   float64
	mass         float64 // kg
}

// NewManifold creates a manifold at ambient pressure.
func NewManifold(spec ir.IntakeSpec) *Manifold {
	d := spec.ThrottleDiameter / 1000
	m := &Manifold{
		volume:       spec.ManifoldVolume / 1000,
		throttleArea: math.Pi / 4 * d * d,
		idleBypass:   clamp(spec.IdleBypass, 0, 1),
	}
	m.mass = m.equilibriumMass(AmbientPressure)
	return m
}

// Pressure returns the manifold absolute pressure in Pa.
func (m *Manifold) Pressure() float64 {
	return m.mass * GasConstant * AmbientTemp / m.volume
}

// Density returns the manifold air density in kg/m³.
func (m *Manifold) Density() float64 {
	return m.mass / m.volume
}

// ThrottleArea returns the effective throttle opening for a throttle in [0,1].
// The plate opens with 1-cos of its angle, so small inputs meter finely.
func (m *Manifold) ThrottleArea(throttle float64) float64 {
	throttle = clamp(throttle, 0, 1)
	open := 1 - math.Cos(throttle*math.Pi/2)
	return m.throttleArea * (m.idleBypass + (1-m.idleBypass)*open)
}

// Step advances the manifold by dt: air enters through the throttle and
// drawn (net mass taken by the cylinders this step, negative for backflow)
// leaves. Returns false if the step was discarded as non-finite or the
// pressure had to be clamped into [MinManifoldPress, MaxManifoldPress].
func (m *Manifold) Step(throttle, drawn, dt float64) bool {
	prev := m.mass
	p := m.Pressure()
	area := m.ThrottleArea(throttle)

	eq := m.equilibriumMass(AmbientPressure) - m.mass
	if p < AmbientPressure {
		in := orificeMass(area, AmbientPressure, p, density(AmbientPressure, AmbientTemp), dt)
		m.mass += limitTransfer(in, eq)
	} else {
		out := orificeMass(area, p, AmbientPressure, m.Density(), dt)
		m.mass -= limitTransfer(out, eq)
	}
	m.mass -= drawn

	if !finite(m.mass) {
		m.mass = prev
		return false
	}
	lo, hi := m.equilibriumMass(MinManifoldPress), m.equilibriumMass(MaxManifoldPress)
	if m.mass < lo || m.mass > hi {
		m.mass = clamp(m.mass, lo, hi)
		return false
	}
	return true
}

func (m *Manifold) equilibriumMass(p float64) float64 {
	return p * m.volume / (GasConstant * AmbientTemp)
}
