// Package testutil holds fixtures shared by tests across packages.
package testutil

import (
	"github.com/roach88/enginesim/internal/config"
	"github.com/roach88/enginesim/internal/ir"
)

// Inline4Script is a CUE script for a 2.0 L inline four.
const Inline4Script = `
engine: {
	name: "inline-4"
	_cyl: {bore: 86, stroke: 86, con_rod: 145, compression_ratio: 10}
	cylinders: [_cyl, _cyl, _cyl, _cyl]
	firing_order: [1, 3, 4, 2]
	crankshaft: {inertia: 0.2, friction_torque: 4, viscous_friction: 0.002}
	starter: {torque: 200, cutoff_rpm: 300, auto: true}
	intake: {manifold_volume: 2, throttle_diameter: 40, idle_bypass: 0.02}
	ignition: {advance: 15, burn_duration: 50, rev_limit: 6500}
	exhaust: [{name: "main", cylinders: [1, 2, 3, 4], gain: 1, pan: 0, brightness: 0.4}]
	load: {quadratic: 0.001}
}
`

// TwinScript is a CUE script for a parallel twin with split exhausts.
const TwinScript = `
engine: {
	name: "twin"
	cylinders: [
		{bore: 80, stroke: 70},
		{bore: 80, stroke: 70},
	]
	firing_order: [1, 2]
	exhaust: [
		{name: "left", cylinders: [1], pan: -1},
		{name: "right", cylinders: [2], pan: 1},
	]
}
`

// Inline4Topology returns the compiled form of Inline4Script.
func Inline4Topology() *ir.Topology {
	cyl := ir.CylinderSpec{Bore: 86, Stroke: 86, ConRod: 145, CompressionRatio: 10}
	cylinders := []ir.CylinderSpec{cyl, cyl, cyl, cyl}
	// Firing order 1-3-4-2.
	cylinders[0].FiringOffset = 0
	cylinders[2].FiringOffset = 180
	cylinders[3].FiringOffset = 360
	cylinders[1].FiringOffset = 540

	return &ir.Topology{
		Name:       "inline-4",
		Cylinders:  cylinders,
		Crankshaft: ir.CrankshaftSpec{Inertia: 0.2, FrictionTorque: 4, ViscousFriction: 0.002},
		Starter:    ir.StarterSpec{Torque: 200, CutoffRPM: 300, Auto: true},
		Intake:     ir.IntakeSpec{ManifoldVolume: 2, ThrottleDiameter: 40, IdleBypass: 0.02},
		Ignition:   ir.IgnitionSpec{Advance: 15, BurnDuration: 50, RevLimit: 6500},
		Exhaust: []ir.ExhaustSpec{
			{Name: "main", Cylinders: []int{0, 1, 2, 3}, Gain: 1, Pan: 0, Brightness: 0.4},
		},
		Load: ir.LoadSpec{Quadratic: 0.001},
	}
}

// FastConfig returns the default configuration with fewer fluid steps, for
// tests that run many seconds of simulated time.
func FastConfig() config.EngineConfig {
	cfg := config.Default()
	cfg.FluidSimulationSteps = 2
	return cfg
}
