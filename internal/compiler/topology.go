// Package compiler turns CUE engine scripts into ir.Topology values.
//
// A script defines a top-level `engine` struct:
//
//	engine: {
//		name: "inline-4"
//		_cyl: {bore: 86, stroke: 86, con_rod: 145, compression_ratio: 10}
//		cylinders: [_cyl, _cyl, _cyl, _cyl]
//		firing_order: [1, 3, 4, 2]
//		exhaust: [{name: "main", cylinders: [1, 2, 3, 4], pan: 0}]
//	}
//
// Cylinder numbers in firing_order and exhaust are 1-based as on an engine
// block; the compiled topology uses 0-based indices. Every section except
// name and cylinders is optional and falls back to the defaults below.
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/enginesim/internal/ir"
)

// Defaults for optional script fields.
const (
	DefaultConRodRatio      = 1.7 // con_rod = ratio * stroke
	DefaultCompressionRatio = 10.0
	DefaultInertia          = 0.2
	DefaultFrictionTorque   = 4.0
	DefaultViscousFriction  = 0.002
	DefaultStarterTorque    = 200.0
	DefaultStarterCutoff    = 300.0
	DefaultManifoldVolume   = 2.0
	DefaultThrottleDiameter = 40.0
	DefaultIdleBypass       = 0.02
	DefaultAdvance          = 15.0
	DefaultBurnDuration     = 50.0
	DefaultRevLimit         = 6500.0
	DefaultBrightness       = 0.5
	DefaultLoadQuadratic    = 1e-3
)

// CompileTopology parses a CUE `engine` value into a Topology.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(src)
//	topo, err := CompileTopology(v.LookupPath(cue.ParsePath("engine")))
func CompileTopology(v cue.Value) (*ir.Topology, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: "engine", Message: "engine is required", Pos: v.Pos()}
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	topo := &ir.Topology{}

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return nil, &CompileError{Field: "name", Message: "name is required", Pos: v.Pos()}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	topo.Name = ir.NormalizeName(name)

	topo.Cylinders, err = parseCylinders(v)
	if err != nil {
		return nil, err
	}
	if err := applyFiringOrder(v, topo.Cylinders); err != nil {
		return nil, err
	}

	if err := parseSections(v, topo); err != nil {
		return nil, err
	}

	topo.Exhaust, err = parseExhaust(v, len(topo.Cylinders))
	if err != nil {
		return nil, err
	}

	return topo, nil
}

// parseCylinders extracts the ordered cylinder list.
func parseCylinders(v cue.Value) ([]ir.CylinderSpec, error) {
	listVal := v.LookupPath(cue.ParsePath("cylinders"))
	if !listVal.Exists() {
		return nil, &CompileError{Field: "cylinders", Message: "cylinders are required", Pos: v.Pos()}
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var cylinders []ir.CylinderSpec
	var explicit []bool
	for i := 0; iter.Next(); i++ {
		cv := iter.Value()
		prefix := fmt.Sprintf("cylinders[%d].", i)

		var c ir.CylinderSpec
		if c.Bore, err = requiredNumber(cv, "bore", prefix); err != nil {
			return nil, err
		}
		if c.Stroke, err = requiredNumber(cv, "stroke", prefix); err != nil {
			return nil, err
		}
		if c.ConRod, err = optionalNumber(cv, "con_rod", prefix, DefaultConRodRatio*c.Stroke); err != nil {
			return nil, err
		}
		if c.CompressionRatio, err = optionalNumber(cv, "compression_ratio", prefix, DefaultCompressionRatio); err != nil {
			return nil, err
		}
		if c.FiringOffset, err = optionalNumber(cv, "firing_offset", prefix, -1); err != nil {
			return nil, err
		}
		cylinders = append(cylinders, c)
		explicit = append(explicit, cv.LookupPath(cue.ParsePath("firing_offset")).Exists())
	}

	// Evenly spaced by index unless offsets were given explicitly.
	n := float64(len(cylinders))
	for i := range cylinders {
		if !explicit[i] {
			cylinders[i].FiringOffset = 720 * float64(i) / n
		}
	}
	return cylinders, nil
}

// applyFiringOrder assigns evenly spaced offsets in firing order. The list
// holds 1-based cylinder numbers and must be a permutation of all cylinders.
func applyFiringOrder(v cue.Value, cylinders []ir.CylinderSpec) error {
	orderVal := v.LookupPath(cue.ParsePath("firing_order"))
	if !orderVal.Exists() {
		return nil
	}
	iter, err := orderVal.List()
	if err != nil {
		return formatCUEError(err)
	}

	n := len(cylinders)
	seen := make([]bool, n)
	k := 0
	for ; iter.Next(); k++ {
		num, err := iter.Value().Int64()
		if err != nil {
			return &CompileError{Field: "firing_order", Message: "entries must be integers", Pos: iter.Value().Pos()}
		}
		idx := int(num) - 1
		if idx < 0 || idx >= n {
			return &CompileError{
				Field:   "firing_order",
				Message: fmt.Sprintf("cylinder %d does not exist (have %d)", num, n),
				Pos:     iter.Value().Pos(),
			}
		}
		if seen[idx] {
			return &CompileError{
				Field:   "firing_order",
				Message: fmt.Sprintf("cylinder %d fires twice", num),
				Pos:     iter.Value().Pos(),
			}
		}
		seen[idx] = true
		cylinders[idx].FiringOffset = 720 * float64(k) / float64(n)
	}
	if k != n {
		return &CompileError{
			Field:   "firing_order",
			Message: fmt.Sprintf("lists %d cylinders, engine has %d", k, n),
			Pos:     orderVal.Pos(),
		}
	}
	return nil
}

// parseSections fills the fixed-shape sections, applying defaults.
func parseSections(v cue.Value, topo *ir.Topology) error {
	fields := []struct {
		path string
		dst  *float64
		def  float64
	}{
		{"crankshaft.inertia", &topo.Crankshaft.Inertia, DefaultInertia},
		{"crankshaft.friction_torque", &topo.Crankshaft.FrictionTorque, DefaultFrictionTorque},
		{"crankshaft.viscous_friction", &topo.Crankshaft.ViscousFriction, DefaultViscousFriction},
		{"starter.torque", &topo.Starter.Torque, DefaultStarterTorque},
		{"starter.cutoff_rpm", &topo.Starter.CutoffRPM, DefaultStarterCutoff},
		{"intake.manifold_volume", &topo.Intake.ManifoldVolume, DefaultManifoldVolume},
		{"intake.throttle_diameter", &topo.Intake.ThrottleDiameter, DefaultThrottleDiameter},
		{"intake.idle_bypass", &topo.Intake.IdleBypass, DefaultIdleBypass},
		{"ignition.advance", &topo.Ignition.Advance, DefaultAdvance},
		{"ignition.burn_duration", &topo.Ignition.BurnDuration, DefaultBurnDuration},
		{"ignition.rev_limit", &topo.Ignition.RevLimit, DefaultRevLimit},
		{"load.constant", &topo.Load.Constant, 0},
		{"load.linear", &topo.Load.Linear, 0},
		{"load.quadratic", &topo.Load.Quadratic, DefaultLoadQuadratic},
	}
	for _, f := range fields {
		n, err := optionalNumber(v, f.path, "", f.def)
		if err != nil {
			return err
		}
		*f.dst = n
	}

	topo.Starter.Auto = true
	if autoVal := v.LookupPath(cue.ParsePath("starter.auto")); autoVal.Exists() {
		auto, err := autoVal.Bool()
		if err != nil {
			return &CompileError{Field: "starter.auto", Message: "must be a bool", Pos: autoVal.Pos()}
		}
		topo.Starter.Auto = auto
	}
	return nil
}

// parseExhaust extracts the exhaust systems. Without an exhaust section
// every cylinder is routed to one centred system.
func parseExhaust(v cue.Value, cylinders int) ([]ir.ExhaustSpec, error) {
	listVal := v.LookupPath(cue.ParsePath("exhaust"))
	if !listVal.Exists() {
		all := make([]int, cylinders)
		for i := range all {
			all[i] = i
		}
		return []ir.ExhaustSpec{{Name: "main", Cylinders: all, Gain: 1, Brightness: DefaultBrightness}}, nil
	}

	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	systems := []ir.ExhaustSpec{}
	for i := 0; iter.Next(); i++ {
		ev := iter.Value()
		prefix := fmt.Sprintf("exhaust[%d].", i)

		ex := ir.ExhaustSpec{Name: fmt.Sprintf("exhaust-%d", i+1)}
		if nameVal := ev.LookupPath(cue.ParsePath("name")); nameVal.Exists() {
			name, err := nameVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			ex.Name = ir.NormalizeName(name)
		}
		if ex.Gain, err = optionalNumber(ev, "gain", prefix, 1); err != nil {
			return nil, err
		}
		if ex.Pan, err = optionalNumber(ev, "pan", prefix, 0); err != nil {
			return nil, err
		}
		if ex.Brightness, err = optionalNumber(ev, "brightness", prefix, DefaultBrightness); err != nil {
			return nil, err
		}

		cylVal := ev.LookupPath(cue.ParsePath("cylinders"))
		if !cylVal.Exists() {
			return nil, &CompileError{Field: prefix + "cylinders", Message: "cylinders are required", Pos: ev.Pos()}
		}
		cylIter, err := cylVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for cylIter.Next() {
			num, err := cylIter.Value().Int64()
			if err != nil {
				return nil, &CompileError{Field: prefix + "cylinders", Message: "entries must be integers", Pos: cylIter.Value().Pos()}
			}
			if num < 1 || int(num) > cylinders {
				return nil, &CompileError{
					Field:   prefix + "cylinders",
					Message: fmt.Sprintf("cylinder %d does not exist (have %d)", num, cylinders),
					Pos:     cylIter.Value().Pos(),
				}
			}
			ex.Cylinders = append(ex.Cylinders, int(num)-1)
		}
		systems = append(systems, ex)
	}
	return systems, nil
}

func requiredNumber(v cue.Value, field, prefix string) (float64, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return 0, &CompileError{Field: prefix + field, Message: field + " is required", Pos: v.Pos()}
	}
	return numberOf(f, prefix+field)
}

func optionalNumber(v cue.Value, field, prefix string, def float64) (float64, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return def, nil
	}
	return numberOf(f, prefix+field)
}

func numberOf(f cue.Value, label string) (float64, error) {
	if err := f.Err(); err != nil {
		return 0, formatCUEError(err)
	}
	n, err := f.Float64()
	if err != nil {
		return 0, &CompileError{Field: label, Message: "must be a concrete number", Pos: f.Pos()}
	}
	return n, nil
}
