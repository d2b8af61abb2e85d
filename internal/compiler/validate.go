package compiler

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/enginesim/internal/ir"
)

// Validation error codes (E200-E299)
const (
	// General validation errors (E200)
	ErrUnsupportedIRType = "E200" // unsupported IR type for validation

	// Topology errors (E201-E209)
	ErrTopologyNameEmpty = "E201" // name is required
	ErrNoCylinders       = "E202" // at least one cylinder required
	ErrNonFinite         = "E203" // NaN or Inf in a numeric field

	// Cylinder errors (E210-E219)
	ErrCylinderGeometry = "E210" // bore, stroke or con_rod not positive
	ErrCompressionRatio = "E211" // compression ratio out of range
	ErrFiringOffset     = "E212" // firing offset outside the 720° cycle
	ErrConRodTooShort   = "E213" // rod shorter than the crank throw

	// Mechanical errors (E220-E229)
	ErrInertia       = "E220" // inertia not positive
	ErrNegativeValue = "E221" // friction, torque or load coefficient negative

	// Intake and ignition errors (E230-E239)
	ErrIntakeGeometry = "E230" // manifold volume or throttle diameter not positive
	ErrIdleBypass     = "E231" // idle bypass outside [0,1]
	ErrIgnitionTiming = "E232" // advance or burn duration out of range

	// Exhaust errors (E240-E249)
	ErrExhaustCylinder = "E240" // exhaust routes a missing cylinder
	ErrExhaustPan      = "E241" // pan outside [-1,1]
	ErrExhaustLevel    = "E242" // gain negative or brightness outside [0,1]
	ErrDuplicateName   = "E243" // duplicate exhaust system name
)

// Limits checked by Validate.
const (
	MaxCylinders        = 16
	MaxCompressionRatio = 25.0
	MaxAdvance          = 60.0
	MaxBurnDuration     = 180.0
)

// ValidationError represents a semantic validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled IR against semantic rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch topo := v.(type) {
	case *ir.Topology:
		return validateTopology(topo)
	case ir.Topology:
		return validateTopology(&topo)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// validateTopology validates one engine topology.
func validateTopology(t *ir.Topology) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(t.Name) == "" {
		add("name", ErrTopologyNameEmpty, "name is required")
	}
	switch n := len(t.Cylinders); {
	case n == 0:
		add("cylinders", ErrNoCylinders, "at least one cylinder is required")
	case n > MaxCylinders:
		add("cylinders", ErrNoCylinders, "at most %d cylinders are supported, got %d", MaxCylinders, n)
	}

	for i, c := range t.Cylinders {
		field := fmt.Sprintf("cylinders[%d]", i)
		if !allFinite(c.Bore, c.Stroke, c.ConRod, c.CompressionRatio, c.FiringOffset) {
			add(field, ErrNonFinite, "values must be finite")
			continue
		}
		if c.Bore <= 0 || c.Stroke <= 0 || c.ConRod <= 0 {
			add(field, ErrCylinderGeometry, "bore, stroke and con_rod must be positive")
		}
		if c.ConRod > 0 && c.ConRod <= c.Stroke/2 {
			add(field+".con_rod", ErrConRodTooShort, "con_rod %.1f must exceed half the stroke", c.ConRod)
		}
		if c.CompressionRatio <= 1 || c.CompressionRatio > MaxCompressionRatio {
			add(field+".compression_ratio", ErrCompressionRatio, "must be in (1, %v], got %v", MaxCompressionRatio, c.CompressionRatio)
		}
		if c.FiringOffset < 0 || c.FiringOffset >= 720 {
			add(field+".firing_offset", ErrFiringOffset, "must be in [0, 720), got %v", c.FiringOffset)
		}
	}

	cs := t.Crankshaft
	if !allFinite(cs.Inertia, cs.FrictionTorque, cs.ViscousFriction) || cs.Inertia <= 0 {
		add("crankshaft.inertia", ErrInertia, "inertia must be positive and finite")
	}
	if cs.FrictionTorque < 0 || cs.ViscousFriction < 0 {
		add("crankshaft", ErrNegativeValue, "friction must not be negative")
	}
	if !allFinite(t.Starter.Torque, t.Starter.CutoffRPM) || t.Starter.Torque < 0 || t.Starter.CutoffRPM < 0 {
		add("starter", ErrNegativeValue, "torque and cutoff_rpm must be finite and not negative")
	}

	in := t.Intake
	if !allFinite(in.ManifoldVolume, in.ThrottleDiameter) || in.ManifoldVolume <= 0 || in.ThrottleDiameter <= 0 {
		add("intake", ErrIntakeGeometry, "manifold_volume and throttle_diameter must be positive")
	}
	if !(in.IdleBypass >= 0 && in.IdleBypass <= 1) {
		add("intake.idle_bypass", ErrIdleBypass, "must be in [0, 1], got %v", in.IdleBypass)
	}

	ig := t.Ignition
	if !(ig.Advance >= 0 && ig.Advance <= MaxAdvance) {
		add("ignition.advance", ErrIgnitionTiming, "must be in [0, %v], got %v", MaxAdvance, ig.Advance)
	}
	if !(ig.BurnDuration > 0 && ig.BurnDuration <= MaxBurnDuration) {
		add("ignition.burn_duration", ErrIgnitionTiming, "must be in (0, %v], got %v", MaxBurnDuration, ig.BurnDuration)
	}
	if !(ig.RevLimit >= 0) || math.IsInf(ig.RevLimit, 0) {
		add("ignition.rev_limit", ErrIgnitionTiming, "must be finite and not negative")
	}

	ld := t.Load
	if !allFinite(ld.Constant, ld.Linear, ld.Quadratic) || ld.Constant < 0 || ld.Linear < 0 || ld.Quadratic < 0 {
		add("load", ErrNegativeValue, "coefficients must be finite and not negative")
	}

	names := make(map[string]bool)
	for i, ex := range t.Exhaust {
		field := fmt.Sprintf("exhaust[%d]", i)
		if names[ex.Name] {
			add(field+".name", ErrDuplicateName, "duplicate exhaust name %q", ex.Name)
		}
		names[ex.Name] = true
		for _, c := range ex.Cylinders {
			if c < 0 || c >= len(t.Cylinders) {
				add(field+".cylinders", ErrExhaustCylinder, "cylinder index %d does not exist", c)
			}
		}
		if !(ex.Pan >= -1 && ex.Pan <= 1) {
			add(field+".pan", ErrExhaustPan, "must be in [-1, 1], got %v", ex.Pan)
		}
		if !(ex.Gain >= 0) || math.IsInf(ex.Gain, 0) || !(ex.Brightness >= 0 && ex.Brightness <= 1) {
			add(field, ErrExhaustLevel, "gain must not be negative and brightness must be in [0, 1]")
		}
	}

	return errs
}

func allFinite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
