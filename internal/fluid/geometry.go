package fluid

import (
	"math"

	"github.com/roach88/enginesim/internal/ir"
)

// Geometry is a cylinder's slider-crank geometry in SI units.
type Geometry struct {
	Area         float64 // piston area, m²
	CrankRadius  float64 // m
	RodLength    float64 // m
	Displacement float64 // m³
	Clearance    float64 // m³
	IntakeArea   float64 // peak intake valve curtain area, m²
	ExhaustArea  float64 // peak exhaust valve curtain area, m²
}

// NewGeometry converts a millimetre cylinder spec to SI geometry.
func NewGeometry(spec ir.CylinderSpec) Geometry {
	bore := spec.Bore / 1000
	stroke := spec.Stroke / 1000
	area := math.Pi / 4 * bore * bore
	disp := area * stroke

	rod := spec.ConRod / 1000
	// The rod must be longer than the crank throw or the piston locks.
	if minRod := stroke * 0.75; rod < minRod {
		rod = minRod
	}

	return Geometry{
		Area:         area,
		CrankRadius:  stroke / 2,
		RodLength:    rod,
		Displacement: disp,
		Clearance:    disp / (spec.CompressionRatio - 1),
		IntakeArea:   0.3 * area,
		ExhaustArea:  0.25 * area,
	}
}

// pistonTravel returns the distance below TDC and dx/dθ at crank angle theta.
func (g Geometry) pistonTravel(theta float64) (x, dxdTheta float64) {
	r, l := g.CrankRadius, g.RodLength
	sin, cos := math.Sincos(theta)
	root := math.Sqrt(l*l - r*r*sin*sin)
	x = r*(1-cos) + l - root
	dxdTheta = r * sin * (1 + r*cos/root)
	return x, dxdTheta
}

// Volume returns the gas volume at crank angle theta (radians, 0 = TDC).
func (g Geometry) Volume(theta float64) float64 {
	x, _ := g.pistonTravel(theta)
	return g.Clearance + g.Area*x
}
