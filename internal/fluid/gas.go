// Package fluid implements the zero-dimensional gas-exchange and combustion
// model: one Manifold feeding any number of Cylinders.
//
// Every Step is allocation free and unconditionally stable for throttle in
// [0,1]. Valve and throttle flows are limited so one step can move a volume
// at most halfway to pressure equilibrium, and all state is guarded against
// non-finite values: a step that would produce NaN or Inf is discarded and
// reported as unstable instead. A step whose state had to be clamped into
// range is reported the same way.
package fluid

import "math"

// Physical constants (SI).
const (
	GasConstant       = 287.05 // J/(kg·K), air
	Gamma             = 1.35   // heat capacity ratio of hot charge
	Cv                = GasConstant / (Gamma - 1)
	AmbientPressure   = 101325.0 // Pa
	AmbientTemp       = 300.0    // K
	ExhaustBackPress  = AmbientPressure * 1.05
	ExhaustGasTemp    = 800.0 // K, temperature of reverted exhaust gas
	WallTemp          = 450.0 // K
	WallHeatRate      = 10.0  // 1/s, relaxation of charge temperature to WallTemp
	StoichAFR         = 14.7
	FuelLHV           = 44e6 // J/kg
	CombustionEff     = 0.9
	DischargeCoeff    = 0.7
	AcousticGain      = 1.0 // amplitude per kg/s of exhaust flow
	MinGasTemp        = 200.0
	MaxGasTemp        = 4000.0
	MinManifoldPress  = 1000.0
	MaxManifoldPress  = 3 * AmbientPressure
	minGasMass        = 1e-9
	equalizationLimit = 0.5
)

// orificeMass returns the mass moved through an orifice of the given area
// during dt, from the high-pressure side to the low-pressure side.
// The result is always >= 0.
func orificeMass(area, pHigh, pLow, rhoHigh, dt float64) float64 {
	dp := pHigh - pLow
	if dp <= 0 || area <= 0 || rhoHigh <= 0 {
		return 0
	}
	return DischargeCoeff * area * math.Sqrt(2*rhoHigh*dp) * dt
}

// limitTransfer caps a transfer to a fraction of the mass that would bring
// the receiving and sending sides to equal pressure.
func limitTransfer(dm, equalizing float64) float64 {
	bound := equalizationLimit * math.Abs(equalizing)
	if dm > bound {
		return bound
	}
	return dm
}

func density(p, t float64) float64 {
	return p / (GasConstant * t)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
