package fluid

import (
	"math"

	"github.com/roach88/enginesim/internal/ir"
)

// Four-stroke valve events, radians of the 720° cycle measured from TDC at
// the start of the intake stroke. Combustion TDC is at 2π.
const (
	cycleAngle = 4 * math.Pi

	intakeOpen   = 0.0
	intakeClose  = 220.0 * math.Pi / 180
	exhaustOpen  = 500.0 * math.Pi / 180
	exhaustClose = cycleAngle

	// Wiebe function shape parameters.
	wiebeA = 5.0
	wiebeM = 2.0
)

// Cylinder holds one cylinder's gas state. The zero value is not usable;
// construct with NewCylinder.
type Cylinder struct {
	geom      Geometry
	offset    float64 // firing offset, radians
	ignition  float64 // spark angle within the cycle, radians
	burn      float64 // burn duration, radians
	wallDT    float64 // dt the wall factor was computed for
	wallAlpha float64

	mass   float64 // kg
	temp   float64 // K
	volume float64 // m³

	fuel    float64 // kg of fuel in the current burn
	burned  float64 // Wiebe fraction already released
	fired   bool    // combustion already started this cycle
	lastPhi float64
}

// StepInput carries the shared inputs of one fluid step.
type StepInput struct {
	CrankAngle       float64 // radians, monotonically increasing
	ManifoldPressure float64 // Pa
	Ignition         bool
	DT               float64 // seconds
}

// StepOutput is what one cylinder contributes in one fluid step.
type StepOutput struct {
	Torque      float64 // N·m at the crank
	IntakeMass  float64 // kg drawn from the manifold (negative for backflow)
	ExhaustFlow float64 // kg/s leaving through the exhaust valve
	Pressure    float64 // Pa
	Event       ir.AcousticEvent
	Unstable    bool
}

// NewCylinder creates a cylinder charged with ambient air at the given
// crank angle.
func NewCylinder(spec ir.CylinderSpec, ign ir.IgnitionSpec, crankAngle float64) *Cylinder {
	c := &Cylinder{
		geom:     NewGeometry(spec),
		offset:   spec.FiringOffset * math.Pi / 180,
		ignition: 2*math.Pi - ign.Advance*math.Pi/180,
		burn:     math.Max(ign.BurnDuration, 1) * math.Pi / 180,
	}
	phi := c.cyclePosition(crankAngle)
	c.volume = c.geom.Volume(phi)
	c.temp = AmbientTemp
	c.mass = density(AmbientPressure, AmbientTemp) * c.volume
	c.lastPhi = phi
	// Starting past the spark means this cycle's charge was never ignited.
	c.fired = phi >= c.ignition
	return c
}

// Geometry returns the cylinder's SI geometry.
func (c *Cylinder) Geometry() Geometry { return c.geom }

// Pressure returns the current gas pressure in Pa.
func (c *Cylinder) Pressure() float64 {
	return c.mass * GasConstant * c.temp / c.volume
}

// Temperature returns the current gas temperature in K.
func (c *Cylinder) Temperature() float64 { return c.temp }

func (c *Cylinder) cyclePosition(crankAngle float64) float64 {
	phi := math.Mod(crankAngle-c.offset, cycleAngle)
	if phi < 0 {
		phi += cycleAngle
	}
	return phi
}

// Step advances the cylinder by in.DT. It never returns non-finite values:
// a step that would produce one is discarded, the previous state is kept
// and Unstable is set. Unstable is also set when the gas mass or
// temperature had to be clamped into range.
func (c *Cylinder) Step(in StepInput) StepOutput {
	var out StepOutput

	prevMass, prevTemp, prevVolume := c.mass, c.temp, c.volume
	phi := c.cyclePosition(in.CrankAngle)

	// A new cycle begins when the position wraps.
	if phi < c.lastPhi {
		c.fired = false
		c.fuel = 0
		c.burned = 0
	}
	c.lastPhi = phi

	// Volume change with closed system: adiabatic.
	v := c.geom.Volume(phi)
	c.temp *= math.Pow(c.volume/v, Gamma-1)
	c.volume = v

	if phi >= intakeOpen && phi < intakeClose {
		out.IntakeMass = c.exchange(c.geom.IntakeArea*valveLift(phi, intakeOpen, intakeClose),
			in.ManifoldPressure, AmbientTemp, in.DT)
	}
	if phi >= exhaustOpen && phi < exhaustClose {
		moved := c.exchange(c.geom.ExhaustArea*valveLift(phi, exhaustOpen, exhaustClose),
			ExhaustBackPress, ExhaustGasTemp, in.DT)
		if moved < 0 {
			out.ExhaustFlow = -moved / in.DT
		}
	}

	c.combust(phi, in.Ignition)
	c.loseHeat(in.DT)

	if !finite(c.mass) || !finite(c.temp) || !finite(c.volume) || c.volume <= 0 {
		c.mass, c.temp, c.volume = prevMass, prevTemp, prevVolume
		out = StepOutput{Unstable: true}
	}
	if c.mass < minGasMass || c.temp < MinGasTemp || c.temp > MaxGasTemp {
		c.mass = math.Max(c.mass, minGasMass)
		c.temp = clamp(c.temp, MinGasTemp, MaxGasTemp)
		out.Unstable = true
	}

	p := c.Pressure()
	_, lever := c.geom.pistonTravel(phi)
	out.Torque = (p - AmbientPressure) * c.geom.Area * lever
	out.Pressure = p
	out.Event = ir.AcousticEvent{
		Amplitude: out.ExhaustFlow * AcousticGain,
		Spectral:  clamp((c.temp-AmbientTemp)/(MaxGasTemp/2), 0, 1),
	}
	if !finite(out.Torque) {
		out.Torque = 0
		out.Unstable = true
	}
	return out
}

// exchange moves gas between the cylinder and a reservoir at pressure pRes
// through the given area. Inflowing gas arrives at tRes. Returns the mass
// that entered the cylinder (negative when gas left).
func (c *Cylinder) exchange(area, pRes, tRes, dt float64) float64 {
	if area <= 0 {
		return 0
	}
	p := c.Pressure()
	eq := pRes*c.volume/(GasConstant*c.temp) - c.mass

	if pRes > p {
		dm := limitTransfer(orificeMass(area, pRes, p, density(pRes, tRes), dt), eq)
		if dm <= 0 {
			return 0
		}
		c.temp = (c.mass*c.temp + dm*tRes) / (c.mass + dm)
		c.mass += dm
		return dm
	}

	dm := limitTransfer(orificeMass(area, p, pRes, c.mass/c.volume, dt), eq)
	if dm <= 0 {
		return 0
	}
	remaining := c.mass - dm
	// The gas left behind expands isentropically.
	c.temp *= math.Pow(remaining/c.mass, Gamma-1)
	c.mass = remaining
	return -dm
}

// combust releases fuel energy along a Wiebe curve starting at the spark.
func (c *Cylinder) combust(phi float64, ignition bool) {
	if phi < c.ignition {
		return
	}
	if !c.fired {
		c.fired = true
		if ignition {
			c.fuel = c.mass / StoichAFR
		}
	}
	if c.fuel <= 0 || c.burned >= 1 {
		return
	}

	progress := (phi - c.ignition) / c.burn
	xb := 1.0
	if progress < 1 {
		xb = 1 - math.Exp(-wiebeA*math.Pow(progress, wiebeM+1))
	}
	if xb <= c.burned {
		return
	}
	q := c.fuel * FuelLHV * CombustionEff * (xb - c.burned)
	c.temp += q / (c.mass * Cv)
	c.burned = xb
}

func (c *Cylinder) loseHeat(dt float64) {
	if dt != c.wallDT {
		c.wallDT = dt
		c.wallAlpha = 1 - math.Exp(-WallHeatRate*dt)
	}
	c.temp += (WallTemp - c.temp) * c.wallAlpha
}

// valveLift is a half-sine lift profile between open and close, in [0,1].
func valveLift(phi, open, close float64) float64 {
	return math.Sin(math.Pi * (phi - open) / (close - open))
}
