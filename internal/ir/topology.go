package ir

// Topology is the compiled description of one engine: its cylinders,
// crankshaft, intake, ignition, exhaust routing and external load.
//
// A Topology is immutable once built. Loading a new topology into a
// simulator replaces the running mechanical state; it is never merged.
type Topology struct {
	Name       string         `json:"name"`
	Cylinders  []CylinderSpec `json:"cylinders"`
	Crankshaft CrankshaftSpec `json:"crankshaft"`
	Starter    StarterSpec    `json:"starter"`
	Intake     IntakeSpec     `json:"intake"`
	Ignition   IgnitionSpec   `json:"ignition"`
	Exhaust    []ExhaustSpec  `json:"exhaust"`
	Load       LoadSpec       `json:"load"`
}

// CylinderSpec describes one cylinder's geometry and firing position.
// Lengths are millimetres; FiringOffset is degrees within the 720° cycle.
type CylinderSpec struct {
	Bore             float64 `json:"bore"`
	Stroke           float64 `json:"stroke"`
	ConRod           float64 `json:"con_rod"`
	CompressionRatio float64 `json:"compression_ratio"`
	FiringOffset     float64 `json:"firing_offset"`
}

// CrankshaftSpec holds rotating-assembly parameters.
type CrankshaftSpec struct {
	Inertia         float64 `json:"inertia"`          // kg·m²
	FrictionTorque  float64 `json:"friction_torque"`  // N·m, Coulomb
	ViscousFriction float64 `json:"viscous_friction"` // N·m·s/rad
}

// StarterSpec describes the starter motor.
type StarterSpec struct {
	Torque    float64 `json:"torque"`     // N·m at the crank
	CutoffRPM float64 `json:"cutoff_rpm"` // starter disengages above this
	Auto      bool    `json:"auto"`       // engage automatically below cutoff
}

// IntakeSpec describes the throttle body and intake manifold.
type IntakeSpec struct {
	ManifoldVolume   float64 `json:"manifold_volume"`   // litres
	ThrottleDiameter float64 `json:"throttle_diameter"` // millimetres
	IdleBypass       float64 `json:"idle_bypass"`       // fraction of throttle area open at zero throttle
}

// IgnitionSpec holds spark timing and the rev limiter.
type IgnitionSpec struct {
	Advance      float64 `json:"advance"`       // degrees before TDC
	BurnDuration float64 `json:"burn_duration"` // degrees
	RevLimit     float64 `json:"rev_limit"`     // RPM, 0 disables
}

// ExhaustSpec routes a group of cylinders to the output channels.
type ExhaustSpec struct {
	Name       string  `json:"name"`
	Cylinders  []int   `json:"cylinders"`
	Gain       float64 `json:"gain"`
	Pan        float64 `json:"pan"`        // -1 left .. +1 right
	Brightness float64 `json:"brightness"` // spectral tilt, 0..1
}

// LoadSpec is a drag curve: torque = Constant + Linear·ω + Quadratic·ω².
type LoadSpec struct {
	Constant  float64 `json:"constant"`
	Linear    float64 `json:"linear"`
	Quadratic float64 `json:"quadratic"`
}

// EmptyTopologyName names the topology a simulator starts with.
const EmptyTopologyName = "empty"

// EmptyTopology returns the topology a simulator runs before any script is
// loaded: no cylinders, no starter, no exhaust. It produces zero RPM and
// silent output.
func EmptyTopology() *Topology {
	return &Topology{
		Name: EmptyTopologyName,
		Crankshaft: CrankshaftSpec{
			Inertia: 1,
		},
		Intake: IntakeSpec{
			ManifoldVolume:   1,
			ThrottleDiameter: 1,
		},
	}
}

// IsEmpty reports whether the topology has no cylinders.
func (t *Topology) IsEmpty() bool {
	return t == nil || len(t.Cylinders) == 0
}

// Clone returns a deep copy so callers cannot alias simulator memory.
func (t *Topology) Clone() *Topology {
	if t == nil {
		return nil
	}
	c := *t
	c.Cylinders = append([]CylinderSpec(nil), t.Cylinders...)
	c.Exhaust = make([]ExhaustSpec, len(t.Exhaust))
	for i, ex := range t.Exhaust {
		ex.Cylinders = append([]int(nil), ex.Cylinders...)
		c.Exhaust[i] = ex
	}
	return &c
}
