package ir

// StatsSnapshot is a copy-out view of one simulator's physical state.
//
// Snapshots are published whole by the simulation goroutine and never
// modified afterwards, so readers cannot observe a partial update.
type StatsSnapshot struct {
	RPM              float64 `json:"rpm"`
	Load             float64 `json:"load"`
	ExhaustFlow      float64 `json:"exhaust_flow"`      // kg/s, summed over cylinders
	ManifoldPressure float64 `json:"manifold_pressure"` // Pa
	ActiveChannels   int     `json:"active_channels"`
	ProcessingTimeMs float64 `json:"processing_time_ms"` // last Render call

	Throttle       float64 `json:"throttle"`
	SimulatedTime  float64 `json:"simulated_time"` // seconds
	SubSteps       int64   `json:"substeps"`
	Version        int64   `json:"version"` // increments on every publish
	BufferedFrames int     `json:"buffered_frames"`
	Underruns      int64   `json:"underruns"`
	Overflows      int64   `json:"overflows"` // frames dropped by the synthesizer
	Instabilities  int64   `json:"instabilities"`
}

// AcousticEvent is the impulse descriptor a cylinder emits for one physics
// step. Offset is the step index within the current Advance call.
type AcousticEvent struct {
	Cylinder  int
	Offset    int
	Amplitude float64
	Spectral  float64 // 0..1, hotter gas is brighter
}
