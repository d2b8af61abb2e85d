package ir

import "github.com/roach88/enginesim/internal/config"

// NOTE: These are store-layer records for session recording and replay.
// All ordering uses Seq (a per-session logical clock), never timestamps.

// InputKind names a recorded control input.
type InputKind string

const (
	InputLoad     InputKind = "load"     // Text holds the script source
	InputThrottle InputKind = "throttle" // Value is the throttle position
	InputIgnition InputKind = "ignition" // Value is 1 for on, 0 for off
	InputStarter  InputKind = "starter"  // Value is 1 for engaged, 0 for released
	InputAdvance  InputKind = "advance"  // Value is dt in seconds
	InputRender   InputKind = "render"   // Value is the requested frame count
)

// Session is one recorded simulator run.
type Session struct {
	ID            string              `json:"id"`
	Config        config.EngineConfig `json:"config"`
	EngineVersion string              `json:"engine_version"`
	IRVersion     string              `json:"ir_version"`
}

// Input is one control input applied to a recorded session.
type Input struct {
	Seq   int64     `json:"seq"`
	Kind  InputKind `json:"kind"`
	Value float64   `json:"value"`
	Text  string    `json:"text,omitempty"`
}

// SnapshotRecord is the stats snapshot published after input Seq.
// ProcessingTimeMs is always zero: wall time is not reproducible.
type SnapshotRecord struct {
	Seq   int64         `json:"seq"`
	Stats StatsSnapshot `json:"stats"`
}
