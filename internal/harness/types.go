package harness

import (
	"github.com/roach88/enginesim/internal/ir"
)

// Step outcomes recorded in the trace.
const (
	OutcomeOK   = "ok"
	OutcomePass = "pass"
	OutcomeFail = "fail"
)

// TraceEvent records one executed scenario step.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Op      string `json:"op"`
	Arg     string `json:"arg,omitempty"`
	Outcome string `json:"outcome"` // "ok", an error code, or "pass"/"fail" for expect
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the last published stats snapshot, zero if the scenario
	// never advanced.
	Final ir.StatsSnapshot `json:"final"`

	// SessionID names the recorded session the run was replayed from.
	SessionID string `json:"session_id,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event to the trace.
func (r *Result) AddTrace(seq int64, op, arg, outcome string) {
	r.Trace = append(r.Trace, TraceEvent{Seq: seq, Op: op, Arg: arg, Outcome: outcome})
}

// statsFields maps the snapshot's JSON field names to accessors.
// processing_time_ms is wall-clock and cannot be asserted.
var statsFields = map[string]func(ir.StatsSnapshot) float64{
	"rpm":               func(s ir.StatsSnapshot) float64 { return s.RPM },
	"load":              func(s ir.StatsSnapshot) float64 { return s.Load },
	"exhaust_flow":      func(s ir.StatsSnapshot) float64 { return s.ExhaustFlow },
	"manifold_pressure": func(s ir.StatsSnapshot) float64 { return s.ManifoldPressure },
	"active_channels":   func(s ir.StatsSnapshot) float64 { return float64(s.ActiveChannels) },
	"throttle":          func(s ir.StatsSnapshot) float64 { return s.Throttle },
	"simulated_time":    func(s ir.StatsSnapshot) float64 { return s.SimulatedTime },
	"substeps":          func(s ir.StatsSnapshot) float64 { return float64(s.SubSteps) },
	"version":           func(s ir.StatsSnapshot) float64 { return float64(s.Version) },
	"buffered_frames":   func(s ir.StatsSnapshot) float64 { return float64(s.BufferedFrames) },
	"underruns":         func(s ir.StatsSnapshot) float64 { return float64(s.Underruns) },
	"overflows":         func(s ir.StatsSnapshot) float64 { return float64(s.Overflows) },
	"instabilities":     func(s ir.StatsSnapshot) float64 { return float64(s.Instabilities) },
}

func isStatsField(name string) bool {
	_, ok := statsFields[name]
	return ok
}

func statsField(s ir.StatsSnapshot, name string) (float64, bool) {
	get, ok := statsFields[name]
	if !ok {
		return 0, false
	}
	return get(s), true
}
