// Package harness runs scripted simulator scenarios as executable tests.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: inline4_start
//	description: "Starter cranks the engine and it catches"
//	config:
//	  fluid_simulation_steps: 2
//	script_file: ../scripts/inline4.cue
//	steps:
//	  - load: script
//	  - ignition: true
//	  - starter: true
//	  - advance: 0.01
//	    repeat: 50
//	  - render: 512
//	  - throttle: 1.5
//	    error: INVALID_ARGUMENT
//	  - expect:
//	      rpm: {min: 300}
//	assertions:
//	  - type: trace_count
//	    op: advance
//	    count: 1
//
// Each step sets exactly one action. A step without error must succeed; a
// step with error must fail with that code. expect checks fields of the
// latest stats snapshot, named as in its JSON form.
//
// # Assertion Types
//
//   - trace_contains: a step with op (and arg, outcome if given) ran
//   - trace_order: ops first appear in the given order
//   - trace_count: op appears exactly count times
//   - final_stats: the last snapshot lies within the given ranges
//
// # Determinism
//
// Steps are recorded through store.Recorder into an in-memory SQLite
// database. After the last step the session is replayed into a fresh
// simulator, and any snapshot that differs fails the scenario. Traces hold
// step arguments and outcomes only, so golden files under
// testdata/golden compare byte for byte.
package harness
