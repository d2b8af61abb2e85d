package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/enginesim/internal/config"
)

// Scenario is a scripted simulator session with expectations.
// Scenarios drive a real simulator: every step goes through the sim facade
// and expectations are checked against its published stats.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden trace.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overrides fields of config.Default(). Unknown fields are
	// rejected.
	Config yaml.Node `yaml:"config,omitempty"`

	// Script is an inline CUE topology script.
	Script string `yaml:"script,omitempty"`

	// ScriptFile is a topology script path, relative to the scenario file.
	// Mutually exclusive with Script.
	ScriptFile string `yaml:"script_file,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated over the trace after all steps ran.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// resolved by LoadScenario
	engineConfig config.EngineConfig
	source       string
}

// Step is one scenario action. Exactly one of the action fields is set.
type Step struct {
	// Load loads a topology. The value "script" loads the scenario's own
	// script; anything else is inline CUE source.
	Load *string `yaml:"load,omitempty"`

	Throttle *float64 `yaml:"throttle,omitempty"`
	Ignition *bool    `yaml:"ignition,omitempty"`
	Starter  *bool    `yaml:"starter,omitempty"`

	// Advance is a time step in seconds, applied Repeat times.
	Advance *float64 `yaml:"advance,omitempty"`
	Repeat  int      `yaml:"repeat,omitempty"`

	// Render requests this many frames.
	Render *int `yaml:"render,omitempty"`

	// Expect checks stats fields against ranges.
	Expect map[string]Range `yaml:"expect,omitempty"`

	// Error is the error code the step must fail with, e.g.
	// INVALID_ARGUMENT. Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`
}

// Range bounds a stats field. Either end may be omitted.
type Range struct {
	Min *float64 `yaml:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty"`
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

func (r Range) String() string {
	switch {
	case r.Min != nil && r.Max != nil:
		return fmt.Sprintf("[%g, %g]", *r.Min, *r.Max)
	case r.Min != nil:
		return fmt.Sprintf(">= %g", *r.Min)
	case r.Max != nil:
		return fmt.Sprintf("<= %g", *r.Max)
	default:
		return "any"
	}
}

// Step operation names, as they appear in traces.
const (
	OpLoad     = "load"
	OpThrottle = "throttle"
	OpIgnition = "ignition"
	OpStarter  = "starter"
	OpAdvance  = "advance"
	OpRender   = "render"
	OpExpect   = "expect"
)

// Op returns the step's operation name, or "" if the step sets zero or
// more than one action.
func (s Step) Op() string {
	var ops []string
	if s.Load != nil {
		ops = append(ops, OpLoad)
	}
	if s.Throttle != nil {
		ops = append(ops, OpThrottle)
	}
	if s.Ignition != nil {
		ops = append(ops, OpIgnition)
	}
	if s.Starter != nil {
		ops = append(ops, OpStarter)
	}
	if s.Advance != nil {
		ops = append(ops, OpAdvance)
	}
	if s.Render != nil {
		ops = append(ops, OpRender)
	}
	if s.Expect != nil {
		ops = append(ops, OpExpect)
	}
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

// EngineConfig returns the resolved simulator configuration.
func (s *Scenario) EngineConfig() config.EngineConfig { return s.engineConfig }

// Source returns the resolved topology script, or "" if the scenario has
// none.
func (s *Scenario) Source() string { return s.source }

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML. script_file paths resolve against
// baseDir.
func ParseScenario(data []byte, baseDir string) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "step:" vs "steps:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := scenario.resolve(baseDir); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// resolve fills in the engine config and script source.
func (s *Scenario) resolve(baseDir string) error {
	s.engineConfig = config.Default()
	if s.Config.Kind != 0 {
		data, err := yaml.Marshal(&s.Config)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		cfg, err := config.Parse(data)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		s.engineConfig = cfg
	}

	if s.Script != "" && s.ScriptFile != "" {
		return fmt.Errorf("script and script_file are mutually exclusive")
	}
	s.source = s.Script
	if s.ScriptFile != "" {
		path := s.ScriptFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("script_file: %w", err)
		}
		s.source = string(data)
	}
	return nil
}

// validateScenario checks that all required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		op := step.Op()
		if op == "" {
			return fmt.Errorf("steps[%d]: exactly one action is required", i)
		}
		if step.Repeat < 0 {
			return fmt.Errorf("steps[%d]: repeat must be non-negative", i)
		}
		if step.Repeat > 0 && op != OpAdvance {
			return fmt.Errorf("steps[%d]: repeat is only valid with advance", i)
		}
		if op == OpLoad && *step.Load == "script" && s.source == "" {
			return fmt.Errorf("steps[%d]: load script requires script or script_file", i)
		}
		if op == OpExpect {
			for field := range step.Expect {
				if !isStatsField(field) {
					return fmt.Errorf("steps[%d]: unknown stats field %q", i, field)
				}
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}
