// Package config defines the engine simulator configuration record.
//
// An EngineConfig is immutable once validated. Validate is a pure function:
// it never mutates its argument and has no side effects, so it can be called
// before any simulator exists.
package config

import (
	"fmt"
	"math"
)

// Field range limits. Values at the limits are valid.
const (
	MinSampleRate = 8000
	MaxSampleRate = 384000

	MinInputBufferSize = 1
	MaxInputBufferSize = 1 << 20

	MinAudioBufferSize = 1
	MaxAudioBufferSize = 1 << 24

	MinSimulationFrequency = 1000
	MaxSimulationFrequency = 200000

	MinFluidSimulationSteps = 1
	MaxFluidSimulationSteps = 64

	MaxTargetLatency = 2.0

	MinChannels = 1
	MaxChannels = 8
)

// EngineConfig holds the parameters a simulator is created with.
type EngineConfig struct {
	// SampleRate is the audio output rate in Hz.
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// InputBufferSize is the host's render block size in frames.
	InputBufferSize int `yaml:"input_buffer_size" json:"input_buffer_size"`

	// AudioBufferSize caps the synthesizer ring buffer, in frames.
	AudioBufferSize int `yaml:"audio_buffer_size" json:"audio_buffer_size"`

	// SimulationFrequency is the fixed physics step rate in Hz.
	SimulationFrequency int `yaml:"simulation_frequency" json:"simulation_frequency"`

	// FluidSimulationSteps is the number of fluid iterations per physics step.
	FluidSimulationSteps int `yaml:"fluid_simulation_steps" json:"fluid_simulation_steps"`

	// TargetSynthesizerLatency is the audio buffering target in seconds.
	TargetSynthesizerLatency float64 `yaml:"target_synthesizer_latency" json:"target_synthesizer_latency"`

	Volume           float64 `yaml:"volume" json:"volume"`
	ConvolutionLevel float64 `yaml:"convolution_level" json:"convolution_level"`
	AirNoise         float64 `yaml:"air_noise" json:"air_noise"`

	// Channels is the number of interleaved output channels. Zero means stereo.
	Channels int `yaml:"channels,omitempty" json:"channels,omitempty"`

	// MaxSubStepsPerAdvance bounds the physics steps one Advance may run.
	// Zero means SimulationFrequency/4 (250ms of simulated time).
	MaxSubStepsPerAdvance int `yaml:"max_substeps_per_advance,omitempty" json:"max_substeps_per_advance,omitempty"`
}

// Default returns the configuration used by the reference bridge test.
func Default() EngineConfig {
	return EngineConfig{
		SampleRate:               48000,
		InputBufferSize:          1024,
		AudioBufferSize:          96000,
		SimulationFrequency:      10000,
		FluidSimulationSteps:     8,
		TargetSynthesizerLatency: 0.05,
		Volume:                   1.0,
		ConvolutionLevel:         0.5,
		AirNoise:                 0.1,
		Channels:                 2,
	}
}

// FieldError reports the first invalid field found by Validate.
type FieldError struct {
	Field  string
	Value  any
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid config field %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Validate checks every field against its documented range.
func Validate(c EngineConfig) error {
	if err := intRange("sample_rate", c.SampleRate, MinSampleRate, MaxSampleRate); err != nil {
		return err
	}
	if err := intRange("input_buffer_size", c.InputBufferSize, MinInputBufferSize, MaxInputBufferSize); err != nil {
		return err
	}
	if err := intRange("audio_buffer_size", c.AudioBufferSize, MinAudioBufferSize, MaxAudioBufferSize); err != nil {
		return err
	}
	if err := intRange("simulation_frequency", c.SimulationFrequency, MinSimulationFrequency, MaxSimulationFrequency); err != nil {
		return err
	}
	// The resampler interpolates between physics steps, so the physics rate
	// may not fall too far below the audio rate.
	if c.SimulationFrequency*8 < c.SampleRate {
		return &FieldError{
			Field:  "simulation_frequency",
			Value:  c.SimulationFrequency,
			Reason: fmt.Sprintf("must be at least sample_rate/8 (%d)", (c.SampleRate+7)/8),
		}
	}
	if err := intRange("fluid_simulation_steps", c.FluidSimulationSteps, MinFluidSimulationSteps, MaxFluidSimulationSteps); err != nil {
		return err
	}

	if !isFinite(c.TargetSynthesizerLatency) || c.TargetSynthesizerLatency <= 0 || c.TargetSynthesizerLatency > MaxTargetLatency {
		return &FieldError{
			Field:  "target_synthesizer_latency",
			Value:  c.TargetSynthesizerLatency,
			Reason: fmt.Sprintf("must be finite and in (0, %g]", MaxTargetLatency),
		}
	}
	if err := unitRange("volume", c.Volume); err != nil {
		return err
	}
	if err := unitRange("convolution_level", c.ConvolutionLevel); err != nil {
		return err
	}
	if err := unitRange("air_noise", c.AirNoise); err != nil {
		return err
	}

	if c.Channels != 0 {
		if err := intRange("channels", c.Channels, MinChannels, MaxChannels); err != nil {
			return err
		}
	}
	if c.MaxSubStepsPerAdvance != 0 {
		if err := intRange("max_substeps_per_advance", c.MaxSubStepsPerAdvance, 1, c.SimulationFrequency*2); err != nil {
			return err
		}
	}

	return nil
}

// OutputChannels returns the effective channel count.
func (c EngineConfig) OutputChannels() int {
	if c.Channels == 0 {
		return 2
	}
	return c.Channels
}

// SubStepCap returns the effective per-Advance sub-step limit.
func (c EngineConfig) SubStepCap() int {
	if c.MaxSubStepsPerAdvance > 0 {
		return c.MaxSubStepsPerAdvance
	}
	n := c.SimulationFrequency / 4
	if n < 1 {
		n = 1
	}
	return n
}

// SynthesizerCapacity returns the ring buffer size in frames:
// twice the latency target, at least one input block, at most AudioBufferSize.
func (c EngineConfig) SynthesizerCapacity() int {
	latencyFrames := int(math.Ceil(c.TargetSynthesizerLatency * float64(c.SampleRate)))
	n := 2 * latencyFrames
	if n < c.InputBufferSize {
		n = c.InputBufferSize
	}
	if n > c.AudioBufferSize {
		n = c.AudioBufferSize
	}
	if n < 1 {
		n = 1
	}
	return n
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func intRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return &FieldError{
			Field:  field,
			Value:  v,
			Reason: fmt.Sprintf("must be in [%d, %d]", lo, hi),
		}
	}
	return nil
}

func unitRange(field string, v float64) error {
	if !isFinite(v) || v < 0 || v > 1 {
		return &FieldError{
			Field:  field,
			Value:  v,
			Reason: "must be finite and in [0, 1]",
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
