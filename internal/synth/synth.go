// Package synth turns simulation-rate channel signals into the audio stream.
//
// The simulation goroutine calls Accumulate; the audio goroutine calls
// Render. The Ring between them is the only shared state on the hot path,
// plus two atomic counters.
//
//	Accumulate: raw + envelope -> pack -> Resampler -> Ring
//	Render:     Ring -> DCBlocker -> Convolver -> + noise -> clamp -> volume
//
// Render pads missing frames with silence and reports the underrun; it
// never waits for the producer.
package synth

import (
	"math"
	"sync/atomic"

	"github.com/roach88/enginesim/internal/config"
)

// renderChunk is the number of frames Render pulls from the ring at a time.
const renderChunk = 256

// Synthesizer resamples, buffers, shapes and mixes one simulator's audio.
type Synthesizer struct {
	channels int
	stride   int // channels + envelope
	capacity int
	volume   float64
	level    float64
	airNoise float64

	ring *Ring

	// producer side
	resampler *Resampler
	pack      []float32
	resampled []float32
	overflows atomic.Int64

	// consumer side
	dc        []DCBlocker
	conv      *Convolver
	noise     *LFSR
	chunk     []float32
	underruns atomic.Int64
}

// SynthOption configures a Synthesizer.
type SynthOption func(*Synthesizer)

// WithImpulseResponse replaces the synthetic exhaust impulse response.
func WithImpulseResponse(h []float64) SynthOption {
	return func(s *Synthesizer) {
		s.conv = NewConvolver(h, s.channels)
	}
}

// WithNoiseSeed seeds the air noise register.
func WithNoiseSeed(seed uint32) SynthOption {
	return func(s *Synthesizer) {
		s.noise = NewLFSR(seed)
	}
}

// New creates a synthesizer for cfg. maxInput is the largest number of
// simulation frames one Accumulate call will carry; larger calls are
// processed in pieces.
//
// cfg must already have passed config.Validate.
func New(cfg config.EngineConfig, maxInput int, opts ...SynthOption) *Synthesizer {
	channels := cfg.OutputChannels()
	stride := channels + 1
	maxInput = max(maxInput, 1)

	s := &Synthesizer{
		channels:  channels,
		stride:    stride,
		capacity:  cfg.SynthesizerCapacity(),
		volume:    cfg.Volume,
		level:     cfg.ConvolutionLevel,
		airNoise:  cfg.AirNoise,
		resampler: NewResampler(cfg.SimulationFrequency, cfg.SampleRate, stride),
		pack:      make([]float32, maxInput*stride),
		dc:        make([]DCBlocker, channels),
		conv:      NewConvolver(ExhaustImpulse(cfg.SampleRate), channels),
		noise:     NewLFSR(LFSRSeed),
		chunk:     make([]float32, renderChunk*stride),
	}
	s.ring = NewRing(s.capacity, stride)
	s.resampled = make([]float32, s.resampler.MaxOutput(maxInput)*stride)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Channels returns the number of interleaved output channels.
func (s *Synthesizer) Channels() int { return s.channels }

// Capacity returns the ring capacity in audio frames.
func (s *Synthesizer) Capacity() int { return s.capacity }

// Buffered returns the number of audio frames waiting to be rendered.
func (s *Synthesizer) Buffered() int { return s.ring.Len() }

// Overflows returns the number of audio frames dropped because the ring
// was full.
func (s *Synthesizer) Overflows() int64 { return s.overflows.Load() }

// Underruns returns the number of Render calls that came up short.
func (s *Synthesizer) Underruns() int64 { return s.underruns.Load() }

// Accumulate resamples steps simulation frames into the ring. raw holds
// steps*Channels() interleaved samples and envelope holds steps values.
// It returns the number of audio frames accepted; frames that do not fit
// are dropped and counted as overflows.
//
// Producer side only.
func (s *Synthesizer) Accumulate(raw, envelope []float32, steps int) int {
	steps = min(steps, len(envelope), len(raw)/s.channels)
	maxIn := len(s.pack) / s.stride

	accepted := 0
	for start := 0; start < steps; start += maxIn {
		n := min(maxIn, steps-start)
		for i := 0; i < n; i++ {
			f := s.pack[i*s.stride : (i+1)*s.stride]
			copy(f, raw[(start+i)*s.channels:(start+i+1)*s.channels])
			f[s.channels] = envelope[start+i]
		}

		out := s.resampler.Process(s.pack[:n*s.stride], s.resampled)
		written := s.ring.Write(s.resampled[:out*s.stride])
		if dropped := out - written; dropped > 0 {
			s.overflows.Add(int64(dropped))
		}
		accepted += written
	}
	return accepted
}

// Render writes up to frames interleaved frames into out and returns how
// many came from the ring. Frames past that count, up to the request, are
// filled with silence and the call reports an underrun. Render never
// writes beyond min(frames, len(out)/Channels()) frames.
//
// Consumer side only.
func (s *Synthesizer) Render(out []float32, frames int) (int, bool) {
	frames = max(min(frames, len(out)/s.channels), 0)

	produced := 0
	for produced < frames {
		want := min(renderChunk, frames-produced)
		got := s.ring.Read(s.chunk[:want*s.stride])
		if got == 0 {
			break
		}
		for i := 0; i < got; i++ {
			s.mix(s.chunk[i*s.stride:(i+1)*s.stride], out[(produced+i)*s.channels:(produced+i+1)*s.channels])
		}
		produced += got
	}

	clear(out[produced*s.channels : frames*s.channels])
	underrun := produced < frames
	if underrun {
		s.underruns.Add(1)
	}
	return produced, underrun
}

// mix shapes one ring frame into one output frame.
func (s *Synthesizer) mix(in, out []float32) {
	env := clamp(finite(in[s.channels]), 0, 1)
	for c := range out {
		x := s.dc[c].Process(finite(in[c]))
		y := (1-s.level)*x + s.level*s.conv.Process(c, x)
		y += s.airNoise * env * s.noise.Next()
		out[c] = float32(clamp(y, -1, 1) * s.volume)
	}
}

// finite maps NaN and Inf to silence so filter state is never poisoned.
func finite(v float32) float64 {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
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
