package synth

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/enginesim/internal/config"
)

func TestRing_WriteRead(t *testing.T) {
	r := NewRing(4, 2)

	n := r.Write([]float32{1, 10, 2, 20, 3, 30})
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, r.Len())

	dst := make([]float32, 4)
	assert.Equal(t, 2, r.Read(dst))
	assert.Equal(t, []float32{1, 10, 2, 20}, dst)
	assert.Equal(t, 1, r.Len())
}

func TestRing_RejectsNewestWhenFull(t *testing.T) {
	r := NewRing(3, 1)

	assert.Equal(t, 3, r.Write([]float32{1, 2, 3, 4, 5}))
	assert.Equal(t, 0, r.Write([]float32{6}))
	assert.Equal(t, 3, r.Len())

	dst := make([]float32, 3)
	r.Read(dst)
	assert.Equal(t, []float32{1, 2, 3}, dst, "oldest frames are kept")
}

func TestRing_WrapsAround(t *testing.T) {
	r := NewRing(3, 1)
	dst := make([]float32, 2)

	for i := 0; i < 10; i++ {
		require.Equal(t, 2, r.Write([]float32{float32(2 * i), float32(2*i + 1)}))
		require.Equal(t, 2, r.Read(dst))
		assert.Equal(t, []float32{float32(2 * i), float32(2*i + 1)}, dst)
	}
	assert.Zero(t, r.Len())
}

func TestRing_IgnoresPartialFrames(t *testing.T) {
	r := NewRing(4, 3)
	assert.Equal(t, 1, r.Write([]float32{1, 2, 3, 4}))
	assert.Equal(t, 0, r.Read(make([]float32, 2)))
}

func TestRing_ConcurrentProducerConsumer(t *testing.T) {
	const total = 100000
	r := NewRing(64, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		next := 0
		for next < total {
			if r.Write([]float32{float32(next)}) == 1 {
				next++
			}
		}
	}()

	dst := make([]float32, 16)
	want := 0
	for want < total {
		n := r.Read(dst)
		for i := 0; i < n; i++ {
			if dst[i] != float32(want) {
				t.Fatalf("frame %d: got %v", want, dst[i])
			}
			want++
		}
		assert.LessOrEqual(t, r.Len(), r.Capacity())
	}
	wg.Wait()
}

func TestResampler_Ratio(t *testing.T) {
	tests := []struct {
		name    string
		in, out int
	}{
		{"upsample", 10000, 48000},
		{"downsample", 48000, 10000},
		{"unity", 44100, 44100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResampler(tt.in, tt.out, 1)
			src := make([]float32, 100)
			dst := make([]float32, r.MaxOutput(len(src)))

			total := 0
			for i := 0; i < 100; i++ {
				total += r.Process(src, dst)
			}
			expected := float64(100*len(src)) * float64(tt.out) / float64(tt.in)
			assert.InDelta(t, expected, total, 1)
		})
	}
}

func TestResampler_Interpolates(t *testing.T) {
	r := NewResampler(1, 2, 1)
	dst := make([]float32, r.MaxOutput(2))

	n := r.Process([]float32{2, 4}, dst)
	require.Equal(t, 4, n)
	assert.Equal(t, []float32{0, 1, 2, 3}, dst[:n], "starts from the silent carried frame")

	n = r.Process([]float32{6}, dst)
	require.Equal(t, 2, n)
	assert.Equal(t, []float32{4, 5}, dst[:n])
}

func TestResampler_BlockSizeIndependent(t *testing.T) {
	src := make([]float32, 61)
	for i := range src {
		src[i] = float32(math.Sin(float64(i) / 3))
	}

	whole := NewResampler(10000, 48000, 1)
	a := make([]float32, whole.MaxOutput(len(src)))
	na := whole.Process(src, a)

	split := NewResampler(10000, 48000, 1)
	var b []float32
	buf := make([]float32, split.MaxOutput(len(src)))
	for _, block := range [][]float32{src[:7], src[7:31], src[31:]} {
		n := split.Process(block, buf)
		b = append(b, buf[:n]...)
	}

	require.Len(t, b, na)
	for i := range b {
		assert.InDelta(t, a[i], b[i], 1e-6)
	}
}

func TestDCBlocker_RemovesOffset(t *testing.T) {
	var d DCBlocker
	var y float64
	for i := 0; i < 5000; i++ {
		y = d.Process(0.5)
	}
	assert.InDelta(t, 0, y, 1e-6)
}

func TestExhaustImpulse_Normalized(t *testing.T) {
	for _, sr := range []int{8000, 44100, 48000, 192000} {
		h := ExhaustImpulse(sr)
		var sum float64
		for _, v := range h {
			require.False(t, math.IsNaN(v))
			sum += math.Abs(v)
		}
		assert.InDelta(t, 1, sum, 1e-9)
		assert.GreaterOrEqual(t, len(h), 16)
	}
	assert.Equal(t, ExhaustImpulse(48000), ExhaustImpulse(48000))
}

func TestConvolver_Impulse(t *testing.T) {
	h := []float64{0.5, 0.25, 0.25}
	c := NewConvolver(h, 2)

	got := []float64{c.Process(0, 1), c.Process(0, 0), c.Process(0, 0), c.Process(0, 0)}
	assert.Equal(t, []float64{0.5, 0.25, 0.25, 0}, got)
	assert.Zero(t, c.Process(1, 0), "channels are independent")
}

func TestLFSR(t *testing.T) {
	a, b := NewLFSR(LFSRSeed), NewLFSR(LFSRSeed)
	var pos int
	for i := 0; i < 1000; i++ {
		v := a.Next()
		require.Equal(t, v, b.Next())
		require.Contains(t, []float64{-1, 1}, v)
		if v > 0 {
			pos++
		}
	}
	assert.InDelta(t, 500, pos, 100, "roughly balanced")

	assert.Equal(t, uint32(LFSRSeed), NewLFSR(0).reg)
}

func newTestSynth(t *testing.T, mutate func(*config.EngineConfig)) *Synthesizer {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, config.Validate(cfg))
	return New(cfg, cfg.SubStepCap())
}

func TestSynthesizer_Capacity(t *testing.T) {
	s := newTestSynth(t, nil)
	assert.Equal(t, config.Default().SynthesizerCapacity(), s.Capacity())
	assert.Equal(t, 4800, s.Capacity())
	assert.Equal(t, 2, s.Channels())
}

func TestSynthesizer_AccumulateResamples(t *testing.T) {
	s := newTestSynth(t, nil)
	raw := make([]float32, 100*2)
	env := make([]float32, 100)

	accepted := s.Accumulate(raw, env, 100)
	assert.InDelta(t, 480, accepted, 1)
	assert.Equal(t, accepted, s.Buffered())
	assert.Zero(t, s.Overflows())
}

func TestSynthesizer_OverflowRejectsNewest(t *testing.T) {
	s := newTestSynth(t, nil)
	raw := make([]float32, 2500*2)
	env := make([]float32, 2500)

	total := 0
	for i := 0; i < 4; i++ {
		total += s.Accumulate(raw, env, 2500)
	}
	assert.Equal(t, s.Capacity(), total)
	assert.Equal(t, s.Capacity(), s.Buffered())
	assert.Greater(t, s.Overflows(), int64(0))
	assert.InDelta(t, 4*12000-s.Capacity(), s.Overflows(), 4)
}

func TestSynthesizer_AccumulateLargerThanScratch(t *testing.T) {
	cfg := config.Default()
	s := New(cfg, 10)
	raw := make([]float32, 100*2)
	env := make([]float32, 100)

	assert.InDelta(t, 480, s.Accumulate(raw, env, 100), 1)
}

func TestSynthesizer_RenderUnderrunPadsSilence(t *testing.T) {
	s := newTestSynth(t, nil)
	raw := make([]float32, 10*2)
	for i := range raw {
		raw[i] = 0.3
	}
	env := make([]float32, 10)
	buffered := s.Accumulate(raw, env, 10)
	require.Greater(t, buffered, 0)

	out := make([]float32, 128*2)
	for i := range out {
		out[i] = 99
	}
	n, underrun := s.Render(out, 128)
	assert.Equal(t, buffered, n)
	assert.True(t, underrun)
	assert.Equal(t, int64(1), s.Underruns())
	for _, v := range out[n*2:] {
		require.Zero(t, v)
	}
}

func TestSynthesizer_RenderNeverExceedsRequest(t *testing.T) {
	s := newTestSynth(t, nil)
	raw := make([]float32, 1000*2)
	env := make([]float32, 1000)
	s.Accumulate(raw, env, 1000)

	out := make([]float32, 300*2)
	for i := range out {
		out[i] = 99
	}
	n, underrun := s.Render(out[:128*2], 128)
	assert.Equal(t, 128, n)
	assert.False(t, underrun)
	for _, v := range out[128*2:] {
		require.Equal(t, float32(99), v, "samples past the request are untouched")
	}

	n, _ = s.Render(out, 1000)
	assert.LessOrEqual(t, n, 300, "clamped to the buffer length")

	n, underrun = s.Render(out, -5)
	assert.Zero(t, n)
	assert.False(t, underrun)
}

func TestSynthesizer_OutputBounded(t *testing.T) {
	s := newTestSynth(t, func(c *config.EngineConfig) {
		c.Volume = 0.7
		c.AirNoise = 1
		c.ConvolutionLevel = 1
	})

	raw := make([]float32, 200*2)
	env := make([]float32, 200)
	for i := range env {
		raw[2*i] = float32(50 * math.Sin(float64(i)))
		raw[2*i+1] = float32(-80 * math.Cos(float64(i)))
		env[i] = 10
	}
	raw[10] = float32(math.NaN())
	s.Accumulate(raw, env, 200)

	out := make([]float32, 1000*2)
	n, _ := s.Render(out, 1000)
	require.Greater(t, n, 0)
	for _, v := range out {
		require.False(t, math.IsNaN(float64(v)))
		require.LessOrEqual(t, math.Abs(float64(v)), 0.7+1e-6)
	}
}

func TestSynthesizer_SilentInputIsSilent(t *testing.T) {
	s := newTestSynth(t, nil)
	raw := make([]float32, 100*2)
	env := make([]float32, 100)
	s.Accumulate(raw, env, 100)

	out := make([]float32, 100*2)
	s.Render(out, 100)
	for _, v := range out {
		require.Zero(t, v)
	}
}

func TestSynthesizer_Deterministic(t *testing.T) {
	run := func() []float32 {
		s := newTestSynth(t, nil)
		raw := make([]float32, 500*2)
		env := make([]float32, 500)
		for i := range env {
			raw[2*i] = float32(math.Sin(float64(i) / 5))
			raw[2*i+1] = raw[2*i] / 2
			env[i] = 0.5
		}
		s.Accumulate(raw, env, 500)
		out := make([]float32, 2000*2)
		s.Render(out, 2000)
		return out
	}
	assert.Equal(t, run(), run())
}

func TestSynthesizer_ConcurrentAccumulateRender(t *testing.T) {
	s := newTestSynth(t, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		raw := make([]float32, 167*2)
		env := make([]float32, 167)
		for i := 0; i < 500; i++ {
			s.Accumulate(raw, env, 167)
		}
	}()

	out := make([]float32, 256*2)
	for i := 0; i < 2000; i++ {
		n, _ := s.Render(out, 256)
		require.LessOrEqual(t, n, 256)
		require.LessOrEqual(t, s.Buffered(), s.Capacity())
	}
	wg.Wait()
}

func TestSynthesizer_RenderDoesNotAllocate(t *testing.T) {
	s := newTestSynth(t, nil)
	raw := make([]float32, 2000*2)
	env := make([]float32, 2000)
	out := make([]float32, 128*2)

	allocs := testing.AllocsPerRun(20, func() {
		s.Accumulate(raw[:20*2], env[:20], 20)
		s.Render(out, 128)
	})
	assert.Zero(t, allocs)
}
