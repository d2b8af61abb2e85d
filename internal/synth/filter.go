package synth

import "math"

// DCBlockCoefficient is the pole of the DC blocking high-pass.
const DCBlockCoefficient = 0.995

// DCBlocker removes the constant offset that one-sided exhaust pulses
// leave in the signal: y[n] = x[n] - x[n-1] + R*y[n-1].
type DCBlocker struct {
	prevIn  float64
	prevOut float64
}

// Process filters one sample.
func (d *DCBlocker) Process(x float64) float64 {
	y := x - d.prevIn + DCBlockCoefficient*d.prevOut
	d.prevIn = x
	d.prevOut = y
	return y
}

// ExhaustImpulse returns the impulse response of a short resonant pipe at
// sampleRate: two damped resonances and a decaying tail, normalized so the
// absolute values sum to one. The FIR output is therefore never louder than
// its loudest input sample.
func ExhaustImpulse(sampleRate int) []float64 {
	n := max(sampleRate/400, 16) // 2.5 ms
	h := make([]float64, n)
	sr := float64(sampleRate)
	tau := float64(n) / 4

	var sum float64
	for k := range h {
		t := float64(k)
		decay := math.Exp(-t / tau)
		h[k] = decay * (0.6*math.Cos(2*math.Pi*140*t/sr) + 0.4*math.Cos(2*math.Pi*610*t/sr))
		sum += math.Abs(h[k])
	}
	for k := range h {
		h[k] /= sum
	}
	return h
}

// Convolver applies an FIR filter to each channel of an interleaved stream.
type Convolver struct {
	h       []float64
	history [][]float64 // per channel, circular
	pos     []int
}

// NewConvolver creates a convolver for channels with impulse response h.
func NewConvolver(h []float64, channels int) *Convolver {
	c := &Convolver{
		h:       h,
		history: make([][]float64, channels),
		pos:     make([]int, channels),
	}
	for i := range c.history {
		c.history[i] = make([]float64, len(h))
	}
	return c
}

// Process feeds x into channel ch and returns the filtered sample.
func (c *Convolver) Process(ch int, x float64) float64 {
	hist := c.history[ch]
	n := len(hist)
	if n == 0 {
		return x
	}
	p := c.pos[ch]
	hist[p] = x

	var y float64
	idx := p
	for _, coef := range c.h {
		y += coef * hist[idx]
		idx--
		if idx < 0 {
			idx = n - 1
		}
	}
	c.pos[ch] = (p + 1) % n
	return y
}

// LFSRSeed is the initial noise register state.
const LFSRSeed = 0xACE1

// LFSR is a 17-bit linear feedback shift register noise source.
// The sequence depends only on the seed.
type LFSR struct {
	reg uint32
}

// NewLFSR creates a noise source. A zero seed would lock the register, so
// it is replaced by LFSRSeed.
func NewLFSR(seed uint32) *LFSR {
	seed &= 0x1FFFF
	if seed == 0 {
		seed = LFSRSeed
	}
	return &LFSR{reg: seed}
}

// Next shifts the register and returns -1 or +1.
func (l *LFSR) Next() float64 {
	bit := (l.reg ^ (l.reg >> 3)) & 1
	l.reg = (l.reg >> 1) | (bit << 16)
	return float64(l.reg&1)*2 - 1
}
