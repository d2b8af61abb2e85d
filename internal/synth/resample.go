package synth

import "math"

// Resampler converts interleaved frames from the simulation rate to the
// audio sample rate by linear interpolation.
//
// The read position and the last input frame carry across calls, so a
// stream split into arbitrary blocks resamples exactly as it would in one.
type Resampler struct {
	step   float64 // input frames per output frame
	stride int
	pos    float64 // read position; 0 is the carried frame
	prev   []float32
}

// NewResampler creates a resampler from inRate to outRate for frames of
// stride samples.
func NewResampler(inRate, outRate, stride int) *Resampler {
	return &Resampler{
		step:   float64(inRate) / float64(outRate),
		stride: stride,
		prev:   make([]float32, stride),
	}
}

// MaxOutput returns an upper bound on output frames for n input frames.
func (r *Resampler) MaxOutput(n int) int {
	return int(math.Ceil(float64(n)/r.step)) + 1
}

// Process resamples the frames in src into dst and returns the number of
// output frames written. dst must hold MaxOutput(len(src)/stride) frames.
func (r *Resampler) Process(src, dst []float32) int {
	n := len(src) / r.stride
	if n == 0 {
		return 0
	}

	// frame k of the virtual stream is prev for k == 0, else src[k-1]
	frame := func(k int) []float32 {
		if k == 0 {
			return r.prev
		}
		return src[(k-1)*r.stride : k*r.stride]
	}

	out := 0
	for r.pos < float64(n) {
		i := int(r.pos)
		frac := float32(r.pos - float64(i))
		a, b := frame(i), frame(i+1)
		o := dst[out*r.stride : (out+1)*r.stride]
		for c := range o {
			o[c] = a[c] + (b[c]-a[c])*frac
		}
		out++
		r.pos += r.step
	}
	r.pos -= float64(n)
	copy(r.prev, src[(n-1)*r.stride:n*r.stride])
	return out
}

// Reset clears the carried frame and position.
func (r *Resampler) Reset() {
	r.pos = 0
	clear(r.prev)
}
