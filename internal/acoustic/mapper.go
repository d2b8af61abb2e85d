// Package acoustic maps per-cylinder acoustic events onto output channels.
//
// Everything here is a pure function of its arguments. The routing matrix is
// computed once per topology by NewChannelTopology; Map only reads it.
package acoustic

import (
	"math"

	"github.com/roach88/enginesim/internal/ir"
)

// ChannelTopology is the cylinder to output-channel routing matrix.
//
// Each cylinder contributes to channel c with weight flat + bright·spectral,
// where spectral is the event's spectral hint. Exhaust systems set the
// weights from their gain, pan and brightness.
type ChannelTopology struct {
	channels  int
	cylinders int
	active    int
	flat      []float64 // [cylinder*channels + channel]
	bright    []float64
}

// NewChannelTopology builds the routing matrix for topo on the given number
// of output channels. Cylinder indices outside the topology are ignored.
func NewChannelTopology(topo *ir.Topology, channels int) ChannelTopology {
	if channels < 1 {
		channels = 1
	}
	ct := ChannelTopology{channels: channels}
	if topo == nil {
		return ct
	}
	ct.cylinders = len(topo.Cylinders)
	ct.flat = make([]float64, ct.cylinders*channels)
	ct.bright = make([]float64, ct.cylinders*channels)

	pans := make([]float64, channels)
	for _, ex := range topo.Exhaust {
		routed := false
		panWeights(ex.Pan, pans)
		b := clamp01(ex.Brightness)
		for _, cyl := range ex.Cylinders {
			if cyl < 0 || cyl >= ct.cylinders {
				continue
			}
			routed = true
			for c, w := range pans {
				ct.flat[cyl*channels+c] += ex.Gain * (1 - b) * w
				ct.bright[cyl*channels+c] += ex.Gain * b * w
			}
		}
		if routed {
			ct.active++
		}
	}
	return ct
}

// Channels returns the number of output channels.
func (ct ChannelTopology) Channels() int { return ct.channels }

// ActiveChannels returns the number of exhaust systems that route at least
// one cylinder.
func (ct ChannelTopology) ActiveChannels() int { return ct.active }

// Weight returns the effective weight of cylinder cyl on channel c for a
// given spectral hint.
func (ct ChannelTopology) Weight(cyl, c int, spectral float64) float64 {
	if cyl < 0 || cyl >= ct.cylinders || c < 0 || c >= ct.channels {
		return 0
	}
	i := cyl*ct.channels + c
	return ct.flat[i] + ct.bright[i]*spectral
}

// Map adds each event's contribution into out, which is interleaved by
// channel with one frame per event offset. Events whose offset falls outside
// out, or whose cylinder is not in the topology, are skipped. Map never
// reads or writes anything but its arguments and never modifies events.
func Map(events []ir.AcousticEvent, ct ChannelTopology, out []float32) {
	frames := len(out) / ct.channels
	for _, ev := range events {
		if ev.Offset < 0 || ev.Offset >= frames || ev.Cylinder < 0 || ev.Cylinder >= ct.cylinders {
			continue
		}
		base := ev.Offset * ct.channels
		row := ev.Cylinder * ct.channels
		for c := 0; c < ct.channels; c++ {
			w := ct.flat[row+c] + ct.bright[row+c]*ev.Spectral
			out[base+c] += float32(ev.Amplitude * w)
		}
	}
}

// Envelope adds the total event amplitude at each offset into out. The
// synthesizer uses it to modulate air noise.
func Envelope(events []ir.AcousticEvent, out []float32) {
	for _, ev := range events {
		if ev.Offset < 0 || ev.Offset >= len(out) {
			continue
		}
		out[ev.Offset] += float32(math.Abs(ev.Amplitude))
	}
}

// panWeights fills w with equal-power weights for pan in [-1,1] spread
// across len(w) channels. A mono output takes everything.
func panWeights(pan float64, w []float64) {
	for i := range w {
		w[i] = 0
	}
	if len(w) == 1 {
		w[0] = 1
		return
	}
	pos := (math.Max(-1, math.Min(1, pan)) + 1) / 2 * float64(len(w)-1)
	lo := int(math.Floor(pos))
	if lo >= len(w)-1 {
		lo = len(w) - 2
	}
	frac := pos - float64(lo)
	w[lo] = math.Cos(frac * math.Pi / 2)
	w[lo+1] = math.Sin(frac * math.Pi / 2)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
