package synth

import "sync/atomic"

// Ring is a bounded single-producer/single-consumer frame queue.
//
// head and tail are monotonically increasing frame counters; the producer
// only stores head and the consumer only stores tail. Each side publishes
// its counter after touching the buffer, so the other side never observes
// a partially written frame.
//
// Overflow policy: reject newest. Write stores the frames that fit and
// reports how many it accepted; the rest are the caller's to count.
type Ring struct {
	buf      []float32
	stride   int // samples per frame
	capacity uint64

	head atomic.Uint64 // next frame to write
	tail atomic.Uint64 // next frame to read
}

// NewRing creates a ring holding capacity frames of stride samples each.
func NewRing(capacity, stride int) *Ring {
	capacity = max(capacity, 1)
	stride = max(stride, 1)
	return &Ring{
		buf:      make([]float32, capacity*stride),
		stride:   stride,
		capacity: uint64(capacity),
	}
}

// Capacity returns the maximum number of buffered frames.
func (r *Ring) Capacity() int { return int(r.capacity) }

// Stride returns the number of samples per frame.
func (r *Ring) Stride() int { return r.stride }

// Len returns the number of buffered frames. Safe from either side.
func (r *Ring) Len() int {
	tail := r.tail.Load()
	head := r.head.Load()
	return int(head - tail)
}

// Write appends whole frames from src and returns how many were stored.
// Producer side only.
func (r *Ring) Write(src []float32) int {
	head := r.head.Load()
	free := r.capacity - (head - r.tail.Load())
	n := uint64(len(src) / r.stride)
	if n > free {
		n = free
	}
	for i := uint64(0); i < n; i++ {
		slot := int((head+i)%r.capacity) * r.stride
		copy(r.buf[slot:slot+r.stride], src[int(i)*r.stride:])
	}
	r.head.Store(head + n)
	return int(n)
}

// Read moves up to len(dst)/stride frames into dst and returns how many
// were read. Consumer side only.
func (r *Ring) Read(dst []float32) int {
	tail := r.tail.Load()
	avail := r.head.Load() - tail
	n := uint64(len(dst) / r.stride)
	if n > avail {
		n = avail
	}
	for i := uint64(0); i < n; i++ {
		slot := int((tail+i)%r.capacity) * r.stride
		copy(dst[int(i)*r.stride:int(i+1)*r.stride], r.buf[slot:slot+r.stride])
	}
	r.tail.Store(tail + n)
	return int(n)
}
