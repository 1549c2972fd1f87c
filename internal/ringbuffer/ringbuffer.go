// Package ringbuffer implements a fixed-capacity, single-producer
// single-consumer lock-free queue of float32 samples.
//
// The producer and consumer each own one atomic cursor; neither ever writes
// the other's cursor. Capacity is rounded to a power of two so index
// wrapping is a mask instead of a modulo, matching the ring-indexing style
// the teacher uses for its per-sender jitter ring (client/internal/jitter),
// generalized here from a 16-slot packet ring to an arbitrary-length sample
// ring with bulk push/pop.
package ringbuffer

import "sync/atomic"

// CapacityMS is the default buffering horizon used when sizing a ring from
// a stream spec, per the data model's capacity formula.
const CapacityMS = 200

// Capacity computes max(sampleRate*channels*capMS/1000, channels*1024, 1024),
// rounded up to the next power of two so the ring can use a mask for
// wrapping.
func Capacity(sampleRate uint32, channels uint16, capMS int) int {
	bySpec := int(uint64(sampleRate) * uint64(channels) * uint64(capMS) / 1000)
	floor := int(channels) * 1024
	n := bySpec
	if floor > n {
		n = floor
	}
	if n < 1024 {
		n = 1024
	}
	return nextPowerOfTwo(n)
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Ring is a fixed-capacity SPSC float32 queue. Exactly one goroutine may
// call the producer methods (PushSlice) and exactly one goroutine may call
// the consumer methods (PopSlice, OccupiedLen); both may run concurrently
// with each other without external synchronisation.
type Ring struct {
	buf  []float32
	mask uint64

	// head is the next write index (producer-owned); tail is the next read
	// index (consumer-owned). Both are monotonically increasing counters,
	// not wrapped indices — wrapping happens only when touching buf, via
	// mask. This avoids the ambiguity between an empty and a full ring that
	// a single wrapped index pair would otherwise have.
	head atomic.Uint64
	tail atomic.Uint64
}

// New returns a Ring whose capacity is rounded up to the next power of two
// (minimum 1024).
func New(capacity int) *Ring {
	if capacity < 1024 {
		capacity = 1024
	}
	capacity = nextPowerOfTwo(capacity)
	return &Ring{
		buf:  make([]float32, capacity),
		mask: uint64(capacity - 1),
	}
}

// Cap returns the ring's fixed capacity in samples.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// PushSlice copies as many samples from src as fit in the remaining
// capacity and returns the count accepted. Producer-side only.
func (r *Ring) PushSlice(src []float32) int {
	head := r.head.Load()
	tail := r.tail.Load() // acquire: observes everything the consumer published
	free := len(r.buf) - int(head-tail)
	if free <= 0 {
		return 0
	}
	n := len(src)
	if n > free {
		n = free
	}
	for i := 0; i < n; i++ {
		r.buf[(head+uint64(i))&r.mask] = src[i]
	}
	// release: publish the written samples to the consumer.
	r.head.Store(head + uint64(n))
	return n
}

// PopSlice copies as many samples as available into dst and returns the
// count produced; the remainder of dst is left untouched. Consumer-side only.
func (r *Ring) PopSlice(dst []float32) int {
	tail := r.tail.Load()
	head := r.head.Load() // acquire: observes everything the producer published
	avail := int(head - tail)
	if avail <= 0 {
		return 0
	}
	n := len(dst)
	if n > avail {
		n = avail
	}
	for i := 0; i < n; i++ {
		dst[i] = r.buf[(tail+uint64(i))&r.mask]
	}
	r.tail.Store(tail + uint64(n))
	return n
}

// OccupiedLen returns a snapshot of the number of samples currently queued.
// Safe to call from either side; the value may be stale by the time it is
// read back by the caller.
func (r *Ring) OccupiedLen() int {
	return int(r.head.Load() - r.tail.Load())
}

// Clear drops all queued samples. Must only be called when the producer
// and consumer are both quiescent (e.g. during teardown) — it is not itself
// synchronised against concurrent Push/Pop.
func (r *Ring) Clear() {
	r.tail.Store(r.head.Load())
}
