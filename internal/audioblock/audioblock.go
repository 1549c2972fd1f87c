// Package audioblock defines the interleaved-f32 audio payload and stream
// spec types shared by every stage of the pipeline.
package audioblock

import (
	"fmt"
	"math"
)

// StreamSpec describes the sample rate and channel layout carried between
// pipeline stages. Each stage declares what it accepts and what it produces
// at prepare time.
type StreamSpec struct {
	SampleRate uint32
	Channels   uint16
}

// Valid reports whether the spec satisfies the data-model invariants:
// sample rate >= 1 and channels >= 1.
func (s StreamSpec) Valid() bool {
	return s.SampleRate >= 1 && s.Channels >= 1
}

func (s StreamSpec) String() string {
	return fmt.Sprintf("%dHz/%dch", s.SampleRate, s.Channels)
}

// Equal reports whether two specs describe the same sample rate and channel count.
func (s StreamSpec) Equal(o StreamSpec) bool {
	return s.SampleRate == o.SampleRate && s.Channels == o.Channels
}

// Block is an interleaved-f32 chunk of audio. len(Samples) must be a
// multiple of Channels. Blocks are exclusively owned along the pipeline;
// never aliased.
type Block struct {
	Channels uint16
	Samples  []float32
}

// Frames returns the number of sample-frames in the block (Samples split
// evenly across Channels).
func (b Block) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / int(b.Channels)
}

// Valid reports whether the block satisfies the interleaving invariant.
func (b Block) Valid() bool {
	if b.Channels == 0 {
		return len(b.Samples) == 0
	}
	return len(b.Samples)%int(b.Channels) == 0
}

// Clone returns a deep copy of b, so the caller can hand off ownership of
// the original without aliasing.
func (b Block) Clone() Block {
	out := Block{Channels: b.Channels, Samples: make([]float32, len(b.Samples))}
	copy(out.Samples, b.Samples)
	return out
}

// Clamp clamps v to [-1.0, 1.0].
func Clamp(v float32) float32 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}

// ClampInPlace clamps every sample of buf to [-1.0, 1.0].
func ClampInPlace(buf []float32) {
	for i, v := range buf {
		buf[i] = Clamp(v)
	}
}

// Zero zeroes every sample of buf.
func Zero(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}

// RMS returns the root-mean-square level of an interleaved frame, folding
// all channels into a single energy estimate. Grounded on the teacher's
// vad.RMS, generalized from mono-only to arbitrary channel counts.
func RMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}
