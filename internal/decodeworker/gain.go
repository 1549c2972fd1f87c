package decodeworker

import (
	"sync"
	"time"

	"github.com/stellatune/engine/internal/audioblock"
)

// Gain implements master-gain hot control per §4.6.4: a target level is
// applied to every produced block, optionally ramped linearly over a
// caller-supplied duration rather than stepped.
type Gain struct {
	mu       sync.Mutex
	from     float64
	to       float64
	start    time.Time
	duration time.Duration
}

// NewGain returns a Gain initialized to full volume.
func NewGain() *Gain {
	return &Gain{from: 1.0, to: 1.0}
}

// Set begins a ramp from the current instantaneous value to level over
// duration. duration <= 0 applies level immediately on the next read.
func (g *Gain) Set(level float64, duration time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.nowLocked()
	g.from = g.valueAtLocked(now)
	g.to = level
	g.start = now
	g.duration = duration
}

// value returns the current instantaneous gain at time now.
func (g *Gain) value(now time.Time) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.valueAtLocked(now)
}

func (g *Gain) valueAtLocked(now time.Time) float64 {
	if g.duration <= 0 {
		return g.to
	}
	elapsed := now.Sub(g.start)
	if elapsed >= g.duration {
		return g.to
	}
	if elapsed <= 0 {
		return g.from
	}
	frac := float64(elapsed) / float64(g.duration)
	return g.from + (g.to-g.from)*frac
}

// Target returns the level the current ramp (if any) is heading to, or the
// current instantaneous level if no ramp is in progress. The control actor
// uses this to pick the resume threshold while mid-fade (§ResumeThreshold).
func (g *Gain) Target() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.to
}

// nowLocked is a thin seam so tests could substitute a clock; callers
// always pass time.Now via the exported methods below.
func (g *Gain) nowLocked() time.Time { return time.Now() }

// ApplyTo scales block's samples in place by the gain value sampled once
// at call time.
func (g *Gain) ApplyTo(block *audioblock.Block, sampleRate uint32) {
	if block == nil || len(block.Samples) == 0 {
		return
	}
	now := time.Now()
	level := g.value(now)
	if level == 1.0 {
		return
	}
	for i := range block.Samples {
		block.Samples[i] *= float32(level)
	}
}
