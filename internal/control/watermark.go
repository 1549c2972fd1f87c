// Package control implements the Control Actor: the single-threaded
// cooperative command loop that drives the Player FSM, watermark-based
// buffering gate, and output route selection. Grounded on the teacher's
// RunMetrics ticker/select loop in server/metrics.go, generalized from a
// periodic stats dump to a full command-and-tick actor.
package control

import "github.com/stellatune/engine/internal/devicesink"

// Watermarks bounds the buffered-milliseconds range the Player FSM gates
// Buffering<->Playing transitions on.
type Watermarks struct {
	LowMs  float64
	HighMs float64
}

// Default per-backend watermarks, tuned the way the teacher tunes its own
// jitter buffer depth (client/audio.go jitterDepth): Shared plays it safe
// with the platform mixer's own buffering, Exclusive needs a larger
// cushion since it bypasses that mixer.
var (
	SharedWatermarks    = Watermarks{LowMs: 80, HighMs: 240}
	ExclusiveWatermarks = Watermarks{LowMs: 150, HighMs: 400}
)

// WatermarksFor returns the watermark pair for route. PluginSink's
// watermarks depend on the negotiated chunk size and sample rate:
// low = chunk_frames * 1000 / sample_rate; high = 4 * low.
func WatermarksFor(backend devicesink.Backend, chunkFrames int, sampleRate uint32) Watermarks {
	switch backend {
	case devicesink.Shared:
		return SharedWatermarks
	case devicesink.Exclusive:
		return ExclusiveWatermarks
	case devicesink.PluginSink:
		if sampleRate == 0 {
			return Watermarks{}
		}
		low := float64(chunkFrames) * 1000 / float64(sampleRate)
		return Watermarks{LowMs: low, HighMs: low * 4}
	default:
		return Watermarks{}
	}
}

// BufferResumeStableTicks is the number of consecutive ticks buffered_ms
// must stay at or above the high watermark before Buffering resumes to
// Playing. A fixed constant: engineconfig.Config.ResumeStableTicks holds
// the same value but is not read here.
const BufferResumeStableTicks = 3

// MidFadeGainThreshold is the transition-target-gain ceiling below which a
// fade is considered "mid-fade" for resume-threshold purposes.
const MidFadeGainThreshold = 0.01

// ResumeThreshold returns the buffered-ms threshold required to resume
// from Buffering to Playing, given the current transition-target gain.
// While mid-fade (targetGain <= MidFadeGainThreshold), the threshold drops
// to max(low, 1) to avoid a mute-lock where playback never resumes
// because the fade itself is suppressing the signal that would otherwise
// demonstrate healthy buffering.
func ResumeThreshold(w Watermarks, targetGain float64) float64 {
	if targetGain <= MidFadeGainThreshold {
		if w.LowMs > 1 {
			return w.LowMs
		}
		return 1
	}
	return w.HighMs
}

// Gate tracks the consecutive-ticks-at-or-above-threshold counter needed
// to resume from Buffering to Playing.
type Gate struct {
	stableTicks int
}

// Observe records one tick's bufferedMs against the resume threshold for
// the given watermarks and transition-target gain. It returns true once
// BufferResumeStableTicks consecutive qualifying ticks have been observed;
// the internal counter resets on any non-qualifying tick.
func (g *Gate) Observe(bufferedMs float64, w Watermarks, targetGain float64) bool {
	threshold := ResumeThreshold(w, targetGain)
	if bufferedMs >= threshold {
		g.stableTicks++
	} else {
		g.stableTicks = 0
	}
	return g.stableTicks >= BufferResumeStableTicks
}

// Reset clears the stable-tick counter, e.g. on re-entering Buffering.
func (g *Gate) Reset() {
	g.stableTicks = 0
}
