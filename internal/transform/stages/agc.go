// Package stages provides the built-in transform/sink stage implementations:
// automatic gain control, noise gate, voice-activity elision, acoustic echo
// cancellation, and linear resampling. Each is grounded on the teacher's
// client/internal/{agc,vad,noisegate,aec} packages, generalized from
// mono-48kHz-only processors to arbitrary interleaved StreamSpecs.
package stages

import (
	"github.com/stellatune/engine/internal/audioblock"
	"github.com/stellatune/engine/internal/transform"
)

const (
	// agcDefaultTarget is the desired RMS level (linear, ~-14 dBFS).
	agcDefaultTarget = 0.20
	// agcMinGain limits attenuation to at most 20 dB.
	agcMinGain = 0.1
	// agcMaxGain allows up to +20 dB of amplification.
	agcMaxGain = 10.0
	// agcAttackCoeff controls how quickly gain is reduced when level exceeds target.
	agcAttackCoeff = 0.80
	// agcReleaseCoeff controls how quickly gain recovers after a loud transient.
	agcReleaseCoeff = 0.02
	// agcMinRMS suppresses gain updates on silent frames (below noise floor).
	agcMinRMS = 0.001
)

// AGC is a built-in automatic-gain-control transform stage. It continuously
// monitors the short-term RMS of each block and adjusts a multiplicative
// gain toward a target level using independent attack/release time
// constants, exactly as the teacher's agc.AGC, but over whatever channel
// count/sample rate Prepare negotiates (gain is a scalar applied uniformly
// across all channels).
type AGC struct {
	transform.BaseStage
	key    string
	target float64
	gain   float64
}

// NewAGC returns an AGC stage with the given unique key, unity gain, and
// agcDefaultTarget.
func NewAGC(key string) *AGC {
	return &AGC{key: key, target: agcDefaultTarget, gain: 1.0}
}

func (a *AGC) Key() string { return a.key }

func (a *AGC) Prepare(in audioblock.StreamSpec) (audioblock.StreamSpec, error) {
	return in, nil
}

// SetTarget sets the desired RMS level. level is in [0,100], mapped to
// [0.01, 0.50].
func (a *AGC) SetTarget(level int) {
	level = clampLevel(level)
	a.target = 0.01 + float64(level)/100.0*0.49
}

// Gain returns the current linear gain multiplier (informational).
func (a *AGC) Gain() float64 { return a.gain }

// Reset resets gain to unity without changing the target.
func (a *AGC) Reset() { a.gain = 1.0 }

func (a *AGC) Process(block *audioblock.Block) (transform.Status, error) {
	frame := block.Samples
	if len(frame) == 0 {
		return transform.StatusOK, nil
	}

	rms := float64(audioblock.RMS(frame))

	for i, s := range frame {
		frame[i] = audioblock.Clamp(s * float32(a.gain))
	}

	if rms < agcMinRMS {
		return transform.StatusOK, nil
	}

	desired := a.target / rms
	if desired < agcMinGain {
		desired = agcMinGain
	} else if desired > agcMaxGain {
		desired = agcMaxGain
	}

	coeff := agcReleaseCoeff
	if desired < a.gain {
		coeff = agcAttackCoeff
	}
	a.gain += coeff * (desired - a.gain)

	return transform.StatusOK, nil
}

// ApplyControl accepts a float64 gain-target override (in linear RMS, not
// the [0,100] UI scale) or an int level on the [0,100] scale via SetTarget
// semantics; anything else is ignored.
func (a *AGC) ApplyControl(payload any) error {
	switch v := payload.(type) {
	case int:
		a.SetTarget(v)
	case float64:
		a.target = v
	}
	return nil
}

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}
