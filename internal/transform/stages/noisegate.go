package stages

import (
	"github.com/stellatune/engine/internal/audioblock"
	"github.com/stellatune/engine/internal/transform"
)

const (
	// gateDefaultThreshold is the RMS level below which audio is gated (~-40 dBFS).
	gateDefaultThreshold = float32(0.01)
	// gateDefaultHold is the number of blocks to keep the gate open after
	// the signal drops below threshold.
	gateDefaultHold = 10
)

// NoiseGate is a hard noise gate: blocks with RMS below threshold are
// zeroed entirely once a hold period expires. Grounded on the teacher's
// noisegate.Gate, unchanged in algorithm, generalized to any channel count.
type NoiseGate struct {
	transform.BaseStage
	key       string
	threshold float32
	hold      int
	remaining int
	enabled   bool
	open      bool
}

// NewNoiseGate returns an enabled NoiseGate stage with default threshold/hold.
func NewNoiseGate(key string) *NoiseGate {
	return &NoiseGate{key: key, threshold: gateDefaultThreshold, hold: gateDefaultHold, enabled: true}
}

func (g *NoiseGate) Key() string { return g.key }

func (g *NoiseGate) Prepare(in audioblock.StreamSpec) (audioblock.StreamSpec, error) {
	return in, nil
}

// SetEnabled enables or disables the gate. When disabled, Process is a no-op.
func (g *NoiseGate) SetEnabled(enabled bool) {
	g.enabled = enabled
	if !enabled {
		g.remaining = 0
		g.open = false
	}
}

// SetThreshold sets the RMS gate threshold. level is in [0,100], mapped to
// [0.001, 0.10].
func (g *NoiseGate) SetThreshold(level int) {
	level = clampLevel(level)
	g.threshold = 0.001 + float32(level)/100.0*0.099
}

// IsOpen reports whether the gate is currently passing audio.
func (g *NoiseGate) IsOpen() bool { return g.open }

func (g *NoiseGate) Process(block *audioblock.Block) (transform.Status, error) {
	frame := block.Samples
	rms := audioblock.RMS(frame)

	if !g.enabled {
		g.open = true
		return transform.StatusOK, nil
	}

	if rms >= g.threshold {
		g.remaining = g.hold
		g.open = true
		return transform.StatusOK, nil
	}

	if g.remaining > 0 {
		g.remaining--
		g.open = true
		return transform.StatusOK, nil
	}

	audioblock.Zero(frame)
	g.open = false
	return transform.StatusOK, nil
}

func (g *NoiseGate) ApplyControl(payload any) error {
	switch v := payload.(type) {
	case bool:
		g.SetEnabled(v)
	case int:
		g.SetThreshold(v)
	}
	return nil
}
