package stages

import (
	"github.com/stellatune/engine/internal/audioblock"
	"github.com/stellatune/engine/internal/transform"
)

const (
	// vadDefaultThreshold is the RMS level below which a block is silence (~-46 dBFS).
	vadDefaultThreshold = float32(0.005)
	// vadDefaultHangover is the number of silent blocks to keep passing audio
	// through after speech ends, preventing abrupt mid-word cut-offs.
	vadDefaultHangover = 20
)

// SilenceElision is a voice-activity-gated stage: unlike a network sender
// deciding whether to transmit (the teacher's original use in
// client/internal/vad), here there is no network to economize on, so the
// stage instead zeroes elided blocks in place — a generic noise-floor trim
// usable anywhere in the graph. Disabled by default.
type SilenceElision struct {
	transform.BaseStage
	key       string
	threshold float32
	hangover  int
	remaining int
	enabled   bool
}

// NewSilenceElision returns a disabled SilenceElision stage with default
// threshold/hangover.
func NewSilenceElision(key string) *SilenceElision {
	return &SilenceElision{key: key, threshold: vadDefaultThreshold, hangover: vadDefaultHangover}
}

func (v *SilenceElision) Key() string { return v.key }

func (v *SilenceElision) Prepare(in audioblock.StreamSpec) (audioblock.StreamSpec, error) {
	return in, nil
}

// SetEnabled enables or disables elision.
func (v *SilenceElision) SetEnabled(enabled bool) {
	v.enabled = enabled
	if !enabled {
		v.remaining = 0
	}
}

// SetThreshold sets the RMS silence threshold. level is in [0,100], mapped
// to [0.001, 0.05].
func (v *SilenceElision) SetThreshold(level int) {
	level = clampLevel(level)
	v.threshold = 0.001 + float32(level)/100.0*0.049
}

func (v *SilenceElision) Process(block *audioblock.Block) (transform.Status, error) {
	if !v.enabled {
		return transform.StatusOK, nil
	}
	rms := audioblock.RMS(block.Samples)
	if rms > v.threshold {
		v.remaining = v.hangover
		return transform.StatusOK, nil
	}
	if v.remaining > 0 {
		v.remaining--
		return transform.StatusOK, nil
	}
	audioblock.Zero(block.Samples)
	return transform.StatusOK, nil
}

func (v *SilenceElision) ApplyControl(payload any) error {
	switch p := payload.(type) {
	case bool:
		v.SetEnabled(p)
	case int:
		v.SetThreshold(p)
	}
	return nil
}
