package stages

import (
	"sync"

	"github.com/stellatune/engine/internal/audioblock"
	"github.com/stellatune/engine/internal/transform"
)

const (
	// aecDefaultDelayMs is the bulk delay in milliseconds assumed between
	// playback and the echo arriving back at a live input. Prepare converts
	// it to samples at the prepared rate and channel count (40 ms at 48 kHz
	// mono = 1920 samples).
	aecDefaultDelayMs = 40
	// aecDefaultTapMs is the NLMS filter length in milliseconds.
	aecDefaultTapMs = 10
	// aecDefaultStep is the NLMS step size mu (0 < mu < 2).
	aecDefaultStep = 0.1
)

// AEC is a Normalized Least Mean Squares acoustic echo canceller for use
// when a SourceCatalog plugin captures a live input alongside engine
// playback (e.g. a "listen along" microphone mix). Grounded on the
// teacher's client/internal/aec, generalized from a fixed 48 kHz/960-sample
// frame assumption to whatever spec Prepare negotiates.
//
// FeedFarEnd must be called by the mixer with the post-mix output on every
// cycle; Process is called on the live-input block before any other
// pre_mix processing.
type AEC struct {
	transform.BaseStage
	key string

	mu      sync.Mutex
	enabled bool

	weights []float64
	tapLen  int
	step    float64

	farBuf    []float32
	farHead   int
	bufLen    int
	delayLen  int
	frameSize int
}

// NewAEC returns an enabled AEC stage with the given unique key. Call
// Prepare before use so the internal buffers are sized to the negotiated
// spec.
func NewAEC(key string) *AEC {
	return &AEC{key: key, enabled: true, step: aecDefaultStep}
}

func (a *AEC) Key() string { return a.key }

func (a *AEC) Prepare(in audioblock.StreamSpec) (audioblock.StreamSpec, error) {
	frameSize := int(in.SampleRate/50) * int(in.Channels) // ~20ms frame, scaled by channel count
	if frameSize <= 0 {
		frameSize = int(in.Channels)
	}
	delayLen := int(in.SampleRate) * aecDefaultDelayMs / 1000 * int(in.Channels)
	tapLen := int(in.SampleRate) * aecDefaultTapMs / 1000 * int(in.Channels)
	if tapLen <= 0 {
		tapLen = int(in.Channels)
	}
	bufLen := frameSize + delayLen + tapLen

	a.mu.Lock()
	a.frameSize = frameSize
	a.delayLen = delayLen
	a.tapLen = tapLen
	a.bufLen = bufLen
	a.weights = make([]float64, tapLen)
	a.farBuf = make([]float32, bufLen)
	a.farHead = 0
	a.mu.Unlock()

	return in, nil
}

// SetEnabled enables or disables echo cancellation, resetting filter
// weights on enable so it adapts cleanly from scratch.
func (a *AEC) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	if enabled {
		for i := range a.weights {
			a.weights[i] = 0
		}
	}
	a.mu.Unlock()
}

// FeedFarEnd stores the most recent post-mix output as the far-end
// reference. Must be called once per mix cycle from the mixer stage.
func (a *AEC) FeedFarEnd(frame []float32) {
	a.mu.Lock()
	for _, s := range frame {
		if a.bufLen == 0 {
			break
		}
		a.farBuf[a.farHead] = s
		a.farHead = (a.farHead + 1) % a.bufLen
	}
	a.mu.Unlock()
}

func (a *AEC) Process(block *audioblock.Block) (transform.Status, error) {
	frame := block.Samples
	a.mu.Lock()
	if !a.enabled || a.bufLen == 0 {
		a.mu.Unlock()
		return transform.StatusOK, nil
	}

	refLen := a.frameSize + a.tapLen - 1
	ref := make([]float32, refLen)
	startIdx := a.farHead - a.frameSize - a.delayLen - a.tapLen + 1
	for j := 0; j < refLen; j++ {
		idx := ((startIdx+j)%a.bufLen + 3*a.bufLen) % a.bufLen
		ref[j] = a.farBuf[idx]
	}
	tapLen := a.tapLen
	step := a.step
	weights := a.weights
	a.mu.Unlock()

	for i := range frame {
		if i+tapLen-1 >= len(ref) {
			break
		}
		refBase := i + tapLen - 1

		var y, powerSum float64
		for k := 0; k < tapLen; k++ {
			x := float64(ref[refBase-k])
			y += weights[k] * x
			powerSum += x * x
		}

		e := float64(frame[i]) - y

		if powerSum > 1e-10 {
			upd := step * e / powerSum
			for k := 0; k < tapLen; k++ {
				weights[k] += upd * float64(ref[refBase-k])
			}
		}

		frame[i] = float32(e)
	}

	return transform.StatusOK, nil
}

func (a *AEC) ApplyControl(payload any) error {
	if enabled, ok := payload.(bool); ok {
		a.SetEnabled(enabled)
	}
	return nil
}
