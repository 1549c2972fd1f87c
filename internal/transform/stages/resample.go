package stages

import (
	"github.com/stellatune/engine/internal/audioblock"
	"github.com/stellatune/engine/internal/transform"
)

// Resample is a linear-interpolation sample-rate and channel-count
// converter. It has no teacher analogue — the teacher's voice pipeline
// runs its whole path at a single fixed 48 kHz mono format — but its
// Prepare/Process shape follows the same stage contract as every other
// built-in, and its channel up/down-mix follows the teacher mixer's
// additive-then-clamp approach in AudioEngine.playbackLoop.
type Resample struct {
	transform.BaseStage
	key      string
	in       audioblock.StreamSpec
	out      audioblock.StreamSpec
	inputPos float64 // fractional input frame position for the next output frame
}

// NewResample returns a stage that converts its declared output spec `out`
// from whatever input spec Prepare is called with.
func NewResample(key string, out audioblock.StreamSpec) *Resample {
	return &Resample{key: key, out: out}
}

func (r *Resample) Key() string { return r.key }

func (r *Resample) Prepare(in audioblock.StreamSpec) (audioblock.StreamSpec, error) {
	r.in = in
	if r.out.SampleRate == 0 {
		r.out.SampleRate = in.SampleRate
	}
	if r.out.Channels == 0 {
		r.out.Channels = in.Channels
	}
	r.inputPos = 0
	return r.out, nil
}

// Process converts block in place from r.in to r.out. When the spec is
// unchanged (same rate and channel count) this is a no-op.
func (r *Resample) Process(block *audioblock.Block) (transform.Status, error) {
	if r.in.Equal(r.out) {
		return transform.StatusOK, nil
	}

	mixed := mixChannels(block.Samples, int(block.Channels), int(r.out.Channels))
	resampled := resampleRate(mixed, int(r.out.Channels), r.in.SampleRate, r.out.SampleRate, &r.inputPos)

	block.Channels = r.out.Channels
	block.Samples = resampled
	return transform.StatusOK, nil
}

// mixChannels converts an interleaved buffer from inCh to outCh channels.
// Upmixing duplicates the last source channel into the new ones;
// downmixing writes the average of all source channels to every output
// channel —
// the same additive-then-normalize shape as the teacher's multi-sender
// mixdown in playbackLoop, applied across channels instead of senders.
func mixChannels(samples []float32, inCh, outCh int) []float32 {
	if inCh == outCh || inCh == 0 || outCh == 0 {
		return samples
	}
	frames := len(samples) / inCh
	out := make([]float32, frames*outCh)
	for f := 0; f < frames; f++ {
		inBase := f * inCh
		outBase := f * outCh
		if outCh < inCh {
			// Downmix: average all input channels into each output channel.
			var sum float32
			for c := 0; c < inCh; c++ {
				sum += samples[inBase+c]
			}
			avg := audioblock.Clamp(sum / float32(inCh))
			for c := 0; c < outCh; c++ {
				out[outBase+c] = avg
			}
		} else {
			// Upmix: copy available channels, duplicate the last for the rest.
			for c := 0; c < outCh; c++ {
				src := c
				if src >= inCh {
					src = inCh - 1
				}
				out[outBase+c] = samples[inBase+src]
			}
		}
	}
	return out
}

// resampleRate performs linear-interpolation resampling of an interleaved
// buffer with `channels` channels from inRate to outRate. pos carries the
// fractional input-frame cursor across calls so block boundaries do not
// introduce audible discontinuities.
func resampleRate(samples []float32, channels int, inRate, outRate uint32, pos *float64) []float32 {
	if inRate == outRate || channels == 0 || inRate == 0 {
		return samples
	}
	inFrames := len(samples) / channels
	if inFrames == 0 {
		return samples
	}
	ratio := float64(inRate) / float64(outRate)
	var out []float32
	p := *pos
	for {
		idx := int(p)
		if idx+1 >= inFrames {
			break
		}
		frac := float32(p - float64(idx))
		for c := 0; c < channels; c++ {
			a := samples[idx*channels+c]
			b := samples[(idx+1)*channels+c]
			out = append(out, a+(b-a)*frac)
		}
		p += ratio
	}
	*pos = p - float64(inFrames-1)
	if *pos < 0 {
		*pos = 0
	}
	return out
}
