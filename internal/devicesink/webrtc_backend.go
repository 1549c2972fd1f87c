package devicesink

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/stellatune/engine/internal/audioblock"
)

// webrtcFrameMS is the Opus frame duration used for each outgoing sample,
// matching the teacher's 20 ms frame convention in client/audio.go.
const webrtcFrameMS = 20

// WebRTCBackend implements StreamBackend for the PluginSink route: rather than
// writing to a local device, it Opus-encodes negotiated PCM onto a
// pion/webrtc local track so the engine can deliver audio to a remote
// peer. This rescues a dependency the teacher declared but never wired —
// here it is a first-class alternate sink, not a plugin, demonstrating
// that the PluginSink contract is satisfiable by host code too.
type WebRTCBackend struct {
	track *webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	encoder *opus.Encoder
	spec    audioblock.StreamSpec

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	onError func(error)
}

// NewWebRTCBackend returns a backend that writes Opus-encoded samples to
// track. onError mirrors PortAudioBackend's async error reporting hook.
func NewWebRTCBackend(track *webrtc.TrackLocalStaticSample, onError func(error)) *WebRTCBackend {
	return &WebRTCBackend{track: track, onError: onError}
}

// Open negotiates the sample format (this backend always accepts f32 since
// Opus encoding happens internally), builds an Opus encoder for spec, and
// starts a goroutine that pulls frames and writes them to the track.
func (w *WebRTCBackend) Open(spec audioblock.StreamSpec, route Route, pull func(buf []float32)) error {
	if _, ok := NegotiateFormat(func(f SampleFormat) bool {
		return f == FormatF32
	}); !ok {
		return fmt.Errorf("webrtc backend: no supported sample format")
	}

	enc, err := opus.NewEncoder(int(spec.SampleRate), int(spec.Channels), opus.AppAudio)
	if err != nil {
		return fmt.Errorf("webrtc backend: new opus encoder: %w", err)
	}

	w.mu.Lock()
	w.encoder = enc
	w.spec = spec
	w.stopCh = make(chan struct{})
	w.mu.Unlock()
	w.running.Store(true)

	frameSamples := int(spec.SampleRate) * webrtcFrameMS / 1000 * int(spec.Channels)

	w.wg.Add(1)
	go w.writeLoop(pull, frameSamples)

	log.Printf("[devicesink] webrtc track sink opened spec=%s", spec)
	return nil
}

func (w *WebRTCBackend) writeLoop(pull func(buf []float32), frameSamples int) {
	defer w.wg.Done()
	buf := make([]float32, frameSamples)
	pcm := make([]int16, frameSamples)
	opusBuf := make([]byte, 4000)

	ticker := time.NewTicker(webrtcFrameMS * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
		}
		if !w.running.Load() {
			return
		}

		pull(buf)
		for i, s := range buf {
			pcm[i] = int16(audioblock.Clamp(s) * 32767)
		}

		w.mu.Lock()
		enc := w.encoder
		w.mu.Unlock()
		if enc == nil {
			continue
		}

		n, err := enc.Encode(pcm, opusBuf)
		if err != nil {
			if w.onError != nil {
				w.onError(fmt.Errorf("webrtc opus encode: %w", err))
			}
			continue
		}

		sample := media.Sample{Data: append([]byte(nil), opusBuf[:n]...), Duration: webrtcFrameMS * time.Millisecond}
		if err := w.track.WriteSample(sample); err != nil {
			if w.running.Load() && w.onError != nil {
				w.onError(fmt.Errorf("webrtc track write: %w", err))
			}
			return
		}
	}
}

// Close stops the write loop. The underlying track is owned by the caller
// (typically the signalling layer that created the peer connection) and is
// not closed here.
func (w *WebRTCBackend) Close() error {
	if !w.running.CompareAndSwap(true, false) {
		return nil
	}
	w.mu.Lock()
	stopCh := w.stopCh
	w.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
	}
	w.wg.Wait()
	return nil
}
