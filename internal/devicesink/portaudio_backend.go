package devicesink

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/stellatune/engine/internal/audioblock"
)

// portAudioFramesPerBuffer is the native callback block size requested from
// PortAudio, independent of the ring's own capacity.
const portAudioFramesPerBuffer = 960

// PortAudioBackend implements StreamBackend for the Shared and Exclusive routes,
// grounded directly on the teacher's AudioEngine.Start stream-open sequence
// in client/audio.go: resolve the device, open with the matching latency
// parameters (default for Shared, device-specific low latency for
// Exclusive), then Start.
type PortAudioBackend struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32

	running atomic.Bool
	pull    func(buf []float32)

	stopCh chan struct{}
	wg     sync.WaitGroup

	onError func(error)
}

// NewPortAudioBackend returns a PortAudioBackend. onError, if non-nil, is
// invoked when the native read/write loop fails asynchronously — callers
// typically wire this to Adapter.ReportCallbackError.
func NewPortAudioBackend(onError func(error)) *PortAudioBackend {
	return &PortAudioBackend{onError: onError}
}

// Open resolves the route to a device and latency profile, opens and
// starts a PortAudio output stream at spec, and begins a goroutine that
// repeatedly calls pull to fill the native write buffer.
func (p *PortAudioBackend) Open(spec audioblock.StreamSpec, route Route, pull func(buf []float32)) error {
	devices, err := portaudio.Devices()
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	dev, latency, err := resolveOutputDevice(devices, route)
	if err != nil {
		return err
	}

	buf := make([]float32, portAudioFramesPerBuffer*int(spec.Channels))
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: int(spec.Channels),
			Latency:  latency,
		},
		SampleRate:      float64(spec.SampleRate),
		FramesPerBuffer: portAudioFramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start stream: %w", err)
	}

	p.mu.Lock()
	p.stream = stream
	p.buf = buf
	p.pull = pull
	p.stopCh = make(chan struct{})
	p.mu.Unlock()
	p.running.Store(true)

	p.wg.Add(1)
	go p.writeLoop()

	log.Printf("[devicesink] portaudio stream opened device=%s route=%s spec=%s", dev.Name, route.Backend, spec)
	return nil
}

func (p *PortAudioBackend) writeLoop() {
	defer p.wg.Done()
	for p.running.Load() {
		p.pull(p.buf)
		if err := p.stream.Write(); err != nil {
			if p.running.Load() && p.onError != nil {
				p.onError(fmt.Errorf("portaudio write: %w", err))
			}
			return
		}
	}
}

// Close stops and closes the stream. Ordering mirrors the teacher's
// AudioEngine.Stop: stop the stream first so the blocking Write call in
// writeLoop returns, wait for the goroutine to exit, then close.
func (p *PortAudioBackend) Close() error {
	if !p.running.CompareAndSwap(true, false) {
		return nil
	}
	p.mu.Lock()
	stream := p.stream
	stopCh := p.stopCh
	p.mu.Unlock()

	if stream != nil {
		stream.Stop()
	}
	if stopCh != nil {
		close(stopCh)
	}
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		err := p.stream.Close()
		p.stream = nil
		return err
	}
	return nil
}

// resolveOutputDevice maps a Route to a PortAudio device and latency
// profile. Shared uses the platform default device at its default (high)
// latency; Exclusive requires a matching device_id and uses that device's
// own low latency parameters.
func resolveOutputDevice(devices []*portaudio.DeviceInfo, route Route) (*portaudio.DeviceInfo, time.Duration, error) {
	if route.Backend == Exclusive && route.DeviceID != "" {
		for _, d := range devices {
			if d.Name == route.DeviceID && d.MaxOutputChannels > 0 {
				return d, d.DefaultLowOutputLatency, nil
			}
		}
		return nil, 0, fmt.Errorf("exclusive device %q not found", route.DeviceID)
	}

	dev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return nil, 0, fmt.Errorf("default output device: %w", err)
	}
	return dev, dev.DefaultHighOutputLatency, nil
}
