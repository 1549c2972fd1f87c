package devicesink

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stellatune/engine/internal/audioblock"
	"github.com/stellatune/engine/internal/ringbuffer"
)

const (
	// ringCapacityMS is the internal ring's target buffering depth.
	ringCapacityMS = 40
	// writeBackpressureTimeout bounds how long Write will sleep-poll for
	// ring space before dropping the remainder.
	writeBackpressureTimeout = 30 * time.Millisecond
	// writePollGranularity is the sleep-poll step used by Write and Flush.
	writePollGranularity = time.Millisecond
	// flushTimeout bounds how long Flush waits for the ring to drain.
	flushTimeout = 350 * time.Millisecond
)

// StreamBackend opens and closes a platform (or virtual) output stream.
// Open is given a pull callback the backend's native audio thread must
// invoke for every buffer of samples it needs; the callback fills buf in
// place.
type StreamBackend interface {
	Open(spec audioblock.StreamSpec, route Route, pull func(buf []float32)) error
	Close() error
}

// Adapter is the Device Sink Adapter: it owns the platform output stream
// (via a StreamBackend) and the ring buffer bridging producer-side Write
// calls to the backend's pull callback. Grounded on the teacher's
// AudioEngine.Start open-stream/goroutine sequencing and AudioEngine.Stop
// teardown ordering in client/audio.go, generalized from a single
// hardwired stream to the prepare/write/flush/sync_runtime_control/stop
// contract.
type Adapter struct {
	newBackend func() StreamBackend
	control    *Control

	mu       sync.Mutex
	backend  StreamBackend
	ring     *ringbuffer.Ring
	spec     audioblock.StreamSpec
	prepared bool

	cbErrMu sync.Mutex
	cbErr   error

	Counters Counters
}

// New returns an Adapter that opens a fresh StreamBackend (via newBackend)
// on each prepare/reconfigure, coordinated through control for route
// selection.
func New(newBackend func() StreamBackend, control *Control) *Adapter {
	return &Adapter{newBackend: newBackend, control: control}
}

// Prepare stops any existing stream, allocates an internal ring sized for
// ringCapacityMS at the given spec, and opens the platform stream on the
// currently-desired route.
func (a *Adapter) Prepare(spec audioblock.StreamSpec) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()

	capacity := ringbuffer.Capacity(spec.SampleRate, spec.Channels, ringCapacityMS)
	a.ring = ringbuffer.New(capacity)
	a.spec = spec

	route, revision := a.control.Desired()
	backend := a.newBackend()
	a.Counters.ReconfigureAttempts.Add(1)
	if err := backend.Open(spec, route, a.pullCallback); err != nil {
		a.Counters.ReconfigureFailures.Add(1)
		return fmt.Errorf("open backend: %w", err)
	}
	a.backend = backend
	a.prepared = true
	a.Counters.ReconfigureSuccesses.Add(1)
	a.control.markApplied(revision)
	log.Printf("[devicesink] prepared spec=%s route=%s", spec, route.Backend)
	return nil
}

// pullCallback is invoked by the backend's native audio thread. It pops up
// to len(buf) samples from the ring, zero-fills any remainder, and records
// the requested/provided counters.
func (a *Adapter) pullCallback(buf []float32) {
	requested := len(buf)
	a.mu.Lock()
	ring := a.ring
	a.mu.Unlock()
	if ring == nil {
		audioblock.Zero(buf)
		return
	}

	provided := ring.PopSlice(buf)
	if provided < requested {
		audioblock.Zero(buf[provided:])
		a.Counters.UnderrunCallbacks.Add(1)
	}
	a.Counters.CallbackRequestedSamples.Add(uint64(requested))
	a.Counters.CallbackProvidedSamples.Add(uint64(provided))
}

// ReportCallbackError records an asynchronous error surfaced by the
// backend's native callback (e.g. a stream-closed notification). It is
// consumed by the next Flush or SyncRuntimeControl call.
func (a *Adapter) ReportCallbackError(err error) {
	a.Counters.CallbackErrors.Add(1)
	a.cbErrMu.Lock()
	a.cbErr = err
	a.cbErrMu.Unlock()
}

func (a *Adapter) takeCallbackError() error {
	a.cbErrMu.Lock()
	defer a.cbErrMu.Unlock()
	err := a.cbErr
	a.cbErr = nil
	return err
}

func (a *Adapter) peekCallbackError() error {
	a.cbErrMu.Lock()
	defer a.cbErrMu.Unlock()
	return a.cbErr
}

// Write bulk-pushes block's samples into the ring. If the ring is full it
// sleep-polls up to writeBackpressureTimeout at writePollGranularity; any
// samples still unwritten after the timeout are dropped and counted.
func (a *Adapter) Write(block *audioblock.Block) {
	samples := block.Samples
	a.mu.Lock()
	ring := a.ring
	a.mu.Unlock()
	if ring == nil {
		a.Counters.DroppedSamples.Add(uint64(len(samples)))
		return
	}

	written := 0
	deadline := time.Now().Add(writeBackpressureTimeout)
	for written < len(samples) {
		n := ring.PushSlice(samples[written:])
		written += n
		if written >= len(samples) {
			break
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(writePollGranularity)
	}

	a.Counters.WrittenSamples.Add(uint64(written))
	if written < len(samples) {
		a.Counters.DroppedSamples.Add(uint64(len(samples) - written))
	}
}

// Flush blocks up to flushTimeout waiting for ring occupancy to drain, then
// surfaces any callback error reported since the last Flush.
func (a *Adapter) Flush() error {
	a.mu.Lock()
	ring := a.ring
	a.mu.Unlock()

	if ring != nil {
		deadline := time.Now().Add(flushTimeout)
		for ring.OccupiedLen() > 0 && time.Now().Before(deadline) {
			time.Sleep(writePollGranularity)
		}
	}
	return a.takeCallbackError()
}

// SyncRuntimeControl tears down and rebuilds the stream if a callback error
// was reported or the desired route revision differs from the applied
// revision. On rebuild failure, the callback error (if any) and the
// reconfigure error are concatenated.
func (a *Adapter) SyncRuntimeControl() error {
	cbErr := a.peekCallbackError()
	needsReconfigure := a.control.NeedsReconfigure()
	if cbErr == nil && !needsReconfigure {
		return nil
	}

	a.mu.Lock()
	spec := a.spec
	prepared := a.prepared
	a.mu.Unlock()
	if !prepared {
		return cbErr
	}

	if err := a.Prepare(spec); err != nil {
		a.takeCallbackError()
		if cbErr != nil {
			return fmt.Errorf("%v; sink reconfigure failed: %w", cbErr, err)
		}
		return fmt.Errorf("sink reconfigure failed: %w", err)
	}
	a.takeCallbackError()
	return nil
}

// BufferedMs reports the ring's current occupancy converted to
// milliseconds at the prepared spec. Returns 0 before Prepare has run.
func (a *Adapter) BufferedMs() float64 {
	a.mu.Lock()
	ring := a.ring
	spec := a.spec
	a.mu.Unlock()
	if ring == nil || spec.SampleRate == 0 || spec.Channels == 0 {
		return 0
	}
	frames := float64(ring.OccupiedLen()) / float64(spec.Channels)
	return frames * 1000 / float64(spec.SampleRate)
}

// Stop drops the producer, closes the output handle, clears the prepared
// spec and any pending callback error.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopLocked()
}

func (a *Adapter) stopLocked() error {
	var err error
	if a.backend != nil {
		err = a.backend.Close()
		a.backend = nil
	}
	a.ring = nil
	a.prepared = false
	a.cbErrMu.Lock()
	a.cbErr = nil
	a.cbErrMu.Unlock()
	return err
}
