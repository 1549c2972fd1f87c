package devicesink

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stellatune/engine/internal/audioblock"
)

// fakeBackend is an in-memory StreamBackend used for adapter tests: it never
// touches real hardware, but drives the pull callback on a timer so Write
// and the ring buffer exercise real concurrent handoff.
type fakeBackend struct {
	mu       sync.Mutex
	pull     func(buf []float32)
	stopCh   chan struct{}
	wg       sync.WaitGroup
	openErr  error
	bufSize  int
	pullRate time.Duration
}

func newFakeBackend(openErr error, bufSize int, pullRate time.Duration) *fakeBackend {
	return &fakeBackend{openErr: openErr, bufSize: bufSize, pullRate: pullRate}
}

func (f *fakeBackend) Open(spec audioblock.StreamSpec, route Route, pull func(buf []float32)) error {
	if f.openErr != nil {
		return f.openErr
	}
	f.mu.Lock()
	f.pull = pull
	f.stopCh = make(chan struct{})
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		buf := make([]float32, f.bufSize)
		ticker := time.NewTicker(f.pullRate)
		defer ticker.Stop()
		for {
			select {
			case <-f.stopCh:
				return
			case <-ticker.C:
				pull(buf)
			}
		}
	}()
	return nil
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	stopCh := f.stopCh
	f.mu.Unlock()
	if stopCh != nil {
		close(stopCh)
	}
	f.wg.Wait()
	return nil
}

func TestAdapterPrepareOpensBackendAndMarksApplied(t *testing.T) {
	control := NewControl()
	adapter := New(func() StreamBackend { return newFakeBackend(nil, 128, time.Hour) }, control)

	spec := audioblock.StreamSpec{SampleRate: 48000, Channels: 2}
	if err := adapter.Prepare(spec); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if adapter.control.NeedsReconfigure() {
		t.Fatal("expected applied revision to match desired after successful prepare")
	}
	if adapter.Counters.ReconfigureSuccesses.Load() != 1 {
		t.Fatalf("ReconfigureSuccesses = %d, want 1", adapter.Counters.ReconfigureSuccesses.Load())
	}
}

func TestAdapterPrepareFailureCountsFailureAndLeavesUnapplied(t *testing.T) {
	control := NewControl()
	openErr := errors.New("boom")
	adapter := New(func() StreamBackend { return newFakeBackend(openErr, 128, time.Hour) }, control)

	if err := adapter.Prepare(audioblock.StreamSpec{SampleRate: 48000, Channels: 1}); err == nil {
		t.Fatal("expected error from Prepare")
	}
	if adapter.Counters.ReconfigureFailures.Load() != 1 {
		t.Fatalf("ReconfigureFailures = %d, want 1", adapter.Counters.ReconfigureFailures.Load())
	}
}

func TestAdapterWriteThenPullRoundTrips(t *testing.T) {
	control := NewControl()
	adapter := New(func() StreamBackend { return newFakeBackend(nil, 4, time.Millisecond) }, control)
	if err := adapter.Prepare(audioblock.StreamSpec{SampleRate: 8000, Channels: 1}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer adapter.Stop()

	block := &audioblock.Block{Channels: 1, Samples: []float32{0.1, 0.2, 0.3, 0.4}}
	adapter.Write(block)

	deadline := time.Now().Add(500 * time.Millisecond)
	for adapter.Counters.CallbackProvidedSamples.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if adapter.Counters.CallbackProvidedSamples.Load() == 0 {
		t.Fatal("expected pull callback to have consumed some samples")
	}
	if adapter.Counters.WrittenSamples.Load() != 4 {
		t.Fatalf("WrittenSamples = %d, want 4", adapter.Counters.WrittenSamples.Load())
	}
}

func TestAdapterWriteDropsOnBackpressure(t *testing.T) {
	control := NewControl()
	// pullRate is effectively never, so the ring never drains.
	adapter := New(func() StreamBackend { return newFakeBackend(nil, 4, time.Hour) }, control)
	if err := adapter.Prepare(audioblock.StreamSpec{SampleRate: 1, Channels: 1}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer adapter.Stop()

	big := make([]float32, 4096)
	adapter.Write(&audioblock.Block{Channels: 1, Samples: big})

	if adapter.Counters.DroppedSamples.Load() == 0 {
		t.Fatal("expected some samples dropped once the ring fills and backpressure times out")
	}
}

func TestAdapterSyncRuntimeControlReconfiguresOnRouteChange(t *testing.T) {
	control := NewControl()
	adapter := New(func() StreamBackend { return newFakeBackend(nil, 128, time.Hour) }, control)
	if err := adapter.Prepare(audioblock.StreamSpec{SampleRate: 48000, Channels: 1}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer adapter.Stop()

	control.SetRoute(Route{Backend: Exclusive, DeviceID: "dev-a"})
	if !control.NeedsReconfigure() {
		t.Fatal("expected NeedsReconfigure after SetRoute to a different route")
	}

	if err := adapter.SyncRuntimeControl(); err != nil {
		t.Fatalf("SyncRuntimeControl: %v", err)
	}
	if control.NeedsReconfigure() {
		t.Fatal("expected revisions to match after successful SyncRuntimeControl")
	}
}

func TestAdapterSyncRuntimeControlConcatenatesCallbackAndReconfigureErrors(t *testing.T) {
	control := NewControl()
	calls := 0
	adapter := New(func() StreamBackend {
		calls++
		if calls == 1 {
			return newFakeBackend(nil, 128, time.Hour)
		}
		return newFakeBackend(errors.New("reopen failed"), 128, time.Hour)
	}, control)
	if err := adapter.Prepare(audioblock.StreamSpec{SampleRate: 48000, Channels: 1}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer adapter.Stop()

	adapter.ReportCallbackError(errors.New("stream died"))
	err := adapter.SyncRuntimeControl()
	if err == nil {
		t.Fatal("expected error from SyncRuntimeControl")
	}
}

func TestAdapterFlushWaitsForDrainAndSurfacesCallbackError(t *testing.T) {
	control := NewControl()
	adapter := New(func() StreamBackend { return newFakeBackend(nil, 128, time.Millisecond) }, control)
	if err := adapter.Prepare(audioblock.StreamSpec{SampleRate: 48000, Channels: 1}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	defer adapter.Stop()

	adapter.ReportCallbackError(errors.New("async failure"))
	err := adapter.Flush()
	if err == nil {
		t.Fatal("expected Flush to surface the reported callback error")
	}

	if err := adapter.Flush(); err != nil {
		t.Fatalf("expected callback error to be consumed by the first Flush, got: %v", err)
	}
}

func TestAdapterStopClearsState(t *testing.T) {
	control := NewControl()
	adapter := New(func() StreamBackend { return newFakeBackend(nil, 128, time.Hour) }, control)
	if err := adapter.Prepare(audioblock.StreamSpec{SampleRate: 48000, Channels: 1}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := adapter.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	block := &audioblock.Block{Channels: 1, Samples: []float32{0.1, 0.2}}
	adapter.Write(block)
	if adapter.Counters.DroppedSamples.Load() != 2 {
		t.Fatalf("expected writes after Stop to be dropped, DroppedSamples = %d", adapter.Counters.DroppedSamples.Load())
	}
}
