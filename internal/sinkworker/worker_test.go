package sinkworker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stellatune/engine/internal/audioblock"
	"github.com/stellatune/engine/internal/transform"
)

type fakeSink struct {
	transform.BaseStage
	mu       sync.Mutex
	written  []*audioblock.Block
	status   transform.Status
	writeErr error
	flushed  int
	stopped  int
	synced   int
}

func (f *fakeSink) Key() string { return "fake" }
func (f *fakeSink) Prepare(in audioblock.StreamSpec) (audioblock.StreamSpec, error) {
	return in, nil
}
func (f *fakeSink) Write(b *audioblock.Block) (transform.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, b)
	return f.status, f.writeErr
}
func (f *fakeSink) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed++
	return nil
}
func (f *fakeSink) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}
func (f *fakeSink) SyncRuntimeControl() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced++
	return nil
}

func (f *fakeSink) writtenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

// waitRunning blocks until w's Run goroutine has marked the worker running.
func waitRunning(t *testing.T, w *Worker) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !w.running.Load() {
		if time.Now().After(deadline) {
			t.Fatal("worker did not start running")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWorkerTrySendBlockDeliversToSink(t *testing.T) {
	sink := &fakeSink{status: transform.StatusOK}
	w := New([]transform.SinkStage{sink}, 4)
	go w.Run()
	waitRunning(t, w)
	defer w.Shutdown(false, time.Second)

	if res := w.TrySendBlock(&audioblock.Block{Channels: 1, Samples: []float32{0.1}}); res != Accepted {
		t.Fatalf("TrySendBlock = %v, want Accepted", res)
	}

	deadline := time.Now().Add(time.Second)
	for sink.writtenCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sink.writtenCount() != 1 {
		t.Fatalf("sink received %d blocks, want 1", sink.writtenCount())
	}
}

func TestWorkerTrySendBlockFullWhenRingSaturated(t *testing.T) {
	sink := &fakeSink{status: transform.StatusOK}
	w := New([]transform.SinkStage{sink}, 1)
	// Mark running without launching Run, so nothing drains the ring.
	w.running.Store(true)
	if res := w.TrySendBlock(&audioblock.Block{Samples: []float32{0.1}}); res != Accepted {
		t.Fatalf("first send = %v, want Accepted", res)
	}
	if res := w.TrySendBlock(&audioblock.Block{Samples: []float32{0.2}}); res != Full {
		t.Fatalf("second send = %v, want Full", res)
	}
}

func TestWorkerQueuedBlocksReflectsRingOccupancy(t *testing.T) {
	sink := &fakeSink{status: transform.StatusOK}
	w := New([]transform.SinkStage{sink}, 4)
	w.running.Store(true)

	if got := w.QueuedBlocks(); got != 0 {
		t.Fatalf("QueuedBlocks before send = %d, want 0", got)
	}
	w.TrySendBlock(&audioblock.Block{Samples: []float32{0.1}})
	w.TrySendBlock(&audioblock.Block{Samples: []float32{0.2}})
	if got := w.QueuedBlocks(); got != 2 {
		t.Fatalf("QueuedBlocks after two sends = %d, want 2", got)
	}
}

func TestWorkerTrySendBlockDisconnectedAfterFatalWrite(t *testing.T) {
	sink := &fakeSink{status: transform.StatusFatal}
	w := New([]transform.SinkStage{sink}, 4)
	go w.Run()

	w.TrySendBlock(&audioblock.Block{Samples: []float32{0.1}})

	deadline := time.Now().Add(time.Second)
	for w.running.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if w.running.Load() {
		t.Fatal("expected worker to stop running after a fatal sink write")
	}
	if res := w.TrySendBlock(&audioblock.Block{Samples: []float32{0.2}}); res != Disconnected {
		t.Fatalf("TrySendBlock after fatal write = %v, want Disconnected", res)
	}
}

func TestWorkerShutdownDrainsAndStopsSinks(t *testing.T) {
	sink := &fakeSink{status: transform.StatusOK}
	w := New([]transform.SinkStage{sink}, 4)
	go w.Run()
	waitRunning(t, w)

	w.TrySendBlock(&audioblock.Block{Samples: []float32{0.1}})
	if err := w.Shutdown(true, time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if sink.stopped != 1 {
		t.Fatalf("sink.stopped = %d, want 1", sink.stopped)
	}
	if sink.flushed != 1 {
		t.Fatalf("sink.flushed = %d, want 1", sink.flushed)
	}
}

func TestWorkerDropQueuedClearsRingWithoutWriting(t *testing.T) {
	sink := &fakeSink{status: transform.StatusOK}
	w := New([]transform.SinkStage{sink}, 4)

	w.blocks <- &audioblock.Block{Samples: []float32{0.1}}
	w.blocks <- &audioblock.Block{Samples: []float32{0.2}}

	// Queue DropQueued before the loop starts, so the biased select handles
	// it ahead of the two queued blocks.
	w.running.Store(true)
	dropErr := make(chan error, 1)
	go func() { dropErr <- w.DropQueued(time.Second) }()
	for len(w.control) == 0 {
		time.Sleep(time.Millisecond)
	}
	go w.Run()
	if err := <-dropErr; err != nil {
		t.Fatalf("DropQueued: %v", err)
	}
	if err := w.Shutdown(false, time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if sink.writtenCount() != 0 {
		t.Fatalf("sink received %d blocks after DropQueued, want 0", sink.writtenCount())
	}
}

func TestWorkerSyncRuntimeControlCallsEverySink(t *testing.T) {
	sink := &fakeSink{status: transform.StatusOK}
	w := New([]transform.SinkStage{sink}, 4)
	go w.Run()
	waitRunning(t, w)
	defer w.Shutdown(false, time.Second)

	if err := w.SyncRuntimeControl(context.Background(), time.Second); err != nil {
		t.Fatalf("SyncRuntimeControl: %v", err)
	}
	sink.mu.Lock()
	synced := sink.synced
	sink.mu.Unlock()
	if synced != 1 {
		t.Fatalf("sink.synced = %d, want 1", synced)
	}
}

func TestWorkerControlDisconnectedWhenWorkerNotRunning(t *testing.T) {
	sink := &fakeSink{status: transform.StatusOK}
	w := New([]transform.SinkStage{sink}, 4)
	// Worker goroutine never started, so running is false: send should
	// report disconnection rather than hang.
	err := w.Drain(50 * time.Millisecond)
	if !errors.Is(err, ErrSinkDisconnected) {
		t.Fatalf("Drain on unstarted worker = %v, want ErrSinkDisconnected", err)
	}
}
