package decodeworker

import (
	"testing"
	"time"

	"github.com/stellatune/engine/internal/control"
	"github.com/stellatune/engine/internal/devicesink"
	"github.com/stellatune/engine/internal/protocol"
)

// Compile-time check that Worker satisfies control.Pipeline.
var _ control.Pipeline = (*Worker)(nil)

func TestWorkerPipelineCommandsDriveState(t *testing.T) {
	runner := newFakeRunner(
		StepResult{Kind: StepProduced, Block: block(4)},
		StepResult{Kind: StepProduced, Block: block(4)},
	)
	opened := make(chan struct{}, 1)
	w, _, events := newTestWorker(t, func(track protocol.TrackRef, positionMs uint64) (Runner, error) {
		opened <- struct{}{}
		return runner, nil
	})

	stop := make(chan struct{})
	go w.Run(stop)
	t.Cleanup(func() { close(stop) })

	if err := w.LoadTrack(protocol.TrackRef{URI: "track-1"}); err != nil {
		t.Fatalf("LoadTrack: %v", err)
	}
	select {
	case <-opened:
	case <-time.After(time.Second):
		t.Fatal("LoadTrack did not open a runner")
	}

	if err := w.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	deadline := time.After(time.Second)
	for w.ChunkFrames() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for ChunkFrames to reflect a produced block")
		case <-time.After(time.Millisecond):
		}
	}
	if got := w.ChunkFrames(); got != 4 {
		t.Fatalf("ChunkFrames = %d, want 4", got)
	}
	if got := w.SampleRate(); got != 48000 {
		t.Fatalf("SampleRate = %d, want 48000", got)
	}

	drainEvents(events, 50*time.Millisecond)
}

func TestWorkerSetVolumeRampsTargetGain(t *testing.T) {
	w, _, _ := newTestWorker(t, func(track protocol.TrackRef, positionMs uint64) (Runner, error) {
		return newFakeRunner(), nil
	})
	stop := make(chan struct{})
	go w.Run(stop)
	t.Cleanup(func() { close(stop) })

	w.SetVolume(0.25)

	deadline := time.After(time.Second)
	for {
		if w.TargetGain() == 0.25 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("TargetGain = %v, want 0.25", w.TargetGain())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestWorkerSetDspChainStagesMutationsForNextLoad(t *testing.T) {
	w, _, _ := newTestWorker(t, func(track protocol.TrackRef, positionMs uint64) (Runner, error) {
		return newFakeRunner(), nil
	})

	if got := w.DspChainMutations(); got != nil {
		t.Fatalf("DspChainMutations before Set = %v, want nil", got)
	}

	mutations := []any{"gain:+3dB"}
	if err := w.SetDspChain(mutations); err != nil {
		t.Fatalf("SetDspChain: %v", err)
	}
	got := w.DspChainMutations()
	if len(got) != 1 || got[0] != "gain:+3dB" {
		t.Fatalf("DspChainMutations = %v, want %v", got, mutations)
	}
}

func TestWorkerBufferedMsZeroWithoutSink(t *testing.T) {
	w, _, _ := newTestWorker(t, func(track protocol.TrackRef, positionMs uint64) (Runner, error) {
		return newFakeRunner(), nil
	})
	if got := w.BufferedMs(); got != 0 {
		t.Fatalf("BufferedMs without WithSink = %v, want 0", got)
	}
}

func TestWorkerCurrentRouteReflectsSinkControl(t *testing.T) {
	w, _, _ := newTestWorker(t, func(track protocol.TrackRef, positionMs uint64) (Runner, error) {
		return newFakeRunner(), nil
	})

	if got := w.CurrentRoute(); got != (devicesink.Route{}) {
		t.Fatalf("CurrentRoute without WithSink = %v, want zero value", got)
	}

	ctrl := devicesink.NewControl()
	ctrl.SetRoute(devicesink.Route{Backend: devicesink.Exclusive, DeviceID: "dac-1"})
	w = w.WithSink(nil, ctrl)

	want := devicesink.Route{Backend: devicesink.Exclusive, DeviceID: "dac-1"}
	if got := w.CurrentRoute(); got != want {
		t.Fatalf("CurrentRoute = %v, want %v", got, want)
	}
}

func TestWorkerShutdownStopsRunLoop(t *testing.T) {
	w, _, _ := newTestWorker(t, func(track protocol.TrackRef, positionMs uint64) (Runner, error) {
		return newFakeRunner(), nil
	})

	done := make(chan struct{})
	go func() {
		w.Run(make(chan struct{}))
		close(done)
	}()

	w.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}
