package control

import (
	"testing"

	"github.com/stellatune/engine/internal/protocol"
)

func TestFSMPlayTransitionsStoppedToBuffering(t *testing.T) {
	f := NewFSM()
	if !f.HandlePlay() {
		t.Fatal("expected transition on Play from Stopped")
	}
	if f.State() != protocol.Buffering {
		t.Fatalf("state = %v, want Buffering", f.State())
	}
}

func TestFSMPlayFromPlayingIsNoOp(t *testing.T) {
	f := NewFSM()
	f.HandlePlay()
	f.Tick(1000, SharedWatermarks, 1.0)
	f.Tick(1000, SharedWatermarks, 1.0)
	f.Tick(1000, SharedWatermarks, 1.0)
	if f.State() != protocol.Playing {
		t.Fatalf("state = %v, want Playing after stable ticks", f.State())
	}
	if f.HandlePlay() {
		t.Fatal("Play while already Playing should be a no-op")
	}
}

func TestFSMBufferingRequiresStableTicksToResume(t *testing.T) {
	f := NewFSM()
	f.HandlePlay()
	for i := 0; i < BufferResumeStableTicks-1; i++ {
		if f.Tick(1000, SharedWatermarks, 1.0) {
			t.Fatalf("transitioned to Playing early at tick %d", i)
		}
	}
	if !f.Tick(1000, SharedWatermarks, 1.0) {
		t.Fatal("expected transition to Playing on the Nth stable tick")
	}
	if f.State() != protocol.Playing {
		t.Fatalf("state = %v, want Playing", f.State())
	}
}

func TestFSMPlayingDropsToBufferingBelowLowWatermark(t *testing.T) {
	f := NewFSM()
	f.HandlePlay()
	for i := 0; i < BufferResumeStableTicks; i++ {
		f.Tick(1000, SharedWatermarks, 1.0)
	}
	if f.State() != protocol.Playing {
		t.Fatalf("setup: state = %v, want Playing", f.State())
	}

	if !f.Tick(SharedWatermarks.LowMs, SharedWatermarks, 1.0) {
		t.Fatal("expected transition back to Buffering at/below low watermark")
	}
	if f.State() != protocol.Buffering {
		t.Fatalf("state = %v, want Buffering", f.State())
	}
}

func TestFSMUnstableTicksResetCounter(t *testing.T) {
	f := NewFSM()
	f.HandlePlay()
	f.Tick(1000, SharedWatermarks, 1.0)
	f.Tick(0, SharedWatermarks, 1.0) // drop below threshold, resets counter
	for i := 0; i < BufferResumeStableTicks-1; i++ {
		if f.Tick(1000, SharedWatermarks, 1.0) {
			t.Fatalf("should not resume before full stable run after reset, tick %d", i)
		}
	}
	if !f.Tick(1000, SharedWatermarks, 1.0) {
		t.Fatal("expected resume after a fresh full stable run")
	}
}

func TestFSMPauseAndStop(t *testing.T) {
	f := NewFSM()
	f.HandlePlay()
	if !f.HandlePause() {
		t.Fatal("expected transition on Pause from Buffering")
	}
	if f.State() != protocol.Paused {
		t.Fatalf("state = %v, want Paused", f.State())
	}
	if !f.HandleStop() {
		t.Fatal("expected transition on Stop from Paused")
	}
	if f.State() != protocol.Stopped {
		t.Fatalf("state = %v, want Stopped", f.State())
	}
}

func TestFSMMidFadeLowersResumeThreshold(t *testing.T) {
	f := NewFSM()
	f.HandlePlay()
	// With a near-zero target gain (mid-fade), the resume threshold drops
	// to max(low, 1) instead of requiring the full high watermark.
	belowHighAboveLow := (SharedWatermarks.LowMs + SharedWatermarks.HighMs) / 2
	for i := 0; i < BufferResumeStableTicks; i++ {
		f.Tick(belowHighAboveLow, SharedWatermarks, 0.005)
	}
	if f.State() != protocol.Playing {
		t.Fatalf("state = %v, want Playing under mid-fade resume threshold", f.State())
	}
}
