package control

import (
	"testing"

	"github.com/stellatune/engine/internal/devicesink"
)

func TestWatermarksForSharedAndExclusive(t *testing.T) {
	if w := WatermarksFor(devicesink.Shared, 0, 0); w != SharedWatermarks {
		t.Fatalf("Shared watermarks = %+v, want %+v", w, SharedWatermarks)
	}
	if w := WatermarksFor(devicesink.Exclusive, 0, 0); w != ExclusiveWatermarks {
		t.Fatalf("Exclusive watermarks = %+v, want %+v", w, ExclusiveWatermarks)
	}
}

func TestWatermarksForPluginSinkDerivesFromChunkAndRate(t *testing.T) {
	w := WatermarksFor(devicesink.PluginSink, 960, 48000)
	wantLow := 960.0 * 1000 / 48000.0
	if w.LowMs != wantLow {
		t.Fatalf("LowMs = %v, want %v", w.LowMs, wantLow)
	}
	if w.HighMs != wantLow*4 {
		t.Fatalf("HighMs = %v, want %v", w.HighMs, wantLow*4)
	}
}

func TestResumeThresholdUsesHighWatermarkNormally(t *testing.T) {
	got := ResumeThreshold(SharedWatermarks, 1.0)
	if got != SharedWatermarks.HighMs {
		t.Fatalf("ResumeThreshold = %v, want %v", got, SharedWatermarks.HighMs)
	}
}

func TestResumeThresholdDropsToLowMidFade(t *testing.T) {
	got := ResumeThreshold(SharedWatermarks, 0.005)
	if got != SharedWatermarks.LowMs {
		t.Fatalf("ResumeThreshold mid-fade = %v, want low watermark %v", got, SharedWatermarks.LowMs)
	}
}

func TestResumeThresholdMidFadeFloorsAtOne(t *testing.T) {
	got := ResumeThreshold(Watermarks{LowMs: 0.5, HighMs: 10}, 0.001)
	if got != 1 {
		t.Fatalf("ResumeThreshold = %v, want 1 (floor)", got)
	}
}

func TestGateRequiresConsecutiveStableTicks(t *testing.T) {
	var g Gate
	for i := 0; i < BufferResumeStableTicks-1; i++ {
		if g.Observe(1000, SharedWatermarks, 1.0) {
			t.Fatalf("resumed early at tick %d", i)
		}
	}
	if !g.Observe(1000, SharedWatermarks, 1.0) {
		t.Fatal("expected resume on the final stable tick")
	}
}

func TestGateResetsOnDrop(t *testing.T) {
	var g Gate
	g.Observe(1000, SharedWatermarks, 1.0)
	g.Observe(0, SharedWatermarks, 1.0)
	if g.stableTicks != 0 {
		t.Fatalf("stableTicks = %d, want 0 after a dropping tick", g.stableTicks)
	}
}
