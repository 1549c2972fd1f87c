package metrics

import (
	"testing"

	"github.com/stellatune/engine/internal/devicesink"
)

func TestObserveSinkCountersAccumulatesDeltas(t *testing.T) {
	r := NewRegistry()

	var first devicesink.Snapshot
	second := devicesink.Snapshot{WrittenSamples: 100, DroppedSamples: 2, UnderrunCallbacks: 1}
	r.ObserveSinkCounters(first, second)

	third := devicesink.Snapshot{WrittenSamples: 250, DroppedSamples: 2, UnderrunCallbacks: 3}
	r.ObserveSinkCounters(second, third)

	mfs, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	values := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.Metric {
			if m.Counter != nil {
				values[mf.GetName()] = m.Counter.GetValue()
			}
			if m.Gauge != nil {
				values[mf.GetName()] = m.Gauge.GetValue()
			}
		}
	}

	if got := values["stellatune_sink_written_samples_total"]; got != 250 {
		t.Fatalf("written_samples_total = %v, want 250", got)
	}
	if got := values["stellatune_sink_dropped_samples_total"]; got != 2 {
		t.Fatalf("dropped_samples_total = %v, want 2", got)
	}
	if got := values["stellatune_sink_underrun_callbacks_total"]; got != 3 {
		t.Fatalf("underrun_callbacks_total = %v, want 3", got)
	}
}

func TestSetLeaseGaugesReflectsLatestCall(t *testing.T) {
	r := NewRegistry()
	r.SetLeaseGauges(4, 1)
	r.SetLeaseGauges(2, 0)

	mfs, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	values := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.Metric {
			if m.Gauge != nil {
				values[mf.GetName()] = m.Gauge.GetValue()
			}
		}
	}
	if got := values["stellatune_plugin_active_leases"]; got != 2 {
		t.Fatalf("active_leases = %v, want 2", got)
	}
	if got := values["stellatune_plugin_retired_leases"]; got != 0 {
		t.Fatalf("retired_leases = %v, want 0", got)
	}
}

func TestSetQueuedBlocksReflectsLatestCall(t *testing.T) {
	r := NewRegistry()
	r.SetQueuedBlocks(7)

	mfs, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "stellatune_sink_worker_queued_blocks" {
			continue
		}
		if got := mf.Metric[0].Gauge.GetValue(); got != 7 {
			t.Fatalf("queued_blocks = %v, want 7", got)
		}
		return
	}
	t.Fatal("stellatune_sink_worker_queued_blocks not found in gathered metrics")
}
