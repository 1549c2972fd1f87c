package devicesink

import "sync/atomic"

// Counters holds the adapter's monotonic metric counters. All fields are
// safe for concurrent access from the producer (write/flush) side and the
// platform callback side.
type Counters struct {
	WrittenSamples           atomic.Uint64
	DroppedSamples           atomic.Uint64
	CallbackRequestedSamples atomic.Uint64
	CallbackProvidedSamples  atomic.Uint64
	UnderrunCallbacks        atomic.Uint64
	CallbackErrors           atomic.Uint64
	ReconfigureAttempts      atomic.Uint64
	ReconfigureSuccesses     atomic.Uint64
	ReconfigureFailures      atomic.Uint64
}

// Snapshot is a point-in-time copy of Counters' values, suitable for
// exporting to the metrics registry or the introspection server.
type Snapshot struct {
	WrittenSamples           uint64
	DroppedSamples           uint64
	CallbackRequestedSamples uint64
	CallbackProvidedSamples  uint64
	UnderrunCallbacks        uint64
	CallbackErrors           uint64
	ReconfigureAttempts      uint64
	ReconfigureSuccesses     uint64
	ReconfigureFailures      uint64
}

// Snapshot reads all counters into a Snapshot.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		WrittenSamples:           c.WrittenSamples.Load(),
		DroppedSamples:           c.DroppedSamples.Load(),
		CallbackRequestedSamples: c.CallbackRequestedSamples.Load(),
		CallbackProvidedSamples:  c.CallbackProvidedSamples.Load(),
		UnderrunCallbacks:        c.UnderrunCallbacks.Load(),
		CallbackErrors:           c.CallbackErrors.Load(),
		ReconfigureAttempts:      c.ReconfigureAttempts.Load(),
		ReconfigureSuccesses:     c.ReconfigureSuccesses.Load(),
		ReconfigureFailures:      c.ReconfigureFailures.Load(),
	}
}
