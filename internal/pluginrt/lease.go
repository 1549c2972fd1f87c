package pluginrt

import (
	"sync"
	"sync/atomic"
)

// Instance is a live, activated plugin capability instance. Concrete
// instances are sandbox-backed in production and in-process fakes in
// tests; the runtime only needs to be able to close one.
type Instance interface {
	Close() error
}

// Lease wraps one activated plugin instance with the strong reference
// count the reclamation pass uses to decide when it is safe to drop. The
// slot itself holds one reference for as long as the lease is current or
// retired; decode workers and other holders take additional references
// while they have a live pointer to the instance.
type Lease struct {
	PluginID    string
	Manifest    Manifest
	Fingerprint Fingerprint
	Instance    Instance

	refs atomic.Int32
}

// newLease returns a Lease with the slot's own reference already counted.
func newLease(pluginID string, manifest Manifest, fp Fingerprint, instance Instance) *Lease {
	l := &Lease{PluginID: pluginID, Manifest: manifest, Fingerprint: fp, Instance: instance}
	l.refs.Store(1)
	return l
}

// Acquire takes an additional strong reference to the lease.
func (l *Lease) Acquire() { l.refs.Add(1) }

// Release drops a strong reference taken by Acquire.
func (l *Lease) Release() { l.refs.Add(-1) }

func (l *Lease) refCount() int32 { return l.refs.Load() }

// Slot holds one plugin id's current lease plus any retired leases still
// awaiting reclamation.
type Slot struct {
	mu      sync.Mutex
	current *Lease
	retired []*Lease
}

// Current returns the slot's active lease, or nil if none.
func (s *Slot) Current() *Lease {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Activate installs newLease as current, retiring any previous current.
// Returns the previous current lease (nil on first activation).
func (s *Slot) Activate(newLease *Lease) *Lease {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current
	if prev != nil {
		s.retired = append(s.retired, prev)
	}
	s.current = newLease
	return prev
}

// Deactivate retires the current lease, leaving the slot with no active
// lease.
func (s *Slot) Deactivate() *Lease {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current
	if prev != nil {
		s.retired = append(s.retired, prev)
		s.current = nil
	}
	return prev
}

// Reclaim drops every retired lease whose strong reference count has
// fallen to 1 (held only by the slot itself), removing it from the retired
// list. Returns the reclaimed leases; it does not close their instances
// (Runtime.reclaimAll does that).
func (s *Slot) Reclaim() []*Lease {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*Lease
	var reclaimed []*Lease
	for _, l := range s.retired {
		if l.refCount() <= 1 {
			reclaimed = append(reclaimed, l)
			continue
		}
		kept = append(kept, l)
	}
	s.retired = kept
	return reclaimed
}
