package devicesink

import "sync"

// Control is the Device Sink Control object: an auxiliary route-selection
// surface decoupled from the adapter's hot write path. SetRoute is typically
// called from the control actor; NeedsReconfigure/Desired are polled by the
// adapter's SyncRuntimeControl.
type Control struct {
	mu              sync.Mutex
	desired         Route
	desiredRevision uint64
	appliedRevision uint64
}

// NewControl returns a Control defaulting to the Shared route.
func NewControl() *Control {
	return &Control{desired: Route{Backend: Shared}}
}

// SetRoute updates the desired route. The desired_revision counter is
// bumped only when the normalized route actually differs from the current
// desired route — setting the same route twice is a no-op on the revision.
func (c *Control) SetRoute(route Route) {
	route = route.Normalize()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.desired.Equal(route) {
		return
	}
	c.desired = route
	c.desiredRevision++
}

// Desired returns the current desired route and its revision.
func (c *Control) Desired() (Route, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desired, c.desiredRevision
}

// AppliedRevision returns the last successfully-applied revision.
func (c *Control) AppliedRevision() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appliedRevision
}

// markApplied records that the current desired revision has been applied
// successfully. It is a no-op if rev is not greater than the current
// applied revision, preserving route revision monotonicity: applied_revision
// is never decremented.
func (c *Control) markApplied(rev uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rev > c.appliedRevision {
		c.appliedRevision = rev
	}
}

// NeedsReconfigure reports whether the desired and applied revisions differ.
func (c *Control) NeedsReconfigure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desiredRevision != c.appliedRevision
}
