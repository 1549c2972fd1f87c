// Package pluginrt implements the sandboxed plugin runtime: manifest
// discovery, lease lifecycle with reference-counted reclamation, the
// per-instance config-update protocol, and the runtime-directive bus that
// tells live decode/sink workers to swap or drop an instance.
//
// Grounded on the teacher server's SQLite store (internal/store/store.go,
// migration + CRUD style) for lease persistence, and on the teacher's
// quic-go/webtransport-go stack (server/server.go) for the sandbox host
// transport.
package pluginrt

import (
	"context"
	"fmt"
	"sync"

	"log/slog"
)

// SyncMode controls how aggressively Sync reacts to the discovered set.
type SyncMode int

const (
	// Additive loads any discovered plugin not currently active and not
	// disabled. It never reloads or deactivates.
	Additive SyncMode = iota
	// Reconcile is Additive plus reload-on-fingerprint-change and
	// deactivate-missing-or-disabled.
	Reconcile
)

// ActionKind is the action Plan decided for one plugin id.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionLoadNew
	ActionReloadChanged
	ActionDeactivate
)

func (a ActionKind) String() string {
	switch a {
	case ActionLoadNew:
		return "loaded"
	case ActionReloadChanged:
		return "reloaded"
	case ActionDeactivate:
		return "deactivated"
	default:
		return "none"
	}
}

// PlanEntry is one action Sync will execute.
type PlanEntry struct {
	PluginID string
	Action   ActionKind
	Manifest Manifest
}

// Outcome records the result of executing one PlanEntry.
type Outcome struct {
	PluginID string
	Action   ActionKind
	Err      error
}

// Activator builds a live Instance for a discovered plugin. Production
// callers back this with the sandbox; tests back it with an in-process
// fake.
type Activator interface {
	Activate(d Discovered) (Instance, error)
}

// Runtime owns plugin discovery, the per-plugin-id lease slots, and the
// directive bus live workers subscribe to.
type Runtime struct {
	root       string
	activator  Activator
	directives *DirectiveBus
	logger     *slog.Logger
	store      *LeaseStore

	mu       sync.Mutex
	slots    map[string]*Slot
	disabled map[string]bool
}

// WithLeaseStore attaches a LeaseStore so activations and lifecycle
// events are persisted. Optional; a Runtime with no store still works,
// it just has no audit trail.
func (r *Runtime) WithLeaseStore(store *LeaseStore) *Runtime {
	r.store = store
	return r
}

// NewRuntime returns a Runtime rooted at pluginsRoot.
func NewRuntime(pluginsRoot string, activator Activator, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		root:       pluginsRoot,
		activator:  activator,
		directives: NewDirectiveBus(),
		logger:     logger,
		slots:      make(map[string]*Slot),
		disabled:   make(map[string]bool),
	}
}

// Directives returns the bus live workers register against.
func (r *Runtime) Directives() *DirectiveBus { return r.directives }

// SetDisabled replaces the externally supplied disabled-ids set.
func (r *Runtime) SetDisabled(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled = make(map[string]bool, len(ids))
	for _, id := range ids {
		r.disabled[id] = true
	}
}

// Lease returns the current lease for a plugin id, or nil.
func (r *Runtime) Lease(pluginID string) *Lease {
	r.mu.Lock()
	slot := r.slots[pluginID]
	r.mu.Unlock()
	if slot == nil {
		return nil
	}
	return slot.Current()
}

// Plan computes, for each discovered plugin, at most one action: LoadNew,
// ReloadChanged (Reconcile only), or nothing. It also computes
// DeactivateMissingOrDisabled entries for active plugins that Reconcile
// should retire.
func (r *Runtime) Plan(discovered []Discovered, mode SyncMode) []PlanEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	byID := make(map[string]Discovered, len(discovered))
	for _, d := range discovered {
		byID[d.Manifest.ID] = d
	}

	var plan []PlanEntry
	for _, d := range discovered {
		if r.disabled[d.Manifest.ID] {
			continue
		}
		slot := r.slots[d.Manifest.ID]
		switch {
		case slot == nil || slot.Current() == nil:
			plan = append(plan, PlanEntry{PluginID: d.Manifest.ID, Action: ActionLoadNew, Manifest: d.Manifest})
		case mode == Reconcile && slot.Current().Fingerprint != d.Fingerprint:
			plan = append(plan, PlanEntry{PluginID: d.Manifest.ID, Action: ActionReloadChanged, Manifest: d.Manifest})
		}
	}

	if mode == Reconcile {
		for id, slot := range r.slots {
			if slot.Current() == nil {
				continue
			}
			_, stillDiscovered := byID[id]
			if !stillDiscovered || r.disabled[id] {
				plan = append(plan, PlanEntry{PluginID: id, Action: ActionDeactivate})
			}
		}
	}
	return plan
}

// Sync discovers plugins under the runtime's root, plans actions for mode,
// executes them in order, reclaims eligible retired leases, and returns
// one Outcome per executed action.
func (r *Runtime) Sync(mode SyncMode) ([]Outcome, error) {
	discovered, err := Discover(r.root, r.logger)
	if err != nil {
		return nil, err
	}

	plan := r.Plan(discovered, mode)
	outcomes := make([]Outcome, 0, len(plan))
	for _, entry := range plan {
		outcomes = append(outcomes, r.execute(entry))
	}

	r.reclaimAll()
	return outcomes, nil
}

func (r *Runtime) execute(entry PlanEntry) Outcome {
	switch entry.Action {
	case ActionLoadNew, ActionReloadChanged:
		return r.activate(entry)
	case ActionDeactivate:
		return r.deactivate(entry.PluginID)
	default:
		return Outcome{PluginID: entry.PluginID, Action: entry.Action}
	}
}

func (r *Runtime) activate(entry PlanEntry) Outcome {
	discovered := Discovered{Manifest: entry.Manifest}
	instance, err := r.activator.Activate(discovered)
	if err != nil {
		r.logger.Warn("plugin activation failed", "plugin_id", entry.PluginID, "err", err)
		return Outcome{PluginID: entry.PluginID, Action: entry.Action, Err: err}
	}

	fp, err := fingerprint(entry.Manifest.LibraryPath)
	if err != nil {
		return Outcome{PluginID: entry.PluginID, Action: entry.Action, Err: err}
	}

	lease := newLease(entry.PluginID, entry.Manifest, fp, instance)

	r.mu.Lock()
	slot, ok := r.slots[entry.PluginID]
	if !ok {
		slot = &Slot{}
		r.slots[entry.PluginID] = slot
	}
	r.mu.Unlock()

	slot.Activate(lease)
	r.directives.Send(Directive{Kind: WorkerRecreate, PluginID: entry.PluginID, Reason: entry.Action.String()})
	r.logger.Info("plugin lease activated", "plugin_id", entry.PluginID, "action", entry.Action.String())

	if r.store != nil {
		ctx := context.Background()
		if err := r.store.RecordActivation(ctx, entry.PluginID, fp); err != nil {
			r.logger.Warn("record lease activation failed", "plugin_id", entry.PluginID, "err", err)
		}
		if err := r.store.RecordEvent(ctx, entry.PluginID, entry.Action.String(), ""); err != nil {
			r.logger.Warn("record lease event failed", "plugin_id", entry.PluginID, "err", err)
		}
	}
	return Outcome{PluginID: entry.PluginID, Action: entry.Action}
}

func (r *Runtime) deactivate(pluginID string) Outcome {
	r.mu.Lock()
	slot := r.slots[pluginID]
	r.mu.Unlock()
	if slot == nil {
		return Outcome{PluginID: pluginID, Action: ActionDeactivate, Err: fmt.Errorf("pluginrt: no slot for %s", pluginID)}
	}
	slot.Deactivate()
	r.directives.Send(Directive{Kind: WorkerDestroy, PluginID: pluginID, Reason: "deactivated"})
	r.logger.Info("plugin lease deactivated", "plugin_id", pluginID)

	if r.store != nil {
		if err := r.store.RecordEvent(context.Background(), pluginID, "deactivated", ""); err != nil {
			r.logger.Warn("record lease event failed", "plugin_id", pluginID, "err", err)
		}
	}
	return Outcome{PluginID: pluginID, Action: ActionDeactivate}
}

// reclaimAll runs the reclamation pass over every slot's retired leases,
// closing and dropping any whose strong reference count has fallen to 1.
func (r *Runtime) reclaimAll() {
	r.mu.Lock()
	slots := make([]*Slot, 0, len(r.slots))
	for _, s := range r.slots {
		slots = append(slots, s)
	}
	r.mu.Unlock()

	for _, slot := range slots {
		for _, lease := range slot.Reclaim() {
			if err := lease.Instance.Close(); err != nil {
				r.logger.Warn("retired lease close failed", "plugin_id", lease.PluginID, "err", err)
			}
		}
	}
}

// ReclaimNow exposes the reclamation pass for explicit requests (e.g. the
// introspection server's plugin-unload endpoint), per §4.4.2.
func (r *Runtime) ReclaimNow() { r.reclaimAll() }

// PluginStatus is a point-in-time summary of one plugin id's lease state,
// for the introspection server's /plugins endpoint.
type PluginStatus struct {
	PluginID string
	Manifest Manifest
	Active   bool
	Disabled bool
}

// Status returns a PluginStatus for every plugin id the runtime has ever
// planned an action for, active or not.
func (r *Runtime) Status() []PluginStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]PluginStatus, 0, len(r.slots))
	for id, slot := range r.slots {
		lease := slot.Current()
		status := PluginStatus{PluginID: id, Disabled: r.disabled[id]}
		if lease != nil {
			status.Manifest = lease.Manifest
			status.Active = true
		}
		out = append(out, status)
	}
	return out
}

// LeaseCounts returns the number of plugin ids with a current lease and the
// total number of retired leases still awaiting reclamation, for the
// metrics registry's gauges.
func (r *Runtime) LeaseCounts() (active, retired int) {
	r.mu.Lock()
	slots := make([]*Slot, 0, len(r.slots))
	for _, s := range r.slots {
		slots = append(slots, s)
	}
	r.mu.Unlock()

	for _, slot := range slots {
		slot.mu.Lock()
		if slot.current != nil {
			active++
		}
		retired += len(slot.retired)
		slot.mu.Unlock()
	}
	return active, retired
}
