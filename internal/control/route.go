package control

import "github.com/stellatune/engine/internal/devicesink"

// RouteManager applies SetOutputDevice / SetOutputSinkRoute / ClearOutputSinkRoute
// commands to the underlying devicesink.Control, and reports whether the
// applied command actually changed the desired route (callers use this to
// decide whether a sink reconfigure / pipeline rebuild is needed at the
// next tick, per spec's "Route change" rule).
type RouteManager struct {
	sink *devicesink.Control
}

// NewRouteManager wraps sink.
func NewRouteManager(sink *devicesink.Control) *RouteManager {
	return &RouteManager{sink: sink}
}

// SetOutputDevice sets the desired route to backend/deviceID. Returns true
// if this changed the desired route (bumped desired_revision).
func (r *RouteManager) SetOutputDevice(backend devicesink.Backend, deviceID string) bool {
	_, before := r.sink.Desired()
	r.sink.SetRoute(devicesink.Route{Backend: backend, DeviceID: deviceID})
	_, after := r.sink.Desired()
	return after != before
}

// SetOutputSinkRoute sets the desired route wholesale. Returns true if
// this changed the desired route.
func (r *RouteManager) SetOutputSinkRoute(route devicesink.Route) bool {
	_, before := r.sink.Desired()
	r.sink.SetRoute(route)
	_, after := r.sink.Desired()
	return after != before
}

// ClearOutputSinkRoute resets the route to the Shared default.
func (r *RouteManager) ClearOutputSinkRoute() bool {
	return r.SetOutputSinkRoute(devicesink.Route{Backend: devicesink.Shared})
}

// NeedsReconfigure reports whether the sink's desired and applied route
// revisions differ.
func (r *RouteManager) NeedsReconfigure() bool {
	return r.sink.NeedsReconfigure()
}

// Desired returns the current desired route.
func (r *RouteManager) Desired() devicesink.Route {
	route, _ := r.sink.Desired()
	return route
}
