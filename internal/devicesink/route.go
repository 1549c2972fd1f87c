// Package devicesink owns the platform output stream and the ring buffer
// feeding it, bridging the decode/transform side (producer, write calls
// from a worker goroutine) to the OS audio callback (consumer, running on
// a platform audio thread). Grounded on the teacher's AudioEngine stream
// lifecycle in client/audio.go, generalized from a single hardwired
// PortAudio 48kHz mono stream to the route/backend model below.
package devicesink

import "strings"

// Backend identifies which output path a Route targets.
type Backend int

const (
	// Shared opens the platform's default output device at its default
	// (shared-mixer) latency.
	Shared Backend = iota
	// Exclusive opens a specific device_id at low latency, bypassing the
	// platform mixer where the platform supports it.
	Exclusive
	// PluginSink hands negotiated PCM to a non-device sink — e.g. a WebRTC
	// track — instead of a local output device.
	PluginSink
)

func (b Backend) String() string {
	switch b {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	case PluginSink:
		return "plugin_sink"
	default:
		return "unknown"
	}
}

// Route selects an output backend and, for Exclusive, a specific device.
type Route struct {
	Backend  Backend
	DeviceID string
}

// normalizeDeviceID treats an empty or whitespace-only device id as absent.
func normalizeDeviceID(id string) string {
	return strings.TrimSpace(id)
}

// Normalize returns r with its DeviceID normalized.
func (r Route) Normalize() Route {
	return Route{Backend: r.Backend, DeviceID: normalizeDeviceID(r.DeviceID)}
}

// Equal reports whether two routes are equal after normalization.
func (r Route) Equal(other Route) bool {
	a, b := r.Normalize(), other.Normalize()
	return a.Backend == b.Backend && a.DeviceID == b.DeviceID
}
