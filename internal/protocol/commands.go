// Package protocol defines the engine command and event wire types exchanged
// between a caller (engine facade, introspection server) and the control
// actor. Grounded on the teacher's server/protocol.go tagged-message style,
// generalized from a chat/voice-room vocabulary to the player command set.
package protocol

import "github.com/stellatune/engine/internal/devicesink"

// TrackRef identifies an openable media item. The engine treats it opaquely
// and hands it to the active SourceCatalog capability (or a host-registered
// default opener) to resolve into a stream.
type TrackRef struct {
	URI string
}

// LfeMode selects how a low-frequency-effects channel is folded into the
// output layout.
type LfeMode int

const (
	LfeOff LfeMode = iota
	LfeMixToMains
	LfePassthrough
)

// OutputOptions bundles the player's output-shaping toggles.
type OutputOptions struct {
	MatchTrackSampleRate bool
	GaplessPlayback      bool
	SeekTrackFade        bool
}

// Command is the closed set of operations the control actor accepts.
// Exactly one of the payload fields is meaningful, selected by Kind.
type Command interface {
	commandKind() string
}

type LoadTrackRef struct{ Track TrackRef }

func (LoadTrackRef) commandKind() string { return "LoadTrackRef" }

type Play struct{}

func (Play) commandKind() string { return "Play" }

type Pause struct{}

func (Pause) commandKind() string { return "Pause" }

type Stop struct{}

func (Stop) commandKind() string { return "Stop" }

type SeekMs struct{ PositionMs uint64 }

func (SeekMs) commandKind() string { return "SeekMs" }

type SetVolume struct{ V float32 }

func (SetVolume) commandKind() string { return "SetVolume" }

type SetLfeMode struct{ Mode LfeMode }

func (SetLfeMode) commandKind() string { return "SetLfeMode" }

type SetOutputDevice struct {
	Backend  devicesink.Backend
	DeviceID string
}

func (SetOutputDevice) commandKind() string { return "SetOutputDevice" }

type SetOutputOptions struct{ Options OutputOptions }

func (SetOutputOptions) commandKind() string { return "SetOutputOptions" }

type SetOutputSinkRoute struct{ Route devicesink.Route }

func (SetOutputSinkRoute) commandKind() string { return "SetOutputSinkRoute" }

type ClearOutputSinkRoute struct{}

func (ClearOutputSinkRoute) commandKind() string { return "ClearOutputSinkRoute" }

type PreloadTrackRef struct {
	Track      TrackRef
	PositionMs uint64
}

func (PreloadTrackRef) commandKind() string { return "PreloadTrackRef" }

// SetDspChain replaces the graph mutations applied to the transform graph's
// Main segment wholesale; the caller is responsible for constructing stages.
type SetDspChain struct{ Mutations []any }

func (SetDspChain) commandKind() string { return "SetDspChain" }

// SwitchTrackRef commands an immediate track switch, distinct from
// PreloadTrackRef's prewarm-ahead-of-EOF behavior (see §4.6.2).
type SwitchTrackRef struct{ Track TrackRef }

func (SwitchTrackRef) commandKind() string { return "SwitchTrackRef" }

type RefreshDevices struct{}

func (RefreshDevices) commandKind() string { return "RefreshDevices" }

type Shutdown struct{}

func (Shutdown) commandKind() string { return "Shutdown" }

// CommandKind returns the wire-level command name for cmd, matching the
// exact variant names used in introspection events and logs.
func CommandKind(cmd Command) string { return cmd.commandKind() }
