package control

import (
	"log/slog"
	"time"

	"github.com/stellatune/engine/internal/devicesink"
	"github.com/stellatune/engine/internal/protocol"
)

// tickInterval is the control actor's cooperative tick period (20-50 ms
// per spec §5; 30 ms splits the difference).
const tickInterval = 30 * time.Millisecond

// Pipeline is the subset of decode-worker/sink-worker behavior the control
// actor drives. Defined here (accept-interfaces) so this package has no
// dependency on the concrete decodeworker/sinkworker implementations.
type Pipeline interface {
	LoadTrack(track protocol.TrackRef) error
	PreloadTrack(track protocol.TrackRef, positionMs uint64) error
	Play() error
	Pause() error
	Stop() error
	SeekMs(ms uint64) error
	SetVolume(v float32)
	SetDspChain(mutations []any) error
	BufferedMs() float64
	TargetGain() float64
	CurrentRoute() devicesink.Route
	ChunkFrames() int
	SampleRate() uint32
	RequestReconfigure()
	Shutdown()
}

// Actor is the Control Actor: a single cooperative goroutine that serially
// processes commands and periodic ticks, driving the Player FSM and
// publishing events. Grounded on the teacher's RunMetrics ticker/select
// loop (server/metrics.go), generalized to a command-and-tick actor.
type Actor struct {
	pipeline Pipeline
	route    *RouteManager
	fsm      *FSM
	events   chan protocol.Event

	commands chan protocol.Command
	done     chan struct{}

	logger *slog.Logger
}

// NewActor returns an Actor. events should be buffered generously by the
// caller (the introspection server / engine facade fans it out); Actor
// never blocks indefinitely trying to publish — a full events channel
// drops the oldest-style is left to the caller's own consumption loop,
// Actor simply does a non-blocking send.
func NewActor(pipeline Pipeline, sink *devicesink.Control, events chan protocol.Event, logger *slog.Logger) *Actor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actor{
		pipeline: pipeline,
		route:    NewRouteManager(sink),
		fsm:      NewFSM(),
		events:   events,
		commands: make(chan protocol.Command, 64),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// Submit enqueues a command for processing on the actor's goroutine. It
// never blocks the caller beyond the command channel's buffer.
func (a *Actor) Submit(cmd protocol.Command) {
	select {
	case a.commands <- cmd:
	case <-a.done:
	}
}

// Run drives the actor's loop until Shutdown is processed or stop fires.
// Intended to be launched as `go actor.Run(stop)`.
func (a *Actor) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-a.done:
			return
		case cmd := <-a.commands:
			if a.handle(cmd) {
				return
			}
		case <-ticker.C:
			a.tick()
		}
	}
}

func (a *Actor) publish(ev protocol.Event) {
	select {
	case a.events <- ev:
	default:
		a.logger.Warn("control: event dropped, events channel full", "kind", protocol.EventKind(ev))
	}
}

func (a *Actor) setState(changed bool) {
	if changed {
		a.publish(protocol.StateChanged{State: a.fsm.State()})
	}
}

// handle processes one command. It returns true if the actor should exit
// its Run loop (i.e. Shutdown was processed).
func (a *Actor) handle(cmd protocol.Command) bool {
	switch c := cmd.(type) {
	case protocol.LoadTrackRef:
		if err := a.pipeline.LoadTrack(c.Track); err != nil {
			a.publish(protocol.Error{Msg: err.Error()})
			return false
		}
		a.setState(a.fsm.HandleStop())

	case protocol.Play:
		if err := a.pipeline.Play(); err != nil {
			a.publish(protocol.Error{Msg: err.Error()})
			return false
		}
		a.setState(a.fsm.HandlePlay())

	case protocol.Pause:
		if err := a.pipeline.Pause(); err != nil {
			a.publish(protocol.Error{Msg: err.Error()})
			return false
		}
		a.setState(a.fsm.HandlePause())

	case protocol.Stop:
		if err := a.pipeline.Stop(); err != nil {
			a.publish(protocol.Error{Msg: err.Error()})
			return false
		}
		a.setState(a.fsm.HandleStop())

	case protocol.SeekMs:
		if err := a.pipeline.SeekMs(c.PositionMs); err != nil {
			a.publish(protocol.Error{Msg: err.Error()})
			return false
		}
		a.publish(protocol.Position{Ms: c.PositionMs})

	case protocol.SetVolume:
		a.pipeline.SetVolume(c.V)

	case protocol.SetLfeMode:
		// Accepted and ignored: no transform stage folds or routes an LFE
		// channel, so the mode has no effect on output.

	case protocol.SetOutputDevice:
		if a.route.SetOutputDevice(c.Backend, c.DeviceID) {
			a.pipeline.RequestReconfigure()
		}

	case protocol.SetOutputOptions:
		// Accepted and not applied: the decode worker's gapless and
		// seek-fade options are fixed when engine.New constructs it, and
		// the match-track-sample-rate option is not read anywhere.

	case protocol.SetOutputSinkRoute:
		if a.route.SetOutputSinkRoute(c.Route) {
			a.pipeline.RequestReconfigure()
		}

	case protocol.ClearOutputSinkRoute:
		if a.route.ClearOutputSinkRoute() {
			a.pipeline.RequestReconfigure()
		}

	case protocol.PreloadTrackRef:
		if err := a.pipeline.PreloadTrack(c.Track, c.PositionMs); err != nil {
			a.publish(protocol.Error{Msg: err.Error()})
		}

	case protocol.SwitchTrackRef:
		if err := a.pipeline.LoadTrack(c.Track); err != nil {
			a.publish(protocol.Error{Msg: err.Error()})
		}

	case protocol.SetDspChain:
		if err := a.pipeline.SetDspChain(c.Mutations); err != nil {
			a.publish(protocol.Error{Msg: err.Error()})
		}

	case protocol.RefreshDevices:
		// Device enumeration is handled by the introspection server reading
		// devicesink.ListOutputDevices directly; nothing
		// for the control actor to do but acknowledge.

	case protocol.Shutdown:
		a.pipeline.Shutdown()
		close(a.done)
		return true
	}
	return false
}

// tick runs one cooperative step: poll buffering state and drive the FSM's
// watermark gate.
func (a *Actor) tick() {
	state := a.fsm.State()
	if state != protocol.Playing && state != protocol.Buffering {
		return
	}

	route := a.pipeline.CurrentRoute()
	watermarks := WatermarksFor(route.Backend, a.pipeline.ChunkFrames(), a.pipeline.SampleRate())
	changed := a.fsm.Tick(a.pipeline.BufferedMs(), watermarks, a.pipeline.TargetGain())
	a.setState(changed)
}
