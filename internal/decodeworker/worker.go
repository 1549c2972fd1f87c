package decodeworker

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/stellatune/engine/internal/devicesink"
	"github.com/stellatune/engine/internal/protocol"
	"github.com/stellatune/engine/internal/sinkworker"
)

// Sleep durations for the decode worker's select timer, keyed by state.
// Fixed constants; no config field overrides them.
const (
	decodeIdleSleep                = 200 * time.Millisecond
	decodePlayingPendingBlockSleep = 2 * time.Millisecond
	decodePlayingIdleSleep         = 10 * time.Millisecond
)

// emitInterval bounds how often Position events are published while
// actively producing frames.
const emitInterval = 200 * time.Millisecond

// Opener builds a Runner for a track, starting at positionMs.
type Opener func(track protocol.TrackRef, positionMs uint64) (Runner, error)

type command struct {
	kind commandKind
	// payload fields, one used per kind
	track      protocol.TrackRef
	positionMs uint64
	route      bool // routeChanged, used by switchTrack
	gainLevel  float64
	rampMs     int
}

type commandKind int

const (
	cmdLoad commandKind = iota
	cmdPreload
	cmdPlay
	cmdPause
	cmdStop
	cmdSeek
	cmdSwitch
	cmdSetGain
	cmdShutdown
)

// sessionState tracks whether the worker is actively driving playback.
type sessionState int

const (
	stateNotPlaying sessionState = iota
	statePlayingIdle
	statePlayingPendingBlock
)

// Worker is the Decode Worker: a single goroutine per active engine that
// owns the active Runner, feeds the sink worker, and handles EOF/track
// switch/sink recovery per §4.6.
type Worker struct {
	open Opener
	sink *sinkworker.Worker
	gain *Gain

	opts Options

	commands chan command
	events   chan protocol.Event

	runner    Runner
	lastTrack protocol.TrackRef
	prewarmed *prewarmedNext

	recovery recoveryState

	lastEmit time.Time
	running  bool

	sinkAdapter *devicesink.Adapter
	sinkControl *devicesink.Control

	sampleRate       atomic.Uint32
	chunkFrames      atomic.Int64
	pendingMutations atomic.Value // []any
}

// Options bundles the gapless/track-switch behaviors the decode worker
// consults on EOF and SwitchTrackRef.
type Options struct {
	GaplessPlayback bool
	SeekTrackFade   bool
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
}

// DefaultOptions returns the engine's default decode-worker behavior.
func DefaultOptions() Options {
	return Options{
		GaplessPlayback: true,
		SeekTrackFade:   true,
		MaxAttempts:     5,
		InitialBackoff:  100 * time.Millisecond,
		MaxBackoff:      5 * time.Second,
	}
}

// New returns a Worker. events should be buffered; publishes are
// non-blocking.
func New(open Opener, sink *sinkworker.Worker, events chan protocol.Event, opts Options) *Worker {
	return &Worker{
		open:     open,
		sink:     sink,
		gain:     NewGain(),
		opts:     opts,
		commands: make(chan command, 32),
		events:   events,
	}
}

func (w *Worker) publish(ev protocol.Event) {
	select {
	case w.events <- ev:
	default:
		log.Printf("[decodeworker] event dropped, channel full: %s", protocol.EventKind(ev))
	}
}

// Run drives the worker loop until Shutdown is processed or stop fires.
func (w *Worker) Run(stop <-chan struct{}) {
	for {
		sleep := w.currentSleep()
		timer := time.NewTimer(sleep)

		select {
		case <-stop:
			timer.Stop()
			return
		case cmd := <-w.commands:
			timer.Stop()
			if w.handleCommand(cmd) {
				return
			}
		case <-timer.C:
			w.step()
		}
	}
}

func (w *Worker) currentSleep() time.Duration {
	if w.recovery.active {
		untilRetry := time.Until(w.recovery.retryAt)
		if untilRetry < decodePlayingPendingBlockSleep {
			return decodePlayingPendingBlockSleep
		}
		if untilRetry < decodePlayingIdleSleep {
			return untilRetry
		}
		return decodePlayingIdleSleep
	}
	if !w.running || w.runner == nil {
		return decodeIdleSleep
	}
	return decodePlayingIdleSleep
}

// Submit enqueues a command for the worker's goroutine.
func (w *Worker) Submit(cmd command) {
	w.commands <- cmd
}

func (w *Worker) handleCommand(cmd command) bool {
	switch cmd.kind {
	case cmdLoad:
		w.loadTrack(cmd.track, 0)
	case cmdPreload:
		w.preload(cmd.track, cmd.positionMs)
	case cmdPlay:
		w.running = true
	case cmdPause:
		w.running = false
	case cmdStop:
		w.running = false
		w.closeRunner()
		w.closePrewarmed()
	case cmdSeek:
		if w.runner != nil {
			if err := w.runner.SeekMs(cmd.positionMs); err != nil {
				w.publish(protocol.Error{Msg: err.Error()})
			}
		}
	case cmdSwitch:
		w.switchTrack(cmd.track, cmd.route)
	case cmdSetGain:
		w.gain.Set(cmd.gainLevel, time.Duration(cmd.rampMs)*time.Millisecond)
	case cmdShutdown:
		w.closeRunner()
		w.closePrewarmed()
		return true
	}
	return false
}

func (w *Worker) loadTrack(track protocol.TrackRef, positionMs uint64) {
	w.closeRunner()
	runner, err := w.open(track, positionMs)
	if err != nil {
		w.publish(protocol.Error{Msg: err.Error()})
		return
	}
	w.runner = runner
	w.lastTrack = track
	w.sampleRate.Store(runner.StreamSpec().SampleRate)
}

func (w *Worker) closeRunner() {
	if w.runner != nil {
		w.runner.Close()
		w.runner = nil
	}
}

func (w *Worker) closePrewarmed() {
	if w.prewarmed != nil {
		w.prewarmed.runner.Close()
		w.prewarmed = nil
	}
}

// step executes one runner step and reacts to its outcome.
func (w *Worker) step() {
	if w.recovery.active {
		w.maybeRetryRecovery()
		return
	}
	if !w.running || w.runner == nil {
		return
	}

	result := w.runner.Step()
	switch result.Kind {
	case StepProduced:
		if result.Block != nil {
			w.gain.ApplyTo(result.Block, w.runner.StreamSpec().SampleRate)
			w.chunkFrames.Store(int64(result.Block.Frames()))
			res := w.sink.TrySendBlock(result.Block)
			if res == sinkworker.Disconnected {
				w.onSinkDisconnected(nil)
				return
			}
		}
		if time.Since(w.lastEmit) >= emitInterval {
			w.lastEmit = time.Now()
			w.publish(protocol.Position{Ms: w.runner.PositionMs()})
		}
	case StepIdle:
		// Nothing to do; next tick retries.
	case StepEof:
		w.handleEof()
	case StepErr:
		if _, ok := result.Err.(ErrSinkDisconnected); ok {
			w.onSinkDisconnected(result.Err)
			return
		}
		w.publish(protocol.Error{Msg: result.Err.Error()})
		w.running = false
		w.closeRunner()
	}
}

func (w *Worker) switchTrack(track protocol.TrackRef, routeChanged bool) {
	w.gain.Set(0, 0) // disrupt fade to zero gain
	w.closeRunner()
	w.closePrewarmed()
	runner, err := w.open(track, 0)
	if err != nil {
		w.publish(protocol.Error{Msg: err.Error()})
		return
	}
	w.runner = runner
	w.lastTrack = track
	w.sampleRate.Store(runner.StreamSpec().SampleRate)
	if w.opts.SeekTrackFade {
		w.gain.Set(1.0, 200*time.Millisecond)
	} else {
		w.gain.Set(1.0, 0)
	}
	_ = routeChanged // route rebuild is the engine facade's responsibility
}
