package decodeworker

import (
	"context"
	"time"

	"github.com/stellatune/engine/internal/devicesink"
	"github.com/stellatune/engine/internal/protocol"
)

// reconfigureTimeout bounds RequestReconfigure's SyncRuntimeControl call.
const reconfigureTimeout = 200 * time.Millisecond

// volumeRampMs is the ramp duration applied to caller-driven SetVolume
// calls, distinguishing them from switchTrack's instant fade-to-zero and
// its 200 ms fade-in. The gapless-promotion ramp in eof.go is also 50 ms.
const volumeRampMs = 50

// WithSink attaches the Device Sink Adapter and its Control so the worker
// can satisfy control.Pipeline's BufferedMs/CurrentRoute/RequestReconfigure
// methods. Returns w for chaining at construction time.
func (w *Worker) WithSink(adapter *devicesink.Adapter, control *devicesink.Control) *Worker {
	w.sinkAdapter = adapter
	w.sinkControl = control
	return w
}

// LoadTrack queues the given track to replace whatever is currently
// loaded. Errors surface later as a protocol.Error event rather than
// through this call, since loading happens on the worker's own goroutine.
func (w *Worker) LoadTrack(track protocol.TrackRef) error {
	w.Submit(command{kind: cmdLoad, track: track})
	return nil
}

// PreloadTrack opens track ahead of the current one reaching EOF, for a
// gapless transition.
func (w *Worker) PreloadTrack(track protocol.TrackRef, positionMs uint64) error {
	w.Submit(command{kind: cmdPreload, track: track, positionMs: positionMs})
	return nil
}

// Play resumes frame production.
func (w *Worker) Play() error {
	w.Submit(command{kind: cmdPlay})
	return nil
}

// Pause suspends frame production without closing the runner.
func (w *Worker) Pause() error {
	w.Submit(command{kind: cmdPause})
	return nil
}

// Stop halts playback and releases the active runner.
func (w *Worker) Stop() error {
	w.Submit(command{kind: cmdStop})
	return nil
}

// SeekMs seeks the active runner to the given position.
func (w *Worker) SeekMs(ms uint64) error {
	w.Submit(command{kind: cmdSeek, positionMs: ms})
	return nil
}

// SetVolume begins a short ramp of the master gain to v.
func (w *Worker) SetVolume(v float32) {
	w.Submit(command{kind: cmdSetGain, gainLevel: float64(v), rampMs: volumeRampMs})
}

// SetDspChain stashes mutations for the next track load. The Runner
// interface has no live-mutation hook, so a chain change only takes
// effect the next time a runner is opened.
func (w *Worker) SetDspChain(mutations []any) error {
	w.pendingMutations.Store(mutations)
	return nil
}

// DspChainMutations returns the most recently staged mutations, or nil if
// none have been set.
func (w *Worker) DspChainMutations() []any {
	v := w.pendingMutations.Load()
	if v == nil {
		return nil
	}
	return v.([]any)
}

// BufferedMs reports the sink adapter's current buffered depth. Returns 0
// if no sink has been attached via WithSink.
func (w *Worker) BufferedMs() float64 {
	if w.sinkAdapter == nil {
		return 0
	}
	return w.sinkAdapter.BufferedMs()
}

// TargetGain reports the master gain's ramp destination.
func (w *Worker) TargetGain() float64 {
	return w.gain.Target()
}

// CurrentRoute reports the sink's desired route. This is the requested
// route, not necessarily the one the backend has applied yet; watching
// BufferedMs/reconfigure counters is how a caller observes convergence.
func (w *Worker) CurrentRoute() devicesink.Route {
	if w.sinkControl == nil {
		return devicesink.Route{}
	}
	route, _ := w.sinkControl.Desired()
	return route
}

// ChunkFrames reports the frame count of the most recently produced block.
func (w *Worker) ChunkFrames() int {
	return int(w.chunkFrames.Load())
}

// SampleRate reports the active runner's sample rate.
func (w *Worker) SampleRate() uint32 {
	return w.sampleRate.Load()
}

// RequestReconfigure asks the sink worker to sync every sink stage's
// runtime control, picking up a route or spec change. Runs in its own
// goroutine so a slow sink can't stall the worker's tick.
func (w *Worker) RequestReconfigure() {
	go func() {
		if err := w.sink.SyncRuntimeControl(context.Background(), reconfigureTimeout); err != nil {
			w.publish(protocol.Error{Msg: "sink reconfigure failed: " + err.Error()})
		}
	}()
}

// Shutdown stops the runner and tears down the worker's goroutine.
func (w *Worker) Shutdown() {
	w.Submit(command{kind: cmdShutdown})
}
