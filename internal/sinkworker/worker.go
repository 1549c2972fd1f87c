// Package sinkworker runs the dedicated goroutine that owns a pipeline's
// sink stages, pulled from a ring of audio blocks by the decode worker.
// Grounded on the teacher's AudioEngine.playbackLoop goroutine lifecycle in
// client/audio.go (Start launches it, Stop coordinates shutdown via a
// closed channel plus WaitGroup), generalized from a single hardwired
// playback stream to an arbitrary set of transform.SinkStage sinks.
package sinkworker

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"github.com/stellatune/engine/internal/audioblock"
	"github.com/stellatune/engine/internal/transform"
)

// ErrSinkDisconnected is returned when the worker loop is not running:
// before Run has started, or after it has exited (for example once a sink
// has reported Fatal or EOF from Write).
var ErrSinkDisconnected = errors.New("sinkworker: sink disconnected")

// ErrFull is returned by TrySendBlock when the audio ring has no room.
var ErrFull = errors.New("sinkworker: ring full")

// defaultBlockRingCapacity is the default depth of the SPSC audio-block
// ring, configurable via New's capacity parameter.
const defaultBlockRingCapacity = 8

// Worker owns one or more sink stages and a dedicated goroutine that
// drains a ring of audio blocks into them. All control operations (sync,
// drain, drop_queued, shutdown) are serialized through a single mailbox
// the worker goroutine processes with priority over audio wakes — a
// biased select checks the control mailbox first on every iteration.
type Worker struct {
	sinks []transform.SinkStage

	blocks chan *audioblock.Block
	wake   chan struct{}

	control chan controlRequest

	running    atomic.Bool
	exitReason atomic.Value // stores error, nil until set

	wg sync.WaitGroup
}

type controlKind int

const (
	ctrlSync controlKind = iota
	ctrlDrain
	ctrlDropQueued
	ctrlShutdown
)

type controlRequest struct {
	kind    controlKind
	drain   bool // for ctrlShutdown: whether to drain+flush before exit
	reply   chan error
}

// New returns a Worker over sinks with an audio-block ring of the given
// capacity (defaultBlockRingCapacity if capacity <= 0). Call Run to start
// its goroutine.
func New(sinks []transform.SinkStage, capacity int) *Worker {
	if capacity <= 0 {
		capacity = defaultBlockRingCapacity
	}
	return &Worker{
		sinks:   sinks,
		blocks:  make(chan *audioblock.Block, capacity),
		wake:    make(chan struct{}, 1),
		control: make(chan controlRequest, 4),
	}
}

// Run executes the worker's loop until a control Shutdown is processed or
// a sink reports a fatal/EOF write outcome. Intended to be launched with
// `go worker.Run()`.
func (w *Worker) Run() {
	w.running.Store(true)
	defer w.running.Store(false)

	for {
		// Biased select: drain the control mailbox first so route changes
		// and shutdown requests are never starved by a busy audio stream.
		select {
		case req := <-w.control:
			if w.handleControl(req) {
				return
			}
			continue
		default:
		}

		select {
		case req := <-w.control:
			if w.handleControl(req) {
				return
			}
		case block := <-w.blocks:
			if err := w.writeToSinks(block); err != nil {
				w.exitReason.Store(err)
				log.Printf("[sinkworker] sink disconnected: %v", err)
				return
			}
		case <-w.wake:
			// Spurious wake with nothing queued; loop back to select again.
		}
	}
}

// writeToSinks pushes block through every sink in order. The first sink
// that returns StatusFatal or StatusEOF ends the worker loop.
func (w *Worker) writeToSinks(block *audioblock.Block) error {
	for _, sink := range w.sinks {
		status, err := sink.Write(block)
		if status == transform.StatusFatal || status == transform.StatusEOF {
			if err == nil {
				err = ErrSinkDisconnected
			}
			return err
		}
	}
	return nil
}

// TrySendResult is the outcome of a non-blocking TrySendBlock call.
type TrySendResult int

const (
	Accepted TrySendResult = iota
	Full
	Disconnected
)

// TrySendBlock is the non-blocking write path: push block to the ring and
// wake the worker goroutine (spurious wakes are permitted and harmless).
// Returns Full if the ring has no room, Disconnected if the worker loop is
// not running (not yet started, or already exited).
func (w *Worker) TrySendBlock(block *audioblock.Block) TrySendResult {
	if !w.running.Load() {
		return Disconnected
	}
	select {
	case w.blocks <- block:
	default:
		return Full
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return Accepted
}

// QueuedBlocks reports the number of blocks currently buffered in the
// audio-block ring, for the metrics registry's queue-depth gauge.
func (w *Worker) QueuedBlocks() int {
	return len(w.blocks)
}
