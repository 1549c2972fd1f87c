package sinkworker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrControlTimeout is returned when a control RPC's caller-supplied
// timeout elapses before the worker goroutine replies. Distinguishable
// from ErrSinkDisconnected so callers can tell a slow worker from a dead
// one.
var ErrControlTimeout = errors.New("sinkworker: control request timed out")

// send returns ErrSinkDisconnected up front if the worker loop is not
// running. Otherwise it waits up to timeout to enqueue req and up to
// timeout for the reply; a worker that exits in between surfaces as
// ErrControlTimeout.
func (w *Worker) send(req controlRequest, timeout time.Duration) error {
	if !w.running.Load() {
		return ErrSinkDisconnected
	}

	select {
	case w.control <- req:
	case <-time.After(timeout):
		return ErrControlTimeout
	}

	select {
	case err := <-req.reply:
		return err
	case <-time.After(timeout):
		return ErrControlTimeout
	}
}

// SyncRuntimeControl calls SyncRuntimeControl on every sink, serialized
// onto the worker goroutine. ctx is accepted for cancellation-aware
// callers but the underlying sink calls are not individually
// context-aware; timeout still bounds the whole round trip.
func (w *Worker) SyncRuntimeControl(ctx context.Context, timeout time.Duration) error {
	reply := make(chan error, 1)
	return w.send(controlRequest{kind: ctrlSync, reply: reply}, timeout)
}

// Drain drains pending blocks into the sinks, then flushes every sink.
func (w *Worker) Drain(timeout time.Duration) error {
	reply := make(chan error, 1)
	return w.send(controlRequest{kind: ctrlDrain, reply: reply}, timeout)
}

// DropQueued clears pending blocks without writing them to any sink.
func (w *Worker) DropQueued(timeout time.Duration) error {
	reply := make(chan error, 1)
	return w.send(controlRequest{kind: ctrlDropQueued, reply: reply}, timeout)
}

// Shutdown optionally drains+flushes, then exits the worker loop and
// stops every sink.
func (w *Worker) Shutdown(drain bool, timeout time.Duration) error {
	reply := make(chan error, 1)
	return w.send(controlRequest{kind: ctrlShutdown, drain: drain, reply: reply}, timeout)
}

// handleControl executes one control request on the worker goroutine and
// replies. It returns true if the worker loop should exit (shutdown).
func (w *Worker) handleControl(req controlRequest) bool {
	switch req.kind {
	case ctrlSync:
		req.reply <- w.syncAllSinks()
		return false

	case ctrlDrain:
		req.reply <- w.drainAndFlush()
		return false

	case ctrlDropQueued:
		w.dropQueuedLocked()
		req.reply <- nil
		return false

	case ctrlShutdown:
		var err error
		if req.drain {
			err = w.drainAndFlush()
		}
		for _, sink := range w.sinks {
			if stopErr := sink.Stop(); stopErr != nil && err == nil {
				err = stopErr
			}
		}
		req.reply <- err
		return true

	default:
		req.reply <- fmt.Errorf("sinkworker: unknown control kind %d", req.kind)
		return false
	}
}

func (w *Worker) syncAllSinks() error {
	var first error
	for _, sink := range w.sinks {
		if err := sink.SyncRuntimeControl(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (w *Worker) drainAndFlush() error {
	for {
		select {
		case block := <-w.blocks:
			if err := w.writeToSinks(block); err != nil {
				return err
			}
		default:
			var first error
			for _, sink := range w.sinks {
				if err := sink.Flush(); err != nil && first == nil {
					first = err
				}
			}
			return first
		}
	}
}

func (w *Worker) dropQueuedLocked() {
	for {
		select {
		case <-w.blocks:
		default:
			return
		}
	}
}
