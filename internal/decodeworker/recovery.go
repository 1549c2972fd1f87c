package decodeworker

import (
	"context"
	"time"

	"github.com/stellatune/engine/internal/protocol"
)

// recoveryState tracks an in-progress exponential-backoff sink-recovery
// attempt per §4.6.3. positionMs is the position the runner was at when
// the sink disconnected, so the rebuilt runner can resume from the same
// point rather than restarting the track.
type recoveryState struct {
	active     bool
	attempt    int
	retryAt    time.Time
	positionMs uint64
}

// onSinkDisconnected stops the current runner and begins (or advances)
// sink recovery. The runner is expected to still be non-nil on first entry
// so its position can be captured; subsequent calls (from a failed retry)
// arrive with w.runner already nil.
func (w *Worker) onSinkDisconnected(cause error) {
	if !w.recovery.active {
		pos := uint64(0)
		if w.runner != nil {
			pos = w.runner.PositionMs()
		}
		w.closeRunner()
		w.recovery = recoveryState{active: true, positionMs: pos}
	}
	w.recovery.attempt++

	if w.recovery.attempt > w.opts.MaxAttempts {
		w.publish(protocol.Error{Msg: "sink recovery exhausted retries"})
		w.recovery = recoveryState{}
		w.running = false
		return
	}

	backoff := w.opts.InitialBackoff * time.Duration(1<<uint(w.recovery.attempt-1))
	if backoff > w.opts.MaxBackoff {
		backoff = w.opts.MaxBackoff
	}
	w.recovery.retryAt = time.Now().Add(backoff)

	w.publish(protocol.Recovering{
		Attempt:   w.recovery.attempt,
		BackoffMs: uint64(backoff / time.Millisecond),
	})
}

// maybeRetryRecovery is called each tick while recovery is active. Once
// retryAt has elapsed it rebuilds the runner pinned to the last track at
// the saved position and reconfigures the sink for an immediate cutover.
func (w *Worker) maybeRetryRecovery() {
	if !w.recovery.active || time.Now().Before(w.recovery.retryAt) {
		return
	}

	if err := w.sink.SyncRuntimeControl(context.Background(), 200*time.Millisecond); err != nil {
		w.onSinkDisconnected(err)
		return
	}

	runner, err := w.open(w.lastTrack, w.recovery.positionMs)
	if err != nil {
		w.onSinkDisconnected(err)
		return
	}

	w.runner = runner
	w.sampleRate.Store(runner.StreamSpec().SampleRate)
	w.recovery = recoveryState{}
	w.running = true
}
