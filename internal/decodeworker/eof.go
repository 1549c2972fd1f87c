package decodeworker

import (
	"context"
	"time"

	"github.com/stellatune/engine/internal/protocol"
)

// prewarmedNext holds a Runner opened ahead of EOF for gapless playback,
// per §4.6.1: PreloadTrackRef opens the next track's decoder/transform
// chain while the current track is still playing, so EOF can promote it
// without a decode gap.
type prewarmedNext struct {
	runner Runner
	track  protocol.TrackRef
	token  string
}

// preload opens the next track ahead of time and stashes it as the
// prewarmed runner, replacing any previous one.
func (w *Worker) preload(track protocol.TrackRef, positionMs uint64) {
	if w.prewarmed != nil {
		w.prewarmed.runner.Close()
		w.prewarmed = nil
	}
	runner, err := w.open(track, positionMs)
	if err != nil {
		w.publish(protocol.Error{Msg: err.Error()})
		return
	}
	w.prewarmed = &prewarmedNext{runner: runner, track: track, token: track.URI}
}

// handleEof reacts to the active runner reaching end of stream: promote a
// prewarmed next track for a gapless transition, otherwise stop and
// surface Eof.
func (w *Worker) handleEof() {
	if w.opts.GaplessPlayback && w.prewarmed != nil {
		w.promotePrewarmed()
		return
	}

	w.running = false
	w.closeRunner()
	w.publish(protocol.Eof{})
}

func (w *Worker) promotePrewarmed() {
	next := w.prewarmed
	w.prewarmed = nil

	prevSpec := w.runner.StreamSpec()
	w.closeRunner()
	w.runner = next.runner
	w.lastTrack = next.track
	w.sampleRate.Store(next.runner.StreamSpec().SampleRate)

	if !next.runner.StreamSpec().Equal(prevSpec) {
		// Route needs to be rebuilt for the new spec; best-effort sync so
		// the sink stage renegotiates before frames start flowing.
		if err := w.sink.SyncRuntimeControl(context.Background(), 200*time.Millisecond); err != nil {
			w.publish(protocol.Error{Msg: err.Error()})
		}
	}

	w.gain.Set(1.0, 50*time.Millisecond)
	w.lastEmit = time.Time{}
	w.publish(protocol.Position{Ms: 0})
	w.publish(protocol.TrackChanged{Token: next.token})
}
