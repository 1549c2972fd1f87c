package decodeworker

import (
	"fmt"
	"io"
	"sync"

	"github.com/stellatune/engine/internal/audioblock"
	"github.com/stellatune/engine/internal/pluginrt"
	"github.com/stellatune/engine/internal/transform"
)

// GraphRunner is the Runner implementation wiring a decoder session
// through the transform graph, per §4.6's decoder→transform→mix→sink
// pipeline. Track resolution (TrackRef → DecoderStream) is an external
// collaborator's concern; GraphRunner only owns the session once opened.
type GraphRunner struct {
	mu          sync.Mutex
	session     pluginrt.DecoderSession
	graph       *transform.Graph
	chunkFrames int
	spec        audioblock.StreamSpec
	posMs       uint64
}

// NewGraphRunner prepares every stage of graph against session's native
// spec and returns a Runner that reads chunkFrames at a time.
func NewGraphRunner(session pluginrt.DecoderSession, graph *transform.Graph, chunkFrames int) (*GraphRunner, error) {
	cur := session.Info()
	for _, st := range graph.All() {
		out, err := st.Prepare(cur)
		if err != nil {
			return nil, fmt.Errorf("decodeworker: prepare stage %q: %w", st.Key(), err)
		}
		cur = out
	}
	return &GraphRunner{session: session, graph: graph, chunkFrames: chunkFrames, spec: cur}, nil
}

// Step reads one chunk from the decoder and runs it through every stage of
// the graph in pre_mix, main, post_mix order.
func (r *GraphRunner) Step() StepResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	samples, err := r.session.ReadPcmF32(r.chunkFrames)
	if err == io.EOF {
		return StepResult{Kind: StepEof}
	}
	if err != nil {
		return StepResult{Kind: StepErr, Err: err}
	}
	if len(samples) == 0 {
		return StepResult{Kind: StepIdle}
	}

	nativeSpec := r.session.Info()
	block := &audioblock.Block{Channels: nativeSpec.Channels, Samples: samples}

	for _, st := range r.graph.All() {
		status, err := st.Process(block)
		if err != nil {
			return StepResult{Kind: StepErr, Err: fmt.Errorf("decodeworker: stage %q: %w", st.Key(), err)}
		}
		if status == transform.StatusFatal {
			return StepResult{Kind: StepErr, Err: fmt.Errorf("decodeworker: stage %q reported fatal status", st.Key())}
		}
	}

	frames := block.Frames()
	if nativeSpec.SampleRate > 0 {
		r.posMs += uint64(frames) * 1000 / uint64(nativeSpec.SampleRate)
	}
	return StepResult{Kind: StepProduced, Frames: frames, Block: block}
}

// PositionMs returns the cumulative position derived from frames read so
// far; DecoderSession does not expose position directly.
func (r *GraphRunner) PositionMs() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.posMs
}

// SeekMs delegates to the decoder session and resets the derived position.
func (r *GraphRunner) SeekMs(ms uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.session.SeekMs(ms); err != nil {
		return err
	}
	r.posMs = ms
	return nil
}

// StreamSpec returns the spec the graph produces after its last stage,
// which is what the sink side negotiates against.
func (r *GraphRunner) StreamSpec() audioblock.StreamSpec {
	return r.spec
}

// Close releases the decoder session and every graph stage's resources.
func (r *GraphRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, st := range r.graph.All() {
		if err := st.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := r.session.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
