package devicesink

import (
	"github.com/stellatune/engine/internal/audioblock"
	"github.com/stellatune/engine/internal/transform"
)

// Stage adapts an Adapter to the transform.SinkStage contract so the sink
// worker can drive it uniformly alongside any other post-mix sink.
type Stage struct {
	transform.BaseStage
	key     string
	adapter *Adapter
}

// NewStage wraps adapter as a named SinkStage.
func NewStage(key string, adapter *Adapter) *Stage {
	return &Stage{key: key, adapter: adapter}
}

func (s *Stage) Key() string { return s.key }

func (s *Stage) Prepare(in audioblock.StreamSpec) (audioblock.StreamSpec, error) {
	if err := s.adapter.Prepare(in); err != nil {
		return in, err
	}
	return in, nil
}

// Write always reports StatusOK: the adapter absorbs backpressure by
// dropping samples and counting them rather than failing the write, per
// the Device Sink Adapter's write-backpressure-timeout contract.
func (s *Stage) Write(block *audioblock.Block) (transform.Status, error) {
	s.adapter.Write(block)
	return transform.StatusOK, nil
}

func (s *Stage) Flush() error {
	return s.adapter.Flush()
}

func (s *Stage) Stop() error {
	return s.adapter.Stop()
}

func (s *Stage) SyncRuntimeControl() error {
	return s.adapter.SyncRuntimeControl()
}
