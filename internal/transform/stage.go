// Package transform implements the three-segment transform graph (pre_mix,
// main, post_mix) of ordered stages, and the built-in stage/sink capability
// set.
//
// Grounded on the teacher's DSP packages (client/internal/agc, vad,
// noisegate, aec), which each expose a narrow Process-in-place capability;
// here that capability set is made polymorphic over a small closed set of
// operations (prepare/process/flush/stop/sync/apply-control) so built-in and
// plugin-provided stages share one vtable, per the spec's dynamic-dispatch
// design note.
package transform

import (
	"errors"

	"github.com/stellatune/engine/internal/audioblock"
)

// ErrEmptyKey is returned when a stage is registered with an empty key.
var ErrEmptyKey = errors.New("transform: stage key must be non-empty")

// Status is the outcome of a single process/write call.
type Status int

const (
	// StatusOK indicates the block was fully handled.
	StatusOK Status = iota
	// StatusFatal indicates the stage can no longer process blocks; the
	// caller must stop and tear down the pipeline segment it belongs to.
	StatusFatal
	// StatusEOF indicates the stage has reached a natural end (used by sink
	// stages backed by a plugin output session that has been closed).
	StatusEOF
)

// Stage is the capability set shared by every transform stage, built-in or
// plugin-provided. Identified by a unique, non-empty Key within the graph.
type Stage interface {
	// Key returns the stage's unique identifier within the transform graph.
	Key() string
	// Prepare is called once the stage is inserted and its input spec is
	// known; it returns the spec the stage will produce.
	Prepare(in audioblock.StreamSpec) (out audioblock.StreamSpec, err error)
	// Process transforms block in place (or replaces its contents) and
	// reports the outcome.
	Process(block *audioblock.Block) (Status, error)
	// Flush asks the stage to emit any buffered state immediately.
	Flush() error
	// Stop releases any resources held by the stage.
	Stop() error
	// SyncRuntimeControl is called periodically (or after a control-plane
	// change) so the stage can pick up asynchronous state such as a sink
	// reconfiguration or a plugin directive.
	SyncRuntimeControl() error
	// ApplyControl delivers an opaque, stage-specific control payload (e.g.
	// a master-gain ramp request or a plugin config update already
	// interpreted by the caller).
	ApplyControl(payload any) error
}

// SinkStage is the capability set for a terminal stage: same lifecycle as
// Stage but Write instead of Process.
type SinkStage interface {
	Key() string
	Prepare(in audioblock.StreamSpec) (out audioblock.StreamSpec, err error)
	Write(block *audioblock.Block) (Status, error)
	Flush() error
	Stop() error
	SyncRuntimeControl() error
	ApplyControl(payload any) error
}

// BaseStage provides no-op implementations of the optional capability
// methods so concrete stages only need to implement Process (or Write) and
// Prepare. Embed it by value.
type BaseStage struct{}

func (BaseStage) Flush() error                    { return nil }
func (BaseStage) Stop() error                      { return nil }
func (BaseStage) SyncRuntimeControl() error        { return nil }
func (BaseStage) ApplyControl(payload any) error  { return nil }
