package pluginrt

import (
	"context"

	"github.com/stellatune/engine/internal/audioblock"
)

// DisableReason is passed to on_disable so a capability instance can tell
// a routine unload from an operator-initiated disable.
type DisableReason int

const (
	HostDisable DisableReason = iota
	Unload
	Shutdown
	Reload
)

// Lifecycle is embedded by every capability kind: on_enable/on_disable plus
// the shared JSON config-update protocol.
type Lifecycle interface {
	OnEnable() error
	OnDisable(reason DisableReason) error

	// PlanConfigUpdate previews how newJSON would be applied, without
	// committing it.
	PlanConfigUpdate(newJSON string) (ConfigPlan, error)
	// ApplyConfigUpdate applies newJSON and returns the outcome the
	// controller interprets per §4.4.3.
	ApplyConfigUpdate(newJSON string) (ConfigOutcome, error)
}

// ConfigUpdateMode is the controller-facing classification of a planned or
// applied config update.
type ConfigUpdateMode int

const (
	ModeApplied ConfigUpdateMode = iota
	ModeRequiresRecreate
	ModeRejected
	ModeFailed
)

// ConfigPlan is the result of PlanConfigUpdate.
type ConfigPlan struct {
	Mode   ConfigUpdateMode
	Reason string
}

// ConfigOutcome is the result of ApplyConfigUpdate.
type ConfigOutcome struct {
	Mode       ConfigUpdateMode
	Generation uint64
	Reason     string
	Err        error
}

// Decoder opens a stream and produces interleaved f32 PCM at the decoder's
// native sample rate and channel count.
type Decoder interface {
	Lifecycle
	Open(ctx context.Context, stream DecoderStream, extHint string) (DecoderSession, error)
}

// DecoderStream is the host-provided byte source a Decoder reads from.
type DecoderStream interface {
	Read(p []byte) (int, error)
	Close() error
}

// DecoderSession is an open decode session.
type DecoderSession interface {
	Info() audioblock.StreamSpec
	Metadata() map[string]string
	ReadPcmF32(maxFrames int) ([]float32, error)
	SeekMs(ms uint64) error
	Close() error
}

// Dsp processes interleaved f32 audio in place, given as raw bytes so the
// sandbox boundary can pass a single buffer without per-sample marshaling.
type Dsp interface {
	Lifecycle
	Create(spec audioblock.StreamSpec) (DspProcessor, error)
}

type DspProcessor interface {
	ProcessInterleavedF32(channels uint16, bytes []byte) error
	SupportedLayouts() []audioblock.StreamSpec
	OutputChannels() uint16
	Close() error
}

// OutputSink is the plugin-provided alternate to the built-in device sink.
type OutputSink interface {
	Lifecycle
	Create() (OutputSinkSession, error)
}

type NegotiatedSpec struct {
	Spec               audioblock.StreamSpec
	PreferredChunkFrames int
	Flags              map[string]string
}

type OutputSinkStatus struct {
	QueuedSamples int
	Running       bool
}

type OutputSinkSession interface {
	ListTargetsJSON() (string, error)
	NegotiateSpec(desired audioblock.StreamSpec) (NegotiatedSpec, error)
	Open(target string, spec audioblock.StreamSpec) error
	WriteInterleavedF32(channels uint16, samples []float32) (acceptedFrames int, err error)
	QueryStatus() (OutputSinkStatus, error)
	Flush() error
	Reset() error
	Close() error
}

// SourceCatalog exposes a browsable library of tracks backed by the
// plugin (e.g. a streaming service or local library indexer).
type SourceCatalog interface {
	Lifecycle
	ListItemsJSON(requestJSON string) (string, error)
	OpenStreamJSON(trackJSON string) (DecoderStream, error)
	OpenURI(uri string) (DecoderStream, error)
}

// LyricsProvider looks up and fetches lyrics for a track.
type LyricsProvider interface {
	Lifecycle
	SearchJSON(queryJSON string) (string, error)
	FetchJSON(trackJSON string) (string, error)
}
