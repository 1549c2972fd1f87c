package builtin

import (
	"fmt"
	"strconv"

	"github.com/stellatune/engine/internal/pluginrt"
)

const (
	defaultSampleRate = 48000
	defaultChannels   = 2
)

// Activator satisfies manifests declaring the Decoder or LyricsProvider
// capability with this package's in-process implementations, without any
// sandbox process. Manifests declaring Dsp, SourceCatalog, or OutputSink
// are rejected — those capabilities need the sandbox host, a separate
// integration from the built-in set.
type Activator struct{}

// NewActivator returns the built-in Activator.
func NewActivator() *Activator { return &Activator{} }

// Activate builds the first built-in-satisfiable capability d's manifest
// declares, preferring Decoder over LyricsProvider when a manifest
// declares both (unusual, but not invalid).
func (Activator) Activate(d pluginrt.Discovered) (pluginrt.Instance, error) {
	m := d.Manifest
	declares := func(want pluginrt.Capability) bool {
		for _, c := range m.Capabilities {
			if c == want {
				return true
			}
		}
		return false
	}
	if declares(pluginrt.CapabilityDecoder) {
		sampleRate := intMetadata(m.Metadata, "sample_rate", defaultSampleRate)
		channels := intMetadata(m.Metadata, "channels", defaultChannels)
		return &Instance{decoder: NewOpusDecoder(sampleRate, channels)}, nil
	}
	if declares(pluginrt.CapabilityLyricsProvider) {
		return &Instance{lyrics: NewHTTPLyricsProvider(m.Metadata["search_url"], m.Metadata["fetch_url"])}, nil
	}
	return nil, fmt.Errorf("builtin: plugin %s declares no built-in-satisfiable capability", m.ID)
}

// Instance wraps whichever built-in capability Activate constructed, so a
// Lease.Instance can be type-asserted back to the concrete capability
// interface the caller needs.
type Instance struct {
	decoder *OpusDecoder
	lyrics  *HTTPLyricsProvider
}

func (i *Instance) Close() error { return nil }

// Decoder returns the wrapped OpusDecoder, or nil if this instance was not
// activated for the Decoder capability.
func (i *Instance) Decoder() pluginrt.Decoder {
	if i.decoder == nil {
		return nil
	}
	return i.decoder
}

// LyricsProvider returns the wrapped HTTPLyricsProvider, or nil if this
// instance was not activated for the LyricsProvider capability.
func (i *Instance) LyricsProvider() pluginrt.LyricsProvider {
	if i.lyrics == nil {
		return nil
	}
	return i.lyrics
}

func intMetadata(meta map[string]string, key string, fallback int) int {
	v, ok := meta[key]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
