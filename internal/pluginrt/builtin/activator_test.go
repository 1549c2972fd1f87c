package builtin

import (
	"testing"

	"github.com/stellatune/engine/internal/pluginrt"
)

func TestActivatorActivatesDecoder(t *testing.T) {
	a := NewActivator()
	inst, err := a.Activate(pluginrt.Discovered{Manifest: pluginrt.Manifest{
		ID:           "builtin-opus",
		Capabilities: []pluginrt.Capability{pluginrt.CapabilityDecoder},
		Metadata:     map[string]string{"sample_rate": "44100", "channels": "1"},
	}})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	defer inst.Close()

	bi, ok := inst.(*Instance)
	if !ok {
		t.Fatalf("Instance type = %T, want *Instance", inst)
	}
	if bi.Decoder() == nil {
		t.Fatal("Decoder() = nil")
	}
	if bi.LyricsProvider() != nil {
		t.Fatal("LyricsProvider() should be nil for a Decoder instance")
	}
}

func TestActivatorActivatesDecoderWithDefaultMetadata(t *testing.T) {
	a := NewActivator()
	inst, err := a.Activate(pluginrt.Discovered{Manifest: pluginrt.Manifest{
		ID:           "builtin-opus",
		Capabilities: []pluginrt.Capability{pluginrt.CapabilityDecoder},
	}})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	defer inst.Close()

	bi := inst.(*Instance)
	od, ok := bi.Decoder().(*OpusDecoder)
	if !ok {
		t.Fatalf("Decoder() type = %T, want *OpusDecoder", bi.Decoder())
	}
	if od.sampleRate != defaultSampleRate || od.channels != defaultChannels {
		t.Fatalf("OpusDecoder = %+v, want sampleRate %d channels %d", od, defaultSampleRate, defaultChannels)
	}
}

func TestActivatorActivatesLyricsProvider(t *testing.T) {
	a := NewActivator()
	inst, err := a.Activate(pluginrt.Discovered{Manifest: pluginrt.Manifest{
		ID:           "builtin-lyrics",
		Capabilities: []pluginrt.Capability{pluginrt.CapabilityLyricsProvider},
		Metadata:     map[string]string{"search_url": "http://example.invalid/search?q=%s", "fetch_url": "http://example.invalid/fetch?q=%s"},
	}})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	defer inst.Close()

	bi := inst.(*Instance)
	if bi.LyricsProvider() == nil {
		t.Fatal("LyricsProvider() = nil")
	}
	if bi.Decoder() != nil {
		t.Fatal("Decoder() should be nil for a LyricsProvider instance")
	}
}

func TestActivatorRejectsUnsatisfiableCapability(t *testing.T) {
	a := NewActivator()
	_, err := a.Activate(pluginrt.Discovered{Manifest: pluginrt.Manifest{
		ID:           "sandboxed-dsp",
		Capabilities: []pluginrt.Capability{pluginrt.CapabilityDsp},
	}})
	if err == nil {
		t.Fatal("expected error for a Dsp-only manifest")
	}
}

func TestIntMetadataFallsBackOnMissingOrInvalid(t *testing.T) {
	meta := map[string]string{"channels": "not-a-number"}
	if got := intMetadata(meta, "sample_rate", 48000); got != 48000 {
		t.Fatalf("missing key = %d, want 48000", got)
	}
	if got := intMetadata(meta, "channels", 2); got != 2 {
		t.Fatalf("invalid value = %d, want fallback 2", got)
	}
}
