// Package builtin provides in-process capability implementations the
// engine can use without any external plugin present: a Decoder for
// length-prefixed raw Opus packet streams and an HTTP-backed LyricsProvider.
//
// Grounded on the teacher client's Opus usage (gopkg.in/hraban/opus.v2,
// wired for encode in client/internal/webrtc) — here used for decode
// instead, completing the codec's round trip within the module.
package builtin

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"gopkg.in/hraban/opus.v2"

	"github.com/stellatune/engine/internal/audioblock"
	"github.com/stellatune/engine/internal/pluginrt"
)

const opusFrameSamples = 960 // 20ms at 48kHz

// OpusDecoder is the built-in Decoder capability for raw Opus packet
// streams framed as a big-endian uint32 length prefix per packet (the
// host-side framing the sandbox's byte-stream import uses; an actual
// Ogg demuxer front-end is out of scope for the built-in decoder, which
// exists to guarantee Opus playback with zero external plugins).
type OpusDecoder struct {
	sampleRate int
	channels   int
}

// NewOpusDecoder returns a Decoder producing audio at sampleRate/channels.
func NewOpusDecoder(sampleRate, channels int) *OpusDecoder {
	return &OpusDecoder{sampleRate: sampleRate, channels: channels}
}

func (d *OpusDecoder) OnEnable() error                                { return nil }
func (d *OpusDecoder) OnDisable(pluginrt.DisableReason) error         { return nil }
func (d *OpusDecoder) PlanConfigUpdate(string) (pluginrt.ConfigPlan, error) {
	return pluginrt.ConfigPlan{Mode: pluginrt.ModeApplied}, nil
}
func (d *OpusDecoder) ApplyConfigUpdate(string) (pluginrt.ConfigOutcome, error) {
	return pluginrt.ConfigOutcome{Mode: pluginrt.ModeApplied}, nil
}

// Open begins decoding stream, a length-prefixed Opus packet stream.
func (d *OpusDecoder) Open(ctx context.Context, stream pluginrt.DecoderStream, extHint string) (pluginrt.DecoderSession, error) {
	dec, err := opus.NewDecoder(d.sampleRate, d.channels)
	if err != nil {
		return nil, fmt.Errorf("builtin: new opus decoder: %w", err)
	}
	return &opusSession{stream: stream, dec: dec, channels: d.channels, sampleRate: d.sampleRate}, nil
}

type opusSession struct {
	stream     pluginrt.DecoderStream
	dec        *opus.Decoder
	channels   int
	sampleRate int
	posMs      uint64
}

func (s *opusSession) Info() audioblock.StreamSpec {
	return audioblock.StreamSpec{SampleRate: uint32(s.sampleRate), Channels: uint16(s.channels)}
}

func (s *opusSession) Metadata() map[string]string { return nil }

// ReadPcmF32 decodes the next framed Opus packet and returns all of its
// output (at most opusFrameSamples frames). maxFrames is not consulted: a
// packet's decode is never split across calls.
func (s *opusSession) ReadPcmF32(maxFrames int) ([]float32, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(s.stream, lenBuf[:]); err != nil {
		return nil, err
	}
	packetLen := binary.BigEndian.Uint32(lenBuf[:])
	packet := make([]byte, packetLen)
	if _, err := io.ReadFull(s.stream, packet); err != nil {
		return nil, err
	}

	out := make([]float32, opusFrameSamples*s.channels)
	n, err := s.dec.DecodeFloat32(packet, out)
	if err != nil {
		return nil, fmt.Errorf("builtin: opus decode: %w", err)
	}
	out = out[:n*s.channels]
	s.posMs += uint64(n) * 1000 / uint64(s.sampleRate)
	return out, nil
}

func (s *opusSession) SeekMs(ms uint64) error {
	return fmt.Errorf("builtin: opus decoder does not support seeking on a raw packet stream")
}

func (s *opusSession) Close() error { return s.stream.Close() }
