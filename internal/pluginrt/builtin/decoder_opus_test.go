package builtin

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"gopkg.in/hraban/opus.v2"
)

type closableReader struct {
	*bytes.Reader
}

func (closableReader) Close() error { return nil }

func framedOpusStream(t *testing.T, sampleRate, channels int, frames int) []byte {
	t.Helper()
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		t.Fatalf("opus.NewEncoder: %v", err)
	}

	var buf bytes.Buffer
	pcm := make([]float32, opusFrameSamples*channels)
	for i := 0; i < frames; i++ {
		packet := make([]byte, 4000)
		n, err := enc.EncodeFloat32(pcm, packet)
		if err != nil {
			t.Fatalf("EncodeFloat32: %v", err)
		}
		packet = packet[:n]

		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(packet)))
		buf.Write(lenBuf[:])
		buf.Write(packet)
	}
	return buf.Bytes()
}

func TestOpusDecoderRoundTrip(t *testing.T) {
	const sampleRate = 48000
	const channels = 2

	data := framedOpusStream(t, sampleRate, channels, 3)
	stream := closableReader{bytes.NewReader(data)}

	d := NewOpusDecoder(sampleRate, channels)
	session, err := d.Open(context.Background(), stream, ".opus")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()

	spec := session.Info()
	if spec.SampleRate != sampleRate || spec.Channels != channels {
		t.Fatalf("Info = %+v", spec)
	}

	for i := 0; i < 3; i++ {
		out, err := session.ReadPcmF32(opusFrameSamples)
		if err != nil {
			t.Fatalf("ReadPcmF32 frame %d: %v", i, err)
		}
		if len(out) != opusFrameSamples*channels {
			t.Fatalf("frame %d len = %d, want %d", i, len(out), opusFrameSamples*channels)
		}
	}

	if _, err := session.ReadPcmF32(opusFrameSamples); err == nil {
		t.Fatal("expected EOF after exhausting the framed stream")
	}
}

func TestOpusDecoderSeekUnsupported(t *testing.T) {
	d := NewOpusDecoder(48000, 2)
	stream := closableReader{bytes.NewReader(nil)}
	session, err := d.Open(context.Background(), stream, ".opus")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()

	if err := session.SeekMs(1000); err == nil {
		t.Fatal("expected seek to be rejected")
	}
}
