package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/callbridge-io/callbridge/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian bytes.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func mustFormat(t *testing.T, layout audio.Layout, rate int, enc audio.Encoding) audio.StreamFormat {
	t.Helper()
	f, err := audio.ResolveFormat(layout, rate, enc)
	if err != nil {
		t.Fatalf("ResolveFormat: %v", err)
	}
	return f
}

func TestTranscoder_PassThrough(t *testing.T) {
	tr := audio.NewTranscoder(mustFormat(t, audio.LayoutMono, 8000, audio.EncodingL16))
	frame := audio.Frame{
		Data:       samplesToBytes([]int16{100, 200, 300}),
		SampleRate: 8000,
		Channels:   1,
	}
	out := tr.Process(frame)
	// Matching format: same slice, no copy.
	if &out[0] != &frame.Data[0] {
		t.Error("expected pass-through to return the input slice")
	}
}

func TestTranscoder_DownmixMixed(t *testing.T) {
	tr := audio.NewTranscoder(mustFormat(t, audio.LayoutMixed, 8000, audio.EncodingL16))
	frame := audio.Frame{
		Data:       samplesToBytes([]int16{100, 200, -100, -200}),
		SampleRate: 8000,
		Channels:   2,
	}
	got := bytesToSamples(tr.Process(frame))
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestTranscoder_StereoKeepsChannels(t *testing.T) {
	tr := audio.NewTranscoder(mustFormat(t, audio.LayoutStereo, 8000, audio.EncodingL16))
	frame := audio.Frame{
		Data:       samplesToBytes([]int16{100, 200, 300, 400}),
		SampleRate: 8000,
		Channels:   2,
	}
	got := bytesToSamples(tr.Process(frame))
	want := []int16{100, 200, 300, 400}
	if len(got) != len(want) {
		t.Fatalf("stereo data was downmixed: got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestTranscoder_Upsample(t *testing.T) {
	tr := audio.NewTranscoder(mustFormat(t, audio.LayoutMono, 16000, audio.EncodingL16))
	frame := audio.Frame{
		Data:       samplesToBytes([]int16{1000, 2000}),
		SampleRate: 8000,
		Channels:   1,
	}
	got := bytesToSamples(tr.Process(frame))
	if len(got) != 4 {
		t.Fatalf("expected 4 samples after 2x upsample, got %d", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	// Interpolated midpoint between 1000 and 2000.
	if got[1] < 1400 || got[1] > 1600 {
		t.Errorf("interpolated sample: got %d, want ~1500", got[1])
	}
}

func TestTranscoder_Downsample(t *testing.T) {
	tr := audio.NewTranscoder(mustFormat(t, audio.LayoutMono, 8000, audio.EncodingL16))
	frame := audio.Frame{
		Data:       samplesToBytes([]int16{100, 200, 300, 400}),
		SampleRate: 16000,
		Channels:   1,
	}
	got := bytesToSamples(tr.Process(frame))
	if len(got) != 2 {
		t.Fatalf("expected 2 samples after 2x downsample, got %d", len(got))
	}
	if got[0] != 100 {
		t.Errorf("first sample: got %d, want 100", got[0])
	}
}

func TestTranscoder_MuLawOutput(t *testing.T) {
	tr := audio.NewTranscoder(mustFormat(t, audio.LayoutMono, 8000, audio.EncodingPCMU))
	frame := audio.Frame{
		Data:       samplesToBytes([]int16{0, 0, 0, 0}),
		SampleRate: 8000,
		Channels:   1,
	}
	out := tr.Process(frame)
	if len(out) != 4 {
		t.Fatalf("expected 4 µ-law bytes, got %d", len(out))
	}
	for i, b := range out {
		if b != 0xFF {
			t.Errorf("byte %d: got %#02x, want 0xff (µ-law silence)", i, b)
		}
	}
}

func TestTranscoder_DownmixThenCompand(t *testing.T) {
	// Full pipeline: stereo capture, mixed layout, µ-law wire encoding.
	tr := audio.NewTranscoder(mustFormat(t, audio.LayoutMixed, 8000, audio.EncodingPCMU))
	frame := audio.Frame{
		Data:       samplesToBytes([]int16{1000, 1000, -1000, -1000}),
		SampleRate: 8000,
		Channels:   2,
	}
	out := tr.Process(frame)
	if len(out) != 2 {
		t.Fatalf("expected 2 µ-law bytes after downmix, got %d", len(out))
	}
	if audio.MuLawEncode(1000) != out[0] {
		t.Errorf("byte 0: got %#02x, want encoding of 1000", out[0])
	}
	if audio.MuLawEncode(-1000) != out[1] {
		t.Errorf("byte 1: got %#02x, want encoding of -1000", out[1])
	}
}

func TestTranscoder_StereoResample(t *testing.T) {
	tr := audio.NewTranscoder(mustFormat(t, audio.LayoutStereo, 16000, audio.EncodingL16))
	frame := audio.Frame{
		Data:       samplesToBytes([]int16{100, 200, 300, 400}),
		SampleRate: 8000,
		Channels:   2,
	}
	got := bytesToSamples(tr.Process(frame))
	// 2 stereo frames at 8k → 4 stereo frames at 16k → 8 samples.
	if len(got) != 8 {
		t.Fatalf("expected 8 samples, got %d", len(got))
	}
	// First frame is untouched and channels stay interleaved.
	if got[0] != 100 || got[1] != 200 {
		t.Errorf("first stereo frame: got (%d, %d), want (100, 200)", got[0], got[1])
	}
}
