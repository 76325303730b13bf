// Package audio defines the frame, format, and buffering primitives for the
// callbridge media path.
//
// The three building blocks are:
//
//   - [Frame] — the atomic unit of audio flowing between the call tap, the
//     frame engine, and the remote sink.
//   - Format policy ([ResolveFormat] and the token parsers) — validates a
//     requested sample rate / channel layout / encoding combination against
//     the supported matrix.
//   - [PlaybackBuffer] — the warmup-gated byte FIFO through which audio
//     received from the sink reaches the call's write path.
//
// This package lives under pkg/ because platform tap adapters and sink
// transports exchange these types across module boundaries.
package audio

import "time"

// Telephony frame constants. The playback path is fixed to linear-16 mono at
// 8 kHz regardless of the capture format requested at start time; the host
// platform transcodes injected frames to the call's wire codec.
const (
	// PlaybackRate is the sample rate of injected playback frames in Hz.
	PlaybackRate = 8000

	// QuantumSamples is the number of samples injected per frame tick.
	QuantumSamples = 160

	// QuantumBytes is the size of one playback quantum: 160 linear-16
	// samples, 20ms at 8 kHz.
	QuantumBytes = QuantumSamples * 2

	// FrameDuration is the nominal cadence of the call's media tap.
	FrameDuration = 20 * time.Millisecond
)

// Frame represents a single frame of audio crossing the tap boundary.
// Inbound frames are captured from the call leg once per tick; outbound
// frames are injected into the call's write path.
type Frame struct {
	// Data is linear-16 little-endian PCM.
	Data []byte

	// SampleRate in Hz (e.g. 8000 for a G.711 call leg).
	SampleRate int

	// Channels: 1 for mono capture, 2 for dual-channel capture.
	Channels int

	// Timestamp marks when this frame was captured, relative to tap attach.
	Timestamp time.Duration
}

// Samples returns the number of PCM samples in the frame across all channels.
func (f Frame) Samples() int {
	return len(f.Data) / 2
}

// Duration returns the wall-clock audio duration the frame covers, or zero
// when the frame carries no format information.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	perChannel := f.Samples() / f.Channels
	return time.Duration(perChannel) * time.Second / time.Duration(f.SampleRate)
}

// PlaybackFrame wraps one drained playback quantum in the fixed injection
// format (160 samples, linear-16, 8 kHz mono).
func PlaybackFrame(quantum []byte, ts time.Duration) Frame {
	return Frame{
		Data:       quantum,
		SampleRate: PlaybackRate,
		Channels:   1,
		Timestamp:  ts,
	}
}
