package audio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Encoding identifies the wire encoding of audio forwarded to the sink.
type Encoding int

const (
	// EncodingL16 is linear PCM, 16-bit little-endian (default).
	EncodingL16 Encoding = iota

	// EncodingPCMU is G.711 µ-law.
	EncodingPCMU

	// EncodingPCMA is G.711 A-law.
	EncodingPCMA
)

// String returns the canonical token for the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingL16:
		return "l16"
	case EncodingPCMU:
		return "pcmu"
	case EncodingPCMA:
		return "pcma"
	default:
		return "unknown"
	}
}

// Layout selects how the call leg's audio is captured and delivered.
type Layout int

const (
	// LayoutMono captures the caller's leg only.
	LayoutMono Layout = iota

	// LayoutMixed captures both legs downmixed into a single channel.
	LayoutMixed

	// LayoutStereo captures both legs and delivers them as separate channels.
	LayoutStereo
)

// String returns the command-surface token for the layout.
func (l Layout) String() string {
	switch l {
	case LayoutMono:
		return "mono"
	case LayoutMixed:
		return "mixed"
	case LayoutStereo:
		return "stereo"
	default:
		return "unknown"
	}
}

// Channels returns the channel count delivered to the sink for this layout.
// Mixed capture is downmixed before forwarding, so it counts as one channel.
func (l Layout) Channels() int {
	if l == LayoutStereo {
		return 2
	}
	return 1
}

// DualCapture reports whether the layout requires tapping both call legs.
func (l Layout) DualCapture() bool {
	return l == LayoutMixed || l == LayoutStereo
}

// StreamFormat is a validated capture format resolved by [ResolveFormat].
type StreamFormat struct {
	SampleRate int
	Layout     Layout
	Encoding   Encoding
}

// Format policy rejection reasons. [ErrRateForEncoding] is deliberately
// distinct from [ErrInvalidRate]: a rate that is valid on its own may still
// be unsupported for a non-linear encoding.
var (
	// ErrInvalidRate rejects rates that are not positive multiples of 8000 Hz.
	ErrInvalidRate = errors.New("sample rate must be a positive multiple of 8000")

	// ErrRateForEncoding rejects G.711 encodings at any rate other than 8000 Hz.
	ErrRateForEncoding = errors.New("unsupported sample rate for encoding: G.711 (pcmu/pcma) requires 8000 Hz")

	// ErrInvalidLayout rejects unknown channel layout tokens.
	ErrInvalidLayout = errors.New("layout must be mono, mixed, or stereo")
)

// ResolveFormat validates the requested encoding, sample rate, and layout
// against the supported matrix and returns the resolved capture format.
//
// Rules: the rate must be a positive multiple of 8000 Hz; µ-law and A-law are
// accepted only at exactly 8000 Hz and rejected with [ErrRateForEncoding]
// (not the generic [ErrInvalidRate]) at any other rate.
func ResolveFormat(layout Layout, rate int, enc Encoding) (StreamFormat, error) {
	if rate <= 0 || rate%8000 != 0 {
		return StreamFormat{}, fmt.Errorf("%w (got %d)", ErrInvalidRate, rate)
	}
	if enc != EncodingL16 && rate != PlaybackRate {
		return StreamFormat{}, fmt.Errorf("%w (got %d)", ErrRateForEncoding, rate)
	}
	return StreamFormat{SampleRate: rate, Layout: layout, Encoding: enc}, nil
}

// ParseLayout maps a case-insensitive command-surface token to a [Layout].
func ParseLayout(token string) (Layout, error) {
	switch strings.ToLower(token) {
	case "mono":
		return LayoutMono, nil
	case "mixed":
		return LayoutMixed, nil
	case "stereo":
		return LayoutStereo, nil
	default:
		return 0, fmt.Errorf("%w (got %q)", ErrInvalidLayout, token)
	}
}

// ParseRate maps a rate token to a sample rate in Hz. The literal tokens
// "8k" and "16k" are accepted alongside raw integers. Validation of the
// resulting value is left to [ResolveFormat].
func ParseRate(token string) (int, error) {
	switch token {
	case "8k":
		return 8000, nil
	case "16k":
		return 16000, nil
	}
	rate, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("%w (got %q)", ErrInvalidRate, token)
	}
	return rate, nil
}

// ParseEncoding maps a case-insensitive encoding alias to an [Encoding].
// The second return value reports whether the token named a known encoding.
// Unknown tokens are NOT an error: the legacy command signature allowed
// free-text metadata in the encoding position, so callers reinterpret an
// unrecognised token as metadata.
func ParseEncoding(token string) (Encoding, bool) {
	switch strings.ToLower(token) {
	case "pcmu", "ulaw", "mulaw":
		return EncodingPCMU, true
	case "pcma", "alaw":
		return EncodingPCMA, true
	case "l16", "linear", "pcm":
		return EncodingL16, true
	default:
		return EncodingL16, false
	}
}
