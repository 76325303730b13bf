// Package tap defines the interface between the bridge core and the host
// telephony platform's media layer.
//
// The two primary abstractions are:
//
//   - [Tap] — looks up a call leg by ID and attaches a media tap to it.
//   - [Handle] — an active tap on one call leg, delivering captured frames to
//     a [Handler] and accepting playback frames for injection into the call.
//
// Implementations of these interfaces are provided by platform-specific
// adapter packages. The interfaces are intentionally narrow to keep the
// bridge core decoupled from switch internals.
//
// This package lives under pkg/ because external code (platform adapters) is
// expected to implement [Tap] and [Handle].
package tap

import (
	"context"

	"github.com/callbridge-io/callbridge/pkg/audio"
)

// Action tells the platform what to do with the tap after a frame callback
// returns.
type Action int

const (
	// ActionContinue keeps the tap attached.
	ActionContinue Action = iota

	// ActionDetach removes the tap from the call leg. The platform stops
	// delivering frames and calls [Handler.OnClose] is NOT invoked; detach
	// requested by the handler is an orderly stop, not a channel teardown.
	ActionDetach
)

// AttachConfig selects what the tap captures from the call leg.
type AttachConfig struct {
	// CaptureWrite additionally captures the write leg (audio played to the
	// caller), needed for mixed and stereo delivery.
	CaptureWrite bool

	// Stereo delivers the read and write legs as separate interleaved
	// channels instead of downmixing them. Only meaningful when
	// CaptureWrite is set.
	Stereo bool
}

// Handler receives media callbacks from an attached tap.
//
// Both methods are invoked on the platform's media thread for the call, once
// per frame tick (nominally every [audio.FrameDuration]). Implementations
// must return quickly and must never block on network I/O.
type Handler interface {
	// OnFrame delivers one captured frame. The frame's Data slice is only
	// valid for the duration of the call; implementations that retain audio
	// must copy it. The returned [Action] controls whether the tap stays
	// attached.
	OnFrame(frame audio.Frame) Action

	// OnClose signals that the call leg itself is going away (hangup or
	// transfer). The tap is already detached when OnClose runs; WriteFrame
	// on the corresponding [Handle] will fail afterwards.
	OnClose()
}

// Handle is an active tap on a call leg.
//
// Implementations must be safe for concurrent use: WriteFrame is called from
// the media thread while Detach may be called from a control goroutine.
type Handle interface {
	// WriteFrame injects one frame into the call's write path. The frame
	// must be linear-16 mono at [audio.PlaybackRate]; the platform
	// transcodes to the call's wire codec. Returns an error once the tap is
	// detached or the call leg has closed.
	WriteFrame(frame audio.Frame) error

	// Detach removes the tap from the call leg. Frames already in flight
	// may still be delivered to the handler. Detach is safe to call more
	// than once; subsequent calls are no-ops and return nil.
	Detach() error
}

// Tap is the entry point into the host platform's media layer.
//
// Implementations must be safe for concurrent use.
type Tap interface {
	// Answered reports whether the call identified by callID exists and has
	// reached the answered state. Attaching to an unanswered call would
	// capture dead air, so callers check this before Attach.
	Answered(callID string) bool

	// Attach places a media tap on the call leg identified by callID and
	// begins delivering frames to handler. The supplied ctx governs the
	// attach attempt only; once attached, the tap remains active until
	// [Handle.Detach] is called or the call leg closes.
	//
	// Returns an error if the call does not exist or the platform cannot
	// allocate the media resources for the requested capture config.
	Attach(ctx context.Context, callID string, cfg AttachConfig, handler Handler) (Handle, error)
}
