// Package sink defines the interface between the bridge core and the remote
// media endpoint that receives forwarded call audio.
//
// The two primary abstractions are:
//
//   - [Dialer] — establishes a connection to a sink address.
//   - [Conn] — an active duplex stream: call audio flows out via SendAudio,
//     playback audio and application events flow back via the Playback and
//     Events channels.
//
// Transport-specific implementations live in subpackages (sink/ws for
// WebSocket endpoints). The interfaces are intentionally narrow to keep the
// bridge core decoupled from wire details.
package sink

import (
	"context"
	"time"
)

// Event types extracted from sink text messages.
const (
	// EventJSON is an application-defined JSON message from the sink.
	EventJSON = "json"

	// EventPlay announces queued playback audio. The audio itself arrives
	// as binary messages; the event carries format hints.
	EventPlay = "play"
)

// Event is an out-of-band message received from the sink.
type Event struct {
	// Type is [EventJSON] or [EventPlay].
	Type string

	// Raw is the verbatim message payload.
	Raw []byte
}

// Config describes one sink connection.
type Config struct {
	// Address is the sink endpoint, e.g. "wss://media.example.com/stream".
	Address string

	// Metadata is optional free-form text delivered to the sink before any
	// audio, so it can associate the stream with application state.
	Metadata string

	// SampleRate of the forwarded audio in Hz.
	SampleRate int

	// Channels of the forwarded audio (1 or 2).
	Channels int

	// Encoding is the wire encoding token ("l16", "pcmu", "pcma").
	Encoding string

	// CallID identifies the originating call leg.
	CallID string

	// DialTimeout bounds the connection attempt. Zero means the dialer's
	// default.
	DialTimeout time.Duration
}

// Conn is an active duplex connection to a sink.
//
// Implementations must be safe for concurrent use: SendAudio is called from
// the media thread while Close may be called from a control goroutine. The
// Playback and Events channels are closed when the connection terminates,
// after which Err reports the terminating error (nil on clean shutdown).
type Conn interface {
	// SendAudio forwards one chunk of call audio, already in the format
	// negotiated at dial time. It must not block on a slow sink longer
	// than the transport's write deadline.
	SendAudio(p []byte) error

	// SendText delivers an out-of-band text message to the sink.
	SendText(text string) error

	// Playback returns the channel delivering audio sent by the sink for
	// injection into the call. Chunk sizes are whatever the sink sent;
	// callers buffer and re-quantize.
	Playback() <-chan []byte

	// Events returns the channel delivering application events from the sink.
	Events() <-chan Event

	// Err returns the first error that terminated the connection, or nil
	// while it is healthy or after a clean Close.
	Err() error

	// Close terminates the connection and releases all resources. Safe to
	// call more than once; subsequent calls are no-ops and return nil.
	Close() error
}

// Dialer establishes sink connections.
//
// Implementations must be safe for concurrent use.
type Dialer interface {
	// Dial connects to the sink described by cfg. The supplied ctx governs
	// the connection attempt only; once established, the Conn remains alive
	// until [Conn.Close] is called or the transport fails.
	Dial(ctx context.Context, cfg Config) (Conn, error)
}
