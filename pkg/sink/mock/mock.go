// Package mock provides in-memory mock implementations of the [sink.Dialer]
// and [sink.Conn] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	conn := mock.NewConn()
//	dialer := &mock.Dialer{DialResult: conn}
//	// ... start a session, then drive the sink side:
//	conn.EmitPlayback(pcm)
//	conn.EmitEvent(sink.Event{Type: sink.EventJSON, Raw: []byte(`{}`)})
package mock

import (
	"context"
	"sync"

	"github.com/callbridge-io/callbridge/pkg/sink"
)

// DialCall records the arguments of a single [Dialer.Dial] invocation.
type DialCall struct {
	// Config is the sink config passed to Dial.
	Config sink.Config
}

// Dialer is a mock implementation of [sink.Dialer].
// Set the exported Result fields before use; inspect the Call* fields after.
type Dialer struct {
	mu sync.Mutex

	// DialResult is the [sink.Conn] returned by Dial.
	DialResult sink.Conn

	// DialError is the error returned by Dial.
	DialError error

	// DialCalls records all Dial invocations.
	DialCalls []DialCall
}

// Dial implements [sink.Dialer]. Records the call and returns
// DialResult / DialError.
func (d *Dialer) Dial(_ context.Context, cfg sink.Config) (sink.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DialCalls = append(d.DialCalls, DialCall{Config: cfg})
	return d.DialResult, d.DialError
}

// Conn is a mock implementation of [sink.Conn].
type Conn struct {
	mu sync.Mutex

	// SendAudioError is returned by [Conn.SendAudio].
	SendAudioError error

	// SendTextError is returned by [Conn.SendText].
	SendTextError error

	// ErrResult is returned by [Conn.Err].
	ErrResult error

	// SentAudio records every chunk passed to SendAudio.
	SentAudio [][]byte

	// SentTexts records every message passed to SendText.
	SentTexts []string

	// CallCountClose records how many times Close was called.
	CallCountClose int

	playback chan []byte
	events   chan sink.Event
	closed   bool
}

// NewConn creates a mock connection with buffered playback and event channels.
func NewConn() *Conn {
	return &Conn{
		playback: make(chan []byte, 64),
		events:   make(chan sink.Event, 16),
	}
}

// SendAudio implements [sink.Conn]. Records the chunk (copied) and returns
// SendAudioError.
func (c *Conn) SendAudio(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendAudioError != nil {
		return c.SendAudioError
	}
	c.SentAudio = append(c.SentAudio, append([]byte(nil), p...))
	return nil
}

// SendText implements [sink.Conn]. Records the message and returns
// SendTextError.
func (c *Conn) SendText(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendTextError != nil {
		return c.SendTextError
	}
	c.SentTexts = append(c.SentTexts, text)
	return nil
}

// Playback implements [sink.Conn].
func (c *Conn) Playback() <-chan []byte { return c.playback }

// Events implements [sink.Conn].
func (c *Conn) Events() <-chan sink.Event { return c.events }

// Err implements [sink.Conn]. Returns ErrResult.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ErrResult
}

// Close implements [sink.Conn]. Closes the playback and event channels on
// first call; subsequent calls are no-ops.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	if !c.closed {
		c.closed = true
		close(c.playback)
		close(c.events)
	}
	return nil
}

// EmitPlayback delivers one playback chunk as if the sink had sent it.
// Panics if the connection was closed, matching a send on a closed stream.
func (c *Conn) EmitPlayback(p []byte) {
	c.playback <- p
}

// EmitEvent delivers one application event as if the sink had sent it.
func (c *Conn) EmitEvent(ev sink.Event) {
	c.events <- ev
}

// Audio returns a snapshot of the chunks recorded by SendAudio.
func (c *Conn) Audio() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.SentAudio))
	copy(out, c.SentAudio)
	return out
}

// Texts returns a snapshot of the messages recorded by SendText.
func (c *Conn) Texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.SentTexts))
	copy(out, c.SentTexts)
	return out
}
