// Package mock provides in-memory mock implementations of the [tap.Tap] and
// [tap.Handle] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	handle := &mock.Handle{}
//	platform := &mock.Tap{
//	    AnsweredResult: true,
//	    AttachResult:   handle,
//	}
//	// ... start a session, then drive the media path:
//	platform.EmitFrame(audio.Frame{Data: pcm, SampleRate: 8000, Channels: 1})
package mock

import (
	"context"
	"sync"

	"github.com/callbridge-io/callbridge/pkg/audio"
	"github.com/callbridge-io/callbridge/pkg/tap"
)

// AttachCall records the arguments of a single [Tap.Attach] invocation.
type AttachCall struct {
	// CallID is the callID argument passed to Attach.
	CallID string
	// Config is the capture config passed to Attach.
	Config tap.AttachConfig
}

// Tap is a mock implementation of [tap.Tap].
// Set the exported Result fields before use; inspect the Call* fields after.
type Tap struct {
	mu sync.Mutex

	// AnsweredResult is returned by [Tap.Answered].
	AnsweredResult bool

	// AttachResult is the [tap.Handle] returned by Attach.
	AttachResult tap.Handle

	// AttachError is the error returned by Attach.
	AttachError error

	// AnsweredCalls records the callID of every Answered invocation.
	AnsweredCalls []string

	// AttachCalls records all Attach invocations.
	AttachCalls []AttachCall

	// RecordedHandlers holds the handlers passed to Attach, in order of
	// attachment.
	RecordedHandlers []tap.Handler
}

// Answered implements [tap.Tap]. Records the call and returns AnsweredResult.
func (t *Tap) Answered(callID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.AnsweredCalls = append(t.AnsweredCalls, callID)
	return t.AnsweredResult
}

// Attach implements [tap.Tap]. Records the call and handler and returns
// AttachResult / AttachError.
func (t *Tap) Attach(_ context.Context, callID string, cfg tap.AttachConfig, handler tap.Handler) (tap.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.AttachCalls = append(t.AttachCalls, AttachCall{CallID: callID, Config: cfg})
	if t.AttachError == nil {
		t.RecordedHandlers = append(t.RecordedHandlers, handler)
	}
	return t.AttachResult, t.AttachError
}

// EmitFrame delivers frame to every attached handler and returns the actions
// they produced, in attachment order. Use this in tests to simulate one media
// tick. Handlers that returned [tap.ActionDetach] on a previous emit are
// still invoked; removing them is the test's responsibility via
// [Tap.DropHandler].
func (t *Tap) EmitFrame(frame audio.Frame) []tap.Action {
	t.mu.Lock()
	handlers := make([]tap.Handler, len(t.RecordedHandlers))
	copy(handlers, t.RecordedHandlers)
	t.mu.Unlock()

	actions := make([]tap.Action, len(handlers))
	for i, h := range handlers {
		actions[i] = h.OnFrame(frame)
	}
	return actions
}

// EmitClose invokes OnClose on every attached handler, simulating the call
// leg hanging up.
func (t *Tap) EmitClose() {
	t.mu.Lock()
	handlers := make([]tap.Handler, len(t.RecordedHandlers))
	copy(handlers, t.RecordedHandlers)
	t.RecordedHandlers = nil
	t.mu.Unlock()

	for _, h := range handlers {
		h.OnClose()
	}
}

// DropHandler removes the handler at index i, simulating the platform
// honouring an [tap.ActionDetach] return.
func (t *Tap) DropHandler(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.RecordedHandlers) {
		return
	}
	t.RecordedHandlers = append(t.RecordedHandlers[:i], t.RecordedHandlers[i+1:]...)
}

// Handle is a mock implementation of [tap.Handle].
type Handle struct {
	mu sync.Mutex

	// WriteFrameError is returned by [Handle.WriteFrame].
	WriteFrameError error

	// DetachError is returned by [Handle.Detach].
	DetachError error

	// WrittenFrames records every frame passed to WriteFrame.
	WrittenFrames []audio.Frame

	// CallCountDetach records how many times Detach was called.
	CallCountDetach int
}

// WriteFrame implements [tap.Handle]. Records the frame (copying its data)
// and returns WriteFrameError.
func (h *Handle) WriteFrame(frame audio.Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.WriteFrameError != nil {
		return h.WriteFrameError
	}
	cp := frame
	cp.Data = append([]byte(nil), frame.Data...)
	h.WrittenFrames = append(h.WrittenFrames, cp)
	return nil
}

// Detach implements [tap.Handle]. Returns DetachError.
func (h *Handle) Detach() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CallCountDetach++
	return h.DetachError
}

// Written returns a snapshot of the frames recorded by WriteFrame.
func (h *Handle) Written() []audio.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]audio.Frame, len(h.WrittenFrames))
	copy(out, h.WrittenFrames)
	return out
}
