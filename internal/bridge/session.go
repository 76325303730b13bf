package bridge

import (
	"sync"
	"time"

	"github.com/callbridge-io/callbridge/pkg/audio"
	"github.com/callbridge-io/callbridge/pkg/sink"
	"github.com/callbridge-io/callbridge/pkg/tap"
)

// Session is the per-call attachment state: one sink connection, one tap
// handle, one playback buffer.
//
// Two locks are in play, deliberately kept apart. The session mutex guards
// the lifecycle flags below and is held only for flag reads and writes; the
// playback buffer carries its own mutex so audio-rate drains never wait on
// control commands. The cleanup flag is one-shot: whichever path claims it
// first (stop command, graceful drain, or tap teardown) performs the actual
// resource release.
type Session struct {
	CallID   string
	Format   audio.StreamFormat
	Metadata string

	handle     tap.Handle
	conn       sink.Conn
	playback   *audio.PlaybackBuffer
	transcoder *audio.Transcoder
	started    time.Time

	mu             sync.Mutex
	paused         bool
	closeRequested bool
	draining       bool
	cleanupStarted bool
}

// Paused reports whether forwarding is currently paused.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// SetPaused sets the pause flag. Setting the current value again is a no-op.
func (s *Session) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// CloseRequested reports whether an immediate close has been requested.
func (s *Session) CloseRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeRequested
}

// RequestClose asks the frame engine to detach at the next tick, discarding
// any still-buffered playback audio.
func (s *Session) RequestClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeRequested = true
}

// Draining reports whether a graceful shutdown is in progress.
func (s *Session) Draining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draining
}

// RequestDrain asks the frame engine to stop forwarding, play out the
// remaining buffered audio, and then detach.
func (s *Session) RequestDrain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draining = true
}

// ClaimCleanup atomically claims the right to run cleanup. It returns true
// exactly once per session; every later call returns false. Both the stop
// command and the tap-teardown path race through here, so resource release
// happens exactly once regardless of which fires first.
func (s *Session) ClaimCleanup() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleanupStarted {
		return false
	}
	s.cleanupStarted = true
	return true
}

// CleanupStarted reports whether cleanup has been claimed.
func (s *Session) CleanupStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupStarted
}

// Playback exposes the session's playback buffer to the sink receive pump.
func (s *Session) Playback() *audio.PlaybackBuffer {
	return s.playback
}

// Handle returns the tap handle, or nil before attach completes.
func (s *Session) Handle() tap.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *Session) setHandle(h tap.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = h
}
