package bridge

import (
	"context"
	"log/slog"

	"github.com/callbridge-io/callbridge/pkg/audio"
	"github.com/callbridge-io/callbridge/pkg/tap"
)

// frameEngine is the per-session tap handler. It runs on the telephony
// platform's media thread, once per frame tick, and must stay within the
// frame budget: every branch below is either a brief flag read or a bounded
// buffer operation. Sink sends go through the transport's own write path,
// whose deadline policy keeps them off the critical path.
type frameEngine struct {
	b *Bridge
	s *Session
}

var _ tap.Handler = (*frameEngine)(nil)

// OnFrame handles one media tick: forward the captured frame to the sink
// (unless paused or draining) and inject at most one playback quantum back
// into the call.
func (e *frameEngine) OnFrame(frame audio.Frame) tap.Action {
	s := e.s

	if s.CloseRequested() || s.CleanupStarted() {
		return tap.ActionDetach
	}

	if s.Draining() {
		// Graceful shutdown: stop forwarding, play out what is buffered,
		// then tear down. The drain bypasses the warmup gate and pads the
		// final partial quantum, so a misaligned or sub-warmup tail cannot
		// leave the session ticking forever.
		quantum, ok := s.playback.DrainFinal()
		if !ok {
			e.b.cleanup(s, reasonStopped, false)
			return tap.ActionDetach
		}
		e.write(quantum, frame)
		return tap.ActionContinue
	}

	if !s.Paused() {
		payload := s.transcoder.Process(frame)
		if err := s.conn.SendAudio(payload); err != nil {
			// Reported once here; the receive pump notices the dead
			// connection and raises the error event.
			slog.Debug("sink send failed", "call_id", s.CallID, "error", err)
			e.b.metrics.RecordSinkError(context.Background(), "send")
		} else {
			e.b.metrics.FramesForwarded.Add(context.Background(), 1)
		}
	}

	e.inject(frame)
	return tap.ActionContinue
}

// inject drains at most one playback quantum and writes it to the call.
// Returns true when a quantum was injected this tick.
func (e *frameEngine) inject(frame audio.Frame) bool {
	quantum, ok := e.s.playback.DrainQuantum()
	if !ok {
		return false
	}
	return e.write(quantum, frame)
}

// write injects one already-drained quantum into the call write path.
func (e *frameEngine) write(quantum []byte, frame audio.Frame) bool {
	s := e.s
	handle := s.Handle()
	if handle == nil {
		return false
	}
	if err := handle.WriteFrame(audio.PlaybackFrame(quantum, frame.Timestamp)); err != nil {
		slog.Debug("playback inject failed", "call_id", s.CallID, "error", err)
		return false
	}
	e.b.metrics.FramesInjected.Add(context.Background(), 1)
	return true
}

// OnClose handles tap-initiated teardown: the far end hung up or the call
// was transferred. Cleanup runs with the channel_closing reason so the
// disconnect notification reflects the cause.
func (e *frameEngine) OnClose() {
	e.b.cleanup(e.s, reasonChannelClosing, false)
}
