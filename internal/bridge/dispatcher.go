// Package bridge is the call-attachment core: it owns the per-call session
// registry, validates and executes control commands, and runs the frame
// engine that moves audio between the call tap and the remote sink.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/callbridge-io/callbridge/internal/notify"
	"github.com/callbridge-io/callbridge/internal/observe"
	"github.com/callbridge-io/callbridge/internal/resilience"
	"github.com/callbridge-io/callbridge/pkg/audio"
	"github.com/callbridge-io/callbridge/pkg/sink"
	"github.com/callbridge-io/callbridge/pkg/tap"
)

// Cleanup reasons carried on disconnect notifications. Command-initiated and
// tap-initiated closure are distinguished so downstream consumers can tell a
// deliberate stop from a hangup.
const (
	reasonStopped        = "stopped"
	reasonChannelClosing = "channel_closing"
)

// DefaultMetadataLimit bounds the metadata blob accepted by start and the
// text accepted by send_text and stop.
const DefaultMetadataLimit = 8192

// Options tunes a [Bridge].
type Options struct {
	// DialTimeout bounds sink connection attempts. Zero uses the dialer's
	// default.
	DialTimeout time.Duration

	// PlaybackCapacity is the per-session playback buffer size in bytes.
	// Zero uses [audio.DefaultPlaybackCapacity].
	PlaybackCapacity int

	// MetadataLimit bounds metadata and text payload sizes in bytes.
	// Zero uses [DefaultMetadataLimit].
	MetadataLimit int
}

// StartRequest carries the validated-format parameters of a start command.
type StartRequest struct {
	SinkAddress string
	Layout      audio.Layout
	SampleRate  int
	Encoding    audio.Encoding
	Metadata    string
}

// Bridge is the session registry and command dispatcher. One Bridge serves
// the whole process; each attached call gets one [Session].
type Bridge struct {
	tap      tap.Tap
	dialer   sink.Dialer
	notifier *notify.Notifier
	metrics  *observe.Metrics
	log      *slog.Logger
	opts     Options
	guard    *resilience.DialGuard

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates a Bridge using the given platform tap and sink dialer.
func New(t tap.Tap, d sink.Dialer, n *notify.Notifier, opts Options) *Bridge {
	if opts.MetadataLimit <= 0 {
		opts.MetadataLimit = DefaultMetadataLimit
	}
	return &Bridge{
		tap:      t,
		dialer:   d,
		notifier: n,
		metrics:  observe.DefaultMetrics(),
		log:      slog.Default(),
		opts:     opts,
		guard:    resilience.NewDialGuard(resilience.CircuitBreakerConfig{}),
		sessions: make(map[string]*Session),
	}
}

// WithLogger replaces the bridge's logger. Intended for wiring in main.
func (b *Bridge) WithLogger(log *slog.Logger) *Bridge {
	b.log = log
	return b
}

// WithMetrics replaces the bridge's metric instruments. Tests use this with
// an isolated meter provider.
func (b *Bridge) WithMetrics(m *observe.Metrics) *Bridge {
	b.metrics = m
	return b
}

// Start validates the request, connects the sink, and attaches a frame
// engine to the call. Validation happens strictly before any state mutation:
// a rejected start leaves no session, no connection, and no buffer behind.
func (b *Bridge) Start(ctx context.Context, callID string, req StartRequest) error {
	const op = "start"

	if err := b.checkText(op, "metadata", req.Metadata); err != nil {
		return err
	}
	format, err := audio.ResolveFormat(req.Layout, req.SampleRate, req.Encoding)
	if err != nil {
		return &Error{Code: CodeValidation, Op: op, Err: err}
	}

	// The registry lock is held through dial and attach so that two
	// concurrent starts for the same call cannot both pass the existence
	// check. Start is a control-plane operation; media threads never take
	// this lock.
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.sessions[callID]; exists {
		return errf(CodeAlreadyAttached, op, "session already exists for call %q", callID)
	}
	if !b.tap.Answered(callID) {
		return errf(CodePreconditionNotMet, op, "call %q is not answered", callID)
	}

	// Dials run through a per-address circuit breaker so a sink that is
	// down rejects start commands immediately instead of costing every
	// call a full dial timeout.
	var conn sink.Conn
	err = b.guard.Execute(req.SinkAddress, func() error {
		var dialErr error
		conn, dialErr = b.dialer.Dial(ctx, sink.Config{
			Address:     req.SinkAddress,
			Metadata:    req.Metadata,
			SampleRate:  format.SampleRate,
			Channels:    format.Layout.Channels(),
			Encoding:    format.Encoding.String(),
			CallID:      callID,
			DialTimeout: b.opts.DialTimeout,
		})
		return dialErr
	})
	if err != nil {
		b.metrics.RecordSinkError(ctx, "dial")
		return &Error{Code: CodeSinkUnreachable, Op: op, Err: err}
	}

	s := &Session{
		CallID:     callID,
		Format:     format,
		Metadata:   req.Metadata,
		conn:       conn,
		playback:   audio.NewPlaybackBuffer(b.opts.PlaybackCapacity),
		transcoder: audio.NewTranscoder(format),
		started:    time.Now(),
	}

	handle, err := b.tap.Attach(ctx, callID, tap.AttachConfig{
		CaptureWrite: format.Layout.DualCapture(),
		Stereo:       format.Layout == audio.LayoutStereo,
	}, &frameEngine{b: b, s: s})
	if err != nil {
		conn.Close()
		return &Error{Code: CodePreconditionNotMet, Op: op, Err: err}
	}
	s.setHandle(handle)

	b.sessions[callID] = s
	b.metrics.ActiveSessions.Add(ctx, 1)

	go b.pump(s)

	b.notifier.Publish(notify.Event{CallID: callID, Type: notify.TypeConnect})
	b.log.Info("session started",
		"call_id", callID,
		"sink", req.SinkAddress,
		"rate", format.SampleRate,
		"layout", format.Layout.String(),
		"encoding", format.Encoding.String(),
	)
	return nil
}

// Stop forwards the optional final text to the sink and tears the session
// down. A second stop while cleanup is already in progress succeeds without
// releasing anything twice.
func (b *Bridge) Stop(ctx context.Context, callID, finalText string) error {
	const op = "stop"

	if err := b.checkText(op, "final text", finalText); err != nil {
		return err
	}
	s, err := b.session(op, callID)
	if err != nil {
		return err
	}

	// Tell the frame engine to detach on its next tick so the media thread
	// stops touching the sink while we deliver the final text and tear the
	// session down from here.
	s.RequestClose()

	if finalText != "" && !s.CleanupStarted() {
		if serr := s.conn.SendText(finalText); serr != nil {
			b.log.Warn("final text delivery failed", "call_id", callID, "error", serr)
			b.metrics.RecordSinkError(ctx, "send")
		}
	}

	b.cleanup(s, reasonStopped, true)
	return nil
}

// Pause suspends forwarding of captured audio. Playback injection continues;
// the playback buffer's warmup state is untouched. Pausing an already paused
// session succeeds.
func (b *Bridge) Pause(ctx context.Context, callID string) error {
	s, err := b.session("pause", callID)
	if err != nil {
		return err
	}
	s.SetPaused(true)
	b.log.Debug("session paused", "call_id", callID)
	return nil
}

// Resume reverses Pause. Resuming a session that is not paused succeeds.
func (b *Bridge) Resume(ctx context.Context, callID string) error {
	s, err := b.session("resume", callID)
	if err != nil {
		return err
	}
	s.SetPaused(false)
	b.log.Debug("session resumed", "call_id", callID)
	return nil
}

// SendText delivers an out-of-band text message to the session's sink.
func (b *Bridge) SendText(ctx context.Context, callID, text string) error {
	const op = "send_text"

	if err := b.checkText(op, "text", text); err != nil {
		return err
	}
	s, err := b.session(op, callID)
	if err != nil {
		return err
	}
	if s.CleanupStarted() {
		return errf(CodeNoAttachment, op, "session for call %q is closing", callID)
	}
	if err := s.conn.SendText(text); err != nil {
		b.metrics.RecordSinkError(ctx, "send")
		return &Error{Code: CodeSinkUnreachable, Op: op, Err: err}
	}
	return nil
}

// GracefulShutdown asks the frame engine to stop forwarding, play out the
// buffered audio, and then tear the session down. In-flight playback is not
// discarded, unlike Stop.
func (b *Bridge) GracefulShutdown(ctx context.Context, callID string) error {
	s, err := b.session("graceful-shutdown", callID)
	if err != nil {
		return err
	}
	s.RequestDrain()
	b.log.Info("session draining", "call_id", callID)
	return nil
}

// Shutdown stops every session. Used at daemon shutdown.
func (b *Bridge) Shutdown(ctx context.Context) {
	b.mu.Lock()
	sessions := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.mu.Unlock()

	for _, s := range sessions {
		b.cleanup(s, reasonStopped, true)
	}
}

// ActiveSessions returns the number of attached calls.
func (b *Bridge) ActiveSessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// PlaybackBuffered reports the playback buffer occupancy for callID in
// bytes, or zero when no session exists. Exposed for introspection and
// tests.
func (b *Bridge) PlaybackBuffered(callID string) int {
	b.mu.Lock()
	s, ok := b.sessions[callID]
	b.mu.Unlock()
	if !ok {
		return 0
	}
	return s.playback.Buffered()
}

// session looks up the attachment for callID.
func (b *Bridge) session(op, callID string) (*Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[callID]
	if !ok {
		return nil, errf(CodeNoAttachment, op, "no session for call %q", callID)
	}
	return s, nil
}

// checkText enforces the UTF-8 and size rules shared by metadata, final
// text, and send_text payloads.
func (b *Bridge) checkText(op, what, text string) error {
	if !utf8.ValidString(text) {
		return errf(CodeValidation, op, "%s is not valid UTF-8", what)
	}
	if len(text) > b.opts.MetadataLimit {
		return errf(CodeValidation, op, "%s exceeds %d bytes", what, b.opts.MetadataLimit)
	}
	return nil
}

// cleanup releases the session's resources exactly once, regardless of how
// many triggers race here (stop command, drain completion, tap teardown).
// detachTap is false when called from the media thread, where returning
// [tap.ActionDetach] already detaches.
func (b *Bridge) cleanup(s *Session, reason string, detachTap bool) {
	if !s.ClaimCleanup() {
		return
	}

	if detachTap {
		if h := s.Handle(); h != nil {
			if err := h.Detach(); err != nil {
				b.log.Warn("tap detach failed", "call_id", s.CallID, "error", err)
			}
		}
	}
	s.conn.Close()

	b.mu.Lock()
	delete(b.sessions, s.CallID)
	b.mu.Unlock()

	ctx := context.Background()
	b.metrics.ActiveSessions.Add(ctx, -1)
	b.metrics.SessionDuration.Record(ctx, time.Since(s.started).Seconds())
	b.metrics.WarmupEvents.Add(ctx, int64(s.playback.Warmups()))

	b.notifier.Publish(notify.Event{
		CallID: s.CallID,
		Type:   notify.TypeDisconnect,
		Reason: reason,
	})
	b.log.Info("session closed",
		"call_id", s.CallID,
		"reason", reason,
		"dropped_playback_bytes", s.playback.Dropped(),
	)
}

// pump moves sink traffic into the session: binary playback chunks into the
// playback buffer, application events onto the notifier. It exits when the
// connection's channels close, then reports a transport failure if one
// terminated the connection while the session was still live.
func (b *Bridge) pump(s *Session) {
	playback := s.conn.Playback()
	events := s.conn.Events()

	for playback != nil || events != nil {
		select {
		case chunk, ok := <-playback:
			if !ok {
				playback = nil
				continue
			}
			if dropped := s.playback.Push(chunk); dropped > 0 {
				b.metrics.PlaybackBytesDropped.Add(context.Background(), int64(dropped))
				b.log.Debug("playback overrun", "call_id", s.CallID, "dropped_bytes", dropped)
			}

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			evType := notify.TypeJSON
			if ev.Type == sink.EventPlay {
				evType = notify.TypePlay
			}
			b.notifier.Publish(notify.Event{CallID: s.CallID, Type: evType, Body: ev.Raw})
		}
	}

	if err := s.conn.Err(); err != nil && !s.CleanupStarted() {
		b.metrics.RecordSinkError(context.Background(), "receive")
		b.notifier.Publish(notify.Event{
			CallID: s.CallID,
			Type:   notify.TypeError,
			Reason: err.Error(),
		})
		b.log.Warn("sink connection lost", "call_id", s.CallID, "error", err)
	}
}
