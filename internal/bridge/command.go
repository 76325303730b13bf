package bridge

import (
	"context"
	"strings"
	"time"

	"github.com/callbridge-io/callbridge/pkg/audio"
)

// Command replies. The result is deliberately generic: failure reasons are
// observable only via the side-channel notifications, never via the reply.
const (
	ReplyOK  = "+OK Success"
	ReplyErr = "-ERR Operation Failed"
)

// commandUsage is returned for grammatically malformed lines.
const commandUsage = "-USAGE: <call_id> start <address> <mono|mixed|stereo> [8k|16k|<rate>] [<encoding>] [<metadata>] | stop [<text>] | pause | resume | send_text <text> | graceful-shutdown"

// Execute parses and runs one control command line and returns the reply.
// Lines are whitespace-tokenized:
//
//	<call_id> start <sink_address> <mono|mixed|stereo> [<rate>] [<encoding>] [<metadata>]
//	<call_id> stop [<final_text>]
//	<call_id> pause
//	<call_id> resume
//	<call_id> send_text <text>
//	<call_id> graceful-shutdown
//
// An unrecognised token in the encoding position is reinterpreted as the
// start of the metadata, preserving the legacy call signature where free
// text occupied that slot.
func (b *Bridge) Execute(ctx context.Context, line string) string {
	started := time.Now()
	action, reply := b.execute(ctx, line)

	status := "ok"
	switch {
	case strings.HasPrefix(reply, "-ERR"):
		status = "error"
	case strings.HasPrefix(reply, "-USAGE"):
		status = "usage"
	}
	b.metrics.RecordCommand(ctx, action, status, time.Since(started).Seconds())
	return reply
}

func (b *Bridge) execute(ctx context.Context, line string) (action, reply string) {
	callID, rest := nextToken(line)
	action, rest = nextToken(rest)
	if callID == "" || action == "" {
		return "malformed", commandUsage
	}

	var err error
	switch action {
	case "start":
		var req StartRequest
		req, err = parseStart(rest)
		if err != nil {
			return action, commandUsage
		}
		err = b.Start(ctx, callID, req)

	case "stop":
		err = b.Stop(ctx, callID, strings.TrimSpace(rest))

	case "pause":
		err = b.Pause(ctx, callID)

	case "resume":
		err = b.Resume(ctx, callID)

	case "send_text":
		text := strings.TrimSpace(rest)
		if text == "" {
			return action, commandUsage
		}
		err = b.SendText(ctx, callID, text)

	case "graceful-shutdown":
		err = b.GracefulShutdown(ctx, callID)

	default:
		return action, commandUsage
	}

	if err != nil {
		b.log.Warn("command failed", "call_id", callID, "action", action, "error", err)
		return action, ReplyErr
	}
	return action, ReplyOK
}

// parseStart consumes the positional start arguments after the action token.
// Address and layout are required; rate and encoding are optional and
// recognised by shape, with anything left over becoming the metadata blob.
func parseStart(rest string) (StartRequest, error) {
	req := StartRequest{SampleRate: audio.PlaybackRate}

	addr, rest := nextToken(rest)
	layoutTok, rest := nextToken(rest)
	if addr == "" || layoutTok == "" {
		return req, errf(CodeValidation, "start", "missing address or layout")
	}
	layout, err := audio.ParseLayout(layoutTok)
	if err != nil {
		return req, err
	}
	req.SinkAddress = addr
	req.Layout = layout

	if tok, next := nextToken(rest); tok != "" {
		if rate, rerr := audio.ParseRate(tok); rerr == nil {
			req.SampleRate = rate
			rest = next
		}
	}
	if tok, next := nextToken(rest); tok != "" {
		if enc, known := audio.ParseEncoding(tok); known {
			req.Encoding = enc
			rest = next
		}
		// Unknown token: leave it in rest; it opens the metadata.
	}
	req.Metadata = strings.TrimSpace(rest)
	return req, nil
}

// nextToken splits off the first whitespace-delimited token, returning the
// token and the remainder of the line.
func nextToken(s string) (token, rest string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i:]
}
