// Package ws implements the sink.Dialer interface for WebSocket media
// endpoints.
//
// It establishes a bidirectional WebSocket connection to the sink and maps
// the duplex stream onto the wire protocol: binary messages carry audio in
// both directions, text messages carry JSON events. The connection metadata
// is delivered as the first text message before any audio flows.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/callbridge-io/callbridge/pkg/sink"
)

// Compile-time assertions that Dialer and conn satisfy the sink interfaces.
var _ sink.Dialer = (*Dialer)(nil)
var _ sink.Conn = (*conn)(nil)

const defaultDialTimeout = 5 * time.Second

// Option is a functional option for configuring a Dialer.
type Option func(*Dialer)

// WithHTTPClient overrides the HTTP client used for the WebSocket handshake.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dialer) { d.httpClient = client }
}

// WithHeader adds a header sent with every handshake, e.g. an auth token.
func WithHeader(key, value string) Option {
	return func(d *Dialer) { d.header.Add(key, value) }
}

// Dialer implements sink.Dialer over WebSocket.
type Dialer struct {
	httpClient *http.Client
	header     http.Header
}

// NewDialer creates a WebSocket sink dialer with the given options.
func NewDialer(opts ...Option) *Dialer {
	d := &Dialer{header: http.Header{}}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dial connects to the sink at cfg.Address and announces the stream format
// via handshake headers. When cfg.Metadata is non-empty it is sent as the
// first text message, before any audio.
func (d *Dialer) Dial(ctx context.Context, cfg sink.Config) (sink.Conn, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	header := d.header.Clone()
	header.Set("X-Call-ID", cfg.CallID)
	header.Set("X-Audio-Rate", fmt.Sprintf("%d", cfg.SampleRate))
	header.Set("X-Audio-Channels", fmt.Sprintf("%d", cfg.Channels))
	header.Set("X-Audio-Encoding", cfg.Encoding)

	wsConn, _, err := websocket.Dial(dialCtx, cfg.Address, &websocket.DialOptions{
		HTTPClient: d.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", cfg.Address, err)
	}
	// Audio chunks are small; raise the limit for sinks that batch playback.
	wsConn.SetReadLimit(1 << 20)

	connCtx, connCancel := context.WithCancel(context.Background())
	c := &conn{
		ws:       wsConn,
		playback: make(chan []byte, 64),
		events:   make(chan sink.Event, 16),
		ctx:      connCtx,
		cancel:   connCancel,
	}

	if cfg.Metadata != "" {
		if err := wsConn.Write(connCtx, websocket.MessageText, []byte(cfg.Metadata)); err != nil {
			connCancel()
			wsConn.Close(websocket.StatusInternalError, "metadata send failed")
			return nil, fmt.Errorf("ws: send metadata: %w", err)
		}
	}

	go c.receiveLoop()

	return c, nil
}

type conn struct {
	ws       *websocket.Conn
	playback chan []byte
	events   chan sink.Event

	mu     sync.Mutex
	errVal error
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// typeProbe extracts only the type discriminator from a sink text message.
type typeProbe struct {
	Type string `json:"type"`
}

// receiveLoop reads messages from the WebSocket and dispatches them.
// It owns playback and events: it closes both when it exits.
func (c *conn) receiveLoop() {
	defer c.closeChannels()

	for {
		msgType, data, err := c.ws.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.setErr(err)
			return
		}

		switch msgType {
		case websocket.MessageBinary:
			if len(data) == 0 {
				continue
			}
			select {
			case c.playback <- data:
			case <-c.ctx.Done():
			}

		case websocket.MessageText:
			evt := sink.Event{Type: sink.EventJSON, Raw: data}
			var probe typeProbe
			if json.Unmarshal(data, &probe) == nil && probe.Type == sink.EventPlay {
				evt.Type = sink.EventPlay
			}
			select {
			case c.events <- evt:
			case <-c.ctx.Done():
			}
		}
	}
}

func (c *conn) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errVal == nil {
		c.errVal = err
	}
}

func (c *conn) closeChannels() {
	c.closeOnce.Do(func() {
		close(c.playback)
		close(c.events)
	})
}

// SendAudio implements [sink.Conn]. Audio travels as a binary message.
func (c *conn) SendAudio(p []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("ws: connection closed")
	}
	c.mu.Unlock()

	if err := c.ws.Write(c.ctx, websocket.MessageBinary, p); err != nil {
		c.setErr(err)
		return fmt.Errorf("ws: send audio: %w", err)
	}
	return nil
}

// SendText implements [sink.Conn].
func (c *conn) SendText(text string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("ws: connection closed")
	}
	c.mu.Unlock()

	if err := c.ws.Write(c.ctx, websocket.MessageText, []byte(text)); err != nil {
		c.setErr(err)
		return fmt.Errorf("ws: send text: %w", err)
	}
	return nil
}

// Playback implements [sink.Conn].
func (c *conn) Playback() <-chan []byte { return c.playback }

// Events implements [sink.Conn].
func (c *conn) Events() <-chan sink.Event { return c.events }

// Err implements [sink.Conn].
func (c *conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errVal
}

// Close implements [sink.Conn]. Idempotent.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.ws.Close(websocket.StatusNormalClosure, "stream closed")
	return nil
}
