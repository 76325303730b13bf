// Package notify distributes session lifecycle events to interested
// subscribers: the control surface, the structured log, and metrics.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies a session event.
type Type string

const (
	// TypeConnect fires when the sink connection is established.
	TypeConnect Type = "connect"

	// TypeDisconnect fires when the session ends, for any reason.
	TypeDisconnect Type = "disconnect"

	// TypeError fires when the sink connection fails mid-session.
	TypeError Type = "error"

	// TypeJSON carries an application-defined message from the sink.
	TypeJSON Type = "json"

	// TypePlay fires when the sink announces queued playback audio.
	TypePlay Type = "play"
)

// Event is one session lifecycle notification.
type Event struct {
	// ID uniquely identifies the event instance.
	ID string

	// CallID identifies the session's call leg.
	CallID string

	// Type classifies the event.
	Type Type

	// Reason carries a short cause for disconnect and error events.
	Reason string

	// Body carries the raw payload for json and play events.
	Body []byte

	// Time is when the event was published.
	Time time.Time
}

// Notifier fans events out to subscribers. Publish never blocks: a
// subscriber that falls behind loses events rather than stalling the media
// path.
type Notifier struct {
	mu     sync.Mutex
	subs   []chan Event
	closed bool
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe registers a new subscriber and returns its event channel. The
// channel is closed when the notifier closes.
func (n *Notifier) Subscribe() <-chan Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan Event, 64)
	if n.closed {
		close(ch)
		return ch
	}
	n.subs = append(n.subs, ch)
	return ch
}

// Publish stamps the event with an ID and timestamp and delivers it to every
// subscriber that has room.
func (n *Notifier) Publish(ev Event) {
	ev.ID = uuid.NewString()
	ev.Time = time.Now()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes all subscriber channels. Publish after Close is a no-op.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for _, ch := range n.subs {
		close(ch)
	}
	n.subs = nil
}
