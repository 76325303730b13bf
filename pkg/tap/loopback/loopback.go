// Package loopback provides a self-contained [tap.Tap] implementation that
// simulates call legs in memory. Each simulated call ticks on its own
// 20ms timer, delivering synthetic tone frames to the attached handler and
// discarding injected playback frames.
//
// It exists so the bridge daemon can run end to end without a telephony
// switch: integration smoke tests and local development attach to loopback
// calls instead of real legs.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/callbridge-io/callbridge/pkg/audio"
	"github.com/callbridge-io/callbridge/pkg/tap"
)

// ErrDetached is returned by WriteFrame after the tap has been detached or
// the simulated call has hung up.
var ErrDetached = errors.New("loopback: tap detached")

// Tap simulates a telephony platform with in-memory call legs.
// Calls are created with [Tap.AddCall] and destroyed with [Tap.HangUp].
type Tap struct {
	mu    sync.Mutex
	calls map[string]*call
}

type call struct {
	mu       sync.Mutex
	answered bool
	handle   *handle
}

// New creates an empty loopback platform.
func New() *Tap {
	return &Tap{calls: make(map[string]*call)}
}

// AddCall registers a simulated answered call leg under callID.
func (t *Tap) AddCall(callID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.calls[callID]; !ok {
		t.calls[callID] = &call{answered: true}
	}
}

// HangUp destroys the simulated call. An attached tap receives OnClose.
func (t *Tap) HangUp(callID string) {
	t.mu.Lock()
	c := t.calls[callID]
	delete(t.calls, callID)
	t.mu.Unlock()
	if c == nil {
		return
	}

	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.mu.Unlock()
	if h != nil {
		h.close(true)
	}
}

// Answered implements [tap.Tap].
func (t *Tap) Answered(callID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[callID]
	return ok && c.answered
}

// Attach implements [tap.Tap]. The returned handle starts a goroutine that
// delivers one synthetic frame per [audio.FrameDuration] until detached.
func (t *Tap) Attach(_ context.Context, callID string, cfg tap.AttachConfig, handler tap.Handler) (tap.Handle, error) {
	t.mu.Lock()
	c, ok := t.calls[callID]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("loopback: no such call %q", callID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle != nil {
		return nil, fmt.Errorf("loopback: call %q already tapped", callID)
	}

	h := &handle{
		handler: handler,
		cfg:     cfg,
		done:    make(chan struct{}),
	}
	c.handle = h
	go h.run()
	return h, nil
}

type handle struct {
	handler tap.Handler
	cfg     tap.AttachConfig

	mu       sync.Mutex
	detached bool
	done     chan struct{}
}

// run delivers a 440 Hz tone frame every tick until the handler detaches or
// the handle is closed.
func (h *handle) run() {
	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	channels := 1
	if h.cfg.Stereo {
		channels = 2
	}

	var elapsed time.Duration
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
		}

		frame := audio.Frame{
			Data:       toneFrame(elapsed, channels),
			SampleRate: audio.PlaybackRate,
			Channels:   channels,
			Timestamp:  elapsed,
		}
		if h.handler.OnFrame(frame) == tap.ActionDetach {
			h.close(false)
			return
		}
		elapsed += audio.FrameDuration
	}
}

// WriteFrame implements [tap.Handle]. Injected audio has nowhere to go on a
// simulated leg, so it is validated and discarded.
func (h *handle) WriteFrame(frame audio.Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.detached {
		return ErrDetached
	}
	if len(frame.Data) != audio.QuantumBytes {
		return fmt.Errorf("loopback: frame must be one playback quantum, got %d bytes", len(frame.Data))
	}
	return nil
}

// Detach implements [tap.Handle].
func (h *handle) Detach() error {
	h.close(false)
	return nil
}

func (h *handle) close(hangup bool) {
	h.mu.Lock()
	if h.detached {
		h.mu.Unlock()
		return
	}
	h.detached = true
	close(h.done)
	h.mu.Unlock()

	if hangup {
		h.handler.OnClose()
	}
}

// toneFrame renders one 20ms frame of a 440 Hz sine at modest amplitude.
func toneFrame(offset time.Duration, channels int) []byte {
	const freq = 440.0
	data := make([]byte, audio.QuantumSamples*channels*2)
	start := offset.Seconds()
	for i := 0; i < audio.QuantumSamples; i++ {
		ts := start + float64(i)/float64(audio.PlaybackRate)
		v := int16(8000 * math.Sin(2*math.Pi*freq*ts))
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			data[off] = byte(v)
			data[off+1] = byte(v >> 8)
		}
	}
	return data
}
