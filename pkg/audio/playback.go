package audio

import (
	"log/slog"
	"sync"
)

// Playback buffering policy. Injection starts only after WarmupQuanta worth
// of audio has accumulated (100ms), which rides out sink jitter without an
// audible stutter at stream start.
const (
	// WarmupQuanta is the number of quanta buffered before playback arms.
	WarmupQuanta = 5

	// WarmupBytes is the warmup threshold in bytes.
	WarmupBytes = WarmupQuanta * QuantumBytes

	// DefaultPlaybackCapacity bounds the buffer at two seconds of audio.
	DefaultPlaybackCapacity = 100 * QuantumBytes
)

// PlaybackBuffer is a fixed-capacity byte FIFO between the sink's inbound
// message handler (producer, network thread) and the frame engine's drain
// (consumer, media thread).
//
// The buffer carries its own mutex, deliberately separate from the session
// mutex, so that audio-rate drains never contend with control commands.
// The `active` flag implements warmup hysteresis: it arms only once the
// buffer holds [WarmupBytes], and disarms only when the buffer empties
// completely. Arming happens at drain time, not at push time, keeping the
// media thread authoritative over playback state transitions.
type PlaybackBuffer struct {
	mu       sync.Mutex
	data     []byte
	capacity int
	readPos  int
	size     int
	active   bool
	dropped  uint64
	warmups  uint64
}

// NewPlaybackBuffer creates a playback buffer holding at most capacity bytes.
// A capacity below one warmup window is raised to [DefaultPlaybackCapacity].
func NewPlaybackBuffer(capacity int) *PlaybackBuffer {
	if capacity < WarmupBytes {
		capacity = DefaultPlaybackCapacity
	}
	return &PlaybackBuffer{
		data:     make([]byte, capacity),
		capacity: capacity,
	}
}

// Push appends p to the buffer. Push never blocks and never rejects input:
// when the write would exceed capacity, the oldest buffered bytes are
// discarded first (overrun protection). It returns the number of bytes
// dropped, which is zero in the common case.
func (b *PlaybackBuffer) Push(p []byte) int {
	if len(p) == 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	dropped := 0

	// Incoming chunk alone exceeds capacity: keep only its tail.
	if len(p) >= b.capacity {
		dropped = b.size + len(p) - b.capacity
		copy(b.data, p[len(p)-b.capacity:])
		b.readPos = 0
		b.size = b.capacity
		b.dropped += uint64(dropped)
		return dropped
	}

	// Make room by discarding the oldest bytes.
	if over := b.size + len(p) - b.capacity; over > 0 {
		dropped = over
		b.readPos = (b.readPos + over) % b.capacity
		b.size -= over
		b.dropped += uint64(over)
	}

	writePos := (b.readPos + b.size) % b.capacity
	n := copy(b.data[writePos:], p)
	if n < len(p) {
		copy(b.data, p[n:])
	}
	b.size += len(p)

	return dropped
}

// DrainQuantum removes and returns exactly one playback quantum, or nil and
// false when the buffer is not ready to emit one.
//
// State machine, evaluated under the buffer mutex:
//
//   - not active, occupancy ≥ warmup threshold → arm (warmup complete) and
//     fall through to emit.
//   - active, occupancy ≥ one quantum → emit one quantum.
//   - active, occupancy == 0 → disarm (re-arm warmup on next fill), emit
//     nothing.
//   - otherwise → emit nothing.
//
// It never returns a partial quantum and is intended to be called at most
// once per inbound frame tick.
func (b *PlaybackBuffer) DrainQuantum() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active {
		if b.size < WarmupBytes {
			return nil, false
		}
		b.active = true
		b.warmups++
		slog.Info("playback warmup complete, streaming started", "buffered_bytes", b.size)
	}

	if b.size >= QuantumBytes {
		out := make([]byte, QuantumBytes)
		n := copy(out, b.data[b.readPos:min(b.readPos+QuantumBytes, b.capacity)])
		if n < QuantumBytes {
			copy(out[n:], b.data)
		}
		b.readPos = (b.readPos + QuantumBytes) % b.capacity
		b.size -= QuantumBytes
		return out, true
	}

	if b.size == 0 {
		b.active = false
		slog.Debug("playback buffer empty, pausing injection")
	}
	return nil, false
}

// DrainFinal removes and returns one quantum regardless of the warmup gate.
// A trailing remainder shorter than one quantum is zero-padded (L16 silence)
// so buffered audio is never stranded behind the gate. Used when a session
// is draining toward teardown. Returns nil and false once the buffer is
// empty.
func (b *PlaybackBuffer) DrainFinal() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		b.active = false
		return nil, false
	}

	n := min(b.size, QuantumBytes)
	out := make([]byte, QuantumBytes)
	c := copy(out, b.data[b.readPos:min(b.readPos+n, b.capacity)])
	if c < n {
		copy(out[c:], b.data[:n-c])
	}
	b.readPos = (b.readPos + n) % b.capacity
	b.size -= n
	return out, true
}

// Buffered returns the current occupancy in bytes.
func (b *PlaybackBuffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Active reports whether playback is currently armed.
func (b *PlaybackBuffer) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Dropped returns the total number of bytes discarded by overrun protection
// over the buffer's lifetime.
func (b *PlaybackBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Warmups returns how many times the buffer has completed warmup over its
// lifetime.
func (b *PlaybackBuffer) Warmups() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.warmups
}

// Capacity returns the buffer's fixed capacity in bytes.
func (b *PlaybackBuffer) Capacity() int {
	return b.capacity
}
