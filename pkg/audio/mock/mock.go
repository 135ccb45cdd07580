// Package mock provides in-memory implementations of [audio.Capture] and
// [audio.Handle] for unit tests.
//
// All mocks are safe for concurrent use. They record calls so tests can
// assert on counts and arguments, and expose fields that control results.
//
// Typical usage:
//
//	h := mock.NewHandle(8)
//	capture := &mock.Capture{Handle: h}
//	// ... start the code under test, then feed it audio:
//	h.Push(audio.Frame{Data: pcm, SampleRate: 16000, Channels: 1})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/learnchars/pkg/audio"
)

// ─── Handle ───────────────────────────────────────────────────────────────────

// Handle is a mock [audio.Handle] backed by a buffered channel.
type Handle struct {
	mu       sync.Mutex
	frames   chan audio.Frame
	closed   bool
	err      error
	released int

	// ReleaseError is returned by every Release call.
	ReleaseError error
}

// NewHandle returns a Handle whose frame channel has the given buffer size.
func NewHandle(buffer int) *Handle {
	return &Handle{frames: make(chan audio.Frame, buffer)}
}

// Frames implements [audio.Handle].
func (h *Handle) Frames() <-chan audio.Frame { return h.frames }

// Err implements [audio.Handle].
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Release implements [audio.Handle]. The frame channel is closed on the first
// call; later calls only increment the counter.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released++
	h.closeLocked(nil)
	return h.ReleaseError
}

// ReleaseCount returns how many times Release was called.
func (h *Handle) ReleaseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Released reports whether Release was called at least once.
func (h *Handle) Released() bool { return h.ReleaseCount() > 0 }

// Push delivers f on the frame channel. It reports false when the handle is
// already closed or the buffer is full.
func (h *Handle) Push(f audio.Frame) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	select {
	case h.frames <- f:
		return true
	default:
		return false
	}
}

// Fail closes the frame channel with err, simulating a device failure.
func (h *Handle) Fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeLocked(err)
}

func (h *Handle) closeLocked(err error) {
	if h.closed {
		return
	}
	h.closed = true
	h.err = err
	close(h.frames)
}

// ─── Capture ──────────────────────────────────────────────────────────────────

// Capture is a mock [audio.Capture].
type Capture struct {
	mu sync.Mutex

	// Handle is returned by Acquire when AcquireError is nil. When nil a
	// fresh handle with a 16-frame buffer is created per call.
	Handle *Handle

	// AcquireError is returned by Acquire.
	AcquireError error

	// Gate, if non-nil, holds Acquire until it is closed or ctx ends. The
	// call is recorded before blocking.
	Gate <-chan struct{}

	// GateIgnoresContext makes Acquire wait for Gate even after ctx ends,
	// like a device driver that cannot be interrupted.
	GateIgnoresContext bool

	// AcquireCalls records the config of every Acquire call.
	AcquireCalls []audio.Config

	// Handles records every handle returned, in order.
	Handles []*Handle
}

// Acquire implements [audio.Capture].
func (c *Capture) Acquire(ctx context.Context, cfg audio.Config) (audio.Handle, error) {
	c.mu.Lock()
	c.AcquireCalls = append(c.AcquireCalls, cfg)
	gate, ignoreCtx := c.Gate, c.GateIgnoresContext
	c.mu.Unlock()

	if gate != nil {
		if ignoreCtx {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil && !ignoreCtx {
		return nil, err
	}
	if c.AcquireError != nil {
		return nil, c.AcquireError
	}
	h := c.Handle
	if h == nil {
		h = NewHandle(16)
	}
	c.Handles = append(c.Handles, h)
	return h, nil
}

// CallCount returns how many times Acquire was called.
func (c *Capture) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.AcquireCalls)
}

// LastHandle returns the most recently acquired handle, or nil.
func (c *Capture) LastHandle() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Handles) == 0 {
		return nil
	}
	return c.Handles[len(c.Handles)-1]
}
