// Package ffmpeg captures microphone audio by running an ffmpeg child process
// that writes raw s16le PCM to stdout.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/learnchars/pkg/audio"
)

const (
	defaultCommand       = "ffmpeg"
	defaultFrameDuration = 20 * time.Millisecond
	startupGrace         = 250 * time.Millisecond
	stopGrace            = 1200 * time.Millisecond
)

// Option configures a [Capture].
type Option func(*Capture)

// WithCommand overrides the ffmpeg executable path.
func WithCommand(cmd string) Option {
	return func(c *Capture) {
		if cmd != "" {
			c.command = cmd
		}
	}
}

// WithFrameDuration sets how much audio each emitted frame carries.
func WithFrameDuration(d time.Duration) Option {
	return func(c *Capture) {
		if d > 0 {
			c.frameDuration = d
		}
	}
}

// Capture implements [audio.Capture] on top of ffmpeg.
type Capture struct {
	command       string
	frameDuration time.Duration
}

var _ audio.Capture = (*Capture)(nil)

// New returns a Capture that runs "ffmpeg" from PATH unless overridden.
func New(opts ...Option) *Capture {
	c := &Capture{command: defaultCommand, frameDuration: defaultFrameDuration}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Args returns the ffmpeg argument list for cfg.
func Args(cfg audio.Config) []string {
	cfg = cfg.WithDefaults()
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// Acquire starts ffmpeg and waits a short grace period to catch devices that
// fail immediately. The process is not bound to ctx once Acquire returns.
func (c *Capture) Acquire(ctx context.Context, cfg audio.Config) (audio.Handle, error) {
	cfg = cfg.WithDefaults()

	cmd := exec.Command(c.command, Args(cfg)...)
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: start %q: %w: %w", c.command, audio.ErrDeviceUnavailable, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		return nil, classify(err, stderr.String())
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitErr
		return nil, ctx.Err()
	case <-time.After(startupGrace):
	}

	chunk := cfg.SampleRate * cfg.Channels * audio.BytesPerSample * int(c.frameDuration/time.Millisecond) / 1000
	if chunk < audio.BytesPerSample*cfg.Channels {
		chunk = audio.BytesPerSample * cfg.Channels
	}

	h := &handle{
		stdout:  stdout,
		stderr:  stderr,
		process: cmd.Process,
		waitErr: waitErr,
		frames:  make(chan audio.Frame, 8),
		done:    make(chan struct{}),
		cfg:     cfg,
	}
	go h.readLoop(chunk)
	return h, nil
}

// classify maps an early ffmpeg exit to an audio sentinel.
func classify(err error, stderr string) error {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)
	sentinel := audio.ErrDeviceUnavailable
	if strings.Contains(lower, "permission denied") || strings.Contains(lower, "operation not permitted") {
		sentinel = audio.ErrPermissionDenied
	}
	if err == nil {
		return fmt.Errorf("ffmpeg: exited before capture started: %w", sentinel)
	}
	if msg == "" {
		return fmt.Errorf("ffmpeg: exited before capture started: %w: %w", sentinel, err)
	}
	return fmt.Errorf("ffmpeg: exited before capture started: %w: %w: %s", sentinel, err, msg)
}

type handle struct {
	stdout  io.ReadCloser
	stderr  *lockedBuffer
	process *os.Process
	waitErr <-chan error
	frames  chan audio.Frame
	done    chan struct{}
	cfg     audio.Config

	mu      sync.Mutex
	readErr error

	releaseOnce sync.Once
	releaseErr  error
}

func (h *handle) Frames() <-chan audio.Frame { return h.frames }

func (h *handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.readErr
}

func (h *handle) readLoop(chunk int) {
	defer close(h.frames)

	var offset time.Duration
	for {
		buf := make([]byte, chunk)
		n, err := io.ReadFull(h.stdout, buf)
		if n -= n % (audio.BytesPerSample * h.cfg.Channels); n > 0 {
			f := audio.Frame{Data: buf[:n], SampleRate: h.cfg.SampleRate, Channels: h.cfg.Channels, Timestamp: offset}
			offset += f.Duration()
			select {
			case h.frames <- f:
			case <-h.done:
				return
			}
		}
		if err != nil {
			select {
			case <-h.done:
			default:
				h.mu.Lock()
				h.readErr = fmt.Errorf("ffmpeg: capture ended: %w: %s", audio.ErrDeviceUnavailable, strings.TrimSpace(h.stderr.String()))
				h.mu.Unlock()
			}
			return
		}
	}
}

func (h *handle) Release() error {
	h.releaseOnce.Do(func() {
		close(h.done)
		_ = h.process.Signal(os.Interrupt)

		select {
		case err, ok := <-h.waitErr:
			if ok {
				h.releaseErr = normalizeStopErr(err)
			}
		case <-time.After(stopGrace):
			_ = h.process.Kill()
			if err, ok := <-h.waitErr; ok {
				h.releaseErr = normalizeStopErr(err)
			}
		}

		if err := h.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && h.releaseErr == nil {
			h.releaseErr = err
		}
		if h.releaseErr != nil {
			if msg := strings.TrimSpace(h.stderr.String()); msg != "" {
				h.releaseErr = fmt.Errorf("%w: %s", h.releaseErr, msg)
			}
		}
	})
	return h.releaseErr
}

// normalizeStopErr discards the non-zero exit status ffmpeg reports when it
// is interrupted.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// lockedBuffer is written by the exec stderr copier while readers poll it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
