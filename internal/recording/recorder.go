// Package recording runs one voice-capture attempt against a live
// speech-recognition stream.
//
// A [Recorder] owns the capture device and recognition provider and hands
// out at most one live [Session] at a time. Each session is an actor: a
// single goroutine consumes every event (recognised candidates, stop and
// cancel requests, timer wake-ups) from one channel and is the only code
// that mutates session state. Stop requests issued before the minimum
// capture duration are deferred through an injected clock rather than
// dropped. The best non-empty candidate seen so far is retained so that a
// late provider error or a spurious "no speech" report still yields the
// usable partial result.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/learnchars/internal/clock"
	"github.com/MrWong99/learnchars/pkg/audio"
	"github.com/MrWong99/learnchars/pkg/provider/stt"
)

var (
	// ErrAlreadyActive is returned by Start while another session is live.
	ErrAlreadyActive = errors.New("recording: a session is already active")

	// ErrProviderUnavailable wraps capture or recognition failures that left
	// the session without any usable candidate.
	ErrProviderUnavailable = errors.New("recording: provider unavailable")

	// ErrNotAuthorized wraps microphone or recognition permission failures.
	ErrNotAuthorized = errors.New("recording: not authorized")

	// ErrNotCancellable is returned by Cancel once finalisation has begun.
	ErrNotCancellable = errors.New("recording: session is finalizing")

	// ErrSessionClosed is returned by Stop and Cancel on a terminal session.
	ErrSessionClosed = errors.New("recording: session closed")
)

const (
	DefaultMinimumDuration = time.Second
	DefaultDrainTimeout    = 1500 * time.Millisecond
)

// Config holds the recording policy and the formats negotiated with the
// collaborators.
type Config struct {
	// MinimumDuration is the shortest capture a Stop may end. Stop requests
	// before it are deferred until it elapses.
	MinimumDuration time.Duration

	// DrainTimeout bounds how long finalisation waits for the recogniser to
	// flush after audio input has ended.
	DrainTimeout time.Duration

	// Audio selects the capture device and format.
	Audio audio.Config

	// Stream is the recognition stream template. Per-session keyword hints
	// are appended to its Keywords.
	Stream stt.StreamConfig
}

func (c Config) withDefaults() Config {
	if c.MinimumDuration < 0 {
		c.MinimumDuration = 0
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	c.Audio = c.Audio.WithDefaults()
	if c.Stream.SampleRate <= 0 {
		c.Stream.SampleRate = c.Audio.SampleRate
	}
	if c.Stream.Channels <= 0 {
		c.Stream.Channels = 1
	}
	return c
}

// DefaultConfig returns the default policy: a one second minimum capture and
// a 1.5 s drain window over 16 kHz mono audio.
func DefaultConfig() Config {
	return Config{
		MinimumDuration: DefaultMinimumDuration,
		DrainTimeout:    DefaultDrainTimeout,
	}.withDefaults()
}

// Option configures a [Recorder].
type Option func(*Recorder)

// WithClock replaces the wall clock. Tests pass a clock.Fake.
func WithClock(c clock.Clock) Option {
	return func(r *Recorder) { r.clock = c }
}

// WithLogger sets the logger for state transitions. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.log = l }
}

// Recorder creates sessions. It is safe for concurrent use.
type Recorder struct {
	capture  audio.Capture
	provider stt.Provider
	cfg      Config
	clock    clock.Clock
	log      *slog.Logger

	mu     sync.Mutex
	active *Session
}

// New returns a Recorder. capture and provider must be non-nil. A zero
// MinimumDuration is honoured as "no minimum"; use DefaultConfig for the
// standard policy.
func New(capture audio.Capture, provider stt.Provider, cfg Config, opts ...Option) (*Recorder, error) {
	if capture == nil {
		return nil, errors.New("recording: capture must not be nil")
	}
	if provider == nil {
		return nil, errors.New("recording: provider must not be nil")
	}
	r := &Recorder{
		capture:  capture,
		provider: provider,
		cfg:      cfg.withDefaults(),
		clock:    clock.Real(),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Config returns the effective configuration.
func (r *Recorder) Config() Config { return r.cfg }

// StartOptions carries per-session parameters.
type StartOptions struct {
	// Keywords are recognition hints added to the stream template.
	Keywords []stt.KeywordBoost
}

// Start begins a session in the Preparing state and returns immediately.
// Device and stream acquisition happen in the background; use
// [Session.WaitCapturing] to suspend until capture has begun. ctx bounds the
// whole session: cancelling it cancels the session.
func (r *Recorder) Start(ctx context.Context, opts StartOptions) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil, ErrAlreadyActive
	}
	s := newSession(ctx, r, opts)
	r.active = s
	go s.run()
	return s, nil
}

// Active returns the live session, or nil.
func (r *Recorder) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Recorder) release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == s {
		r.active = nil
	}
}

func (r *Recorder) streamConfig(opts StartOptions) stt.StreamConfig {
	cfg := r.cfg.Stream
	cfg.Keywords = append(append([]stt.KeywordBoost(nil), cfg.Keywords...), opts.Keywords...)
	return cfg
}

// classify maps collaborator errors onto the recording taxonomy.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotAuthorized), errors.Is(err, ErrProviderUnavailable):
		return err
	case errors.Is(err, stt.ErrNotAuthorized), errors.Is(err, audio.ErrPermissionDenied):
		return fmt.Errorf("%w: %w", ErrNotAuthorized, err)
	default:
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
}
