// Package batch adapts one-shot transcription backends to the streaming
// stt.Session contract.
//
// A batch session buffers all audio sent to it. When the caller invokes
// CloseSend the buffered utterance is checked against a silence gate and,
// if it carries speech, handed to a [Transcriber]. The single result is
// emitted as a final transcript and the stream ends. This suits learner
// utterances, which are short and bounded by the recording time limit.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/learnchars/pkg/audio"
	"github.com/MrWong99/learnchars/pkg/provider/stt"
)

const (
	defaultSilenceRMS  = 200.0
	defaultMaxDuration = 60 * time.Second
	defaultSampleRate  = 16000
)

// Transcriber turns a complete PCM utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, cfg stt.StreamConfig) (stt.Transcript, error)
}

// TranscriberFunc adapts a function to [Transcriber].
type TranscriberFunc func(ctx context.Context, pcm []byte, cfg stt.StreamConfig) (stt.Transcript, error)

// Transcribe calls f.
func (f TranscriberFunc) Transcribe(ctx context.Context, pcm []byte, cfg stt.StreamConfig) (stt.Transcript, error) {
	return f(ctx, pcm, cfg)
}

// Option configures a [Provider].
type Option func(*Provider)

// WithSilenceRMS sets the RMS amplitude below which an utterance counts as
// silence. Zero disables the gate.
func WithSilenceRMS(rms float64) Option {
	return func(p *Provider) { p.silenceRMS = rms }
}

// WithMaxDuration caps how much audio a session buffers. Audio past the cap
// is discarded.
func WithMaxDuration(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.maxDuration = d
		}
	}
}

// Provider implements stt.Provider over a [Transcriber].
type Provider struct {
	tr          Transcriber
	silenceRMS  float64
	maxDuration time.Duration
}

var _ stt.Provider = (*Provider)(nil)

// New returns a batch Provider. tr must not be nil.
func New(tr Transcriber, opts ...Option) (*Provider, error) {
	if tr == nil {
		return nil, errors.New("batch: transcriber must not be nil")
	}
	p := &Provider{tr: tr, silenceRMS: defaultSilenceRMS, maxDuration: defaultMaxDuration}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a buffering session. No backend contact happens until
// CloseSend.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	sctx, cancel := context.WithCancel(ctx)
	maxBytes := int(p.maxDuration.Seconds() * float64(cfg.SampleRate*cfg.Channels*audio.BytesPerSample))
	return &session{
		p:        p,
		cfg:      cfg,
		ctx:      sctx,
		cancel:   cancel,
		maxBytes: maxBytes,
		out:      make(chan stt.Transcript, 1),
		done:     make(chan struct{}),
	}, nil
}

type session struct {
	p        *Provider
	cfg      stt.StreamConfig
	ctx      context.Context
	cancel   context.CancelFunc
	maxBytes int
	out      chan stt.Transcript
	done     chan struct{}

	mu         sync.Mutex
	buf        []byte
	sendClosed bool
	started    bool
	ended      bool
	err        error
}

func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed {
		return stt.ErrSessionClosed
	}
	if room := s.maxBytes - len(s.buf); room > 0 {
		s.buf = append(s.buf, chunk[:min(len(chunk), room)]...)
	}
	return nil
}

func (s *session) Transcripts() <-chan stt.Transcript { return s.out }

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// CloseSend starts transcription in the background.
func (s *session) CloseSend() error {
	s.mu.Lock()
	if s.sendClosed {
		s.mu.Unlock()
		return stt.ErrSessionClosed
	}
	s.sendClosed = true
	s.started = true
	pcm := s.buf
	s.buf = nil
	s.mu.Unlock()

	go s.run(pcm)
	return nil
}

func (s *session) run(pcm []byte) {
	defer close(s.done)

	if len(pcm) == 0 || audio.RMS(pcm) < s.p.silenceRMS {
		s.end(nil, stt.ErrNoSpeechDetected)
		return
	}

	t, err := s.p.tr.Transcribe(s.ctx, pcm, s.cfg)
	switch {
	case err != nil:
		s.end(nil, classify(err))
	case t.Text == "":
		s.end(nil, stt.ErrNoSpeechDetected)
	default:
		t.IsFinal = true
		s.end(&t, nil)
	}
}

// end emits t (if any) and closes the stream. A session aborted by Close
// ends silently.
func (s *session) end(t *stt.Transcript, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	if s.ctx.Err() != nil {
		close(s.out)
		return
	}
	if t != nil {
		s.out <- *t
	}
	s.err = err
	close(s.out)
}

func (s *session) Close() error {
	s.mu.Lock()
	s.sendClosed = true
	started := s.started
	s.mu.Unlock()

	s.cancel()
	if started {
		<-s.done
		return nil
	}
	s.end(nil, nil)
	return nil
}

// classify keeps known stt sentinels and marks everything else as a service
// failure. Context errors pass through unchanged.
func classify(err error) error {
	switch {
	case errors.Is(err, stt.ErrNotAuthorized),
		errors.Is(err, stt.ErrServiceUnavailable),
		errors.Is(err, stt.ErrNoSpeechDetected),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("batch: transcribe: %w: %w", stt.ErrServiceUnavailable, err)
	}
}
