package recording

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/learnchars/internal/clock"
	"github.com/MrWong99/learnchars/pkg/audio"
	"github.com/MrWong99/learnchars/pkg/provider/stt"
)

// Outcome is the result of a completed session.
type Outcome struct {
	// Text is the recognised utterance; empty when nothing was recognised.
	Text string

	// Confidence of Text in [0, 1].
	Confidence float64

	// Final reports whether Text came from a final candidate rather than the
	// best partial.
	Final bool

	// Elapsed is how long audio was captured.
	Elapsed time.Duration
}

// event is anything the session actor reacts to.
type event interface{}

type (
	evPrepared struct {
		handle audio.Handle
		stream stt.Session
		err    error
	}
	evCandidate   struct{ t stt.Transcript }
	evStreamEnded struct{ err error }
	evCaptureLost struct{ err error }
	evStop        struct{ reply chan error }
	evCancel      struct{ reply chan error }
	evWake        struct{}
	evDrained     struct{}
)

// Session is one capture attempt. All exported methods are safe for
// concurrent use.
type Session struct {
	rec    *Recorder
	log    *slog.Logger
	clock  clock.Clock
	cfg    Config
	stream stt.StreamConfig

	ctx    context.Context
	cancel context.CancelFunc

	events    chan event
	done      chan struct{}
	capturing chan struct{}

	mu      sync.Mutex
	state   State
	outcome Outcome
	err     error

	best    *stt.Transcript // written by the actor under mu

	// Owned by the actor goroutine.
	handle        audio.Handle
	rs            stt.Session
	startedAt     time.Time
	stopPending   bool
	cancelPending chan error
	wake          clock.Timer
	drain         clock.Timer
	capOnce       sync.Once
}

func newSession(ctx context.Context, r *Recorder, opts StartOptions) *Session {
	sctx, cancel := context.WithCancel(ctx)
	return &Session{
		rec:       r,
		log:       r.log,
		clock:     r.clock,
		cfg:       r.cfg,
		stream:    r.streamConfig(opts),
		ctx:       sctx,
		cancel:    cancel,
		events:    make(chan event),
		done:      make(chan struct{}),
		capturing: make(chan struct{}),
		state:     StateIdle,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Partial returns the best non-final candidate seen so far.
func (s *Session) Partial() (stt.Transcript, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.best == nil {
		return stt.Transcript{}, false
	}
	return *s.best, true
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// WaitCapturing blocks until audio capture has begun or the session ended.
// It returns the terminal error when the session ended without capturing,
// ErrSessionClosed when it ended otherwise, and ctx.Err on cancellation.
func (s *Session) WaitCapturing(ctx context.Context) error {
	select {
	case <-s.capturing:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.err != nil {
			return s.err
		}
		if s.startedAt.IsZero() {
			return ErrSessionClosed
		}
	default:
	}
	return nil
}

// Wait blocks until the session is terminal and returns its outcome. A
// Failed session returns its error; a Cancelled one returns
// context.Canceled.
func (s *Session) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateCancelled:
		return Outcome{}, context.Canceled
	case StateFailed:
		return Outcome{}, s.err
	default:
		return s.outcome, nil
	}
}

// Stop asks the session to finish. Before the minimum capture duration the
// stop is deferred until it elapses. Stop on a session that is already
// stopping is a no-op.
func (s *Session) Stop() error {
	reply := make(chan error, 1)
	if !s.post(evStop{reply: reply}) {
		return ErrSessionClosed
	}
	return <-reply
}

// Cancel aborts the session without a result. Capture is released before
// Cancel returns. It fails with ErrNotCancellable once finalisation has
// begun and with ErrSessionClosed on a terminal session.
func (s *Session) Cancel() error {
	reply := make(chan error, 1)
	if !s.post(evCancel{reply: reply}) {
		return ErrSessionClosed
	}
	return <-reply
}

// post delivers ev to the actor. It reports false once the session is done.
func (s *Session) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// ---- actor ------------------------------------------------------------------

func (s *Session) run() {
	s.setState(StatePreparing)
	go s.prepare()

	ctxDone := s.ctx.Done()
	for {
		select {
		case ev := <-s.events:
			s.dispatch(ev)
		case <-ctxDone:
			// Fires once, for the caller's context or our own cancel.
			ctxDone = nil
			if s.State() == StateFinalizing {
				s.completeWithBest()
			} else {
				s.onCancel(s.State(), nil)
			}
		}
		if s.State().IsTerminal() {
			s.finish()
			return
		}
	}
}

// dispatch is the single point of state mutation.
func (s *Session) dispatch(ev event) {
	state := s.State()
	switch e := ev.(type) {
	case evPrepared:
		s.onPrepared(e)

	case evCandidate:
		if !s.live(state) {
			return
		}
		t := e.t
		// An empty final carries nothing to grade; the best partial stands.
		if t.IsFinal && t.Text != "" {
			if state != StateFinalizing {
				s.beginFinalizing()
			}
			s.complete(t.Text, t.Confidence, true)
			return
		}
		if t.Text != "" && (s.best == nil || t.Confidence > s.best.Confidence) {
			s.mu.Lock()
			s.best = &t
			s.mu.Unlock()
		}
		if t.IsFinal && state == StateFinalizing {
			s.completeWithBest()
		}

	case evStreamEnded:
		if !s.live(state) {
			return
		}
		switch {
		case e.err == nil, errors.Is(e.err, stt.ErrNoSpeechDetected), s.best != nil:
			if e.err != nil {
				s.log.Debug("recording: stream ended with error, keeping best partial", "err", e.err)
			}
			s.completeWithBest()
		default:
			s.fail(classify(e.err))
		}

	case evCaptureLost:
		if state != StateCapturing && state != StateAwaitingMinimumDuration {
			return
		}
		if s.best == nil {
			s.fail(classify(e.err))
			return
		}
		s.log.Warn("recording: capture lost, finalizing with partial", "err", e.err)
		s.finalize()

	case evStop:
		e.reply <- s.onStop(state)

	case evWake:
		if state == StateAwaitingMinimumDuration {
			s.finalize()
		}

	case evDrained:
		if state == StateFinalizing {
			s.completeWithBest()
		}

	case evCancel:
		s.onCancel(state, e.reply)
	}
}

// live reports whether recognition events still matter in state.
func (s *Session) live(state State) bool {
	return state == StateCapturing || state == StateAwaitingMinimumDuration || state == StateFinalizing
}

func (s *Session) onPrepared(e evPrepared) {
	if s.cancelPending != nil {
		s.handle, s.rs = e.handle, e.stream
		s.releaseAll()
		s.setState(StateCancelled)
		s.cancelPending <- nil
		s.cancelPending = nil
		return
	}
	if e.err != nil {
		if s.ctx.Err() != nil {
			s.setState(StateCancelled)
			return
		}
		s.fail(classify(e.err))
		return
	}

	s.handle, s.rs = e.handle, e.stream
	s.startedAt = s.clock.Now()
	s.setState(StateCapturing)
	s.capOnce.Do(func() { close(s.capturing) })
	s.log.Debug("recording: capturing", "sample_rate", s.stream.SampleRate, "channels", s.stream.Channels)

	go s.pumpAudio(s.handle, s.rs)
	go s.readCandidates(s.rs)

	if s.stopPending {
		s.stopPending = false
		_ = s.onStop(StateCapturing)
	}
}

func (s *Session) onStop(state State) error {
	switch state {
	case StatePreparing:
		s.stopPending = true
		return nil
	case StateCapturing:
		elapsed := s.clock.Now().Sub(s.startedAt)
		if remaining := s.cfg.MinimumDuration - elapsed; remaining > 0 {
			s.setState(StateAwaitingMinimumDuration)
			s.wake = s.clock.AfterFunc(remaining, func() { s.post(evWake{}) })
			s.log.Debug("recording: stop deferred", "remaining", remaining)
			return nil
		}
		s.finalize()
		return nil
	case StateAwaitingMinimumDuration, StateFinalizing:
		return nil
	default:
		return ErrSessionClosed
	}
}

func (s *Session) onCancel(state State, reply chan error) {
	respond := func(err error) {
		if reply != nil {
			reply <- err
		}
	}
	switch {
	case state == StatePreparing:
		if s.cancelPending != nil {
			respond(nil)
			return
		}
		// Acquisition is in flight; finish the cancel once it reports back.
		if reply == nil {
			reply = make(chan error, 1)
		}
		s.cancelPending = reply
		s.cancel()
	case state.cancellable():
		s.releaseAll()
		s.setState(StateCancelled)
		respond(nil)
	case state == StateFinalizing:
		respond(ErrNotCancellable)
	default:
		respond(ErrSessionClosed)
	}
}

// finalize ends audio input and waits for the recogniser to flush.
func (s *Session) finalize() {
	s.beginFinalizing()
	if err := s.rs.CloseSend(); err != nil {
		s.completeWithBest()
		return
	}
	s.drain = s.clock.AfterFunc(s.cfg.DrainTimeout, func() { s.post(evDrained{}) })
}

// beginFinalizing stops capture and freezes the elapsed time.
func (s *Session) beginFinalizing() {
	s.stopTimer(&s.wake)
	s.outcome.Elapsed = s.clock.Now().Sub(s.startedAt)
	s.setState(StateFinalizing)
	s.releaseCapture()
}

func (s *Session) completeWithBest() {
	if s.best == nil {
		s.complete("", 0, false)
		return
	}
	s.complete(s.best.Text, s.best.Confidence, false)
}

func (s *Session) complete(text string, confidence float64, final bool) {
	if s.outcome.Elapsed == 0 && !s.startedAt.IsZero() {
		s.outcome.Elapsed = s.clock.Now().Sub(s.startedAt)
	}
	s.releaseAll()
	s.mu.Lock()
	s.outcome.Text = text
	s.outcome.Confidence = confidence
	s.outcome.Final = final
	s.mu.Unlock()
	s.setState(StateCompleted)
}

func (s *Session) fail(err error) {
	s.releaseAll()
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.setState(StateFailed)
}

func (s *Session) releaseCapture() {
	if s.handle == nil {
		return
	}
	if err := s.handle.Release(); err != nil {
		s.log.Warn("recording: release capture", "err", err)
	}
	s.handle = nil
}

func (s *Session) releaseAll() {
	s.stopTimer(&s.wake)
	s.stopTimer(&s.drain)
	s.releaseCapture()
	if s.rs != nil {
		if err := s.rs.Close(); err != nil {
			s.log.Warn("recording: close stream", "err", err)
		}
		s.rs = nil
	}
}

func (s *Session) stopTimer(t *clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.log.Debug("recording: transition", "from", prev, "to", st)
	}
}

// finish runs once on entering a terminal state.
func (s *Session) finish() {
	s.cancel()
	s.rec.release(s)
	close(s.done)
	s.capOnce.Do(func() { close(s.capturing) })
}

// ---- collaborators ----------------------------------------------------------

// prepare acquires the device and opens the stream off the actor goroutine.
func (s *Session) prepare() {
	h, err := s.rec.capture.Acquire(s.ctx, s.cfg.Audio)
	if err != nil {
		s.post(evPrepared{err: err})
		return
	}
	rs, err := s.rec.provider.StartStream(s.ctx, s.stream)
	if err != nil {
		_ = h.Release()
		s.post(evPrepared{err: err})
		return
	}
	s.post(evPrepared{handle: h, stream: rs})
}

// pumpAudio forwards captured frames to the stream, converting the format
// when the device delivers something other than what the stream expects.
func (s *Session) pumpAudio(h audio.Handle, rs stt.Session) {
	conv := audio.Converter{
		Target: audio.Format{SampleRate: s.stream.SampleRate, Channels: s.stream.Channels},
		Logger: s.log,
	}
	for f := range h.Frames() {
		f = conv.Convert(f)
		if len(f.Data) == 0 {
			continue
		}
		if err := rs.SendAudio(f.Data); err != nil {
			if !errors.Is(err, stt.ErrSessionClosed) {
				s.log.Debug("recording: send audio", "err", err)
			}
			return
		}
	}
	if err := h.Err(); err != nil {
		s.post(evCaptureLost{err: err})
	}
}

func (s *Session) readCandidates(rs stt.Session) {
	for t := range rs.Transcripts() {
		if !s.post(evCandidate{t: t}) {
			return
		}
	}
	s.post(evStreamEnded{err: rs.Err()})
}
