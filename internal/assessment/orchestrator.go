package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/learnchars/internal/clock"
	"github.com/MrWong99/learnchars/internal/observe"
	"github.com/MrWong99/learnchars/internal/recording"
	"github.com/MrWong99/learnchars/pkg/pronunciation"
	"github.com/MrWong99/learnchars/pkg/provider/stt"
)

const (
	// DefaultKeywordBoost is the recognition boost applied to the expected
	// text and its alternatives.
	DefaultKeywordBoost = 2.0

	sinkTimeout = 5 * time.Second
)

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSink sets the audit sink. Without one, records are dropped.
func WithSink(s ResultSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithClock replaces the wall clock used for time limits and timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithKeywordBoost sets the boost sent with recognition hints. Zero sends
// the hints without a boost.
func WithKeywordBoost(b float64) Option {
	return func(o *Orchestrator) { o.boost = b }
}

// Orchestrator begins attempts and turns their recordings into verdicts. It
// is safe for concurrent use; the underlying recorder allows one live
// attempt at a time.
type Orchestrator struct {
	rec     *recording.Recorder
	matcher atomic.Pointer[pronunciation.Matcher]
	metrics *observe.Metrics
	sink    ResultSink
	log     *slog.Logger
	clock   clock.Clock
	boost   float64
}

// New returns an Orchestrator. rec and matcher must be non-nil.
func New(rec *recording.Recorder, matcher *pronunciation.Matcher, opts ...Option) (*Orchestrator, error) {
	if rec == nil {
		return nil, errors.New("assessment: recorder must not be nil")
	}
	if matcher == nil {
		return nil, errors.New("assessment: matcher must not be nil")
	}
	o := &Orchestrator{
		rec:   rec,
		log:   slog.Default(),
		clock: clock.Real(),
		boost: DefaultKeywordBoost,
	}
	o.matcher.Store(matcher)
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o, nil
}

// SetMatcher replaces the matcher used to grade attempts that finish from
// now on. A nil matcher is ignored.
func (o *Orchestrator) SetMatcher(m *pronunciation.Matcher) {
	if m != nil {
		o.matcher.Store(m)
	}
}

// Matcher returns the matcher currently in use.
func (o *Orchestrator) Matcher() *pronunciation.Matcher { return o.matcher.Load() }

// Attempt is a live or finished attempt.
type Attempt struct {
	// ID uniquely identifies the attempt in results and audit records.
	ID string

	req       Request
	expected  string
	tier      pronunciation.Tier
	startedAt time.Time
	session   *recording.Session
	span      trace.Span
	limit     clock.Timer

	done   chan struct{}
	mu     sync.Mutex
	result Result
}

// State returns the state of the underlying recording.
func (a *Attempt) State() recording.State { return a.session.State() }

// Partial returns the best interim recognition so far, for live display.
func (a *Attempt) Partial() (string, bool) {
	t, ok := a.session.Partial()
	return t.Text, ok
}

// Done is closed once the result is available.
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Wait blocks until the attempt has a result. The returned error is ctx.Err
// when ctx ends first; attempt failures are reported in Result.Err.
func (a *Attempt) Wait(ctx context.Context) (Result, error) {
	select {
	case <-a.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, nil
}

// BeginAttempt starts recording and returns once capture is live. ctx bounds
// the whole attempt: cancelling it cancels the recording.
//
// Failures that happen before capture begins (recording.ErrAlreadyActive,
// recording.ErrNotAuthorized, recording.ErrProviderUnavailable) are returned
// directly and no Result is delivered.
func (o *Orchestrator) BeginAttempt(ctx context.Context, req Request) (*Attempt, error) {
	expected := strings.TrimSpace(req.Expected)
	if expected == "" {
		return nil, ErrEmptyExpected
	}
	tier := req.Tier
	if !tier.IsValid() {
		o.log.Warn("assessment: unknown tier, grading as intermediate", "tier", int(tier))
		tier = pronunciation.Intermediate
	}

	id := uuid.NewString()
	ctx, span := observe.StartSpan(ctx, "assessment.attempt", trace.WithAttributes(
		attribute.String("attempt.id", id),
		attribute.String("attempt.tier", tier.String()),
	))

	sess, err := o.rec.Start(ctx, recording.StartOptions{Keywords: o.keywords(expected, req.Alternatives)})
	if err != nil {
		span.RecordError(err)
		span.End()
		return nil, fmt.Errorf("assessment: begin attempt: %w", err)
	}
	o.metrics.ActiveSessions.Add(ctx, 1)

	a := &Attempt{
		ID:        id,
		req:       req,
		expected:  expected,
		tier:      tier,
		startedAt: o.clock.Now(),
		session:   sess,
		span:      span,
		done:      make(chan struct{}),
	}

	if err := sess.WaitCapturing(ctx); err != nil {
		if ctx.Err() != nil {
			_ = sess.Cancel()
		}
		<-sess.Done()
		res := o.resolve(ctx, a)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("assessment: begin attempt: %w", ctx.Err())
		}
		return nil, fmt.Errorf("assessment: begin attempt: %w", errOr(res.Err, err))
	}

	if req.EnforceTimeLimit {
		a.limit = o.clock.AfterFunc(tier.TimeLimit(), func() {
			if err := sess.Stop(); err == nil {
				o.log.Debug("assessment: time limit reached", "attempt_id", id, "limit", tier.TimeLimit())
			}
		})
	}

	observe.With(ctx, o.log).Debug("assessment: attempt started", "attempt_id", id, "tier", tier.String())
	go o.watch(ctx, a)
	return a, nil
}

// RequestStop asks the attempt to finish capturing. Stops before the
// minimum capture duration are deferred, not dropped.
func (o *Orchestrator) RequestStop(a *Attempt) error {
	if a == nil {
		return ErrNilAttempt
	}
	return a.session.Stop()
}

// Cancel aborts the attempt. Its Result carries ErrCancelled. Cancelling an
// attempt that is already grading its utterance fails with
// recording.ErrNotCancellable.
func (o *Orchestrator) Cancel(a *Attempt) error {
	if a == nil {
		return ErrNilAttempt
	}
	return a.session.Cancel()
}

func (o *Orchestrator) watch(ctx context.Context, a *Attempt) {
	<-a.session.Done()
	res := o.resolve(ctx, a)

	if cb := a.req.OnResult; cb != nil {
		cb(res)
	}
	close(a.done)
}

// resolve turns the terminal session into a Result, records telemetry and
// the audit entry, and stores the result on a.
func (o *Orchestrator) resolve(ctx context.Context, a *Attempt) Result {
	if a.limit != nil {
		a.limit.Stop()
	}
	// The session is terminal, so Wait returns at once.
	out, err := a.session.Wait(context.WithoutCancel(ctx))
	state := a.session.State()

	res := Result{AttemptID: a.ID, Recognized: out.Text, Confidence: out.Confidence, Elapsed: out.Elapsed}
	switch {
	case err == nil:
		v := o.matcher.Load().Evaluate(a.expected, out.Text, a.req.Alternatives, a.tier)
		res.Verdict = &v
	case errors.Is(err, context.Canceled):
		res.Err = ErrCancelled
	default:
		res.Err = err
	}

	octx := context.WithoutCancel(ctx)
	o.metrics.ActiveSessions.Add(octx, -1)
	o.metrics.RecordSessionOutcome(octx, state.String(), out.Elapsed.Seconds())
	if res.Verdict != nil {
		o.metrics.RecordAttempt(octx, a.tier.String(), res.Verdict.Stage.String(), res.Verdict.IsCorrect, res.Verdict.Accuracy)
		a.span.SetAttributes(
			attribute.Bool("attempt.correct", res.Verdict.IsCorrect),
			attribute.Float64("attempt.accuracy", res.Verdict.Accuracy),
			attribute.String("attempt.stage", res.Verdict.Stage.String()),
		)
	}
	if state == recording.StateFailed {
		o.metrics.RecordProviderError(octx, "recording", failureKind(res.Err))
		a.span.RecordError(res.Err)
		a.span.SetStatus(codes.Error, res.Err.Error())
	}

	log := observe.With(ctx, o.log)
	if res.Verdict != nil {
		log.Info("assessment: attempt graded",
			"attempt_id", a.ID,
			"tier", a.tier.String(),
			"recognized", res.Recognized,
			"correct", res.Verdict.IsCorrect,
			"accuracy", res.Verdict.Accuracy,
			"stage", res.Verdict.Stage.String(),
		)
	} else {
		log.Info("assessment: attempt ended without verdict", "attempt_id", a.ID, "state", state.String(), "err", res.Err)
	}

	o.record(octx, a, res)
	a.span.End()

	a.mu.Lock()
	a.result = res
	a.mu.Unlock()
	return res
}

func (o *Orchestrator) record(ctx context.Context, a *Attempt, res Result) {
	if o.sink == nil {
		return
	}
	rec := Record{
		AttemptID:     a.ID,
		CorrelationID: observe.CorrelationID(ctx),
		Expected:      a.expected,
		Alternatives:  a.req.Alternatives,
		Tier:          a.tier.String(),
		Recognized:    res.Recognized,
		Confidence:    res.Confidence,
		CaptureMillis: res.Elapsed.Milliseconds(),
		StartedAt:     a.startedAt,
		FinishedAt:    o.clock.Now(),
	}
	switch {
	case res.Verdict != nil:
		rec.Outcome = OutcomeGraded
		rec.Correct = res.Verdict.IsCorrect
		rec.Accuracy = res.Verdict.Accuracy
		rec.Feedback = res.Verdict.Feedback.String()
		rec.Stage = res.Verdict.Stage.String()
	case errors.Is(res.Err, ErrCancelled):
		rec.Outcome = OutcomeCancelled
	default:
		rec.Outcome = OutcomeFailed
		rec.Error = res.Err.Error()
	}

	sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()
	if err := o.sink.Record(sctx, rec); err != nil {
		o.log.Warn("assessment: attempt log write failed", "attempt_id", a.ID, "err", err)
		o.metrics.RecordSinkError(ctx, "attempt_log")
	}
}

// keywords builds recognition hints from the expected text and its
// alternatives, trimmed and de-duplicated.
func (o *Orchestrator) keywords(expected string, alternatives []string) []stt.KeywordBoost {
	seen := make(map[string]bool, len(alternatives)+1)
	out := make([]stt.KeywordBoost, 0, len(alternatives)+1)
	for _, w := range append([]string{expected}, alternatives...) {
		w = strings.TrimSpace(w)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, stt.KeywordBoost{Keyword: w, Boost: o.boost})
	}
	return out
}

func failureKind(err error) string {
	if errors.Is(err, recording.ErrNotAuthorized) {
		return "not_authorized"
	}
	return "unavailable"
}

func errOr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
