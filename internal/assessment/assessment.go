// Package assessment runs end-to-end pronunciation attempts: it captures one
// utterance through a [recording.Recorder], grades the recognised text with a
// [pronunciation.Matcher] and delivers a single [Result] per attempt.
//
// The [Orchestrator] holds no history. Completed attempts can be forwarded to
// a [ResultSink] (see internal/attemptlog) for auditing; sink failures are
// logged and counted but never change the result delivered to the caller.
package assessment

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/learnchars/pkg/pronunciation"
)

var (
	// ErrEmptyExpected is returned by BeginAttempt when the expected text is
	// empty after trimming.
	ErrEmptyExpected = errors.New("assessment: expected text must not be empty")

	// ErrCancelled is the Result error of an attempt that was cancelled.
	ErrCancelled = errors.New("assessment: attempt cancelled")

	// ErrNilAttempt is returned by RequestStop and Cancel for a nil attempt.
	ErrNilAttempt = errors.New("assessment: nil attempt")
)

// Request describes one attempt.
type Request struct {
	// Expected is the text the learner should say. Required.
	Expected string

	// Alternatives are accepted equivalents: translations, romanisations,
	// numerals. Borrowed read-only for the duration of the attempt.
	Alternatives []string

	// Tier selects the grading tolerance. Unknown tiers grade as
	// Intermediate.
	Tier pronunciation.Tier

	// EnforceTimeLimit stops the capture automatically once the tier's
	// time limit has elapsed.
	EnforceTimeLimit bool

	// OnResult, if set, is called exactly once with the final result, before
	// Attempt.Done is closed. It runs on the orchestrator's goroutine and
	// must not block for long.
	OnResult func(Result)
}

// Result is the outcome of one attempt. Exactly one of Verdict and Err is
// set.
type Result struct {
	AttemptID string

	// Verdict is the grade of the recognised text. Nil when Err is set.
	Verdict *pronunciation.Verdict

	// Recognized is the text the recogniser produced; empty when nothing was
	// heard.
	Recognized string

	// Confidence of Recognized in [0, 1].
	Confidence float64

	// Elapsed is how long audio was captured.
	Elapsed time.Duration

	// Err is ErrCancelled for a cancelled attempt, or the recording failure
	// (wrapping recording.ErrProviderUnavailable or
	// recording.ErrNotAuthorized).
	Err error
}

// Outcome names how an attempt ended in a [Record].
type Outcome string

const (
	OutcomeGraded    Outcome = "graded"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Record is the audit entry written to a [ResultSink] for every attempt the
// recorder accepted, including those that failed before capture.
type Record struct {
	AttemptID     string    `json:"attempt_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Expected      string    `json:"expected"`
	Alternatives  []string  `json:"alternatives,omitempty"`
	Tier          string    `json:"tier"`
	Outcome       Outcome   `json:"outcome"`
	Recognized    string    `json:"recognized"`
	Confidence    float64   `json:"confidence"`
	Correct       bool      `json:"correct"`
	Accuracy      float64   `json:"accuracy"`
	Feedback      string    `json:"feedback,omitempty"`
	Stage         string    `json:"stage,omitempty"`
	Error         string    `json:"error,omitempty"`
	CaptureMillis int64     `json:"capture_ms"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// ResultSink receives an audit record for every finished attempt.
// Implementations must be safe for concurrent use.
type ResultSink interface {
	Record(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to [ResultSink].
type SinkFunc func(ctx context.Context, rec Record) error

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, rec Record) error { return f(ctx, rec) }
