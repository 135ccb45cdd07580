package attemptlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/learnchars/internal/assessment"
)

// ErrNotFound is returned by PostgresStore.Get for an unknown attempt id.
var ErrNotFound = errors.New("attemptlog: attempt not found")

// Schema is the DDL applied by [Migrate].
const Schema = `
CREATE TABLE IF NOT EXISTS attempts (
    attempt_id     TEXT         PRIMARY KEY,
    correlation_id TEXT         NOT NULL DEFAULT '',
    expected       TEXT         NOT NULL,
    alternatives   TEXT[]       NOT NULL DEFAULT '{}',
    tier           TEXT         NOT NULL,
    outcome        TEXT         NOT NULL,
    recognized     TEXT         NOT NULL DEFAULT '',
    confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
    correct        BOOLEAN      NOT NULL DEFAULT false,
    accuracy       DOUBLE PRECISION NOT NULL DEFAULT 0,
    feedback       TEXT         NOT NULL DEFAULT '',
    stage          TEXT         NOT NULL DEFAULT '',
    error          TEXT         NOT NULL DEFAULT '',
    capture_ms     BIGINT       NOT NULL DEFAULT 0,
    started_at     TIMESTAMPTZ  NOT NULL,
    finished_at    TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_tier_finished
    ON attempts (tier, finished_at);
`

// DB is the subset of [pgxpool.Pool] the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

// Migrate applies [Schema]. It is idempotent.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("attemptlog: migrate: %w", err)
	}
	return nil
}

// PostgresStore writes attempt records to the attempts table.
type PostgresStore struct {
	db    DB
	close func()
}

var _ assessment.ResultSink = (*PostgresStore)(nil)

// NewPostgresStore wraps an existing connection. The schema is not migrated.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, close: func() {}}
}

// OpenPostgres connects to dsn, pings and migrates. Close releases the pool.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("attemptlog: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("attemptlog: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{db: pool, close: pool.Close}, nil
}

// Record implements assessment.ResultSink. Re-recording an attempt id
// overwrites the earlier row.
func (s *PostgresStore) Record(ctx context.Context, rec assessment.Record) error {
	const q = `
		INSERT INTO attempts
		    (attempt_id, correlation_id, expected, alternatives, tier, outcome,
		     recognized, confidence, correct, accuracy, feedback, stage, error,
		     capture_ms, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (attempt_id) DO UPDATE SET
		    outcome     = EXCLUDED.outcome,
		    recognized  = EXCLUDED.recognized,
		    confidence  = EXCLUDED.confidence,
		    correct     = EXCLUDED.correct,
		    accuracy    = EXCLUDED.accuracy,
		    feedback    = EXCLUDED.feedback,
		    stage       = EXCLUDED.stage,
		    error       = EXCLUDED.error,
		    capture_ms  = EXCLUDED.capture_ms,
		    finished_at = EXCLUDED.finished_at`

	alts := rec.Alternatives
	if alts == nil {
		alts = []string{}
	}
	_, err := s.db.Exec(ctx, q,
		rec.AttemptID,
		rec.CorrelationID,
		rec.Expected,
		alts,
		rec.Tier,
		string(rec.Outcome),
		rec.Recognized,
		rec.Confidence,
		rec.Correct,
		rec.Accuracy,
		rec.Feedback,
		rec.Stage,
		rec.Error,
		rec.CaptureMillis,
		rec.StartedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("attemptlog: record %s: %w", rec.AttemptID, err)
	}
	return nil
}

// Get loads one attempt record.
func (s *PostgresStore) Get(ctx context.Context, attemptID string) (assessment.Record, error) {
	const q = `
		SELECT attempt_id, correlation_id, expected, alternatives, tier, outcome,
		       recognized, confidence, correct, accuracy, feedback, stage, error,
		       capture_ms, started_at, finished_at
		FROM   attempts
		WHERE  attempt_id = $1`

	var (
		rec     assessment.Record
		outcome string
	)
	err := s.db.QueryRow(ctx, q, attemptID).Scan(
		&rec.AttemptID, &rec.CorrelationID, &rec.Expected, &rec.Alternatives,
		&rec.Tier, &outcome, &rec.Recognized, &rec.Confidence, &rec.Correct,
		&rec.Accuracy, &rec.Feedback, &rec.Stage, &rec.Error,
		&rec.CaptureMillis, &rec.StartedAt, &rec.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return assessment.Record{}, fmt.Errorf("attemptlog: get %s: %w", attemptID, ErrNotFound)
	}
	if err != nil {
		return assessment.Record{}, fmt.Errorf("attemptlog: get %s: %w", attemptID, err)
	}
	rec.Outcome = assessment.Outcome(outcome)
	return rec, nil
}

// Ping checks that the database answers a trivial query.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("attemptlog: ping: %w", err)
	}
	return nil
}

// Close releases the pool opened by OpenPostgres.
func (s *PostgresStore) Close() { s.close() }
