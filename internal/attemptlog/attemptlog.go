// Package attemptlog provides [assessment.ResultSink] implementations that
// keep an audit trail of pronunciation attempts: a PostgreSQL table, a NATS
// subject per tier and a Kafka topic. [Multi] fans one record out to several
// sinks.
package attemptlog

import (
	"context"
	"errors"

	"github.com/MrWong99/learnchars/internal/assessment"
)

// Multi writes every record to each sink in order. All sinks are attempted;
// their errors are joined.
type Multi []assessment.ResultSink

var _ assessment.ResultSink = Multi(nil)

// Record implements assessment.ResultSink.
func (m Multi) Record(ctx context.Context, rec assessment.Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
