// Package mock provides a recording [assessment.ResultSink] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/learnchars/internal/assessment"
)

// Sink records every Record call.
type Sink struct {
	mu      sync.Mutex
	records []assessment.Record

	// Err, if non-nil, is returned by every Record call. The record is still
	// captured.
	Err error
}

// Record implements assessment.ResultSink.
func (s *Sink) Record(_ context.Context, rec assessment.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.Err
}

// Records returns a copy of the captured records.
func (s *Sink) Records() []assessment.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]assessment.Record(nil), s.records...)
}

var _ assessment.ResultSink = (*Sink)(nil)
