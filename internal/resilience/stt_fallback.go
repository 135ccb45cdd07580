package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/learnchars/internal/observe"
	"github.com/MrWong99/learnchars/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] by opening the stream against the
// first healthy backend. Failover only happens while opening: once a session
// is returned, its errors belong to the caller.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend. When metrics is non-nil every attempt is counted per backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig, metrics *observe.Metrics) *STTFallback {
	if metrics != nil {
		observeNext := cfg.Observe
		cfg.Observe = func(ctx context.Context, name string, err error) {
			recordSTTAttempt(ctx, metrics, name, err)
			if observeNext != nil {
				observeNext(ctx, name, err)
			}
		}
	}
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional STT provider.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backends in trial order.
func (f *STTFallback) Names() []string { return f.group.Names() }

// Healthy reports whether any backend's breaker is not open.
func (f *STTFallback) Healthy() bool { return f.group.Healthy() }

// StartStream opens a recognition stream, failing over in order.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.Session, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (stt.Session, error) {
		return p.StartStream(ctx, cfg)
	})
}

func recordSTTAttempt(ctx context.Context, m *observe.Metrics, name string, err error) {
	switch {
	case err == nil:
		m.RecordProviderRequest(ctx, name, "ok")
	case errors.Is(err, ErrCircuitOpen):
		m.RecordProviderRequest(ctx, name, "skipped")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		m.RecordProviderRequest(ctx, name, "cancelled")
	default:
		m.RecordProviderRequest(ctx, name, "error")
		kind := "unavailable"
		if errors.Is(err, stt.ErrNotAuthorized) {
			kind = "not_authorized"
		}
		m.RecordProviderError(ctx, name, kind)
	}
}
