package observe

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordingHandler keeps every slog record it receives.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler           { return h }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingHandler) last(t *testing.T) slog.Record {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.records) == 0 {
		t.Fatal("no log record written")
	}
	return h.records[len(h.records)-1]
}

func attrValue(r slog.Record, key string) (slog.Value, bool) {
	var (
		v     slog.Value
		found bool
	)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			v, found = a.Value, true
			return false
		}
		return true
	})
	return v, found
}

func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(code) })
}

func TestMiddleware_CompletionLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		status int
		want   slog.Level
	}{
		{name: "healthz ok", path: "/healthz", status: http.StatusOK, want: slog.LevelDebug},
		{name: "metrics scrape", path: "/metrics", status: http.StatusOK, want: slog.LevelDebug},
		{name: "readyz not ready", path: "/readyz", status: http.StatusServiceUnavailable, want: slog.LevelInfo},
		{name: "readyz bad request", path: "/readyz", status: http.StatusBadRequest, want: slog.LevelInfo},
		{name: "attempts", path: "/attempts", status: http.StatusOK, want: slog.LevelInfo},
		{name: "unknown path not found", path: "/healthz/extra", status: http.StatusNotFound, want: slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, _ := newTestMetrics(t)
			logs := &recordingHandler{}
			h := Middleware(m, WithRequestLogger(slog.New(logs)))(statusHandler(tt.status))

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			rec := logs.last(t)
			if rec.Level != tt.want {
				t.Errorf("level = %v, want %v", rec.Level, tt.want)
			}
			if v, ok := attrValue(rec, "status"); !ok || v.Int64() != int64(tt.status) {
				t.Errorf("status attr = %v (found %v), want %d", v, ok, tt.status)
			}
			if v, ok := attrValue(rec, "path"); !ok || v.String() != tt.path {
				t.Errorf("path attr = %v, want %q", v, tt.path)
			}
		})
	}
}

func TestMiddleware_DefaultStatusIsOK(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	logs := &recordingHandler{}
	h := Middleware(m, WithRequestLogger(slog.New(logs)))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := logs.last(t)
	if rec.Level != slog.LevelDebug {
		t.Errorf("level = %v, want debug for implicit 200", rec.Level)
	}
}

func TestMiddleware_DurationByPath(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	logs := &recordingHandler{}
	h := Middleware(m, WithRequestLogger(slog.New(logs)))(statusHandler(http.StatusOK))
	for _, p := range []string{"/readyz", "/readyz", "/metrics"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "learnchars.http.request.duration")
	if met == nil {
		t.Fatal("request duration histogram not recorded")
	}
	counts := map[string]uint64{}
	for _, dp := range met.Data.(metricdata.Histogram[float64]).DataPoints {
		path, _ := dp.Attributes.Value("path")
		counts[path.AsString()] += dp.Count
	}
	if counts["/readyz"] != 2 || counts["/metrics"] != 1 {
		t.Errorf("samples by path = %v, want /readyz:2 /metrics:1", counts)
	}
}

// Not parallel: installs a global tracer provider.
func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	m, _ := newTestMetrics(t)
	logs := &recordingHandler{}

	var seen string
	h := Middleware(m, WithRequestLogger(slog.New(logs)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if seen != traceID {
		t.Errorf("handler correlation id = %q, want %q", seen, traceID)
	}
	if got := rr.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
	}
	if v, _ := attrValue(logs.last(t), "trace_id"); v.String() != traceID {
		t.Errorf("log trace_id = %q, want %q", v.String(), traceID)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	sp := spans[0]
	if sp.Name != "HTTP GET /readyz" || sp.SpanContext.TraceID().String() != traceID {
		t.Errorf("span = %q trace %s", sp.Name, sp.SpanContext.TraceID())
	}
	var status int64
	for _, a := range sp.Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusServiceUnavailable {
		t.Errorf("span status attribute = %d, want 503", status)
	}
}
