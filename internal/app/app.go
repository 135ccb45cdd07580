// Package app wires the learnchars subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the recorder, matcher,
// orchestrator and attempt-log sinks from the config, Run serves the
// operational HTTP endpoints until its context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithSink, WithClock,
// etc.). When an option is not provided, New creates real implementations
// from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/learnchars/internal/assessment"
	"github.com/MrWong99/learnchars/internal/attemptlog"
	"github.com/MrWong99/learnchars/internal/clock"
	"github.com/MrWong99/learnchars/internal/config"
	"github.com/MrWong99/learnchars/internal/health"
	"github.com/MrWong99/learnchars/internal/observe"
	"github.com/MrWong99/learnchars/internal/recording"
	"github.com/MrWong99/learnchars/pkg/audio"
	"github.com/MrWong99/learnchars/pkg/pronunciation"
	"github.com/MrWong99/learnchars/pkg/provider/stt"
)

const readHeaderTimeout = 5 * time.Second

// Providers holds the collaborators built from the provider registry.
type Providers struct {
	STT   stt.Provider
	Audio audio.Capture
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger
	level     *slog.LevelVar
	clock     clock.Clock
	metrics   *observe.Metrics
	sink      assessment.ResultSink
	checkers  []health.Checker
	promH     http.Handler

	recorder *recording.Recorder
	orch     *assessment.Orchestrator
	handler  http.Handler

	// closers run in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once

	mu   sync.Mutex
	addr net.Addr
}

// Option is a functional option for New.
type Option func(*App)

// WithSink injects the attempt-log sink instead of building one from
// attempt_log.
func WithSink(s assessment.ResultSink) Option {
	return func(a *App) { a.sink = s }
}

// WithClock replaces the wall clock for recording and grading.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the base logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar lets config reloads adjust the verbosity of the handler that
// reads lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithHealthCheck adds a readiness checker.
func WithHealthCheck(c health.Checker) Option {
	return func(a *App) { a.checkers = append(a.checkers, c) }
}

// WithMetricsHandler replaces the /metrics handler. Defaults to promhttp.Handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.promH = h }
}

// New builds an App from cfg and providers. Sinks named in cfg.AttemptLog are
// connected synchronously; a sink that cannot be reached fails New.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil || providers.STT == nil || providers.Audio == nil {
		return nil, errors.New("app: stt and audio providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		log:       slog.Default(),
		clock:     clock.Real(),
		promH:     promhttp.Handler(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	rec, err := recording.New(providers.Audio, providers.STT, RecordingConfig(cfg.Recording),
		recording.WithClock(a.clock),
		recording.WithLogger(a.log),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init recorder: %w", err)
	}
	a.recorder = rec

	matcher, err := newMatcher(cfg.Matching)
	if err != nil {
		return nil, fmt.Errorf("app: init matcher: %w", err)
	}

	if a.sink == nil {
		if err := a.initSinks(ctx); err != nil {
			_ = a.Shutdown(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("app: init attempt log: %w", err)
		}
	}

	orchOpts := []assessment.Option{
		assessment.WithMetrics(a.metrics),
		assessment.WithLogger(a.log),
		assessment.WithClock(a.clock),
	}
	if cfg.Matching.KeywordBoost > 0 {
		orchOpts = append(orchOpts, assessment.WithKeywordBoost(cfg.Matching.KeywordBoost))
	}
	if a.sink != nil {
		orchOpts = append(orchOpts, assessment.WithSink(a.sink))
	}
	a.orch, err = assessment.New(rec, matcher, orchOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: init orchestrator: %w", err)
	}

	if hc, ok := providers.STT.(interface{ Healthy() bool }); ok {
		a.checkers = append(a.checkers, health.FlagChecker("stt", hc.Healthy))
	}
	a.handler = a.buildHandler()
	return a, nil
}

// RecordingConfig maps the recording section onto the recorder policy. An
// omitted minimum_duration selects the one second default.
func RecordingConfig(rc config.RecordingConfig) recording.Config {
	minDur := recording.DefaultMinimumDuration
	if rc.MinimumDuration != nil {
		minDur = *rc.MinimumDuration
	}
	return recording.Config{
		MinimumDuration: minDur,
		DrainTimeout:    rc.DrainTimeout,
		Audio: audio.Config{
			SampleRate:  rc.SampleRate,
			Channels:    rc.Channels,
			InputFormat: rc.InputFormat,
			InputDevice: rc.InputDevice,
		},
		Stream: stt.StreamConfig{
			SampleRate: rc.SampleRate,
			Language:   rc.Language,
		},
	}
}

func newMatcher(mc config.MatchingConfig) (*pronunciation.Matcher, error) {
	opts, err := mc.MatcherOptions()
	if err != nil {
		return nil, err
	}
	return pronunciation.NewMatcher(opts...), nil
}

// initSinks connects every configured attempt-log backend.
func (a *App) initSinks(ctx context.Context) error {
	al := a.cfg.AttemptLog
	var sinks attemptlog.Multi

	if al.PostgresDSN != "" {
		store, err := attemptlog.OpenPostgres(ctx, al.PostgresDSN)
		if err != nil {
			return err
		}
		sinks = append(sinks, store)
		a.checkers = append(a.checkers, health.PingChecker("postgres", store))
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		a.log.Info("attempt log sink enabled", "sink", "postgres")
	}

	if al.NATSURL != "" {
		pub, err := attemptlog.ConnectNATS(al.NATSURL, al.NATSSubject)
		if err != nil {
			return err
		}
		sinks = append(sinks, pub)
		a.checkers = append(a.checkers, health.FlagChecker("nats", pub.Healthy))
		a.closers = append(a.closers, pub.Close)
		a.log.Info("attempt log sink enabled", "sink", "nats", "subject", pub.Subject("<tier>"))
	}

	if len(al.KafkaBrokers) > 0 {
		pub, err := attemptlog.NewKafkaPublisher(al.KafkaBrokers, al.KafkaTopic)
		if err != nil {
			return err
		}
		sinks = append(sinks, pub)
		a.closers = append(a.closers, pub.Close)
		a.log.Info("attempt log sink enabled", "sink", "kafka", "topic", al.KafkaTopic)
	}

	switch len(sinks) {
	case 0:
	case 1:
		a.sink = sinks[0]
	default:
		a.sink = sinks
	}
	return nil
}

func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", a.promH)
	health.New(a.checkers...).Register(mux)
	return observe.Middleware(a.metrics, observe.WithRequestLogger(a.log))(mux)
}

// Orchestrator returns the attempt orchestrator.
func (a *App) Orchestrator() *assessment.Orchestrator { return a.orch }

// Recorder returns the recorder backing the orchestrator.
func (a *App) Recorder() *recording.Recorder { return a.recorder }

// Handler returns the operational HTTP handler (/metrics, /healthz, /readyz).
func (a *App) Handler() http.Handler { return a.handler }

// Addr returns the bound listen address once Run has started serving, or nil.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Run serves the operational endpoints on server.listen_addr (when set) and
// blocks until ctx is done. It returns ctx's error on a normal stop.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", addr, err)
		}
		a.mu.Lock()
		a.addr = ln.Addr()
		a.mu.Unlock()

		srv := &http.Server{
			Handler:           a.handler,
			ReadHeaderTimeout: readHeaderTimeout,
			BaseContext:       func(net.Listener) context.Context { return gctx },
		}
		g.Go(func() error {
			a.log.Info("http listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), readHeaderTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		if s := a.recorder.Active(); s != nil {
			_ = s.Cancel()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ApplyConfig applies the hot-reloadable parts of next. It is intended as a
// config.Watcher callback.
func (a *App) ApplyConfig(old, next *config.Config) {
	d := config.Diff(old, next)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.MatchingChanged {
		m, err := newMatcher(next.Matching)
		if err != nil {
			a.log.Warn("ignoring invalid matching config", "err", err)
		} else {
			a.orch.SetMatcher(m)
			a.log.Info("matching policy reloaded", "tiers", d.ChangedTiers)
		}
		if old.Matching.KeywordBoost != next.Matching.KeywordBoost {
			a.log.Warn("matching.keyword_boost changes take effect after restart")
		}
	}

	if d.RestartRequired {
		a.log.Warn("provider, recording or attempt log settings changed; restart to apply")
	}
}

// Shutdown runs the registered closers in order. If ctx expires first, the
// remaining closers are skipped and ctx's error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if a.recorder != nil {
			if s := a.recorder.Active(); s != nil {
				_ = s.Cancel()
			}
		}
		for i, closer := range a.closers {
			if err := ctx.Err(); err != nil {
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = err
				return
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
