// Command learnchars runs one pronunciation attempt against the configured
// microphone and recognition backend and prints the graded verdict.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/learnchars/internal/app"
	"github.com/MrWong99/learnchars/internal/assessment"
	"github.com/MrWong99/learnchars/internal/config"
	"github.com/MrWong99/learnchars/internal/observe"
	"github.com/MrWong99/learnchars/internal/resilience"
	"github.com/MrWong99/learnchars/pkg/audio"
	"github.com/MrWong99/learnchars/pkg/audio/ffmpeg"
	"github.com/MrWong99/learnchars/pkg/pronunciation"
	"github.com/MrWong99/learnchars/pkg/provider/stt"
	"github.com/MrWong99/learnchars/pkg/provider/stt/batch"
	"github.com/MrWong99/learnchars/pkg/provider/stt/deepgram"
	"github.com/MrWong99/learnchars/pkg/provider/stt/openai"
	"github.com/MrWong99/learnchars/pkg/provider/stt/whisper"
)

// stringList collects a repeatable string flag.
type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	var alts stringList
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	expected := flag.String("expected", "", "characters the learner should pronounce")
	tierName := flag.String("tier", "intermediate", "difficulty tier: beginner, intermediate, advanced or expert")
	hold := flag.Duration("hold", 0, "stop after this long instead of waiting for Enter")
	enforce := flag.Bool("time-limit", false, "stop automatically at the tier's time limit")
	watch := flag.Bool("watch", false, "reload log level and matching policy when the config file changes")
	flag.Var(&alts, "alt", "accepted alternative answer (repeatable)")
	flag.Parse()

	if strings.TrimSpace(*expected) == "" {
		fmt.Fprintln(os.Stderr, "learnchars: -expected is required")
		flag.Usage()
		return 2
	}
	tier, err := pronunciation.ParseTier(*tierName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "learnchars: %v\n", err)
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "learnchars: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "learnchars: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	fallbackNames := make([]string, 0, len(cfg.Providers.STTFallbacks))
	for _, e := range cfg.Providers.STTFallbacks {
		fallbackNames = append(fallbackNames, e.Name)
	}
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		STTProvider:  cfg.Providers.STT.Name,
		STTFallbacks: fallbackNames,
	})
	if err != nil {
		slog.Error("failed to init telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	closers := registerBuiltinProviders(reg)
	defer closers.closeAll()

	providers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers,
		app.WithLogger(logger),
		app.WithLevelVar(level),
		app.WithMetrics(metrics),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(sctx); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	if *watch {
		w, err := config.NewWatcher(*configPath, application.ApplyConfig, config.WithWatcherLogger(logger))
		if err != nil {
			slog.Error("failed to watch config", "err", err)
			return 1
		}
		defer w.Stop()
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	runErr := make(chan error, 1)
	go func() { runErr <- application.Run(runCtx) }()

	code := attempt(ctx, application.Orchestrator(), assessment.Request{
		Expected:         *expected,
		Alternatives:     alts,
		Tier:             tier,
		EnforceTimeLimit: *enforce,
	}, *hold, os.Stdin, os.Stdout)

	cancelRun()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	return code
}

// attempt runs one graded attempt. Recording stops when the learner presses
// Enter, when hold elapses (if positive) or when ctx ends.
func attempt(ctx context.Context, orch *assessment.Orchestrator, req assessment.Request, hold time.Duration, in io.Reader, out io.Writer) int {
	a, err := orch.BeginAttempt(ctx, req)
	if err != nil {
		fmt.Fprintf(out, "could not start recording: %v\n", err)
		return 1
	}
	if hold > 0 {
		fmt.Fprintf(out, "Say %q now, recording for %s…\n", req.Expected, hold)
	} else {
		fmt.Fprintf(out, "Say %q now, press Enter when done…\n", req.Expected)
	}

	enter := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(in).ReadString('\n')
		close(enter)
	}()
	var deadline <-chan time.Time
	if hold > 0 {
		t := time.NewTimer(hold)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case <-enter:
		_ = orch.RequestStop(a)
	case <-deadline:
		_ = orch.RequestStop(a)
	case <-a.Done():
	case <-ctx.Done():
	}

	res, err := a.Wait(context.WithoutCancel(ctx))
	if err != nil {
		fmt.Fprintf(out, "attempt aborted: %v\n", err)
		return 1
	}
	return printResult(out, res)
}

func printResult(out io.Writer, res assessment.Result) int {
	switch {
	case errors.Is(res.Err, assessment.ErrCancelled):
		fmt.Fprintln(out, "Attempt cancelled.")
		return 1
	case res.Err != nil:
		fmt.Fprintf(out, "Attempt failed: %v\n", res.Err)
		return 1
	case res.Verdict == nil:
		fmt.Fprintln(out, "No verdict.")
		return 1
	}
	v := res.Verdict
	fmt.Fprintf(out, "Heard:    %s\n", res.Recognized)
	fmt.Fprintf(out, "Verdict:  %s\n", v.Feedback.Message())
	fmt.Fprintf(out, "Accuracy: %.0f%%\n", v.Accuracy*100)
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

type closerList []io.Closer

func (l *closerList) add(c io.Closer) { *l = append(*l, c) }

func (l *closerList) closeAll() {
	for _, c := range *l {
		if err := c.Close(); err != nil {
			slog.Warn("provider close error", "err", err)
		}
	}
}

// batchOptions reads the silence gate and buffer cap shared by all batch
// backends.
func batchOptions(entry config.ProviderEntry) ([]batch.Option, error) {
	var opts []batch.Option
	if rms, ok := entry.OptFloat("silence_rms"); ok {
		opts = append(opts, batch.WithSilenceRMS(rms))
	}
	d, err := entry.OptDuration("max_duration")
	if err != nil {
		return nil, err
	}
	if d > 0 {
		opts = append(opts, batch.WithMaxDuration(d))
	}
	return opts, nil
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Native backends that hold resources are added to the returned list.
func registerBuiltinProviders(reg *config.Registry) *closerList {
	closers := &closerList{}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		c, err := whisper.New(entry.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		bopts, err := batchOptions(entry)
		if err != nil {
			return nil, err
		}
		return batch.New(c, bopts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptString("model_path")
		}
		var opts []whisper.NativeOption
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		bopts, err := batchOptions(entry)
		if err != nil {
			return nil, err
		}
		n, err := whisper.NewNative(modelPath, opts...)
		if err != nil {
			return nil, err
		}
		closers.add(n)
		return batch.New(n, bopts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptString("organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		timeout, err := entry.OptDuration("timeout")
		if err != nil {
			return nil, err
		}
		if timeout > 0 {
			opts = append(opts, openai.WithTimeout(timeout))
		}
		tr, err := openai.New(entry.APIKey, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		bopts, err := batchOptions(entry)
		if err != nil {
			return nil, err
		}
		return batch.New(tr, bopts...)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("ffmpeg", func(entry config.ProviderEntry) (audio.Capture, error) {
		var opts []ffmpeg.Option
		if cmd := entry.OptString("command"); cmd != "" {
			opts = append(opts, ffmpeg.WithCommand(cmd))
		}
		frame, err := entry.OptDuration("frame_duration")
		if err != nil {
			return nil, err
		}
		if frame > 0 {
			opts = append(opts, ffmpeg.WithFrameDuration(frame))
		}
		return ffmpeg.New(opts...), nil
	})

	for _, kind := range []string{"stt", "audio"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
	return closers
}

// buildProviders instantiates the providers named in cfg. The primary STT
// backend and its fallbacks are combined behind one failover provider.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, error) {
	primary, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	fb := resilience.NewSTTFallback(primary, cfg.Providers.STT.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Logger: slog.Default()},
	}, metrics)
	for _, entry := range cfg.Providers.STTFallbacks {
		p, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
		}
		fb.AddFallback(entry.Name, p)
		slog.Info("provider created", "kind", "stt-fallback", "name", entry.Name)
	}

	audioEntry := cfg.Providers.Audio
	if audioEntry.Name == "" {
		audioEntry.Name = "ffmpeg"
	}
	capture, err := reg.CreateAudio(audioEntry)
	if err != nil {
		return nil, fmt.Errorf("create audio provider %q: %w", audioEntry.Name, err)
	}
	slog.Info("provider created", "kind", "audio", "name", audioEntry.Name)

	return &app.Providers{STT: fb, Audio: capture}, nil
}
