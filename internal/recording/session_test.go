package recording

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/learnchars/internal/clock"
	"github.com/MrWong99/learnchars/pkg/audio"
	audiomock "github.com/MrWong99/learnchars/pkg/audio/mock"
	"github.com/MrWong99/learnchars/pkg/provider/stt"
	sttmock "github.com/MrWong99/learnchars/pkg/provider/stt/mock"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	clk      *clock.Fake
	capture  *audiomock.Capture
	provider *sttmock.Provider
	handle   *audiomock.Handle
	stream   *sttmock.Session
	rec      *Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clk:    clock.NewFake(epoch),
		handle: audiomock.NewHandle(16),
		stream: sttmock.NewSession(16),
	}
	f.capture = &audiomock.Capture{Handle: f.handle}
	f.provider = &sttmock.Provider{Session: f.stream}
	rec, err := New(f.capture, f.provider, DefaultConfig(), WithClock(f.clk))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.rec = rec
	return f
}

// start begins a session and waits for capture.
func (f *fixture) start(t *testing.T, opts StartOptions) *Session {
	t.Helper()
	s, err := f.rec.Start(context.Background(), opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.WaitCapturing(ctx); err != nil {
		t.Fatalf("WaitCapturing: %v", err)
	}
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitOutcome(t *testing.T, s *Session) (Outcome, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := s.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("session did not finish; state %v", s.State())
	}
	return out, err
}

func TestStop_DeferredUntilMinimumDuration(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.stream.OnCloseSend = func(ss *sttmock.Session) {
		ss.Emit(stt.Transcript{Text: "你好", Confidence: 0.8, IsFinal: true})
		ss.End(nil)
	}
	s := f.start(t, StartOptions{})

	f.clk.Advance(200 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := s.State(); got != StateAwaitingMinimumDuration {
		t.Fatalf("state after early stop = %v", got)
	}

	f.clk.Advance(799 * time.Millisecond)
	if cs, _ := f.stream.Counts(); cs != 0 {
		t.Fatal("stream finalised before the minimum duration")
	}
	if f.handle.Released() {
		t.Fatal("capture released before the minimum duration")
	}
	if got := s.State(); got != StateAwaitingMinimumDuration {
		t.Fatalf("state at 0.999s = %v", got)
	}

	f.clk.Advance(time.Millisecond)
	out, err := waitOutcome(t, s)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if out.Text != "你好" || !out.Final || out.Elapsed != time.Second {
		t.Errorf("outcome = %+v", out)
	}
	if !f.handle.Released() {
		t.Error("capture not released")
	}
	if s.State() != StateCompleted {
		t.Errorf("state = %v", s.State())
	}
}

func TestFinalCandidate_WinsOverPendingStop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.start(t, StartOptions{})

	f.clk.Advance(200 * time.Millisecond)
	_ = s.Stop()
	f.clk.Advance(100 * time.Millisecond)
	f.stream.Emit(stt.Transcript{Text: "电", Confidence: 0.2, IsFinal: true})

	out, err := waitOutcome(t, s)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if out.Text != "电" || !out.Final || out.Confidence != 0.2 {
		t.Errorf("outcome = %+v", out)
	}
	if out.Elapsed != 300*time.Millisecond {
		t.Errorf("elapsed = %v, want 300ms", out.Elapsed)
	}
	if f.clk.Pending() != 0 {
		t.Errorf("wake timer still pending")
	}
}

func TestFinalCandidate_WinsOverHigherPartial(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.start(t, StartOptions{})

	f.stream.Emit(stt.Transcript{Text: "你好吗", Confidence: 0.95})
	f.stream.Emit(stt.Transcript{Text: "你好", Confidence: 0.3, IsFinal: true})

	out, err := waitOutcome(t, s)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if out.Text != "你好" || !out.Final {
		t.Errorf("outcome = %+v, want final 你好", out)
	}
}

func TestBestPartial_RetainedByConfidence(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.start(t, StartOptions{})

	for _, tr := range []stt.Transcript{
		{Text: "a", Confidence: 0.5},
		{Text: "b", Confidence: 0.4},
		{Text: "c", Confidence: 0.7},
		{Text: "d", Confidence: 0.7},
		{Text: "", Confidence: 0.99},
	} {
		f.stream.Emit(tr)
	}
	f.stream.End(nil)

	out, err := waitOutcome(t, s)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if out.Text != "c" || out.Confidence != 0.7 || out.Final {
		t.Errorf("outcome = %+v, want partial c@0.7", out)
	}
}

func TestProviderError_WithoutCandidateFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.start(t, StartOptions{})

	f.stream.End(stt.ErrServiceUnavailable)

	_, err := waitOutcome(t, s)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %v", s.State())
	}
	if !f.handle.Released() {
		t.Error("capture not released on failure")
	}
}

func TestProviderError_AfterCandidateCompletes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.start(t, StartOptions{})

	f.stream.Emit(stt.Transcript{Text: "十四", Confidence: 0.6})
	f.stream.End(stt.ErrServiceUnavailable)

	out, err := waitOutcome(t, s)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if out.Text != "十四" || s.State() != StateCompleted {
		t.Errorf("outcome = %+v state = %v", out, s.State())
	}
}

func TestNoSpeech_CompletesEmpty(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.start(t, StartOptions{})

	f.stream.End(stt.ErrNoSpeechDetected)

	out, err := waitOutcome(t, s)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if out.Text != "" || out.Confidence != 0 {
		t.Errorf("outcome = %+v, want empty", out)
	}
}

func TestStop_DrainTimeoutCompletesWithBest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.start(t, StartOptions{})

	f.stream.Emit(stt.Transcript{Text: "猫", Confidence: 0.4})
	waitFor(t, "partial", func() bool { _, ok := s.Partial(); return ok })

	f.clk.Advance(1500 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.State() != StateFinalizing {
		t.Fatalf("state = %v, want finalizing", s.State())
	}
	if cs, _ := f.stream.Counts(); cs != 1 {
		t.Errorf("CloseSend calls = %d, want 1", cs)
	}
	if !f.handle.Released() {
		t.Error("capture must be released when finalising")
	}
	if err := s.Cancel(); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("Cancel while finalizing = %v, want ErrNotCancellable", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("repeated Stop = %v, want nil", err)
	}

	f.clk.Advance(DefaultDrainTimeout)
	out, err := waitOutcome(t, s)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if out.Text != "猫" || out.Elapsed != 1500*time.Millisecond {
		t.Errorf("outcome = %+v", out)
	}
}

func TestCancel_Idempotence(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.start(t, StartOptions{})

	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !f.handle.Released() {
		t.Fatal("capture must be released when Cancel returns")
	}
	if s.State() != StateCancelled {
		t.Fatalf("state = %v", s.State())
	}
	if err := s.Cancel(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("second Cancel = %v, want ErrSessionClosed", err)
	}
	if err := s.Stop(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Stop after Cancel = %v, want ErrSessionClosed", err)
	}
	if s.State() != StateCancelled {
		t.Errorf("state changed to %v", s.State())
	}
	if _, err := waitOutcome(t, s); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait = %v, want context.Canceled", err)
	}
}

func TestCancel_DuringMinimumDurationWait(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.start(t, StartOptions{})
	_ = s.Stop()

	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if f.clk.Pending() != 0 {
		t.Error("wake timer left pending after cancel")
	}
	f.clk.Advance(time.Second)
	if s.State() != StateCancelled {
		t.Errorf("state = %v", s.State())
	}
}

func TestStart_AlreadyActive(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.start(t, StartOptions{})

	if _, err := f.rec.Start(context.Background(), StartOptions{}); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second Start = %v, want ErrAlreadyActive", err)
	}
	if s.State() != StateCapturing {
		t.Errorf("first session disturbed: %v", s.State())
	}

	_ = s.Cancel()
	<-s.Done()
	f.provider.Session = sttmock.NewSession(4)
	f.capture.Handle = audiomock.NewHandle(4)
	next, err := f.rec.Start(context.Background(), StartOptions{})
	if err != nil {
		t.Fatalf("Start after terminal: %v", err)
	}
	_ = next.Cancel()
}

func TestStart_AcquisitionErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		acquireErr  error
		streamErr   error
		want        error
		wantRelease bool
	}{
		{name: "microphone denied", acquireErr: audio.ErrPermissionDenied, want: ErrNotAuthorized},
		{name: "no device", acquireErr: audio.ErrDeviceUnavailable, want: ErrProviderUnavailable},
		{name: "recogniser denied", streamErr: stt.ErrNotAuthorized, want: ErrNotAuthorized, wantRelease: true},
		{name: "recogniser down", streamErr: stt.ErrServiceUnavailable, want: ErrProviderUnavailable, wantRelease: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.capture.AcquireError = tt.acquireErr
			f.provider.StartStreamErr = tt.streamErr

			s, err := f.rec.Start(context.Background(), StartOptions{})
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			if err := s.WaitCapturing(context.Background()); !errors.Is(err, tt.want) {
				t.Errorf("WaitCapturing = %v, want %v", err, tt.want)
			}
			if _, err := waitOutcome(t, s); !errors.Is(err, tt.want) {
				t.Errorf("Wait = %v, want %v", err, tt.want)
			}
			if s.State() != StateFailed {
				t.Errorf("state = %v", s.State())
			}
			if f.handle.Released() != tt.wantRelease {
				t.Errorf("released = %v, want %v", f.handle.Released(), tt.wantRelease)
			}
		})
	}
}

func TestCaptureLost(t *testing.T) {
	t.Parallel()

	t.Run("without partial fails", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		s := f.start(t, StartOptions{})
		f.handle.Fail(errors.New("device unplugged"))
		if _, err := waitOutcome(t, s); !errors.Is(err, ErrProviderUnavailable) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("with partial finalizes", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.stream.OnCloseSend = func(ss *sttmock.Session) { ss.End(nil) }
		s := f.start(t, StartOptions{})
		f.stream.Emit(stt.Transcript{Text: "好", Confidence: 0.5})
		waitFor(t, "partial", func() bool { _, ok := s.Partial(); return ok })
		f.handle.Fail(errors.New("device unplugged"))

		out, err := waitOutcome(t, s)
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
		if out.Text != "好" {
			t.Errorf("outcome = %+v", out)
		}
	})
}

func TestAudio_ForwardedAndConverted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.start(t, StartOptions{})

	// 480 stereo frames at 48 kHz become 160 mono samples at 16 kHz.
	pcm := make([]byte, 480*2*2)
	for i := range 480 * 2 {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(1000))
	}
	f.handle.Push(audio.Frame{Data: pcm, SampleRate: 48000, Channels: 2})
	f.handle.Push(audio.Frame{Data: make([]byte, 320), SampleRate: 16000, Channels: 1})

	waitFor(t, "audio", func() bool { return f.stream.SendAudioCallCount() == 2 })
	if first := f.stream.Chunks()[0]; len(first) != 320 {
		t.Errorf("converted chunk = %d bytes, want 320", len(first))
	}
	_ = s.Cancel()
}

func TestStart_KeywordsAppended(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.start(t, StartOptions{Keywords: []stt.KeywordBoost{{Keyword: "十四", Boost: 2}}})
	defer s.Cancel()

	calls := f.provider.StartStreamCalls
	if len(calls) != 1 {
		t.Fatalf("StartStream calls = %d", len(calls))
	}
	cfg := calls[0].Cfg
	if len(cfg.Keywords) != 1 || cfg.Keywords[0].Keyword != "十四" {
		t.Errorf("keywords = %+v", cfg.Keywords)
	}
	if cfg.SampleRate != 16000 || cfg.Channels != 1 {
		t.Errorf("stream format = %d/%d", cfg.SampleRate, cfg.Channels)
	}
}

func TestParentContextCancelsSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	s, err := f.rec.Start(ctx, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.WaitCapturing(context.Background()); err != nil {
		t.Fatalf("WaitCapturing: %v", err)
	}
	cancel()

	if _, err := waitOutcome(t, s); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait = %v, want context.Canceled", err)
	}
	if s.State() != StateCancelled || !f.handle.Released() {
		t.Errorf("state = %v released = %v", s.State(), f.handle.Released())
	}
}

func TestZeroMinimumDurationFinalizesImmediately(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec, _ := New(f.capture, f.provider, Config{}, WithClock(f.clk))
	f.stream.OnCloseSend = func(ss *sttmock.Session) { ss.End(nil) }
	s, _ := rec.Start(context.Background(), StartOptions{})
	_ = s.WaitCapturing(context.Background())

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := waitOutcome(t, s); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestState_Strings(t *testing.T) {
	t.Parallel()

	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == "unknown" {
			t.Errorf("state %d has no name", st)
		}
		want := st == StateCompleted || st == StateCancelled || st == StateFailed
		if st.IsTerminal() != want {
			t.Errorf("%v.IsTerminal() = %v", st, st.IsTerminal())
		}
	}
}

// gatedFixture is a fixture whose capture blocks in Acquire until gate is
// closed, holding the session in Preparing.
func gatedFixture(t *testing.T, ignoreCtx bool) (*fixture, chan struct{}) {
	t.Helper()
	f := newFixture(t)
	gate := make(chan struct{})
	f.capture.Gate = gate
	f.capture.GateIgnoresContext = ignoreCtx
	return f, gate
}

func startPreparing(t *testing.T, f *fixture) *Session {
	t.Helper()
	s, err := f.rec.Start(context.Background(), StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "acquire call", func() bool { return f.capture.CallCount() == 1 })
	if got := s.State(); got != StatePreparing {
		t.Fatalf("state = %v, want preparing", got)
	}
	return s
}

func TestCancel_WhilePreparing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		// ignoreCtx models a device that finishes opening after the cancel,
		// so the session must release what it is handed.
		ignoreCtx    bool
		wantReleased bool
	}{
		{name: "acquire interrupted", ignoreCtx: false},
		{name: "acquire completes after cancel", ignoreCtx: true, wantReleased: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f, gate := gatedFixture(t, tt.ignoreCtx)
			s := startPreparing(t, f)

			cancelErr := make(chan error, 1)
			go func() { cancelErr <- s.Cancel() }()
			if tt.ignoreCtx {
				waitFor(t, "cancel to reach the actor", func() bool { return s.ctx.Err() != nil })
				select {
				case err := <-cancelErr:
					t.Fatalf("Cancel returned %v before acquisition finished", err)
				default:
				}
				close(gate)
			}

			select {
			case err := <-cancelErr:
				if err != nil {
					t.Fatalf("Cancel: %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("Cancel did not return")
			}
			if s.State() != StateCancelled {
				t.Fatalf("state = %v, want cancelled", s.State())
			}
			if tt.wantReleased {
				if !f.handle.Released() {
					t.Error("late handle not released")
				}
				if _, closes := f.stream.Counts(); closes != 1 {
					t.Errorf("stream Close calls = %d, want 1", closes)
				}
			}
			if err := s.Cancel(); !errors.Is(err, ErrSessionClosed) {
				t.Errorf("second Cancel = %v, want ErrSessionClosed", err)
			}

			<-s.Done()
			f.capture.Gate = nil
			next, err := f.rec.Start(context.Background(), StartOptions{})
			if err != nil {
				t.Fatalf("Start after cancel: %v", err)
			}
			_ = next.Cancel()
		})
	}
}

func TestStop_WhilePreparingDeferredFromCaptureStart(t *testing.T) {
	t.Parallel()

	f, gate := gatedFixture(t, false)
	f.stream.OnCloseSend = func(ss *sttmock.Session) { ss.End(nil) }
	s := startPreparing(t, f)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop while preparing: %v", err)
	}
	if got := s.State(); got != StatePreparing {
		t.Fatalf("state after early stop = %v, want preparing", got)
	}

	// Time spent acquiring the device does not count toward the minimum.
	f.clk.Advance(5 * time.Second)
	close(gate)
	waitFor(t, "deferred stop", func() bool { return s.State() == StateAwaitingMinimumDuration })

	f.stream.Emit(stt.Transcript{Text: "ni", Confidence: 0.4})
	waitFor(t, "partial", func() bool { _, ok := s.Partial(); return ok })

	f.clk.Advance(999 * time.Millisecond)
	if got := s.State(); got != StateAwaitingMinimumDuration {
		t.Fatalf("state at 0.999s = %v", got)
	}
	f.clk.Advance(time.Millisecond)

	out, err := waitOutcome(t, s)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if out.Text != "ni" || out.Confidence != 0.4 || out.Final || out.Elapsed != time.Second {
		t.Errorf("outcome = %+v, want ni/0.4 after 1s", out)
	}
}

// transitionLog collects the target state of every logged transition.
type transitionLog struct {
	mu sync.Mutex
	to []string
}

func (l *transitionLog) Enabled(context.Context, slog.Level) bool { return true }
func (l *transitionLog) WithAttrs([]slog.Attr) slog.Handler      { return l }
func (l *transitionLog) WithGroup(string) slog.Handler           { return l }

func (l *transitionLog) Handle(_ context.Context, r slog.Record) error {
	if r.Message != "recording: transition" {
		return nil
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "to" {
			l.mu.Lock()
			l.to = append(l.to, a.Value.String())
			l.mu.Unlock()
			return false
		}
		return true
	})
	return nil
}

func (l *transitionLog) states() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.to...)
}

func TestFinalCandidate_PassesThroughFinalizing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	logs := &transitionLog{}
	rec, err := New(f.capture, f.provider, DefaultConfig(), WithClock(f.clk), WithLogger(slog.New(logs)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.rec = rec
	s := f.start(t, StartOptions{})

	f.clk.Advance(1500 * time.Millisecond)
	f.stream.Emit(stt.Transcript{Text: "好", Confidence: 0.9, IsFinal: true})
	out, err := waitOutcome(t, s)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if out.Text != "好" || !out.Final || out.Elapsed != 1500*time.Millisecond {
		t.Errorf("outcome = %+v", out)
	}

	got := logs.states()
	want := []string{"preparing", "capturing", "finalizing", "completed"}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", got, want)
		}
	}
}

func TestEmptyFinal_KeepsBestPartial(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.start(t, StartOptions{})

	f.stream.Emit(stt.Transcript{Text: "猫", Confidence: 0.4})
	waitFor(t, "partial", func() bool { _, ok := s.Partial(); return ok })

	f.stream.Emit(stt.Transcript{IsFinal: true})
	f.stream.Emit(stt.Transcript{Text: "毛", Confidence: 0.6})
	waitFor(t, "second partial", func() bool { p, _ := s.Partial(); return p.Text == "毛" })
	if s.State() != StateCapturing {
		t.Fatalf("state = %v, want capturing", s.State())
	}

	f.clk.Advance(1500 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	f.stream.Emit(stt.Transcript{IsFinal: true})
	out, err := waitOutcome(t, s)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if out.Text != "毛" || out.Final || out.Confidence != 0.6 {
		t.Errorf("outcome = %+v, want best partial", out)
	}
}
