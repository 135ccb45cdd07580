package batch_test

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/learnchars/pkg/provider/stt"
	"github.com/MrWong99/learnchars/pkg/provider/stt/batch"
)

// speech returns n samples of a loud square wave.
func speech(n int) []byte {
	buf := make([]byte, n*2)
	for i := range n {
		v := int16(8000)
		if i%2 == 1 {
			v = -8000
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func collect(t *testing.T, s stt.Session) []stt.Transcript {
	t.Helper()
	var got []stt.Transcript
	timeout := time.After(3 * time.Second)
	for {
		select {
		case tr, ok := <-s.Transcripts():
			if !ok {
				return got
			}
			got = append(got, tr)
		case <-timeout:
			t.Fatal("timed out waiting for stream end")
		}
	}
}

func start(t *testing.T, p *batch.Provider) stt.Session {
	t.Helper()
	s, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "zh"})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNew_NilTranscriber(t *testing.T) {
	t.Parallel()

	if _, err := batch.New(nil); err == nil {
		t.Fatal("expected error for nil transcriber")
	}
}

func TestSession_TranscribesOnCloseSend(t *testing.T) {
	t.Parallel()

	var gotLen atomic.Int64
	var gotLang atomic.Value
	p, _ := batch.New(batch.TranscriberFunc(func(_ context.Context, pcm []byte, cfg stt.StreamConfig) (stt.Transcript, error) {
		gotLen.Store(int64(len(pcm)))
		gotLang.Store(cfg.Language)
		return stt.Transcript{Text: "你好", Confidence: 0.8}, nil
	}))
	s := start(t, p)

	for range 4 {
		if err := s.SendAudio(speech(160)); err != nil {
			t.Fatalf("SendAudio: %v", err)
		}
	}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("CloseSend: %v", err)
	}

	got := collect(t, s)
	if len(got) != 1 || got[0].Text != "你好" || !got[0].IsFinal || got[0].Confidence != 0.8 {
		t.Fatalf("transcripts = %+v, want one final 你好", got)
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err = %v", err)
	}
	if gotLen.Load() != 4*160*2 {
		t.Errorf("transcriber got %d bytes, want %d", gotLen.Load(), 4*160*2)
	}
	if gotLang.Load() != "zh" {
		t.Errorf("transcriber language = %v", gotLang.Load())
	}
	if err := s.SendAudio(speech(1)); !errors.Is(err, stt.ErrSessionClosed) {
		t.Errorf("SendAudio after CloseSend = %v", err)
	}
}

func TestSession_NoSpeech(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		audio []byte
		text  string
		calls int32
	}{
		{name: "no audio", audio: nil, calls: 0},
		{name: "silence", audio: make([]byte, 3200), calls: 0},
		{name: "empty transcription", audio: speech(1600), text: "", calls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls atomic.Int32
			p, _ := batch.New(batch.TranscriberFunc(func(context.Context, []byte, stt.StreamConfig) (stt.Transcript, error) {
				calls.Add(1)
				return stt.Transcript{Text: tt.text}, nil
			}))
			s := start(t, p)
			if tt.audio != nil {
				_ = s.SendAudio(tt.audio)
			}
			_ = s.CloseSend()

			if got := collect(t, s); len(got) != 0 {
				t.Errorf("expected no transcripts, got %+v", got)
			}
			if err := s.Err(); !errors.Is(err, stt.ErrNoSpeechDetected) {
				t.Errorf("Err = %v, want ErrNoSpeechDetected", err)
			}
			if calls.Load() != tt.calls {
				t.Errorf("transcriber calls = %d, want %d", calls.Load(), tt.calls)
			}
		})
	}
}

func TestSession_TranscriberErrorClassified(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "generic", err: errors.New("connection reset"), want: stt.ErrServiceUnavailable},
		{name: "auth kept", err: stt.ErrNotAuthorized, want: stt.ErrNotAuthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, _ := batch.New(batch.TranscriberFunc(func(context.Context, []byte, stt.StreamConfig) (stt.Transcript, error) {
				return stt.Transcript{}, tt.err
			}))
			s := start(t, p)
			_ = s.SendAudio(speech(1600))
			_ = s.CloseSend()
			collect(t, s)
			if err := s.Err(); !errors.Is(err, tt.want) {
				t.Errorf("Err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSession_CloseBeforeCloseSend(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	p, _ := batch.New(batch.TranscriberFunc(func(context.Context, []byte, stt.StreamConfig) (stt.Transcript, error) {
		calls.Add(1)
		return stt.Transcript{Text: "x"}, nil
	}))
	s := start(t, p)
	_ = s.SendAudio(speech(1600))

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := collect(t, s); len(got) != 0 {
		t.Errorf("expected no transcripts, got %+v", got)
	}
	if s.Err() != nil {
		t.Errorf("Err after Close = %v", s.Err())
	}
	if err := s.CloseSend(); !errors.Is(err, stt.ErrSessionClosed) {
		t.Errorf("CloseSend after Close = %v", err)
	}
	if calls.Load() != 0 {
		t.Error("transcriber must not run after Close")
	}
}

func TestSession_CloseCancelsTranscription(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	p, _ := batch.New(batch.TranscriberFunc(func(ctx context.Context, _ []byte, _ stt.StreamConfig) (stt.Transcript, error) {
		close(entered)
		<-ctx.Done()
		return stt.Transcript{}, ctx.Err()
	}))
	s := start(t, p)
	_ = s.SendAudio(speech(1600))
	_ = s.CloseSend()
	<-entered

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := collect(t, s); len(got) != 0 {
		t.Errorf("expected no transcripts, got %+v", got)
	}
	if s.Err() != nil {
		t.Errorf("Err after aborted transcription = %v, want nil", s.Err())
	}
}

func TestSession_MaxDurationCapsBuffer(t *testing.T) {
	t.Parallel()

	var gotLen atomic.Int64
	p, _ := batch.New(batch.TranscriberFunc(func(_ context.Context, pcm []byte, _ stt.StreamConfig) (stt.Transcript, error) {
		gotLen.Store(int64(len(pcm)))
		return stt.Transcript{Text: "ok"}, nil
	}), batch.WithMaxDuration(100*time.Millisecond))
	s := start(t, p)

	// 100ms at 16 kHz mono is 3200 bytes.
	_ = s.SendAudio(speech(2000))
	_ = s.SendAudio(speech(2000))
	_ = s.CloseSend()
	collect(t, s)

	if gotLen.Load() != 3200 {
		t.Errorf("buffered %d bytes, want 3200", gotLen.Load())
	}
}
