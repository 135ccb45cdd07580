// This file contains the in-process transcriber backed by the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/learnchars/pkg/audio"
	"github.com/MrWong99/learnchars/pkg/provider/stt"
	"github.com/MrWong99/learnchars/pkg/provider/stt/batch"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// whisper.cpp models are trained on 16 kHz mono input.
const modelSampleRate = 16000

var _ batch.Transcriber = (*Native)(nil)

// Native transcribes utterances in-process. The model is loaded once and
// shared; every call creates its own whisper context.
type Native struct {
	model    whisperlib.Model
	language string

	closeOnce sync.Once
	closeErr  error
}

// NativeOption is a functional option for configuring a Native transcriber.
type NativeOption func(*Native)

// WithNativeLanguage sets the language used when a stream does not specify
// one. Defaults to "zh".
func WithNativeLanguage(lang string) NativeOption {
	return func(n *Native) { n.language = lang }
}

// NewNative loads the whisper.cpp model at modelPath. The caller must call
// Close when the transcriber is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	n := &Native{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Close releases the model. Safe to call more than once.
func (n *Native) Close() error {
	n.closeOnce.Do(func() {
		if n.model != nil {
			n.closeErr = n.model.Close()
		}
	})
	return n.closeErr
}

// Transcribe downmixes and resamples pcm to 16 kHz mono, runs inference and
// joins the decoded segments.
func (n *Native) Transcribe(ctx context.Context, pcm []byte, cfg stt.StreamConfig) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}
	rate, channels := streamFormat(cfg)
	mono := audio.Resample(audio.Downmix(pcm, channels), 1, rate, modelSampleRate)
	samples := audio.Float32Mono(mono, 1)

	// Contexts are not thread-safe; the model is.
	wctx, err := n.model.NewContext()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := whisperLanguage(cfg.Language, n.language)
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}
	if prompt := keywordPrompt(cfg.Keywords); prompt != "" {
		wctx.SetInitialPrompt(prompt)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return stt.Transcript{Text: strings.Join(parts, " "), IsFinal: true}, nil
}
