// Package openai provides a batch.Transcriber backed by the OpenAI audio
// transcription API.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/learnchars/pkg/audio"
	"github.com/MrWong99/learnchars/pkg/provider/stt"
	"github.com/MrWong99/learnchars/pkg/provider/stt/batch"
	"golang.org/x/text/language"
)

// DefaultModel is the default OpenAI transcription model.
const DefaultModel = oai.AudioModelWhisper1

// Ensure Transcriber implements batch.Transcriber.
var _ batch.Transcriber = (*Transcriber)(nil)

// Transcriber uploads utterances to OpenAI for transcription.
type Transcriber struct {
	client oai.Client
	model  oai.AudioModel
}

// config holds optional configuration for the transcriber.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option is a functional option for Transcriber.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a Transcriber. If model is empty, DefaultModel is used.
func New(apiKey, model string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Transcriber{client: oai.NewClient(reqOpts...), model: oai.AudioModel(model)}, nil
}

// Model returns the transcription model in use.
func (t *Transcriber) Model() string { return string(t.model) }

// Transcribe implements batch.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte, cfg stt.StreamConfig) (stt.Transcript, error) {
	rate, channels := cfg.SampleRate, cfg.Channels
	if rate <= 0 {
		rate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	wav := audio.EncodeWAV(pcm, rate, channels)

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: t.model,
	}
	if lang := isoLanguage(cfg.Language); lang != "" {
		params.Language = oai.String(lang)
	}
	if prompt := hintPrompt(cfg.Keywords); prompt != "" {
		params.Prompt = oai.String(prompt)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, classify(err)
	}
	return stt.Transcript{Text: strings.TrimSpace(resp.Text), IsFinal: true}, nil
}

// classify maps API status codes onto stt sentinels.
func classify(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("openai stt: transcribe: %w: %w", stt.ErrNotAuthorized, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("openai stt: transcribe: %w: %w", stt.ErrServiceUnavailable, err)
}

// isoLanguage reduces a BCP-47 tag to the ISO-639-1 code the API accepts.
func isoLanguage(tag string) string {
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return ""
	}
	base, _ := t.Base()
	return base.String()
}

func hintPrompt(kws []stt.KeywordBoost) string {
	words := make([]string, 0, len(kws))
	for _, kw := range kws {
		if kw.Keyword != "" {
			words = append(words, kw.Keyword)
		}
	}
	return strings.Join(words, ", ")
}
