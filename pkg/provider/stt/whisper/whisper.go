// Package whisper transcribes utterances with whisper.cpp, either through a
// running whisper-server (POST /inference) or in-process via the CGO
// bindings. Both implement batch.Transcriber; wrap them with batch.New to
// obtain an stt.Provider.
//
// Usage:
//
//	c, err := whisper.New("http://localhost:8080", whisper.WithLanguage("zh"))
//	p, err := batch.New(c)
//	sess, err := p.StartStream(ctx, cfg)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/learnchars/pkg/audio"
	"github.com/MrWong99/learnchars/pkg/provider/stt"
	"github.com/MrWong99/learnchars/pkg/provider/stt/batch"
	"golang.org/x/text/language"
)

const (
	defaultLanguage   = "zh"
	defaultSampleRate = 16000
)

var _ batch.Transcriber = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base", "small"). When empty the server uses whichever model it
// was started with.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithLanguage sets the language used when a stream does not specify one.
// Defaults to "zh".
func WithLanguage(lang string) Option {
	return func(c *Client) {
		c.language = lang
	}
}

// WithHTTPClient replaces the HTTP client. The default has a 30 s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// Client transcribes utterances against a whisper.cpp HTTP server.
type Client struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Client for the whisper.cpp HTTP server at serverURL (e.g.,
// "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	c := &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Transcribe encodes pcm as a WAV file and POSTs it to /inference as
// multipart/form-data. Keyword hints are forwarded as the decoding prompt.
func (c *Client) Transcribe(ctx context.Context, pcm []byte, cfg stt.StreamConfig) (stt.Transcript, error) {
	rate, channels := streamFormat(cfg)
	wav := audio.EncodeWAV(pcm, rate, channels)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"language":        whisperLanguage(cfg.Language, c.language),
		"model":           c.model,
		"prompt":          keywordPrompt(cfg.Keywords),
		"response_format": "json",
	}
	for name, val := range fields {
		if val == "" {
			continue
		}
		if err := mw.WriteField(name, val); err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: write %s field: %w", name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/inference", &body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return stt.Transcript{}, ctx.Err()
		}
		return stt.Transcript{}, fmt.Errorf("whisper: http request: %w: %w", stt.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return stt.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d: %w", resp.StatusCode, stt.ErrNotAuthorized)
	case resp.StatusCode != http.StatusOK:
		return stt.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d: %w", resp.StatusCode, stt.ErrServiceUnavailable)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	// whisper.cpp reports no confidence.
	return stt.Transcript{Text: strings.TrimSpace(result.Text), IsFinal: true}, nil
}

// whisperLanguage reduces a BCP-47 tag such as "zh-CN" to the base language
// code whisper expects. Unparseable tags are passed through.
func whisperLanguage(tag, fallback string) string {
	if tag == "" {
		tag = fallback
	}
	if tag == "" || tag == "auto" {
		return tag
	}
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	base, _ := t.Base()
	return base.String()
}

// keywordPrompt joins keyword hints into a whisper initial prompt.
func keywordPrompt(kws []stt.KeywordBoost) string {
	words := make([]string, 0, len(kws))
	for _, kw := range kws {
		if kw.Keyword != "" {
			words = append(words, kw.Keyword)
		}
	}
	return strings.Join(words, ", ")
}

func streamFormat(cfg stt.StreamConfig) (rate, channels int) {
	rate, channels = cfg.SampleRate, cfg.Channels
	if rate <= 0 {
		rate = defaultSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	return rate, channels
}
