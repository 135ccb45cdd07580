// Package deepgram provides an stt.Provider backed by the Deepgram streaming
// WebSocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/learnchars/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "zh-CN"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default BCP-47 language code used when a stream does
// not specify one.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the sample rate used when a stream does not specify one.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpoint overrides the streaming endpoint. Useful for proxies and tests.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	sampleRate int
}

var _ stt.Provider = (*Provider)(nil)

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   deepgramEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream dials Deepgram. A 401 or 403 handshake response maps to
// stt.ErrNotAuthorized; any other dial failure to stt.ErrServiceUnavailable.
// The stream is torn down when ctx is cancelled.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.Session, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("deepgram: dial: %w: %s", stt.ErrNotAuthorized, resp.Status)
		}
		return nil, fmt.Errorf("deepgram: dial: %w: %w", stt.ErrServiceUnavailable, err)
	}

	sctx, cancel := context.WithCancel(ctx)
	sess := &session{
		conn:   conn,
		cancel: cancel,
		out:    make(chan stt.Transcript, 64),
		audio:  make(chan []byte, 256),
		finish: make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(sctx)
	go sess.writeLoop(sctx)

	return sess, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("punctuate", "false")
	q.Set("interim_results", "true")
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}

	for _, kw := range cfg.Keywords {
		if kw.Keyword == "" {
			continue
		}
		val := kw.Keyword
		if kw.Boost != 0 {
			val = fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost)
		}
		q.Add("keywords", val)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

var closeStreamMsg = []byte(`{"type":"CloseStream"}`)

// session is a live Deepgram stream. It implements stt.Session.
type session struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	out    chan stt.Transcript
	audio  chan []byte
	finish chan struct{}
	wg     sync.WaitGroup

	mu         sync.Mutex
	sendClosed bool
	aborted    bool
	err        error

	finishOnce sync.Once
	closeOnce  sync.Once
}

func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	closed := s.sendClosed
	s.mu.Unlock()
	if closed {
		return stt.ErrSessionClosed
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.finish:
		return stt.ErrSessionClosed
	}
}

func (s *session) Transcripts() <-chan stt.Transcript { return s.out }

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// CloseSend asks Deepgram to flush. Deepgram replies with its final results
// and closes the socket normally.
func (s *session) CloseSend() error {
	s.mu.Lock()
	if s.sendClosed {
		s.mu.Unlock()
		return stt.ErrSessionClosed
	}
	s.sendClosed = true
	s.mu.Unlock()
	s.finishOnce.Do(func() { close(s.finish) })
	return nil
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.sendClosed = true
		s.aborted = true
		s.mu.Unlock()
		s.finishOnce.Do(func() { close(s.finish) })
		s.cancel()
		s.wg.Wait()
		_ = s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop forwards queued audio as binary messages. After CloseSend it
// flushes what is queued and sends CloseStream.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.finish:
			for {
				select {
				case chunk := <-s.audio:
					if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
						return
					}
				default:
					_ = s.conn.Write(ctx, websocket.MessageText, closeStreamMsg)
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// readLoop parses Deepgram results into transcripts until the socket closes.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.out)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			s.setErr(err)
			return
		}

		t, ok := parseDeepgramResponse(msg)
		if !ok || t.Text == "" {
			continue
		}

		select {
		case s.out <- t:
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return
		}
	}
}

// setErr records why the stream ended. Normal closures and aborts requested
// through Close are not errors.
func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.err = err
		return
	}
	s.err = fmt.Errorf("deepgram: stream: %w: %w", stt.ErrServiceUnavailable, err)
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message into a Transcript.
// Returns (Transcript, true) on success, or (zero, false) if the message should be ignored.
func parseDeepgramResponse(data []byte) (stt.Transcript, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false
	}
	if resp.Type != "Results" {
		return stt.Transcript{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	return stt.Transcript{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
		Words:      words,
	}, true
}
