// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts streams with the expected
// StreamConfig. Use Session to feed controlled Transcript values, end the
// stream with a chosen error and inspect which audio was delivered.
//
// Example:
//
//	sess := mock.NewSession(8)
//	p := &mock.Provider{Session: sess}
//	// ... code under test calls p.StartStream ...
//	sess.Emit(stt.Transcript{Text: "你好", Confidence: 0.9})
//	sess.End(nil)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/learnchars/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by StartStream. If nil, StartStream returns a fresh
	// Session with a 16-entry buffer.
	Session *Session

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall

	// Sessions records every session handed out, in order.
	Sessions []*Session
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	s := p.Session
	if s == nil {
		s = NewSession(16)
	}
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// CallCount returns the number of StartStream calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// LastSession returns the most recently started session, or nil.
func (p *Provider) LastSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Sessions) == 0 {
		return nil
	}
	return p.Sessions[len(p.Sessions)-1]
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	// Chunk is a copy of the audio bytes that were passed to SendAudio.
	Chunk []byte
}

// Session is a mock implementation of stt.Session.
type Session struct {
	mu     sync.Mutex
	out    chan stt.Transcript
	ended  bool
	endErr error

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseSendErr, if non-nil, is returned by CloseSend.
	CloseSendErr error

	// OnCloseSend, if set, runs after CloseSend is recorded and outside the
	// session lock. Tests use it to emit a final result and end the stream.
	OnCloseSend func(s *Session)

	// --- Call records ---

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// CloseSendCallCount is the number of times CloseSend was called.
	CloseSendCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewSession returns a Session whose transcript channel has the given buffer.
func NewSession(buffer int) *Session {
	return &Session{out: make(chan stt.Transcript, buffer)}
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: cp})
	return s.SendAudioErr
}

// Transcripts implements stt.Session.
func (s *Session) Transcripts() <-chan stt.Transcript { return s.out }

// Err implements stt.Session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endErr
}

// CloseSend records the call, runs OnCloseSend and returns CloseSendErr.
func (s *Session) CloseSend() error {
	s.mu.Lock()
	s.CloseSendCallCount++
	hook, err := s.OnCloseSend, s.CloseSendErr
	s.mu.Unlock()
	if hook != nil {
		hook(s)
	}
	return err
}

// Close records the call and ends the stream with a nil error if it is still
// running.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	s.endLocked(nil)
	return nil
}

// Emit delivers t on the transcript channel. It reports false when the stream
// has ended or the buffer is full.
func (s *Session) Emit(t stt.Transcript) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	select {
	case s.out <- t:
		return true
	default:
		return false
	}
}

// End closes the transcript channel with err. Later calls are no-ops.
func (s *Session) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked(err)
}

func (s *Session) endLocked(err error) {
	if s.ended {
		return
	}
	s.ended = true
	s.endErr = err
	close(s.out)
}

// SendAudioCallCount returns the number of SendAudio calls. Thread-safe.
func (s *Session) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// Chunks returns copies of every chunk passed to SendAudio. Thread-safe.
func (s *Session) Chunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.SendAudioCalls))
	for i, c := range s.SendAudioCalls {
		out[i] = c.Chunk
	}
	return out
}

// Counts returns the CloseSend and Close call counts. Thread-safe.
func (s *Session) Counts() (closeSend, closeCalls int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseSendCallCount, s.CloseCallCount
}

// Ensure Session implements stt.Session at compile time.
var _ stt.Session = (*Session)(nil)
