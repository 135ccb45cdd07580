// Package stt defines the streaming speech-to-text contract used by a
// recording session.
//
// A [Provider] opens a [Session] that accepts raw PCM through
// [Session.SendAudio] and emits [Transcript] candidates on a single channel.
// Candidates may be interim guesses or a final result and carry a confidence
// in [0, 1]. The channel is closed when the recognition stream ends; after
// that [Session.Err] reports why. [Session.CloseSend] signals end of audio so
// the backend can flush its final result, while [Session.Close] tears the
// stream down immediately.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoSpeechDetected reports a stream that ended without any recognisable
	// speech. Recording treats it as an empty result, not a failure.
	ErrNoSpeechDetected = errors.New("stt: no speech detected")

	// ErrServiceUnavailable reports a backend that cannot be reached or
	// refuses to start a stream.
	ErrServiceUnavailable = errors.New("stt: service unavailable")

	// ErrNotAuthorized reports rejected credentials or a denied recognition
	// permission.
	ErrNotAuthorized = errors.New("stt: not authorized")

	// ErrSessionClosed is returned by SendAudio and CloseSend after the
	// session has been closed or audio input has ended.
	ErrSessionClosed = errors.New("stt: session closed")
)

// KeywordBoost is a vocabulary hint for the recogniser. Recording sessions
// pass the expected answer and its alternatives so that short single-word
// utterances are biased toward them.
type KeywordBoost struct {
	// Keyword is the text to boost.
	Keyword string

	// Boost is the intensity on a provider-specific scale.
	Boost float64
}

// StreamConfig describes the audio format and recognition hints of a stream.
type StreamConfig struct {
	// SampleRate in Hz. 16000 is the expected default.
	SampleRate int

	// Channels is the number of interleaved channels; most backends want 1.
	Channels int

	// Language is a BCP-47 tag such as "zh-CN". Empty lets the provider pick
	// its configured default.
	Language string

	// Keywords are optional recognition hints.
	Keywords []KeywordBoost
}

// WordDetail holds per-word timing from backends that report it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Transcript is one recognition candidate.
type Transcript struct {
	// Text is the recognised utterance.
	Text string

	// Confidence in [0, 1]. Zero when the backend does not report one.
	Confidence float64

	// IsFinal marks the backend's committed result for the stream.
	IsFinal bool

	// Words is optional per-word detail.
	Words []WordDetail
}

// Session is an open recognition stream.
type Session interface {
	// SendAudio delivers a chunk of PCM in the negotiated format. It returns
	// ErrSessionClosed after CloseSend or Close.
	SendAudio(chunk []byte) error

	// Transcripts emits candidates in arrival order and is closed when the
	// stream ends.
	Transcripts() <-chan Transcript

	// Err reports why Transcripts was closed. It is nil while the stream is
	// running and after a normal end of stream.
	Err() error

	// CloseSend signals that no more audio follows. The backend keeps
	// emitting candidates until it has flushed its final result.
	CloseSend() error

	// Close aborts the stream and releases its resources. Safe to call more
	// than once.
	Close() error
}

// Provider opens recognition streams.
type Provider interface {
	// StartStream opens a stream. Errors wrap ErrNotAuthorized or
	// ErrServiceUnavailable when the cause is known.
	StartStream(ctx context.Context, cfg StreamConfig) (Session, error)
}
