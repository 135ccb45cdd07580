// Package audio defines microphone capture and the 16-bit PCM helpers shared
// by capture backends and speech-to-text providers.
//
// A [Capture] acquires the input device and hands out a [Handle] whose
// [Handle.Frames] channel delivers raw little-endian int16 PCM until the
// handle is released or the device fails. Releasing is idempotent and must
// always be called once acquisition has succeeded.
package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPermissionDenied is returned by [Capture.Acquire] when the operating
	// system refuses microphone access.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")

	// ErrDeviceUnavailable is returned by [Capture.Acquire] when no usable
	// input device exists or the device could not be opened.
	ErrDeviceUnavailable = errors.New("audio: input device unavailable")
)

// Frame is a chunk of interleaved 16-bit signed little-endian PCM.
type Frame struct {
	// Data holds the raw PCM bytes.
	Data []byte

	// SampleRate is the number of samples per second per channel.
	SampleRate int

	// Channels is the number of interleaved channels.
	Channels int

	// Timestamp is the capture offset of the first sample, measured from the
	// moment the handle was acquired.
	Timestamp time.Duration
}

// Duration returns how much audio the frame carries.
func (f Frame) Duration() time.Duration {
	return PCMDuration(len(f.Data), f.SampleRate, f.Channels)
}

// Config selects the device and the PCM format requested from it. Zero values
// are replaced by backend defaults.
type Config struct {
	// SampleRate in Hz. Defaults to 16000.
	SampleRate int

	// Channels requested from the device. Defaults to 1.
	Channels int

	// InputFormat names the backend-specific input driver, e.g. "pulse",
	// "alsa" or "avfoundation".
	InputFormat string

	// InputDevice names the device within InputFormat, e.g. "default".
	InputDevice string
}

// WithDefaults returns cfg with unset fields filled in.
func (cfg Config) WithDefaults() Config {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return cfg
}

// Capture acquires exclusive use of an input device.
type Capture interface {
	// Acquire opens the device and starts streaming. The returned error wraps
	// [ErrPermissionDenied] or [ErrDeviceUnavailable] when the cause is known.
	// ctx only bounds the acquisition itself; the handle lives until Release.
	Acquire(ctx context.Context, cfg Config) (Handle, error)
}

// Handle is a live capture.
type Handle interface {
	// Frames delivers captured audio. The channel is closed after Release or
	// when the device stops producing audio.
	Frames() <-chan Frame

	// Err reports why Frames was closed. It returns nil while capture is
	// running and after a normal Release.
	Err() error

	// Release stops capture and frees the device. Safe to call more than once
	// and from any goroutine.
	Release() error
}
