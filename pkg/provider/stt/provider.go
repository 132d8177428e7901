// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (a whisper-server instance,
// the whisper.cpp native bindings, or a mock) and exposes a uniform session
// interface: a session accepts raw PCM audio frames and emits a single stream
// of [Event] values — transcripts, classified errors, and an end-of-session
// marker. The recognition lifecycle controller consumes that stream and owns
// all restart policy; providers never restart themselves.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// SessionConfig describes the audio format and recognition hints for a new
// session. Zero values fall back to provider defaults.
type SessionConfig struct {
	// SampleRate is the PCM sample rate in Hz (16000 for STT-optimised
	// mono, 48000 for opus decode output).
	SampleRate int

	// Channels is the number of audio channels. Most backends require mono;
	// implementations may downmix internally.
	Channels int

	// Language is the BCP-47 language tag for recognition. Empty lets the
	// backend auto-detect where supported.
	Language string
}

// Session is an open recognition session. Callers must call Close when the
// session is no longer needed; failing to do so may leak goroutines inside
// the provider. All methods are safe for concurrent use.
type Session interface {
	// SendAudio delivers a chunk of raw 16-bit little-endian PCM audio.
	// Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Events returns the session's event stream. The channel is closed
	// after an [EventEnd] is emitted or the session is closed.
	Events() <-chan Event

	// Close terminates the session, flushes pending audio, and releases
	// all resources. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartSession opens a new recognition session. The returned Session is
	// ready to accept audio immediately. Returns an error if the session
	// cannot be established (authentication failure, unreachable backend,
	// or ctx already cancelled).
	StartSession(ctx context.Context, cfg SessionConfig) (Session, error)
}
