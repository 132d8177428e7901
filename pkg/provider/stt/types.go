package stt

import "time"

// ErrorCode classifies recognition errors so the lifecycle controller can
// decide between retrying and giving up.
type ErrorCode string

const (
	// ErrCodeNoSpeech means the session heard no speech before timing out.
	// Recoverable: the controller restarts the session.
	ErrCodeNoSpeech ErrorCode = "no-speech"

	// ErrCodeAudioCapture means the audio source failed (device busy,
	// stream interrupted). Recoverable with a bounded retry.
	ErrCodeAudioCapture ErrorCode = "audio-capture"

	// ErrCodeAborted means the session was deliberately stopped. Never
	// retried.
	ErrCodeAborted ErrorCode = "aborted"

	// ErrCodeNetwork means the transcription backend was unreachable.
	ErrCodeNetwork ErrorCode = "network"
)

// Recoverable reports whether an error with this code is worth an automatic
// session restart.
func (c ErrorCode) Recoverable() bool {
	return c == ErrCodeNoSpeech || c == ErrCodeAudioCapture
}

// Transcript is a single speech-to-text result. The conversation engine only
// acts on final transcripts; interim results exist to drive UI activity
// indicators.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is an authoritative result.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// backend does not report confidence.
	Confidence float64

	// Timestamp records when the utterance was committed.
	Timestamp time.Time
}

// EventKind discriminates the values carried by an [Event].
type EventKind int

const (
	// EventTranscript carries a recognition result.
	EventTranscript EventKind = iota

	// EventError carries a recognition error code.
	EventError

	// EventEnd signals that the session ended on its own (audio source
	// drained or backend closed the stream). The controller decides whether
	// to restart.
	EventEnd
)

// Event is a single occurrence on a recognition session's event stream.
type Event struct {
	Kind       EventKind
	Transcript Transcript
	Code       ErrorCode
	Message    string
}
