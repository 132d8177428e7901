// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., a local edge-tts
// bridge, or a mock) and presents a uniform batch interface: Synthesize takes
// a complete utterance and returns a raw PCM [Clip]. The audio output channel
// owns playback, interruption, and queueing; providers only produce audio.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text to a PCM audio clip using the given voice.
	// An empty text returns an error rather than an empty clip.
	Synthesize(ctx context.Context, text string, voice Voice) (Clip, error)

	// ListVoices returns all voices available from this provider. The list
	// reflects the backend's current catalogue and may change between calls.
	ListVoices(ctx context.Context) ([]Voice, error)
}
