package tts

// Voice describes a synthesis voice configuration. The zero value selects the
// backend's default voice at neutral rate, pitch, and full volume.
type Voice struct {
	// Name is the backend-specific voice identifier
	// (e.g., "en-US-AriaNeural").
	Name string

	// Rate adjusts speaking speed (0.5–2.0, 1.0 = default). Zero means 1.0.
	Rate float64

	// Pitch adjusts pitch in semitones (-10 to +10, 0 = default).
	Pitch float64

	// Volume scales output loudness (0.0–1.0, 1.0 = default). Zero means 1.0.
	Volume float64
}

// Clip is a single synthesised utterance as raw PCM audio.
type Clip struct {
	// PCM is 16-bit signed little-endian audio data.
	PCM []byte

	// SampleRate is the number of samples per second (e.g., 24000, 48000).
	SampleRate int

	// Channels is 1 for mono or 2 for stereo.
	Channels int
}

// DurationMs returns the clip length in milliseconds.
func (c Clip) DurationMs() int {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	samples := len(c.PCM) / (2 * c.Channels)
	return samples * 1000 / c.SampleRate
}
