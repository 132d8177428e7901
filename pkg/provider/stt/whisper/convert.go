package whisper

import "encoding/binary"

// monoSamples converts 16-bit signed little-endian PCM into the mono
// float32 stream the whisper model consumes, normalised to [-1.0, 1.0].
// Interleaved multi-channel input is down-mixed by averaging each frame;
// a trailing partial frame is dropped.
func monoSamples(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	out := make([]float32, frames)

	const scale = 1.0 / 32768.0
	for f := 0; f < frames; f++ {
		base := f * channels * 2
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[base+ch*2:])))
		}
		out[f] = sum * scale / float32(channels)
	}
	return out
}
