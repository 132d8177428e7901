package gateway

import (
	"fmt"

	"layeh.com/gopus"
)

// Browser clients capture 48 kHz stereo Opus at 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusChannels    = 2
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
)

// opusStream decodes one connection's Opus frames. The decoder is stateful,
// so each connection needs its own; it is only touched from that
// connection's read loop. Creation is deferred until the first Opus frame
// arrives so PCM-only clients never pay for it.
type opusStream struct {
	dec *gopus.Decoder
}

func newOpusStream() *opusStream {
	return &opusStream{}
}

// Decode decodes a single Opus packet into interleaved little-endian int16
// PCM bytes.
func (s *opusStream) Decode(packet []byte) ([]byte, error) {
	if s.dec == nil {
		dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
		if err != nil {
			return nil, fmt.Errorf("gateway: create opus decoder: %w", err)
		}
		s.dec = dec
	}

	pcm, err := s.dec.Decode(packet, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("gateway: opus decode: %w", err)
	}

	out := make([]byte, len(pcm)*2)
	for i, sample := range pcm {
		out[i*2] = byte(sample)
		out[i*2+1] = byte(sample >> 8)
	}
	return out, nil
}
