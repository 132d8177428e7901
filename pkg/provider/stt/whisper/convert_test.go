package whisper

import (
	"encoding/binary"
	"math"
	"testing"
)

func pcmFrom(values ...int16) []byte {
	pcm := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

func TestMonoSamples_Empty(t *testing.T) {
	if out := monoSamples(nil, 1); len(out) != 0 {
		t.Fatalf("expected 0 samples, got %d", len(out))
	}
}

func TestMonoSamples_Normalisation(t *testing.T) {
	tests := []struct {
		name  string
		value int16
		want  float32
	}{
		{"max positive", 32767, 32767.0 / 32768.0},
		{"max negative", -32768, -1.0},
		{"zero", 0, 0.0},
		{"mid positive", 16384, 16384.0 / 32768.0},
		{"mid negative", -16384, -16384.0 / 32768.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := monoSamples(pcmFrom(tt.value), 1)
			if math.Abs(float64(out[0]-tt.want)) > 1e-6 {
				t.Errorf("monoSamples(%d) = %f; want %f", tt.value, out[0], tt.want)
			}
		})
	}
}

func TestMonoSamples_PartialFrameDropped(t *testing.T) {
	// 3 bytes of mono is 1 complete sample plus a stray byte.
	pcm := []byte{0x00, 0x40, 0xFF}
	if out := monoSamples(pcm, 1); len(out) != 1 {
		t.Fatalf("expected 1 sample from 3-byte input, got %d", len(out))
	}

	// 6 bytes of stereo is 1 complete frame plus a stray sample.
	if out := monoSamples(pcmFrom(100, 200, 300), 2); len(out) != 1 {
		t.Fatalf("expected 1 frame from 3-sample stereo input, got %d", len(out))
	}
}

func TestMonoSamples_StereoAveraged(t *testing.T) {
	// Two frames of stereo: (1000, 3000) and (-2000, -4000).
	out := monoSamples(pcmFrom(1000, 3000, -2000, -4000), 2)
	if len(out) != 2 {
		t.Fatalf("expected 2 mono samples from 4-sample stereo, got %d", len(out))
	}
	wants := []float32{2000.0 / 32768.0, -3000.0 / 32768.0}
	for i, want := range wants {
		if math.Abs(float64(out[i]-want)) > 1e-6 {
			t.Errorf("out[%d] = %f; want %f", i, out[i], want)
		}
	}
}

func TestMonoSamples_ZeroChannelsTreatedAsMono(t *testing.T) {
	out := monoSamples(pcmFrom(500, -500), 0)
	if len(out) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(out))
	}
}

func TestComputeRMS_Silence(t *testing.T) {
	if got := computeRMS(make([]byte, 320)); got != 0 {
		t.Errorf("computeRMS(zeros) = %f; want 0", got)
	}
}

func TestComputeRMS_Empty(t *testing.T) {
	if got := computeRMS(nil); got != 0 {
		t.Errorf("computeRMS(nil) = %f; want 0", got)
	}
}

func TestComputeRMS_ConstantSignal(t *testing.T) {
	// A constant-value signal's RMS equals its absolute value.
	pcm := make([]byte, 200)
	for i := 0; i < 100; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(1000)))
	}
	got := computeRMS(pcm)
	if math.Abs(got-1000) > 1e-6 {
		t.Errorf("computeRMS(constant 1000) = %f; want 1000", got)
	}
}

func TestChunkDurationMs(t *testing.T) {
	tests := []struct {
		name       string
		bytes      int
		sampleRate int
		channels   int
		want       int
	}{
		{"100ms mono 16k", 3200, 16000, 1, 100},
		{"20ms stereo 48k", 3840, 48000, 2, 20},
		{"zero rate", 3200, 0, 1, 0},
		{"empty", 0, 16000, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chunkDurationMs(make([]byte, tt.bytes), tt.sampleRate, tt.channels)
			if got != tt.want {
				t.Errorf("chunkDurationMs = %d; want %d", got, tt.want)
			}
		})
	}
}

func TestEncodeWAV_Header(t *testing.T) {
	pcm := make([]byte, 3200)
	wav := encodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d; want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" {
		t.Errorf("missing RIFF magic: %q", wav[0:4])
	}
	if string(wav[8:12]) != "WAVE" {
		t.Errorf("missing WAVE magic: %q", wav[8:12])
	}
	if string(wav[36:40]) != "data" {
		t.Errorf("missing data chunk marker: %q", wav[36:40])
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data chunk size = %d; want %d", got, len(pcm))
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d; want 16000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channel count = %d; want 1", got)
	}
	if got := binary.LittleEndian.Uint16(wav[34:36]); got != 16 {
		t.Errorf("bits per sample = %d; want 16", got)
	}
}
