// Package edge provides a TTS provider backed by an edge-tts bridge server.
// The bridge wraps Microsoft Edge's neural voices behind a small REST API:
// synthesis is performed via POST /tts with a JSON body carrying the text and
// voice parameters, and the response carries base64-encoded WAV audio. The
// voice catalogue is retrieved from GET /voices.
//
// Because the bridge operates in batch mode (one HTTP call per utterance),
// Synthesize blocks until the full clip is available. The WAV container is
// parsed and stripped so callers always receive raw PCM.
//
// Typical usage:
//
//	p, err := edge.New("http://localhost:5050",
//	    edge.WithTimeout(15*time.Second),
//	    edge.WithOutputSampleRate(48000),
//	)
//	clip, err := p.Synthesize(ctx, "Good morning!", tts.Voice{Name: "en-US-AriaNeural"})
package edge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ariahome/aria/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultTimeout = 30 * time.Second
	defaultVoice   = "en-US-AriaNeural"

	ttsEndpoint    = "/tts"
	voicesEndpoint = "/voices"
)

// Option is a functional option for configuring an edge Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout for calls to the bridge
// server. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithDefaultVoice sets the voice used when a request carries an empty voice
// name. Defaults to "en-US-AriaNeural".
func WithDefaultVoice(name string) Option {
	return func(p *Provider) { p.defaultVoice = name }
}

// WithOutputSampleRate configures the provider to resample synthesised PCM to
// the given sample rate (e.g., 48000 for opus encoding). When 0 (default),
// PCM is returned at the bridge's native rate.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) { p.outputRate = rate }
}

// Provider implements tts.Provider backed by an edge-tts bridge server. It is
// safe for concurrent use; multiple Synthesize calls may run in parallel.
type Provider struct {
	serverURL    string
	defaultVoice string
	outputRate   int // target sample rate; 0 = no resampling
	httpClient   *http.Client
}

// New creates a Provider that targets the bridge server at serverURL
// (e.g., "http://localhost:5050"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("edge: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:    strings.TrimRight(serverURL, "/"),
		defaultVoice: defaultVoice,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- internal request/response types ----

// ttsRequest is the JSON body sent to POST /tts. Rate, pitch, and volume use
// the signed-delta notation that edge voices expect ("+10%", "-2Hz").
type ttsRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	Rate   string `json:"rate,omitempty"`
	Pitch  string `json:"pitch,omitempty"`
	Volume string `json:"volume,omitempty"`
}

// ttsResponse is the JSON body returned by POST /tts.
type ttsResponse struct {
	Audio string `json:"audio"` // base64-encoded WAV
}

// voiceEntry is one element of the JSON array returned by GET /voices.
type voiceEntry struct {
	ShortName string `json:"ShortName"`
}

// ---- Synthesize ----

// Synthesize performs a single POST /tts call and returns the decoded PCM
// clip. The bridge returns a WAV container; its header is parsed and stripped
// so the clip carries raw PCM at the container's declared format.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Clip{}, errors.New("edge: text must not be empty")
	}

	name := voice.Name
	if name == "" {
		name = p.defaultVoice
	}

	body := ttsRequest{
		Text:   text,
		Voice:  name,
		Rate:   formatRate(voice.Rate),
		Pitch:  formatPitch(voice.Pitch),
		Volume: formatVolume(voice.Volume),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("edge: marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return tts.Clip{}, fmt.Errorf("edge: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("edge: POST %s: %w", ttsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tts.Clip{}, fmt.Errorf("edge: POST %s returned status %d", ttsEndpoint, resp.StatusCode)
	}

	var parsed ttsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return tts.Clip{}, fmt.Errorf("edge: decode tts response: %w", err)
	}

	wav, err := base64.StdEncoding.DecodeString(parsed.Audio)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("edge: decode base64 audio: %w", err)
	}

	info, err := parseWAV(wav)
	if err != nil {
		return tts.Clip{}, err
	}

	pcm := wav[info.DataOffset:]
	rate := info.SampleRate
	if p.outputRate > 0 && info.SampleRate != p.outputRate && info.Channels == 1 {
		pcm = resampleMono16(pcm, info.SampleRate, p.outputRate)
		rate = p.outputRate
	}

	return tts.Clip{PCM: pcm, SampleRate: rate, Channels: info.Channels}, nil
}

// ---- ListVoices ----

// ListVoices retrieves the voice catalogue from the bridge server via
// GET /voices and maps each entry to a tts.Voice.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+voicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("edge: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edge: GET %s: %w", voicesEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("edge: GET %s returned status %d", voicesEndpoint, resp.StatusCode)
	}

	var entries []voiceEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("edge: decode voices response: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.ShortName != "" {
			names = append(names, e.ShortName)
		}
	}
	sort.Strings(names)

	voices := make([]tts.Voice, 0, len(names))
	for _, name := range names {
		voices = append(voices, tts.Voice{Name: name, Rate: 1.0, Volume: 1.0})
	}
	return voices, nil
}

// ---- parameter formatting ----

// formatRate converts a rate factor (0.5–2.0) to edge delta notation
// ("+50%" for 1.5, "-25%" for 0.75). Zero and 1.0 map to the empty string so
// the bridge applies its default.
func formatRate(rate float64) string {
	if rate == 0 || rate == 1.0 {
		return ""
	}
	pct := int(math.Round((rate - 1.0) * 100))
	return fmt.Sprintf("%+d%%", pct)
}

// formatPitch converts a semitone offset to edge delta notation in Hz,
// approximating one semitone as 10 Hz around typical speech fundamentals.
func formatPitch(semitones float64) string {
	if semitones == 0 {
		return ""
	}
	hz := int(math.Round(semitones * 10))
	return fmt.Sprintf("%+dHz", hz)
}

// formatVolume converts a volume scale (0.0–1.0) to edge delta notation.
// Zero and 1.0 map to the empty string.
func formatVolume(volume float64) string {
	if volume == 0 || volume == 1.0 {
		return ""
	}
	pct := int(math.Round((volume - 1.0) * 100))
	return fmt.Sprintf("%+d%%", pct)
}

// ---- resampling ----

// resampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input must be little-endian int16 samples. If
// srcRate == dstRate, the input is returned unchanged.
func resampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := 0; i < dstSamples; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// ---- WAV parsing ----

// wavInfo holds the format metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	DataOffset int // byte offset of the first PCM sample
	SampleRate int // samples per second
	Channels   int // 1 = mono, 2 = stereo
}

// parseWAV scans the RIFF/WAVE container in wav and returns the data offset
// and audio format from the "fmt " sub-chunk. This is more robust than
// hardcoding a fixed 44-byte offset because the fmt chunk size may vary.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("edge: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("edge: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("edge: WAV response missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	// Walk RIFF chunks starting immediately after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				info.SampleRate = 24000
				info.Channels = 1
			}
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if the size is odd.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("edge: WAV response missing data chunk")
}
