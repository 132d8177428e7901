// Package speech is the audio output channel: it speaks text aloud exactly
// once per request, publishes a live frequency feed for visualisation, and
// supports mid-utterance interruption with a short fade.
//
// The channel is one half of the engine's core mutual-exclusion invariant:
// recognition is never active while output is active. Before any playback
// the channel suspends the recognition controller, and it resumes
// recognition (after the controller's settle delay) once playback ends, no
// matter how playback ends.
//
// Playback-permission failures get special treatment: when the sink reports
// [ErrPlaybackNotAllowed] the request is parked as pending rather than
// failed, a one-time prompt callback is surfaced, and [Channel.ResumePending]
// replays it once the user grants playback. Conversational state is never
// cancelled by a permission failure.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ariahome/aria/internal/observe"
	"github.com/ariahome/aria/pkg/provider/tts"
)

// ErrPlaybackNotAllowed is returned by a Sink when the output device refuses
// unattended playback (browser autoplay policy). The channel queues the
// request instead of failing it.
var ErrPlaybackNotAllowed = errors.New("speech: playback not allowed without user interaction")

// Sink is the playback device. Play blocks until the clip has been played
// in full, ctx is cancelled, or the device fails.
type Sink interface {
	// Play streams clip to the output device in real time.
	Play(ctx context.Context, clip tts.Clip) error

	// SetGain scales playback volume in [0.0, 1.0], applied immediately to
	// any in-flight playback.
	SetGain(gain float64)
}

// Recognition is the subset of the lifecycle controller the channel drives.
type Recognition interface {
	Suspend()
	Resume(ctx context.Context)
}

const (
	defaultFadeDuration = 500 * time.Millisecond
	fadeSteps           = 10

	// FrequencyBins is the length of the slice returned by Frequencies.
	FrequencyBins = 32

	// analyserWindow is the number of samples inspected per snapshot.
	analyserWindow = 1024
)

// Option configures a Channel.
type Option func(*Channel)

// WithFadeDuration sets the interrupt fade length. Defaults to 500 ms.
func WithFadeDuration(d time.Duration) Option {
	return func(c *Channel) { c.fadeDuration = d }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// WithMetrics attaches pipeline instrumentation. Nil leaves the channel
// unmeasured.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// WithPermissionPrompt registers the callback surfaced when a playback
// request is blocked by the output device. Invoked at most once per blocked
// request, never concurrently with itself.
func WithPermissionPrompt(fn func()) Option {
	return func(c *Channel) { c.permissionPrompt = fn }
}

// pendingRequest is a playback request parked after a permission failure.
type pendingRequest struct {
	text  string
	voice tts.Voice
}

// Channel sequences synthesis and playback. Safe for concurrent use, but
// only one utterance plays at a time; concurrent Speak calls serialise.
type Channel struct {
	synth       tts.Provider
	sink        Sink
	recognition Recognition
	logger      *slog.Logger
	metrics     *observe.Metrics

	fadeDuration     time.Duration
	permissionPrompt func()

	speakMu sync.Mutex // serialises whole utterances

	mu           sync.Mutex
	speaking     bool
	interrupting bool
	playCancel   context.CancelFunc
	pending      *pendingRequest

	// analyser state, valid only while speaking
	clip      tts.Clip
	playStart time.Time
}

// New creates a Channel. All three collaborators are required.
func New(synth tts.Provider, sink Sink, recognition Recognition, opts ...Option) *Channel {
	c := &Channel{
		synth:        synth,
		sink:         sink,
		recognition:  recognition,
		logger:       slog.Default(),
		fadeDuration: defaultFadeDuration,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Speaking reports whether an utterance is currently being synthesised or
// played. The orchestrator drops every transcript that arrives while this
// is true.
func (c *Channel) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Speak synthesises text and plays it to completion. Recognition is
// suspended for the duration and resumed afterwards regardless of outcome,
// so the caller is never left deaf.
//
// A synthesis or transport failure returns an error but still counts as a
// completed turn; the channel is immediately ready for the next request. A
// permission-blocked playback returns nil and parks the request (see
// ResumePending).
func (c *Channel) Speak(ctx context.Context, text string, voice tts.Voice) error {
	if text == "" {
		return errors.New("speech: text must not be empty")
	}

	c.speakMu.Lock()
	defer c.speakMu.Unlock()

	c.recognition.Suspend()
	defer func() {
		// Resume applies the settle delay internally; run it off the
		// speaking path so Speak returns as soon as playback ends.
		go c.recognition.Resume(ctx)
	}()

	c.setSpeaking(true)
	defer c.endSpeaking()

	synthStart := time.Now()
	clip, err := c.synth.Synthesize(ctx, text, voice)
	if c.metrics != nil {
		c.metrics.SynthesisDuration.Record(ctx, time.Since(synthStart).Seconds())
	}
	if err != nil {
		c.logger.Warn("speech synthesis failed, completing turn without audio",
			"error", err)
		return fmt.Errorf("speech: synthesize: %w", err)
	}

	playCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.playCancel = cancel
	c.clip = clip
	c.playStart = time.Now()
	c.mu.Unlock()

	gain := voice.Volume
	if gain <= 0 || gain > 1 {
		gain = 1
	}
	c.sink.SetGain(gain)

	err = c.sink.Play(playCtx, clip)
	switch {
	case errors.Is(err, ErrPlaybackNotAllowed):
		c.park(text, voice)
		return nil
	case err != nil && playCtx.Err() != nil:
		// Interrupted or superseded; playback ending early is the point.
		return nil
	case err != nil:
		c.logger.Warn("audio playback failed, completing turn", "error", err)
		return fmt.Errorf("speech: play: %w", err)
	}
	return nil
}

// Interrupt fades playback to silence over the fade duration and halts it.
// Used when the user starts speaking over the assistant. Idempotent: a call
// with nothing playing, or during an ongoing fade, is a no-op.
func (c *Channel) Interrupt() {
	c.mu.Lock()
	if !c.speaking || c.interrupting || c.playCancel == nil {
		c.mu.Unlock()
		return
	}
	c.interrupting = true
	cancel := c.playCancel
	c.mu.Unlock()

	stepDur := c.fadeDuration / fadeSteps
	for i := fadeSteps - 1; i >= 0; i-- {
		c.sink.SetGain(float64(i) / fadeSteps)
		time.Sleep(stepDur)
	}
	cancel()

	c.mu.Lock()
	c.interrupting = false
	c.mu.Unlock()
}

// ResumePending replays the most recent permission-blocked request, if any.
// Called once the user has granted playback through an interaction.
func (c *Channel) ResumePending(ctx context.Context) error {
	c.mu.Lock()
	req := c.pending
	c.pending = nil
	c.mu.Unlock()

	if req == nil {
		return nil
	}
	return c.Speak(ctx, req.text, req.voice)
}

// HasPending reports whether a blocked request is waiting for permission.
func (c *Channel) HasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Frequencies returns a snapshot of band energies for the audio currently
// playing, normalised to [0.0, 1.0], or nil when nothing is playing.
// Visualisation consumers poll this and treat nil as silence.
func (c *Channel) Frequencies() []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.speaking || len(c.clip.PCM) == 0 || c.clip.SampleRate <= 0 {
		return nil
	}

	// Locate the playback cursor within the clip.
	elapsed := time.Since(c.playStart)
	bytesPerSec := c.clip.SampleRate * c.clip.Channels * 2
	offset := int(elapsed.Seconds() * float64(bytesPerSec))
	offset -= offset % 2
	if offset >= len(c.clip.PCM) {
		return nil
	}

	end := offset + analyserWindow*2
	if end > len(c.clip.PCM) {
		end = len(c.clip.PCM)
	}
	return bandEnergies(c.clip.PCM[offset:end], FrequencyBins)
}

// setSpeaking flips the speaking flag on.
func (c *Channel) setSpeaking(v bool) {
	c.mu.Lock()
	c.speaking = v
	c.mu.Unlock()
}

// endSpeaking clears the speaking flag and all per-utterance state so
// visualisation consumers observe silence.
func (c *Channel) endSpeaking() {
	c.mu.Lock()
	c.speaking = false
	c.playCancel = nil
	c.clip = tts.Clip{}
	c.playStart = time.Time{}
	c.mu.Unlock()
}

// park stores a permission-blocked request and surfaces the one-time prompt.
func (c *Channel) park(text string, voice tts.Voice) {
	c.mu.Lock()
	c.pending = &pendingRequest{text: text, voice: voice}
	prompt := c.permissionPrompt
	c.mu.Unlock()

	c.logger.Info("playback blocked by output device, request parked")
	if prompt != nil {
		prompt()
	}
}

// bandEnergies splits a window of 16-bit PCM into bins contiguous bands and
// returns each band's RMS energy normalised to [0, 1].
func bandEnergies(pcm []byte, bins int) []float32 {
	samples := len(pcm) / 2
	if samples == 0 || bins <= 0 {
		return nil
	}

	out := make([]float32, bins)
	perBand := samples / bins
	if perBand == 0 {
		perBand = 1
	}

	for b := 0; b < bins; b++ {
		start := b * perBand
		end := start + perBand
		if start >= samples {
			break
		}
		if end > samples {
			end = samples
		}
		var sum float64
		for i := start; i < end; i++ {
			s := float64(int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8))
			sum += s * s
		}
		rms := math.Sqrt(sum / float64(end-start))
		out[b] = float32(rms / 32768.0)
	}
	return out
}
