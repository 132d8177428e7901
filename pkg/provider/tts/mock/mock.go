// Package mock provides an in-memory tts.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/ariahome/aria/pkg/provider/tts"
)

// Provider implements tts.Provider. Synthesize records every request and
// returns a deterministic clip whose PCM length is proportional to the text
// length, so timing-dependent callers see plausible durations.
type Provider struct {
	mu    sync.Mutex
	calls []Call

	// Err, when non-nil, is returned by Synthesize.
	Err error

	// Voices is returned by ListVoices.
	Voices []tts.Voice

	// BytesPerRune controls clip size: len(text) × BytesPerRune bytes of
	// silent PCM. Defaults to 64 when zero.
	BytesPerRune int
}

// Call records one Synthesize invocation.
type Call struct {
	Text  string
	Voice tts.Voice
}

var _ tts.Provider = (*Provider)(nil)

// New creates an empty mock provider.
func New() *Provider {
	return &Provider{}
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Clip, error) {
	if err := ctx.Err(); err != nil {
		return tts.Clip{}, err
	}

	p.mu.Lock()
	p.calls = append(p.calls, Call{Text: text, Voice: voice})
	err := p.Err
	perRune := p.BytesPerRune
	p.mu.Unlock()

	if err != nil {
		return tts.Clip{}, err
	}
	if perRune == 0 {
		perRune = 64
	}
	n := len(text) * perRune
	if n%2 != 0 {
		n++
	}
	return tts.Clip{PCM: make([]byte, n), SampleRate: 24000, Channels: 1}, nil
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tts.Voice, len(p.Voices))
	copy(out, p.Voices)
	return out, nil
}

// Calls returns all recorded Synthesize invocations, oldest first.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// LastText returns the text of the most recent Synthesize call, or "".
func (p *Provider) LastText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return ""
	}
	return p.calls[len(p.calls)-1].Text
}
