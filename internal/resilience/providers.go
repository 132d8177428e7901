package resilience

import (
	"context"

	"github.com/ariahome/aria/pkg/provider/llm"
	"github.com/ariahome/aria/pkg/provider/stt"
	"github.com/ariahome/aria/pkg/provider/tts"
)

// STTFailover implements stt.Provider across multiple recognition backends.
// Only session establishment participates in failover; once a session is
// open, the recognition controller owns restart policy.
type STTFailover struct {
	group *Group[stt.Provider]
}

var _ stt.Provider = (*STTFailover)(nil)

// NewSTTFailover creates an STTFailover with primary as the preferred
// backend.
func NewSTTFailover(primary stt.Provider, primaryName string, cfg Config) *STTFailover {
	g := NewGroup[stt.Provider](cfg)
	g.Add(primaryName, primary)
	return &STTFailover{group: g}
}

// AddFallback registers an additional recognition backend.
func (f *STTFailover) AddFallback(name string, p stt.Provider) {
	f.group.Add(name, p)
}

// StartSession implements stt.Provider.
func (f *STTFailover) StartSession(ctx context.Context, cfg stt.SessionConfig) (stt.Session, error) {
	return DoResult(f.group, func(p stt.Provider) (stt.Session, error) {
		return p.StartSession(ctx, cfg)
	})
}

// TTSFailover implements tts.Provider across multiple synthesis backends.
type TTSFailover struct {
	group *Group[tts.Provider]
}

var _ tts.Provider = (*TTSFailover)(nil)

// NewTTSFailover creates a TTSFailover with primary as the preferred
// backend.
func NewTTSFailover(primary tts.Provider, primaryName string, cfg Config) *TTSFailover {
	g := NewGroup[tts.Provider](cfg)
	g.Add(primaryName, primary)
	return &TTSFailover{group: g}
}

// AddFallback registers an additional synthesis backend.
func (f *TTSFailover) AddFallback(name string, p tts.Provider) {
	f.group.Add(name, p)
}

// Synthesize implements tts.Provider.
func (f *TTSFailover) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Clip, error) {
	return DoResult(f.group, func(p tts.Provider) (tts.Clip, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// ListVoices implements tts.Provider.
func (f *TTSFailover) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return DoResult(f.group, func(p tts.Provider) ([]tts.Voice, error) {
		return p.ListVoices(ctx)
	})
}

// LLMFailover implements llm.Provider across multiple model backends.
type LLMFailover struct {
	group *Group[llm.Provider]
}

var _ llm.Provider = (*LLMFailover)(nil)

// NewLLMFailover creates an LLMFailover with primary as the preferred
// backend.
func NewLLMFailover(primary llm.Provider, primaryName string, cfg Config) *LLMFailover {
	g := NewGroup[llm.Provider](cfg)
	g.Add(primaryName, primary)
	return &LLMFailover{group: g}
}

// AddFallback registers an additional model backend.
func (f *LLMFailover) AddFallback(name string, p llm.Provider) {
	f.group.Add(name, p)
}

// Complete implements llm.Provider.
func (f *LLMFailover) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return DoResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion implements llm.Provider. Failover covers stream setup
// only; mid-stream errors surface to the caller.
func (f *LLMFailover) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return DoResult(f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// CountTokens implements llm.Provider.
func (f *LLMFailover) CountTokens(messages []llm.Message) (int, error) {
	return DoResult(f.group, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities implements llm.Provider. Capabilities are static metadata,
// so this always reports the primary's and does not participate in
// failover.
func (f *LLMFailover) Capabilities() llm.ModelCapabilities {
	if p, ok := f.group.Primary(); ok {
		return p.Capabilities()
	}
	return llm.ModelCapabilities{}
}
