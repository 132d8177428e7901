package resilience_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ariahome/aria/internal/resilience"
	"github.com/ariahome/aria/pkg/provider/llm"
	llmmock "github.com/ariahome/aria/pkg/provider/llm/mock"
	"github.com/ariahome/aria/pkg/provider/stt"
	sttmock "github.com/ariahome/aria/pkg/provider/stt/mock"
	"github.com/ariahome/aria/pkg/provider/tts"
	ttsmock "github.com/ariahome/aria/pkg/provider/tts/mock"
)

func TestTTSFailover_FallsBackOnSynthesisError(t *testing.T) {
	t.Parallel()

	primary := ttsmock.New()
	primary.Err = errBackend
	secondary := ttsmock.New()

	f := resilience.NewTTSFailover(primary, "edge", resilience.Config{})
	f.AddFallback("local", secondary)

	clip, err := f.Synthesize(context.Background(), "hello there", tts.Voice{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(clip.PCM) == 0 {
		t.Error("fallback returned an empty clip")
	}
	if secondary.LastText() != "hello there" {
		t.Errorf("fallback saw %q", secondary.LastText())
	}
	if primary.LastText() != "hello there" {
		t.Error("primary was never tried")
	}
}

func TestTTSFailover_AllBackendsDown(t *testing.T) {
	t.Parallel()

	primary := ttsmock.New()
	primary.Err = errBackend
	f := resilience.NewTTSFailover(primary, "edge", resilience.Config{})

	_, err := f.Synthesize(context.Background(), "hi", tts.Voice{})
	if !errors.Is(err, resilience.ErrExhausted) {
		t.Errorf("Synthesize = %v; want ErrExhausted", err)
	}
}

func TestSTTFailover_SessionFromHealthyBackend(t *testing.T) {
	t.Parallel()

	primary := sttmock.New()
	primary.StartErr = errBackend
	secondary := sttmock.New()

	f := resilience.NewSTTFailover(primary, "whisper-http", resilience.Config{})
	f.AddFallback("whisper-native", secondary)

	sess, err := f.StartSession(context.Background(), stt.SessionConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	defer sess.Close()
}

func TestLLMFailover_CompleteUsesFallback(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteErr: errBackend}
	secondary := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "ok"},
	}

	f := resilience.NewLLMFailover(primary, "openai", resilience.Config{})
	f.AddFallback("ollama", secondary)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q; want ok", resp.Content)
	}
	if len(primary.CompleteCalls) != 1 {
		t.Error("primary was never tried")
	}
}

func TestLLMFailover_CapabilitiesComeFromPrimary(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{
		ModelCapabilities: llm.ModelCapabilities{ContextWindow: 4096},
	}
	f := resilience.NewLLMFailover(primary, "openai", resilience.Config{})
	f.AddFallback("ollama", &llmmock.Provider{})

	if got := f.Capabilities().ContextWindow; got != 4096 {
		t.Errorf("ContextWindow = %d; want 4096", got)
	}
}
