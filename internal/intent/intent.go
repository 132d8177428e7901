// Package intent turns a raw transcript plus rolling conversation history
// into a structured [Analysis] the action router can dispatch on.
//
// Classification prefers a remote language-model call with a strict
// structured-output prompt. On any failure of that path (no provider
// configured, transport error, unparseable payload) it silently degrades to
// a deterministic rule-based classifier; the user never sees a
// classification error.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ariahome/aria/internal/observe"
	"github.com/ariahome/aria/pkg/provider/llm"
)

// Type is the broad shape of a user utterance.
type Type string

const (
	TypeQuestion      Type = "question"
	TypeCommand       Type = "command"
	TypeNavigation    Type = "navigation"
	TypeClarification Type = "clarification"
	TypeConversation  Type = "conversation"
)

// Confidence grades how certain the classifier is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Action categories dispatched by the router.
const (
	CategoryWeather    = "weather"
	CategoryCalendar   = "calendar"
	CategoryList       = "list"
	CategoryNavigation = "navigation"
	CategorySpending   = "spending"
	CategorySettings   = "settings"
	CategoryGreeting   = "greeting"
	CategoryGeneral    = "general"
)

// Analysis is the classifier's output for one utterance. Immutable once
// produced; consumed by the action router and the confirmation step.
type Analysis struct {
	Type                Type              `json:"intentType"`
	Category            string            `json:"actionCategory"`
	Confidence          Confidence        `json:"confidence"`
	Entities            map[string]string `json:"entities,omitempty"`
	ClarificationNeeded string            `json:"clarificationNeeded,omitempty"`
	SuggestedResponse   string            `json:"suggestedResponse,omitempty"`
	RequiresAction      bool              `json:"requiresAction"`
	ActionPayload       map[string]any    `json:"actionPayload,omitempty"`
}

// Turn is one entry in the rolling conversation history.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// historyLimit bounds the rolling window to the last 10 turns (5 exchanges).
const historyLimit = 10

const defaultTemperature = 0.2

// systemPrompt instructs the model to emit exactly one JSON object matching
// the Analysis shape. Some models still wrap it in a code fence; parsing
// tolerates that.
const systemPrompt = `You are the intent classifier for a household voice assistant.

Classify the user's latest utterance, using the preceding conversation turns only for context.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "intentType": "question|command|navigation|clarification|conversation",
  "actionCategory": "weather|calendar|list|navigation|spending|settings|greeting|general",
  "confidence": "high|medium|low",
  "entities": {"<name>": "<value>"},
  "clarificationNeeded": "<question to ask the user, or omit>",
  "suggestedResponse": "<short spoken reply, or omit>",
  "requiresAction": true|false,
  "actionPayload": {}
}

Rules:
- Extract concrete entities (location, date, time, item, destination, amount) whenever present.
- Set clarificationNeeded when a required entity for the category is missing.
- requiresAction is true only when a household action or lookup must run.`

// Option configures a Classifier.
type Option func(*Classifier)

// WithTemperature sets the sampling temperature for the remote path.
func WithTemperature(t float64) Option {
	return func(c *Classifier) { c.temperature = t }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// WithMetrics attaches pipeline instrumentation. Nil leaves the classifier
// unmeasured.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Classifier) { c.metrics = m }
}

// Classifier owns the rolling history and produces one Analysis per
// utterance. Safe for concurrent use.
type Classifier struct {
	llm         llm.Provider // nil means no remote credential configured
	temperature float64
	logger      *slog.Logger
	metrics     *observe.Metrics

	mu      sync.Mutex
	history []Turn
}

// New creates a Classifier. provider may be nil, in which case every
// utterance is classified by the rule fallback.
func New(provider llm.Provider, opts ...Option) *Classifier {
	c := &Classifier{
		llm:         provider,
		temperature: defaultTemperature,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Analyze classifies transcript. The transcript is appended to the rolling
// history before classification; the window is trimmed to the last 10 turns.
// Analyze never fails: any remote-path error degrades to the rule fallback.
func (c *Classifier) Analyze(ctx context.Context, transcript string) Analysis {
	c.appendTurn(Turn{Role: "user", Content: transcript})

	start := time.Now()
	a := c.classify(ctx, transcript)
	if c.metrics != nil {
		c.metrics.ClassifyDuration.Record(ctx, time.Since(start).Seconds())
		c.metrics.RecordIntent(ctx, a.Category)
	}
	return a
}

// classify runs the remote path with the rule fallback behind it.
func (c *Classifier) classify(ctx context.Context, transcript string) Analysis {
	if c.llm == nil {
		return classifyByRules(transcript)
	}

	a, err := c.remoteAnalyze(ctx)
	if err != nil {
		c.logger.Warn("remote classification failed, using rule fallback",
			"error", err)
		return classifyByRules(transcript)
	}
	return a
}

// RecordAssistant appends an assistant reply to the rolling history so the
// next classification sees the full exchange.
func (c *Classifier) RecordAssistant(content string) {
	c.appendTurn(Turn{Role: "assistant", Content: content})
}

// ClearHistory resets the rolling window. Used on conversation reset.
func (c *Classifier) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

// SeedHistory replaces the rolling window with turns, keeping only the most
// recent ones that fit. Used to warm a fresh classifier from the persisted
// conversation log on reconnect.
func (c *Classifier) SeedHistory(turns []Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(turns) > historyLimit {
		turns = turns[len(turns)-historyLimit:]
	}
	c.history = append([]Turn(nil), turns...)
}

// History returns a copy of the current rolling window.
func (c *Classifier) History() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn(nil), c.history...)
}

func (c *Classifier) appendTurn(t Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, t)
	if len(c.history) > historyLimit {
		c.history = c.history[len(c.history)-historyLimit:]
	}
}

// remoteAnalyze sends the rolling history to the model and parses the
// structured response.
func (c *Classifier) remoteAnalyze(ctx context.Context) (Analysis, error) {
	msgs := make([]llm.Message, 0, historyLimit)
	for _, t := range c.History() {
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Content})
	}

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     msgs,
		Temperature:  c.temperature,
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("intent: complete: %w", err)
	}
	if resp == nil {
		return Analysis{}, fmt.Errorf("intent: empty completion response")
	}

	return parseAnalysis(resp.Content)
}

// parseAnalysis unmarshals the model output, stripping an incidental code
// fence first. A payload missing the intent type is treated as malformed.
func parseAnalysis(content string) (Analysis, error) {
	cleaned := stripFence(content)

	var a Analysis
	if err := json.Unmarshal([]byte(cleaned), &a); err != nil {
		return Analysis{}, fmt.Errorf("intent: parse response: %w", err)
	}
	if a.Type == "" {
		return Analysis{}, fmt.Errorf("intent: response missing intent type")
	}
	if a.Category == "" {
		a.Category = CategoryGeneral
	}
	if a.Confidence == "" {
		a.Confidence = ConfidenceMedium
	}
	return a, nil
}

// stripFence removes optional markdown code fences (```json ... ```) that
// some models wrap around JSON output.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
