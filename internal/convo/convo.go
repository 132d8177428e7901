// Package convo is the top-level conversation engine: wake-word detection,
// command capture, intent analysis, confirmation, execution, and reset.
//
// The engine is a single-goroutine reducer over one event stream
// (transcripts, confirmation buttons, timer expiries). State transitions
// are synchronous; the only shared state read from other goroutines is the
// phase and the speaking flag, both needed by the recognition controller.
//
// At most one PendingCommand exists at any time. Its existence, not the
// phase, is what switches incoming transcripts from "new command"
// interpretation to "confirmation response" interpretation.
package convo

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/ariahome/aria/internal/action"
	"github.com/ariahome/aria/internal/convo/textmatch"
	"github.com/ariahome/aria/internal/intent"
	"github.com/ariahome/aria/internal/moderation"
	"github.com/ariahome/aria/internal/observe"
	"github.com/ariahome/aria/pkg/provider/stt"
	"github.com/ariahome/aria/pkg/provider/tts"
)

// Phase is the engine's conversation state.
type Phase string

const (
	PhaseIdle      Phase = "idle-listening"
	PhaseCapturing Phase = "capturing-command" // wake acknowledged, awaiting the command utterance
	PhaseAnalyzing Phase = "analyzing"
	PhaseAwaiting  Phase = "awaiting-confirmation"
	PhaseExecuting Phase = "executing"
)

// PendingCommand is the captured command awaiting confirmation. Destroyed
// on confirm, retry, cancel, and timeout.
type PendingCommand struct {
	Transcript string
	Intent     intent.Analysis
}

// Button is a UI confirmation affordance, equivalent to the spoken word.
type Button string

const (
	ButtonYes    Button = "yes"
	ButtonNo     Button = "no"
	ButtonCancel Button = "cancel"
)

// Speaker is the audio output channel.
type Speaker interface {
	Speak(ctx context.Context, text string, voice tts.Voice) error
	Speaking() bool
	Interrupt()
}

// Listener is the recognition lifecycle controller.
type Listener interface {
	Start(ctx context.Context) error
	Stop()
	Transcripts() <-chan stt.Transcript
}

// Analyzer is the intent classifier.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) intent.Analysis
	RecordAssistant(content string)
	ClearHistory()
}

// Moderator is the profanity offense tracker.
type Moderator interface {
	GetState(ctx context.Context) (moderation.State, error)
	RecordOffense(ctx context.Context) (moderation.State, error)
	Reset(ctx context.Context) error
	ResponseFor(s moderation.State) string
}

// ActionRouter dispatches a confirmed intent.
type ActionRouter interface {
	Route(ctx context.Context, a intent.Analysis, actx action.Context) action.Result
}

// Hooks are optional UI side-channel callbacks, invoked from the reducer
// goroutine. Nil members are skipped.
type Hooks struct {
	// Navigate fires after a routed action requests a navigation target.
	Navigate func(target string)

	// Modal fires when a routed action requests a UI modal.
	Modal func(modalType string)

	// Transcript fires for every transcript accepted into the reducer.
	Transcript func(text string)

	// Assistant fires for every spoken assistant response.
	Assistant func(text string)

	// PhaseChanged fires on every phase transition.
	PhaseChanged func(p Phase)
}

const (
	confirmationTimeout = 15 * time.Second
	navigationDelay     = 500 * time.Millisecond

	// personalisedOutOf / personalisedWeight: 4-in-10 wake acknowledgments
	// use the user's name when one is known.
	personalisedWeight = 4
	personalisedOutOf  = 10
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithSelector injects the randomness source used for phrase selection.
// Defaults to math/rand. Tests pass a deterministic selector.
func WithSelector(sel func(n int) int) Option {
	return func(e *Engine) { e.selector = sel }
}

// WithVoice sets the synthesis voice for all spoken output.
func WithVoice(v tts.Voice) Option {
	return func(e *Engine) { e.voice = v }
}

// WithHooks registers UI side-channel callbacks.
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithUserName sets the name used in personalised acknowledgments.
func WithUserName(name string) Option {
	return func(e *Engine) { e.userName = name }
}

// WithConfirmationTimeout overrides the 15 s confirmation window. Tests
// shrink it.
func WithConfirmationTimeout(d time.Duration) Option {
	return func(e *Engine) { e.confirmTimeout = d }
}

// WithNavigationDelay overrides the delay before a navigation hook fires.
func WithNavigationDelay(d time.Duration) Option {
	return func(e *Engine) { e.navDelay = d }
}

// WithMetrics attaches pipeline instrumentation. Nil leaves the engine
// unmeasured.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// event is one unit of work for the reducer.
type event struct {
	kind     eventKind
	text     string // transcript text
	button   Button
	timerGen int
}

type eventKind int

const (
	evTranscript eventKind = iota
	evButton
	evTimeout
	evNavigate
)

// Engine composes the voice pipeline into one conversation. Create with
// New, attach a Listener, then call Run.
type Engine struct {
	speaker    Speaker
	classifier Analyzer
	router     ActionRouter
	moderator  Moderator
	wake       *textmatch.WakeDetector

	logger         *slog.Logger
	metrics        *observe.Metrics
	selector       func(n int) int
	voice          tts.Voice
	hooks          Hooks
	userName       string
	actionCtx      action.Context
	confirmTimeout time.Duration
	navDelay       time.Duration

	listener Listener
	events   chan event

	mu        sync.Mutex
	phase     Phase
	pending   *PendingCommand
	timer     *time.Timer
	timerGen  int
	executing bool
}

// New creates an Engine. All five collaborators are required; attach the
// recognition controller with AttachListener before Run.
func New(
	speaker Speaker,
	classifier Analyzer,
	router ActionRouter,
	moderator Moderator,
	wake *textmatch.WakeDetector,
	actionCtx action.Context,
	opts ...Option,
) *Engine {
	e := &Engine{
		speaker:        speaker,
		classifier:     classifier,
		router:         router,
		moderator:      moderator,
		wake:           wake,
		logger:         slog.Default(),
		selector:       rand.Intn,
		actionCtx:      actionCtx,
		userName:       actionCtx.UserName,
		confirmTimeout: confirmationTimeout,
		navDelay:       navigationDelay,
		events:         make(chan event, 16),
		phase:          PhaseIdle,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// AttachListener wires the recognition controller. Split from New because
// the controller itself needs the engine as its status source.
func (e *Engine) AttachListener(l Listener) {
	e.listener = l
}

// SetHooks replaces the UI side-channel callbacks. Must be called before
// Run; hooks are invoked from the reducer goroutine without locking.
func (e *Engine) SetHooks(h Hooks) {
	e.hooks = h
}

// Phase returns the current conversation phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Speaking implements listen.Status.
func (e *Engine) Speaking() bool {
	return e.speaker.Speaking()
}

// Executing implements listen.Status.
func (e *Engine) Executing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executing
}

// Pending returns the pending command, or nil.
func (e *Engine) Pending() *PendingCommand {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// SetVoice replaces the synthesis voice for subsequent spoken output.
// Used when a connected client announces its voice preferences.
func (e *Engine) SetVoice(v tts.Voice) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.voice = v
}

// SetConfirmationTimeout replaces the confirmation window for subsequent
// pending commands. Used on config hot reload.
func (e *Engine) SetConfirmationTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.confirmTimeout = d
}

// SetWakeDetector replaces the wake detector. Used on config hot reload;
// the detector itself is immutable, so the swap is a pointer write.
func (e *Engine) SetWakeDetector(d *textmatch.WakeDetector) {
	if d == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.wake = d
}

// Press feeds a UI confirmation button into the reducer. Equivalent to the
// corresponding spoken word.
func (e *Engine) Press(b Button) {
	e.events <- event{kind: evButton, button: b}
}

// Submit feeds a transcript into the reducer from a non-listener source
// (typed input, tests).
func (e *Engine) Submit(text string) {
	e.events <- event{kind: evTranscript, text: text}
}

// Interrupt halts any in-progress spoken output. Driven by the client when
// the user starts talking over the assistant.
func (e *Engine) Interrupt() {
	e.speaker.Interrupt()
}

// Reset cancels any pending command and returns the engine to idle,
// clearing the classifier history. Used on explicit conversation reset.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.stopTimerLocked()
	e.pending = nil
	e.executing = false
	e.mu.Unlock()

	e.classifier.ClearHistory()
	e.setPhase(PhaseIdle)
}

// setPhase updates the phase and notifies the hook.
func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	changed := e.phase != p
	e.phase = p
	e.mu.Unlock()

	if changed && e.hooks.PhaseChanged != nil {
		e.hooks.PhaseChanged(p)
	}
}

// stopTimerLocked cancels the confirmation timer via its stored handle.
// Caller holds e.mu.
func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.timerGen++
}
