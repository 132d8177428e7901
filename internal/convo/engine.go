package convo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ariahome/aria/internal/convo/textmatch"
)

// Run starts listening and processes events until ctx is cancelled. It owns
// all state transitions; collaborators are only ever called from here.
func (e *Engine) Run(ctx context.Context) error {
	if e.listener == nil {
		return errors.New("convo: no listener attached")
	}
	if err := e.listener.Start(ctx); err != nil {
		return err
	}
	defer e.listener.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tr, ok := <-e.listener.Transcripts():
			if !ok {
				return nil
			}
			e.handleTranscript(ctx, tr.Text)
		case ev := <-e.events:
			switch ev.kind {
			case evTranscript:
				e.handleTranscript(ctx, ev.text)
			case evButton:
				e.handleButton(ctx, ev.button)
			case evTimeout:
				e.handleTimeout(ctx, ev.timerGen)
			case evNavigate:
				e.navigate(ev.text)
			}
		}
	}
}

// handleTranscript is the reducer for one accepted or dropped transcript.
func (e *Engine) handleTranscript(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	// Hard mute: anything heard while the assistant is talking is its own
	// voice or overlap; drop unconditionally.
	if e.speaker.Speaking() {
		e.logger.Debug("transcript dropped while speaking", "text", text)
		if e.metrics != nil {
			e.metrics.RecordTranscriptDropped(ctx, "speaking")
		}
		return
	}

	e.mu.Lock()
	executing := e.executing
	confirmationPending := e.pending != nil
	phase := e.phase
	e.mu.Unlock()

	// Prevent double dispatch: while a command runs, only confirmation
	// responses may pass, and none can be pending then.
	if executing && !confirmationPending {
		e.logger.Debug("transcript dropped while executing", "text", text)
		if e.metrics != nil {
			e.metrics.RecordTranscriptDropped(ctx, "executing")
		}
		return
	}

	if e.metrics != nil {
		e.metrics.RecordTranscriptAccepted(ctx)
	}
	if e.hooks.Transcript != nil {
		e.hooks.Transcript(text)
	}

	if e.moderationShortCircuit(ctx, text) {
		return
	}

	switch phase {
	case PhaseIdle:
		e.handleIdle(ctx, text)
	case PhaseCapturing:
		e.captureCommand(ctx, text)
	case PhaseAwaiting:
		e.handleConfirmation(ctx, text)
	default:
		e.logger.Debug("transcript ignored in phase", "phase", phase, "text", text)
	}
}

// moderationShortCircuit consumes profane and apology transcripts. A pending
// command is never touched; its confirmation window, with the timer as
// backstop, still owns the outcome. Without one the conversation returns to
// idle, so a profanity heard mid-capture does not leave the engine waiting
// for a command.
func (e *Engine) moderationShortCircuit(ctx context.Context, text string) bool {
	if textmatch.ContainsAnyWord(text, textmatch.ProfanityWords) {
		s, err := e.moderator.RecordOffense(ctx)
		if err != nil {
			e.logger.Error("failed to record offense", "error", err)
		}
		if e.metrics != nil {
			e.metrics.RecordOffense(ctx, string(s.Level))
		}
		e.say(ctx, e.moderator.ResponseFor(s))
		e.idleUnlessPending()
		return true
	}

	if textmatch.ContainsAnyWord(text, textmatch.ApologyWords) {
		s, err := e.moderator.GetState(ctx)
		if err != nil {
			e.logger.Error("failed to read moderation state", "error", err)
			return false
		}
		// An apology only short-circuits when there is something to forgive;
		// otherwise "sorry, what's the weather" stays a command.
		if s.Count == 0 {
			return false
		}
		if err := e.moderator.Reset(ctx); err != nil {
			e.logger.Error("failed to reset moderation", "error", err)
		}
		e.say(ctx, apologyAccepted)
		return true
	}

	return false
}

// idleUnlessPending returns to idle after a moderation exchange unless a
// command is awaiting confirmation.
func (e *Engine) idleUnlessPending() {
	e.mu.Lock()
	pending := e.pending != nil
	e.mu.Unlock()
	if !pending {
		e.setPhase(PhaseIdle)
	}
}

// handleIdle processes a transcript heard while idle: bare commands first,
// then wake-word detection.
func (e *Engine) handleIdle(ctx context.Context, text string) {
	if e.handleBareCommand(ctx, text) {
		return
	}

	e.mu.Lock()
	wake := e.wake
	e.mu.Unlock()

	if !wake.Detect(text) {
		e.logger.Debug("no wake word, ignoring", "text", text)
		return
	}

	e.setPhase(PhaseCapturing)
	e.say(ctx, e.wakeAcknowledgment())
}

// handleBareCommand recognizes the low-latency shortcuts that skip intent
// classification. Returns true when the transcript was consumed.
func (e *Engine) handleBareCommand(ctx context.Context, text string) bool {
	switch {
	case textmatch.IsStandaloneWord(text, "help"):
		e.say(ctx, helpText)
		return true

	case textmatch.IsStandaloneWord(text, "logout") || textmatch.ContainsPhrase(text, "log out"):
		e.say(ctx, "Logging you out. See you later!")
		e.navigate("/logout")
		return true
	}
	return false
}

// captureCommand takes the next accepted transcript as the candidate
// command, analyzes it, and asks for confirmation.
func (e *Engine) captureCommand(ctx context.Context, text string) {
	e.setPhase(PhaseAnalyzing)

	analysis := e.classifier.Analyze(ctx, text)

	e.mu.Lock()
	e.pending = &PendingCommand{Transcript: text, Intent: analysis}
	e.stopTimerLocked()
	gen := e.timerGen
	e.timer = time.AfterFunc(e.confirmTimeout, func() {
		e.events <- event{kind: evTimeout, timerGen: gen}
	})
	e.mu.Unlock()

	e.setPhase(PhaseAwaiting)
	e.say(ctx, confirmationEcho(text))
}

// handleConfirmation interprets a transcript as yes/no/cancel while a
// command is pending. Echo fragments of the assistant's own confirmation
// phrasing are ignored; negative and cancel words take priority over
// affirmative ones so "no, not that" never confirms.
func (e *Engine) handleConfirmation(ctx context.Context, text string) {
	if textmatch.IsSystemEcho(text) {
		e.logger.Debug("confirmation echo ignored", "text", text)
		return
	}

	switch {
	case textmatch.ContainsAnyWord(text, textmatch.CancelWords):
		e.cancelPending(ctx)

	case textmatch.ContainsAnyWord(text, textmatch.NegativeWords):
		e.retryPending(ctx)

	case textmatch.ContainsAnyWord(text, textmatch.AffirmativeWords):
		e.confirmPending(ctx)

	default:
		// Unrecognized: re-prompt without changing state.
		e.say(ctx, reprompt)
	}
}

// handleButton maps a UI button to the equivalent spoken confirmation.
func (e *Engine) handleButton(ctx context.Context, b Button) {
	e.mu.Lock()
	pendingConfirmation := e.pending != nil && e.phase == PhaseAwaiting
	e.mu.Unlock()
	if !pendingConfirmation {
		return
	}

	switch b {
	case ButtonYes:
		e.confirmPending(ctx)
	case ButtonNo:
		e.retryPending(ctx)
	case ButtonCancel:
		e.cancelPending(ctx)
	}
}

// confirmPending executes the pending command.
func (e *Engine) confirmPending(ctx context.Context) {
	e.mu.Lock()
	pc := e.pending
	e.pending = nil
	e.stopTimerLocked()
	e.executing = true
	e.mu.Unlock()

	if pc == nil {
		return
	}
	e.setPhase(PhaseExecuting)
	if e.metrics != nil {
		e.metrics.RecordConfirmation(ctx, "confirmed")
	}

	routeStart := time.Now()
	result := e.router.Route(ctx, pc.Intent, e.actionCtx)
	if e.metrics != nil {
		e.metrics.HandlerDuration.Record(ctx, time.Since(routeStart).Seconds())
	}
	if result.Message != "" {
		e.say(ctx, result.Message)
	}
	if result.NavigationTarget != "" {
		// Let the spoken result land before the UI moves. The delay is
		// re-queued as an event so the reducer never sleeps.
		target := result.NavigationTarget
		time.AfterFunc(e.navDelay, func() {
			e.events <- event{kind: evNavigate, text: target}
		})
	}
	if result.ModalType != "" && e.hooks.Modal != nil {
		e.hooks.Modal(result.ModalType)
	}

	e.mu.Lock()
	e.executing = false
	e.mu.Unlock()
	e.setPhase(PhaseIdle)
}

// retryPending discards the pending command and listens for a fresh one
// without requiring the wake word again.
func (e *Engine) retryPending(ctx context.Context) {
	e.mu.Lock()
	e.pending = nil
	e.stopTimerLocked()
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordConfirmation(ctx, "rejected")
	}
	e.setPhase(PhaseCapturing)
	e.say(ctx, retryPrompt)
}

// cancelPending discards the pending command and returns to idle.
func (e *Engine) cancelPending(ctx context.Context) {
	e.mu.Lock()
	e.pending = nil
	e.stopTimerLocked()
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordConfirmation(ctx, "cancelled")
	}
	e.setPhase(PhaseIdle)
	e.say(ctx, cancelAcknowledgment)
}

// handleTimeout fires when the confirmation window elapses. Stale timers
// from already-resolved commands are identified by generation and ignored.
func (e *Engine) handleTimeout(ctx context.Context, gen int) {
	e.mu.Lock()
	stale := gen != e.timerGen || e.pending == nil
	if !stale {
		e.pending = nil
		e.timer = nil
	}
	e.mu.Unlock()

	if stale {
		return
	}
	if e.metrics != nil {
		e.metrics.RecordConfirmation(ctx, "timeout")
	}
	e.setPhase(PhaseIdle)
	e.say(ctx, timeoutNotice)
}

// say speaks text and records it in the conversation history. Speech
// failures complete the turn silently; the conversation never blocks on
// the output channel.
func (e *Engine) say(ctx context.Context, text string) {
	if text == "" {
		return
	}
	if e.hooks.Assistant != nil {
		e.hooks.Assistant(text)
	}
	e.mu.Lock()
	voice := e.voice
	e.mu.Unlock()
	if err := e.speaker.Speak(ctx, text, voice); err != nil {
		e.logger.Warn("speech output failed", "error", err)
	}
	e.classifier.RecordAssistant(text)
}

// navigate fires the navigation hook when registered.
func (e *Engine) navigate(target string) {
	if e.hooks.Navigate != nil {
		e.hooks.Navigate(target)
	}
}

// wakeAcknowledgment picks the wake reply, weighted between generic and
// name-personalised phrasing.
func (e *Engine) wakeAcknowledgment() string {
	if e.userName != "" && e.selector(personalisedOutOf) < personalisedWeight {
		phrase := personalisedAcknowledgments[e.selector(len(personalisedAcknowledgments))]
		return strings.ReplaceAll(phrase, "{name}", e.userName)
	}
	return genericAcknowledgments[e.selector(len(genericAcknowledgments))]
}

// confirmationEcho builds the literal echo of what was heard.
func confirmationEcho(transcript string) string {
	return "I heard: " + transcript + ". Is that correct?"
}
