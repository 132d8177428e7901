// Package listen owns the lifecycle of the continuous speech-recognition
// stream: starting, stopping, suspending for audio output, and bounded
// automatic restart after recoverable errors.
//
// The single most consequential bug class in a voice assistant is the
// feedback loop: the microphone captures the assistant's own voice and the
// pipeline treats it as user input. The controller's invariants exist to
// prevent that:
//
//   - at most one recognition session is active at a time, tracked by an
//     explicit running flag rather than the provider's own state;
//   - recognition is suspended before any audio output begins and resumed
//     only after output completes plus a short settle delay;
//   - a naturally-ended session auto-restarts unless the assistant is
//     currently speaking or executing a command.
package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ariahome/aria/pkg/provider/stt"
)

// Status exposes read-only conversation state to the controller. The
// orchestrator's session context implements it; the controller never mutates
// conversation state.
type Status interface {
	// Speaking reports whether the audio output channel is playing.
	Speaking() bool

	// Executing reports whether a command is currently being executed.
	Executing() bool
}

// ErrNotListening is returned by SendAudio when no session is active.
var ErrNotListening = errors.New("listen: no active recognition session")

const (
	defaultSettleDelay  = time.Second
	defaultRestartDelay = 300 * time.Millisecond
	defaultMaxRetries   = 3
)

// Option configures a Controller.
type Option func(*Controller)

// WithSettleDelay sets the delay between audio output completing and
// recognition resuming. Defaults to 1 s; tests shrink it.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) { c.settleDelay = d }
}

// WithRestartDelay sets the delay before restarting after a recoverable
// recognition error. Defaults to 300 ms.
func WithRestartDelay(d time.Duration) Option {
	return func(c *Controller) { c.restartDelay = d }
}

// WithMaxRetries sets the consecutive-error ceiling after which the
// controller gives up instead of looping. Defaults to 3.
func WithMaxRetries(n int) Option {
	return func(c *Controller) { c.maxRetries = n }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller manages recognition sessions over an stt.Provider and emits
// finalized transcripts on a single channel. All methods are safe for
// concurrent use.
type Controller struct {
	provider stt.Provider
	status   Status
	cfg      stt.SessionConfig
	logger   *slog.Logger

	settleDelay  time.Duration
	restartDelay time.Duration
	maxRetries   int

	mu         sync.Mutex
	running    bool // user-desired listening state (Start/Stop)
	suspended  bool // temporarily stopped for audio output (Suspend/Resume)
	session    stt.Session
	gen        int // session generation, guards stale watcher callbacks
	suspendGen int // bumped on every Suspend, invalidates pending Resumes
	retries    int // consecutive recoverable failures

	transcripts chan stt.Transcript
}

// New creates a Controller. status must not be nil; the controller consults
// it before every automatic restart.
func New(provider stt.Provider, status Status, cfg stt.SessionConfig, opts ...Option) *Controller {
	c := &Controller{
		provider:     provider,
		status:       status,
		cfg:          cfg,
		logger:       slog.Default(),
		settleDelay:  defaultSettleDelay,
		restartDelay: defaultRestartDelay,
		maxRetries:   defaultMaxRetries,
		transcripts:  make(chan stt.Transcript, 16),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Transcripts returns the stream of finalized transcripts. The channel stays
// open across session restarts; consumers see one merged stream.
func (c *Controller) Transcripts() <-chan stt.Transcript {
	return c.transcripts
}

// Running reports whether listening is currently desired and not given up.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Start begins listening. Calling Start while already running is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	c.running = true
	c.retries = 0
	if c.suspended {
		// Output is in progress; Resume will open the session.
		return nil
	}
	if err := c.startSessionLocked(ctx); err != nil {
		c.running = false
		return err
	}
	return nil
}

// Stop ends listening. The active session is closed and no restart occurs
// until Start is called again.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.closeSessionLocked()
}

// Suspend closes the active session ahead of audio output. Listening intent
// is preserved; Resume reopens the session. Idempotent.
func (c *Controller) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Every call invalidates pending Resumes, including calls made while
	// already suspended: a settle timer armed after one utterance must not
	// reopen recognition in the middle of the next one.
	c.suspendGen++
	if c.suspended {
		return
	}
	c.suspended = true
	c.closeSessionLocked()
}

// Resume lifts a suspension after the settle delay, reopening the session if
// listening is still desired. The delay keeps the tail of the assistant's
// own speech out of the microphone. Safe to call when not suspended.
func (c *Controller) Resume(ctx context.Context) {
	c.mu.Lock()
	if !c.suspended {
		c.mu.Unlock()
		return
	}
	sgen := c.suspendGen
	c.mu.Unlock()

	timer := time.NewTimer(c.settleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}

	// A Suspend during the settle window supersedes this Resume; its own
	// Resume carries a fresh generation. The Speaking check covers output
	// that began after this Resume was already in flight.
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.suspended || c.suspendGen != sgen || c.status.Speaking() {
		return
	}
	c.suspended = false
	if c.running && c.session == nil {
		if err := c.startSessionLocked(ctx); err != nil {
			c.logger.Error("failed to resume recognition", "error", err)
			c.running = false
		}
	}
}

// SendAudio forwards a PCM chunk to the active session. Returns
// ErrNotListening when no session is open (stopped, suspended, or given up);
// callers drop the chunk in that case.
func (c *Controller) SendAudio(chunk []byte) error {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return ErrNotListening
	}
	return sess.SendAudio(chunk)
}

// startSessionLocked opens a new session and launches its watcher. Caller
// holds c.mu.
func (c *Controller) startSessionLocked(ctx context.Context) error {
	sess, err := c.provider.StartSession(ctx, c.cfg)
	if err != nil {
		return fmt.Errorf("listen: start session: %w", err)
	}
	c.gen++
	c.session = sess
	go c.watch(ctx, sess, c.gen)
	return nil
}

// closeSessionLocked closes the current session if any. Caller holds c.mu.
func (c *Controller) closeSessionLocked() {
	if c.session != nil {
		_ = c.session.Close()
		c.session = nil
	}
}

// watch consumes one session's event stream until it ends, forwarding final
// transcripts and applying the restart policy. gen identifies the session;
// events from superseded sessions are ignored.
func (c *Controller) watch(ctx context.Context, sess stt.Session, gen int) {
	for ev := range sess.Events() {
		switch ev.Kind {
		case stt.EventTranscript:
			if !ev.Transcript.IsFinal {
				continue
			}
			c.mu.Lock()
			c.retries = 0
			stale := c.gen != gen
			c.mu.Unlock()
			if stale {
				return
			}
			select {
			case c.transcripts <- ev.Transcript:
			case <-ctx.Done():
				return
			}

		case stt.EventError:
			if c.handleError(ctx, gen, ev) {
				return
			}

		case stt.EventEnd:
			c.handleEnd(ctx, gen)
			return
		}
	}
}

// handleError applies the bounded retry policy. Returns true when the
// watcher should exit (session replaced or given up).
func (c *Controller) handleError(ctx context.Context, gen int, ev stt.Event) bool {
	c.mu.Lock()
	if c.gen != gen || !c.running || c.suspended {
		c.mu.Unlock()
		return true
	}

	if !ev.Code.Recoverable() {
		c.logger.Error("recognition error, not restarting",
			"code", ev.Code, "message", ev.Message)
		c.mu.Unlock()
		return false
	}

	c.retries++
	if c.retries > c.maxRetries {
		c.logger.Error("recognition retry ceiling reached, giving up",
			"code", ev.Code, "retries", c.retries-1)
		c.running = false
		c.closeSessionLocked()
		c.mu.Unlock()
		return true
	}
	retries := c.retries
	c.mu.Unlock()

	c.logger.Warn("recoverable recognition error, restarting",
		"code", ev.Code, "attempt", retries)

	timer := time.NewTimer(c.restartDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return true
	}

	c.restart(ctx, gen)
	return true
}

// handleEnd decides whether a naturally-ended session restarts. It does not
// restart while the assistant is speaking or executing; those paths resume
// recognition explicitly when they finish.
func (c *Controller) handleEnd(ctx context.Context, gen int) {
	if c.status.Speaking() || c.status.Executing() {
		return
	}
	c.restart(ctx, gen)
}

// restart replaces the session identified by gen with a fresh one, if
// listening is still desired and the session has not already been replaced.
func (c *Controller) restart(ctx context.Context, gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen || !c.running || c.suspended {
		return
	}
	c.closeSessionLocked()
	if err := c.startSessionLocked(ctx); err != nil {
		c.logger.Error("failed to restart recognition", "error", err)
		c.running = false
	}
}
