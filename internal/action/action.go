// Package action routes a classified intent to exactly one category handler
// and normalises every outcome into a uniform [Result].
//
// The router holds an ordered handler chain; the first handler whose
// CanHandle accepts the intent executes it, and a catch-all handler is
// always last so routing can never come up empty. Handler errors and panics
// are contained and converted into failed results; they never propagate
// into the conversation engine.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ariahome/aria/internal/intent"
)

// Result is the uniform outcome of one routed intent. Immutable; consumed
// by the speech-output step and by UI side-channels.
type Result struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	Data             any    `json:"data,omitempty"`
	NavigationTarget string `json:"navigationTarget,omitempty"`
	ModalType        string `json:"modalType,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Context carries per-conversation identity into handlers. Handlers own
// their external I/O; the router only guarantees single dispatch.
type Context struct {
	HouseholdID string
	UserName    string
}

// Handler executes one category of intent.
type Handler interface {
	// Name identifies the handler in logs.
	Name() string

	// CanHandle reports whether this handler accepts the intent.
	CanHandle(a intent.Analysis) bool

	// Execute performs the action. A returned error is converted by the
	// router into a failed Result; handlers should still prefer returning
	// a failed Result themselves when they can phrase a better message.
	Execute(ctx context.Context, a intent.Analysis, actx Context) (Result, error)
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// Router dispatches intents to handlers. Safe for concurrent use; handlers
// may be registered at runtime and are always inserted before the catch-all.
type Router struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers []Handler
	catchAll Handler
}

// NewRouter creates a Router ending in catchAll. catchAll must not be nil
// and must accept every intent.
func NewRouter(catchAll Handler, opts ...Option) *Router {
	r := &Router{
		logger:   slog.Default(),
		catchAll: catchAll,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register appends h to the chain, before the catch-all.
func (r *Router) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Route dispatches a to the first matching handler.
//
// An intent that itself requests clarification short-circuits: the
// clarification question is returned as the spoken result and no handler
// runs. Handler errors and panics become failed results carrying the error
// message.
func (r *Router) Route(ctx context.Context, a intent.Analysis, actx Context) Result {
	if a.ClarificationNeeded != "" {
		return Result{Success: true, Message: a.ClarificationNeeded}
	}

	h := r.selectHandler(a)
	r.logger.Debug("routing intent",
		"category", a.Category, "type", a.Type, "handler", h.Name())

	res, err := r.executeSafely(ctx, h, a, actx)
	if err != nil {
		r.logger.Error("action handler failed",
			"handler", h.Name(), "category", a.Category, "error", err)
		return Result{
			Success: false,
			Message: "Sorry, I couldn't complete that.",
			Error:   err.Error(),
		}
	}
	return res
}

// selectHandler returns the first handler accepting a, or the catch-all.
func (r *Router) selectHandler(a intent.Analysis) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handlers {
		if h.CanHandle(a) {
			return h
		}
	}
	return r.catchAll
}

// executeSafely runs the handler, converting a panic into an error.
func (r *Router) executeSafely(ctx context.Context, h Handler, a intent.Analysis, actx Context) (res Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("action: handler %s panicked: %v", h.Name(), rec)
		}
	}()
	return h.Execute(ctx, a, actx)
}
