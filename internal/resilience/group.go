package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrExhausted is returned when every entry in a [Group] fails or sits
// behind an open breaker.
var ErrExhausted = errors.New("resilience: all providers failed")

// entry pairs a provider with its dedicated breaker.
type entry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group holds ordered instances of one provider type, each behind its own
// breaker. The first added entry is the primary; later entries are tried in
// order when earlier ones fail or are open.
type Group[T any] struct {
	breakerCfg Config
	logger     *slog.Logger
	entries    []entry[T]
}

// NewGroup creates an empty Group. breakerCfg.Name is overwritten per entry.
func NewGroup[T any](breakerCfg Config) *Group[T] {
	cfg := breakerCfg.withDefaults()
	return &Group[T]{breakerCfg: cfg, logger: cfg.Logger}
}

// Add appends a provider. Call order defines failover order; the group must
// be fully assembled before first use.
func (g *Group[T]) Add(name string, v T) {
	cfg := g.breakerCfg
	cfg.Name = name
	g.entries = append(g.entries, entry[T]{name: name, value: v, breaker: NewBreaker(cfg)})
}

// Len returns the number of registered providers.
func (g *Group[T]) Len() int { return len(g.entries) }

// Primary returns the first registered provider. ok is false for an empty
// group.
func (g *Group[T]) Primary() (v T, ok bool) {
	if len(g.entries) == 0 {
		return v, false
	}
	return g.entries[0].value, true
}

// Do tries fn against each healthy entry in order until one succeeds.
// Entries with open breakers are skipped. Returns ErrExhausted wrapped with
// the last error when everything fails.
func (g *Group[T]) Do(fn func(T) error) error {
	_, err := DoResult(g, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// DoResult is Do for functions that return a value. Package-level because
// methods cannot introduce type parameters.
func DoResult[T, R any](g *Group[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range g.entries {
		e := &g.entries[i]
		var result R
		err := e.breaker.Do(func() error {
			var callErr error
			result, callErr = fn(e.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			g.logger.Debug("provider skipped, breaker open", "provider", e.name)
		} else {
			g.logger.Warn("provider failed, trying next",
				"provider", e.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}
