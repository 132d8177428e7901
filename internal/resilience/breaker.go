// Package resilience protects the voice pipeline from flapping speech and
// language backends. [Breaker] is a three-state circuit breaker; [Group]
// composes several instances of one provider type behind per-entry breakers
// so a failing primary is bypassed in favour of healthy fallbacks. The
// STT/TTS/LLM failover wrappers in this package implement the corresponding
// provider interfaces, so the rest of the pipeline never knows failover is
// happening.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the
// cooldown has not elapsed.
var ErrOpen = errors.New("resilience: breaker open")

// State is a breaker's operating mode.
type State int

const (
	// Closed forwards all calls.
	Closed State = iota

	// Open rejects calls with ErrOpen until the cooldown elapses.
	Open

	// HalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a Breaker. Zero fields use defaults.
type Config struct {
	// Name labels the breaker in log output.
	Name string

	// TripAfter is how many consecutive failures open the breaker.
	// Default 5.
	TripAfter int

	// Cooldown is how long the breaker stays open before probing.
	// Default 30s.
	Cooldown time.Duration

	// ProbeBudget is how many half-open probe calls are allowed, and how
	// many must succeed to close again. Default 3.
	ProbeBudget int

	// Logger receives state-transition logs. Default slog.Default().
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.TripAfter <= 0 {
		c.TripAfter = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.ProbeBudget <= 0 {
		c.ProbeBudget = 3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	cfg Config

	mu         sync.Mutex
	state      State
	failures   int       // consecutive failures while closed
	openedAt   time.Time // last failure that kept the breaker open
	probesUsed int
	probesOK   int
}

// NewBreaker creates a closed Breaker.
func NewBreaker(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults()}
}

// Do runs fn if the breaker allows it. Open breakers reject with ErrOpen
// without calling fn; half-open breakers admit up to the probe budget.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.cfg.Cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.probesUsed = 0
		b.probesOK = 0
		b.cfg.Logger.Info("breaker probing", "name", b.cfg.Name)

	case HalfOpen:
		if b.probesUsed >= b.cfg.ProbeBudget {
			b.mu.Unlock()
			return ErrOpen
		}
	}

	probing := b.state == HalfOpen
	if probing {
		b.probesUsed++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure is called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.openedAt = time.Now()

	if probing {
		// One failed probe is enough to re-open.
		b.state = Open
		b.failures = b.cfg.TripAfter
		b.cfg.Logger.Warn("breaker re-opened", "name", b.cfg.Name)
		return
	}

	b.failures++
	if b.failures >= b.cfg.TripAfter {
		b.state = Open
		b.cfg.Logger.Warn("breaker opened",
			"name", b.cfg.Name, "failures", b.failures)
	}
}

// onSuccess is called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		b.probesOK++
		if b.probesOK >= b.cfg.ProbeBudget {
			b.state = Closed
			b.failures = 0
			b.cfg.Logger.Info("breaker closed", "name", b.cfg.Name)
		}
		return
	}
	b.failures = 0
}

// State reports the effective state: an open breaker whose cooldown has
// elapsed reads as half-open even though the transition happens on the next
// Do call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.openedAt) >= b.cfg.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probesUsed = 0
	b.probesOK = 0
}
