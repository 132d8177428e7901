// Package moderation tracks repeated user profanity and escalates the
// assistant's emotional register in response. Offenses accumulate in a
// persisted counter; five minutes of good behaviour decays the state back to
// calm. The tracker is independent of the rest of the conversation pipeline
// and never touches intent or command state.
package moderation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Level is the assistant's emotional register, driven by the offense count.
type Level string

const (
	LevelCalm       Level = "calm"
	LevelAnnoyed    Level = "annoyed"
	LevelFrustrated Level = "frustrated"
	LevelAngry      Level = "angry"
)

// decayAfter is the quiet period after which state resets to calm.
const decayAfter = 5 * time.Minute

// State is the persisted moderation state.
type State struct {
	// Count is the number of offenses recorded since the last reset or
	// decay.
	Count int `json:"count"`

	// LastOffense is when the most recent offense was recorded. Zero when
	// no offense has ever been recorded.
	LastOffense time.Time `json:"last_offense"`

	// Level is the emotional register computed from Count.
	Level Level `json:"level"`
}

// Store persists moderation state across process restarts.
type Store interface {
	// Load returns the persisted state, or a zero State when none exists.
	Load(ctx context.Context) (State, error)

	// Save replaces the persisted state.
	Save(ctx context.Context, s State) error

	// Clear removes the persisted state.
	Clear(ctx context.Context) error
}

// Selector picks an index in [0, n). Injected so tests can pin the phrase
// choice; production wiring passes rand.Intn.
type Selector func(n int) int

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source. Used in tests to control decay.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithSelector overrides the random phrase selector.
func WithSelector(sel Selector) Option {
	return func(t *Tracker) { t.selector = sel }
}

// Tracker implements the offense counter over a Store. Safe for concurrent
// use; all mutations are serialised through an internal mutex so the
// load-modify-save cycle never interleaves.
type Tracker struct {
	mu       sync.Mutex
	store    Store
	now      func() time.Time
	selector Selector
}

// New creates a Tracker backed by store.
func New(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:    store,
		now:      time.Now,
		selector: rand.Intn,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// GetState returns the current state with decay applied: state older than
// five minutes reads as calm/zero without mutating storage.
func (t *Tracker) GetState(ctx context.Context) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.store.Load(ctx)
	if err != nil {
		return State{}, fmt.Errorf("moderation: load state: %w", err)
	}
	return t.applyDecay(s), nil
}

// RecordOffense increments the offense count, recomputes the level, persists
// the new state, and returns it. Decay is applied first, so an offense after
// a long quiet period starts a fresh count.
func (t *Tracker) RecordOffense(ctx context.Context) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.store.Load(ctx)
	if err != nil {
		return State{}, fmt.Errorf("moderation: load state: %w", err)
	}
	s = t.applyDecay(s)

	s.Count++
	s.LastOffense = t.now()
	s.Level = levelFor(s.Count)

	if err := t.store.Save(ctx, s); err != nil {
		return State{}, fmt.Errorf("moderation: save state: %w", err)
	}
	return s, nil
}

// Reset clears the persisted state. Called when the user apologises.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.store.Clear(ctx); err != nil {
		return fmt.Errorf("moderation: clear state: %w", err)
	}
	return nil
}

// ResponseFor selects a spoken response matching the state's level. The tier
// is deterministic; the phrase within the tier is chosen by the injected
// selector.
func (t *Tracker) ResponseFor(s State) string {
	phrases := tierPhrases[s.Level]
	if len(phrases) == 0 {
		phrases = tierPhrases[LevelCalm]
	}
	return phrases[t.selector(len(phrases))]
}

// applyDecay returns the state as it should read right now: unchanged when
// recent, reset to zero when the quiet period has elapsed. Storage is never
// written here.
func (t *Tracker) applyDecay(s State) State {
	if s.LastOffense.IsZero() {
		return State{Level: LevelCalm}
	}
	if t.now().Sub(s.LastOffense) > decayAfter {
		return State{Level: LevelCalm}
	}
	if s.Level == "" {
		s.Level = levelFor(s.Count)
	}
	return s
}

// levelFor maps an offense count to an emotional register.
func levelFor(count int) Level {
	switch {
	case count <= 1:
		return LevelCalm
	case count <= 3:
		return LevelAnnoyed
	case count <= 5:
		return LevelFrustrated
	default:
		return LevelAngry
	}
}

// tierPhrases holds five spoken responses per tier. Tests assert tier
// membership, never exact text.
var tierPhrases = map[Level][]string{
	LevelCalm: {
		"Let's keep things friendly, please.",
		"I'd appreciate kinder words.",
		"Let's try that again, nicely.",
		"No need for that language.",
		"I'm happy to help if we keep it polite.",
	},
	LevelAnnoyed: {
		"I'd really rather you didn't speak to me like that.",
		"That language isn't necessary.",
		"Please watch the language.",
		"I heard that, and I didn't love it.",
		"Let's dial the language back a bit.",
	},
	LevelFrustrated: {
		"This is getting old. Please stop swearing at me.",
		"I've asked nicely already. Please stop.",
		"I'm finding this quite tiresome.",
		"Repeatedly swearing won't get things done faster.",
		"I'm going to need you to stop that.",
	},
	LevelAngry: {
		"That's quite enough. I won't respond to that.",
		"I'm done engaging with that language.",
		"Absolutely not. Try again when you've calmed down.",
		"I refuse to be spoken to like that.",
		"We're not doing this until the language stops.",
	},
}

// Phrases returns the response list for a level. Exposed for tests that
// assert tier membership.
func Phrases(l Level) []string {
	out := make([]string, len(tierPhrases[l]))
	copy(out, tierPhrases[l])
	return out
}
