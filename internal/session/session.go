// Package session persists per-user conversation context between
// connections: the rolling conversation log and the user's voice
// preferences. The gateway replays the recent log into the intent
// classifier when a user reconnects, so the assistant keeps short-term
// memory across page reloads.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/ariahome/aria/pkg/provider/tts"
)

// Turn is one logged conversation turn.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Preferences are the user's synthesis settings, applied to every spoken
// response.
type Preferences struct {
	VoiceName string  `json:"name"`
	Pitch     float64 `json:"pitch"`
	Rate      float64 `json:"rate"`
	Volume    float64 `json:"volume"`
}

// Voice converts the preferences to a synthesis voice, substituting the
// default voice for unset fields.
func (p Preferences) Voice() tts.Voice {
	v := tts.Voice{Name: p.VoiceName, Pitch: p.Pitch, Rate: p.Rate, Volume: p.Volume}
	if v.Name == "" {
		v.Name = DefaultVoiceName
	}
	if v.Rate == 0 {
		v.Rate = 1
	}
	if v.Volume == 0 {
		v.Volume = 1
	}
	return v
}

// DefaultVoiceName is used when the user has not picked a voice.
const DefaultVoiceName = "en-US-AriaNeural"

const (
	// logTTL is how long an idle conversation log survives. Every append
	// refreshes it.
	logTTL = 24 * time.Hour

	// maxTurns bounds the stored log. Older turns are discarded.
	maxTurns = 50

	// DefaultRecent is how many trailing turns a reconnect replays.
	DefaultRecent = 10
)

// Log stores conversation turns and voice preferences per user.
type Log interface {
	// AppendTurn adds a turn to the user's log, trims it to the retention
	// bound, and refreshes the expiry.
	AppendTurn(ctx context.Context, userID string, t Turn) error

	// RecentTurns returns up to n trailing turns in chronological order.
	// An unknown or expired user yields an empty slice.
	RecentTurns(ctx context.Context, userID string, n int) ([]Turn, error)

	// SavePreferences replaces the user's voice preferences.
	SavePreferences(ctx context.Context, userID string, p Preferences) error

	// LoadPreferences returns the stored preferences, or ok=false when the
	// user has none.
	LoadPreferences(ctx context.Context, userID string) (Preferences, bool, error)
}

func validUser(userID string) error {
	if userID == "" {
		return fmt.Errorf("session: userID must not be empty")
	}
	return nil
}
