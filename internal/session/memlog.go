package session

import (
	"context"
	"sync"
	"time"
)

// MemLog is an in-process Log for tests and credential-less deployments.
// Entries honour the same retention bound and idle expiry as RedisLog.
type MemLog struct {
	mu    sync.Mutex
	now   func() time.Time
	logs  map[string]memEntry
	prefs map[string]Preferences
}

type memEntry struct {
	turns   []Turn
	touched time.Time
}

var _ Log = (*MemLog)(nil)

// NewMemLog creates an empty MemLog.
func NewMemLog() *MemLog {
	return &MemLog{
		now:   time.Now,
		logs:  make(map[string]memEntry),
		prefs: make(map[string]Preferences),
	}
}

// AppendTurn implements Log.
func (m *MemLog) AppendTurn(_ context.Context, userID string, t Turn) error {
	if err := validUser(userID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.logs[userID]
	if m.expired(e) {
		e = memEntry{}
	}
	e.turns = append(e.turns, t)
	if len(e.turns) > maxTurns {
		e.turns = e.turns[len(e.turns)-maxTurns:]
	}
	e.touched = m.now()
	m.logs[userID] = e
	return nil
}

// RecentTurns implements Log.
func (m *MemLog) RecentTurns(_ context.Context, userID string, n int) ([]Turn, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = DefaultRecent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.logs[userID]
	if m.expired(e) {
		return nil, nil
	}
	turns := e.turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// SavePreferences implements Log.
func (m *MemLog) SavePreferences(_ context.Context, userID string, p Preferences) error {
	if err := validUser(userID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[userID] = p
	return nil
}

// LoadPreferences implements Log.
func (m *MemLog) LoadPreferences(_ context.Context, userID string) (Preferences, bool, error) {
	if err := validUser(userID); err != nil {
		return Preferences{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prefs[userID]
	return p, ok, nil
}

func (m *MemLog) expired(e memEntry) bool {
	return !e.touched.IsZero() && m.now().Sub(e.touched) > logTTL
}
