package moderation

import (
	"context"
	"slices"
	"testing"
	"time"
)

// fixedClock returns a controllable time source.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time { return c.t }

func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(t *testing.T) (*Tracker, *fixedClock) {
	t.Helper()
	clk := &fixedClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	tr := New(NewMemStore(), WithClock(clk.now), WithSelector(func(int) int { return 0 }))
	return tr, clk
}

func TestLevelEscalation(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTracker(t)
	ctx := context.Background()

	want := []Level{
		LevelCalm,       // 1
		LevelAnnoyed,    // 2
		LevelAnnoyed,    // 3
		LevelFrustrated, // 4
		LevelFrustrated, // 5
		LevelAngry,      // 6
	}
	for i, lvl := range want {
		s, err := tr.RecordOffense(ctx)
		if err != nil {
			t.Fatalf("RecordOffense #%d: %v", i+1, err)
		}
		if s.Count != i+1 {
			t.Errorf("offense #%d: count = %d; want %d", i+1, s.Count, i+1)
		}
		if s.Level != lvl {
			t.Errorf("offense #%d: level = %q; want %q", i+1, s.Level, lvl)
		}
	}
}

func TestReset_ClearsState(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := tr.RecordOffense(ctx); err != nil {
			t.Fatalf("RecordOffense: %v", err)
		}
	}
	if err := tr.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	s, err := tr.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if s.Count != 0 {
		t.Errorf("count after reset = %d; want 0", s.Count)
	}
	if s.Level != LevelCalm {
		t.Errorf("level after reset = %q; want %q", s.Level, LevelCalm)
	}
}

func TestDecay_FiveMinutesQuietReadsAsCalm(t *testing.T) {
	t.Parallel()

	tr, clk := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if _, err := tr.RecordOffense(ctx); err != nil {
			t.Fatalf("RecordOffense: %v", err)
		}
	}

	clk.advance(5*time.Minute + time.Second)

	s, err := tr.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if s.Count != 0 || s.Level != LevelCalm {
		t.Errorf("decayed state = {count:%d level:%q}; want {count:0 level:calm}", s.Count, s.Level)
	}
}

func TestDecay_DoesNotMutateStorage(t *testing.T) {
	t.Parallel()

	clk := &fixedClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := NewMemStore()
	tr := New(store, WithClock(clk.now))
	ctx := context.Background()

	if _, err := tr.RecordOffense(ctx); err != nil {
		t.Fatalf("RecordOffense: %v", err)
	}

	clk.advance(10 * time.Minute)
	if _, err := tr.GetState(ctx); err != nil {
		t.Fatalf("GetState: %v", err)
	}

	// The raw persisted state must still carry the original offense.
	raw, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("store.Load: %v", err)
	}
	if raw.Count != 1 {
		t.Errorf("persisted count = %d; want 1 (read must not write)", raw.Count)
	}
}

func TestDecay_OffenseAfterQuietPeriodStartsFresh(t *testing.T) {
	t.Parallel()

	tr, clk := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if _, err := tr.RecordOffense(ctx); err != nil {
			t.Fatalf("RecordOffense: %v", err)
		}
	}

	clk.advance(6 * time.Minute)

	s, err := tr.RecordOffense(ctx)
	if err != nil {
		t.Fatalf("RecordOffense: %v", err)
	}
	if s.Count != 1 {
		t.Errorf("count after decayed offense = %d; want 1", s.Count)
	}
	if s.Level != LevelCalm {
		t.Errorf("level after decayed offense = %q; want %q", s.Level, LevelCalm)
	}
}

func TestResponseFor_SelectsWithinTier(t *testing.T) {
	t.Parallel()

	for _, lvl := range []Level{LevelCalm, LevelAnnoyed, LevelFrustrated, LevelAngry} {
		for idx := 0; idx < len(Phrases(lvl)); idx++ {
			tr := New(NewMemStore(), WithSelector(func(int) int { return idx }))
			got := tr.ResponseFor(State{Level: lvl})
			if !slices.Contains(Phrases(lvl), got) {
				t.Errorf("ResponseFor(%q) = %q; not in tier phrase list", lvl, got)
			}
		}
	}
}

func TestResponseFor_UnknownLevelFallsBackToCalm(t *testing.T) {
	t.Parallel()

	tr := New(NewMemStore(), WithSelector(func(int) int { return 0 }))
	got := tr.ResponseFor(State{Level: "bewildered"})
	if !slices.Contains(Phrases(LevelCalm), got) {
		t.Errorf("ResponseFor(unknown) = %q; want a calm-tier phrase", got)
	}
}
