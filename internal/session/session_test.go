package session_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ariahome/aria/internal/session"
)

func TestAppendAndRecent_ChronologicalOrder(t *testing.T) {
	t.Parallel()

	log := session.NewMemLog()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := log.AppendTurn(ctx, "user-1", session.Turn{
			Role:      "user",
			Content:   fmt.Sprintf("turn %d", i),
			Timestamp: time.Now(),
		})
		if err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	turns, err := log.RecentTurns(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("got %d turns; want 3", len(turns))
	}
	if turns[0].Content != "turn 0" || turns[2].Content != "turn 2" {
		t.Errorf("turns out of order: %v", turns)
	}
}

func TestRecentTurns_LimitsToTrailingN(t *testing.T) {
	t.Parallel()

	log := session.NewMemLog()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if err := log.AppendTurn(ctx, "user-1", session.Turn{Role: "user", Content: fmt.Sprintf("t%d", i)}); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	turns, err := log.RecentTurns(ctx, "user-1", 5)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 5 {
		t.Fatalf("got %d turns; want 5", len(turns))
	}
	if turns[0].Content != "t15" || turns[4].Content != "t19" {
		t.Errorf("wrong window: first=%q last=%q", turns[0].Content, turns[4].Content)
	}
}

func TestRecentTurns_ZeroUsesDefault(t *testing.T) {
	t.Parallel()

	log := session.NewMemLog()
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		if err := log.AppendTurn(ctx, "user-1", session.Turn{Role: "user", Content: fmt.Sprintf("t%d", i)}); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	turns, err := log.RecentTurns(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != session.DefaultRecent {
		t.Errorf("got %d turns; want %d", len(turns), session.DefaultRecent)
	}
}

func TestAppendTurn_TrimsRetainedLog(t *testing.T) {
	t.Parallel()

	log := session.NewMemLog()
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		if err := log.AppendTurn(ctx, "user-1", session.Turn{Role: "user", Content: fmt.Sprintf("t%d", i)}); err != nil {
			t.Fatalf("AppendTurn: %v", err)
		}
	}

	turns, err := log.RecentTurns(ctx, "user-1", 100)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 50 {
		t.Fatalf("retained %d turns; want 50", len(turns))
	}
	if turns[0].Content != "t10" {
		t.Errorf("oldest retained = %q; want t10", turns[0].Content)
	}
}

func TestRecentTurns_UnknownUserIsEmpty(t *testing.T) {
	t.Parallel()

	log := session.NewMemLog()
	turns, err := log.RecentTurns(context.Background(), "nobody", 10)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("got %d turns for unknown user; want 0", len(turns))
	}
}

func TestAppendTurn_EmptyUserRejected(t *testing.T) {
	t.Parallel()

	log := session.NewMemLog()
	if err := log.AppendTurn(context.Background(), "", session.Turn{Role: "user", Content: "hi"}); err == nil {
		t.Error("empty userID accepted")
	}
}

func TestPreferences_RoundTrip(t *testing.T) {
	t.Parallel()

	log := session.NewMemLog()
	ctx := context.Background()

	if _, ok, err := log.LoadPreferences(ctx, "user-1"); err != nil || ok {
		t.Fatalf("LoadPreferences before save: ok=%v err=%v", ok, err)
	}

	want := session.Preferences{VoiceName: "en-GB-SoniaNeural", Pitch: 2, Rate: 1.1, Volume: 0.8}
	if err := log.SavePreferences(ctx, "user-1", want); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}

	got, ok, err := log.LoadPreferences(ctx, "user-1")
	if err != nil {
		t.Fatalf("LoadPreferences: %v", err)
	}
	if !ok {
		t.Fatal("preferences not found after save")
	}
	if got != want {
		t.Errorf("got %+v; want %+v", got, want)
	}
}

func TestPreferences_VoiceDefaults(t *testing.T) {
	t.Parallel()

	v := session.Preferences{}.Voice()
	if v.Name != session.DefaultVoiceName {
		t.Errorf("default voice name = %q", v.Name)
	}
	if v.Rate != 1 || v.Volume != 1 {
		t.Errorf("rate/volume defaults = %v/%v; want 1/1", v.Rate, v.Volume)
	}
	if v.Pitch != 0 {
		t.Errorf("pitch default = %v; want 0 semitones", v.Pitch)
	}

	v = session.Preferences{VoiceName: "x", Rate: 1.5}.Voice()
	if v.Name != "x" || v.Rate != 1.5 || v.Volume != 1 {
		t.Errorf("explicit values not preserved: %+v", v)
	}
}
