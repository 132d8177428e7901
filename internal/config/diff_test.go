package config_test

import (
	"testing"

	"github.com/ariahome/aria/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		User: config.UserConfig{
			UserName:    "Sam",
			WakePhrases: []string{"hey aria"},
			Voice:       config.VoiceConfig{Name: "en-US-AriaNeural"},
		},
	}
	d := config.Diff(cfg, cfg)
	if d.Any() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if !d.Any() {
		t.Error("expected Any()=true")
	}
}

func TestDiff_VoiceChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		User: config.UserConfig{Voice: config.VoiceConfig{Name: "en-US-AriaNeural", Rate: 1.0}},
	}
	new := &config.Config{
		User: config.UserConfig{Voice: config.VoiceConfig{Name: "en-US-AriaNeural", Rate: 0.8}},
	}

	d := config.Diff(old, new)
	if !d.VoiceChanged {
		t.Error("expected VoiceChanged=true")
	}
	if d.NewVoice.Rate != 0.8 {
		t.Errorf("expected NewVoice.Rate=0.8, got %.2f", d.NewVoice.Rate)
	}
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false")
	}
}

func TestDiff_WakePhrasesChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		User: config.UserConfig{WakePhrases: []string{"hey aria"}},
	}
	new := &config.Config{
		User: config.UserConfig{WakePhrases: []string{"hey aria", "aria"}},
	}

	d := config.Diff(old, new)
	if !d.WakePhrasesChanged {
		t.Error("expected WakePhrasesChanged=true")
	}
	if len(d.NewWakePhrases) != 2 {
		t.Fatalf("expected 2 new wake phrases, got %d", len(d.NewWakePhrases))
	}
	if d.NewWakePhrases[1] != "aria" {
		t.Errorf("expected second phrase %q, got %q", "aria", d.NewWakePhrases[1])
	}
}

func TestDiff_ConfirmationTimeoutChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Conversation: config.ConversationConfig{ConfirmationTimeoutSeconds: 15},
	}
	new := &config.Config{
		Conversation: config.ConversationConfig{ConfirmationTimeoutSeconds: 30},
	}

	d := config.Diff(old, new)
	if !d.ConfirmationTimeoutChanged {
		t.Error("expected ConfirmationTimeoutChanged=true")
	}
	if d.NewConfirmationTimeout != 30 {
		t.Errorf("expected NewConfirmationTimeout=30, got %d", d.NewConfirmationTimeout)
	}
}

func TestDiff_RestartOnlyFieldsIgnored(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server:    config.ServerConfig{ListenAddr: ":8080"},
		Household: config.HouseholdConfig{PostgresDSN: "postgres://a"},
	}
	new := &config.Config{
		Server:    config.ServerConfig{ListenAddr: ":9090"},
		Household: config.HouseholdConfig{PostgresDSN: "postgres://b"},
	}

	d := config.Diff(old, new)
	if d.Any() {
		t.Errorf("restart-only fields should not appear in the diff, got %+v", d)
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		User: config.UserConfig{
			WakePhrases: []string{"hey aria"},
			Voice:       config.VoiceConfig{Name: "en-US-AriaNeural"},
		},
	}
	new := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogWarn},
		User: config.UserConfig{
			WakePhrases: []string{"hey assistant"},
			Voice:       config.VoiceConfig{Name: "en-US-GuyNeural"},
		},
	}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.VoiceChanged {
		t.Error("expected VoiceChanged=true")
	}
	if !d.WakePhrasesChanged {
		t.Error("expected WakePhrasesChanged=true")
	}
}
