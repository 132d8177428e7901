package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// (providers, stores, listen address) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VoiceChanged bool
	NewVoice     VoiceConfig

	WakePhrasesChanged bool
	NewWakePhrases     []string

	ConfirmationTimeoutChanged bool
	NewConfirmationTimeout     int // seconds
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.VoiceChanged || d.WakePhrasesChanged || d.ConfirmationTimeoutChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.User.Voice != new.User.Voice {
		d.VoiceChanged = true
		d.NewVoice = new.User.Voice
	}

	if !slices.Equal(old.User.WakePhrases, new.User.WakePhrases) {
		d.WakePhrasesChanged = true
		d.NewWakePhrases = slices.Clone(new.User.WakePhrases)
	}

	if old.Conversation.ConfirmationTimeoutSeconds != new.Conversation.ConfirmationTimeoutSeconds {
		d.ConfirmationTimeoutChanged = true
		d.NewConfirmationTimeout = new.Conversation.ConfirmationTimeoutSeconds
	}

	return d
}
