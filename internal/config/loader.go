package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ariahome/aria/internal/tools"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "groq", "ollama", "mock"},
	"stt": {"whisper", "whisper-native", "mock"},
	"tts": {"edge", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Degraded-but-workable configurations (no Redis, no Postgres, no LLM) are
// logged as warnings rather than rejected.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	// Degraded-mode warnings.
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; intent classification will use the rule fallback")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; voice input will not be recognised")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no TTS provider configured; responses will not be spoken")
	}
	if cfg.Household.PostgresDSN == "" {
		slog.Warn("household.postgres_dsn is empty; lists, calendar, and spending will not survive restarts")
	}
	if cfg.Session.RedisURL == "" {
		slog.Warn("session.redis_url is empty; conversation log and moderation state will not survive restarts")
	}

	// User
	if cfg.User.HouseholdID == "" {
		slog.Warn("user.household_id is empty; household actions will be scoped to the default household")
	}
	wakeSeen := make(map[string]int, len(cfg.User.WakePhrases))
	for i, phrase := range cfg.User.WakePhrases {
		prefix := fmt.Sprintf("user.wake_phrases[%d]", i)
		normalized := strings.ToLower(strings.TrimSpace(phrase))
		if normalized == "" {
			errs = append(errs, fmt.Errorf("%s is blank", prefix))
			continue
		}
		if prev, ok := wakeSeen[normalized]; ok {
			errs = append(errs, fmt.Errorf("%s %q is a duplicate of user.wake_phrases[%d]", prefix, phrase, prev))
		}
		wakeSeen[normalized] = i
	}
	if cfg.User.Voice.Rate != 0 {
		if cfg.User.Voice.Rate < 0.5 || cfg.User.Voice.Rate > 2.0 {
			errs = append(errs, fmt.Errorf("user.voice.rate %.2f is out of range [0.5, 2.0]", cfg.User.Voice.Rate))
		}
	}
	if cfg.User.Voice.Volume < 0 || cfg.User.Voice.Volume > 2.0 {
		errs = append(errs, fmt.Errorf("user.voice.volume %.2f is out of range [0, 2.0]", cfg.User.Voice.Volume))
	}
	if cfg.User.Voice.Pitch < -10 || cfg.User.Voice.Pitch > 10 {
		errs = append(errs, fmt.Errorf("user.voice.pitch %.2f is out of range [-10, 10]", cfg.User.Voice.Pitch))
	}

	// Conversation
	if cfg.Conversation.ConfirmationTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("conversation.confirmation_timeout_seconds %d must not be negative", cfg.Conversation.ConfirmationTimeoutSeconds))
	}

	// MCP servers
	mcpNamesSeen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := mcpNamesSeen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			mcpNamesSeen[srv.Name] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == tools.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == tools.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
