package config_test

import (
	"strings"
	"testing"

	"github.com/ariahome/aria/internal/config"
)

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_TLSRequiresCertAndKey(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: /etc/aria/cert.pem
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for tls without key_file, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestValidate_BlankWakePhrase(t *testing.T) {
	t.Parallel()
	yaml := `
user:
  wake_phrases:
    - hey aria
    - "  "
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for blank wake phrase, got nil")
	}
	if !strings.Contains(err.Error(), "blank") {
		t.Errorf("error should mention blank, got: %v", err)
	}
}

func TestValidate_DuplicateWakePhrases(t *testing.T) {
	t.Parallel()
	yaml := `
user:
  wake_phrases:
    - hey aria
    - "Hey Aria"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duplicate wake phrases, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_VoiceRateOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
user:
  voice:
    rate: 5.0
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range voice rate, got nil")
	}
	if !strings.Contains(err.Error(), "rate") {
		t.Errorf("error should mention rate, got: %v", err)
	}
}

func TestValidate_VoicePitchOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
user:
  voice:
    pitch: -20
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range voice pitch, got nil")
	}
}

func TestValidate_ZeroVoiceFieldsAreDefaults(t *testing.T) {
	t.Parallel()
	yaml := `
user:
  voice:
    name: en-US-AriaNeural
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error for zero voice fields: %v", err)
	}
}

func TestValidate_NegativeConfirmationTimeout(t *testing.T) {
	t.Parallel()
	yaml := `
conversation:
  confirmation_timeout_seconds: -5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative confirmation timeout, got nil")
	}
}

func TestValidate_MCPMissingCommand(t *testing.T) {
	t.Parallel()
	yaml := `
mcp:
  servers:
    - name: badserver
      transport: stdio
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing stdio command, got nil")
	}
}

func TestValidate_MCPMissingURL(t *testing.T) {
	t.Parallel()
	yaml := `
mcp:
  servers:
    - name: webserver
      transport: streamable-http
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing streamable-http url, got nil")
	}
}

func TestValidate_MCPInvalidTransport(t *testing.T) {
	t.Parallel()
	yaml := `
mcp:
  servers:
    - name: badtransport
      transport: grpc
      command: /bin/server
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid transport, got nil")
	}
}

func TestValidate_MCPDuplicateNames(t *testing.T) {
	t.Parallel()
	yaml := `
mcp:
  servers:
    - name: tools
      transport: stdio
      command: /bin/a
    - name: tools
      transport: stdio
      command: /bin/b
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duplicate MCP server names, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
user:
  voice:
    rate: 9.0
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
	if !strings.Contains(errStr, "rate") {
		t.Errorf("error should mention rate, got: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	llmNames := config.ValidProviderNames["llm"]
	if len(llmNames) == 0 {
		t.Fatal("ValidProviderNames[\"llm\"] should not be empty")
	}
	found := false
	for _, n := range llmNames {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"llm\"] should contain \"openai\"")
	}
}
