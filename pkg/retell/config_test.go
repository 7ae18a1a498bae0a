package retell

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configEnvVars = []string{
	"RETELL_API_KEY",
	"NEXT_PUBLIC_RETELL_AGENT_ID",
	"RETELL_API_BASE_URL",
	"RETELL_LISTEN_ADDR",
	"RETELL_REGISTER_CALL_URL",
	"RETELL_CALL_WS_ENDPOINT",
	"RETELL_FETCH_TIMEOUT",
	"RETELL_DEBUG_LEVEL",
	"RETELL_DEBUG_WEBSOCKET",
}

// clearConfigEnv unsets every config variable for the duration of the test.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvVars {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg := LoadConfig(missingEnvFile(t))
	if cfg.APIBaseURL != "https://api.retellai.com" {
		t.Fatalf("unexpected base URL %q", cfg.APIBaseURL)
	}
	if cfg.ListenAddr != ":3000" || cfg.RegisterCallURL != "http://localhost:3000/api/register-call" {
		t.Fatalf("unexpected addresses %q %q", cfg.ListenAddr, cfg.RegisterCallURL)
	}
	if cfg.FetchTimeoutDuration() != 30*time.Second {
		t.Fatalf("unexpected fetch timeout %s", cfg.FetchTimeoutDuration())
	}
	if cfg.IsConfigured() || cfg.AgentIDLabel() != "Not Set" {
		t.Fatalf("agent must be unset, got %q", cfg.AgentID)
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("RETELL_API_KEY", "key_abc")
	t.Setenv("NEXT_PUBLIC_RETELL_AGENT_ID", "agent_1")
	t.Setenv("RETELL_API_BASE_URL", "http://localhost:9999/")
	t.Setenv("RETELL_CALL_WS_ENDPOINT", "ws://localhost:9998/call")
	t.Setenv("RETELL_FETCH_TIMEOUT", "0")
	t.Setenv("RETELL_DEBUG_LEVEL", "debug")
	t.Setenv("RETELL_DEBUG_WEBSOCKET", "true")

	cfg := LoadConfig(missingEnvFile(t))
	if cfg.APIKey != "key_abc" || cfg.AgentID != "agent_1" || cfg.AgentIDLabel() != "agent_1" {
		t.Fatalf("unexpected credentials %+v", cfg)
	}
	if cfg.APIBaseURL != "http://localhost:9999" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.APIBaseURL)
	}
	if cfg.FetchTimeoutDuration() != 0 {
		t.Fatalf("zero timeout should disable it, got %s", cfg.FetchTimeoutDuration())
	}
	if cfg.DebugLevel != "DEBUG" || !cfg.DebugWebsocket {
		t.Fatalf("unexpected debug settings %q %v", cfg.DebugLevel, cfg.DebugWebsocket)
	}
	if issues := cfg.Validate(); len(issues) != 0 {
		t.Fatalf("expected valid config, got %v", issues)
	}
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("RETELL_API_KEY", "from_env")

	path := filepath.Join(t.TempDir(), ".env")
	content := "RETELL_API_KEY=from_file\nNEXT_PUBLIC_RETELL_AGENT_ID=agent_from_file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg := LoadConfig(path)
	if cfg.AgentID != "agent_from_file" {
		t.Fatalf("expected agent from file, got %q", cfg.AgentID)
	}
	if cfg.APIKey != "from_env" {
		t.Fatalf("environment must win over file, got %q", cfg.APIKey)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		APIBaseURL:      "api.retellai.com",
		RegisterCallURL: "http://localhost:3000/api/register-call",
		CallWsEndpoint:  "http://not-a-socket",
		DebugLevel:      "LOUD",
	}

	issues := cfg.Validate()
	want := []string{
		"RETELL_API_KEY environment variable not set",
		MsgAgentIDNotSet,
		"Invalid API base URL: api.retellai.com",
		"Invalid call WebSocket endpoint format",
		"Invalid debug level: LOUD",
	}
	if len(issues) != len(want) {
		t.Fatalf("expected %v, got %v", want, issues)
	}
	for i := range want {
		if issues[i] != want[i] {
			t.Fatalf("issue %d: expected %q, got %q", i, want[i], issues[i])
		}
	}
}

func TestPrintConfigMasksAPIKey(t *testing.T) {
	cfg := &Config{APIKey: "key_1234567890abcd", AgentID: "agent_1", FetchTimeout: 30, DebugLevel: "INFO"}

	var buf bytes.Buffer
	cfg.PrintConfig(&buf)
	out := buf.String()
	if strings.Contains(out, "key_1234567890abcd") {
		t.Fatal("API key printed in clear")
	}
	if !strings.Contains(out, "API Key: key_****abcd") || !strings.Contains(out, "Agent ID: agent_1") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := map[string]string{
		"":                   "NOT SET",
		"short":              "****",
		"key_1234567890abcd": "key_****abcd",
	}
	for in, want := range tests {
		if got := MaskSecret(in); got != want {
			t.Fatalf("MaskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}
