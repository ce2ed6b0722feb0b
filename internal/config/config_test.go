package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mapBackend is an in-memory ConfigBackend.
type mapBackend struct {
	strs map[string]string
	ints map[string]int
}

func newMapBackend() *mapBackend {
	return &mapBackend{strs: map[string]string{}, ints: map[string]int{}}
}

func (m *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m.strs[key]
	return v, ok, nil
}

func (m *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.ints[key]
	return v, ok, nil
}

func (m *mapBackend) SetString(key, val string) error { m.strs[key] = val; return nil }
func (m *mapBackend) SetInt(key string, val int) error  { m.ints[key] = val; return nil }
func (m *mapBackend) Delete(key string) error {
	delete(m.strs, key)
	delete(m.ints, key)
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		if s.env != "" {
			t.Setenv(s.env, "")
		}
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMapBackend(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8787 {
		t.Errorf("Server.Port = %d, want 8787", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("Server.AllowedOrigins = %v, want [*]", cfg.Server.AllowedOrigins)
	}
	if cfg.LLM.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("LLM.BaseURL = %q", cfg.LLM.BaseURL)
	}
	if len(cfg.LLM.Models) != 1 || cfg.LLM.Models[0] != "gpt-4o-mini" {
		t.Errorf("LLM.Models = %v, want [gpt-4o-mini]", cfg.LLM.Models)
	}
	if cfg.LLM.Temperature != 0.3 {
		t.Errorf("LLM.Temperature = %v, want 0.3", cfg.LLM.Temperature)
	}
	if cfg.LLM.RequestTimeout() != 10*time.Second {
		t.Errorf("RequestTimeout() = %s, want 10s", cfg.LLM.RequestTimeout())
	}
	if cfg.LLM.MaxTokensBrief != 220 || cfg.LLM.MaxTokensSprint != 500 || cfg.LLM.MaxTokensFollowup != 300 {
		t.Errorf("max tokens = %d/%d/%d, want 220/500/300",
			cfg.LLM.MaxTokensBrief, cfg.LLM.MaxTokensSprint, cfg.LLM.MaxTokensFollowup)
	}
	if !cfg.Storage.Enabled {
		t.Error("Storage.Enabled = false, want true")
	}
	if cfg.Storage.RetentionPeriod() != 720*time.Hour {
		t.Errorf("RetentionPeriod() = %s, want 720h", cfg.Storage.RetentionPeriod())
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestMissingAPIKeyIsNotAnError(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMapBackend(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Configured() {
		t.Error("Configured() = true with no API key")
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := newMapBackend()
	b.ints["server.port"] = 9000
	b.strs["llm.models"] = "gpt-4o-mini, gpt-4o"
	b.strs["llm.temperature"] = "0.7"
	b.strs["server.debug"] = "true"
	b.strs["llm.timeout"] = "3s"

	cfg, err := loadWith(b, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if strings.Join(cfg.LLM.Models, "|") != "gpt-4o-mini|gpt-4o" {
		t.Errorf("LLM.Models = %v", cfg.LLM.Models)
	}
	if cfg.LLM.Temperature != 0.7 {
		t.Errorf("LLM.Temperature = %v, want 0.7", cfg.LLM.Temperature)
	}
	if !cfg.Server.Debug {
		t.Error("Server.Debug = false, want true")
	}
	if cfg.LLM.RequestTimeout() != 3*time.Second {
		t.Errorf("RequestTimeout() = %s, want 3s", cfg.LLM.RequestTimeout())
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("SKILLSPRINT_SERVER_PORT", "9100")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("SS_AI_PASSCODE", "letmein")

	b := newMapBackend()
	b.ints["server.port"] = 9000

	cfg, err := loadWith(b, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.LLM.APIKey != "sk-env" || !cfg.LLM.Configured() {
		t.Errorf("LLM.APIKey = %q, want sk-env", cfg.LLM.APIKey)
	}
	if cfg.Access.Passcode != "letmein" {
		t.Errorf("Access.Passcode = %q, want letmein", cfg.Access.Passcode)
	}
}

func TestSecretsIgnoredInBackend(t *testing.T) {
	clearEnv(t)

	b := newMapBackend()
	b.strs["llm.api_key"] = "sk-file"

	cfg, err := loadWith(b, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("LLM.APIKey = %q, want empty", cfg.LLM.APIKey)
	}
}

func TestInvalidEnvValueKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("SKILLSPRINT_SERVER_PORT", "not-a-number")

	cfg, err := loadWith(newMapBackend(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8787 {
		t.Errorf("Server.Port = %d, want 8787", cfg.Server.Port)
	}
}

func TestValidationRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"port out of range", "SKILLSPRINT_SERVER_PORT", "70000"},
		{"temperature too high", "SKILLSPRINT_LLM_TEMPERATURE", "3"},
		{"zero brief tokens", "SKILLSPRINT_LLM_MAX_TOKENS_BRIEF", "0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.env, tc.val)
			if _, err := loadWith(newMapBackend(), nil); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEnvFileDoesNotOverrideProcessEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-process")
	os.Unsetenv("SS_AI_PASSCODE")
	t.Cleanup(func() { os.Unsetenv("SS_AI_PASSCODE") })

	path := filepath.Join(t.TempDir(), ".env")
	content := "OPENAI_API_KEY=sk-dotenv\nSS_AI_PASSCODE=from-dotenv\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadWith(newMapBackend(), []string{path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "sk-process" {
		t.Errorf("LLM.APIKey = %q, want sk-process", cfg.LLM.APIKey)
	}
	if cfg.Access.Passcode != "from-dotenv" {
		t.Errorf("Access.Passcode = %q, want from-dotenv", cfg.Access.Passcode)
	}
}

func TestRequestTimeoutInvalid(t *testing.T) {
	c := LLMConfig{Timeout: "soon"}
	if got := c.RequestTimeout(); got != 10*time.Second {
		t.Errorf("RequestTimeout() = %s, want 10s", got)
	}
}

func TestRetentionPeriod(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", 720 * time.Hour},
		{"0", 0},
		{"48h", 48 * time.Hour},
		{"forever", 720 * time.Hour},
		{"-1h", 720 * time.Hour},
	}
	for _, tt := range tests {
		c := StorageConfig{Retention: tt.raw}
		if got := c.RetentionPeriod(); got != tt.want {
			t.Errorf("RetentionPeriod(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestShowAllMasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.LLM.APIKey = "sk-secret"

	for _, info := range ShowAll(cfg) {
		switch info.Key {
		case "llm.api_key":
			if info.Value != "(set)" {
				t.Errorf("llm.api_key shown as %q, want (set)", info.Value)
			}
		case "access.passcode":
			if info.Value != "(unset)" {
				t.Errorf("access.passcode shown as %q, want (unset)", info.Value)
			}
		case "llm.models":
			if info.Value != "gpt-4o-mini" {
				t.Errorf("llm.models shown as %q", info.Value)
			}
		}
	}
}

func TestSetKey(t *testing.T) {
	b := newMapBackend()

	if err := setKeyWith(b, "server.port", "9001"); err != nil {
		t.Fatalf("set port: %v", err)
	}
	if b.ints["server.port"] != 9001 {
		t.Errorf("server.port = %d, want 9001", b.ints["server.port"])
	}
	if err := setKeyWith(b, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKeyWith(b, "llm.temperature", "warm"); err == nil {
		t.Error("expected error for non-float temperature")
	}
	if err := setKeyWith(b, "llm.api_key", "sk"); err == nil {
		t.Error("expected error for secret key")
	}
	if err := setKeyWith(b, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skillsprint", "config.json")
	b := newFileBackend(path)
	if err := b.SetInt("server.port", 9200); err != nil {
		t.Fatal(err)
	}
	if err := b.SetString("llm.models", "a,b"); err != nil {
		t.Fatal(err)
	}

	reloaded := newFileBackend(path)
	port, ok, err := reloaded.GetInt("server.port")
	if err != nil || !ok || port != 9200 {
		t.Errorf("GetInt = %d, %v, %v", port, ok, err)
	}
	models, ok, _ := reloaded.GetString("llm.models")
	if !ok || models != "a,b" {
		t.Errorf("GetString = %q, %v", models, ok)
	}
}

func TestValidKeysExcludesSecrets(t *testing.T) {
	for _, k := range ValidKeys() {
		if k == "llm.api_key" || k == "access.passcode" {
			t.Errorf("ValidKeys contains secret %q", k)
		}
	}
}
