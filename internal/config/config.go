package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultRetention      = 30 * 24 * time.Hour
)

type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Access  AccessConfig
	Content ContentConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port           int
	AllowedOrigins []string
	// Debug adds operator diagnostics (route, source, upstream error) to responses.
	Debug bool
}

type LLMConfig struct {
	BaseURL string
	APIKey  string
	// Models is tried in order; a single entry means exactly one attempt per call.
	Models            []string
	Temperature       float64
	Timeout           string
	MaxTokensBrief    int
	MaxTokensSprint   int
	MaxTokensFollowup int
}

type AccessConfig struct {
	Passcode string
}

type ContentConfig struct {
	// Path to a YAML content pack. Empty selects the embedded default pack.
	Path string
}

type StorageConfig struct {
	Enabled bool
	DataDir string
	// Retention is how long audited interactions are kept. "0" keeps them
	// forever.
	Retention string
}

type LogConfig struct {
	Level string
}

// Configured reports whether a completion credential is available.
func (c LLMConfig) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// RequestTimeout parses Timeout, falling back to 10s on empty or invalid values.
func (c LLMConfig) RequestTimeout() time.Duration {
	if c.Timeout == "" {
		return defaultRequestTimeout
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		fmt.Fprintf(os.Stderr, "[WARN] invalid llm.timeout %q, using %s\n", c.Timeout, defaultRequestTimeout)
		return defaultRequestTimeout
	}
	return d
}

// RetentionPeriod parses Retention. Zero means interactions are never swept;
// empty or invalid values fall back to 30 days.
func (c StorageConfig) RetentionPeriod() time.Duration {
	if c.Retention == "" {
		return defaultRetention
	}
	if c.Retention == "0" {
		return 0
	}
	d, err := time.ParseDuration(c.Retention)
	if err != nil || d < 0 {
		fmt.Fprintf(os.Stderr, "[WARN] invalid storage.retention %q, using %s\n", c.Retention, defaultRetention)
		return defaultRetention
	}
	return d
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           8787,
			AllowedOrigins: []string{"*"},
		},
		LLM: LLMConfig{
			BaseURL:           "https://api.openai.com/v1",
			Models:            []string{"gpt-4o-mini"},
			Temperature:       0.3,
			Timeout:           "10s",
			MaxTokensBrief:    220,
			MaxTokensSprint:   500,
			MaxTokensFollowup: 300,
		},
		Storage: StorageConfig{
			Enabled:   true,
			DataDir:   defaultDataDir(),
			Retention: "720h",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend, an optional .env file
// in the working directory, and environment variables, in that order of
// increasing precedence.
//
// The file backend lives at $XDG_CONFIG_HOME/skillsprint/config.json.
// Variables already present in the process environment are never replaced by
// values from .env.
//
// A missing API key is not an error: the completion gateway then reports
// itself as not configured and every reply comes from the fallback library.
func Load() (Config, error) {
	var envFiles []string
	if _, err := os.Stat(".env"); err == nil {
		envFiles = append(envFiles, ".env")
	}
	return loadWith(newPlatformBackend(), envFiles)
}

func loadWith(b ConfigBackend, envFiles []string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return Config{}, fmt.Errorf("loading env file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", cfg.Server.Port)
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("invalid config: llm.temperature %v must be within [0, 2]", cfg.LLM.Temperature)
	}
	if len(cfg.LLM.Models) == 0 {
		return fmt.Errorf("invalid config: llm.models must name at least one model")
	}
	if cfg.LLM.MaxTokensBrief <= 0 || cfg.LLM.MaxTokensSprint <= 0 || cfg.LLM.MaxTokensFollowup <= 0 {
		return fmt.Errorf("invalid config: llm.max_tokens_* must be positive")
	}
	return nil
}
