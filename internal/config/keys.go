package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kList
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "SKILLSPRINT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.allowed_origins", typ: kList, env: "SKILLSPRINT_ALLOWED_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.AllowedOrigins = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Server.AllowedOrigins, ",") },
	},
	{
		key: "server.debug", typ: kBool, env: "SKILLSPRINT_DEBUG",
		apply:   func(cfg *Config, v any) { cfg.Server.Debug = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.Debug },
	},
	{
		key: "llm.base_url", typ: kString, env: "SKILLSPRINT_LLM_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.LLM.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.BaseURL },
	},
	{
		key: "llm.api_key", typ: kString, env: "OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.LLM.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.APIKey },
	},
	{
		key: "llm.models", typ: kList, env: "SKILLSPRINT_LLM_MODELS",
		apply:   func(cfg *Config, v any) { cfg.LLM.Models = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.LLM.Models, ",") },
	},
	{
		// 0 is honored: the gateway sends the smallest non-zero value since
		// the client library drops a literal 0.
		key: "llm.temperature", typ: kFloat, env: "SKILLSPRINT_LLM_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.LLM.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.LLM.Temperature },
	},
	{
		key: "llm.timeout", typ: kString, env: "SKILLSPRINT_LLM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.LLM.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Timeout },
	},
	{
		key: "llm.max_tokens_brief", typ: kInt, env: "SKILLSPRINT_LLM_MAX_TOKENS_BRIEF",
		apply:   func(cfg *Config, v any) { cfg.LLM.MaxTokensBrief = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MaxTokensBrief },
	},
	{
		key: "llm.max_tokens_sprint", typ: kInt, env: "SKILLSPRINT_LLM_MAX_TOKENS_SPRINT",
		apply:   func(cfg *Config, v any) { cfg.LLM.MaxTokensSprint = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MaxTokensSprint },
	},
	{
		key: "llm.max_tokens_followup", typ: kInt, env: "SKILLSPRINT_LLM_MAX_TOKENS_FOLLOWUP",
		apply:   func(cfg *Config, v any) { cfg.LLM.MaxTokensFollowup = v.(int) },
		extract: func(cfg Config) any { return cfg.LLM.MaxTokensFollowup },
	},
	{
		key: "access.passcode", typ: kString, env: "SS_AI_PASSCODE",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Access.Passcode = v.(string) },
		extract: func(cfg Config) any { return cfg.Access.Passcode },
	},
	{
		key: "content.path", typ: kString, env: "SKILLSPRINT_CONTENT_PATH",
		apply:   func(cfg *Config, v any) { cfg.Content.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Content.Path },
	},
	{
		key: "storage.enabled", typ: kBool, env: "SKILLSPRINT_STORAGE_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Storage.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Storage.Enabled },
	},
	{
		key: "storage.data_dir", typ: kString, env: "SKILLSPRINT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.retention", typ: kString, env: "SKILLSPRINT_STORAGE_RETENTION",
		apply:   func(cfg *Config, v any) { cfg.Storage.Retention = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Retention },
	},
	{
		key: "log.level", typ: kString, env: "SKILLSPRINT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kList:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if list := splitList(v); ok && len(list) > 0 {
				s.apply(cfg, list)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kList:
			if list := splitList(raw); len(list) > 0 {
				s.apply(cfg, list)
			}
		}
	}
}

// splitList splits a comma-separated value, dropping blank entries.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
