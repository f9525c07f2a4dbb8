package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"

	"github.com/thehoang-x-five/Rag-OCR/internal/ai"
	logging "github.com/thehoang-x-five/Rag-OCR/internal/logging"
)

// Config is the merged ragocr configuration: file values over defaults,
// environment credentials over both.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Enhancement EnhancementConfig `json:"enhancement"`
	Providers   ProvidersConfig   `json:"providers"`
	Log         LogConfig         `json:"log"`
}

type ServerConfig struct {
	Port int `json:"port"`
}

type EnhancementConfig struct {
	Enabled                *bool  `json:"enabled,omitempty"`
	TimeoutSeconds         int    `json:"timeoutSeconds"`
	MaxRetries             int    `json:"maxRetries"`
	UseVisionWhenAvailable *bool  `json:"useVisionWhenAvailable,omitempty"`
	TargetLanguage         string `json:"targetLanguage"`
}

// IsEnabled resolves the tri-state pointer; absent means enabled.
func (e EnhancementConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// VisionPreferred resolves the tri-state pointer; absent means preferred.
func (e EnhancementConfig) VisionPreferred() bool {
	return e.UseVisionWhenAvailable == nil || *e.UseVisionWhenAvailable
}

// ProvidersConfig carries the priority string plus one settings block per
// vendor. A provider absent from the priority list is disabled.
type ProvidersConfig struct {
	// Priority looks like "groq:1,deepseek:2,gemini:3,localllm:4".
	Priority string           `json:"priority"`
	Groq     ProviderSettings `json:"groq"`
	DeepSeek ProviderSettings `json:"deepseek"`
	Gemini   ProviderSettings `json:"gemini"`
	LocalLLM ProviderSettings `json:"localllm"`
}

type ProviderSettings struct {
	APIKey      string `json:"apiKey,omitempty"`
	BaseURL     string `json:"baseURL,omitempty"`
	Model       string `json:"model,omitempty"`
	VisionModel string `json:"visionModel,omitempty"`
	CoderModel  string `json:"coderModel,omitempty"`
}

type LogConfig struct {
	Level string `json:"level"`
}

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{Port: 8090},
		Enhancement: EnhancementConfig{
			TimeoutSeconds: 30,
			MaxRetries:     2,
			TargetLanguage: "auto",
		},
		Providers: ProvidersConfig{
			Priority: "groq:1,deepseek:2,gemini:3,localllm:4",
			Groq: ProviderSettings{
				BaseURL:     "https://api.groq.com/openai/v1",
				Model:       "llama-3.3-70b-versatile",
				VisionModel: "llama-3.2-90b-vision-preview",
			},
			DeepSeek: ProviderSettings{
				BaseURL:    "https://api.deepseek.com/v1",
				Model:      "deepseek-chat",
				CoderModel: "deepseek-coder",
			},
			Gemini: ProviderSettings{
				BaseURL:     "https://generativelanguage.googleapis.com/v1beta",
				Model:       "gemini-1.5-flash",
				VisionModel: "gemini-1.5-flash",
			},
			LocalLLM: ProviderSettings{
				BaseURL:     "http://localhost:11434/api",
				Model:       "qwen2.5:7b",
				VisionModel: "llava:7b",
			},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configuration from path (if it exists), merges defaults into
// the gaps, and applies environment overrides. A missing file is not an
// error; the defaults plus environment carry a full configuration.
func Load(path string) (*Config, error) {
	cfg := Config{}

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		logging.L_debug("config loaded from file", "path", path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	defaults := Defaults()
	if err := mergo.Merge(&cfg, defaults); err != nil {
		return nil, fmt.Errorf("merge defaults: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv layers environment credentials and endpoints over the config.
// Credentials live in the environment by convention; the file never needs
// to hold a key.
func (c *Config) applyEnv() {
	envString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envString("GROQ_API_KEY", &c.Providers.Groq.APIKey)
	envString("DEEPSEEK_API_KEY", &c.Providers.DeepSeek.APIKey)
	envString("GEMINI_API_KEY", &c.Providers.Gemini.APIKey)
	envString("LOCALLLM_BASE_URL", &c.Providers.LocalLLM.BaseURL)

	if v := os.Getenv("AI_PROVIDER_PRIORITY"); v != "" {
		c.Providers.Priority = v
	}
	if v := os.Getenv("AI_ENHANCEMENT_ENABLED"); v != "" {
		enabled := v == "1" || strings.EqualFold(v, "true")
		c.Enhancement.Enabled = &enabled
	}
}

// Validate checks what cannot be defaulted away.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Enhancement.TimeoutSeconds <= 0 {
		return fmt.Errorf("enhancement timeout must be positive, got %d", c.Enhancement.TimeoutSeconds)
	}
	if c.Enhancement.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative, got %d", c.Enhancement.MaxRetries)
	}
	if _, err := ParsePriorities(c.Providers.Priority); err != nil {
		return err
	}
	return nil
}

// ParsePriorities parses "name:priority" pairs. Whitespace around either
// side is tolerated; an empty string means no provider is enabled.
func ParsePriorities(s string) (map[string]int, error) {
	priorities := make(map[string]int)
	if strings.TrimSpace(s) == "" {
		return priorities, nil
	}

	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, prioStr, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid priority entry %q, expected name:number", pair)
		}
		prio, err := strconv.Atoi(strings.TrimSpace(prioStr))
		if err != nil {
			return nil, fmt.Errorf("invalid priority for %q: %w", strings.TrimSpace(name), err)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if _, dup := priorities[name]; dup {
			return nil, fmt.Errorf("duplicate priority entry for %q", name)
		}
		priorities[name] = prio
	}
	return priorities, nil
}

// ResolveProviders turns the configuration into the adapter config list.
// Providers absent from the priority string come back disabled; providers
// listed but missing a required credential stay enabled and fail adapter
// construction, which the registry logs and skips.
func (c *Config) ResolveProviders() ([]ai.ProviderConfig, error) {
	priorities, err := ParsePriorities(c.Providers.Priority)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(c.Enhancement.TimeoutSeconds) * time.Second

	build := func(name string, s ProviderSettings) ai.ProviderConfig {
		prio, listed := priorities[name]
		return ai.ProviderConfig{
			Name:        name,
			Enabled:     listed,
			APIKey:      s.APIKey,
			BaseURL:     s.BaseURL,
			Model:       s.Model,
			VisionModel: s.VisionModel,
			CoderModel:  s.CoderModel,
			Priority:    prio,
			Timeout:     timeout,
			MaxRetries:  c.Enhancement.MaxRetries,
		}
	}

	configs := []ai.ProviderConfig{
		build(ai.ProviderGroq, c.Providers.Groq),
		build(ai.ProviderDeepSeek, c.Providers.DeepSeek),
		build(ai.ProviderGemini, c.Providers.Gemini),
		build(ai.ProviderLocalLLM, c.Providers.LocalLLM),
	}

	enabled := 0
	for _, pc := range configs {
		if pc.Enabled {
			enabled++
		}
	}
	logging.L_info("provider configs resolved", "total", len(configs), "enabled", enabled)
	return configs, nil
}
