// Package config loads the deck generator's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ramonehamilton/commander-deckgen/internal/cards/scryfall"
	"github.com/ramonehamilton/commander-deckgen/internal/llm"
	"github.com/ramonehamilton/commander-deckgen/internal/prompt"
	"github.com/ramonehamilton/commander-deckgen/internal/refinement"
	"github.com/ramonehamilton/commander-deckgen/internal/storage"
	"github.com/ramonehamilton/commander-deckgen/internal/synergy"
	"github.com/ramonehamilton/commander-deckgen/internal/validation"
)

// Environment variables holding secrets. They are never read from or written to the file.
const (
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvPerplexityKey = "PERPLEXITY_API_KEY"
	EnvGeminiKey     = "GEMINI_API_KEY"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	LLM        LLMConfig        `toml:"llm"`
	Scryfall   ScryfallConfig   `toml:"scryfall"`
	EDHREC     EDHRECConfig     `toml:"edhrec"`
	Validation ValidationConfig `toml:"validation"`
	Refinement RefinementConfig `toml:"refinement"`
	Guardrails GuardrailsConfig `toml:"guardrails"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	Cache      CacheConfig      `toml:"cache"`
	Log        LogConfig        `toml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr             string   `toml:"addr"`
	AllowedOrigins   []string `toml:"allowed_origins"`   // CORS and websocket origins, empty allows all
	RequestTimeout   string   `toml:"request_timeout"`   // Whole-session deadline (e.g., "5m")
	MaxConversations int      `toml:"max_conversations"` // Conversations kept in memory
}

// LLMConfig selects the generation backend.
type LLMConfig struct {
	Provider      string  `toml:"provider"` // ollama, openai or gemini
	Model         string  `toml:"model"`
	BaseURL       string  `toml:"base_url"`
	Timeout       string  `toml:"timeout"`
	Temperature   float64 `toml:"temperature"`
	HistoryWindow int     `toml:"history_window"`  // Conversation turns sent with each request
	AutoPullModel bool    `toml:"auto_pull_model"` // Ollama only

	// APIKey comes from the environment.
	APIKey string `toml:"-"`
}

// ScryfallConfig contains card reference service settings.
type ScryfallConfig struct {
	BaseURL   string `toml:"base_url"`
	Timeout   string `toml:"timeout"`
	RateLimit string `toml:"rate_limit"` // Minimum spacing between requests
	UserAgent string `toml:"user_agent"`
}

// EDHRECConfig contains synergy hint settings.
type EDHRECConfig struct {
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// ValidationConfig holds the rescue thresholds.
type ValidationConfig struct {
	MinRescueConfidence int `toml:"min_rescue_confidence"` // 0-100
	AmbiguityMargin     int `toml:"ambiguity_margin"`
	RescueConcurrency   int `toml:"rescue_concurrency"`
}

// RefinementConfig bounds a refinement session.
type RefinementConfig struct {
	MaxAttempts         int    `toml:"max_attempts"`
	MaxInfraRetries     int    `toml:"max_infra_retries"`
	InfraRetryBaseDelay string `toml:"infra_retry_base_delay"`
}

// GuardrailsConfig screens user input.
type GuardrailsConfig struct {
	MaxInputLength   int      `toml:"max_input_length"`
	ForbiddenPhrases []string `toml:"forbidden_phrases"`
}

// TelemetryConfig controls where attempt summaries go.
type TelemetryConfig struct {
	Enabled   bool   `toml:"enabled"`
	DBPath    string `toml:"db_path"`    // SQLite store, empty disables it
	JSONLPath string `toml:"jsonl_path"` // Append-only log, empty disables it
	Retention string `toml:"retention"`  // Rows older than this are pruned, "0" keeps all
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"` // Cache synergy hints
	TTL     string `toml:"ttl"`     // Cache TTL (e.g., "24h")
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level       string `toml:"level"`       // debug, info, warn, error
	Development bool   `toml:"development"` // Console encoder with caller info
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	guards := prompt.DefaultGuardrails()
	return &Config{
		Server: ServerConfig{
			Addr:             "127.0.0.1:8080",
			RequestTimeout:   "5m",
			MaxConversations: 1000,
		},
		LLM: LLMConfig{
			Provider:      llm.ProviderOllama,
			Model:         "",
			Timeout:       "120s",
			Temperature:   0.7,
			HistoryWindow: 4,
		},
		Scryfall: ScryfallConfig{
			BaseURL:   "https://api.scryfall.com",
			Timeout:   "10s",
			RateLimit: "100ms",
			UserAgent: "commander-deckgen/1.0",
		},
		EDHREC: EDHRECConfig{
			Enabled: true,
			BaseURL: "https://json.edhrec.com/pages",
			Timeout: "10s",
		},
		Validation: ValidationConfig{
			MinRescueConfidence: 60,
			AmbiguityMargin:     10,
			RescueConcurrency:   4,
		},
		Refinement: RefinementConfig{
			MaxAttempts:         3,
			MaxInfraRetries:     2,
			InfraRetryBaseDelay: "500ms",
		},
		Guardrails: GuardrailsConfig{
			MaxInputLength:   guards.MaxInputLength,
			ForbiddenPhrases: guards.ForbiddenPhrases,
		},
		Telemetry: TelemetryConfig{
			Enabled:   true,
			Retention: "720h",
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     "24h",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultDir returns ~/.commander-deckgen, creating it if needed.
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".commander-deckgen")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return dir, nil
}

// DefaultPath returns the path to the default configuration file.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the configuration at path. Keys missing from the file keep their
// defaults, and a missing file yields DefaultConfig. Secrets are then read
// from the environment.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	config.ApplyEnv()
	return config, nil
}

// ApplyEnv fills secrets from the environment for the selected provider.
func (c *Config) ApplyEnv() {
	switch c.LLM.Provider {
	case llm.ProviderOpenAI:
		if key := os.Getenv(EnvPerplexityKey); key != "" {
			c.LLM.APIKey = key
		}
		if key := os.Getenv(EnvOpenAIKey); key != "" {
			c.LLM.APIKey = key
		}
	case llm.ProviderGemini:
		if key := os.Getenv(EnvGeminiKey); key != "" {
			c.LLM.APIKey = key
		}
	}
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	durations := []struct {
		name  string
		value string
	}{
		{"server.request_timeout", c.Server.RequestTimeout},
		{"llm.timeout", c.LLM.Timeout},
		{"scryfall.timeout", c.Scryfall.Timeout},
		{"scryfall.rate_limit", c.Scryfall.RateLimit},
		{"edhrec.timeout", c.EDHREC.Timeout},
		{"refinement.infra_retry_base_delay", c.Refinement.InfraRetryBaseDelay},
		{"telemetry.retention", c.Telemetry.Retention},
		{"cache.ttl", c.Cache.TTL},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.value, err)
		}
		if v < 0 {
			return fmt.Errorf("%s cannot be negative: %s", d.name, d.value)
		}
	}

	switch c.LLM.Provider {
	case llm.ProviderOllama, llm.ProviderOpenAI, llm.ProviderGemini:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be between 0 and 2: %g", c.LLM.Temperature)
	}
	if c.LLM.HistoryWindow < 0 {
		return fmt.Errorf("history window cannot be negative: %d", c.LLM.HistoryWindow)
	}

	if c.Refinement.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1: %d", c.Refinement.MaxAttempts)
	}
	if c.Refinement.MaxInfraRetries < 0 {
		return fmt.Errorf("max infra retries cannot be negative: %d", c.Refinement.MaxInfraRetries)
	}

	v := c.Validation
	if v.MinRescueConfidence < 0 || v.MinRescueConfidence > 100 {
		return fmt.Errorf("min rescue confidence must be between 0 and 100: %d", v.MinRescueConfidence)
	}
	if v.AmbiguityMargin < 0 {
		return fmt.Errorf("ambiguity margin cannot be negative: %d", v.AmbiguityMargin)
	}
	if v.RescueConcurrency < 1 {
		return fmt.Errorf("rescue concurrency must be at least 1: %d", v.RescueConcurrency)
	}

	if c.Guardrails.MaxInputLength < 0 {
		return fmt.Errorf("max input length cannot be negative: %d", c.Guardrails.MaxInputLength)
	}
	if c.Server.MaxConversations < 0 {
		return fmt.Errorf("max conversations cannot be negative: %d", c.Server.MaxConversations)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// mustDuration parses a value Validate has already accepted. Invalid values yield 0.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// GetRequestTimeout returns the whole-session deadline.
func (c *Config) GetRequestTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Server.RequestTimeout)
}

// GetCacheTTL returns the cache TTL as a duration.
func (c *Config) GetCacheTTL() (time.Duration, error) {
	return time.ParseDuration(c.Cache.TTL)
}

// GetRetention returns how long telemetry rows are kept. 0 keeps them forever.
func (c *Config) GetRetention() (time.Duration, error) {
	return time.ParseDuration(c.Telemetry.Retention)
}

// LLMClientConfig converts the [llm] section for llm.New.
func (c *Config) LLMClientConfig() llm.Config {
	return llm.Config{
		Provider:      c.LLM.Provider,
		Model:         c.LLM.Model,
		BaseURL:       c.LLM.BaseURL,
		APIKey:        c.LLM.APIKey,
		Timeout:       mustDuration(c.LLM.Timeout),
		Temperature:   c.LLM.Temperature,
		AutoPullModel: c.LLM.AutoPullModel,
	}
}

// ScryfallClientConfig converts the [scryfall] section.
func (c *Config) ScryfallClientConfig() *scryfall.Config {
	sc := scryfall.DefaultConfig()
	if c.Scryfall.BaseURL != "" {
		sc.BaseURL = c.Scryfall.BaseURL
	}
	if d := mustDuration(c.Scryfall.Timeout); d > 0 {
		sc.Timeout = d
	}
	if d := mustDuration(c.Scryfall.RateLimit); d > 0 {
		sc.RateLimit = d
	}
	if c.Scryfall.UserAgent != "" {
		sc.UserAgent = c.Scryfall.UserAgent
	}
	return sc
}

// EDHRECClientConfig converts the [edhrec] and [cache] sections.
func (c *Config) EDHRECClientConfig() *synergy.Config {
	ec := synergy.DefaultConfig()
	if c.EDHREC.BaseURL != "" {
		ec.BaseURL = c.EDHREC.BaseURL
	}
	if d := mustDuration(c.EDHREC.Timeout); d > 0 {
		ec.Timeout = d
	}
	ec.CacheTTL = 0
	if c.Cache.Enabled {
		ec.CacheTTL = mustDuration(c.Cache.TTL)
	}
	return ec
}

// ValidationPolicy converts the [validation] section.
func (c *Config) ValidationPolicy() validation.Policy {
	return validation.Policy{
		MinRescueConfidence: c.Validation.MinRescueConfidence,
		AmbiguityMargin:     c.Validation.AmbiguityMargin,
		RescueConcurrency:   c.Validation.RescueConcurrency,
	}
}

// RefinementPolicy converts the [refinement] section.
func (c *Config) RefinementPolicy() refinement.Config {
	return refinement.Config{
		MaxAttempts:         c.Refinement.MaxAttempts,
		MaxInfraRetries:     c.Refinement.MaxInfraRetries,
		InfraRetryBaseDelay: mustDuration(c.Refinement.InfraRetryBaseDelay),
	}
}

// InputGuardrails converts the [guardrails] section.
func (c *Config) InputGuardrails() prompt.Guardrails {
	return prompt.Guardrails{
		MaxInputLength:   c.Guardrails.MaxInputLength,
		ForbiddenPhrases: append([]string(nil), c.Guardrails.ForbiddenPhrases...),
	}
}

// StorageConfig returns the telemetry database settings, or nil when the
// SQLite store is disabled.
func (c *Config) StorageConfig() *storage.Config {
	if !c.Telemetry.Enabled || c.Telemetry.DBPath == "" {
		return nil
	}
	sc := storage.DefaultConfig(c.Telemetry.DBPath)
	sc.AutoMigrate = true
	return sc
}
