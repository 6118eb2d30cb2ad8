package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramonehamilton/commander-deckgen/internal/llm"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Refinement.MaxAttempts)
	assert.Equal(t, 2, cfg.Refinement.MaxInfraRetries)
	assert.Equal(t, 60, cfg.Validation.MinRescueConfidence)
	assert.Equal(t, 10, cfg.Validation.AmbiguityMargin)
	assert.Equal(t, 1000, cfg.Guardrails.MaxInputLength)
	assert.Equal(t, 4, cfg.LLM.HistoryWindow)
	assert.Equal(t, llm.ProviderOllama, cfg.LLM.Provider)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[refinement]
max_attempts = 5

[validation]
min_rescue_confidence = 75

[server]
allowed_origins = ["http://localhost:5173"]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Refinement.MaxAttempts)
	assert.Equal(t, 2, cfg.Refinement.MaxInfraRetries)
	assert.Equal(t, 75, cfg.Validation.MinRescueConfidence)
	assert.Equal(t, 10, cfg.Validation.AmbiguityMargin)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "24h", cfg.Cache.TTL)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[refinement\nmax_attempts = "), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := DefaultConfig()
	cfg.LLM.Provider = llm.ProviderGemini
	cfg.LLM.Model = "gemini-2.5-flash"
	cfg.LLM.APIKey = "secret"
	cfg.Telemetry.DBPath = "/tmp/deckgen.db"

	require.NoError(t, cfg.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")

	t.Setenv(EnvGeminiKey, "")
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", loaded.LLM.Model)
	assert.Equal(t, "/tmp/deckgen.db", loaded.Telemetry.DBPath)
	assert.Empty(t, loaded.LLM.APIKey)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvPerplexityKey, "pplx-key")
	t.Setenv(EnvOpenAIKey, "")
	t.Setenv(EnvGeminiKey, "gemini-key")

	cfg := DefaultConfig()
	cfg.LLM.Provider = llm.ProviderOpenAI
	cfg.ApplyEnv()
	assert.Equal(t, "pplx-key", cfg.LLM.APIKey)

	t.Setenv(EnvOpenAIKey, "openai-key")
	cfg.ApplyEnv()
	assert.Equal(t, "openai-key", cfg.LLM.APIKey)

	cfg = DefaultConfig()
	cfg.LLM.Provider = llm.ProviderGemini
	cfg.ApplyEnv()
	assert.Equal(t, "gemini-key", cfg.LLM.APIKey)

	cfg = DefaultConfig()
	cfg.ApplyEnv()
	assert.Empty(t, cfg.LLM.APIKey, "ollama needs no key")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad timeout", func(c *Config) { c.LLM.Timeout = "soon" }},
		{"negative ttl", func(c *Config) { c.Cache.TTL = "-1h" }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "markov" }},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }},
		{"zero attempts", func(c *Config) { c.Refinement.MaxAttempts = 0 }},
		{"negative infra retries", func(c *Config) { c.Refinement.MaxInfraRetries = -1 }},
		{"confidence above 100", func(c *Config) { c.Validation.MinRescueConfidence = 101 }},
		{"zero concurrency", func(c *Config) { c.Validation.RescueConcurrency = 0 }},
		{"negative input length", func(c *Config) { c.Guardrails.MaxInputLength = -1 }},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Refinement.InfraRetryBaseDelay = "250ms"
	cfg.Scryfall.Timeout = "3s"
	cfg.LLM.Timeout = "45s"

	rc := cfg.RefinementPolicy()
	assert.Equal(t, 3, rc.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, rc.InfraRetryBaseDelay)

	assert.Equal(t, 3*time.Second, cfg.ScryfallClientConfig().Timeout)
	assert.Equal(t, 45*time.Second, cfg.LLMClientConfig().Timeout)
	assert.False(t, cfg.LLMClientConfig().AutoPullModel)
	cfg.LLM.AutoPullModel = true
	assert.True(t, cfg.LLMClientConfig().AutoPullModel)
	assert.Equal(t, 24*time.Hour, cfg.EDHRECClientConfig().CacheTTL)

	cfg.Cache.Enabled = false
	assert.Zero(t, cfg.EDHRECClientConfig().CacheTTL)

	p := cfg.ValidationPolicy()
	assert.Equal(t, 60, p.MinRescueConfidence)
	assert.Equal(t, 4, p.RescueConcurrency)

	g := cfg.InputGuardrails()
	assert.Equal(t, 1000, g.MaxInputLength)
	assert.NotEmpty(t, g.ForbiddenPhrases)

	assert.Nil(t, cfg.StorageConfig())
	cfg.Telemetry.DBPath = filepath.Join(t.TempDir(), "t.db")
	sc := cfg.StorageConfig()
	require.NotNil(t, sc)
	assert.True(t, sc.AutoMigrate)
	cfg.Telemetry.Enabled = false
	assert.Nil(t, cfg.StorageConfig())
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, DefaultConfig().Save(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(c *Config) { reloaded <- c })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x = 1"), 0o644))

	cfg := DefaultConfig()
	cfg.Refinement.MaxAttempts = 7
	require.NoError(t, cfg.Save(path))

	select {
	case c := <-reloaded:
		assert.Equal(t, 7, c.Refinement.MaxAttempts)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatch_SkipsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, DefaultConfig().Save(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	go func() { _ = Watch(ctx, path, nil, func(c *Config) { reloaded <- c }) }()
	time.Sleep(100 * time.Millisecond)

	bad := DefaultConfig()
	bad.Refinement.MaxAttempts = 0
	require.NoError(t, bad.Save(path))

	select {
	case <-reloaded:
		t.Fatal("invalid config must not be delivered")
	case <-time.After(500 * time.Millisecond):
	}
}
