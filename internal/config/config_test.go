package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()

	fs := Flags()
	req.NoError(fs.Parse([]string{
		"--config", filepath.Join(dir, "missing.yaml"),
		"--env-file", filepath.Join(dir, "missing.env"),
	}))

	cfg, err := Load(fs)
	req.NoError(err)
	req.Equal("release", cfg.Mode)
	req.Equal(8080, cfg.Port)
	req.Equal("en", cfg.DefaultLanguage)
	req.Equal(54*time.Second, cfg.PingPeriod)
	req.Equal(10*time.Second, cfg.Enrichment.Timeout)
	req.True(cfg.Enrichment.CacheByLanguage)
	req.True(cfg.Fanout.Parallel)
	req.Equal(16, cfg.Fanout.MaxWorkers)
	req.Equal(64, cfg.Fanout.OutboxSize)
	req.Equal(20, cfg.RateLimit.Messages)
	req.Empty(cfg.Translator.Key)
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()

	yaml := []byte(`
mode: debug
port: 9000
default_language: fr
enrichment:
  timeout: 3s
  cache_by_language: false
fanout:
  max_workers: 4
translator:
  endpoint: https://translator.example.com
  region: westeurope
`)
	cfgPath := filepath.Join(dir, "config.yaml")
	req.NoError(os.WriteFile(cfgPath, yaml, 0o600))

	envPath := filepath.Join(dir, ".env")
	req.NoError(os.WriteFile(envPath, []byte("PARLEY_TRANSLATOR_KEY=from-dotenv\n"), 0o600))
	// registered so the variable godotenv sets is removed after the test
	t.Setenv("PARLEY_TRANSLATOR_KEY", "")
	req.NoError(os.Unsetenv("PARLEY_TRANSLATOR_KEY"))

	t.Setenv("PARLEY_FANOUT_KICK_SLOW", "true")
	t.Setenv("PARLEY_ENRICHMENT_TIMEOUT", "5s")

	fs := Flags()
	req.NoError(fs.Parse([]string{"--config", cfgPath, "--env-file", envPath, "--port", "9100"}))

	cfg, err := Load(fs)
	req.NoError(err)
	req.Equal("debug", cfg.Mode)
	req.Equal(9100, cfg.Port)
	req.Equal("fr", cfg.DefaultLanguage)
	req.Equal(5*time.Second, cfg.Enrichment.Timeout)
	req.False(cfg.Enrichment.CacheByLanguage)
	req.Equal(4, cfg.Fanout.MaxWorkers)
	req.True(cfg.Fanout.KickSlow)
	req.Equal("https://translator.example.com", cfg.Translator.Endpoint)
	req.Equal("westeurope", cfg.Translator.Region)
	req.Equal("from-dotenv", cfg.Translator.Key)
}

func TestLoad_Invalid(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	req.NoError(os.WriteFile(cfgPath, []byte("mode: chaos\n"), 0o600))

	fs := Flags()
	req.NoError(fs.Parse([]string{"--config", cfgPath, "--env-file", filepath.Join(dir, "none")}))

	_, err := Load(fs)
	req.ErrorContains(err, "invalid config")
}
