package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nalgeon/be"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	be.Equal(t, cfg.Cache.TTL.Std(), 5*time.Minute)
	be.Equal(t, cfg.Cache.EnrichTimeout.Std(), 5*time.Second)
	be.Equal(t, cfg.Scripts.SearchTimeout.Std(), 8*time.Second)
	be.Equal(t, cfg.Scripts.LongTimeout.Std(), 30*time.Second)
	be.Equal(t, cfg.LogLevel, "info")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	be.Err(t, err, nil)
	be.Equal(t, cfg, Default())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pimbridge.yaml")
	content := `
cache:
  ttl: 10m
scripts:
  search_timeout: 2s
mail:
  imap_addr: imap.example.com:993
log_level: debug
`
	be.Err(t, os.WriteFile(path, []byte(content), 0o644), nil)

	cfg, err := Load(path)
	be.Err(t, err, nil)
	be.Equal(t, cfg.Cache.TTL.Std(), 10*time.Minute)
	be.Equal(t, cfg.Cache.EnrichTimeout.Std(), 5*time.Second)
	be.Equal(t, cfg.Scripts.SearchTimeout.Std(), 2*time.Second)
	be.Equal(t, cfg.Mail.IMAPAddr, "imap.example.com:993")
	be.Equal(t, cfg.LogLevel, "debug")
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pimbridge.yaml")
	be.Err(t, os.WriteFile(path, []byte("cache:\n  ttl: not-a-duration\n"), 0o644), nil)

	_, err := Load(path)
	be.Err(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(envCacheTTL, "1m")
	t.Setenv(envSearchTimeout, "4s")
	t.Setenv(envLogLevel, "warn")

	cfg, err := Load("")
	be.Err(t, err, nil)
	be.Equal(t, cfg.Cache.TTL.Std(), time.Minute)
	be.Equal(t, cfg.Scripts.SearchTimeout.Std(), 4*time.Second)
	be.Equal(t, cfg.LogLevel, "warn")
}

func TestEnvOverridesIgnoreBadDuration(t *testing.T) {
	t.Setenv(envCacheTTL, "banana")

	cfg, err := Load("")
	be.Err(t, err, nil)
	be.Equal(t, cfg.Cache.TTL.Std(), 5*time.Minute)
}

func TestValidateRejectsNonPositive(t *testing.T) {
	cfg := Default()
	cfg.Cache.TTL = 0
	be.Err(t, cfg.validate())
}
