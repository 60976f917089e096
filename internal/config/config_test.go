//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsAndValidation(t *testing.T) {
	t.Run("fills defaults", func(t *testing.T) {
		path := writeConfig(t, `
bot:
  token: "t"
database:
  url: "postgres://localhost/db"
redis:
  url: "localhost:6379"
`)
		cfg, err := Load(path, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Bot.Workers != 8 {
			t.Errorf("expected 8 workers, got %d", cfg.Bot.Workers)
		}
		if cfg.Redis.StateTTL != 30*time.Minute {
			t.Errorf("expected 30m state ttl, got %v", cfg.Redis.StateTTL)
		}
		if cfg.Rates.CacheTTL != time.Minute {
			t.Errorf("expected 1m rate cache, got %v", cfg.Rates.CacheTTL)
		}
		if cfg.Payment.TonConnect.ListenTimeout != 120*time.Second {
			t.Errorf("expected 120s listener timeout, got %v", cfg.Payment.TonConnect.ListenTimeout)
		}
		if !cfg.Runtime.Dev {
			t.Error("expected dev runtime flag")
		}
	})

	t.Run("requires bot token", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "")
		path := writeConfig(t, `
database:
  url: "postgres://localhost/db"
redis:
  url: "localhost:6379"
`)
		if _, err := Load(path, false); err == nil {
			t.Fatal("expected error for missing bot token")
		}
	})

	t.Run("environment overrides yaml", func(t *testing.T) {
		t.Setenv("BOT_TOKEN", "from-env")
		path := writeConfig(t, `
bot:
  token: "from-yaml"
database:
  url: "postgres://localhost/db"
redis:
  url: "localhost:6379"
`)
		cfg, err := Load(path, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Bot.Token != "from-env" {
			t.Errorf("expected env token, got %q", cfg.Bot.Token)
		}
	})

	t.Run("rejects bad encryption key length", func(t *testing.T) {
		t.Setenv("ENCRYPTION_KEY", "")
		path := writeConfig(t, `
bot:
  token: "t"
database:
  url: "postgres://localhost/db"
redis:
  url: "localhost:6379"
security:
  encryption_key: "short"
`)
		if _, err := Load(path, false); err == nil {
			t.Fatal("expected error for bad key length")
		}
	})
}
