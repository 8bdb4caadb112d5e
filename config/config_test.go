package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
  "server": {"jwt_secret": "s3cret", "address": ":9000"},
  "storage": {
    "postgres": {"host": "localhost", "dbname": "vibeops", "user": "vibe"},
    "redis": {"host": "localhost"}
  },
  "payouts": {"min_coin_amount": 250},
  "scheduler": {"jobs": {"reconcile_balances": "30 * * * *"}}
}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":9000" {
		t.Fatalf("expected address from file, got %q", cfg.Server.Address)
	}
	if cfg.Server.TokenTTL != 24*time.Hour {
		t.Fatalf("expected default token ttl, got %s", cfg.Server.TokenTTL)
	}
	if cfg.Payouts.MinCoinAmount != 250 {
		t.Fatalf("expected min coin amount 250, got %d", cfg.Payouts.MinCoinAmount)
	}
	if cfg.Storage.Redis.Port != "6379" {
		t.Fatalf("expected default redis port, got %q", cfg.Storage.Redis.Port)
	}
	if cfg.Feed.PageSize != DefaultPageSize {
		t.Fatalf("expected page size %d, got %d", DefaultPageSize, cfg.Feed.PageSize)
	}
	if cfg.Realtime.ChannelPrefix != "ops:user:" {
		t.Fatalf("expected default channel prefix, got %q", cfg.Realtime.ChannelPrefix)
	}
	if cfg.Scheduler.Jobs["reconcile_balances"] != "30 * * * *" {
		t.Fatalf("expected job override, got %q", cfg.Scheduler.Jobs["reconcile_balances"])
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"storage": {"postgres": {"url": "postgres://x"}, "redis": {"host": "r"}}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VIBEOPS_SERVER_JWT_SECRET", "from-env")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.JWTSecret != "from-env" {
		t.Fatalf("expected jwt secret from env, got %q", cfg.Server.JWTSecret)
	}
}

func TestLoadConfigMissingSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"storage": {"postgres": {"url": "postgres://x"}, "redis": {"host": "r"}}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error without jwt secret")
	}
}
