package config

import (
	"testing"
	"time"
)

func TestFeedNormalize(t *testing.T) {
	cfg := FeedConfig{CandidateLimit: 100000, FreshnessHalfLife: -time.Hour}

	norm := cfg.Normalize()
	if norm.PageSize != DefaultPageSize {
		t.Fatalf("expected page size to default to %d, got %d", DefaultPageSize, norm.PageSize)
	}
	if norm.CandidateLimit != 5000 {
		t.Fatalf("expected candidate limit to clamp to 5000, got %d", norm.CandidateLimit)
	}
	if norm.FreshnessHalfLife != 48*time.Hour {
		t.Fatalf("expected half life default, got %s", norm.FreshnessHalfLife)
	}
	if norm.MutualSaturation != 5 {
		t.Fatalf("expected mutual saturation default, got %d", norm.MutualSaturation)
	}
}

func TestFeedValidate(t *testing.T) {
	cfg := FeedConfig{}.Normalize()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	bad := cfg
	bad.PageSize = 25
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected validation error for page size")
	}
}

func TestPayoutValidate(t *testing.T) {
	cfg := PayoutConfig{MinCoinAmount: -3}.Normalize()
	if cfg.MinCoinAmount != 1 {
		t.Fatalf("expected min amount to clamp to 1, got %d", cfg.MinCoinAmount)
	}
	bad := PayoutConfig{MinCoinAmount: 500, MaxCoinAmount: 100}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for inverted bounds")
	}
}

func TestSchedulerValidate(t *testing.T) {
	cfg := SchedulerConfig{Jobs: map[string]string{" Reconcile_Balances ": "0 * * * *", "empty": " "}}.Normalize()
	if len(cfg.Jobs) != 1 {
		t.Fatalf("expected 1 job after normalize, got %d", len(cfg.Jobs))
	}
	if _, ok := cfg.Jobs["reconcile_balances"]; !ok {
		t.Fatalf("expected job name to be lowercased and trimmed")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := SchedulerConfig{Jobs: map[string]string{"broken": "not a cron"}}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected cron parse error")
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn, err := PostgresConfig{Host: "db", User: "u", Password: "p", DBName: "vibe"}.DSN()
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	if dsn != "postgres://u:p@db:5432/vibe?sslmode=disable" {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	if _, err := (PostgresConfig{}).DSN(); err == nil {
		t.Fatalf("expected error for empty config")
	}
}
