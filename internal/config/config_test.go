package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		if had {
			t.Cleanup(func() { os.Setenv(k, old) })
		}
	}
}

func TestLoadAppliesDefaultsAndEnvOverrides(t *testing.T) {
	clearEnv(t, "DATABASE_URL", "WORKER_GPU_LIMIT", "WORKER_ID", "HEARTBEAT_INTERVAL")
	os.Setenv("DATABASE_URL", "user:pass@tcp(127.0.0.1:3306)/bookqueue")
	os.Setenv("WORKER_GPU_LIMIT", "8")
	t.Cleanup(func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("WORKER_GPU_LIMIT")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.DSN != "user:pass@tcp(127.0.0.1:3306)/bookqueue" {
		t.Errorf("expected DSN from env, got %q", cfg.Database.DSN)
	}
	if cfg.Worker.GPULimit != 8 {
		t.Errorf("expected gpu_limit 8 from env, got %d", cfg.Worker.GPULimit)
	}
	if cfg.TTS.PollAttempts != 5 {
		t.Errorf("expected default poll_attempts 5, got %d", cfg.TTS.PollAttempts)
	}
	if cfg.Watchdog.ThresholdMinutes != 5 {
		t.Errorf("expected default watchdog threshold 5, got %d", cfg.Watchdog.ThresholdMinutes)
	}
	if cfg.Worker.ID == "" {
		t.Errorf("expected a non-empty default worker id")
	}
}

func TestLoadClampsHeartbeatIntervalMinimum(t *testing.T) {
	clearEnv(t, "DATABASE_URL", "HEARTBEAT_INTERVAL")
	os.Setenv("DATABASE_URL", "dsn")
	os.Setenv("HEARTBEAT_INTERVAL", "1")
	t.Cleanup(func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("HEARTBEAT_INTERVAL")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Worker.HeartbeatInterval != 5 {
		t.Errorf("expected heartbeat interval clamped to 5, got %d", cfg.Worker.HeartbeatInterval)
	}
}

func TestLoadFailsWithoutDatabaseURL(t *testing.T) {
	clearEnv(t, "DATABASE_URL")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when DATABASE_URL is unset")
	}
}

func TestValidateRejectsNonPositiveTunables(t *testing.T) {
	base := Config{
		Database: Database{DSN: "dsn"},
		Worker:   Worker{GPULimit: 1, MaxRetries: 1},
		TTS:      TTS{PollAttempts: 1},
		Watchdog: Watchdog{IntervalSeconds: 1},
	}

	if err := Validate(&base); err != nil {
		t.Fatalf("expected valid base config, got %v", err)
	}

	cases := []func(*Config){
		func(c *Config) { c.Database.DSN = "" },
		func(c *Config) { c.Worker.GPULimit = 0 },
		func(c *Config) { c.Worker.MaxRetries = 0 },
		func(c *Config) { c.TTS.PollAttempts = 0 },
		func(c *Config) { c.Watchdog.IntervalSeconds = 0 },
	}
	for i, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if err := Validate(&cfg); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestDumpRedactsSecrets(t *testing.T) {
	cfg := &Config{
		Database: Database{DSN: "user:secret@tcp(host)/db"},
		Storage:  Storage{AccessKey: "AKIA...", SecretKey: "shh"},
		TTS:      TTS{APIKey: "sk-123"},
	}
	out, err := cfg.Dump()
	if err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	for _, secret := range []string{"user:secret@tcp(host)/db", "AKIA...", "shh", "sk-123"} {
		if strings.Contains(out, secret) {
			t.Errorf("Dump output leaked secret %q:\n%s", secret, out)
		}
	}
}

func TestDurationHelpers(t *testing.T) {
	s := Storage{PresignExpirationSeconds: 120}
	if got := s.PresignExpiration(); got != 120*time.Second {
		t.Errorf("PresignExpiration = %v, want 120s", got)
	}
	w := Worker{HeartbeatInterval: 10}
	if got := w.HeartbeatPeriod(); got != 10*time.Second {
		t.Errorf("HeartbeatPeriod = %v, want 10s", got)
	}
	tts := TTS{PollIntervalSec: 2}
	if got := tts.PollInterval(); got != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", got)
	}
	wd := Watchdog{IntervalSeconds: 60}
	if got := wd.ResurrectionInterval(); got != 60*time.Second {
		t.Errorf("ResurrectionInterval = %v, want 60s", got)
	}
}
