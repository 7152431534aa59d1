// Package config resolves the pipeline's configuration purely from
// the environment (§6). It is built on spf13/viper for env binding and
// defaults instead of the hand-rolled os.Getenv table the teacher's
// config.Load used, because this surface (DB, S3, TTS, retry/poll/
// watchdog tunables) is materially larger than a single-file server
// config.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Database holds task store connection settings.
type Database struct {
	DSN             string `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
}

// Storage holds blob store (S3-compatible) connection settings.
type Storage struct {
	Endpoint          string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey         string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey         string `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket            string `mapstructure:"bucket" yaml:"bucket"`
	Region            string `mapstructure:"region" yaml:"region"`
	PresignExpirationSeconds int `mapstructure:"presign_expiration_seconds" yaml:"presign_expiration_seconds"`
}

// TTS holds synthesis endpoint settings.
type TTS struct {
	APIURL           string `mapstructure:"api_url" yaml:"api_url"`
	APIKey           string `mapstructure:"api_key" yaml:"api_key"`
	SpeakerAudioPath string `mapstructure:"speaker_audio_path" yaml:"speaker_audio_path"`
	PollAttempts     int    `mapstructure:"poll_attempts" yaml:"poll_attempts"`
	PollIntervalSec  int    `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
}

// Worker holds per-worker-process settings.
type Worker struct {
	ID                string `mapstructure:"id" yaml:"id"`
	GPULimit          int    `mapstructure:"gpu_limit" yaml:"gpu_limit"`
	MaxRetries        int    `mapstructure:"max_retries" yaml:"max_retries"`
	HeartbeatInterval int    `mapstructure:"heartbeat_interval_seconds" yaml:"heartbeat_interval_seconds"`
}

// Watchdog holds the resurrection sweep settings.
type Watchdog struct {
	ThresholdMinutes int `mapstructure:"threshold_minutes" yaml:"threshold_minutes"`
	IntervalSeconds  int `mapstructure:"interval_seconds" yaml:"interval_seconds"`
}

// Config is the fully-resolved, validated configuration for any of
// the three binaries. Not every field is used by every binary (the
// importer never reads TTS or Watchdog, for instance) but resolving
// one shape keeps env var names consistent across all three.
type Config struct {
	Database Database `mapstructure:"database" yaml:"database"`
	Storage  Storage  `mapstructure:"storage" yaml:"storage"`
	TTS      TTS      `mapstructure:"tts" yaml:"tts"`
	Worker   Worker   `mapstructure:"worker" yaml:"worker"`
	Watchdog Watchdog `mapstructure:"watchdog" yaml:"watchdog"`
}

// Load resolves Config from the environment, applying the §6
// defaults and clamping HeartbeatInterval to its enforced minimum.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.presign_expiration_seconds", int((7 * 24 * time.Hour).Seconds()))
	v.SetDefault("tts.speaker_audio_path", "./speaker.wav")
	v.SetDefault("tts.poll_attempts", 5)
	v.SetDefault("tts.poll_interval_seconds", 2)
	v.SetDefault("worker.gpu_limit", 4)
	v.SetDefault("worker.max_retries", 5)
	v.SetDefault("worker.heartbeat_interval_seconds", 10)
	v.SetDefault("watchdog.threshold_minutes", 5)
	v.SetDefault("watchdog.interval_seconds", 60)
	v.SetDefault("database.max_open_conns", 30)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime_seconds", 3600)

	bindEnv(v, map[string]string{
		"database.dsn":                     "DATABASE_URL",
		"storage.endpoint":                 "S3_ENDPOINT",
		"storage.access_key":               "S3_ACCESS_KEY",
		"storage.secret_key":               "S3_SECRET_KEY",
		"storage.bucket":                   "S3_BUCKET",
		"storage.region":                   "S3_REGION",
		"storage.presign_expiration_seconds": "S3_PRESIGN_EXPIRATION",
		"tts.api_url":                      "TTS_API_URL",
		"tts.api_key":                      "TTS_API_KEY",
		"tts.speaker_audio_path":           "SPEAKER_AUDIO_PATH",
		"tts.poll_attempts":                "MP3_POLL_ATTEMPTS",
		"tts.poll_interval_seconds":        "MP3_POLL_INTERVAL",
		"worker.id":                        "WORKER_ID",
		"worker.gpu_limit":                 "WORKER_GPU_LIMIT",
		"worker.max_retries":               "MAX_RETRIES",
		"worker.heartbeat_interval_seconds": "HEARTBEAT_INTERVAL",
		"watchdog.threshold_minutes":       "WATCHDOG_THRESHOLD_MINUTES",
		"watchdog.interval_seconds":        "WATCHDOG_INTERVAL_SECONDS",
	})

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Worker.ID == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "unknown"
		}
		cfg.Worker.ID = "worker-" + host
	}
	if cfg.Worker.HeartbeatInterval < 5 {
		cfg.Worker.HeartbeatInterval = 5
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func bindEnv(v *viper.Viper, keys map[string]string) {
	for key, env := range keys {
		_ = v.BindEnv(key, env)
	}
}

// Validate checks the fields every binary needs regardless of which
// subset of Config it actually reads, mirroring the teacher's
// config.Validate structure-check style.
func Validate(cfg *Config) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Worker.GPULimit <= 0 {
		return fmt.Errorf("WORKER_GPU_LIMIT must be positive, got %d", cfg.Worker.GPULimit)
	}
	if cfg.Worker.MaxRetries <= 0 {
		return fmt.Errorf("MAX_RETRIES must be positive, got %d", cfg.Worker.MaxRetries)
	}
	if cfg.TTS.PollAttempts <= 0 {
		return fmt.Errorf("MP3_POLL_ATTEMPTS must be positive, got %d", cfg.TTS.PollAttempts)
	}
	if cfg.Watchdog.IntervalSeconds <= 0 {
		return fmt.Errorf("WATCHDOG_INTERVAL_SECONDS must be positive, got %d", cfg.Watchdog.IntervalSeconds)
	}
	return nil
}

// Dump re-marshals the resolved configuration to YAML for startup
// logging, redacting secret-bearing fields.
func (c *Config) Dump() (string, error) {
	redacted := *c
	if redacted.Database.DSN != "" {
		redacted.Database.DSN = "***"
	}
	redacted.Storage.AccessKey = redact(redacted.Storage.AccessKey)
	redacted.Storage.SecretKey = redact(redacted.Storage.SecretKey)
	redacted.TTS.APIKey = redact(redacted.TTS.APIKey)

	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(out), nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// PresignExpiration returns the configured presign duration.
func (s Storage) PresignExpiration() time.Duration {
	return time.Duration(s.PresignExpirationSeconds) * time.Second
}

// HeartbeatPeriod returns the configured heartbeat period.
func (w Worker) HeartbeatPeriod() time.Duration {
	return time.Duration(w.HeartbeatInterval) * time.Second
}

// PollInterval returns the configured MP3 poll interval.
func (t TTS) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalSec) * time.Second
}

// ResurrectionInterval returns the configured watchdog sweep period.
func (w Watchdog) ResurrectionInterval() time.Duration {
	return time.Duration(w.IntervalSeconds) * time.Second
}
