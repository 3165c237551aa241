package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvOverrides are the settings that may come from the environment
// (or a .env file) instead of the config file.
type EnvOverrides struct {
	DataDir         string   `env:"DATA_DIR"`
	ConfigPath      string   `env:"CONFIG"`
	LogLevel        string   `env:"LOG_LEVEL"`
	StatusAddr      string   `env:"STATUS_ADDR"`
	IMAPPassword    string   `env:"IMAP_PASSWORD"`
	SMTPPassword    string   `env:"SMTP_PASSWORD"`
	SlackWebhookURL string   `env:"SLACK_WEBHOOK_URL"`
	StoreDriver     string   `env:"STORE_DRIVER"`
	StoreDSN        string   `env:"STORE_DSN"`
	RedisAddr       string   `env:"REDIS_ADDR"`
	KafkaBrokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
}

const EnvPrefix = "JOBMAIL_"

// LoadEnv reads .env when present and parses JOBMAIL_* variables.
func LoadEnv() (EnvOverrides, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return EnvOverrides{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var o EnvOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return o, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

// Apply copies every non-empty override onto cfg.
func (o EnvOverrides) Apply(cfg *Config) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.App.DataDir, o.DataDir)
	set(&cfg.App.LogLevel, o.LogLevel)
	set(&cfg.App.StatusAddr, o.StatusAddr)
	set(&cfg.Mailbox.Password, o.IMAPPassword)
	set(&cfg.Notify.SMTP.Password, o.SMTPPassword)
	set(&cfg.Notify.Slack.WebhookURL, o.SlackWebhookURL)
	set(&cfg.Store.Driver, o.StoreDriver)
	set(&cfg.Store.DSN, o.StoreDSN)
	set(&cfg.Cache.RedisAddr, o.RedisAddr)
	if len(o.KafkaBrokers) > 0 {
		cfg.Events.KafkaBrokers = o.KafkaBrokers
	}
}

// LoadConfig resolves the data dir and config path from the overrides,
// bootstraps the default file when needed, loads it and applies o on top.
func (o EnvOverrides) LoadConfig() (Config, string, error) {
	dataDir := strings.TrimSpace(o.DataDir)
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return Config{}, "", fmt.Errorf("data dir %s: %w", dataDir, err)
	}

	path := strings.TrimSpace(o.ConfigPath)
	if path == "" {
		var err error
		if path, err = EnsureUserConfig(dataDir); err != nil {
			return Config{}, "", fmt.Errorf("config bootstrap: %w", err)
		}
	}
	cfg, err := Load(path)
	if err != nil {
		return cfg, path, fmt.Errorf("config load %s: %w", filepath.Clean(path), err)
	}
	cfg.App.DataDir = dataDir
	o.Apply(&cfg)
	return cfg, path, nil
}
