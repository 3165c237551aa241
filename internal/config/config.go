// engine/internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Folders struct {
	Inbox  string `yaml:"inbox" toml:"inbox"`
	Jobs   string `yaml:"jobs" toml:"jobs"`
	Parsed string `yaml:"parsed" toml:"parsed"`
	Error  string `yaml:"error" toml:"error"`
}

type Site struct {
	Domain   string            `yaml:"domain" toml:"domain"`
	Employer string            `yaml:"employer" toml:"employer"`
	Headers  map[string]string `yaml:"headers" toml:"headers"`
	Cookies  map[string]string `yaml:"cookies" toml:"cookies"`
}

type BusinessUnit struct {
	ID        string   `yaml:"id" toml:"id"`
	Weight    int      `yaml:"weight" toml:"weight"`
	Keywords  []string `yaml:"keywords" toml:"keywords"`
	Locations []string `yaml:"locations" toml:"locations"`
}

type Config struct {
	App struct {
		DataDir     string `yaml:"data_dir" toml:"data_dir"`
		LogLevel    string `yaml:"log_level" toml:"log_level"`
		LogFormat   string `yaml:"log_format" toml:"log_format"`
		StatusAddr  string `yaml:"status_addr" toml:"status_addr"`
		PollMinutes int    `yaml:"poll_minutes" toml:"poll_minutes"`
	} `yaml:"app" toml:"app"`

	Mailbox struct {
		Host              string  `yaml:"host" toml:"host"`
		Port              int     `yaml:"port" toml:"port"`
		TLS               bool    `yaml:"tls" toml:"tls"`
		Username          string  `yaml:"username" toml:"username"`
		Password          string  `yaml:"password,omitempty" toml:"password,omitempty"`
		Folders           Folders `yaml:"folders" toml:"folders"`
		Retries           int     `yaml:"retries" toml:"retries"`
		RetryDelaySeconds int     `yaml:"retry_delay_seconds" toml:"retry_delay_seconds"`
		TimeoutSeconds    int     `yaml:"timeout_seconds" toml:"timeout_seconds"`
	} `yaml:"mailbox" toml:"mailbox"`

	Batch struct {
		Size         int `yaml:"size" toml:"size"`
		DelaySeconds int `yaml:"delay_seconds" toml:"delay_seconds"`
	} `yaml:"batch" toml:"batch"`

	Health struct {
		IntervalSeconds int     `yaml:"interval_seconds" toml:"interval_seconds"`
		MemoryMB        float64 `yaml:"memory_mb" toml:"memory_mb"`
		CPUPercent      float64 `yaml:"cpu_percent" toml:"cpu_percent"`
		ErrorRate       float64 `yaml:"error_rate" toml:"error_rate"`
		SeriesFile      string  `yaml:"series_file" toml:"series_file"`
	} `yaml:"health" toml:"health"`

	Extract struct {
		ExcludeTerms []string `yaml:"exclude_terms" toml:"exclude_terms"`
		JobKeywords  []string `yaml:"job_keywords" toml:"job_keywords"`
		PathMarkers  []string `yaml:"path_markers" toml:"path_markers"`
	} `yaml:"extract" toml:"extract"`

	Enrich struct {
		TimeoutSeconds        int      `yaml:"timeout_seconds" toml:"timeout_seconds"`
		Retries               int      `yaml:"retries" toml:"retries"`
		RetryDelaySeconds     int      `yaml:"retry_delay_seconds" toml:"retry_delay_seconds"`
		RequestsPerSecond     float64  `yaml:"requests_per_second" toml:"requests_per_second"`
		Burst                 int      `yaml:"burst" toml:"burst"`
		UserAgents            []string `yaml:"user_agents" toml:"user_agents"`
		BrowserEnabled        bool     `yaml:"browser_enabled" toml:"browser_enabled"`
		BrowserPath           string   `yaml:"browser_path" toml:"browser_path"`
		BrowserTimeoutSeconds int      `yaml:"browser_timeout_seconds" toml:"browser_timeout_seconds"`
		BrowserRetries        int      `yaml:"browser_retries" toml:"browser_retries"`
		BrowserDelaySeconds   int      `yaml:"browser_delay_seconds" toml:"browser_delay_seconds"`
	} `yaml:"enrich" toml:"enrich"`

	Sites []Site `yaml:"sites" toml:"sites"`

	Store struct {
		Driver string `yaml:"driver" toml:"driver"` // sqlite | pgx
		DSN    string `yaml:"dsn" toml:"dsn"`
	} `yaml:"store" toml:"store"`

	Classify struct {
		Default string         `yaml:"default" toml:"default"`
		Units   []BusinessUnit `yaml:"units" toml:"units"`
	} `yaml:"classify" toml:"classify"`

	Notify struct {
		Slack struct {
			WebhookURL string `yaml:"webhook_url" toml:"webhook_url"`
			Channel    string `yaml:"channel" toml:"channel"`
			Username   string `yaml:"username" toml:"username"`
			RetryLimit int    `yaml:"retry_limit" toml:"retry_limit"`
		} `yaml:"slack" toml:"slack"`
		SMTP struct {
			Host     string   `yaml:"host" toml:"host"`
			Port     int      `yaml:"port" toml:"port"`
			Username string   `yaml:"username" toml:"username"`
			Password string   `yaml:"password,omitempty" toml:"password,omitempty"`
			From     string   `yaml:"from" toml:"from"`
			To       []string `yaml:"to" toml:"to"`
		} `yaml:"smtp" toml:"smtp"`
	} `yaml:"notify" toml:"notify"`

	Cache struct {
		RedisAddr  string `yaml:"redis_addr" toml:"redis_addr"`
		TTLMinutes int    `yaml:"ttl_minutes" toml:"ttl_minutes"`
	} `yaml:"cache" toml:"cache"`

	Events struct {
		KafkaBrokers []string `yaml:"kafka_brokers" toml:"kafka_brokers"`
		Topic        string   `yaml:"topic" toml:"topic"`
	} `yaml:"events" toml:"events"`
}

// Default returns a config that runs against a local SQLite file.
func Default() Config {
	var cfg Config

	cfg.App.DataDir = "."
	cfg.App.LogLevel = "info"
	cfg.App.LogFormat = "json"

	cfg.Mailbox.Port = 993
	cfg.Mailbox.TLS = true
	cfg.Mailbox.Folders = Folders{Inbox: "INBOX", Jobs: "jobs", Parsed: "parsed", Error: "error"}
	cfg.Mailbox.Retries = 3
	cfg.Mailbox.RetryDelaySeconds = 5
	cfg.Mailbox.TimeoutSeconds = 30

	cfg.Batch.Size = 10
	cfg.Batch.DelaySeconds = 30

	cfg.Health.IntervalSeconds = 60
	cfg.Health.MemoryMB = 500
	cfg.Health.CPUPercent = 80
	cfg.Health.ErrorRate = 0.25
	cfg.Health.SeriesFile = "health.csv"

	cfg.Enrich.TimeoutSeconds = 15
	cfg.Enrich.Retries = 3
	cfg.Enrich.RetryDelaySeconds = 2
	cfg.Enrich.RequestsPerSecond = 1
	cfg.Enrich.Burst = 2
	cfg.Enrich.BrowserEnabled = true
	cfg.Enrich.BrowserTimeoutSeconds = 60
	cfg.Enrich.BrowserRetries = 2
	cfg.Enrich.BrowserDelaySeconds = 5

	cfg.Store.Driver = "sqlite"
	cfg.Store.DSN = "jobmail.db"

	cfg.Classify.Default = "general"

	cfg.Notify.Slack.Username = "jobmail"
	cfg.Notify.Slack.RetryLimit = 2
	cfg.Notify.SMTP.Port = 587

	cfg.Cache.TTLMinutes = 360
	cfg.Events.Topic = "jobmail.postings"

	return cfg
}

// Load reads a YAML (or .toml) file over Default().
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(b), &cfg); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c Config) MailboxAddr() string {
	return fmt.Sprintf("%s:%d", c.Mailbox.Host, c.Mailbox.Port)
}
func (c Config) MailboxRetryDelay() time.Duration { return seconds(c.Mailbox.RetryDelaySeconds) }
func (c Config) MailboxTimeout() time.Duration    { return seconds(c.Mailbox.TimeoutSeconds) }
func (c Config) BatchDelay() time.Duration        { return seconds(c.Batch.DelaySeconds) }
func (c Config) HealthInterval() time.Duration    { return seconds(c.Health.IntervalSeconds) }
func (c Config) EnrichTimeout() time.Duration     { return seconds(c.Enrich.TimeoutSeconds) }
func (c Config) EnrichRetryDelay() time.Duration  { return seconds(c.Enrich.RetryDelaySeconds) }
func (c Config) BrowserTimeout() time.Duration    { return seconds(c.Enrich.BrowserTimeoutSeconds) }
func (c Config) BrowserDelay() time.Duration      { return seconds(c.Enrich.BrowserDelaySeconds) }
func (c Config) CacheTTL() time.Duration          { return time.Duration(c.Cache.TTLMinutes) * time.Minute }
func (c Config) PollInterval() time.Duration      { return time.Duration(c.App.PollMinutes) * time.Minute }

// DataPath resolves p against the data dir unless it is absolute.
func (c Config) DataPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.App.DataDir, p)
}
