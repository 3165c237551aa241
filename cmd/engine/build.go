package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"jobmail-engine/internal/classify"
	"jobmail-engine/internal/config"
	"jobmail-engine/internal/enrich"
	"jobmail-engine/internal/events"
	"jobmail-engine/internal/extract"
	"jobmail-engine/internal/health"
	"jobmail-engine/internal/mailbox"
	"jobmail-engine/internal/notify"
	"jobmail-engine/internal/notify/slack"
	"jobmail-engine/internal/notify/smtp"
	"jobmail-engine/internal/persist"
	"jobmail-engine/internal/pipeline"
	"jobmail-engine/internal/secrets"
	"jobmail-engine/internal/sites"
	"jobmail-engine/internal/store"
)

type engine struct {
	db           *store.DB
	hub          *events.Hub
	monitor      *health.Monitor
	orchestrator *pipeline.Orchestrator

	closers []func() error
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			slog.Warn("shutdown", "err", err)
		}
	}
}

func build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*engine, error) {
	eng := &engine{}
	ok := false
	defer func() {
		if !ok {
			eng.Close()
		}
	}()

	password, err := secrets.GetIMAPPassword(cfg)
	if err != nil {
		return nil, err
	}
	mb := mailbox.New(mailbox.Config{
		Addr:       cfg.MailboxAddr(),
		TLS:        cfg.Mailbox.TLS,
		Username:   cfg.Mailbox.Username,
		Password:   password,
		Folder:     cfg.Mailbox.Folders.Jobs,
		Retries:    cfg.Mailbox.Retries,
		RetryDelay: cfg.MailboxRetryDelay(),
		Timeout:    cfg.MailboxTimeout(),
	}, logger)

	db, err := store.Open(ctx, cfg.Store.Driver, storeDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	eng.db = db
	eng.closers = append(eng.closers, db.Close)
	employers := db.Employers()

	registry := sites.NewRegistry(cfg.Sites)
	extractor := extract.New(extract.Options{
		ExcludeTerms: cfg.Extract.ExcludeTerms,
		JobKeywords:  cfg.Extract.JobKeywords,
		PathMarkers:  cfg.Extract.PathMarkers,
	}, &extract.SiteResolver{Sites: registry, Directory: employers, Logger: logger}, logger)

	enricher, err := buildEnricher(cfg, registry, eng, logger)
	if err != nil {
		return nil, err
	}

	classifier := classify.WithDefault{
		Inner:   classify.NewRuleClassifier(cfg.Classify.Units),
		Default: cfg.Classify.Default,
	}
	upserter := persist.New(db, employers, classifier, cfg.Classify.Default, logger)

	sampler, err := health.NewProcessSampler()
	if err != nil {
		return nil, fmt.Errorf("process sampler: %w", err)
	}
	var series health.Series = health.NopSeries{}
	if cfg.Health.SeriesFile != "" {
		series = health.NewCSVSeries(cfg.DataPath(cfg.Health.SeriesFile))
	}
	eng.monitor = health.NewMonitor(cfg.HealthInterval(), health.Thresholds{
		MemoryMB:   cfg.Health.MemoryMB,
		CPUPercent: cfg.Health.CPUPercent,
		ErrorRate:  cfg.Health.ErrorRate,
	}, sampler, series, logger)

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	eng.hub = events.NewHub()
	pubs := []events.Publisher{eng.hub}
	if len(cfg.Events.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.Topic)
		eng.closers = append(eng.closers, kp.Close)
		pubs = append(pubs, kp)
	}

	eng.orchestrator = pipeline.New(pipeline.Config{
		BatchSize:  cfg.Batch.Size,
		BatchDelay: cfg.BatchDelay(),
		Folders:    cfg.Mailbox.Folders,
	}, pipeline.Deps{
		Mailbox:   mb,
		Extractor: extractor,
		Enricher:  enricher,
		Upserter:  upserter,
		Health:    eng.monitor,
		Notifier:  notifier,
		Events:    events.NewFanout(logger, pubs...),
	}, logger)

	ok = true
	return eng, nil
}

func buildEnricher(cfg config.Config, registry *sites.Registry, eng *engine, logger *slog.Logger) (*enrich.Enricher, error) {
	fetcher, err := enrich.NewHTTPFetcher(cfg.EnrichTimeout())
	if err != nil {
		return nil, fmt.Errorf("http fetcher: %w", err)
	}
	opts := []enrich.Option{
		enrich.WithLimiter(enrich.NewHostLimiter(cfg.Enrich.RequestsPerSecond, cfg.Enrich.Burst)),
	}
	if cfg.Enrich.BrowserEnabled {
		opts = append(opts, enrich.WithRenderer(&enrich.ChromeRenderer{ExecPath: cfg.Enrich.BrowserPath}))
	}
	if cfg.Cache.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		eng.closers = append(eng.closers, rdb.Close)
		opts = append(opts, enrich.WithCache(enrich.NewRedisCache(rdb, cfg.CacheTTL(), logger)))
	}
	return enrich.New(enrich.Config{
		Timeout:        cfg.EnrichTimeout(),
		Retries:        cfg.Enrich.Retries,
		RetryDelay:     cfg.EnrichRetryDelay(),
		BrowserTimeout: cfg.BrowserTimeout(),
		BrowserRetries: cfg.Enrich.BrowserRetries,
		BrowserDelay:   cfg.BrowserDelay(),
		UserAgents:     cfg.Enrich.UserAgents,
	}, registry, fetcher, logger, opts...), nil
}

// buildNotifier always logs the summary and adds Slack and SMTP when configured.
func buildNotifier(cfg config.Config, logger *slog.Logger) (notify.Notifier, error) {
	multi := notify.Multi{notify.LogNotifier{Logger: logger}}

	if cfg.Notify.Slack.WebhookURL != "" {
		sc, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Notify.Slack.WebhookURL,
			Channel:    cfg.Notify.Slack.Channel,
			Username:   cfg.Notify.Slack.Username,
			RetryLimit: cfg.Notify.Slack.RetryLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("slack notifier: %w", err)
		}
		multi = append(multi, sc)
	}

	if cfg.Notify.SMTP.Host != "" {
		n, err := smtp.New(smtp.Config{
			Host:     cfg.Notify.SMTP.Host,
			Port:     cfg.Notify.SMTP.Port,
			Username: cfg.Notify.SMTP.Username,
			Password: secrets.GetSMTPPassword(cfg),
			From:     cfg.Notify.SMTP.From,
			To:       cfg.Notify.SMTP.To,
		})
		if err != nil {
			return nil, fmt.Errorf("smtp notifier: %w", err)
		}
		multi = append(multi, n)
	}
	return multi, nil
}

// storeDSN places a relative SQLite file inside the data dir.
func storeDSN(cfg config.Config) string {
	if cfg.Store.Driver == store.DriverSQLite || cfg.Store.Driver == "" {
		if cfg.Store.DSN == ":memory:" {
			return cfg.Store.DSN
		}
		return cfg.DataPath(cfg.Store.DSN)
	}
	return cfg.Store.DSN
}
