// Package enrich follows a posting's URL and fills in its description,
// requirements, benefits and work mode. Plain HTTP is tried first; a headless
// browser is the fallback for boards that only render client side.
package enrich

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobmail-engine/internal/domain"
	"jobmail-engine/internal/retry"
	"jobmail-engine/internal/sites"
	"jobmail-engine/internal/textutil"
)

const (
	SourceHTTP    = "http"
	SourceBrowser = "browser"
	SourceCache   = "cache"
)

var (
	ErrBrowserDisabled = errors.New("browser rendering disabled")
	ErrEmptyPage       = errors.New("page has no readable content")
)

type Config struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration

	BrowserTimeout time.Duration
	BrowserRetries int
	BrowserDelay   time.Duration

	UserAgents []string
}

type Enricher struct {
	cfg        Config
	sites      *sites.Registry
	fetcher    Fetcher
	renderer   Renderer
	cache      Cache
	limiter    *HostLimiter
	strategies []Strategy
	agents     userAgents
	logger     *slog.Logger
}

type Option func(*Enricher)

func WithRenderer(r Renderer) Option     { return func(e *Enricher) { e.renderer = r } }
func WithCache(c Cache) Option           { return func(e *Enricher) { e.cache = c } }
func WithLimiter(l *HostLimiter) Option  { return func(e *Enricher) { e.limiter = l } }
func WithStrategies(s []Strategy) Option { return func(e *Enricher) { e.strategies = s } }

func New(cfg Config, reg *sites.Registry, fetcher Fetcher, logger *slog.Logger, opts ...Option) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.BrowserRetries < 1 {
		cfg.BrowserRetries = 1
	}
	e := &Enricher{
		cfg:        cfg,
		sites:      reg,
		fetcher:    fetcher,
		cache:      NopCache{},
		strategies: DefaultStrategies(),
		agents:     userAgents(cfg.UserAgents),
		logger:     logger.With("component", "enricher"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Enrich never fails: when every path is exhausted the raw posting comes back
// in degraded form so it can still be stored.
func (e *Enricher) Enrich(ctx context.Context, raw domain.RawPosting) domain.EnrichedPosting {
	site, _ := e.sites.LookupURL(raw.URL)
	log := e.logger.With("url", raw.URL)

	if html, ok := e.cache.Get(ctx, raw.URL); ok {
		if ep, err := e.build(raw, html, SourceCache); err == nil {
			log.Debug("enriched from cache")
			return ep
		}
	}

	html, err := e.viaHTTP(ctx, raw.URL, site)
	if err == nil {
		ep, buildErr := e.build(raw, html, SourceHTTP)
		if buildErr == nil {
			e.cache.Set(ctx, raw.URL, html)
			return ep
		}
		err = buildErr
	}
	log.Info("http path failed, trying browser", "err", err)

	html, err = e.viaBrowser(ctx, raw.URL, site)
	if err == nil {
		ep, buildErr := e.build(raw, html, SourceBrowser)
		if buildErr == nil {
			e.cache.Set(ctx, raw.URL, html)
			return ep
		}
		err = buildErr
	}
	log.Warn("enrichment failed, keeping raw posting", "err", err)
	return domain.Degraded(raw)
}

func (e *Enricher) viaHTTP(ctx context.Context, target string, site sites.Site) (string, error) {
	if e.fetcher == nil {
		return "", errors.New("no http fetcher")
	}
	var html string
	err := retry.Do(ctx, retry.Policy{Attempts: e.cfg.Retries, Delay: e.cfg.RetryDelay}, func(attempt int) error {
		if err := e.limiter.WaitURL(ctx, target); err != nil {
			return retry.Permanent(err)
		}
		reqCtx, cancel := withTimeout(ctx, e.cfg.Timeout)
		defer cancel()
		out, err := e.fetcher.Fetch(reqCtx, target, site, e.agents.pick())
		if err != nil {
			e.logger.Debug("http fetch attempt failed", "url", target, "attempt", attempt, "err", err)
			return err
		}
		html = out
		return nil
	})
	return html, err
}

func (e *Enricher) viaBrowser(ctx context.Context, target string, site sites.Site) (string, error) {
	if e.renderer == nil {
		return "", ErrBrowserDisabled
	}
	var html string
	err := retry.Do(ctx, retry.Policy{Attempts: e.cfg.BrowserRetries, Delay: e.cfg.BrowserDelay}, func(attempt int) error {
		renderCtx, cancel := withTimeout(ctx, e.cfg.BrowserTimeout)
		defer cancel()
		out, err := e.renderer.Render(renderCtx, target, site, e.agents.pick())
		if err != nil {
			e.logger.Debug("browser attempt failed", "url", target, "attempt", attempt, "err", err)
			return err
		}
		html = out
		return nil
	})
	return html, err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// build runs the strategies over html and merges the result into raw.
func (e *Enricher) build(raw domain.RawPosting, html string, source string) (domain.EnrichedPosting, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domain.EnrichedPosting{}, err
	}

	var (
		fields Fields
		found  bool
		used   string
	)
	for _, s := range e.strategies {
		if f, ok := s.Extract(doc); ok {
			fields, found, used = f, true, s.Name
			break
		}
	}
	if !found {
		return domain.EnrichedPosting{}, ErrEmptyPage
	}

	text := pageText(doc)
	ep := domain.EnrichedPosting{
		RawPosting:   raw,
		Description:  textutil.Clip(fields.Description, domain.MaxDescriptionLen),
		Requirements: textutil.Clip(fields.Requirements, domain.MaxRequirementsLen),
		Benefits:     textutil.Clip(fields.Benefits, domain.MaxBenefitsLen),
		WorkMode:     textutil.InferWorkMode(raw.Title, raw.Location, text),
		Enriched:     true,
		Source:       source,
	}
	if ep.Description == "" {
		ep.Description = textutil.Clip(raw.Description, domain.MaxDescriptionLen)
	}
	if raw.Location == "" || raw.Location == domain.LocationNotSpecified {
		if loc := textutil.FindLocation(doc); loc != "" && !textutil.IsWorkModeOnly(loc) {
			ep.Location = textutil.Clip(loc, domain.MaxStoredLocationLen)
		}
	}

	e.logger.Debug("enriched", "url", raw.URL, "source", source, "strategy", used, "work_mode", ep.WorkMode)
	return ep, nil
}
