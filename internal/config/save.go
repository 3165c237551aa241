package config

import (
	"fmt"
	"net/url"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

func trimList(xs []string) []string {
	seen := map[string]bool{}
	var ys []string
	for _, x := range xs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		key := strings.ToLower(x)
		if seen[key] {
			continue
		}
		seen[key] = true
		ys = append(ys, x)
	}
	return ys
}

// NormalizeAndValidate returns a normalized copy and what is wrong with it.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	out.Extract.ExcludeTerms = trimList(out.Extract.ExcludeTerms)
	out.Extract.JobKeywords = trimList(out.Extract.JobKeywords)
	out.Extract.PathMarkers = trimList(out.Extract.PathMarkers)
	out.Enrich.UserAgents = trimList(out.Enrich.UserAgents)
	out.Notify.SMTP.To = trimList(out.Notify.SMTP.To)
	out.Events.KafkaBrokers = trimList(out.Events.KafkaBrokers)

	out.Mailbox.Host = strings.TrimSpace(out.Mailbox.Host)
	out.Mailbox.Username = strings.TrimSpace(out.Mailbox.Username)
	out.Store.Driver = strings.ToLower(strings.TrimSpace(out.Store.Driver))

	// ---- mailbox ----
	if out.Mailbox.Host == "" {
		res.addErr("mailbox.host is required")
	}
	if out.Mailbox.Port <= 0 || out.Mailbox.Port > 65535 {
		res.addErr("mailbox.port must be 1..65535")
	}
	if out.Mailbox.Username == "" {
		res.addErr("mailbox.username is required")
	}
	f := out.Mailbox.Folders
	if strings.TrimSpace(f.Jobs) == "" || strings.TrimSpace(f.Parsed) == "" || strings.TrimSpace(f.Error) == "" {
		res.addErr("mailbox.folders.jobs, parsed and error are required")
	}
	if f.Jobs != "" && (f.Jobs == f.Parsed || f.Jobs == f.Error) {
		res.addErr("mailbox.folders.jobs must differ from parsed and error")
	}
	if out.Mailbox.Retries <= 0 {
		res.addErr("mailbox.retries must be > 0")
	}
	if out.Mailbox.RetryDelaySeconds < 0 {
		res.addErr("mailbox.retry_delay_seconds must be >= 0")
	}
	if out.Mailbox.TimeoutSeconds <= 0 {
		res.addErr("mailbox.timeout_seconds must be > 0")
	}
	if !out.Mailbox.TLS {
		res.addWarn("mailbox.tls is false; credentials will be sent in clear text.")
	}

	// ---- batch / health ----
	if out.Batch.Size <= 0 {
		res.addErr("batch.size must be > 0")
	}
	if out.Batch.DelaySeconds < 0 {
		res.addErr("batch.delay_seconds must be >= 0")
	}
	if out.Health.IntervalSeconds < 0 {
		res.addErr("health.interval_seconds must be >= 0")
	}
	if out.Health.MemoryMB <= 0 {
		res.addErr("health.memory_mb must be > 0")
	}
	if out.Health.CPUPercent <= 0 {
		res.addErr("health.cpu_percent must be > 0")
	}
	if out.Health.ErrorRate <= 0 || out.Health.ErrorRate > 1 {
		res.addErr("health.error_rate must be in (0, 1]")
	}

	// ---- enrichment ----
	if out.Enrich.TimeoutSeconds <= 0 {
		res.addErr("enrich.timeout_seconds must be > 0")
	}
	if out.Enrich.Retries <= 0 {
		res.addErr("enrich.retries must be > 0")
	}
	if out.Enrich.RequestsPerSecond <= 0 {
		res.addErr("enrich.requests_per_second must be > 0")
	}
	if out.Enrich.BrowserEnabled {
		if out.Enrich.BrowserRetries <= 0 {
			res.addErr("enrich.browser_retries must be > 0 when browser_enabled=true")
		}
		if out.Enrich.BrowserTimeoutSeconds < out.Enrich.TimeoutSeconds {
			res.addWarn("enrich.browser_timeout_seconds (%d) is shorter than the HTTP timeout (%d).",
				out.Enrich.BrowserTimeoutSeconds, out.Enrich.TimeoutSeconds)
		}
	}

	// ---- sites ----
	seenDomains := map[string]bool{}
	for i := range out.Sites {
		d := strings.ToLower(strings.TrimSpace(out.Sites[i].Domain))
		d = strings.TrimPrefix(d, "www.")
		out.Sites[i].Domain = d
		out.Sites[i].Employer = strings.TrimSpace(out.Sites[i].Employer)
		if d == "" {
			res.addErr("sites[%d].domain is required", i)
			continue
		}
		if seenDomains[d] {
			res.addWarn("sites: domain %q appears more than once; the first entry wins.", d)
		}
		seenDomains[d] = true
	}

	// ---- store ----
	switch out.Store.Driver {
	case "sqlite", "pgx":
	default:
		res.addErr("store.driver must be sqlite or pgx (got %q)", out.Store.Driver)
	}
	if strings.TrimSpace(out.Store.DSN) == "" {
		res.addErr("store.dsn is required")
	}

	// ---- classification ----
	out.Classify.Default = strings.TrimSpace(out.Classify.Default)
	if out.Classify.Default == "" {
		res.addErr("classify.default is required")
	}
	for i := range out.Classify.Units {
		u := &out.Classify.Units[i]
		u.ID = strings.TrimSpace(u.ID)
		u.Keywords = trimList(u.Keywords)
		u.Locations = trimList(u.Locations)
		if u.ID == "" {
			res.addErr("classify.units[%d].id is required", i)
		}
		if len(u.Keywords) == 0 && len(u.Locations) == 0 {
			res.addWarn("classify.units[%d] (%s) has no keywords or locations and will never match.", i, u.ID)
		}
	}

	// ---- notify ----
	if w := strings.TrimSpace(out.Notify.Slack.WebhookURL); w != "" {
		if u, err := url.Parse(w); err != nil || u.Scheme != "https" {
			res.addErr("notify.slack.webhook_url must be an https URL")
		}
	}
	if out.Notify.SMTP.Host != "" {
		if out.Notify.SMTP.From == "" || len(out.Notify.SMTP.To) == 0 {
			res.addErr("notify.smtp.from and notify.smtp.to are required when notify.smtp.host is set")
		}
	}
	if out.Notify.SMTP.Host == "" && out.Notify.Slack.WebhookURL == "" {
		res.addWarn("no notifier configured; batch summaries will only be logged.")
	}

	if len(out.Events.KafkaBrokers) > 0 && strings.TrimSpace(out.Events.Topic) == "" {
		res.addErr("events.topic is required when events.kafka_brokers is set")
	}

	return out, res
}
