// Package extract turns job-alert email HTML into raw postings.
package extract

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobmail-engine/internal/domain"
	"jobmail-engine/internal/textutil"
)

var (
	DefaultExcludeTerms = []string{
		"unsubscribe", "profile", "darse de baja", "dar de baja", "cancelar suscripción",
		"privacy", "privacidad", "preferences", "preferencias", "settings",
		"configuración", "help center", "centro de ayuda", "view all", "see all",
		"ver todas", "ver todos",
	}
	DefaultJobKeywords = []string{
		"job", "empleo", "vacante", "vacancy", "oferta", "position", "puesto",
		"hiring", "career", "trabajo", "opening",
	}
	DefaultPathMarkers = []string{
		"/job", "/empleo", "/vacante", "/oferta", "/career", "/position",
		"/puesto", "/trabajo", "/opening",
	}
)

var reParenthesized = regexp.MustCompile(`\(([^()]{2,80})\)`)

const blockSelector = "td, li, p, div, tr, table"

type Options struct {
	ExcludeTerms []string
	JobKeywords  []string
	PathMarkers  []string
}

type Extractor struct {
	exclude  []string
	keywords []string
	markers  []string
	resolver EmployerResolver
	logger   *slog.Logger
}

// New builds an extractor. Empty option lists fall back to the defaults.
func New(opts Options, resolver EmployerResolver, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if resolver == nil {
		resolver = MapResolver{}
	}
	return &Extractor{
		exclude:  lowerAll(orDefault(opts.ExcludeTerms, DefaultExcludeTerms)),
		keywords: lowerAll(orDefault(opts.JobKeywords, DefaultJobKeywords)),
		markers:  lowerAll(orDefault(opts.PathMarkers, DefaultPathMarkers)),
		resolver: resolver,
		logger:   logger.With("component", "extract"),
	}
}

// Extract walks every anchor in the document and returns the postings found,
// in document order and unique by canonical URL. Zero postings is a valid result.
func (e *Extractor) Extract(ctx context.Context, html string) []domain.RawPosting {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Warn("html parse failed", "err", err)
		return nil
	}

	var out []domain.RawPosting
	seen := map[string]bool{}
	var skipped int

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		p, ok := e.candidate(ctx, a)
		if !ok {
			skipped++
			return
		}
		if seen[p.URL] {
			return
		}
		seen[p.URL] = true
		out = append(out, p)
	})

	e.logger.Debug("anchors scanned", "postings", len(out), "skipped", skipped)
	return out
}

func (e *Extractor) candidate(ctx context.Context, a *goquery.Selection) (domain.RawPosting, bool) {
	if a.ParentsFiltered("a").Length() > 0 {
		return domain.RawPosting{}, false
	}

	text := textutil.CleanText(a.Text())
	if text == "" {
		return domain.RawPosting{}, false
	}
	lowText := strings.ToLower(text)
	if containsAny(lowText, e.exclude) {
		return domain.RawPosting{}, false
	}

	href, _ := a.Attr("href")
	u, ok := isAbsoluteHTTP(href)
	if !ok {
		return domain.RawPosting{}, false
	}
	if !containsAny(lowText, e.keywords) && !containsAny(strings.ToLower(u.Path), e.markers) {
		return domain.RawPosting{}, false
	}

	title := NormalizeTitle(text)
	link := CanonicalURL(href)
	if title == "" || link == "" {
		return domain.RawPosting{}, false
	}

	block := a.Closest(blockSelector)
	blockText := text
	if block.Length() > 0 {
		blockText = textutil.CleanText(block.Text())
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return domain.RawPosting{
		Title:       title,
		URL:         link,
		Location:    locationFromBlock(blockText),
		Description: textutil.Clip(blockText, domain.MaxRawDescriptionLen),
		Domain:      host,
		Employer:    e.resolver.ResolveEmployer(ctx, host),
	}, true
}

func locationFromBlock(text string) string {
	for _, m := range reParenthesized.FindAllStringSubmatch(text, -1) {
		frag := textutil.CleanText(m[1])
		if frag == "" || textutil.IsWorkModeOnly(frag) || !hasLetter(frag) {
			continue
		}
		if loc := textutil.NormalizeLocation(frag); loc != "" {
			return loc
		}
	}
	return domain.LocationNotSpecified
}

func hasLetter(s string) bool {
	for _, r := range s {
		if ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || r > 127 {
			return true
		}
	}
	return false
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func orDefault(xs, def []string) []string {
	if len(xs) == 0 {
		return def
	}
	return xs
}

func lowerAll(xs []string) []string {
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if x = strings.ToLower(strings.TrimSpace(x)); x != "" {
			out = append(out, x)
		}
	}
	return out
}
