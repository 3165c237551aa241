package enrich

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobmail-engine/internal/textutil"
)

// Fields is what a strategy pulls out of a job page.
type Fields struct {
	Description  string
	Requirements string
	Benefits     string
}

// Strategy is one way of reading a job page. Strategies run in order and the
// first one that reports ok wins.
type Strategy struct {
	Name    string
	Extract func(doc *goquery.Document) (Fields, bool)
}

func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "selector", Extract: selectorStrategy},
		{Name: "json-ld", Extract: jsonLDStrategy},
		{Name: "full-text", Extract: fullTextStrategy},
	}
}

var (
	descriptionSelectors = []string{
		".job-description",
		"#job-description",
		".jobDescription",
		"#jobDescriptionText",
		".description__text",
		"[itemprop='description']",
		".job-details",
		".descripcion",
		"#descripcion",
		".description",
	}
	requirementSelectors = []string{
		".requirements",
		"#requirements",
		".job-requirements",
		".qualifications",
		"[itemprop='qualifications']",
		".requisitos",
		"#requisitos",
	}
	benefitSelectors = []string{
		".benefits",
		"#benefits",
		".job-benefits",
		"[itemprop='jobBenefits']",
		".beneficios",
		"#beneficios",
	}
)

func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		var out string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			out = textutil.CleanText(s.Text())
			return out == ""
		})
		if out != "" {
			return out
		}
	}
	return ""
}

func selectorStrategy(doc *goquery.Document) (Fields, bool) {
	f := Fields{
		Description:  firstText(doc, descriptionSelectors),
		Requirements: firstText(doc, requirementSelectors),
		Benefits:     firstText(doc, benefitSelectors),
	}
	return f, f.Description != ""
}

func jsonLDStrategy(doc *goquery.Document) (Fields, bool) {
	var out Fields
	found := false
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			return true
		}
		jp := findJobPosting(v)
		if jp == nil {
			return true
		}
		out = Fields{
			Description:  htmlText(stringField(jp, "description")),
			Requirements: htmlText(firstNonEmpty(stringField(jp, "qualifications"), stringField(jp, "experienceRequirements"))),
			Benefits:     htmlText(stringField(jp, "jobBenefits")),
		}
		found = out.Description != ""
		return !found
	})
	return out, found
}

// findJobPosting walks JSON-LD (objects, arrays and @graph) for a JobPosting node.
func findJobPosting(v any) map[string]any {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if jp := findJobPosting(item); jp != nil {
				return jp
			}
		}
	case map[string]any:
		if isJobPostingType(t["@type"]) {
			return t
		}
		if g, ok := t["@graph"]; ok {
			return findJobPosting(g)
		}
	}
	return nil
}

func isJobPostingType(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.EqualFold(t, "JobPosting")
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok && strings.EqualFold(s, "JobPosting") {
				return true
			}
		}
	}
	return false
}

func stringField(m map[string]any, key string) string {
	switch t := m[key].(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// htmlText flattens an HTML fragment (JSON-LD descriptions usually carry markup).
func htmlText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return textutil.CleanText(s)
	}
	return textutil.CleanText(doc.Text())
}

func fullTextStrategy(doc *goquery.Document) (Fields, bool) {
	text := pageText(doc)
	return Fields{Description: text}, text != ""
}

// pageText is the visible body text with scripts and chrome removed. The
// document itself is left untouched.
func pageText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	if body.Length() == 0 {
		return ""
	}
	body.Find("script, style, noscript, template, svg, nav, header, footer").Remove()
	return textutil.CleanText(body.Text())
}
