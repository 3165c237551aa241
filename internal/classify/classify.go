// Package classify assigns postings to a business unit.
package classify

import (
	"strings"

	"jobmail-engine/internal/config"
)

type Classifier interface {
	// Classify returns a business-unit id, or "" when nothing matched.
	Classify(title, description, location string) string
}

// RuleClassifier scores each configured unit by keyword hits in the title and
// description plus location hits. The best score wins; ties keep config order.
type RuleClassifier struct {
	Units []config.BusinessUnit
}

func NewRuleClassifier(units []config.BusinessUnit) RuleClassifier {
	return RuleClassifier{Units: units}
}

func (c RuleClassifier) Classify(title, description, location string) string {
	text := strings.ToLower(title + " " + description)
	loc := strings.ToLower(location)

	best, bestScore := "", 0
	for _, u := range c.Units {
		w := u.Weight
		if w <= 0 {
			w = 1
		}
		score := 0
		for _, kw := range u.Keywords {
			if n := strings.ToLower(strings.TrimSpace(kw)); n != "" && strings.Contains(text, n) {
				score += w
			}
		}
		for _, l := range u.Locations {
			if n := strings.ToLower(strings.TrimSpace(l)); n != "" && strings.Contains(loc, n) {
				score += w
			}
		}
		if score > bestScore {
			best, bestScore = u.ID, score
		}
	}
	return best
}

// WithDefault falls back to def when inner has no answer.
type WithDefault struct {
	Inner   Classifier
	Default string
}

func (c WithDefault) Classify(title, description, location string) string {
	if c.Inner != nil {
		if id := c.Inner.Classify(title, description, location); id != "" {
			return id
		}
	}
	return c.Default
}
