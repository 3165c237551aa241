package textutil

import (
	"strings"
	"unicode/utf8"

	"jobmail-engine/internal/domain"
)

func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(s)
}

// Truncate cuts s to at most max runes. Strings within the limit are returned as-is.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// Clip trims surrounding space and then truncates.
func Clip(s string, max int) string {
	return Truncate(strings.TrimSpace(s), max)
}

func NormalizeLocation(loc string) string {
	loc = CleanText(loc)
	if loc == "" {
		return ""
	}

	for _, p := range []string{"Location:", "LOCATION:", "Locations:", "Ubicación:", "Ubicacion:"} {
		loc = strings.TrimPrefix(loc, p)
	}
	loc = strings.TrimSpace(loc)

	parts := strings.Split(loc, ",")
	seen := map[string]bool{}
	var out []string
	for _, p := range parts {
		p = CleanText(p)
		if p == "" {
			continue
		}
		k := strings.ToLower(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}

var workModeTerms = []struct {
	mode  domain.WorkMode
	terms []string
}{
	{domain.WorkModeRemote, []string{"remoto", "remota", "remote", "teletrabajo", "home office"}},
	{domain.WorkModeHybrid, []string{"híbrido", "hibrido", "híbrida", "hibrida", "hybrid"}},
	{domain.WorkModeOnsite, []string{"presencial", "on-site", "onsite", "on site"}},
}

// InferWorkMode checks keyword presence in order remote, hybrid, onsite.
func InferWorkMode(parts ...string) domain.WorkMode {
	blob := strings.ToLower(strings.Join(parts, " "))
	for _, wm := range workModeTerms {
		for _, t := range wm.terms {
			if strings.Contains(blob, t) {
				return wm.mode
			}
		}
	}
	return domain.WorkModeUnknown
}

// IsWorkModeOnly reports whether s names a work mode and nothing else, e.g. "Remote".
func IsWorkModeOnly(s string) bool {
	l := strings.ToLower(CleanText(s))
	l = strings.Trim(l, " .-/")
	for _, wm := range workModeTerms {
		for _, t := range wm.terms {
			if l == t {
				return true
			}
		}
	}
	return false
}
