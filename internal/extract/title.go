package extract

import (
	"strings"
	"unicode"

	"jobmail-engine/internal/domain"
)

// Expanded on whole words after lowercasing. A trailing dot is consumed.
var abbreviations = map[string]string{
	"sr":    "senior",
	"ssr":   "semi senior",
	"jr":    "junior",
	"dev":   "developer",
	"devs":  "developers",
	"eng":   "engineer",
	"engr":  "engineer",
	"mgr":   "manager",
	"admin": "administrator",
	"asst":  "assistant",
	"coord": "coordinator",
	"aux":   "auxiliar",
	"tec":   "técnico",
	"ing":   "ingeniero",
	"lic":   "licenciado",
	"ejec":  "ejecutivo",
	"gte":   "gerente",
	"sup":   "supervisor",
	"esp":   "especialista",
}

// Lowercase unless first in the title.
var titleExceptions = map[string]bool{
	"de": true, "del": true, "la": true, "las": true, "el": true, "los": true,
	"y": true, "e": true, "o": true, "u": true, "en": true, "a": true, "al": true,
	"con": true, "para": true, "por": true,
	"of": true, "and": true, "or": true, "the": true, "in": true, "for": true,
	"to": true, "at": true, "with": true, "on": true,
}

var acronyms = map[string]bool{
	"qa": true, "ui": true, "ux": true, "it": true, "ti": true, "hr": true,
	"rrhh": true, "sql": true, "aws": true, "gcp": true, "api": true, "ios": true,
	"erp": true, "crm": true, "sap": true, "bi": true, "ai": true, "ml": true,
	"php": true, "net": true, "seo": true, "sem": true, "ceo": true, "cto": true,
	"cfo": true, "sre": true,
}

const safePunct = "-:/(),.&+#"

// NormalizeTitle turns anchor text into a posting title. It is idempotent:
// NormalizeTitle(NormalizeTitle(s)) == NormalizeTitle(s).
func NormalizeTitle(s string) string {
	s = foldCase(s)
	s = expandAbbreviations(s)
	s = stripUnsafe(s)
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = caseWord(w, i == 0)
	}
	return truncateWords(strings.Join(words, " "), domain.MaxRawTitleLen)
}

// foldCase lowercases through the upper case form, so letters such as the
// dotless ı or the long ſ land on the rune a later lowercasing would produce.
func foldCase(s string) string {
	return strings.Map(func(r rune) rune {
		return unicode.ToLower(unicode.ToUpper(r))
	}, s)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func expandAbbreviations(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	runes := []rune(s)
	for i := 0; i < len(runes); {
		if !isWordRune(runes[i]) {
			b.WriteRune(runes[i])
			i++
			continue
		}
		j := i
		for j < len(runes) && isWordRune(runes[j]) {
			j++
		}
		word := string(runes[i:j])
		if full, ok := abbreviations[word]; ok {
			b.WriteString(full)
			if j < len(runes) && runes[j] == '.' && (j+1 == len(runes) || !isWordRune(runes[j+1])) {
				j++
			}
		} else {
			b.WriteString(word)
		}
		i = j
	}
	return b.String()
}

func stripUnsafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case isWordRune(r):
			return r
		case unicode.IsSpace(r):
			return ' '
		case strings.ContainsRune(safePunct, r):
			return r
		default:
			return ' '
		}
	}, s)
}

func caseWord(w string, first bool) string {
	core := strings.TrimFunc(w, func(r rune) bool { return !isWordRune(r) })
	if !first && titleExceptions[core] && core == w {
		return w
	}
	if acronyms[core] {
		return strings.Replace(w, core, strings.ToUpper(core), 1)
	}

	runes := []rune(w)
	for i, r := range runes {
		if unicode.IsLetter(r) {
			runes[i] = unicode.ToUpper(r)
			break
		}
		if unicode.IsDigit(r) {
			break
		}
	}
	return string(runes)
}

// truncateWords cuts to max runes without splitting a word, unless the
// first word alone is longer than max.
func truncateWords(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := runes[:max]
	if runes[max] != ' ' {
		for i := len(cut) - 1; i > 0; i-- {
			if cut[i] == ' ' {
				cut = cut[:i]
				break
			}
		}
	}
	return strings.TrimSpace(string(cut))
}
