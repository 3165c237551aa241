package extract

import (
	"html"
	"regexp"
	"strings"

	"jobmail-engine/internal/textutil"
)

var reURL = regexp.MustCompile(`https?://[^\s<>"']+`)

// LinkifyText renders a plain-text email as HTML paragraphs whose naked URLs
// become anchors. The anchor text is the rest of the line, or the previous
// non-empty line when the URL stands alone.
func LinkifyText(text string) string {
	var b strings.Builder
	b.WriteString("<html><body>")

	prev := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		urls := reURL.FindAllString(line, -1)
		if len(urls) == 0 {
			b.WriteString("<p>" + html.EscapeString(line) + "</p>")
			prev = line
			continue
		}

		label := textutil.CleanText(reURL.ReplaceAllString(line, " "))
		if label == "" {
			label = prev
		}
		b.WriteString("<p>")
		for _, u := range urls {
			u = strings.TrimRight(u, ".,);:]")
			anchor := label
			if anchor == "" {
				anchor = u
			}
			b.WriteString(`<a href="` + html.EscapeString(u) + `">` + html.EscapeString(anchor) + "</a> ")
		}
		b.WriteString("</p>")
		prev = ""
	}

	b.WriteString("</body></html>")
	return b.String()
}
