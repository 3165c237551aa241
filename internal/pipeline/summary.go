package pipeline

import (
	"fmt"
	"strings"
)

// Summary renders the end-of-batch report.
func Summary(s RunStats, actions []string) (subject, body string) {
	subject = fmt.Sprintf("Job mail run %s: batch %d", shortID(s.RunID), s.Batches)

	var b strings.Builder
	fmt.Fprintf(&b, "Emails processed: %d\n", s.EmailsProcessed)
	fmt.Fprintf(&b, "Emails succeeded: %d\n", s.EmailsSucceeded)
	fmt.Fprintf(&b, "Emails failed: %d\n", s.EmailsFailed)
	fmt.Fprintf(&b, "Postings extracted: %d\n", s.PostingsExtracted)
	fmt.Fprintf(&b, "Postings saved: %d\n", s.PostingsSaved)

	writeList(&b, "Complete postings", s.Complete)
	writeList(&b, "Incomplete postings", s.Incomplete)
	writeList(&b, "Health actions", actions)
	return subject, strings.TrimRight(b.String(), "\n")
}

func writeList(b *strings.Builder, label string, items []string) {
	fmt.Fprintf(b, "\n%s (%d):\n", label, len(items))
	if len(items) == 0 {
		b.WriteString("  none\n")
		return
	}
	for _, it := range items {
		b.WriteString("  - ")
		b.WriteString(it)
		b.WriteByte('\n')
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
