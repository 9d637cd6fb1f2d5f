package helpers

import "strings"

// Citation models the metadata the Writer needs to render one References
// entry for a cited evidence record.
type Citation struct {
	SourceID  string // e.g. ev_0001
	Title     string
	Publisher string
	Date      string // already-formatted, e.g. "2024-04-15"; empty when unknown
	URL       string
}

// FormatCitation renders a footnote-style References entry:
// [^ev_0001]: <title> — <publisher> (<date>). <url>
// Publisher and date are each optional; an absent one is dropped rather
// than rendered as a literal gap.
func FormatCitation(c Citation) string {
	var b strings.Builder
	b.WriteString("[^")
	b.WriteString(strings.TrimSpace(c.SourceID))
	b.WriteString("]: ")

	title := strings.TrimSpace(c.Title)
	if title == "" {
		title = "(untitled)"
	}
	b.WriteString(title)

	publisher := strings.TrimSpace(c.Publisher)
	date := strings.TrimSpace(c.Date)
	switch {
	case publisher != "" && date != "":
		b.WriteString(" — " + publisher + " (" + date + ")")
	case publisher != "":
		b.WriteString(" — " + publisher)
	case date != "":
		b.WriteString(" (" + date + ")")
	}

	if url := strings.TrimSpace(c.URL); url != "" {
		b.WriteString(". " + url)
	}

	return b.String()
}

// FormatCitations renders a References section body: one FormatCitation
// line per entry, in the order given (first-use order, by convention).
func FormatCitations(citations []Citation) []string {
	if len(citations) == 0 {
		return nil
	}
	out := make([]string, 0, len(citations))
	for _, c := range citations {
		out = append(out, FormatCitation(c))
	}
	return out
}
