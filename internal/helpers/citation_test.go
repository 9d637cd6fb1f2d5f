package helpers

import "testing"

func TestFormatCitationWithPublisherAndDate(t *testing.T) {
	t.Parallel()
	c := Citation{
		SourceID:  "ev_0001",
		Title:     "Investigative Report",
		Publisher: "Example News",
		Date:      "2024-04-15",
		URL:       "https://example.com/news/report",
	}

	got := FormatCitation(c)
	want := `[^ev_0001]: Investigative Report — Example News (2024-04-15). https://example.com/news/report`

	if got != want {
		t.Fatalf("FormatCitation() = %q, want %q", got, want)
	}
}

func TestFormatCitationPublisherOnly(t *testing.T) {
	t.Parallel()
	c := Citation{SourceID: "ev_0002", Title: "Second Piece", Publisher: "Wire Service", URL: "https://example.com/b"}

	got := FormatCitation(c)
	want := `[^ev_0002]: Second Piece — Wire Service. https://example.com/b`

	if got != want {
		t.Fatalf("FormatCitation() = %q, want %q", got, want)
	}
}

func TestFormatCitationDateOnly(t *testing.T) {
	t.Parallel()
	c := Citation{SourceID: "ev_0003", Title: "Third Piece", Date: "2023-11-02", URL: "https://example.com/c"}

	got := FormatCitation(c)
	want := `[^ev_0003]: Third Piece (2023-11-02). https://example.com/c`

	if got != want {
		t.Fatalf("FormatCitation() = %q, want %q", got, want)
	}
}

func TestFormatCitationNoMetadataOrURL(t *testing.T) {
	t.Parallel()
	c := Citation{SourceID: "ev_0004"}

	got := FormatCitation(c)
	want := `[^ev_0004]: (untitled)`

	if got != want {
		t.Fatalf("FormatCitation() = %q, want %q", got, want)
	}
}

func TestFormatCitationsBatch(t *testing.T) {
	t.Parallel()
	list := []Citation{
		{SourceID: "ev_0001", Title: "First", URL: "https://a.example.com"},
		{SourceID: "ev_0002", Title: "Second", URL: "https://b.example.com"},
	}
	items := FormatCitations(list)
	if len(items) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(items))
	}
	if items[0] == items[1] {
		t.Fatalf("expected unique entries, got %#v", items)
	}
}

func TestFormatCitationsEmpty(t *testing.T) {
	t.Parallel()
	if got := FormatCitations(nil); got != nil {
		t.Fatalf("FormatCitations(nil) = %#v, want nil", got)
	}
}
