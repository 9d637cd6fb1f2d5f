// Package searchindex provides the Writer's lexical Retrieve{query, top_k}
// lookup: an in-memory Bleve (TF-IDF scored) index scoped to one section's candidate
// evidence summaries, built fresh per section and discarded once the
// section seals.
package searchindex

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve"
)

// doc is the document shape indexed per evidence ID: just enough text to
// rank candidates against a query, never the raw page.
type doc struct {
	Summary string `json:"summary"`
}

// Index is a short-lived, per-section lexical index over candidate
// evidence summaries.
type Index struct {
	mu    sync.Mutex
	bleve bleve.Index
}

// New builds an empty in-memory index.
func New() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create section index: %w", err)
	}
	return &Index{bleve: idx}, nil
}

// Add indexes one evidence summary under its evidence ID.
func (x *Index) Add(evidenceID, summary string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.bleve.Index(evidenceID, doc{Summary: summary}); err != nil {
		return fmt.Errorf("index %s: %w", evidenceID, err)
	}
	return nil
}

// Search runs a query string search and returns the top_k matching
// evidence IDs, best match first. A query that fails to parse or search
// returns an error; the Writer's dispatchRetrieve then falls back to
// substring matching, so a malformed Retrieve query degrades rather than
// aborts the step.
func (x *Index) Search(query string, topK int) ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, topK, 0, false)
	res, err := x.bleve.Search(req)
	if err != nil {
		return nil, fmt.Errorf("section index search: %w", err)
	}

	out := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, hit.ID)
	}
	return out, nil
}

// Close releases the underlying in-memory index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.bleve.Close()
}
