package planneragent

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/oedrhq/engine/config"
	"github.com/oedrhq/engine/internal/evidence"
	"github.com/oedrhq/engine/internal/fetch"
	"github.com/oedrhq/engine/internal/journal"
	"github.com/oedrhq/engine/internal/llm"
	"github.com/oedrhq/engine/internal/search"
	"github.com/oedrhq/engine/internal/telemetry"
)

type stubClaims struct {
	grant bool
}

func (s stubClaims) Claim(ctx context.Context, hash string, ttl time.Duration) (bool, error) {
	return s.grant, nil
}

func newDispatchTestAgent(t *testing.T, fc *stubFetcher, claims stubClaims) (*Agent, *evidence.Bank) {
	t.Helper()
	dir := t.TempDir()
	bank, err := evidence.Open(dir+"/evidence_bank", nil)
	if err != nil {
		t.Fatalf("evidence.Open: %v", err)
	}
	jrnl, err := journal.Open(dir, "run-test")
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	tel := telemetry.New(telemetry.Config{Enabled: false})
	a := &Agent{
		llmClient: &stubLLM{fn: func(int, []llm.Message) string { return "[]" }},
		searchP:   stubSearch{results: []search.Result{{Title: "A", URL: "https://example.com/a", Snippet: "s"}}},
		fetcher:   fc,
		bank:      bank,
		jrnl:      jrnl,
		tel:       tel,
		cfg:       config.PlannerConfig{},
		searchCfg: config.SearchConfig{MaxResults: 10, MaxURLsPerQuery: 5},
		fetchConc: 2,
		claims:    claims,
		logger:    log.New(log.Writer(), "[PLANNER-TEST] ", log.LstdFlags),
	}
	return a, bank
}

func TestDispatchSearch_SkipsFetchWhenClaimDenied(t *testing.T) {
	fc := &stubFetcher{page: fetch.Page{Title: "A Title", Text: "plenty of article body text about the topic at hand"}}
	a, bank := newDispatchTestAgent(t, fc, stubClaims{grant: false})

	added, fetched := a.dispatchSearch(context.Background(), "topic")
	if fetched != 0 {
		t.Errorf("fetched = %d, want 0 when claim denied", fetched)
	}
	if added != 0 {
		t.Errorf("added = %d, want 0 when claim denied", added)
	}
	if bank.Stats().Count != 0 {
		t.Errorf("bank should remain empty when claim denied")
	}
}

func TestDispatchSearch_FetchesWhenClaimGranted(t *testing.T) {
	fc := &stubFetcher{page: fetch.Page{Title: "A Title", Text: "plenty of article body text about the topic at hand"}}
	a, _ := newDispatchTestAgent(t, fc, stubClaims{grant: true})

	added, fetched := a.dispatchSearch(context.Background(), "topic")
	if fetched != 1 {
		t.Errorf("fetched = %d, want 1 when claim granted", fetched)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1 when claim granted", added)
	}
}
