package planneragent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oedrhq/engine/internal/evidence"
	"github.com/oedrhq/engine/internal/fetch"
	"github.com/oedrhq/engine/internal/llm"
	"github.com/oedrhq/engine/internal/search"
)

// urlClaimTTL bounds how long a claimed URL stays off-limits to other
// runs sharing the same fetch pool; long enough to cover one fetch+
// summarize cycle, short enough that a crashed claimant doesn't wedge it
// indefinitely.
const urlClaimTTL = 10 * time.Minute

// dispatchSearch runs one Search action to completion: call the search
// provider, apply the two-stage URL filter (LLM keep-list, then fetcher
// rejection), fetch and summarize surviving pages with a bounded worker
// pool, and insert each result into the Bank. It returns the number of
// evidence records added and the number of URLs actually fetched.
//
// Any single sub-call failing (search, filter, fetch, summarize) is logged
// and skipped; dispatchSearch itself never returns an error, matching the
// spec's "a planner step never aborts the run" rule.
func (a *Agent) dispatchSearch(ctx context.Context, query string) (added int, fetched int) {
	a.tel.RecordSearchCall()
	results, err := a.searchP.Search(ctx, query, a.searchCfg.MaxResults)
	if err != nil {
		a.logError(fmt.Sprintf("search %q: %v", query, err))
		return 0, 0
	}
	if len(results) == 0 {
		return 0, 0
	}

	keep := a.filterURLs(ctx, query, results)
	if len(keep) == 0 {
		return 0, 0
	}

	type fetched_ struct {
		result search.Result
		page   fetch.Page
	}

	var mu sync.Mutex
	var pages []fetched_
	var wg sync.WaitGroup
	sem := make(chan struct{}, a.fetchConc)

	for _, r := range keep {
		wg.Add(1)
		go func(r search.Result) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			claimed, err := a.claims.Claim(ctx, urlHash(r.URL), urlClaimTTL)
			if err != nil {
				a.logError(fmt.Sprintf("claim %s: %v", r.URL, err))
			} else if !claimed {
				return
			}

			page, err := a.fetcher.Fetch(ctx, r.URL)
			a.tel.RecordFetch(err == nil)
			if err != nil {
				a.logError(fmt.Sprintf("fetch %s: %v", r.URL, err))
				return
			}
			mu.Lock()
			pages = append(pages, fetched_{result: r, page: page})
			mu.Unlock()
		}(r)
	}
	wg.Wait()
	fetched = len(pages)

	for _, fp := range pages {
		summary, items, err := a.summarizePage(ctx, query, fp.page)
		if err != nil {
			a.logError(fmt.Sprintf("summarize %s: %v", fp.page.URL, err))
			continue
		}
		draft := evidence.Draft{
			Query: query,
			Source: evidence.Source{
				URL:         fp.page.URL,
				Title:       firstNonEmpty(fp.page.Title, fp.result.Title),
				Author:      fp.page.Author,
				PublishedAt: fp.page.PublishedAt,
			},
			Summary: summary,
			Items:   items,
			RawText: fp.page.Text,
		}
		if _, err := a.bank.Add(draft); err != nil {
			a.logError(fmt.Sprintf("add evidence for %s: %v", fp.page.URL, err))
			continue
		}
		added++
	}
	return added, fetched
}

// filterURLs is the first stage of the two-stage URL filter: the LLM sees
// only (title, snippet) for each result and returns a keep-list of at most
// MaxURLsPerQuery URLs. A malformed or empty LLM response falls back to
// keeping the first MaxURLsPerQuery results unfiltered, since the second
// fetch-based filter stage still guards against unusable pages.
func (a *Agent) filterURLs(ctx context.Context, query string, results []search.Result) []search.Result {
	limit := a.searchCfg.MaxURLsPerQuery
	if limit <= 0 {
		limit = len(results)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nCandidate results:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}
	fmt.Fprintf(&b, "\nReturn a JSON array of at most %d URLs worth fetching in full, most relevant first. Respond with ONLY the JSON array.", limit)

	raw, err := a.llmClient.Complete(ctx, []llm.Message{
		{Role: "system", Content: "You triage search results for a research agent. Respond with a JSON array of strings (URLs) and nothing else."},
		{Role: "user", Content: b.String()},
	})
	if err != nil {
		return truncateResults(results, limit)
	}

	var urls []string
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &urls); err != nil || len(urls) == 0 {
		return truncateResults(results, limit)
	}

	byURL := make(map[string]search.Result, len(results))
	for _, r := range results {
		byURL[r.URL] = r
	}
	out := make([]search.Result, 0, limit)
	for _, u := range urls {
		if r, ok := byURL[u]; ok {
			out = append(out, r)
		}
		if len(out) >= limit {
			break
		}
	}
	if len(out) == 0 {
		return truncateResults(results, limit)
	}
	return out
}

func truncateResults(results []search.Result, limit int) []search.Result {
	if limit <= 0 || limit >= len(results) {
		return results
	}
	return results[:limit]
}

// summarizePage issues the two per-page LLM calls the spec requires: a
// query-relevant summary, then a structured evidence-item extraction.
func (a *Agent) summarizePage(ctx context.Context, query string, page fetch.Page) (string, []evidence.Item, error) {
	body := page.Text

	summaryRaw, err := a.llmClient.Complete(ctx, []llm.Message{
		{Role: "system", Content: "You summarize web pages for a research agent. Respond with a single concise paragraph relevant to the query, nothing else."},
		{Role: "user", Content: fmt.Sprintf("Query: %s\n\nPage title: %s\n\nPage text:\n%s", query, page.Title, truncateChars(body, 6000))},
	})
	if err != nil {
		return "", nil, fmt.Errorf("summary call: %w", err)
	}
	summary := strings.TrimSpace(summaryRaw)

	itemsRaw, err := a.llmClient.Complete(ctx, []llm.Message{
		{Role: "system", Content: `Extract structured evidence items from the page as a JSON array of objects {"type":"quote|data|definition|claim|case","content":"...","location":"...","confidence":0.0-1.0}. Respond with ONLY the JSON array; an empty array is fine.`},
		{Role: "user", Content: fmt.Sprintf("Query: %s\n\nPage text:\n%s", query, truncateChars(body, 6000))},
	})
	var items []evidence.Item
	if err == nil {
		_ = json.Unmarshal([]byte(extractJSONArray(itemsRaw)), &items)
	}

	return summary, items, nil
}

func extractJSONArray(s string) string {
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return "[]"
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return "[]"
}

func truncateChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func urlHash(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
