// Package judge implements the Outline Judge (C4.6): an LLM-backed rating
// of a committed outline against a fixed criterion set. A malformed or
// missing judgement is recorded as an error object rather than failing
// the run.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/oedrhq/engine/internal/helpers"
	"github.com/oedrhq/engine/internal/llm"
)

// Criteria is the fixed, ordered set of rating dimensions the judge scores.
var Criteria = []string{
	"InstructionFollowing", "Depth", "Balance", "Breadth", "Support", "Insightfulness",
}

// Rating is one criterion's score and justification.
type Rating struct {
	Rating        int    `json:"rating"`
	Justification string `json:"justification"`
}

// Result is the judge's full output, keyed by criterion name. Error is
// set instead of Ratings when the judge's output could not be parsed.
type Result struct {
	Ratings map[string]Rating `json:"-"`
	Error   string            `json:"error,omitempty"`
}

// MarshalJSON renders Result as the flat {criterion: {rating, justification}}
// object outline_judgement.json persists, or {"error": "..."} on failure.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{Error: r.Error})
	}
	return json.Marshal(r.Ratings)
}

const promptTemplate = `You are evaluating a research report outline for quality.

User query:
%s

Outline (Markdown):
%s

Rate the outline on each of these criteria, 0 (worst) to 10 (best), with a one-sentence justification:
%s

Respond with ONLY a JSON object shaped exactly like:
{"InstructionFollowing": {"rating": 0, "justification": "..."}, "Depth": {...}, "Balance": {...}, "Breadth": {...}, "Support": {...}, "Insightfulness": {...}}`

// Judge calls client with a rating prompt and parses its JSON response. A
// non-2xx-shaped or unparseable response yields a Result carrying Error,
// never a Go error — the caller always has something to persist.
func Judge(ctx context.Context, client llm.Client, userQuery, outlineMarkdown string) Result {
	prompt := fmt.Sprintf(promptTemplate, userQuery, outlineMarkdown, strings.Join(Criteria, ", "))

	raw, err := client.Complete(ctx, []llm.Message{
		{Role: "system", Content: "You are a meticulous research-report outline evaluator. Output JSON only."},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return Result{Error: fmt.Sprintf("judge llm call failed: %v", err)}
	}

	payload, err := helpers.ExtractJSON(raw)
	if err != nil {
		payload = raw
	}
	var ratings map[string]Rating
	if err := json.Unmarshal([]byte(payload), &ratings); err != nil {
		return Result{Error: fmt.Sprintf("judge response not valid JSON: %v", err)}
	}
	for _, c := range Criteria {
		if _, ok := ratings[c]; !ok {
			return Result{Error: fmt.Sprintf("judge response missing criterion %q", c)}
		}
	}
	return Result{Ratings: ratings}
}
