// Package planneragent implements the Planner Agent (C7): the ReAct loop
// that issues Search, WriteOutline, and Terminate actions against the
// Evidence Bank and the committed outline, subject to step, stagnation,
// and fetch-budget termination policies.
package planneragent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/oedrhq/engine/config"
	"github.com/oedrhq/engine/internal/action"
	"github.com/oedrhq/engine/internal/budget"
	"github.com/oedrhq/engine/internal/cache"
	"github.com/oedrhq/engine/internal/evidence"
	"github.com/oedrhq/engine/internal/fetch"
	"github.com/oedrhq/engine/internal/journal"
	"github.com/oedrhq/engine/internal/llm"
	"github.com/oedrhq/engine/internal/outline"
	"github.com/oedrhq/engine/internal/search"
	"github.com/oedrhq/engine/internal/telemetry"
)

// ProtocolExhausted is the fatal error raised when the LLM fails to emit a
// parseable action after the per-step retry budget is exhausted. It is
// recoverable by resume: the orchestrator journals run_finished(fatal) and
// a later `continue` re-enters the Planner loop fresh.
type ProtocolExhausted struct {
	Retries int
	Last    error
}

func (e ProtocolExhausted) Error() string {
	return fmt.Sprintf("planner protocol exhausted after %d retries: %v", e.Retries, e.Last)
}

func (e ProtocolExhausted) Unwrap() error { return e.Last }

// Result is the outcome of a completed Planner loop.
type Result struct {
	Outline *outline.Node
	Reason  string // terminate | step_limit | stagnation | fetch_limit
}

// Agent runs the Planner ReAct loop for a single run.
type Agent struct {
	llmClient llm.Client
	searchP   search.Provider
	fetcher   fetch.Fetcher
	bank      *evidence.Bank
	jrnl      *journal.Journal
	tel       *telemetry.Telemetry
	cfg       config.PlannerConfig
	searchCfg config.SearchConfig
	fetchConc int
	claims    cache.HashClaims
	logger    *log.Logger
}

// New constructs a Planner Agent wired to its collaborators. claims may be
// nil, in which case URL claiming is skipped and dedup relies solely on the
// Evidence Bank's own in-process, per-run hash check.
func New(llmClient llm.Client, searchP search.Provider, fetcher fetch.Fetcher, bank *evidence.Bank, jrnl *journal.Journal, tel *telemetry.Telemetry, cfg config.PlannerConfig, searchCfg config.SearchConfig, fetchConcurrency int, claims cache.HashClaims) *Agent {
	if fetchConcurrency <= 0 {
		fetchConcurrency = 4
	}
	if claims == nil {
		claims = cache.NoopHashClaims{}
	}
	return &Agent{
		llmClient: llmClient,
		searchP:   searchP,
		fetcher:   fetcher,
		bank:      bank,
		jrnl:      jrnl,
		tel:       tel,
		cfg:       cfg,
		searchCfg: searchCfg,
		fetchConc: fetchConcurrency,
		claims:    claims,
		logger:    log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// Run executes the Planner loop from scratch (startOutline nil) or from a
// resumed outline, until a termination policy fires.
func (a *Agent) Run(ctx context.Context, userQuery string, startOutline *outline.Node, pastQueries []string) (Result, error) {
	stepBudget := budget.NewStepBudget(a.cfg.MaxSteps, 0)
	current := startOutline
	seen := make(map[string]struct{}, len(pastQueries))
	for _, q := range pastQueries {
		seen[normalizeQuery(q)] = struct{}{}
	}
	queries := append([]string{}, pastQueries...)

	var lastObservation string
	var protoRetries int
	var stagnation int
	var fetchesSoFar int

	for {
		if err := stepBudget.Step(); err != nil {
			a.terminate(current, "step_limit")
			return Result{Outline: current, Reason: "step_limit"}, nil
		}

		messages := a.buildPrompt(userQuery, current, queries, lastObservation)
		a.tel.RecordPlannerStep(ctx)

		raw, err := a.llmClient.Complete(ctx, messages)
		if err != nil {
			a.logError(fmt.Sprintf("planner llm call: %v", err))
			continue
		}

		act, perr := action.Parse(raw)
		if perr != nil {
			protoRetries++
			a.tel.RecordProtocolError()
			if protoRetries > a.cfg.MaxRetries {
				a.logError(fmt.Sprintf("planner protocol exhausted after %d retries: %v", protoRetries, perr))
				return Result{}, ProtocolExhausted{Retries: protoRetries, Last: perr}
			}
			lastObservation = fmt.Sprintf("Your previous response did not contain a valid action tag (%v). Emit exactly one of <tool_call>, <write_outline>, or <terminate>.", perr)
			continue
		}
		protoRetries = 0
		lastObservation = ""

		before := a.bank.Stats().Count
		outlineChanged := false

		switch act.Kind {
		case action.KindToolCall:
			if act.Call.Name != "search" {
				lastObservation = fmt.Sprintf("Unknown tool %q; the only supported tool is \"search\".", act.Call.Name)
				break
			}
			if verr := action.ValidateToolCall(act.Call); verr != nil {
				lastObservation = verr.Error()
				break
			}
			var args struct {
				Queries []string `json:"queries"`
				Goal    string   `json:"goal"`
			}
			if err := json.Unmarshal(act.Call.Arguments, &args); err != nil || len(args.Queries) == 0 {
				lastObservation = "search tool_call requires a non-empty \"queries\" array argument."
				break
			}
			var fresh []string
			for _, q := range args.Queries {
				q = strings.TrimSpace(q)
				if q == "" {
					continue
				}
				norm := normalizeQuery(q)
				if _, dup := seen[norm]; dup {
					continue
				}
				seen[norm] = struct{}{}
				fresh = append(fresh, q)
			}
			if len(fresh) == 0 {
				lastObservation = "Every query in this batch was already searched this run; try different angles."
				break
			}
			// Fan out each new query to C2 in turn, same as a single-query
			// Search action, so per-query dedup/journaling is unaffected by
			// batching several queries into one action.
			for _, q := range fresh {
				queries = append(queries, q)
				added, fetched := a.dispatchSearch(ctx, q)
				fetchesSoFar += fetched
				a.jrnl.Append(journal.KindSearchIssued, map[string]any{"query": q, "goal": args.Goal, "evidence_added": added, "fetched": fetched})
				if a.cfg.MaxFetches > 0 && fetchesSoFar >= a.cfg.MaxFetches {
					break
				}
			}

		case action.KindWriteOutline:
			parsed, err := outline.Parse(act.Outline)
			if err == nil {
				err = outline.ValidateLevels(parsed)
			}
			if err == nil {
				err = outline.ValidateStructure(parsed)
			}
			if err == nil {
				err = outline.ValidateCitations(parsed, a.bank)
			}
			if err != nil {
				lastObservation = fmt.Sprintf("write_outline rejected: %v", err)
				break
			}
			current = parsed
			outlineChanged = true
			a.jrnl.Append(journal.KindOutlineUpdated, map[string]any{"markdown": outline.Render(parsed)})

		case action.KindTerminate:
			reason := strings.TrimSpace(act.Reason)
			if reason == "" {
				reason = "llm_requested"
			}
			a.terminate(current, reason)
			return Result{Outline: current, Reason: "terminate"}, nil
		}

		a.jrnl.Append(journal.KindPlannerStep, map[string]any{"action": string(act.Kind)})

		after := a.bank.Stats().Count
		if after == before && !outlineChanged {
			stagnation++
		} else {
			stagnation = 0
		}
		if a.cfg.StagnationLimit > 0 && stagnation >= a.cfg.StagnationLimit {
			a.terminate(current, "stagnation")
			return Result{Outline: current, Reason: "stagnation"}, nil
		}
		if a.cfg.MaxFetches > 0 && fetchesSoFar >= a.cfg.MaxFetches {
			a.terminate(current, "fetch_limit")
			return Result{Outline: current, Reason: "fetch_limit"}, nil
		}
	}
}

func (a *Agent) terminate(current *outline.Node, reason string) {
	a.jrnl.Append(journal.KindPlannerTerminated, map[string]any{"reason": reason})
}

func (a *Agent) logError(msg string) {
	a.logger.Print(msg)
	a.jrnl.Append(journal.KindError, map[string]any{"message": msg})
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

func readinessNote(current *outline.Node, bank *evidence.Bank, minEvidence int) string {
	count := bank.Stats().Count
	if current == nil {
		return fmt.Sprintf("No outline committed yet. %d evidence items gathered.", count)
	}
	leaves := 0
	uncited := 0
	var walk func(n *outline.Node)
	walk = func(n *outline.Node) {
		if len(n.Children) == 0 {
			leaves++
			if len(n.Citations) == 0 {
				uncited++
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(current)
	ready := uncited == 0 && count >= minEvidence
	if ready {
		return fmt.Sprintf("Outline committed with %d leaves, all cited. %d evidence items gathered (>= minimum %d). Consider Terminate.", leaves, count, minEvidence)
	}
	return fmt.Sprintf("Outline committed with %d leaves (%d uncited). %d evidence items gathered (minimum %d).", leaves, uncited, count, minEvidence)
}

const plannerSystemPrompt = `You are the planning half of a two-agent research system. Each turn you must emit exactly one action, wrapped in exactly one of these tags:
<tool_call>{"name":"search","arguments":{"queries":["...","..."],"goal":"..."}}</tool_call>
<write_outline>
# Title
<!-- id:sec_1 -->
- bullet point
<citation>ev_0001,ev_0002</citation>
## Subsection
<!-- id:sec_1_1 -->
- another bullet
<citation>ev_0003</citation>
</write_outline>
<terminate>reason</terminate>

Only evidence IDs already shown to you may appear inside a <citation> tag. Do not invent IDs. Do not emit prose outside a tag.`

func (a *Agent) buildPrompt(userQuery string, current *outline.Node, pastQueries []string, observation string) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "USER QUERY: %s\n\n", userQuery)
	fmt.Fprintf(&b, "STATUS: %s\n\n", readinessNote(current, a.bank, a.cfg.MinEvidence))

	if len(pastQueries) > 0 {
		fmt.Fprintf(&b, "PAST SEARCH QUERIES (do not repeat): %s\n\n", strings.Join(pastQueries, "; "))
	}

	if current != nil {
		fmt.Fprintf(&b, "CURRENT OUTLINE:\n%s\n", outline.Render(current))
	} else {
		b.WriteString("CURRENT OUTLINE: (none yet)\n\n")
	}

	summaries := a.bank.Summaries(nil)
	if len(summaries) > 0 {
		b.WriteString("EVIDENCE GATHERED SO FAR:\n")
		for _, s := range summaries {
			fmt.Fprintf(&b, "- %s (%s): %s\n", s.ID, s.URL, s.Summary)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("EVIDENCE GATHERED SO FAR: none\n\n")
	}

	if observation != "" {
		fmt.Fprintf(&b, "OBSERVATION (from your previous turn): %s\n\n", observation)
	}

	b.WriteString("Emit your next action now.")

	return []llm.Message{
		{Role: "system", Content: plannerSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}
