// Package writeragent implements the Writer Agent (C8): the per-section
// ReAct loop that turns a committed outline and the Evidence Bank into the
// final report, enforcing the used_ids_global once-per-ID discipline and
// per-section step/char budgets.
package writeragent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/oedrhq/engine/config"
	"github.com/oedrhq/engine/internal/action"
	"github.com/oedrhq/engine/internal/budget"
	"github.com/oedrhq/engine/internal/evidence"
	"github.com/oedrhq/engine/internal/helpers"
	"github.com/oedrhq/engine/internal/journal"
	"github.com/oedrhq/engine/internal/llm"
	"github.com/oedrhq/engine/internal/outline"
	"github.com/oedrhq/engine/internal/searchindex"
)

const omittedSectionBody = "<section omitted: no content generated>"

// noCitationNote is appended to any sealed, non-omitted section that used
// no evidence at all, per the zero-citation boundary case: the report must
// never present unsupported prose as if it were cited.
const noCitationNote = "*No external source supports this section.*"

// Section is one sealed section of the final report.
type Section struct {
	NodeID        string
	Markdown      string
	UsedCitations []string
	Omitted       bool
}

// Report is the Writer's finished output: the report body plus the
// References section data needed to render it.
type Report struct {
	Sections      []Section
	UsedIDsGlobal []string // first-use order, across all sections
	Markdown      string   // fully assembled report.md body
}

// Agent runs the Writer ReAct loop, one section at a time, sequentially.
type Agent struct {
	llmClient llm.Client
	bank      *evidence.Bank
	jrnl      *journal.Journal
	cfg       config.WriterConfig
	logger    *log.Logger
}

// New constructs a Writer Agent wired to its collaborators.
func New(llmClient llm.Client, bank *evidence.Bank, jrnl *journal.Journal, cfg config.WriterConfig) *Agent {
	return &Agent{
		llmClient: llmClient,
		bank:      bank,
		jrnl:      jrnl,
		cfg:       cfg,
		logger:    log.New(log.Writer(), "[WRITER] ", log.LstdFlags),
	}
}

// Run writes every section at the configured write_level, depth-first in
// document order, then assembles the final report including References.
// alreadyWritten carries sections recovered from a resumed run's journal
// (keyed by NodeID) so they are skipped rather than rewritten.
func (a *Agent) Run(ctx context.Context, userQuery string, root *outline.Node, alreadyWritten map[string]Section) (Report, error) {
	level := a.cfg.WriteLevel
	if level <= 0 {
		level = 2
	}
	targets := outline.NodesAtLevel(root, level)

	var sections []Section
	usedGlobal := make([]string, 0)
	usedSet := make(map[string]struct{})
	for _, prior := range alreadyWritten {
		for _, c := range prior.UsedCitations {
			if _, ok := usedSet[c]; !ok {
				usedSet[c] = struct{}{}
				usedGlobal = append(usedGlobal, c)
			}
		}
	}

	for _, node := range targets {
		if prior, ok := alreadyWritten[node.ID]; ok {
			sections = append(sections, prior)
			continue
		}

		sec, used := a.writeSection(ctx, userQuery, root, node, usedSet)
		sec = ensureCitationNote(sec, used)
		sec.UsedCitations = used
		sections = append(sections, sec)
		for _, id := range used {
			if _, ok := usedSet[id]; !ok {
				usedSet[id] = struct{}{}
				usedGlobal = append(usedGlobal, id)
			}
		}
		a.jrnl.Append(journal.KindSectionWritten, map[string]any{
			"node_id":        sec.NodeID,
			"markdown":       sec.Markdown,
			"used_citations": sec.UsedCitations,
			"omitted":        sec.Omitted,
		})
	}

	report := assembleReport(sections, a.citationsFor(usedGlobal))
	return Report{Sections: sections, UsedIDsGlobal: usedGlobal, Markdown: report}, nil
}

// writeSection runs the ReAct loop for a single section and returns it
// sealed, plus the citation IDs it actually used.
func (a *Agent) writeSection(ctx context.Context, userQuery string, root *outline.Node, node *outline.Node, usedGlobal map[string]struct{}) (Section, []string) {
	candidateIDs := dedupeStrings(outline.DescendantCitations(node))
	candidates := a.bank.Summaries(candidateIDs)

	idx, err := searchindex.New()
	if err != nil {
		a.logError(fmt.Sprintf("build section index for %s: %v", node.ID, err))
	} else {
		defer idx.Close()
		for _, c := range candidates {
			if ierr := idx.Add(c.ID, c.Summary); ierr != nil {
				a.logError(fmt.Sprintf("index %s: %v", c.ID, ierr))
			}
		}
	}

	stepBudget := budget.NewStepBudget(a.cfg.MaxStepsPerSection, a.cfg.MaxCharsPerSection)
	localUsed := make(map[string]struct{})
	var usedOrder []string
	var draft strings.Builder
	var lastObservation string
	var protoRetries int
	wrote := false

	for {
		if err := stepBudget.Step(); err != nil {
			break
		}

		messages := a.buildPrompt(userQuery, root, node, candidates, draft.String(), lastObservation)
		raw, err := a.llmClient.Complete(ctx, messages)
		if err != nil {
			a.logError(fmt.Sprintf("writer llm call for %s: %v", node.ID, err))
			continue
		}

		act, perr := action.Parse(raw)
		if perr != nil {
			protoRetries++
			if protoRetries > a.cfg.MaxStepsPerSection {
				break
			}
			lastObservation = fmt.Sprintf("Your previous response did not contain a valid action tag (%v). Emit exactly one of <tool_call>, <write>, or <terminate>.", perr)
			continue
		}
		protoRetries = 0
		lastObservation = ""

		switch act.Kind {
		case action.KindToolCall:
			obs, ids := a.dispatchRetrieve(act.Call, candidateIDs, usedGlobal, idx)
			lastObservation = obs
			for _, id := range ids {
				if _, ok := localUsed[id]; !ok {
					localUsed[id] = struct{}{}
					usedOrder = append(usedOrder, id)
				}
			}
			a.jrnl.Append(journal.KindSectionRetrieved, map[string]any{"node_id": node.ID, "ids": ids})

		case action.KindWrite:
			if cerr := stepBudget.AddChars(len(act.Markdown)); cerr != nil {
				remaining := a.cfg.MaxCharsPerSection - draft.Len()
				if remaining > 0 && remaining < len(act.Markdown) {
					draft.WriteString(act.Markdown[:remaining])
				}
				wrote = true
				a.jrnl.Append(journal.KindWriterStep, map[string]any{"node_id": node.ID, "action": "write", "truncated": true})
				goto sealed
			}
			draft.WriteString(act.Markdown)
			draft.WriteString("\n\n")
			wrote = true

		case action.KindTerminate:
			a.jrnl.Append(journal.KindWriterStep, map[string]any{"node_id": node.ID, "action": "terminate"})
			goto sealed
		}

		a.jrnl.Append(journal.KindWriterStep, map[string]any{"node_id": node.ID, "action": string(act.Kind)})
	}

sealed:
	if !wrote {
		return a.fallbackSection(ctx, userQuery, root, node, candidates)
	}
	body := strings.TrimSpace(draft.String())
	used := usedInText(body, candidates)
	cited := make(map[string]struct{}, len(used))
	for _, id := range used {
		cited[id] = struct{}{}
	}
	for _, id := range usedOrder {
		if _, ok := cited[id]; !ok && strings.Contains(body, id) {
			used = append(used, id)
		}
	}
	return Section{NodeID: node.ID, Markdown: body}, used
}

// fallbackSection is the single-turn retry the spec requires when a
// section never produces a Write action: ask once more for the whole
// section body using every candidate, and if that also fails, omit it.
func (a *Agent) fallbackSection(ctx context.Context, userQuery string, root *outline.Node, node *outline.Node, candidates []evidence.Summary) (Section, []string) {
	messages := a.buildFallbackPrompt(userQuery, root, node, candidates)
	raw, err := a.llmClient.Complete(ctx, messages)
	if err == nil {
		if act, perr := action.Parse(raw); perr == nil && act.Kind == action.KindWrite && strings.TrimSpace(act.Markdown) != "" {
			usedIDs := usedInText(act.Markdown, candidates)
			return Section{NodeID: node.ID, Markdown: strings.TrimSpace(act.Markdown)}, usedIDs
		}
	}
	a.logError(fmt.Sprintf("section %s: no content generated after fallback", node.ID))
	return Section{NodeID: node.ID, Markdown: omittedSectionBody, Omitted: true}, nil
}

// dispatchRetrieve handles a Writer tool_call, which is always a Retrieve
// variant: either by explicit citation_ids, or by query/top_k against the
// section's lexical index. Returns the observation text plus the IDs
// resolved (for used_ids_global bookkeeping).
func (a *Agent) dispatchRetrieve(call action.ToolCall, candidateIDs []string, usedGlobal map[string]struct{}, idx *searchindex.Index) (string, []string) {
	if call.Name != "retrieve" {
		return fmt.Sprintf("Unknown tool %q; the only supported tool is \"retrieve\".", call.Name), nil
	}
	if verr := action.ValidateToolCall(call); verr != nil {
		return verr.Error(), nil
	}

	var args struct {
		CitationIDs []string `json:"citation_ids"`
		Query       string   `json:"query"`
		TopK        int      `json:"top_k"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return fmt.Sprintf("retrieve tool_call arguments were not valid JSON: %v", err), nil
	}

	if len(args.CitationIDs) > 0 {
		evs, err := a.bank.BulkGet(args.CitationIDs)
		if err != nil {
			return err.Error(), nil
		}
		// Explicit citation_ids requests are always permitted, even for an
		// ID already in used_ids_global — the spec allows a flagged repeat
		// rather than a silent skip, since the Writer asked by exact ID.
		var b strings.Builder
		var resolved []string
		for _, ev := range evs {
			resolved = append(resolved, ev.ID)
			if _, already := usedGlobal[ev.ID]; already {
				a.logError(fmt.Sprintf("writer re-requested already-used evidence %s by explicit id", ev.ID))
			}
			fmt.Fprintf(&b, "%s (%s): %s\n", ev.ID, ev.Source.URL, ev.Summary)
			for _, item := range ev.Items {
				fmt.Fprintf(&b, "  - [%s] %s\n", item.Type, item.Content)
			}
		}
		return b.String(), resolved
	}

	if strings.TrimSpace(args.Query) == "" {
		return "retrieve requires either citation_ids or a non-empty query.", nil
	}
	topK := args.TopK
	if topK <= 0 {
		topK = 5
	}
	if idx == nil {
		return "section index unavailable; retry with explicit citation_ids.", nil
	}
	hits, err := idx.Search(args.Query, topK)
	if err != nil || len(hits) == 0 {
		hits = substringFallback(args.Query, candidateIDs, a.bank, topK)
	}
	var fresh []string
	for _, id := range hits {
		if _, already := usedGlobal[id]; !already {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		fresh = hits
	}
	evs, err := a.bank.BulkGet(fresh)
	if err != nil {
		return err.Error(), nil
	}
	var b strings.Builder
	for _, ev := range evs {
		fmt.Fprintf(&b, "%s (%s): %s\n", ev.ID, ev.Source.URL, ev.Summary)
	}
	return b.String(), fresh
}

func substringFallback(query string, candidateIDs []string, bank *evidence.Bank, topK int) []string {
	q := strings.ToLower(query)
	summaries := bank.Summaries(candidateIDs)
	var hits []string
	for _, s := range summaries {
		if strings.Contains(strings.ToLower(s.Summary), q) {
			hits = append(hits, s.ID)
		}
		if len(hits) >= topK {
			break
		}
	}
	return hits
}

func usedInText(text string, candidates []evidence.Summary) []string {
	var out []string
	for _, c := range candidates {
		if strings.Contains(text, c.ID) {
			out = append(out, c.ID)
		}
	}
	return out
}

// ensureCitationNote guarantees the zero-citation boundary case is visible
// in the rendered report rather than left to the LLM's free-text judgment:
// a sealed, non-omitted section that used no evidence gets the explicit
// note appended, verbatim and deterministic.
func ensureCitationNote(sec Section, used []string) Section {
	if sec.Omitted || len(used) > 0 {
		return sec
	}
	if strings.Contains(sec.Markdown, noCitationNote) {
		return sec
	}
	sec.Markdown = strings.TrimRight(sec.Markdown, "\n") + "\n\n" + noCitationNote
	return sec
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func (a *Agent) logError(msg string) {
	a.logger.Print(msg)
	a.jrnl.Append(journal.KindError, map[string]any{"message": msg})
}

// citationsFor resolves the final used_ids_global list into the Citation
// values the References section needs, dropping any ID that has vanished
// from the Bank (should not happen, defensive only at render time).
func (a *Agent) citationsFor(ids []string) []helpers.Citation {
	out := make([]helpers.Citation, 0, len(ids))
	for _, id := range ids {
		ev, err := a.bank.Get(id)
		if err != nil {
			continue
		}
		out = append(out, helpers.Citation{
			SourceID:  ev.ID,
			Title:     ev.Source.Title,
			Publisher: ev.Source.Publisher,
			Date:      ev.Source.PublishedAt,
			URL:       ev.Source.URL,
		})
	}
	return out
}
