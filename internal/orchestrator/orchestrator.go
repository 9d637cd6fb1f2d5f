// Package orchestrator implements the Orchestrator (C10): run directory
// allocation, Planner -> Writer sequencing, global timeout enforcement,
// and the resume protocol that replays the Event Journal to pick a run
// back up after a crash or cancellation.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/oedrhq/engine/config"
	"github.com/oedrhq/engine/internal/cache"
	"github.com/oedrhq/engine/internal/evidence"
	"github.com/oedrhq/engine/internal/fetch"
	"github.com/oedrhq/engine/internal/journal"
	"github.com/oedrhq/engine/internal/judge"
	"github.com/oedrhq/engine/internal/llm"
	"github.com/oedrhq/engine/internal/outline"
	"github.com/oedrhq/engine/internal/planneragent"
	"github.com/oedrhq/engine/internal/search"
	"github.com/oedrhq/engine/internal/store"
	"github.com/oedrhq/engine/internal/telemetry"
	"github.com/oedrhq/engine/internal/writeragent"
)

// Status is the terminal outcome of a run, mirroring the CLI's exit codes:
// 0 for StatusCompleted, 2 for StatusPartial, 1 for StatusFatal.
type Status string

const (
	StatusCompleted Status = store.StatusCompleted
	StatusPartial   Status = store.StatusPartial
	StatusFatal     Status = store.StatusFatal
)

// Outcome is what the Orchestrator returns once a run reaches a terminal
// state, successful or not.
type Outcome struct {
	RunID      string
	RunDir     string
	Status     Status
	ReportPath string
	Err        error
}

// Orchestrator wires the two agent loops, the Outline Judge, and every
// collaborator they need, and drives one run from allocation to final
// artifact write.
type Orchestrator struct {
	llmClient llm.Client
	searchP   search.Provider
	fetcher   fetch.Fetcher
	tel       *telemetry.Telemetry
	runIndex  *store.Store // optional; nil when Postgres is unconfigured
	claims    cache.HashClaims // optional; nil falls back to in-process-only dedup
	cfg       *config.Config
	logger    *log.Logger
}

// New constructs an Orchestrator. runIndex may be nil: the journal alone
// is authoritative for resume, and the Postgres run index is a queryable
// convenience layered on top. claims may be nil: cross-run URL dedup is
// then skipped and the Evidence Bank's in-process dedup is the only guard.
func New(llmClient llm.Client, searchP search.Provider, fetcher fetch.Fetcher, tel *telemetry.Telemetry, runIndex *store.Store, claims cache.HashClaims, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		llmClient: llmClient,
		searchP:   searchP,
		fetcher:   fetcher,
		tel:       tel,
		runIndex:  runIndex,
		claims:    claims,
		cfg:       cfg,
		logger:    log.New(log.Writer(), "[ORCHESTRATOR] ", log.LstdFlags),
	}
}

// NewRunID mints a run_<ts>_<8hex> identifier, bit-exact with the spec's
// run directory naming convention.
func NewRunID() string {
	ts := time.Now().UTC().Format("20060102T150405Z")
	return fmt.Sprintf("run_%s_%s", ts, uuid.NewString()[:8])
}

// Run starts a brand-new run for userQuery and drives it to completion.
func (o *Orchestrator) Run(ctx context.Context, userQuery string) Outcome {
	return o.RunWithID(ctx, NewRunID(), userQuery)
}

// RunWithID starts a brand-new run under a caller-chosen runID. It exists
// so a caller that must hand back the run_id before the run finishes (the
// HTTP submit endpoint) can allocate the ID up front and pass it through.
func (o *Orchestrator) RunWithID(ctx context.Context, runID, userQuery string) Outcome {
	runDir := filepath.Join(o.cfg.General.ArtifactsDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return Outcome{RunID: runID, Status: StatusFatal, Err: fmt.Errorf("create run directory: %w", err)}
	}
	return o.execute(ctx, runID, runDir, userQuery, true, nil, nil, false, nil)
}

// Continue resumes an existing run by replaying its journal and picking
// up from the first incomplete phase.
func (o *Orchestrator) Continue(ctx context.Context, runID string) Outcome {
	runDir := filepath.Join(o.cfg.General.ArtifactsDir, runID)
	if _, err := os.Stat(runDir); err != nil {
		return Outcome{RunID: runID, Status: StatusFatal, Err: fmt.Errorf("run directory not found: %w", err)}
	}

	state, err := replayState(filepath.Join(runDir, "events.jsonl"))
	if err != nil {
		return Outcome{RunID: runID, Status: StatusFatal, Err: fmt.Errorf("replay journal: %w", err)}
	}
	if state.userQuery == "" {
		return Outcome{RunID: runID, Status: StatusFatal, Err: fmt.Errorf("journal has no run_started event to recover user query from")}
	}

	return o.execute(ctx, runID, runDir, state.userQuery, false, state.outline, state.pastQueries, state.plannerDone, state.writtenSections)
}

func (o *Orchestrator) execute(ctx context.Context, runID, runDir, userQuery string, fresh bool, startOutline *outline.Node, pastQueries []string, plannerDone bool, writtenSections map[string]writeragent.Section) Outcome {
	timeout := o.cfg.General.RunTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	jrnl, err := journal.Open(runDir, runID)
	if err != nil {
		return Outcome{RunID: runID, Status: StatusFatal, Err: fmt.Errorf("open journal: %w", err)}
	}
	defer jrnl.Close()

	if redisClaims, ok := o.claims.(*cache.RedisHashClaims); ok {
		jrnl.SetMirror(journal.NewRedisMirror(redisClaims.Client(), runID, 0))
	}

	if fresh {
		jrnl.Append(journal.KindRunStarted, map[string]any{"user_query": userQuery})
	}

	bank, err := evidence.Open(filepath.Join(runDir, "evidence_bank"), journalRecorder{jrnl})
	if err != nil {
		o.finish(jrnl, runID, StatusFatal, fmt.Errorf("open evidence bank: %w", err))
		return Outcome{RunID: runID, RunDir: runDir, Status: StatusFatal, Err: err}
	}
	defer bank.Close()

	o.recordRun(ctx, runID, runDir, userQuery, store.StatusInProgress)

	finalOutline, plannerErr := o.runPlanner(ctx, userQuery, startOutline, pastQueries, plannerDone, bank, jrnl)
	if plannerErr != nil {
		o.finish(jrnl, runID, StatusFatal, plannerErr)
		o.recordRun(ctx, runID, runDir, userQuery, store.StatusFatal)
		return Outcome{RunID: runID, RunDir: runDir, Status: StatusFatal, Err: plannerErr}
	}
	if err := jrnl.Err(); err != nil {
		o.finish(jrnl, runID, StatusFatal, err)
		o.recordRun(ctx, runID, runDir, userQuery, store.StatusFatal)
		return Outcome{RunID: runID, RunDir: runDir, Status: StatusFatal, Err: fmt.Errorf("run directory unwritable: %w", err)}
	}
	if finalOutline == nil {
		// The Planner terminated (stagnation or step_limit) without ever
		// committing a write_outline action. Per the empty-evidence and
		// budget-enforcement boundary cases, this is not fatal: the run
		// still produces a minimal report stating the evidence gap, and
		// exits partial rather than erroring out.
		return o.emitInsufficientEvidenceReport(ctx, jrnl, runID, runDir, userQuery)
	}
	if err := os.WriteFile(filepath.Join(runDir, "outline.md"), []byte(outline.Render(finalOutline)), 0o644); err != nil {
		o.logger.Printf("write outline.md: %v", err)
	}

	judgeResult := judge.Judge(ctx, o.llmClient, userQuery, outline.Render(finalOutline))
	if raw, err := json.MarshalIndent(judgeResult, "", "  "); err == nil {
		os.WriteFile(filepath.Join(runDir, "outline_judgement.json"), raw, 0o644)
		if o.runIndex != nil {
			o.runIndex.SaveJudgeResult(ctx, runID, raw)
		}
	}

	writer := writeragent.New(o.llmClient, bank, jrnl, o.cfg.Writer)
	report, werr := writer.Run(ctx, userQuery, finalOutline, writtenSections)

	reportPath := filepath.Join(runDir, "report.md")
	status := StatusCompleted
	if werr != nil {
		status = StatusPartial
		report.Markdown += "\n<!-- incomplete -->\n"
	}
	for _, s := range report.Sections {
		if s.Omitted {
			status = StatusPartial
		}
	}
	if err := jrnl.Err(); err != nil {
		o.finish(jrnl, runID, StatusFatal, err)
		o.recordRun(ctx, runID, runDir, userQuery, store.StatusFatal)
		return Outcome{RunID: runID, RunDir: runDir, Status: StatusFatal, Err: fmt.Errorf("run directory unwritable: %w", err)}
	}
	if err := os.WriteFile(reportPath, []byte(report.Markdown), 0o644); err != nil {
		o.finish(jrnl, runID, StatusFatal, fmt.Errorf("write report.md: %w", err))
		o.recordRun(ctx, runID, runDir, userQuery, store.StatusFatal)
		return Outcome{RunID: runID, RunDir: runDir, Status: StatusFatal, Err: err}
	}

	o.finish(jrnl, runID, status, nil)
	o.recordRun(ctx, runID, runDir, userQuery, string(status))
	o.logger.Print(o.tel.Report())

	return Outcome{RunID: runID, RunDir: runDir, Status: status, ReportPath: reportPath}
}

// insufficientEvidenceOutline is the one-section fallback outline
// synthesized when the Planner terminates without ever committing a
// write_outline action: a single write-level section whose only content
// is the evidence-gap note, carrying no citations.
func insufficientEvidenceOutline() *outline.Node {
	return &outline.Node{
		ID:    "sec_1",
		Title: "Report",
		Level: 1,
		Children: []*outline.Node{
			{
				ID:      "sec_1_1",
				Title:   "Findings",
				Level:   2,
				Bullets: []string{"Insufficient evidence gathered."},
			},
		},
	}
}

// emitInsufficientEvidenceReport handles the empty-evidence and
// budget-enforcement boundary cases: the Planner reached stagnation or its
// step limit before ever calling write_outline, so there is nothing for
// the Writer to draw on. Rather than failing the run, it writes a minimal
// fallback outline and a one-section report stating the gap explicitly,
// and returns partial rather than fatal.
func (o *Orchestrator) emitInsufficientEvidenceReport(ctx context.Context, jrnl *journal.Journal, runID, runDir, userQuery string) Outcome {
	fallback := insufficientEvidenceOutline()
	if err := os.WriteFile(filepath.Join(runDir, "outline.md"), []byte(outline.Render(fallback)), 0o644); err != nil {
		o.logger.Printf("write outline.md: %v", err)
	}

	const body = "# Report\n\nInsufficient evidence gathered.\n"
	reportPath := filepath.Join(runDir, "report.md")
	if err := os.WriteFile(reportPath, []byte(body), 0o644); err != nil {
		o.finish(jrnl, runID, StatusFatal, fmt.Errorf("write report.md: %w", err))
		o.recordRun(ctx, runID, runDir, userQuery, store.StatusFatal)
		return Outcome{RunID: runID, RunDir: runDir, Status: StatusFatal, Err: err}
	}

	jrnl.Append(journal.KindSectionWritten, map[string]any{
		"node_id":  fallback.Children[0].ID,
		"markdown": "Insufficient evidence gathered.",
		"omitted":  false,
	})
	jrnl.Append(journal.KindWriterTerminated, map[string]any{"reason": "no_outline"})

	if err := jrnl.Err(); err != nil {
		o.finish(jrnl, runID, StatusFatal, err)
		o.recordRun(ctx, runID, runDir, userQuery, store.StatusFatal)
		return Outcome{RunID: runID, RunDir: runDir, Status: StatusFatal, Err: fmt.Errorf("run directory unwritable: %w", err)}
	}

	o.finish(jrnl, runID, StatusPartial, nil)
	o.recordRun(ctx, runID, runDir, userQuery, string(StatusPartial))
	return Outcome{RunID: runID, RunDir: runDir, Status: StatusPartial, ReportPath: reportPath}
}

func (o *Orchestrator) runPlanner(ctx context.Context, userQuery string, startOutline *outline.Node, pastQueries []string, plannerDone bool, bank *evidence.Bank, jrnl *journal.Journal) (*outline.Node, error) {
	if plannerDone {
		return startOutline, nil
	}
	fetchConc := o.cfg.Fetch.Concurrency
	agent := planneragent.New(o.llmClient, o.searchP, o.fetcher, bank, jrnl, o.tel, o.cfg.Planner, o.cfg.Search, fetchConc, o.claims)
	result, err := agent.Run(ctx, userQuery, startOutline, pastQueries)
	if err != nil {
		return nil, err
	}
	return result.Outline, nil
}

func (o *Orchestrator) finish(jrnl *journal.Journal, runID string, status Status, cause error) {
	payload := map[string]any{"status": string(status)}
	if cause != nil {
		payload["error"] = cause.Error()
	}
	jrnl.Append(journal.KindRunFinished, payload)
}

func (o *Orchestrator) recordRun(ctx context.Context, runID, runDir, query, status string) {
	if o.runIndex == nil {
		return
	}
	now := time.Now().UTC()
	if err := o.runIndex.UpsertRun(ctx, store.Run{RunID: runID, Query: query, Status: status, ArtifactsDir: runDir, StartedAt: now, UpdatedAt: now}); err != nil {
		o.logger.Printf("record run %s in index: %v", runID, err)
	}
}

// journalRecorder adapts *journal.Journal to evidence.EventRecorder, since
// the journal's Append signature (kind, payload) differs from the Bank's
// typed callback.
type journalRecorder struct {
	jrnl *journal.Journal
}

func (r journalRecorder) RecordEvidenceAdded(ev evidence.Evidence) {
	r.jrnl.Append(journal.KindEvidenceAdded, map[string]any{
		"id":  ev.ID,
		"url": ev.Source.URL,
	})
}
