package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oedrhq/engine/config"
	"github.com/oedrhq/engine/internal/fetch"
	"github.com/oedrhq/engine/internal/llm"
	"github.com/oedrhq/engine/internal/search"
	"github.com/oedrhq/engine/internal/telemetry"
)

type scriptedLLM struct {
	calls int
	steps []string
}

func (s *scriptedLLM) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	if s.calls >= len(s.steps) {
		return s.steps[len(s.steps)-1], nil
	}
	out := s.steps[s.calls]
	s.calls++
	return out, nil
}

type stubSearch struct{ results []search.Result }

func (s stubSearch) Search(ctx context.Context, query string, k int) ([]search.Result, error) {
	return s.results, nil
}

type stubFetcher struct{ page fetch.Page }

func (s stubFetcher) Fetch(ctx context.Context, rawURL string) (fetch.Page, error) {
	p := s.page
	p.URL = rawURL
	return p, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		General: config.GeneralConfig{ArtifactsDir: dir},
		Planner: config.PlannerConfig{MaxSteps: 5, MaxRetries: 2, StagnationLimit: 3, MinEvidence: 1},
		Writer:  config.WriterConfig{WriteLevel: 2, MaxStepsPerSection: 4, MaxCharsPerSection: 4000},
		Search:  config.SearchConfig{MaxResults: 5, MaxURLsPerQuery: 3},
		Fetch:   config.FetchConfig{Concurrency: 2},
	}
}

// TestRun_EndToEndProducesReport drives a full Planner -> Writer sequence
// with stubbed collaborators and checks the final artifacts land on disk.
func TestRun_EndToEndProducesReport(t *testing.T) {
	llmClient := &scriptedLLM{steps: []string{
		`<tool_call>{"name":"search","arguments":{"queries":["topic background"]}}</tool_call>`,
		`["https://example.com/a"]`,
		"a one-paragraph summary of the page",
		`[{"type":"claim","content":"a notable claim","confidence":0.8}]`,
		"<write_outline>\n# Report\n<!-- id:sec_1 -->\n## Background\n<!-- id:sec_1_1 -->\n- cover the basics\n<citation>ev_0001</citation>\n</write_outline>",
		`<terminate>outline is ready</terminate>`,
		`{"InstructionFollowing": {"rating": 8, "justification": "x"}, "Depth": {"rating": 7, "justification": "x"}, "Balance": {"rating": 7, "justification": "x"}, "Breadth": {"rating": 6, "justification": "x"}, "Support": {"rating": 8, "justification": "x"}, "Insightfulness": {"rating": 6, "justification": "x"}}`,
		`<write>Background content citing [^ev_0001].</write>`,
		`<terminate>section complete</terminate>`,
	}}
	sp := stubSearch{results: []search.Result{{Title: "A", URL: "https://example.com/a", Snippet: "snippet"}}}
	fc := stubFetcher{page: fetch.Page{Title: "A Title", Text: "full article body text about the topic"}}
	tel := telemetry.New(telemetry.Config{Enabled: false})
	cfg := testConfig(t)

	o := New(llmClient, sp, fc, tel, nil, nil, cfg)
	outcome := o.Run(context.Background(), "topic background")

	if outcome.Err != nil {
		t.Fatalf("Run: %v", outcome.Err)
	}
	if outcome.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", outcome.Status, StatusCompleted)
	}

	reportBytes, err := os.ReadFile(outcome.ReportPath)
	if err != nil {
		t.Fatalf("read report.md: %v", err)
	}
	report := string(reportBytes)
	if !strings.Contains(report, "Background content") {
		t.Errorf("report missing section content: %s", report)
	}
	if !strings.Contains(report, "## References") {
		t.Errorf("report missing References: %s", report)
	}

	if _, err := os.Stat(filepath.Join(outcome.RunDir, "outline.md")); err != nil {
		t.Errorf("outline.md not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outcome.RunDir, "outline_judgement.json")); err != nil {
		t.Errorf("outline_judgement.json not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outcome.RunDir, "events.jsonl")); err != nil {
		t.Errorf("events.jsonl not written: %v", err)
	}
}

// TestContinue_ResumesFromCommittedOutline exercises the resume protocol:
// a prior run's journal already has a committed outline and a
// planner_terminated event, so Continue must skip straight to the Writer.
func TestContinue_ResumesFromCommittedOutline(t *testing.T) {
	cfg := testConfig(t)
	runID := "run_20260101T000000Z_deadbeef"
	runDir := filepath.Join(cfg.General.ArtifactsDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	seedEvidence(t, runDir)

	events := strings.Join([]string{
		`{"ts":"2026-01-01T00:00:00Z","run_id":"` + runID + `","step":1,"kind":"run_started","payload":{"user_query":"topic background"}}`,
		`{"ts":"2026-01-01T00:00:01Z","run_id":"` + runID + `","step":2,"kind":"outline_updated","payload":{"markdown":"# Report\n<!-- id:sec_1 -->\n## Background\n<!-- id:sec_1_1 -->\n- cover the basics\n<citation>ev_0001</citation>\n"}}`,
		`{"ts":"2026-01-01T00:00:02Z","run_id":"` + runID + `","step":3,"kind":"planner_terminated","payload":{"reason":"terminate"}}`,
	}, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(runDir, "events.jsonl"), []byte(events), 0o644); err != nil {
		t.Fatalf("write events.jsonl: %v", err)
	}

	llmClient := &scriptedLLM{steps: []string{
		`{"InstructionFollowing": {"rating": 8, "justification": "x"}, "Depth": {"rating": 7, "justification": "x"}, "Balance": {"rating": 7, "justification": "x"}, "Breadth": {"rating": 6, "justification": "x"}, "Support": {"rating": 8, "justification": "x"}, "Insightfulness": {"rating": 6, "justification": "x"}}`,
		`<write>Resumed background content citing [^ev_0001].</write>`,
		`<terminate>section complete</terminate>`,
	}}
	tel := telemetry.New(telemetry.Config{Enabled: false})
	o := New(llmClient, stubSearch{}, stubFetcher{}, tel, nil, nil, cfg)

	outcome := o.Continue(context.Background(), runID)
	if outcome.Err != nil {
		t.Fatalf("Continue: %v", outcome.Err)
	}
	report, err := os.ReadFile(outcome.ReportPath)
	if err != nil {
		t.Fatalf("read report.md: %v", err)
	}
	if !strings.Contains(string(report), "Resumed background content") {
		t.Errorf("report missing resumed content: %s", report)
	}
}

// TestRun_EmptyEvidenceProducesPartialReport covers the empty-evidence
// boundary case: every search comes back empty, the Planner stagnates
// before ever committing an outline, and the run still produces a
// minimal report rather than failing fatally.
func TestRun_EmptyEvidenceProducesPartialReport(t *testing.T) {
	llmClient := &scriptedLLM{steps: []string{
		`<tool_call>{"name":"search","arguments":{"queries":["quantum teleportation protocols"]}}</tool_call>`,
	}}
	sp := stubSearch{} // no results, ever
	fc := stubFetcher{}
	tel := telemetry.New(telemetry.Config{Enabled: false})
	cfg := testConfig(t)
	cfg.Planner.StagnationLimit = 1

	o := New(llmClient, sp, fc, tel, nil, nil, cfg)
	outcome := o.Run(context.Background(), "quantum teleportation protocols")

	if outcome.Err != nil {
		t.Fatalf("Run: %v", outcome.Err)
	}
	if outcome.Status != StatusPartial {
		t.Errorf("Status = %q, want %q", outcome.Status, StatusPartial)
	}
	report, err := os.ReadFile(outcome.ReportPath)
	if err != nil {
		t.Fatalf("read report.md: %v", err)
	}
	if !strings.Contains(string(report), "Insufficient evidence gathered.") {
		t.Errorf("report missing evidence-gap note: %s", report)
	}
	if _, err := os.Stat(filepath.Join(outcome.RunDir, "outline.md")); err != nil {
		t.Errorf("fallback outline.md not written: %v", err)
	}
}

// TestRun_StepLimitProducesPartialReport covers budget enforcement: the
// Planner hits max_planner_steps without ever calling write_outline.
func TestRun_StepLimitProducesPartialReport(t *testing.T) {
	llmClient := &scriptedLLM{steps: []string{
		`<tool_call>{"name":"search","arguments":{"queries":["topic one"]}}</tool_call>`,
		`<tool_call>{"name":"search","arguments":{"queries":["topic two"]}}</tool_call>`,
		`<tool_call>{"name":"search","arguments":{"queries":["topic three"]}}</tool_call>`,
	}}
	sp := stubSearch{} // no results; only the step count matters here
	fc := stubFetcher{}
	tel := telemetry.New(telemetry.Config{Enabled: false})
	cfg := testConfig(t)
	cfg.Planner.MaxSteps = 3
	cfg.Planner.StagnationLimit = 0

	o := New(llmClient, sp, fc, tel, nil, nil, cfg)
	outcome := o.Run(context.Background(), "topic one")

	if outcome.Err != nil {
		t.Fatalf("Run: %v", outcome.Err)
	}
	if outcome.Status != StatusPartial {
		t.Errorf("Status = %q, want %q", outcome.Status, StatusPartial)
	}
	if _, err := os.Stat(outcome.ReportPath); err != nil {
		t.Errorf("report.md not written: %v", err)
	}
}

func seedEvidence(t *testing.T, runDir string) {
	t.Helper()
	dir := filepath.Join(runDir, "evidence_bank")
	if err := os.MkdirAll(filepath.Join(dir, "raw"), 0o755); err != nil {
		t.Fatalf("mkdir evidence_bank: %v", err)
	}
	line := `{"id":"ev_0001","query":"topic background","source":{"url":"https://example.com/a","title":"A Title","retrieved_at":"2026-01-01T00:00:00Z"},"summary":"a one-paragraph summary","items":[],"hash":"deadbeef"}` + "\n"
	if err := os.WriteFile(filepath.Join(dir, "evidence.jsonl"), []byte(line), 0o644); err != nil {
		t.Fatalf("write evidence.jsonl: %v", err)
	}
}
