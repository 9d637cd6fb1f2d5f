package journal

import (
	"os"
	"path/filepath"
	"testing"
)

type stepPayload struct {
	Action string `json:"action"`
}

func TestAppend_MonotonicSteps(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, "run_test")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	for i := 0; i < 3; i++ {
		e, err := j.Append(KindPlannerStep, stepPayload{Action: "search"})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		if e.Step != i+1 {
			t.Errorf("Step = %d, want %d", e.Step, i+1)
		}
	}
}

func TestReplay_DiscardsTruncatedTrailingLine(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, "run_test")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := j.Append(KindRunStarted, map[string]string{"query": "q"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	j.Close()

	path := filepath.Join(dir, "events.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for corruption: %v", err)
	}
	if _, err := f.WriteString(`{"ts":"2026-01-01T00:00:00Z","run_id":"run_te`); err != nil {
		t.Fatalf("write truncated line: %v", err)
	}
	f.Close()

	events, err := Replay(path)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
}

func TestOpen_ResumesStepCounter(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, "run_test")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := j.Append(KindPlannerStep, stepPayload{Action: "search"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	j.Close()

	j2, err := Open(dir, "run_test")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j2.Close()
	e, err := j2.Append(KindPlannerTerminated, map[string]string{"reason": "readiness"})
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if e.Step != 3 {
		t.Errorf("Step after reopen = %d, want 3", e.Step)
	}
}

func TestEvent_UnknownKindIsIgnorable(t *testing.T) {
	e := Event{Kind: Kind("some_future_kind")}
	if e.Known() {
		t.Error("expected unknown kind to report Known() == false")
	}
}

func TestReplay_MissingFileReturnsEmpty(t *testing.T) {
	events, err := Replay(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}
