package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestUpsertRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	now := time.Now()
	r := Run{
		RunID:        "run-1",
		Query:        "what changed in go 1.23",
		Status:       StatusInProgress,
		ArtifactsDir: "runs/run-1",
		StartedAt:    now,
		UpdatedAt:    now,
	}

	query := regexp.QuoteMeta(`
INSERT INTO runs (run_id, query, status, artifacts_dir, started_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (run_id) DO UPDATE SET
  status = EXCLUDED.status,
  updated_at = EXCLUDED.updated_at
`)
	mock.ExpectExec(query).
		WithArgs(r.RunID, r.Query, r.Status, r.ArtifactsDir, r.StartedAt, r.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.UpsertRun(context.Background(), r); err != nil {
		t.Fatalf("UpsertRun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveJudgeResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	result := []byte(`{"ratings":[]}`)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE runs SET judge_result = $2, updated_at = now() WHERE run_id = $1`)).
		WithArgs("run-1", result).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.SaveJudgeResult(context.Background(), "run-1", result); err != nil {
		t.Fatalf("SaveJudgeResult: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	now := time.Now()

	rows := sqlmock.NewRows([]string{"run_id", "query", "status", "artifacts_dir", "started_at", "updated_at", "judge_result"}).
		AddRow("run-1", "q", StatusCompleted, "runs/run-1", now, now, []byte(`{}`))

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT run_id, query, status, artifacts_dir, started_at, updated_at, judge_result
FROM runs WHERE run_id = $1`)).
		WithArgs("run-1").
		WillReturnRows(rows)

	r, err := st.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", r.Status, StatusCompleted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRuns_FiltersByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	now := time.Now()

	rows := sqlmock.NewRows([]string{"run_id", "query", "status", "artifacts_dir", "started_at", "updated_at", "judge_result"}).
		AddRow("run-2", "q2", StatusPartial, "runs/run-2", now, now, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT run_id, query, status, artifacts_dir, started_at, updated_at, judge_result FROM runs WHERE status = $1 ORDER BY started_at DESC LIMIT 50`)).
		WithArgs(StatusPartial).
		WillReturnRows(rows)

	got, err := st.ListRuns(context.Background(), StatusPartial, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(got) != 1 || got[0].RunID != "run-2" {
		t.Errorf("ListRuns = %+v, want one row run-2", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStaleInProgress(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	st := &Store{DB: db}
	cutoff := time.Now().Add(-time.Hour)
	started := cutoff.Add(-time.Hour)

	rows := sqlmock.NewRows([]string{"run_id", "query", "status", "artifacts_dir", "started_at", "updated_at", "judge_result"}).
		AddRow("run-3", "q3", StatusInProgress, "runs/run-3", started, started, nil)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT run_id, query, status, artifacts_dir, started_at, updated_at, judge_result
FROM runs WHERE status = $1 AND updated_at < $2`)).
		WithArgs(StatusInProgress, cutoff).
		WillReturnRows(rows)

	got, err := st.StaleInProgress(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("StaleInProgress: %v", err)
	}
	if len(got) != 1 || got[0].RunID != "run-3" {
		t.Errorf("StaleInProgress = %+v, want one row run-3", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
