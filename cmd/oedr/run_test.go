package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveQuery_FromArgs(t *testing.T) {
	q, err := resolveQuery([]string{"what", "changed"}, "")
	if err != nil {
		t.Fatalf("resolveQuery: %v", err)
	}
	if q != "what changed" {
		t.Errorf("q = %q, want %q", q, "what changed")
	}
}

func TestResolveQuery_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "query.txt")
	if err := os.WriteFile(path, []byte("  topic background  \n"), 0o644); err != nil {
		t.Fatalf("write query file: %v", err)
	}
	q, err := resolveQuery(nil, path)
	if err != nil {
		t.Fatalf("resolveQuery: %v", err)
	}
	if q != "topic background" {
		t.Errorf("q = %q, want %q", q, "topic background")
	}
}

func TestResolveQuery_EmptyIsError(t *testing.T) {
	if _, err := resolveQuery(nil, ""); err == nil {
		t.Error("expected error for missing query")
	}
}
