package searchindex

import "testing"

func TestSearch_RanksMatchingSummaryFirst(t *testing.T) {
	idx, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer idx.Close()

	docs := map[string]string{
		"ev_0001": "Quantum teleportation uses entangled photon pairs to transmit state.",
		"ev_0002": "The history of the telephone switchboard in the 19th century.",
		"ev_0003": "Photon-based quantum protocols and Bell state measurements.",
	}
	for id, summary := range docs {
		if err := idx.Add(id, summary); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}

	hits, err := idx.Search("quantum photon", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected at least one hit")
	}
	for _, h := range hits {
		if h == "ev_0002" {
			t.Errorf("unrelated document ev_0002 should not rank in top results, got %v", hits)
		}
	}
}

func TestSearch_RespectsTopK(t *testing.T) {
	idx, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer idx.Close()

	for i, summary := range []string{"alpha beta", "alpha gamma", "alpha delta"} {
		if err := idx.Add(string(rune('a'+i)), summary); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	hits, err := idx.Search("alpha", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
}
