package outline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fakeBank struct{ ids map[string]bool }

func (f fakeBank) Exists(id string) bool { return f.ids[id] }

func sampleTree() *Node {
	return &Node{
		ID:        "sec_1",
		Title:     "Quantum Teleportation Protocols",
		Level:     1,
		Citations: nil,
		Children: []*Node{
			{
				ID:        "sec_1_1",
				Title:     "Background",
				Level:     2,
				Bullets:   []string{"History of the concept", "Key 1993 paper"},
				Citations: []string{"ev_0001", "ev_0002"},
			},
			{
				ID:        "sec_1_2",
				Title:     "Current Protocols",
				Level:     2,
				Bullets:   []string{"Photon-based transfer"},
				Citations: []string{"ev_0003"},
			},
		},
	}
}

func TestRenderParse_RoundTrip(t *testing.T) {
	root := sampleTree()
	md := Render(root)

	got, err := Parse(md)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if diff := cmp.Diff(root, got); diff != "" {
		t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateLevels_RejectsSkippedLevel(t *testing.T) {
	root := &Node{
		ID: "sec_1", Title: "Root", Level: 1, Bullets: []string{"x"},
		Children: []*Node{
			{ID: "sec_1_1", Title: "Too deep", Level: 3, Bullets: []string{"y"}},
		},
	}
	if err := ValidateLevels(root); err == nil {
		t.Fatal("expected level-skip error, got nil")
	}
}

func TestValidateStructure_RejectsEmptyNode(t *testing.T) {
	root := &Node{ID: "sec_1", Title: "Empty", Level: 1}
	if err := ValidateStructure(root); err == nil {
		t.Fatal("expected empty-node error, got nil")
	}
}

func TestValidateCitations_ReportsUnresolvedIDs(t *testing.T) {
	root := sampleTree()
	bank := fakeBank{ids: map[string]bool{"ev_0001": true, "ev_0002": true}}

	err := ValidateCitations(root, bank)
	if err == nil {
		t.Fatal("expected unresolved citation error, got nil")
	}
	if _, ok := err.(interface{ Error() string }); !ok {
		t.Fatalf("unexpected error type %T", err)
	}
}

func TestValidateCitations_PassesWhenAllResolve(t *testing.T) {
	root := sampleTree()
	bank := fakeBank{ids: map[string]bool{"ev_0001": true, "ev_0002": true, "ev_0003": true}}
	if err := ValidateCitations(root, bank); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestNodesAtLevel(t *testing.T) {
	root := sampleTree()
	nodes := NodesAtLevel(root, 2)
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes at level 2, want 2", len(nodes))
	}
	if nodes[0].ID != "sec_1_1" || nodes[1].ID != "sec_1_2" {
		t.Errorf("unexpected order: %s, %s", nodes[0].ID, nodes[1].ID)
	}
}

func TestDescendantCitations(t *testing.T) {
	root := sampleTree()
	got := DescendantCitations(root)
	want := []string{"ev_0001", "ev_0002", "ev_0003"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
