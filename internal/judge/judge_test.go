package judge

import (
	"context"
	"testing"

	"github.com/oedrhq/engine/internal/llm"
)

type stubClient struct {
	response string
	err      error
}

func (s stubClient) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	return s.response, s.err
}

func TestJudge_ParsesWellFormedResponse(t *testing.T) {
	client := stubClient{response: `Sure, here you go:
{"InstructionFollowing": {"rating": 8, "justification": "on topic"},
"Depth": {"rating": 7, "justification": "reasonably deep"},
"Balance": {"rating": 6, "justification": "skewed to background"},
"Breadth": {"rating": 7, "justification": "covers main angles"},
"Support": {"rating": 9, "justification": "well cited"},
"Insightfulness": {"rating": 5, "justification": "mostly summary"}}`}

	result := Judge(context.Background(), client, "quantum teleportation", "# Outline\n")
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.Ratings["Support"].Rating != 9 {
		t.Errorf("Support rating = %d, want 9", result.Ratings["Support"].Rating)
	}
}

func TestJudge_MalformedResponseYieldsErrorResult(t *testing.T) {
	client := stubClient{response: "not json at all"}
	result := Judge(context.Background(), client, "q", "outline")
	if result.Error == "" {
		t.Fatal("expected Error to be set")
	}
}

func TestJudge_MissingCriterionYieldsErrorResult(t *testing.T) {
	client := stubClient{response: `{"InstructionFollowing": {"rating": 8, "justification": "x"}}`}
	result := Judge(context.Background(), client, "q", "outline")
	if result.Error == "" {
		t.Fatal("expected Error to be set for missing criteria")
	}
}
