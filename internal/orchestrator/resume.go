package orchestrator

import (
	"github.com/oedrhq/engine/internal/journal"
	"github.com/oedrhq/engine/internal/outline"
	"github.com/oedrhq/engine/internal/writeragent"
)

// runState is the reconstruction of a prior run's progress from its
// journal, per the spec's resume protocol: Evidence Bank state comes from
// replaying evidence.jsonl directly (evidence.Open already does this);
// this type covers what only the event journal itself records — the
// committed outline, past search queries, whether the Planner finished,
// and any sections the Writer already sealed.
type runState struct {
	userQuery       string
	outline         *outline.Node
	pastQueries     []string
	plannerDone     bool
	writtenSections map[string]writeragent.Section
}

// replayState reads events.jsonl in order and rebuilds the pieces of run
// state the journal alone is authoritative for. Unknown event kinds are
// skipped, matching the journal's forward-compatibility guarantee.
func replayState(path string) (runState, error) {
	events, err := journal.Replay(path)
	if err != nil {
		return runState{}, err
	}

	var state runState
	state.writtenSections = make(map[string]writeragent.Section)

	for _, e := range events {
		if !e.Known() {
			continue
		}
		switch e.Kind {
		case journal.KindRunStarted:
			var p struct {
				UserQuery string `json:"user_query"`
			}
			if e.DecodePayload(&p) == nil {
				state.userQuery = p.UserQuery
			}

		case journal.KindSearchIssued:
			var p struct {
				Query string `json:"query"`
			}
			if e.DecodePayload(&p) == nil && p.Query != "" {
				state.pastQueries = append(state.pastQueries, p.Query)
			}

		case journal.KindOutlineUpdated:
			var p struct {
				Markdown string `json:"markdown"`
			}
			if e.DecodePayload(&p) == nil {
				if parsed, err := outline.Parse(p.Markdown); err == nil {
					state.outline = parsed
				}
			}

		case journal.KindPlannerTerminated:
			state.plannerDone = true

		case journal.KindSectionWritten:
			var p struct {
				NodeID        string   `json:"node_id"`
				Markdown      string   `json:"markdown"`
				UsedCitations []string `json:"used_citations"`
				Omitted       bool     `json:"omitted"`
			}
			if e.DecodePayload(&p) == nil && p.NodeID != "" {
				state.writtenSections[p.NodeID] = writeragent.Section{
					NodeID:        p.NodeID,
					Markdown:      p.Markdown,
					UsedCitations: p.UsedCitations,
					Omitted:       p.Omitted,
				}
			}
		}
	}

	return state, nil
}
