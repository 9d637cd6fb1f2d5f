// Package action implements the tagged-action grammar the Planner and
// Writer agents use to communicate intent to the orchestrator: exactly one
// top-level tag per LLM turn, parsed without nesting.
package action

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies which tag a parsed Action came from.
type Kind string

const (
	KindToolCall     Kind = "tool_call"
	KindWriteOutline Kind = "write_outline"
	KindWrite        Kind = "write"
	KindTerminate    Kind = "terminate"
)

// ToolCall is the decoded payload of a <tool_call>{...}</tool_call> tag.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Action is the tagged variant produced by Parse. Exactly one of the
// payload fields is populated, selected by Kind; callers switch on Kind
// rather than probing fields, matching the exhaustive-handling design the
// engine uses in place of dynamic dispatch on agent output.
type Action struct {
	Kind Kind

	Call     ToolCall // KindToolCall
	Outline  string   // KindWriteOutline: raw Markdown payload, <citation> tags intact
	Markdown string   // KindWrite: raw Markdown payload
	Reason   string   // KindTerminate
}

// ProtocolError wraps a malformed or absent action tag. It is non-fatal:
// the orchestrator feeds it back to the agent as the next-turn observation
// so the agent can self-correct within its per-step retry budget.
type ProtocolError struct {
	Raw string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ErrNoAction is the underlying error of a ProtocolError raised when no
// recognized top-level tag is present anywhere in the agent's response.
var ErrNoAction = fmt.Errorf("no recognized action tag in response")

// UnresolvedCitation is returned by outline validation when a <write_outline>
// payload cites an evidence ID absent from the Bank.
type UnresolvedCitation struct {
	IDs []string
}

func (e UnresolvedCitation) Error() string {
	return fmt.Sprintf("unresolved citation ids: %s", strings.Join(e.IDs, ", "))
}

var (
	toolCallTag     = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)
	writeOutlineTag = regexp.MustCompile(`(?s)<write_outline>(.*?)</write_outline>`)
	writeTag        = regexp.MustCompile(`(?s)<write>(.*?)</write>`)
	terminateTag    = regexp.MustCompile(`(?s)<terminate>(.*?)</terminate>`)

	citationTag = regexp.MustCompile(`<citation>([^<]*)</citation>`)
)

// Parse extracts the first valid top-level action tag from raw agent
// output, scanning left to right. Tags are matched independently of
// content validity; if the earliest tag in the text fails to decode (e.g.
// malformed tool_call JSON), Parse returns a *ProtocolError rather than
// falling through to a later tag, since the grammar permits exactly one
// top-level tag per turn. Free-form prose outside any tag is discarded.
func Parse(raw string) (Action, error) {
	type candidate struct {
		kind  Kind
		start int
		loc   []int
	}
	var earliest *candidate
	consider := func(kind Kind, loc []int) {
		if loc == nil {
			return
		}
		if earliest == nil || loc[0] < earliest.start {
			earliest = &candidate{kind: kind, start: loc[0], loc: loc}
		}
	}

	consider(KindToolCall, toolCallTag.FindStringSubmatchIndex(raw))
	consider(KindWriteOutline, writeOutlineTag.FindStringSubmatchIndex(raw))
	consider(KindWrite, writeTag.FindStringSubmatchIndex(raw))
	consider(KindTerminate, terminateTag.FindStringSubmatchIndex(raw))

	if earliest == nil {
		return Action{}, &ProtocolError{Raw: raw, Err: ErrNoAction}
	}

	body := raw[earliest.loc[2]:earliest.loc[3]]

	switch earliest.kind {
	case KindToolCall:
		var call ToolCall
		if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &call); err != nil {
			return Action{}, &ProtocolError{Raw: raw, Err: fmt.Errorf("tool_call payload is not valid JSON: %w", err)}
		}
		if call.Name == "" {
			return Action{}, &ProtocolError{Raw: raw, Err: fmt.Errorf("tool_call missing name")}
		}
		return Action{Kind: KindToolCall, Call: call}, nil
	case KindWriteOutline:
		return Action{Kind: KindWriteOutline, Outline: strings.Trim(body, "\n")}, nil
	case KindWrite:
		return Action{Kind: KindWrite, Markdown: strings.Trim(body, "\n")}, nil
	case KindTerminate:
		return Action{Kind: KindTerminate, Reason: strings.TrimSpace(body)}, nil
	default:
		return Action{}, &ProtocolError{Raw: raw, Err: ErrNoAction}
	}
}

// ParseCitationIDs splits the inner content of a single <citation> tag body
// ("id[,id...]") into its constituent evidence IDs, trimming whitespace and
// dropping empties.
func ParseCitationIDs(body string) []string {
	parts := strings.Split(body, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FindCitationTags returns every <citation>...</citation> span in s as
// (fullMatchStart, fullMatchEnd, ids) triples, in document order. The
// outline parser uses only the ids, attaching them to the node of the
// nearest preceding heading; the ids are already split and trimmed.
type CitationSpan struct {
	Start, End int
	IDs        []string
}

func FindCitationTags(s string) []CitationSpan {
	matches := citationTag.FindAllStringSubmatchIndex(s, -1)
	out := make([]CitationSpan, 0, len(matches))
	for _, m := range matches {
		out = append(out, CitationSpan{
			Start: m[0],
			End:   m[1],
			IDs:   ParseCitationIDs(s[m[2]:m[3]]),
		})
	}
	return out
}

// String renders an Action back into its tagged textual form. Used by
// round-trip tests and by fallback paths that need to re-present an action
// as if the agent had emitted it.
func (a Action) String() string {
	switch a.Kind {
	case KindToolCall:
		payload, _ := json.Marshal(a.Call)
		return fmt.Sprintf("<tool_call>%s</tool_call>", payload)
	case KindWriteOutline:
		return fmt.Sprintf("<write_outline>\n%s\n</write_outline>", a.Outline)
	case KindWrite:
		return fmt.Sprintf("<write>\n%s\n</write>", a.Markdown)
	case KindTerminate:
		return fmt.Sprintf("<terminate> %s </terminate>", a.Reason)
	default:
		return ""
	}
}

// RenderCitation renders a citation tag for the given evidence IDs, as used
// in outline.md: <citation>ev_0001,ev_0002</citation>.
func RenderCitation(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return fmt.Sprintf("<citation>%s</citation>", strings.Join(ids, ","))
}
