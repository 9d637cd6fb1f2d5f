package writeragent

import (
	"fmt"
	"strings"

	"github.com/oedrhq/engine/internal/evidence"
	"github.com/oedrhq/engine/internal/helpers"
	"github.com/oedrhq/engine/internal/llm"
	"github.com/oedrhq/engine/internal/outline"
)

const writerSystemPrompt = `You are the writing half of a two-agent research system. You are drafting exactly one section of a larger report, with no visibility into other sections' prose. Each turn you must emit exactly one action, wrapped in exactly one of these tags:
<tool_call>{"name":"retrieve","arguments":{"citation_ids":["ev_0001"]}}</tool_call>
<tool_call>{"name":"retrieve","arguments":{"query":"...","top_k":5}}</tool_call>
<write>
Markdown prose for this section, citing sources inline as [^ev_0001].
</write>
<terminate>reason</terminate>

Only cite evidence IDs you have actually retrieved this section. Do not invent IDs. When you are satisfied with the section, emit <terminate>.`

// outlineMap renders the whole outline as a compact, bullet-free map of
// titles and IDs so the Writer has global context without section bodies
// leaking across sections.
func outlineMap(root *outline.Node) string {
	var b strings.Builder
	var walk func(n *outline.Node)
	walk = func(n *outline.Node) {
		fmt.Fprintf(&b, "%s%s (%s)\n", strings.Repeat("  ", n.Level-1), n.Title, n.ID)
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return b.String()
}

func (a *Agent) buildPrompt(userQuery string, root *outline.Node, node *outline.Node, candidates []evidence.Summary, draftSoFar, observation string) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "USER QUERY: %s\n\n", userQuery)
	b.WriteString("FULL OUTLINE (for context only; do not write other sections):\n")
	b.WriteString(outlineMap(root))
	b.WriteString("\n")

	fmt.Fprintf(&b, "CURRENT SECTION: %s (%s)\n", node.Title, node.ID)
	if len(node.Bullets) > 0 {
		b.WriteString("Planning notes:\n")
		for _, bullet := range node.Bullets {
			fmt.Fprintf(&b, "- %s\n", bullet)
		}
	}
	b.WriteString("\n")

	if len(candidates) > 0 {
		b.WriteString("CANDIDATE EVIDENCE FOR THIS SECTION:\n")
		for _, c := range candidates {
			fmt.Fprintf(&b, "- %s (%s): %s\n", c.ID, c.URL, c.Summary)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("CANDIDATE EVIDENCE FOR THIS SECTION: none\n\n")
	}

	if draftSoFar != "" {
		fmt.Fprintf(&b, "DRAFT SO FAR:\n%s\n\n", draftSoFar)
	}

	if observation != "" {
		fmt.Fprintf(&b, "OBSERVATION (from your previous turn): %s\n\n", observation)
	}

	b.WriteString("Emit your next action now.")

	return []llm.Message{
		{Role: "system", Content: writerSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

func (a *Agent) buildFallbackPrompt(userQuery string, root *outline.Node, node *outline.Node, candidates []evidence.Summary) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "USER QUERY: %s\n\n", userQuery)
	b.WriteString("FULL OUTLINE (for context only):\n")
	b.WriteString(outlineMap(root))
	b.WriteString("\n")
	fmt.Fprintf(&b, "SECTION TO WRITE: %s (%s)\n", node.Title, node.ID)
	if len(node.Bullets) > 0 {
		b.WriteString("Planning notes:\n")
		for _, bullet := range node.Bullets {
			fmt.Fprintf(&b, "- %s\n", bullet)
		}
	}
	b.WriteString("\nEVIDENCE AVAILABLE:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s (%s): %s\n", c.ID, c.URL, c.Summary)
	}
	b.WriteString("\nYou failed to produce a <write> action for this section in the normal loop. Produce the complete section now in a single <write> block, citing evidence inline as [^ev_NNNN].")

	return []llm.Message{
		{Role: "system", Content: writerSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// assembleReport concatenates sealed sections in outline order and appends
// a References section built from the first-use citation order.
func assembleReport(sections []Section, citations []helpers.Citation) string {
	var b strings.Builder
	incomplete := false
	for _, s := range sections {
		if s.Omitted {
			incomplete = true
		}
		b.WriteString(s.Markdown)
		b.WriteString("\n\n")
	}
	if incomplete {
		b.WriteString("<!-- incomplete -->\n\n")
	}
	if len(citations) > 0 {
		b.WriteString("## References\n\n")
		for _, line := range helpers.FormatCitations(citations) {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
