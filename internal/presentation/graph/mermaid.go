// Package graph renders pipeline definitions as Mermaid flowcharts for docs
// and quick visual inspection.
package graph

import (
	"fmt"
	"strings"

	"github.com/pergolab/pergola/pkg/domain"
)

// GenerateMermaid produces Mermaid flowchart syntax from a pipeline's nodes
// and edges. Semantic shapes:
//   - fan-out: {{Hexagon}}
//   - fan-in:  ((Circle)), the barrier
//   - terminal: [/Parallelogram/]
//   - sequential: [Rectangle]
//
// Edges inside the fan-out/fan-in span are drawn dotted since every batch
// item traverses them independently.
func GenerateMermaid(nodes []domain.Node, edges []domain.Edge) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	kinds := make(map[string]string, len(nodes))
	for _, node := range nodes {
		kinds[node.ID] = node.Kind
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[", "]"
		switch node.Kind {
		case domain.KindFanOut:
			opener, closer = "{{", "}}"
		case domain.KindFanIn:
			opener, closer = "((", "))"
		case domain.KindTerminal:
			opener, closer = "[/", "/]"
		}

		label := node.ID
		if node.Capability != "" && node.Capability != node.ID {
			label = fmt.Sprintf("%s <br/> %s", node.ID, node.Capability)
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))
	}

	inChain := chainMembers(nodes, edges)
	for _, edge := range edges {
		arrow := "-->"
		if inChain[edge.From] && (inChain[edge.To] || kinds[edge.To] == domain.KindFanIn) {
			arrow = "-.->"
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n",
			sanitizeMermaidID(edge.From), arrow, sanitizeMermaidID(edge.To)))
	}

	sb.WriteString("\n    classDef fanout fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
	for _, node := range nodes {
		if node.Kind == domain.KindFanOut || node.Kind == domain.KindFanIn {
			sb.WriteString(fmt.Sprintf("    class %s fanout;\n", sanitizeMermaidID(node.ID)))
		}
	}

	return sb.String()
}

// chainMembers marks the fan-out node and every node reachable from it
// before the fan-in, walking single successors.
func chainMembers(nodes []domain.Node, edges []domain.Edge) map[string]bool {
	succ := make(map[string][]string)
	for _, e := range edges {
		succ[e.From] = append(succ[e.From], e.To)
	}
	kinds := make(map[string]string, len(nodes))
	for _, n := range nodes {
		kinds[n.ID] = n.Kind
	}

	members := make(map[string]bool)
	for _, n := range nodes {
		if n.Kind != domain.KindFanOut {
			continue
		}
		cur := n.ID
		for {
			members[cur] = true
			next := succ[cur]
			if len(next) != 1 || kinds[next[0]] == domain.KindFanIn {
				break
			}
			cur = next[0]
		}
	}
	return members
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
