package graph

import (
	"fmt"
	"strings"
)

// DrawMermaid renders the graph as a Mermaid flowchart. Conditional routes
// are drawn as dashed edges labelled with their route.
func (g *StateGraph[S]) DrawMermaid() string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")
	if g.entryPoint != "" {
		sb.WriteString("    START([\"START\"])\n")
		sb.WriteString(fmt.Sprintf("    START --> %s\n", g.entryPoint))
	}
	for _, name := range g.order {
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", name, name))
	}
	sb.WriteString("    END([\"END\"])\n")
	for _, t := range g.Transitions() {
		if t.Label == "" {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", t.From, t.To))
			continue
		}
		sb.WriteString(fmt.Sprintf("    %s -.->|%s| %s\n", t.From, t.Label, t.To))
	}
	return sb.String()
}
