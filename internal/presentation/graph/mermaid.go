package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/routeflow/pkg/domain"
)

// GenerateMermaid produces a Mermaid flowchart of a route's steps.
// It applies semantic styling:
// - Swap: [Rectangle]
// - Cross-chain: [[Subroutine]]
// - Protocol call: [/Parallelogram/]
// Steps are then classed by execution status (done, current, failed).
func GenerateMermaid(route *domain.Route) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	prev := ""
	for i, step := range route.Steps {
		safeID := stepNodeID(i, step)

		opener, closer := "[", "]"
		switch step.Type {
		case domain.StepTypeCross:
			opener, closer = "[[", "]]"
		case domain.StepTypeProtocol:
			opener, closer = "[/", "/]"
		}

		label := fmt.Sprintf("%s %s", step.Type, step.Tool)
		if step.Action.FromChainID != step.Action.ToChainID {
			label += fmt.Sprintf(" <br/> %d → %d", step.Action.FromChainID, step.Action.ToChainID)
		} else {
			label += fmt.Sprintf(" <br/> chain %d", step.Action.FromChainID)
		}
		// Quotes would end the Mermaid label early.
		label = strings.ReplaceAll(label, "\"", "'")
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))

		if prev != "" {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", prev, safeID))
		}
		prev = safeID
	}

	sb.WriteString("\n    %% Execution Styles\n")
	// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
	sb.WriteString("    classDef done fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
	sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#c62828,stroke-width:2px,color:#000;\n")

	for i, step := range route.Steps {
		if class := statusClass(step); class != "" {
			sb.WriteString(fmt.Sprintf("    class %s %s;\n", stepNodeID(i, step), class))
		}
	}
	return sb.String()
}

func statusClass(step *domain.Step) string {
	if step.Execution == nil {
		return ""
	}
	switch step.Execution.Status {
	case domain.ExecutionDone:
		return "done"
	case domain.ExecutionFailed:
		return "failed"
	default:
		return "current"
	}
}

// stepNodeID prefixes the position so steps with equal ids stay distinct.
func stepNodeID(i int, step *domain.Step) string {
	return fmt.Sprintf("s%d_%s", i, sanitizeMermaidID(step.ID))
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
