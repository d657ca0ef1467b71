package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/conduit/pkg/domain"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	Errors     map[string]domain.ErrorLevel
	Processing []string
	Paused     bool
}

// OverlayFrom derives an overlay from the live state of a description.
func OverlayFrom(desc domain.GraphDescription) *GraphOverlay {
	overlay := &GraphOverlay{Errors: make(map[string]domain.ErrorLevel)}
	for _, n := range desc.Nodes {
		if n.Error.IsError() {
			overlay.Errors[n.ID] = n.Error.Level
		}
		if n.State == domain.WorkerProcessing || n.State == domain.WorkerAwaitingDelivery {
			overlay.Processing = append(overlay.Processing, n.ID)
		}
		if n.Paused {
			overlay.Paused = true
		}
	}
	return overlay
}

type endpoint struct {
	node  string
	label string
}

// GenerateMermaid produces a Mermaid flowchart from a graph description.
// It applies semantic styling:
// - Source: ((Circle))
// - Sink: [/Parallelogram/]
// - Disabled: [[Subroutine]]
// - Default: [Rectangle]
// Data connections are labelled "output → input"; event connections are
// dotted, and connections holding an unread token are drawn thick.
func GenerateMermaid(desc domain.GraphDescription, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	ends := make(map[string]endpoint)
	for _, node := range desc.Nodes {
		for _, c := range node.Connectors {
			ends[c.ID] = endpoint{node: node.ID, label: c.Label}
		}

		safeID := sanitizeMermaidID(node.ID)
		opener, closer := "[", "]"
		switch {
		case !node.Enabled:
			opener, closer = "[[", "]]"
		case node.Source:
			opener, closer = "((", "))"
		case node.Sink:
			opener, closer = "[/", "/]"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s <br/> %s\"%s\n", safeID, opener, node.ID, node.Type, closer))
	}

	for _, c := range desc.Connections {
		from, okFrom := ends[c.From]
		to, okTo := ends[c.To]
		if !okFrom || !okTo {
			continue
		}
		label := strings.ReplaceAll(fmt.Sprintf("%s → %s", from.label, to.label), "\"", "'")

		var arrow string
		switch {
		case c.Event:
			arrow = fmt.Sprintf("-. \"⚡ %s\" .->", label)
		case c.State == domain.ConnectionUnread:
			arrow = fmt.Sprintf("== \"%s\" ==>", label)
		default:
			arrow = fmt.Sprintf("-- \"%s\" -->", label)
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", sanitizeMermaidID(from.node), arrow, sanitizeMermaidID(to.node)))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme
		sb.WriteString("    classDef processing fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef warning fill:#fff3e0,stroke:#ef6c00,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef error fill:#ffebee,stroke:#c62828,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef paused fill:#eeeeee,stroke:#616161,stroke-dasharray:5 5,color:#000;\n")

		styled := make(map[string]bool)
		errored := make([]string, 0, len(overlay.Errors))
		for id := range overlay.Errors {
			errored = append(errored, id)
		}
		sort.Strings(errored)
		for _, id := range errored {
			class := "error"
			if overlay.Errors[id] == domain.LevelWarning {
				class = "warning"
			}
			safeID := sanitizeMermaidID(id)
			styled[safeID] = true
			sb.WriteString(fmt.Sprintf("    class %s %s;\n", safeID, class))
		}

		for _, id := range overlay.Processing {
			safeID := sanitizeMermaidID(id)
			if safeID != "" && !styled[safeID] {
				styled[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s processing;\n", safeID))
			}
		}

		if overlay.Paused {
			for _, node := range desc.Nodes {
				safeID := sanitizeMermaidID(node.ID)
				if !styled[safeID] {
					sb.WriteString(fmt.Sprintf("    class %s paused;\n", safeID))
				}
			}
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
