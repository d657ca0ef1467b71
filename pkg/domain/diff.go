package domain

import (
	"reflect"
)

// GraphDiff represents the changes between two graph descriptions.
// It is designed to be serialized to JSON for partial updates on the client.
type GraphDiff struct {
	GraphID string `json:"graph_id"`

	// Nodes holds nodes that were added or changed.
	Nodes []NodeDescription `json:"nodes,omitempty"`

	// RemovedNodes lists ids of nodes no longer present.
	RemovedNodes []string `json:"removed_nodes,omitempty"`

	// Connections holds connections that were added or changed.
	Connections []ConnectionDescription `json:"connections,omitempty"`

	// RemovedConnections lists ids of connections no longer present.
	RemovedConnections []int `json:"removed_connections,omitempty"`
}

// Diff calculates the difference between oldGraph and newGraph.
// If oldGraph is nil, it returns a diff representing the entire newGraph (initial load).
// It returns nil when nothing changed.
func Diff(oldGraph, newGraph *GraphDescription) *GraphDiff {
	if newGraph == nil {
		return nil
	}

	diff := &GraphDiff{GraphID: newGraph.ID}
	diff.Nodes, diff.RemovedNodes = diffNodes(oldGraph, newGraph)
	diff.Connections, diff.RemovedConnections = diffConnections(oldGraph, newGraph)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffNodes(old, new *GraphDescription) ([]NodeDescription, []string) {
	if old == nil {
		return append([]NodeDescription(nil), new.Nodes...), nil
	}

	prev := make(map[string]NodeDescription, len(old.Nodes))
	for _, n := range old.Nodes {
		prev[n.ID] = n
	}

	var changed []NodeDescription
	for _, n := range new.Nodes {
		o, exists := prev[n.ID]
		if !exists || !reflect.DeepEqual(o, n) {
			changed = append(changed, n)
		}
		delete(prev, n.ID)
	}

	var removed []string
	for _, n := range old.Nodes {
		if _, gone := prev[n.ID]; gone {
			removed = append(removed, n.ID)
		}
	}
	return changed, removed
}

func diffConnections(old, new *GraphDescription) ([]ConnectionDescription, []int) {
	if old == nil {
		return append([]ConnectionDescription(nil), new.Connections...), nil
	}

	prev := make(map[int]ConnectionDescription, len(old.Connections))
	for _, c := range old.Connections {
		prev[c.ID] = c
	}

	var changed []ConnectionDescription
	for _, c := range new.Connections {
		o, exists := prev[c.ID]
		if !exists || o != c {
			changed = append(changed, c)
		}
		delete(prev, c.ID)
	}

	var removed []int
	for _, c := range old.Connections {
		if _, gone := prev[c.ID]; gone {
			removed = append(removed, c.ID)
		}
	}
	return changed, removed
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *GraphDiff) IsEmpty() bool {
	return len(d.Nodes) == 0 &&
		len(d.RemovedNodes) == 0 &&
		len(d.Connections) == 0 &&
		len(d.RemovedConnections) == 0
}
