package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDiff(t *testing.T) {
	base := func() *GraphDescription {
		return &GraphDescription{
			ID: "g-1",
			Nodes: []NodeDescription{
				{ID: "src", Type: "counter", State: WorkerIdle, Enabled: true},
				{ID: "sink", Type: "printer", State: WorkerIdle, Enabled: true},
			},
			Connections: []ConnectionDescription{
				{ID: 1, From: "src:out_0", To: "sink:in_0", State: ConnectionNotInitialized},
			},
		}
	}

	tests := []struct {
		name        string
		old         *GraphDescription
		new         *GraphDescription
		wantNil     bool
		wantNodes   []string
		wantRemoved []string
		wantConns   []int
		wantGone    []int
	}{
		{
			name:      "Initial Load (Old is Nil)",
			old:       nil,
			new:       base(),
			wantNodes: []string{"src", "sink"},
			wantConns: []int{1},
		},
		{
			name:    "No Changes",
			old:     base(),
			new:     base(),
			wantNil: true,
		},
		{
			name: "Node State Change",
			old:  base(),
			new: func() *GraphDescription {
				g := base()
				g.Nodes[1].State = WorkerProcessing
				return g
			}(),
			wantNodes: []string{"sink"},
		},
		{
			name: "Connection Unread",
			old:  base(),
			new: func() *GraphDescription {
				g := base()
				g.Connections[0].State = ConnectionUnread
				g.Connections[0].Seq = 1
				return g
			}(),
			wantConns: []int{1},
		},
		{
			name: "Node And Connection Removed",
			old:  base(),
			new: func() *GraphDescription {
				g := base()
				g.Nodes = g.Nodes[:1]
				g.Connections = nil
				return g
			}(),
			wantRemoved: []string{"sink"},
			wantGone:    []int{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if tt.wantNil {
				if got != nil {
					t.Errorf("Diff() = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("Diff() = nil, want a diff")
			}
			if got.GraphID != "g-1" {
				t.Errorf("Diff().GraphID = %v, want g-1", got.GraphID)
			}

			var nodes []string
			for _, n := range got.Nodes {
				nodes = append(nodes, n.ID)
			}
			if !reflect.DeepEqual(nodes, tt.wantNodes) {
				t.Errorf("Diff().Nodes = %v, want %v", nodes, tt.wantNodes)
			}
			if !reflect.DeepEqual(got.RemovedNodes, tt.wantRemoved) {
				t.Errorf("Diff().RemovedNodes = %v, want %v", got.RemovedNodes, tt.wantRemoved)
			}

			var conns []int
			for _, c := range got.Connections {
				conns = append(conns, c.ID)
			}
			if !reflect.DeepEqual(conns, tt.wantConns) {
				t.Errorf("Diff().Connections = %v, want %v", conns, tt.wantConns)
			}
			if !reflect.DeepEqual(got.RemovedConnections, tt.wantGone) {
				t.Errorf("Diff().RemovedConnections = %v, want %v", got.RemovedConnections, tt.wantGone)
			}
		})
	}
}

func TestDiffJSONSerialization(t *testing.T) {
	t.Run("Empty Sections Omitted", func(t *testing.T) {
		old := &GraphDescription{ID: "g", Nodes: []NodeDescription{{ID: "a"}}}
		cur := &GraphDescription{ID: "g", Nodes: []NodeDescription{{ID: "a", Ticks: 1}}}
		diff := Diff(old, cur)
		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}

		bytes, _ := json.Marshal(diff)
		if strings.Contains(string(bytes), `"connections"`) {
			t.Errorf("JSON should not contain 'connections' when empty, got: %s", string(bytes))
		}
	})

	t.Run("Connection State By Name", func(t *testing.T) {
		diff := Diff(nil, &GraphDescription{
			ID:          "g",
			Connections: []ConnectionDescription{{ID: 3, State: ConnectionRead}},
		})
		bytes, _ := json.Marshal(diff)
		if !strings.Contains(string(bytes), `"state":"read"`) {
			t.Errorf("JSON should name the connection state, got: %s", string(bytes))
		}
	})
}
