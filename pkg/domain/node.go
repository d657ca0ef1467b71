package domain

// ErrorLevel grades a node error.
type ErrorLevel string

const (
	LevelWarning ErrorLevel = "warning"
	LevelError   ErrorLevel = "error"
	LevelFatal   ErrorLevel = "fatal"
)

// NodeError is the contained error state of a node body.
// The zero value means "no error".
type NodeError struct {
	Message string     `json:"message,omitempty" yaml:"message,omitempty"`
	Level   ErrorLevel `json:"level,omitempty" yaml:"level,omitempty"`
}

// IsError reports whether the node is currently erroring.
func (e NodeError) IsError() bool {
	return e.Message != "" || e.Level != ""
}

// ConnectorDescription is the inspection view of a connector.
type ConnectorDescription struct {
	ID       string        `json:"id" yaml:"id"`
	Label    string        `json:"label" yaml:"label"`
	Kind     ConnectorKind `json:"kind" yaml:"kind"`
	Type     string        `json:"type" yaml:"type"`
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Optional bool          `json:"optional,omitempty" yaml:"optional,omitempty"`
	Param    string        `json:"param,omitempty" yaml:"param,omitempty"`
	Seq      int64         `json:"seq" yaml:"seq"`

	// Token is the buffered or last committed token in its {type, data}
	// document form. Only filled for single-node inspection.
	Token map[string]any `json:"token,omitempty" yaml:"token,omitempty"`
}

// NodeDescription is the inspection view of a node worker.
type NodeDescription struct {
	ID         string                 `json:"id" yaml:"id"`
	Type       string                 `json:"type" yaml:"type"`
	State      WorkerState            `json:"state" yaml:"state"`
	Enabled    bool                   `json:"enabled" yaml:"enabled"`
	Paused     bool                   `json:"paused" yaml:"paused"`
	Source     bool                   `json:"source" yaml:"source"`
	Sink       bool                   `json:"sink" yaml:"sink"`
	Group      int                    `json:"group" yaml:"group"`
	Ticks      int64                  `json:"ticks" yaml:"ticks"`
	Error      NodeError              `json:"error,omitempty" yaml:"error,omitempty"`
	Connectors []ConnectorDescription `json:"connectors" yaml:"connectors"`
	Params     map[string]any         `json:"params,omitempty" yaml:"params,omitempty"`
}

// ConnectionDescription is the inspection view of a connection.
type ConnectionDescription struct {
	ID     int             `json:"id" yaml:"id"`
	From   string          `json:"from" yaml:"from"`
	To     string          `json:"to" yaml:"to"`
	State  ConnectionState `json:"state" yaml:"state"`
	Active bool            `json:"active" yaml:"active"`
	Event  bool            `json:"event,omitempty" yaml:"event,omitempty"`
	Seq    int64           `json:"seq" yaml:"seq"`
}

// GraphDescription is a point-in-time view of a running graph.
type GraphDescription struct {
	ID          string                  `json:"id" yaml:"id"`
	Nodes       []NodeDescription       `json:"nodes" yaml:"nodes"`
	Connections []ConnectionDescription `json:"connections" yaml:"connections"`
}

// Node looks up a node description by id.
func (g *GraphDescription) Node(id string) (NodeDescription, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeDescription{}, false
}

// TimerRecord is one entry of a worker's timing history.
type TimerRecord struct {
	Kind       string `json:"kind"`
	StartMs    int64  `json:"start_ms"`
	DurationMs int64  `json:"duration_ms"`
}
