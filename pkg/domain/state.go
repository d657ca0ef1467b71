package domain

import "fmt"

// ConnectionState is the token handshake state of a single connection.
type ConnectionState int

const (
	// ConnectionNotInitialized means no token is held; a new one may be set.
	ConnectionNotInitialized ConnectionState = iota
	// ConnectionUnread means the source set a token the sink has not read yet.
	ConnectionUnread
	// ConnectionRead means the sink read the token but has not acknowledged it.
	ConnectionRead
)

// ConnectionDone is an alias of ConnectionNotInitialized: an acknowledged
// connection is indistinguishable from a fresh one.
const ConnectionDone = ConnectionNotInitialized

func (s ConnectionState) String() string {
	switch s {
	case ConnectionNotInitialized:
		return "done"
	case ConnectionUnread:
		return "unread"
	case ConnectionRead:
		return "read"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name produced by MarshalText.
func (s *ConnectionState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "done", "not_initialized":
		*s = ConnectionNotInitialized
	case "unread":
		*s = ConnectionUnread
	case "read":
		*s = ConnectionRead
	default:
		return fmt.Errorf("unknown connection state %q", b)
	}
	return nil
}

// OutputState tracks whether an output has committed tokens in flight.
type OutputState int

const (
	OutputIdle OutputState = iota
	OutputActive
)

func (s OutputState) String() string {
	if s == OutputActive {
		return "active"
	}
	return "idle"
}

// WorkerState is the processing phase of a node worker.
type WorkerState string

const (
	WorkerIdle             WorkerState = "idle"
	WorkerProcessing       WorkerState = "processing"
	WorkerAwaitingDelivery WorkerState = "awaiting_delivery"
	WorkerStopped          WorkerState = "stopped"
)

// ExecutionStatus is the status of a whole engine.
type ExecutionStatus string

const (
	StatusCreated ExecutionStatus = "created"
	StatusRunning ExecutionStatus = "running"
	StatusPaused  ExecutionStatus = "paused"
	StatusStopped ExecutionStatus = "stopped"
	StatusFailed  ExecutionStatus = "failed"
)

// ConnectorKind enumerates the four connector variants.
type ConnectorKind string

const (
	KindInput   ConnectorKind = "in"
	KindOutput  ConnectorKind = "out"
	KindSlot    ConnectorKind = "slot"
	KindTrigger ConnectorKind = "trigger"
)

// CanSend reports whether connectors of this kind are connection sources.
func (k ConnectorKind) CanSend() bool { return k == KindOutput || k == KindTrigger }

// CanReceive reports whether connectors of this kind are connection sinks.
func (k ConnectorKind) CanReceive() bool { return k == KindInput || k == KindSlot }

// IsEvent reports whether connectors of this kind carry activation signals.
func (k ConnectorKind) IsEvent() bool { return k == KindSlot || k == KindTrigger }
