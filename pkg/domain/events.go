package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventProcessStart   EventType = "process_start"
	EventProcessFinish  EventType = "process_finish"
	EventTick           EventType = "tick"
	EventTokenPublished EventType = "token_published"
	EventNodeError      EventType = "node_error"
	EventGraphChanged   EventType = "graph_changed"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	GraphID   string    `json:"graph_id,omitempty"`
}

// NodeEvent represents a processing, ticking or error event of one node.
type NodeEvent struct {
	EventBase
	NodeID   string        `json:"node_id"`
	NodeType string        `json:"node_type"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    *NodeError    `json:"error,omitempty"`
	Skipped  bool          `json:"skipped,omitempty"`
}

// TokenEvent represents a token committed by an output.
type TokenEvent struct {
	EventBase
	NodeID    string `json:"node_id"`
	Connector string `json:"connector"`
	TokenType string `json:"token_type"`
	Seq       int64  `json:"seq"`
	Active    bool   `json:"active"`
	Marker    bool   `json:"marker,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks run on the worker's goroutine and must not block.
type LifecycleHooks struct {
	OnProcessStart   func(context.Context, *NodeEvent)
	OnProcessFinish  func(context.Context, *NodeEvent)
	OnTick           func(context.Context, *NodeEvent)
	OnTokenPublished func(context.Context, *TokenEvent)
	OnNodeError      func(context.Context, *NodeEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnProcessStart:   chainNode(h.OnProcessStart, other.OnProcessStart),
		OnProcessFinish:  chainNode(h.OnProcessFinish, other.OnProcessFinish),
		OnTick:           chainNode(h.OnTick, other.OnTick),
		OnTokenPublished: chainToken(h.OnTokenPublished, other.OnTokenPublished),
		OnNodeError:      chainNode(h.OnNodeError, other.OnNodeError),
	}
}

func chainNode(a, b func(context.Context, *NodeEvent)) func(context.Context, *NodeEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *NodeEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainToken(a, b func(context.Context, *TokenEvent)) func(context.Context, *TokenEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *TokenEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

// Event wraps one lifecycle notification for streaming consumers.
// Exactly one of Node or Token is set.
type Event struct {
	Node  *NodeEvent  `json:"node,omitempty"`
	Token *TokenEvent `json:"token,omitempty"`
}

// Type returns the type of the wrapped event.
func (e Event) Type() EventType {
	switch {
	case e.Node != nil:
		return e.Node.Type
	case e.Token != nil:
		return e.Token.EventBase.Type
	}
	return ""
}

// EmitTo returns hooks that forward every notification to fn.
func EmitTo(fn func(Event)) LifecycleHooks {
	node := func(_ context.Context, e *NodeEvent) { fn(Event{Node: e}) }
	return LifecycleHooks{
		OnProcessStart:   node,
		OnProcessFinish:  node,
		OnTick:           node,
		OnNodeError:      node,
		OnTokenPublished: func(_ context.Context, e *TokenEvent) { fn(Event{Token: e}) },
	}
}
