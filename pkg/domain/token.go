package domain

import "fmt"

// TypeDescriptor names the payload type a connector accepts or produces.
type TypeDescriptor struct {
	Name string `json:"name" yaml:"name"`
}

// Type is a shorthand constructor for a TypeDescriptor.
func Type(name string) TypeDescriptor {
	return TypeDescriptor{Name: name}
}

// IsAny reports whether the descriptor accepts every payload.
func (t TypeDescriptor) IsAny() bool {
	return t.Name == "" || t.Name == TypeAny
}

// CanConnectTo reports whether data of type t may flow into a connector of type other.
func (t TypeDescriptor) CanConnectTo(other TypeDescriptor) bool {
	if t.IsAny() || other.IsAny() {
		return true
	}
	return t.Name == other.Name
}

func (t TypeDescriptor) String() string {
	if t.Name == "" {
		return TypeAny
	}
	return t.Name
}

// Token is a message travelling along a connection.
// Tokens are immutable once published and shared by pointer between the
// producing Output, the Connection and the receiving Input.
type Token struct {
	value  any
	typ    string
	active bool
	seq    int64
}

// NewToken creates an inactive token carrying value. The sequence number is
// assigned when an Output commits it.
func NewToken(typ string, value any) *Token {
	return &Token{typ: typ, value: value}
}

// NewNoMessage returns the marker token used when an output had nothing to send.
func NewNoMessage(seq int64) *Token {
	return &Token{typ: NoMessage, seq: seq}
}

// Value returns the payload.
func (t *Token) Value() any { return t.value }

// Type returns the payload type tag.
func (t *Token) Type() string { return t.typ }

// Active reports whether the token carries real data for the current round.
func (t *Token) Active() bool { return t.active }

// Seq returns the sequence number assigned by the producing output.
func (t *Token) Seq() int64 { return t.seq }

// IsNoMessage reports whether this is the "no message" marker.
func (t *Token) IsNoMessage() bool { return t == nil || t.typ == NoMessage }

// Stamp returns a published copy of t with the given activity flag and sequence number.
// Marker tokens never become active.
func (t *Token) Stamp(active bool, seq int64) *Token {
	cp := *t
	cp.active = active && t.typ != NoMessage
	cp.seq = seq
	return &cp
}

func (t *Token) String() string {
	if t == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s#%d(active=%t)", t.typ, t.seq, t.active)
}

// ValueAs extracts the token payload as T.
func ValueAs[T any](t *Token) (T, bool) {
	var zero T
	if t == nil || t.IsNoMessage() {
		return zero, false
	}
	v, ok := t.value.(T)
	return v, ok
}
