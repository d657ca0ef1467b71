// Package registry holds the process-scoped tables of message types and node
// constructors. A Registry is created by the host, initialised once with Init
// and injected wherever types are resolved.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/conduit/internal/logging"
	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/engine"
)

// ErrClosed is returned after Shutdown.
var ErrClosed = errors.New("registry is shut down")

// Encoder turns a payload into a YAML-marshalable value.
type Encoder func(value any) (any, error)

// Decoder rebuilds a payload from the data node of a document.
type Decoder func(data *yaml.Node) (any, error)

// MessageType is a payload type tag with its codec.
type MessageType struct {
	Tag    string
	Encode Encoder
	Decode Decoder
}

// NodeConstructor builds a fresh node body.
type NodeConstructor func() engine.Node

// NodeType describes a registered node constructor.
type NodeType struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	New         NodeConstructor `json:"-" yaml:"-"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry manages the available message and node types.
type Registry struct {
	mu       sync.RWMutex
	messages map[string]MessageType
	nodes    map[string]NodeType
	logger   *slog.Logger
	ready    bool
	closed   bool
}

// NewRegistry creates a new empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		messages: make(map[string]MessageType),
		nodes:    make(map[string]NodeType),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init registers the built-in message types. Calling it again is a no-op.
func (r *Registry) Init() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.ready {
		r.mu.Unlock()
		return nil
	}
	r.ready = true
	r.mu.Unlock()

	builtins := []error{
		r.RegisterMessage(MessageType{
			Tag:    domain.NoMessage,
			Encode: func(any) (any, error) { return nil, nil },
			Decode: func(*yaml.Node) (any, error) { return nil, nil },
		}),
		RegisterValue[int](r, domain.TypeInt),
		RegisterValue[float64](r, domain.TypeFloat),
		RegisterValue[string](r, domain.TypeString),
		RegisterValue[bool](r, domain.TypeBool),
		RegisterValue[engine.IntRange](r, domain.TypeIntRange),
		RegisterValue[engine.FloatRange](r, domain.TypeFloatRange),
		RegisterValue[any](r, domain.TypeAny),
	}
	if err := errors.Join(builtins...); err != nil {
		return fmt.Errorf("registering built-in types: %w", err)
	}
	r.logger.Debug("registry initialised", "message_types", len(r.MessageTypes()))
	return nil
}

// Shutdown drops every registration. The registry cannot be reused.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = make(map[string]MessageType)
	r.nodes = make(map[string]NodeType)
	r.closed = true
}

// RegisterMessage adds a message type. Tags are registered once.
func (r *Registry) RegisterMessage(mt MessageType) error {
	if mt.Tag == "" || mt.Encode == nil || mt.Decode == nil {
		return fmt.Errorf("message type %q needs a tag, an encoder and a decoder", mt.Tag)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, exists := r.messages[mt.Tag]; exists {
		return fmt.Errorf("message type %q already registered", mt.Tag)
	}
	r.messages[mt.Tag] = mt
	return nil
}

// RegisterValue registers tag for payloads of Go type T, encoded as plain YAML.
func RegisterValue[T any](r *Registry, tag string) error {
	return r.RegisterMessage(MessageType{
		Tag: tag,
		Encode: func(value any) (any, error) {
			v, ok := value.(T)
			if !ok && value == nil {
				return nil, nil
			}
			if !ok {
				var zero T
				return nil, fmt.Errorf("payload %T is not a %T", value, zero)
			}
			return v, nil
		},
		Decode: func(data *yaml.Node) (any, error) {
			var v T
			if data.Kind == 0 {
				return v, nil
			}
			if err := data.Decode(&v); err != nil {
				return nil, err
			}
			return v, nil
		},
	})
}

// Message returns the message type registered for tag.
func (r *Registry) Message(tag string) (MessageType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mt, ok := r.messages[tag]
	return mt, ok
}

// MessageTypes returns the registered tags, sorted.
func (r *Registry) MessageTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.messages))
	for tag := range r.messages {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// RegisterNode adds a node constructor under name.
// If a node type with the same name exists, it is overwritten.
func (r *Registry) RegisterNode(name string, ctor NodeConstructor, description ...string) error {
	if name == "" || ctor == nil {
		return fmt.Errorf("node type %q needs a name and a constructor", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	nt := NodeType{Name: name, New: ctor}
	if len(description) > 0 {
		nt.Description = description[0]
	}
	if _, exists := r.nodes[name]; exists {
		r.logger.Warn("overwriting node type", "type", name)
	}
	r.nodes[name] = nt
	return nil
}

// NewNode builds a body of the named node type.
func (r *Registry) NewNode(name string) (engine.Node, error) {
	r.mu.RLock()
	nt, ok := r.nodes[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: node type %q", domain.ErrUnknownType, name)
	}
	return nt.New(), nil
}

// HasNode reports whether a node type is registered.
func (r *Registry) HasNode(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.nodes[name]
	return ok
}

// NodeTypes returns the registered node types, sorted by name.
func (r *Registry) NodeTypes() []NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NodeType, 0, len(r.nodes))
	for _, nt := range r.nodes {
		out = append(out, nt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
