package registry

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/conduit/pkg/domain"
)

// SerializationError reports a token that could not be encoded.
type SerializationError struct {
	Type string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("cannot serialize message of type %q: %v", e.Type, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// DeserializationError reports a document that could not be decoded.
type DeserializationError struct {
	Type string
	Err  error
}

func (e *DeserializationError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("cannot deserialize message: %v", e.Err)
	}
	return fmt.Sprintf("cannot deserialize message of type %q: %v", e.Type, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

type document struct {
	Type string    `yaml:"type"`
	Data yaml.Node `yaml:"data"`
}

// Encode converts tok into its {type, data} document form.
func (r *Registry) Encode(tok *domain.Token) (map[string]any, error) {
	tag := domain.NoMessage
	var value any
	if !tok.IsNoMessage() {
		tag = tok.Type()
		value = tok.Value()
	}

	mt, ok := r.Message(tag)
	if !ok {
		return nil, &SerializationError{Type: tag, Err: fmt.Errorf("%w: no codec registered", domain.ErrUnknownType)}
	}
	data, err := mt.Encode(value)
	if err != nil {
		return nil, &SerializationError{Type: tag, Err: err}
	}
	return map[string]any{"type": tag, "data": data}, nil
}

// Serialize encodes tok as a YAML document.
func (r *Registry) Serialize(tok *domain.Token) ([]byte, error) {
	doc, err := r.Encode(tok)
	if err != nil {
		return nil, err
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, &SerializationError{Type: doc["type"].(string), Err: err}
	}
	return out, nil
}

// Deserialize decodes a YAML document produced by Serialize.
func (r *Registry) Deserialize(data []byte) (*domain.Token, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &DeserializationError{Err: err}
	}
	if doc.Type == "" {
		return nil, &DeserializationError{Err: fmt.Errorf("document has no type")}
	}

	mt, ok := r.Message(doc.Type)
	if !ok {
		return nil, &DeserializationError{Type: doc.Type, Err: fmt.Errorf("%w: no codec registered", domain.ErrUnknownType)}
	}
	value, err := mt.Decode(&doc.Data)
	if err != nil {
		return nil, &DeserializationError{Type: doc.Type, Err: err}
	}
	if doc.Type == domain.NoMessage {
		return domain.NewNoMessage(0), nil
	}
	return domain.NewToken(doc.Type, value), nil
}
