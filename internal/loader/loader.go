// Package loader reads graph files into domain.GraphSpec values.
//
// A graph file is YAML (or JSON, by extension). Nodes are either a list of
// node entries or a map keyed by node id; connections are either {from, to}
// entries or "from -> to" strings.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/conduit/pkg/domain"
)

// Load reads and decodes the graph file at path.
func Load(path string) (*domain.GraphSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}
	spec, err := Parse(data, strings.ToLower(filepath.Ext(path)) == ".json")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if spec.ID == "" {
		spec.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return spec, nil
}

// Parse decodes a graph document.
func Parse(data []byte, isJSON bool) (*domain.GraphSpec, error) {
	var raw map[string]any
	if isJSON {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse graph json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse graph yaml: %w", err)
		}
	}
	if raw == nil {
		return nil, fmt.Errorf("graph document is empty")
	}

	if nodes, ok := raw["nodes"].(map[string]any); ok {
		raw["nodes"] = nodeList(nodes)
	}

	var spec domain.GraphSpec
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       connectionHook,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &spec,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid graph document: %w", err)
	}
	return &spec, nil
}

// Marshal encodes spec as YAML.
func Marshal(spec *domain.GraphSpec) ([]byte, error) {
	return yaml.Marshal(spec)
}

// Save writes spec to path as YAML.
func Save(path string, spec *domain.GraphSpec) error {
	data, err := Marshal(spec)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// nodeList turns the map form of nodes into the list form, ordered by id.
func nodeList(nodes map[string]any) []any {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]any, 0, len(ids))
	for _, id := range ids {
		entry := map[string]any{}
		if body, ok := nodes[id].(map[string]any); ok {
			for k, v := range body {
				entry[k] = v
			}
		} else if typ, ok := nodes[id].(string); ok {
			entry["type"] = typ
		}
		entry["id"] = id
		out = append(out, entry)
	}
	return out
}

// connectionHook accepts "from -> to" strings for connection entries.
func connectionHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(domain.ConnectionSpec{}) {
		return data, nil
	}
	s := data.(string)
	left, right, ok := strings.Cut(s, "->")
	left, right = strings.TrimSpace(left), strings.TrimSpace(right)
	if !ok || left == "" || right == "" {
		return nil, fmt.Errorf("connection %q is not of the form \"from -> to\"", s)
	}
	return domain.ConnectionSpec{From: left, To: right}, nil
}
