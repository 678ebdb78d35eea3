package graph

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

// Format is the serialization of a graph document.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return "unknown"
	}
}

// FormatFor picks the format from a file name or URL path. Anything that is
// not .yaml/.yml is treated as JSON.
func FormatFor(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

//go:embed schema.json
var schemaJSON []byte

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
})

type wireOption struct {
	Answer   string `json:"answer" yaml:"answer"`
	NextNode string `json:"next_node" yaml:"next_node"`
}

type labeledOption struct {
	Label string
	wireOption
}

// wireOptions keeps the authored key order of the options mapping.
type wireOptions []labeledOption

type wireNode struct {
	Question string      `json:"question" yaml:"question"`
	Options  wireOptions `json:"options" yaml:"options"`
	Answer   string      `json:"answer" yaml:"answer"`
}

// Parse validates a graph document against the graph schema and decodes it,
// keeping node and option order.
func Parse(data []byte, format Format) (*Graph, error) {
	var (
		nodes []Node
		err   error
	)
	switch format {
	case FormatYAML:
		nodes, err = parseYAML(data)
	default:
		nodes, err = parseJSON(data)
	}
	if err != nil {
		return nil, err
	}
	return New(nodes, Digest(data))
}

// Digest fingerprints a document with blake2b-256.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func validateSchema(doc gojsonschema.JSONLoader) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compiling graph schema: %w", err)
	}
	res, err := schema.Validate(doc)
	if err != nil {
		return fmt.Errorf("parsing document: %w", err)
	}
	if res.Valid() {
		return nil
	}
	violations := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		violations = append(violations, e.String())
	}
	return &SchemaError{Violations: violations}
}

func parseJSON(data []byte) ([]Node, error) {
	if err := validateSchema(gojsonschema.NewBytesLoader(data)); err != nil {
		return nil, err
	}

	var nodes []Node
	err := decodeObject(data, true, func(key string, raw json.RawMessage) error {
		var w wireNode
		if err := json.Unmarshal(raw, &w); err != nil {
			return fmt.Errorf("node %q: %w", key, err)
		}
		nodes = append(nodes, w.node(NodeID(key)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// UnmarshalJSON decodes the options object in key order.
func (o *wireOptions) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = nil
		return nil
	}
	opts := wireOptions{}
	err := decodeObject(data, false, func(key string, raw json.RawMessage) error {
		var w wireOption
		if err := json.Unmarshal(raw, &w); err != nil {
			return fmt.Errorf("option %q: %w", key, err)
		}
		opts = append(opts, labeledOption{Label: key, wireOption: w})
		return nil
	})
	if err != nil {
		return err
	}
	*o = opts
	return nil
}

// decodeObject walks the members of a JSON object in document order.
func decodeObject(data []byte, top bool, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		if _, dup := seen[key]; dup {
			return &duplicateError{what: "key", key: key}
		}
		seen[key] = struct{}{}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("member %q: %w", key, err)
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if top {
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return errors.New("unexpected data after graph object")
		}
	}
	return nil
}

func parseYAML(data []byte) ([]Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("empty document")
	}
	root := doc.Content[0]

	generic, err := toGeneric(root)
	if err != nil {
		return nil, err
	}
	if err := validateSchema(gojsonschema.NewGoLoader(generic)); err != nil {
		return nil, err
	}

	var nodes []Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		var w wireNode
		if err := root.Content[i+1].Decode(&w); err != nil {
			return nil, fmt.Errorf("node %q: %w", key, err)
		}
		nodes = append(nodes, w.node(NodeID(key)))
	}
	return nodes, nil
}

// UnmarshalYAML decodes the options mapping in key order.
func (o *wireOptions) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: options must be a mapping", value.Line)
	}
	opts := make(wireOptions, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		label := value.Content[i].Value
		var w wireOption
		if err := value.Content[i+1].Decode(&w); err != nil {
			return fmt.Errorf("option %q: %w", label, err)
		}
		opts = append(opts, labeledOption{Label: label, wireOption: w})
	}
	*o = opts
	return nil
}

// toGeneric converts a YAML tree into the map/slice form the schema
// validator understands. Mapping keys are always strings.
func toGeneric(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return toGeneric(n.Content[0])
	case yaml.AliasNode:
		return toGeneric(n.Alias)
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if _, dup := m[key]; dup {
				return nil, &duplicateError{what: "key", key: key}
			}
			v, err := toGeneric(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m[key] = v
		}
		return m, nil
	case yaml.SequenceNode:
		s := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := toGeneric(c)
			if err != nil {
				return nil, err
			}
			s = append(s, v)
		}
		return s, nil
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func (w wireNode) node(id NodeID) Node {
	n := Node{
		ID:       id,
		Question: w.Question,
		Answer:   w.Answer,
	}
	for _, o := range w.Options {
		n.Options = append(n.Options, Option{
			Label:  o.Label,
			Answer: o.Answer,
			Next:   NodeID(o.NextNode),
		})
	}
	return n
}
