package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/roach88/datapipe/internal/filter"
)

// FormatVersion is written to the "version" field of saved pipelines.
const FormatVersion = 1

type document struct {
	Name     string            `json:"name"`
	Version  int               `json:"version"`
	Pipeline []json.RawMessage `json:"pipeline"`
}

type record struct {
	Filter     filterRef                  `json:"filter"`
	Args       map[string]json.RawMessage `json:"args"`
	IsDisabled bool                       `json:"isDisabled"`
	Comment    string                     `json:"comment,omitempty"`
}

type filterRef struct {
	UUID uuid.UUID `json:"uuid"`
	Name string    `json:"name"`
}

// Load parses a saved pipeline. JSON and YAML documents of the same shape
// are accepted. Filters missing from reg become placeholder nodes that fail
// preflight but are saved back unchanged.
func Load(b []byte, reg *filter.Registry, opts ...Option) (*Pipeline, error) {
	b, err := toJSON(b)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("load pipeline: %w", err)
	}
	if doc.Version > FormatVersion {
		return nil, fmt.Errorf("load pipeline: version %d is newer than supported version %d", doc.Version, FormatVersion)
	}

	p := New(doc.Name, opts...)
	for i, raw := range doc.Pipeline {
		n, err := decodeNode(raw, reg)
		if err != nil {
			return nil, fmt.Errorf("load pipeline: node %d: %w", i, err)
		}
		if err := p.insertNode(len(p.nodes), n); err != nil {
			return nil, err
		}
	}
	slog.Debug("pipeline loaded", "pipeline", doc.Name, "nodes", len(p.nodes))
	return p, nil
}

// LoadFile reads and parses the pipeline at path.
func LoadFile(path string, reg *filter.Registry, opts ...Option) (*Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load pipeline: %w", err)
	}
	return Load(b, reg, opts...)
}

func decodeNode(raw json.RawMessage, reg *filter.Registry) (*Node, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}

	f, ok := reg.New(rec.Filter.UUID)
	if !ok && rec.Filter.UUID == uuid.Nil {
		// Hand-written documents may name the filter without its UUID.
		f, ok = reg.NewByName(rec.Filter.Name)
	}
	if !ok {
		slog.Warn("filter not found, keeping placeholder", "uuid", rec.Filter.UUID, "name", rec.Filter.Name)
		n := NewNode(&placeholder{id: rec.Filter.UUID, name: rec.Filter.Name}, nil)
		n.raw = append(json.RawMessage(nil), raw...)
		n.disabled = rec.IsDisabled
		n.comment = rec.Comment
		return n, nil
	}

	args, errs := f.Parameters().Decode(rec.Args)
	for _, e := range errs {
		slog.Warn("argument not decoded", "filter", f.Name(), "error", e.Message)
	}
	n := NewNode(f, args)
	n.disabled = rec.IsDisabled
	n.comment = rec.Comment
	return n, nil
}

// toJSON passes JSON through and converts YAML to JSON.
func toJSON(b []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed) {
		return trimmed, nil
	}
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("load pipeline: %w", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, fmt.Errorf("load pipeline: document is not a mapping")
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("load pipeline: %w", err)
	}
	return out, nil
}

// Marshal renders the pipeline in the JSON file format. Placeholder records
// are written exactly as they were read unless their disabled flag or
// comment was edited since.
func (p *Pipeline) Marshal() ([]byte, error) {
	name, err := json.Marshal(p.name)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "{\n  \"name\": %s,\n  \"version\": %d,\n  \"pipeline\": [", name, FormatVersion)
	for i, n := range p.nodes {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString("\n    ")
		marshal := n.marshalRecord
		if n.raw != nil {
			marshal = n.placeholderRecord
		}
		b, err := marshal()
		if err != nil {
			return nil, fmt.Errorf("save pipeline: node %d: %w", i, err)
		}
		buf.Write(b)
	}
	if len(p.nodes) > 0 {
		buf.WriteString("\n  ")
	}
	buf.WriteString("]\n}\n")
	return buf.Bytes(), nil
}

// SaveFile writes the pipeline to path.
func (p *Pipeline) SaveFile(path string) error {
	b, err := p.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("save pipeline: %w", err)
	}
	return nil
}

func (n *Node) marshalRecord() ([]byte, error) {
	args, err := n.filter.Parameters().Encode(n.args)
	if err != nil {
		return nil, err
	}
	rec := record{
		Filter:     filterRef{UUID: n.filter.UUID(), Name: n.filter.Name()},
		Args:       args,
		IsDisabled: n.disabled,
		Comment:    n.comment,
	}
	return json.MarshalIndent(rec, "    ", "  ")
}

// placeholderRecord returns the raw record of a placeholder node. Edited
// isDisabled and comment fields are patched in; every other field keeps its
// loaded value.
func (n *Node) placeholderRecord() ([]byte, error) {
	var rec record
	if err := json.Unmarshal(n.raw, &rec); err != nil {
		return nil, err
	}
	if rec.IsDisabled == n.disabled && rec.Comment == n.comment {
		return n.raw, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(n.raw, &fields); err != nil {
		return nil, err
	}
	fields["isDisabled"], _ = json.Marshal(n.disabled)
	if n.comment == "" {
		delete(fields, "comment")
	} else {
		fields["comment"], _ = json.Marshal(n.comment)
	}
	return json.MarshalIndent(fields, "    ", "  ")
}
