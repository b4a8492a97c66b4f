package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Run modes of a scenario.
const (
	ModePreflight = "preflight"
	ModeExecute   = "execute"
)

// Scenario describes a pipeline built from registered filters, optional
// argument edits, and the assertions the run must satisfy.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Mode is "preflight" or "execute". Defaults to execute.
	Mode string `yaml:"mode,omitempty"`

	// Steps are the pipeline nodes in order.
	Steps []Step `yaml:"steps"`

	// Edits replace node arguments after a first preflight. The final run
	// then sees the rewritten pipeline.
	Edits []Edit `yaml:"edits,omitempty"`

	// Assertions validate the final structure and the recorded trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one pipeline node.
type Step struct {
	// Filter is the registered filter name, e.g. "CreateDataGroupFilter".
	Filter string `yaml:"filter"`

	// Args are decoded through the filter's parameter schema. Relative
	// file arguments resolve inside the run's scratch directory.
	Args map[string]any `yaml:"args"`

	Disabled bool   `yaml:"disabled,omitempty"`
	Comment  string `yaml:"comment,omitempty"`
}

// Edit replaces the arguments of one node.
type Edit struct {
	Node int            `yaml:"node"`
	Args map[string]any `yaml:"args"`
}

// Assertion validates the final structure or the trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Path is the object path (exists, absent, kind, values).
	Path string `yaml:"path,omitempty"`

	// Paths must all resolve to the same object (shared).
	Paths []string `yaml:"paths,omitempty"`

	// Kind is the expected object kind name (kind).
	Kind string `yaml:"kind,omitempty"`

	// Values are the expected array values (values).
	Values []float64 `yaml:"values,omitempty"`

	// Node is the node index (fault, warning, argument).
	Node *int `yaml:"node,omitempty"`

	// Code is the expected error or warning code (fault, warning).
	Code int `yaml:"code,omitempty"`

	// Name and Value check a node argument after renames (argument).
	Name  string `yaml:"name,omitempty"`
	Value string `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertExists   = "exists"
	AssertAbsent   = "absent"
	AssertKind     = "kind"
	AssertValues   = "values"
	AssertShared   = "shared"
	AssertFault    = "fault"
	AssertWarning  = "warning"
	AssertArgument = "argument"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos surface as load errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if scenario.Mode == "" {
		scenario.Mode = ModeExecute
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Mode != ModePreflight && s.Mode != ModeExecute {
		return fmt.Errorf("mode must be %q or %q, got %q", ModePreflight, ModeExecute, s.Mode)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Filter == "" {
			return fmt.Errorf("steps[%d]: filter is required", i)
		}
	}
	for i, edit := range s.Edits {
		if edit.Node < 0 || edit.Node >= len(s.Steps) {
			return fmt.Errorf("edits[%d]: node %d is out of range", i, edit.Node)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertExists, AssertAbsent:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for %s", index, a.Type)
		}
	case AssertKind:
		if a.Path == "" || a.Kind == "" {
			return fmt.Errorf("assertions[%d]: path and kind are required for kind", index)
		}
	case AssertValues:
		if a.Path == "" || len(a.Values) == 0 {
			return fmt.Errorf("assertions[%d]: path and values are required for values", index)
		}
	case AssertShared:
		if len(a.Paths) < 2 {
			return fmt.Errorf("assertions[%d]: at least two paths are required for shared", index)
		}
	case AssertFault, AssertWarning:
		if a.Node == nil {
			return fmt.Errorf("assertions[%d]: node is required for %s", index, a.Type)
		}
	case AssertArgument:
		if a.Node == nil || a.Name == "" {
			return fmt.Errorf("assertions[%d]: node and name are required for argument", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
