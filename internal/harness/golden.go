package harness

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// GoldenDir holds golden snapshots relative to the test's package.
const GoldenDir = "testdata/golden"

// Snapshot renders the outcome of a scenario as stable text: the fault, the
// final structure one path per line, and the trace.
func Snapshot(scenario *Scenario, result *Result) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "scenario: %s\n", scenario.Name)
	fmt.Fprintf(&b, "mode: %s\n", scenario.Mode)
	switch {
	case result.Fault != nil:
		fmt.Fprintf(&b, "fault: node %d (%s)\n", result.Fault.Node, result.Fault.Filter)
		for _, e := range result.Fault.Errors {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	case result.Cancelled:
		b.WriteString("fault: cancelled\n")
	default:
		b.WriteString("fault: none\n")
	}
	b.WriteString("structure:\n")
	for _, line := range strings.Split(strings.TrimSuffix(result.Structure, "\n"), "\n") {
		if line != "" {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	b.WriteString("trace:\n")
	for _, ev := range result.Trace {
		fmt.Fprintf(&b, "  %s\n", ev)
	}
	return b.Bytes()
}

// RunWithGolden runs a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()
	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario, result)
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, Snapshot(scenario, result))
}
