package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datapipe/internal/filter/builtin"
	"github.com/roach88/datapipe/internal/pipeline"
)

const demoPipeline = `
name: demo
version: 1
pipeline:
  - filter: {name: CreateDataGroupFilter}
    args: {output: Data}
  - filter: {name: CreateDataArrayFilter}
    args: {output: Data/V, tuples: [3], fill: 2}
  - filter: {name: ScaleArrayFilter}
    args: {input: Data/V, factor: 3}
`

const faultingPipeline = `
name: broken
version: 1
pipeline:
  - filter: {name: CreateDataGroupFilter}
    args: {output: Data}
  - filter: {name: ScaleArrayFilter}
    args: {input: Data/Missing}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodeResponse(t *testing.T, out string) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "datapipe", cmd.Use)

	for _, name := range []string{"run", "preflight", "inspect", "filters", "test"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, "command %s should exist", name)
		assert.Equal(t, name, sub.Name())
	}

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, err := execute(t, "filters", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestRun_Text(t *testing.T) {
	path := writeFile(t, "demo.yaml", demoPipeline)

	out, err := execute(t, "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, `Pipeline "demo": execute of 3 nodes succeeded`)
	assert.Contains(t, out, "  Data id=1 kind=Group\n")
	assert.Contains(t, out, "  Data/V id=2 kind=Array type=float32 tuples=[3] components=[1]")
}

func TestRun_JSON(t *testing.T) {
	path := writeFile(t, "demo.yaml", demoPipeline)

	out, err := execute(t, "run", path, "--format", "json")
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	report, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "execute", report["mode"])
	assert.Len(t, report["structure"], 2)
}

func TestRun_FaultExitsWithFailure(t *testing.T) {
	path := writeFile(t, "broken.yaml", faultingPipeline)

	out, err := execute(t, "run", path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.True(t, pipeline.IsFault(err))

	resp := decodeResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeFault, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "node 1 (ScaleArrayFilter)")
}

func TestRun_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing pipeline", []string{"run", filepath.Join(t.TempDir(), "nope.yaml")}, "failed to load pipeline"},
		{"missing config", []string{"run", "x.yaml", "--config", filepath.Join(t.TempDir(), "nope.yaml")}, "failed to load config"},
		{"missing container", []string{"inspect", filepath.Join(t.TempDir(), "nope.dpc")}, "failed to open container"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, ExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPreflight_Save(t *testing.T) {
	path := writeFile(t, "demo.yaml", demoPipeline)
	saved := filepath.Join(t.TempDir(), "saved.json")

	out, err := execute(t, "preflight", path, "--save", saved)
	require.NoError(t, err)
	assert.Contains(t, out, "preflight of 3 nodes succeeded")
	assert.Contains(t, out, "Wrote "+saved)

	pl, err := pipeline.LoadFile(saved, builtin.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, "demo", pl.Name())
	assert.Equal(t, 3, pl.Len())
}

func TestRunThenInspect(t *testing.T) {
	path := writeFile(t, "demo.yaml", demoPipeline)
	dpc := filepath.Join(t.TempDir(), "out.dpc")

	_, err := execute(t, "run", path, "--output", dpc)
	require.NoError(t, err)

	out, err := execute(t, "inspect", dpc, "--format", "json")
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	report, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, report["format_version"])
	assert.Len(t, report["fingerprint"], 16)
	entries, ok := report["entries"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 2)
	assert.Equal(t, "Data/V", entries[1].(map[string]any)["path"])
}

func TestFilters(t *testing.T) {
	out, err := execute(t, "filters", "--format", "json")
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	list, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, list, len(builtin.All()))
	assert.Equal(t, "CreateDataArrayFilter", list[0].(map[string]any)["name"])

	out, err = execute(t, "filters", "--params")
	require.NoError(t, err)
	assert.Contains(t, out, "ScaleArrayFilter")
	assert.Contains(t, out, "factor")
}

func TestTest_HarnessScenarios(t *testing.T) {
	out, err := execute(t, "test", "../harness/testdata/scenarios")
	require.NoError(t, err, "output: %s", out)
	assert.Contains(t, out, "✓ image_pipeline")
	assert.Contains(t, out, "✓ All scenarios passed")

	out, err = execute(t, "test", "../harness/testdata/scenarios", "--filter", "tuple_*", "--format", "json")
	require.NoError(t, err)
	resp := decodeResponse(t, out)
	result, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, result["total"])
}

func TestTest_FailingScenarioAndUpdate(t *testing.T) {
	dir := t.TempDir()
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenarios, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "wrong.yaml"), []byte(`
name: wrong
description: asserts the group is missing
steps:
  - filter: CreateDataGroupFilter
    args: {output: A}
assertions:
  - type: absent
    path: A
`), 0o644))

	out, err := execute(t, "test", scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "1 failed")

	// --update writes the snapshot even for a failing scenario.
	_, err = execute(t, "test", scenarios, "--update")
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(dir, "golden", "wrong.golden"))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(assert.AnError))

	err := withExit(ExitCommandError, "bad", assert.AnError)
	assert.Equal(t, ExitCommandError, ExitCode(fmt.Errorf("outer: %w", err)))
	assert.Equal(t, "bad: "+assert.AnError.Error(), err.Error())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, "bare", withExit(ExitFailure, "bare", nil).Error())
}

func TestPrinter_Text(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	p := &printer{out: out, diag: diag, verbose: true}

	require.NoError(t, p.fail(CodeFault, "node 1 failed", []string{"detail"}))
	p.logf("progress %d%%", 50)
	assert.Equal(t, "Error [E_FAULT]: node 1 failed\nDetails: [detail]\n", out.String())
	assert.Equal(t, "progress 50%\n", diag.String())

	p.verbose = false
	p.logf("hidden")
	assert.Equal(t, "progress 50%\n", diag.String())
}
