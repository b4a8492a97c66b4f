package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datapipe/internal/filter"
	"github.com/roach88/datapipe/internal/result"
	"github.com/roach88/datapipe/internal/testutil"
)

func testRegistry() *filter.Registry {
	reg := filter.NewRegistry()
	reg.MustRegister(
		testutil.GroupCreator("MakeGroup"),
		testutil.ArrayCreator("MakeArray"),
		testutil.Reader("ReadOnce"),
		testutil.Reader("ReadTwice"),
	)
	return reg
}

func TestMarshal_RoundTrip(t *testing.T) {
	pl := chain()
	pl.nodes[2].SetComment("first reader")
	require.NoError(t, pl.SetDisabled(3, true))

	first, err := pl.Marshal()
	require.NoError(t, err)

	loaded, err := Load(first, testRegistry())
	require.NoError(t, err)
	require.Equal(t, 4, loaded.Len())
	assert.Equal(t, "chain", loaded.Name())
	assert.Equal(t, "first reader", loaded.nodes[2].Comment())
	assert.True(t, loaded.nodes[3].Disabled())
	assert.Equal(t, 1.0, loaded.nodes[1].Arguments().Float("offset"))
	assert.Equal(t, "A/B", loaded.nodes[1].Arguments().Path("output").String())

	second, err := loaded.Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	require.NoError(t, loaded.Execute(context.Background()))
	assert.Equal(t, []float64{2, 3, 4, 5}, values(t, loaded.Output(), "A/B"))
}

func TestMarshal_Layout(t *testing.T) {
	pl := New("one")
	pl.Append(testutil.GroupCreator("MakeGroup"), filter.Arguments{"output": p("A")})

	b, err := pl.Marshal()
	require.NoError(t, err)
	want := `{
  "name": "one",
  "version": 1,
  "pipeline": [
    {
      "filter": {
        "uuid": "` + testutil.NameUUID("MakeGroup").String() + `",
        "name": "MakeGroup"
      },
      "args": {
        "output": "A"
      },
      "isDisabled": false
    }
  ]
}
`
	assert.Equal(t, want, string(b))

	empty, err := New("none").Marshal()
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"name\": \"none\",\n  \"version\": 1,\n  \"pipeline\": []\n}\n", string(empty))
}

const unknownRecord = `{"filter": {"uuid": "6c7a2e52-0000-4000-8000-00000000beef", "name": "GoneFilter"},   "args": {"weird": [1, 2,  3]}, "isDisabled": false, "comment": "kept as is"}`

func TestLoad_UnknownFilterBecomesPlaceholder(t *testing.T) {
	doc := `{"name": "legacy", "version": 1, "pipeline": [
		{"filter": {"uuid": "` + testutil.NameUUID("MakeGroup").String() + `", "name": "MakeGroup"}, "args": {"output": "A"}},
		` + unknownRecord + `
	]}`

	pl, err := Load([]byte(doc), testRegistry())
	require.NoError(t, err)
	require.Equal(t, 2, pl.Len())
	n := pl.nodes[1]
	assert.True(t, n.IsPlaceholder())
	assert.Equal(t, "GoneFilter", n.Name())
	assert.Equal(t, "kept as is", n.Comment())

	err = pl.Preflight(context.Background())
	var fe *FaultError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 1, fe.Index)
	assert.Equal(t, result.CodeUnresolvedFilter, fe.Errors[0].Code)
	assert.Equal(t, result.Structural, fe.Errors[0].Kind)

	out, err := pl.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), unknownRecord)
}

func TestLoad_YAML(t *testing.T) {
	doc := `
name: from-yaml
version: 1
pipeline:
  - filter:
      uuid: ` + testutil.NameUUID("MakeGroup").String() + `
      name: MakeGroup
    args:
      output: A
  - filter:
      uuid: ` + testutil.NameUUID("MakeArray").String() + `
      name: MakeArray
    args:
      output: A/B
      tuples: 2
      offset: 0.5
    comment: two values
`
	pl, err := Load([]byte(doc), testRegistry())
	require.NoError(t, err)
	require.Equal(t, 2, pl.Len())
	assert.Equal(t, "from-yaml", pl.Name())
	assert.Equal(t, "two values", pl.nodes[1].Comment())

	require.NoError(t, pl.Execute(context.Background()))
	assert.Equal(t, []float64{0.5, 1.5}, values(t, pl.Output(), "A/B"))
}

func TestLoad_BadArgumentSurvivesAndFailsPreflight(t *testing.T) {
	doc := `{"name": "bad", "version": 1, "pipeline": [
		{"filter": {"uuid": "` + testutil.NameUUID("MakeGroup").String() + `", "name": "MakeGroup"}, "args": {"output": "A"}},
		{"filter": {"uuid": "` + testutil.NameUUID("MakeArray").String() + `", "name": "MakeArray"}, "args": {"output": "A/B", "tuples": "four"}}
	]}`
	pl, err := Load([]byte(doc), testRegistry())
	require.NoError(t, err)

	err = pl.Preflight(context.Background())
	var fe *FaultError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 1, fe.Index)
	assert.Equal(t, result.CodeInvalidArgument, fe.Errors[0].Code)

	out, err := pl.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"tuples": "four"`)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load([]byte(`{"name": "future", "version": 99, "pipeline": []}`), testRegistry())
	assert.ErrorContains(t, err, "newer")

	_, err = Load([]byte("- just\n- a list\n"), testRegistry())
	assert.ErrorContains(t, err, "not a mapping")

	_, err = Load([]byte(`{"name": "x", "version": 1, "pipeline": [{"filter": {"uuid": "not-a-uuid"}}]}`), testRegistry())
	assert.ErrorContains(t, err, "node 0")
}

func TestSaveFileAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.json")
	require.NoError(t, chain().SaveFile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "{\n  \"name\": \"chain\""))

	pl, err := LoadFile(path, testRegistry())
	require.NoError(t, err)
	assert.Equal(t, 4, pl.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"), testRegistry())
	assert.Error(t, err)
}

func TestMarshal_PlaceholderKeepsEdits(t *testing.T) {
	doc := `{"name": "legacy", "version": 1, "pipeline": [` + unknownRecord + `]}`
	reg := testRegistry()
	pl, err := Load([]byte(doc), reg)
	require.NoError(t, err)

	require.NoError(t, pl.SetDisabled(0, true))
	pl.nodes[0].SetComment("disabled until ported")
	out, err := pl.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(out), unknownRecord)

	again, err := Load(out, reg)
	require.NoError(t, err)
	n := again.nodes[0]
	assert.True(t, n.IsPlaceholder())
	assert.True(t, n.Disabled())
	assert.Equal(t, "disabled until ported", n.Comment())
	assert.Equal(t, "GoneFilter", n.Name())
	var saved struct {
		Pipeline []map[string]json.RawMessage `json:"pipeline"`
	}
	require.NoError(t, json.Unmarshal(out, &saved))
	require.Len(t, saved.Pipeline, 1)
	assert.JSONEq(t, `{"weird": [1, 2, 3]}`, string(saved.Pipeline[0]["args"]))

	// Reverting both edits restores the original bytes.
	require.NoError(t, pl.SetDisabled(0, false))
	pl.nodes[0].SetComment("kept as is")
	out, err = pl.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), unknownRecord)
}

func TestLoad_FilterByNameWithoutUUID(t *testing.T) {
	doc := `
name: by-name
version: 1
pipeline:
  - filter: {name: MakeGroup}
    args: {output: A}
  - filter: {name: NoSuchFilter}
    args: {output: B}
`
	pl, err := Load([]byte(doc), testRegistry())
	require.NoError(t, err)
	require.Equal(t, 2, pl.Len())
	assert.False(t, pl.nodes[0].IsPlaceholder())
	assert.True(t, pl.nodes[1].IsPlaceholder())
}
