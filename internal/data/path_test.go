package data

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath_RoundTrip(t *testing.T) {
	p, err := ParsePath("/Image/CellData/Phases/")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, "Image/CellData/Phases", p.String())
	assert.Equal(t, "Phases", p.Name())
	assert.Equal(t, "Image/CellData", p.Parent().String())
}

func TestParsePath_Empty(t *testing.T) {
	p, err := ParsePath("")
	require.NoError(t, err)
	assert.True(t, p.IsRoot())
	assert.Equal(t, "", p.Name())
}

func TestParsePath_RejectsEmptySegment(t *testing.T) {
	_, err := ParsePath("A//B")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestNewPath_NormalizesNFC(t *testing.T) {
	// "e" + combining acute accent becomes the precomposed form.
	p := NewPath("Cafe\u0301")
	assert.Equal(t, "Caf\u00e9", p.Name())
	assert.NoError(t, p.Validate())
}

func TestPath_ReplacePrefix(t *testing.T) {
	old := MustParsePath("A/B")
	repl := MustParsePath("A/D")

	got, ok := MustParsePath("A/B/C").ReplacePrefix(old, repl)
	assert.True(t, ok)
	assert.Equal(t, "A/D/C", got.String())

	got, ok = MustParsePath("A/B").ReplacePrefix(old, repl)
	assert.True(t, ok)
	assert.Equal(t, "A/D", got.String())

	_, ok = MustParsePath("A/BB").ReplacePrefix(old, repl)
	assert.False(t, ok)
}

func TestPath_DiffSegments(t *testing.T) {
	assert.Equal(t, 1, MustParsePath("A/B").DiffSegments(MustParsePath("A/D")))
	assert.Equal(t, 0, MustParsePath("A/B").DiffSegments(MustParsePath("A/B")))
	assert.Equal(t, 2, MustParsePath("A/B").DiffSegments(MustParsePath("X/Y")))
	assert.Equal(t, -1, MustParsePath("A/B").DiffSegments(MustParsePath("A")))
}

func TestPath_JSON(t *testing.T) {
	type holder struct {
		P Path `json:"p"`
	}
	b, err := json.Marshal(holder{P: MustParsePath("A/B")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"p":"A/B"}`, string(b))

	var h holder
	require.NoError(t, json.Unmarshal([]byte(`{"p":"X/Y/Z"}`), &h))
	assert.Equal(t, "X/Y/Z", h.P.String())
}

func TestPath_ChildDoesNotAlias(t *testing.T) {
	base := MustParsePath("A")
	b := base.Child("B")
	c := base.Child("C")
	assert.Equal(t, "A/B", b.String())
	assert.Equal(t, "A/C", c.String())
	assert.Equal(t, "A", base.String())
}
