package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_String(t *testing.T) {
	err := NewStructural(CodePathNotFound, "no object at %s", "A/B")
	assert.Equal(t, "structural error -200: no object at A/B", err.Error())
	assert.Equal(t, "warning 7: careful", Warning{Code: 7, Message: "careful"}.String())
}

func TestResult_Validity(t *testing.T) {
	assert.True(t, OK().Valid())
	assert.Nil(t, OK().Err())

	r := Fail(NewValidation(CodeInvalidArgument, "bad"))
	assert.False(t, r.Valid())
	assert.False(t, r.IsCancelled())

	assert.True(t, Fail(NewCancelled()).IsCancelled())
	assert.False(t, Fail(NewCancelled(), NewRuntime(CodeIO, "disk")).IsCancelled(), "cancelled plus a real error is a failure")
	assert.False(t, OK().IsCancelled())
}

func TestResult_MergeAndWarn(t *testing.T) {
	var r Result
	r.Warn(CodeWarningDeprecated, "old parameter %q", "x")
	r.Merge(Result{Errors: []Error{NewRuntime(CodeIO, "a")}, Warnings: []Warning{{Code: 1, Message: "b"}}})

	require.Len(t, r.Warnings, 2)
	assert.Equal(t, `old parameter "x"`, r.Warnings[0].Message)
	require.Len(t, r.Errors, 1)
}

func TestResult_Err(t *testing.T) {
	one := NewRuntime(CodeIO, "disk full")
	var got Error
	require.True(t, errors.As(Fail(one).Err(), &got))
	assert.Equal(t, one, got)

	two := Fail(NewValidation(CodeConstraint, "x"), NewStructural(CodeTypeMismatch, "y"))
	err := two.Err()
	assert.Equal(t, "validation error -102: x; structural error -202: y", err.Error())

	wrapped := fmt.Errorf("node 3: %w", err)
	require.True(t, errors.As(wrapped, &got))
	assert.Equal(t, CodeConstraint, got.Code)
}

func TestFromError(t *testing.T) {
	coded := NewStructural(CodeShapeMismatch, "tuples")
	assert.Equal(t, coded, FromError(Runtime, CodeIO, fmt.Errorf("apply: %w", coded)))

	plain := FromError(Runtime, CodeIO, errors.New("read failed"))
	assert.Equal(t, Error{Code: CodeIO, Kind: Runtime, Message: "read failed"}, plain)
}

func TestKind_JSON(t *testing.T) {
	b, err := json.Marshal(NewCancelled())
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":-400,"kind":"cancelled","message":"operation was cancelled"}`, string(b))

	var e Error
	require.NoError(t, json.Unmarshal(b, &e))
	assert.Equal(t, Cancelled, e.Kind)

	var k Kind
	assert.Error(t, k.UnmarshalText([]byte("fatal")))
}
