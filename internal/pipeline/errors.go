package pipeline

import (
	"errors"
	"fmt"

	"github.com/roach88/datapipe/internal/result"
)

var (
	// ErrCancelled is returned when a run stops because its cancel token
	// was set. It is not a fault.
	ErrCancelled = errors.New("pipeline run cancelled")

	// ErrCannotResume is returned when a run is asked to start at a node
	// whose predecessor holds no valid snapshot.
	ErrCannotResume = errors.New("cannot resume: previous node has no valid snapshot")

	// ErrIndex is returned for node indexes outside the pipeline.
	ErrIndex = errors.New("node index out of range")
)

// FaultError reports the node that stopped a run and its errors.
type FaultError struct {
	Index  int
	Filter string
	Errors []result.Error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("node %d (%s) failed: %s", e.Index, e.Filter, result.Errors(e.Errors).Error())
}

// Unwrap exposes the coded errors to errors.Is/As.
func (e *FaultError) Unwrap() error {
	return result.Errors(e.Errors)
}

// IsFault reports whether err is (or wraps) a *FaultError.
func IsFault(err error) bool {
	var fe *FaultError
	return errors.As(err, &fe)
}

// IsCancelled reports whether err is a cancelled run.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
