package data

import "errors"

var (
	// ErrNotFound is returned when a path or ID does not resolve.
	ErrNotFound = errors.New("object not found")

	// ErrExists is returned when a name is already taken in a DataMap.
	ErrExists = errors.New("object already exists")

	// ErrInvalidName is returned for empty names or names containing '/'.
	ErrInvalidName = errors.New("invalid object name")

	// ErrNotContainer is returned when a path used as a parent is not a container.
	ErrNotContainer = errors.New("object is not a container")

	// ErrTypeMismatch is returned when an object has an unexpected kind.
	ErrTypeMismatch = errors.New("object type mismatch")

	// ErrShapeMismatch is returned when an array's tuple count does not match
	// the attribute matrix it is inserted into.
	ErrShapeMismatch = errors.New("tuple shape mismatch")

	// ErrCycle is returned when an edit would make an object its own ancestor.
	ErrCycle = errors.New("edit would create a cycle")

	// ErrIDInUse is returned when inserting an object whose preset ID is taken.
	ErrIDInUse = errors.New("object id already in use")
)
