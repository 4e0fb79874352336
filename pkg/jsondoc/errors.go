// Package jsondoc implements the engine boundary over a parsed JSON document
package jsondoc

import "errors"

var (
	// ErrNoDocument indicates no document is loaded
	ErrNoDocument = errors.New("jsondoc: no document loaded")

	// ErrInvalidPointer indicates a pointer that resolves to nothing
	ErrInvalidPointer = errors.New("jsondoc: invalid pointer")

	// ErrCanceled indicates an open aborted by CancelOpen
	ErrCanceled = errors.New("jsondoc: open canceled")

	// ErrNotScalar indicates a scalar edit on a container or null value
	ErrNotScalar = errors.New("jsondoc: value is not an editable scalar")

	// ErrNotContainer indicates a subtree edit on a non-container value
	ErrNotContainer = errors.New("jsondoc: value is not an object or array")

	// ErrTypeChange indicates a subtree edit that would change the container kind
	ErrTypeChange = errors.New("jsondoc: type change not allowed (must remain object/array)")

	// ErrNotStringified indicates a string value that does not hold embedded JSON
	ErrNotStringified = errors.New("jsondoc: string does not look like a JSON object/array")

	// ErrEmptyQuery indicates a streaming search started with no query text
	ErrEmptyQuery = errors.New("jsondoc: empty query")
)
