// Package errors defines the error taxonomy shared by the data path language, the compilers
// and the execution engine. Concrete error types live next to the code that raises them and
// are joined with one of the sentinels below, so callers can classify any failure with
// errors.Is and still inspect the typed error with errors.As.
package errors

import (
	"errors"

	"github.com/natefinch/wrap"
)

var (
	// ErrParse is raised for malformed data path text.
	ErrParse = errors.New("parse error")

	// ErrTypeMismatch is raised when an operation is applied to a value of the wrong variant.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrNotSupported is raised when a value cannot take part in an operation at all,
	// e.g. aggregating a map.
	ErrNotSupported = errors.New("not supported")

	// ErrMissingParameter is raised when a computed parameter or an action lacks a
	// structurally required sub-parameter.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrSchemaNotFound is raised for unknown topic, factor or pipeline references.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrCompile wraps any failure encountered while compiling a pipeline.
	ErrCompile = errors.New("compile error")

	// ErrRuntime wraps failures surfaced from storage, masking or external collaborators
	// during execution.
	ErrRuntime = errors.New("runtime error")
)

// With joins err with the sentinel kind. A nil err stays nil.
func With(err, kind error) error {
	if err == nil {
		return nil
	}
	return wrap.With(err, kind)
}
