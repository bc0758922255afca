package condition

import (
	"fmt"

	flowerrors "github.com/topicflow/topicflow/pkg/errors"
)

// CompilationError reports a parameter or condition that cannot be compiled. Cause carries
// the classifying sentinel.
type CompilationError struct {
	Subject string
	Cause   error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("failed to compile '%s': %v", e.Subject, e.Cause)
}

func (e *CompilationError) Unwrap() error {
	return e.Cause
}

// EvaluationError reports a failure while producing a value or a truth value at run time.
type EvaluationError struct {
	Subject string
	Cause   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("failed to evaluate '%s': %v", e.Subject, e.Cause)
}

func (e *EvaluationError) Unwrap() error {
	return e.Cause
}

func compileError(subject string, cause, kind error) error {
	return &CompilationError{Subject: subject, Cause: flowerrors.With(cause, kind)}
}

func evaluationError(subject string, cause error) error {
	return &EvaluationError{Subject: subject, Cause: cause}
}
