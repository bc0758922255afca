package pipeline

import (
	"fmt"

	flowerrors "github.com/topicflow/topicflow/pkg/errors"
)

// CompileError reports the node of a pipeline that failed to compile.
type CompileError struct {
	PipelineID string
	// Node is the slash separated path to the failing node, e.g. stage[s1]/unit[u1]/action[a2].
	Node  string
	Cause error
}

func (e *CompileError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("failed to compile pipeline '%s': %v", e.PipelineID, e.Cause)
	}
	return fmt.Sprintf("failed to compile pipeline '%s' at %s: %v", e.PipelineID, e.Node, e.Cause)
}

func (e *CompileError) Unwrap() error {
	return e.Cause
}

func compileError(pipelineID, node string, cause error) error {
	return flowerrors.With(&CompileError{PipelineID: pipelineID, Node: node, Cause: cause}, flowerrors.ErrCompile)
}

func missing(format string, args ...any) error {
	return flowerrors.With(fmt.Errorf(format, args...), flowerrors.ErrMissingParameter)
}

func notFound(format string, args ...any) error {
	return flowerrors.With(fmt.Errorf(format, args...), flowerrors.ErrSchemaNotFound)
}
