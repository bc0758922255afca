package engine

import (
	"errors"
	"fmt"

	flowerrors "github.com/topicflow/topicflow/pkg/errors"
)

// ErrRoundLimit is reported when a cascade is cut off at the round limit.
var ErrRoundLimit = errors.New("round limit reached")

// RuntimeError reports the node of a pipeline that failed while running.
type RuntimeError struct {
	PipelineID string
	// Node is the slash separated path to the failing node, e.g. stage[s1]/unit[u1]/action[a2].
	Node  string
	Cause error
}

func (e *RuntimeError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("pipeline '%s' failed: %v", e.PipelineID, e.Cause)
	}
	return fmt.Sprintf("pipeline '%s' failed at %s: %v", e.PipelineID, e.Node, e.Cause)
}

func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

func runtimeError(pipelineID, node string, cause error) error {
	return flowerrors.With(&RuntimeError{PipelineID: pipelineID, Node: node, Cause: cause}, flowerrors.ErrRuntime)
}

func failure(format string, args ...any) error {
	return flowerrors.With(fmt.Errorf(format, args...), flowerrors.ErrRuntime)
}
