// Package condition compiles declarative parameters and parameter conditions into value
// producers and predicates. Compilation resolves every topic and factor reference once;
// evaluation only reads the environment it is given.
package condition

import (
	"fmt"
	"time"

	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/value"
)

// Env is what compiled parameters and conditions are evaluated against.
type Env interface {
	// Row returns the row currently bound to topicID.
	Row(topicID string) (value.Map, bool)
	// Variables returns the execution variables.
	Variables() value.Map
	// Previous returns the trigger's previous snapshot.
	Previous() value.Map
	Now() time.Time
}

// Scope carries the schemas a compilation may reference.
type Scope struct {
	TenantID string
	// TriggerTopicID is the topic whose current row constant templates fall back to.
	TriggerTopicID string
	Topics         map[string]*model.Topic
}

func (s *Scope) topic(topicID string) (*model.Topic, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.Topics[topicID]
	return t, ok
}

// Parameter produces a value.
type Parameter interface {
	Value(env Env) (value.Value, error)
}

// Condition is a compiled predicate. IsTrue and IsFalse are computed independently and are
// complements of each other for every operator.
type Condition interface {
	IsTrue(env Env) (bool, error)
	IsFalse(env Env) (bool, error)
}

type always struct{}

func (always) IsTrue(Env) (bool, error)  { return true, nil }
func (always) IsFalse(Env) (bool, error) { return false, nil }

// Always is the condition of an unconditional node.
var Always Condition = always{}

// CompileCondition compiles c. A nil condition compiles to Always.
func CompileCondition(c *model.ParameterCondition, scope *Scope) (Condition, error) {
	if c == nil {
		return Always, nil
	}
	if c.IsJoint() {
		return compileJoint(c, scope)
	}
	return compileExpression(c, scope)
}

// CompilePrerequisite compiles the prerequisite of a node. Nodes that are not conditional run
// unconditionally.
func CompilePrerequisite(conditional bool, on *model.ParameterCondition, scope *Scope) (Condition, error) {
	if !conditional || on == nil {
		return Always, nil
	}
	return CompileCondition(on, scope)
}

type joint struct {
	and     bool
	filters []Condition
}

func compileJoint(c *model.ParameterCondition, scope *Scope) (Condition, error) {
	var and bool
	switch c.JointType {
	case model.JointAnd:
		and = true
	case model.JointOr:
	default:
		return nil, compileError(string(c.JointType), fmt.Errorf("unknown joint type"), flowerrors.ErrNotSupported)
	}

	filters := make([]Condition, 0, len(c.Filters))
	for _, f := range c.Filters {
		compiled, err := CompileCondition(f, scope)
		if err != nil {
			return nil, err
		}
		filters = append(filters, compiled)
	}
	return &joint{and: and, filters: filters}, nil
}

// IsTrue short-circuits on the first false filter of an and, the first true filter of an or.
func (j *joint) IsTrue(env Env) (bool, error) {
	if j.and {
		for _, f := range j.filters {
			ok, err := f.IsTrue(env)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	for _, f := range j.filters {
		ok, err := f.IsTrue(env)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (j *joint) IsFalse(env Env) (bool, error) {
	if j.and {
		for _, f := range j.filters {
			ok, err := f.IsFalse(env)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	for _, f := range j.filters {
		ok, err := f.IsFalse(env)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
