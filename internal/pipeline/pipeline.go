// Package pipeline compiles a declarative pipeline and the topics it references into an
// immutable tree of stages, units and actions. A compiled pipeline needs no schema lookups to
// run and is shared read-only by every execution.
package pipeline

import (
	"github.com/topicflow/topicflow/internal/condition"
	"github.com/topicflow/topicflow/pkg/datapath"
	"github.com/topicflow/topicflow/pkg/model"
)

// Compiled is a compiled pipeline.
type Compiled struct {
	TenantID     string
	Pipeline     *model.Pipeline
	Topic        *model.Topic
	Topics       map[string]*model.Topic
	Prerequisite condition.Condition
	Stages       []*Stage
}

type Stage struct {
	Stage        *model.Stage
	Prerequisite condition.Condition
	Units        []*Unit
}

type Unit struct {
	Unit         *model.Unit
	Prerequisite condition.Condition
	// LoopVariable names the vec variable the actions iterate over, if any.
	LoopVariable string
	Actions      []*Action
}

// Action is a compiled action. Only the fields of its Type are set.
type Action struct {
	Action       *model.Action
	Type         model.ActionType
	Prerequisite condition.Condition

	Severity model.AlarmSeverity
	Message  *datapath.Template

	Source       condition.Parameter
	VariableName string

	ExternalWriterID string
	EventCode        string

	Topic      *model.Topic
	Factor     *model.Factor
	By         condition.Condition
	Arithmetic model.AggregateArithmetic
	Mapping    []*Mapping
}

// Mapping writes a compiled source into a factor of the action's topic.
type Mapping struct {
	Factor     *model.Factor
	Source     condition.Parameter
	Arithmetic model.AggregateArithmetic
}

// ID returns the pipeline id.
func (c *Compiled) ID() string { return c.Pipeline.PipelineID }

// ActionCount returns the number of actions in the tree.
func (c *Compiled) ActionCount() int {
	n := 0
	for _, s := range c.Stages {
		for _, u := range s.Units {
			n += len(u.Actions)
		}
	}
	return n
}
