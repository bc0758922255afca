package pipeline

import (
	"fmt"
	"strings"

	"github.com/topicflow/topicflow/internal/condition"
	"github.com/topicflow/topicflow/pkg/datapath"
	flowerrors "github.com/topicflow/topicflow/pkg/errors"
	"github.com/topicflow/topicflow/pkg/model"
)

type compiler struct {
	pipeline *model.Pipeline
	scope    *condition.Scope
}

// Compile compiles p against topics, which must hold every topic p references.
func Compile(p *model.Pipeline, topics map[string]*model.Topic, tenantID string) (*Compiled, error) {
	if p == nil {
		return nil, flowerrors.With(fmt.Errorf("pipeline is not declared"), flowerrors.ErrMissingParameter)
	}
	c := &compiler{
		pipeline: p,
		scope:    &condition.Scope{TenantID: tenantID, TriggerTopicID: p.TopicID, Topics: topics},
	}

	topic, ok := topics[p.TopicID]
	if !ok {
		return nil, compileError(p.PipelineID, "", notFound("trigger topic '%s' not found", p.TopicID))
	}
	prerequisite, err := condition.CompilePrerequisite(p.Conditional, p.On, c.scope)
	if err != nil {
		return nil, compileError(p.PipelineID, "", err)
	}

	compiled := &Compiled{
		TenantID:     tenantID,
		Pipeline:     p,
		Topic:        topic,
		Topics:       topics,
		Prerequisite: prerequisite,
		Stages:       make([]*Stage, 0, len(p.Stages)),
	}
	for i, stage := range p.Stages {
		if stage == nil {
			return nil, c.fail("", missing("stage #%d is not declared", i+1))
		}
		s, err := c.compileStage(stage)
		if err != nil {
			return nil, err
		}
		compiled.Stages = append(compiled.Stages, s)
	}
	return compiled, nil
}

func (c *compiler) fail(node string, cause error) error {
	return compileError(c.pipeline.PipelineID, node, cause)
}

func (c *compiler) compileStage(stage *model.Stage) (*Stage, error) {
	node := fmt.Sprintf("stage[%s]", stage.StageID)
	prerequisite, err := condition.CompilePrerequisite(stage.Conditional, stage.On, c.scope)
	if err != nil {
		return nil, c.fail(node, err)
	}

	s := &Stage{Stage: stage, Prerequisite: prerequisite, Units: make([]*Unit, 0, len(stage.Units))}
	for i, unit := range stage.Units {
		if unit == nil {
			return nil, c.fail(node, missing("unit #%d is not declared", i+1))
		}
		u, err := c.compileUnit(node, unit)
		if err != nil {
			return nil, err
		}
		s.Units = append(s.Units, u)
	}
	return s, nil
}

func (c *compiler) compileUnit(parent string, unit *model.Unit) (*Unit, error) {
	node := fmt.Sprintf("%s/unit[%s]", parent, unit.UnitID)
	prerequisite, err := condition.CompilePrerequisite(unit.Conditional, unit.On, c.scope)
	if err != nil {
		return nil, c.fail(node, err)
	}

	u := &Unit{
		Unit:         unit,
		Prerequisite: prerequisite,
		LoopVariable: strings.TrimSpace(unit.LoopVariableName),
		Actions:      make([]*Action, 0, len(unit.Do)),
	}
	for i, action := range unit.Do {
		if action == nil {
			return nil, c.fail(node, missing("action #%d is not declared", i+1))
		}
		a, err := c.compileAction(action)
		if err != nil {
			return nil, c.fail(fmt.Sprintf("%s/action[%s]", node, action.ActionID), err)
		}
		u.Actions = append(u.Actions, a)
	}
	return u, nil
}

func (c *compiler) compileAction(action *model.Action) (*Action, error) {
	prerequisite, err := condition.CompilePrerequisite(action.Conditional, action.On, c.scope)
	if err != nil {
		return nil, err
	}
	a := &Action{Action: action, Type: action.Type, Prerequisite: prerequisite}

	switch action.Type {
	case model.ActionAlarm:
		err = c.compileAlarm(a)
	case model.ActionCopyToMemory:
		err = c.compileCopyToMemory(a)
	case model.ActionWriteToExternal:
		err = c.compileWriteToExternal(a)
	case model.ActionExists, model.ActionReadRow, model.ActionReadRows:
		err = c.compileRead(a, false)
	case model.ActionReadFactor, model.ActionReadFactors:
		err = c.compileRead(a, true)
	case model.ActionInsertRow:
		err = c.compileWrite(a, false)
	case model.ActionInsertOrMergeRow, model.ActionMergeRow:
		err = c.compileWrite(a, true)
	case model.ActionWriteFactor:
		err = c.compileWriteFactor(a)
	case model.ActionDeleteRow, model.ActionDeleteRows:
		err = c.compileDelete(a)
	default:
		err = flowerrors.With(fmt.Errorf("unknown action type '%s'", action.Type), flowerrors.ErrNotSupported)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (c *compiler) compileAlarm(a *Action) error {
	a.Severity = a.Action.Severity
	if a.Severity == "" {
		a.Severity = model.SeverityMedium
	}
	message, err := datapath.ParseTemplate(a.Action.Message)
	if err != nil {
		return err
	}
	a.Message = message
	return nil
}

func (c *compiler) compileCopyToMemory(a *Action) error {
	if err := c.requireVariable(a); err != nil {
		return err
	}
	if a.Action.Source == nil {
		return missing("source is not declared")
	}
	source, err := condition.CompileParameter(a.Action.Source, c.scope)
	if err != nil {
		return err
	}
	a.Source = source
	return nil
}

func (c *compiler) compileWriteToExternal(a *Action) error {
	if strings.TrimSpace(a.Action.ExternalWriterID) == "" {
		return missing("external writer is not declared")
	}
	a.ExternalWriterID = a.Action.ExternalWriterID
	a.EventCode = a.Action.EventCode
	return nil
}

func (c *compiler) requireVariable(a *Action) error {
	name := strings.TrimSpace(a.Action.VariableName)
	if name == "" {
		return missing("variable name is not declared")
	}
	a.VariableName = name
	return nil
}

func (c *compiler) resolveTopic(a *Action) error {
	if a.Action.TopicID == "" {
		return missing("topic is not declared")
	}
	topic, ok := c.scope.Topics[a.Action.TopicID]
	if !ok {
		return notFound("topic '%s' not found", a.Action.TopicID)
	}
	a.Topic = topic
	return nil
}

func (c *compiler) resolveFactor(topic *model.Topic, factorID string) (*model.Factor, error) {
	if factorID == "" {
		return nil, missing("factor is not declared")
	}
	factor, ok := topic.FindFactor(factorID)
	if !ok {
		return nil, notFound("factor '%s' not found in topic '%s'", factorID, topic.Name)
	}
	return factor, nil
}

func (c *compiler) compileBy(a *Action) error {
	if a.Action.By == nil {
		return missing("by condition is not declared")
	}
	by, err := condition.CompileCondition(a.Action.By, c.scope)
	if err != nil {
		return err
	}
	a.By = by
	return nil
}

func arithmetic(a model.AggregateArithmetic) (model.AggregateArithmetic, error) {
	switch a {
	case "":
		return model.ArithmeticNone, nil
	case model.ArithmeticNone, model.ArithmeticSum, model.ArithmeticCount, model.ArithmeticAvg, model.ArithmeticMax, model.ArithmeticMin:
		return a, nil
	}
	return "", flowerrors.With(fmt.Errorf("unknown arithmetic '%s'", a), flowerrors.ErrNotSupported)
}

func (c *compiler) compileRead(a *Action, factor bool) error {
	if err := c.resolveTopic(a); err != nil {
		return err
	}
	if err := c.requireVariable(a); err != nil {
		return err
	}
	if err := c.compileBy(a); err != nil {
		return err
	}
	if !factor {
		return nil
	}

	f, err := c.resolveFactor(a.Topic, a.Action.FactorID)
	if err != nil {
		return err
	}
	a.Factor = f
	a.Arithmetic, err = arithmetic(a.Action.Arithmetic)
	return err
}

func (c *compiler) compileWrite(a *Action, merge bool) error {
	if err := c.resolveTopic(a); err != nil {
		return err
	}
	if len(a.Action.Mapping) == 0 {
		return missing("mapping is not declared")
	}
	for i, m := range a.Action.Mapping {
		if m == nil || m.Source == nil {
			return missing("mapping #%d has no source", i+1)
		}
		factor, err := c.resolveFactor(a.Topic, m.FactorID)
		if err != nil {
			return err
		}
		source, err := condition.CompileParameter(m.Source, c.scope)
		if err != nil {
			return err
		}
		arith, err := arithmetic(m.Arithmetic)
		if err != nil {
			return err
		}
		a.Mapping = append(a.Mapping, &Mapping{Factor: factor, Source: source, Arithmetic: arith})
	}
	if merge {
		return c.compileBy(a)
	}
	return nil
}

func (c *compiler) compileWriteFactor(a *Action) error {
	if err := c.resolveTopic(a); err != nil {
		return err
	}
	factor, err := c.resolveFactor(a.Topic, a.Action.FactorID)
	if err != nil {
		return err
	}
	a.Factor = factor
	if a.Action.Source == nil {
		return missing("source is not declared")
	}
	if a.Source, err = condition.CompileParameter(a.Action.Source, c.scope); err != nil {
		return err
	}
	if a.Arithmetic, err = arithmetic(a.Action.Arithmetic); err != nil {
		return err
	}
	return c.compileBy(a)
}

func (c *compiler) compileDelete(a *Action) error {
	if err := c.resolveTopic(a); err != nil {
		return err
	}
	return c.compileBy(a)
}
