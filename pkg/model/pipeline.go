package model

type PipelineTriggerType string

const (
	TriggerInsert        PipelineTriggerType = "insert"
	TriggerMerge         PipelineTriggerType = "merge"
	TriggerInsertOrMerge PipelineTriggerType = "insert-or-merge"
	TriggerDelete        PipelineTriggerType = "delete"
)

// Matches reports whether a pipeline of type t runs for a change of type change.
func (t PipelineTriggerType) Matches(change PipelineTriggerType) bool {
	switch change {
	case TriggerInsert:
		return t == TriggerInsert || t == TriggerInsertOrMerge
	case TriggerMerge:
		return t == TriggerMerge || t == TriggerInsertOrMerge
	case TriggerDelete:
		return t == TriggerDelete
	}
	return false
}

type ActionType string

const (
	ActionAlarm            ActionType = "alarm"
	ActionCopyToMemory     ActionType = "copy-to-memory"
	ActionWriteToExternal  ActionType = "write-to-external"
	ActionExists           ActionType = "exists"
	ActionReadRow          ActionType = "read-row"
	ActionReadRows         ActionType = "read-rows"
	ActionReadFactor       ActionType = "read-factor"
	ActionReadFactors      ActionType = "read-factors"
	ActionInsertRow        ActionType = "insert-row"
	ActionInsertOrMergeRow ActionType = "insert-or-merge-row"
	ActionMergeRow         ActionType = "merge-row"
	ActionWriteFactor      ActionType = "write-factor"
	ActionDeleteRow        ActionType = "delete-row"
	ActionDeleteRows       ActionType = "delete-rows"
)

type AlarmSeverity string

const (
	SeverityLow      AlarmSeverity = "low"
	SeverityMedium   AlarmSeverity = "medium"
	SeverityHigh     AlarmSeverity = "high"
	SeverityCritical AlarmSeverity = "critical"
)

type AggregateArithmetic string

const (
	ArithmeticNone  AggregateArithmetic = "none"
	ArithmeticSum   AggregateArithmetic = "sum"
	ArithmeticCount AggregateArithmetic = "count"
	ArithmeticAvg   AggregateArithmetic = "avg"
	ArithmeticMax   AggregateArithmetic = "max"
	ArithmeticMin   AggregateArithmetic = "min"
)

// Pipeline is a trigger bound transformation over changes of one topic.
type Pipeline struct {
	PipelineID  string              `json:"pipelineId"`
	TenantID    string              `json:"tenantId"`
	Name        string              `json:"name"`
	TopicID     string              `json:"topicId"`
	Type        PipelineTriggerType `json:"type"`
	Enabled     bool                `json:"enabled"`
	Conditional bool                `json:"conditional,omitempty"`
	On          *ParameterCondition `json:"on,omitempty"`
	Stages      []*Stage            `json:"stages,omitempty"`
}

type Stage struct {
	StageID     string              `json:"stageId"`
	Name        string              `json:"name,omitempty"`
	Conditional bool                `json:"conditional,omitempty"`
	On          *ParameterCondition `json:"on,omitempty"`
	Units       []*Unit             `json:"units,omitempty"`
}

type Unit struct {
	UnitID      string              `json:"unitId"`
	Name        string              `json:"name,omitempty"`
	Conditional bool                `json:"conditional,omitempty"`
	On          *ParameterCondition `json:"on,omitempty"`
	// LoopVariableName names a vec variable; the actions then run once per element.
	LoopVariableName string    `json:"loopVariableName,omitempty"`
	Do               []*Action `json:"do,omitempty"`
}

// Action is one step of a unit. Which fields apply depends on Type.
type Action struct {
	ActionID    string              `json:"actionId"`
	Type        ActionType          `json:"type"`
	Conditional bool                `json:"conditional,omitempty"`
	On          *ParameterCondition `json:"on,omitempty"`

	Severity AlarmSeverity `json:"severity,omitempty"`
	Message  string        `json:"message,omitempty"`

	Source       *Parameter `json:"source,omitempty"`
	VariableName string     `json:"variableName,omitempty"`

	ExternalWriterID string `json:"externalWriterId,omitempty"`
	EventCode        string `json:"eventCode,omitempty"`

	TopicID    string              `json:"topicId,omitempty"`
	FactorID   string              `json:"factorId,omitempty"`
	By         *ParameterCondition `json:"by,omitempty"`
	Arithmetic AggregateArithmetic `json:"arithmetic,omitempty"`
	Mapping    []*MappingFactor    `json:"mapping,omitempty"`
}

// MappingFactor writes the value of Source into a factor of the target topic.
type MappingFactor struct {
	Source     *Parameter          `json:"source"`
	FactorID   string              `json:"factorId"`
	Arithmetic AggregateArithmetic `json:"arithmetic,omitempty"`
}

// ReferencedTopicIDs returns every topic id the pipeline mentions, the trigger topic first.
func (p *Pipeline) ReferencedTopicIDs() []string {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	var walkParameter func(*Parameter)
	var walkCondition func(*ParameterCondition)
	walkParameter = func(param *Parameter) {
		if param == nil {
			return
		}
		add(param.TopicID)
		for _, sub := range param.Parameters {
			walkParameter(sub)
		}
		walkCondition(param.On)
	}
	walkCondition = func(c *ParameterCondition) {
		if c == nil {
			return
		}
		walkParameter(c.Left)
		walkParameter(c.Right)
		for _, f := range c.Filters {
			walkCondition(f)
		}
	}

	add(p.TopicID)
	walkCondition(p.On)
	// nil nodes are reported by the compiler
	for _, stage := range p.Stages {
		if stage == nil {
			continue
		}
		walkCondition(stage.On)
		for _, unit := range stage.Units {
			if unit == nil {
				continue
			}
			walkCondition(unit.On)
			for _, action := range unit.Do {
				if action == nil {
					continue
				}
				walkCondition(action.On)
				add(action.TopicID)
				walkParameter(action.Source)
				walkCondition(action.By)
				for _, m := range action.Mapping {
					if m != nil {
						walkParameter(m.Source)
					}
				}
			}
		}
	}
	return ids
}
