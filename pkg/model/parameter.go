package model

type ParameterKind string

const (
	ParameterKindTopic    ParameterKind = "topic"
	ParameterKindConstant ParameterKind = "constant"
	ParameterKindComputed ParameterKind = "computed"
)

type ComputedType string

const (
	ComputedNone        ComputedType = "none"
	ComputedAdd         ComputedType = "add"
	ComputedSubtract    ComputedType = "subtract"
	ComputedMultiply    ComputedType = "multiply"
	ComputedDivide      ComputedType = "divide"
	ComputedModulus     ComputedType = "modulus"
	ComputedYearOf      ComputedType = "year-of"
	ComputedHalfYearOf  ComputedType = "half-year-of"
	ComputedQuarterOf   ComputedType = "quarter-of"
	ComputedMonthOf     ComputedType = "month-of"
	ComputedWeekOfYear  ComputedType = "week-of-year"
	ComputedWeekOfMonth ComputedType = "week-of-month"
	ComputedDayOfMonth  ComputedType = "day-of-month"
	ComputedDayOfWeek   ComputedType = "day-of-week"
	ComputedCaseThen    ComputedType = "case-then"
)

// Parameter produces a value: a topic factor, a constant template or a computation over
// sub-parameters.
type Parameter struct {
	Kind ParameterKind `json:"kind"`

	// topic
	TopicID  string `json:"topicId,omitempty"`
	FactorID string `json:"factorId,omitempty"`

	// constant
	Value string `json:"value,omitempty"`

	// computed
	Type       ComputedType `json:"type,omitempty"`
	Parameters []*Parameter `json:"parameters,omitempty"`

	// On guards a case-then branch. A branch without it is the default.
	On *ParameterCondition `json:"on,omitempty"`
}

type ParameterJointType string

const (
	JointAnd ParameterJointType = "and"
	JointOr  ParameterJointType = "or"
)

type ExpressionOperator string

const (
	OperatorEmpty      ExpressionOperator = "empty"
	OperatorNotEmpty   ExpressionOperator = "not-empty"
	OperatorEquals     ExpressionOperator = "equals"
	OperatorNotEquals  ExpressionOperator = "not-equals"
	OperatorLess       ExpressionOperator = "less"
	OperatorLessEquals ExpressionOperator = "less-equals"
	OperatorMore       ExpressionOperator = "more"
	OperatorMoreEquals ExpressionOperator = "more-equals"
	OperatorIn         ExpressionOperator = "in"
	OperatorNotIn      ExpressionOperator = "not-in"
)

// ParameterCondition is either a joint of nested conditions (JointType set) or an
// expression comparing two parameters.
type ParameterCondition struct {
	JointType ParameterJointType    `json:"jointType,omitempty"`
	Filters   []*ParameterCondition `json:"filters,omitempty"`

	Left     *Parameter         `json:"left,omitempty"`
	Operator ExpressionOperator `json:"operator,omitempty"`
	Right    *Parameter         `json:"right,omitempty"`
}

// IsJoint reports whether the condition joins nested conditions.
func (c *ParameterCondition) IsJoint() bool {
	return c.JointType != ""
}

// TopicFactor returns a topic factor parameter.
func TopicFactor(topicID, factorID string) *Parameter {
	return &Parameter{Kind: ParameterKindTopic, TopicID: topicID, FactorID: factorID}
}

// Constant returns a constant parameter.
func Constant(value string) *Parameter {
	return &Parameter{Kind: ParameterKindConstant, Value: value}
}

// Computed returns a computed parameter.
func Computed(t ComputedType, parameters ...*Parameter) *Parameter {
	return &Parameter{Kind: ParameterKindComputed, Type: t, Parameters: parameters}
}

// Expression returns an expression condition.
func Expression(left *Parameter, operator ExpressionOperator, right *Parameter) *ParameterCondition {
	return &ParameterCondition{Left: left, Operator: operator, Right: right}
}

// Joint returns a joint condition.
func Joint(t ParameterJointType, filters ...*ParameterCondition) *ParameterCondition {
	return &ParameterCondition{JointType: t, Filters: filters}
}
