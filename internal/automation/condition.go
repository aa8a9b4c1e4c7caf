package automation

import (
	"encoding/json"
	"fmt"
	"strings"
)

type GroupOperator string

const (
	GroupAnd GroupOperator = "AND"
	GroupOr  GroupOperator = "OR"
)

type ConditionOperator string

const (
	OpEquals              ConditionOperator = "equals"
	OpNotEquals           ConditionOperator = "notEquals"
	OpContains            ConditionOperator = "contains"
	OpStartsWith          ConditionOperator = "startsWith"
	OpEndsWith            ConditionOperator = "endsWith"
	OpMatches             ConditionOperator = "matches"
	OpGreaterThan         ConditionOperator = "greaterThan"
	OpLessThan            ConditionOperator = "lessThan"
	OpGreaterThanOrEquals ConditionOperator = "greaterThanOrEquals"
	OpLessThanOrEquals    ConditionOperator = "lessThanOrEquals"
	OpBetween             ConditionOperator = "between"
	OpIn                  ConditionOperator = "in"
	OpInGroup             ConditionOperator = "inGroup"
	OpIsNull              ConditionOperator = "isNull"
	OpIsEmpty             ConditionOperator = "isEmpty"
	OpBefore              ConditionOperator = "before"
	OpAfter               ConditionOperator = "after"
	OpWithin              ConditionOperator = "within"
	OpDayOfWeek           ConditionOperator = "dayOfWeek"
	OpDayOfMonth          ConditionOperator = "dayOfMonth"
	OpExpression          ConditionOperator = "expression"
)

// KnownOperators is the closed set accepted by the evaluator and the
// management validator. An operator outside this set evaluates to false with a
// warning, never an error.
var KnownOperators = map[ConditionOperator]bool{
	OpEquals: true, OpNotEquals: true,
	OpContains: true, OpStartsWith: true, OpEndsWith: true, OpMatches: true,
	OpGreaterThan: true, OpLessThan: true, OpGreaterThanOrEquals: true, OpLessThanOrEquals: true,
	OpBetween: true, OpIn: true, OpInGroup: true,
	OpIsNull: true, OpIsEmpty: true,
	OpBefore: true, OpAfter: true, OpWithin: true,
	OpDayOfWeek: true, OpDayOfMonth: true,
	OpExpression: true,
}

// Condition is a leaf test against one entity field. Negate inverts the result
// after the operator has been applied.
type Condition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    interface{}       `json:"value,omitempty"`
	Value2   interface{}       `json:"value2,omitempty"`
	Negate   bool              `json:"negate,omitempty"`
}

// ConditionGroup combines child nodes with AND or OR semantics. An empty group
// evaluates to true for both operators.
type ConditionGroup struct {
	Operator   GroupOperator   `json:"operator"`
	Conditions []ConditionNode `json:"conditions"`
}

// UnmarshalJSON normalizes the group operator casing; "and"/"or" authored by
// clients mean the same as "AND"/"OR".
func (g *ConditionGroup) UnmarshalJSON(data []byte) error {
	type alias ConditionGroup
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	decoded.Operator = GroupOperator(strings.ToUpper(string(decoded.Operator)))
	*g = ConditionGroup(decoded)
	return nil
}

// ConditionNode is the tagged union over the two tree variants. Exactly one of
// Group and Leaf is non-nil after a successful unmarshal.
type ConditionNode struct {
	Group *ConditionGroup
	Leaf  *Condition
}

// UnmarshalJSON discriminates on the presence of a "conditions" key: groups
// carry one, leaves never do.
func (n *ConditionNode) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("condition node must be an object: %w", err)
	}

	if _, isGroup := probe["conditions"]; isGroup {
		var group ConditionGroup
		if err := json.Unmarshal(data, &group); err != nil {
			return fmt.Errorf("invalid condition group: %w", err)
		}
		n.Group = &group
		n.Leaf = nil
		return nil
	}

	var leaf Condition
	if err := json.Unmarshal(data, &leaf); err != nil {
		return fmt.Errorf("invalid condition: %w", err)
	}
	n.Leaf = &leaf
	n.Group = nil
	return nil
}

func (n ConditionNode) MarshalJSON() ([]byte, error) {
	if n.Group != nil {
		return json.Marshal(n.Group)
	}
	if n.Leaf != nil {
		return json.Marshal(n.Leaf)
	}
	return nil, fmt.Errorf("empty condition node")
}
