package management

import (
	"fmt"
	"strings"

	"plutus/internal/automation"
	"plutus/pkg/cel"
)

var validTriggers = map[string]map[string]bool{
	automation.EntityTransaction: {
		automation.EventCreated: true, automation.EventUpdated: true, automation.EventDeleted: true,
	},
	automation.EntityAccount: {
		automation.EventCreated: true, automation.EventUpdated: true, automation.EventDeleted: true,
	},
	automation.EntityPayee: {
		automation.EventCreated: true, automation.EventUpdated: true, automation.EventDeleted: true,
	},
	automation.EntityCategory: {
		automation.EventCreated: true, automation.EventUpdated: true, automation.EventDeleted: true,
	},
	automation.EntityBudget: {
		automation.EventCreated: true, automation.EventUpdated: true, automation.EventOverspent: true,
	},
	automation.EntitySchedule: {
		automation.EventCreated: true, automation.EventUpdated: true, automation.EventDue: true,
	},
	automation.EntitySubscription: {
		automation.EventDetected: true, automation.EventUpdated: true,
	},
}

func ValidateAutomationRule(req CreateAutomationRuleRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if err := validateTrigger(req.Trigger); err != nil {
		return err
	}
	if len(req.Actions) == 0 {
		return fmt.Errorf("at least one action is required")
	}
	if err := validateActions(req.Actions, req.Trigger.EntityType); err != nil {
		return err
	}
	return validateConditionGroup(req.Conditions)
}

func ValidateUpdateAutomationRule(req UpdateAutomationRuleRequest, current *automation.Rule) error {
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return fmt.Errorf("name cannot be empty")
	}

	trigger := current.Trigger
	if req.Trigger != nil {
		trigger = *req.Trigger
		if err := validateTrigger(trigger); err != nil {
			return err
		}
	}

	actions := current.Actions
	if req.Actions != nil {
		actions = *req.Actions
		if len(actions) == 0 {
			return fmt.Errorf("at least one action is required")
		}
	}
	// Re-check actions against the (possibly changed) trigger entity type.
	if err := validateActions(actions, trigger.EntityType); err != nil {
		return err
	}

	if req.Conditions != nil {
		return validateConditionGroup(*req.Conditions)
	}
	return nil
}

func validateTrigger(trigger automation.Trigger) error {
	events, ok := validTriggers[trigger.EntityType]
	if !ok {
		return fmt.Errorf("invalid trigger entity_type: %s", trigger.EntityType)
	}
	if !events[trigger.Event] {
		return fmt.Errorf("invalid trigger event %q for entity type %s", trigger.Event, trigger.EntityType)
	}
	return nil
}

func validateActions(actions []automation.ActionConfig, entityType string) error {
	for i, action := range actions {
		if !automation.KnownActionType(action.Type) {
			return fmt.Errorf("actions[%d]: unknown action type: %s", i, action.Type)
		}
		if !automation.ActionApplies(action.Type, entityType) {
			return fmt.Errorf("actions[%d]: action type %s is not applicable to entity type %s", i, action.Type, entityType)
		}
	}
	return nil
}

func validateConditionGroup(group automation.ConditionGroup) error {
	if group.Operator != "" && group.Operator != automation.GroupAnd && group.Operator != automation.GroupOr {
		return fmt.Errorf("invalid group operator: %s", group.Operator)
	}

	for i, node := range group.Conditions {
		switch {
		case node.Group != nil:
			if err := validateConditionGroup(*node.Group); err != nil {
				return fmt.Errorf("conditions[%d]: %w", i, err)
			}
		case node.Leaf != nil:
			if err := validateCondition(*node.Leaf); err != nil {
				return fmt.Errorf("conditions[%d]: %w", i, err)
			}
		default:
			return fmt.Errorf("conditions[%d]: empty condition node", i)
		}
	}
	return nil
}

func validateCondition(cond automation.Condition) error {
	if !automation.KnownOperators[cond.Operator] {
		return fmt.Errorf("unknown condition operator: %s", cond.Operator)
	}

	switch cond.Operator {
	case automation.OpExpression:
		expr, ok := cond.Value.(string)
		if !ok || strings.TrimSpace(expr) == "" {
			return fmt.Errorf("expression condition requires a string value")
		}
		evaluator, err := cel.NewEvaluator()
		if err != nil {
			return fmt.Errorf("failed to create CEL evaluator: %w", err)
		}
		if err := evaluator.ValidateConditionExpression(expr); err != nil {
			return fmt.Errorf("invalid CEL expression: %w", err)
		}
	case automation.OpBetween:
		if cond.Value == nil || cond.Value2 == nil {
			return fmt.Errorf("between condition requires value and value2")
		}
		if cond.Field == "" {
			return fmt.Errorf("condition field is required")
		}
	case automation.OpIsNull, automation.OpIsEmpty:
		if cond.Field == "" {
			return fmt.Errorf("condition field is required")
		}
	default:
		if cond.Field == "" {
			return fmt.Errorf("condition field is required")
		}
		if cond.Value == nil {
			return fmt.Errorf("condition value is required for operator %s", cond.Operator)
		}
	}
	return nil
}
