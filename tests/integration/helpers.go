package integration

import (
	"plutus/internal/automation"
	"plutus/internal/logger"
)

const (
	containerStartupTimeout = 60
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestRule(workspaceID, name string, priority int) *automation.Rule {
	return &automation.Rule{
		WorkspaceID: workspaceID,
		Name:        name,
		Enabled:     true,
		Priority:    priority,
		Trigger: automation.Trigger{
			EntityType: automation.EntityTransaction,
			Event:      automation.EventCreated,
		},
		Conditions: automation.ConditionGroup{
			Operator: automation.GroupAnd,
			Conditions: []automation.ConditionNode{
				{Leaf: &automation.Condition{Field: "amount", Operator: automation.OpLessThan, Value: -100}},
			},
		},
		Actions: []automation.ActionConfig{
			{ID: "a1", Type: automation.ActionSetCategory, Params: map[string]interface{}{"categoryId": 42}},
		},
	}
}

func createTestExecutionLog(workspaceID, ruleID, status string) *automation.ExecutionLog {
	return &automation.ExecutionLog{
		WorkspaceID:       workspaceID,
		RuleID:            ruleID,
		RuleName:          "test rule",
		TriggerEvent:      automation.EventCreated,
		EntityType:        automation.EntityTransaction,
		EntityID:          "txn-1",
		Status:            status,
		ConditionsMatched: status != automation.StatusSkipped,
	}
}
