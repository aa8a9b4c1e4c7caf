package management

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"plutus/internal/automation"
)

func validCreateRequest() CreateAutomationRuleRequest {
	return CreateAutomationRuleRequest{
		Name:    "categorize large expenses",
		Trigger: automation.Trigger{EntityType: automation.EntityTransaction, Event: automation.EventCreated},
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

func TestValidateAutomationRule(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreateAutomationRuleRequest)
		wantErr string
	}{
		{
			name:   "valid rule",
			mutate: func(r *CreateAutomationRuleRequest) {},
		},
		{
			name:    "missing name",
			mutate:  func(r *CreateAutomationRuleRequest) { r.Name = "  " },
			wantErr: "name is required",
		},
		{
			name:    "invalid entity type",
			mutate:  func(r *CreateAutomationRuleRequest) { r.Trigger.EntityType = "invoice" },
			wantErr: "invalid trigger entity_type",
		},
		{
			name:    "invalid event for entity type",
			mutate:  func(r *CreateAutomationRuleRequest) { r.Trigger.Event = automation.EventOverspent },
			wantErr: "invalid trigger event",
		},
		{
			name:    "no actions",
			mutate:  func(r *CreateAutomationRuleRequest) { r.Actions = nil },
			wantErr: "at least one action is required",
		},
		{
			name: "unknown action type",
			mutate: func(r *CreateAutomationRuleRequest) {
				r.Actions[0].Type = "teleportMoney"
			},
			wantErr: "unknown action type",
		},
		{
			name: "action not applicable to trigger entity",
			mutate: func(r *CreateAutomationRuleRequest) {
				r.Actions[0].Type = automation.ActionCloseAccount
			},
			wantErr: "not applicable",
		},
		{
			name: "unknown condition operator",
			mutate: func(r *CreateAutomationRuleRequest) {
				r.Conditions.Conditions[0].Leaf.Operator = "frobnicate"
			},
			wantErr: "unknown condition operator",
		},
		{
			name: "condition without field",
			mutate: func(r *CreateAutomationRuleRequest) {
				r.Conditions.Conditions[0].Leaf.Field = ""
			},
			wantErr: "field is required",
		},
		{
			name: "between without value2",
			mutate: func(r *CreateAutomationRuleRequest) {
				r.Conditions.Conditions[0].Leaf.Operator = automation.OpBetween
			},
			wantErr: "between condition requires value and value2",
		},
		{
			name: "valid expression condition",
			mutate: func(r *CreateAutomationRuleRequest) {
				r.Conditions.Conditions[0].Leaf = &automation.Condition{
					Operator: automation.OpExpression,
					Value:    `entity.amount < -100.0`,
				}
			},
		},
		{
			name: "invalid CEL expression",
			mutate: func(r *CreateAutomationRuleRequest) {
				r.Conditions.Conditions[0].Leaf = &automation.Condition{
					Operator: automation.OpExpression,
					Value:    `not valid cel ((`,
				}
			},
			wantErr: "invalid CEL expression",
		},
		{
			name: "non-boolean CEL expression",
			mutate: func(r *CreateAutomationRuleRequest) {
				r.Conditions.Conditions[0].Leaf = &automation.Condition{
					Operator: automation.OpExpression,
					Value:    `entity.amount`,
				}
			},
			wantErr: "invalid CEL expression",
		},
		{
			name: "nested group validated recursively",
			mutate: func(r *CreateAutomationRuleRequest) {
				r.Conditions.Conditions = append(r.Conditions.Conditions, automation.ConditionNode{
					Group: &automation.ConditionGroup{
						Operator: automation.GroupOr,
						Conditions: []automation.ConditionNode{
							{Leaf: &automation.Condition{Field: "payee", Operator: "bogus", Value: "x"}},
						},
					},
				})
			},
			wantErr: "unknown condition operator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCreateRequest()
			tt.mutate(&req)

			err := ValidateAutomationRule(req)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateUpdateAutomationRule(t *testing.T) {
	current := &automation.Rule{
		Trigger: automation.Trigger{EntityType: automation.EntityTransaction, Event: automation.EventCreated},
		Actions: []automation.ActionConfig{
			{ID: "a1", Type: automation.ActionSetCategory, Params: map[string]interface{}{"categoryId": 1}},
		},
	}

	empty := ""
	assert.ErrorContains(t, ValidateUpdateAutomationRule(UpdateAutomationRuleRequest{Name: &empty}, current), "name cannot be empty")

	// Changing the trigger entity type must re-validate existing actions.
	accountTrigger := automation.Trigger{EntityType: automation.EntityAccount, Event: automation.EventUpdated}
	err := ValidateUpdateAutomationRule(UpdateAutomationRuleRequest{Trigger: &accountTrigger}, current)
	assert.ErrorContains(t, err, "not applicable")

	// Swapping actions along with the trigger is fine.
	accountActions := []automation.ActionConfig{{ID: "a1", Type: automation.ActionCloseAccount}}
	err = ValidateUpdateAutomationRule(UpdateAutomationRuleRequest{Trigger: &accountTrigger, Actions: &accountActions}, current)
	assert.NoError(t, err)
}
