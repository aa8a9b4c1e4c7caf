package management

import (
	"time"

	"plutus/internal/automation"
)

// AutomationRule is the API representation of a stored rule.
type AutomationRule struct {
	ID              string                    `json:"id"`
	WorkspaceID     string                    `json:"workspace_id"`
	Name            string                    `json:"name"`
	Description     string                    `json:"description,omitempty"`
	Enabled         bool                      `json:"enabled"`
	Priority        int                       `json:"priority"`
	Trigger         automation.Trigger        `json:"trigger"`
	Conditions      automation.ConditionGroup `json:"conditions"`
	Actions         []automation.ActionConfig `json:"actions"`
	StopOnMatch     bool                      `json:"stop_on_match"`
	RunOnce         bool                      `json:"run_once"`
	TimesTriggered  int64                     `json:"times_triggered"`
	LastTriggeredAt *time.Time                `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

type CreateAutomationRuleRequest struct {
	Name        string                    `json:"name" binding:"required"`
	Description string                    `json:"description"`
	Priority    int                       `json:"priority"`
	Trigger     automation.Trigger        `json:"trigger" binding:"required"`
	Conditions  automation.ConditionGroup `json:"conditions"`
	Actions     []automation.ActionConfig `json:"actions" binding:"required"`
	StopOnMatch bool                      `json:"stop_on_match"`
	RunOnce     bool                      `json:"run_once"`
	Enabled     *bool                     `json:"enabled"`
}

type UpdateAutomationRuleRequest struct {
	Name        *string                    `json:"name"`
	Description *string                    `json:"description"`
	Priority    *int                       `json:"priority"`
	Trigger     *automation.Trigger        `json:"trigger"`
	Conditions  *automation.ConditionGroup `json:"conditions"`
	Actions     *[]automation.ActionConfig `json:"actions"`
	StopOnMatch *bool                      `json:"stop_on_match"`
	RunOnce     *bool                      `json:"run_once"`
	Enabled     *bool                      `json:"enabled"`
}

// TestRuleRequest supplies a sample entity for a dry run against a stored
// rule.
type TestRuleRequest struct {
	Entity map[string]interface{} `json:"entity" binding:"required"`
}

// TestDraftRequest dry-runs an unsaved rule definition, for authoring flows.
type TestDraftRequest struct {
	Trigger    automation.Trigger        `json:"trigger" binding:"required"`
	Conditions automation.ConditionGroup `json:"conditions"`
	Actions    []automation.ActionConfig `json:"actions"`
	Entity     map[string]interface{}    `json:"entity" binding:"required"`
}
