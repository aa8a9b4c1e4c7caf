package models

import "time"

// RuleChangeEvent announces automation rule configuration changes to
// downstream consumers (caches, UI refresh, audit sinks).
type RuleChangeEvent struct {
	EventType   string    `json:"event_type"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	RuleID      string    `json:"rule_id,omitempty"`
	Action      string    `json:"action"`
	Timestamp   time.Time `json:"timestamp"`
	ChangedBy   string    `json:"changed_by,omitempty"`
}

const (
	EventTypeAutomationRuleChanged = "automation_rule_changed"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)
