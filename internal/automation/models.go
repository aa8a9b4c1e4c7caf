package automation

import "time"

// Trigger is the (entity type, event) pair a rule subscribes to. A rule is
// bound to exactly one trigger.
type Trigger struct {
	EntityType string `json:"entity_type"`
	Event      string `json:"event"`
}

// Rule is a stored automation record: trigger, condition tree, action list and
// the policies governing execution order and lifetime. The engine treats rules
// as read-only during a pass; only statistics and the enabled flag are written
// back.
type Rule struct {
	ID              string         `json:"id"`
	WorkspaceID     string         `json:"workspace_id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Enabled         bool           `json:"enabled"`
	Priority        int            `json:"priority"`
	Trigger         Trigger        `json:"trigger"`
	Conditions      ConditionGroup `json:"conditions"`
	Actions         []ActionConfig `json:"actions"`
	StopOnMatch     bool           `json:"stop_on_match"`
	RunOnce         bool           `json:"run_once"`
	TimesTriggered  int64          `json:"times_triggered"`
	LastTriggeredAt *time.Time     `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Event is one domain occurrence the engine reacts to. Entity holds the full
// current state; PreviousState is present for update events only.
type Event struct {
	EntityType    string                 `json:"entity_type"`
	Event         string                 `json:"event"`
	EntityID      string                 `json:"entity_id,omitempty"`
	Entity        Entity                 `json:"entity"`
	PreviousState map[string]interface{} `json:"previous_state,omitempty"`
	WorkspaceID   string                 `json:"workspace_id"`
	Timestamp     time.Time              `json:"timestamp"`
}

// Execution log statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// ExecutionLog is the append-only audit record: exactly one per rule per
// triggering event, including skipped passes where conditions did not match.
type ExecutionLog struct {
	ID                string         `json:"id" bson:"_id"`
	WorkspaceID       string         `json:"workspace_id" bson:"workspace_id"`
	RuleID            string         `json:"rule_id" bson:"rule_id"`
	RuleName          string         `json:"rule_name" bson:"rule_name"`
	TriggerEvent      string         `json:"trigger_event" bson:"trigger_event"`
	EntityType        string         `json:"entity_type" bson:"entity_type"`
	EntityID          string         `json:"entity_id,omitempty" bson:"entity_id,omitempty"`
	Status            string         `json:"status" bson:"status"`
	ConditionsMatched bool           `json:"conditions_matched" bson:"conditions_matched"`
	ActionsExecuted   []ActionResult `json:"actions_executed,omitempty" bson:"actions_executed,omitempty"`
	ExecutionTimeMs   int64          `json:"execution_time_ms" bson:"execution_time_ms"`
	EntitySnapshot    Entity         `json:"entity_snapshot,omitempty" bson:"entity_snapshot,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty" bson:"error_message,omitempty"`
	CreatedAt         time.Time      `json:"created_at" bson:"created_at"`
}

// TriggerResult aggregates one synchronous rule pass for the caller.
type TriggerResult struct {
	RulesEvaluated  int      `json:"rules_evaluated"`
	RulesMatched    int      `json:"rules_matched"`
	ActionsExecuted int      `json:"actions_executed"`
	Errors          []string `json:"errors"`
}

// RuleTestResult reports a dry run: whether conditions matched a sample entity
// and what each action would do. Nothing is persisted.
type RuleTestResult struct {
	Matched bool           `json:"matched"`
	Actions []ActionResult `json:"actions"`
}
