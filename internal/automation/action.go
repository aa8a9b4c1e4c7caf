package automation

// Entity types the engine processes. The engine itself is schema-agnostic;
// these names only key triggers and the action applicability table.
const (
	EntityTransaction  = "transaction"
	EntityAccount      = "account"
	EntityPayee        = "payee"
	EntityCategory     = "category"
	EntityBudget       = "budget"
	EntitySchedule     = "schedule"
	EntitySubscription = "subscription"
)

// Events producers emit per entity.
const (
	EventCreated   = "created"
	EventUpdated   = "updated"
	EventDeleted   = "deleted"
	EventOverspent = "overspent"
	EventDue       = "due"
	EventDetected  = "detected"
)

// Action types.
const (
	ActionSetCategory               = "setCategory"
	ActionSetPayee                  = "setPayee"
	ActionAddTag                    = "addTag"
	ActionSetNote                   = "setNote"
	ActionMarkCleared               = "markCleared"
	ActionUpdateAccount             = "updateAccount"
	ActionCloseAccount              = "closeAccount"
	ActionUpdatePayee               = "updatePayee"
	ActionMergePayee                = "mergePayee"
	ActionCreatePayeeAlias          = "createPayeeAlias"
	ActionUpdateCategory            = "updateCategory"
	ActionMoveCategoryToGroup       = "moveCategoryToGroup"
	ActionSkipSchedule              = "skipSchedule"
	ActionPauseSchedule             = "pauseSchedule"
	ActionResumeSchedule            = "resumeSchedule"
	ActionRolloverBudget            = "rolloverBudget"
	ActionAssignTransactionToBudget = "assignTransactionToBudget"
	ActionSendNotification          = "sendNotification"
)

// ActionConfig is one configured side effect in a rule's action list. Array
// order is the execution order.
type ActionConfig struct {
	ID              string                 `json:"id"`
	Type            string                 `json:"type"`
	Params          map[string]interface{} `json:"params,omitempty"`
	ContinueOnError bool                   `json:"continue_on_error,omitempty"`
}

// FieldChange records a before/after pair for audit purposes. It is never used
// for rollback.
type FieldChange struct {
	From interface{} `json:"from" bson:"from"`
	To   interface{} `json:"to" bson:"to"`
}

type ActionResult struct {
	ActionID   string                 `json:"action_id" bson:"action_id"`
	ActionType string                 `json:"action_type" bson:"action_type"`
	Success    bool                   `json:"success" bson:"success"`
	Error      string                 `json:"error,omitempty" bson:"error,omitempty"`
	Changes    map[string]FieldChange `json:"changes,omitempty" bson:"changes,omitempty"`
}

// actionEntityTypes declares which entity types each action type applies to.
// A nil entry means the action is universal. A trigger/action mismatch yields
// a failed result without invoking the handler.
var actionEntityTypes = map[string][]string{
	ActionSetCategory:               {EntityTransaction},
	ActionSetPayee:                  {EntityTransaction},
	ActionAddTag:                    {EntityTransaction},
	ActionSetNote:                   {EntityTransaction},
	ActionMarkCleared:               {EntityTransaction},
	ActionUpdateAccount:             {EntityAccount},
	ActionCloseAccount:              {EntityAccount},
	ActionUpdatePayee:               {EntityPayee},
	ActionMergePayee:                {EntityPayee},
	ActionCreatePayeeAlias:          {EntityPayee},
	ActionUpdateCategory:            {EntityCategory},
	ActionMoveCategoryToGroup:       {EntityCategory},
	ActionSkipSchedule:              {EntitySchedule},
	ActionPauseSchedule:             {EntitySchedule},
	ActionResumeSchedule:            {EntitySchedule},
	ActionRolloverBudget:            {EntityBudget},
	ActionAssignTransactionToBudget: {EntityTransaction},
	ActionSendNotification:          nil,
}

// KnownActionTypes reports whether an action type exists at all, for the
// management validator.
func KnownActionType(actionType string) bool {
	_, ok := actionEntityTypes[actionType]
	return ok
}

// ActionApplies reports whether an action type may run against an entity
// type.
func ActionApplies(actionType, entityType string) bool {
	allowed, ok := actionEntityTypes[actionType]
	if !ok {
		return false
	}
	if allowed == nil {
		return true
	}
	for _, t := range allowed {
		if t == entityType {
			return true
		}
	}
	return false
}
