package automation

import (
	"context"
	"fmt"

	"plutus/internal/logger"
	"plutus/pkg/errors"
	"plutus/pkg/metrics"
)

type actionInput struct {
	params      map[string]interface{}
	entity      Entity
	entityType  string
	entityID    string
	workspaceID string
	services    *Services
}

type actionOutcome struct {
	err     error
	changes map[string]FieldChange
}

type actionHandler func(ctx context.Context, in actionInput) actionOutcome

// ExecRequest is one action batch to run against an entity.
type ExecRequest struct {
	Actions     []ActionConfig
	Entity      Entity
	EntityType  string
	EntityID    string
	WorkspaceID string
	Services    *Services
	DryRun      bool
}

// Executor runs action batches in array order. Failures become failed results,
// never panics; continueOnError on the failing action decides whether the rest
// of the batch runs, and the default is to halt.
type Executor struct {
	logger   logger.Logger
	handlers map[string]actionHandler
}

func NewExecutor(log logger.Logger) *Executor {
	x := &Executor{logger: log}
	x.handlers = map[string]actionHandler{
		ActionSetCategory:               x.handleSetCategory,
		ActionSetPayee:                  x.handleSetPayee,
		ActionAddTag:                    x.handleAddTag,
		ActionSetNote:                   x.handleSetNote,
		ActionMarkCleared:               x.handleMarkCleared,
		ActionUpdateAccount:             x.handleUpdateAccount,
		ActionCloseAccount:              x.handleCloseAccount,
		ActionUpdatePayee:               x.handleUpdatePayee,
		ActionMergePayee:                x.handleMergePayee,
		ActionCreatePayeeAlias:          x.handleCreatePayeeAlias,
		ActionUpdateCategory:            x.handleUpdateCategory,
		ActionMoveCategoryToGroup:       x.handleMoveCategoryToGroup,
		ActionSkipSchedule:              x.handleSkipSchedule,
		ActionPauseSchedule:             x.handlePauseSchedule,
		ActionResumeSchedule:            x.handleResumeSchedule,
		ActionRolloverBudget:            x.handleRolloverBudget,
		ActionAssignTransactionToBudget: x.handleAssignTransactionToBudget,
		ActionSendNotification:          x.handleSendNotification,
	}
	return x
}

// Execute runs the batch. The returned slice contains one result per action
// that was reached; actions after a halting failure are absent, not marked.
func (x *Executor) Execute(ctx context.Context, req ExecRequest) []ActionResult {
	results := make([]ActionResult, 0, len(req.Actions))

	for _, action := range req.Actions {
		result := x.executeOne(ctx, action, req)
		results = append(results, result)

		status := "success"
		if !result.Success {
			status = "failed"
		}
		if req.DryRun && result.Success {
			status = "dry_run"
		}
		metrics.AutomationActionsTotal.WithLabelValues(action.Type, status).Inc()

		if !result.Success && !action.ContinueOnError {
			x.logger.DebugwCtx(ctx, "Action failed, halting remaining actions",
				"action_id", action.ID,
				"action_type", action.Type,
				"error", result.Error,
			)
			break
		}
	}

	return results
}

func (x *Executor) executeOne(ctx context.Context, action ActionConfig, req ExecRequest) ActionResult {
	result := ActionResult{
		ActionID:   action.ID,
		ActionType: action.Type,
	}

	if !KnownActionType(action.Type) {
		result.Error = fmt.Sprintf("unknown action type: %s", action.Type)
		x.logger.WarnwCtx(ctx, "Unknown action type", "action_type", action.Type)
		return result
	}

	if !ActionApplies(action.Type, req.EntityType) {
		result.Error = fmt.Sprintf("action type %s is not applicable to entity type %s", action.Type, req.EntityType)
		x.logger.WarnwCtx(ctx, "Action not applicable to entity type",
			"action_type", action.Type,
			"entity_type", req.EntityType,
		)
		return result
	}

	if req.DryRun {
		result.Success = true
		result.Changes = syntheticChanges(action, req.Entity)
		return result
	}

	outcome := x.invoke(ctx, action, req)
	if outcome.err != nil {
		result.Error = outcome.err.Error()
		return result
	}
	result.Success = true
	result.Changes = outcome.changes
	return result
}

// invoke runs the handler with panic containment. A panicking service call
// becomes a failed result for that action only.
func (x *Executor) invoke(ctx context.Context, action ActionConfig, req ExecRequest) (outcome actionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.RecoverPanic(r)
			x.logger.ErrorwCtx(ctx, "Panic recovered during action execution",
				"action_id", action.ID,
				"action_type", action.Type,
				"error", err,
			)
			outcome = actionOutcome{err: err}
		}
	}()

	handler := x.handlers[action.Type]
	return handler(ctx, actionInput{
		params:      action.Params,
		entity:      req.Entity,
		entityType:  req.EntityType,
		entityID:    req.EntityID,
		workspaceID: req.WorkspaceID,
		services:    req.Services,
	})
}

// syntheticChanges previews what a real run would touch: each param becomes a
// from/to pair against the entity's current value.
func syntheticChanges(action ActionConfig, entity Entity) map[string]FieldChange {
	changes := make(map[string]FieldChange, len(action.Params))
	for key, to := range action.Params {
		from, _ := entity.GetField(key)
		changes[key] = FieldChange{From: from, To: to}
	}
	return changes
}
