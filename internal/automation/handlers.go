package automation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var errServicesNotProvided = errors.New("services not provided")

func (in actionInput) transactions() (TransactionService, error) {
	if in.services == nil {
		return nil, errServicesNotProvided
	}
	if in.services.Transactions == nil {
		return nil, errors.New("transaction service not available")
	}
	return in.services.Transactions, nil
}

func (in actionInput) accounts() (AccountService, error) {
	if in.services == nil {
		return nil, errServicesNotProvided
	}
	if in.services.Accounts == nil {
		return nil, errors.New("account service not available")
	}
	return in.services.Accounts, nil
}

func (in actionInput) payees() (PayeeService, error) {
	if in.services == nil {
		return nil, errServicesNotProvided
	}
	if in.services.Payees == nil {
		return nil, errors.New("payee service not available")
	}
	return in.services.Payees, nil
}

func (in actionInput) categories() (CategoryService, error) {
	if in.services == nil {
		return nil, errServicesNotProvided
	}
	if in.services.Categories == nil {
		return nil, errors.New("category service not available")
	}
	return in.services.Categories, nil
}

func (in actionInput) schedules() (ScheduleService, error) {
	if in.services == nil {
		return nil, errServicesNotProvided
	}
	if in.services.Schedules == nil {
		return nil, errors.New("schedule service not available")
	}
	return in.services.Schedules, nil
}

func (in actionInput) budgets() (BudgetService, error) {
	if in.services == nil {
		return nil, errServicesNotProvided
	}
	if in.services.Budgets == nil {
		return nil, errors.New("budget service not available")
	}
	return in.services.Budgets, nil
}

func (in actionInput) notifications() (NotificationService, error) {
	if in.services == nil {
		return nil, errServicesNotProvided
	}
	if in.services.Notifications == nil {
		return nil, errors.New("notification service not available")
	}
	return in.services.Notifications, nil
}

func failed(err error) actionOutcome {
	return actionOutcome{err: err}
}

func applied(changes map[string]FieldChange) actionOutcome {
	return actionOutcome{changes: changes}
}

func requireParam(params map[string]interface{}, key string) (interface{}, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("missing required param: %s", key)
	}
	return v, nil
}

func requireStringParam(params map[string]interface{}, key string) (string, error) {
	v, err := requireParam(params, key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("param %s must be a non-empty string", key)
	}
	return s, nil
}

// setField updates one entity field through the transaction service, recording
// the before/after pair.
func (x *Executor) setTransactionField(ctx context.Context, in actionInput, field string, value interface{}) actionOutcome {
	svc, err := in.transactions()
	if err != nil {
		return failed(err)
	}
	from, _ := in.entity.GetField(field)
	if err := svc.Update(ctx, in.entityID, map[string]interface{}{field: value}); err != nil {
		return failed(fmt.Errorf("failed to update transaction: %w", err))
	}
	return applied(map[string]FieldChange{field: {From: from, To: value}})
}

func (x *Executor) handleSetCategory(ctx context.Context, in actionInput) actionOutcome {
	categoryID, err := requireParam(in.params, "categoryId")
	if err != nil {
		return failed(err)
	}
	return x.setTransactionField(ctx, in, "categoryId", categoryID)
}

func (x *Executor) handleSetPayee(ctx context.Context, in actionInput) actionOutcome {
	payeeID, err := requireParam(in.params, "payeeId")
	if err != nil {
		return failed(err)
	}
	return x.setTransactionField(ctx, in, "payeeId", payeeID)
}

func (x *Executor) handleAddTag(ctx context.Context, in actionInput) actionOutcome {
	tag, err := requireStringParam(in.params, "tag")
	if err != nil {
		return failed(err)
	}
	svc, err := in.transactions()
	if err != nil {
		return failed(err)
	}

	existing, _ := in.entity.GetField("tags")
	tags, _ := toList(existing)
	for _, t := range tags {
		if s, ok := t.(string); ok && strings.EqualFold(s, tag) {
			// Already tagged; a repeat run stays idempotent.
			return applied(nil)
		}
	}
	updated := append(append([]interface{}{}, tags...), tag)

	if err := svc.Update(ctx, in.entityID, map[string]interface{}{"tags": updated}); err != nil {
		return failed(fmt.Errorf("failed to update transaction: %w", err))
	}
	return applied(map[string]FieldChange{"tags": {From: existing, To: updated}})
}

func (x *Executor) handleSetNote(ctx context.Context, in actionInput) actionOutcome {
	note, err := requireStringParam(in.params, "note")
	if err != nil {
		return failed(err)
	}
	return x.setTransactionField(ctx, in, "note", note)
}

func (x *Executor) handleMarkCleared(ctx context.Context, in actionInput) actionOutcome {
	cleared := true
	if v, ok := in.params["cleared"].(bool); ok {
		cleared = v
	}
	return x.setTransactionField(ctx, in, "cleared", cleared)
}

func (x *Executor) handleUpdateAccount(ctx context.Context, in actionInput) actionOutcome {
	svc, err := in.accounts()
	if err != nil {
		return failed(err)
	}
	fields, err := fieldsParam(in.params)
	if err != nil {
		return failed(err)
	}
	if err := svc.Update(ctx, in.entityID, fields); err != nil {
		return failed(fmt.Errorf("failed to update account: %w", err))
	}
	return applied(changesForFields(in.entity, fields))
}

func (x *Executor) handleCloseAccount(ctx context.Context, in actionInput) actionOutcome {
	svc, err := in.accounts()
	if err != nil {
		return failed(err)
	}
	from, _ := in.entity.GetField("closed")
	if err := svc.Close(ctx, in.entityID); err != nil {
		return failed(fmt.Errorf("failed to close account: %w", err))
	}
	return applied(map[string]FieldChange{"closed": {From: from, To: true}})
}

func (x *Executor) handleUpdatePayee(ctx context.Context, in actionInput) actionOutcome {
	svc, err := in.payees()
	if err != nil {
		return failed(err)
	}
	fields, err := fieldsParam(in.params)
	if err != nil {
		return failed(err)
	}
	if err := svc.Update(ctx, in.entityID, fields); err != nil {
		return failed(fmt.Errorf("failed to update payee: %w", err))
	}
	return applied(changesForFields(in.entity, fields))
}

func (x *Executor) handleMergePayee(ctx context.Context, in actionInput) actionOutcome {
	svc, err := in.payees()
	if err != nil {
		return failed(err)
	}
	targetID, err := requireStringParam(in.params, "targetPayeeId")
	if err != nil {
		return failed(err)
	}
	if err := svc.Merge(ctx, in.entityID, targetID); err != nil {
		return failed(fmt.Errorf("failed to merge payee: %w", err))
	}
	return applied(map[string]FieldChange{"mergedInto": {From: nil, To: targetID}})
}

func (x *Executor) handleCreatePayeeAlias(ctx context.Context, in actionInput) actionOutcome {
	svc, err := in.payees()
	if err != nil {
		return failed(err)
	}
	alias, err := requireStringParam(in.params, "alias")
	if err != nil {
		return failed(err)
	}
	if err := svc.CreateAlias(ctx, in.entityID, alias); err != nil {
		return failed(fmt.Errorf("failed to create payee alias: %w", err))
	}
	return applied(map[string]FieldChange{"alias": {From: nil, To: alias}})
}

func (x *Executor) handleUpdateCategory(ctx context.Context, in actionInput) actionOutcome {
	svc, err := in.categories()
	if err != nil {
		return failed(err)
	}
	fields, err := fieldsParam(in.params)
	if err != nil {
		return failed(err)
	}
	if err := svc.Update(ctx, in.entityID, fields); err != nil {
		return failed(fmt.Errorf("failed to update category: %w", err))
	}
	return applied(changesForFields(in.entity, fields))
}

func (x *Executor) handleMoveCategoryToGroup(ctx context.Context, in actionInput) actionOutcome {
	svc, err := in.categories()
	if err != nil {
		return failed(err)
	}
	groupID, err := requireStringParam(in.params, "groupId")
	if err != nil {
		return failed(err)
	}
	from, _ := in.entity.GetField("groupId")
	if err := svc.MoveToGroup(ctx, in.entityID, groupID); err != nil {
		return failed(fmt.Errorf("failed to move category: %w", err))
	}
	return applied(map[string]FieldChange{"groupId": {From: from, To: groupID}})
}

func (x *Executor) handleSkipSchedule(ctx context.Context, in actionInput) actionOutcome {
	return x.scheduleAction(ctx, in, "skip")
}

func (x *Executor) handlePauseSchedule(ctx context.Context, in actionInput) actionOutcome {
	return x.scheduleAction(ctx, in, "pause")
}

func (x *Executor) handleResumeSchedule(ctx context.Context, in actionInput) actionOutcome {
	return x.scheduleAction(ctx, in, "resume")
}

func (x *Executor) scheduleAction(ctx context.Context, in actionInput, op string) actionOutcome {
	svc, err := in.schedules()
	if err != nil {
		return failed(err)
	}
	from, _ := in.entity.GetField("status")

	switch op {
	case "skip":
		err = svc.Skip(ctx, in.entityID)
	case "pause":
		err = svc.Pause(ctx, in.entityID)
	case "resume":
		err = svc.Resume(ctx, in.entityID)
	}
	if err != nil {
		return failed(fmt.Errorf("failed to %s schedule: %w", op, err))
	}
	return applied(map[string]FieldChange{"status": {From: from, To: op}})
}

func (x *Executor) handleRolloverBudget(ctx context.Context, in actionInput) actionOutcome {
	svc, err := in.budgets()
	if err != nil {
		return failed(err)
	}
	if err := svc.Rollover(ctx, in.entityID); err != nil {
		return failed(fmt.Errorf("failed to rollover budget: %w", err))
	}
	return applied(map[string]FieldChange{"rolledOver": {From: false, To: true}})
}

func (x *Executor) handleAssignTransactionToBudget(ctx context.Context, in actionInput) actionOutcome {
	svc, err := in.budgets()
	if err != nil {
		return failed(err)
	}
	budgetID, err := requireStringParam(in.params, "budgetId")
	if err != nil {
		return failed(err)
	}
	from, _ := in.entity.GetField("budgetId")
	if err := svc.AssignTransaction(ctx, budgetID, in.entityID); err != nil {
		return failed(fmt.Errorf("failed to assign transaction to budget: %w", err))
	}
	return applied(map[string]FieldChange{"budgetId": {From: from, To: budgetID}})
}

func (x *Executor) handleSendNotification(ctx context.Context, in actionInput) actionOutcome {
	svc, err := in.notifications()
	if err != nil {
		return failed(err)
	}
	message, err := requireStringParam(in.params, "message")
	if err != nil {
		return failed(err)
	}
	title, _ := in.params["title"].(string)

	notification := Notification{
		WorkspaceID: in.workspaceID,
		Title:       RenderTemplate(title, in.entity),
		Message:     RenderTemplate(message, in.entity),
		EntityType:  in.entityType,
		EntityID:    in.entityID,
	}
	if err := svc.Send(ctx, notification); err != nil {
		return failed(fmt.Errorf("failed to send notification: %w", err))
	}
	return applied(map[string]FieldChange{"notification": {From: nil, To: notification.Message}})
}

func fieldsParam(params map[string]interface{}) (map[string]interface{}, error) {
	v, err := requireParam(params, "fields")
	if err != nil {
		return nil, err
	}
	fields, ok := v.(map[string]interface{})
	if !ok || len(fields) == 0 {
		return nil, errors.New("param fields must be a non-empty object")
	}
	return fields, nil
}

func changesForFields(entity Entity, fields map[string]interface{}) map[string]FieldChange {
	changes := make(map[string]FieldChange, len(fields))
	for key, to := range fields {
		from, _ := entity.GetField(key)
		changes[key] = FieldChange{From: from, To: to}
	}
	return changes
}

var templatePlaceholder = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// RenderTemplate substitutes {{field}} placeholders with entity values using
// dotted-path lookup. Placeholders that do not resolve are left literally in
// the output.
func RenderTemplate(template string, entity Entity) string {
	return templatePlaceholder.ReplaceAllStringFunc(template, func(match string) string {
		path := templatePlaceholder.FindStringSubmatch(match)[1]
		value, found := entity.GetField(path)
		if !found || value == nil {
			return match
		}
		return fmt.Sprintf("%v", value)
	})
}
