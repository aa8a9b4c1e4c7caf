package automation

import "context"

// Services is the capability bag action handlers mutate entities through.
// Every field is optional: a caller that does not want side effects supplies
// nil (or a partially filled bag), and handlers report a failed result instead
// of dereferencing a missing capability.
type Services struct {
	Transactions  TransactionService
	Accounts      AccountService
	Payees        PayeeService
	Categories    CategoryService
	Schedules     ScheduleService
	Budgets       BudgetService
	Notifications NotificationService
}

type TransactionService interface {
	Update(ctx context.Context, transactionID string, fields map[string]interface{}) error
}

type AccountService interface {
	Update(ctx context.Context, accountID string, fields map[string]interface{}) error
	Close(ctx context.Context, accountID string) error
}

type PayeeService interface {
	Update(ctx context.Context, payeeID string, fields map[string]interface{}) error
	Merge(ctx context.Context, sourcePayeeID, targetPayeeID string) error
	CreateAlias(ctx context.Context, payeeID, alias string) error
}

type CategoryService interface {
	Update(ctx context.Context, categoryID string, fields map[string]interface{}) error
	MoveToGroup(ctx context.Context, categoryID, groupID string) error
}

type ScheduleService interface {
	Skip(ctx context.Context, scheduleID string) error
	Pause(ctx context.Context, scheduleID string) error
	Resume(ctx context.Context, scheduleID string) error
}

type BudgetService interface {
	Rollover(ctx context.Context, budgetID string) error
	AssignTransaction(ctx context.Context, budgetID, transactionID string) error
}

// Notification is a rendered message on its way out of the engine. Title and
// Message have already had {{field}} placeholders resolved.
type Notification struct {
	WorkspaceID string `json:"workspace_id"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	EntityType  string `json:"entity_type,omitempty"`
	EntityID    string `json:"entity_id,omitempty"`
}

type NotificationService interface {
	Send(ctx context.Context, n Notification) error
}
