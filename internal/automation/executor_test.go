package automation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plutus/internal/logger"
)

type fakeTransactionService struct {
	updates []map[string]interface{}
	err     error
	panics  bool
}

func (s *fakeTransactionService) Update(ctx context.Context, transactionID string, fields map[string]interface{}) error {
	if s.panics {
		panic("transaction backend gone")
	}
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, fields)
	return nil
}

type fakeNotificationService struct {
	sent []Notification
	err  error
}

func (s *fakeNotificationService) Send(ctx context.Context, n Notification) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

func TestExecuteSetCategory(t *testing.T) {
	txns := &fakeTransactionService{}
	x := NewExecutor(logger.NopLogger())

	results := x.Execute(context.Background(), ExecRequest{
		Actions:    []ActionConfig{{ID: "a1", Type: ActionSetCategory, Params: map[string]interface{}{"categoryId": 42}}},
		Entity:     Entity{"amount": -150.0, "categoryId": nil},
		EntityType: EntityTransaction,
		EntityID:   "txn-1",
		Services:   &Services{Transactions: txns},
	})

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, FieldChange{From: nil, To: 42}, results[0].Changes["categoryId"])
	require.Len(t, txns.updates, 1)
	assert.Equal(t, 42, txns.updates[0]["categoryId"])
}

func TestExecuteHaltsOnFailureByDefault(t *testing.T) {
	txns := &fakeTransactionService{err: errors.New("db down")}
	x := NewExecutor(logger.NopLogger())

	actions := []ActionConfig{
		{ID: "a", Type: ActionSetCategory, Params: map[string]interface{}{"categoryId": 1}},
		{ID: "b", Type: ActionSetPayee, Params: map[string]interface{}{"payeeId": 2}},
		{ID: "c", Type: ActionSetNote, Params: map[string]interface{}{"note": "x"}},
	}
	results := x.Execute(context.Background(), ExecRequest{
		Actions:    actions,
		Entity:     Entity{},
		EntityType: EntityTransaction,
		EntityID:   "txn-1",
		Services:   &Services{Transactions: txns},
	})

	// Only the failing action is reached; the batch halts.
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "db down")
}

func TestExecuteContinueOnError(t *testing.T) {
	txns := &fakeTransactionService{err: errors.New("db down")}
	x := NewExecutor(logger.NopLogger())

	actions := []ActionConfig{
		{ID: "a", Type: ActionSetCategory, Params: map[string]interface{}{"categoryId": 1}, ContinueOnError: true},
		{ID: "b", Type: ActionSetPayee, Params: map[string]interface{}{"payeeId": 2}, ContinueOnError: true},
		{ID: "c", Type: ActionSetNote, Params: map[string]interface{}{"note": "x"}, ContinueOnError: true},
	}
	results := x.Execute(context.Background(), ExecRequest{
		Actions:    actions,
		Entity:     Entity{},
		EntityType: EntityTransaction,
		EntityID:   "txn-1",
		Services:   &Services{Transactions: txns},
	})

	require.Len(t, results, 3)
	for _, r := range results {
		assert.False(t, r.Success)
	}
}

func TestExecuteUnknownActionType(t *testing.T) {
	x := NewExecutor(logger.NopLogger())

	results := x.Execute(context.Background(), ExecRequest{
		Actions:    []ActionConfig{{ID: "a", Type: "teleportMoney"}},
		Entity:     Entity{},
		EntityType: EntityTransaction,
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "unknown action type")
}

func TestExecuteEntityTypeMismatch(t *testing.T) {
	x := NewExecutor(logger.NopLogger())

	results := x.Execute(context.Background(), ExecRequest{
		Actions:    []ActionConfig{{ID: "a", Type: ActionCloseAccount}},
		Entity:     Entity{},
		EntityType: EntityTransaction,
		Services:   &Services{},
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "not applicable")
}

func TestExecuteWithoutServices(t *testing.T) {
	x := NewExecutor(logger.NopLogger())

	results := x.Execute(context.Background(), ExecRequest{
		Actions:    []ActionConfig{{ID: "a", Type: ActionSetCategory, Params: map[string]interface{}{"categoryId": 1}}},
		Entity:     Entity{},
		EntityType: EntityTransaction,
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "services not provided", results[0].Error)
}

func TestExecuteMissingCapability(t *testing.T) {
	x := NewExecutor(logger.NopLogger())

	results := x.Execute(context.Background(), ExecRequest{
		Actions:    []ActionConfig{{ID: "a", Type: ActionSetCategory, Params: map[string]interface{}{"categoryId": 1}}},
		Entity:     Entity{},
		EntityType: EntityTransaction,
		Services:   &Services{},
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "transaction service not available")
}

func TestExecuteRecoversHandlerPanic(t *testing.T) {
	txns := &fakeTransactionService{panics: true}
	x := NewExecutor(logger.NopLogger())

	results := x.Execute(context.Background(), ExecRequest{
		Actions:    []ActionConfig{{ID: "a", Type: ActionSetCategory, Params: map[string]interface{}{"categoryId": 1}}},
		Entity:     Entity{},
		EntityType: EntityTransaction,
		Services:   &Services{Transactions: txns},
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.NotEmpty(t, results[0].Error)
}

func TestExecuteDryRun(t *testing.T) {
	txns := &fakeTransactionService{}
	x := NewExecutor(logger.NopLogger())

	results := x.Execute(context.Background(), ExecRequest{
		Actions:    []ActionConfig{{ID: "a", Type: ActionSetCategory, Params: map[string]interface{}{"categoryId": 42}}},
		Entity:     Entity{"categoryId": 7},
		EntityType: EntityTransaction,
		EntityID:   "txn-1",
		Services:   &Services{Transactions: txns},
		DryRun:     true,
	})

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, FieldChange{From: 7, To: 42}, results[0].Changes["categoryId"])
	// No handler ran, so no mutation reached the service.
	assert.Empty(t, txns.updates)
}

func TestExecuteAddTagIdempotent(t *testing.T) {
	txns := &fakeTransactionService{}
	x := NewExecutor(logger.NopLogger())

	req := ExecRequest{
		Actions:    []ActionConfig{{ID: "a", Type: ActionAddTag, Params: map[string]interface{}{"tag": "recurring"}}},
		Entity:     Entity{"tags": []interface{}{"Recurring"}},
		EntityType: EntityTransaction,
		EntityID:   "txn-1",
		Services:   &Services{Transactions: txns},
	}
	results := x.Execute(context.Background(), req)

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Empty(t, txns.updates)
}

func TestExecuteSendNotificationTemplating(t *testing.T) {
	notifications := &fakeNotificationService{}
	x := NewExecutor(logger.NopLogger())

	results := x.Execute(context.Background(), ExecRequest{
		Actions: []ActionConfig{{
			ID:   "a",
			Type: ActionSendNotification,
			Params: map[string]interface{}{
				"title":   "Large expense",
				"message": "{{payee.name}} charged {{amount}} ({{missing}})",
			},
		}},
		Entity: Entity{
			"amount": -150.5,
			"payee":  map[string]interface{}{"name": "Netflix"},
		},
		EntityType:  EntityBudget,
		EntityID:    "bdg-1",
		WorkspaceID: "ws-1",
		Services:    &Services{Notifications: notifications},
	})

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	require.Len(t, notifications.sent, 1)
	sent := notifications.sent[0]
	assert.Equal(t, "ws-1", sent.WorkspaceID)
	assert.Equal(t, "Netflix charged -150.5 ({{missing}})", sent.Message)
}

func TestRenderTemplate(t *testing.T) {
	entity := Entity{"a": map[string]interface{}{"b": "deep"}, "n": 3}

	assert.Equal(t, "deep and 3", RenderTemplate("{{a.b}} and {{ n }}", entity))
	assert.Equal(t, "{{nope}}", RenderTemplate("{{nope}}", entity))
	assert.Equal(t, "plain", RenderTemplate("plain", entity))
}
