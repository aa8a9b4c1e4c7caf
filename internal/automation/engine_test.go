package automation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plutus/internal/logger"
)

// memRuleRepository is an in-memory RuleRepository for engine tests. It
// preserves insertion order within equal priorities, matching the Postgres
// created_at tiebreak.
type memRuleRepository struct {
	mu       sync.Mutex
	rules    []Rule
	statsFor []string
}

func (r *memRuleRepository) FindByTrigger(ctx context.Context, workspaceID, entityType, event string) ([]Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Rule
	for _, rule := range r.rules {
		if rule.Enabled && rule.WorkspaceID == workspaceID &&
			rule.Trigger.EntityType == entityType && rule.Trigger.Event == event {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *memRuleRepository) UpdateStats(ctx context.Context, ruleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statsFor = append(r.statsFor, ruleID)
	for i := range r.rules {
		if r.rules[i].ID == ruleID {
			r.rules[i].TimesTriggered++
			now := time.Now().UTC()
			r.rules[i].LastTriggeredAt = &now
		}
	}
	return nil
}

func (r *memRuleRepository) Disable(ctx context.Context, ruleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rules {
		if r.rules[i].ID == ruleID {
			r.rules[i].Enabled = false
		}
	}
	return nil
}

type memLogStore struct {
	mu   sync.Mutex
	logs []ExecutionLog
}

func (s *memLogStore) CreateLog(ctx context.Context, entry *ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *entry)
	return nil
}

func (s *memLogStore) ListLogs(ctx context.Context, workspaceID, ruleID string, limit int) ([]ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ExecutionLog
	for _, l := range s.logs {
		if l.WorkspaceID == workspaceID && (ruleID == "" || l.RuleID == ruleID) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memLogStore) Prune(ctx context.Context, retentionDays int) (int64, error) {
	return 0, nil
}

func (s *memLogStore) byRule(ruleID string) []ExecutionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ExecutionLog
	for _, l := range s.logs {
		if l.RuleID == ruleID {
			out = append(out, l)
		}
	}
	return out
}

func matchAllRule(id, workspaceID string, priority int) Rule {
	return Rule{
		ID:          id,
		WorkspaceID: workspaceID,
		Name:        "rule " + id,
		Enabled:     true,
		Priority:    priority,
		Trigger:     Trigger{EntityType: EntityTransaction, Event: EventCreated},
		Conditions:  ConditionGroup{Operator: GroupAnd},
	}
}

func newTestEngine(t *testing.T, repo *memRuleRepository, logs *memLogStore, services *Services) *Engine {
	t.Helper()
	engine, err := NewEngine("ws-1", repo, logs, nil, services, logger.NopLogger())
	require.NoError(t, err)
	return engine
}

func transactionCreated(entity Entity) Event {
	return Event{
		EntityType:  EntityTransaction,
		Event:       EventCreated,
		EntityID:    "txn-1",
		Entity:      entity,
		WorkspaceID: "ws-1",
	}
}

func TestTriggerEndToEndMatch(t *testing.T) {
	repo := &memRuleRepository{}
	rule := matchAllRule("r1", "ws-1", 0)
	rule.Conditions = group(GroupAnd, leaf(Condition{Field: "amount", Operator: OpLessThan, Value: -100}))
	rule.Actions = []ActionConfig{{ID: "a1", Type: ActionSetCategory, Params: map[string]interface{}{"categoryId": 42}}}
	repo.rules = append(repo.rules, rule)

	logs := &memLogStore{}
	txns := &fakeTransactionService{}
	engine := newTestEngine(t, repo, logs, nil)

	result := engine.Trigger(context.Background(), transactionCreated(Entity{"amount": -150.0, "categoryId": nil}), &Services{Transactions: txns})

	assert.Equal(t, 1, result.RulesEvaluated)
	assert.Equal(t, 1, result.RulesMatched)
	assert.Equal(t, 1, result.ActionsExecuted)
	assert.Empty(t, result.Errors)

	entries := logs.byRule("r1")
	require.Len(t, entries, 1)
	assert.Equal(t, StatusSuccess, entries[0].Status)
	assert.True(t, entries[0].ConditionsMatched)
	require.Len(t, entries[0].ActionsExecuted, 1)
	assert.Equal(t, FieldChange{From: nil, To: 42}, entries[0].ActionsExecuted[0].Changes["categoryId"])
	assert.Equal(t, []string{"r1"}, repo.statsFor)
}

func TestTriggerEndToEndSkip(t *testing.T) {
	repo := &memRuleRepository{}
	rule := matchAllRule("r1", "ws-1", 0)
	rule.Conditions = group(GroupAnd, leaf(Condition{Field: "amount", Operator: OpGreaterThan, Value: 0}))
	rule.Actions = []ActionConfig{{ID: "a1", Type: ActionSetCategory, Params: map[string]interface{}{"categoryId": 42}}}
	repo.rules = append(repo.rules, rule)

	logs := &memLogStore{}
	engine := newTestEngine(t, repo, logs, nil)

	result := engine.Trigger(context.Background(), transactionCreated(Entity{"amount": -150.0}), &Services{Transactions: &fakeTransactionService{}})

	assert.Equal(t, 1, result.RulesEvaluated)
	assert.Equal(t, 0, result.RulesMatched)
	assert.Equal(t, 0, result.ActionsExecuted)

	entries := logs.byRule("r1")
	require.Len(t, entries, 1)
	assert.Equal(t, StatusSkipped, entries[0].Status)
	assert.False(t, entries[0].ConditionsMatched)
	// Skipped rules do not touch statistics.
	assert.Empty(t, repo.statsFor)
}

func TestTriggerPriorityOrdering(t *testing.T) {
	repo := &memRuleRepository{}
	repo.rules = append(repo.rules,
		matchAllRule("r-five", "ws-1", 5),
		matchAllRule("r-ten", "ws-1", 10),
		matchAllRule("r-one", "ws-1", 1),
	)

	logs := &memLogStore{}
	engine := newTestEngine(t, repo, logs, nil)
	engine.Trigger(context.Background(), transactionCreated(Entity{}), nil)

	require.Len(t, logs.logs, 3)
	assert.Equal(t, "r-ten", logs.logs[0].RuleID)
	assert.Equal(t, "r-five", logs.logs[1].RuleID)
	assert.Equal(t, "r-one", logs.logs[2].RuleID)
}

func TestTriggerStopOnMatch(t *testing.T) {
	repo := &memRuleRepository{}
	first := matchAllRule("r-first", "ws-1", 10)
	first.StopOnMatch = true
	repo.rules = append(repo.rules, first, matchAllRule("r-second", "ws-1", 5))

	logs := &memLogStore{}
	engine := newTestEngine(t, repo, logs, nil)
	result := engine.Trigger(context.Background(), transactionCreated(Entity{}), nil)

	assert.Equal(t, 1, result.RulesEvaluated)
	assert.Equal(t, 1, result.RulesMatched)
	// The lower-priority rule is never evaluated and never logged.
	assert.Empty(t, logs.byRule("r-second"))
	require.Len(t, logs.byRule("r-first"), 1)
}

func TestTriggerRunOnceDisablesRule(t *testing.T) {
	repo := &memRuleRepository{}
	rule := matchAllRule("r1", "ws-1", 0)
	rule.RunOnce = true
	rule.Actions = []ActionConfig{{ID: "a1", Type: ActionSetNote, Params: map[string]interface{}{"note": "done"}}}
	repo.rules = append(repo.rules, rule)

	logs := &memLogStore{}
	engine := newTestEngine(t, repo, logs, nil)
	services := &Services{Transactions: &fakeTransactionService{}}

	engine.Trigger(context.Background(), transactionCreated(Entity{}), services)
	assert.False(t, repo.rules[0].Enabled)

	// A second trigger finds no enabled rules.
	result := engine.Trigger(context.Background(), transactionCreated(Entity{}), services)
	assert.Equal(t, 0, result.RulesEvaluated)
	assert.Len(t, logs.byRule("r1"), 1)
}

func TestTriggerRunOnceKeepsRuleOnFailure(t *testing.T) {
	repo := &memRuleRepository{}
	rule := matchAllRule("r1", "ws-1", 0)
	rule.RunOnce = true
	rule.Actions = []ActionConfig{{ID: "a1", Type: ActionSetNote, Params: map[string]interface{}{"note": "done"}}}
	repo.rules = append(repo.rules, rule)

	logs := &memLogStore{}
	engine := newTestEngine(t, repo, logs, nil)

	// No services supplied: the action fails, so run-once must not disable.
	result := engine.Trigger(context.Background(), transactionCreated(Entity{}), nil)

	assert.True(t, repo.rules[0].Enabled)
	assert.NotEmpty(t, result.Errors)
	entries := logs.byRule("r1")
	require.Len(t, entries, 1)
	assert.Equal(t, StatusFailed, entries[0].Status)
	assert.True(t, entries[0].ConditionsMatched)
}

func TestTriggerWithoutServicesStillLogs(t *testing.T) {
	repo := &memRuleRepository{}
	rule := matchAllRule("r1", "ws-1", 0)
	rule.Actions = []ActionConfig{{ID: "a1", Type: ActionSetCategory, Params: map[string]interface{}{"categoryId": 1}}}
	repo.rules = append(repo.rules, rule)

	logs := &memLogStore{}
	engine := newTestEngine(t, repo, logs, nil)
	result := engine.Trigger(context.Background(), transactionCreated(Entity{}), nil)

	assert.Equal(t, 1, result.RulesMatched)
	entries := logs.byRule("r1")
	require.Len(t, entries, 1)
	assert.Equal(t, StatusFailed, entries[0].Status)
	require.Len(t, entries[0].ActionsExecuted, 1)
	assert.Equal(t, "services not provided", entries[0].ActionsExecuted[0].Error)
}

func TestTriggerIsolatesPerRuleFailures(t *testing.T) {
	repo := &memRuleRepository{}
	broken := matchAllRule("r-broken", "ws-1", 10)
	broken.Actions = []ActionConfig{{ID: "a1", Type: ActionSetCategory, Params: map[string]interface{}{"categoryId": 1}}}
	healthy := matchAllRule("r-healthy", "ws-1", 5)
	healthy.Actions = []ActionConfig{{ID: "a1", Type: ActionSetNote, Params: map[string]interface{}{"note": "ok"}}}
	repo.rules = append(repo.rules, broken, healthy)

	logs := &memLogStore{}
	engine := newTestEngine(t, repo, logs, nil)
	txns := &fakeTransactionService{panics: true}
	services := &Services{Transactions: txns}

	result := engine.Trigger(context.Background(), transactionCreated(Entity{}), services)

	// The panicking service fails the first rule's action; the second rule
	// still runs (it also fails at the service, but it was evaluated).
	assert.Equal(t, 2, result.RulesEvaluated)
	assert.NotEmpty(t, result.Errors)
	assert.Len(t, logs.byRule("r-broken"), 1)
	assert.Len(t, logs.byRule("r-healthy"), 1)
}

func TestTestRuleDryRun(t *testing.T) {
	repo := &memRuleRepository{}
	logs := &memLogStore{}
	engine := newTestEngine(t, repo, logs, nil)

	rule := matchAllRule("r1", "ws-1", 0)
	rule.Conditions = group(GroupAnd, leaf(Condition{Field: "amount", Operator: OpLessThan, Value: -100}))
	rule.Actions = []ActionConfig{{ID: "a1", Type: ActionSetCategory, Params: map[string]interface{}{"categoryId": 42}}}

	result := engine.TestRule(context.Background(), &rule, Entity{"amount": -150.0, "categoryId": nil})

	assert.True(t, result.Matched)
	require.Len(t, result.Actions, 1)
	assert.True(t, result.Actions[0].Success)
	assert.Equal(t, FieldChange{From: nil, To: 42}, result.Actions[0].Changes["categoryId"])

	// Nothing persisted.
	assert.Empty(t, logs.logs)
	assert.Empty(t, repo.statsFor)

	miss := engine.TestRule(context.Background(), &rule, Entity{"amount": 50.0})
	assert.False(t, miss.Matched)
	assert.Empty(t, miss.Actions)
}

func TestEngineProcessesEmittedEvents(t *testing.T) {
	repo := &memRuleRepository{}
	rule := matchAllRule("r1", "ws-1", 0)
	rule.Actions = []ActionConfig{{ID: "a1", Type: ActionSetNote, Params: map[string]interface{}{"note": "seen"}}}
	repo.rules = append(repo.rules, rule)

	logs := &memLogStore{}
	emitter := NewEmitter(logger.NopLogger())
	txns := &fakeTransactionService{}

	engine, err := NewEngine("ws-1", repo, logs, emitter, &Services{Transactions: txns}, logger.NopLogger())
	require.NoError(t, err)
	engine.Subscribe(EntityTransaction)
	defer engine.destroy()

	emitter.Emit(context.Background(), transactionCreated(Entity{}))

	// An event for another workspace is ignored by this engine.
	other := transactionCreated(Entity{})
	other.WorkspaceID = "ws-2"
	emitter.Emit(context.Background(), other)

	entries := logs.byRule("r1")
	require.Len(t, entries, 1)
	assert.Equal(t, StatusSuccess, entries[0].Status)
	require.Len(t, txns.updates, 1)
}

func TestRegistryLifecycle(t *testing.T) {
	repo := &memRuleRepository{}
	logs := &memLogStore{}
	emitter := NewEmitter(logger.NopLogger())
	registry := NewRegistry(repo, logs, emitter, nil, logger.NopLogger())

	first, err := registry.GetEngine("ws-1")
	require.NoError(t, err)
	again, err := registry.GetEngine("ws-1")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, 1, registry.Count())

	second, err := registry.GetEngine("ws-2")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, registry.Count())

	registry.Destroy("ws-1")
	registry.Destroy("ws-1") // idempotent
	assert.Equal(t, 1, registry.Count())

	// A destroyed engine no longer receives emitted events.
	rule := matchAllRule("r1", "ws-1", 0)
	repo.rules = append(repo.rules, rule)
	emitter.Emit(context.Background(), transactionCreated(Entity{}))
	assert.Empty(t, logs.logs)

	registry.DestroyAll()
	assert.Equal(t, 0, registry.Count())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	registry := NewRegistry(&memRuleRepository{}, &memLogStore{}, NewEmitter(logger.NopLogger()), nil, logger.NopLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			workspaceID := fmt.Sprintf("ws-%d", n%4)
			if _, err := registry.GetEngine(workspaceID); err != nil {
				t.Error(err)
			}
			if n%5 == 0 {
				registry.Destroy(workspaceID)
			}
		}(i)
	}
	wg.Wait()
}
