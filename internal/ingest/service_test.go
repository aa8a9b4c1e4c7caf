package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plutus/internal/automation"
	"plutus/internal/config"
	"plutus/internal/logger"
	"plutus/pkg/models"
)

type fakeDedupRepository struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newFakeDedupRepository() *fakeDedupRepository {
	return &fakeDedupRepository{keys: make(map[string]bool)}
}

func (r *fakeDedupRepository) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	if r.keys[key] {
		return false, nil
	}
	r.keys[key] = true
	return true, nil
}

type recordingRuleRepository struct {
	mu      sync.Mutex
	rules   []automation.Rule
	queries int
}

func (r *recordingRuleRepository) FindByTrigger(ctx context.Context, workspaceID, entityType, event string) ([]automation.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries++
	var out []automation.Rule
	for _, rule := range r.rules {
		if rule.WorkspaceID == workspaceID && rule.Trigger.EntityType == entityType && rule.Trigger.Event == event {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *recordingRuleRepository) UpdateStats(ctx context.Context, ruleID string) error { return nil }
func (r *recordingRuleRepository) Disable(ctx context.Context, ruleID string) error     { return nil }

func (r *recordingRuleRepository) queryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queries
}

type memLogStore struct {
	mu   sync.Mutex
	logs []automation.ExecutionLog
}

func (s *memLogStore) CreateLog(ctx context.Context, log *automation.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *log)
	return nil
}

func (s *memLogStore) ListLogs(ctx context.Context, workspaceID, ruleID string, limit int) ([]automation.ExecutionLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]automation.ExecutionLog(nil), s.logs...), nil
}

func (s *memLogStore) Prune(ctx context.Context, retentionDays int) (int64, error) { return 0, nil }

type fakeNotificationService struct {
	mu    sync.Mutex
	notes []automation.Notification
}

func (n *fakeNotificationService) Send(ctx context.Context, note automation.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return nil
}

func newTestService(t *testing.T, repo *recordingRuleRepository, dedupRepo Repository, dedupCfg config.DeduplicationConfig) (*Service, *memLogStore, *fakeNotificationService) {
	t.Helper()

	log := logger.NopLogger()
	logs := &memLogStore{}
	notes := &fakeNotificationService{}
	services := &automation.Services{Notifications: notes}

	registry := automation.NewRegistry(repo, logs, automation.NewEmitter(log), services, log)
	t.Cleanup(registry.DestroyAll)

	svc := &Service{
		registry: registry,
		services: services,
		dedup:    NewDeduplicator(dedupRepo, dedupCfg, log),
		topic:    "domain_events",
		logger:   log,
	}
	return svc, logs, notes
}

func notifyAllRule(id, workspaceID string) automation.Rule {
	return automation.Rule{
		ID:          id,
		WorkspaceID: workspaceID,
		Name:        "notify on transaction",
		Enabled:     true,
		Trigger:     automation.Trigger{EntityType: automation.EntityTransaction, Event: automation.EventCreated},
		Actions: []automation.ActionConfig{
			{ID: "a1", Type: automation.ActionSendNotification, Params: map[string]interface{}{
				"title":   "seen {{payee}}",
				"message": "amount {{amount}}",
			}},
		},
	}
}

func envelope(id string) models.EventEnvelope {
	return models.EventEnvelope{
		ID:          id,
		WorkspaceID: "ws-1",
		EntityType:  automation.EntityTransaction,
		Event:       automation.EventCreated,
		EntityID:    "txn-1",
		Entity:      map[string]interface{}{"payee": "Netflix", "amount": -15.99},
		Timestamp:   time.Now().UTC(),
	}
}

func TestHandleEnvelopeRunsRules(t *testing.T) {
	repo := &recordingRuleRepository{rules: []automation.Rule{notifyAllRule("r1", "ws-1")}}
	svc, logs, notes := newTestService(t, repo, newFakeDedupRepository(), config.DeduplicationConfig{Enabled: true})

	err := svc.handleEnvelope(context.Background(), envelope("evt-1"))
	require.NoError(t, err)

	require.Len(t, notes.notes, 1)
	assert.Equal(t, "ws-1", notes.notes[0].WorkspaceID)
	assert.Equal(t, "seen Netflix", notes.notes[0].Title)

	require.Len(t, logs.logs, 1)
	assert.Equal(t, automation.StatusSuccess, logs.logs[0].Status)
	assert.Equal(t, "r1", logs.logs[0].RuleID)
}

func TestHandleEnvelopeDropsDuplicates(t *testing.T) {
	repo := &recordingRuleRepository{rules: []automation.Rule{notifyAllRule("r1", "ws-1")}}
	svc, _, notes := newTestService(t, repo, newFakeDedupRepository(), config.DeduplicationConfig{Enabled: true})

	require.NoError(t, svc.handleEnvelope(context.Background(), envelope("evt-1")))
	require.NoError(t, svc.handleEnvelope(context.Background(), envelope("evt-1")))

	assert.Len(t, notes.notes, 1, "second delivery of the same event id is dropped")
	assert.Equal(t, 1, repo.queryCount())
}

func TestHandleEnvelopeDistinctEventsBothProcess(t *testing.T) {
	repo := &recordingRuleRepository{rules: []automation.Rule{notifyAllRule("r1", "ws-1")}}
	svc, _, notes := newTestService(t, repo, newFakeDedupRepository(), config.DeduplicationConfig{Enabled: true})

	require.NoError(t, svc.handleEnvelope(context.Background(), envelope("evt-1")))
	require.NoError(t, svc.handleEnvelope(context.Background(), envelope("evt-2")))

	assert.Len(t, notes.notes, 2)
}

func TestHandleEnvelopeDedupDisabled(t *testing.T) {
	repo := &recordingRuleRepository{rules: []automation.Rule{notifyAllRule("r1", "ws-1")}}
	svc, _, notes := newTestService(t, repo, newFakeDedupRepository(), config.DeduplicationConfig{Enabled: false})

	require.NoError(t, svc.handleEnvelope(context.Background(), envelope("evt-1")))
	require.NoError(t, svc.handleEnvelope(context.Background(), envelope("evt-1")))

	assert.Len(t, notes.notes, 2)
}

func TestHandleEnvelopeRedisErrorFallback(t *testing.T) {
	broken := newFakeDedupRepository()
	broken.err = errors.New("connection refused")

	t.Run("process fallback lets the event through", func(t *testing.T) {
		repo := &recordingRuleRepository{rules: []automation.Rule{notifyAllRule("r1", "ws-1")}}
		svc, _, notes := newTestService(t, repo, broken, config.DeduplicationConfig{Enabled: true, OnRedisError: "process"})

		require.NoError(t, svc.handleEnvelope(context.Background(), envelope("evt-1")))
		assert.Len(t, notes.notes, 1)
	})

	t.Run("drop fallback discards the event", func(t *testing.T) {
		repo := &recordingRuleRepository{rules: []automation.Rule{notifyAllRule("r1", "ws-1")}}
		svc, _, notes := newTestService(t, repo, broken, config.DeduplicationConfig{Enabled: true, OnRedisError: "drop"})

		require.NoError(t, svc.handleEnvelope(context.Background(), envelope("evt-1")))
		assert.Empty(t, notes.notes)
		assert.Equal(t, 0, repo.queryCount())
	})
}

func TestHandleEnvelopeRejectsMalformed(t *testing.T) {
	repo := &recordingRuleRepository{}
	svc, _, _ := newTestService(t, repo, newFakeDedupRepository(), config.DeduplicationConfig{})

	env := envelope("evt-1")
	env.WorkspaceID = ""

	require.NoError(t, svc.handleEnvelope(context.Background(), env))
	assert.Equal(t, 0, repo.queryCount())
}

func TestHandleEnvelopeWorkspaceScoping(t *testing.T) {
	repo := &recordingRuleRepository{rules: []automation.Rule{notifyAllRule("r1", "ws-1")}}
	svc, logs, notes := newTestService(t, repo, newFakeDedupRepository(), config.DeduplicationConfig{})

	env := envelope("evt-1")
	env.WorkspaceID = "ws-2"

	require.NoError(t, svc.handleEnvelope(context.Background(), env))
	assert.Empty(t, notes.notes)
	assert.Empty(t, logs.logs)
}
