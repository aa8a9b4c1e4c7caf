package automation

import (
	"sync"

	"plutus/internal/logger"
	"plutus/pkg/metrics"
)

// AllEntityTypes lists every entity type engines subscribe to by default.
var AllEntityTypes = []string{
	EntityTransaction, EntityAccount, EntityPayee, EntityCategory,
	EntityBudget, EntitySchedule, EntitySubscription,
}

// Registry owns one engine per workspace. The mutex matters: engines are
// created lazily from concurrent request and consumer goroutines, and Destroy
// can race with GetEngine for the same workspace.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*Engine

	rules    RuleRepository
	logs     LogStore
	emitter  *Emitter
	services *Services
	inGroup  GroupMembershipFunc
	logger   logger.Logger
}

func NewRegistry(rules RuleRepository, logs LogStore, emitter *Emitter, services *Services, log logger.Logger) *Registry {
	return &Registry{
		engines:  make(map[string]*Engine),
		rules:    rules,
		logs:     logs,
		emitter:  emitter,
		services: services,
		logger:   log,
	}
}

// SetGroupMembership installs the category hierarchy resolver on the registry
// and on every engine created afterwards.
func (r *Registry) SetGroupMembership(fn GroupMembershipFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inGroup = fn
	for _, engine := range r.engines {
		engine.SetGroupMembership(fn)
	}
}

// GetEngine returns the workspace's engine, creating and subscribing it on
// first use. One engine per workspace avoids duplicate event subscriptions.
func (r *Registry) GetEngine(workspaceID string) (*Engine, error) {
	r.mu.RLock()
	engine, ok := r.engines[workspaceID]
	r.mu.RUnlock()
	if ok {
		return engine, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if engine, ok := r.engines[workspaceID]; ok {
		return engine, nil
	}

	engine, err := NewEngine(workspaceID, r.rules, r.logs, r.emitter, r.services, r.logger)
	if err != nil {
		return nil, err
	}
	if r.inGroup != nil {
		engine.SetGroupMembership(r.inGroup)
	}
	engine.Subscribe(AllEntityTypes...)
	r.engines[workspaceID] = engine
	metrics.SetActiveEngines(len(r.engines))

	r.logger.Infow("Created automation engine", "workspace_id", workspaceID)
	return engine, nil
}

// Destroy unsubscribes the workspace's engine from the emitter and removes it.
// Destroying an unknown workspace is a no-op.
func (r *Registry) Destroy(workspaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	engine, ok := r.engines[workspaceID]
	if !ok {
		return
	}
	engine.destroy()
	delete(r.engines, workspaceID)
	metrics.SetActiveEngines(len(r.engines))

	r.logger.Infow("Destroyed automation engine", "workspace_id", workspaceID)
}

// DestroyAll tears down every engine, for shutdown and test cleanup.
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for workspaceID, engine := range r.engines {
		engine.destroy()
		delete(r.engines, workspaceID)
	}
	metrics.SetActiveEngines(0)
}

// Count reports the number of live engines.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}
