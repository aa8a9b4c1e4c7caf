package management

import (
	"context"
	"encoding/json"

	"plutus/internal/automation"
	"plutus/internal/constants"
	pkgerrors "plutus/pkg/errors"
	"plutus/pkg/models"
)

type Service interface {
	CreateRule(ctx context.Context, workspaceID string, req CreateAutomationRuleRequest) (*AutomationRule, error)
	ListRules(ctx context.Context, workspaceID string) ([]AutomationRule, error)
	GetRule(ctx context.Context, workspaceID, id string) (*AutomationRule, error)
	UpdateRule(ctx context.Context, workspaceID, id string, req UpdateAutomationRuleRequest) (*AutomationRule, error)
	DeleteRule(ctx context.Context, workspaceID, id string) error

	TestRule(ctx context.Context, workspaceID, id string, req TestRuleRequest) (*automation.RuleTestResult, error)
	TestDraft(ctx context.Context, workspaceID string, req TestDraftRequest) (*automation.RuleTestResult, error)
	ListExecutions(ctx context.Context, workspaceID, ruleID string, limit int) ([]automation.ExecutionLog, error)

	GetRuleVersions(ctx context.Context, ruleID string) ([]RuleVersion, error)
	GetAuditLogs(ctx context.Context, workspaceID string, ruleID *string, limit int) ([]AuditLog, error)
}

type service struct {
	repo           Repository
	engines        *automation.Registry
	executionLogs  automation.LogStore
	versioningRepo VersioningRepository
	ruleEvents     *RuleEventProducer
	auditEnabled   bool
}

type ServiceOption func(*service)

func WithVersioning(versioningRepo VersioningRepository) ServiceOption {
	return func(s *service) {
		s.versioningRepo = versioningRepo
		s.auditEnabled = true
	}
}

func WithRuleEvents(producer *RuleEventProducer) ServiceOption {
	return func(s *service) {
		s.ruleEvents = producer
	}
}

func WithExecutionLogs(logs automation.LogStore) ServiceOption {
	return func(s *service) {
		s.executionLogs = logs
	}
}

func NewService(repo Repository, engines *automation.Registry, opts ...ServiceOption) Service {
	s := &service{
		repo:    repo,
		engines: engines,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) CreateRule(ctx context.Context, workspaceID string, req CreateAutomationRuleRequest) (*AutomationRule, error) {
	if err := ValidateAutomationRule(req); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	rule := &automation.Rule{
		WorkspaceID: workspaceID,
		Name:        req.Name,
		Description: req.Description,
		Enabled:     getEnabledValue(req.Enabled),
		Priority:    req.Priority,
		Trigger:     req.Trigger,
		Conditions:  req.Conditions,
		Actions:     req.Actions,
		StopOnMatch: req.StopOnMatch,
		RunOnce:     req.RunOnce,
	}

	if err := s.repo.CreateRule(ctx, rule); err != nil {
		if pkgerrors.IsConflict(err) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	s.createVersionAndAudit(ctx, rule, models.ActionCreate, nil)
	s.publishRuleEvent(ctx, models.ActionCreate, workspaceID, rule.ID)

	return toAPIRule(rule), nil
}

func (s *service) ListRules(ctx context.Context, workspaceID string) ([]AutomationRule, error) {
	domainRules, err := s.repo.ListRules(ctx, workspaceID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	rules := make([]AutomationRule, len(domainRules))
	for i := range domainRules {
		rules[i] = *toAPIRule(&domainRules[i])
	}
	return rules, nil
}

func (s *service) GetRule(ctx context.Context, workspaceID, id string) (*AutomationRule, error) {
	rule, err := s.repo.GetRule(ctx, workspaceID, id)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if rule == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	return toAPIRule(rule), nil
}

func (s *service) UpdateRule(ctx context.Context, workspaceID, id string, req UpdateAutomationRuleRequest) (*AutomationRule, error) {
	rule, err := s.repo.GetRule(ctx, workspaceID, id)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if rule == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}

	if err := ValidateUpdateAutomationRule(req, rule); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	oldValue := ruleToMap(rule)
	applyRuleUpdate(rule, req)

	if err := s.repo.UpdateRule(ctx, rule); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	s.createVersionAndAudit(ctx, rule, models.ActionUpdate, oldValue)
	s.publishRuleEvent(ctx, models.ActionUpdate, workspaceID, rule.ID)

	return toAPIRule(rule), nil
}

func (s *service) DeleteRule(ctx context.Context, workspaceID, id string) error {
	rule, err := s.repo.GetRule(ctx, workspaceID, id)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if rule == nil {
		return pkgerrors.ErrNotFound.WithDetail("id", id)
	}

	oldValue := ruleToMap(rule)

	if err := s.repo.DeleteRule(ctx, workspaceID, id); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	if s.auditEnabled && s.versioningRepo != nil {
		_ = s.versioningRepo.CreateAuditLog(ctx, &AuditLog{
			RuleID:      &id,
			WorkspaceID: workspaceID,
			Action:      models.ActionDelete,
			OldValue:    oldValue,
			ChangedBy:   getChangedBy(ctx),
		})
	}

	s.publishRuleEvent(ctx, models.ActionDelete, workspaceID, id)
	return nil
}

func (s *service) TestRule(ctx context.Context, workspaceID, id string, req TestRuleRequest) (*automation.RuleTestResult, error) {
	rule, err := s.repo.GetRule(ctx, workspaceID, id)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if rule == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}

	engine, err := s.engines.GetEngine(workspaceID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return engine.TestRule(ctx, rule, req.Entity), nil
}

func (s *service) TestDraft(ctx context.Context, workspaceID string, req TestDraftRequest) (*automation.RuleTestResult, error) {
	if err := validateTrigger(req.Trigger); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}
	if err := validateConditionGroup(req.Conditions); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}
	// A draft may test conditions alone, so an empty action list is allowed.
	if err := validateActions(req.Actions, req.Trigger.EntityType); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	engine, err := s.engines.GetEngine(workspaceID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	rule := &automation.Rule{
		WorkspaceID: workspaceID,
		Trigger:     req.Trigger,
		Conditions:  req.Conditions,
		Actions:     req.Actions,
	}
	return engine.TestRule(ctx, rule, req.Entity), nil
}

func (s *service) ListExecutions(ctx context.Context, workspaceID, ruleID string, limit int) ([]automation.ExecutionLog, error) {
	if s.executionLogs == nil {
		return nil, pkgerrors.ErrInternal.WithDetail("message", "execution log store not configured")
	}
	logs, err := s.executionLogs.ListLogs(ctx, workspaceID, ruleID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return logs, nil
}

func (s *service) GetRuleVersions(ctx context.Context, ruleID string) ([]RuleVersion, error) {
	if s.versioningRepo == nil {
		return nil, pkgerrors.ErrInternal.WithDetail("message", "versioning not enabled")
	}
	versions, err := s.versioningRepo.GetVersions(ctx, ruleID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return versions, nil
}

func (s *service) GetAuditLogs(ctx context.Context, workspaceID string, ruleID *string, limit int) ([]AuditLog, error) {
	if s.versioningRepo == nil {
		return nil, pkgerrors.ErrInternal.WithDetail("message", "audit logging not enabled")
	}
	if limit <= 0 || limit > constants.MaxLimit {
		limit = constants.DefaultLimit
	}
	logs, err := s.versioningRepo.GetAuditLogs(ctx, workspaceID, ruleID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return logs, nil
}

func (s *service) createVersionAndAudit(ctx context.Context, rule *automation.Rule, action string, oldValue map[string]interface{}) {
	if !s.auditEnabled || s.versioningRepo == nil {
		return
	}

	ruleJSON, err := json.Marshal(rule)
	if err != nil {
		return
	}

	version := 1
	if nextVersion, err := s.versioningRepo.GetNextVersion(ctx, rule.ID); err == nil {
		version = nextVersion
	}

	if err := s.versioningRepo.CreateVersion(ctx, &RuleVersion{
		RuleID:      rule.ID,
		WorkspaceID: rule.WorkspaceID,
		RuleData:    string(ruleJSON),
		Version:     version,
		ChangedBy:   getChangedBy(ctx),
	}); err != nil {
		return
	}

	_ = s.versioningRepo.CreateAuditLog(ctx, &AuditLog{
		RuleID:      &rule.ID,
		WorkspaceID: rule.WorkspaceID,
		Action:      action,
		OldValue:    oldValue,
		NewValue:    ruleToMap(rule),
		ChangedBy:   getChangedBy(ctx),
	})
}

func (s *service) publishRuleEvent(ctx context.Context, action, workspaceID, ruleID string) {
	if s.ruleEvents != nil {
		_ = s.ruleEvents.PublishRuleEvent(ctx, action, workspaceID, ruleID, getChangedBy(ctx))
	}
}

func applyRuleUpdate(rule *automation.Rule, req UpdateAutomationRuleRequest) {
	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Trigger != nil {
		rule.Trigger = *req.Trigger
	}
	if req.Conditions != nil {
		rule.Conditions = *req.Conditions
	}
	if req.Actions != nil {
		rule.Actions = *req.Actions
	}
	if req.StopOnMatch != nil {
		rule.StopOnMatch = *req.StopOnMatch
	}
	if req.RunOnce != nil {
		rule.RunOnce = *req.RunOnce
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
}

func toAPIRule(rule *automation.Rule) *AutomationRule {
	return &AutomationRule{
		ID:              rule.ID,
		WorkspaceID:     rule.WorkspaceID,
		Name:            rule.Name,
		Description:     rule.Description,
		Enabled:         rule.Enabled,
		Priority:        rule.Priority,
		Trigger:         rule.Trigger,
		Conditions:      rule.Conditions,
		Actions:         rule.Actions,
		StopOnMatch:     rule.StopOnMatch,
		RunOnce:         rule.RunOnce,
		TimesTriggered:  rule.TimesTriggered,
		LastTriggeredAt: rule.LastTriggeredAt,
		CreatedAt:       rule.CreatedAt,
		UpdatedAt:       rule.UpdatedAt,
	}
}

func ruleToMap(rule *automation.Rule) map[string]interface{} {
	data, err := json.Marshal(rule)
	if err != nil {
		return nil
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

func getEnabledValue(reqEnabled *bool) bool {
	if reqEnabled == nil {
		return true
	}
	return *reqEnabled
}

func getChangedBy(ctx context.Context) string {
	if userID := ctx.Value("user_id"); userID != nil {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return "system"
}
