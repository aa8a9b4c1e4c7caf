package automation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"plutus/internal/logger"
	"plutus/pkg/errors"
	"plutus/pkg/logging"
	"plutus/pkg/metrics"
)

// Engine orchestrates rule processing for one workspace: fetch candidate
// rules by trigger, evaluate conditions, execute actions, write audit logs,
// update statistics and apply run-once and stop-on-match policy. Automation is
// best-effort: no error from a pass ever propagates to the producing business
// operation.
type Engine struct {
	workspaceID string
	rules       RuleRepository
	logs        LogStore
	evaluator   *Evaluator
	executor    *Executor
	emitter     *Emitter
	services    *Services
	inGroup     GroupMembershipFunc
	logger      logger.Logger

	unsubscribes []func()
}

func NewEngine(workspaceID string, rules RuleRepository, logs LogStore, emitter *Emitter, services *Services, log logger.Logger) (*Engine, error) {
	evaluator, err := NewEvaluator(log)
	if err != nil {
		return nil, fmt.Errorf("failed to create condition evaluator: %w", err)
	}
	return &Engine{
		workspaceID: workspaceID,
		rules:       rules,
		logs:        logs,
		evaluator:   evaluator,
		executor:    NewExecutor(log),
		emitter:     emitter,
		services:    services,
		logger:      log,
	}, nil
}

// SetGroupMembership installs the category hierarchy resolver used by the
// inGroup operator. Without one the operator evaluates to false.
func (e *Engine) SetGroupMembership(fn GroupMembershipFunc) {
	e.inGroup = fn
}

// Subscribe attaches the engine to the emitter for every given entity type.
// The wildcard subscription covers all events for that type.
func (e *Engine) Subscribe(entityTypes ...string) {
	if e.emitter == nil {
		return
	}
	for _, entityType := range entityTypes {
		unsubscribe := e.emitter.OnAll(entityType, func(ctx context.Context, evt Event) {
			if evt.WorkspaceID != e.workspaceID {
				return
			}
			e.ProcessEvent(ctx, evt)
		})
		e.unsubscribes = append(e.unsubscribes, unsubscribe)
	}
}

// ProcessEvent is the fire-and-forget path from the event bus. Outcomes are
// visible only through logs and metrics.
func (e *Engine) ProcessEvent(ctx context.Context, evt Event) {
	result := e.runPass(ctx, evt, e.services)
	if len(result.Errors) > 0 {
		e.logger.WarnwCtx(ctx, "Rule pass completed with errors",
			"entity_type", evt.EntityType,
			"event", evt.Event,
			"errors", result.Errors,
		)
	}
}

// Trigger is the synchronous entry point for producing services that want to
// await completion and inspect aggregate counts. Supplying nil services opts
// out of side effects: matched rules still log, but every action reports a
// failure. Trigger never returns an error; failures land in the result's
// Errors slice.
func (e *Engine) Trigger(ctx context.Context, evt Event, services *Services) *TriggerResult {
	return e.runPass(ctx, evt, services)
}

func (e *Engine) runPass(ctx context.Context, evt Event, services *Services) *TriggerResult {
	ctx = logging.WithWorkspaceID(ctx, e.workspaceID)
	result := &TriggerResult{Errors: []string{}}
	passStart := time.Now()
	defer func() {
		metrics.ObserveAutomationPassDuration(evt.EntityType, evt.Event, time.Since(passStart))
	}()

	rules, err := e.rules.FindByTrigger(ctx, e.workspaceID, evt.EntityType, evt.Event)
	if err != nil {
		e.logger.ErrorwCtx(ctx, "Failed to fetch rules for trigger",
			"entity_type", evt.EntityType,
			"event", evt.Event,
			"error", err,
		)
		result.Errors = append(result.Errors, fmt.Sprintf("failed to fetch rules: %v", err))
		return result
	}

	// The repository already orders by priority; sorting again keeps the
	// contract honest for any repository implementation. Stable preserves
	// insertion order on ties.
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})

	for i := range rules {
		rule := rules[i]
		result.RulesEvaluated++

		matched, stop := e.processRule(ctx, &rule, evt, services, result)
		if matched {
			result.RulesMatched++
		}
		if stop {
			break
		}
	}

	return result
}

// processRule evaluates and, on match, executes one rule. Any panic or error
// is contained here so the pass continues with the next rule. It reports
// whether the rule matched and whether stop-on-match halts the pass.
func (e *Engine) processRule(ctx context.Context, rule *Rule, evt Event, services *Services, result *TriggerResult) (matched bool, stop bool) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.RecoverPanic(r)
			e.logger.ErrorwCtx(ctx, "Panic recovered while processing rule",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"error", err,
			)
			result.Errors = append(result.Errors, fmt.Sprintf("rule %s: %v", rule.ID, err))
		}
	}()

	start := time.Now()
	matched = e.evaluator.EvaluateGroup(ctx, rule.Conditions, evt.Entity, EvalContext{
		EntityType: evt.EntityType,
		Event:      evt.Event,
		Previous:   evt.PreviousState,
		InGroup:    e.inGroup,
	})

	outcome := "matched"
	if !matched {
		outcome = "skipped"
	}
	metrics.AutomationRulesEvaluatedTotal.WithLabelValues(evt.EntityType, evt.Event, outcome).Inc()

	if !matched {
		e.writeLog(ctx, rule, evt, &ExecutionLog{
			Status:            StatusSkipped,
			ConditionsMatched: false,
			ExecutionTimeMs:   time.Since(start).Milliseconds(),
		}, result)
		return false, false
	}

	actionResults := e.executor.Execute(ctx, ExecRequest{
		Actions:     rule.Actions,
		Entity:      evt.Entity,
		EntityType:  evt.EntityType,
		EntityID:    evt.EntityID,
		WorkspaceID: e.workspaceID,
		Services:    services,
	})
	result.ActionsExecuted += len(actionResults)

	allSucceeded := true
	var firstError string
	for _, ar := range actionResults {
		if !ar.Success {
			allSucceeded = false
			if firstError == "" {
				firstError = ar.Error
			}
			result.Errors = append(result.Errors, fmt.Sprintf("rule %s action %s: %s", rule.ID, ar.ActionType, ar.Error))
		}
	}

	status := StatusSuccess
	if !allSucceeded {
		status = StatusFailed
	}
	e.writeLog(ctx, rule, evt, &ExecutionLog{
		Status:            status,
		ConditionsMatched: true,
		ActionsExecuted:   actionResults,
		ExecutionTimeMs:   time.Since(start).Milliseconds(),
		ErrorMessage:      firstError,
	}, result)

	if err := e.rules.UpdateStats(ctx, rule.ID); err != nil {
		e.logger.ErrorwCtx(ctx, "Failed to update rule statistics",
			"rule_id", rule.ID,
			"error", err,
		)
		result.Errors = append(result.Errors, fmt.Sprintf("rule %s: failed to update stats: %v", rule.ID, err))
	}

	if rule.RunOnce && allSucceeded {
		if err := e.rules.Disable(ctx, rule.ID); err != nil {
			e.logger.ErrorwCtx(ctx, "Failed to disable run-once rule",
				"rule_id", rule.ID,
				"error", err,
			)
			result.Errors = append(result.Errors, fmt.Sprintf("rule %s: failed to disable: %v", rule.ID, err))
		} else {
			e.logger.InfowCtx(ctx, "Run-once rule disabled after successful execution",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
			)
		}
	}

	return true, rule.StopOnMatch
}

func (e *Engine) writeLog(ctx context.Context, rule *Rule, evt Event, entry *ExecutionLog, result *TriggerResult) {
	entry.WorkspaceID = e.workspaceID
	entry.RuleID = rule.ID
	entry.RuleName = rule.Name
	entry.TriggerEvent = evt.Event
	entry.EntityType = evt.EntityType
	entry.EntityID = evt.EntityID
	entry.EntitySnapshot = evt.Entity

	if err := e.logs.CreateLog(ctx, entry); err != nil {
		e.logger.ErrorwCtx(ctx, "Failed to write execution log",
			"rule_id", rule.ID,
			"status", entry.Status,
			"error", err,
		)
		result.Errors = append(result.Errors, fmt.Sprintf("rule %s: failed to write log: %v", rule.ID, err))
	}
}

// TestRule dry-runs a rule against a sample entity: conditions evaluate for
// real, actions report what they would do without invoking any handler, and
// nothing is persisted.
func (e *Engine) TestRule(ctx context.Context, rule *Rule, entity Entity) *RuleTestResult {
	matched := e.evaluator.EvaluateGroup(ctx, rule.Conditions, entity, EvalContext{
		EntityType: rule.Trigger.EntityType,
		Event:      rule.Trigger.Event,
		InGroup:    e.inGroup,
	})
	if !matched {
		return &RuleTestResult{Matched: false}
	}

	actions := e.executor.Execute(ctx, ExecRequest{
		Actions:     rule.Actions,
		Entity:      entity,
		EntityType:  rule.Trigger.EntityType,
		WorkspaceID: e.workspaceID,
		DryRun:      true,
	})
	return &RuleTestResult{Matched: true, Actions: actions}
}

// destroy unsubscribes every emitter listener. Called via the registry.
func (e *Engine) destroy() {
	for _, unsubscribe := range e.unsubscribes {
		unsubscribe()
	}
	e.unsubscribes = nil
}
