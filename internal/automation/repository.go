package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// RuleRepository is the persistence contract the engine consumes. FindByTrigger
// must return enabled rules only.
type RuleRepository interface {
	FindByTrigger(ctx context.Context, workspaceID, entityType, event string) ([]Rule, error)
	UpdateStats(ctx context.Context, ruleID string) error
	Disable(ctx context.Context, ruleID string) error
}

type PostgresRuleRepository struct {
	db *sql.DB
}

func NewPostgresRuleRepository(db *sql.DB) *PostgresRuleRepository {
	return &PostgresRuleRepository{db: db}
}

func (r *PostgresRuleRepository) FindByTrigger(ctx context.Context, workspaceID, entityType, event string) ([]Rule, error) {
	query := `
		SELECT id, workspace_id, name, description, enabled, priority,
		       entity_type, event, conditions, actions,
		       stop_on_match, run_once, times_triggered, last_triggered_at,
		       created_at, updated_at
		FROM automation_rules
		WHERE workspace_id = $1 AND entity_type = $2 AND event = $3 AND enabled = true
		ORDER BY priority DESC, created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, workspaceID, entityType, event)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules by trigger: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}

	return rules, nil
}

func (r *PostgresRuleRepository) UpdateStats(ctx context.Context, ruleID string) error {
	query := `
		UPDATE automation_rules
		SET times_triggered = times_triggered + 1, last_triggered_at = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, ruleID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update rule stats: %w", err)
	}
	return nil
}

// Disable is idempotent: disabling an already-disabled rule is a no-op.
func (r *PostgresRuleRepository) Disable(ctx context.Context, ruleID string) error {
	query := `
		UPDATE automation_rules
		SET enabled = false, updated_at = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, ruleID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to disable rule: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var rule Rule
	var description sql.NullString
	var lastTriggered sql.NullTime
	var conditionsJSON, actionsJSON []byte

	err := row.Scan(
		&rule.ID, &rule.WorkspaceID, &rule.Name, &description, &rule.Enabled, &rule.Priority,
		&rule.Trigger.EntityType, &rule.Trigger.Event, &conditionsJSON, &actionsJSON,
		&rule.StopOnMatch, &rule.RunOnce, &rule.TimesTriggered, &lastTriggered,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	if description.Valid {
		rule.Description = description.String
	}
	if lastTriggered.Valid {
		t := lastTriggered.Time
		rule.LastTriggeredAt = &t
	}
	if err := json.Unmarshal(conditionsJSON, &rule.Conditions); err != nil {
		return nil, fmt.Errorf("failed to decode rule conditions: %w", err)
	}
	if err := json.Unmarshal(actionsJSON, &rule.Actions); err != nil {
		return nil, fmt.Errorf("failed to decode rule actions: %w", err)
	}

	return &rule, nil
}
