package management

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"plutus/internal/automation"
	pkgerrors "plutus/pkg/errors"
)

type Repository interface {
	CreateRule(ctx context.Context, rule *automation.Rule) error
	ListRules(ctx context.Context, workspaceID string) ([]automation.Rule, error)
	GetRule(ctx context.Context, workspaceID, id string) (*automation.Rule, error)
	UpdateRule(ctx context.Context, rule *automation.Rule) error
	DeleteRule(ctx context.Context, workspaceID, id string) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateRule(ctx context.Context, rule *automation.Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	conditionsJSON, actionsJSON, err := encodeRuleJSON(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO automation_rules (
			id, workspace_id, name, description, enabled, priority,
			entity_type, event, conditions, actions,
			stop_on_match, run_once, times_triggered, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.WorkspaceID, rule.Name, rule.Description, rule.Enabled, rule.Priority,
		rule.Trigger.EntityType, rule.Trigger.Event, conditionsJSON, actionsJSON,
		rule.StopOnMatch, rule.RunOnce, rule.TimesTriggered, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" {
				return pkgerrors.ErrConflict.WithCause(err).WithDetail("message", fmt.Sprintf("rule with name '%s' already exists", rule.Name))
			}
		}
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint") {
			return pkgerrors.ErrConflict.WithCause(err).WithDetail("message", fmt.Sprintf("rule with name '%s' already exists", rule.Name))
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	return nil
}

func (r *PostgresRepository) ListRules(ctx context.Context, workspaceID string) ([]automation.Rule, error) {
	query := ruleSelect + `
		WHERE workspace_id = $1
		ORDER BY priority DESC, created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []automation.Rule
	for rows.Next() {
		rule, err := scanManagedRule(rows)
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

func (r *PostgresRepository) GetRule(ctx context.Context, workspaceID, id string) (*automation.Rule, error) {
	query := ruleSelect + `
		WHERE workspace_id = $1 AND id = $2
	`

	rule, err := scanManagedRule(r.db.QueryRowContext(ctx, query, workspaceID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (r *PostgresRepository) UpdateRule(ctx context.Context, rule *automation.Rule) error {
	rule.UpdatedAt = time.Now().UTC()

	conditionsJSON, actionsJSON, err := encodeRuleJSON(rule)
	if err != nil {
		return err
	}

	query := `
		UPDATE automation_rules
		SET name = $3, description = $4, enabled = $5, priority = $6,
		    entity_type = $7, event = $8, conditions = $9, actions = $10,
		    stop_on_match = $11, run_once = $12, updated_at = $13
		WHERE workspace_id = $1 AND id = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		rule.WorkspaceID, rule.ID, rule.Name, rule.Description, rule.Enabled, rule.Priority,
		rule.Trigger.EntityType, rule.Trigger.Event, conditionsJSON, actionsJSON,
		rule.StopOnMatch, rule.RunOnce, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule not found: %s", rule.ID)
	}

	return nil
}

func (r *PostgresRepository) DeleteRule(ctx context.Context, workspaceID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM automation_rules WHERE workspace_id = $1 AND id = $2`, workspaceID, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule not found: %s", id)
	}

	return nil
}

const ruleSelect = `
	SELECT id, workspace_id, name, description, enabled, priority,
	       entity_type, event, conditions, actions,
	       stop_on_match, run_once, times_triggered, last_triggered_at,
	       created_at, updated_at
	FROM automation_rules
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanManagedRule(row rowScanner) (*automation.Rule, error) {
	var rule automation.Rule
	var description sql.NullString
	var lastTriggered sql.NullTime
	var conditionsJSON, actionsJSON []byte

	err := row.Scan(
		&rule.ID, &rule.WorkspaceID, &rule.Name, &description, &rule.Enabled, &rule.Priority,
		&rule.Trigger.EntityType, &rule.Trigger.Event, &conditionsJSON, &actionsJSON,
		&rule.StopOnMatch, &rule.RunOnce, &rule.TimesTriggered, &lastTriggered,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
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

func encodeRuleJSON(rule *automation.Rule) (conditions, actions []byte, err error) {
	conditions, err = json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode rule conditions: %w", err)
	}
	actions, err = json.Marshal(rule.Actions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode rule actions: %w", err)
	}
	return conditions, actions, nil
}
