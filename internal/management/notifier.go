package management

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"plutus/internal/broker"
	"plutus/pkg/models"
)

// RuleEventProducer publishes rule configuration changes to the broker so that
// other engine processes can invalidate caches and UIs can refresh.
type RuleEventProducer struct {
	producer broker.Producer
	topic    string
}

func NewRuleEventProducer(producer broker.Producer, topic string) *RuleEventProducer {
	return &RuleEventProducer{
		producer: producer,
		topic:    topic,
	}
}

func (p *RuleEventProducer) PublishRuleEvent(ctx context.Context, action, workspaceID, ruleID, changedBy string) error {
	if p.producer == nil || p.topic == "" {
		return nil
	}

	event := models.RuleChangeEvent{
		EventType:   models.EventTypeAutomationRuleChanged,
		WorkspaceID: workspaceID,
		RuleID:      ruleID,
		Action:      action,
		Timestamp:   time.Now().UTC(),
		ChangedBy:   changedBy,
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal rule change event: %w", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(eventJSON, &payload); err != nil {
		return fmt.Errorf("failed to build rule change payload: %w", err)
	}

	envelope := models.EventEnvelope{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		EntityType:  "automation_rule",
		Event:       action,
		EntityID:    ruleID,
		Entity:      payload,
		Source:      "automation-service",
		Timestamp:   time.Now().UTC(),
	}

	return p.producer.Publish(ctx, p.topic, envelope)
}
