package models

import "time"

// EventEnvelope is the wire format for domain events: a producing service
// publishes the full current-state record as an untyped map, plus the previous
// state for update events.
type EventEnvelope struct {
	ID            string                 `json:"id"`
	WorkspaceID   string                 `json:"workspace_id"`
	EntityType    string                 `json:"entity_type"`
	Event         string                 `json:"event"`
	EntityID      string                 `json:"entity_id,omitempty"`
	Entity        map[string]interface{} `json:"entity"`
	PreviousState map[string]interface{} `json:"previous_state,omitempty"`
	Source        string                 `json:"source,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      Metadata               `json:"metadata"`
}

type Metadata struct {
	TraceID string `json:"trace_id,omitempty"`

	// DLQ fields are set by the consumer before a failed message is
	// republished to the dead letter topic.
	DLQReason      string `json:"dlq_reason,omitempty"`
	DLQSourceTopic string `json:"dlq_source_topic,omitempty"`
	DLQTimestamp   string `json:"dlq_timestamp,omitempty"`
}
