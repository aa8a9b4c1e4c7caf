package ingest

import (
	"context"

	"plutus/internal/automation"
	"plutus/internal/broker"
	"plutus/internal/logger"
	"plutus/pkg/metrics"
	"plutus/pkg/models"
)

// Service consumes domain events from the broker and feeds them to the
// per-workspace automation engines. Rule failures never nack a message:
// automation is best-effort, so a message is only retried when the engine
// itself cannot be obtained.
type Service struct {
	consumer broker.Consumer
	registry *automation.Registry
	services *automation.Services
	dedup    *Deduplicator
	topic    string
	logger   logger.Logger
}

func NewService(consumer broker.Consumer, registry *automation.Registry, services *automation.Services, dedup *Deduplicator, topic string, log logger.Logger) *Service {
	consumer.SetServiceName("ingest")
	return &Service{
		consumer: consumer,
		registry: registry,
		services: services,
		dedup:    dedup,
		topic:    topic,
		logger:   log,
	}
}

// Run blocks consuming the event topic until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Infow("Starting ingest consumer", "topic", s.topic)
	return s.consumer.Consume(ctx, s.topic, s.handleEnvelope)
}

func (s *Service) handleEnvelope(ctx context.Context, env models.EventEnvelope) error {
	if env.WorkspaceID == "" || env.EntityType == "" || env.Event == "" {
		metrics.IngestEventsTotal.WithLabelValues("invalid").Inc()
		s.logger.WarnwCtx(ctx, "Discarding malformed event envelope",
			"event_id", env.ID,
			"entity_type", env.EntityType,
			"event", env.Event,
		)
		return nil
	}

	if !s.dedup.Claim(ctx, env.ID) {
		metrics.IngestEventsTotal.WithLabelValues("duplicate").Inc()
		s.logger.DebugwCtx(ctx, "Discarding duplicate event", "event_id", env.ID)
		return nil
	}

	engine, err := s.registry.GetEngine(env.WorkspaceID)
	if err != nil {
		metrics.IngestEventsTotal.WithLabelValues("error").Inc()
		return err
	}

	result := engine.Trigger(ctx, automation.Event{
		EntityType:    env.EntityType,
		Event:         env.Event,
		EntityID:      env.EntityID,
		Entity:        env.Entity,
		PreviousState: env.PreviousState,
		WorkspaceID:   env.WorkspaceID,
		Timestamp:     env.Timestamp,
	}, s.services)

	metrics.IngestEventsTotal.WithLabelValues("processed").Inc()
	if len(result.Errors) > 0 {
		s.logger.WarnwCtx(ctx, "Rule pass completed with errors",
			"event_id", env.ID,
			"entity_type", env.EntityType,
			"event", env.Event,
			"rules_evaluated", result.RulesEvaluated,
			"rules_matched", result.RulesMatched,
			"errors", result.Errors,
		)
		return nil
	}

	s.logger.DebugwCtx(ctx, "Event processed",
		"event_id", env.ID,
		"rules_evaluated", result.RulesEvaluated,
		"rules_matched", result.RulesMatched,
		"actions_executed", result.ActionsExecuted,
	)
	return nil
}

// Close shuts down the underlying consumer.
func (s *Service) Close() error {
	return s.consumer.Close()
}
