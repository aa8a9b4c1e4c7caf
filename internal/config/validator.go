package config

import (
	"fmt"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateIngest(cfg.Ingest); err != nil {
		errors = append(errors, err)
	}

	if err := validateAutomation(cfg.Automation); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if cfg.Type == "" {
		// The broker is optional: without it the synchronous trigger path and
		// the management API still work.
		return nil
	}

	if cfg.Type != "kafka" {
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unsupported broker type: %s", cfg.Type),
		}
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one broker address is required",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "postgres host is required",
		}
	}

	if cfg.MongoDB.URI == "" {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "mongodb uri is required for execution logs",
		}
	}

	return nil
}

func validateIngest(cfg IngestConfig) error {
	if !cfg.Deduplication.Enabled {
		return nil
	}

	if cfg.Deduplication.TTLSeconds <= 0 {
		return &ValidationError{
			Field:   "ingest.deduplication.ttl_seconds",
			Message: "ttl must be positive when deduplication is enabled",
		}
	}

	switch cfg.Deduplication.OnRedisError {
	case "", "process", "drop":
	default:
		return &ValidationError{
			Field:   "ingest.deduplication.on_redis_error",
			Message: fmt.Sprintf("must be 'process' or 'drop', got %q", cfg.Deduplication.OnRedisError),
		}
	}

	return nil
}

func validateAutomation(cfg AutomationConfig) error {
	if cfg.LogRetentionDays < 0 {
		return &ValidationError{
			Field:   "automation.log_retention_days",
			Message: "retention must be non-negative",
		}
	}

	return nil
}
