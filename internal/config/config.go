package config

import (
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Broker     BrokerConfig
	Logging    LoggingConfig
	Automation AutomationConfig
	Ingest     IngestConfig
	Notify     NotifyConfig
	Management ManagementConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig
	Redis         RedisConfig
	MongoDB       MongoDBConfig
	RunMigrations bool   `mapstructure:"run_migrations"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers         []string    `mapstructure:"brokers"`
	GroupID         string      `mapstructure:"group_id"`
	EventTopic      string      `mapstructure:"event_topic"`
	RuleChangeTopic string      `mapstructure:"rule_change_topic"`
	DLQTopic        string      `mapstructure:"dlq_topic"`
	Retry           RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AutomationConfig struct {
	LogRetentionDays     int `mapstructure:"log_retention_days"`
	PruneIntervalMinutes int `mapstructure:"prune_interval_minutes"`
}

type IngestConfig struct {
	Deduplication DeduplicationConfig `mapstructure:"deduplication"`
}

// Deduplication guards the Kafka delivery path against redelivery: an event id
// seen within the TTL window is dropped before it reaches the engine.
type DeduplicationConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	TTLSeconds   int    `mapstructure:"ttl_seconds"`
	OnRedisError string `mapstructure:"on_redis_error"` // "process" or "drop" (default: "process")
}

type NotifyConfig struct {
	WebhookURL     string        `mapstructure:"webhook_url"`
	TimeoutSeconds time.Duration `mapstructure:"timeout_seconds"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
}

type ManagementConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	RPS             int  `mapstructure:"rps"`
	Burst           int  `mapstructure:"burst"`
	CleanupInterval int  `mapstructure:"cleanup_interval"`
	MaxAge          int  `mapstructure:"max_age"`
}
