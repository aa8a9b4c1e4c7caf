package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixEvent = "automation:event:"
)

const (
	DefaultEventTopic      = "domain_events"
	DefaultRuleChangeTopic = "rule_change_events"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	DefaultMongoDBName = "plutus"
)

const (
	DefaultLogRetentionDays  = 90
	DefaultPruneIntervalMins = 60
	DefaultDedupTTLSeconds   = 3600
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

// Fallback behavior when the dedup store is unreachable.
const (
	FallbackProcess = "process"
	FallbackDrop    = "drop"
)
