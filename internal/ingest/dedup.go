package ingest

import (
	"context"
	"time"

	"plutus/internal/config"
	"plutus/internal/constants"
	"plutus/internal/logger"
)

// Deduplicator guards the Kafka delivery path against redelivery. An event id
// claimed once stays claimed for the TTL window; later deliveries of the same
// id report as duplicates.
type Deduplicator struct {
	repo   Repository
	cfg    config.DeduplicationConfig
	logger logger.Logger
}

func NewDeduplicator(repo Repository, cfg config.DeduplicationConfig, log logger.Logger) *Deduplicator {
	if cfg.TTLSeconds <= 0 {
		cfg.TTLSeconds = constants.DefaultDedupTTLSeconds
	}
	return &Deduplicator{repo: repo, cfg: cfg, logger: log}
}

// Claim reports whether the event id is seen for the first time. When Redis is
// unreachable the configured fallback decides: "drop" treats the event as a
// duplicate, anything else lets it through for at-least-once processing.
func (d *Deduplicator) Claim(ctx context.Context, eventID string) bool {
	if !d.cfg.Enabled || eventID == "" {
		return true
	}

	key := constants.CacheKeyPrefixEvent + eventID
	ttl := time.Duration(d.cfg.TTLSeconds) * time.Second

	unique, err := d.repo.SetNX(ctx, key, time.Now().Unix(), ttl)
	if err != nil {
		if d.cfg.OnRedisError == constants.FallbackDrop {
			d.logger.WarnwCtx(ctx, "Redis error during dedup check, dropping event (fallback: drop)",
				"event_id", eventID,
				"error", err,
			)
			return false
		}
		d.logger.WarnwCtx(ctx, "Redis error during dedup check, processing event (fallback: process)",
			"event_id", eventID,
			"error", err,
		)
		return true
	}
	return unique
}
