package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plutus/internal/config"
	"plutus/internal/ingest"
)

func TestRedisDeduplication(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	infra := SetupTestInfraWithOptions(t, false, false, true)
	repo := ingest.NewRepository(infra.RedisClient)
	ctx := context.Background()

	t.Run("SetNX claims a key once", func(t *testing.T) {
		unique, err := repo.SetNX(ctx, "automation:event:evt-1", time.Now().Unix(), time.Minute)
		require.NoError(t, err)
		assert.True(t, unique)

		unique, err = repo.SetNX(ctx, "automation:event:evt-1", time.Now().Unix(), time.Minute)
		require.NoError(t, err)
		assert.False(t, unique)
	})

	t.Run("claim expires after TTL", func(t *testing.T) {
		unique, err := repo.SetNX(ctx, "automation:event:evt-2", time.Now().Unix(), 100*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, unique)

		time.Sleep(200 * time.Millisecond)

		unique, err = repo.SetNX(ctx, "automation:event:evt-2", time.Now().Unix(), time.Minute)
		require.NoError(t, err)
		assert.True(t, unique)
	})

	t.Run("deduplicator end to end", func(t *testing.T) {
		dedup := ingest.NewDeduplicator(repo, config.DeduplicationConfig{
			Enabled:    true,
			TTLSeconds: 60,
		}, createTestLogger())

		assert.True(t, dedup.Claim(ctx, "evt-3"))
		assert.False(t, dedup.Claim(ctx, "evt-3"))
		assert.True(t, dedup.Claim(ctx, "evt-4"))
	})
}
