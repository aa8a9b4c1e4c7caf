package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"plutus/internal/automation"
)

func TestMongoLogStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	infra := SetupTestInfraWithOptions(t, false, true, false)
	store := automation.NewMongoLogStore(infra.MongoDB)
	ctx := context.Background()

	entry := createTestExecutionLog("ws-1", "rule-1", automation.StatusSuccess)
	entry.ActionsExecuted = []automation.ActionResult{
		{ActionID: "a1", ActionType: automation.ActionSetCategory, Success: true,
			Changes: map[string]automation.FieldChange{"categoryId": {From: nil, To: 42}}},
	}
	entry.EntitySnapshot = map[string]interface{}{"amount": -150.0, "payee": "Netflix"}
	require.NoError(t, store.CreateLog(ctx, entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())

	require.NoError(t, store.CreateLog(ctx, createTestExecutionLog("ws-1", "rule-2", automation.StatusSkipped)))
	require.NoError(t, store.CreateLog(ctx, createTestExecutionLog("ws-2", "rule-3", automation.StatusFailed)))

	t.Run("list is workspace scoped and newest first", func(t *testing.T) {
		logs, err := store.ListLogs(ctx, "ws-1", "", 10)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, "rule-2", logs[0].RuleID)
		assert.Equal(t, "rule-1", logs[1].RuleID)
	})

	t.Run("list filters by rule", func(t *testing.T) {
		logs, err := store.ListLogs(ctx, "ws-1", "rule-1", 10)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, automation.StatusSuccess, logs[0].Status)
		require.Len(t, logs[0].ActionsExecuted, 1)
		assert.True(t, logs[0].ActionsExecuted[0].Success)
		assert.Equal(t, "Netflix", logs[0].EntitySnapshot["payee"])
	})

	t.Run("prune removes logs older than retention", func(t *testing.T) {
		collection := infra.MongoDB.Collection("automation_execution_logs")

		old := createTestExecutionLog("ws-1", "rule-old", automation.StatusSuccess)
		require.NoError(t, store.CreateLog(ctx, old))
		_, err := collection.UpdateOne(ctx,
			bson.M{"_id": old.ID},
			bson.M{"$set": bson.M{"created_at": time.Now().UTC().AddDate(0, 0, -120)}},
		)
		require.NoError(t, err)

		deleted, err := store.Prune(ctx, 90)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		logs, err := store.ListLogs(ctx, "ws-1", "rule-old", 10)
		require.NoError(t, err)
		assert.Empty(t, logs)
	})
}
