package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const executionLogsCollection = "automation_execution_logs"

// EnsureExecutionLogsCollection creates the indexes the log store queries and
// prunes by. Safe to call on every startup.
func EnsureExecutionLogsCollection(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection(executionLogsCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "workspace_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_execution_logs_workspace_created"),
		},
		{
			Keys:    bson.D{{Key: "workspace_id", Value: 1}, {Key: "rule_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_execution_logs_rule_created"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_execution_logs_created"),
		},
	}

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create execution log indexes: %w", err)
		}
	}
	return nil
}
