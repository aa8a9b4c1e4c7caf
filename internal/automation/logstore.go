package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"plutus/internal/constants"
)

// LogStore persists rule execution logs. Logs are append-only; Prune is the
// only deletion path.
type LogStore interface {
	CreateLog(ctx context.Context, entry *ExecutionLog) error
	ListLogs(ctx context.Context, workspaceID, ruleID string, limit int) ([]ExecutionLog, error)
	Prune(ctx context.Context, retentionDays int) (int64, error)
}

type MongoLogStore struct {
	collection *mongo.Collection
}

func NewMongoLogStore(db *mongo.Database) *MongoLogStore {
	return &MongoLogStore{
		collection: db.Collection("automation_execution_logs"),
	}
}

func (s *MongoLogStore) CreateLog(ctx context.Context, entry *ExecutionLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if _, err := s.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert execution log: %w", err)
	}
	return nil
}

func (s *MongoLogStore) ListLogs(ctx context.Context, workspaceID, ruleID string, limit int) ([]ExecutionLog, error) {
	if limit <= 0 || limit > constants.MaxLimit {
		limit = constants.DefaultLimit
	}

	filter := bson.M{"workspace_id": workspaceID}
	if ruleID != "" {
		filter["rule_id"] = ruleID
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find execution logs: %w", err)
	}
	defer cursor.Close(ctx)

	var logs []ExecutionLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode execution logs: %w", err)
	}

	return logs, nil
}

// Prune deletes logs older than the retention window and reports how many
// were removed.
func (s *MongoLogStore) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = constants.DefaultLogRetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	result, err := s.collection.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to prune execution logs: %w", err)
	}
	return result.DeletedCount, nil
}
