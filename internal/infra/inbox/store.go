package inbox

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/DanielNoblero/consultorios-app/internal/app/changes"
)

const collection = "app_inbox"

// Store records which relayed events a consumer group already applied.
// Entries expire after the retention window; redeliveries older than that
// are applied again, which only repeats an idempotent recalculation.
type Store struct {
	col      *mongo.Collection
	consumer string
}

func NewStore(db *mongo.Database, consumer string, retention time.Duration) *Store {
	col := db.Collection(collection)
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	_, _ = col.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "consumer", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "applied_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(int32(retention.Seconds()))},
	})
	return &Store{col: col, consumer: consumer}
}

func (s *Store) Seen(ctx context.Context, eventID string) (bool, error) {
	err := s.col.FindOne(ctx, bson.M{"event_id": eventID, "consumer": s.consumer}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return err == nil, err
}

// Remember tolerates a concurrent member of the group having stored the
// same id first.
func (s *Store) Remember(ctx context.Context, eventID, name string) error {
	_, err := s.col.InsertOne(ctx, bson.M{
		"event_id":   eventID,
		"consumer":   s.consumer,
		"event":      name,
		"applied_at": time.Now().UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

var _ changes.Deduper = (*Store)(nil)
