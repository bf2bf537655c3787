package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	bookingsCollection = "bookings"
	backupsCollection  = "booking_backups"
	configCollection   = "config"
	profilesCollection = "profiles"
	claimsCollection   = "identity_claims"
)

type Client struct {
	DB *mongo.Database
}

func New(uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, nil)
}

func (c *Client) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}

// EnsureIndexes creates the indexes the repositories rely on. The unique
// slot index is what turns a concurrent double booking into ErrDuplicateSlot.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		bookingsCollection: {
			{
				Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "date", Value: 1}, {Key: "start_time", Value: 1}, {Key: "end_time", Value: 1}, {Key: "room", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("slot_unique"),
			},
			{Keys: bson.D{{Key: "date", Value: 1}, {Key: "room", Value: 1}}},
			{Keys: bson.D{{Key: "series_id", Value: 1}}, Options: options.Index().SetSparse(true)},
			{Keys: bson.D{{Key: "paid", Value: 1}, {Key: "date", Value: 1}}},
		},
		backupsCollection: {
			{Keys: bson.D{{Key: "snapshot.owner_id", Value: 1}, {Key: "deleted_at", Value: -1}}},
		},
		profilesCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for name, models := range specs {
		if _, err := c.DB.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: indexes on %s: %w", name, err)
		}
	}
	return nil
}
