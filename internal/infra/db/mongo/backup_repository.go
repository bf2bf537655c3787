package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbackup "github.com/DanielNoblero/consultorios-app/internal/domain/backup"
)

type BackupRepository struct {
	col *mongo.Collection
}

func (r *BackupRepository) ByID(ctx context.Context, id domainbackup.BackupID) (*domainbackup.Backup, error) {
	var doc backupDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbackup.ErrBackupNotFound
		}
		return nil, err
	}
	return doc.toAggregate()
}

func (r *BackupRepository) Create(ctx context.Context, b *domainbackup.Backup) error {
	_, err := r.col.InsertOne(ctx, newBackupDocument(b))
	return err
}

// MarkRestored flips the flag only from false to true, so two concurrent
// restores of one backup cannot both succeed.
func (r *BackupRepository) MarkRestored(ctx context.Context, id domainbackup.BackupID, at time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": string(id), "restored": false},
		bson.M{"$set": bson.M{"restored": true, "restored_at": at.UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := r.ByID(ctx, id); err != nil {
		return err
	}
	return domainbackup.ErrAlreadyRestored
}

func (r *BackupRepository) List(ctx context.Context, filter domainbackup.ListFilter) ([]*domainbackup.Backup, error) {
	q := bson.M{}
	if filter.OwnerID != "" {
		q["snapshot.owner_id"] = filter.OwnerID
	}
	if !filter.IncludeRestored {
		q["restored"] = false
	}
	opts := options.Find().SetSort(bson.D{{Key: "deleted_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cur, err := r.col.Find(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*domainbackup.Backup
	for cur.Next(ctx) {
		var doc backupDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		b, err := doc.toAggregate()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, cur.Err()
}

var _ domainbackup.Repository = (*BackupRepository)(nil)
