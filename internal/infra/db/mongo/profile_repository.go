package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainpricing "github.com/DanielNoblero/consultorios-app/internal/domain/pricing"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
)

const pricingConfigID = "pricing"

type ConfigRepository struct {
	col *mongo.Collection
}

// Get returns the stored table, or the defaults when none was saved yet.
func (r *ConfigRepository) Get(ctx context.Context) (domainpricing.Config, error) {
	var doc configDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": pricingConfigID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domainpricing.Defaults(), nil
		}
		return domainpricing.Config{}, err
	}
	return doc.toConfig(), nil
}

func (r *ConfigRepository) Save(ctx context.Context, cfg domainpricing.Config) error {
	doc := newConfigDocument(cfg)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

type ProfileRepository struct {
	col *mongo.Collection
}

func (r *ProfileRepository) ByID(ctx context.Context, id domainuser.ID) (*domainuser.Profile, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

func (r *ProfileRepository) ByEmail(ctx context.Context, email string) (*domainuser.Profile, error) {
	return r.findOne(ctx, bson.M{"email": domainuser.NormalizeEmail(email)})
}

func (r *ProfileRepository) findOne(ctx context.Context, filter bson.M) (*domainuser.Profile, error) {
	var doc profileDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainuser.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ProfileRepository) Save(ctx context.Context, profile *domainuser.Profile) error {
	if profile.ID == "" {
		return domainuser.ErrIDRequired
	}
	doc := newProfileDocument(profile)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

// ClaimsSyncer mirrors role claims into the identity collection read by the
// token issuer. Called with a unit's exec context the write joins that
// transaction, so a rolled back role change never leaves claims behind.
type ClaimsSyncer struct {
	col *mongo.Collection
}

func NewClaimsSyncer(db *mongo.Database) *ClaimsSyncer {
	return &ClaimsSyncer{col: db.Collection(claimsCollection)}
}

func (s *ClaimsSyncer) SyncClaims(ctx context.Context, id domainuser.ID, claims domainuser.Claims) error {
	_, err := s.col.UpdateByID(ctx, string(id), bson.M{"$set": bson.M{
		"role":       string(claims.Role),
		"admin":      claims.Admin,
		"updated_at": time.Now().UTC(),
	}}, options.Update().SetUpsert(true))
	return err
}

var (
	_ domainpricing.ConfigRepository = (*ConfigRepository)(nil)
	_ domainuser.Repository          = (*ProfileRepository)(nil)
	_ domainuser.ClaimsSyncer        = (*ClaimsSyncer)(nil)
)
