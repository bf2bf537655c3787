package outbox

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appoutbox "github.com/DanielNoblero/consultorios-app/internal/app/outbox"
)

const collection = "app_outbox"

const (
	stateNew     = "NEW"
	stateClaimed = "CLAIMED"
	stateSent    = "SENT"
	stateFailed  = "FAILED"
	// stateParked holds records that kept failing; an operator requeues them
	// by resetting state to NEW.
	stateParked = "PARKED"
)

// StoreOptions tunes leasing and retention. Zero values pick the defaults.
type StoreOptions struct {
	// Lease is how long a claim stays exclusive. Records claimed by a worker
	// that died are claimable again afterwards.
	Lease       time.Duration
	MaxAttempts int
	// Retention is how long sent records are kept.
	Retention time.Duration
}

func (o StoreOptions) withDefaults() StoreOptions {
	if o.Lease <= 0 {
		o.Lease = time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 20
	}
	if o.Retention <= 0 {
		o.Retention = 72 * time.Hour
	}
	return o
}

// Store is the MongoDB outbox for booking and pricing events. Add writes
// through the caller's ctx, so a session bound ctx commits the record with
// the booking writes that raised it.
type Store struct {
	col  *mongo.Collection
	opts StoreOptions
}

func NewStore(db *mongo.Database, opts StoreOptions) *Store {
	opts = opts.withDefaults()
	col := db.Collection(collection)
	_, _ = col.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "next_attempt_at", Value: 1}}},
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "claimed_at", Value: 1}}},
		{
			Keys: bson.D{{Key: "sent_at", Value: 1}},
			Options: options.Index().
				SetExpireAfterSeconds(int32(opts.Retention.Seconds())).
				SetPartialFilterExpression(bson.M{"state": stateSent}),
		},
	})
	return &Store{col: col, opts: opts}
}

// EventDocument is the stored form of an outbox record.
type EventDocument struct {
	ID          string            `bson:"_id"`
	Name        string            `bson:"name"`
	Payload     []byte            `bson:"payload"`
	OccurredAt  time.Time         `bson:"occurred_at"`
	Aggregate   string            `bson:"aggregate"`
	Headers     map[string]string `bson:"headers"`
	State       string            `bson:"state"`
	Attempts    int               `bson:"attempts"`
	NextAttempt time.Time         `bson:"next_attempt_at"`
	ClaimedBy   string            `bson:"claimed_by,omitempty"`
	ClaimedAt   time.Time         `bson:"claimed_at,omitempty"`
	SentAt      time.Time         `bson:"sent_at,omitempty"`
	LastError   string            `bson:"last_error,omitempty"`
	CreatedAt   time.Time         `bson:"created_at"`
}

func newEventDocument(rec appoutbox.EventRecord, now time.Time) EventDocument {
	return EventDocument{
		ID:          rec.ID,
		Name:        rec.Name,
		Payload:     rec.Payload,
		OccurredAt:  rec.OccurredAt,
		Aggregate:   rec.Aggregate,
		Headers:     rec.Headers,
		State:       stateNew,
		NextAttempt: now,
		CreatedAt:   now,
	}
}

// Record converts the document back to what the application recorded.
func (d EventDocument) Record() appoutbox.EventRecord {
	return appoutbox.EventRecord{
		ID:         d.ID,
		Name:       d.Name,
		Payload:    d.Payload,
		OccurredAt: d.OccurredAt,
		Aggregate:  d.Aggregate,
		Headers:    d.Headers,
	}
}

func (s *Store) Add(ctx context.Context, record appoutbox.EventRecord) error {
	if record.ID == "" {
		return errors.New("outbox: record id required")
	}
	_, err := s.col.InsertOne(ctx, newEventDocument(record, time.Now().UTC()))
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

// Flush is a no-op: delivery is the Worker's job.
func (s *Store) Flush(context.Context) error {
	return nil
}

// Claim leases the oldest due record to workerID. It returns nil, nil when
// nothing is due.
func (s *Store) Claim(ctx context.Context, workerID string) (*EventDocument, error) {
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{"state": stateClaimed, "claimed_by": workerID, "claimed_at": now}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "next_attempt_at", Value: 1}})
	var doc EventDocument
	err := s.col.FindOneAndUpdate(ctx, claimFilter(now, s.opts.Lease), update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// claimFilter matches due records and claims whose lease ran out.
func claimFilter(now time.Time, lease time.Duration) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"state": bson.M{"$in": bson.A{stateNew, stateFailed}}, "next_attempt_at": bson.M{"$lte": now}},
		bson.M{"state": stateClaimed, "claimed_at": bson.M{"$lte": now.Add(-lease)}},
	}}
}

// MarkSent only succeeds for the claim holder, so a worker whose lease was
// taken over cannot overwrite the new holder's outcome.
func (s *Store) MarkSent(ctx context.Context, doc *EventDocument) error {
	_, err := s.col.UpdateOne(ctx, ownedBy(doc), bson.M{"$set": bson.M{"state": stateSent, "sent_at": time.Now().UTC()}})
	return err
}

// MarkFailed schedules a retry at next, or parks the record once it used
// up its attempts. It reports whether the record was parked.
func (s *Store) MarkFailed(ctx context.Context, doc *EventDocument, next time.Time, errMsg string) (bool, error) {
	update, parked := failureUpdate(doc.Attempts, s.opts.MaxAttempts, next, errMsg)
	_, err := s.col.UpdateOne(ctx, ownedBy(doc), update)
	return parked, err
}

func ownedBy(doc *EventDocument) bson.M {
	return bson.M{"_id": doc.ID, "state": stateClaimed, "claimed_by": doc.ClaimedBy}
}

func failureUpdate(attempts, maxAttempts int, next time.Time, errMsg string) (bson.M, bool) {
	state, parked := stateFailed, attempts+1 >= maxAttempts
	if parked {
		state = stateParked
	}
	return bson.M{
		"$set": bson.M{
			"state":           state,
			"next_attempt_at": next,
			"last_error":      errMsg,
		},
		"$inc": bson.M{"attempts": 1},
	}, parked
}

var _ appoutbox.Outbox = (*Store)(nil)
