package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	appoutbox "github.com/DanielNoblero/consultorios-app/internal/app/outbox"
)

func TestNewEventDocumentRoundTripsRecord(t *testing.T) {
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	rec := appoutbox.EventRecord{
		ID:         "evt-1",
		Name:       "reservation.created",
		Payload:    []byte(`{"id":"r1"}`),
		OccurredAt: now.Add(-time.Second),
		Aggregate:  "r1",
		Headers:    map[string]string{"trace": "t"},
	}

	doc := newEventDocument(rec, now)

	assert.Equal(t, stateNew, doc.State)
	assert.Equal(t, now, doc.NextAttempt)
	assert.Zero(t, doc.Attempts)
	assert.Equal(t, rec, doc.Record())
}

func TestClaimFilterReclaimsExpiredLeases(t *testing.T) {
	now := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)

	filter := claimFilter(now, time.Minute)

	branches, ok := filter["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, branches, 2)
	stale := branches[1].(bson.M)
	assert.Equal(t, stateClaimed, stale["state"])
	assert.Equal(t, bson.M{"$lte": now.Add(-time.Minute)}, stale["claimed_at"])
}

func TestFailureUpdateParksAfterMaxAttempts(t *testing.T) {
	next := time.Date(2024, 3, 6, 12, 5, 0, 0, time.UTC)

	update, parked := failureUpdate(3, 5, next, "broker down")
	assert.False(t, parked)
	assert.Equal(t, stateFailed, update["$set"].(bson.M)["state"])

	update, parked = failureUpdate(4, 5, next, "broker down")
	assert.True(t, parked)
	assert.Equal(t, stateParked, update["$set"].(bson.M)["state"])
	assert.Equal(t, bson.M{"attempts": 1}, update["$inc"])
}

func TestStoreOptionsDefaults(t *testing.T) {
	opts := StoreOptions{}.withDefaults()
	assert.Equal(t, time.Minute, opts.Lease)
	assert.Equal(t, 20, opts.MaxAttempts)

	custom := StoreOptions{Lease: time.Second, MaxAttempts: 2, Retention: time.Hour}.withDefaults()
	assert.Equal(t, StoreOptions{Lease: time.Second, MaxAttempts: 2, Retention: time.Hour}, custom)
}
