package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	domainpricing "github.com/DanielNoblero/consultorios-app/internal/domain/pricing"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/money"
)

func embedded(raw bson.Raw) bson.RawValue {
	return bson.RawValue{Type: bson.TypeEmbeddedDocument, Value: raw}
}

func rawBooking(t *testing.T, id, owner, day string, price int64) bson.RawValue {
	t.Helper()
	b := &domainbooking.Booking{
		ID: domainbooking.BookingID(id), OwnerID: owner, Date: calendar.MustParseDay(day),
		StartTime: "09:00", EndTime: "10:00", Room: 3, Price: money.Amount(price),
	}
	raw, err := bson.Marshal(newBookingDocument(b))
	require.NoError(t, err)
	return embedded(raw)
}

func TestBookingChangeInsert(t *testing.T) {
	ev := changeEvent{OperationType: "insert", FullDocument: rawBooking(t, "b1", "ana", "2024-03-04", 250)}
	before, after, skip, err := bookingChange(ev)
	require.NoError(t, err)
	assert.False(t, skip)
	assert.Nil(t, before)
	require.NotNil(t, after)
	assert.Equal(t, "ana", after.OwnerID)
	assert.Equal(t, "2024-03-04", after.Date.String())
}

func TestBookingChangeNullPreImage(t *testing.T) {
	ev := changeEvent{OperationType: "delete", FullDocumentPrior: bson.RawValue{Type: bson.TypeNull}}
	before, after, skip, err := bookingChange(ev)
	require.NoError(t, err)
	assert.False(t, skip)
	assert.Nil(t, before)
	assert.Nil(t, after)
}

func TestBookingChangeDeleteUsesPreImage(t *testing.T) {
	ev := changeEvent{OperationType: "delete", FullDocumentPrior: rawBooking(t, "b1", "ana", "2024-03-04", 250)}
	before, after, _, err := bookingChange(ev)
	require.NoError(t, err)
	require.NotNil(t, before)
	assert.Nil(t, after)
}

func TestBookingChangeSkipsRepriceWrites(t *testing.T) {
	ev := changeEvent{OperationType: "update", FullDocument: rawBooking(t, "b1", "ana", "2024-03-04", 230)}
	ev.UpdateDescription.UpdatedFields = bson.M{"price": int64(230), "updated_at": time.Now()}
	_, _, skip, err := bookingChange(ev)
	require.NoError(t, err)
	assert.True(t, skip)

	ev.UpdateDescription.UpdatedFields = bson.M{"paid": true, "updated_at": time.Now()}
	_, after, skip, err := bookingChange(ev)
	require.NoError(t, err)
	assert.False(t, skip)
	assert.NotNil(t, after)
}

func TestConfigChangeWithoutPreImage(t *testing.T) {
	raw, err := bson.Marshal(newConfigDocument(domainpricing.Config{BaseRate: 300, DiscountRate: 280, EffectiveDate: "2024-03-06"}))
	require.NoError(t, err)

	previous, current, err := configChange(changeEvent{OperationType: "replace", FullDocument: embedded(raw)})
	require.NoError(t, err)
	assert.EqualValues(t, 300, current.BaseRate)
	assert.False(t, previous.SameRates(current))
}

func TestBookingDocumentRejectsMalformedDate(t *testing.T) {
	_, err := bookingDocument{ID: "x", Date: "04/03/2024"}.toAggregate()
	assert.ErrorIs(t, err, calendar.ErrInvalidDay)
}
