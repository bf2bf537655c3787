package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/money"
)

type BookingRepository struct {
	col *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return &BookingRepository{col: db.Collection(bookingsCollection)}
}

var bookingOrder = options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "start_time", Value: 1}, {Key: "room", Value: 1}, {Key: "_id", Value: 1}})

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbooking.ErrBookingNotFound
		}
		return nil, err
	}
	return doc.toAggregate()
}

func dayRange(from, to calendar.Day) bson.M {
	return bson.M{"$gte": from.String(), "$lte": to.String()}
}

func (r *BookingRepository) ListByOwner(ctx context.Context, ownerID string, from, to calendar.Day) ([]*domainbooking.Booking, error) {
	return r.find(ctx, bson.M{"owner_id": ownerID, "date": dayRange(from, to)})
}

func (r *BookingRepository) ListByRange(ctx context.Context, from, to calendar.Day) ([]*domainbooking.Booking, error) {
	return r.find(ctx, bson.M{"date": dayRange(from, to)})
}

func (r *BookingRepository) ListBySeries(ctx context.Context, seriesID string) ([]*domainbooking.Booking, error) {
	if seriesID == "" {
		return nil, nil
	}
	return r.find(ctx, bson.M{"series_id": seriesID})
}

func (r *BookingRepository) ListUnpaidFrom(ctx context.Context, from calendar.Day) ([]*domainbooking.Booking, error) {
	return r.find(ctx, bson.M{"paid": false, "date": bson.M{"$gte": from.String()}})
}

func (r *BookingRepository) ListByDayRoom(ctx context.Context, day calendar.Day, room int) ([]*domainbooking.Booking, error) {
	return r.find(ctx, bson.M{"date": day.String(), "room": room})
}

func (r *BookingRepository) find(ctx context.Context, filter bson.M) ([]*domainbooking.Booking, error) {
	cur, err := r.col.Find(ctx, filter, bookingOrder)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*domainbooking.Booking
	for cur.Next(ctx) {
		var doc bookingDocument
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

func (r *BookingRepository) Create(ctx context.Context, b *domainbooking.Booking) error {
	_, err := r.col.InsertOne(ctx, newBookingDocument(b))
	if mongo.IsDuplicateKeyError(err) {
		return domainbooking.ErrDuplicateSlot
	}
	return err
}

// Reprice leaves paid bookings alone unless settle is set; a booking that
// vanished or got paid since it was read is skipped without error.
func (r *BookingRepository) Reprice(ctx context.Context, id domainbooking.BookingID, price money.Amount, settle bool) error {
	filter := bson.M{"_id": string(id)}
	set := bson.M{"price": price.Int64(), "updated_at": time.Now().UTC()}
	if settle {
		set["paid"] = true
	} else {
		filter["paid"] = false
	}
	_, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": set})
	return err
}

func (r *BookingRepository) SetPaid(ctx context.Context, id domainbooking.BookingID, paid bool) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": string(id)}, bson.M{"$set": bson.M{"paid": paid, "updated_at": time.Now().UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainbooking.ErrBookingNotFound
	}
	return nil
}

func (r *BookingRepository) Delete(ctx context.Context, id domainbooking.BookingID) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": string(id)})
	return err
}

var _ domainbooking.Repository = (*BookingRepository)(nil)
