package mongo

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	domainpricing "github.com/DanielNoblero/consultorios-app/internal/domain/pricing"
)

// ChangeHandlers receive store changes observed on the change streams.
type ChangeHandlers interface {
	BookingWritten(ctx context.Context, before, after *domainbooking.Booking) error
	ConfigChanged(ctx context.Context, previous, current domainpricing.Config) error
}

var ErrWatcherNotConfigured = errors.New("mongo: watcher missing dependencies")

// Watcher turns MongoDB change streams on bookings and the pricing config
// into handler calls. Pre-images need changeStreamPreAndPostImages enabled
// on both collections; without them deletions cannot be attributed to an
// owner and are skipped.
type Watcher struct {
	DB       *mongo.Database
	Handlers ChangeHandlers
	Backoff  time.Duration
	Logger   *slog.Logger
}

type changeEvent struct {
	OperationType     string        `bson:"operationType"`
	FullDocument      bson.RawValue `bson:"fullDocument"`
	FullDocumentPrior bson.RawValue `bson:"fullDocumentBeforeChange"`
	UpdateDescription struct {
		UpdatedFields bson.M `bson:"updatedFields"`
	} `bson:"updateDescription"`
}

var watchedOps = mongo.Pipeline{
	bson.D{{Key: "$match", Value: bson.D{{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace", "delete"}}}}}}},
}

// Run blocks until ctx is done. Stream errors are logged and the stream is
// reopened from the last processed resume token.
func (w *Watcher) Run(ctx context.Context) error {
	if w.DB == nil || w.Handlers == nil {
		return ErrWatcherNotConfigured
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.watch(ctx, w.DB.Collection(bookingsCollection), w.applyBooking)
	}()
	go func() {
		defer wg.Done()
		w.watch(ctx, w.DB.Collection(configCollection), w.applyConfig)
	}()
	wg.Wait()
	return ctx.Err()
}

func (w *Watcher) watch(ctx context.Context, col *mongo.Collection, apply func(context.Context, changeEvent) error) {
	var token bson.Raw
	for {
		opts := options.ChangeStream().
			SetFullDocument(options.UpdateLookup).
			SetFullDocumentBeforeChange(options.WhenAvailable)
		if token != nil {
			opts.SetResumeAfter(token)
		}
		stream, err := col.Watch(ctx, watchedOps, opts)
		if err == nil {
			for stream.Next(ctx) {
				var ev changeEvent
				if err := stream.Decode(&ev); err != nil {
					w.logger().ErrorContext(ctx, "change event decode failed", "collection", col.Name(), "error", err)
				} else if err := apply(ctx, ev); err != nil {
					w.logger().ErrorContext(ctx, "change handler failed", "collection", col.Name(), "operation", ev.OperationType, "error", err)
				}
				token = stream.ResumeToken()
			}
			err = stream.Err()
			_ = stream.Close(context.Background())
		}
		if ctx.Err() != nil {
			return
		}
		w.logger().WarnContext(ctx, "change stream interrupted", "collection", col.Name(), "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.backoff()):
		}
	}
}

func (w *Watcher) applyBooking(ctx context.Context, ev changeEvent) error {
	before, after, skip, err := bookingChange(ev)
	if err != nil || skip {
		return err
	}
	if before == nil && after == nil {
		w.logger().WarnContext(ctx, "booking change without images skipped", "operation", ev.OperationType)
		return nil
	}
	return w.Handlers.BookingWritten(ctx, before, after)
}

func (w *Watcher) applyConfig(ctx context.Context, ev changeEvent) error {
	previous, current, err := configChange(ev)
	if err != nil {
		return err
	}
	return w.Handlers.ConfigChanged(ctx, previous, current)
}

// bookingChange decodes the images of ev. Updates that only moved the price
// are the recalculation's own writes and are skipped.
func bookingChange(ev changeEvent) (before, after *domainbooking.Booking, skip bool, err error) {
	if ev.OperationType == "update" && repriceOnly(ev.UpdateDescription.UpdatedFields) {
		return nil, nil, true, nil
	}
	if before, err = decodeBooking(ev.FullDocumentPrior); err != nil {
		return nil, nil, false, err
	}
	if ev.OperationType != "delete" {
		if after, err = decodeBooking(ev.FullDocument); err != nil {
			return nil, nil, false, err
		}
	}
	return before, after, false, nil
}

func repriceOnly(fields bson.M) bool {
	if len(fields) == 0 {
		return false
	}
	for k := range fields {
		if k != "price" && k != "updated_at" {
			return false
		}
	}
	return true
}

// image returns the embedded document of v, or nil when the stream sent
// null or nothing.
func image(v bson.RawValue) bson.Raw {
	if v.Type != bson.TypeEmbeddedDocument {
		return nil
	}
	return v.Document()
}

func decodeBooking(v bson.RawValue) (*domainbooking.Booking, error) {
	raw := image(v)
	if raw == nil {
		return nil, nil
	}
	var doc bookingDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc.toAggregate()
}

// configChange falls back to a zero previous config when no pre-image is
// available, which reads as a rate change and triggers a full recalculation.
func configChange(ev changeEvent) (domainpricing.Config, domainpricing.Config, error) {
	var previous, current domainpricing.Config
	if prior := image(ev.FullDocumentPrior); prior != nil {
		var doc configDocument
		if err := bson.Unmarshal(prior, &doc); err != nil {
			return previous, current, err
		}
		previous = doc.toConfig()
	}
	after := image(ev.FullDocument)
	if after == nil {
		return previous, domainpricing.Defaults(), nil
	}
	var doc configDocument
	if err := bson.Unmarshal(after, &doc); err != nil {
		return previous, current, err
	}
	return previous, doc.toConfig(), nil
}

func (w *Watcher) backoff() time.Duration {
	if w.Backoff <= 0 {
		return 2 * time.Second
	}
	return w.Backoff
}

func (w *Watcher) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}
