package mongo

import (
	"fmt"
	"time"

	domainbackup "github.com/DanielNoblero/consultorios-app/internal/domain/backup"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	domainpricing "github.com/DanielNoblero/consultorios-app/internal/domain/pricing"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/money"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
)

// Dates are stored as YYYY-MM-DD strings so range filters compare
// lexicographically in date order.
type bookingDocument struct {
	ID                 string    `bson:"_id"`
	OwnerID            string    `bson:"owner_id"`
	OwnerName          string    `bson:"owner_name,omitempty"`
	OwnerEmail         string    `bson:"owner_email,omitempty"`
	Date               string    `bson:"date"`
	StartTime          string    `bson:"start_time"`
	EndTime            string    `bson:"end_time"`
	Room               int       `bson:"room"`
	Price              int64     `bson:"price"`
	Paid               bool      `bson:"paid"`
	SeriesID           string    `bson:"series_id,omitempty"`
	Recurrence         string    `bson:"recurrence"`
	RestoredFromBackup bool      `bson:"restored_from_backup,omitempty"`
	RestoredAt         time.Time `bson:"restored_at,omitempty"`
	CreatedAt          time.Time `bson:"created_at"`
	UpdatedAt          time.Time `bson:"updated_at"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	return bookingDocument{
		ID:                 string(b.ID),
		OwnerID:            b.OwnerID,
		OwnerName:          b.OwnerName,
		OwnerEmail:         b.OwnerEmail,
		Date:               b.Date.String(),
		StartTime:          b.StartTime,
		EndTime:            b.EndTime,
		Room:               b.Room,
		Price:              b.Price.Int64(),
		Paid:               b.Paid,
		SeriesID:           b.SeriesID,
		Recurrence:         string(b.Recurrence),
		RestoredFromBackup: b.RestoredFromBackup,
		RestoredAt:         b.RestoredAt,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

func (d bookingDocument) toAggregate() (*domainbooking.Booking, error) {
	day, err := calendar.ParseDay(d.Date)
	if err != nil {
		return nil, fmt.Errorf("mongo: booking %s: %w", d.ID, err)
	}
	return &domainbooking.Booking{
		ID:                 domainbooking.BookingID(d.ID),
		OwnerID:            d.OwnerID,
		OwnerName:          d.OwnerName,
		OwnerEmail:         d.OwnerEmail,
		Date:               day,
		StartTime:          d.StartTime,
		EndTime:            d.EndTime,
		Room:               d.Room,
		Price:              money.Amount(d.Price),
		Paid:               d.Paid,
		SeriesID:           d.SeriesID,
		Recurrence:         domainbooking.RecurrenceKind(d.Recurrence),
		RestoredFromBackup: d.RestoredFromBackup,
		RestoredAt:         d.RestoredAt.UTC(),
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}, nil
}

type backupDocument struct {
	ID         string          `bson:"_id"`
	Snapshot   bookingDocument `bson:"snapshot"`
	DeletedBy  string          `bson:"deleted_by"`
	DeletedAt  time.Time       `bson:"deleted_at"`
	Reason     string          `bson:"reason"`
	Restored   bool            `bson:"restored"`
	RestoredAt time.Time       `bson:"restored_at,omitempty"`
}

func newBackupDocument(b *domainbackup.Backup) backupDocument {
	snapshot := b.Snapshot
	return backupDocument{
		ID:         string(b.ID),
		Snapshot:   newBookingDocument(&snapshot),
		DeletedBy:  b.DeletedBy,
		DeletedAt:  b.DeletedAt,
		Reason:     string(b.Reason),
		Restored:   b.Restored,
		RestoredAt: b.RestoredAt,
	}
}

func (d backupDocument) toAggregate() (*domainbackup.Backup, error) {
	snapshot, err := d.Snapshot.toAggregate()
	if err != nil {
		return nil, err
	}
	return &domainbackup.Backup{
		ID:         domainbackup.BackupID(d.ID),
		Snapshot:   *snapshot,
		DeletedBy:  d.DeletedBy,
		DeletedAt:  d.DeletedAt.UTC(),
		Reason:     domainbackup.Reason(d.Reason),
		Restored:   d.Restored,
		RestoredAt: d.RestoredAt.UTC(),
	}, nil
}

type configDocument struct {
	ID            string    `bson:"_id"`
	BaseRate      int64     `bson:"base_rate"`
	DiscountRate  int64     `bson:"discount_rate"`
	EffectiveDate  string    `bson:"effective_date,omitempty"`
	ChangedAt      time.Time `bson:"changed_at"`
	RatesChangedAt time.Time `bson:"rates_changed_at,omitempty"`
}

func newConfigDocument(cfg domainpricing.Config) configDocument {
	return configDocument{
		ID:            pricingConfigID,
		BaseRate:      cfg.BaseRate.Int64(),
		DiscountRate:  cfg.DiscountRate.Int64(),
		EffectiveDate:  cfg.EffectiveDate,
		ChangedAt:      cfg.ChangedAt,
		RatesChangedAt: cfg.RatesChangedAt,
	}
}

func (d configDocument) toConfig() domainpricing.Config {
	return domainpricing.Config{
		BaseRate:      money.Amount(d.BaseRate),
		DiscountRate:  money.Amount(d.DiscountRate),
		EffectiveDate:  d.EffectiveDate,
		ChangedAt:      d.ChangedAt.UTC(),
		RatesChangedAt: d.RatesChangedAt.UTC(),
	}
}

type profileDocument struct {
	ID        string    `bson:"_id"`
	Email     string    `bson:"email"`
	FirstName string    `bson:"first_name"`
	LastName  string    `bson:"last_name"`
	Role      string    `bson:"role"`
	Admin     bool      `bson:"is_admin"`
	PriceSeen string    `bson:"price_seen,omitempty"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func newProfileDocument(p *domainuser.Profile) profileDocument {
	return profileDocument{
		ID:        string(p.ID),
		Email:     domainuser.NormalizeEmail(p.Email),
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Role:      string(p.Role),
		Admin:     p.Admin,
		PriceSeen: p.PriceSeen,
		UpdatedAt: p.UpdatedAt,
	}
}

func (d profileDocument) toAggregate() *domainuser.Profile {
	return &domainuser.Profile{
		ID:        domainuser.ID(d.ID),
		Email:     d.Email,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Role:      domainuser.Role(d.Role),
		Admin:     d.Admin,
		PriceSeen: d.PriceSeen,
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}
