package closing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/DanielNoblero/consultorios-app/internal/app/batch"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/support"
	"github.com/DanielNoblero/consultorios-app/internal/app/uow"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
)

var tracer = otel.Tracer("consultorios/closing")

var (
	ErrRendererMissing = errors.New("closing: renderer missing")
	// ErrPeriodOpen rejects closing the current or a future month.
	ErrPeriodOpen      = errors.New("closing: period is still open")
)

// OpPurge labels purge chunks for the batch recorder.
const OpPurge = "purge"

// Service closes accounting periods: it reports the settled income of a
// month and then removes the bookings that no longer carry debt.
type Service struct {
	UoWFactory uow.UoWFactory
	Renderer   Renderer
	// Archiver is optional. When set, Close refuses to purge unless the
	// report was archived.
	Archiver  Archiver
	Clock     calendar.Clock
	Location  *time.Location
	BatchSize int
	Recorder  batch.Recorder
	Logger    *slog.Logger
}

// Generated is the output of Generate. Snapshot is the exact read the
// report was built from and the only input Purge should be given.
type Generated struct {
	Report   Report
	Artifact Artifact
	Snapshot []*domainbooking.Booking
}

type CloseResult struct {
	Period     string `json:"period"`
	GrandTotal int64  `json:"grand_total"`
	Sections   int    `json:"sections"`
	Purged     int    `json:"purged"`
	ArchiveKey string `json:"archive_key,omitempty"`
}

// Snapshot reads every booking dated inside period, whatever its state.
func (s *Service) Snapshot(ctx context.Context, period calendar.Period) ([]*domainbooking.Booking, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, s.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	from, to := period.Range()
	return unit.Bookings().ListByRange(execCtx, from, to)
}

func (s *Service) Generate(ctx context.Context, period calendar.Period) (Generated, error) {
	ctx, span := tracer.Start(ctx, "closing.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("period", period.String()))

	if s.Renderer == nil {
		return Generated{}, ErrRendererMissing
	}
	snapshot, err := s.Snapshot(ctx, period)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot failed")
		return Generated{}, fmt.Errorf("closing: snapshot %s: %w", period, err)
	}
	names, err := s.ownerNames(ctx, snapshot)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "owner names failed")
		return Generated{}, err
	}
	report := BuildReport(period, snapshot, names, s.now())
	artifact, err := s.Renderer.Render(ctx, report)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return Generated{}, fmt.Errorf("closing: render %s: %w", period, err)
	}
	if artifact.Filename == "" {
		artifact.Filename = Filename(period)
	}
	if artifact.ContentType == "" {
		artifact.ContentType = SpreadsheetContentType
	}
	span.SetAttributes(attribute.Int("sections", len(report.Sections)), attribute.Int64("grand_total", report.GrandTotal.Int64()))
	return Generated{Report: report, Artifact: artifact, Snapshot: snapshot}, nil
}

// Purge deletes the purge candidates of snapshot in bounded chunks. It emits
// no change events: the removed bookings belong to a closed month.
func (s *Service) Purge(ctx context.Context, period calendar.Period, snapshot []*domainbooking.Booking) (int, error) {
	if err := s.CheckClosed(period); err != nil {
		return 0, err
	}
	candidates := PurgeCandidates(snapshot, s.now(), s.Location)
	if len(candidates) == 0 {
		return 0, nil
	}
	commit := func(ctx context.Context, chunk []*domainbooking.Booking) error {
		return support.InNewUnit(ctx, s.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
			for _, b := range chunk {
				if err := unit.Bookings().Delete(ctx, b.ID); err != nil {
					return err
				}
			}
			return nil
		})
	}
	purged, err := batch.Run(ctx, candidates, s.BatchSize, 1, batch.Observed(OpPurge, 1, s.Recorder, commit))
	if err != nil {
		attrs := []any{"period", period.String(), "purged", purged, "candidates", len(candidates), "error", err}
		var chunkErr *batch.ChunkError
		if errors.As(err, &chunkErr) {
			attrs = append(attrs, "chunk", chunkErr.Index)
		}
		s.logger().ErrorContext(ctx, "period cleanup incomplete", attrs...)
		return purged, err
	}
	s.logger().InfoContext(ctx, "period cleanup done", "period", period.String(), "purged", purged)
	return purged, nil
}

// Close generates the period report, archives it when an archiver is set,
// and purges. Nothing is deleted unless the report was produced.
func (s *Service) Close(ctx context.Context, period calendar.Period) (CloseResult, error) {
	ctx, span := tracer.Start(ctx, "closing.Close")
	defer span.End()
	span.SetAttributes(attribute.String("period", period.String()))

	if err := s.CheckClosed(period); err != nil {
		span.SetStatus(codes.Error, "period open")
		return CloseResult{Period: period.String()}, err
	}
	gen, err := s.Generate(ctx, period)
	if err != nil {
		span.SetStatus(codes.Error, "generate failed")
		s.logger().ErrorContext(ctx, "period report failed, cleanup skipped", "period", period.String(), "error", err)
		return CloseResult{Period: period.String()}, err
	}
	res, err := s.Settle(ctx, period, gen)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settle failed")
	}
	return res, err
}

// Settle is the part of Close that runs after the report exists: archive,
// then purge. A failed archive leaves the period untouched.
func (s *Service) Settle(ctx context.Context, period calendar.Period, gen Generated) (CloseResult, error) {
	res := CloseResult{
		Period:     period.String(),
		GrandTotal: gen.Report.GrandTotal.Int64(),
		Sections:   len(gen.Report.Sections),
	}
	if err := s.CheckClosed(period); err != nil {
		return res, err
	}
	if s.Archiver != nil {
		key, err := s.Archiver.Archive(ctx, period, gen.Artifact)
		if err != nil {
			s.logger().ErrorContext(ctx, "period report archive failed, cleanup skipped", "period", period.String(), "error", err)
			return res, fmt.Errorf("closing: archive %s: %w", period, err)
		}
		res.ArchiveKey = key
	}
	purged, err := s.Purge(ctx, period, gen.Snapshot)
	res.Purged = purged
	return res, err
}

// CheckClosed fails with ErrPeriodOpen unless period ended before the
// current month in the service location.
func (s *Service) CheckClosed(period calendar.Period) error {
	now := s.now()
	if s.Location != nil {
		now = now.In(s.Location)
	}
	if !period.Before(calendar.PeriodOf(now, 0)) {
		return fmt.Errorf("%w: %s", ErrPeriodOpen, period)
	}
	return nil
}

func (s *Service) ownerNames(ctx context.Context, snapshot []*domainbooking.Booking) (map[string]string, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, s.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	names := make(map[string]string)
	for _, b := range snapshot {
		if _, done := names[b.OwnerID]; done || !b.Paid || !b.Price.Positive() {
			continue
		}
		profile, err := unit.Profiles().ByID(execCtx, domainuser.ID(b.OwnerID))
		switch {
		case err == nil:
			names[b.OwnerID] = profile.DisplayName()
		case errors.Is(err, domainuser.ErrNotFound):
			names[b.OwnerID] = b.OwnerName
		default:
			return nil, fmt.Errorf("closing: owner %s: %w", b.OwnerID, err)
		}
	}
	return names, nil
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now()
	}
	return calendar.SystemClock{Location: s.Location}.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
