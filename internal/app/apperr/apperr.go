package apperr

import (
	"context"
	"errors"
	"fmt"

	"github.com/DanielNoblero/consultorios-app/internal/domain/backup"
	"github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	"github.com/DanielNoblero/consultorios-app/internal/domain/pricing"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/money"
	"github.com/DanielNoblero/consultorios-app/internal/domain/user"
)

// Kind classifies failures so transports can map them to status codes.
type Kind string

const (
	KindInvalidArgument    Kind = "invalid-argument"
	KindUnauthenticated    Kind = "unauthenticated"
	KindPermissionDenied   Kind = "permission-denied"
	KindNotFound           Kind = "not-found"
	KindFailedPrecondition Kind = "failed-precondition"
	KindDeadlineExceeded   Kind = "deadline-exceeded"
	KindInternal           Kind = "internal"
)

// Error wraps a cause with a kind and a message safe to show to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

func InvalidArgument(message string) error  { return New(KindInvalidArgument, message) }
func Unauthenticated(message string) error  { return New(KindUnauthenticated, message) }
func PermissionDenied(message string) error { return New(KindPermissionDenied, message) }
func NotFound(message string) error         { return New(KindNotFound, message) }
func FailedPrecondition(message string) error {
	return New(KindFailedPrecondition, message)
}

var (
	ErrNothingToCancel = New(KindFailedPrecondition, "no bookings left to cancel")
	ErrNotOwner        = New(KindPermissionDenied, "only the owner or an administrator can do this")
	ErrAdminRequired   = New(KindPermissionDenied, "administrator role required")
	ErrUnauthenticated = New(KindUnauthenticated, "authentication required")
)

// KindOf resolves the kind of err, classifying known domain sentinels.
// Everything unrecognised is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindDeadlineExceeded
	case errors.Is(err, booking.ErrBookingNotFound),
		errors.Is(err, backup.ErrBackupNotFound),
		errors.Is(err, user.ErrNotFound):
		return KindNotFound
	case errors.Is(err, backup.ErrAlreadyRestored),
		errors.Is(err, backup.ErrBookingExists),
		errors.Is(err, booking.ErrDuplicateSlot):
		return KindFailedPrecondition
	case errors.Is(err, booking.ErrInvalidRoom),
		errors.Is(err, booking.ErrOwnerRequired),
		errors.Is(err, booking.ErrDateRequired),
		errors.Is(err, booking.ErrInvalidRecurrence),
		errors.Is(err, booking.ErrInvalidCount),
		errors.Is(err, booking.ErrTooManyOccurrences),
		errors.Is(err, calendar.ErrInvalidDay),
		errors.Is(err, calendar.ErrInvalidPeriod),
		errors.Is(err, calendar.ErrInvalidTime),
		errors.Is(err, calendar.ErrOutsideHours),
		errors.Is(err, calendar.ErrNotOnGrid),
		errors.Is(err, pricing.ErrInvalidRate),
		errors.Is(err, money.ErrNegativeAmount),
		errors.Is(err, user.ErrInvalidRole),
		errors.Is(err, user.ErrEmailRequired),
		errors.Is(err, user.ErrIDRequired):
		return KindInvalidArgument
	default:
		return KindInternal
	}
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
