package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DanielNoblero/consultorios-app/internal/domain/backup"
	"github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{err: ErrNothingToCancel, want: KindFailedPrecondition},
		{err: fmt.Errorf("load: %w", booking.ErrBookingNotFound), want: KindNotFound},
		{err: backup.ErrAlreadyRestored, want: KindFailedPrecondition},
		{err: calendar.ErrOutsideHours, want: KindInvalidArgument},
		{err: context.DeadlineExceeded, want: KindDeadlineExceeded},
		{err: Wrap(KindPermissionDenied, "nope", errors.New("x")), want: KindPermissionDenied},
		{err: errors.New("disk on fire"), want: KindInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, KindOf(tc.err), tc.err.Error())
	}
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindInternal, "save booking", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "save booking: boom", err.Error())
	assert.Nil(t, Wrap(KindInternal, "noop", nil))
}
