package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/DanielNoblero/consultorios-app/internal/app/apperr"
	"github.com/DanielNoblero/consultorios-app/internal/app/commands"
	"github.com/DanielNoblero/consultorios-app/internal/app/queries"
)

// Timeout bounds every command. Work that already committed stays committed;
// the caller only learns that the deadline passed.
func Timeout(d time.Duration) CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		if d <= 0 {
			return next
		}
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			res, err := next.Dispatch(ctx, cmd)
			return res, deadlineError(ctx, err)
		})
	}
}

func QueryTimeout(d time.Duration) QueryMiddleware {
	return func(next queries.Bus) queries.Bus {
		if d <= 0 {
			return next
		}
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			res, err := next.Ask(ctx, q)
			return res, deadlineError(ctx, err)
		})
	}
}

func deadlineError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && apperr.KindOf(err) != apperr.KindDeadlineExceeded {
		return apperr.Wrap(apperr.KindDeadlineExceeded, "operation timed out", err)
	}
	return err
}
