package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/DanielNoblero/consultorios-app/internal/app/apperr"
	"github.com/DanielNoblero/consultorios-app/internal/app/commands"
)

// Logging records one line per command with its outcome and latency.
func Logging(logger *slog.Logger) CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			start := time.Now()
			res, err := next.Dispatch(ctx, cmd)
			attrs := []any{"command", cmd.Key(), "duration", time.Since(start)}
			if err != nil {
				kind := apperr.KindOf(err)
				attrs = append(attrs, "kind", string(kind), "error", err)
				if kind == apperr.KindInternal {
					logger.ErrorContext(ctx, "command failed", attrs...)
				} else {
					logger.WarnContext(ctx, "command rejected", attrs...)
				}
				return nil, err
			}
			logger.DebugContext(ctx, "command handled", attrs...)
			return res, nil
		})
	}
}
