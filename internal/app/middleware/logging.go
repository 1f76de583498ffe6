package middleware

import (
	"context"
	"log/slog"
	"time"

	"roomies/internal/app/commands"
)

func Logging(logger *slog.Logger) CommandMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			started := time.Now()
			res, err := nextFn(ctx, cmd)
			attrs := []any{"command", cmd.Key(), "duration_ms", time.Since(started).Milliseconds()}
			if err != nil {
				logger.WarnContext(ctx, "command failed", append(attrs, "err", err)...)
				return res, err
			}
			logger.DebugContext(ctx, "command handled", attrs...)
			return res, nil
		})
	}
}
