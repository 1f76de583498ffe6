package middleware

import (
	"context"
	"log/slog"

	"roomies/internal/app/commands"
	"roomies/internal/app/outbox"
	"roomies/internal/app/uow"
)

// OutboxFlush relays committed records once the transaction below it finished. A failed flush
// is logged and left to the relay's own retry; the command result stands.
func OutboxFlush(box outbox.Outbox, logger *slog.Logger) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := nextFn(ctx, cmd)
			if !uow.ShouldCommit(err) {
				return nil, err
			}
			if ferr := box.Flush(context.WithoutCancel(ctx)); ferr != nil {
				logger.Warn("outbox flush failed", "command", cmd.Key(), "err", ferr)
			}
			return res, err
		})
	}
}
