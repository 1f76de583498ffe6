package middleware

import (
	"context"
	"time"

	"roomies/internal/app/commands"
)

// Retry re-dispatches a command whose attempt failed with a retryable error, sleeping
// backoff[i] before attempt i+2. It must sit outside Transaction so every attempt gets a fresh
// unit of work.
func Retry(backoff []time.Duration, retryable func(error) bool) CommandMiddleware {
	if retryable == nil {
		panic("middleware: retry predicate required")
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := nextFn(ctx, cmd)
			for _, wait := range backoff {
				if err == nil || !retryable(err) {
					break
				}
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
				}
				res, err = nextFn(ctx, cmd)
			}
			return res, err
		})
	}
}
