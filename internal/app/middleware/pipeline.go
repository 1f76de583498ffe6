package middleware

import (
	"context"
	"log/slog"
	"time"

	"roomies/internal/app/commands"
	"roomies/internal/app/locks"
	"roomies/internal/app/outbox"
	"roomies/internal/app/queries"
	"roomies/internal/app/uow"
)

// CommandMiddleware wraps a command bus with additional behavior (logging, tx, etc.).
type CommandMiddleware func(next commands.Bus) commands.Bus

// QueryMiddleware wraps a query bus with extra behavior.
type QueryMiddleware func(next queries.Bus) queries.Bus

// ChainCommands builds a command bus wrapped with the provided middleware (outermost first).
func ChainCommands(base commands.Bus, mws ...CommandMiddleware) commands.Bus {
	wrapped := base
	for i := len(mws) - 1; i >= 0; i-- {
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

// Stack is the standard write path. Wrap orders it as logging, validation, per-key locking,
// idempotency, outbox flush, retry and transaction, so retries get fresh units of work and
// the outbox is flushed once per successful command.
type Stack struct {
	Logger         *slog.Logger
	Validator      Validator
	Locks          *locks.Keyed
	Idempotency    IdempotencyStore
	IdempotencyTTL time.Duration
	Codec          ResultCodec
	Outbox         outbox.Outbox
	RetryBackoff   []time.Duration
	Retryable      func(error) bool
	UoW            uow.UoWFactory
}

func (s Stack) Wrap(base commands.Bus) commands.Bus {
	mws := []CommandMiddleware{Logging(s.Logger)}
	if s.Validator != nil {
		mws = append(mws, Validation(s.Validator))
	}
	if s.Locks != nil {
		mws = append(mws, Serialize(s.Locks))
	}
	if s.Idempotency != nil {
		mws = append(mws, Idempotency(s.Idempotency, s.Codec, s.IdempotencyTTL))
	}
	if s.Outbox != nil {
		mws = append(mws, OutboxFlush(s.Outbox, s.Logger))
	}
	if s.Retryable != nil && len(s.RetryBackoff) > 0 {
		mws = append(mws, Retry(s.RetryBackoff, s.Retryable))
	}
	mws = append(mws, Transaction(s.UoW, nil))
	return ChainCommands(base, mws...)
}

// ChainQueries builds a query bus with middleware applied.
func ChainQueries(base queries.Bus, mws ...QueryMiddleware) queries.Bus {
	wrapped := base
	for i := len(mws) - 1; i >= 0; i-- {
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

// commandFunc allows lightweight middleware composition without new structs per wrapper.
type commandFunc func(ctx context.Context, cmd commands.Command) (any, error)

func (f commandFunc) Dispatch(ctx context.Context, cmd commands.Command) (any, error) {
	return f(ctx, cmd)
}

// wrapCommand builds a commandFunc around a bus.
func wrapCommand(next commands.Bus) commandFunc {
	return func(ctx context.Context, cmd commands.Command) (any, error) {
		return next.Dispatch(ctx, cmd)
	}
}

type queryFunc func(ctx context.Context, query queries.Query) (any, error)

func (f queryFunc) Ask(ctx context.Context, q queries.Query) (any, error) {
	return f(ctx, q)
}

func wrapQuery(next queries.Bus) queryFunc {
	return func(ctx context.Context, q queries.Query) (any, error) {
		return next.Ask(ctx, q)
	}
}
