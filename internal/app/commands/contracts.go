package commands

import (
	"context"
	"errors"
	"fmt"
)

// Command is a write intent against a booking or its settlement records.
type Command interface {
	Key() string
}

type Handler[C Command, R any] interface {
	Handle(ctx context.Context, cmd C) (R, error)
}

type HandlerFunc[C Command, R any] func(ctx context.Context, cmd C) (R, error)

func (f HandlerFunc[C, R]) Handle(ctx context.Context, cmd C) (R, error) { return f(ctx, cmd) }

// Bus dispatches commands, usually through the middleware stack.
type Bus interface {
	Dispatch(ctx context.Context, cmd Command) (any, error)
}

var (
	ErrHandlerNotFound = errors.New("commands: handler not found")
	ErrInvalidCommand  = errors.New("commands: invalid command for handler")
	ErrResultType      = errors.New("commands: result type mismatch")
	ErrNilBus          = errors.New("commands: nil bus")
	ErrDuplicateKey    = errors.New("commands: handler already registered")
)

// Dispatch sends cmd through bus and asserts the result type. A handler may return a result
// together with an error; the typed result is kept in that case.
func Dispatch[C Command, R any](ctx context.Context, bus Bus, cmd C) (R, error) {
	var zero R
	if bus == nil {
		return zero, ErrNilBus
	}
	res, err := bus.Dispatch(ctx, cmd)
	if res == nil {
		return zero, err
	}
	value, ok := res.(R)
	switch {
	case ok:
		return value, err
	case err != nil:
		return zero, err
	default:
		return zero, fmt.Errorf("%w: %s returned %T, want %T", ErrResultType, cmd.Key(), res, zero)
	}
}
