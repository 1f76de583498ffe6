package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ping struct{ n int }

func (ping) Key() string { return "ping" }

func TestDispatch_Typed(t *testing.T) {
	bus := NewInMemoryBus()
	RegisterHandler[ping, int](bus, "ping", HandlerFunc[ping, int](func(_ context.Context, c ping) (int, error) {
		return c.n * 2, nil
	}))

	got, err := Dispatch[ping, int](context.Background(), bus, ping{n: 21})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, []string{"ping"}, bus.Keys())
}

func TestDispatch_KeepsResultWithError(t *testing.T) {
	blocked := errors.New("blocked")
	bus := NewInMemoryBus()
	RegisterHandler[ping, int](bus, "ping", HandlerFunc[ping, int](func(context.Context, ping) (int, error) {
		return 7, blocked
	}))

	got, err := Dispatch[ping, int](context.Background(), bus, ping{})
	assert.ErrorIs(t, err, blocked)
	assert.Equal(t, 7, got)
}

func TestDispatch_Errors(t *testing.T) {
	_, err := Dispatch[ping, int](context.Background(), nil, ping{})
	assert.ErrorIs(t, err, ErrNilBus)

	_, err = Dispatch[ping, int](context.Background(), NewInMemoryBus(), ping{})
	assert.ErrorIs(t, err, ErrHandlerNotFound)

	bus := NewInMemoryBus()
	RegisterHandler[ping, string](bus, "ping", HandlerFunc[ping, string](func(context.Context, ping) (string, error) {
		return "x", nil
	}))
	_, err = Dispatch[ping, int](context.Background(), bus, ping{})
	assert.ErrorIs(t, err, ErrResultType)
}

func TestRegister_DuplicatePanics(t *testing.T) {
	bus := NewInMemoryBus()
	h := HandlerFunc[ping, int](func(context.Context, ping) (int, error) { return 0, nil })
	RegisterHandler[ping, int](bus, "ping", h)
	assert.Panics(t, func() { RegisterHandler[ping, int](bus, "ping", h) })
}
