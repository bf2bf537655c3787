package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ping struct{ n int }

func (ping) Key() string { return "ping" }

type other struct{}

func (other) Key() string { return "other" }

func TestDispatchTyped(t *testing.T) {
	reg := NewRegistry()
	RegisterHandler[ping, int](reg, "ping", HandlerFunc[ping, int](func(_ context.Context, cmd ping) (int, error) {
		return cmd.n * 2, nil
	}))

	got, err := Dispatch[ping, int](context.Background(), reg, ping{n: 21})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, []string{"ping"}, reg.Keys())

	_, err = Dispatch[other, int](context.Background(), reg, other{})
	assert.ErrorIs(t, err, ErrHandlerNotFound)

	_, err = Dispatch[ping, string](context.Background(), reg, ping{n: 1})
	assert.ErrorIs(t, err, ErrResultType)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := NewRegistry()
	h := HandlerFunc[ping, int](func(context.Context, ping) (int, error) { return 0, nil })
	RegisterHandler[ping, int](reg, "ping", h)
	assert.Panics(t, func() { RegisterHandler[ping, int](reg, "ping", h) })
}
