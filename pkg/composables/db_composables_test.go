package composables

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUseTx_NoPool(t *testing.T) {
	_, err := UseTx(context.Background())
	require.ErrorIs(t, err, ErrNoPool)

	_, err = UsePool(context.Background())
	require.ErrorIs(t, err, ErrNoPool)
}

func TestInTx_NoPool(t *testing.T) {
	called := false
	err := InTx(context.Background(), func(context.Context) error {
		called = true
		return errors.New("unreachable")
	})
	require.ErrorIs(t, err, ErrNoPool)
	require.False(t, called)
}

type nopTx struct{ Tx }

func TestInTx_ReusesContextTx(t *testing.T) {
	tx := nopTx{}
	ctx := WithTx(context.Background(), tx)

	got, err := UseTx(ctx)
	require.NoError(t, err)
	require.Equal(t, tx, got)

	want := errors.New("boom")
	err = InTx(ctx, func(inner context.Context) error {
		innerTx, err := UseTx(inner)
		require.NoError(t, err)
		require.Equal(t, tx, innerTx)
		return want
	})
	require.ErrorIs(t, err, want)
}
