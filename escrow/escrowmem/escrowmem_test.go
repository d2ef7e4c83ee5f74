package escrowmem

import (
	"context"
	"testing"

	"github.com/storemarket/market-core/escrow"
	"github.com/storemarket/market-core/market"
	"github.com/stretchr/testify/require"
)

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Mint("alice", 100)

	err := l.Transfer(ctx, "alice", "bob", 60)
	require.NoError(t, err)

	ab, err := l.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(40), ab)
	bb, err := l.BalanceOf(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, uint64(60), bb)
}

func TestTransferInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Mint("alice", 10)

	err := l.Transfer(ctx, "alice", "bob", 11)
	require.ErrorIs(t, err, escrow.ErrInsufficientFunds)

	// Nothing moved.
	ab, err := l.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(10), ab)
	bb, err := l.BalanceOf(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, uint64(0), bb)
}

func TestTransferZeroAmount(t *testing.T) {
	ctx := context.Background()
	l := New()

	// Zero transfers succeed even with empty accounts.
	err := l.Transfer(ctx, "alice", "bob", 0)
	require.NoError(t, err)
}

func TestUnknownAccountBalance(t *testing.T) {
	l := New()
	b, err := l.BalanceOf(context.Background(), market.Account("nobody"))
	require.NoError(t, err)
	require.Equal(t, uint64(0), b)
}
