package xswapd

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xswaplabs/xswap"
	"github.com/xswaplabs/xswap/escrow"
	"github.com/xswaplabs/xswap/fusion"
)

// TestMemWallet tests the in-memory ledger semantics.
func TestMemWallet(t *testing.T) {
	w := newMemWallet()
	ctx := context.Background()

	require.Zero(t, w.Balance("alice.near", "usdc"))

	w.Deposit("alice.near", "usdc", 100)
	require.Equal(t, xswap.Amount(100), w.Balance("alice.near", "usdc"))

	// Balances are per token.
	require.Zero(t, w.Balance("alice.near", "wnear"))

	err := w.Debit(ctx, "usdc", "alice.near", 101)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	require.NoError(t, w.Debit(ctx, "usdc", "alice.near", 60))
	require.Equal(t, xswap.Amount(40), w.Balance("alice.near", "usdc"))

	require.NoError(t, w.Credit(ctx, "usdc", "bob.near", 60))
	require.Equal(t, xswap.Amount(60), w.Balance("bob.near", "usdc"))
}

// TestWriteError tests the engine error to http status mapping.
func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{
			name:   "validation",
			err:    escrow.ErrInvalidAmount,
			status: 400,
		},
		{
			name:   "authorization",
			err:    fusion.ErrUnauthorized,
			status: 403,
		},
		{
			name:   "not found",
			err:    escrow.ErrLockNotFound,
			status: 404,
		},
		{
			name:   "state conflict",
			err:    escrow.ErrAlreadySettled,
			status: 409,
		},
		{
			name: "downstream",
			err: &xswap.DownstreamError{
				Op: "credit", Err: ErrInsufficientFunds,
			},
			status: 502,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}
