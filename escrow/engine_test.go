package escrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/stretchr/testify/require"
	"github.com/xswaplabs/xswap"
	"github.com/xswaplabs/xswap/swapdb"
)

var (
	testPreimage = lntypes.Preimage([32]byte{
		1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4,
		1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4,
	})

	wrongPreimage = lntypes.Preimage([32]byte{9, 9, 9, 9})

	testTime = time.Date(2026, time.January, 9, 14, 0, 0, 0, time.UTC)
)

// testWallet records every transfer and can be primed to fail.
type testWallet struct {
	debits  map[xswap.AccountID]xswap.Amount
	credits map[xswap.AccountID]xswap.Amount

	failDebit  error
	failCredit error
}

func newTestWallet() *testWallet {
	return &testWallet{
		debits:  make(map[xswap.AccountID]xswap.Amount),
		credits: make(map[xswap.AccountID]xswap.Amount),
	}
}

func (w *testWallet) Debit(_ context.Context, _ xswap.Token,
	from xswap.AccountID, amount xswap.Amount) error {

	if w.failDebit != nil {
		return w.failDebit
	}
	w.debits[from] += amount

	return nil
}

func (w *testWallet) Credit(_ context.Context, _ xswap.Token,
	to xswap.AccountID, amount xswap.Amount) error {

	if w.failCredit != nil {
		return w.failCredit
	}
	w.credits[to] += amount

	return nil
}

type testContext struct {
	t      *testing.T
	engine *Engine
	store  *swapdb.DB
	wallet *testWallet
	clock  *clock.TestClock
}

func newTestContext(t *testing.T) *testContext {
	t.Helper()

	store, err := swapdb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	wallet := newTestWallet()
	testClock := clock.NewTestClock(testTime)

	engine := NewEngine(&Config{
		Store:  store,
		Wallet: wallet,
		Clock:  testClock,
	})

	return &testContext{
		t:      t,
		engine: engine,
		store:  store,
		wallet: wallet,
		clock:  testClock,
	}
}

func (ctx *testContext) createLock(req *CreateLockRequest) swapdb.LockID {
	ctx.t.Helper()

	id, err := ctx.engine.CreateLock(context.Background(), req)
	require.NoError(ctx.t, err)

	return id
}

func baseRequest() *CreateLockRequest {
	return &CreateLockRequest{
		Maker:            "maker.near",
		Receiver:         "receiver.near",
		Token:            "usdc",
		Amount:           1000,
		Hashlock:         testPreimage.Hash(),
		TimelockRecovery: testTime.Add(time.Hour),
	}
}

// TestCreateLockValidation tests that invalid lock parameters are rejected
// before any value moves.
func TestCreateLockValidation(t *testing.T) {
	tests := []struct {
		name string
		edit func(*CreateLockRequest)
		err  error
	}{
		{
			name: "zero amount",
			edit: func(r *CreateLockRequest) {
				r.Amount = 0
			},
			err: ErrInvalidAmount,
		},
		{
			name: "zero hashlock",
			edit: func(r *CreateLockRequest) {
				r.Hashlock = lntypes.Hash{}
			},
			err: ErrInvalidHashlock,
		},
		{
			name: "recovery in the past",
			edit: func(r *CreateLockRequest) {
				r.TimelockRecovery = testTime.Add(-time.Hour)
			},
			err: ErrInvalidTimelock,
		},
		{
			name: "recovery exactly now",
			edit: func(r *CreateLockRequest) {
				r.TimelockRecovery = testTime
			},
			err: ErrInvalidTimelock,
		},
		{
			name: "exclusive beyond recovery",
			edit: func(r *CreateLockRequest) {
				r.TimelockExclusive = r.TimelockRecovery.Add(
					time.Minute,
				)
			},
			err: ErrInvalidTimelock,
		},
		{
			name: "no recipient with timed window",
			edit: func(r *CreateLockRequest) {
				r.Receiver = ""
				r.TimelockExclusive = testTime.Add(
					30 * time.Minute,
				)
			},
			err: ErrInvalidRecipient,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ctx := newTestContext(t)

			req := baseRequest()
			tc.edit(req)

			_, err := ctx.engine.CreateLock(
				context.Background(), req,
			)
			require.ErrorIs(t, err, tc.err)

			// Nothing was debited.
			require.Empty(t, ctx.wallet.debits)
		})
	}
}

// TestCreateLockDebitFailure tests that a failed debit leaves no lock
// behind.
func TestCreateLockDebitFailure(t *testing.T) {
	ctx := newTestContext(t)
	ctx.wallet.failDebit = errors.New("relay offline")

	_, err := ctx.engine.CreateLock(context.Background(), baseRequest())

	var downstream *xswap.DownstreamError
	require.ErrorAs(t, err, &downstream)

	_, err = ctx.engine.Lock(context.Background(), 1)
	require.ErrorIs(t, err, ErrLockNotFound)
}

// TestClaimLifecycle tests the happy claim path and that settlement is
// final.
func TestClaimLifecycle(t *testing.T) {
	ctx := newTestContext(t)
	cctx := context.Background()

	id := ctx.createLock(baseRequest())
	require.Equal(
		t, xswap.Amount(1000), ctx.wallet.debits["maker.near"],
	)

	// A wrong preimage is rejected before anything else.
	_, err := ctx.engine.Claim(cctx, "receiver.near", id, wrongPreimage)
	require.ErrorIs(t, err, ErrPreimageMismatch)

	// No exclusivity is configured, so any caller may claim, and the
	// payout goes to the designated receiver.
	receipt, err := ctx.engine.Claim(cctx, "somebody.near", id, testPreimage)
	require.NoError(t, err)
	require.Equal(t, xswap.AccountID("receiver.near"), receipt.Recipient)
	require.Equal(t, xswap.Amount(1000), receipt.Amount)
	require.Equal(
		t, xswap.Amount(1000), ctx.wallet.credits["receiver.near"],
	)

	lock, err := ctx.engine.Lock(cctx, id)
	require.NoError(t, err)
	require.Equal(t, swapdb.LockClaimed, lock.State)

	// Settled is settled, for both claim and refund.
	_, err = ctx.engine.Claim(cctx, "receiver.near", id, testPreimage)
	require.ErrorIs(t, err, ErrAlreadySettled)

	ctx.clock.SetTime(testTime.Add(2 * time.Hour))
	_, err = ctx.engine.Refund(cctx, "maker.near", id)
	require.ErrorIs(t, err, ErrAlreadySettled)
}

// TestClaimExpiry tests that the recovery deadline cuts off claims, with the
// boundary instant belonging to the refund side.
func TestClaimExpiry(t *testing.T) {
	ctx := newTestContext(t)
	cctx := context.Background()

	id := ctx.createLock(baseRequest())

	// At the recovery instant the claim window is closed.
	ctx.clock.SetTime(testTime.Add(time.Hour))
	_, err := ctx.engine.Claim(cctx, "receiver.near", id, testPreimage)
	require.ErrorIs(t, err, ErrLockExpired)

	// And the refund window is open.
	receipt, err := ctx.engine.Refund(cctx, "maker.near", id)
	require.NoError(t, err)
	require.Equal(t, xswap.AccountID("maker.near"), receipt.Recipient)
	require.Equal(
		t, xswap.Amount(1000), ctx.wallet.credits["maker.near"],
	)

	lock, err := ctx.engine.Lock(cctx, id)
	require.NoError(t, err)
	require.Equal(t, swapdb.LockRefunded, lock.State)
}

// TestRefundGuards tests the refund preconditions.
func TestRefundGuards(t *testing.T) {
	ctx := newTestContext(t)
	cctx := context.Background()

	id := ctx.createLock(baseRequest())

	// Too early.
	_, err := ctx.engine.Refund(cctx, "maker.near", id)
	require.ErrorIs(t, err, ErrNotYetExpired)

	// Wrong caller, even after expiry.
	ctx.clock.SetTime(testTime.Add(2 * time.Hour))
	_, err = ctx.engine.Refund(cctx, "receiver.near", id)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = ctx.engine.Refund(cctx, "maker.near", 42)
	require.ErrorIs(t, err, ErrLockNotFound)
}

// TestExclusivityWindow tests the timed resolver-only window: before the
// exclusive timelock only the resolver may claim, from then on anyone may,
// and the payout always goes to the resolver.
func TestExclusivityWindow(t *testing.T) {
	cctx := context.Background()

	req := baseRequest()
	req.Resolver = "resolver.near"
	req.TimelockExclusive = testTime.Add(30 * time.Minute)

	t.Run("resolver claims inside window", func(t *testing.T) {
		ctx := newTestContext(t)
		id := ctx.createLock(req)

		_, err := ctx.engine.Claim(
			cctx, "receiver.near", id, testPreimage,
		)
		require.ErrorIs(t, err, ErrUnauthorized)

		receipt, err := ctx.engine.Claim(
			cctx, "resolver.near", id, testPreimage,
		)
		require.NoError(t, err)
		require.Equal(
			t, xswap.AccountID("resolver.near"), receipt.Recipient,
		)
	})

	t.Run("window opens at the exclusive instant", func(t *testing.T) {
		ctx := newTestContext(t)
		id := ctx.createLock(req)

		ctx.clock.SetTime(testTime.Add(30 * time.Minute))

		receipt, err := ctx.engine.Claim(
			cctx, "somebody.near", id, testPreimage,
		)
		require.NoError(t, err)

		// The payout still goes to the resolver.
		require.Equal(
			t, xswap.AccountID("resolver.near"), receipt.Recipient,
		)
		require.Equal(
			t, xswap.Amount(1000),
			ctx.wallet.credits["resolver.near"],
		)
	})
}

// TestResolverExclusiveLife tests that a resolver lock without a timed
// window stays resolver-only until recovery.
func TestResolverExclusiveLife(t *testing.T) {
	ctx := newTestContext(t)
	cctx := context.Background()

	req := baseRequest()
	req.Receiver = ""
	req.Resolver = "resolver.near"

	id := ctx.createLock(req)

	ctx.clock.SetTime(testTime.Add(59 * time.Minute))
	_, err := ctx.engine.Claim(cctx, "somebody.near", id, testPreimage)
	require.ErrorIs(t, err, ErrUnauthorized)

	receipt, err := ctx.engine.Claim(cctx, "resolver.near", id, testPreimage)
	require.NoError(t, err)
	require.Equal(t, xswap.AccountID("resolver.near"), receipt.Recipient)
}

// TestResolverAssignment tests locks created awaiting a resolver: claims are
// blocked until one is assigned, and the first assignment wins.
func TestResolverAssignment(t *testing.T) {
	ctx := newTestContext(t)
	cctx := context.Background()

	req := baseRequest()
	req.Receiver = ""

	id := ctx.createLock(req)

	// Nobody may claim yet, not even the maker.
	_, err := ctx.engine.Claim(cctx, "maker.near", id, testPreimage)
	require.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(
		t, ctx.engine.AssignResolver(cctx, id, "resolver.near"),
	)

	// Assigning again is a no-op, the first assignment sticks.
	require.NoError(
		t, ctx.engine.AssignResolver(cctx, id, "other.near"),
	)

	lock, err := ctx.engine.Lock(cctx, id)
	require.NoError(t, err)
	require.Equal(t, xswap.AccountID("resolver.near"), lock.Resolver)

	receipt, err := ctx.engine.Claim(
		cctx, "resolver.near", id, testPreimage,
	)
	require.NoError(t, err)
	require.Equal(t, xswap.AccountID("resolver.near"), receipt.Recipient)

	// Settled locks reject further assignment.
	err = ctx.engine.AssignResolver(cctx, id, "late.near")
	require.ErrorIs(t, err, ErrAlreadySettled)
}

// TestClaimCreditFailure tests that a failed payout rolls the claim back
// entirely.
func TestClaimCreditFailure(t *testing.T) {
	ctx := newTestContext(t)
	cctx := context.Background()

	id := ctx.createLock(baseRequest())

	ctx.wallet.failCredit = errors.New("relay offline")
	_, err := ctx.engine.Claim(cctx, "receiver.near", id, testPreimage)

	var downstream *xswap.DownstreamError
	require.ErrorAs(t, err, &downstream)

	// The lock is still open and claimable.
	lock, err := ctx.engine.Lock(cctx, id)
	require.NoError(t, err)
	require.Equal(t, swapdb.LockOpen, lock.State)

	ctx.wallet.failCredit = nil
	_, err = ctx.engine.Claim(cctx, "receiver.near", id, testPreimage)
	require.NoError(t, err)
}
