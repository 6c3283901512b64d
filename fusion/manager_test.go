package fusion

import (
	"context"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/stretchr/testify/require"
	"github.com/xswaplabs/xswap"
	"github.com/xswaplabs/xswap/attest"
	"github.com/xswaplabs/xswap/escrow"
	"github.com/xswaplabs/xswap/swapdb"
)

const (
	admin  = xswap.AccountID("admin.near")
	solver = xswap.AccountID("solver.near")
	alice  = xswap.AccountID("alice.near")
)

var (
	testSecret = lntypes.Preimage([32]byte{
		1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4,
		1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4,
	})

	testAttestation = attest.Attestation{
		EnclaveID: "enclave-1",
		Report:    "report-1",
		PublicKey: "key-1",
	}

	testSignature = attest.Signature{
		Signature: "sig-1",
		PublicKey: "key-1",
		Message:   "intent-1",
	}

	testTime = time.Date(2026, time.January, 9, 14, 0, 0, 0, time.UTC)

	testDeadline = testTime.Add(10 * time.Minute)
)

type testContext struct {
	t       *testing.T
	manager *Manager
	escrow  *escrow.Engine
	store   *swapdb.DB
	clock   *clock.TestClock
	context context.Context
}

func newTestContext(t *testing.T) *testContext {
	t.Helper()

	store, err := swapdb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	testClock := clock.NewTestClock(testTime)

	escrowEngine := escrow.NewEngine(&escrow.Config{
		Store:  store,
		Wallet: xswap.NopWallet{},
		Clock:  testClock,
	})

	manager := NewManager(&Config{
		Store:        store,
		Escrow:       escrowEngine,
		Attestations: attest.PermissiveVerifier{},
		Signatures:   attest.PermissiveVerifier{},
		Clock:        testClock,
		Admin:        admin,
	})

	return &testContext{
		t:       t,
		manager: manager,
		escrow:  escrowEngine,
		store:   store,
		clock:   testClock,
		context: context.Background(),
	}
}

func (ctx *testContext) registerSolver() {
	ctx.t.Helper()

	err := ctx.manager.RegisterSolver(
		ctx.context, admin, solver, 100, 100000, 250, testAttestation,
	)
	require.NoError(ctx.t, err)
}

// quote runs the request and quote steps, returning the resulting order id.
func (ctx *testContext) quote(intentID string) swapdb.OrderID {
	ctx.t.Helper()

	requestID, err := ctx.manager.RequestQuote(
		ctx.context, alice, "wnear", "usdc", 10000, testDeadline,
	)
	require.NoError(ctx.t, err)

	sig := testSignature
	sig.Message = intentID
	orderID, err := ctx.manager.GenerateQuote(
		ctx.context, solver, requestID, 10000, intentID, sig,
	)
	require.NoError(ctx.t, err)

	return orderID
}

// fundIntent creates the escrow lock the intent settles against.
func (ctx *testContext) fundIntent(intentID string) swapdb.LockID {
	ctx.t.Helper()

	lockID, err := ctx.escrow.CreateLock(
		ctx.context, &escrow.CreateLockRequest{
			Maker:            alice,
			Receiver:         alice,
			Token:            "usdc",
			Amount:           9750,
			Hashlock:         testSecret.Hash(),
			TimelockRecovery: testDeadline,
			IntentID:         intentID,
		},
	)
	require.NoError(ctx.t, err)

	return lockID
}

// TestRegisterSolver tests the registration guards and the initial solver
// record.
func TestRegisterSolver(t *testing.T) {
	ctx := newTestContext(t)

	// Only the admin may register.
	err := ctx.manager.RegisterSolver(
		ctx.context, alice, solver, 100, 100000, 250, testAttestation,
	)
	require.ErrorIs(t, err, ErrUnauthorized)

	// The fee is capped at 10%.
	err = ctx.manager.RegisterSolver(
		ctx.context, admin, solver, 100, 100000, 1001, testAttestation,
	)
	require.ErrorIs(t, err, ErrFeeTooHigh)

	// The attestation must carry a report.
	err = ctx.manager.RegisterSolver(
		ctx.context, admin, solver, 100, 100000, 250,
		attest.Attestation{EnclaveID: "enclave-1"},
	)
	require.ErrorIs(t, err, ErrInvalidAttestation)

	ctx.registerSolver()

	cfg, err := ctx.manager.SolverConfig(ctx.context, solver)
	require.NoError(t, err)
	require.True(t, cfg.Active)
	require.Equal(t, uint32(1000), cfg.Reputation)
	require.Equal(t, uint32(250), cfg.FeeBps)
	require.Equal(t, testAttestation, cfg.Attestation)

	active, err := ctx.manager.ActiveSolvers(ctx.context)
	require.NoError(t, err)
	require.Equal(t, []xswap.AccountID{solver}, active)
}

// TestSolverAdmin tests deactivation and config updates.
func TestSolverAdmin(t *testing.T) {
	ctx := newTestContext(t)
	ctx.registerSolver()

	err := ctx.manager.UpdateSolverConfig(
		ctx.context, alice, solver, 1, 2, 3,
	)
	require.ErrorIs(t, err, ErrUnauthorized)

	err = ctx.manager.UpdateSolverConfig(
		ctx.context, admin, "ghost.near", 1, 2, 3,
	)
	require.ErrorIs(t, err, ErrSolverNotRegistered)

	err = ctx.manager.UpdateSolverConfig(
		ctx.context, admin, solver, 500, 50000, 100,
	)
	require.NoError(t, err)

	cfg, err := ctx.manager.SolverConfig(ctx.context, solver)
	require.NoError(t, err)
	require.Equal(t, xswap.Amount(500), cfg.MinQuoteAmount)
	require.Equal(t, xswap.Amount(50000), cfg.MaxQuoteAmount)
	require.Equal(t, uint32(100), cfg.FeeBps)

	// Updates leave activity and reputation alone.
	require.True(t, cfg.Active)
	require.Equal(t, uint32(1000), cfg.Reputation)

	err = ctx.manager.DeactivateSolver(ctx.context, alice, solver)
	require.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(
		t, ctx.manager.DeactivateSolver(ctx.context, admin, solver),
	)

	active, err := ctx.manager.ActiveSolvers(ctx.context)
	require.NoError(t, err)
	require.Empty(t, active)
}

// TestRequestQuoteValidation tests the request guards.
func TestRequestQuoteValidation(t *testing.T) {
	ctx := newTestContext(t)

	_, err := ctx.manager.RequestQuote(
		ctx.context, alice, "wnear", "usdc", 0, testDeadline,
	)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ctx.manager.RequestQuote(
		ctx.context, alice, "wnear", "usdc", 10000, testTime,
	)
	require.ErrorIs(t, err, ErrInvalidDeadline)
}

// TestGenerateQuote tests the quote guards and the fee math.
func TestGenerateQuote(t *testing.T) {
	ctx := newTestContext(t)
	ctx.registerSolver()

	requestID, err := ctx.manager.RequestQuote(
		ctx.context, alice, "wnear", "usdc", 10000, testDeadline,
	)
	require.NoError(t, err)

	_, err = ctx.manager.GenerateQuote(
		ctx.context, solver, requestID, 10000, "", testSignature,
	)
	require.ErrorIs(t, err, ErrInvalidIntentID)

	_, err = ctx.manager.GenerateQuote(
		ctx.context, "ghost.near", requestID, 10000, "intent-1",
		testSignature,
	)
	require.ErrorIs(t, err, ErrSolverNotRegistered)

	_, err = ctx.manager.GenerateQuote(
		ctx.context, solver, 42, 10000, "intent-1", testSignature,
	)
	require.ErrorIs(t, err, ErrRequestNotFound)

	// The quoted amount must fall into the solver's range.
	_, err = ctx.manager.GenerateQuote(
		ctx.context, solver, requestID, 99, "intent-1", testSignature,
	)
	require.ErrorIs(t, err, ErrQuoteOutOfRange)

	_, err = ctx.manager.GenerateQuote(
		ctx.context, solver, requestID, 100001, "intent-1",
		testSignature,
	)
	require.ErrorIs(t, err, ErrQuoteOutOfRange)

	// 250 bps of 10000 is a fee of 250, netting 9750.
	orderID, err := ctx.manager.GenerateQuote(
		ctx.context, solver, requestID, 10000, "intent-1",
		testSignature,
	)
	require.NoError(t, err)

	order, err := ctx.manager.MetaOrder(ctx.context, orderID)
	require.NoError(t, err)
	require.Equal(t, solver, order.Solver)
	require.Equal(t, xswap.Amount(9750), order.ToAmount)
	require.Equal(t, "intent-1", order.IntentID)
	require.False(t, order.Executed)

	request, err := ctx.manager.QuoteRequest(ctx.context, requestID)
	require.NoError(t, err)
	require.True(t, request.Executed)
	require.Equal(t, xswap.Amount(9750), request.ToAmount)
	require.Equal(t, "intent-1", request.IntentID)

	intent, err := ctx.manager.Intent(ctx.context, "intent-1")
	require.NoError(t, err)
	require.Equal(t, alice, intent.User)
	require.Equal(t, swapdb.IntentPending, intent.State)
	require.Equal(t, xswap.Amount(9750), intent.ToAmount)

	// A request is quoted at most once.
	_, err = ctx.manager.GenerateQuote(
		ctx.context, solver, requestID, 10000, "intent-2",
		testSignature,
	)
	require.ErrorIs(t, err, ErrAlreadyExecuted)

	// And an intent id binds to exactly one settlement.
	requestID2, err := ctx.manager.RequestQuote(
		ctx.context, alice, "wnear", "usdc", 10000, testDeadline,
	)
	require.NoError(t, err)

	_, err = ctx.manager.GenerateQuote(
		ctx.context, solver, requestID2, 10000, "intent-1",
		testSignature,
	)
	require.ErrorIs(t, err, ErrInvalidIntentID)

	// An expired request is no longer quotable.
	ctx.clock.SetTime(testDeadline.Add(time.Second))
	_, err = ctx.manager.GenerateQuote(
		ctx.context, solver, requestID2, 10000, "intent-2",
		testSignature,
	)
	require.ErrorIs(t, err, ErrRequestExpired)
}

// TestGenerateQuoteInactiveSolver tests that deactivated solvers cannot
// quote.
func TestGenerateQuoteInactiveSolver(t *testing.T) {
	ctx := newTestContext(t)
	ctx.registerSolver()

	requestID, err := ctx.manager.RequestQuote(
		ctx.context, alice, "wnear", "usdc", 10000, testDeadline,
	)
	require.NoError(t, err)

	require.NoError(
		t, ctx.manager.DeactivateSolver(ctx.context, admin, solver),
	)

	_, err = ctx.manager.GenerateQuote(
		ctx.context, solver, requestID, 10000, "intent-1",
		testSignature,
	)
	require.ErrorIs(t, err, ErrSolverInactive)
}

// TestGenerateQuoteLargeAmountFee tests that the fee stays exact for quote
// amounts whose product with the fee rate exceeds 64 bits.
func TestGenerateQuoteLargeAmountFee(t *testing.T) {
	ctx := newTestContext(t)

	const toAmount = xswap.Amount(1) << 62

	err := ctx.manager.RegisterSolver(
		ctx.context, admin, solver, 1, toAmount, maxFeeBps,
		testAttestation,
	)
	require.NoError(t, err)

	requestID, err := ctx.manager.RequestQuote(
		ctx.context, alice, "wnear", "usdc", toAmount, testDeadline,
	)
	require.NoError(t, err)

	orderID, err := ctx.manager.GenerateQuote(
		ctx.context, solver, requestID, toAmount, "intent-1",
		testSignature,
	)
	require.NoError(t, err)

	// At the 1000 bps cap the fee is a tenth of the quote, truncating.
	fee := toAmount / 10
	order, err := ctx.manager.MetaOrder(ctx.context, orderID)
	require.NoError(t, err)
	require.Equal(t, toAmount-fee, order.ToAmount)
}

// TestExecuteMetaOrder tests the full settlement happy path: quote, fund,
// execute, claim.
func TestExecuteMetaOrder(t *testing.T) {
	ctx := newTestContext(t)
	ctx.registerSolver()

	orderID := ctx.quote("intent-1")
	lockID := ctx.fundIntent("intent-1")

	settled, err := ctx.manager.ExecuteMetaOrder(
		ctx.context, solver, orderID, testSecret,
	)
	require.NoError(t, err)
	require.True(t, settled)

	// The lock was claimed as part of the execution.
	lock, err := ctx.escrow.Lock(ctx.context, lockID)
	require.NoError(t, err)
	require.Equal(t, swapdb.LockClaimed, lock.State)

	order, err := ctx.manager.MetaOrder(ctx.context, orderID)
	require.NoError(t, err)
	require.True(t, order.Executed)

	intent, err := ctx.manager.Intent(ctx.context, "intent-1")
	require.NoError(t, err)
	require.Equal(t, swapdb.IntentExecuted, intent.State)

	// A successful settlement earns the solver reputation.
	cfg, err := ctx.manager.SolverConfig(ctx.context, solver)
	require.NoError(t, err)
	require.Equal(t, uint32(1010), cfg.Reputation)

	// Executed is terminal.
	_, err = ctx.manager.ExecuteMetaOrder(
		ctx.context, solver, orderID, testSecret,
	)
	require.ErrorIs(t, err, ErrAlreadyExecuted)
}

// TestExecuteMetaOrderGuards tests the execution preconditions.
func TestExecuteMetaOrderGuards(t *testing.T) {
	ctx := newTestContext(t)
	ctx.registerSolver()

	orderID := ctx.quote("intent-1")
	ctx.fundIntent("intent-1")

	_, err := ctx.manager.ExecuteMetaOrder(
		ctx.context, solver, 42, testSecret,
	)
	require.ErrorIs(t, err, ErrOrderNotFound)

	// An order with an empty signature is rejected.
	err = ctx.store.Update(func(tx *swapdb.Tx) error {
		order, err := tx.MetaOrder(orderID)
		require.NoError(t, err)

		order.Signature = attest.Signature{}
		return tx.PutMetaOrder(order)
	})
	require.NoError(t, err)

	_, err = ctx.manager.ExecuteMetaOrder(
		ctx.context, solver, orderID, testSecret,
	)
	require.ErrorIs(t, err, ErrInvalidSignature)

	// An expired order is no longer executable.
	orderID2 := ctx.quote("intent-2")
	ctx.clock.SetTime(testDeadline.Add(time.Second))

	_, err = ctx.manager.ExecuteMetaOrder(
		ctx.context, solver, orderID2, testSecret,
	)
	require.ErrorIs(t, err, ErrOrderExpired)
}

// TestExecuteMetaOrderFailure tests that a failed claim is reported as an
// unsettled outcome, marks the intent failed and costs reputation, without
// leaving partial claim state behind.
func TestExecuteMetaOrderFailure(t *testing.T) {
	ctx := newTestContext(t)
	ctx.registerSolver()

	orderID := ctx.quote("intent-1")
	lockID := ctx.fundIntent("intent-1")

	// The wrong secret cannot claim the lock.
	wrongSecret := lntypes.Preimage([32]byte{9, 9, 9, 9})
	settled, err := ctx.manager.ExecuteMetaOrder(
		ctx.context, solver, orderID, wrongSecret,
	)
	require.NoError(t, err)
	require.False(t, settled)

	// The lock is untouched.
	lock, err := ctx.escrow.Lock(ctx.context, lockID)
	require.NoError(t, err)
	require.Equal(t, swapdb.LockOpen, lock.State)

	// The intent is terminally failed and the solver lost reputation.
	intent, err := ctx.manager.Intent(ctx.context, "intent-1")
	require.NoError(t, err)
	require.Equal(t, swapdb.IntentFailed, intent.State)

	cfg, err := ctx.manager.SolverConfig(ctx.context, solver)
	require.NoError(t, err)
	require.Equal(t, uint32(990), cfg.Reputation)

	order, err := ctx.manager.MetaOrder(ctx.context, orderID)
	require.NoError(t, err)
	require.False(t, order.Executed)

	// Failed is terminal, the settlement cannot be retried even with the
	// right secret.
	_, err = ctx.manager.ExecuteMetaOrder(
		ctx.context, solver, orderID, testSecret,
	)
	require.ErrorIs(t, err, ErrAlreadyExecuted)
}

// TestExecuteMetaOrderUnfunded tests executing an order whose intent has no
// escrow lock behind it.
func TestExecuteMetaOrderUnfunded(t *testing.T) {
	ctx := newTestContext(t)
	ctx.registerSolver()

	orderID := ctx.quote("intent-1")

	settled, err := ctx.manager.ExecuteMetaOrder(
		ctx.context, solver, orderID, testSecret,
	)
	require.NoError(t, err)
	require.False(t, settled)

	intent, err := ctx.manager.Intent(ctx.context, "intent-1")
	require.NoError(t, err)
	require.Equal(t, swapdb.IntentFailed, intent.State)
}

// TestReputationFloor tests that repeated failures saturate the reputation
// at zero.
func TestReputationFloor(t *testing.T) {
	ctx := newTestContext(t)
	ctx.registerSolver()

	// Prime the solver with the minimum non-zero score.
	err := ctx.store.Update(func(tx *swapdb.Tx) error {
		cfg, err := tx.Solver(solver)
		require.NoError(t, err)

		cfg.Reputation = 5
		return tx.PutSolver(cfg)
	})
	require.NoError(t, err)

	orderID := ctx.quote("intent-1")

	// An unfunded intent fails the settlement.
	settled, err := ctx.manager.ExecuteMetaOrder(
		ctx.context, solver, orderID, testSecret,
	)
	require.NoError(t, err)
	require.False(t, settled)

	cfg, err := ctx.manager.SolverConfig(ctx.context, solver)
	require.NoError(t, err)
	require.Equal(t, uint32(0), cfg.Reputation)

	// A second failure cannot push it below zero.
	orderID2 := ctx.quote("intent-2")
	settled, err = ctx.manager.ExecuteMetaOrder(
		ctx.context, solver, orderID2, testSecret,
	)
	require.NoError(t, err)
	require.False(t, settled)

	cfg, err = ctx.manager.SolverConfig(ctx.context, solver)
	require.NoError(t, err)
	require.Equal(t, uint32(0), cfg.Reputation)
}

// TestQuoteStats tests the pipeline counters.
func TestQuoteStats(t *testing.T) {
	ctx := newTestContext(t)
	ctx.registerSolver()

	requests, orders, err := ctx.manager.QuoteStats(ctx.context)
	require.NoError(t, err)
	require.Zero(t, requests)
	require.Zero(t, orders)

	ctx.quote("intent-1")

	_, err = ctx.manager.RequestQuote(
		ctx.context, alice, "wnear", "usdc", 10000, testDeadline,
	)
	require.NoError(t, err)

	requests, orders, err = ctx.manager.QuoteStats(ctx.context)
	require.NoError(t, err)
	require.Equal(t, uint64(2), requests)
	require.Equal(t, uint64(1), orders)
}
