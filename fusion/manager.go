// Package fusion implements the solver settlement pipeline: quote requests
// answered by registered solvers, solver-signed meta orders, and
// signature-gated execution that settles through the escrow engine. The
// pipeline decides whether and at what price value moves, the escrow engine
// is the only component that moves it.
package fusion

import (
	"context"
	"errors"
	"math/bits"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/xswaplabs/xswap"
	"github.com/xswaplabs/xswap/attest"
	"github.com/xswaplabs/xswap/escrow"
	"github.com/xswaplabs/xswap/swapdb"
)

const (
	// maxFeeBps caps the solver fee at 10%.
	maxFeeBps = 1000

	// feeDivisor converts basis points into a fraction.
	feeDivisor = 10000

	// initialReputation is the score every solver starts with.
	initialReputation = 1000

	// reputationStep is added on a settled execution and subtracted on a
	// failed one. Reputation has no ceiling and never drops below zero.
	reputationStep = 10
)

var (
	// ErrUnauthorized is returned when a non-admin calls an admin-only
	// operation.
	ErrUnauthorized = errors.New("caller not authorized")

	// ErrFeeTooHigh is returned when a solver registers with a fee above
	// 1000 basis points.
	ErrFeeTooHigh = errors.New("solver fee too high")

	// ErrInvalidAttestation is returned when the attestation boundary
	// rejects a solver's attestation.
	ErrInvalidAttestation = errors.New("invalid attestation")

	// ErrInvalidAmount is returned when a quote is requested for a zero
	// amount.
	ErrInvalidAmount = errors.New("quote amount must be positive")

	// ErrInvalidDeadline is returned when a quote is requested with a
	// deadline that is not in the future.
	ErrInvalidDeadline = errors.New("deadline must be in the future")

	// ErrSolverNotRegistered is returned when an unknown solver attempts
	// to quote.
	ErrSolverNotRegistered = errors.New("solver not registered")

	// ErrSolverInactive is returned when a deactivated solver attempts to
	// quote.
	ErrSolverInactive = errors.New("solver not active")

	// ErrRequestNotFound is returned when the referenced quote request
	// does not exist.
	ErrRequestNotFound = errors.New("quote request not found")

	// ErrRequestExpired is returned when a quote is generated after the
	// request deadline.
	ErrRequestExpired = errors.New("quote request expired")

	// ErrAlreadyExecuted is returned when the referenced request or order
	// was already executed.
	ErrAlreadyExecuted = errors.New("already executed")

	// ErrQuoteOutOfRange is returned when the quoted amount falls outside
	// the solver's configured quote range.
	ErrQuoteOutOfRange = errors.New("quote amount out of solver range")

	// ErrFeeExceedsAmount is returned when the computed fee exceeds the
	// quoted amount. Only an inconsistent solver configuration can
	// trigger this.
	ErrFeeExceedsAmount = errors.New("fee exceeds quote amount")

	// ErrInvalidIntentID is returned when a quote is generated without an
	// intent id, or with one that is already in use.
	ErrInvalidIntentID = errors.New("invalid intent id")

	// ErrOrderNotFound is returned when the referenced meta order does
	// not exist.
	ErrOrderNotFound = errors.New("meta order not found")

	// ErrOrderExpired is returned when execution is attempted after the
	// order deadline.
	ErrOrderExpired = errors.New("meta order expired")

	// ErrInvalidSignature is returned when the signature boundary rejects
	// the order signature.
	ErrInvalidSignature = errors.New("invalid order signature")
)

// Config contains the external collaborators of the settlement pipeline.
type Config struct {
	// Store is the ledger the pipeline keeps its entities in.
	Store *swapdb.DB

	// Escrow settles executed orders. The claim happens in the same
	// ledger transaction as the order execution.
	Escrow *escrow.Engine

	// Attestations authenticates solver registrations.
	Attestations attest.AttestationVerifier

	// Signatures authenticates meta order executions.
	Signatures attest.SignatureVerifier

	// Clock is the single time oracle for deadline checks.
	Clock clock.Clock

	// Admin is the only account allowed to manage solvers.
	Admin xswap.AccountID
}

// Manager drives the quote request, meta order and intent lifecycle.
type Manager struct {
	cfg *Config
}

// NewManager returns a settlement pipeline backed by the given
// collaborators.
func NewManager(cfg *Config) *Manager {
	return &Manager{cfg: cfg}
}

// RegisterSolver registers a solver with its quote range, fee and enclave
// attestation. Admin only. Reputation starts at the initial score.
func (m *Manager) RegisterSolver(_ context.Context, caller xswap.AccountID,
	address xswap.AccountID, minAmount, maxAmount xswap.Amount,
	feeBps uint32, att attest.Attestation) error {

	if caller != m.cfg.Admin {
		return ErrUnauthorized
	}
	if feeBps > maxFeeBps {
		return ErrFeeTooHigh
	}
	if !m.cfg.Attestations.VerifyAttestation(att) {
		return ErrInvalidAttestation
	}

	err := m.cfg.Store.Update(func(tx *swapdb.Tx) error {
		return tx.PutSolver(&swapdb.SolverConfig{
			Address:        address,
			MinQuoteAmount: minAmount,
			MaxQuoteAmount: maxAmount,
			FeeBps:         feeBps,
			Active:         true,
			Reputation:     initialReputation,
			Attestation:    att,
		})
	})
	if err != nil {
		return err
	}

	log.Infof("Solver %v registered: range=[%v, %v] fee=%v bps",
		address, minAmount, maxAmount, feeBps)

	return nil
}

// DeactivateSolver stops a solver from generating quotes. Admin only.
func (m *Manager) DeactivateSolver(_ context.Context,
	caller, address xswap.AccountID) error {

	if caller != m.cfg.Admin {
		return ErrUnauthorized
	}

	return m.cfg.Store.Update(func(tx *swapdb.Tx) error {
		solver, err := tx.Solver(address)
		switch {
		case errors.Is(err, swapdb.ErrNotFound):
			return ErrSolverNotRegistered
		case err != nil:
			return err
		}

		solver.Active = false

		return tx.PutSolver(solver)
	})
}

// UpdateSolverConfig replaces a solver's quote range and fee. Admin only.
// Activity and reputation are untouched.
func (m *Manager) UpdateSolverConfig(_ context.Context,
	caller, address xswap.AccountID, minAmount, maxAmount xswap.Amount,
	feeBps uint32) error {

	if caller != m.cfg.Admin {
		return ErrUnauthorized
	}
	if feeBps > maxFeeBps {
		return ErrFeeTooHigh
	}

	return m.cfg.Store.Update(func(tx *swapdb.Tx) error {
		solver, err := tx.Solver(address)
		switch {
		case errors.Is(err, swapdb.ErrNotFound):
			return ErrSolverNotRegistered
		case err != nil:
			return err
		}

		solver.MinQuoteAmount = minAmount
		solver.MaxQuoteAmount = maxAmount
		solver.FeeBps = feeBps

		return tx.PutSolver(solver)
	})
}

// RequestQuote records a user's ask for a cross-chain price and returns its
// id. Ids come from the store sequence, so two requests can never collide.
func (m *Manager) RequestQuote(_ context.Context,
	requester xswap.AccountID, fromToken, toToken xswap.Token,
	fromAmount xswap.Amount, deadline time.Time) (swapdb.RequestID,
	error) {

	if fromAmount == 0 {
		return 0, ErrInvalidAmount
	}
	if !deadline.After(m.cfg.Clock.Now()) {
		return 0, ErrInvalidDeadline
	}

	var requestID swapdb.RequestID
	err := m.cfg.Store.Update(func(tx *swapdb.Tx) error {
		var err error
		requestID, err = tx.CreateQuoteRequest(&swapdb.QuoteRequest{
			Requester:  requester,
			FromToken:  fromToken,
			ToToken:    toToken,
			FromAmount: fromAmount,
			Deadline:   deadline,
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	log.Infof("Quote requested: id=%v %v %v -> %v", requestID,
		fromAmount, fromToken, toToken)

	return requestID, nil
}

// GenerateQuote answers a quote request. Called by a registered, active
// solver. The net amount after the solver fee is committed into a meta order
// and a pending intent, atomically with the request update.
func (m *Manager) GenerateQuote(_ context.Context, caller xswap.AccountID,
	requestID swapdb.RequestID, toAmount xswap.Amount, intentID string,
	sig attest.Signature) (swapdb.OrderID, error) {

	if intentID == "" {
		return 0, ErrInvalidIntentID
	}

	var orderID swapdb.OrderID
	err := m.cfg.Store.Update(func(tx *swapdb.Tx) error {
		solver, err := tx.Solver(caller)
		switch {
		case errors.Is(err, swapdb.ErrNotFound):
			return ErrSolverNotRegistered
		case err != nil:
			return err
		}
		if !solver.Active {
			return ErrSolverInactive
		}

		request, err := tx.QuoteRequest(requestID)
		switch {
		case errors.Is(err, swapdb.ErrNotFound):
			return ErrRequestNotFound
		case err != nil:
			return err
		}

		if m.cfg.Clock.Now().After(request.Deadline) {
			return ErrRequestExpired
		}
		if request.Executed {
			return ErrAlreadyExecuted
		}

		if toAmount < solver.MinQuoteAmount ||
			toAmount > solver.MaxQuoteAmount {

			return ErrQuoteOutOfRange
		}

		// An intent id is chosen by the solver, reusing one would
		// cross-wire two settlements.
		_, err = tx.Intent(intentID)
		switch {
		case err == nil:
			return ErrInvalidIntentID
		case !errors.Is(err, swapdb.ErrNotFound):
			return err
		}

		fee := solverFee(toAmount, solver.FeeBps)
		if fee > toAmount {
			return ErrFeeExceedsAmount
		}
		finalAmount := toAmount - fee

		orderID, err = tx.CreateMetaOrder(&swapdb.MetaOrder{
			Solver:     caller,
			FromToken:  request.FromToken,
			ToToken:    request.ToToken,
			FromAmount: request.FromAmount,
			ToAmount:   finalAmount,
			Deadline:   request.Deadline,
			IntentID:   intentID,
			Signature:  sig,
		})
		if err != nil {
			return err
		}

		request.ToAmount = finalAmount
		request.IntentID = intentID
		request.Executed = true
		if err := tx.PutQuoteRequest(request); err != nil {
			return err
		}

		return tx.PutIntent(&swapdb.Intent{
			IntentID:   intentID,
			User:       request.Requester,
			FromToken:  request.FromToken,
			ToToken:    request.ToToken,
			FromAmount: request.FromAmount,
			ToAmount:   finalAmount,
			Deadline:   request.Deadline,
			State:      swapdb.IntentPending,
		})
	})
	if err != nil {
		return 0, err
	}

	log.Infof("Quote generated: request=%v order=%v solver=%v",
		requestID, orderID, caller)

	return orderID, nil
}

// errSettlementFailed aborts the settlement transaction so that a partially
// executed claim is rolled back before the failure is recorded.
var errSettlementFailed = errors.New("settlement failed")

// ExecuteMetaOrder settles a quoted swap. The order signature is verified
// against the intent id, then the escrow lock funding the intent is claimed
// with the given secret, atomically with the order and intent updates. The
// settlement outcome is returned, not thrown: a failed fill marks the intent
// failed, costs the solver reputation and yields false without an error.
func (m *Manager) ExecuteMetaOrder(ctx context.Context,
	caller xswap.AccountID, orderID swapdb.OrderID,
	secret lntypes.Preimage) (bool, error) {

	var (
		solver   xswap.AccountID
		intentID string
		claimErr error
	)
	err := m.cfg.Store.Update(func(tx *swapdb.Tx) error {
		order, err := tx.MetaOrder(orderID)
		switch {
		case errors.Is(err, swapdb.ErrNotFound):
			return ErrOrderNotFound
		case err != nil:
			return err
		}
		solver, intentID = order.Solver, order.IntentID

		if m.cfg.Clock.Now().After(order.Deadline) {
			return ErrOrderExpired
		}
		if order.Executed {
			return ErrAlreadyExecuted
		}

		intent, err := tx.Intent(order.IntentID)
		if err != nil {
			return err
		}

		// Failed and executed intents are terminal, a failed
		// settlement must come back as a brand new request.
		if intent.State != swapdb.IntentPending {
			return ErrAlreadyExecuted
		}

		ok := m.cfg.Signatures.VerifySignature(
			order.Signature, order.IntentID,
		)
		if !ok {
			return ErrInvalidSignature
		}

		claimErr = m.claimIntentLock(
			ctx, tx, caller, order.IntentID, secret,
		)
		if claimErr != nil {
			// Abort so the claim's partial mutations roll back.
			// The failure itself is recorded in a fresh
			// transaction below.
			return errSettlementFailed
		}

		order.Executed = true
		if err := tx.PutMetaOrder(order); err != nil {
			return err
		}

		intent.State = swapdb.IntentExecuted
		if err := tx.PutIntent(intent); err != nil {
			return err
		}

		return m.updateReputation(tx, order.Solver, true)
	})

	switch {
	case err == nil:
		log.Infof("Meta order %v executed: settled=true", orderID)
		return true, nil

	case !errors.Is(err, errSettlementFailed):
		return false, err
	}

	// A failed fill is an expected outcome. Record the terminal intent
	// state and the reputation hit, and report the outcome to the
	// caller.
	log.Warnf("Order %v settlement failed: %v", orderID, claimErr)

	err = m.cfg.Store.Update(func(tx *swapdb.Tx) error {
		intent, err := tx.Intent(intentID)
		if err != nil {
			return err
		}

		intent.State = swapdb.IntentFailed
		if err := tx.PutIntent(intent); err != nil {
			return err
		}

		return m.updateReputation(tx, solver, false)
	})
	if err != nil {
		return false, err
	}

	return false, nil
}

// claimIntentLock resolves the escrow lock funding the intent and claims it
// with the secret within the ongoing transaction.
func (m *Manager) claimIntentLock(ctx context.Context, tx *swapdb.Tx,
	caller xswap.AccountID, intentID string,
	secret lntypes.Preimage) error {

	lockID, err := tx.LockIDByIntent(intentID)
	if err != nil {
		return err
	}

	_, err = m.cfg.Escrow.ClaimTx(ctx, tx, caller, lockID, secret)

	return err
}

// updateReputation applies the fixed step to the solver's score. Successes
// are unbounded, failures floor at zero.
func (m *Manager) updateReputation(tx *swapdb.Tx, address xswap.AccountID,
	success bool) error {

	solver, err := tx.Solver(address)
	switch {
	case errors.Is(err, swapdb.ErrNotFound):
		return ErrSolverNotRegistered
	case err != nil:
		return err
	}

	switch {
	case success:
		solver.Reputation += reputationStep

	case solver.Reputation > reputationStep:
		solver.Reputation -= reputationStep

	default:
		solver.Reputation = 0
	}

	return tx.PutSolver(solver)
}

// solverFee returns amount * feeBps / 10000 through a 128-bit intermediate,
// truncating. The quotient always fits: feeBps is capped below the divisor.
func solverFee(amount xswap.Amount, feeBps uint32) xswap.Amount {
	hi, lo := bits.Mul64(uint64(amount), uint64(feeBps))
	quo, _ := bits.Div64(hi, lo, feeDivisor)

	return xswap.Amount(quo)
}

// QuoteRequest returns the quote request with the given id.
func (m *Manager) QuoteRequest(_ context.Context,
	id swapdb.RequestID) (*swapdb.QuoteRequest, error) {

	var request *swapdb.QuoteRequest
	err := m.cfg.Store.View(func(tx *swapdb.Tx) error {
		var err error
		request, err = tx.QuoteRequest(id)
		if errors.Is(err, swapdb.ErrNotFound) {
			return ErrRequestNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return request, nil
}

// MetaOrder returns the meta order with the given id.
func (m *Manager) MetaOrder(_ context.Context,
	id swapdb.OrderID) (*swapdb.MetaOrder, error) {

	var order *swapdb.MetaOrder
	err := m.cfg.Store.View(func(tx *swapdb.Tx) error {
		var err error
		order, err = tx.MetaOrder(id)
		if errors.Is(err, swapdb.ErrNotFound) {
			return ErrOrderNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// Intent returns the intent with the given id.
func (m *Manager) Intent(_ context.Context, intentID string) (*swapdb.Intent,
	error) {

	var intent *swapdb.Intent
	err := m.cfg.Store.View(func(tx *swapdb.Tx) error {
		var err error
		intent, err = tx.Intent(intentID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return intent, nil
}

// SolverConfig returns the registration record and reputation of the given
// solver.
func (m *Manager) SolverConfig(_ context.Context,
	address xswap.AccountID) (*swapdb.SolverConfig, error) {

	var solver *swapdb.SolverConfig
	err := m.cfg.Store.View(func(tx *swapdb.Tx) error {
		var err error
		solver, err = tx.Solver(address)
		if errors.Is(err, swapdb.ErrNotFound) {
			return ErrSolverNotRegistered
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return solver, nil
}

// ActiveSolvers lists the addresses of all solvers currently allowed to
// quote.
func (m *Manager) ActiveSolvers(_ context.Context) ([]xswap.AccountID,
	error) {

	var active []xswap.AccountID
	err := m.cfg.Store.View(func(tx *swapdb.Tx) error {
		return tx.ForEachSolver(func(s *swapdb.SolverConfig) error {
			if s.Active {
				active = append(active, s.Address)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return active, nil
}

// QuoteStats reports the total number of quote requests and meta orders ever
// created.
func (m *Manager) QuoteStats(_ context.Context) (uint64, uint64, error) {
	var totalRequests, totalOrders uint64
	err := m.cfg.Store.View(func(tx *swapdb.Tx) error {
		var err error
		totalRequests, err = tx.TotalQuoteRequests()
		if err != nil {
			return err
		}

		totalOrders, err = tx.TotalMetaOrders()

		return err
	})
	if err != nil {
		return 0, 0, err
	}

	return totalRequests, totalOrders, nil
}
