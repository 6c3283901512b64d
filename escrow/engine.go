// Package escrow implements the hash-time-locked escrow engine. A lock holds
// value from a maker until either the hashlock preimage is revealed before
// the recovery timelock, or the timelock passes and the maker is refunded.
// Exactly one of the two ever happens.
package escrow

import (
	"context"
	"errors"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/xswaplabs/xswap"
	"github.com/xswaplabs/xswap/swapdb"
)

var (
	// ErrInvalidAmount is returned when a lock is created with a zero
	// amount.
	ErrInvalidAmount = errors.New("lock amount must be positive")

	// ErrInvalidHashlock is returned when a lock is created with an
	// all-zero hashlock.
	ErrInvalidHashlock = errors.New("invalid hashlock")

	// ErrInvalidTimelock is returned when the recovery timelock is not in
	// the future, or the exclusive timelock lies beyond it.
	ErrInvalidTimelock = errors.New("invalid timelock")

	// ErrInvalidRecipient is returned when a lock names neither a
	// receiver nor a resolver and is not created awaiting resolver
	// assignment. Without this check a claim would silently pay the
	// maker back.
	ErrInvalidRecipient = errors.New(
		"lock requires a receiver or resolver",
	)

	// ErrLockNotFound is returned when the referenced lock does not
	// exist.
	ErrLockNotFound = errors.New("lock not found")

	// ErrPreimageMismatch is returned when the supplied preimage does not
	// hash to the lock's hashlock.
	ErrPreimageMismatch = errors.New("preimage does not match hashlock")

	// ErrAlreadySettled is returned when a claim or refund is attempted
	// against a lock that already left the open state.
	ErrAlreadySettled = errors.New("lock already claimed or refunded")

	// ErrLockExpired is returned when a claim is attempted at or after
	// the recovery timelock.
	ErrLockExpired = errors.New("lock expired")

	// ErrNotYetExpired is returned when a refund is attempted before the
	// recovery timelock.
	ErrNotYetExpired = errors.New("recovery timelock not yet expired")

	// ErrUnauthorized is returned when the caller lacks the required role
	// for the current time window.
	ErrUnauthorized = errors.New("caller not authorized")
)

// Config contains the external collaborators of the escrow engine.
type Config struct {
	// Store is the ledger the engine keeps its locks in.
	Store *swapdb.DB

	// Wallet moves value in and out of escrow custody.
	Wallet xswap.Wallet

	// Clock is the single time oracle for all timelock comparisons.
	Clock clock.Clock
}

// Engine owns the lock lifecycle. It is the only component that moves value.
type Engine struct {
	cfg *Config
}

// NewEngine returns an escrow engine backed by the given collaborators.
func NewEngine(cfg *Config) *Engine {
	return &Engine{cfg: cfg}
}

// CreateLockRequest describes a lock to be created.
type CreateLockRequest struct {
	// Maker is the depositor the amount is debited from.
	Maker xswap.AccountID

	// Receiver is the designated claim recipient. May be left unset only
	// when a resolver is named, or when the lock is created awaiting
	// resolver assignment (no resolver and no exclusive timelock).
	Receiver xswap.AccountID

	// Resolver optionally names the privileged claimant of the
	// exclusivity window.
	Resolver xswap.AccountID

	// Token is the asset to hold.
	Token xswap.Token

	// Amount is the value to hold. Must be positive.
	Amount xswap.Amount

	// Hashlock is the sha256 commitment gating the claim.
	Hashlock lntypes.Hash

	// TimelockExclusive optionally ends the resolver-only window. When
	// set it must not lie beyond TimelockRecovery.
	TimelockExclusive time.Time

	// TimelockRecovery is the instant the lock becomes refundable. Must
	// be strictly in the future.
	TimelockRecovery time.Time

	// IntentID optionally ties the lock to a settlement intent.
	IntentID string
}

// Receipt reports a completed value movement out of a lock.
type Receipt struct {
	// LockID is the settled lock.
	LockID swapdb.LockID

	// Token is the asset that moved.
	Token xswap.Token

	// Amount is the value that moved.
	Amount xswap.Amount

	// Recipient is the account the value moved to.
	Recipient xswap.AccountID
}

// CreateLock validates the request, persists the lock in the open state and
// debits the maker. The debit happens inside the store transaction, so a
// failed debit leaves no lock behind.
func (e *Engine) CreateLock(ctx context.Context,
	req *CreateLockRequest) (swapdb.LockID, error) {

	var lockID swapdb.LockID
	err := e.cfg.Store.Update(func(tx *swapdb.Tx) error {
		var err error
		lockID, err = e.CreateLockTx(tx, req)
		if err != nil {
			return err
		}

		err = e.cfg.Wallet.Debit(
			ctx, req.Token, req.Maker, req.Amount,
		)
		if err != nil {
			return &xswap.DownstreamError{
				Op: "debit", Err: err,
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Infof("Lock %v created: maker=%v amount=%v recovery=%v",
		lockID, req.Maker, req.Amount, req.TimelockRecovery)

	return lockID, nil
}

// CreateLockTx validates the request and persists the lock within an ongoing
// ledger transaction. No value is moved, the caller must already hold the
// amount in custody. The auction engine uses this to hand filled value into
// escrow atomically with the fill.
func (e *Engine) CreateLockTx(tx *swapdb.Tx,
	req *CreateLockRequest) (swapdb.LockID, error) {

	now := e.cfg.Clock.Now()

	if req.Amount == 0 {
		return 0, ErrInvalidAmount
	}

	var zeroHash lntypes.Hash
	if req.Hashlock == zeroHash {
		return 0, ErrInvalidHashlock
	}

	// The recovery timelock must be strictly in the future, and the
	// exclusive window cannot outlive it.
	if !req.TimelockRecovery.After(now) {
		return 0, ErrInvalidTimelock
	}
	if !req.TimelockExclusive.IsZero() &&
		req.TimelockExclusive.After(req.TimelockRecovery) {

		return 0, ErrInvalidTimelock
	}

	// A claim pays the resolver if one is set, else the receiver. Both
	// may only be absent when the lock awaits resolver assignment, which
	// requires the timed exclusivity window to be off. Otherwise the
	// open window would fall back to paying the maker.
	if req.Receiver == "" && req.Resolver == "" &&
		!req.TimelockExclusive.IsZero() {

		return 0, ErrInvalidRecipient
	}

	return tx.CreateLock(&swapdb.Lock{
		Maker:             req.Maker,
		Receiver:          req.Receiver,
		Resolver:          req.Resolver,
		Token:             req.Token,
		Amount:            req.Amount,
		Hashlock:          req.Hashlock,
		TimelockExclusive: req.TimelockExclusive,
		TimelockRecovery:  req.TimelockRecovery,
		State:             swapdb.LockOpen,
		IntentID:          req.IntentID,
		CreatedAt:         now,
	})
}

// AssignResolver registers the given account as the lock's resolver if none
// is set yet. First assignment wins, assigning twice is a no-op rather than
// an error.
func (e *Engine) AssignResolver(_ context.Context, id swapdb.LockID,
	resolver xswap.AccountID) error {

	return e.cfg.Store.Update(func(tx *swapdb.Tx) error {
		lock, err := tx.Lock(id)
		switch {
		case errors.Is(err, swapdb.ErrNotFound):
			return ErrLockNotFound
		case err != nil:
			return err
		}

		if lock.State != swapdb.LockOpen {
			return ErrAlreadySettled
		}

		// First assignment wins.
		if lock.Resolver != "" {
			return nil
		}

		lock.Resolver = resolver
		if err := tx.PutLock(lock); err != nil {
			return err
		}

		log.Debugf("Lock %v resolver assigned: %v", id, resolver)

		return nil
	})
}

// Claim settles an open lock against its preimage and releases the held
// value to the claim recipient. During the exclusivity window only the
// resolver may claim, afterwards anyone holding the preimage may.
func (e *Engine) Claim(ctx context.Context, caller xswap.AccountID,
	id swapdb.LockID, preimage lntypes.Preimage) (*Receipt, error) {

	var receipt *Receipt
	err := e.cfg.Store.Update(func(tx *swapdb.Tx) error {
		var err error
		receipt, err = e.ClaimTx(ctx, tx, caller, id, preimage)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Lock %v claimed by %v, paid %v to %v",
		id, caller, receipt.Amount, receipt.Recipient)

	return receipt, nil
}

// ClaimTx settles an open lock within an ongoing ledger transaction. The
// settlement pipeline uses this to execute a meta order and the claim as one
// atomic unit. The lock state is transitioned before the wallet is invoked,
// and a failed credit rolls the whole transaction back.
func (e *Engine) ClaimTx(ctx context.Context, tx *swapdb.Tx,
	caller xswap.AccountID, id swapdb.LockID,
	preimage lntypes.Preimage) (*Receipt, error) {

	lock, err := tx.Lock(id)
	switch {
	case errors.Is(err, swapdb.ErrNotFound):
		return nil, ErrLockNotFound
	case err != nil:
		return nil, err
	}

	if preimage.Hash() != lock.Hashlock {
		return nil, ErrPreimageMismatch
	}

	if lock.State != swapdb.LockOpen {
		return nil, ErrAlreadySettled
	}

	now := e.cfg.Clock.Now()
	if !now.Before(lock.TimelockRecovery) {
		return nil, ErrLockExpired
	}

	if err := authorizeClaim(lock, caller, now); err != nil {
		return nil, err
	}

	// Pay the resolver if one is set, else the designated receiver.
	// Creation and assignment rules guarantee one of the two exists by
	// the time a claim is authorized.
	recipient := lock.Resolver
	if recipient == "" {
		recipient = lock.Receiver
	}

	lock.State = swapdb.LockClaimed
	if err := tx.PutLock(lock); err != nil {
		return nil, err
	}

	err = e.cfg.Wallet.Credit(ctx, lock.Token, recipient, lock.Amount)
	if err != nil {
		return nil, &xswap.DownstreamError{Op: "credit", Err: err}
	}

	return &Receipt{
		LockID:    id,
		Token:     lock.Token,
		Amount:    lock.Amount,
		Recipient: recipient,
	}, nil
}

// authorizeClaim checks the caller against the lock's time windows. The
// windows are mutually exclusive and collectively exhaustive: resolver-only
// until the exclusive timelock, open to any preimage holder from then until
// recovery.
func authorizeClaim(lock *swapdb.Lock, caller xswap.AccountID,
	now time.Time) error {

	// Timed exclusivity: before the exclusive timelock only the resolver
	// may claim. At and after it, anyone may.
	if !lock.TimelockExclusive.IsZero() {
		if now.Before(lock.TimelockExclusive) &&
			caller != lock.Resolver {

			return ErrUnauthorized
		}

		return nil
	}

	// No timed window. If a resolver is involved, exclusivity holds for
	// the lock's whole claimable life. A lock without a resolver must
	// have been assigned one before any claim is permitted, unless it
	// was created as a plain receiver lock.
	switch {
	case lock.Resolver != "":
		if caller != lock.Resolver {
			return ErrUnauthorized
		}

	case lock.Receiver == "":
		// Awaiting resolver assignment.
		return ErrUnauthorized
	}

	return nil
}

// Refund returns the held value to the maker once the recovery timelock has
// passed. Only the maker may refund.
func (e *Engine) Refund(ctx context.Context, caller xswap.AccountID,
	id swapdb.LockID) (*Receipt, error) {

	var receipt *Receipt
	err := e.cfg.Store.Update(func(tx *swapdb.Tx) error {
		lock, err := tx.Lock(id)
		switch {
		case errors.Is(err, swapdb.ErrNotFound):
			return ErrLockNotFound
		case err != nil:
			return err
		}

		if lock.State != swapdb.LockOpen {
			return ErrAlreadySettled
		}

		now := e.cfg.Clock.Now()
		if now.Before(lock.TimelockRecovery) {
			return ErrNotYetExpired
		}

		if caller != lock.Maker {
			return ErrUnauthorized
		}

		lock.State = swapdb.LockRefunded
		if err := tx.PutLock(lock); err != nil {
			return err
		}

		err = e.cfg.Wallet.Credit(
			ctx, lock.Token, lock.Maker, lock.Amount,
		)
		if err != nil {
			return &xswap.DownstreamError{
				Op: "credit", Err: err,
			}
		}

		receipt = &Receipt{
			LockID:    id,
			Token:     lock.Token,
			Amount:    lock.Amount,
			Recipient: lock.Maker,
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Lock %v refunded to maker %v", id, receipt.Recipient)

	return receipt, nil
}

// Lock returns the lock with the given id.
func (e *Engine) Lock(_ context.Context, id swapdb.LockID) (*swapdb.Lock,
	error) {

	var lock *swapdb.Lock
	err := e.cfg.Store.View(func(tx *swapdb.Tx) error {
		var err error
		lock, err = tx.Lock(id)
		if errors.Is(err, swapdb.ErrNotFound) {
			return ErrLockNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return lock, nil
}
