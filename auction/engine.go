// Package auction implements the dutch auction pricing engine. An auction
// converts a static sell order into a rate that decays linearly from a start
// rate to a floor, so the first filler willing to pay the current rate wins.
// Fills hand the filled portion into the escrow engine, gated by the
// auction's hashlock and timelock.
package auction

import (
	"context"
	"errors"
	"math/bits"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/xswaplabs/xswap"
	"github.com/xswaplabs/xswap/escrow"
	"github.com/xswaplabs/xswap/swapdb"
)

// rateScale is the source unit denominator of auction rates: a rate is the
// number of destination units bought by 100 source units.
const rateScale = 100

var (
	// ErrInvalidAuctionParams is returned when an auction is created with
	// a zero amount, a non-decaying rate pair, a zero duration or a
	// timelock that is not in the future.
	ErrInvalidAuctionParams = errors.New("invalid auction parameters")

	// ErrAuctionNotFound is returned when the referenced auction does not
	// exist.
	ErrAuctionNotFound = errors.New("auction not found")

	// ErrAuctionInactive is returned when the auction was fully filled or
	// cancelled.
	ErrAuctionInactive = errors.New("auction inactive")

	// ErrAuctionExpired is returned when a fill is attempted after the
	// decay window has passed.
	ErrAuctionExpired = errors.New("auction expired")

	// ErrInvalidFillAmount is returned when a fill is zero, exceeds the
	// remaining source amount, or its destination amount overflows.
	ErrInvalidFillAmount = errors.New("invalid fill amount")

	// ErrHashlockAlreadySet is returned when a fill supplies a preimage
	// that differs from the commitment pinned by the first fill.
	ErrHashlockAlreadySet = errors.New("hashlock already set")

	// ErrUnauthorized is returned when someone other than the maker
	// attempts to cancel.
	ErrUnauthorized = errors.New("caller not authorized")
)

// Config contains the external collaborators of the auction engine.
type Config struct {
	// Store is the ledger the engine keeps its auctions in.
	Store *swapdb.DB

	// Escrow receives the filled value. Lock creation happens in the
	// same ledger transaction as the fill.
	Escrow *escrow.Engine

	// Wallet holds the auctioned value while the auction runs.
	Wallet xswap.Wallet

	// Clock is the single time oracle for rate and expiry computation.
	Clock clock.Clock
}

// Engine owns the auction lifecycle and its pricing arithmetic.
type Engine struct {
	cfg *Config
}

// NewEngine returns an auction engine backed by the given collaborators.
func NewEngine(cfg *Config) *Engine {
	return &Engine{cfg: cfg}
}

// CreateAuctionRequest describes an auction to be created.
type CreateAuctionRequest struct {
	// Maker is the seller. The source amount is debited from this
	// account when the auction opens.
	Maker xswap.AccountID

	// SourceToken is the asset sold.
	SourceToken xswap.Token

	// SourceAmount is the amount offered for sale.
	SourceAmount xswap.Amount

	// DestinationChain, DestinationToken and DestinationAccount describe
	// where the maker wants to be paid. Opaque to the engine.
	DestinationChain   string
	DestinationToken   string
	DestinationAccount string

	// StartRate is the opening rate in destination units per 100 source
	// units. Must be strictly greater than EndRate.
	StartRate uint64

	// EndRate is the floor rate.
	EndRate uint64

	// Duration is the length of the decay window. Must be positive.
	Duration time.Duration

	// Timelock is the recovery deadline for the escrow locks created by
	// fills. Must be strictly in the future.
	Timelock time.Time
}

// FillResult reports the outcome of a fill.
type FillResult struct {
	// DestinationAmount is the amount of destination units owed for the
	// fill, computed at the rate in effect at fill time.
	DestinationAmount xswap.Amount

	// Rate is the rate the fill was priced at.
	Rate uint64

	// LockID references the escrow lock holding the filled value.
	LockID swapdb.LockID
}

// Create validates the request, persists the auction and takes the source
// amount into custody. The debit happens inside the store transaction, so a
// failed debit leaves no auction behind.
func (e *Engine) Create(ctx context.Context,
	req *CreateAuctionRequest) (swapdb.AuctionID, error) {

	now := e.cfg.Clock.Now()

	if req.SourceAmount == 0 {
		return 0, ErrInvalidAuctionParams
	}
	if req.StartRate <= req.EndRate {
		return 0, ErrInvalidAuctionParams
	}
	if req.Duration <= 0 {
		return 0, ErrInvalidAuctionParams
	}
	if !req.Timelock.After(now) {
		return 0, ErrInvalidAuctionParams
	}

	var auctionID swapdb.AuctionID
	err := e.cfg.Store.Update(func(tx *swapdb.Tx) error {
		var err error
		auctionID, err = tx.CreateAuction(&swapdb.Auction{
			Maker:              req.Maker,
			SourceToken:        req.SourceToken,
			SourceAmount:       req.SourceAmount,
			DestinationChain:   req.DestinationChain,
			DestinationToken:   req.DestinationToken,
			DestinationAccount: req.DestinationAccount,
			StartRate:          req.StartRate,
			EndRate:            req.EndRate,
			StartTime:          now,
			Duration:           req.Duration,
			Timelock:           req.Timelock,
			Active:             true,
		})
		if err != nil {
			return err
		}

		err = e.cfg.Wallet.Debit(
			ctx, req.SourceToken, req.Maker, req.SourceAmount,
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

	log.Infof("Auction %v created: maker=%v amount=%v rate=%v..%v "+
		"duration=%v", auctionID, req.Maker, req.SourceAmount,
		req.StartRate, req.EndRate, req.Duration)

	return auctionID, nil
}

// CurrentRate returns the rate in effect right now. The rate decays linearly
// from the start rate and holds at the floor once the decay window has
// passed, it never goes below the floor.
func (e *Engine) CurrentRate(_ context.Context,
	id swapdb.AuctionID) (uint64, error) {

	var rate uint64
	err := e.cfg.Store.View(func(tx *swapdb.Tx) error {
		auction, err := tx.Auction(id)
		switch {
		case errors.Is(err, swapdb.ErrNotFound):
			return ErrAuctionNotFound
		case err != nil:
			return err
		}

		if !auction.Active {
			return ErrAuctionInactive
		}

		rate = rateAt(auction, e.cfg.Clock.Now())

		return nil
	})
	if err != nil {
		return 0, err
	}

	return rate, nil
}

// rateAt computes the rate at the given instant with truncating integer
// arithmetic. Solvers replicate this computation off-process, so the exact
// truncation behavior is part of the pricing contract.
func rateAt(a *swapdb.Auction, now time.Time) uint64 {
	elapsed := now.Sub(a.StartTime)
	if elapsed >= a.Duration {
		return a.EndRate
	}

	// start - (start-end) * elapsed / duration, computed through a
	// 128-bit intermediate so large rate spreads cannot overflow. The
	// quotient fits: elapsed < duration bounds it below start-end.
	diff := a.StartRate - a.EndRate
	hi, lo := bits.Mul64(diff, uint64(elapsed))
	quo, _ := bits.Div64(hi, lo, uint64(a.Duration))

	return a.StartRate - quo
}

// mulDiv returns a * b / div through a 128-bit intermediate, truncating. The
// second return is false if the quotient does not fit in 64 bits.
func mulDiv(a, b, div uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	if hi >= div {
		return 0, false
	}

	quo, _ := bits.Div64(hi, lo, div)

	return quo, true
}

// Fill buys fillAmount of the remaining source amount at the current rate.
// The first fill pins the auction's hashlock to sha256(preimage), every
// later fill must present the same preimage. The filled value is handed into
// an escrow lock in the same ledger transaction, so a failed lock creation
// leaves the auction untouched.
func (e *Engine) Fill(_ context.Context, caller xswap.AccountID,
	id swapdb.AuctionID, preimage lntypes.Preimage,
	fillAmount xswap.Amount) (*FillResult, error) {

	var result *FillResult
	err := e.cfg.Store.Update(func(tx *swapdb.Tx) error {
		auction, err := tx.Auction(id)
		switch {
		case errors.Is(err, swapdb.ErrNotFound):
			return ErrAuctionNotFound
		case err != nil:
			return err
		}

		if !auction.Active {
			return ErrAuctionInactive
		}

		now := e.cfg.Clock.Now()
		end := auction.StartTime.Add(auction.Duration)
		if now.After(end) {
			return ErrAuctionExpired
		}

		if fillAmount == 0 || fillAmount > auction.SourceAmount {
			return ErrInvalidFillAmount
		}

		rate := rateAt(auction, now)
		destAmount, ok := mulDiv(
			uint64(fillAmount), rate, rateScale,
		)
		if !ok {
			return ErrInvalidFillAmount
		}

		// The first fill pins the preimage commitment, all partial
		// fills on the same auction must settle against the same
		// secret.
		hash := preimage.Hash()
		switch {
		case auction.Hashlock == nil:
			auction.Hashlock = &hash

		case *auction.Hashlock != hash:
			return ErrHashlockAlreadySet
		}

		// Hand the filled portion into escrow. The value is already
		// in custody since auction creation, so no wallet movement
		// happens here. Lock creation failing aborts the whole fill.
		lockID, err := e.cfg.Escrow.CreateLockTx(
			tx, &escrow.CreateLockRequest{
				Maker:            auction.Maker,
				Receiver:         caller,
				Token:            auction.SourceToken,
				Amount:           fillAmount,
				Hashlock:         *auction.Hashlock,
				TimelockRecovery: auction.Timelock,
			},
		)
		if err != nil {
			return err
		}

		auction.SourceAmount -= fillAmount
		if auction.SourceAmount == 0 {
			auction.Active = false
		}

		if err := tx.PutAuction(auction); err != nil {
			return err
		}

		result = &FillResult{
			DestinationAmount: xswap.Amount(destAmount),
			Rate:              rate,
			LockID:            lockID,
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Auction %v filled by %v: amount=%v rate=%v dest=%v "+
		"lock=%v", id, caller, fillAmount, result.Rate,
		result.DestinationAmount, result.LockID)

	return result, nil
}

// Cancel deactivates the auction and returns the remaining source amount to
// the maker. Only the maker may cancel.
func (e *Engine) Cancel(ctx context.Context, caller xswap.AccountID,
	id swapdb.AuctionID) error {

	err := e.cfg.Store.Update(func(tx *swapdb.Tx) error {
		auction, err := tx.Auction(id)
		switch {
		case errors.Is(err, swapdb.ErrNotFound):
			return ErrAuctionNotFound
		case err != nil:
			return err
		}

		if caller != auction.Maker {
			return ErrUnauthorized
		}
		if !auction.Active {
			return ErrAuctionInactive
		}

		remaining := auction.SourceAmount
		auction.Active = false
		if err := tx.PutAuction(auction); err != nil {
			return err
		}

		err = e.cfg.Wallet.Credit(
			ctx, auction.SourceToken, auction.Maker, remaining,
		)
		if err != nil {
			return &xswap.DownstreamError{
				Op: "credit", Err: err,
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	log.Infof("Auction %v cancelled by maker", id)

	return nil
}

// Auction returns the auction with the given id.
func (e *Engine) Auction(_ context.Context, id swapdb.AuctionID) (
	*swapdb.Auction, error) {

	var auction *swapdb.Auction
	err := e.cfg.Store.View(func(tx *swapdb.Tx) error {
		var err error
		auction, err = tx.Auction(id)
		if errors.Is(err, swapdb.ErrNotFound) {
			return ErrAuctionNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return auction, nil
}
