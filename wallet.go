package xswap

import (
	"context"
	"fmt"
)

// Wallet is the value transfer collaborator. The engines never hold balances
// themselves, they instruct the wallet to move value in and out of escrow
// custody. Implementations may settle asynchronously, in which case an error
// returned here represents the eventual failure notification.
type Wallet interface {
	// Debit takes amount of token out of the from account and into
	// escrow custody.
	Debit(ctx context.Context, token Token, from AccountID,
		amount Amount) error

	// Credit releases amount of token from escrow custody to the to
	// account.
	Credit(ctx context.Context, token Token, to AccountID,
		amount Amount) error
}

// DownstreamError wraps a failure of a delegated call such as a wallet
// transfer. It is recorded rather than swallowed so that callers can
// distinguish a downstream failure from a validation failure.
type DownstreamError struct {
	// Op is the delegated operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *DownstreamError) Error() string {
	return fmt.Sprintf("downstream %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *DownstreamError) Unwrap() error {
	return e.Err
}

// NopWallet is a wallet that accepts every transfer. It is used in tests and
// in deployments where value movement is carried by an external relay.
type NopWallet struct{}

// Debit implements the Wallet interface.
func (NopWallet) Debit(context.Context, Token, AccountID, Amount) error {
	return nil
}

// Credit implements the Wallet interface.
func (NopWallet) Credit(context.Context, Token, AccountID, Amount) error {
	return nil
}

// A compile-time check that NopWallet implements Wallet.
var _ Wallet = (*NopWallet)(nil)
