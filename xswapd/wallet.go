package xswapd

import (
	"context"
	"errors"
	"sync"

	"github.com/xswaplabs/xswap"
)

// ErrInsufficientFunds is returned when a debit exceeds the available
// balance of the account.
var ErrInsufficientFunds = errors.New("insufficient funds")

type balanceKey struct {
	account xswap.AccountID
	token   xswap.Token
}

// memWallet is an in-memory token ledger. It stands in for the external
// custody layer, tracking per account balances that the engines debit and
// credit. Balances are seeded through Deposit.
type memWallet struct {
	mtx      sync.Mutex
	balances map[balanceKey]xswap.Amount
}

func newMemWallet() *memWallet {
	return &memWallet{
		balances: make(map[balanceKey]xswap.Amount),
	}
}

// Deposit adds funds to an account balance.
func (w *memWallet) Deposit(account xswap.AccountID, token xswap.Token,
	amount xswap.Amount) {

	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.balances[balanceKey{account, token}] += amount
}

// Balance returns the current balance of an account.
func (w *memWallet) Balance(account xswap.AccountID,
	token xswap.Token) xswap.Amount {

	w.mtx.Lock()
	defer w.mtx.Unlock()

	return w.balances[balanceKey{account, token}]
}

// Debit takes funds out of an account balance and into escrow custody.
func (w *memWallet) Debit(_ context.Context, token xswap.Token,
	from xswap.AccountID, amount xswap.Amount) error {

	w.mtx.Lock()
	defer w.mtx.Unlock()

	key := balanceKey{from, token}
	if w.balances[key] < amount {
		return ErrInsufficientFunds
	}
	w.balances[key] -= amount

	return nil
}

// Credit releases funds from escrow custody to an account balance.
func (w *memWallet) Credit(_ context.Context, token xswap.Token,
	to xswap.AccountID, amount xswap.Amount) error {

	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.balances[balanceKey{to, token}] += amount

	return nil
}

var _ xswap.Wallet = (*memWallet)(nil)
