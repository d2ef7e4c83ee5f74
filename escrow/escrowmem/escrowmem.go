package escrowmem

import (
	"context"
	"fmt"
	"sync"

	logger "github.com/ipfs/go-log/v2"
	"github.com/storemarket/market-core/escrow"
	"github.com/storemarket/market-core/market"
)

var log = logger.Logger("escrowmem")

// Ledger is an in-memory escrow.Ledger. It enforces the same atomicity
// as a real ledger: a transfer either fully happens or doesn't at all.
type Ledger struct {
	lock     sync.Mutex
	balances map[market.Account]uint64
}

var _ escrow.Ledger = (*Ledger)(nil)

// New returns an empty in-memory ledger.
func New() *Ledger {
	return &Ledger{balances: map[market.Account]uint64{}}
}

// BalanceOf returns the current balance of account. Unknown accounts
// have a zero balance.
func (l *Ledger) BalanceOf(_ context.Context, account market.Account) (uint64, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.balances[account], nil
}

// Transfer moves amount from one account to another. It returns
// escrow.ErrInsufficientFunds without mutating state if the source
// balance can't cover it. Zero-amount transfers are no-ops.
func (l *Ledger) Transfer(_ context.Context, from, to market.Account, amount uint64) error {
	if amount == 0 {
		return nil
	}
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.balances[from] < amount {
		return fmt.Errorf("transferring %d from %s: %w", amount, from, escrow.ErrInsufficientFunds)
	}
	l.balances[from] -= amount
	l.balances[to] += amount

	log.Debugf("transferred %d units %s -> %s", amount, from, to)
	return nil
}

// Mint credits amount to account out of thin air. Meant for seeding dev
// deployments and tests.
func (l *Ledger) Mint(account market.Account, amount uint64) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.balances[account] += amount
}
