package escrow

import (
	"context"
	"errors"

	"github.com/storemarket/market-core/market"
)

// ErrInsufficientFunds is returned by Transfer when the source account
// can't cover the amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger provides balance-moving interactions with the external fungible
// ledger. Implementations must make Transfer atomic: a partial transfer
// must never be visible.
type Ledger interface {
	BalanceOf(ctx context.Context, account market.Account) (uint64, error)
	Transfer(ctx context.Context, from, to market.Account, amount uint64) error
}
