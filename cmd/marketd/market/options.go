package market

import (
	"errors"

	"github.com/raulk/clock"
	"github.com/storemarket/market-core/events"
	"github.com/storemarket/market-core/market"
)

var defaultConfig = config{
	clock:           clock.New(),
	publisher:       events.NewLogPublisher(),
	escrowAccount:   "escrow",
	treasuryAccount: "treasury",
}

type config struct {
	clock           clock.Clock
	publisher       events.Publisher
	escrowAccount   market.Account
	treasuryAccount market.Account
}

// Option provides configuration for Market.
type Option func(*config) error

// WithClock configures the clock used for activation, withdrawal
// accrual and challenge deadlines. Mostly useful for tests.
func WithClock(c clock.Clock) Option {
	return func(cfg *config) error {
		if c == nil {
			return errors.New("clock is nil")
		}
		cfg.clock = c
		return nil
	}
}

// WithPublisher configures where lifecycle events are published.
func WithPublisher(p events.Publisher) Option {
	return func(cfg *config) error {
		if p == nil {
			return errors.New("publisher is nil")
		}
		cfg.publisher = p
		return nil
	}
}

// WithEscrowAccount configures the ledger account that holds all
// locked deposits.
func WithEscrowAccount(a market.Account) Option {
	return func(cfg *config) error {
		if a == "" {
			return errors.New("escrow account is empty")
		}
		cfg.escrowAccount = a
		return nil
	}
}

// WithTreasuryAccount configures the ledger account that receives
// forfeited collateral.
func WithTreasuryAccount(a market.Account) Option {
	return func(cfg *config) error {
		if a == "" {
			return errors.New("treasury account is empty")
		}
		cfg.treasuryAccount = a
		return nil
	}
}
