package market

import (
	"context"
	"fmt"
	"math/bits"
	"sync"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/ipfs/go-datastore"
	logger "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"
	"github.com/storemarket/market-core/cmd/marketd/store"
	"github.com/storemarket/market-core/dshelper/txndswrap"
	"github.com/storemarket/market-core/escrow"
	"github.com/storemarket/market-core/events"
	"github.com/storemarket/market-core/market"
	"github.com/storemarket/market-core/merkle"
	"go.opentelemetry.io/otel/metric"
)

var log = logger.Logger("marketd/market")

// Market implements the deal lifecycle and challenge adjudication
// engine: capacity listings, escrow-backed orders with two-phase
// commitment and metered withdrawal, and merkle-proof challenges with
// slashing settlement.
//
// Every entry point runs to completion under one mutex; there is no
// internal concurrency. Time-based behavior (withdrawal accrual,
// challenge timeouts) is evaluated lazily against the clock when a
// party calls in.
type Market struct {
	lock sync.Mutex

	store     *store.Store
	ledger    escrow.Ledger
	clock     clock.Clock
	publisher events.Publisher

	// escrowAccount holds all locked value; treasuryAccount receives
	// forfeited collateral from slashing settlements.
	escrowAccount   market.Account
	treasuryAccount market.Account

	metricBillsCreated      metric.Int64Counter
	metricBillsCancelled    metric.Int64Counter
	metricOrdersCreated     metric.Int64Counter
	metricOrdersActivated   metric.Int64Counter
	metricOrdersFinished    metric.Int64Counter
	metricOrdersSlashed     metric.Int64Counter
	metricChallengesStarted metric.Int64Counter
	metricEscrowedUnits     metric.Int64Counter
	metricWithdrawnUnits    metric.Int64Counter
	metricSlashedUnits      metric.Int64Counter
}

var _ market.Market = (*Market)(nil)

// New creates a Market backed by the provided datastore and ledger.
func New(ds datastore.TxnDatastore, ledger escrow.Ledger, opts ...Option) (*Market, error) {
	cfg := defaultConfig
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("applying option: %v", err)
		}
	}

	s, err := store.New(txndswrap.Wrap(ds, "/market-store"))
	if err != nil {
		return nil, fmt.Errorf("initializing market store: %s", err)
	}

	m := &Market{
		store:           s,
		ledger:          ledger,
		clock:           cfg.clock,
		publisher:       cfg.publisher,
		escrowAccount:   cfg.escrowAccount,
		treasuryAccount: cfg.treasuryAccount,
	}
	m.initMetrics()
	return m, nil
}

// CreateBill posts a new capacity listing, locking
// asset*price*depositMultiplier of the owner's balance in escrow.
func (m *Market) CreateBill(ctx context.Context, owner market.Account, params market.BillParams) (market.Bill, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if owner == "" {
		return market.Bill{}, fmt.Errorf("owner is empty: %w", market.ErrPermissionDenied)
	}
	if err := params.Validate(); err != nil {
		return market.Bill{}, fmt.Errorf("%s: %w", err, market.ErrInvalidRange)
	}

	deposit, ok := mulChecked(params.Asset, params.Price, params.DepositMultiplier)
	if !ok {
		return market.Bill{}, fmt.Errorf("deposit amount overflows: %w", market.ErrInvalidRange)
	}
	if err := m.requireBalance(ctx, owner, deposit); err != nil {
		return market.Bill{}, err
	}
	if err := m.ledger.Transfer(ctx, owner, m.escrowAccount, deposit); err != nil {
		return market.Bill{}, fmt.Errorf("locking deposit: %s", err)
	}

	bill := market.Bill{
		Owner:           owner,
		Asset:           params.Asset,
		Price:           params.Price,
		Capacity:        params.Capacity,
		MinServiceWeeks: params.MinServiceWeeks,
		MaxServiceWeeks: params.MaxServiceWeeks,
		DepositAmount:   deposit,
		StartedAt:       m.clock.Now(),
	}
	if err := m.store.CreateBill(ctx, &bill); err != nil {
		m.unwind(ctx, transfer{m.escrowAccount, owner, deposit})
		return market.Bill{}, fmt.Errorf("saving bill: %s", err)
	}

	m.publish(ctx, events.Event{Type: events.BillCreated, BillID: bill.ID, Amount: deposit})
	m.metricBillsCreated.Add(ctx, 1)
	m.metricEscrowedUnits.Add(ctx, int64(deposit))
	log.Debugf("bill %d created by %s, locked %s units", bill.ID, owner, humanize.Comma(int64(deposit)))
	return bill, nil
}

// CancelBill removes a listing, refunding its remaining deposit to the
// owner. Only the owner may cancel.
func (m *Market) CancelBill(ctx context.Context, caller market.Account, id market.BillID) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	bill, err := m.store.GetBill(ctx, id)
	if err != nil {
		return err
	}
	if bill.Owner != caller {
		return fmt.Errorf("caller isn't the bill owner: %w", market.ErrPermissionDenied)
	}

	if err := m.store.DeleteBill(ctx, id); err != nil {
		return fmt.Errorf("deleting bill: %s", err)
	}
	if err := m.ledger.Transfer(ctx, m.escrowAccount, bill.Owner, bill.DepositAmount); err != nil {
		// The refund failed with the bill already gone; put it back.
		if serr := m.store.SaveBill(ctx, bill); serr != nil {
			log.Errorf("restoring bill %d after failed refund: %s", id, serr)
		}
		return fmt.Errorf("refunding deposit: %s", err)
	}

	m.publish(ctx, events.Event{Type: events.BillCancelled, BillID: id, Amount: bill.DepositAmount})
	m.metricBillsCancelled.Add(ctx, 1)
	log.Debugf("bill %d cancelled, refunded %s units", id, humanize.Comma(int64(bill.DepositAmount)))
	return nil
}

// CreateOrder buys a slice of a listing. The consumer's full-term
// prepayment is escrowed and the listing's collateral is split
// proportionally; integer division leaves any remainder with the bill.
func (m *Market) CreateOrder(ctx context.Context, user market.Account, billID market.BillID, asset, serviceWeeks uint64) (market.Order, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	bill, err := m.store.GetBill(ctx, billID)
	if err != nil {
		return market.Order{}, err
	}
	if user == "" {
		return market.Order{}, fmt.Errorf("user is empty: %w", market.ErrPermissionDenied)
	}
	if asset == 0 || asset > bill.Asset || asset%bill.Capacity != 0 {
		return market.Order{}, fmt.Errorf("asset %d outside listing bounds: %w", asset, market.ErrInvalidRange)
	}
	if serviceWeeks < bill.MinServiceWeeks || serviceWeeks > bill.MaxServiceWeeks {
		return market.Order{}, fmt.Errorf("service weeks %d outside listing bounds: %w", serviceWeeks, market.ErrInvalidRange)
	}

	userDeposit, ok := mulChecked(bill.Price, asset, serviceWeeks)
	if !ok {
		return market.Order{}, fmt.Errorf("prepayment amount overflows: %w", market.ErrInvalidRange)
	}
	if err := m.requireBalance(ctx, user, userDeposit); err != nil {
		return market.Order{}, err
	}

	// Collateral-per-unit stays constant over the bill's life; the
	// truncated remainder stays with the shrinking bill.
	scaled, ok := mulChecked(bill.DepositAmount, asset)
	if !ok {
		return market.Order{}, fmt.Errorf("collateral slice overflows: %w", market.ErrInvalidRange)
	}
	storageDeposit := scaled / bill.Asset

	if err := m.ledger.Transfer(ctx, user, m.escrowAccount, userDeposit); err != nil {
		return market.Order{}, fmt.Errorf("locking prepayment: %s", err)
	}

	now := m.clock.Now()
	order := market.Order{
		BillID:         billID,
		User:           user,
		Storager:       bill.Owner,
		Asset:          asset,
		Price:          bill.Price,
		ServiceWeeks:   serviceWeeks,
		UserDeposit:    userDeposit,
		StorageDeposit: storageDeposit,
		CreatedAt:      now,
	}
	bill.Asset -= asset
	bill.DepositAmount -= storageDeposit

	if err := m.store.CreateOrder(ctx, &order, bill, bill.Asset == 0); err != nil {
		m.unwind(ctx, transfer{m.escrowAccount, user, userDeposit})
		return market.Order{}, fmt.Errorf("saving order: %s", err)
	}

	m.publish(ctx, events.Event{Type: events.OrderCreated, BillID: billID, OrderID: order.ID, Amount: userDeposit})
	m.metricOrdersCreated.Add(ctx, 1)
	m.metricEscrowedUnits.Add(ctx, int64(userDeposit))
	log.Debugf("order %d created on bill %d: %d units x %d weeks, prepaid %s",
		order.ID, billID, asset, serviceWeeks, humanize.Comma(int64(userDeposit)))
	return order, nil
}

// CancelOrder cancels a not-yet-active order, refunding the consumer's
// prepayment and the provider's collateral slice. Only the consumer may
// cancel, and only before activation.
func (m *Market) CancelOrder(ctx context.Context, caller market.Account, id market.OrderID) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	order, err := m.store.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if order.User != caller {
		return fmt.Errorf("caller isn't the order user: %w", market.ErrPermissionDenied)
	}
	if order.Active() {
		return fmt.Errorf("order is already active: %w", market.ErrInvalidState)
	}

	refunds := []transfer{
		{m.escrowAccount, order.User, order.UserDeposit},
		{m.escrowAccount, order.Storager, order.StorageDeposit},
	}
	if err := m.moveFunds(ctx, refunds...); err != nil {
		return fmt.Errorf("refunding deposits: %s", err)
	}
	if err := m.store.DeleteOrder(ctx, id); err != nil {
		m.unwind(ctx, refunds...)
		return fmt.Errorf("deleting order: %s", err)
	}

	m.publish(ctx, events.Event{Type: events.OrderCancelled, OrderID: id, Amount: order.UserDeposit + order.StorageDeposit})
	log.Debugf("order %d cancelled", id)
	return nil
}

// PrepareOrder submits a party's data commitment. The first submission
// records the commitment; a second identical submission activates the
// order and starts the withdrawal clock. A mismatching second
// submission fails without touching the stored commitment.
func (m *Market) PrepareOrder(ctx context.Context, caller market.Account, id market.OrderID, c market.Commitment) (market.Order, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	order, err := m.store.GetOrder(ctx, id)
	if err != nil {
		return market.Order{}, err
	}
	if caller != order.User && caller != order.Storager {
		return market.Order{}, fmt.Errorf("caller isn't an order party: %w", market.ErrPermissionDenied)
	}
	if order.Active() {
		return market.Order{}, fmt.Errorf("order is already active: %w", market.ErrInvalidState)
	}
	if err := c.Validate(); err != nil {
		return market.Order{}, fmt.Errorf("%s: %w", err, market.ErrInvalidRange)
	}

	if order.Phase() == market.OrderPending {
		order.Commitment = c
		order.CommittedBy = caller
		if err := m.store.SaveOrder(ctx, order); err != nil {
			return market.Order{}, fmt.Errorf("saving order: %s", err)
		}
		log.Debugf("order %d committed by %s", id, caller)
		return order, nil
	}

	if !order.Commitment.Equal(c) {
		return market.Order{}, fmt.Errorf("submission disagrees with recorded commitment: %w", market.ErrCommitmentMismatch)
	}

	now := m.clock.Now()
	order.ActivatedAt = now
	order.LastWithdrawAt = now
	if err := m.store.SaveOrder(ctx, order); err != nil {
		return market.Order{}, fmt.Errorf("saving order: %s", err)
	}

	m.publish(ctx, events.Event{Type: events.OrderActivated, OrderID: id})
	m.metricOrdersActivated.Add(ctx, 1)
	log.Debugf("order %d active, root %s over %d pieces", id, c.MerkleRoot, c.LeafCount)
	return order, nil
}

// WithdrawOrder releases asset*price per whole elapsed service period
// to the provider, deducted from the consumer's prepaid deposit. When
// the deposit can't cover the accrued periods the provider is paid the
// remainder and the order finishes. Only the provider may withdraw.
func (m *Market) WithdrawOrder(ctx context.Context, caller market.Account, id market.OrderID) (market.WithdrawResult, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	order, err := m.store.GetOrder(ctx, id)
	if err != nil {
		return market.WithdrawResult{}, err
	}
	if order.Storager != caller {
		return market.WithdrawResult{}, fmt.Errorf("caller isn't the order storager: %w", market.ErrPermissionDenied)
	}
	if !order.Active() {
		return market.WithdrawResult{}, fmt.Errorf("order isn't active: %w", market.ErrInvalidState)
	}

	periods := uint64(m.clock.Now().Sub(order.LastWithdrawAt) / market.ServicePeriod)
	if periods == 0 {
		return market.WithdrawResult{}, nil
	}
	// An overflowing accrual can only exceed the deposit, so it takes
	// the depletion path.
	amount, ok := mulChecked(order.Asset, order.Price, periods)
	if !ok || amount > order.UserDeposit {
		// The deposit can't cover the accrued periods: the order has run
		// its course. Pay out what's left and destroy it.
		remaining := order.UserDeposit
		if err := m.moveFunds(ctx, transfer{m.escrowAccount, order.Storager, remaining}); err != nil {
			return market.WithdrawResult{}, fmt.Errorf("paying final withdrawal: %s", err)
		}
		if err := m.store.DeleteOrder(ctx, id); err != nil {
			m.unwind(ctx, transfer{m.escrowAccount, order.Storager, remaining})
			return market.WithdrawResult{}, fmt.Errorf("deleting finished order: %s", err)
		}

		m.publish(ctx, events.Event{Type: events.OrderFinished, OrderID: id, Amount: remaining})
		m.metricOrdersFinished.Add(ctx, 1)
		m.metricWithdrawnUnits.Add(ctx, int64(remaining))
		log.Debugf("order %d finished by depletion, final payout %s", id, humanize.Comma(int64(remaining)))
		return market.WithdrawResult{Amount: remaining, Periods: periods, Finished: true}, nil
	}

	if err := m.moveFunds(ctx, transfer{m.escrowAccount, order.Storager, amount}); err != nil {
		return market.WithdrawResult{}, fmt.Errorf("paying withdrawal: %s", err)
	}
	order.UserDeposit -= amount
	// Advance by whole periods, not to now: sub-period remainders keep
	// accruing toward the next withdrawal.
	order.LastWithdrawAt = order.LastWithdrawAt.Add(time.Duration(periods) * market.ServicePeriod)
	if err := m.store.SaveOrder(ctx, order); err != nil {
		m.unwind(ctx, transfer{m.escrowAccount, order.Storager, amount})
		return market.WithdrawResult{}, fmt.Errorf("saving order: %s", err)
	}

	m.publish(ctx, events.Event{Type: events.OrderWithdrawn, OrderID: id, Amount: amount})
	m.metricWithdrawnUnits.Add(ctx, int64(amount))
	log.Debugf("order %d: withdrew %s for %d periods", id, humanize.Comma(int64(amount)), periods)
	return market.WithdrawResult{Amount: amount, Periods: periods}, nil
}

// StartChallenge demands proof that the piece committed as pieceHash is
// still stored. The inclusion proof must open pieceHash under the
// order's merkle root; pieceIndex is recorded as metadata only, the
// proof doesn't bind it. Only the consumer may challenge, and only on
// an active order.
func (m *Market) StartChallenge(
	ctx context.Context,
	caller market.Account,
	orderID market.OrderID,
	pieceIndex uint64,
	pieceHash market.Hash,
	proof []market.Hash,
) (market.Challenge, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	order, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return market.Challenge{}, err
	}
	if order.User != caller {
		return market.Challenge{}, fmt.Errorf("caller isn't the order user: %w", market.ErrPermissionDenied)
	}
	if !order.Active() {
		return market.Challenge{}, fmt.Errorf("order isn't active: %w", market.ErrInvalidState)
	}
	if pieceIndex >= order.Commitment.LeafCount {
		return market.Challenge{}, fmt.Errorf("piece index %d out of %d: %w", pieceIndex, order.Commitment.LeafCount, market.ErrInvalidRange)
	}
	if !merkle.Verify(order.Commitment.MerkleRoot, pieceHash, proof) {
		return market.Challenge{}, fmt.Errorf("piece hash doesn't open under order root: %w", market.ErrChallengeVerification)
	}

	challenge := market.Challenge{
		OrderID:    orderID,
		PieceIndex: pieceIndex,
		PieceHash:  pieceHash,
		StartedAt:  m.clock.Now(),
	}
	if err := m.store.CreateChallenge(ctx, &challenge); err != nil {
		return market.Challenge{}, fmt.Errorf("saving challenge: %s", err)
	}

	m.publish(ctx, events.Event{Type: events.ChallengeStarted, OrderID: orderID, ChallengeID: challenge.ID})
	m.metricChallengesStarted.Add(ctx, 1)
	log.Debugf("challenge %d started on order %d, piece %d", challenge.ID, orderID, pieceIndex)
	return challenge, nil
}

// ProofChallenge answers a challenge with a chunk of the challenged
// piece. The chunk's hash must open under the challenged piece hash via
// subpath. A valid answer destroys the challenge and leaves the order
// untouched; an invalid one executes the slashing settlement. Only the
// provider may answer.
func (m *Market) ProofChallenge(
	ctx context.Context,
	caller market.Account,
	id market.ChallengeID,
	chunk []byte,
	subpath []market.Hash,
) (market.ChallengeOutcome, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	challenge, err := m.store.GetChallenge(ctx, id)
	if err != nil {
		return 0, err
	}
	order, err := m.store.GetOrder(ctx, challenge.OrderID)
	if err != nil {
		return 0, m.dropOrphanChallenge(ctx, challenge, err)
	}
	if order.Storager != caller {
		return 0, fmt.Errorf("caller isn't the order storager: %w", market.ErrPermissionDenied)
	}

	if merkle.Verify(challenge.PieceHash, merkle.LeafHash(chunk), subpath) {
		if err := m.store.DeleteChallenge(ctx, id); err != nil {
			return 0, fmt.Errorf("deleting challenge: %s", err)
		}
		m.publish(ctx, events.Event{Type: events.ChallengeProved, OrderID: order.ID, ChallengeID: id})
		log.Debugf("challenge %d proved by %s", id, caller)
		return market.ChallengeProved, nil
	}

	log.Warnf("challenge %d: invalid proof from %s, slashing order %d", id, caller, order.ID)
	if err := m.slash(ctx, order, challenge); err != nil {
		return 0, err
	}
	return market.ChallengeSlashed, nil
}

// EndChallenge resolves a challenge the provider left unanswered for
// the full response window, treating it as a non-response: the slashing
// settlement runs unconditionally. Only the consumer may end it.
func (m *Market) EndChallenge(ctx context.Context, caller market.Account, id market.ChallengeID) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	challenge, err := m.store.GetChallenge(ctx, id)
	if err != nil {
		return err
	}
	order, err := m.store.GetOrder(ctx, challenge.OrderID)
	if err != nil {
		return m.dropOrphanChallenge(ctx, challenge, err)
	}
	if order.User != caller {
		return fmt.Errorf("caller isn't the order user: %w", market.ErrPermissionDenied)
	}
	if m.clock.Now().Sub(challenge.StartedAt) < market.ChallengeWindow {
		return fmt.Errorf("challenge %d: %w", id, market.ErrTimeoutNotElapsed)
	}

	m.publish(ctx, events.Event{Type: events.ChallengeExpired, OrderID: order.ID, ChallengeID: id})
	log.Warnf("challenge %d expired unanswered, slashing order %d", id, order.ID)
	return m.slash(ctx, order, challenge)
}

// slash executes the slashing settlement: the consumer is refunded
// their full remaining prepayment plus half (floored) of the provider's
// collateral slice; the treasury absorbs the other half including the
// odd unit. Order and challenge are destroyed.
func (m *Market) slash(ctx context.Context, order market.Order, challenge market.Challenge) error {
	userCompensation := order.StorageDeposit / 2
	forfeited := order.StorageDeposit - userCompensation

	payouts := []transfer{
		{m.escrowAccount, order.User, order.UserDeposit + userCompensation},
		{m.escrowAccount, m.treasuryAccount, forfeited},
	}
	if err := m.moveFunds(ctx, payouts...); err != nil {
		return fmt.Errorf("paying settlement: %s", err)
	}
	if err := m.store.DeleteChallengeAndOrder(ctx, challenge.ID, order.ID); err != nil {
		m.unwind(ctx, payouts...)
		return fmt.Errorf("deleting slashed order: %s", err)
	}

	m.publish(ctx, events.Event{
		Type:        events.OrderSlashed,
		OrderID:     order.ID,
		ChallengeID: challenge.ID,
		Amount:      order.UserDeposit + order.StorageDeposit,
	})
	m.metricOrdersSlashed.Add(ctx, 1)
	m.metricSlashedUnits.Add(ctx, int64(order.StorageDeposit))
	log.Infof("order %d slashed: user repaid %s, treasury %s",
		order.ID,
		humanize.Comma(int64(order.UserDeposit+userCompensation)),
		humanize.Comma(int64(forfeited)))
	return nil
}

// dropOrphanChallenge removes a challenge whose order was already
// destroyed by another resolution. No funds move.
func (m *Market) dropOrphanChallenge(ctx context.Context, challenge market.Challenge, cause error) error {
	if err := m.store.DeleteChallenge(ctx, challenge.ID); err != nil {
		log.Errorf("deleting orphan challenge %d: %s", challenge.ID, err)
	}
	return fmt.Errorf("challenge %d references a destroyed order: %w", challenge.ID, cause)
}

// GetBill returns a bill by id.
func (m *Market) GetBill(ctx context.Context, id market.BillID) (market.Bill, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.store.GetBill(ctx, id)
}

// GetOrder returns an order by id.
func (m *Market) GetOrder(ctx context.Context, id market.OrderID) (market.Order, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.store.GetOrder(ctx, id)
}

// GetChallenge returns a challenge by id.
func (m *Market) GetChallenge(ctx context.Context, id market.ChallengeID) (market.Challenge, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.store.GetChallenge(ctx, id)
}

// ListBills returns all open listings.
func (m *Market) ListBills(ctx context.Context) ([]market.Bill, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.store.ListBills(ctx)
}

// ListOrders returns all live orders.
func (m *Market) ListOrders(ctx context.Context) ([]market.Order, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.store.ListOrders(ctx)
}

func (m *Market) requireBalance(ctx context.Context, account market.Account, amount uint64) error {
	balance, err := m.ledger.BalanceOf(ctx, account)
	if err != nil {
		return fmt.Errorf("getting balance of %s: %s", account, err)
	}
	if balance < amount {
		return fmt.Errorf("balance %d can't lock %d: %w", balance, amount, market.ErrInsufficientBalance)
	}
	return nil
}

// mulChecked multiplies its operands, reporting false on uint64
// overflow. Escrow amounts are derived from caller-chosen factors, so
// every product must be range checked before any funds move.
func mulChecked(factors ...uint64) (uint64, bool) {
	product := uint64(1)
	for _, f := range factors {
		hi, lo := bits.Mul64(product, f)
		if hi != 0 {
			return 0, false
		}
		product = lo
	}
	return product, true
}

type transfer struct {
	from, to market.Account
	amount   uint64
}

// moveFunds applies transfers in order, undoing completed ones if a
// later transfer fails so no partial movement is visible.
func (m *Market) moveFunds(ctx context.Context, transfers ...transfer) error {
	for i, t := range transfers {
		if err := m.ledger.Transfer(ctx, t.from, t.to, t.amount); err != nil {
			m.unwind(ctx, transfers[:i]...)
			return err
		}
	}
	return nil
}

// unwind reverses transfers best-effort; a failure here leaves escrow
// inconsistent and is only logged.
func (m *Market) unwind(ctx context.Context, transfers ...transfer) {
	for i := len(transfers) - 1; i >= 0; i-- {
		t := transfers[i]
		if err := m.ledger.Transfer(ctx, t.to, t.from, t.amount); err != nil {
			log.Errorf("unwinding transfer of %d from %s to %s: %s", t.amount, t.from, t.to, err)
		}
	}
}

func (m *Market) publish(ctx context.Context, e events.Event) {
	e.At = m.clock.Now()
	if err := m.publisher.Publish(ctx, e); err != nil {
		log.Errorf("publishing %s event: %s", e.Type, err)
	}
}
