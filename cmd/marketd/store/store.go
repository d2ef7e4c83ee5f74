package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/filecoin-project/go-storedcounter"
	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	logger "github.com/ipfs/go-log/v2"
	"github.com/storemarket/market-core/market"
)

var (
	log = logger.Logger("marketd/store")

	// Namespace "/bills/{id}" holds the current Bill data for an id.
	dsPrefixBill = ds.NewKey("/bills")
	// Namespace "/orders/{id}" holds the current Order data for an id.
	dsPrefixOrder = ds.NewKey("/orders")
	// Namespace "/challenges/{id}" holds the current Challenge data for an id.
	dsPrefixChallenge = ds.NewKey("/challenges")

	// Counter keys. Ids are handed out once and never reused, deletions
	// included.
	dsKeyBillCounter      = ds.NewKey("/counters/bills")
	dsKeyOrderCounter     = ds.NewKey("/counters/orders")
	dsKeyChallengeCounter = ds.NewKey("/counters/challenges")
)

// Store persists bills, orders and challenges.
type Store struct {
	ds ds.TxnDatastore

	billCounter      *storedcounter.StoredCounter
	orderCounter     *storedcounter.StoredCounter
	challengeCounter *storedcounter.StoredCounter
}

// New returns a new Store backed by `store`.
func New(store ds.TxnDatastore) (*Store, error) {
	s := &Store{
		ds:               store,
		billCounter:      storedcounter.New(store, dsKeyBillCounter),
		orderCounter:     storedcounter.New(store, dsKeyOrderCounter),
		challengeCounter: storedcounter.New(store, dsKeyChallengeCounter),
	}
	return s, nil
}

// CreateBill assigns the next bill id and persists the bill. It
// populates b.ID.
func (s *Store) CreateBill(ctx context.Context, b *market.Bill) error {
	if b.ID != 0 {
		return fmt.Errorf("bill id must be empty")
	}
	next, err := s.billCounter.Next()
	if err != nil {
		return fmt.Errorf("generating bill id: %v", err)
	}
	b.ID = market.BillID(next + 1)

	if err := putBill(ctx, s.ds, *b); err != nil {
		return fmt.Errorf("putting bill: %v", err)
	}
	log.Debugf("created bill %d", b.ID)
	return nil
}

// SaveBill overwrites an existing bill.
func (s *Store) SaveBill(ctx context.Context, b market.Bill) error {
	return putBill(ctx, s.ds, b)
}

// GetBill returns a bill by id. Returns market.ErrBillNotFound if absent.
func (s *Store) GetBill(ctx context.Context, id market.BillID) (market.Bill, error) {
	return getBill(ctx, s.ds, id)
}

// DeleteBill removes a bill.
func (s *Store) DeleteBill(ctx context.Context, id market.BillID) error {
	if err := s.ds.Delete(ctx, keyBill(id)); err != nil {
		return fmt.Errorf("deleting bill: %v", err)
	}
	return nil
}

// ListBills returns all bills ordered by id.
func (s *Store) ListBills(ctx context.Context) ([]market.Bill, error) {
	results, err := s.ds.Query(ctx, dsq.Query{Prefix: dsPrefixBill.String()})
	if err != nil {
		return nil, fmt.Errorf("querying bills: %v", err)
	}
	defer func() { _ = results.Close() }()

	var list []market.Bill
	for res := range results.Next() {
		if res.Error != nil {
			return nil, fmt.Errorf("getting next result: %v", res.Error)
		}
		b, err := decodeBill(res.Value)
		if err != nil {
			return nil, fmt.Errorf("decoding bill: %v", err)
		}
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// CreateOrder transactionally persists a new order together with its
// originating bill's consumption: the bill is saved shrunk, or deleted
// when the order exhausted its capacity. It populates o.ID.
func (s *Store) CreateOrder(ctx context.Context, o *market.Order, bill market.Bill, deleteBill bool) error {
	if o.ID != 0 {
		return fmt.Errorf("order id must be empty")
	}
	next, err := s.orderCounter.Next()
	if err != nil {
		return fmt.Errorf("generating order id: %v", err)
	}
	o.ID = market.OrderID(next + 1)

	txn, err := s.ds.NewTransaction(ctx, false)
	if err != nil {
		return fmt.Errorf("creating txn: %v", err)
	}
	defer txn.Discard(ctx)

	if err := putOrder(ctx, txn, *o); err != nil {
		return fmt.Errorf("putting order: %v", err)
	}
	if deleteBill {
		if err := txn.Delete(ctx, keyBill(bill.ID)); err != nil {
			return fmt.Errorf("deleting exhausted bill: %v", err)
		}
	} else {
		if err := putBill(ctx, txn, bill); err != nil {
			return fmt.Errorf("putting bill: %v", err)
		}
	}
	if err := txn.Commit(ctx); err != nil {
		return fmt.Errorf("committing txn: %v", err)
	}

	log.Debugf("created order %d against bill %d", o.ID, bill.ID)
	return nil
}

// SaveOrder overwrites an existing order.
func (s *Store) SaveOrder(ctx context.Context, o market.Order) error {
	return putOrder(ctx, s.ds, o)
}

// GetOrder returns an order by id. Returns market.ErrOrderNotFound if absent.
func (s *Store) GetOrder(ctx context.Context, id market.OrderID) (market.Order, error) {
	return getOrder(ctx, s.ds, id)
}

// DeleteOrder removes an order.
func (s *Store) DeleteOrder(ctx context.Context, id market.OrderID) error {
	if err := s.ds.Delete(ctx, keyOrder(id)); err != nil {
		return fmt.Errorf("deleting order: %v", err)
	}
	return nil
}

// ListOrders returns all orders ordered by id.
func (s *Store) ListOrders(ctx context.Context) ([]market.Order, error) {
	results, err := s.ds.Query(ctx, dsq.Query{Prefix: dsPrefixOrder.String()})
	if err != nil {
		return nil, fmt.Errorf("querying orders: %v", err)
	}
	defer func() { _ = results.Close() }()

	var list []market.Order
	for res := range results.Next() {
		if res.Error != nil {
			return nil, fmt.Errorf("getting next result: %v", res.Error)
		}
		o, err := decodeOrder(res.Value)
		if err != nil {
			return nil, fmt.Errorf("decoding order: %v", err)
		}
		list = append(list, o)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// CreateChallenge assigns the next challenge id and persists the
// challenge. It populates c.ID.
func (s *Store) CreateChallenge(ctx context.Context, c *market.Challenge) error {
	if c.ID != 0 {
		return fmt.Errorf("challenge id must be empty")
	}
	next, err := s.challengeCounter.Next()
	if err != nil {
		return fmt.Errorf("generating challenge id: %v", err)
	}
	c.ID = market.ChallengeID(next + 1)

	val, err := encode(*c)
	if err != nil {
		return fmt.Errorf("encoding challenge: %v", err)
	}
	if err := s.ds.Put(ctx, keyChallenge(c.ID), val); err != nil {
		return fmt.Errorf("putting challenge: %v", err)
	}
	log.Debugf("created challenge %d for order %d", c.ID, c.OrderID)
	return nil
}

// GetChallenge returns a challenge by id. Returns
// market.ErrChallengeNotFound if absent.
func (s *Store) GetChallenge(ctx context.Context, id market.ChallengeID) (market.Challenge, error) {
	val, err := s.ds.Get(ctx, keyChallenge(id))
	if errors.Is(err, ds.ErrNotFound) {
		return market.Challenge{}, market.ErrChallengeNotFound
	} else if err != nil {
		return market.Challenge{}, fmt.Errorf("getting challenge: %v", err)
	}
	var c market.Challenge
	if err := decode(val, &c); err != nil {
		return market.Challenge{}, fmt.Errorf("decoding challenge: %v", err)
	}
	return c, nil
}

// DeleteChallenge removes a challenge.
func (s *Store) DeleteChallenge(ctx context.Context, id market.ChallengeID) error {
	if err := s.ds.Delete(ctx, keyChallenge(id)); err != nil {
		return fmt.Errorf("deleting challenge: %v", err)
	}
	return nil
}

// DeleteChallengeAndOrder transactionally removes a resolved challenge
// together with the order it terminated.
func (s *Store) DeleteChallengeAndOrder(ctx context.Context, chID market.ChallengeID, orderID market.OrderID) error {
	txn, err := s.ds.NewTransaction(ctx, false)
	if err != nil {
		return fmt.Errorf("creating txn: %v", err)
	}
	defer txn.Discard(ctx)

	if err := txn.Delete(ctx, keyChallenge(chID)); err != nil {
		return fmt.Errorf("deleting challenge: %v", err)
	}
	if err := txn.Delete(ctx, keyOrder(orderID)); err != nil {
		return fmt.Errorf("deleting order: %v", err)
	}
	if err := txn.Commit(ctx); err != nil {
		return fmt.Errorf("committing txn: %v", err)
	}
	return nil
}

func keyBill(id market.BillID) ds.Key {
	return dsPrefixBill.ChildString(strconv.FormatUint(uint64(id), 10))
}

func keyOrder(id market.OrderID) ds.Key {
	return dsPrefixOrder.ChildString(strconv.FormatUint(uint64(id), 10))
}

func keyChallenge(id market.ChallengeID) ds.Key {
	return dsPrefixChallenge.ChildString(strconv.FormatUint(uint64(id), 10))
}

func putBill(ctx context.Context, writer ds.Write, b market.Bill) error {
	val, err := encode(b)
	if err != nil {
		return fmt.Errorf("encoding bill: %v", err)
	}
	return writer.Put(ctx, keyBill(b.ID), val)
}

func getBill(ctx context.Context, reader ds.Read, id market.BillID) (market.Bill, error) {
	val, err := reader.Get(ctx, keyBill(id))
	if errors.Is(err, ds.ErrNotFound) {
		return market.Bill{}, market.ErrBillNotFound
	} else if err != nil {
		return market.Bill{}, fmt.Errorf("getting bill: %v", err)
	}
	return decodeBill(val)
}

func putOrder(ctx context.Context, writer ds.Write, o market.Order) error {
	val, err := encode(o)
	if err != nil {
		return fmt.Errorf("encoding order: %v", err)
	}
	return writer.Put(ctx, keyOrder(o.ID), val)
}

func getOrder(ctx context.Context, reader ds.Read, id market.OrderID) (market.Order, error) {
	val, err := reader.Get(ctx, keyOrder(id))
	if errors.Is(err, ds.ErrNotFound) {
		return market.Order{}, market.ErrOrderNotFound
	} else if err != nil {
		return market.Order{}, fmt.Errorf("getting order: %v", err)
	}
	return decodeOrder(val)
}

func decodeBill(val []byte) (market.Bill, error) {
	var b market.Bill
	if err := decode(val, &b); err != nil {
		return market.Bill{}, fmt.Errorf("decoding bill: %v", err)
	}
	return b, nil
}

func decodeOrder(val []byte) (market.Order, error) {
	var o market.Order
	if err := decode(val, &o); err != nil {
		return market.Order{}, fmt.Errorf("decoding order: %v", err)
	}
	return o, nil
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(val []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(val)).Decode(v)
}
