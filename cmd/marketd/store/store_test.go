package store

import (
	"context"
	"testing"
	"time"

	"github.com/storemarket/market-core/market"
	"github.com/storemarket/market-core/tests"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetBill(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	b := market.Bill{
		Owner:           "provider",
		Asset:           100,
		Price:           1,
		Capacity:        10,
		MinServiceWeeks: 1,
		MaxServiceWeeks: 10,
		DepositAmount:   200,
		StartedAt:       time.Now(),
	}

	_, err := s.GetBill(ctx, 1)
	require.Equal(t, market.ErrBillNotFound, err)

	err = s.CreateBill(ctx, &b)
	require.NoError(t, err)
	require.Equal(t, market.BillID(1), b.ID)

	b2, err := s.GetBill(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, b.Owner, b2.Owner)
	require.Equal(t, b.Asset, b2.Asset)
	require.Equal(t, b.DepositAmount, b2.DepositAmount)
	require.Equal(t, b.StartedAt.Unix(), b2.StartedAt.Unix())
}

func TestBillIDsNeverReused(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	b1 := market.Bill{Owner: "p", Asset: 10, Price: 1, Capacity: 1, MinServiceWeeks: 1, MaxServiceWeeks: 1, DepositAmount: 10}
	require.NoError(t, s.CreateBill(ctx, &b1))
	require.NoError(t, s.DeleteBill(ctx, b1.ID))

	b2 := market.Bill{Owner: "p", Asset: 10, Price: 1, Capacity: 1, MinServiceWeeks: 1, MaxServiceWeeks: 1, DepositAmount: 10}
	require.NoError(t, s.CreateBill(ctx, &b2))
	require.Greater(t, b2.ID, b1.ID)
}

func TestCreateOrderShrinksBill(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	b := market.Bill{Owner: "p", Asset: 100, Price: 1, Capacity: 10, MinServiceWeeks: 1, MaxServiceWeeks: 10, DepositAmount: 200}
	require.NoError(t, s.CreateBill(ctx, &b))

	b.Asset = 80
	b.DepositAmount = 160
	o := market.Order{
		BillID:         b.ID,
		User:           "u",
		Storager:       "p",
		Asset:          20,
		Price:          1,
		ServiceWeeks:   4,
		UserDeposit:    80,
		StorageDeposit: 40,
	}
	require.NoError(t, s.CreateOrder(ctx, &o, b, false))
	require.Equal(t, market.OrderID(1), o.ID)

	b2, err := s.GetBill(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(80), b2.Asset)
	require.Equal(t, uint64(160), b2.DepositAmount)

	o2, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, o.UserDeposit, o2.UserDeposit)
	require.Equal(t, o.StorageDeposit, o2.StorageDeposit)
}

func TestCreateOrderDeletesExhaustedBill(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	b := market.Bill{Owner: "p", Asset: 10, Price: 1, Capacity: 10, MinServiceWeeks: 1, MaxServiceWeeks: 10, DepositAmount: 20}
	require.NoError(t, s.CreateBill(ctx, &b))

	o := market.Order{BillID: b.ID, User: "u", Storager: "p", Asset: 10, Price: 1, ServiceWeeks: 1, UserDeposit: 10, StorageDeposit: 20}
	require.NoError(t, s.CreateOrder(ctx, &o, b, true))

	_, err := s.GetBill(ctx, b.ID)
	require.Equal(t, market.ErrBillNotFound, err)
}

func TestChallengeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	c := market.Challenge{OrderID: 7, PieceIndex: 3, PieceHash: market.Hash{1, 2, 3}, StartedAt: time.Now()}
	require.NoError(t, s.CreateChallenge(ctx, &c))
	require.Equal(t, market.ChallengeID(1), c.ID)

	c2, err := s.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, c.OrderID, c2.OrderID)
	require.Equal(t, c.PieceIndex, c2.PieceIndex)
	require.Equal(t, c.PieceHash, c2.PieceHash)

	require.NoError(t, s.DeleteChallenge(ctx, c.ID))
	_, err = s.GetChallenge(ctx, c.ID)
	require.Equal(t, market.ErrChallengeNotFound, err)
}

func TestDeleteChallengeAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	o := market.Order{BillID: 1, User: "u", Storager: "p", Asset: 10, Price: 1, ServiceWeeks: 1, UserDeposit: 10, StorageDeposit: 20}
	b := market.Bill{ID: 1, Owner: "p", Asset: 10, Price: 1, Capacity: 10, MinServiceWeeks: 1, MaxServiceWeeks: 1, DepositAmount: 20}
	require.NoError(t, s.CreateOrder(ctx, &o, b, true))

	c := market.Challenge{OrderID: o.ID, PieceIndex: 0, PieceHash: market.Hash{9}}
	require.NoError(t, s.CreateChallenge(ctx, &c))

	require.NoError(t, s.DeleteChallengeAndOrder(ctx, c.ID, o.ID))
	_, err := s.GetChallenge(ctx, c.ID)
	require.Equal(t, market.ErrChallengeNotFound, err)
	_, err = s.GetOrder(ctx, o.ID)
	require.Equal(t, market.ErrOrderNotFound, err)
}

func TestListBillsAndOrders(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for i := 0; i < 3; i++ {
		b := market.Bill{Owner: "p", Asset: 10, Price: 1, Capacity: 1, MinServiceWeeks: 1, MaxServiceWeeks: 1, DepositAmount: 10}
		require.NoError(t, s.CreateBill(ctx, &b))
	}
	bills, err := s.ListBills(ctx)
	require.NoError(t, err)
	require.Len(t, bills, 3)
	for i, b := range bills {
		require.Equal(t, market.BillID(i+1), b.ID)
	}

	orders, err := s.ListOrders(ctx)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func newStore(t *testing.T) *Store {
	ds := tests.NewTxMapDatastore()
	s, err := New(ds)
	require.NoError(t, err)
	return s
}
