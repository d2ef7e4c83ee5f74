package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	marketengine "github.com/storemarket/market-core/cmd/marketd/market"
	"github.com/storemarket/market-core/escrow/escrowmem"
	"github.com/storemarket/market-core/market"
	"github.com/storemarket/market-core/merkle"
	"github.com/storemarket/market-core/tests"
	"github.com/stretchr/testify/require"
)

func TestAPI_Bills(t *testing.T) {
	router := newRouter(t)

	// Missing account header.
	res := do(t, router, http.MethodPost, "/bills", "", billParams())
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = do(t, router, http.MethodPost, "/bills", "provider", billParams())
	require.Equal(t, http.StatusOK, res.Code)
	var bill market.Bill
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &bill))
	require.Equal(t, market.BillID(1), bill.ID)
	require.Equal(t, uint64(200), bill.DepositAmount)

	res = do(t, router, http.MethodGet, "/bills", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var bills []market.Bill
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &bills))
	require.Len(t, bills, 1)

	res = do(t, router, http.MethodGet, "/bills/1", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	res = do(t, router, http.MethodGet, "/bills/99", "", nil)
	require.Equal(t, http.StatusNotFound, res.Code)
	res = do(t, router, http.MethodGet, "/bills/abc", "", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = do(t, router, http.MethodDelete, "/bills/1", "stranger", nil)
	require.Equal(t, http.StatusForbidden, res.Code)
	res = do(t, router, http.MethodDelete, "/bills/1", "provider", nil)
	require.Equal(t, http.StatusOK, res.Code)
	res = do(t, router, http.MethodGet, "/bills/1", "", nil)
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestAPI_OrderLifecycle(t *testing.T) {
	router := newRouter(t)

	res := do(t, router, http.MethodPost, "/bills", "provider", billParams())
	require.Equal(t, http.StatusOK, res.Code)
	var bill market.Bill
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &bill))

	res = do(t, router, http.MethodPost, "/orders", "consumer", map[string]interface{}{
		"bill_id": bill.ID, "asset": 15, "service_weeks": 4,
	})
	require.Equal(t, http.StatusBadRequest, res.Code) // not a capacity multiple

	res = do(t, router, http.MethodPost, "/orders", "consumer", map[string]interface{}{
		"bill_id": bill.ID, "asset": 20, "service_weeks": 4,
	})
	require.Equal(t, http.StatusOK, res.Code)
	var order market.Order
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &order))
	require.Equal(t, uint64(80), order.UserDeposit)

	// Withdraw before activation conflicts with the order phase.
	res = do(t, router, http.MethodPost, fmt.Sprintf("/orders/%d/withdraw", order.ID), "provider", nil)
	require.Equal(t, http.StatusConflict, res.Code)

	c := commitment()
	res = do(t, router, http.MethodPost, fmt.Sprintf("/orders/%d/prepare", order.ID), "consumer", c)
	require.Equal(t, http.StatusOK, res.Code)

	mismatched := c
	mismatched.LeafCount = 7
	res = do(t, router, http.MethodPost, fmt.Sprintf("/orders/%d/prepare", order.ID), "provider", mismatched)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = do(t, router, http.MethodPost, fmt.Sprintf("/orders/%d/prepare", order.ID), "provider", c)
	require.Equal(t, http.StatusOK, res.Code)
	var active market.Order
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &active))
	require.True(t, active.Active())

	// Nothing accrued yet.
	res = do(t, router, http.MethodPost, fmt.Sprintf("/orders/%d/withdraw", order.ID), "provider", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var wres market.WithdrawResult
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &wres))
	require.Zero(t, wres.Amount)

	res = do(t, router, http.MethodDelete, fmt.Sprintf("/orders/%d", order.ID), "consumer", nil)
	require.Equal(t, http.StatusConflict, res.Code)
}

func TestAPI_Challenges(t *testing.T) {
	router := newRouter(t)

	res := do(t, router, http.MethodPost, "/bills", "provider", billParams())
	require.Equal(t, http.StatusOK, res.Code)
	var bill market.Bill
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &bill))
	res = do(t, router, http.MethodPost, "/orders", "consumer", map[string]interface{}{
		"bill_id": bill.ID, "asset": 20, "service_weeks": 4,
	})
	require.Equal(t, http.StatusOK, res.Code)
	var order market.Order
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &order))

	chunks := [][]byte{[]byte("chunk-0"), []byte("chunk-1")}
	piece := merkle.NewTree([]market.Hash{merkle.LeafHash(chunks[0]), merkle.LeafHash(chunks[1])})
	top := merkle.NewTree([]market.Hash{piece.Root()})
	c := market.Commitment{MerkleRoot: top.Root(), PieceSize: 1 << 20, LeafCount: 1}

	res = do(t, router, http.MethodPost, fmt.Sprintf("/orders/%d/prepare", order.ID), "consumer", c)
	require.Equal(t, http.StatusOK, res.Code)
	res = do(t, router, http.MethodPost, fmt.Sprintf("/orders/%d/prepare", order.ID), "provider", c)
	require.Equal(t, http.StatusOK, res.Code)

	res = do(t, router, http.MethodPost, "/challenges", "consumer", map[string]interface{}{
		"order_id": order.ID, "piece_index": 0, "piece_hash": piece.Root(), "proof": top.Proof(0),
	})
	require.Equal(t, http.StatusOK, res.Code)
	var ch market.Challenge
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &ch))
	require.Equal(t, market.ChallengeID(1), ch.ID)

	res = do(t, router, http.MethodGet, fmt.Sprintf("/challenges/%d", ch.ID), "", nil)
	require.Equal(t, http.StatusOK, res.Code)

	// Ending before the response window elapsed conflicts.
	res = do(t, router, http.MethodPost, fmt.Sprintf("/challenges/%d/end", ch.ID), "consumer", nil)
	require.Equal(t, http.StatusConflict, res.Code)

	res = do(t, router, http.MethodPost, fmt.Sprintf("/challenges/%d/proof", ch.ID), "provider", map[string]interface{}{
		"chunk": chunks[1], "subpath": piece.Proof(1),
	})
	require.Equal(t, http.StatusOK, res.Code)
	var pres proofChallengeResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &pres))
	require.Equal(t, "proved", pres.Outcome)

	res = do(t, router, http.MethodGet, fmt.Sprintf("/challenges/%d", ch.ID), "", nil)
	require.Equal(t, http.StatusNotFound, res.Code)
}

func newRouter(t *testing.T) http.Handler {
	ledger := escrowmem.New()
	ledger.Mint("provider", 1000)
	ledger.Mint("consumer", 1000)
	m, err := marketengine.New(tests.NewTxMapDatastore(), ledger)
	require.NoError(t, err)
	return createMux(m)
}

func do(t *testing.T, h http.Handler, method, url string, account string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if account != "" {
		req.Header.Set("X-Market-Account", account)
	}
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func billParams() market.BillParams {
	return market.BillParams{
		Asset:             100,
		Price:             1,
		Capacity:          10,
		MinServiceWeeks:   2,
		MaxServiceWeeks:   10,
		DepositMultiplier: 2,
	}
}

func commitment() market.Commitment {
	leaf := merkle.LeafHash([]byte("piece"))
	return market.Commitment{MerkleRoot: leaf, PieceSize: 1 << 20, LeafCount: 1}
}
