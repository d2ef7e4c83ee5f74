package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	logger "github.com/ipfs/go-log/v2"
	"github.com/storemarket/market-core/cmd/marketd/metrics"
	"github.com/storemarket/market-core/market"
	coremetrics "github.com/storemarket/market-core/metrics"
	"go.opentelemetry.io/otel/attribute"
)

var (
	log = logger.Logger("marketd/api")

	metricRequests = metrics.Meter.NewInt64Counter("marketd.api.requests_total")
)

// accountHeader carries the calling party's ledger account. There is
// no authentication layer here; signature verification belongs to the
// gateway in front of this API.
const accountHeader = "X-Market-Account"

// NewServer returns a new http server exposing the marketplace API.
func NewServer(listenAddr string, m market.Market) (*http.Server, error) {
	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: createMux(m),
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("stopping http server: %s", err)
		}
	}()

	log.Infof("http server started at %s", listenAddr)
	return httpServer, nil
}

func createMux(m market.Market) *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument)
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)

	r.HandleFunc("/bills", listBillsHandler(m)).Methods(http.MethodGet)
	r.HandleFunc("/bills", createBillHandler(m)).Methods(http.MethodPost)
	r.HandleFunc("/bills/{id}", getBillHandler(m)).Methods(http.MethodGet)
	r.HandleFunc("/bills/{id}", cancelBillHandler(m)).Methods(http.MethodDelete)

	r.HandleFunc("/orders", listOrdersHandler(m)).Methods(http.MethodGet)
	r.HandleFunc("/orders", createOrderHandler(m)).Methods(http.MethodPost)
	r.HandleFunc("/orders/{id}", getOrderHandler(m)).Methods(http.MethodGet)
	r.HandleFunc("/orders/{id}", cancelOrderHandler(m)).Methods(http.MethodDelete)
	r.HandleFunc("/orders/{id}/prepare", prepareOrderHandler(m)).Methods(http.MethodPost)
	r.HandleFunc("/orders/{id}/withdraw", withdrawOrderHandler(m)).Methods(http.MethodPost)

	r.HandleFunc("/challenges", startChallengeHandler(m)).Methods(http.MethodPost)
	r.HandleFunc("/challenges/{id}", getChallengeHandler(m)).Methods(http.MethodGet)
	r.HandleFunc("/challenges/{id}/proof", proofChallengeHandler(m)).Methods(http.MethodPost)
	r.HandleFunc("/challenges/{id}/end", endChallengeHandler(m)).Methods(http.MethodPost)
	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func createBillHandler(m market.Market) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := caller(w, r)
		if !ok {
			return
		}
		var params market.BillParams
		if !decodeBody(w, r, &params) {
			return
		}
		bill, err := m.CreateBill(r.Context(), caller, params)
		if err != nil {
			marketError(w, "creating bill", err)
			return
		}
		writeJSON(w, bill)
	}
}

func listBillsHandler(m market.Market) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bills, err := m.ListBills(r.Context())
		if err != nil {
			marketError(w, "listing bills", err)
			return
		}
		if bills == nil {
			bills = []market.Bill{}
		}
		writeJSON(w, bills)
	}
}

func getBillHandler(m market.Market) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		bill, err := m.GetBill(r.Context(), market.BillID(id))
		if err != nil {
			marketError(w, "getting bill", err)
			return
		}
		writeJSON(w, bill)
	}
}

func cancelBillHandler(m market.Market) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := caller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := m.CancelBill(r.Context(), caller, market.BillID(id)); err != nil {
			marketError(w, "cancelling bill", err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

type createOrderRequest struct {
	BillID       market.BillID `json:"bill_id"`
	Asset        uint64        `json:"asset"`
	ServiceWeeks uint64        `json:"service_weeks"`
}

func createOrderHandler(m market.Market) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := caller(w, r)
		if !ok {
			return
		}
		var req createOrderRequest
		if !decodeBody(w, r, &req) {
			return
		}
		order, err := m.CreateOrder(r.Context(), caller, req.BillID, req.Asset, req.ServiceWeeks)
		if err != nil {
			marketError(w, "creating order", err)
			return
		}
		writeJSON(w, order)
	}
}

func listOrdersHandler(m market.Market) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orders, err := m.ListOrders(r.Context())
		if err != nil {
			marketError(w, "listing orders", err)
			return
		}
		if orders == nil {
			orders = []market.Order{}
		}
		writeJSON(w, orders)
	}
}

func getOrderHandler(m market.Market) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		order, err := m.GetOrder(r.Context(), market.OrderID(id))
		if err != nil {
			marketError(w, "getting order", err)
			return
		}
		writeJSON(w, order)
	}
}

func cancelOrderHandler(m market.Market) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := caller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := m.CancelOrder(r.Context(), caller, market.OrderID(id)); err != nil {
			marketError(w, "cancelling order", err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func prepareOrderHandler(m market.Market) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := caller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var c market.Commitment
		if !decodeBody(w, r, &c) {
			return
		}
		order, err := m.PrepareOrder(r.Context(), caller, market.OrderID(id), c)
		if err != nil {
			marketError(w, "preparing order", err)
			return
		}
		writeJSON(w, order)
	}
}

func withdrawOrderHandler(m market.Market) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := caller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		res, err := m.WithdrawOrder(r.Context(), caller, market.OrderID(id))
		if err != nil {
			marketError(w, "withdrawing", err)
			return
		}
		writeJSON(w, res)
	}
}

type startChallengeRequest struct {
	OrderID    market.OrderID `json:"order_id"`
	PieceIndex uint64         `json:"piece_index"`
	PieceHash  market.Hash    `json:"piece_hash"`
	Proof      []market.Hash  `json:"proof"`
}

func startChallengeHandler(m market.Market) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := caller(w, r)
		if !ok {
			return
		}
		var req startChallengeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		ch, err := m.StartChallenge(r.Context(), caller, req.OrderID, req.PieceIndex, req.PieceHash, req.Proof)
		if err != nil {
			marketError(w, "starting challenge", err)
			return
		}
		writeJSON(w, ch)
	}
}

func getChallengeHandler(m market.Market) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		ch, err := m.GetChallenge(r.Context(), market.ChallengeID(id))
		if err != nil {
			marketError(w, "getting challenge", err)
			return
		}
		writeJSON(w, ch)
	}
}

type proofChallengeRequest struct {
	// Chunk is base64 per encoding/json []byte handling.
	Chunk   []byte        `json:"chunk"`
	Subpath []market.Hash `json:"subpath"`
}

type proofChallengeResponse struct {
	Outcome string `json:"outcome"`
}

func proofChallengeHandler(m market.Market) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := caller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req proofChallengeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		outcome, err := m.ProofChallenge(r.Context(), caller, market.ChallengeID(id), req.Chunk, req.Subpath)
		if err != nil {
			marketError(w, "proving challenge", err)
			return
		}
		writeJSON(w, proofChallengeResponse{Outcome: outcome.String()})
	}
}

func endChallengeHandler(m market.Market) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := caller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := m.EndChallenge(r.Context(), caller, market.ChallengeID(id)); err != nil {
			marketError(w, "ending challenge", err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func caller(w http.ResponseWriter, r *http.Request) (market.Account, bool) {
	account := r.Header.Get(accountHeader)
	if account == "" {
		httpError(w, fmt.Sprintf("missing %s header", accountHeader), http.StatusBadRequest)
		return "", false
	}
	return market.Account(account), true
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		httpError(w, fmt.Sprintf("invalid id %q", raw), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, fmt.Sprintf("decoding body: %s", err), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("write failed: %v", err)
	}
}

// marketError maps engine errors to http statuses.
func marketError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, market.ErrBillNotFound),
		errors.Is(err, market.ErrOrderNotFound),
		errors.Is(err, market.ErrChallengeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, market.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, market.ErrInvalidRange),
		errors.Is(err, market.ErrInsufficientBalance),
		errors.Is(err, market.ErrCommitmentMismatch),
		errors.Is(err, market.ErrChallengeVerification):
		status = http.StatusBadRequest
	case errors.Is(err, market.ErrInvalidState),
		errors.Is(err, market.ErrTimeoutNotElapsed):
		status = http.StatusConflict
	}
	httpError(w, fmt.Sprintf("%s: %s", msg, err), status)
}

func httpError(w http.ResponseWriter, err string, status int) {
	log.Debugf("request error: %s", err)
	http.Error(w, err, status)
}

// instrument counts requests per method with an ok/error status tag.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		var err error
		if rec.status >= http.StatusBadRequest {
			err = fmt.Errorf("status %d", rec.status)
		}
		coremetrics.MetricIncrCounter(r.Context(), err, metricRequests,
			attribute.Key("method").String(r.Method))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
