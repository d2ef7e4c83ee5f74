package market

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const (
	invalidPhase = "invalid"

	// ServicePeriod is the accrual unit for metered withdrawals. Provider
	// income is released in whole elapsed service periods only.
	ServicePeriod = 7 * 24 * time.Hour

	// ChallengeWindow is how long a provider has to answer a challenge
	// before the consumer may end it as a non-response.
	ChallengeWindow = 7 * 24 * time.Hour
)

var (
	// ErrBillNotFound indicates the referenced bill doesn't exist.
	ErrBillNotFound = errors.New("bill not found")
	// ErrOrderNotFound indicates the referenced order doesn't exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrChallengeNotFound indicates the referenced challenge doesn't exist.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrPermissionDenied indicates the caller isn't the party the operation requires.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInsufficientBalance indicates the caller's balance can't cover the required lock amount.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidRange indicates a purchase outside the listing's advertised bounds.
	ErrInvalidRange = errors.New("invalid range")
	// ErrInvalidState indicates an operation against an order in the wrong lifecycle phase.
	ErrInvalidState = errors.New("invalid order state")
	// ErrCommitmentMismatch indicates a second commitment submission disagreeing with the first.
	ErrCommitmentMismatch = errors.New("commitment mismatch")
	// ErrChallengeVerification indicates a Merkle proof failing to open against the expected root.
	ErrChallengeVerification = errors.New("challenge verification failed")
	// ErrTimeoutNotElapsed indicates ending a challenge before its response window expired.
	ErrTimeoutNotElapsed = errors.New("challenge window not elapsed")
)

// Market is the full set of marketplace operations: capacity listings,
// escrow-backed deals, and storage-proof challenges.
type Market interface {
	// CreateBill posts a capacity listing, locking the owner's collateral
	// in escrow.
	CreateBill(ctx context.Context, owner Account, params BillParams) (Bill, error)
	// CancelBill removes a listing and refunds its remaining collateral to
	// the owner.
	CancelBill(ctx context.Context, caller Account, id BillID) error

	// CreateOrder buys a slice of a listing, escrowing the consumer's
	// prepayment and carving out the provider's proportional collateral.
	CreateOrder(ctx context.Context, user Account, billID BillID, asset, serviceWeeks uint64) (Order, error)
	// CancelOrder cancels a not-yet-active order, refunding both deposits.
	CancelOrder(ctx context.Context, caller Account, id OrderID) error
	// PrepareOrder submits one party's data commitment. The order becomes
	// active once both parties have submitted identical commitments.
	PrepareOrder(ctx context.Context, caller Account, id OrderID, c Commitment) (Order, error)
	// WithdrawOrder releases accrued whole-period income to the provider,
	// finishing the order when the consumer deposit runs out.
	WithdrawOrder(ctx context.Context, caller Account, id OrderID) (WithdrawResult, error)

	// StartChallenge demands proof that a committed piece is still held,
	// after verifying the piece hash belongs to the order's merkle root.
	StartChallenge(ctx context.Context, caller Account, orderID OrderID, pieceIndex uint64, pieceHash Hash, proof []Hash) (Challenge, error)
	// ProofChallenge answers a challenge with a chunk of the challenged
	// piece. An invalid answer triggers the slashing settlement.
	ProofChallenge(ctx context.Context, caller Account, id ChallengeID, chunk []byte, subpath []Hash) (ChallengeOutcome, error)
	// EndChallenge resolves an unanswered challenge after the response
	// window, slashing the provider.
	EndChallenge(ctx context.Context, caller Account, id ChallengeID) error

	// GetBill returns a bill by id. Returns ErrBillNotFound if absent.
	GetBill(ctx context.Context, id BillID) (Bill, error)
	// GetOrder returns an order by id. Returns ErrOrderNotFound if absent.
	GetOrder(ctx context.Context, id OrderID) (Order, error)
	// GetChallenge returns a challenge by id. Returns ErrChallengeNotFound if absent.
	GetChallenge(ctx context.Context, id ChallengeID) (Challenge, error)
	// ListBills returns all open listings.
	ListBills(ctx context.Context) ([]Bill, error)
	// ListOrders returns all live orders.
	ListOrders(ctx context.Context) ([]Order, error)
}

// Account identifies a party on the external ledger.
type Account string

// BillID is the type of a Bill identifier. Ids are monotonically
// increasing and never reused after deletion.
type BillID uint64

// OrderID is the type of an Order identifier.
type OrderID uint64

// ChallengeID is the type of a Challenge identifier.
type ChallengeID uint64

// Hash is a 32-byte digest used by the commitment protocol.
type Hash [32]byte

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex encoding of h.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText encodes h as lowercase hex.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a hex-encoded hash.
func (h *Hash) UnmarshalText(text []byte) error {
	return h.decode(string(text))
}

func (h *Hash) decode(s string) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decoding hash: %v", err)
	}
	if len(b) != len(h) {
		return fmt.Errorf("hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return nil
}

// HashFromHex parses a hex-encoded hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	if err := h.decode(s); err != nil {
		return Hash{}, err
	}
	return h, nil
}

// BillParams are the provider-chosen terms of a new listing.
type BillParams struct {
	// Asset is the listed capacity in units.
	Asset uint64
	// Price is the per-unit per-service-period rate.
	Price uint64
	// Capacity is the minimum tradeable unit; every order's purchased
	// amount must be an exact multiple.
	Capacity uint64
	// MinServiceWeeks and MaxServiceWeeks bound order durations.
	MinServiceWeeks uint64
	MaxServiceWeeks uint64
	// DepositMultiplier scales the collateral locked against the listing:
	// deposit = asset * price * multiplier.
	DepositMultiplier uint64
}

// Validate returns an error if the params describe an unusable listing.
func (p BillParams) Validate() error {
	if p.Asset == 0 {
		return errors.New("asset is zero")
	}
	if p.Price == 0 {
		return errors.New("price is zero")
	}
	if p.Capacity == 0 {
		return errors.New("capacity is zero")
	}
	if p.Asset%p.Capacity != 0 {
		return errors.New("asset must be a multiple of capacity")
	}
	if p.MinServiceWeeks == 0 {
		return errors.New("min service weeks is zero")
	}
	if p.MinServiceWeeks > p.MaxServiceWeeks {
		return errors.New("min service weeks greater than max")
	}
	if p.DepositMultiplier == 0 {
		return errors.New("deposit multiplier is zero")
	}
	return nil
}

// Bill is a storage-capacity listing, collateralized by a deposit kept
// proportional to its unsold capacity.
type Bill struct {
	ID    BillID  `json:"id"`
	Owner Account `json:"owner"`

	Asset           uint64 `json:"asset"`
	Price           uint64 `json:"price"`
	Capacity        uint64 `json:"capacity"`
	MinServiceWeeks uint64 `json:"min_service_weeks"`
	MaxServiceWeeks uint64 `json:"max_service_weeks"`

	// DepositAmount is the owner's remaining locked collateral. It shrinks
	// proportionally as capacity sells.
	DepositAmount uint64 `json:"deposit_amount"`

	StartedAt time.Time `json:"started_at"`
}

// Commitment describes a two-level merkle commitment over an order's
// stored data: MerkleRoot is the root over LeafCount per-piece hashes,
// each piece covering PieceSize logical bytes and itself the root of its
// chunk hashes.
type Commitment struct {
	MerkleRoot Hash   `json:"merkle_root"`
	PieceSize  uint64 `json:"piece_size"`
	LeafCount  uint64 `json:"leaf_count"`
}

// Validate returns an error if the commitment is unusable.
func (c Commitment) Validate() error {
	if c.MerkleRoot.IsZero() {
		return errors.New("merkle root is zero")
	}
	if c.PieceSize == 0 {
		return errors.New("piece size is zero")
	}
	if c.LeafCount == 0 {
		return errors.New("leaf count is zero")
	}
	return nil
}

// Equal reports whether two commitments are identical.
func (c Commitment) Equal(o Commitment) bool {
	return c == o
}

// OrderPhase is the lifecycle phase of an Order. Terminal outcomes
// (cancelled, finished, slashed) destroy the record, so only live phases
// are represented.
type OrderPhase int

const (
	// OrderPending indicates no commitment has been submitted yet.
	OrderPending OrderPhase = iota
	// OrderCommitted indicates one party has submitted a commitment and
	// the counter-party's matching attestation is awaited.
	OrderCommitted
	// OrderActive indicates both parties attested the same commitment and
	// provider income is accruing.
	OrderActive
)

// String returns a string-encoded phase.
func (p OrderPhase) String() string {
	switch p {
	case OrderPending:
		return "pending"
	case OrderCommitted:
		return "committed"
	case OrderActive:
		return "active"
	default:
		return invalidPhase
	}
}

// Order is a purchased, time-boxed capacity slice backed by bilateral
// escrow: the consumer's prepayment plus the provider's collateral slice.
type Order struct {
	ID     OrderID `json:"id"`
	BillID BillID  `json:"bill_id"`

	User     Account `json:"user"`
	Storager Account `json:"storager"`

	Asset        uint64 `json:"asset"`
	Price        uint64 `json:"price"`
	ServiceWeeks uint64 `json:"service_weeks"`

	// UserDeposit only decreases: by metered withdrawal or by the
	// terminal refund of a slashing settlement.
	UserDeposit    uint64 `json:"user_deposit"`
	StorageDeposit uint64 `json:"storage_deposit"`

	// Commitment is zero until the first PrepareOrder call; CommittedBy
	// records which party supplied it.
	Commitment  Commitment `json:"commitment"`
	CommittedBy Account    `json:"committed_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	// ActivatedAt is zero until both parties agree on the commitment.
	ActivatedAt time.Time `json:"activated_at,omitempty"`
	// LastWithdrawAt advances by whole service periods only, preserving
	// sub-period remainders across withdrawals.
	LastWithdrawAt time.Time `json:"last_withdraw_at,omitempty"`
}

// Phase derives the lifecycle phase from the order's fields.
func (o Order) Phase() OrderPhase {
	switch {
	case !o.ActivatedAt.IsZero():
		return OrderActive
	case o.CommittedBy != "":
		return OrderCommitted
	default:
		return OrderPending
	}
}

// Active reports whether the order has been activated. Active orders
// always carry a non-zero merkle root.
func (o Order) Active() bool {
	return o.Phase() == OrderActive
}

// Challenge is a time-bounded demand for proof that a specific committed
// piece is still stored. It never outlives one adjudication round.
type Challenge struct {
	ID      ChallengeID `json:"id"`
	OrderID OrderID     `json:"order_id"`

	// PieceIndex is the claimed piece position. It is advisory metadata:
	// the inclusion proof binds PieceHash to the order's root but carries
	// no index.
	PieceIndex uint64 `json:"piece_index"`
	PieceHash  Hash   `json:"piece_hash"`

	StartedAt time.Time `json:"started_at"`
}

// ChallengeOutcome is the adjudication result of a challenge round.
type ChallengeOutcome int

const (
	// ChallengeProved indicates a valid response; the order continues unchanged.
	ChallengeProved ChallengeOutcome = iota
	// ChallengeSlashed indicates a failed or absent response; the order was
	// terminated by the slashing settlement.
	ChallengeSlashed
)

// String returns a string-encoded outcome.
func (co ChallengeOutcome) String() string {
	switch co {
	case ChallengeProved:
		return "proved"
	case ChallengeSlashed:
		return "slashed"
	default:
		return invalidPhase
	}
}

// WithdrawResult reports the effect of a metered withdrawal.
type WithdrawResult struct {
	// Amount paid to the provider.
	Amount uint64 `json:"amount"`
	// Periods is how many whole service periods were settled.
	Periods uint64 `json:"periods"`
	// Finished reports whether the withdrawal exhausted the consumer
	// deposit, destroying the order.
	Finished bool `json:"finished"`
}
