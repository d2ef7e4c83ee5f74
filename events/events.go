package events

import (
	"context"
	"time"

	logger "github.com/ipfs/go-log/v2"
	"github.com/storemarket/market-core/market"
)

// Type tags a deal-lifecycle event.
type Type string

// Lifecycle event types. Terminal order states only survive as events;
// the core keeps no history of destroyed records.
const (
	BillCreated      Type = "bill-created"
	BillCancelled    Type = "bill-cancelled"
	OrderCreated     Type = "order-created"
	OrderActivated   Type = "order-activated"
	OrderCancelled   Type = "order-cancelled"
	OrderWithdrawn   Type = "order-withdrawn"
	OrderFinished    Type = "order-finished"
	OrderSlashed     Type = "order-slashed"
	ChallengeStarted Type = "challenge-started"
	ChallengeProved  Type = "challenge-proved"
	ChallengeExpired Type = "challenge-expired"
)

// Event describes one state transition of the deal engine.
type Event struct {
	Type        Type               `json:"type"`
	BillID      market.BillID      `json:"bill_id,omitempty"`
	OrderID     market.OrderID     `json:"order_id,omitempty"`
	ChallengeID market.ChallengeID `json:"challenge_id,omitempty"`

	// Amount is the escrow value moved by the transition, if any.
	Amount uint64 `json:"amount,omitempty"`

	At time.Time `json:"at"`
}

// Publisher receives engine events. History and downstream delivery are
// an external collaborator's concern; implementations must not block the
// engine on delivery.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

var log = logger.Logger("events")

// LogPublisher writes events to the log. It is the default publisher for
// single-node deployments.
type LogPublisher struct{}

var _ Publisher = (*LogPublisher)(nil)

// NewLogPublisher returns a log-backed Publisher.
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

// Publish logs the event.
func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	log.Infow("event", "type", e.Type, "bill", e.BillID, "order", e.OrderID, "challenge", e.ChallengeID, "amount", e.Amount)
	return nil
}
