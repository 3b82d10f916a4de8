package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// Outbound event types.
const (
	ExchangeRequested = "exchange.requested"
	ExchangeAccepted  = "exchange.accepted"
	ExchangeRejected  = "exchange.rejected"
	ExchangeCompleted = "exchange.completed"
	ExchangeCancelled = "exchange.cancelled"
	LateReturnWarned  = "lateReturn.warned"
	CoinsAwarded      = "coins.awarded"
	TrustScoreChanged = "trustScore.changed"
)

// Event is delivered at least once; consumers dedup on ID.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Type       string         `json:"type"`
	UserID     uuid.UUID      `json:"user_id"`
	ExchangeID *uuid.UUID     `json:"exchange_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func New(typ string, userID uuid.UUID, data map[string]any) Event {
	return Event{ID: uuid.New(), Type: typ, UserID: userID, Data: data, OccurredAt: time.Now().UTC()}
}

// ForExchange is New with the exchange id attached.
func ForExchange(typ string, userID, exchangeID uuid.UUID, data map[string]any) Event {
	ev := New(typ, userID, data)
	ev.ExchangeID = &exchangeID
	return ev
}

// NotificationArgs carries one event to the notification worker.
type NotificationArgs struct {
	Event Event `json:"event"`
}

func (NotificationArgs) Kind() string { return "notification" }

func (NotificationArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 10}
}

// Publisher records events inside the caller's transaction so they are only
// delivered if that transaction commits.
type Publisher interface {
	PublishTx(ctx context.Context, tx pgx.Tx, evs ...Event) error
}

// InsertTxFunc enqueues a job within the given transaction. Provided by main using river.Client.InsertTx.
type InsertTxFunc func(ctx context.Context, tx pgx.Tx, args river.JobArgs) error

type RiverPublisher struct {
	insert InsertTxFunc
}

func NewRiverPublisher(insert InsertTxFunc) *RiverPublisher {
	return &RiverPublisher{insert: insert}
}

var _ Publisher = (*RiverPublisher)(nil)

func (p *RiverPublisher) PublishTx(ctx context.Context, tx pgx.Tx, evs ...Event) error {
	for _, ev := range evs {
		if err := p.insert(ctx, tx, NotificationArgs{Event: ev}); err != nil {
			return fmt.Errorf("enqueue %s event: %w", ev.Type, err)
		}
	}
	return nil
}
