package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lendly/backend/internal/events"
	"github.com/lendly/backend/internal/execution"
	"github.com/lendly/backend/internal/ledger"
	"github.com/lendly/backend/internal/models"
	"github.com/lendly/backend/internal/store"
)

var (
	ErrItemNotFound      = errors.New("item not found")
	ErrItemUnavailable   = errors.New("item is not available")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrSelfRequest       = errors.New("cannot request your own item")
	ErrInvalidTransition = errors.New("invalid exchange transition")
	ErrExchangeNotFound  = errors.New("exchange not found")
	ErrForbidden         = errors.New("caller may not perform this action")
	ErrInvalidInput      = errors.New("invalid input")
)

// ReasonItemTaken is recorded on requests rejected because a sibling was accepted.
const ReasonItemTaken = "Item no longer available"

type ItemRepo interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Item, error)
	// SetAvailability marks the item available when borrower is nil, otherwise lent to borrower.
	SetAvailability(ctx context.Context, tx pgx.Tx, id uuid.UUID, borrower *uuid.UUID, at time.Time) error
}

type ExchangeRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.Exchange) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Exchange, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, e *models.Exchange) error
	ListRequestedByItem(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) ([]*models.Exchange, error)
	CountCompletedByRequester(ctx context.Context, tx pgx.Tx, uid uuid.UUID) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Exchange, error)
	ListByUser(ctx context.Context, uid uuid.UUID, limit int) ([]*models.Exchange, error)
}

type UserStatsRepo interface {
	IncrementCounts(ctx context.Context, tx pgx.Tx, borrowerID, lenderID uuid.UUID) error
	AddRating(ctx context.Context, tx pgx.Tx, uid uuid.UUID, stars int) error
}

// Wallet is the part of the wallet ledger used inside exchange transactions.
type Wallet interface {
	DeductTx(ctx context.Context, tx pgx.Tx, req ledger.Request) (*ledger.Result, error)
	CreditTx(ctx context.Context, tx pgx.Tx, req ledger.Request) (*ledger.Result, error)
}

type Service interface {
	CreateRequest(ctx context.Context, in CreateRequestInput) (*models.Exchange, error)
	Respond(ctx context.Context, in RespondInput) (*models.Exchange, error)
	Complete(ctx context.Context, in CompleteInput) (*models.Exchange, error)
	Cancel(ctx context.Context, exchangeID, callerID uuid.UUID) (*models.Exchange, error)
	MarkLate(ctx context.Context, in MarkLateInput) (*models.Exchange, error)
	Get(ctx context.Context, exchangeID, callerID uuid.UUID) (*models.Exchange, error)
	ListForUser(ctx context.Context, uid uuid.UUID, limit int) ([]*models.Exchange, error)
}

type Deps struct {
	Tx        store.TxRunner
	Items     ItemRepo
	Exchanges ExchangeRepo
	Users     UserStatsRepo
	Wallet    Wallet
	Publisher events.Publisher
	// Insert enqueues outbox jobs inside the exchange transaction. Typically a closure over river.Client.InsertTx.
	Insert events.InsertTxFunc
	Logger *slog.Logger
}

type service struct {
	Deps
	validate *validator.Validate
	now      func() time.Time
}

func NewService(d Deps) Service {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &service{Deps: d, validate: newValidator(), now: time.Now}
}

var _ Service = (*service)(nil)

// CreateRequest opens a new exchange for an available item.
func (s *service) CreateRequest(ctx context.Context, in CreateRequestInput) (*models.Exchange, error) {
	if err := validateInput(s.validate, in); err != nil {
		return nil, err
	}
	if in.RequesterID == in.ItemOwnerID {
		return nil, ErrSelfRequest
	}
	var out *models.Exchange
	err := s.Tx.InTx(ctx, func(tx pgx.Tx) error {
		item, err := s.lockItem(ctx, tx, in.ItemID)
		if err != nil {
			return err
		}
		if item.OwnerID == in.RequesterID {
			return ErrSelfRequest
		}
		if item.OwnerID != in.ItemOwnerID {
			return fmt.Errorf("%w: item is not owned by %s", ErrItemNotFound, in.ItemOwnerID)
		}
		if !item.Available {
			return ErrItemUnavailable
		}
		pending, err := s.Exchanges.ListRequestedByItem(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		for _, p := range pending {
			if p.RequesterID == in.RequesterID {
				return fmt.Errorf("%w: you already have a pending request for this item", ErrDuplicateRequest)
			}
		}
		if len(pending) > 0 {
			return fmt.Errorf("%w: item already has a pending request", ErrDuplicateRequest)
		}

		price := item.Price
		if in.ProposedPrice != nil {
			price = *in.ProposedPrice
		}
		rec := NewRequested(in, price, s.now()).Record()
		if err := s.Exchanges.CreateTx(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return s.publish(ctx, tx, events.ForExchange(events.ExchangeRequested, rec.ItemOwnerID, rec.ID, map[string]any{
			"requesterId": rec.RequesterID.String(),
			"itemId":      rec.ItemID.String(),
			"type":        rec.Type,
		}))
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("exchange requested", "exchange_id", out.ID, "item_id", out.ItemID, "requester_id", out.RequesterID)
	return out, nil
}

// Respond accepts or rejects a pending request. Accepting lends the item,
// debits the proposed price and rejects every other pending request on the
// item, all in one transaction.
func (s *service) Respond(ctx context.Context, in RespondInput) (*models.Exchange, error) {
	if err := validateInput(s.validate, in); err != nil {
		return nil, err
	}
	var out *models.Exchange
	err := s.Tx.InTx(ctx, func(tx pgx.Tx) error {
		rec, err := s.lockExchange(ctx, tx, in.ExchangeID)
		if err != nil {
			return err
		}
		if rec.ItemOwnerID != in.OwnerID {
			return ErrForbidden
		}
		req, err := AsRequested(rec)
		if err != nil {
			return err
		}
		now := s.now()

		if in.Action == ActionReject {
			rej := req.Reject(now, in.Message)
			out = rej.Record()
			if err := s.Exchanges.UpdateTx(ctx, tx, out); err != nil {
				return err
			}
			return s.publish(ctx, tx, events.ForExchange(events.ExchangeRejected, rec.RequesterID, rec.ID, map[string]any{
				"reason": out.ResponseMessage,
			}))
		}

		item, err := s.lockItem(ctx, tx, rec.ItemID)
		if err != nil {
			return err
		}
		if !item.Available {
			return ErrItemUnavailable
		}
		var charged int64
		if rec.ProposedPrice > 0 {
			if _, err := s.Wallet.DeductTx(ctx, tx, ledger.Request{
				UID:      rec.RequesterID,
				Amount:   rec.ProposedPrice,
				Reason:   "Exchange payment",
				Metadata: map[string]any{"transactionId": rec.ID.String(), "itemId": rec.ItemID.String()},
			}); err != nil {
				return err
			}
			charged = rec.ProposedPrice
		}
		out = req.Accept(now, in.Message, charged).Record()
		if err := s.Exchanges.UpdateTx(ctx, tx, out); err != nil {
			return err
		}
		borrower := rec.RequesterID
		if err := s.Items.SetAvailability(ctx, tx, item.ID, &borrower, now); err != nil {
			return err
		}
		evs := []events.Event{events.ForExchange(events.ExchangeAccepted, rec.RequesterID, rec.ID, map[string]any{
			"itemId":  rec.ItemID.String(),
			"charged": charged,
		})}

		siblings, err := s.Exchanges.ListRequestedByItem(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		for _, sib := range siblings {
			if sib.ID == rec.ID {
				continue
			}
			sreq, err := AsRequested(sib)
			if err != nil {
				return err
			}
			if err := s.Exchanges.UpdateTx(ctx, tx, sreq.Reject(now, ReasonItemTaken).Record()); err != nil {
				return err
			}
			evs = append(evs, events.ForExchange(events.ExchangeRejected, sib.RequesterID, sib.ID, map[string]any{
				"reason": ReasonItemTaken,
			}))
		}
		return s.publish(ctx, tx, evs...)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("exchange responded", "exchange_id", out.ID, "status", out.Status)
	return out, nil
}

// Complete closes an accepted exchange, returns the item, pays the owner and
// queues the coin and trust rewards.
func (s *service) Complete(ctx context.Context, in CompleteInput) (*models.Exchange, error) {
	if err := validateInput(s.validate, in); err != nil {
		return nil, err
	}
	var out *models.Exchange
	err := s.Tx.InTx(ctx, func(tx pgx.Tx) error {
		rec, err := s.lockExchange(ctx, tx, in.ExchangeID)
		if err != nil {
			return err
		}
		if !rec.IsParty(in.CallerID) {
			return ErrForbidden
		}
		acc, err := AsAccepted(rec)
		if err != nil {
			return err
		}
		now := s.now()
		timeliness := acc.Timeliness(now)
		prior, err := s.Exchanges.CountCompletedByRequester(ctx, tx, rec.RequesterID)
		if err != nil {
			return err
		}

		out = acc.Complete(now, in.CallerID, in.Rating, in.Review).Record()
		if err := s.Exchanges.UpdateTx(ctx, tx, out); err != nil {
			return err
		}
		if err := s.Items.SetAvailability(ctx, tx, rec.ItemID, nil, now); err != nil {
			return err
		}
		if err := s.Users.IncrementCounts(ctx, tx, rec.RequesterID, rec.ItemOwnerID); err != nil {
			return err
		}
		var ratedBy *uuid.UUID
		if in.Rating != nil {
			caller := in.CallerID
			ratedBy = &caller
			if err := s.Users.AddRating(ctx, tx, counterparty(rec, caller), *in.Rating); err != nil {
				return err
			}
		}
		if err := s.settle(ctx, tx, rec); err != nil {
			return err
		}
		if err := s.Insert(ctx, tx, execution.CompletionRewardArgs{
			ExchangeID:       rec.ID,
			Type:             rec.Type,
			RequesterID:      rec.RequesterID,
			OwnerID:          rec.ItemOwnerID,
			RatedBy:          ratedBy,
			Rating:           in.Rating,
			FirstTransaction: prior == 0,
			Timeliness:       string(timeliness),
		}); err != nil {
			return fmt.Errorf("enqueue completion rewards: %w", err)
		}
		data := map[string]any{"itemId": rec.ItemID.String(), "completedBy": in.CallerID.String()}
		return s.publish(ctx, tx,
			events.ForExchange(events.ExchangeCompleted, rec.RequesterID, rec.ID, data),
			events.ForExchange(events.ExchangeCompleted, rec.ItemOwnerID, rec.ID, data),
		)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("exchange completed", "exchange_id", out.ID, "completed_by", in.CallerID)
	return out, nil
}

// settle releases the coins debited at acceptance to the owner, less the platform fee.
func (s *service) settle(ctx context.Context, tx pgx.Tx, rec *models.Exchange) error {
	if rec.ChargedAmount <= 0 {
		return nil
	}
	fee := ledger.TransactionFee(rec.ChargedAmount)
	meta := map[string]any{"transactionId": rec.ID.String(), "itemId": rec.ItemID.String()}
	if payout := rec.ChargedAmount - fee; payout > 0 {
		if _, err := s.Wallet.CreditTx(ctx, tx, ledger.Request{
			UID:            rec.ItemOwnerID,
			Amount:         payout,
			Reason:         "Exchange payout",
			Metadata:       meta,
			IdempotencyKey: fmt.Sprintf("exchange:%s:payout", rec.ID),
		}); err != nil {
			return fmt.Errorf("pay owner: %w", err)
		}
	}
	if fee > 0 {
		if _, err := s.Wallet.CreditTx(ctx, tx, ledger.Request{
			UID:            models.SystemPlatformUserID,
			Amount:         fee,
			Reason:         "Transaction fee",
			Metadata:       meta,
			IdempotencyKey: fmt.Sprintf("exchange:%s:fee", rec.ID),
		}); err != nil {
			return fmt.Errorf("collect fee: %w", err)
		}
	}
	return nil
}

// Cancel withdraws a request. Cancelling after acceptance refunds the
// requester in full and returns the item.
func (s *service) Cancel(ctx context.Context, exchangeID, callerID uuid.UUID) (*models.Exchange, error) {
	var out *models.Exchange
	err := s.Tx.InTx(ctx, func(tx pgx.Tx) error {
		rec, err := s.lockExchange(ctx, tx, exchangeID)
		if err != nil {
			return err
		}
		if rec.RequesterID != callerID {
			return ErrForbidden
		}
		now := s.now()
		switch rec.Status {
		case models.ExchangeStatusRequested:
			req, err := AsRequested(rec)
			if err != nil {
				return err
			}
			out = req.Cancel(now).Record()
		case models.ExchangeStatusAccepted:
			acc, err := AsAccepted(rec)
			if err != nil {
				return err
			}
			out = acc.Cancel(now).Record()
			if err := s.refund(ctx, tx, rec); err != nil {
				return err
			}
			if err := s.Items.SetAvailability(ctx, tx, rec.ItemID, nil, now); err != nil {
				return err
			}
			if err := s.Insert(ctx, tx, execution.CancellationPenaltyArgs{ExchangeID: rec.ID, RequesterID: rec.RequesterID}); err != nil {
				return fmt.Errorf("enqueue cancellation penalty: %w", err)
			}
		default:
			return fmt.Errorf("%w: cannot cancel a %s exchange", ErrInvalidTransition, rec.Status)
		}
		if err := s.Exchanges.UpdateTx(ctx, tx, out); err != nil {
			return err
		}
		return s.publish(ctx, tx, events.ForExchange(events.ExchangeCancelled, rec.ItemOwnerID, rec.ID, map[string]any{
			"previousStatus": rec.Status,
			"refunded":       rec.ChargedAmount,
		}))
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("exchange cancelled", "exchange_id", out.ID)
	return out, nil
}

func (s *service) refund(ctx context.Context, tx pgx.Tx, rec *models.Exchange) error {
	if rec.ChargedAmount <= 0 {
		return nil
	}
	_, err := s.Wallet.CreditTx(ctx, tx, ledger.Request{
		UID:            rec.RequesterID,
		Amount:         rec.ChargedAmount,
		Reason:         "Refund for cancelled exchange",
		Metadata:       map[string]any{"transactionId": rec.ID.String(), "itemId": rec.ItemID.String()},
		IdempotencyKey: fmt.Sprintf("exchange:%s:refund", rec.ID),
	})
	if err != nil {
		return fmt.Errorf("refund requester: %w", err)
	}
	return nil
}

// MarkLate flags an overdue return and queues the requester's trust penalty.
func (s *service) MarkLate(ctx context.Context, in MarkLateInput) (*models.Exchange, error) {
	if err := validateInput(s.validate, in); err != nil {
		return nil, err
	}
	var out *models.Exchange
	err := s.Tx.InTx(ctx, func(tx pgx.Tx) error {
		rec, err := s.lockExchange(ctx, tx, in.ExchangeID)
		if err != nil {
			return err
		}
		if rec.ItemOwnerID != in.OwnerID {
			return ErrForbidden
		}
		acc, err := AsAccepted(rec)
		if err != nil {
			return err
		}
		out = acc.MarkLate(s.now(), in.DaysLate).Record()
		if err := s.Exchanges.UpdateTx(ctx, tx, out); err != nil {
			return err
		}
		if err := s.Insert(ctx, tx, execution.LatePenaltyArgs{
			ExchangeID:  rec.ID,
			RequesterID: rec.RequesterID,
			DaysLate:    in.DaysLate,
		}); err != nil {
			return fmt.Errorf("enqueue late penalty: %w", err)
		}
		return s.publish(ctx, tx, events.ForExchange(events.LateReturnWarned, rec.RequesterID, rec.ID, map[string]any{
			"daysLate": in.DaysLate,
			"itemId":   rec.ItemID.String(),
		}))
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("exchange marked late", "exchange_id", out.ID, "days_late", in.DaysLate)
	return out, nil
}

// Get returns an exchange visible to one of its parties.
func (s *service) Get(ctx context.Context, exchangeID, callerID uuid.UUID) (*models.Exchange, error) {
	rec, err := s.Exchanges.GetByID(ctx, exchangeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExchangeNotFound
		}
		return nil, err
	}
	if !rec.IsParty(callerID) {
		return nil, ErrForbidden
	}
	return rec, nil
}

func (s *service) ListForUser(ctx context.Context, uid uuid.UUID, limit int) ([]*models.Exchange, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.Exchanges.ListByUser(ctx, uid, limit)
}

func (s *service) lockExchange(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Exchange, error) {
	rec, err := s.Exchanges.GetForUpdate(ctx, tx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExchangeNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *service) lockItem(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Item, error) {
	item, err := s.Items.GetForUpdate(ctx, tx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func (s *service) publish(ctx context.Context, tx pgx.Tx, evs ...events.Event) error {
	if s.Publisher == nil {
		return nil
	}
	return s.Publisher.PublishTx(ctx, tx, evs...)
}

func counterparty(e *models.Exchange, uid uuid.UUID) uuid.UUID {
	if uid == e.RequesterID {
		return e.ItemOwnerID
	}
	return e.RequesterID
}
