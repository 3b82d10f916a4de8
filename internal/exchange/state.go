package exchange

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lendly/backend/internal/models"
	"github.com/lendly/backend/internal/trust"
)

// Each state an exchange can be in has its own type. Transitions exist only
// as methods on the state that allows them, so an illegal transition does not
// compile. A stored row is narrowed with AsRequested or AsAccepted.

type Requested struct{ rec models.Exchange }

type Accepted struct{ rec models.Exchange }

type Rejected struct{ rec models.Exchange }

type Completed struct{ rec models.Exchange }

type Cancelled struct{ rec models.Exchange }

// NewRequested builds a fresh exchange awaiting the owner's response.
func NewRequested(in CreateRequestInput, price int64, now time.Time) Requested {
	return Requested{rec: models.Exchange{
		ID:            uuid.New(),
		RequesterID:   in.RequesterID,
		ItemOwnerID:   in.ItemOwnerID,
		ItemID:        in.ItemID,
		Type:          in.Type,
		Status:        models.ExchangeStatusRequested,
		ProposedPrice: price,
		Message:       sanitize(in.Message),
		DurationDays:  in.DurationDays,
		CreatedAt:     now,
		UpdatedAt:     now,
	}}
}

func AsRequested(e *models.Exchange) (Requested, error) {
	if e.Status != models.ExchangeStatusRequested {
		return Requested{}, fmt.Errorf("%w: exchange is %s, not %s", ErrInvalidTransition, e.Status, models.ExchangeStatusRequested)
	}
	return Requested{rec: *e}, nil
}

func AsAccepted(e *models.Exchange) (Accepted, error) {
	if e.Status != models.ExchangeStatusAccepted {
		return Accepted{}, fmt.Errorf("%w: exchange is %s, not %s", ErrInvalidTransition, e.Status, models.ExchangeStatusAccepted)
	}
	return Accepted{rec: *e}, nil
}

func (r Requested) Record() *models.Exchange { return copyRecord(r.rec) }
func (a Accepted) Record() *models.Exchange  { return copyRecord(a.rec) }
func (r Rejected) Record() *models.Exchange  { return copyRecord(r.rec) }
func (c Completed) Record() *models.Exchange { return copyRecord(c.rec) }
func (c Cancelled) Record() *models.Exchange { return copyRecord(c.rec) }

func copyRecord(e models.Exchange) *models.Exchange { return &e }

// Accept records the owner's acceptance and the coins debited from the requester.
func (r Requested) Accept(now time.Time, message string, charged int64) Accepted {
	e := r.rec
	e.Status = models.ExchangeStatusAccepted
	e.ResponseMessage = sanitize(message)
	e.ChargedAmount = charged
	e.AcceptedAt = &now
	e.UpdatedAt = now
	return Accepted{rec: e}
}

func (r Requested) Reject(now time.Time, message string) Rejected {
	e := r.rec
	e.Status = models.ExchangeStatusRejected
	e.ResponseMessage = sanitize(message)
	e.RejectedAt = &now
	e.UpdatedAt = now
	return Rejected{rec: e}
}

func (r Requested) Cancel(now time.Time) Cancelled {
	return cancel(r.rec, now)
}

func (a Accepted) Cancel(now time.Time) Cancelled {
	return cancel(a.rec, now)
}

func cancel(e models.Exchange, now time.Time) Cancelled {
	e.Status = models.ExchangeStatusCancelled
	e.CancelledAt = &now
	e.UpdatedAt = now
	return Cancelled{rec: e}
}

// MarkLate flags a late return. The exchange stays accepted.
func (a Accepted) MarkLate(now time.Time, daysLate int) Accepted {
	e := a.rec
	e.IsLate = true
	e.DaysLate = daysLate
	e.MarkedLateAt = &now
	e.UpdatedAt = now
	return Accepted{rec: e}
}

// Complete closes the exchange and stores the rating on the completing side.
func (a Accepted) Complete(now time.Time, by uuid.UUID, rating *int, review string) Completed {
	e := a.rec
	e.Status = models.ExchangeStatusCompleted
	e.CompletedAt = &now
	e.UpdatedAt = now
	review = sanitize(review)
	if by == e.RequesterID {
		e.RequesterRating, e.RequesterReview = rating, review
	} else {
		e.OwnerRating, e.OwnerReview = rating, review
	}
	return Completed{rec: e}
}

// Timeliness classifies the return against accepted_at + duration. Returns a
// day or more before the due date count as early.
func (a Accepted) Timeliness(now time.Time) trust.Timeliness {
	e := a.rec
	if e.IsLate {
		return trust.TimelinessLate
	}
	if e.DurationDays == nil || e.AcceptedAt == nil {
		return trust.TimelinessUnknown
	}
	due := e.AcceptedAt.Add(time.Duration(*e.DurationDays) * 24 * time.Hour)
	switch {
	case !now.After(due.Add(-24 * time.Hour)):
		return trust.TimelinessEarly
	case !now.After(due):
		return trust.TimelinessOnTime
	default:
		return trust.TimelinessLate
	}
}
