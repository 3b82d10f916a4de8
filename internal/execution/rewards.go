package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lendly/backend/internal/ledger"
	"github.com/lendly/backend/internal/trust"
)

// Rewarder is the part of the wallet ledger the reward worker uses.
type Rewarder interface {
	Award(ctx context.Context, req ledger.Request) (*ledger.Result, error)
}

// Scorer is the part of the trust engine the reward worker uses.
type Scorer interface {
	Adjust(ctx context.Context, uid uuid.UUID, adj trust.Adjustment) (*trust.Result, error)
}

// RewardProcessor applies post-commit coin and trust effects. Every step runs
// in its own transaction with an idempotency key, so a retried job only
// applies the steps that did not commit the first time.
type RewardProcessor struct {
	wallet Rewarder
	trust  Scorer
	log    *slog.Logger
}

func NewRewardProcessor(wallet Rewarder, scorer Scorer, log *slog.Logger) *RewardProcessor {
	if log == nil {
		log = slog.Default()
	}
	return &RewardProcessor{wallet: wallet, trust: scorer, log: log}
}

type step struct {
	name string
	run  func(ctx context.Context) error
}

func (p *RewardProcessor) award(uid, exchangeID uuid.UUID, amount int64, reason, kind string) step {
	return step{name: "coins:" + kind, run: func(ctx context.Context) error {
		if amount <= 0 {
			return nil
		}
		_, err := p.wallet.Award(ctx, ledger.Request{
			UID:            uid,
			Amount:         amount,
			Reason:         reason,
			Metadata:       map[string]any{"transactionId": exchangeID.String(), "kind": kind},
			IdempotencyKey: fmt.Sprintf("exchange:%s:%s:coins:%s", exchangeID, uid, kind),
		})
		return err
	}}
}

func (p *RewardProcessor) adjust(uid uuid.UUID, adj trust.Adjustment) step {
	return step{name: "trust:" + adj.Type, run: func(ctx context.Context) error {
		_, err := p.trust.Adjust(ctx, uid, adj)
		return err
	}}
}

// run executes every step, skipping ones already applied, and joins the failures.
func (p *RewardProcessor) run(ctx context.Context, exchangeID uuid.UUID, steps []step) error {
	var errs []error
	for _, s := range steps {
		err := s.run(ctx)
		if err == nil || errors.Is(err, ledger.ErrAlreadyApplied) || errors.Is(err, trust.ErrAlreadyApplied) {
			continue
		}
		p.log.Error("post-commit step failed", "exchange_id", exchangeID, "step", s.name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
	}
	return errors.Join(errs...)
}

// Completion credits both parties for a completed exchange.
func (p *RewardProcessor) Completion(ctx context.Context, a CompletionRewardArgs) error {
	timeliness := trust.Timeliness(a.Timeliness)

	reqCoins, reqReason := ledger.CompletionReward(a.Type, false)
	ownerCoins, ownerReason := ledger.CompletionReward(a.Type, true)

	steps := []step{
		p.award(a.RequesterID, a.ExchangeID, reqCoins, reqReason, "completion"),
		p.award(a.OwnerID, a.ExchangeID, ownerCoins, ownerReason, "completion"),
		p.adjust(a.RequesterID, trust.Completion(a.ExchangeID, a.RequesterID, a.Type, false, timeliness)),
		p.adjust(a.OwnerID, trust.Completion(a.ExchangeID, a.OwnerID, a.Type, true, timeliness)),
	}
	if a.FirstTransaction {
		steps = append(steps, p.award(a.RequesterID, a.ExchangeID, ledger.RewardFirstTransaction, "First transaction bonus", "first_transaction"))
	}
	if timeliness == trust.TimelinessEarly {
		steps = append(steps, p.award(a.RequesterID, a.ExchangeID, ledger.RewardEarlyReturn, "Early return bonus", "early_return"))
	}
	if a.Rating != nil && a.RatedBy != nil {
		rated := a.RatedUser()
		steps = append(steps, p.adjust(rated, trust.Rating(a.ExchangeID, rated, *a.RatedBy, *a.Rating)))
		if *a.Rating == 5 {
			steps = append(steps, p.award(rated, a.ExchangeID, ledger.RewardFiveStarRating, "Received 5-star rating", "five_star"))
		}
	}
	return p.run(ctx, a.ExchangeID, steps)
}

func (p *RewardProcessor) LatePenalty(ctx context.Context, a LatePenaltyArgs) error {
	return p.run(ctx, a.ExchangeID, []step{
		p.adjust(a.RequesterID, trust.LateReturn(a.ExchangeID, a.RequesterID, a.DaysLate)),
	})
}

func (p *RewardProcessor) CancellationPenalty(ctx context.Context, a CancellationPenaltyArgs) error {
	return p.run(ctx, a.ExchangeID, []step{
		p.adjust(a.RequesterID, trust.Cancellation(a.ExchangeID, a.RequesterID)),
	})
}
