package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/lendly/backend/internal/events"
)

type CompletionRewardWorker struct {
	river.WorkerDefaults[CompletionRewardArgs]
	proc *RewardProcessor
}

func (w *CompletionRewardWorker) Work(ctx context.Context, job *river.Job[CompletionRewardArgs]) error {
	if err := w.proc.Completion(ctx, job.Args); err != nil {
		return fmt.Errorf("completion rewards for exchange %s: %w", job.Args.ExchangeID, err)
	}
	return nil
}

type LatePenaltyWorker struct {
	river.WorkerDefaults[LatePenaltyArgs]
	proc *RewardProcessor
}

func (w *LatePenaltyWorker) Work(ctx context.Context, job *river.Job[LatePenaltyArgs]) error {
	if err := w.proc.LatePenalty(ctx, job.Args); err != nil {
		return fmt.Errorf("late penalty for exchange %s: %w", job.Args.ExchangeID, err)
	}
	return nil
}

type CancellationPenaltyWorker struct {
	river.WorkerDefaults[CancellationPenaltyArgs]
	proc *RewardProcessor
}

func (w *CancellationPenaltyWorker) Work(ctx context.Context, job *river.Job[CancellationPenaltyArgs]) error {
	if err := w.proc.CancellationPenalty(ctx, job.Args); err != nil {
		return fmt.Errorf("cancellation penalty for exchange %s: %w", job.Args.ExchangeID, err)
	}
	return nil
}

// Dispatcher delivers one event to the notification service.
type Dispatcher interface {
	Deliver(ctx context.Context, ev events.Event) error
}

type NotificationWorker struct {
	river.WorkerDefaults[events.NotificationArgs]
	dispatcher Dispatcher
}

func (w *NotificationWorker) Work(ctx context.Context, job *river.Job[events.NotificationArgs]) error {
	ev := job.Args.Event
	if err := w.dispatcher.Deliver(ctx, ev); err != nil {
		return fmt.Errorf("deliver %s event %s: %w", ev.Type, ev.ID, err)
	}
	return nil
}

func (w *NotificationWorker) Timeout(*river.Job[events.NotificationArgs]) time.Duration {
	return 30 * time.Second
}

// Register adds every outbox worker to workers.
func Register(workers *river.Workers, proc *RewardProcessor, dispatcher Dispatcher) {
	river.AddWorker(workers, &CompletionRewardWorker{proc: proc})
	river.AddWorker(workers, &LatePenaltyWorker{proc: proc})
	river.AddWorker(workers, &CancellationPenaltyWorker{proc: proc})
	river.AddWorker(workers, &NotificationWorker{dispatcher: dispatcher})
}
