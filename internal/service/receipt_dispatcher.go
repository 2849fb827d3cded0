package service

import (
	"context"
	"time"

	"backoffice/internal/apperror"
	"backoffice/internal/metrics"
	"backoffice/internal/model"
	"backoffice/internal/repository"
)

// Notifier is the outbound sink for receipt-issued events. Formatting and delivering
// the receipt itself is the sink's job.
type Notifier interface {
	Publish(ctx context.Context, receipt model.ReceiptEvent) error
}

type DispatchSummary struct {
	Attempted int      `json:"attempted"`
	Delivered int      `json:"delivered"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// ReceiptDispatcher delivers outbox rows written by approvals to the Notifier.
// Each event is delivered at most once per successful claim.
type ReceiptDispatcher interface {
	// Dispatch delivers one event. It reports false without error when the event
	// was already dispatched by someone else.
	Dispatch(ctx context.Context, event model.ReceiptEvent) (bool, error)
	// DispatchPending retries up to limit undispatched events, oldest first.
	DispatchPending(ctx context.Context, limit int) (DispatchSummary, error)
}

type receiptDispatcher struct {
	receiptRepo repository.ReceiptRepository
	notifier    Notifier
	txManager   repository.TransactionManager
	metrics     *metrics.BillingMetrics
	now         func() time.Time
}

func NewReceiptDispatcher(
	receiptRepo repository.ReceiptRepository,
	notifier Notifier,
	txManager repository.TransactionManager,
	m *metrics.BillingMetrics,
) ReceiptDispatcher {
	return &receiptDispatcher{
		receiptRepo: receiptRepo,
		notifier:    notifier,
		txManager:   txManager,
		metrics:     m,
		now:         utcNow,
	}
}

func (d *receiptDispatcher) Dispatch(ctx context.Context, event model.ReceiptEvent) (bool, error) {
	const op = "dispatch receipt"

	var claimed bool
	err := d.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		claimed, err = d.receiptRepo.Claim(txCtx, event.ID, d.now())
		if err != nil {
			return apperror.Dependency(op, err)
		}
		if !claimed {
			return nil
		}
		// The claim commits only if the sink accepted the event.
		if err := d.notifier.Publish(txCtx, event); err != nil {
			return apperror.Dependency(op, err)
		}
		return nil
	})
	if err != nil {
		d.metrics.ObserveDispatch(metrics.DispatchFailed)
		if recErr := d.receiptRepo.RecordFailure(ctx, event.ID, err.Error()); recErr != nil {
			return false, apperror.Dependency(op, recErr)
		}
		return false, err
	}
	if !claimed {
		d.metrics.ObserveDispatch(metrics.DispatchSkipped)
		return false, nil
	}
	d.metrics.ObserveDispatch(metrics.DispatchDelivered)
	return true, nil
}

func (d *receiptDispatcher) DispatchPending(ctx context.Context, limit int) (DispatchSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	events, err := d.receiptRepo.ListUndispatched(ctx, limit)
	if err != nil {
		return DispatchSummary{}, apperror.Dependency("list undispatched receipts", err)
	}

	var summary DispatchSummary
	for _, event := range events {
		summary.Attempted++
		delivered, err := d.Dispatch(ctx, event)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, event.ID.String()+": "+err.Error())
			continue
		}
		if delivered {
			summary.Delivered++
		}
	}
	return summary, nil
}
