package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"backoffice/internal/apperror"
	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApproveMarksPaidAndGeneratesSuccessor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv := env.createInvoice(t, "Acme", "10000", "2000", "2025-01-15")
	sub := env.submit(t, inv.ID, "12000")
	assert.True(t, sub.AmountMatches)
	assert.Equal(t, "12000.0000", sub.AmountDue)

	result, err := env.reconciliation.ApproveSubmission(ctx, "staff-1", sub.ID)
	require.NoError(t, err)

	assert.Equal(t, "approved", result.Submission.Status)
	assert.Equal(t, "staff-1", result.Submission.ReviewedBy)
	assert.Equal(t, "paid", result.Invoice.PaymentStatus)
	require.NotNil(t, result.Invoice.PaidAt)

	require.NotNil(t, result.Successor)
	successor := result.Successor
	assert.Empty(t, result.SuccessorSkipped)
	assert.Equal(t, "0.0000", successor.SetupFee)
	assert.Equal(t, "2000.0000", successor.MonthlyFee)
	require.NotNil(t, successor.DueDate)
	assert.Equal(t, "2025-02-15", *successor.DueDate)
	assert.Equal(t, "pending", successor.PaymentStatus)
	require.NotNil(t, successor.GeneratedFromID)
	assert.Equal(t, inv.ID, *successor.GeneratedFromID)
	require.NotNil(t, inv.TrackingCode)
	require.NotNil(t, successor.TrackingCode)
	assert.Equal(t, *inv.TrackingCode, *successor.TrackingCode)

	stored, err := env.invoices.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "paid", stored.PaymentStatus)

	assert.True(t, result.ReceiptDispatched)
	assert.NoError(t, result.ReceiptErr)
	events := env.notifier.published()
	require.Len(t, events, 1)
	assert.Equal(t, result.ReceiptEventID, events[0].ID.String())
	assert.Equal(t, "12000", events[0].Amount.String())
	assert.Equal(t, *inv.TrackingCode, events[0].TrackingCode)

	actions := env.auditActions(t)
	assert.Contains(t, actions, model.ActionApproveSubmission)
	assert.Contains(t, actions, model.ActionGenerateRecurring)
}

func TestConcurrentApprovalsCommitExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv := env.createInvoice(t, "Acme", "10000", "2000", "2025-01-15")
	sub := env.submit(t, inv.ID, "12000")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.reconciliation.ApproveSubmission(ctx, "staff-1", sub.ID)
		}()
	}
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if errors.Is(err, apperror.ErrConflict) {
			conflicted++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	var successors int64
	require.NoError(t, env.db.Model(&model.Invoice{}).Where("generated_from_id IS NOT NULL").Count(&successors).Error)
	assert.Equal(t, int64(1), successors)

	var receipts int64
	require.NoError(t, env.db.Model(&model.ReceiptEvent{}).Count(&receipts).Error)
	assert.Equal(t, int64(1), receipts)
	assert.Len(t, env.notifier.published(), 1)
}

func TestRejectLeavesInvoicePending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv := env.createInvoice(t, "Acme", "10000", "2000", "2025-01-15")
	sub := env.submit(t, inv.ID, "500")
	assert.False(t, sub.AmountMatches)

	rejected, err := env.reconciliation.RejectSubmission(ctx, "staff-2", sub.ID, RejectSubmissionRequest{Reason: "  amount does not match  "})
	require.NoError(t, err)
	assert.Equal(t, "rejected", rejected.Status)
	assert.Equal(t, "amount does not match", rejected.RejectionReason)
	require.NotNil(t, rejected.ReviewedAt)

	stored, err := env.invoices.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", stored.PaymentStatus)
	assert.Nil(t, stored.PaidAt)
	assert.Equal(t, int64(1), env.countInvoices(t))
	assert.Empty(t, env.notifier.published())

	// The invoice stays open for a corrected submission.
	env.submit(t, inv.ID, "12000")
}

func TestReviewOfResolvedSubmissionConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv := env.createInvoice(t, "Acme", "0", "2000", "2025-01-15")
	sub := env.submit(t, inv.ID, "2000")

	_, err := env.reconciliation.RejectSubmission(ctx, "staff-1", sub.ID, RejectSubmissionRequest{})
	require.NoError(t, err)

	_, err = env.reconciliation.ApproveSubmission(ctx, "staff-1", sub.ID)
	assert.ErrorIs(t, err, apperror.ErrConflict)
	_, err = env.reconciliation.RejectSubmission(ctx, "staff-1", sub.ID, RejectSubmissionRequest{})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	stored, err := env.submissions.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "rejected", stored.Status)
}

func TestApproveSecondSubmissionOfPaidInvoiceRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv := env.createInvoice(t, "Acme", "0", "2000", "2025-01-15")
	first := env.submit(t, inv.ID, "2000")
	second := env.submit(t, inv.ID, "2000")

	_, err := env.reconciliation.ApproveSubmission(ctx, "staff-1", first.ID)
	require.NoError(t, err)

	_, err = env.reconciliation.ApproveSubmission(ctx, "staff-1", second.ID)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	stored, err := env.submissions.GetSubmission(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", stored.Status)
}

func TestApproveSubmissionOfCancelledInvoiceChangesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv := env.createInvoice(t, "Acme", "0", "2000", "2025-01-15")
	sub := env.submit(t, inv.ID, "2000")
	_, err := env.invoices.EditInvoice(ctx, "staff-1", inv.ID, UpdateInvoiceRequest{PaymentStatus: strPtr("cancelled")})
	require.NoError(t, err)

	_, err = env.reconciliation.ApproveSubmission(ctx, "staff-1", sub.ID)
	assert.ErrorIs(t, err, apperror.ErrConflict)

	stored, err := env.submissions.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", stored.Status)

	invoice, err := env.invoices.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", invoice.PaymentStatus)
	assert.Equal(t, int64(1), env.countInvoices(t))

	var receipts int64
	require.NoError(t, env.db.Model(&model.ReceiptEvent{}).Count(&receipts).Error)
	assert.Zero(t, receipts)
	assert.NotContains(t, env.auditActions(t), string(model.ActionApproveSubmission))
}

func TestSuccessorCountedOnlyWhenApprovalCommits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv := env.createInvoice(t, "Acme", "0", "2000", "2025-01-15")
	sub := env.submit(t, inv.ID, "2000")
	// A receipt already recorded for the submission makes the approval fail after
	// the successor was written.
	require.NoError(t, env.db.Create(&model.ReceiptEvent{
		InvoiceID:    uuid.MustParse(inv.ID),
		SubmissionID: uuid.MustParse(sub.ID),
		ClientName:   "Acme",
		ClientEmail:  "billing@example.test",
		Amount:       decimal.NewFromInt(2000),
		IssuedAt:     fixedNow,
	}).Error)

	_, err := env.reconciliation.ApproveSubmission(ctx, "staff-1", sub.ID)
	require.ErrorIs(t, err, apperror.ErrConflict)
	assert.Equal(t, int64(1), env.countInvoices(t))
	assert.Zero(t, env.successorCount(t, "generated"))

	other := env.createInvoice(t, "Beta", "0", "500", "2025-01-20")
	_, err = env.reconciliation.ApproveSubmission(ctx, "staff-1", env.submit(t, other.ID, "500").ID)
	require.NoError(t, err)
	assert.Equal(t, float64(1), env.successorCount(t, "generated"))
}

func TestApproveSkipsSuccessorWhenNextPeriodExists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv := env.createInvoice(t, "Acme", "0", "2000", "2025-01-15")
	env.createInvoice(t, "acme", "0", "2000", "2025-02-15")
	sub := env.submit(t, inv.ID, "2000")

	result, err := env.reconciliation.ApproveSubmission(ctx, "staff-1", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "paid", result.Invoice.PaymentStatus)
	assert.Nil(t, result.Successor)
	assert.NotEmpty(t, result.SuccessorSkipped)
	assert.Equal(t, int64(2), env.countInvoices(t))
}

func TestApproveUnknownSubmission(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.reconciliation.ApproveSubmission(context.Background(), "staff-1", "7d6f9f43-3c55-4c5c-9df4-5b3c1f8b6a10")
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	_, err = env.reconciliation.ApproveSubmission(context.Background(), "staff-1", "not-a-uuid")
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, "id", apperror.FieldOf(err))
}

func TestApprovalSurvivesReceiptDeliveryFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.notifier.fail(errSinkDown)

	inv := env.createInvoice(t, "Acme", "0", "2000", "2025-01-15")
	sub := env.submit(t, inv.ID, "2000")

	result, err := env.reconciliation.ApproveSubmission(ctx, "staff-1", sub.ID)
	require.NoError(t, err)
	assert.False(t, result.ReceiptDispatched)
	assert.Error(t, result.ReceiptErr)

	stored, err := env.invoices.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "paid", stored.PaymentStatus)

	event, err := env.receiptRepo.FindBySubmission(ctx, uuid.MustParse(result.Submission.ID))
	require.NoError(t, err)
	assert.Nil(t, event.DispatchedAt)
	assert.Equal(t, 1, event.Attempts)
	assert.Contains(t, event.LastError, "notification sink unavailable")
}
