package service

import (
	"context"
	"time"

	"backoffice/internal/apperror"
	"backoffice/internal/billing"
	"backoffice/internal/metrics"
	"backoffice/internal/model"
	"backoffice/internal/repository"
)

const maxTrackingCodeAttempts = 5

// TrackingAllocator resolves the engagement code of a client.
type TrackingAllocator interface {
	// Allocate returns the code of the client's most recent invoice that has one.
	// When the client has none, a new code is synthesized and registered; created
	// reports that case. Must run inside the caller's transaction.
	Allocate(ctx context.Context, clientKey string, now time.Time) (code string, created bool, err error)
}

type trackingAllocator struct {
	invoiceRepo repository.InvoiceRepository
	codeRepo    repository.TrackingCodeRepository
	newCode     billing.TrackingCodeFunc
	metrics     *metrics.BillingMetrics
}

func NewTrackingAllocator(
	invoiceRepo repository.InvoiceRepository,
	codeRepo repository.TrackingCodeRepository,
	newCode billing.TrackingCodeFunc,
	m *metrics.BillingMetrics,
) TrackingAllocator {
	if newCode == nil {
		newCode = billing.NewTrackingCode
	}
	return &trackingAllocator{
		invoiceRepo: invoiceRepo,
		codeRepo:    codeRepo,
		newCode:     newCode,
		metrics:     m,
	}
}

func (a *trackingAllocator) Allocate(ctx context.Context, clientKey string, now time.Time) (string, bool, error) {
	const op = "allocate tracking code"

	existing, err := a.invoiceRepo.LatestTrackingCode(ctx, clientKey)
	if err != nil {
		return "", false, apperror.Dependency(op, err)
	}
	if existing != "" {
		return existing, false, nil
	}

	for attempt := 0; attempt < maxTrackingCodeAttempts; attempt++ {
		code, err := a.newCode(now)
		if err != nil {
			return "", false, apperror.Dependency(op, err)
		}

		err = a.codeRepo.Register(ctx, &model.TrackingCode{Code: code, ClientKey: clientKey, CreatedAt: now})
		if err == nil {
			return code, true, nil
		}
		if !apperror.IsDuplicateKey(err) {
			return "", false, apperror.Dependency(op, err)
		}
		a.metrics.ObserveTrackingCollision()
	}

	return "", false, apperror.Conflict(op, "no unique tracking code after repeated collisions")
}
