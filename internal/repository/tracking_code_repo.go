package repository

import (
	"context"

	"backoffice/internal/model"

	"gorm.io/gorm"
)

type TrackingCodeRepository interface {
	// Register stores a newly synthesized code. A duplicate-key error means the
	// token collided with an existing one.
	Register(ctx context.Context, code *model.TrackingCode) error
}

type trackingCodeRepository struct {
	db *gorm.DB
}

func NewTrackingCodeRepository(db *gorm.DB) TrackingCodeRepository {
	return &trackingCodeRepository{db: db}
}

func (r *trackingCodeRepository) Register(ctx context.Context, code *model.TrackingCode) error {
	// Savepoint: on PostgreSQL a failed insert would otherwise poison the caller's transaction.
	return GetDB(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		return tx.Create(code).Error
	})
}
