package repository

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

type contextKey string

const txKey contextKey = "gorm_tx"

// TransactionManager manages database transactions via context injection.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
	// RunInSavepoint behaves like RunInTx, except that inside an existing transaction
	// fn runs under a savepoint: an error from fn undoes only fn's writes and leaves
	// the outer transaction usable.
	RunInSavepoint(ctx context.Context, fn func(txCtx context.Context) error) error
	// RunReadOnly runs fn against a single consistent snapshot.
	RunReadOnly(ctx context.Context, fn func(txCtx context.Context) error) error
}

type transactionManager struct {
	db *gorm.DB
}

func NewTransactionManager(db *gorm.DB) TransactionManager {
	return &transactionManager{db: db}
}

func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := ctx.Value(txKey).(*gorm.DB); ok {
		// Already inside a transaction: join it.
		return fn(ctx)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txKey, tx)
		return fn(txCtx)
	})
}

func (t *transactionManager) RunInSavepoint(ctx context.Context, fn func(txCtx context.Context) error) error {
	tx, ok := ctx.Value(txKey).(*gorm.DB)
	if !ok {
		return t.RunInTx(ctx, fn)
	}
	// GORM turns a Transaction call on an open transaction into SAVEPOINT / ROLLBACK TO.
	return tx.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey, sp))
	})
}

func (t *transactionManager) RunReadOnly(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return fn(ctx)
	}
	opts := &sql.TxOptions{ReadOnly: true}
	if t.db.Dialector.Name() == "sqlite" {
		// SQLite rejects the read-only hint; its transactions are already serializable.
		opts = nil
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txKey, tx)
		return fn(txCtx)
	}, opts)
}

// GetDB extracts the transaction DB from context if present, otherwise returns root DB.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}
