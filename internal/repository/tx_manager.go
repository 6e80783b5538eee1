package repository

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

type contextKey string

const (
	txKey    contextKey = "gorm_tx"
	hooksKey contextKey = "tx_after_commit"
)

// TransactionManager manages database transactions via context injection.
type TransactionManager interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

type transactionManager struct {
	db *gorm.DB
}

func NewTransactionManager(db *gorm.DB) TransactionManager {
	return &transactionManager{db: db}
}

type commitHooks struct {
	mu  sync.Mutex
	fns []func()
}

// RunInTx runs fn inside a transaction. Nested calls join the outer transaction,
// and hooks registered with AfterCommit run once the outermost one commits.
func (t *transactionManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return fn(ctx)
	}

	hooks := &commitHooks{}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txKey, tx)
		txCtx = context.WithValue(txCtx, hooksKey, hooks)
		return fn(txCtx)
	})
	if err != nil {
		return err
	}

	hooks.mu.Lock()
	fns := hooks.fns
	hooks.fns = nil
	hooks.mu.Unlock()
	for _, f := range fns {
		f()
	}
	return nil
}

// AfterCommit defers f until the transaction in ctx commits and drops it on rollback.
// Outside a transaction f runs immediately.
func AfterCommit(ctx context.Context, f func()) {
	hooks, ok := ctx.Value(hooksKey).(*commitHooks)
	if !ok {
		f()
		return
	}
	hooks.mu.Lock()
	hooks.fns = append(hooks.fns, f)
	hooks.mu.Unlock()
}

// GetDB extracts the transaction DB from context if present, otherwise returns root DB.
func GetDB(ctx context.Context, rootDB *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return rootDB.WithContext(ctx)
}
