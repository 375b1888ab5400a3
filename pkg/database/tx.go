package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Transactor runs a unit of work atomically. Everything fn writes through
// GetQuerier(ctx) commits together or not at all.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ScopeTransactor opens transactions on the tenant connection found in ctx.
type ScopeTransactor struct{}

var _ Transactor = ScopeTransactor{}

// InTx begins a transaction, runs fn with it in the context and commits.
// Any error from fn rolls the transaction back and is returned unchanged.
// When ctx already carries a transaction, fn joins it.
func (ScopeTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey).(pgx.Tx); ok {
		return fn(ctx)
	}

	scope, ok := GetTenantScope(ctx)
	if !ok || scope.Conn == nil {
		return fmt.Errorf("no tenant scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
