package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"roadalert/lifecycle"
)

// querier is the subset of *sql.DB and *sql.Tx the services use, so
// every query transparently joins an enclosing transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// q returns the transaction carried by ctx, or db when there is none.
func q(ctx context.Context, db *sql.DB) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// Transactor implements lifecycle.Transactor on MySQL. The callback's
// context carries the transaction, so service methods invoked inside
// it run on the same connection.
type Transactor struct {
	db *sql.DB
}

func NewTransactor(db *sql.DB) *Transactor {
	return &Transactor{db: db}
}

func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		// Already inside a transaction; join it.
		return fn(ctx)
	}

	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return storeErr("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit transaction", err)
	}
	return nil
}

// storeErr classifies a database failure: row absence surfaces as
// ErrNotFound, everything else as ErrStoreUnavailable so callers can
// retry with backoff instead of seeing silently empty results.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return lifecycle.ErrNotFound
	}
	return fmt.Errorf("%s: %v: %w", op, err, lifecycle.ErrStoreUnavailable)
}
