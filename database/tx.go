package database

import (
	"context"
	"database/sql"
	"fmt"
)

// TxQuerier is satisfied by *sql.DB, *sql.Tx and *Tx, so repositories can be
// built over either the pool or a running transaction.
type TxQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is a running transaction plus the callbacks to fire once it commits.
//
// Anything that must only be observed after the data is durable (realtime
// pushes, in particular) is registered with AfterCommit. A rolled back
// transaction drops its callbacks.
type Tx struct {
	*sql.Tx
	afterCommit []func()
}

// AfterCommit queues fn to run after a successful commit, in registration
// order.
func (tx *Tx) AfterCommit(fn func()) {
	tx.afterCommit = append(tx.afterCommit, fn)
}

// WithTx runs fn in a transaction: commit when fn returns nil, roll back when
// it returns an error or panics. A transaction that could not start or commit
// because the database was busy is retried from scratch, fn included, so fn
// must only touch the database through tx.
//
//	err := database.WithTx(ctx, db.Conn, func(tx *database.Tx) error {
//	    if err := answers.Create(ctx, tx, answer); err != nil {
//	        return err
//	    }
//	    _, err := ledger.RecordEvent(ctx, tx, event)
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *Tx) error) error {
	var hooks []func()

	err := retryBusy(ctx, func() error {
		var err error
		hooks, err = runTx(ctx, db, fn)
		return err
	})
	if err != nil {
		return err
	}

	for _, hook := range hooks {
		hook()
	}
	return nil
}

func runTx(ctx context.Context, db *sql.DB, fn func(tx *Tx) error) (hooks []func(), err error) {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	tx := &Tx{Tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return nil, fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return nil, err
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return tx.afterCommit, nil
}
