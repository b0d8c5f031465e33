package dbx

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is the handle passed to a WithTransaction body. It is valid only for
// the duration of that body.
type Tx struct {
	session   *Session
	tx        *sql.Tx
	done      bool
	committed bool
}

var _ DBTX = (*Tx)(nil)

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	return res, t.session.check(err)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	return rows, t.session.check(err)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	row := t.tx.QueryRowContext(ctx, query, args...)
	_ = t.session.check(row.Err())
	return row
}

// Commit makes the transaction's work durable. It may be called once.
func (t *Tx) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true

	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", t.session.check(err))
	}
	t.committed = true
	return nil
}

// Rollback discards the transaction's work. The enclosing WithTransaction
// still reports ErrTransactionAborted.
func (t *Tx) Rollback() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	return t.session.check(t.tx.Rollback())
}

// Committed reports whether Commit succeeded.
func (t *Tx) Committed() bool { return t.committed }

func (t *Tx) abort() {
	if t.done {
		return
	}
	t.done = true
	_ = t.session.check(t.tx.Rollback())
}
