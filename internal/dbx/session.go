package dbx

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
)

// Session is one checked-out connection, exclusive to a single unit of work.
// It is not safe for concurrent use.
type Session struct {
	conn     *sql.Conn
	txOpts   *sql.TxOptions
	observer Observer

	inTx     atomic.Bool
	faulted  atomic.Bool
	released atomic.Bool
}

var _ Transactor = (*Session)(nil)

func newSession(conn *sql.Conn, txOpts *sql.TxOptions, observer Observer) *Session {
	return &Session{conn: conn, txOpts: txOpts, observer: observer}
}

// Faulted reports whether a connection fault has been seen on this session.
func (s *Session) Faulted() bool { return s.faulted.Load() }

func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.conn.ExecContext(ctx, query, args...)
	return res, s.check(err)
}

func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	return rows, s.check(err)
}

func (s *Session) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	row := s.conn.QueryRowContext(ctx, query, args...)
	_ = s.check(row.Err())
	return row
}

func (s *Session) Ping(ctx context.Context) error {
	return s.check(s.conn.PingContext(ctx))
}

// WithTransaction runs fn inside a transaction on this session.
//
// The body must call tx.Commit to persist its work. Returning nil without
// committing rolls back and yields ErrTransactionAborted wrapping
// ErrNotCommitted; returning an error rolls back and yields
// ErrTransactionAborted wrapping that error. A panic rolls back and is
// rethrown. Calling WithTransaction again from inside fn panics.
func (s *Session) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) (err error) {
	if !s.inTx.CompareAndSwap(false, true) {
		panic("dbx: nested WithTransaction on the same session")
	}
	defer s.inTx.Store(false)

	sqlTx, err := s.conn.BeginTx(ctx, s.txOpts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", s.check(err))
	}
	tx := &Tx{session: s, tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			tx.abort()
			s.observer.ObserveTransaction(false)
			panic(p)
		}

		switch {
		case tx.committed:
			// Work is durable; a late body error is reported as is.
		case err != nil:
			tx.abort()
			err = fmt.Errorf("%w: %w", ErrTransactionAborted, err)
		default:
			tx.abort()
			err = fmt.Errorf("%w: %w", ErrTransactionAborted, ErrNotCommitted)
		}
		s.observer.ObserveTransaction(tx.committed)
	}()

	return fn(ctx, tx)
}

// check records connection faults and wraps them in ErrConnectionFault.
func (s *Session) check(err error) error {
	if !isConnectionFault(err) {
		return err
	}
	s.faulted.Store(true)
	return fmt.Errorf("%w: %w", ErrConnectionFault, err)
}
