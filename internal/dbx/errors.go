package dbx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
)

var (
	// ErrPoolExhausted is returned by Acquire only when an acquire timeout is
	// configured and no connection was returned within it.
	ErrPoolExhausted = errors.New("dbx: pool exhausted")

	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("dbx: pool closed")

	// ErrConnectionFault wraps transport-level failures. The session that saw
	// it is discarded on release instead of going back to the pool.
	ErrConnectionFault = errors.New("dbx: connection fault")

	// ErrTransactionAborted is returned by WithTransaction whenever the
	// transaction was rolled back.
	ErrTransactionAborted = errors.New("dbx: transaction aborted")

	// ErrNotCommitted is wrapped in ErrTransactionAborted when a body returned
	// nil without calling Tx.Commit.
	ErrNotCommitted = errors.New("dbx: transaction body returned without commit")

	// ErrMigrationFailed wraps every Migrator failure.
	ErrMigrationFailed = errors.New("dbx: migration failed")
)

// isConnectionFault reports whether err means the underlying connection can
// no longer be trusted.
func isConnectionFault(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
