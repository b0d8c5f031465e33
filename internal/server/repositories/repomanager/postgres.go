// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and the embedded schema migrations.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gophforum/internal/dbx"
	"github.com/dmitrijs2005/gophforum/internal/logging"
	"github.com/dmitrijs2005/gophforum/internal/server/migrations"
	"github.com/dmitrijs2005/gophforum/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/gophforum/internal/server/repositories/messages"
	"github.com/dmitrijs2005/gophforum/internal/server/repositories/threads"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3/lock"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct {
	lockID   int64
	logger   logging.Logger
	migrator *dbx.Migrator
}

type Option func(*PostgresRepositoryManager)

// WithMigrationLock makes RunMigrations hold a Postgres advisory lock with
// the given key. Zero disables locking.
func WithMigrationLock(id int64) Option {
	return func(m *PostgresRepositoryManager) { m.lockID = id }
}

func WithLogger(l logging.Logger) Option {
	return func(m *PostgresRepositoryManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Accounts returns an accounts.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Accounts(db dbx.DBTX) accounts.Repository {
	return accounts.NewPostgresRepository(db)
}

// Threads returns a threads.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Threads(db dbx.DBTX) threads.Repository {
	return threads.NewPostgresRepository(db)
}

// Messages returns a messages.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Messages(db dbx.DBTX) messages.Repository {
	return messages.NewPostgresRepository(db)
}

// migrateUp is a seam for testing Migrator.Up.
var migrateUp = func(ctx context.Context, mg *dbx.Migrator, conn *sql.Conn, list []dbx.Migration) ([]string, error) {
	return mg.Up(ctx, conn, list)
}

// RunMigrations applies the embedded forum schema on a dedicated bootstrap
// connection taken from db.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	list, err := migrations.List()
	if err != nil {
		return fmt.Errorf("%w: %w", dbx.ErrMigrationFailed, err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: bootstrap connection: %w", dbx.ErrMigrationFailed, err)
	}
	defer conn.Close()

	if _, err := migrateUp(ctx, m.migrator, conn, list); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(opts ...Option) (RepositoryManager, error) {
	m := &PostgresRepositoryManager{logger: logging.Nop()}
	for _, o := range opts {
		o(m)
	}

	migratorOpts := []dbx.MigratorOption{dbx.WithMigrationLogger(m.logger)}
	if m.lockID != 0 {
		locker, err := lock.NewPostgresSessionLocker(lock.WithLockID(m.lockID))
		if err != nil {
			return nil, fmt.Errorf("migration lock: %w", err)
		}
		migratorOpts = append(migratorOpts, dbx.WithSessionLocker(locker))
	}
	m.migrator = dbx.NewMigrator(migratorOpts...)

	return m, nil
}
