package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophforum/internal/logging"
	"github.com/jackc/pgx/v5"
	"github.com/pressly/goose/v3/lock"
)

const DefaultLedgerTable = "schema_migrations"

// Migration is a named schema change. Name is the ledger key; the script is
// executed verbatim and may hold several statements.
type Migration struct {
	Name   string
	Script string
}

// Migrator applies pending migrations in list order and records each applied
// name in a ledger table, all within one transaction.
type Migrator struct {
	table  string
	locker lock.SessionLocker
	logger logging.Logger
}

type MigratorOption func(*Migrator)

func WithLedgerTable(name string) MigratorOption {
	return func(m *Migrator) {
		if name != "" {
			m.table = name
		}
	}
}

// WithSessionLocker serializes concurrent runs (e.g. several replicas
// starting at once) with a session-level lock held for the whole run.
func WithSessionLocker(l lock.SessionLocker) MigratorOption {
	return func(m *Migrator) { m.locker = l }
}

func WithMigrationLogger(l logging.Logger) MigratorOption {
	return func(m *Migrator) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewMigrator(opts ...MigratorOption) *Migrator {
	m := &Migrator{
		table:  DefaultLedgerTable,
		logger: logging.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Up creates the ledger if needed and applies every migration whose name is
// not yet recorded. Either all pending migrations are applied or none are.
// It returns the names applied by this run.
func (m *Migrator) Up(ctx context.Context, conn *sql.Conn, migrations []Migration) ([]string, error) {
	if err := validateMigrations(migrations); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	if m.locker != nil {
		if err := m.locker.SessionLock(ctx, conn); err != nil {
			return nil, fmt.Errorf("%w: acquire lock: %w", ErrMigrationFailed, err)
		}
		defer func() {
			if err := m.locker.SessionUnlock(context.WithoutCancel(ctx), conn); err != nil {
				m.logger.Warn(ctx, "failed to release migration lock", "error", err)
			}
		}()
	}

	table := pgx.Identifier{m.table}.Sanitize()

	createLedger := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, table)
	if _, err := conn.ExecContext(ctx, createLedger); err != nil {
		return nil, fmt.Errorf("%w: create ledger: %w", ErrMigrationFailed, err)
	}

	var applied []string
	err := WithTx(ctx, conn, nil, func(ctx context.Context, tx DBTX) error {
		done, err := appliedNames(ctx, tx, table)
		if err != nil {
			return err
		}

		record := fmt.Sprintf(`INSERT INTO %s (name) VALUES ($1)`, table)
		for _, mig := range migrations {
			if _, ok := done[mig.Name]; ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, record, mig.Name); err != nil {
				return fmt.Errorf("record %s: %w", mig.Name, err)
			}
			if _, err := tx.ExecContext(ctx, mig.Script); err != nil {
				return fmt.Errorf("apply %s: %w", mig.Name, err)
			}
			applied = append(applied, mig.Name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	if len(applied) == 0 {
		m.logger.Info(ctx, "schema is up to date", "total", len(migrations))
	} else {
		m.logger.Info(ctx, "migrations applied", "applied", applied)
	}

	return applied, nil
}

func appliedNames(ctx context.Context, tx DBTX, table string) (map[string]struct{}, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT name FROM %s`, table))
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("read ledger: %w", err)
		}
		done[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return done, nil
}

func validateMigrations(migrations []Migration) error {
	seen := make(map[string]struct{}, len(migrations))
	for _, mig := range migrations {
		if mig.Name == "" {
			return errors.New("migration with empty name")
		}
		if _, dup := seen[mig.Name]; dup {
			return fmt.Errorf("duplicate migration name %q", mig.Name)
		}
		seen[mig.Name] = struct{}{}
	}
	return nil
}
