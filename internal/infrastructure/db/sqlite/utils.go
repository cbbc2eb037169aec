package sqlitedb

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/pi-apps/a2u/internal/infrastructure/db/sqlite/sqlc/queries"
)

const (
	driverName = "sqlite"
	dbFile     = "a2u.db"
	inMemoryDb = ":memory:"
)

//go:embed sqlc/schema.sql
var schema string

// OpenDb opens the database stored in dir, or an in-memory one if dir is
// empty.
func OpenDb(dir string) (*sql.DB, error) {
	dsn := inMemoryDb
	if len(dir) > 0 {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create db dir: %w", err)
		}
		dsn = filepath.Join(dir, dbFile) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// every connection to :memory: would see its own database
	db.SetMaxOpenConns(1)
	return db, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate db: %w", err)
	}
	return nil
}

func execTx(
	ctx context.Context, db *sql.DB, txBody func(*queries.Queries) error,
) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// nolint:errcheck
		tx.Rollback()
	}()

	if err := txBody(queries.New(db).WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
