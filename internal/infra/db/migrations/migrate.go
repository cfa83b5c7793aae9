// Package migrations applies the goose SQL migrations kept next to this file.
// DefaultDir is relative to the repository root.
package migrations

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/pressly/goose"

	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v4/stdlib"
)

const DefaultDir = "internal/infra/db/migrations"

// Up applies every pending migration in dir to the database at dsn.
func Up(dsn, dir string) error {
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("migrations dir: %w", err)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	return UpDB(db, dir)
}

// UpDB is Up on an open handle.
func UpDB(db *sql.DB, dir string) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
