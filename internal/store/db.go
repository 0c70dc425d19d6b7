package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for Postgres (pgx) or SQLite (sqlite3).
type DB struct {
	Client *sql.DB
	Driver string
}

// NewDB opens a connection with sane defaults and applies the schema.
func NewDB(driver, connString string) (*DB, error) {
	if driver == "" {
		driver = "pgx"
	}
	db, err := sql.Open(driver, connString)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite3" {
		// one writer; conflicts are still resolved by the primary key
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return &DB{Client: db, Driver: driver}, fmt.Errorf("ping db: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		return &DB{Client: db, Driver: driver}, fmt.Errorf("migrate: %w", err)
	}
	return &DB{Client: db, Driver: driver}, nil
}

// Migrate creates the tables if they are missing. activities and participants
// belong to the portal; they are created here only so a fresh database works.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS activities (
			id                     TEXT PRIMARY KEY,
			name                   TEXT NOT NULL DEFAULT '',
			open_at                TIMESTAMP NOT NULL,
			close_at               TIMESTAMP NOT NULL,
			late_tolerance_minutes INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS participants (
			id    TEXT PRIMARY KEY,
			name  TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS attendance_records (
			id             TEXT NOT NULL,
			activity_id    TEXT NOT NULL,
			participant_id TEXT NOT NULL,
			status         TEXT NOT NULL,
			recorded_at    TIMESTAMP NOT NULL,
			recorded_by    TEXT NOT NULL,
			method         TEXT NOT NULL DEFAULT 'QR',
			raw_expiry     BIGINT NOT NULL,
			PRIMARY KEY (activity_id, participant_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
