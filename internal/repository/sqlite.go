package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	DB           *sql.DB
	queryTimeout time.Duration
}

// NewSQLiteDB opens (or creates) the database at path and migrates it.
// ":memory:" gives a throwaway database, used by tests.
func NewSQLiteDB(path string, queryTimeout time.Duration) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Один писатель; единственное соединение живёт вечно, иначе :memory: теряется
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to exec pragma %q: %w", p, err)
		}
	}

	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}

	if err := Migrate(context.Background(), db, goose.DialectSQLite3); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteDB{DB: db, queryTimeout: queryTimeout}, nil
}

func (db *SQLiteDB) Close() error {
	return db.DB.Close()
}

func (db *SQLiteDB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, db.queryTimeout)
}
