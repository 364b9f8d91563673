package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"youbble/logger"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (creating if needed) an embedded SQLite database in WAL
// mode with a busy timeout, suitable for concurrent request handlers.
func OpenSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	// one writer keeps the pragmas on every statement's connection
	conn.SetMaxOpenConns(1)

	logger.Info("opened sqlite database", logger.String("path", path))
	return conn, nil
}
