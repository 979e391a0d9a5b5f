package duck

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Config holds DuckDB connection settings. An empty Path opens an in-memory
// database, which is what tests and the demo harness use.
type Config struct {
	Path string `split_words:"true" default:""`
}

// Open opens (and pings) a DuckDB database. For a file-backed database the
// parent directory is created if missing.
func (c *Config) Open(ctx context.Context) (*sql.DB, error) {
	if c.Path != "" {
		if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("duckdb", c.Path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// MustOpen is Open that panics on failure, for wiring code.
func (c *Config) MustOpen(ctx context.Context) *sql.DB {
	db, err := c.Open(ctx)
	if err != nil {
		panic(err)
	}
	return db
}
