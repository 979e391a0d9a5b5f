package dataset

import (
	"context"
	"database/sql"
	"strings"
	"time"

	logx "github.com/insight-core/server/pkg/logger"
)

// Result is the executor's output: ordered rows with a stable column order,
// plus the literal SQL that produced them for auditability.
type Result struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Count     int              `json:"count"`
	Truncated bool             `json:"truncated"`
	SQL       string           `json:"sql"`
}

// HasColumn reports whether the result contains the named column
// (case-insensitive).
func (r *Result) HasColumn(name string) bool {
	for _, c := range r.Columns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// ExecutorConfig bounds query execution.
type ExecutorConfig struct {
	QueryTimeout time.Duration
	MaxRows      int
}

// DefaultExecutorConfig mirrors the production limits: 15s per query, 10k rows.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		QueryTimeout: 15 * time.Second,
		MaxRows:      10_000,
	}
}

// Executor runs validated SELECT queries against ingested datasets. It is
// read-only by construction: ValidateQuery rejects anything that could write,
// and the row cap plus query timeout bound resource usage.
type Executor struct {
	db  *sql.DB
	cfg ExecutorConfig
}

// NewExecutor creates an executor over an opened DuckDB handle.
func NewExecutor(db *sql.DB, cfg ExecutorConfig) *Executor {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultExecutorConfig().QueryTimeout
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultExecutorConfig().MaxRows
	}
	return &Executor{db: db, cfg: cfg}
}

// Execute validates and runs a query against the handle's table. Oversized
// result sets are truncated with the Truncated flag set rather than failing.
func (e *Executor) Execute(ctx context.Context, h *Handle, query string) (*Result, *ExecutionError) {
	if execErr := ValidateQuery(h, query); execErr != nil {
		logx.Warn().
			Str("file_id", h.FileID).
			Str("kind", string(execErr.Kind)).
			Msg("query rejected by guard")
		return nil, execErr
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classifyError(err)
	}

	result := &Result{Columns: columns, SQL: query}
	for rows.Next() {
		if len(result.Rows) >= e.cfg.MaxRows {
			result.Truncated = true
			break
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classifyError(err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			default:
				row[col] = v
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	result.Count = len(result.Rows)

	logx.Debug().
		Str("file_id", h.FileID).
		Int("rows", result.Count).
		Bool("truncated", result.Truncated).
		Dur("elapsed", time.Since(start)).
		Msg("query executed")

	return result, nil
}
