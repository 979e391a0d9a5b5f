package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	logx "github.com/insight-core/server/pkg/logger"
)

var tableNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// TableNameFor derives the DuckDB table name for a file id. Table names must
// be stable so that a handle can be rebuilt against an existing table.
func TableNameFor(fileID string) string {
	return "ds_" + tableNameSanitizer.ReplaceAllString(fileID, "_")
}

// IngestCSV loads a CSV file into a DuckDB table and profiles it, returning
// the immutable Handle the core will read for the dataset's lifetime.
//
// The CSV path is operator-supplied (upload collaborator), not model output,
// so interpolating it into read_csv_auto is acceptable here; generated query
// text never reaches this code path.
func IngestCSV(ctx context.Context, db *sql.DB, fileID, csvPath string) (*Handle, error) {
	tableName := TableNameFor(fileID)

	load := fmt.Sprintf(
		`CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto('%s', HEADER=TRUE, SAMPLE_SIZE=100000, IGNORE_ERRORS=TRUE)`,
		tableName, strings.ReplaceAll(csvPath, "'", "''"),
	)
	if _, err := db.ExecContext(ctx, load); err != nil {
		return nil, fmt.Errorf("load csv into %s: %w", tableName, err)
	}

	var rowCount int64
	if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName)).Scan(&rowCount); err != nil {
		return nil, fmt.Errorf("count rows of %s: %w", tableName, err)
	}

	h := &Handle{
		FileID:    fileID,
		TableName: tableName,
		Filename:  filepath.Base(csvPath),
		RowCount:  rowCount,
		CreatedAt: time.Now().UTC(),
	}

	if err := profile(ctx, db, h); err != nil {
		return nil, fmt.Errorf("profile %s: %w", tableName, err)
	}

	logx.Info().
		Str("file_id", fileID).
		Str("table", tableName).
		Int64("rows", rowCount).
		Int("columns", len(h.Columns)).
		Msg("dataset ingested")

	return h, nil
}
