package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Profiling limits. Unique values and sample rows feed LLM prompts, so they
// are kept small regardless of dataset size.
const (
	maxUniqueValues   = 50
	maxSampleRows     = 5
	uniqueCardinality = 100 // columns with more distinct values are not enumerated
)

// profile inspects the ingested table and fills the handle's schema and
// statistics fields. The classification mirrors the usual split: numeric
// columns become measures, low-cardinality text columns become categorical
// dimensions, temporal columns are tracked separately.
func profile(ctx context.Context, db *sql.DB, h *Handle) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("DESCRIBE %s", h.TableName))
	if err != nil {
		return fmt.Errorf("describe: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		name, _ := values[0].(string)
		duckType, _ := values[1].(string)
		if name == "" {
			continue
		}
		h.Columns = append(h.Columns, Column{Name: name, Type: logicalType(duckType)})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	h.UniqueValues = make(map[string][]string)
	h.SummaryStats = make(map[string]NumericSummary)

	for _, c := range h.Columns {
		switch c.Type {
		case TypeNumber:
			h.NumericalColumns = append(h.NumericalColumns, c.Name)
			if err := summarizeNumeric(ctx, db, h, c.Name); err != nil {
				return err
			}
		case TypeDate:
			h.DateColumns = append(h.DateColumns, c.Name)
		case TypeText:
			isCat, err := enumerateCategorical(ctx, db, h, c.Name)
			if err != nil {
				return err
			}
			if isCat {
				h.CategoricalColumns = append(h.CategoricalColumns, c.Name)
			}
		}
	}

	return sampleRows(ctx, db, h)
}

// logicalType collapses DuckDB's physical types into the four logical types
// the agents reason about.
func logicalType(duckType string) ColumnType {
	t := strings.ToUpper(duckType)
	switch {
	case strings.HasPrefix(t, "DECIMAL"), t == "DOUBLE", t == "FLOAT", t == "REAL",
		strings.Contains(t, "INT"), t == "HUGEINT":
		return TypeNumber
	case t == "DATE", strings.HasPrefix(t, "TIMESTAMP"), t == "TIME":
		return TypeDate
	case t == "BOOLEAN":
		return TypeBoolean
	default:
		return TypeText
	}
}

func summarizeNumeric(ctx context.Context, db *sql.DB, h *Handle, col string) error {
	q := fmt.Sprintf(
		`SELECT MIN(%[1]s), MAX(%[1]s), SUM(%[1]s), AVG(%[1]s) FROM %[2]s WHERE %[1]s IS NOT NULL`,
		quoteIdent(col), h.TableName,
	)
	var min, max, sum, mean sql.NullFloat64
	if err := db.QueryRowContext(ctx, q).Scan(&min, &max, &sum, &mean); err != nil {
		return fmt.Errorf("summarize %s: %w", col, err)
	}
	h.SummaryStats[col] = NumericSummary{
		Min:  min.Float64,
		Max:  max.Float64,
		Sum:  sum.Float64,
		Mean: mean.Float64,
	}
	return nil
}

// enumerateCategorical records distinct values for low-cardinality text
// columns. High-cardinality columns (ids, free text) are left unenumerated.
func enumerateCategorical(ctx context.Context, db *sql.DB, h *Handle, col string) (bool, error) {
	var distinct int64
	countQ := fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s", quoteIdent(col), h.TableName)
	if err := db.QueryRowContext(ctx, countQ).Scan(&distinct); err != nil {
		return false, fmt.Errorf("cardinality of %s: %w", col, err)
	}
	if distinct == 0 || distinct > uniqueCardinality {
		return false, nil
	}

	q := fmt.Sprintf(
		`SELECT DISTINCT %[1]s FROM %[2]s WHERE %[1]s IS NOT NULL ORDER BY %[1]s LIMIT %[3]d`,
		quoteIdent(col), h.TableName, maxUniqueValues,
	)
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var vals []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return false, err
		}
		if v.Valid && v.String != "" {
			vals = append(vals, v.String)
		}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	h.UniqueValues[col] = vals
	return true, nil
}

func sampleRows(ctx context.Context, db *sql.DB, h *Handle) error {
	q := fmt.Sprintf("SELECT * FROM %s LIMIT %d", h.TableName, maxSampleRows)
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			switch v := values[i].(type) {
			case []byte:
				row[col] = string(v)
			default:
				row[col] = v
			}
		}
		h.SampleRows = append(h.SampleRows, row)
	}
	return rows.Err()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
