package dataset

import (
	"fmt"
	"strings"
	"time"
)

// ColumnType is the logical type of a dataset column as seen by the agents.
type ColumnType string

const (
	TypeNumber  ColumnType = "number"
	TypeText    ColumnType = "text"
	TypeDate    ColumnType = "date"
	TypeBoolean ColumnType = "boolean"
)

// Column describes a single column of an ingested dataset.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Handle is the read-only descriptor of an ingested dataset. It is created
// once by ingestion and never mutated afterwards; the orchestrator and agents
// only ever read it.
type Handle struct {
	FileID    string    `json:"file_id"`
	TableName string    `json:"table_name"`
	Filename  string    `json:"filename,omitempty"`
	RowCount  int64     `json:"row_count"`
	Columns   []Column  `json:"columns"`
	CreatedAt time.Time `json:"created_at"`

	// Profiling output. Used for prompt grounding and dashboard generation.
	DateColumns        []string                  `json:"date_columns"`
	CategoricalColumns []string                  `json:"categorical_columns"`
	NumericalColumns   []string                  `json:"numerical_columns"`
	UniqueValues       map[string][]string       `json:"unique_values"`
	SummaryStats       map[string]NumericSummary `json:"summary_stats"`
	SampleRows         []map[string]any          `json:"sample_rows"`
}

// NumericSummary holds basic statistics for a numerical column.
type NumericSummary struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Sum  float64 `json:"sum"`
	Mean float64 `json:"mean"`
}

// HasColumn reports whether the dataset has a column with the given name
// (case-insensitive, matching DuckDB identifier semantics).
func (h *Handle) HasColumn(name string) bool {
	for _, c := range h.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// ColumnNames returns the column names in schema order.
func (h *Handle) ColumnNames() []string {
	names := make([]string, len(h.Columns))
	for i, c := range h.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnTypeOf returns the logical type of the named column, or TypeText when
// the column is unknown.
func (h *Handle) ColumnTypeOf(name string) ColumnType {
	for _, c := range h.Columns {
		if strings.EqualFold(c.Name, name) {
			return c.Type
		}
	}
	return TypeText
}

// SchemaDescription renders a compact, prompt-friendly description of the
// dataset schema: one line per column with type and, for categorical columns,
// a few sample values.
func (h *Handle) SchemaDescription() string {
	var b strings.Builder
	fmt.Fprintf(&b, "table %s (%d rows)\n", h.TableName, h.RowCount)
	for _, c := range h.Columns {
		fmt.Fprintf(&b, "- %s: %s", c.Name, c.Type)
		if vals, ok := h.UniqueValues[c.Name]; ok && len(vals) > 0 {
			sample := vals
			if len(sample) > 8 {
				sample = sample[:8]
			}
			fmt.Fprintf(&b, " (values: %s)", strings.Join(sample, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
