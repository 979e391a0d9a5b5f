// Package charts derives declarative chart and KPI specs from query results.
// Shaping is purely structural: it looks only at the result's column types and
// row count, never at conversation content, and never invents columns that are
// not present in the result.
package charts

import (
	"fmt"
	"strings"
	"time"

	"github.com/insight-core/server/internal/agent/model"
	"github.com/insight-core/server/internal/dataset"
)

// Default color palette for chart series.
var defaultColors = []string{
	"#4F46E5", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6",
	"#06B6D4", "#EC4899", "#84CC16", "#F97316", "#6366F1",
}

const (
	defaultHeight = 300
	maxChartRows  = 20
)

// ColumnKind is the structural type of a result column, inferred from values.
type ColumnKind string

const (
	KindNumeric     ColumnKind = "numeric"
	KindCategorical ColumnKind = "categorical"
	KindTemporal    ColumnKind = "temporal"
	KindEmpty       ColumnKind = "empty"
)

// Shape describes a result's columns partitioned by kind, in column order.
type Shape struct {
	Numeric     []string
	Categorical []string
	Temporal    []string
}

// ShapeOf classifies each result column by inspecting its values.
func ShapeOf(result *dataset.Result) Shape {
	var s Shape
	for _, col := range result.Columns {
		switch kindOf(result, col) {
		case KindNumeric:
			s.Numeric = append(s.Numeric, col)
		case KindTemporal:
			s.Temporal = append(s.Temporal, col)
		case KindCategorical:
			s.Categorical = append(s.Categorical, col)
		}
	}
	return s
}

func kindOf(result *dataset.Result, col string) ColumnKind {
	for _, row := range result.Rows {
		v, ok := row[col]
		if !ok || v == nil {
			continue
		}
		switch v.(type) {
		case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return KindNumeric
		case time.Time:
			return KindTemporal
		case bool:
			return KindCategorical
		default:
			return KindCategorical
		}
	}
	return KindEmpty
}

// CheckShape verifies that a result can support the declared chart intent.
// A mismatch is a retry signal, not a silent downgrade: the returned reason
// tells the synthesis agent what shape the result needs.
func CheckShape(chartIntent string, result *dataset.Result) (string, bool) {
	intent := strings.ToLower(strings.TrimSpace(chartIntent))
	if intent == "" || intent == "table" || result.Count == 0 {
		return "", true
	}

	shape := ShapeOf(result)
	switch intent {
	case "pie":
		if len(shape.Numeric) != 1 || len(shape.Categorical) == 0 {
			return fmt.Sprintf(
				"a pie chart needs exactly one numeric column and a categorical column, result has %d numeric and %d categorical",
				len(shape.Numeric), len(shape.Categorical)), false
		}
	case "bar":
		if len(shape.Numeric) == 0 || (len(shape.Categorical) == 0 && len(shape.Temporal) == 0) {
			return "a bar chart needs one numeric column and a categorical or temporal column to group on", false
		}
	case "line", "area":
		if len(shape.Numeric) == 0 || (len(shape.Temporal) == 0 && len(shape.Categorical) == 0) {
			return fmt.Sprintf("a %s chart needs a numeric column and an ordered axis column", intent), false
		}
	case "scatter":
		if len(shape.Numeric) < 2 {
			return "a scatter chart needs at least two numeric columns", false
		}
	}
	return "", true
}

// Build derives chart specs for a result. The declared chart intent wins when
// the shape supports it; otherwise the chart type is inferred from the shape.
// Zero-row results produce no charts.
func Build(chartIntent, title string, result *dataset.Result) []model.ChartSpec {
	if result == nil || result.Count == 0 {
		return nil
	}

	shape := ShapeOf(result)
	chartType := strings.ToLower(strings.TrimSpace(chartIntent))
	if chartType == "" || chartType == "table" {
		chartType = inferChartType(shape, result.Count)
	}
	if chartType == "" {
		return nil
	}
	if reason, ok := CheckShape(chartType, result); !ok {
		_ = reason // shape cannot support the intent; fall back to inference
		chartType = inferChartType(shape, result.Count)
		if chartType == "" {
			return nil
		}
	}

	xAxis, yAxis := pickAxes(chartType, shape)
	if xAxis == "" || yAxis == "" {
		return nil
	}

	data := result.Rows
	if len(data) > maxChartRows {
		data = data[:maxChartRows]
	}

	if title == "" {
		title = fmt.Sprintf("%s by %s", yAxis, xAxis)
	}

	return []model.ChartSpec{{
		Type:   chartType,
		Title:  title,
		Data:   data,
		XAxis:  xAxis,
		YAxis:  yAxis,
		Colors: paletteFor(chartType, len(data)),
		Height: defaultHeight,
	}}
}

// inferChartType picks a chart for a result with no usable declared intent.
func inferChartType(shape Shape, rowCount int) string {
	switch {
	case rowCount <= 1:
		return "" // single aggregates become KPI cards, not charts
	case len(shape.Temporal) > 0 && len(shape.Numeric) > 0:
		return "line"
	case len(shape.Categorical) > 0 && len(shape.Numeric) > 0:
		return "bar"
	case len(shape.Numeric) >= 2:
		return "scatter"
	default:
		return ""
	}
}

func pickAxes(chartType string, shape Shape) (x, y string) {
	if chartType == "scatter" {
		if len(shape.Numeric) >= 2 {
			return shape.Numeric[0], shape.Numeric[1]
		}
		return "", ""
	}
	switch {
	case (chartType == "line" || chartType == "area") && len(shape.Temporal) > 0:
		x = shape.Temporal[0]
	case len(shape.Categorical) > 0:
		x = shape.Categorical[0]
	case len(shape.Temporal) > 0:
		x = shape.Temporal[0]
	}
	if len(shape.Numeric) > 0 {
		y = shape.Numeric[0]
	}
	return x, y
}

func paletteFor(chartType string, n int) []string {
	if chartType != "pie" {
		return []string{defaultColors[0]}
	}
	colors := make([]string, 0, n)
	for i := 0; i < n; i++ {
		colors = append(colors, defaultColors[i%len(defaultColors)])
	}
	return colors
}

// BuildKPIs turns a single-row aggregate result into KPI cards, one per
// numeric column. Multi-row results produce no KPIs here; the dashboard
// derives its own from the dataset profile.
func BuildKPIs(result *dataset.Result) []model.KPICard {
	if result == nil || result.Count != 1 {
		return nil
	}

	row := result.Rows[0]
	var kpis []model.KPICard
	for _, col := range result.Columns {
		v, ok := row[col]
		if !ok || v == nil {
			continue
		}
		switch v.(type) {
		case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			kpis = append(kpis, model.KPICard{
				Title: titleize(col),
				Value: v,
				Trend: "neutral",
			})
		}
	}
	return kpis
}

func titleize(col string) string {
	parts := strings.FieldsFunc(col, func(r rune) bool { return r == '_' || r == '-' })
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
