// Package dashboard derives an overview of a dataset independent of any
// conversation: headline KPIs from the stored profile plus default charts
// produced by running overview queries through the same sandboxed executor
// the conversational pipeline uses.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/insight-core/server/internal/agent/charts"
	"github.com/insight-core/server/internal/agent/model"
	"github.com/insight-core/server/internal/dataset"
	logx "github.com/insight-core/server/pkg/logger"
)

const (
	maxKPIs          = 6
	overviewGroupCap = 10
)

// Overview is a refreshed dashboard for one dataset.
type Overview struct {
	FileID      string            `json:"file_id"`
	KPIs        []model.KPICard   `json:"kpis"`
	Charts      []model.ChartSpec `json:"charts"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Refresher builds dataset overviews on demand.
type Refresher struct {
	executor *dataset.Executor
}

func NewRefresher(executor *dataset.Executor) *Refresher {
	return &Refresher{executor: executor}
}

// Refresh recomputes the overview for a dataset. Chart queries that fail are
// skipped with a warning; the profile KPIs never fail.
func (r *Refresher) Refresh(ctx context.Context, h *dataset.Handle) (*Overview, error) {
	if h == nil {
		return nil, fmt.Errorf("dashboard refresh: nil dataset handle")
	}

	overview := &Overview{
		FileID:      h.FileID,
		KPIs:        ProfileKPIs(h),
		GeneratedAt: time.Now().UTC(),
	}

	for _, oq := range overviewQueries(h) {
		result, execErr := r.executor.Execute(ctx, h, oq.sql)
		if execErr != nil {
			logx.Warn().
				Str("file_id", h.FileID).
				Str("kind", string(execErr.Kind)).
				Msg("overview query failed, skipping chart")
			continue
		}
		overview.Charts = append(overview.Charts, charts.Build(oq.chartType, oq.title, result)...)
	}

	return overview, nil
}

// ProfileKPIs derives headline metrics from the stored dataset profile alone.
func ProfileKPIs(h *dataset.Handle) []model.KPICard {
	kpis := []model.KPICard{{
		Title: "Total Records",
		Value: h.RowCount,
		Trend: "neutral",
	}}

	for _, col := range h.NumericalColumns {
		stats, ok := h.SummaryStats[col]
		if !ok {
			continue
		}
		kpis = append(kpis,
			model.KPICard{Title: "Total " + col, Value: stats.Sum, Trend: "neutral"},
			model.KPICard{Title: "Average " + col, Value: stats.Mean, Trend: "neutral"},
		)
		if len(kpis) >= maxKPIs {
			return kpis[:maxKPIs]
		}
	}

	for _, col := range h.CategoricalColumns {
		vals, ok := h.UniqueValues[col]
		if !ok || len(vals) == 0 {
			continue
		}
		kpis = append(kpis, model.KPICard{Title: "Unique " + col, Value: len(vals), Trend: "neutral"})
		if len(kpis) >= maxKPIs {
			return kpis[:maxKPIs]
		}
	}

	return kpis
}

type overviewQuery struct {
	title     string
	chartType string
	sql       string
}

// overviewQueries derives the default chart queries from the profile: one
// breakdown per leading categorical column and one trend over the first date
// column when a numeric measure exists.
func overviewQueries(h *dataset.Handle) []overviewQuery {
	if len(h.NumericalColumns) == 0 {
		return nil
	}
	measure := h.NumericalColumns[0]

	var queries []overviewQuery
	for _, cat := range firstN(h.CategoricalColumns, 2) {
		queries = append(queries, overviewQuery{
			title:     fmt.Sprintf("%s by %s", measure, cat),
			chartType: "bar",
			sql: fmt.Sprintf(
				`SELECT %s, SUM(%s) AS %s FROM %s WHERE %s IS NOT NULL GROUP BY %s ORDER BY 2 DESC LIMIT %d`,
				quote(cat), quote(measure), quote(measure), h.TableName, quote(cat), quote(cat), overviewGroupCap),
		})
	}

	if len(h.DateColumns) > 0 {
		date := h.DateColumns[0]
		queries = append(queries, overviewQuery{
			title:     fmt.Sprintf("%s over time", measure),
			chartType: "line",
			sql: fmt.Sprintf(
				`SELECT %s, SUM(%s) AS %s FROM %s WHERE %s IS NOT NULL GROUP BY %s ORDER BY %s`,
				quote(date), quote(measure), quote(measure), h.TableName, quote(date), quote(date), quote(date)),
		})
	}

	return queries
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
