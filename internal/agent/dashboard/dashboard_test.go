package dashboard

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insight-core/server/internal/dataset"
)

func seededHandle(t *testing.T) (*sql.DB, *dataset.Handle) {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE ds_sales (order_date DATE, region VARCHAR, revenue DOUBLE)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO ds_sales VALUES
		('2024-01-05', 'North', 150.0),
		('2024-01-07', 'South', 400.0),
		('2024-02-02', 'North', 250.0),
		('2024-02-06', 'East', 90.0)`)
	require.NoError(t, err)

	return db, &dataset.Handle{
		FileID:    "sales",
		TableName: "ds_sales",
		Filename:  "sales.csv",
		RowCount:  4,
		Columns: []dataset.Column{
			{Name: "order_date", Type: dataset.TypeDate},
			{Name: "region", Type: dataset.TypeText},
			{Name: "revenue", Type: dataset.TypeNumber},
		},
		DateColumns:        []string{"order_date"},
		CategoricalColumns: []string{"region"},
		NumericalColumns:   []string{"revenue"},
		UniqueValues:       map[string][]string{"region": {"North", "South", "East"}},
		SummaryStats: map[string]dataset.NumericSummary{
			"revenue": {Min: 90, Max: 400, Sum: 890, Mean: 222.5},
		},
	}
}

func TestProfileKPIs(t *testing.T) {
	_, h := seededHandle(t)

	kpis := ProfileKPIs(h)
	require.NotEmpty(t, kpis)
	assert.Equal(t, "Total Records", kpis[0].Title)
	assert.EqualValues(t, 4, kpis[0].Value)

	titles := make([]string, 0, len(kpis))
	for _, k := range kpis {
		titles = append(titles, k.Title)
	}
	assert.Contains(t, titles, "Total revenue")
	assert.Contains(t, titles, "Average revenue")
	assert.Contains(t, titles, "Unique region")
	assert.LessOrEqual(t, len(kpis), maxKPIs)
}

func TestRefresher_Refresh(t *testing.T) {
	db, h := seededHandle(t)
	r := NewRefresher(dataset.NewExecutor(db, dataset.DefaultExecutorConfig()))

	overview, err := r.Refresh(context.Background(), h)
	require.NoError(t, err)

	assert.Equal(t, "sales", overview.FileID)
	assert.NotEmpty(t, overview.KPIs)
	require.NotEmpty(t, overview.Charts)

	var types []string
	for _, c := range overview.Charts {
		types = append(types, c.Type)
	}
	assert.Contains(t, types, "bar")
	assert.Contains(t, types, "line")
}

func TestRefresher_NilHandle(t *testing.T) {
	r := NewRefresher(nil)
	_, err := r.Refresh(context.Background(), nil)
	assert.Error(t, err)
}
