package charts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insight-core/server/internal/dataset"
)

func regionRevenue() *dataset.Result {
	return &dataset.Result{
		Columns: []string{"region", "revenue"},
		Rows: []map[string]any{
			{"region": "North", "revenue": 550.0},
			{"region": "South", "revenue": 250.0},
			{"region": "East", "revenue": 90.0},
		},
		Count: 3,
		SQL:   "SELECT region, SUM(revenue) AS revenue FROM ds_sales GROUP BY region",
	}
}

func TestShapeOf(t *testing.T) {
	s := ShapeOf(&dataset.Result{
		Columns: []string{"day", "region", "revenue", "flag"},
		Rows: []map[string]any{
			{"day": time.Now(), "region": "North", "revenue": int64(5), "flag": true},
		},
		Count: 1,
	})
	assert.Equal(t, []string{"revenue"}, s.Numeric)
	assert.Equal(t, []string{"day"}, s.Temporal)
	assert.Equal(t, []string{"region", "flag"}, s.Categorical)
}

func TestBuild_BarFromCategoricalAndNumeric(t *testing.T) {
	specs := Build("bar", "", regionRevenue())
	require.Len(t, specs, 1)

	c := specs[0]
	assert.Equal(t, "bar", c.Type)
	assert.Equal(t, "region", c.XAxis)
	assert.Equal(t, "revenue", c.YAxis)
	assert.Equal(t, "revenue by region", c.Title)
	assert.Len(t, c.Data, 3)
	assert.Equal(t, 300, c.Height)
}

func TestBuild_InfersWhenNoIntent(t *testing.T) {
	specs := Build("", "", regionRevenue())
	require.Len(t, specs, 1)
	assert.Equal(t, "bar", specs[0].Type)
}

func TestBuild_ZeroRowsProducesNothing(t *testing.T) {
	assert.Nil(t, Build("bar", "", &dataset.Result{Columns: []string{"region"}, Count: 0}))
	assert.Nil(t, Build("bar", "", nil))
}

func TestBuild_SingleAggregateProducesNoChart(t *testing.T) {
	result := &dataset.Result{
		Columns: []string{"total"},
		Rows:    []map[string]any{{"total": 1344.5}},
		Count:   1,
	}
	assert.Nil(t, Build("", "", result))
}

func TestCheckShape(t *testing.T) {
	t.Run("pie needs one numeric and one categorical", func(t *testing.T) {
		reason, ok := CheckShape("pie", regionRevenue())
		assert.True(t, ok)
		assert.Empty(t, reason)

		twoNumeric := &dataset.Result{
			Columns: []string{"a", "b"},
			Rows:    []map[string]any{{"a": 1.0, "b": 2.0}},
			Count:   1,
		}
		reason, ok = CheckShape("pie", twoNumeric)
		assert.False(t, ok)
		assert.NotEmpty(t, reason)
	})

	t.Run("scatter needs two numeric columns", func(t *testing.T) {
		_, ok := CheckShape("scatter", regionRevenue())
		assert.False(t, ok)
	})

	t.Run("empty results and table intent always pass", func(t *testing.T) {
		empty := &dataset.Result{Columns: []string{"region"}, Count: 0}
		_, ok := CheckShape("pie", empty)
		assert.True(t, ok)
		_, ok = CheckShape("table", regionRevenue())
		assert.True(t, ok)
		_, ok = CheckShape("", regionRevenue())
		assert.True(t, ok)
	})
}

func TestBuildKPIs(t *testing.T) {
	result := &dataset.Result{
		Columns: []string{"total_revenue", "order_count", "top_region"},
		Rows:    []map[string]any{{"total_revenue": 1344.5, "order_count": int64(5), "top_region": "North"}},
		Count:   1,
	}

	kpis := BuildKPIs(result)
	require.Len(t, kpis, 2)
	assert.Equal(t, "Total Revenue", kpis[0].Title)
	assert.Equal(t, 1344.5, kpis[0].Value)
	assert.Equal(t, "Order Count", kpis[1].Title)

	// multi-row results are chart material, not KPI cards
	assert.Nil(t, BuildKPIs(regionRevenue()))
	assert.Nil(t, BuildKPIs(nil))
}
