package graph

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insight-core/server/internal/agent/graph/nodes"
	"github.com/insight-core/server/internal/agent/model"
	"github.com/insight-core/server/internal/agent/repo"
	errx "github.com/insight-core/server/internal/core/error"
	"github.com/insight-core/server/internal/dataset"
)

const salesCSV = `region,product,revenue
North,Lamp,150.0
North,Desk,400.0
South,Lamp,250.0
East,Chair,90.0
`

const (
	intentConversational = `{"kind":"conversational"}`
	intentRevenueByRegion = `{"kind":"data_query","query_type":"qa","goal":"total revenue by region","referenced_columns":["region","revenue"]}`

	specRevenueByRegion = `{"sql":"SELECT region, SUM(revenue) AS revenue FROM ds_sales GROUP BY region ORDER BY revenue DESC","target_columns":["region","revenue"],"chart_intent":"bar"}`
	specUnknownColumn   = `{"sql":"SELECT profit_margin FROM ds_sales","target_columns":["profit_margin"]}`
	specNoMatches       = `{"sql":"SELECT region, revenue FROM ds_sales WHERE revenue > 100000","target_columns":["region"]}`

	verdictAccept = `{"decision":"accept"}`
)

// scriptedModel replays canned responses in call order.
type scriptedModel struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (m *scriptedModel) Generate(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls >= len(m.responses) {
		return nil, errors.New("no scripted response left")
	}
	resp := m.responses[m.calls]
	m.calls++
	return schema.AssistantMessage(resp, nil), nil
}

func (m *scriptedModel) Stream(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func newTestOrchestrator(t *testing.T, planner, narrator *scriptedModel) (*Orchestrator, *repo.MemoryConversationRepository) {
	t.Helper()

	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	csvPath := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(salesCSV), 0o644))

	store := dataset.NewStore(db, time.Minute)
	t.Cleanup(store.Close)
	_, err = store.Register(context.Background(), "sales", csvPath)
	require.NoError(t, err)

	deps := &nodes.Deps{
		Planner:    planner,
		Narrator:   narrator,
		Executor:   dataset.NewExecutor(db, dataset.DefaultExecutorConfig()),
		MaxRetries: 2,
	}

	memRepo := repo.NewMemoryConversationRepository()
	o, err := NewOrchestratorWithDeps(
		context.Background(),
		deps,
		memRepo,
		model.ConversationConfig{TTL: "24h", MaxTurns: 10},
		model.WorkflowConfig{MaxRetries: 2, TurnTimeout: "30s", QueryTimeout: "15s", MaxResultRows: 10_000},
		store,
	)
	require.NoError(t, err)
	return o, memRepo
}

func TestRunTurn_ConversationalCarriesNoQuery(t *testing.T) {
	planner := &scriptedModel{responses: []string{intentConversational}}
	narrator := &scriptedModel{responses: []string{"Hi! Ask me anything about your sales data."}}
	o, memRepo := newTestOrchestrator(t, planner, narrator)

	result, err := o.RunTurn(context.Background(), model.TurnInput{
		ConversationID: "conv-1",
		FileID:         "sales",
		Query:          "hello there",
	})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeConversational, result.Outcome)
	assert.Equal(t, "Hi! Ask me anything about your sales data.", result.Narrative)
	assert.Empty(t, result.QueryType)
	assert.Nil(t, result.Query)
	assert.Nil(t, result.Results)
	assert.Empty(t, result.Visualizations)
	assert.Equal(t, 1, planner.calls)
	assert.Equal(t, 1, narrator.calls)

	// exactly one turn appended, then clearable
	n, err := memRepo.TurnCount(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	history, err := o.History(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, "hello there", history[0].Content)

	require.NoError(t, o.ClearConversation(context.Background(), "conv-1"))
	history, err = o.History(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRunTurn_AcceptedTurnAuditsTheProducingSQL(t *testing.T) {
	planner := &scriptedModel{responses: []string{intentRevenueByRegion, specRevenueByRegion, verdictAccept}}
	narrator := &scriptedModel{responses: []string{"North leads with 550 in total revenue."}}
	o, _ := newTestOrchestrator(t, planner, narrator)

	result, err := o.RunTurn(context.Background(), model.TurnInput{
		ConversationID: "conv-2",
		FileID:         "sales",
		Query:          "total revenue by region",
	})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeAnswered, result.Outcome)
	assert.Equal(t, model.QueryTypeQA, result.QueryType)
	assert.Equal(t, "North leads with 550 in total revenue.", result.Narrative)

	require.NotNil(t, result.Query)
	assert.Contains(t, result.Query.SQL, "GROUP BY region")
	assert.Equal(t, []string{result.Query.SQL}, result.Query.Attempts)
	assert.Equal(t, 3, result.Query.RowCount)
	assert.False(t, result.Query.Truncated)

	require.NotNil(t, result.Results)
	assert.Equal(t, 3, result.Results.Count)
	assert.Equal(t, "North", result.Results.Rows[0]["region"])
	assert.InDelta(t, 550.0, result.Results.Rows[0]["revenue"], 0.001)

	require.NotEmpty(t, result.Visualizations)
	assert.Equal(t, "bar", result.Visualizations[0].Type)
	assert.Equal(t, "region", result.Visualizations[0].XAxis)
	assert.Equal(t, "revenue", result.Visualizations[0].YAxis)

	// classify, synthesize, validate
	assert.Equal(t, 3, planner.calls)
}

func TestRunTurn_UnknownColumnIsSandboxedAndRetried(t *testing.T) {
	planner := &scriptedModel{responses: []string{
		intentRevenueByRegion,
		specUnknownColumn,
		specRevenueByRegion,
		verdictAccept,
	}}
	narrator := &scriptedModel{responses: []string{"North leads after the correction."}}
	o, memRepo := newTestOrchestrator(t, planner, narrator)

	result, err := o.RunTurn(context.Background(), model.TurnInput{
		ConversationID: "conv-3",
		FileID:         "sales",
		Query:          "total revenue by region",
	})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeAnswered, result.Outcome)
	require.NotNil(t, result.Query)
	require.Len(t, result.Query.Attempts, 2)
	assert.Contains(t, result.Query.Attempts[0], "profit_margin")
	assert.Contains(t, result.Query.SQL, "GROUP BY region")
	assert.Equal(t, result.Query.Attempts[1], result.Query.SQL)

	n, err := memRepo.TurnCount(context.Background(), "conv-3")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunTurn_RetryExhaustionRejectsWithNarrative(t *testing.T) {
	planner := &scriptedModel{responses: []string{
		intentRevenueByRegion,
		specUnknownColumn,
		specUnknownColumn,
		specUnknownColumn,
	}}
	narrator := &scriptedModel{}
	o, memRepo := newTestOrchestrator(t, planner, narrator)

	result, err := o.RunTurn(context.Background(), model.TurnInput{
		ConversationID: "conv-4",
		FileID:         "sales",
		Query:          "what is the profit margin by region",
	})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeRejected, result.Outcome)
	assert.NotEmpty(t, result.Narrative)
	assert.Contains(t, result.Narrative, "rephras")

	// the audit trail survives rejection
	require.NotNil(t, result.Query)
	assert.Len(t, result.Query.Attempts, 3)
	assert.Nil(t, result.Results)

	// no narrator call happened and still exactly one history append
	assert.Equal(t, 0, narrator.calls)
	n, err := memRepo.TurnCount(context.Background(), "conv-4")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunTurn_EmptyResultIsAnAcceptedAnswer(t *testing.T) {
	planner := &scriptedModel{responses: []string{intentRevenueByRegion, specNoMatches}}
	narrator := &scriptedModel{}
	o, _ := newTestOrchestrator(t, planner, narrator)

	result, err := o.RunTurn(context.Background(), model.TurnInput{
		ConversationID: "conv-5",
		FileID:         "sales",
		Query:          "regions with revenue above 100000",
	})
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeAnswered, result.Outcome)
	require.NotNil(t, result.Results)
	assert.Equal(t, 0, result.Results.Count)
	assert.Contains(t, result.Narrative, "no rows matched")
	assert.Empty(t, result.Visualizations)

	// empty results are accepted structurally, no validation model pass
	assert.Equal(t, 2, planner.calls)
	assert.Equal(t, 0, narrator.calls)
}

func TestRunTurn_UnboundDataset(t *testing.T) {
	o, _ := newTestOrchestrator(t, &scriptedModel{}, &scriptedModel{})

	_, err := o.RunTurn(context.Background(), model.TurnInput{
		ConversationID: "conv-6",
		FileID:         "nope",
		Query:          "total revenue",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrDatasetNotBound)
}

func TestRunTurn_EmptyQuery(t *testing.T) {
	o, _ := newTestOrchestrator(t, &scriptedModel{}, &scriptedModel{})

	_, err := o.RunTurn(context.Background(), model.TurnInput{
		ConversationID: "conv-7",
		FileID:         "sales",
		Query:          "   ",
	})
	require.Error(t, err)

	var appErr *errx.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
}

func TestRunTurn_GeneratesConversationID(t *testing.T) {
	planner := &scriptedModel{responses: []string{intentConversational}}
	narrator := &scriptedModel{responses: []string{"Hello!"}}
	o, _ := newTestOrchestrator(t, planner, narrator)

	result, err := o.RunTurn(context.Background(), model.TurnInput{
		FileID: "sales",
		Query:  "hi",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.ConversationID)
	assert.Len(t, result.ConversationID, 36)
}

func TestRunTurn_SerializesTurnsWithinAConversation(t *testing.T) {
	const turns = 6

	planner := &scriptedModel{}
	narrator := &scriptedModel{}
	for i := 0; i < turns; i++ {
		planner.responses = append(planner.responses, intentConversational)
		narrator.responses = append(narrator.responses, "Sure, happy to help.")
	}
	o, memRepo := newTestOrchestrator(t, planner, narrator)

	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.RunTurn(context.Background(), model.TurnInput{
				ConversationID: "conv-parallel",
				FileID:         "sales",
				Query:          "hello",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := memRepo.TurnCount(context.Background(), "conv-parallel")
	require.NoError(t, err)
	assert.Equal(t, turns, n)

	// serialized turns never interleave user/assistant pairs
	history, err := memRepo.LoadHistory(context.Background(), "conv-parallel")
	require.NoError(t, err)
	require.Len(t, history.Messages, turns*2)
	for i, msg := range history.Messages {
		if i%2 == 0 {
			assert.Equal(t, model.RoleUser, msg.Role)
		} else {
			assert.Equal(t, model.RoleAssistant, msg.Role)
		}
	}
}
