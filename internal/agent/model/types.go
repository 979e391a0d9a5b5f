package model

import (
	"time"

	"github.com/insight-core/server/internal/dataset"
)

// IntentKind is the top-level classification of a user message.
type IntentKind string

const (
	IntentConversational IntentKind = "conversational"
	IntentDataQuery      IntentKind = "data_query"
	IntentAmbiguous      IntentKind = "ambiguous"
)

// QueryType refines data queries the way the pipeline routes them.
type QueryType string

const (
	QueryTypeQA            QueryType = "qa"
	QueryTypeSummarization QueryType = "summarization"
	QueryTypeDashboard     QueryType = "dashboard"
)

// Intent is the classifier's output for one user message.
type Intent struct {
	Kind              IntentKind `json:"kind"`
	QueryType         QueryType  `json:"query_type,omitempty"`
	Goal              string     `json:"goal,omitempty"`
	ReferencedColumns []string   `json:"referenced_columns,omitempty"`
}

// IsDataQuery reports whether the orchestrator should run the synthesis path.
// Ambiguous messages are treated as data queries with an empty column hint.
func (i Intent) IsDataQuery() bool {
	return i.Kind == IntentDataQuery || i.Kind == IntentAmbiguous
}

// QuerySpec is the synthesis agent's output: the candidate SQL plus the
// columns the answer is expected to contain and an optional chart intent.
type QuerySpec struct {
	SQL           string   `json:"sql"`
	TargetColumns []string `json:"target_columns"`
	ChartIntent   string   `json:"chart_intent,omitempty"`
}

// Decision is the validation agent's routing decision.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionRetry  Decision = "retry"
	DecisionReject Decision = "reject"
)

// Verdict carries the validation decision and, for retry/reject, the reason.
type Verdict struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
}

// ChartSpec is a declarative chart description for the client to render.
// Data rows are already shaped for plotting; the core never renders anything.
type ChartSpec struct {
	Type   string           `json:"type"` // bar, line, pie, area, scatter, table
	Title  string           `json:"title"`
	Data   []map[string]any `json:"data"`
	XAxis  string           `json:"x_axis,omitempty"`
	YAxis  string           `json:"y_axis,omitempty"`
	Colors []string         `json:"colors,omitempty"`
	Height int              `json:"height,omitempty"`
}

// KPICard is a single headline metric for the client.
type KPICard struct {
	Title       string   `json:"title"`
	Value       any      `json:"value"`
	Unit        string   `json:"unit,omitempty"`
	Change      *float64 `json:"change,omitempty"`
	ChangeLabel string   `json:"change_label,omitempty"`
	Trend       string   `json:"trend,omitempty"` // up, down, neutral
}

// TurnInput is one user message submitted to the orchestrator.
type TurnInput struct {
	ConversationID string `json:"conversation_id"`
	FileID         string `json:"file_id"`
	Query          string `json:"query"`
}

// QueryAudit exposes the SQL that produced an accepted result, plus every
// attempt made during the turn when retries happened.
type QueryAudit struct {
	SQL       string   `json:"sql"`
	Attempts  []string `json:"attempts,omitempty"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated,omitempty"`
}

// TurnOutcome describes how a turn terminated.
type TurnOutcome string

const (
	OutcomeAnswered       TurnOutcome = "answered"
	OutcomeConversational TurnOutcome = "conversational"
	OutcomeRejected       TurnOutcome = "rejected"
)

// TurnResult is the fully resolved response for one user message.
type TurnResult struct {
	ConversationID string          `json:"conversation_id"`
	Narrative      string          `json:"narrative"`
	Outcome        TurnOutcome     `json:"outcome"`
	QueryType      QueryType       `json:"query_type,omitempty"`
	Query          *QueryAudit     `json:"query,omitempty"`
	Results        *dataset.Result `json:"results,omitempty"`
	Visualizations []ChartSpec     `json:"visualizations,omitempty"`
	KPIs           []KPICard       `json:"kpis,omitempty"`
	ProcessingTime time.Duration   `json:"processing_time"`
	CostUSD        float64         `json:"cost_usd,omitempty"`
}

// TurnState is the per-turn record threaded through the agent graph. It is
// created by the orchestrator for each user message, mutated by nodes while
// the turn is in flight, and becomes immutable once a terminal state is
// reached.
type TurnState struct {
	ConversationID string
	UserQuery      string
	Dataset        *dataset.Handle
	History        []TurnMessage

	Intent     *Intent
	Spec       *QuerySpec
	Attempts   []string
	Result     *dataset.Result
	ExecError  *dataset.ExecutionError
	Verdict    *Verdict
	RetryCount int
	Feedback   []string

	Narrative string
	Charts    []ChartSpec
	KPIs      []KPICard

	// Accumulated LLM cost (USD) across model invocations for this turn.
	TotalCostUSD float64
}

// AddFeedback appends a rejection reason to the ordered feedback list that
// steers subsequent synthesis attempts.
func (s *TurnState) AddFeedback(reason string) {
	if reason == "" {
		return
	}
	s.Feedback = append(s.Feedback, reason)
}
