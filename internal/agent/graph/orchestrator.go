package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"

	"github.com/insight-core/server/internal/agent/graph/conversations"
	"github.com/insight-core/server/internal/agent/graph/nodes"
	"github.com/insight-core/server/internal/agent/graph/observers"
	"github.com/insight-core/server/internal/agent/model"
	errx "github.com/insight-core/server/internal/core/error"
	"github.com/insight-core/server/internal/dataset"
	logx "github.com/insight-core/server/pkg/logger"
)

// Config holds everything needed to compose the orchestrator end-to-end with
// real Gemini models. Tests construct via NewOrchestratorWithDeps instead and
// inject scripted chat models.
type Config struct {
	APIKey  string
	BaseURL string

	PlannerModel  model.PlannerModelConfig
	NarratorModel model.NarratorModelConfig
	Conversation  model.ConversationConfig
	Workflow      model.WorkflowConfig

	ConversationRepo model.ConversationRepository
	Registry         dataset.Registry
	Executor         *dataset.Executor

	OnStep nodes.TraceFunc
}

// Orchestrator drives one turn at a time per conversation through the
// compiled agent graph and owns the turn-level side effects: dataset
// resolution, per-conversation serialization, the turn deadline, and the
// single history append after a terminal state.
type Orchestrator struct {
	runner      compose.Runnable[*model.TurnState, *model.TurnState]
	registry    dataset.Registry
	conv        *conversations.Manager
	turnTimeout time.Duration
	callbacks   einocb.Handler

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewOrchestrator builds the full pipeline with real chat models.
func NewOrchestrator(ctx context.Context, cfg Config) (*Orchestrator, error) {
	if cfg.ConversationRepo == nil {
		return nil, fmt.Errorf("conversation repo is nil")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("dataset registry is nil")
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		PlannerConfig:  &cfg.PlannerModel,
		NarratorConfig: &cfg.NarratorModel,
	})
	if err != nil {
		return nil, err
	}

	deps := &nodes.Deps{
		Planner:           cms.Planner,
		Narrator:          cms.Narrator,
		PlannerModelName:  cms.PlannerModelName,
		NarratorModelName: cms.NarratorModelName,
		Executor:          cfg.Executor,
		MaxRetries:        cfg.Workflow.MaxRetries,
		OnStep:            cfg.OnStep,
	}

	return NewOrchestratorWithDeps(ctx, deps, cfg.ConversationRepo, cfg.Conversation, cfg.Workflow, cfg.Registry)
}

// NewOrchestratorWithDeps builds the orchestrator over pre-built node
// dependencies.
func NewOrchestratorWithDeps(
	ctx context.Context,
	deps *nodes.Deps,
	repo model.ConversationRepository,
	convCfg model.ConversationConfig,
	wfCfg model.WorkflowConfig,
	registry dataset.Registry,
) (*Orchestrator, error) {
	if deps.OnStep == nil {
		deps.OnStep = logStep
	}

	runner, err := BuildTurnGraph(ctx, deps)
	if err != nil {
		return nil, err
	}

	turnTimeout, err := time.ParseDuration(wfCfg.TurnTimeout)
	if err != nil || turnTimeout <= 0 {
		turnTimeout = 90 * time.Second
	}

	return &Orchestrator{
		runner:      runner,
		registry:    registry,
		conv:        conversations.NewManager(repo, convCfg),
		turnTimeout: turnTimeout,
		callbacks:   observers.NewAllCallbacks(),
		locks:       make(map[string]*sync.Mutex),
	}, nil
}

// RunTurn processes one user message to completion and returns the resolved
// turn. Turns within one conversation are strictly serialized; turns across
// conversations run concurrently.
func (o *Orchestrator) RunTurn(ctx context.Context, input model.TurnInput) (*model.TurnResult, error) {
	start := time.Now()

	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, errx.New(errors.New("empty query"), http.StatusBadRequest, "query must not be empty")
	}

	conversationID := input.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	unlock := o.lockConversation(conversationID)
	defer unlock()

	handle, err := o.registry.Lookup(ctx, input.FileID)
	if err != nil {
		return nil, err
	}

	history, err := o.conv.Load(ctx, conversationID)
	if err != nil {
		// history is context, not ground truth: a degraded store must not
		// block the turn
		logx.Warn().Err(err).Str("conversation_id", conversationID).Msg("history unavailable, starting turn without context")
		history = nil
	}

	state := &model.TurnState{
		ConversationID: conversationID,
		UserQuery:      query,
		Dataset:        handle,
		History:        history,
	}

	tctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	out, runErr := o.runner.Invoke(tctx, state, compose.WithCallbacks(o.callbacks))
	if runErr != nil {
		logx.Error().Err(runErr).Str("conversation_id", conversationID).Msg("turn pipeline failed")
		out = state
		out.Narrative = faultNarrative(tctx, runErr)
		out.Verdict = &model.Verdict{Decision: model.DecisionReject, Reason: runErr.Error()}
	}

	result := assembleResult(out, start)

	// exactly one history append per turn, terminal state reached above;
	// the append must survive an expired turn deadline
	saveCtx := context.WithoutCancel(ctx)
	userMsg := model.TurnMessage{Role: model.RoleUser, Content: query, Timestamp: time.Now().UTC()}
	assistantMsg := model.TurnMessage{Role: model.RoleAssistant, Content: result.Narrative, Timestamp: time.Now().UTC()}
	if err := o.conv.Save(saveCtx, conversationID, userMsg, assistantMsg); err != nil {
		logx.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to append turn to history")
	}

	return result, nil
}

// History returns the stored conversation, trimmed to the prompting window.
func (o *Orchestrator) History(ctx context.Context, conversationID string) ([]model.TurnMessage, error) {
	return o.conv.Load(ctx, conversationID)
}

// ClearConversation drops a conversation's stored history.
func (o *Orchestrator) ClearConversation(ctx context.Context, conversationID string) error {
	return o.conv.Clear(ctx, conversationID)
}

func (o *Orchestrator) lockConversation(conversationID string) func() {
	o.mu.Lock()
	lock, ok := o.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[conversationID] = lock
	}
	o.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// assembleResult maps a terminal turn state onto the public result shape.
// Conversational turns and summaries carry no query or results; only an
// accepted data query exposes the audit, rows, charts and KPIs.
func assembleResult(s *model.TurnState, start time.Time) *model.TurnResult {
	result := &model.TurnResult{
		ConversationID: s.ConversationID,
		Narrative:      s.Narrative,
		ProcessingTime: time.Since(start),
		CostUSD:        s.TotalCostUSD,
	}
	if s.Intent != nil {
		result.QueryType = s.Intent.QueryType
	}

	switch {
	case s.Intent != nil && s.Intent.Kind == model.IntentConversational:
		result.Outcome = model.OutcomeConversational
		result.QueryType = ""

	case s.Intent != nil && s.Intent.QueryType == model.QueryTypeSummarization:
		result.Outcome = model.OutcomeAnswered

	case s.Verdict != nil && s.Verdict.Decision == model.DecisionAccept && s.Result != nil:
		result.Outcome = model.OutcomeAnswered
		result.Results = s.Result
		result.Query = &model.QueryAudit{
			SQL:       s.Result.SQL,
			Attempts:  s.Attempts,
			RowCount:  s.Result.Count,
			Truncated: s.Result.Truncated,
		}
		result.Visualizations = s.Charts
		result.KPIs = s.KPIs

	default:
		result.Outcome = model.OutcomeRejected
		if len(s.Attempts) > 0 {
			// keep the audit trail of what was tried even when nothing was accepted
			result.Query = &model.QueryAudit{Attempts: s.Attempts}
		}
		if result.Narrative == "" {
			reason := ""
			if s.Verdict != nil {
				reason = s.Verdict.Reason
			}
			result.Narrative = rejectNarrative(reason)
		}
	}

	return result
}

func rejectNarrative(reason string) string {
	msg := "I wasn't able to produce a reliable answer for that question."
	if reason != "" {
		msg += " " + strings.TrimRight(reason, ".") + "."
	}
	return msg + " Try rephrasing it, or ask about different columns."
}

func faultNarrative(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "That question took longer than I allow for a single turn. Try a narrower question."
	}
	return "Something went wrong while answering that. Please try again."
}

func logStep(name string, input, output any, elapsed time.Duration) {
	logx.Debug().
		Str("agent", name).
		Dur("elapsed", elapsed).
		Msg("agent step completed")
	_ = input
	_ = output
}
