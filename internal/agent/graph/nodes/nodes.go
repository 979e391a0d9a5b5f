package nodes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/insight-core/server/internal/agent/charts"
	"github.com/insight-core/server/internal/agent/dashboard"
	"github.com/insight-core/server/internal/agent/graph/conversations"
	"github.com/insight-core/server/internal/agent/graph/parsers"
	"github.com/insight-core/server/internal/agent/graph/prompts"
	"github.com/insight-core/server/internal/agent/llm"
	"github.com/insight-core/server/internal/agent/model"
	"github.com/insight-core/server/internal/agent/workflow"
	"github.com/insight-core/server/internal/dataset"
	logx "github.com/insight-core/server/pkg/logger"
)

// Node keys of the turn graph.
const (
	NodeClassifier  = "Classifier"
	NodeReply       = "Reply"
	NodeSynthesizer = "Synthesizer"
	NodeExecutor    = "QueryExecutor"
	NodeValidator   = "Validator"
	NodeInsight     = "InsightComposer"
)

// TraceFunc is invoked after each agent node with its logical input, output
// and wall-clock duration.
type TraceFunc func(name string, input, output any, elapsed time.Duration)

// Deps carries everything the agent nodes need. Models are held behind the
// eino BaseChatModel contract so tests can substitute scripted fakes.
type Deps struct {
	Planner           einomodel.BaseChatModel
	Narrator          einomodel.BaseChatModel
	PlannerModelName  string
	NarratorModelName string
	Executor          *dataset.Executor
	MaxRetries        int
	OnStep            TraceFunc
}

func (d *Deps) step(name string, input, output any, elapsed time.Duration) {
	if d.OnStep != nil {
		d.OnStep(name, input, output, elapsed)
	}
}

// addCost accumulates the USD cost of a model call into the turn state.
func (d *Deps) addCost(s *model.TurnState, modelName string, out *schema.Message) {
	if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	usage := out.ResponseMeta.Usage
	_, _, total := model.ComputeCost(usage, model.ResolvePricing(modelName))
	s.TotalCostUSD += total
	logx.Debug().
		Str("conversation_id", s.ConversationID).
		Str("model", modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Float64("cost_usd", total).
		Msg("LLM usage")
}

// NewClassifierNode classifies the user message. A dead provider or malformed
// output degrades to ambiguous so the turn keeps moving.
func NewClassifierNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.TurnState) (*model.TurnState, error) {
		return classifyTurn(ctx, d, s)
	})
}

func classifyTurn(ctx context.Context, d *Deps, s *model.TurnState) (*model.TurnState, error) {
	start := time.Now()

	msgs, err := prompts.RenderClassifier(ctx, s.Dataset, conversations.AsSchemaMessages(s.History), s.UserQuery)
	if err != nil {
		return nil, err
	}

	intent := model.Intent{Kind: model.IntentAmbiguous, QueryType: model.QueryTypeQA}
	out, err := llm.Generate(ctx, d.Planner, msgs)
	if err != nil {
		logx.Warn().Err(err).Str("conversation_id", s.ConversationID).
			Msg("classifier unavailable, treating message as ambiguous")
	} else {
		d.addCost(s, d.PlannerModelName, out)
		intent = parsers.ParseIntent(out.Content)
	}
	s.Intent = &intent

	d.step(NodeClassifier, s.UserQuery, s.Intent, time.Since(start))
	return s, nil
}

// NewIntentCondition routes a classified turn: conversational messages and
// dataset summarization requests go to the reply node, everything else to SQL
// synthesis. Routing delegates to the workflow transition table.
func NewIntentCondition() func(context.Context, *model.TurnState) (string, error) {
	return func(ctx context.Context, s *model.TurnState) (string, error) {
		if s.Intent == nil {
			return "", fmt.Errorf("classifier produced no intent")
		}
		next, err := workflow.Next(workflow.StateClassifying, workflow.EventForIntent(s.Intent.Kind))
		if err != nil {
			return "", err
		}
		if next == workflow.StateConversationalReply {
			return NodeReply, nil
		}
		// summarization answers from the dataset profile, never from SQL
		if s.Intent.QueryType == model.QueryTypeSummarization {
			return NodeReply, nil
		}
		return NodeSynthesizer, nil
	}
}

// NewReplyNode composes conversational replies and dataset summaries.
func NewReplyNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.TurnState) (*model.TurnState, error) {
		return composeReply(ctx, d, s)
	})
}

func composeReply(ctx context.Context, d *Deps, s *model.TurnState) (*model.TurnState, error) {
	start := time.Now()

	summarizing := s.Intent != nil && s.Intent.IsDataQuery() && s.Intent.QueryType == model.QueryTypeSummarization

	var msgs []*schema.Message
	var err error
	if summarizing {
		msgs, err = prompts.RenderSummary(ctx, s.Dataset)
	} else {
		msgs, err = prompts.RenderReply(ctx, s.Dataset, conversations.AsSchemaMessages(s.History), s.UserQuery)
	}
	if err != nil {
		return nil, err
	}

	out, err := llm.Generate(ctx, d.Narrator, msgs)
	if err != nil || strings.TrimSpace(out.Content) == "" {
		if err != nil {
			logx.Warn().Err(err).Str("conversation_id", s.ConversationID).Msg("narrator unavailable, using fallback reply")
		}
		s.Narrative = fallbackReply(s, summarizing)
	} else {
		d.addCost(s, d.NarratorModelName, out)
		s.Narrative = strings.TrimSpace(out.Content)
	}

	d.step(NodeReply, s.UserQuery, s.Narrative, time.Since(start))
	return s, nil
}

// NewSynthesizerNode generates candidate SQL. Accumulated feedback from
// rejected attempts is injected into the prompt; every produced statement is
// recorded in the attempts audit before execution.
func NewSynthesizerNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.TurnState) (*model.TurnState, error) {
		return synthesizeTurn(ctx, d, s)
	})
}

func synthesizeTurn(ctx context.Context, d *Deps, s *model.TurnState) (*model.TurnState, error) {
	start := time.Now()

	goal := ""
	if s.Intent != nil {
		goal = s.Intent.Goal
	}
	msgs, err := prompts.RenderSynthesis(ctx, s.Dataset, s.UserQuery, goal, s.Feedback)
	if err != nil {
		return nil, err
	}

	s.Spec = nil
	out, err := llm.Generate(ctx, d.Planner, msgs)
	if err != nil {
		logx.Warn().Err(err).Str("conversation_id", s.ConversationID).Msg("synthesis model unavailable")
	} else {
		d.addCost(s, d.PlannerModelName, out)
		if spec, ok := parsers.ParseQuerySpec(out.Content); ok {
			s.Spec = spec
			s.Attempts = append(s.Attempts, spec.SQL)
		}
	}

	d.step(NodeSynthesizer, s.Feedback, s.Spec, time.Since(start))
	return s, nil
}

// NewExecutorNode runs the candidate SQL through the sandboxed executor.
// Failures become classified execution errors for the validator, never node
// errors.
func NewExecutorNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.TurnState) (*model.TurnState, error) {
		return executeTurn(ctx, d, s)
	})
}

func executeTurn(ctx context.Context, d *Deps, s *model.TurnState) (*model.TurnState, error) {
	start := time.Now()

	s.Result = nil
	s.ExecError = nil
	if s.Spec == nil || strings.TrimSpace(s.Spec.SQL) == "" {
		s.ExecError = &dataset.ExecutionError{Kind: dataset.ErrSyntax, Detail: "no sql statement was produced"}
	} else {
		s.Result, s.ExecError = d.Executor.Execute(ctx, s.Dataset, s.Spec.SQL)
	}

	var out any = s.Result
	if s.ExecError != nil {
		out = s.ExecError
	}
	d.step(NodeExecutor, s.Spec, out, time.Since(start))
	return s, nil
}

// NewValidatorNode decides accept/retry/reject. Deterministic checks run
// first; only a structurally sound, non-empty result is shown to the model
// for a semantic sanity pass. The retry budget is applied last.
func NewValidatorNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.TurnState) (*model.TurnState, error) {
		return validateTurn(ctx, d, s)
	})
}

func validateTurn(ctx context.Context, d *Deps, s *model.TurnState) (*model.TurnState, error) {
	start := time.Now()

	v, needsModel := structuralVerdict(s)
	if needsModel {
		msgs, err := prompts.RenderValidation(ctx, s.UserQuery, s.Spec.SQL, s.Result)
		if err != nil {
			return nil, err
		}
		out, err := llm.Generate(ctx, d.Planner, msgs)
		if err != nil {
			// a broken reviewer must not discard a structurally sound result
			logx.Warn().Err(err).Str("conversation_id", s.ConversationID).Msg("validation model unavailable, accepting result")
			v = model.Verdict{Decision: model.DecisionAccept}
		} else {
			d.addCost(s, d.PlannerModelName, out)
			v = parsers.ParseVerdict(out.Content)
		}
	}

	v = workflow.ApplyRetryBudget(v, s.RetryCount, d.MaxRetries)
	if v.Decision == model.DecisionRetry {
		s.RetryCount++
		s.AddFeedback(v.Reason)
	}
	s.Verdict = &v

	d.step(NodeValidator, s.Result, s.Verdict, time.Since(start))
	return s, nil
}

// structuralVerdict applies the deterministic validation policy. The second
// return reports whether the model sanity pass should still run.
func structuralVerdict(s *model.TurnState) (model.Verdict, bool) {
	retry := func(reason string) (model.Verdict, bool) {
		return model.Verdict{Decision: model.DecisionRetry, Reason: reason}, false
	}

	if s.ExecError != nil {
		return retry(s.ExecError.Feedback())
	}
	if s.Result == nil {
		return retry("the query produced no result")
	}
	if s.Spec != nil {
		for _, col := range s.Spec.TargetColumns {
			if !s.Result.HasColumn(col) {
				return retry(fmt.Sprintf("result is missing expected column %q; select or alias it explicitly", col))
			}
		}
	}
	// an empty result is a valid answer: the filters matched nothing
	if s.Result.Count == 0 {
		return model.Verdict{Decision: model.DecisionAccept}, false
	}
	if s.Spec != nil {
		if reason, ok := charts.CheckShape(s.Spec.ChartIntent, s.Result); !ok {
			return retry(reason)
		}
	}
	return model.Verdict{}, true
}

// NewVerdictCondition routes on the validator's budget-applied verdict via the
// workflow transition table. Rejection ends the graph; the orchestrator
// composes the rejection narrative.
func NewVerdictCondition() func(context.Context, *model.TurnState) (string, error) {
	return func(ctx context.Context, s *model.TurnState) (string, error) {
		if s.Verdict == nil {
			return "", fmt.Errorf("validator produced no verdict")
		}
		next, err := workflow.Next(workflow.StateValidating, workflow.EventForVerdict(*s.Verdict))
		if err != nil {
			return "", err
		}
		switch next {
		case workflow.StateGeneratingInsights:
			return NodeInsight, nil
		case workflow.StateSynthesizing:
			logx.Debug().
				Str("conversation_id", s.ConversationID).
				Int("retry_count", s.RetryCount).
				Str("reason", s.Verdict.Reason).
				Msg("retrying query synthesis")
			return NodeSynthesizer, nil
		default:
			return compose.END, nil
		}
	}
}

// NewInsightNode turns an accepted result into the narrative plus chart and
// KPI specs. Chart shaping is deterministic; only the narrative comes from
// the model, with a deterministic fallback.
func NewInsightNode(d *Deps) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, s *model.TurnState) (*model.TurnState, error) {
		return composeInsight(ctx, d, s)
	})
}

func composeInsight(ctx context.Context, d *Deps, s *model.TurnState) (*model.TurnState, error) {
	start := time.Now()

	if s.Result == nil || s.Result.Count == 0 {
		s.Narrative = "The query ran successfully, but no rows matched your criteria. Try widening the filters or checking the spelling of filter values."
		d.step(NodeInsight, s.Result, s.Narrative, time.Since(start))
		return s, nil
	}

	msgs, err := prompts.RenderInsight(ctx, s.Dataset, s.UserQuery, s.Result)
	if err != nil {
		return nil, err
	}
	out, err := llm.Generate(ctx, d.Narrator, msgs)
	if err != nil || strings.TrimSpace(out.Content) == "" {
		if err != nil {
			logx.Warn().Err(err).Str("conversation_id", s.ConversationID).Msg("insight model unavailable, using fallback narrative")
		}
		s.Narrative = fallbackInsight(s.Result)
	} else {
		d.addCost(s, d.NarratorModelName, out)
		s.Narrative = strings.TrimSpace(out.Content)
	}

	chartIntent := ""
	if s.Spec != nil {
		chartIntent = s.Spec.ChartIntent
	}
	s.Charts = charts.Build(chartIntent, "", s.Result)
	s.KPIs = charts.BuildKPIs(s.Result)
	if s.Intent != nil && s.Intent.QueryType == model.QueryTypeDashboard {
		s.KPIs = append(s.KPIs, dashboard.ProfileKPIs(s.Dataset)...)
	}

	d.step(NodeInsight, s.Result, s.Narrative, time.Since(start))
	return s, nil
}

func fallbackReply(s *model.TurnState, summarizing bool) string {
	h := s.Dataset
	if summarizing {
		return fmt.Sprintf(
			"The dataset %s has %d rows across %d columns (%s). Ask a specific question to dig into any of them.",
			h.Filename, h.RowCount, len(h.Columns), strings.Join(firstN(h.ColumnNames(), 6), ", "))
	}
	return fmt.Sprintf(
		"I can help you explore %s. Try asking about columns like %s.",
		h.Filename, strings.Join(firstN(h.ColumnNames(), 4), ", "))
}

func fallbackInsight(result *dataset.Result) string {
	if result.Count == 1 {
		var parts []string
		row := result.Rows[0]
		for _, col := range result.Columns {
			parts = append(parts, fmt.Sprintf("%s = %v", col, row[col]))
		}
		return fmt.Sprintf("The query returned a single row: %s.", strings.Join(parts, ", "))
	}
	return fmt.Sprintf(
		"The query returned %d rows with columns %s. The table below has the full breakdown.",
		result.Count, strings.Join(result.Columns, ", "))
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
