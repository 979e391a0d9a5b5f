// Package prompts renders the message lists for each agent via the eino
// prompt component, so prompt callbacks fire for every render. Templates are
// embedded; render functions only supply variables.
package prompts

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/insight-core/server/internal/dataset"
)

//go:embed template/classifier_prompt.txt
var classifierSystem string

//go:embed template/classifier_user.txt
var classifierUser string

//go:embed template/synthesis_prompt.txt
var synthesisSystem string

//go:embed template/synthesis_user.txt
var synthesisUser string

//go:embed template/validation_prompt.txt
var validationSystem string

//go:embed template/validation_user.txt
var validationUser string

//go:embed template/insight_prompt.txt
var insightSystem string

//go:embed template/insight_user.txt
var insightUser string

//go:embed template/reply_prompt.txt
var replySystem string

//go:embed template/summary_prompt.txt
var summarySystem string

//go:embed template/summary_user.txt
var summaryUser string

// maxSampleResults bounds how many result rows are serialized into prompts.
const maxSampleResults = 10

// RenderClassifier builds the classifier messages: system prompt, recent
// conversation turns, then the message to classify with the dataset schema.
func RenderClassifier(ctx context.Context, h *dataset.Handle, history []*schema.Message, query string) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(classifierSystem),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage(classifierUser),
	)
	return render(ctx, "classifier", tpl, map[string]any{
		"history": history,
		"Query":   query,
		"Schema":  h.SchemaDescription(),
	})
}

// RenderSynthesis builds the SQL generation messages. Feedback, when present,
// is the ordered list of reasons earlier attempts were rejected.
func RenderSynthesis(ctx context.Context, h *dataset.Handle, query, goal string, feedback []string) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(synthesisSystem),
		schema.UserMessage(synthesisUser),
	)
	return render(ctx, "synthesis", tpl, map[string]any{
		"Query":              query,
		"Goal":               goal,
		"TableName":          h.TableName,
		"Schema":             h.SchemaDescription(),
		"DateColumns":        strings.Join(h.DateColumns, ", "),
		"CategoricalColumns": strings.Join(h.CategoricalColumns, ", "),
		"NumericalColumns":   strings.Join(h.NumericalColumns, ", "),
		"Feedback":           numberedList(feedback),
	})
}

// RenderValidation builds the result sanity-check messages.
func RenderValidation(ctx context.Context, query, sql string, result *dataset.Result) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(validationSystem),
		schema.UserMessage(validationUser),
	)
	return render(ctx, "validation", tpl, map[string]any{
		"Query":  query,
		"SQL":    sql,
		"Count":  result.Count,
		"Sample": sampleJSON(result),
	})
}

// RenderInsight builds the narrative generation messages.
func RenderInsight(ctx context.Context, h *dataset.Handle, query string, result *dataset.Result) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(insightSystem),
		schema.UserMessage(insightUser),
	)
	return render(ctx, "insight", tpl, map[string]any{
		"Query":     query,
		"Sample":    sampleJSON(result),
		"Count":     result.Count,
		"Truncated": result.Truncated,
		"Filename":  h.Filename,
		"RowCount":  h.RowCount,
	})
}

// RenderReply builds the conversational reply messages: a dataset-aware system
// prompt, recent turns, then the user message verbatim.
func RenderReply(ctx context.Context, h *dataset.Handle, history []*schema.Message, query string) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(replySystem),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{{.Query}}"),
	)
	return render(ctx, "reply", tpl, map[string]any{
		"history":  history,
		"Query":    query,
		"Filename": h.Filename,
		"RowCount": h.RowCount,
	})
}

// RenderSummary builds the dataset summarization messages from the profile
// alone; summarization never executes SQL.
func RenderSummary(ctx context.Context, h *dataset.Handle) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(summarySystem),
		schema.UserMessage(summaryUser),
	)
	return render(ctx, "summary", tpl, map[string]any{
		"Filename": h.Filename,
		"RowCount": h.RowCount,
		"Schema":   h.SchemaDescription(),
		"Stats":    statsJSON(h),
	})
}

func render(ctx context.Context, name string, tpl prompt.ChatTemplate, vars map[string]any) ([]*schema.Message, error) {
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%s prompt render: empty result", name)
	}
	return msgs, nil
}

// sampleJSON serializes up to maxSampleResults rows for prompt inclusion.
func sampleJSON(result *dataset.Result) string {
	rows := result.Rows
	if len(rows) > maxSampleResults {
		rows = rows[:maxSampleResults]
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func statsJSON(h *dataset.Handle) string {
	if len(h.SummaryStats) == 0 {
		return "{}"
	}
	b, err := json.Marshal(h.SummaryStats)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func numberedList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, it)
	}
	return strings.TrimRight(b.String(), "\n")
}
