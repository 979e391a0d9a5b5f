// Package parsers extracts structured agent outputs from raw model text.
// Model output is untrusted input: it may be wrapped in code fences, carry
// prose around the JSON, or be malformed entirely. Every parser here degrades
// to a safe default instead of failing the turn.
package parsers

import (
	"encoding/json"
	"strings"

	"github.com/insight-core/server/internal/agent/model"
	logx "github.com/insight-core/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024
	maxErrSnippet = 200
)

// ParseIntent reads the classifier's JSON output. Malformed or unparseable
// output degrades to an ambiguous intent, which the orchestrator routes to
// synthesis with an empty column hint.
func ParseIntent(content string) model.Intent {
	fallback := model.Intent{Kind: model.IntentAmbiguous, QueryType: model.QueryTypeQA}

	raw, ok := extractJSON(content)
	if !ok {
		logx.Warn().Str("component", "intent_parser").Str("snippet", safeSnippet(content)).Msg("no json object in classifier output")
		return fallback
	}

	var out struct {
		Kind              string   `json:"kind"`
		QueryType         string   `json:"query_type"`
		Goal              string   `json:"goal"`
		ReferencedColumns []string `json:"referenced_columns"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		logx.Warn().Err(err).Str("component", "intent_parser").Str("snippet", safeSnippet(raw)).Msg("malformed classifier json")
		return fallback
	}

	intent := model.Intent{
		Goal:              strings.TrimSpace(out.Goal),
		ReferencedColumns: cleanColumns(out.ReferencedColumns),
	}

	switch model.IntentKind(strings.ToLower(strings.TrimSpace(out.Kind))) {
	case model.IntentConversational:
		intent.Kind = model.IntentConversational
	case model.IntentDataQuery:
		intent.Kind = model.IntentDataQuery
	default:
		intent.Kind = model.IntentAmbiguous
	}

	switch model.QueryType(strings.ToLower(strings.TrimSpace(out.QueryType))) {
	case model.QueryTypeSummarization:
		intent.QueryType = model.QueryTypeSummarization
	case model.QueryTypeDashboard:
		intent.QueryType = model.QueryTypeDashboard
	default:
		intent.QueryType = model.QueryTypeQA
	}

	return intent
}

// ParseQuerySpec reads the synthesis agent's output. The expected shape is a
// JSON object with sql, target_columns and chart_intent, but models sometimes
// answer with a bare fenced SQL statement; that is accepted as a spec with no
// column expectations.
func ParseQuerySpec(content string) (*model.QuerySpec, bool) {
	if raw, ok := extractJSON(content); ok {
		var out struct {
			SQL           string   `json:"sql"`
			TargetColumns []string `json:"target_columns"`
			ChartIntent   string   `json:"chart_intent"`
		}
		if err := json.Unmarshal([]byte(raw), &out); err == nil && strings.TrimSpace(out.SQL) != "" {
			return &model.QuerySpec{
				SQL:           stripSQLFences(out.SQL),
				TargetColumns: cleanColumns(out.TargetColumns),
				ChartIntent:   strings.ToLower(strings.TrimSpace(out.ChartIntent)),
			}, true
		}
	}

	sql := stripSQLFences(content)
	if looksLikeSQL(sql) {
		return &model.QuerySpec{SQL: sql}, true
	}

	logx.Warn().Str("component", "spec_parser").Str("snippet", safeSnippet(content)).Msg("no sql in synthesis output")
	return nil, false
}

// ParseVerdict reads the validation agent's sanity-check output. An
// unparseable verdict degrades to accept: the structural checks already
// passed by the time the model is consulted, and a broken reviewer must not
// discard a good result.
func ParseVerdict(content string) model.Verdict {
	raw, ok := extractJSON(content)
	if !ok {
		logx.Warn().Str("component", "verdict_parser").Str("snippet", safeSnippet(content)).Msg("no json object in validation output")
		return model.Verdict{Decision: model.DecisionAccept}
	}

	var out struct {
		Decision string   `json:"decision"`
		Valid    *bool    `json:"valid"`
		Reason   string   `json:"reason"`
		Issues   []string `json:"issues"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		logx.Warn().Err(err).Str("component", "verdict_parser").Str("snippet", safeSnippet(raw)).Msg("malformed validation json")
		return model.Verdict{Decision: model.DecisionAccept}
	}

	reason := strings.TrimSpace(out.Reason)
	if reason == "" && len(out.Issues) > 0 {
		reason = strings.Join(out.Issues, "; ")
	}

	switch model.Decision(strings.ToLower(strings.TrimSpace(out.Decision))) {
	case model.DecisionRetry:
		return model.Verdict{Decision: model.DecisionRetry, Reason: reason}
	case model.DecisionReject:
		return model.Verdict{Decision: model.DecisionReject, Reason: reason}
	case model.DecisionAccept:
		return model.Verdict{Decision: model.DecisionAccept}
	}

	// valid:false with no explicit decision means try again with the issues
	if out.Valid != nil && !*out.Valid {
		return model.Verdict{Decision: model.DecisionRetry, Reason: reason}
	}
	return model.Verdict{Decision: model.DecisionAccept}
}

// extractJSON returns the outermost JSON object embedded in content, stripping
// code fences and surrounding prose.
func extractJSON(content string) (string, bool) {
	if len(content) > maxContentLen {
		content = content[:maxContentLen]
	}
	content = stripFences(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

// stripFences removes a surrounding markdown code fence of any language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// drop the language tag line (json, sql, ...)
		first := strings.TrimSpace(s[:idx])
		if len(first) <= 10 && !strings.ContainsAny(first, "{}(") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func stripSQLFences(s string) string {
	s = stripFences(s)
	s = strings.TrimSpace(s)
	return strings.TrimSuffix(s, ";")
}

func looksLikeSQL(s string) bool {
	head := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(head, "select") || strings.HasPrefix(head, "with")
}

func cleanColumns(cols []string) []string {
	var out []string
	for _, c := range cols {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
