package model

// ================ Config ================

// PlannerModelConfig configures the low-temperature model used for the
// classifier, synthesis, and validation agents (structured JSON output).
type PlannerModelConfig struct {
	Model       string  `envconfig:"PLANNER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"PLANNER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"PLANNER_TEMPERATURE" default:"0.1"`
}

// NarratorModelConfig configures the model used for conversational replies
// and insight narratives.
type NarratorModelConfig struct {
	Model       string  `envconfig:"NARRATOR_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"NARRATOR_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"NARRATOR_TEMPERATURE" default:"0.3"`
}

// ConversationConfig bounds conversation history storage and prompting.
type ConversationConfig struct {
	TTL      string `envconfig:"CONVERSATION_TTL" default:"24h"`
	MaxTurns int    `envconfig:"CONVERSATION_MAX_TURNS" default:"10"`
}

// WorkflowConfig holds the per-turn budgets of the orchestrator.
type WorkflowConfig struct {
	MaxRetries    int    `envconfig:"WORKFLOW_MAX_RETRIES" default:"2"`
	TurnTimeout   string `envconfig:"WORKFLOW_TURN_TIMEOUT" default:"90s"`
	QueryTimeout  string `envconfig:"WORKFLOW_QUERY_TIMEOUT" default:"15s"`
	MaxResultRows int    `envconfig:"WORKFLOW_MAX_RESULT_ROWS" default:"10000"`
}
