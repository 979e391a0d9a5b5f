package model

import (
	"context"
	"time"
)

// Role of a stored conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TurnMessage is one stored conversation entry.
type TurnMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationHistory represents loaded conversation data with metadata.
type ConversationHistory struct {
	ConversationID string
	Messages       []TurnMessage
	TurnCount      int
}

// ConversationRepository persists per-conversation turn history. The
// orchestrator appends exactly once per completed turn: the user message and
// the assistant reply land together, after the turn reached a terminal state,
// so readers never observe a half-written turn.
type ConversationRepository interface {
	// AppendTurn atomically appends the user message and the assistant reply
	// for one completed turn.
	AppendTurn(ctx context.Context, conversationID string, user, assistant TurnMessage) error

	// LoadHistory retrieves the conversation history for a conversation.
	LoadHistory(ctx context.Context, conversationID string) (*ConversationHistory, error)

	// ClearHistory removes all conversation history for a conversation.
	ClearHistory(ctx context.Context, conversationID string) error

	// TurnCount returns the number of completed turns in the conversation.
	TurnCount(ctx context.Context, conversationID string) (int, error)
}
