// Package conversations adapts stored conversation history into the message
// context the agents see. Trimming happens here so prompt size stays bounded
// no matter how long a conversation runs.
package conversations

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/insight-core/server/internal/agent/model"
)

type Manager struct {
	repo     model.ConversationRepository
	maxTurns int
}

func NewManager(repo model.ConversationRepository, cfg model.ConversationConfig) *Manager {
	return &Manager{repo: repo, maxTurns: cfg.MaxTurns}
}

// Load returns the stored turn messages for a conversation, trimmed to the
// most recent maxTurns turns. A turn is a user/assistant message pair.
func (m *Manager) Load(ctx context.Context, conversationID string) ([]model.TurnMessage, error) {
	history, err := m.repo.LoadHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return trimTurns(history.Messages, m.maxTurns), nil
}

// Save appends the completed turn. Called exactly once per turn, after the
// turn reaches a terminal state.
func (m *Manager) Save(ctx context.Context, conversationID string, user, assistant model.TurnMessage) error {
	return m.repo.AppendTurn(ctx, conversationID, user, assistant)
}

func (m *Manager) Clear(ctx context.Context, conversationID string) error {
	return m.repo.ClearHistory(ctx, conversationID)
}

// AsSchemaMessages converts stored turn messages into eino chat messages for
// prompt placeholders.
func AsSchemaMessages(messages []model.TurnMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case model.RoleUser:
			out = append(out, schema.UserMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return out
}

// trimTurns keeps the last maxTurns user/assistant pairs. The boundary is
// aligned to a turn so the context never starts with a dangling reply.
func trimTurns(messages []model.TurnMessage, maxTurns int) []model.TurnMessage {
	if maxTurns <= 0 {
		return nil
	}
	keep := maxTurns * 2
	if len(messages) <= keep {
		result := make([]model.TurnMessage, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-keep:]
	if source[0].Role == model.RoleAssistant {
		source = source[1:]
	}
	result := make([]model.TurnMessage, len(source))
	copy(result, source)
	return result
}
