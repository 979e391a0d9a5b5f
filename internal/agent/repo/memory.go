package repo

import (
	"context"
	"sync"

	"github.com/insight-core/server/internal/agent/model"
)

// MemoryConversationRepository is a process-local ConversationRepository.
// Used by tests and by the demo harness when no Redis is configured.
type MemoryConversationRepository struct {
	mu    sync.RWMutex
	turns map[string][]model.TurnMessage
}

func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{turns: make(map[string][]model.TurnMessage)}
}

func (r *MemoryConversationRepository) AppendTurn(_ context.Context, conversationID string, user, assistant model.TurnMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns[conversationID] = append(r.turns[conversationID], user, assistant)
	return nil
}

func (r *MemoryConversationRepository) LoadHistory(_ context.Context, conversationID string) (*model.ConversationHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.turns[conversationID]
	msgs := make([]model.TurnMessage, len(stored))
	copy(msgs, stored)

	return &model.ConversationHistory{
		ConversationID: conversationID,
		Messages:       msgs,
		TurnCount:      len(msgs) / 2,
	}, nil
}

func (r *MemoryConversationRepository) ClearHistory(_ context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.turns, conversationID)
	return nil
}

func (r *MemoryConversationRepository) TurnCount(_ context.Context, conversationID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.turns[conversationID]) / 2, nil
}
