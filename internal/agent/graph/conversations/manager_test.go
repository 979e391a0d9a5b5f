package conversations

import (
	"context"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insight-core/server/internal/agent/model"
	"github.com/insight-core/server/internal/agent/repo"
)

func turn(i int) (model.TurnMessage, model.TurnMessage) {
	return model.TurnMessage{Role: model.RoleUser, Content: fmt.Sprintf("question %d", i)},
		model.TurnMessage{Role: model.RoleAssistant, Content: fmt.Sprintf("answer %d", i)}
}

func TestManager_LoadTrimsToRecentTurns(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemoryConversationRepository()
	m := NewManager(r, model.ConversationConfig{MaxTurns: 2})

	for i := 1; i <= 4; i++ {
		u, a := turn(i)
		require.NoError(t, m.Save(ctx, "c1", u, a))
	}

	msgs, err := m.Load(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "question 3", msgs[0].Content)
	assert.Equal(t, "answer 4", msgs[3].Content)
}

func TestManager_Clear(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemoryConversationRepository()
	m := NewManager(r, model.ConversationConfig{MaxTurns: 10})

	u, a := turn(1)
	require.NoError(t, m.Save(ctx, "c1", u, a))
	require.NoError(t, m.Clear(ctx, "c1"))

	msgs, err := m.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestAsSchemaMessages(t *testing.T) {
	msgs := AsSchemaMessages([]model.TurnMessage{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "hello"},
		{Role: model.RoleAssistant, Content: ""},
	})

	require.Len(t, msgs, 2)
	assert.Equal(t, schema.User, msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, schema.Assistant, msgs[1].Role)
}

func TestTrimTurns_AlignsToTurnBoundary(t *testing.T) {
	messages := []model.TurnMessage{
		{Role: model.RoleAssistant, Content: "dangling"},
		{Role: model.RoleUser, Content: "q"},
		{Role: model.RoleAssistant, Content: "a"},
	}

	trimmed := trimTurns(messages, 1)
	require.Len(t, trimmed, 2)
	assert.Equal(t, model.RoleUser, trimmed[0].Role)

	assert.Nil(t, trimTurns(messages, 0))
}
