package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insight-core/server/internal/agent/model"
)

func TestNext_HappyPath(t *testing.T) {
	steps := []struct {
		ev   Event
		want State
	}{
		{EventTurnStarted, StateClassifying},
		{EventIntentDataQuery, StateSynthesizing},
		{EventQuerySynthesized, StateExecuting},
		{EventExecutionFinished, StateValidating},
		{EventVerdictAccept, StateGeneratingInsights},
		{EventInsightsReady, StateDone},
	}

	s := StateStart
	for _, step := range steps {
		next, err := Next(s, step.ev)
		require.NoError(t, err)
		assert.Equal(t, step.want, next)
		s = next
	}
	assert.True(t, IsTerminal(s))
}

func TestNext_ConversationalShortCircuit(t *testing.T) {
	s, err := Next(StateClassifying, EventIntentConversational)
	require.NoError(t, err)
	assert.Equal(t, StateConversationalReply, s)

	s, err = Next(s, EventReplyComposed)
	require.NoError(t, err)
	assert.Equal(t, StateDone, s)
}

func TestNext_RetryLoop(t *testing.T) {
	s, err := Next(StateValidating, EventVerdictRetry)
	require.NoError(t, err)
	assert.Equal(t, StateSynthesizing, s)
}

func TestNext_RejectTerminates(t *testing.T) {
	s, err := Next(StateValidating, EventVerdictReject)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, s)
	assert.True(t, IsTerminal(s))
}

func TestNext_InvalidTransition(t *testing.T) {
	_, err := Next(StateDone, EventTurnStarted)
	require.Error(t, err)

	_, err = Next(StateExecuting, EventVerdictAccept)
	require.Error(t, err)
}

func TestApplyRetryBudget(t *testing.T) {
	retry := model.Verdict{Decision: model.DecisionRetry, Reason: "column missing"}

	t.Run("within budget stays retry", func(t *testing.T) {
		v := ApplyRetryBudget(retry, 0, 2)
		assert.Equal(t, model.DecisionRetry, v.Decision)
		v = ApplyRetryBudget(retry, 1, 2)
		assert.Equal(t, model.DecisionRetry, v.Decision)
	})

	t.Run("exhausted budget downgrades to reject", func(t *testing.T) {
		v := ApplyRetryBudget(retry, 2, 2)
		assert.Equal(t, model.DecisionReject, v.Decision)
		assert.Equal(t, "column missing", v.Reason)
	})

	t.Run("accept and reject pass through", func(t *testing.T) {
		accept := model.Verdict{Decision: model.DecisionAccept}
		assert.Equal(t, accept, ApplyRetryBudget(accept, 5, 2))

		reject := model.Verdict{Decision: model.DecisionReject, Reason: "no"}
		assert.Equal(t, reject, ApplyRetryBudget(reject, 0, 2))
	})
}

func TestEventForIntent(t *testing.T) {
	assert.Equal(t, EventIntentConversational, EventForIntent(model.IntentConversational))
	assert.Equal(t, EventIntentDataQuery, EventForIntent(model.IntentDataQuery))
	// ambiguous is treated as a data query with an empty column hint
	assert.Equal(t, EventIntentDataQuery, EventForIntent(model.IntentAmbiguous))
}

func TestEventForVerdict(t *testing.T) {
	assert.Equal(t, EventVerdictAccept, EventForVerdict(model.Verdict{Decision: model.DecisionAccept}))
	assert.Equal(t, EventVerdictRetry, EventForVerdict(model.Verdict{Decision: model.DecisionRetry}))
	assert.Equal(t, EventVerdictReject, EventForVerdict(model.Verdict{Decision: model.DecisionReject}))
}
