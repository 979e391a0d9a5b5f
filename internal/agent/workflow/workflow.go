// Package workflow defines the turn state machine as data: an explicit state
// enum, an event enum, and a pure transition function. The agent graph's
// branch conditions delegate here, which keeps the retry and termination
// logic testable without composing a graph or calling a model.
package workflow

import (
	"fmt"

	"github.com/insight-core/server/internal/agent/model"
)

// State of a single turn.
type State string

const (
	StateStart               State = "START"
	StateClassifying         State = "CLASSIFYING"
	StateConversationalReply State = "CONVERSATIONAL_REPLY"
	StateSynthesizing        State = "SYNTHESIZING"
	StateExecuting           State = "EXECUTING"
	StateValidating          State = "VALIDATING"
	StateGeneratingInsights  State = "INSIGHTS"
	StateDone                State = "DONE"
	StateFailed              State = "FAILED"
)

// Event moves a turn between states.
type Event string

const (
	EventTurnStarted         Event = "turn_started"
	EventIntentConversational Event = "intent_conversational"
	EventIntentDataQuery     Event = "intent_data_query"
	EventQuerySynthesized    Event = "query_synthesized"
	EventExecutionFinished   Event = "execution_finished"
	EventVerdictAccept       Event = "verdict_accept"
	EventVerdictRetry        Event = "verdict_retry"
	EventVerdictReject       Event = "verdict_reject"
	EventReplyComposed       Event = "reply_composed"
	EventInsightsReady       Event = "insights_ready"
)

// transitions is the complete edge set of the turn state machine.
var transitions = map[State]map[Event]State{
	StateStart: {
		EventTurnStarted: StateClassifying,
	},
	StateClassifying: {
		EventIntentConversational: StateConversationalReply,
		EventIntentDataQuery:      StateSynthesizing,
	},
	StateConversationalReply: {
		EventReplyComposed: StateDone,
	},
	StateSynthesizing: {
		EventQuerySynthesized: StateExecuting,
	},
	StateExecuting: {
		EventExecutionFinished: StateValidating,
	},
	StateValidating: {
		EventVerdictAccept: StateGeneratingInsights,
		EventVerdictRetry:  StateSynthesizing,
		EventVerdictReject: StateFailed,
	},
	StateGeneratingInsights: {
		EventInsightsReady: StateDone,
	},
}

// Next returns the state reached by applying ev in state s. An event that has
// no edge from s is a programming error and is reported as such.
func Next(s State, ev Event) (State, error) {
	if next, ok := transitions[s][ev]; ok {
		return next, nil
	}
	return s, fmt.Errorf("workflow: no transition from %s on %s", s, ev)
}

// IsTerminal reports whether s is a terminal state. Once a turn reaches a
// terminal state its TurnState is immutable.
func IsTerminal(s State) bool {
	return s == StateDone || s == StateFailed
}

// EventForIntent maps the classifier's output onto a transition event.
// Ambiguous intents are routed to synthesis with an empty column hint.
func EventForIntent(kind model.IntentKind) Event {
	if kind == model.IntentConversational {
		return EventIntentConversational
	}
	return EventIntentDataQuery
}

// ApplyRetryBudget downgrades a RETRY verdict to REJECT when the retry budget
// is spent. The returned verdict is what the orchestrator routes on.
func ApplyRetryBudget(v model.Verdict, retryCount, maxRetries int) model.Verdict {
	if v.Decision != model.DecisionRetry {
		return v
	}
	if retryCount >= maxRetries {
		return model.Verdict{Decision: model.DecisionReject, Reason: v.Reason}
	}
	return v
}

// EventForVerdict maps a (budget-applied) verdict onto a transition event.
func EventForVerdict(v model.Verdict) Event {
	switch v.Decision {
	case model.DecisionAccept:
		return EventVerdictAccept
	case model.DecisionRetry:
		return EventVerdictRetry
	default:
		return EventVerdictReject
	}
}
