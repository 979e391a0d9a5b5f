// Package graph composes the turn pipeline as an eino graph and exposes the
// orchestrator that drives it. The graph topology mirrors the workflow state
// machine; branch conditions delegate to its pure transition function.
package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/insight-core/server/internal/agent/graph/nodes"
	"github.com/insight-core/server/internal/agent/model"
	logx "github.com/insight-core/server/pkg/logger"
)

// GraphBuilder constructs the turn graph from the node dependencies.
type GraphBuilder struct {
	deps  *nodes.Deps
	graph *compose.Graph[*model.TurnState, *model.TurnState]
}

// BuildTurnGraph composes and compiles the turn pipeline:
//
//	START -> Classifier -> (Reply | Synthesizer)
//	Synthesizer -> QueryExecutor -> Validator
//	Validator -> (InsightComposer | Synthesizer | END)
//	Reply, InsightComposer -> END
func BuildTurnGraph(ctx context.Context, deps *nodes.Deps) (compose.Runnable[*model.TurnState, *model.TurnState], error) {
	if deps == nil {
		return nil, fmt.Errorf("graph deps is nil")
	}
	if deps.Planner == nil || deps.Narrator == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("query executor is nil")
	}

	b := &GraphBuilder{
		deps:  deps,
		graph: compose.NewGraph[*model.TurnState, *model.TurnState](),
	}

	b.addNodes()
	b.addEdges()
	if err := b.addBranches(); err != nil {
		return nil, err
	}

	return b.compile(ctx)
}

func (b *GraphBuilder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodeClassifier, nodes.NewClassifierNode(b.deps))
	b.graph.AddLambdaNode(nodes.NodeReply, nodes.NewReplyNode(b.deps))
	b.graph.AddLambdaNode(nodes.NodeSynthesizer, nodes.NewSynthesizerNode(b.deps))
	b.graph.AddLambdaNode(nodes.NodeExecutor, nodes.NewExecutorNode(b.deps))
	b.graph.AddLambdaNode(nodes.NodeValidator, nodes.NewValidatorNode(b.deps))
	b.graph.AddLambdaNode(nodes.NodeInsight, nodes.NewInsightNode(b.deps))
}

func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeClassifier},
		{nodes.NodeReply, compose.END},
		{nodes.NodeSynthesizer, nodes.NodeExecutor},
		{nodes.NodeExecutor, nodes.NodeValidator},
		{nodes.NodeInsight, compose.END},
	}
	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

func (b *GraphBuilder) addBranches() error {
	intentBranch := compose.NewGraphBranch(
		nodes.NewIntentCondition(),
		map[string]bool{
			nodes.NodeReply:       true,
			nodes.NodeSynthesizer: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeClassifier, intentBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding intent branch")
		return fmt.Errorf("error adding intent branch: %w", err)
	}

	verdictBranch := compose.NewGraphBranch(
		nodes.NewVerdictCondition(),
		map[string]bool{
			nodes.NodeInsight:     true,
			nodes.NodeSynthesizer: true,
			compose.END:           true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeValidator, verdictBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding verdict branch")
		return fmt.Errorf("error adding verdict branch: %w", err)
	}

	return nil
}

func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[*model.TurnState, *model.TurnState], error) {
	// classify + (maxRetries+1) synthesize/execute/validate rounds + insight,
	// with headroom for the branch evaluations
	maxSteps := 4 + (b.deps.MaxRetries+1)*3 + 4
	if maxSteps < 15 {
		maxSteps = 15
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling turn graph")
		return nil, fmt.Errorf("error compiling turn graph: %w", err)
	}

	logx.Debug().Msg("Turn graph compiled successfully")
	return runnable, nil
}
