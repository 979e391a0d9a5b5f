package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/insight-core/server/internal/agent/graph"
	"github.com/insight-core/server/internal/agent/model"
	"github.com/insight-core/server/internal/agent/repo"
	"github.com/insight-core/server/internal/core"
	"github.com/insight-core/server/internal/dataset"
	pkgduck "github.com/insight-core/server/pkg/duck"
	logx "github.com/insight-core/server/pkg/logger"
	pkgredis "github.com/insight-core/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the pipeline example,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	// Infrastructure
	Duck pkgduck.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Planner      model.PlannerModelConfig
	Narrator     model.NarratorModelConfig
	Conversation model.ConversationConfig
	Workflow     model.WorkflowConfig

	// Demo dataset
	SampleCSV string `envconfig:"SAMPLE_CSV" default:"testdata/sales.csv"`
}

func main() {
	fmt.Println("Testing the data insight pipeline...")
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.EnvironmentFromOS()})

	ttl, err := time.ParseDuration(envCfg.Conversation.TTL)
	if err != nil {
		log.Fatalf("Invalid CONVERSATION_TTL '%s': %v", envCfg.Conversation.TTL, err)
	}

	// Conversations live in Redis when configured, in memory otherwise.
	var conversationRepo model.ConversationRepository
	if os.Getenv("REDIS_URL") != "" {
		var redisCfg pkgredis.Config
		if err := envconfig.Process("redis", &redisCfg); err != nil {
			log.Fatalf("Failed to process redis config: %v", err)
		}
		rdb, err := redisCfg.New()
		if err != nil {
			log.Fatalf("Failed to initialise Redis client: %v", err)
		}
		defer rdb.Close()
		conversationRepo = repo.NewRedisConversationRepository(rdb, ttl)
		fmt.Println("Connected to Redis successfully")
	} else {
		conversationRepo = repo.NewMemoryConversationRepository()
		fmt.Println("REDIS_URL not set, keeping conversations in memory")
	}

	db := envCfg.Duck.MustOpen(ctx)
	defer db.Close()

	store := dataset.NewStore(db, ttl)
	defer store.Close()

	handle, err := store.Register(ctx, "sample", envCfg.SampleCSV)
	if err != nil {
		log.Fatalf("Failed to ingest sample dataset %s: %v", envCfg.SampleCSV, err)
	}
	fmt.Printf("Ingested %s: %d rows, %d columns\n", handle.Filename, handle.RowCount, len(handle.Columns))

	queryTimeout, err := time.ParseDuration(envCfg.Workflow.QueryTimeout)
	if err != nil {
		log.Fatalf("Invalid WORKFLOW_QUERY_TIMEOUT '%s': %v", envCfg.Workflow.QueryTimeout, err)
	}
	executor := dataset.NewExecutor(db, dataset.ExecutorConfig{
		QueryTimeout: queryTimeout,
		MaxRows:      envCfg.Workflow.MaxResultRows,
	})

	orchestrator, err := graph.NewOrchestrator(ctx, graph.Config{
		APIKey:           envCfg.APIKey,
		BaseURL:          envCfg.BaseURL,
		PlannerModel:     envCfg.Planner,
		NarratorModel:    envCfg.Narrator,
		Conversation:     envCfg.Conversation,
		Workflow:         envCfg.Workflow,
		ConversationRepo: conversationRepo,
		Registry:         store,
		Executor:         executor,
	})
	if err != nil {
		log.Fatalf("Failed to build orchestrator: %v", err)
	}

	testQueries := []struct {
		description string
		query       string
	}{
		{
			description: "Greeting",
			query:       "Hi there! What can you do?",
		},
		{
			description: "Aggregation with chart",
			query:       "What is the total revenue by region?",
		},
		{
			description: "Dataset overview",
			query:       "Give me a quick summary of this dataset",
		},
		{
			description: "Follow-up top-N",
			query:       "Which are the top 5 products by quantity sold?",
		},
	}

	conversationID := ""

	for i, test := range testQueries {
		fmt.Printf("\nTest %d: %s\n", i+1, test.description)
		fmt.Printf("Query: %q\n", test.query)
		fmt.Println("Processing...")

		result, err := orchestrator.RunTurn(ctx, model.TurnInput{
			ConversationID: conversationID,
			FileID:         "sample",
			Query:          test.query,
		})
		if err != nil {
			log.Fatalf("Failed to run turn %d: %v", i+1, err)
		}
		conversationID = result.ConversationID

		fmt.Printf("Outcome: %s (%.2fs, $%.6f)\n", result.Outcome, result.ProcessingTime.Seconds(), result.CostUSD)
		fmt.Printf("Answer: %s\n", result.Narrative)
		if result.Query != nil && result.Query.SQL != "" {
			fmt.Printf("SQL: %s\n", result.Query.SQL)
		}
		if len(result.Visualizations) > 0 {
			fmt.Printf("Charts: %d (%s)\n", len(result.Visualizations), result.Visualizations[0].Type)
		}
		fmt.Println("------------------------------------------------")
	}

	fmt.Println("All pipeline tests completed successfully!")
}
