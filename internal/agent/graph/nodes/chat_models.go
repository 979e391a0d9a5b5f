package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/insight-core/server/internal/agent/model"
	logx "github.com/insight-core/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation.
type ChatModelConfig struct {
	APIKey         string
	BaseURL        string
	PlannerConfig  *model.PlannerModelConfig
	NarratorConfig *model.NarratorModelConfig
}

// ChatModels holds the two models the pipeline runs on: a low-temperature
// planner for structured JSON output (classify, synthesize, validate) and a
// narrator for user-facing text (replies, summaries, insights).
type ChatModels struct {
	Planner           *gemini.ChatModel
	Narrator          *gemini.ChatModel
	PlannerModelName  string
	NarratorModelName string
}

// NewChatModels creates both models over a shared Gemini client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	planner, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.PlannerConfig.Model,
		Temperature: &config.PlannerConfig.Temperature,
		MaxTokens:   &config.PlannerConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating planner model")
		return nil, fmt.Errorf("error creating planner model: %w", err)
	}

	narrator, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.NarratorConfig.Model,
		Temperature: &config.NarratorConfig.Temperature,
		MaxTokens:   &config.NarratorConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating narrator model")
		return nil, fmt.Errorf("error creating narrator model: %w", err)
	}

	return &ChatModels{
		Planner:           planner,
		Narrator:          narrator,
		PlannerModelName:  config.PlannerConfig.Model,
		NarratorModelName: config.NarratorConfig.Model,
	}, nil
}
