package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/gasdesk/agent-server/internal/agent/model"
	logx "github.com/gasdesk/agent-server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey         string
	BaseURL        string
	DecisionConfig *model.DecisionModelConfig
	RespConfig     *model.ResponseModelConfig
}

// ChatModels holds the routing and answering models.
type ChatModels struct {
	Decision          *gemini.ChatModel
	Response          *gemini.ChatModel
	DecisionModelName string
	ResponseModelName string
}

// NewChatModels creates both Gemini chat models over one client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.DecisionConfig == nil || config.RespConfig == nil {
		return nil, fmt.Errorf("chat model config is incomplete")
	}

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

	// Decision output is parsed as JSON; no thinking budget.
	decision, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.DecisionConfig.Model,
		Temperature: &config.DecisionConfig.Temperature,
		MaxTokens:   &config.DecisionConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating decision model")
		return nil, fmt.Errorf("error creating decision model: %w", err)
	}

	response, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.RespConfig.Model,
		Temperature: &config.RespConfig.Temperature,
		MaxTokens:   &config.RespConfig.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(1024)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating response model")
		return nil, fmt.Errorf("error creating response model: %w", err)
	}

	return &ChatModels{
		Decision:          decision,
		Response:          response,
		DecisionModelName: config.DecisionConfig.Model,
		ResponseModelName: config.RespConfig.Model,
	}, nil
}
