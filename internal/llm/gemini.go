package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	logx "github.com/shoppick/server/pkg/logger"
)

// GeminiConfig holds everything needed to construct one Gemini chat model.
type GeminiConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Gemini implements Client on top of the eino Gemini chat model.
type Gemini struct {
	cm    einomodel.BaseChatModel
	model string
}

// NewGemini creates a Gemini-backed client. The genai client is shared
// machinery; callers wanting both an analyzer and a rationale model should
// construct two clients with different GeminiConfig values.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Model,
		Temperature: &cfg.Temperature,
		MaxTokens:   &cfg.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Str("model", cfg.Model).Msg("Error creating chat model")
		return nil, fmt.Errorf("error creating chat model %s: %w", cfg.Model, err)
	}

	return &Gemini{cm: cm, model: cfg.Model}, nil
}

func (g *Gemini) Complete(ctx context.Context, system, user string) (string, error) {
	out, err := g.cm.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	})
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", fmt.Errorf("model %s returned empty completion", g.model)
	}

	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		logx.Debug().
			Str("model", g.model).
			Int("prompt_tokens", out.ResponseMeta.Usage.PromptTokens).
			Int("completion_tokens", out.ResponseMeta.Usage.CompletionTokens).
			Int("total_tokens", out.ResponseMeta.Usage.TotalTokens).
			Msg("LLM usage")
	}

	return out.Content, nil
}

func (g *Gemini) Name() string {
	return "gemini/" + g.model
}
