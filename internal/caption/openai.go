package caption

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/xxxsen/maildigest/internal/model"
)

type openAIConfig struct {
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url"`
	Temperature float32 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type openAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func (p *openAIProvider) Name() string {
	return "openai"
}

func (p *openAIProvider) Caption(ctx context.Context, img *model.ExtractedImage) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType(img.Format), base64.StdEncoding.EncodeToString(img.Data))
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
					},
					{
						Type: openai.ChatMessagePartTypeText,
						Text: defaultPrompt,
					},
				},
			},
		},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("caption request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty caption response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func createOpenAIFactory(modelName string, args interface{}) (Provider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("caption openai api_key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.5
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 150
	}
	if modelName == "" {
		modelName = openai.GPT4o
	}
	return &openAIProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       modelName,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func init() {
	Register("openai", createOpenAIFactory)
}
