package caption

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/xxxsen/maildigest/internal/model"
)

type geminiConfig struct {
	APIKey string `json:"api_key"`
}

type geminiProvider struct {
	apiKey string
	model  string
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) Caption(ctx context.Context, img *model.ExtractedImage) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", err
	}
	resp, err := client.Models.GenerateContent(
		ctx,
		p.model,
		[]*genai.Content{{Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType(img.Format), Data: img.Data}},
			{Text: defaultPrompt},
		}}},
		nil,
	)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty caption response")
	}
	return text, nil
}

func createGeminiFactory(modelName string, args interface{}) (Provider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("caption gemini api_key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}
	return &geminiProvider{
		apiKey: strings.TrimSpace(cfg.APIKey),
		model:  modelName,
	}, nil
}

func init() {
	Register("gemini", createGeminiFactory)
}
