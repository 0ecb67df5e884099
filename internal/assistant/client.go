package assistant

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/xxxsen/maildigest/internal/config"
)

// Client is the narrow slice of the remote assistant service the session
// manager consumes: session (thread) lifecycle, file upload, run execution
// and polling, message retrieval. *openai.Client satisfies it; tests plug in
// a fake.
type Client interface {
	CreateAssistant(ctx context.Context, req openai.AssistantRequest) (openai.Assistant, error)
	RetrieveAssistant(ctx context.Context, assistantID string) (openai.Assistant, error)
	CreateThread(ctx context.Context, req openai.ThreadRequest) (openai.Thread, error)
	DeleteThread(ctx context.Context, threadID string) (openai.ThreadDeleteResponse, error)
	CreateMessage(ctx context.Context, threadID string, req openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, req openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
	CreateFileBytes(ctx context.Context, req openai.FileBytesRequest) (openai.File, error)
	DeleteFile(ctx context.Context, fileID string) error
}

// NewClient builds the real OpenAI-backed client from config.
func NewClient(cfg config.SummarizerConfig) Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}
