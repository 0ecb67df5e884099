package caption

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xxxsen/maildigest/internal/model"
)

const defaultPrompt = "Describe the image. It may contain charts or figures relevant to business or scientific contexts."

// Provider produces a short natural-language caption for one extracted image.
type Provider interface {
	Name() string
	Caption(ctx context.Context, img *model.ExtractedImage) (string, error)
}

type Factory func(model string, args interface{}) (Provider, error)

var registry = map[string]Factory{}

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, model string, args interface{}) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("caption.provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported caption provider: %s", name)
	}
	return factory(model, args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("caption provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode caption provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode caption provider config: %w", err)
	}
	return nil
}

func mimeType(format string) string {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "tif", "tiff":
		return "image/tiff"
	case "webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
