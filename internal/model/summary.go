package model

import "time"

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ImageCaption pairs one generated caption with the placement of its source
// image. Figures lists are kept in ascending (page, index) order so the
// report can present captions in page order.
type ImageCaption struct {
	ImageID string `json:"image_id"`
	Page    int    `json:"page"`
	Index   int    `json:"index"`
	Caption string `json:"caption"`
}

// SummaryMetadata carries the structured side channel of a summarization:
// captions keyed by the synthetic image ID, the same captions in page order,
// token spend and timing.
type SummaryMetadata struct {
	Filename  string            `json:"filename"`
	PageCount int               `json:"page_count"`
	Captions  map[string]string `json:"captions"`
	Figures   []ImageCaption    `json:"figures,omitempty"`
	Usage     TokenUsage        `json:"usage"`
	Duration  time.Duration     `json:"duration"`
	CacheHit  bool              `json:"cache_hit"`
}

// SummaryResult is the single result type handed back to callers. Failures
// are represented with Success=false and a Reason, never a bare error, so the
// report layer always has something well formed to render.
type SummaryResult struct {
	Success  bool            `json:"success"`
	Summary  string          `json:"summary"`
	Reason   string          `json:"reason,omitempty"`
	Metadata SummaryMetadata `json:"metadata"`
}

// Failed builds a failure result carrying only the explanatory reason.
func Failed(filename, reason string) *SummaryResult {
	return &SummaryResult{
		Success: false,
		Reason:  reason,
		Metadata: SummaryMetadata{
			Filename: filename,
			Captions: map[string]string{},
		},
	}
}
