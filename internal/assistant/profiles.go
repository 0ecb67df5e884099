package assistant

import (
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Profile describes a reusable remote assistant configuration.
type Profile struct {
	Name        string
	Description string
}

var profiles = map[string]Profile{
	"pdf_summarizer": {
		Name:        "PDF Summarizer Assistant",
		Description: "Assistant that summarizes PDF documents including text and visuals.",
	},
	"legal_analyzer": {
		Name:        "Legal Analyzer Assistant",
		Description: "Assistant that analyzes legal documents and highlights key clauses.",
	},
	"research_helper": {
		Name:        "Research Helper Assistant",
		Description: "Assistant that helps summarize and organize research papers.",
	},
}

// ProfileRequest resolves a profile key into the assistant creation request
// for the given model.
func ProfileRequest(key string, model string) (openai.AssistantRequest, error) {
	p, ok := profiles[key]
	if !ok {
		return openai.AssistantRequest{}, fmt.Errorf("unknown assistant profile: %s", key)
	}
	name := p.Name
	desc := p.Description
	return openai.AssistantRequest{
		Model:       model,
		Name:        &name,
		Description: &desc,
		Tools:       []openai.AssistantTool{{Type: openai.AssistantToolTypeFileSearch}},
	}, nil
}

// profileVersion keys the cached assistant handle so a model or profile
// change forces re-creation instead of reusing a stale remote assistant.
func profileVersion(key string, model string) string {
	return key + "|" + model
}
