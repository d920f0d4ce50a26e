package llm

import (
	"context"
	"fmt"
)

// Settings selects and configures a backend.
type Settings struct {
	Provider  string // vertex | gemini | openai
	Model     string
	APIKey    string
	ProjectID string
	Location  string
}

func NewProvider(ctx context.Context, s Settings) (Provider, error) {
	switch s.Provider {
	case "vertex", "":
		if s.ProjectID == "" {
			return nil, fmt.Errorf("vertex provider requires a GCP project id")
		}
		loc := s.Location
		if loc == "" {
			loc = "us-central1"
		}
		return NewVertexGemini(ctx, s.ProjectID, loc, s.Model)

	case "gemini":
		if s.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		return NewGeminiClient(ctx, s.APIKey, s.Model)

	case "openai":
		if s.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAIProvider(s.APIKey, s.Model), nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", s.Provider)
	}
}
