package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	aigenai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient talks to the Gemini API with an API key instead of a GCP
// project.
type GeminiClient struct {
	client    *aigenai.Client
	modelName string
}

func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	client, err := aigenai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash-lite"
	}
	return &GeminiClient{client: client, modelName: modelName}, nil
}

func (g *GeminiClient) Name() string { return "gemini" }

func (g *GeminiClient) Close() error { return g.client.Close() }

func (g *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("gemini: empty transcript")
	}

	model := g.client.GenerativeModel(g.modelName)
	model.SetTopP(0.95)
	if req.Temperature > 0 {
		model.SetTemperature(req.Temperature)
	} else {
		model.SetTemperature(0.7)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	model.SetMaxOutputTokens(int32(maxTokens))
	if req.System != "" {
		model.SystemInstruction = &aigenai.Content{Parts: []aigenai.Part{aigenai.Text(req.System)}}
	}
	if req.JSONMode {
		model.ResponseMIMEType = "application/json"
	}

	cs := model.StartChat()
	last := req.Messages[len(req.Messages)-1]
	for _, msg := range req.Messages[:len(req.Messages)-1] {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &aigenai.Content{Role: role, Parts: []aigenai.Part{aigenai.Text(msg.Content)}})
	}

	resp, err := cs.SendMessage(ctx, aigenai.Text(last.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no content generated")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(aigenai.Text); ok {
			sb.WriteString(string(t))
		}
	}

	return &CompletionResponse{
		Content:      sb.String(),
		Model:        g.modelName,
		FinishReason: resp.Candidates[0].FinishReason.String(),
	}, nil
}
