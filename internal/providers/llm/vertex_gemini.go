package llm

import (
	"context"
	"errors"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

type VertexGemini struct {
	client    *vertexgenai.Client
	modelName string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &VertexGemini{client: c, modelName: modelName}, nil
}

func (v *VertexGemini) Name() string { return "vertex" }

func (v *VertexGemini) Close() error { return v.client.Close() }

// Complete replays the transcript as chat history and streams the answer to
// the final user turn, concatenating the chunks.
func (v *VertexGemini) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("vertex: empty transcript")
	}

	// models are cheap handles; one per call keeps settings request-local
	m := v.client.GenerativeModel(v.modelName)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	m.SetMaxOutputTokens(int32(maxTokens))
	if req.Temperature > 0 {
		m.SetTemperature(req.Temperature)
	}
	if req.System != "" {
		m.SystemInstruction = &vertexgenai.Content{Parts: []vertexgenai.Part{vertexgenai.Text(req.System)}}
	}
	if req.JSONMode {
		m.ResponseMIMEType = "application/json"
	}

	cs := m.StartChat()
	last := req.Messages[len(req.Messages)-1]
	for _, msg := range req.Messages[:len(req.Messages)-1] {
		cs.History = append(cs.History, &vertexgenai.Content{
			Role:  vertexRole(msg.Role),
			Parts: []vertexgenai.Part{vertexgenai.Text(msg.Content)},
		})
	}

	it := cs.SendMessageStream(ctx, vertexgenai.Text(last.Content))

	var full strings.Builder
	finish := ""
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if t, ok := part.(vertexgenai.Text); ok && string(t) != "" {
					full.WriteString(string(t))
				}
			}
			if cand.FinishReason != vertexgenai.FinishReasonUnspecified {
				finish = cand.FinishReason.String()
			}
		}
	}

	return &CompletionResponse{Content: full.String(), Model: v.modelName, FinishReason: finish}, nil
}

func vertexRole(r Role) string {
	if r == RoleAssistant {
		return "model"
	}
	return "user"
}
