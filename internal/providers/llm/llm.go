package llm

import "context"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is one stateless call: the full ordered transcript is
// sent every time.
type CompletionRequest struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float32
	// JSONMode asks the backend for a bare JSON object when it supports it.
	JSONMode bool
}

type CompletionResponse struct {
	Content      string
	Model        string
	FinishReason string
}

type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Name() string
	Close() error
}

const defaultMaxTokens = 2048
