package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderRequiresCredentials(t *testing.T) {
	ctx := context.Background()

	_, err := NewProvider(ctx, Settings{Provider: "vertex"})
	assert.Error(t, err)

	_, err = NewProvider(ctx, Settings{Provider: "gemini"})
	assert.Error(t, err)

	_, err = NewProvider(ctx, Settings{Provider: "openai"})
	assert.Error(t, err)
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(context.Background(), Settings{Provider: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unsupported")
}

func TestNewProviderOpenAI(t *testing.T) {
	p, err := NewProvider(context.Background(), Settings{Provider: "openai", APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.NoError(t, p.Close())

	op := p.(*OpenAIProvider)
	assert.NotEmpty(t, op.model)
}

func TestVertexRole(t *testing.T) {
	assert.Equal(t, "model", vertexRole(RoleAssistant))
	assert.Equal(t, "user", vertexRole(RoleUser))
}
