//go:build integration

package embedding

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_GenerateEmbedding(t *testing.T) {
	baseURL := os.Getenv("KB_EMBEDDING_BASE_URL")
	if baseURL == "" {
		t.Skip("KB_EMBEDDING_BASE_URL not set, skipping integration test")
	}

	client := NewClient(Config{
		APIKey:  os.Getenv("KB_EMBEDDING_API_KEY"),
		BaseURL: baseURL,
		Model:   os.Getenv("KB_EMBEDDING_MODEL"),
	})

	vec, err := client.GenerateEmbedding(context.Background(), "Qdrant collections use cosine distance.")

	require.NoError(t, err)
	assert.Len(t, vec, DefaultDimension)
}
