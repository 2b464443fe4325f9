package cli

import (
	"context"
	"testing"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/config"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/memstore"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/schema"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	t.Setenv("KB_STORE_BACKEND", backend)
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestNewRuntime(t *testing.T) {
	ctx := context.Background()

	t.Run("memory backend", func(t *testing.T) {
		rt, err := NewRuntime(ctx, testConfig(t, config.BackendMemory), nil, RuntimeOptions{})
		require.NoError(t, err)
		defer rt.Close()

		assert.IsType(t, &memstore.Store{}, rt.Store)
		assert.NotNil(t, rt.Knowledge)
		assert.Nil(t, rt.Embedder)
		assert.NoError(t, rt.RequireStore())
	})

	t.Run("qdrant backend dials lazily", func(t *testing.T) {
		rt, err := NewRuntime(ctx, testConfig(t, config.BackendQdrant), nil, RuntimeOptions{})
		require.NoError(t, err)
		defer rt.Close()

		assert.IsType(t, &vectorstore.Store{}, rt.Store)
		assert.NotNil(t, rt.Qdrant)
	})

	t.Run("offline", func(t *testing.T) {
		rt, err := NewRuntime(ctx, testConfig(t, config.BackendQdrant), nil, RuntimeOptions{Offline: true})
		require.NoError(t, err)
		defer rt.Close()

		assert.Nil(t, rt.Store)
		assert.Nil(t, rt.Knowledge)
		assert.NotNil(t, rt.Gate)
		assert.Error(t, rt.RequireStore())
	})

	t.Run("embeddings configured", func(t *testing.T) {
		t.Setenv("KB_EMBEDDING_BASE_URL", "http://localhost:8081/v1")
		rt, err := NewRuntime(ctx, testConfig(t, config.BackendMemory), nil, RuntimeOptions{})
		require.NoError(t, err)
		defer rt.Close()

		assert.NotNil(t, rt.Embedder)
	})
}

func TestNewSchemaSource(t *testing.T) {
	ctx := context.Background()

	t.Run("embedded by default", func(t *testing.T) {
		src, err := NewSchemaSource(ctx, testConfig(t, config.BackendMemory))
		require.NoError(t, err)
		assert.IsType(t, &schema.FSSource{}, src)
	})

	t.Run("s3 when bucket configured", func(t *testing.T) {
		t.Setenv("KB_SCHEMA_S3_ENDPOINT", "http://localhost:9000")
		t.Setenv("KB_SCHEMA_S3_BUCKET", "kb-schemas")
		t.Setenv("KB_SCHEMA_S3_ACCESS_KEY_ID", "key")
		t.Setenv("KB_SCHEMA_S3_SECRET_ACCESS_KEY", "secret")
		src, err := NewSchemaSource(ctx, testConfig(t, config.BackendMemory))
		require.NoError(t, err)

		s3src, ok := src.(*schema.S3Source)
		require.True(t, ok)
		assert.Equal(t, "metadata-schemas/v1/best_practice.json", s3src.Key("best_practice"))
	})
}
