//go:build integration

package vectorstore

import (
	"context"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimension = 16

// bagOfWords embeds text by hashing each word into a fixed-size count vector.
type bagOfWords struct{}

func (bagOfWords) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, testDimension)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%testDimension]++
	}
	return vec, nil
}

func storedEntry(collection, uniqueID, content string) *domain.StoredEntry {
	return &domain.StoredEntry{
		ID:          uuid.NewString(),
		UniqueID:    uniqueID,
		Collection:  collection,
		ContentHash: testutil.Fingerprint(content),
		Content:     content,
		Metadata: map[string]any{
			domain.FieldUniqueID:   uniqueID,
			domain.FieldType:       string(domain.KnowledgeTypeConfigPattern),
			domain.FieldImportance: "high",
			"tags":                 []any{"qdrant", "grpc"},
		},
	}
}

func TestStore_AgainstQdrant(t *testing.T) {
	ctx := context.Background()
	qc := testutil.NewQdrantContainer(ctx, t)
	defer qc.Terminate(ctx)

	client, err := NewClient(QdrantConfig{Host: qc.Host, Port: qc.GRPCPort})
	require.NoError(t, err)
	defer client.Close()

	collections := []string{"bmad-knowledge", "bmad-best-practices"}
	for _, name := range collections {
		created, err := client.EnsureCollection(ctx, name, testDimension)
		require.NoError(t, err)
		assert.True(t, created)
	}
	created, err := client.EnsureCollection(ctx, "bmad-knowledge", testDimension)
	require.NoError(t, err)
	assert.False(t, created, "second ensure is a no-op")

	store := NewStore(client, bagOfWords{}, StoreConfig{Collections: collections}, nil)

	first := storedEntry("bmad-knowledge", "config-qdrant-grpc", "Connect to qdrant over grpc on port 6334 with an api key header.")
	second := storedEntry("bmad-best-practices", "bp-frontend-colors", "Frontend buttons use the brand palette.")
	require.NoError(t, store.Insert(ctx, first))
	require.NoError(t, store.Insert(ctx, second))

	t.Run("find by hash", func(t *testing.T) {
		found, err := store.FindByHash(ctx, first.ContentHash)
		require.NoError(t, err)
		assert.Equal(t, first.ID, found.ID)
		assert.Equal(t, first.Content, found.Content)
		assert.Equal(t, "bmad-knowledge", found.Collection)
		assert.Equal(t, []any{"qdrant", "grpc"}, found.Metadata["tags"])
	})

	t.Run("find by unique_id across collections", func(t *testing.T) {
		found, err := store.FindByUniqueID(ctx, "bp-frontend-colors")
		require.NoError(t, err)
		assert.Equal(t, second.ID, found.ID)
		assert.Equal(t, "bmad-best-practices", found.Collection)

		_, err = store.FindByUniqueID(ctx, "bp-missing")
		assert.ErrorIs(t, err, domain.ErrEntryNotFound)
	})

	t.Run("vector similarity", func(t *testing.T) {
		matches, err := store.FindSimilar(ctx, first.Content, 0.85)
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, first.ID, matches[0].EntryID)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-4)
	})

	t.Run("lexical similarity without embedder", func(t *testing.T) {
		lexical := NewStore(client, nil, StoreConfig{Collections: collections}, nil)
		matches, err := lexical.FindSimilar(ctx, "Frontend buttons use the brand palette!", 0.5)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "bp-frontend-colors", matches[0].UniqueID)

		assert.ErrorIs(t, lexical.Insert(ctx, storedEntry("bmad-knowledge", "config-x", "x")), domain.ErrEmbeddingDisabled)
	})

	t.Run("list count delete", func(t *testing.T) {
		n, err := store.Count(ctx, "bmad-knowledge")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		entries, err := store.List(ctx, "bmad-knowledge", 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)

		require.NoError(t, store.Delete(ctx, "bmad-knowledge", []string{first.ID}))
		n, err = store.Count(ctx, "bmad-knowledge")
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
