package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/schema"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveSchemas(t *testing.T, catalog SchemaCatalog, path string) *httptest.ResponseRecorder {
	t.Helper()
	handler := NewSchemaHandler(catalog)
	r := chi.NewRouter()
	r.Get("/v1/schemas", handler.List)
	r.Get("/v1/schemas/{type}", handler.Get)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil).WithContext(context.Background()))
	return w
}

func TestSchemaHandler(t *testing.T) {
	registry := schema.NewRegistry(schema.NewEmbeddedSource())

	t.Run("list", func(t *testing.T) {
		w := serveSchemas(t, registry, "/v1/schemas")

		require.Equal(t, http.StatusOK, w.Code)
		var summaries []SchemaSummary
		decodeData(t, w, &summaries)
		require.Len(t, summaries, 8)
		assert.Equal(t, "agent_spec", summaries[0].Type)
		assert.Contains(t, summaries[0].Required, "agent_id")
		for _, s := range summaries {
			if s.Type == "best_practice" {
				assert.Equal(t, "bp-", s.IDPrefix)
				assert.Equal(t, "best_practices", s.Collection)
			}
		}
	})

	t.Run("get", func(t *testing.T) {
		w := serveSchemas(t, registry, "/v1/schemas/error_pattern")

		require.Equal(t, http.StatusOK, w.Code)
		var doc map[string]any
		decodeData(t, w, &doc)
		assert.Equal(t, "object", doc["type"])
	})

	t.Run("unknown type", func(t *testing.T) {
		w := serveSchemas(t, registry, "/v1/schemas/recipe")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing schema file", func(t *testing.T) {
		w := serveSchemas(t, schema.NewRegistry(schema.NewDirSource(t.TempDir())), "/v1/schemas/error_pattern")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
