//go:build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const practiceMetadata = `{
  "unique_id": "bp-qdrant-cosine-2025-12-29",
  "type": "best_practice",
  "component": "qdrant",
  "importance": "high",
  "created_at": "2025-12-29",
  "domain": "vector-search",
  "technology": "qdrant",
  "category": "performance",
  "discovered_by": "dev-agent"
}`

var practiceContent = strings.Repeat("Create Qdrant collections with cosine distance for sentence embeddings. ", 3)

func TestE2E_GateLifecycle(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	t.Run("publish schemas", func(t *testing.T) {
		out, code := env.RunKbctl("", "schemas", "publish", "--version", schemaVersion)
		require.Equal(t, 0, code, out)
		assert.Contains(t, out, "8 schema objects under metadata-schemas/e2e/")
	})

	env.StartServer()

	t.Run("collections exist after serve", func(t *testing.T) {
		out, code := env.RunKbctl("", "collections", "--check-only", "--output")
		require.Equal(t, 0, code, out)

		var statuses []struct {
			Name   string `json:"name"`
			Exists bool   `json:"exists"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &statuses))
		require.Len(t, statuses, 2)
		for _, s := range statuses {
			assert.True(t, s.Exists, s.Name)
		}
	})

	t.Run("schema served from the bucket", func(t *testing.T) {
		resp := env.Do(http.MethodGet, "/v1/schemas/best_practice", nil)
		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Contains(t, string(resp.Data), "bp-")
	})

	t.Run("local prestore passes", func(t *testing.T) {
		out, code := env.RunKbctl(practiceMetadata, "prestore", "--content", practiceContent, "--metadata-file", "-")
		assert.Equal(t, 0, code, out)
		assert.Contains(t, out, "VALIDATION PASSED")
	})

	t.Run("remote store then duplicate", func(t *testing.T) {
		out, code := env.RunKbctl(practiceMetadata, "remote", "store", "--content", practiceContent, "--metadata-file", "-", "--api-token", apiToken)
		require.Equal(t, 0, code, out)
		assert.Contains(t, out, "Stored bp-qdrant-cosine-2025-12-29")

		out, code = env.RunKbctl(practiceMetadata, "remote", "store", "--content", practiceContent, "--metadata-file", "-", "--api-token", apiToken)
		assert.Equal(t, 1, code)
		assert.Contains(t, out, "ExactDuplicate")
		assert.Contains(t, out, "IdentifierCollision")
	})

	t.Run("near duplicate warns", func(t *testing.T) {
		md := strings.Replace(practiceMetadata, "bp-qdrant-cosine-2025-12-29", "bp-qdrant-cosine-again-2025-12-30", 1)
		out, code := env.RunKbctl(md, "prestore", "--content", practiceContent+" Really.", "--metadata-file", "-")
		assert.Equal(t, 0, code, out)
		assert.Contains(t, out, "SimilarContentFound")
	})

	t.Run("remote stats", func(t *testing.T) {
		out, code := env.RunKbctl("", "remote", "stats", "--api-token", apiToken, "--output")
		require.Equal(t, 0, code, out)

		var stats []struct {
			Name  string `json:"name"`
			Count int64  `json:"count"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &stats))
		counts := map[string]int64{}
		for _, s := range stats {
			counts[s.Name] = s.Count
		}
		assert.Equal(t, int64(1), counts["bmad-best-practices"])
		assert.Equal(t, int64(0), counts["bmad-knowledge"])
	})

	t.Run("audit is clean", func(t *testing.T) {
		out, code := env.RunKbctl("", "audit")
		require.Equal(t, 0, code, out)
		assert.Contains(t, out, "bmad-best-practices: 1 entries, 0 duplicates, 0 invalid, 0 test entries")
	})

	t.Run("bad token rejected", func(t *testing.T) {
		out, code := env.RunKbctl("", "remote", "stats", "--api-token", "wrong")
		assert.NotEqual(t, 0, code, out)
	})
}
