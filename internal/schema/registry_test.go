package schema

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) Read(ctx context.Context, t domain.KnowledgeType) ([]byte, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockObjectReader struct {
	mock.Mock
}

func (m *MockObjectReader) GetObject(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func validMetadata() map[domain.KnowledgeType]map[string]any {
	return map[domain.KnowledgeType]map[string]any{
		domain.KnowledgeTypeArchitectureDecision: {
			"unique_id":       "arch-decision-5-tier-qdrant-2024-12-15",
			"type":            "architecture_decision",
			"component":       "qdrant",
			"importance":      "critical",
			"created_at":      "2024-12-15",
			"breaking_change": true,
		},
		domain.KnowledgeTypeAgentSpec: {
			"unique_id":  "agent-15-spec",
			"type":       "agent_spec",
			"agent_id":   "agent_15",
			"agent_name": "storage_router",
			"component":  "agents",
			"importance": "high",
			"created_at": "2025-12-29",
		},
		domain.KnowledgeTypeStoryOutcome: {
			"unique_id":  "story-2-17-complete",
			"type":       "story_outcome",
			"story_id":   "2-17",
			"component":  "agents",
			"importance": "critical",
			"created_at": "2025-12-20",
		},
		domain.KnowledgeTypeErrorPattern: {
			"unique_id":  "error-qdrant-connection-timeout",
			"type":       "error_pattern",
			"component":  "qdrant",
			"severity":   "high",
			"importance": "high",
			"created_at": "2025-12-29",
		},
		domain.KnowledgeTypeDatabaseSchema: {
			"unique_id":  "schema-chunks-postgres",
			"type":       "database_schema",
			"table_name": "chunks",
			"database":   "postgresql",
			"component":  "postgres",
			"importance": "critical",
			"created_at": "2025-12-29",
		},
		domain.KnowledgeTypeConfigPattern: {
			"unique_id":  "config-qdrant-connection",
			"type":       "config_pattern",
			"component":  "qdrant",
			"importance": "high",
			"created_at": "2025-12-29",
		},
		domain.KnowledgeTypeIntegrationExample: {
			"unique_id":  "integration-agent15-qdrant",
			"type":       "integration_example",
			"component":  "agents",
			"importance": "medium",
			"created_at": "2025-12-29",
		},
		domain.KnowledgeTypeBestPractice: {
			"unique_id":     "bp-qdrant-batch-upsert-2024-12-28",
			"type":          "best_practice",
			"domain":        "vector_search",
			"technology":    "qdrant",
			"category":      "performance",
			"component":     "qdrant",
			"importance":    "high",
			"created_at":    "2024-12-28",
			"discovered_by": "agent_15",
		},
	}
}

func rules(vs []Violation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Rule)
	}
	return out
}

func TestEmbeddedSchemas_AcceptValidMetadata(t *testing.T) {
	registry := NewRegistry(NewEmbeddedSource())
	ctx := context.Background()

	require.NoError(t, registry.Preload(ctx))
	assert.Len(t, registry.Loaded(), 8)

	for kt, md := range validMetadata() {
		t.Run(string(kt), func(t *testing.T) {
			s, err := registry.Load(ctx, kt)
			require.NoError(t, err)

			violations, err := s.Validate(md)
			require.NoError(t, err)
			assert.Empty(t, violations)
		})
	}
}

func TestEmbeddedSchemas_RejectInvalidMetadata(t *testing.T) {
	registry := NewRegistry(NewEmbeddedSource())
	ctx := context.Background()

	tests := []struct {
		name   string
		typ    domain.KnowledgeType
		mutate func(map[string]any)
		rule   string
	}{
		{
			name:   "story outcome without -complete suffix",
			typ:    domain.KnowledgeTypeStoryOutcome,
			mutate: func(m map[string]any) { m["unique_id"] = "story-2-17" },
			rule:   "pattern",
		},
		{
			name:   "database schema id carrying a date",
			typ:    domain.KnowledgeTypeDatabaseSchema,
			mutate: func(m map[string]any) { m["unique_id"] = "schema-chunks-2025-12-29" },
			rule:   "pattern",
		},
		{
			name:   "component outside enum",
			typ:    domain.KnowledgeTypeArchitectureDecision,
			mutate: func(m map[string]any) { m["component"] = "invalid_component_name" },
			rule:   "enum",
		},
		{
			name:   "importance outside enum",
			typ:    domain.KnowledgeTypeArchitectureDecision,
			mutate: func(m map[string]any) { m["importance"] = "super-critical" },
			rule:   "enum",
		},
		{
			name: "best practice missing discovery fields",
			typ:  domain.KnowledgeTypeBestPractice,
			mutate: func(m map[string]any) {
				delete(m, "domain")
				delete(m, "discovered_by")
			},
			rule: "required",
		},
		{
			name:   "confidence above one",
			typ:    domain.KnowledgeTypeConfigPattern,
			mutate: func(m map[string]any) { m["confidence"] = 1.5 },
			rule:   "number_lte",
		},
		{
			name:   "malformed content hash",
			typ:    domain.KnowledgeTypeConfigPattern,
			mutate: func(m map[string]any) { m["content_hash"] = "XYZ" },
			rule:   "pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := validMetadata()[tt.typ]
			tt.mutate(md)

			s, err := registry.Load(ctx, tt.typ)
			require.NoError(t, err)

			violations, err := s.Validate(md)
			require.NoError(t, err)
			require.NotEmpty(t, violations)
			assert.Contains(t, rules(violations), tt.rule)
		})
	}
}

func TestSchema_ValidateReportsMissingProperty(t *testing.T) {
	registry := NewRegistry(NewEmbeddedSource())
	s, err := registry.Load(context.Background(), domain.KnowledgeTypeAgentSpec)
	require.NoError(t, err)

	md := validMetadata()[domain.KnowledgeTypeAgentSpec]
	delete(md, "agent_name")

	violations, err := s.Validate(md)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "required", violations[0].Rule)
	assert.Equal(t, "agent_name", violations[0].Property)
}

func TestRegistry_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("caches compiled schema", func(t *testing.T) {
		src := new(MockSource)
		raw, err := NewEmbeddedSource().Read(ctx, domain.KnowledgeTypeConfigPattern)
		require.NoError(t, err)
		src.On("Read", mock.Anything, domain.KnowledgeTypeConfigPattern).Return(raw, nil).Once()

		registry := NewRegistry(src)
		first, err := registry.Load(ctx, domain.KnowledgeTypeConfigPattern)
		require.NoError(t, err)
		second, err := registry.Load(ctx, domain.KnowledgeTypeConfigPattern)
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.JSONEq(t, string(raw), string(first.Raw()))
		src.AssertExpectations(t)
	})

	t.Run("unknown type is not found without touching source", func(t *testing.T) {
		src := new(MockSource)
		registry := NewRegistry(src)

		_, err := registry.Load(ctx, "widget")
		assert.ErrorIs(t, err, domain.ErrSchemaNotFound)
		src.AssertNotCalled(t, "Read", mock.Anything, mock.Anything)
	})

	t.Run("absent schema document", func(t *testing.T) {
		registry := NewRegistry(&FSSource{fsys: fstest.MapFS{}, dir: "."})

		_, err := registry.Load(ctx, domain.KnowledgeTypeAgentSpec)
		assert.ErrorIs(t, err, domain.ErrSchemaNotFound)
	})

	t.Run("invalid JSON is malformed", func(t *testing.T) {
		registry := NewRegistry(&FSSource{fsys: fstest.MapFS{
			"agent_spec.json": {Data: []byte(`{"type": "object",`)},
		}, dir: "."})

		_, err := registry.Load(ctx, domain.KnowledgeTypeAgentSpec)
		assert.ErrorIs(t, err, domain.ErrSchemaMalformed)
	})

	t.Run("uncompilable schema is malformed", func(t *testing.T) {
		registry := NewRegistry(&FSSource{fsys: fstest.MapFS{
			"agent_spec.json": {Data: []byte(`{"type": 42}`)},
		}, dir: "."})

		_, err := registry.Load(ctx, domain.KnowledgeTypeAgentSpec)
		assert.ErrorIs(t, err, domain.ErrSchemaMalformed)
	})

	t.Run("source failure propagates", func(t *testing.T) {
		src := new(MockSource)
		src.On("Read", mock.Anything, domain.KnowledgeTypeAgentSpec).Return(nil, errors.New("disk gone"))

		_, err := NewRegistry(src).Load(ctx, domain.KnowledgeTypeAgentSpec)
		assert.EqualError(t, err, "disk gone")
	})

	t.Run("concurrent loads are safe", func(t *testing.T) {
		registry := NewRegistry(NewEmbeddedSource())
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := registry.Load(ctx, domain.KnowledgeTypeBestPractice)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, []domain.KnowledgeType{domain.KnowledgeTypeBestPractice}, registry.Loaded())
	})
}

func TestRegistry_PreloadJoinsFailures(t *testing.T) {
	registry := NewRegistry(&FSSource{fsys: fstest.MapFS{}, dir: "."})

	err := registry.Preload(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSchemaNotFound)
}

func TestS3Source(t *testing.T) {
	ctx := context.Background()

	t.Run("reads versioned key", func(t *testing.T) {
		objects := new(MockObjectReader)
		objects.On("GetObject", mock.Anything, "schemas/v2/error_pattern.json").Return([]byte(`{"type":"object"}`), nil)

		src := NewS3Source(objects, "/schemas/", "v2")
		data, err := src.Read(ctx, domain.KnowledgeTypeErrorPattern)
		require.NoError(t, err)
		assert.Equal(t, `{"type":"object"}`, string(data))
		objects.AssertExpectations(t)
	})

	t.Run("missing object maps to schema not found", func(t *testing.T) {
		objects := new(MockObjectReader)
		objects.On("GetObject", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: x", storage.ErrObjectNotFound))

		_, err := NewS3Source(objects, "schemas", "v1").Read(ctx, domain.KnowledgeTypeAgentSpec)
		assert.ErrorIs(t, err, domain.ErrSchemaNotFound)
	})
}

func TestDirSource_ReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	src := NewDirSource(dir)

	_, err := src.Read(context.Background(), domain.KnowledgeTypeAgentSpec)
	assert.ErrorIs(t, err, domain.ErrSchemaNotFound)
}
