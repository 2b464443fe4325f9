package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/memstore"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/schema"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockKnowledgeService struct {
	mock.Mock
}

func (m *MockKnowledgeService) Store(ctx context.Context, in service.StoreInput) (*service.StoreResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.StoreResult), args.Error(1)
}

func (m *MockKnowledgeService) Stats(ctx context.Context) ([]service.CollectionStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.CollectionStats), args.Error(1)
}

func TestEntryHandler_Create(t *testing.T) {
	body := map[string]any{
		"content":  "Use cosine distance.",
		"metadata": map[string]any{"unique_id": "bp-cosine"},
	}
	stored := &domain.StoredEntry{ID: "3f0c", UniqueID: "bp-cosine", Collection: "bmad-best-practices"}

	tests := []struct {
		name     string
		dryRun   bool
		result   *service.StoreResult
		err      error
		status   int
		hasEntry bool
	}{
		{
			name:     "stored",
			result:   &service.StoreResult{Decision: &service.Decision{Accepted: true}, Entry: stored, Stored: true},
			status:   http.StatusCreated,
			hasEntry: true,
		},
		{
			name:     "accepted dry run",
			dryRun:   true,
			result:   &service.StoreResult{Decision: &service.Decision{Accepted: true}, Entry: stored},
			status:   http.StatusOK,
			hasEntry: true,
		},
		{
			name:   "rejected",
			result: &service.StoreResult{Decision: &service.Decision{Errors: []string{"ExactDuplicate: p-1"}}},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "store unavailable",
			err:    fmt.Errorf("failed to store entry bp-cosine: %w", domain.ErrStoreUnavailable),
			status: http.StatusServiceUnavailable,
		},
		{
			name:   "empty content",
			err:    domain.ErrEmptyContent,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockKnowledgeService)
			svc.On("Store", mock.Anything, mock.MatchedBy(func(in service.StoreInput) bool {
				return in.Content == "Use cosine distance." && in.DryRun == tt.dryRun
			})).Return(tt.result, tt.err)

			req := map[string]any{"content": body["content"], "metadata": body["metadata"], "dry_run": tt.dryRun}
			w := httptest.NewRecorder()
			NewEntryHandler(svc).Create(w, httptest.NewRequest(http.MethodPost, "/v1/entries", jsonBody(t, req)))

			assert.Equal(t, tt.status, w.Code)
			if tt.err != nil {
				return
			}
			var resp CreateEntryResponse
			decodeData(t, w, &resp)
			require.NotNil(t, resp.Decision)
			assert.Equal(t, tt.result.Stored, resp.Stored)
			if tt.hasEntry {
				require.NotNil(t, resp.Entry)
				assert.Equal(t, "bmad-best-practices", resp.Entry.Collection)
			} else {
				assert.Nil(t, resp.Entry)
			}
		})
	}
}

func TestEntryHandler_Stats(t *testing.T) {
	svc := new(MockKnowledgeService)
	svc.On("Stats", mock.Anything).Return([]service.CollectionStats{{Name: "bmad-knowledge", Count: 4}}, nil)
	w := httptest.NewRecorder()

	NewEntryHandler(svc).Stats(w, httptest.NewRequest(http.MethodGet, "/v1/collections", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var stats []service.CollectionStats
	decodeData(t, w, &stats)
	assert.Equal(t, []service.CollectionStats{{Name: "bmad-knowledge", Count: 4}}, stats)
}

type singleCollection struct{}

func (singleCollection) CollectionFor(domain.KnowledgeType) string { return "bmad-knowledge" }
func (singleCollection) Collections() []string                    { return []string{"bmad-knowledge"} }

func TestEntryHandler_CreateKeepsDuplicateChecks(t *testing.T) {
	store := memstore.New(nil)
	gate := service.NewPreStorageGate(schema.NewRegistry(schema.NewEmbeddedSource()), store, service.DefaultGateConfig(), nil)
	h := NewEntryHandler(service.NewKnowledgeService(gate, store, singleCollection{}, nil))

	req := map[string]any{
		"content": strings.Repeat("Route every write through the pre-storage gate. ", 4),
		"metadata": map[string]any{
			"unique_id":  "arch-decision-gate-2024-01-01",
			"type":       "architecture_decision",
			"component":  "storage",
			"importance": "high",
			"created_at": "2024-01-01",
		},
	}

	w := httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/v1/entries", jsonBody(t, req)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	req["options"] = map[string]any{"skip_duplicate_checks": true}
	w = httptest.NewRecorder()
	h.Create(w, httptest.NewRequest(http.MethodPost, "/v1/entries", jsonBody(t, req)))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_OPERATION")

	n, err := store.Count(context.Background(), "bmad-knowledge")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
