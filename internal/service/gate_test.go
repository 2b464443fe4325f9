package service

import (
	"context"
	"strings"
	"testing"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// decisionContent is 800 characters of plain prose.
var decisionContent = strings.Repeat("Use Qdrant for vector storage. ", 25) + strings.Repeat("x", 25)

func newTestGate(store KnowledgeStore) *PreStorageGate {
	return NewPreStorageGate(schema.NewRegistry(schema.NewEmbeddedSource()), store, DefaultGateConfig(), nil)
}

func hasPrefix(lines []string, prefix string) bool {
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

func TestPreStorageGate_Evaluate(t *testing.T) {
	ctx := context.Background()
	require.Len(t, decisionContent, 800)

	t.Run("valid architecture decision", func(t *testing.T) {
		gate := newTestGate(emptyStore(new(MockKnowledgeStore)))

		decision := gate.Evaluate(ctx, decisionContent, archDecision(), EvaluateOptions{})

		assert.True(t, decision.Accepted)
		assert.Empty(t, decision.Errors)
		assert.Empty(t, decision.Warnings)
		assert.Equal(t, Fingerprint(decisionContent), decision.ContentHash)
		assert.Equal(t, decision.ContentHash, decision.Metadata[domain.FieldContentHash])
		assert.Equal(t, domain.KnowledgeTypeArchitectureDecision, decision.Type)
	})

	t.Run("missing importance", func(t *testing.T) {
		gate := newTestGate(emptyStore(new(MockKnowledgeStore)))
		md := archDecision()
		delete(md, "importance")

		decision := gate.Evaluate(ctx, decisionContent, md, EvaluateOptions{})

		assert.False(t, decision.Accepted)
		assert.Contains(t, decision.Errors, "MissingField: importance")
	})

	t.Run("identifier collision", func(t *testing.T) {
		store := new(MockKnowledgeStore)
		store.On("FindByHash", mock.Anything, mock.Anything).Return(nil, domain.ErrEntryNotFound)
		store.On("FindSimilar", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
		store.On("FindByUniqueID", mock.Anything, "arch-decision-foo-2024-01-01").
			Return(&domain.StoredEntry{ID: "p-1", UniqueID: "arch-decision-foo-2024-01-01"}, nil)
		gate := newTestGate(store)

		decision := gate.Evaluate(ctx, decisionContent, archDecision(), EvaluateOptions{})

		assert.False(t, decision.Accepted)
		assert.True(t, hasPrefix(decision.Errors, "IdentifierCollision"), "%v", decision.Errors)
	})

	t.Run("exact duplicate rejects", func(t *testing.T) {
		store := new(MockKnowledgeStore)
		store.On("FindByHash", mock.Anything, Fingerprint(decisionContent)).
			Return(&domain.StoredEntry{ID: "p-7", ContentHash: Fingerprint(decisionContent)}, nil)
		store.On("FindSimilar", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
		store.On("FindByUniqueID", mock.Anything, mock.Anything).Return(nil, domain.ErrEntryNotFound)

		decision := newTestGate(store).Evaluate(ctx, decisionContent, archDecision(), EvaluateOptions{})

		assert.False(t, decision.Accepted)
		assert.True(t, hasPrefix(decision.Errors, "ExactDuplicate"))
	})

	t.Run("similar content only warns", func(t *testing.T) {
		store := new(MockKnowledgeStore)
		store.On("FindByHash", mock.Anything, mock.Anything).Return(nil, domain.ErrEntryNotFound)
		store.On("FindSimilar", mock.Anything, decisionContent, 0.85).
			Return([]domain.SimilarMatch{{EntryID: "p-3", UniqueID: "arch-decision-bar-2024-01-01", Score: 0.90}}, nil)
		store.On("FindByUniqueID", mock.Anything, mock.Anything).Return(nil, domain.ErrEntryNotFound)

		decision := newTestGate(store).Evaluate(ctx, decisionContent, archDecision(), EvaluateOptions{})

		assert.True(t, decision.Accepted)
		require.Len(t, decision.Warnings, 1)
		assert.True(t, strings.HasPrefix(decision.Warnings[0], "SimilarContentFound"))
		require.Len(t, decision.Similar, 1)
		assert.Equal(t, 0.90, decision.Similar[0].Score)
	})

	t.Run("supplied hash must match content", func(t *testing.T) {
		md := archDecision()
		md["content_hash"] = strings.Repeat("0", 64)

		decision := newTestGate(emptyStore(new(MockKnowledgeStore))).Evaluate(ctx, decisionContent, md, EvaluateOptions{})

		assert.False(t, decision.Accepted)
		assert.True(t, hasPrefix(decision.Errors, "HashMismatch"))
		assert.Equal(t, Fingerprint(decisionContent), decision.Metadata["content_hash"])
	})

	t.Run("matching supplied hash passes", func(t *testing.T) {
		md := archDecision()
		md["content_hash"] = Fingerprint(decisionContent)

		decision := newTestGate(emptyStore(new(MockKnowledgeStore))).Evaluate(ctx, decisionContent, md, EvaluateOptions{})
		assert.True(t, decision.Accepted, "%v", decision.Errors)
	})

	t.Run("quality warnings never block", func(t *testing.T) {
		decision := newTestGate(emptyStore(new(MockKnowledgeStore))).Evaluate(ctx, "TODO", archDecision(), EvaluateOptions{})

		assert.True(t, decision.Accepted)
		assert.Len(t, decision.Warnings, 2)
	})

	t.Run("offline evaluation skips the store", func(t *testing.T) {
		store := new(MockKnowledgeStore)

		decision := newTestGate(store).Evaluate(ctx, decisionContent, archDecision(), EvaluateOptions{SkipDuplicateChecks: true})

		assert.True(t, decision.Accepted)
		assert.Empty(t, decision.Warnings)
		assert.True(t, hasPrefix(decision.Notes, "Skipped"))
		store.AssertNotCalled(t, "FindByHash", mock.Anything, mock.Anything)
	})

	t.Run("no store warns but accepts", func(t *testing.T) {
		decision := newTestGate(nil).Evaluate(ctx, decisionContent, archDecision(), EvaluateOptions{})

		assert.True(t, decision.Accepted)
		assert.True(t, hasPrefix(decision.Warnings, "LookupUnavailable"))
	})

	t.Run("validation errors and duplicate findings are both reported", func(t *testing.T) {
		store := new(MockKnowledgeStore)
		store.On("FindByHash", mock.Anything, mock.Anything).Return(&domain.StoredEntry{ID: "p-7"}, nil)
		store.On("FindSimilar", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
		store.On("FindByUniqueID", mock.Anything, mock.Anything).Return(nil, domain.ErrEntryNotFound)
		md := archDecision()
		md["importance"] = "urgent"

		decision := newTestGate(store).Evaluate(ctx, decisionContent, md, EvaluateOptions{})

		assert.True(t, hasPrefix(decision.Errors, "InvalidEnum"))
		assert.True(t, hasPrefix(decision.Errors, "ExactDuplicate"))
	})

	t.Run("input metadata is not mutated", func(t *testing.T) {
		md := archDecision()
		before := mustMarshal(t, md)

		first := newTestGate(emptyStore(new(MockKnowledgeStore))).Evaluate(ctx, decisionContent, md, EvaluateOptions{})
		second := newTestGate(emptyStore(new(MockKnowledgeStore))).Evaluate(ctx, decisionContent, md, EvaluateOptions{})

		assert.Equal(t, before, mustMarshal(t, md))
		assert.Equal(t, first.Errors, second.Errors)
		assert.Equal(t, first.Metadata, second.Metadata)
	})
}

func TestDecision_Summary(t *testing.T) {
	tests := []struct {
		name     string
		decision Decision
		want     string
	}{
		{
			name:     "passed",
			decision: Decision{Accepted: true},
			want:     "VALIDATION PASSED\n",
		},
		{
			name:     "passed with warnings",
			decision: Decision{Accepted: true, Warnings: []string{"FormatMismatch: prefix"}},
			want:     "VALIDATION PASSED with warnings:\n  - FormatMismatch: prefix\n",
		},
		{
			name:     "failed",
			decision: Decision{Errors: []string{"MissingField: type"}, Warnings: []string{"ContentQuality: short"}},
			want:     "VALIDATION FAILED:\n  - MissingField: type\n\nWarnings:\n  - ContentQuality: short\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.decision.Summary())
		})
	}
}
