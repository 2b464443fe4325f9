package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func stored(id, uniqueID string, fields ...string) *domain.StoredEntry {
	md := map[string]any{}
	if uniqueID != "" {
		md["unique_id"] = uniqueID
	}
	for _, f := range fields {
		md[f] = "x"
	}
	return &domain.StoredEntry{ID: id, UniqueID: uniqueID, Metadata: md}
}

var complete = []string{"type", "component", "importance"}

func TestKnowledgeService_Audit(t *testing.T) {
	ctx := context.Background()
	repo := new(MockEntryRepository)
	repo.On("List", mock.Anything, "bmad-knowledge", 500).Return([]*domain.StoredEntry{
		stored("p1", "arch-decision-a-2024-01-01", complete...),
		stored("p2", "arch-decision-a-2024-01-01", complete...),
		stored("p3", "story-test-1-complete", complete...),
		stored("p4", "", "type"),
		stored("p5", "config-x", "type", "component"),
	}, nil)
	repo.On("List", mock.Anything, "bmad-best-practices", 500).Return(nil, errors.New("collection missing"))

	audits := newTestKnowledgeService(repo).Audit(ctx, AuditOptions{})

	require.Len(t, audits, 2)
	kb := audits[0]
	assert.Equal(t, "bmad-knowledge", kb.Collection)
	assert.Equal(t, 5, kb.Total)

	require.Len(t, kb.Duplicates, 1)
	assert.Equal(t, "p2", kb.Duplicates[0].EntryID)
	assert.Equal(t, "p1", kb.Duplicates[0].FirstSeen)

	require.Len(t, kb.TestEntries, 1)
	assert.Equal(t, "p3", kb.TestEntries[0].EntryID)

	require.Len(t, kb.Invalid, 2)
	assert.Equal(t, "(no unique_id)", kb.Invalid[0].UniqueID)
	assert.Equal(t, []string{"unique_id", "component", "importance"}, kb.Invalid[0].MissingFields)
	assert.Equal(t, []string{"importance"}, kb.Invalid[1].MissingFields)
	assert.Equal(t, 4, kb.Issues())

	assert.Equal(t, "collection missing", audits[1].Err)
	assert.Zero(t, audits[1].Issues())
}

func TestPlanPurge(t *testing.T) {
	audits := []*CollectionAudit{{
		Collection: "bmad-knowledge",
		Duplicates: []Finding{{Kind: FindingDuplicate, EntryID: "p2", UniqueID: "e2e-a"}},
		Invalid:    []Finding{{Kind: FindingInvalid, EntryID: "p4", MissingFields: []string{"type"}}},
		TestEntries: []Finding{
			{Kind: FindingTestEntry, EntryID: "p2", UniqueID: "e2e-a"},
			{Kind: FindingTestEntry, EntryID: "p3", UniqueID: "test-b"},
		},
	}}

	t.Run("everything, each entry once", func(t *testing.T) {
		plan := PlanPurge(audits, PurgeFilter{})

		require.Len(t, plan["bmad-knowledge"], 3)
		assert.Equal(t, "duplicate of ", plan["bmad-knowledge"][0].Reason())
		assert.Equal(t, "invalid (missing: type)", plan["bmad-knowledge"][1].Reason())
		assert.Equal(t, "test entry", plan["bmad-knowledge"][2].Reason())
	})

	t.Run("test entries only", func(t *testing.T) {
		plan := PlanPurge(audits, PurgeFilter{TestEntries: true})

		require.Len(t, plan["bmad-knowledge"], 2)
		assert.Equal(t, "p2", plan["bmad-knowledge"][0].EntryID)
		assert.Equal(t, "p3", plan["bmad-knowledge"][1].EntryID)
	})
}

func TestKnowledgeService_Purge(t *testing.T) {
	ctx := context.Background()
	plan := map[string][]Finding{
		"bmad-knowledge":      {{EntryID: "p2"}, {EntryID: "p3"}},
		"bmad-best-practices": {{EntryID: "q1"}},
		"empty":               nil,
	}

	t.Run("dry run deletes nothing", func(t *testing.T) {
		repo := new(MockEntryRepository)

		result := newTestKnowledgeService(repo).Purge(ctx, plan, true)

		assert.True(t, result.DryRun)
		assert.Equal(t, map[string]int{"bmad-knowledge": 2, "bmad-best-practices": 1}, result.Planned)
		assert.Empty(t, result.Deleted)
		repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("execute deletes and reports failures per collection", func(t *testing.T) {
		repo := new(MockEntryRepository)
		repo.On("Delete", mock.Anything, "bmad-knowledge", []string{"p2", "p3"}).Return(nil)
		repo.On("Delete", mock.Anything, "bmad-best-practices", []string{"q1"}).Return(errors.New("timeout"))

		result := newTestKnowledgeService(repo).Purge(ctx, plan, false)

		assert.Equal(t, map[string]int{"bmad-knowledge": 2}, result.Deleted)
		assert.Equal(t, []string{"bmad-best-practices: timeout"}, result.Errors)
		repo.AssertExpectations(t)
	})
}
