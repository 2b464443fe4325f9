// Package memstore is a process-local knowledge store for offline runs and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/similarity"
)

// Store keeps entries per collection in insertion order. Similarity is a linear
// scan through scorer. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]*domain.StoredEntry
	order       []string
	scorer      similarity.Scorer
}

// New returns an empty store. A nil scorer falls back to word-set Jaccard.
func New(scorer similarity.Scorer) *Store {
	if scorer == nil {
		scorer = similarity.JaccardScorer{}
	}
	return &Store{
		collections: make(map[string][]*domain.StoredEntry),
		scorer:      scorer,
	}
}

func (s *Store) Insert(ctx context.Context, e *domain.StoredEntry) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("entry id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[e.Collection]; !ok {
		s.order = append(s.order, e.Collection)
	}
	s.collections[e.Collection] = append(s.collections[e.Collection], clone(e))
	return nil
}

func (s *Store) FindByHash(ctx context.Context, hash string) (*domain.StoredEntry, error) {
	return s.first(func(e *domain.StoredEntry) bool { return e.ContentHash == hash })
}

func (s *Store) FindByUniqueID(ctx context.Context, uniqueID string) (*domain.StoredEntry, error) {
	return s.first(func(e *domain.StoredEntry) bool { return e.UniqueID == uniqueID })
}

// FindSimilar scores content against every entry and returns those at or above
// threshold, best first.
func (s *Store) FindSimilar(ctx context.Context, content string, threshold float64) ([]domain.SimilarMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.SimilarMatch
	for _, name := range s.order {
		for _, e := range s.collections[name] {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			score, err := s.scorer.Score(ctx, content, e.Content)
			if err != nil {
				return nil, fmt.Errorf("score %s: %w", e.ID, err)
			}
			if score >= threshold {
				out = append(out, domain.SimilarMatch{
					EntryID:    e.ID,
					UniqueID:   e.UniqueID,
					Collection: e.Collection,
					Score:      score,
				})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (s *Store) List(ctx context.Context, collection string, limit int) ([]*domain.StoredEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.collections[collection]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]*domain.StoredEntry, len(entries))
	for i, e := range entries {
		out[i] = clone(e)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, collection string, ids []string) error {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection]; !ok {
		return nil
	}
	kept := s.collections[collection][:0]
	for _, e := range s.collections[collection] {
		if !drop[e.ID] {
			kept = append(kept, e)
		}
	}
	s.collections[collection] = kept
	return nil
}

func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.collections[collection])), nil
}

func (s *Store) first(match func(*domain.StoredEntry) bool) (*domain.StoredEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, name := range s.order {
		for _, e := range s.collections[name] {
			if match(e) {
				return clone(e), nil
			}
		}
	}
	return nil, domain.ErrEntryNotFound
}

func clone(e *domain.StoredEntry) *domain.StoredEntry {
	c := *e
	c.Metadata = make(map[string]any, len(e.Metadata))
	for k, v := range e.Metadata {
		c.Metadata[k] = v
	}
	return &c
}
