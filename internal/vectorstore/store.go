package vectorstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/similarity"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/telemetry"
	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

const (
	DefaultPageSize  = 100
	DefaultScanLimit = 500
	defaultTopK      = 10
)

// Points is the subset of Client the store needs.
type Points interface {
	Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]*pb.Value) error
	Scroll(ctx context.Context, collection string, filter *pb.Filter, limit int) ([]Point, error)
	Search(ctx context.Context, collection string, vector []float32, topK uint64, threshold float32) ([]Point, error)
	Delete(ctx context.Context, collection string, ids []string) error
	Count(ctx context.Context, collection string) (uint64, error)
}

type StoreConfig struct {
	Collections []string
	// ScanLimit bounds the lexical similarity scan per collection.
	ScanLimit int
}

// Store is a KnowledgeStore over Qdrant collections. With an embedder it finds
// similar content by vector search; without one it scans payloads lexically
// and cannot write.
type Store struct {
	points   Points
	embedder similarity.Embedder
	lexical  similarity.Scorer
	cfg      StoreConfig
	logger   *zap.Logger
}

func NewStore(points Points, embedder similarity.Embedder, cfg StoreConfig, logger *zap.Logger) *Store {
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = DefaultScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		points:   points,
		embedder: embedder,
		lexical:  similarity.JaccardScorer{},
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *Store) FindByHash(ctx context.Context, hash string) (*domain.StoredEntry, error) {
	return s.findOne(ctx, domain.FieldContentHash, hash)
}

func (s *Store) FindByUniqueID(ctx context.Context, uniqueID string) (*domain.StoredEntry, error) {
	return s.findOne(ctx, domain.FieldUniqueID, uniqueID)
}

func (s *Store) findOne(ctx context.Context, key, value string) (*domain.StoredEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "QdrantStore.Find", telemetry.SpanAttributes{Operation: "find_by_" + key})
	defer span.End()

	filter := keywordFilter(key, value)
	for _, collection := range s.cfg.Collections {
		points, err := s.points.Scroll(ctx, collection, filter, 1)
		if err != nil {
			span.SetError(err)
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUnavailable, "qdrant lookup failed", err)
		}
		if len(points) > 0 {
			return toEntry(collection, points[0]), nil
		}
	}
	return nil, domain.ErrEntryNotFound
}

// FindSimilar returns entries across all collections scoring at or above threshold.
func (s *Store) FindSimilar(ctx context.Context, content string, threshold float64) ([]domain.SimilarMatch, error) {
	ctx, span := telemetry.StartSpan(ctx, "QdrantStore.FindSimilar", telemetry.SpanAttributes{Operation: "find_similar"})
	defer span.End()

	var (
		out []domain.SimilarMatch
		err error
	)
	if s.embedder != nil {
		out, err = s.searchSimilar(ctx, content, threshold)
	} else {
		out, err = s.scanSimilar(ctx, content, threshold)
	}
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (s *Store) searchSimilar(ctx context.Context, content string, threshold float64) ([]domain.SimilarMatch, error) {
	vec, err := s.embedder.GenerateEmbedding(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embed candidate: %w", err)
	}

	var out []domain.SimilarMatch
	for _, collection := range s.cfg.Collections {
		points, err := s.points.Search(ctx, collection, vec, defaultTopK, float32(threshold))
		if err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUnavailable, "qdrant search failed", err)
		}
		for _, p := range points {
			e := toEntry(collection, p)
			out = append(out, domain.SimilarMatch{EntryID: e.ID, UniqueID: e.UniqueID, Collection: collection, Score: float64(p.Score)})
		}
	}
	return out, nil
}

func (s *Store) scanSimilar(ctx context.Context, content string, threshold float64) ([]domain.SimilarMatch, error) {
	var out []domain.SimilarMatch
	for _, collection := range s.cfg.Collections {
		points, err := s.points.Scroll(ctx, collection, nil, s.cfg.ScanLimit)
		if err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUnavailable, "qdrant scroll failed", err)
		}
		for _, p := range points {
			e := toEntry(collection, p)
			if e.Content == "" {
				continue
			}
			score, err := s.lexical.Score(ctx, content, e.Content)
			if err != nil {
				return nil, err
			}
			if score >= threshold {
				out = append(out, domain.SimilarMatch{EntryID: e.ID, UniqueID: e.UniqueID, Collection: collection, Score: score})
			}
		}
	}
	return out, nil
}

// Insert embeds the entry content and upserts it with its metadata as a flat payload.
func (s *Store) Insert(ctx context.Context, e *domain.StoredEntry) error {
	ctx, span := telemetry.StartSpan(ctx, "QdrantStore.Insert", telemetry.SpanAttributes{
		UniqueID:   e.UniqueID,
		Collection: e.Collection,
		Operation:  "insert",
	})
	defer span.End()

	if s.embedder == nil {
		return domain.ErrEmbeddingDisabled
	}
	vec, err := s.embedder.GenerateEmbedding(ctx, e.Content)
	if err != nil {
		return fmt.Errorf("embed entry: %w", err)
	}

	payload, err := ToPayload(e.Metadata)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "metadata cannot be stored as payload", err)
	}
	payload[payloadContent] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: e.Content}}
	payload[domain.FieldContentHash] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: e.ContentHash}}

	if err := s.points.Upsert(ctx, e.Collection, e.ID, vec, payload); err != nil {
		span.SetError(err)
		return domain.NewDomainErrorWithCause(domain.ErrCodeUnavailable, "qdrant upsert failed", err)
	}
	s.logger.Debug("point upserted", zap.String("collection", e.Collection), zap.String("point_id", e.ID))
	return nil
}

func (s *Store) List(ctx context.Context, collection string, limit int) ([]*domain.StoredEntry, error) {
	points, err := s.points.Scroll(ctx, collection, nil, limit)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUnavailable, "qdrant scroll failed", err)
	}
	out := make([]*domain.StoredEntry, len(points))
	for i, p := range points {
		out[i] = toEntry(collection, p)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.points.Delete(ctx, collection, ids)
}

func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	n, err := s.points.Count(ctx, collection)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// toEntry maps a point onto the stored-entry read model.
func toEntry(collection string, p Point) *domain.StoredEntry {
	content, md := splitPayload(p.Payload)
	uniqueID, _ := domain.StringField(md, domain.FieldUniqueID)
	hash, _ := domain.StringField(md, domain.FieldContentHash)
	return &domain.StoredEntry{
		ID:          p.ID,
		UniqueID:    uniqueID,
		Collection:  collection,
		ContentHash: hash,
		Content:     content,
		Metadata:    md,
	}
}
