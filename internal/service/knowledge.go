package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EntryRepositoryInterface is a KnowledgeStore that can also be written to and scanned.
type EntryRepositoryInterface interface {
	KnowledgeStore
	Insert(ctx context.Context, e *domain.StoredEntry) error
	List(ctx context.Context, collection string, limit int) ([]*domain.StoredEntry, error)
	Delete(ctx context.Context, collection string, ids []string) error
	Count(ctx context.Context, collection string) (int64, error)
}

// CollectionRouter maps knowledge types to collection names.
type CollectionRouter interface {
	CollectionFor(t domain.KnowledgeType) string
	Collections() []string
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// KnowledgeService stores entries that pass the gate and maintains the collections they land in.
type KnowledgeService struct {
	gate    *PreStorageGate
	repo    EntryRepositoryInterface
	router  CollectionRouter
	uuidGen UUIDGenerator
	now     func() time.Time
	logger  *zap.Logger
}

func NewKnowledgeService(gate *PreStorageGate, repo EntryRepositoryInterface, router CollectionRouter, logger *zap.Logger) *KnowledgeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnowledgeService{
		gate:    gate,
		repo:    repo,
		router:  router,
		uuidGen: &DefaultUUIDGenerator{},
		now:     time.Now,
		logger:  logger,
	}
}

// NewKnowledgeServiceWithDeps creates a KnowledgeService with fixed ids and clock (for testing)
func NewKnowledgeServiceWithDeps(gate *PreStorageGate, repo EntryRepositoryInterface, router CollectionRouter, uuidGen UUIDGenerator, now func() time.Time) *KnowledgeService {
	s := NewKnowledgeService(gate, repo, router, nil)
	s.uuidGen = uuidGen
	s.now = now
	return s
}

type StoreInput struct {
	Content  string
	Metadata map[string]any
	DryRun   bool
	Options  EvaluateOptions
}

type StoreResult struct {
	Decision *Decision          `json:"decision"`
	Entry    *domain.StoredEntry `json:"entry,omitempty"`
	Stored   bool               `json:"stored"`
}

// Store evaluates the candidate and, when accepted, writes it to the collection its
// type routes to. A rejected candidate is not an error: the result carries the decision.
// Duplicate checks may only be skipped for a dry run.
func (s *KnowledgeService) Store(ctx context.Context, in StoreInput) (*StoreResult, error) {
	uniqueID, _ := domain.StringField(in.Metadata, domain.FieldUniqueID)
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Store", telemetry.SpanAttributes{
		UniqueID:  uniqueID,
		Operation: "store",
	})
	defer span.End()

	if in.Content == "" {
		return nil, domain.ErrEmptyContent
	}
	if in.Metadata == nil {
		return nil, domain.ErrMissingMetadata
	}
	if in.Options.SkipDuplicateChecks && !in.DryRun {
		return nil, domain.ErrDuplicateChecksRequired
	}

	decision := s.gate.Evaluate(ctx, in.Content, in.Metadata, in.Options)
	result := &StoreResult{Decision: decision}
	if !decision.Accepted {
		return result, nil
	}

	metadata := make(map[string]any, len(decision.Metadata)+1)
	for k, v := range decision.Metadata {
		metadata[k] = v
	}
	metadata[domain.FieldStoredAt] = s.now().UTC().Format(time.RFC3339)

	entry := &domain.StoredEntry{
		ID:          s.uuidGen.NewString(),
		UniqueID:    uniqueID,
		Collection:  s.router.CollectionFor(decision.Type),
		ContentHash: decision.ContentHash,
		Content:     in.Content,
		Metadata:    metadata,
	}
	result.Entry = entry

	if in.DryRun {
		return result, nil
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		span.SetError(err)
		telemetry.CaptureError(ctx, err)
		return nil, fmt.Errorf("failed to store entry %s: %w", uniqueID, err)
	}
	result.Stored = true

	s.logger.Info("entry stored",
		zap.String("unique_id", uniqueID),
		zap.String("collection", entry.Collection),
		zap.String("point_id", entry.ID),
	)
	return result, nil
}

// CollectionStats is the point count of one collection.
type CollectionStats struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Stats counts entries in every routed collection.
func (s *KnowledgeService) Stats(ctx context.Context) ([]CollectionStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Stats", telemetry.SpanAttributes{Operation: "stats"})
	defer span.End()

	var out []CollectionStats
	for _, name := range s.router.Collections() {
		n, err := s.repo.Count(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", name, err)
		}
		out = append(out, CollectionStats{Name: name, Count: n})
	}
	return out, nil
}

// Export returns up to limit entries of collection.
func (s *KnowledgeService) Export(ctx context.Context, collection string, limit int) ([]*domain.StoredEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Export", telemetry.SpanAttributes{
		Collection: collection,
		Operation:  "export",
	})
	defer span.End()

	return s.repo.List(ctx, collection, limit)
}
