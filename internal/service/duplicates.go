package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/similarity"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultLookupTimeout = 5 * time.Second

// KnowledgeStore is the read-only view of committed entries the detector consults.
// Lookups that find nothing return domain.ErrEntryNotFound.
type KnowledgeStore interface {
	FindByHash(ctx context.Context, hash string) (*domain.StoredEntry, error)
	FindSimilar(ctx context.Context, content string, threshold float64) ([]domain.SimilarMatch, error)
	FindByUniqueID(ctx context.Context, uniqueID string) (*domain.StoredEntry, error)
}

// DetectorConfig tunes similarity and lookup bounds.
type DetectorConfig struct {
	SimilarityThreshold float64
	LookupTimeout       time.Duration
}

// CheckOptions disables individual lookups for one call.
type CheckOptions struct {
	SkipSimilarity bool
	SkipIDCheck    bool
}

// DuplicateReport is the outcome of the duplicate lookups for one candidate.
type DuplicateReport struct {
	ContentHash string
	Exact       *domain.StoredEntry
	Similar     []domain.SimilarMatch
	Collision   *domain.StoredEntry
	Checks      []string
	Diagnostics domain.Diagnostics
}

// IsDuplicate reports whether the candidate collides by content or identifier.
func (r *DuplicateReport) IsDuplicate() bool {
	return r.Exact != nil || r.Collision != nil
}

// DuplicateDetector looks candidates up in a KnowledgeStore by hash, similarity and unique_id.
type DuplicateDetector struct {
	store  KnowledgeStore
	cfg    DetectorConfig
	logger *zap.Logger
}

// NewDuplicateDetector builds a detector. A nil store makes every check report
// LookupUnavailable. An unset (zero) threshold means similarity.DefaultThreshold.
func NewDuplicateDetector(store KnowledgeStore, cfg DetectorConfig, logger *zap.Logger) *DuplicateDetector {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = similarity.DefaultThreshold
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DuplicateDetector{store: store, cfg: cfg, logger: logger}
}

// Fingerprint returns the lower-case hex SHA-256 of content's UTF-8 bytes.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns the content hash used for exact-duplicate lookups.
func (d *DuplicateDetector) Fingerprint(content string) string {
	return Fingerprint(content)
}

// Threshold returns the configured similarity threshold.
func (d *DuplicateDetector) Threshold() float64 {
	return d.cfg.SimilarityThreshold
}

// Check runs the exact-hash, similarity and identifier lookups concurrently.
// A failed or timed-out lookup degrades to a LookupUnavailable warning.
func (d *DuplicateDetector) Check(ctx context.Context, content string, metadata map[string]any, opts CheckOptions) *DuplicateReport {
	uniqueID, hasID := domain.StringField(metadata, domain.FieldUniqueID)
	ctx, span := telemetry.StartSpan(ctx, "DuplicateDetector.Check", telemetry.SpanAttributes{
		UniqueID:  uniqueID,
		Operation: "check_duplicates",
	})
	defer span.End()

	report := &DuplicateReport{ContentHash: Fingerprint(content)}

	if d.store == nil {
		report.Diagnostics = append(report.Diagnostics,
			domain.NewWarning(domain.CheckExactDuplicate, domain.CodeLookupUnavailable, "no knowledge store configured, duplicate checks skipped"))
		return report
	}

	var (
		exact        *domain.StoredEntry
		similar      []domain.SimilarMatch
		collision    *domain.StoredEntry
		exactDiag    domain.Diagnostics
		similarDiag  domain.Diagnostics
		idDiag       domain.Diagnostics
		runSimilar   = !opts.SkipSimilarity
		runIDCheck   = !opts.SkipIDCheck && hasID
		skippedIDMsg = "no unique_id, identifier collision check not run"
	)

	report.Checks = append(report.Checks, domain.CheckExactDuplicate)
	if runSimilar {
		report.Checks = append(report.Checks, domain.CheckSimilarity)
	}
	if runIDCheck {
		report.Checks = append(report.Checks, domain.CheckIDCollision)
	}

	// Lookups never return errors; each writes only its own variables.
	var g errgroup.Group

	g.Go(func() error {
		entry, err := d.lookup(ctx, func(ctx context.Context) (*domain.StoredEntry, error) {
			return d.store.FindByHash(ctx, report.ContentHash)
		})
		if err != nil {
			exactDiag = append(exactDiag, d.unavailable(domain.CheckExactDuplicate, err))
			return nil
		}
		exact = entry
		return nil
	})

	if runSimilar {
		g.Go(func() error {
			matches, err := withTimeout(ctx, d.cfg.LookupTimeout, func(ctx context.Context) ([]domain.SimilarMatch, error) {
				return d.store.FindSimilar(ctx, content, d.cfg.SimilarityThreshold)
			})
			if err != nil && !errors.Is(err, domain.ErrEntryNotFound) {
				similarDiag = append(similarDiag, d.unavailable(domain.CheckSimilarity, err))
				return nil
			}
			similar = matches
			return nil
		})
	}

	if runIDCheck {
		g.Go(func() error {
			entry, err := d.lookup(ctx, func(ctx context.Context) (*domain.StoredEntry, error) {
				return d.store.FindByUniqueID(ctx, uniqueID)
			})
			if err != nil {
				idDiag = append(idDiag, d.unavailable(domain.CheckIDCollision, err))
				return nil
			}
			collision = entry
			return nil
		})
	}

	_ = g.Wait()

	report.Exact = exact
	report.Collision = collision
	report.Diagnostics = append(report.Diagnostics, exactDiag...)

	if exact != nil {
		report.Diagnostics = append(report.Diagnostics, domain.NewError(domain.CheckExactDuplicate, domain.CodeExactDuplicate,
			fmt.Sprintf("identical content already stored as %s", describeEntry(exact))))
	}

	report.Diagnostics = append(report.Diagnostics, similarDiag...)
	report.Similar = d.filterSimilar(similar, exact)
	for _, m := range report.Similar {
		report.Diagnostics = append(report.Diagnostics, domain.NewWarning(domain.CheckSimilarity, domain.CodeSimilarContentFound,
			fmt.Sprintf("%s scored %.2f (threshold %.2f)", describeMatch(m), m.Score, d.cfg.SimilarityThreshold)))
	}

	switch {
	case !hasID && !opts.SkipIDCheck:
		report.Diagnostics = append(report.Diagnostics, domain.NewInfo(domain.CheckIDCollision, domain.CodeSkipped, skippedIDMsg))
	case runIDCheck:
		report.Diagnostics = append(report.Diagnostics, idDiag...)
		if collision != nil {
			report.Diagnostics = append(report.Diagnostics, domain.NewError(domain.CheckIDCollision, domain.CodeIdentifierCollision,
				fmt.Sprintf("unique_id %q already exists as %s", uniqueID, describeEntry(collision))))
		}
	}

	d.logger.Debug("duplicate check finished",
		zap.String("unique_id", uniqueID),
		zap.String("content_hash", report.ContentHash),
		zap.Bool("exact", exact != nil),
		zap.Int("similar", len(report.Similar)),
		zap.Bool("collision", collision != nil),
	)
	return report
}

// lookup runs one point query under the lookup timeout, mapping not-found to a nil entry.
func (d *DuplicateDetector) lookup(ctx context.Context, fn func(context.Context) (*domain.StoredEntry, error)) (*domain.StoredEntry, error) {
	entry, err := withTimeout(ctx, d.cfg.LookupTimeout, fn)
	if err != nil {
		if errors.Is(err, domain.ErrEntryNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

// withTimeout returns when fn does or when timeout elapses, whichever is first,
// so a store that ignores cancellation cannot stall the caller.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := fn(ctx)
		done <- outcome{val: val, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return o.val, fmt.Errorf("timed out after %s: %w", timeout, o.err)
		}
		return o.val, o.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("timed out after %s: %w", timeout, ctx.Err())
		}
		return zero, ctx.Err()
	}
}

func (d *DuplicateDetector) unavailable(check string, err error) domain.Diagnostic {
	d.logger.Warn("duplicate lookup unavailable", zap.String("check", check), zap.Error(err))
	return domain.NewWarning(check, domain.CodeLookupUnavailable, fmt.Sprintf("%s lookup failed: %v", check, err))
}

// filterSimilar keeps matches at or above the threshold, drops the exact match, and orders by score.
func (d *DuplicateDetector) filterSimilar(matches []domain.SimilarMatch, exact *domain.StoredEntry) []domain.SimilarMatch {
	out := make([]domain.SimilarMatch, 0, len(matches))
	for _, m := range matches {
		if m.Score < d.cfg.SimilarityThreshold {
			continue
		}
		if exact != nil && m.EntryID == exact.ID {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func describeEntry(e *domain.StoredEntry) string {
	desc := e.ID
	if e.UniqueID != "" {
		desc = fmt.Sprintf("%q (point %s)", e.UniqueID, e.ID)
	}
	if e.Collection != "" {
		desc += " in " + e.Collection
	}
	return desc
}

func describeMatch(m domain.SimilarMatch) string {
	return describeEntry(&domain.StoredEntry{ID: m.EntryID, UniqueID: m.UniqueID, Collection: m.Collection})
}
