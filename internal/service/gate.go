package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/similarity"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/telemetry"
	"go.uber.org/zap"
)

// GateConfig carries every tunable of the pre-storage pipeline.
type GateConfig struct {
	SimilarityThreshold float64
	MaxMetadataBytes    int
	MaxDepth            int
	MinContentLength    int
	MaxContentLength    int
	Placeholders        []string
	LookupTimeout       time.Duration
}

// DefaultGateConfig returns the stock thresholds.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		SimilarityThreshold: similarity.DefaultThreshold,
		MaxMetadataBytes:    DefaultMaxMetadataBytes,
		MaxDepth:            DefaultMaxDepth,
		MinContentLength:    DefaultMinContentLength,
		MaxContentLength:    DefaultMaxContentLength,
		Placeholders:        DefaultPlaceholders,
		LookupTimeout:       DefaultLookupTimeout,
	}
}

// EvaluateOptions narrows one evaluation.
type EvaluateOptions struct {
	// SkipDuplicateChecks runs validation only, without consulting the store.
	SkipDuplicateChecks bool
	SkipSimilarity      bool
}

// Decision is the gate's verdict on a candidate entry.
type Decision struct {
	Accepted    bool                  `json:"accepted"`
	Errors      []string              `json:"errors"`
	Warnings    []string              `json:"warnings"`
	Notes       []string              `json:"notes"`
	ContentHash string                `json:"content_hash"`
	Type        domain.KnowledgeType  `json:"type,omitempty"`
	Metadata    map[string]any        `json:"metadata"`
	Similar     []domain.SimilarMatch `json:"similar,omitempty"`
	Checks      []string              `json:"checks"`
	Diagnostics domain.Diagnostics    `json:"diagnostics"`
}

// Summary renders the decision as a human-readable report.
func (d *Decision) Summary() string {
	var b strings.Builder
	switch {
	case !d.Accepted:
		b.WriteString("VALIDATION FAILED:\n")
		writeBullets(&b, d.Errors)
		if len(d.Warnings) > 0 {
			b.WriteString("\nWarnings:\n")
			writeBullets(&b, d.Warnings)
		}
	case len(d.Warnings) > 0:
		b.WriteString("VALIDATION PASSED with warnings:\n")
		writeBullets(&b, d.Warnings)
	default:
		b.WriteString("VALIDATION PASSED\n")
	}
	return b.String()
}

func writeBullets(b *strings.Builder, lines []string) {
	for _, l := range lines {
		fmt.Fprintf(b, "  - %s\n", l)
	}
}

// PreStorageGate combines metadata validation, content checks and duplicate
// detection into one accept/reject decision. It holds no per-call state.
type PreStorageGate struct {
	validator *MetadataValidator
	detector  *DuplicateDetector
	content   ContentRules
	logger    *zap.Logger
}

// NewPreStorageGate wires a gate. store may be nil, in which case duplicate
// checks degrade to LookupUnavailable warnings.
func NewPreStorageGate(schemas SchemaLoader, store KnowledgeStore, cfg GateConfig, logger *zap.Logger) *PreStorageGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Placeholders == nil {
		cfg.Placeholders = DefaultPlaceholders
	}
	return &PreStorageGate{
		validator: NewMetadataValidator(schemas, ValidatorConfig{
			MaxMetadataBytes: cfg.MaxMetadataBytes,
			MaxDepth:         cfg.MaxDepth,
		}, logger),
		detector: NewDuplicateDetector(store, DetectorConfig{
			SimilarityThreshold: cfg.SimilarityThreshold,
			LookupTimeout:       cfg.LookupTimeout,
		}, logger),
		content: ContentRules{
			MinLength:    cfg.MinContentLength,
			MaxLength:    cfg.MaxContentLength,
			Placeholders: cfg.Placeholders,
		},
		logger: logger,
	}
}

func (g *PreStorageGate) Validator() *MetadataValidator { return g.validator }

// Evaluate decides whether content and metadata may be stored. It never writes
// to the store and adds nothing but content_hash to the returned metadata.
func (g *PreStorageGate) Evaluate(ctx context.Context, content string, metadata map[string]any, opts EvaluateOptions) *Decision {
	uniqueID, _ := domain.StringField(metadata, domain.FieldUniqueID)
	typeName, _ := domain.StringField(metadata, domain.FieldType)
	ctx, span := telemetry.StartSpan(ctx, "PreStorageGate.Evaluate", telemetry.SpanAttributes{
		UniqueID:      uniqueID,
		KnowledgeType: typeName,
		Operation:     "evaluate",
	})
	defer span.End()

	start := time.Now()
	var diags domain.Diagnostics
	var checks []string

	validation := g.validator.Validate(ctx, metadata)
	diags = append(diags, validation.Diagnostics...)
	checks = append(checks, validation.Checks...)

	hash := Fingerprint(content)
	checks = append(checks, domain.CheckContentHash)
	if supplied, ok := metadata[domain.FieldContentHash].(string); ok && supplied != hash {
		diags = append(diags, domain.Diagnostic{
			Check:   domain.CheckContentHash,
			Code:    domain.CodeHashMismatch,
			Level:   domain.LevelError,
			Field:   domain.FieldContentHash,
			Message: fmt.Sprintf("content_hash %q does not match content (expected %s)", supplied, hash),
		})
	}

	checks = append(checks, domain.CheckContentQuality)
	diags = append(diags, CheckContentQuality(content, g.content)...)

	var similar []domain.SimilarMatch
	if opts.SkipDuplicateChecks {
		diags = append(diags, domain.NewInfo(domain.CheckExactDuplicate, domain.CodeSkipped, "duplicate checks disabled for offline evaluation"))
	} else {
		report := g.detector.Check(ctx, content, metadata, CheckOptions{SkipSimilarity: opts.SkipSimilarity})
		diags = append(diags, report.Diagnostics...)
		checks = append(checks, report.Checks...)
		similar = report.Similar
	}

	decision := &Decision{
		Accepted:    !diags.HasErrors(),
		Errors:      diags.ByLevel(domain.LevelError),
		Warnings:    diags.ByLevel(domain.LevelWarning),
		Notes:       diags.ByLevel(domain.LevelInfo),
		ContentHash: hash,
		Type:        validation.Type,
		Metadata:    enrich(metadata, hash),
		Similar:     similar,
		Checks:      checks,
		Diagnostics: diags,
	}

	if !decision.Accepted {
		telemetry.AddBreadcrumb(ctx, "gate", fmt.Sprintf("rejected %s with %d errors", uniqueID, len(decision.Errors)))
	}
	g.logger.Info("pre-storage decision",
		zap.String("unique_id", uniqueID),
		zap.String("type", typeName),
		zap.Bool("accepted", decision.Accepted),
		zap.Int("errors", len(decision.Errors)),
		zap.Int("warnings", len(decision.Warnings)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return decision
}

func enrich(metadata map[string]any, hash string) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out[domain.FieldContentHash] = hash
	return out
}
