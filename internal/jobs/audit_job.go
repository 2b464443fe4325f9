package jobs

import (
	"context"
	"fmt"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/service"
	"go.uber.org/zap"
)

// Auditor is the part of the knowledge service the audit job needs.
type Auditor interface {
	Audit(ctx context.Context, opts service.AuditOptions) []*service.CollectionAudit
}

// AuditJob scans the collections and logs what it finds. It never deletes.
type AuditJob struct {
	auditor Auditor
	limit   int
	logger  *zap.Logger
}

func NewAuditJob(auditor Auditor, limit int, logger *zap.Logger) *AuditJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditJob{auditor: auditor, limit: limit, logger: logger}
}

func (j *AuditJob) Name() string { return "collection-audit" }

// Run returns an error when any collection could not be scanned.
func (j *AuditJob) Run(ctx context.Context) error {
	var failed []string
	for _, a := range j.auditor.Audit(ctx, service.AuditOptions{Limit: j.limit}) {
		if a.Err != "" {
			failed = append(failed, a.Collection)
			continue
		}
		fields := []zap.Field{
			zap.String("collection", a.Collection),
			zap.Int("total", a.Total),
			zap.Int("duplicates", len(a.Duplicates)),
			zap.Int("invalid", len(a.Invalid)),
			zap.Int("test_entries", len(a.TestEntries)),
		}
		if a.Issues() > 0 {
			j.logger.Warn("collection audit found issues", fields...)
		} else {
			j.logger.Debug("collection audit clean", fields...)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("audit could not scan %v", failed)
	}
	return nil
}
