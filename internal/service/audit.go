package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/telemetry"
	"go.uber.org/zap"
)

const DefaultScanLimit = 500

// FindingKind classifies what is wrong with a stored entry.
type FindingKind string

const (
	FindingDuplicate FindingKind = "duplicate"
	FindingInvalid   FindingKind = "invalid"
	FindingTestEntry FindingKind = "test_entry"
)

// auditRequiredFields are the keys a stored entry must still carry. created_at is
// left out: entries written before it became mandatory are not broken.
var auditRequiredFields = []string{
	domain.FieldUniqueID,
	domain.FieldType,
	domain.FieldComponent,
	domain.FieldImportance,
}

var testIDMarkers = []string{"test-", "e2e-"}

type Finding struct {
	Kind          FindingKind `json:"kind"`
	EntryID       string      `json:"entry_id"`
	UniqueID      string      `json:"unique_id"`
	FirstSeen     string      `json:"first_seen,omitempty"`
	MissingFields []string    `json:"missing_fields,omitempty"`
}

// Reason renders the finding for a deletion plan.
func (f Finding) Reason() string {
	switch f.Kind {
	case FindingDuplicate:
		return "duplicate of " + f.FirstSeen
	case FindingInvalid:
		return "invalid (missing: " + strings.Join(f.MissingFields, ", ") + ")"
	default:
		return "test entry"
	}
}

// CollectionAudit lists the problems found in one collection.
type CollectionAudit struct {
	Collection  string    `json:"collection"`
	Total       int       `json:"total_entries"`
	Duplicates  []Finding `json:"duplicates"`
	Invalid     []Finding `json:"invalid"`
	TestEntries []Finding `json:"test_entries"`
	Err         string    `json:"error,omitempty"`
}

func (a *CollectionAudit) Issues() int {
	return len(a.Duplicates) + len(a.Invalid) + len(a.TestEntries)
}

type AuditOptions struct {
	// Collections defaults to every routed collection.
	Collections []string
	Limit       int
}

// Audit scans collections for duplicate unique_ids, entries missing required
// fields, and leftovers from test runs. A collection that cannot be read is
// reported in its audit rather than failing the whole scan.
func (s *KnowledgeService) Audit(ctx context.Context, opts AuditOptions) []*CollectionAudit {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Audit", telemetry.SpanAttributes{Operation: "audit"})
	defer span.End()

	collections := opts.Collections
	if len(collections) == 0 {
		collections = s.router.Collections()
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultScanLimit
	}

	audits := make([]*CollectionAudit, 0, len(collections))
	for _, name := range collections {
		entries, err := s.repo.List(ctx, name, limit)
		if err != nil {
			s.logger.Warn("audit scan failed", zap.String("collection", name), zap.Error(err))
			audits = append(audits, &CollectionAudit{Collection: name, Err: err.Error()})
			continue
		}
		audits = append(audits, auditEntries(name, entries))
	}
	return audits
}

func auditEntries(collection string, entries []*domain.StoredEntry) *CollectionAudit {
	audit := &CollectionAudit{Collection: collection, Total: len(entries)}
	seen := make(map[string]string, len(entries))

	for _, e := range entries {
		if e.UniqueID != "" {
			if first, dup := seen[e.UniqueID]; dup {
				audit.Duplicates = append(audit.Duplicates, Finding{
					Kind:      FindingDuplicate,
					EntryID:   e.ID,
					UniqueID:  e.UniqueID,
					FirstSeen: first,
				})
			} else {
				seen[e.UniqueID] = e.ID
			}

			if isTestID(e.UniqueID) {
				audit.TestEntries = append(audit.TestEntries, Finding{Kind: FindingTestEntry, EntryID: e.ID, UniqueID: e.UniqueID})
			}
		}

		var missing []string
		for _, f := range auditRequiredFields {
			if _, ok := e.Metadata[f]; !ok {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			id := e.UniqueID
			if id == "" {
				id = "(no unique_id)"
			}
			audit.Invalid = append(audit.Invalid, Finding{Kind: FindingInvalid, EntryID: e.ID, UniqueID: id, MissingFields: missing})
		}
	}
	return audit
}

func isTestID(uniqueID string) bool {
	lower := strings.ToLower(uniqueID)
	for _, m := range testIDMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// PurgeFilter selects which finding kinds a purge removes. The zero value selects all.
type PurgeFilter struct {
	Duplicates  bool
	Invalid     bool
	TestEntries bool
}

func (f PurgeFilter) all() bool {
	return !f.Duplicates && !f.Invalid && !f.TestEntries
}

// PlanPurge collects deletion candidates per collection. Each entry appears once,
// under the first kind that selected it; the first occurrence of a duplicated
// unique_id is always kept.
func PlanPurge(audits []*CollectionAudit, filter PurgeFilter) map[string][]Finding {
	plan := make(map[string][]Finding)
	for _, a := range audits {
		picked := make(map[string]bool)
		add := func(fs []Finding) {
			for _, f := range fs {
				if picked[f.EntryID] {
					continue
				}
				picked[f.EntryID] = true
				plan[a.Collection] = append(plan[a.Collection], f)
			}
		}
		if filter.all() || filter.Duplicates {
			add(a.Duplicates)
		}
		if filter.all() || filter.Invalid {
			add(a.Invalid)
		}
		if filter.all() || filter.TestEntries {
			add(a.TestEntries)
		}
	}
	return plan
}

type PurgeResult struct {
	DryRun  bool           `json:"dry_run"`
	Deleted map[string]int `json:"deleted"`
	Planned map[string]int `json:"planned"`
	Errors  []string       `json:"errors,omitempty"`
}

// Purge deletes the planned entries. With dryRun it only reports what it would delete.
func (s *KnowledgeService) Purge(ctx context.Context, plan map[string][]Finding, dryRun bool) *PurgeResult {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Purge", telemetry.SpanAttributes{Operation: "purge"})
	defer span.End()

	result := &PurgeResult{DryRun: dryRun, Deleted: map[string]int{}, Planned: map[string]int{}}
	for collection, findings := range plan {
		if len(findings) == 0 {
			continue
		}
		result.Planned[collection] = len(findings)
		if dryRun {
			continue
		}

		ids := make([]string, len(findings))
		for i, f := range findings {
			ids[i] = f.EntryID
		}
		if err := s.repo.Delete(ctx, collection, ids); err != nil {
			s.logger.Error("purge failed", zap.String("collection", collection), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", collection, err))
			continue
		}
		result.Deleted[collection] = len(ids)
		s.logger.Info("purged entries", zap.String("collection", collection), zap.Int("count", len(ids)))
	}
	return result
}
