package ops

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/cli"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/service"
	"github.com/spf13/cobra"
)

type auditReport struct {
	Audits []*service.CollectionAudit   `json:"audits"`
	Plan   map[string][]service.Finding `json:"plan,omitempty"`
	Purge  *service.PurgeResult         `json:"purge,omitempty"`
	Backup string                       `json:"backup,omitempty"`
}

// AuditCmd scans stored entries for problems and optionally removes them.
func AuditCmd() *cobra.Command {
	var (
		collections []string
		limit       int
		delDupes    bool
		delInvalid  bool
		delTest     bool
		execute     bool
		backup      string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Find duplicate, invalid and test entries in the collections",
		Long: `Scan the collections for entries sharing a unique_id, entries missing required
fields and entries left by test runs. Any --delete-* flag builds a deletion plan,
which only runs with --execute. --backup writes the affected collections to a
JSON file first.`,
		Example: `  kbctl audit
  kbctl audit --delete-duplicates --delete-test-entries
  kbctl audit --delete-duplicates --execute --backup backup.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := runtimeFactory(ctx, cli.RuntimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.RequireStore(); err != nil {
				return err
			}

			report := auditReport{
				Audits: rt.Knowledge.Audit(ctx, service.AuditOptions{Collections: collections, Limit: limit}),
			}

			purging := delDupes || delInvalid || delTest
			if purging {
				report.Plan = service.PlanPurge(report.Audits, service.PurgeFilter{
					Duplicates:  delDupes,
					Invalid:     delInvalid,
					TestEntries: delTest,
				})
				if execute && backup != "" && len(report.Plan) > 0 {
					if err := writeBackup(cmd, rt.Knowledge, report.Plan, limit, backup); err != nil {
						return err
					}
					report.Backup = backup
				}
				report.Purge = rt.Knowledge.Purge(ctx, report.Plan, !execute)
			}

			if cli.OutputJSON(cmd) {
				if err := cli.PrintJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				printAudit(cmd, report)
			}

			if report.Purge != nil && len(report.Purge.Errors) > 0 {
				return errors.New("purge finished with errors")
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&collections, "collection", nil, "Collection to audit (repeatable, default all)")
	cmd.Flags().IntVar(&limit, "limit", service.DefaultScanLimit, "Maximum entries scanned per collection")
	cmd.Flags().BoolVar(&delDupes, "delete-duplicates", false, "Plan deletion of duplicate unique_ids, keeping the first")
	cmd.Flags().BoolVar(&delInvalid, "delete-invalid", false, "Plan deletion of entries missing required fields")
	cmd.Flags().BoolVar(&delTest, "delete-test-entries", false, "Plan deletion of entries left by test runs")
	cmd.Flags().BoolVar(&execute, "execute", false, "Perform the planned deletions")
	cmd.Flags().StringVar(&backup, "backup", "", "Write affected collections to this JSON file before deleting")

	return cmd
}

func writeBackup(cmd *cobra.Command, knowledge *service.KnowledgeService, plan map[string][]service.Finding, limit int, path string) error {
	dump := struct {
		CreatedAt   string                           `json:"created_at"`
		Collections map[string][]*domain.StoredEntry `json:"collections"`
	}{
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Collections: make(map[string][]*domain.StoredEntry, len(plan)),
	}
	for collection := range plan {
		entries, err := knowledge.Export(cmd.Context(), collection, limit)
		if err != nil {
			return fmt.Errorf("failed to back up %s: %w", collection, err)
		}
		dump.Collections[collection] = entries
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	if err := cli.PrintJSON(f, dump); err != nil {
		f.Close()
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return f.Close()
}

func printAudit(cmd *cobra.Command, report auditReport) {
	w := cmd.OutOrStdout()
	for _, a := range report.Audits {
		fmt.Fprintf(w, "%s: %d entries", a.Collection, a.Total)
		if a.Err != "" {
			fmt.Fprintf(w, " (scan failed: %s)\n", a.Err)
			continue
		}
		fmt.Fprintf(w, ", %d duplicates, %d invalid, %d test entries\n", len(a.Duplicates), len(a.Invalid), len(a.TestEntries))
	}

	if report.Purge == nil {
		return
	}
	names := make([]string, 0, len(report.Plan))
	for name := range report.Plan {
		names = append(names, name)
	}
	sort.Strings(names)

	if report.Purge.DryRun {
		fmt.Fprintln(w, "\nDry run, nothing deleted. Re-run with --execute to delete:")
	} else {
		fmt.Fprintln(w, "\nDeleted:")
	}
	for _, name := range names {
		for _, f := range report.Plan[name] {
			fmt.Fprintf(w, "  %s %s (%s): %s\n", name, f.EntryID, f.UniqueID, f.Reason())
		}
	}
	if report.Backup != "" {
		fmt.Fprintf(w, "Backup written to %s\n", report.Backup)
	}
	for _, e := range report.Purge.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
}
