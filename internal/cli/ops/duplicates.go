package ops

import (
	"fmt"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/cli"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/service"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/similarity"
	"github.com/spf13/cobra"
)

// CheckDuplicatesCmd looks a candidate up by hash, similarity and unique_id.
func CheckDuplicatesCmd() *cobra.Command {
	var (
		in          cli.EntryInput
		threshold   float64
		hashOnly    bool
		skipIDCheck bool
	)

	cmd := &cobra.Command{
		Use:   "check-duplicates",
		Short: "Check content against stored entries",
		Long: `Look the candidate up by exact content hash, by similarity and by unique_id.
Exits 1 when an exact duplicate or identifier collision exists.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := in.Content(cmd.InOrStdin())
			if err != nil {
				return err
			}
			md, err := in.Metadata(cmd.InOrStdin(), false)
			if err != nil {
				return err
			}
			if threshold <= 0 || threshold > 1 {
				return fmt.Errorf("--threshold must be within (0, 1], got %v", threshold)
			}

			rt, err := runtimeFactory(cmd.Context(), cli.RuntimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			detectorCfg := service.DetectorConfig{
				SimilarityThreshold: rt.Config.SimilarityThreshold,
				LookupTimeout:       rt.Config.LookupTimeout,
			}
			if cmd.Flags().Changed("threshold") {
				detectorCfg.SimilarityThreshold = threshold
			}
			detector := service.NewDuplicateDetector(rt.Store, detectorCfg, rt.Logger)
			report := detector.Check(cmd.Context(), content, md, service.CheckOptions{
				SkipSimilarity: hashOnly,
				SkipIDCheck:    skipIDCheck || hashOnly,
			})

			w := cmd.OutOrStdout()
			if cli.OutputJSON(cmd) {
				if err := cli.PrintJSON(w, map[string]any{
					"content_hash": report.ContentHash,
					"is_duplicate": report.IsDuplicate(),
					"exact":        report.Exact,
					"collision":    report.Collision,
					"similar":      report.Similar,
					"checks":       report.Checks,
					"diagnostics":  report.Diagnostics,
				}); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(w, "Content hash: %s\n", report.ContentHash)
				if report.IsDuplicate() {
					fmt.Fprintln(w, "DUPLICATE")
				} else {
					fmt.Fprintln(w, "NO DUPLICATES")
				}
				for _, d := range report.Diagnostics {
					fmt.Fprintf(w, "  - %s\n", d)
				}
			}

			if report.IsDuplicate() {
				return cli.ErrRejected
			}
			return nil
		},
	}

	in.AddContentFlags(cmd)
	in.AddMetadataFlags(cmd)
	cmd.Flags().Float64Var(&threshold, "threshold", similarity.DefaultThreshold, "Similarity threshold")
	cmd.Flags().BoolVar(&hashOnly, "hash-only", false, "Only check for an exact content hash match")
	cmd.Flags().BoolVar(&skipIDCheck, "skip-id-check", false, "Skip the unique_id collision check")

	return cmd
}
