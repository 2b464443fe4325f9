package ops

import (
	"fmt"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/cli"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/service"
	"github.com/spf13/cobra"
)

// PrestoreCmd runs the full pre-storage gate on a candidate without storing it.
func PrestoreCmd() *cobra.Command {
	var (
		in             cli.EntryInput
		offline        bool
		skipSimilarity bool
	)

	cmd := &cobra.Command{
		Use:   "prestore",
		Short: "Run the pre-storage gate on a candidate entry",
		Long: `Validate metadata, check content quality and look for duplicates, then print
the decision. Exits 1 when the candidate would be rejected.`,
		Example: `  kbctl prestore --content-file entry.md --metadata-file entry.json
  cat entry.md | kbctl prestore --content-file - --metadata-file entry.json --offline`,
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := in.Content(cmd.InOrStdin())
			if err != nil {
				return err
			}
			md, err := in.Metadata(cmd.InOrStdin(), true)
			if err != nil {
				return err
			}

			rt, err := runtimeFactory(cmd.Context(), cli.RuntimeOptions{Offline: offline})
			if err != nil {
				return err
			}
			defer rt.Close()

			decision := rt.Gate.Evaluate(cmd.Context(), content, md, service.EvaluateOptions{
				SkipDuplicateChecks: offline,
				SkipSimilarity:      skipSimilarity,
			})

			if err := printDecision(cmd, decision); err != nil {
				return err
			}
			if !decision.Accepted {
				return cli.ErrRejected
			}
			return nil
		},
	}

	in.AddContentFlags(cmd)
	in.AddMetadataFlags(cmd)
	cmd.Flags().BoolVar(&offline, "offline", false, "Validate only, without consulting the store")
	cmd.Flags().BoolVar(&skipSimilarity, "skip-similarity", false, "Skip the similarity lookup")

	return cmd
}

func printDecision(cmd *cobra.Command, decision *service.Decision) error {
	w := cmd.OutOrStdout()
	if cli.OutputJSON(cmd) {
		return cli.PrintJSON(w, decision)
	}
	fmt.Fprint(w, decision.Summary())
	if len(decision.Notes) > 0 {
		fmt.Fprintln(w, "\nNotes:")
		for _, n := range decision.Notes {
			fmt.Fprintf(w, "  - %s\n", n)
		}
	}
	fmt.Fprintf(w, "\nContent hash: %s\n", decision.ContentHash)
	return nil
}
