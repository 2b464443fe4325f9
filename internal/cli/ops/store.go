package ops

import (
	"fmt"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/cli"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/service"
	"github.com/spf13/cobra"
)

// StoreCmd stores a candidate that passes the gate.
func StoreCmd() *cobra.Command {
	var (
		in             cli.EntryInput
		dryRun         bool
		skipSimilarity bool
	)

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Store an entry that passes the pre-storage gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := in.Content(cmd.InOrStdin())
			if err != nil {
				return err
			}
			md, err := in.Metadata(cmd.InOrStdin(), true)
			if err != nil {
				return err
			}

			rt, err := runtimeFactory(cmd.Context(), cli.RuntimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.RequireStore(); err != nil {
				return err
			}

			result, err := rt.Knowledge.Store(cmd.Context(), service.StoreInput{
				Content:  content,
				Metadata: md,
				DryRun:   dryRun,
				Options:  service.EvaluateOptions{SkipSimilarity: skipSimilarity},
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if cli.OutputJSON(cmd) {
				if err := cli.PrintJSON(w, result); err != nil {
					return err
				}
			} else {
				fmt.Fprint(w, result.Decision.Summary())
				switch {
				case result.Stored:
					fmt.Fprintf(w, "\nStored %s in %s (point %s)\n", result.Entry.UniqueID, result.Entry.Collection, result.Entry.ID)
				case result.Entry != nil:
					fmt.Fprintf(w, "\nDry run: would store %s in %s\n", result.Entry.UniqueID, result.Entry.Collection)
				}
			}

			if !result.Decision.Accepted {
				return cli.ErrRejected
			}
			return nil
		},
	}

	in.AddContentFlags(cmd)
	in.AddMetadataFlags(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Evaluate and route without writing")
	cmd.Flags().BoolVar(&skipSimilarity, "skip-similarity", false, "Skip the similarity lookup")

	return cmd
}
