package ops

import (
	"fmt"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/cli"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/service"
	"github.com/spf13/cobra"
)

// FingerprintCmd prints the content hash used for exact-duplicate detection.
func FingerprintCmd() *cobra.Command {
	var in cli.EntryInput

	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the SHA-256 content hash of an entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := in.Content(cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash := service.Fingerprint(content)
			if cli.OutputJSON(cmd) {
				return cli.PrintJSON(cmd.OutOrStdout(), map[string]string{"content_hash": hash})
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	in.AddContentFlags(cmd)
	return cmd
}
