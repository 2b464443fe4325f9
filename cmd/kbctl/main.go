package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/cli"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/cli/client"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/cli/ops"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "kbctl",
		Short: "Validate, deduplicate and store knowledge entries",
		Long: `kbctl runs the pre-storage gate on knowledge entries before they reach the
vector store, and maintains the collections they land in.

Environment variables:
  KB_STORE_BACKEND   qdrant (default), postgres or memory
  KB_QDRANT_HOST     Qdrant host (default: localhost)
  KB_DATABASE_URL    Postgres URL for the postgres backend
  KB_SERVER_URL      kbgated URL for the remote commands`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	cli.AddHelpJSONFlag(rootCmd)

	ops.AddCommands(rootCmd)
	rootCmd.AddCommand(client.RemoteCmd())

	if handled, err := cli.HelpJSON(rootCmd, os.Args[1:], os.Stdout); handled {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := rootCmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}
