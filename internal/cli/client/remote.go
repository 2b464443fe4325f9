// Package client holds the kbctl commands that talk to a running kbgated.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"text/tabwriter"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/cli"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/service"
	"github.com/spf13/cobra"
)

// RemoteCmd groups the commands that go through the kbgated HTTP API.
func RemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Run gate operations against a kbgated server",
		Long: `Run gate operations against a kbgated server. The server is resolved from
--server, KB_SERVER_URL, the saved login, then http://localhost:8080.`,
	}

	cmd.PersistentFlags().String("server", "", "kbgated URL")
	cmd.PersistentFlags().String("api-token", "", "Bearer token for the /v1 API")

	cmd.AddCommand(
		remoteEvaluateCmd(),
		remoteStoreCmd(),
		remoteStatsCmd(),
		LoginCmd(),
		LogoutCmd(),
		StatusCmd(),
	)
	return cmd
}

type entryRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	DryRun   bool           `json:"dry_run,omitempty"`
	Options  requestOptions `json:"options"`
}

type requestOptions struct {
	SkipDuplicateChecks bool `json:"skip_duplicate_checks,omitempty"`
	SkipSimilarity      bool `json:"skip_similarity,omitempty"`
}

func remoteEvaluateCmd() *cobra.Command {
	var (
		in   cli.EntryInput
		opts requestOptions
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a candidate on the server without storing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := in.Content(cmd.InOrStdin())
			if err != nil {
				return err
			}
			md, err := in.Metadata(cmd.InOrStdin(), true)
			if err != nil {
				return err
			}

			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := c.Post(cmd.Context(), "/v1/evaluate", entryRequest{Content: content, Metadata: md, Options: opts})
			if err != nil {
				return err
			}

			var decision service.Decision
			if err := json.Unmarshal(resp.Data, &decision); err != nil {
				return fmt.Errorf("failed to parse decision: %w", err)
			}
			if err := printDecision(cmd, &decision); err != nil {
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
	cmd.Flags().BoolVar(&opts.SkipDuplicateChecks, "offline", false, "Validate only, without duplicate lookups")
	cmd.Flags().BoolVar(&opts.SkipSimilarity, "skip-similarity", false, "Skip the similarity lookup")

	return cmd
}

type storeResponse struct {
	Stored   bool              `json:"stored"`
	Decision *service.Decision `json:"decision"`
	Entry    *struct {
		ID         string `json:"id"`
		UniqueID   string `json:"unique_id"`
		Collection string `json:"collection"`
	} `json:"entry,omitempty"`
}

func remoteStoreCmd() *cobra.Command {
	var (
		in     cli.EntryInput
		dryRun bool
		opts   requestOptions
	)

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Store an entry through the server's gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := in.Content(cmd.InOrStdin())
			if err != nil {
				return err
			}
			md, err := in.Metadata(cmd.InOrStdin(), true)
			if err != nil {
				return err
			}

			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var data json.RawMessage
			resp, err := c.Post(cmd.Context(), "/v1/entries", entryRequest{Content: content, Metadata: md, DryRun: dryRun, Options: opts})
			var apiErr *APIError
			switch {
			case err == nil:
				data = resp.Data
			case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity && len(apiErr.Data) > 0:
				data = apiErr.Data
			default:
				return err
			}

			var result storeResponse
			if err := json.Unmarshal(data, &result); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			if cli.OutputJSON(cmd) {
				if err := cli.PrintJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				w := cmd.OutOrStdout()
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
	cmd.Flags().BoolVar(&opts.SkipSimilarity, "skip-similarity", false, "Skip the similarity lookup")

	return cmd
}

func remoteStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show point counts of the server's collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			resp, err := c.Get(cmd.Context(), "/v1/collections")
			if err != nil {
				return err
			}

			var stats []service.CollectionStats
			if err := json.Unmarshal(resp.Data, &stats); err != nil {
				return fmt.Errorf("failed to parse stats: %w", err)
			}
			if cli.OutputJSON(cmd) {
				return cli.PrintJSON(cmd.OutOrStdout(), stats)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "COLLECTION\tPOINTS")
			for _, s := range stats {
				fmt.Fprintf(tw, "%s\t%d\n", s.Name, s.Count)
			}
			return tw.Flush()
		},
	}
}

func printDecision(cmd *cobra.Command, decision *service.Decision) error {
	w := cmd.OutOrStdout()
	if cli.OutputJSON(cmd) {
		return cli.PrintJSON(w, decision)
	}
	fmt.Fprint(w, decision.Summary())
	fmt.Fprintf(w, "\nContent hash: %s\n", decision.ContentHash)
	return nil
}
