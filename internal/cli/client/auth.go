package client

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/cli"
	"github.com/spf13/cobra"
)

// LoginCmd saves the server URL and token to the global config.
func LoginCmd() *cobra.Command {
	var (
		apiToken  string
		serverURL string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save the kbgated server URL and API token",
		Long:  "Store the server URL and API token in the global config (~/.config/kbctl/config.json)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("api-token") {
				fmt.Fprint(cmd.OutOrStdout(), "Enter API token (empty for none): ")
				input, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && input == "" {
					return fmt.Errorf("failed to read API token: %w", err)
				}
				apiToken = strings.TrimSpace(input)
			}

			if err := SaveGlobalConfig(&GlobalConfig{ServerURL: serverURL, APIToken: apiToken}); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved connection to %s\n", serverURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&apiToken, "api-token", "", "Bearer token for the /v1 API")
	cmd.Flags().StringVar(&serverURL, "url", defaultServerURL, "kbgated URL")

	return cmd
}

func LogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteGlobalConfig(); err != nil {
				return fmt.Errorf("failed to logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Removed saved connection")
			return nil
		},
	}
}

// StatusCmd shows the resolved connection and whether the server answers.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the resolved server and check its health",
		RunE: func(cmd *cobra.Command, args []string) error {
			flagURL, _ := cmd.Flags().GetString("server")
			flagToken, _ := cmd.Flags().GetString("api-token")
			conn, err := ResolveConnection(flagURL, flagToken)
			if err != nil {
				return err
			}

			healthErr := NewAPIClientWithConfig(conn.APIToken, conn.ServerURL).Health(cmd.Context())
			status := map[string]any{
				"server":    conn.ServerURL,
				"source":    string(conn.Source),
				"api_token": maskToken(conn.APIToken),
				"reachable": healthErr == nil,
			}
			if healthErr != nil {
				status["error"] = healthErr.Error()
			}

			if cli.OutputJSON(cmd) {
				return cli.PrintJSON(cmd.OutOrStdout(), status)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Server: %s (%s)\n", conn.ServerURL, conn.Source)
			fmt.Fprintf(w, "API token: %s\n", maskToken(conn.APIToken))
			if healthErr != nil {
				fmt.Fprintf(w, "Reachable: no (%v)\n", healthErr)
				return nil
			}
			fmt.Fprintln(w, "Reachable: yes")
			return nil
		},
	}
}

func maskToken(token string) string {
	switch {
	case token == "":
		return "(none)"
	case len(token) < 8:
		return "***"
	default:
		return token[:4] + "..." + token[len(token)-4:]
	}
}
