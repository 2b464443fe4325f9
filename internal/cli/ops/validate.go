package ops

import (
	"fmt"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/cli"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/spf13/cobra"
)

// ValidateCmd validates metadata against the universal rules and its type schema.
func ValidateCmd() *cobra.Command {
	var (
		in        cli.EntryInput
		forceType string
		strict    bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate entry metadata",
		Long: `Validate metadata against the required fields, enums, unique_id convention
and the JSON Schema of its knowledge type. Exits 1 when invalid.`,
		Example: `  kbctl validate --metadata-file decision.json
  kbctl validate --metadata '{"type":"error_pattern",...}' --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := in.Metadata(cmd.InOrStdin(), true)
			if err != nil {
				return err
			}
			if forceType != "" {
				if !domain.KnowledgeType(forceType).IsValid() {
					return fmt.Errorf("unknown type %q", forceType)
				}
				if _, ok := md[domain.FieldType]; !ok {
					md[domain.FieldType] = forceType
				} else if md[domain.FieldType] != forceType {
					return fmt.Errorf("metadata type %v does not match --type %s", md[domain.FieldType], forceType)
				}
			}

			rt, err := runtimeFactory(cmd.Context(), cli.RuntimeOptions{Offline: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			result := rt.Gate.Validator().Validate(cmd.Context(), md)
			valid := result.Valid && (!strict || len(result.Warnings()) == 0)

			w := cmd.OutOrStdout()
			if cli.OutputJSON(cmd) {
				if err := cli.PrintJSON(w, map[string]any{
					"valid":    valid,
					"type":     result.Type,
					"errors":   result.Errors(),
					"warnings": result.Warnings(),
					"notes":    result.Notes(),
					"checks":   result.Checks,
				}); err != nil {
					return err
				}
			} else {
				if valid {
					fmt.Fprintln(w, "VALID")
				} else {
					fmt.Fprintln(w, "INVALID")
				}
				printLines(w, "Errors:", result.Errors())
				printLines(w, "Warnings:", result.Warnings())
				printLines(w, "Notes:", result.Notes())
			}

			if !valid {
				return cli.ErrRejected
			}
			return nil
		},
	}

	in.AddMetadataFlags(cmd)
	cmd.Flags().StringVar(&forceType, "type", "", "Knowledge type to validate against when metadata omits it")
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as failures")

	return cmd
}
