package ops

import "github.com/spf13/cobra"

// AddCommands registers every local kbctl command on root.
func AddCommands(root *cobra.Command) {
	root.AddCommand(
		ValidateCmd(),
		CheckDuplicatesCmd(),
		PrestoreCmd(),
		StoreCmd(),
		FingerprintCmd(),
		CollectionsCmd(),
		AuditCmd(),
		SchemasCmd(),
	)
}
