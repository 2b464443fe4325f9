package ops

import (
	"fmt"
	"text/tabwriter"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/cli"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/service"
	"github.com/spf13/cobra"
)

type collectionStatus struct {
	Name    string `json:"name"`
	Exists  bool   `json:"exists"`
	Created bool   `json:"created"`
	Count   int64  `json:"count"`
}

// CollectionsCmd reports the routed collections and creates missing ones.
func CollectionsCmd() *cobra.Command {
	var checkOnly bool

	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Show and create the knowledge collections",
		Long: `List the collections entries are routed to with their point counts. On the
qdrant backend, missing collections are created with the configured embedding
dimension unless --check-only is set.`,
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

			var statuses []collectionStatus
			for _, name := range rt.Config.Collections() {
				st := collectionStatus{Name: name, Exists: true}
				if rt.Qdrant != nil {
					if checkOnly {
						st.Exists, err = rt.Qdrant.CollectionExists(ctx, name)
					} else {
						st.Created, err = rt.Qdrant.EnsureCollection(ctx, name, uint64(rt.Config.EmbeddingDimension))
					}
					if err != nil {
						return fmt.Errorf("collection %s: %w", name, err)
					}
				}
				statuses = append(statuses, st)
			}

			counts, err := countsByName(cmd, rt.Knowledge, statuses)
			if err != nil {
				return err
			}
			for i := range statuses {
				statuses[i].Count = counts[statuses[i].Name]
			}

			w := cmd.OutOrStdout()
			if cli.OutputJSON(cmd) {
				return cli.PrintJSON(w, statuses)
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "COLLECTION\tSTATUS\tPOINTS")
			for _, st := range statuses {
				status := "ok"
				switch {
				case st.Created:
					status = "created"
				case !st.Exists:
					status = "missing"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\n", st.Name, status, st.Count)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&checkOnly, "check-only", false, "Report missing collections without creating them")

	return cmd
}

// countsByName skips counting when a collection is missing, since the store
// would fail on it.
func countsByName(cmd *cobra.Command, knowledge *service.KnowledgeService, statuses []collectionStatus) (map[string]int64, error) {
	counts := make(map[string]int64, len(statuses))
	for _, st := range statuses {
		if !st.Exists {
			return counts, nil
		}
	}
	stats, err := knowledge.Stats(cmd.Context())
	if err != nil {
		return nil, err
	}
	for _, s := range stats {
		counts[s.Name] = s.Count
	}
	return counts, nil
}
