package ops

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"text/tabwriter"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/cli"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/config"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/schema"
	"github.com/spf13/cobra"
)

// SchemasCmd lists the knowledge types or prints the schema of one.
func SchemasCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schemas [type]",
		Short: "List knowledge types or print one type's JSON Schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := runtimeFactory(cmd.Context(), cli.RuntimeOptions{Offline: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			w := cmd.OutOrStdout()
			if len(args) == 1 {
				t := domain.KnowledgeType(args[0])
				if !t.IsValid() {
					return fmt.Errorf("unknown type %q", args[0])
				}
				s, err := rt.Schemas.Load(cmd.Context(), t)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, string(s.Raw()))
				return err
			}

			types := rt.Schemas.Types()
			if cli.OutputJSON(cmd) {
				specs := make([]domain.TypeSpec, 0, len(types))
				for _, t := range types {
					spec, _ := domain.SpecFor(t)
					specs = append(specs, spec)
				}
				return cli.PrintJSON(w, specs)
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tID PREFIX\tCOLLECTION")
			for _, t := range types {
				spec, _ := domain.SpecFor(t)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t, spec.IDPrefix, rt.Config.CollectionFor(t))
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(schemasPublishCmd())
	return cmd
}

// SchemaPublisher is the bucket side of schemas publish.
type SchemaPublisher interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

var publisherFactory = func(cmd *cobra.Command, cfg *config.Config) (SchemaPublisher, error) {
	if !cfg.HasS3Schemas() {
		return nil, errors.New("KB_SCHEMA_S3_ENDPOINT and KB_SCHEMA_S3_BUCKET are required to publish")
	}
	bucket, err := cli.NewSchemaBucket(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	if err := bucket.EnsureBucket(cmd.Context()); err != nil {
		return nil, err
	}
	return bucket, nil
}

func schemasPublishCmd() *cobra.Command {
	var (
		from    string
		version string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload a schema set to the schema bucket as a new version",
		Long: `Compile every knowledge type's schema from --from (default: the built-in set)
and upload it under <prefix>/<version>/<type>.json. Servers pick a version up
through KB_SCHEMA_S3_VERSION.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if version == "" {
				version = cfg.SchemaS3Version
			}

			var source schema.Source = schema.NewEmbeddedSource()
			if from != "" {
				source = schema.NewDirSource(from)
			}
			// compile everything before uploading anything
			registry := schema.NewRegistry(source)
			if err := registry.Preload(cmd.Context()); err != nil {
				return err
			}

			bucket, err := publisherFactory(cmd, cfg)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, t := range registry.Types() {
				s, err := registry.Load(cmd.Context(), t)
				if err != nil {
					return err
				}
				key := schema.ObjectKey(cfg.SchemaS3Prefix, version, t)
				if err := bucket.PutObject(cmd.Context(), key, s.Raw(), "application/schema+json"); err != nil {
					return fmt.Errorf("failed to publish %s: %w", t, err)
				}
				fmt.Fprintf(w, "published %s\n", key)
			}

			versionPrefix := path.Join(strings.Trim(cfg.SchemaS3Prefix, "/"), version) + "/"
			keys, err := bucket.ListKeys(cmd.Context(), versionPrefix)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%d schema objects under %s\n", len(keys), versionPrefix)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Directory of <type>.json schemas to publish")
	cmd.Flags().StringVar(&version, "version", "", "Schema set version (default KB_SCHEMA_S3_VERSION)")

	return cmd
}
