package cli

import (
	"context"
	"fmt"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/config"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/database"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/embedding"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/memstore"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/repository"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/schema"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/service"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/similarity"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/storage"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/vectorstore"
	"go.uber.org/zap"
)

// RuntimeOptions selects which parts of the runtime a command needs.
type RuntimeOptions struct {
	// Offline builds the gate without any store; duplicate checks are reported
	// as unavailable unless the caller skips them.
	Offline bool
}

// Runtime is the dependency graph shared by kbctl and kbgated.
type Runtime struct {
	Config    *config.Config
	Logger    *zap.Logger
	Schemas   *schema.Registry
	Embedder  similarity.Embedder
	Store     service.EntryRepositoryInterface
	Qdrant    *vectorstore.Client
	Gate      *service.PreStorageGate
	Knowledge *service.KnowledgeService

	closers []func()
}

// NewRuntime wires the schema source, the embedder, the configured store backend
// and the services on top of them.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts RuntimeOptions) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rt := &Runtime{Config: cfg, Logger: logger}

	source, err := NewSchemaSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt.Schemas = schema.NewRegistry(source)

	if cfg.HasEmbeddings() {
		rt.Embedder = embedding.NewClient(embedding.Config{
			APIKey:    cfg.EmbeddingAPIKey,
			BaseURL:   cfg.EmbeddingBaseURL,
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.EmbeddingDimension,
		})
	}

	if !opts.Offline {
		if err := rt.openStore(ctx); err != nil {
			rt.Close()
			return nil, err
		}
	}

	var store service.KnowledgeStore
	if rt.Store != nil {
		store = rt.Store
	}
	rt.Gate = service.NewPreStorageGate(rt.Schemas, store, cfg.GateConfig(), logger)
	if rt.Store != nil {
		rt.Knowledge = service.NewKnowledgeService(rt.Gate, rt.Store, cfg, logger)
	}
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context) error {
	cfg := rt.Config
	switch cfg.StoreBackend {
	case config.BackendMemory:
		var scorer similarity.Scorer
		if rt.Embedder != nil {
			scorer = similarity.NewEmbeddingScorer(rt.Embedder)
		}
		rt.Store = memstore.New(scorer)

	case config.BackendPostgres:
		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, pool.Close)
		rt.Store = repository.NewEntryRepository(pool, rt.Embedder)

	default:
		client, err := vectorstore.NewClient(vectorstore.QdrantConfig{
			Host:   cfg.QdrantHost,
			Port:   cfg.QdrantPort,
			APIKey: cfg.QdrantAPIKey,
		})
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		rt.Qdrant = client
		rt.Store = vectorstore.NewStore(client, rt.Embedder, vectorstore.StoreConfig{
			Collections: cfg.Collections(),
			ScanLimit:   cfg.ScanLimit,
		}, rt.Logger)
	}
	rt.Logger.Debug("store opened", zap.String("backend", cfg.StoreBackend))
	return nil
}

// RequireStore fails with a hint when the runtime was built offline.
func (rt *Runtime) RequireStore() error {
	if rt.Knowledge == nil {
		return fmt.Errorf("no knowledge store configured (KB_STORE_BACKEND=%s)", rt.Config.StoreBackend)
	}
	return nil
}

// Close releases store connections in reverse order of opening.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// NewSchemaSource picks the schema source: a versioned S3 bucket, a directory,
// or the schemas compiled into the binary, in that order.
func NewSchemaSource(ctx context.Context, cfg *config.Config) (schema.Source, error) {
	switch {
	case cfg.HasS3Schemas():
		client, err := NewSchemaBucket(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return schema.NewS3Source(client, cfg.SchemaS3Prefix, cfg.SchemaS3Version), nil
	case cfg.SchemaDir != "":
		return schema.NewDirSource(cfg.SchemaDir), nil
	default:
		return schema.NewEmbeddedSource(), nil
	}
}

// NewSchemaBucket opens the S3 bucket holding versioned schema sets.
func NewSchemaBucket(ctx context.Context, cfg *config.Config) (*storage.S3Client, error) {
	client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.SchemaS3Endpoint,
		Region:          cfg.SchemaS3Region,
		AccessKeyID:     cfg.SchemaS3AccessKey,
		SecretAccessKey: cfg.SchemaS3SecretKey,
		Bucket:          cfg.SchemaS3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create schema bucket client: %w", err)
	}
	return client, nil
}
