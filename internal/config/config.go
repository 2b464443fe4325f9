package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/service"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendQdrant   = "qdrant"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	APIToken    string `envconfig:"API_TOKEN"`

	StoreBackend string `envconfig:"STORE_BACKEND" default:"qdrant"`

	QdrantHost   string `envconfig:"QDRANT_HOST" default:"localhost"`
	QdrantPort   int    `envconfig:"QDRANT_PORT" default:"6334"`
	QdrantAPIKey string `envconfig:"QDRANT_API_KEY"`

	KnowledgeCollection     string `envconfig:"KNOWLEDGE_COLLECTION" default:"bmad-knowledge"`
	BestPracticesCollection string `envconfig:"BEST_PRACTICES_COLLECTION" default:"bmad-best-practices"`

	DatabaseURL   string `envconfig:"DATABASE_URL"`
	MigrationsDir string `envconfig:"MIGRATIONS_DIR" default:"migrations"`

	ServerURL string `envconfig:"SERVER_URL" default:"http://localhost:8080"`

	EmbeddingAPIKey    string `envconfig:"EMBEDDING_API_KEY"`
	EmbeddingBaseURL   string `envconfig:"EMBEDDING_BASE_URL"`
	EmbeddingModel     string `envconfig:"EMBEDDING_MODEL" default:"sentence-transformers/all-MiniLM-L6-v2"`
	EmbeddingDimension int    `envconfig:"EMBEDDING_DIMENSION" default:"384"`

	SimilarityThreshold float64       `envconfig:"SIMILARITY_THRESHOLD" default:"0.85"`
	MaxMetadataBytes    int           `envconfig:"MAX_METADATA_BYTES" default:"1000000"`
	MaxJSONDepth        int           `envconfig:"MAX_JSON_DEPTH" default:"100"`
	MinContentLength    int           `envconfig:"MIN_CONTENT_LENGTH" default:"100"`
	MaxContentLength    int           `envconfig:"MAX_CONTENT_LENGTH" default:"50000"`
	LookupTimeout       time.Duration `envconfig:"LOOKUP_TIMEOUT" default:"5s"`
	ScanLimit           int           `envconfig:"SCAN_LIMIT" default:"500"`
	AuditInterval       time.Duration `envconfig:"AUDIT_INTERVAL" default:"0"`

	SchemaDir         string `envconfig:"SCHEMA_DIR"`
	SchemaS3Endpoint  string `envconfig:"SCHEMA_S3_ENDPOINT"`
	SchemaS3AccessKey string `envconfig:"SCHEMA_S3_ACCESS_KEY_ID"`
	SchemaS3SecretKey string `envconfig:"SCHEMA_S3_SECRET_ACCESS_KEY"`
	SchemaS3Bucket    string `envconfig:"SCHEMA_S3_BUCKET"`
	SchemaS3Region    string `envconfig:"SCHEMA_S3_REGION" default:"us-east-1"`
	SchemaS3Prefix    string `envconfig:"SCHEMA_S3_PREFIX" default:"metadata-schemas"`
	SchemaS3Version   string `envconfig:"SCHEMA_S3_VERSION" default:"v1"`

	SentryDSN        string  `envconfig:"SENTRY_DSN"`
	SentrySampleRate float64 `envconfig:"SENTRY_SAMPLE_RATE" default:"1.0"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("KB", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings that would make the gate misbehave silently.
func (c *Config) Validate() error {
	var errs []error
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("KB_SIMILARITY_THRESHOLD must be within (0, 1], got %v", c.SimilarityThreshold))
	}
	if c.EmbeddingDimension <= 0 {
		errs = append(errs, fmt.Errorf("KB_EMBEDDING_DIMENSION must be positive, got %d", c.EmbeddingDimension))
	}
	if c.MaxMetadataBytes <= 0 {
		errs = append(errs, fmt.Errorf("KB_MAX_METADATA_BYTES must be positive, got %d", c.MaxMetadataBytes))
	}
	if c.MaxJSONDepth <= 0 {
		errs = append(errs, fmt.Errorf("KB_MAX_JSON_DEPTH must be positive, got %d", c.MaxJSONDepth))
	}
	if c.MinContentLength < 0 || c.MaxContentLength < 0 {
		errs = append(errs, errors.New("content length bounds must not be negative"))
	}
	if c.MaxContentLength > 0 && c.MinContentLength > c.MaxContentLength {
		errs = append(errs, fmt.Errorf("KB_MIN_CONTENT_LENGTH (%d) exceeds KB_MAX_CONTENT_LENGTH (%d)", c.MinContentLength, c.MaxContentLength))
	}
	if c.LookupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("KB_LOOKUP_TIMEOUT must be positive, got %s", c.LookupTimeout))
	}
	if c.ScanLimit <= 0 {
		errs = append(errs, fmt.Errorf("KB_SCAN_LIMIT must be positive, got %d", c.ScanLimit))
	}
	if c.AuditInterval < 0 {
		errs = append(errs, fmt.Errorf("KB_AUDIT_INTERVAL must not be negative, got %s", c.AuditInterval))
	}
	if c.KnowledgeCollection == "" || c.BestPracticesCollection == "" {
		errs = append(errs, errors.New("collection names must not be empty"))
	}
	switch c.StoreBackend {
	case BackendQdrant, BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("KB_DATABASE_URL is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("KB_STORE_BACKEND must be one of qdrant, postgres, memory, got %q", c.StoreBackend))
	}
	return errors.Join(errs...)
}

// GateConfig projects the thresholds onto the pre-storage gate.
func (c *Config) GateConfig() service.GateConfig {
	cfg := service.DefaultGateConfig()
	cfg.SimilarityThreshold = c.SimilarityThreshold
	cfg.MaxMetadataBytes = c.MaxMetadataBytes
	cfg.MaxDepth = c.MaxJSONDepth
	cfg.MinContentLength = c.MinContentLength
	cfg.MaxContentLength = c.MaxContentLength
	cfg.LookupTimeout = c.LookupTimeout
	return cfg
}

// CollectionFor routes a knowledge type to its collection name.
func (c *Config) CollectionFor(t domain.KnowledgeType) string {
	spec, ok := domain.SpecFor(t)
	if ok && spec.Collection == domain.CollectionBestPractices {
		return c.BestPracticesCollection
	}
	return c.KnowledgeCollection
}

// Collections returns every collection name the gate reads from.
func (c *Config) Collections() []string {
	return []string{c.KnowledgeCollection, c.BestPracticesCollection}
}

func (c *Config) QdrantAddr() string {
	return fmt.Sprintf("%s:%d", c.QdrantHost, c.QdrantPort)
}

func (c *Config) HasEmbeddings() bool {
	return c.EmbeddingBaseURL != "" || c.EmbeddingAPIKey != ""
}

func (c *Config) HasS3Schemas() bool {
	return c.SchemaS3Endpoint != "" && c.SchemaS3Bucket != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}
