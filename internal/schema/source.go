package schema

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/storage"
)

//go:embed schemas/*.json
var embedded embed.FS

// Source supplies raw schema documents by knowledge type.
// Implementations return domain.ErrSchemaNotFound when a type has no document.
type Source interface {
	Read(ctx context.Context, t domain.KnowledgeType) ([]byte, error)
}

// FSSource reads "<type>.json" files from a directory of an fs.FS.
type FSSource struct {
	fsys fs.FS
	dir  string
}

// NewEmbeddedSource returns the schemas compiled into the binary.
func NewEmbeddedSource() *FSSource {
	return &FSSource{fsys: embedded, dir: "schemas"}
}

// NewDirSource reads schemas from dir on the local filesystem.
func NewDirSource(dir string) *FSSource {
	return &FSSource{fsys: os.DirFS(dir), dir: "."}
}

func (s *FSSource) Read(ctx context.Context, t domain.KnowledgeType) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(s.fsys, path.Join(s.dir, string(t)+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSchemaNotFound, t)
		}
		return nil, fmt.Errorf("read schema %s: %w", t, err)
	}
	return data, nil
}

// ObjectReader is the subset of storage.S3Client used by S3Source.
type ObjectReader interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// S3Source reads versioned schema sets stored as "<prefix>/<version>/<type>.json".
type S3Source struct {
	objects ObjectReader
	prefix  string
	version string
}

func NewS3Source(objects ObjectReader, prefix, version string) *S3Source {
	return &S3Source{objects: objects, prefix: strings.Trim(prefix, "/"), version: version}
}

// Key returns the object key holding the schema for t.
func (s *S3Source) Key(t domain.KnowledgeType) string {
	return ObjectKey(s.prefix, s.version, t)
}

func (s *S3Source) Read(ctx context.Context, t domain.KnowledgeType) ([]byte, error) {
	data, err := s.objects.GetObject(ctx, s.Key(t))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSchemaNotFound, t)
		}
		return nil, err
	}
	return data, nil
}

// ObjectKey builds the object key for a schema of type t in a versioned set.
func ObjectKey(prefix, version string, t domain.KnowledgeType) string {
	return path.Join(prefix, version, string(t)+".json")
}
