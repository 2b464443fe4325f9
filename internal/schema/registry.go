// Package schema loads and compiles the per-type JSON Schemas that metadata is validated against.
package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/xeipuuv/gojsonschema"
)

// Violation is a single schema rule failure.
type Violation struct {
	Field       string
	Property    string
	Rule        string
	Description string
}

// Schema is a compiled, immutable JSON Schema for one knowledge type.
type Schema struct {
	Type     domain.KnowledgeType
	raw      []byte
	compiled *gojsonschema.Schema
}

// Raw returns a copy of the schema text.
func (s *Schema) Raw() []byte {
	out := make([]byte, len(s.raw))
	copy(out, s.raw)
	return out
}

// Validate checks doc against the schema and returns every violation found.
func (s *Schema) Validate(doc any) ([]Violation, error) {
	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validate against %s schema: %w", s.Type, err)
	}
	if result.Valid() {
		return nil, nil
	}

	violations := make([]Violation, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		v := Violation{
			Field:       e.Field(),
			Rule:        e.Type(),
			Description: e.Description(),
		}
		if p, ok := e.Details()["property"].(string); ok {
			v.Property = p
		}
		violations = append(violations, v)
	}
	return violations, nil
}

// Registry resolves knowledge types to compiled schemas, caching each after first load.
type Registry struct {
	source Source

	mu    sync.RWMutex
	cache map[domain.KnowledgeType]*Schema
}

func NewRegistry(source Source) *Registry {
	return &Registry{
		source: source,
		cache:  make(map[domain.KnowledgeType]*Schema),
	}
}

// Load returns the schema for t. Unknown or absent types yield domain.ErrSchemaNotFound,
// unparseable documents domain.ErrSchemaMalformed.
func (r *Registry) Load(ctx context.Context, t domain.KnowledgeType) (*Schema, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrSchemaNotFound, t)
	}

	r.mu.RLock()
	s, ok := r.cache[t]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	raw, err := r.source.Read(ctx, t)
	if err != nil {
		return nil, err
	}

	s, err = compile(t, raw)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[t]; ok {
		return cached, nil
	}
	r.cache[t] = s
	return s, nil
}

// Preload compiles the schema of every known type and reports all failures.
func (r *Registry) Preload(ctx context.Context) error {
	var errs []error
	for _, t := range domain.KnowledgeTypes() {
		if _, err := r.Load(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Types returns the knowledge types a schema can be requested for.
func (r *Registry) Types() []domain.KnowledgeType {
	return domain.KnowledgeTypes()
}

// Loaded returns the types currently cached.
func (r *Registry) Loaded() []domain.KnowledgeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]domain.KnowledgeType, 0, len(r.cache))
	for t := range r.cache {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func compile(t domain.KnowledgeType, raw []byte) (*Schema, error) {
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: %s: not valid JSON", domain.ErrSchemaMalformed, t)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSchemaMalformed, t, err)
	}
	return &Schema{Type: t, raw: raw, compiled: compiled}, nil
}
