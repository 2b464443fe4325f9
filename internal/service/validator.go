package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/schema"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/telemetry"
	"go.uber.org/zap"
)

const (
	DefaultMaxMetadataBytes = 1_000_000
	DefaultMaxDepth         = 100
)

// SchemaLoader resolves a knowledge type to its compiled schema.
type SchemaLoader interface {
	Load(ctx context.Context, t domain.KnowledgeType) (*schema.Schema, error)
}

// ValidatorConfig bounds the metadata accepted before any other check runs.
type ValidatorConfig struct {
	MaxMetadataBytes int
	MaxDepth         int
}

// ValidationResult is the outcome of validating one metadata document.
type ValidationResult struct {
	Valid       bool
	Type        domain.KnowledgeType
	Checks      []string
	Diagnostics domain.Diagnostics
}

func (r *ValidationResult) Errors() []string   { return r.Diagnostics.ByLevel(domain.LevelError) }
func (r *ValidationResult) Warnings() []string { return r.Diagnostics.ByLevel(domain.LevelWarning) }
func (r *ValidationResult) Notes() []string    { return r.Diagnostics.ByLevel(domain.LevelInfo) }

// MetadataValidator checks structural safety, required fields, enums, identifier
// convention and the per-type schema of candidate metadata.
type MetadataValidator struct {
	schemas SchemaLoader
	cfg     ValidatorConfig
	logger  *zap.Logger
}

func NewMetadataValidator(schemas SchemaLoader, cfg ValidatorConfig, logger *zap.Logger) *MetadataValidator {
	if cfg.MaxMetadataBytes <= 0 {
		cfg.MaxMetadataBytes = DefaultMaxMetadataBytes
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataValidator{schemas: schemas, cfg: cfg, logger: logger}
}

// Validate runs every metadata check and never mutates metadata.
func (v *MetadataValidator) Validate(ctx context.Context, metadata map[string]any) *ValidationResult {
	uniqueID, _ := domain.StringField(metadata, domain.FieldUniqueID)
	typeName, _ := domain.StringField(metadata, domain.FieldType)
	ctx, span := telemetry.StartSpan(ctx, "MetadataValidator.Validate", telemetry.SpanAttributes{
		UniqueID:      uniqueID,
		KnowledgeType: typeName,
		Operation:     "validate",
	})
	defer span.End()

	result := &ValidationResult{}
	defer func() {
		result.Valid = !result.Diagnostics.HasErrors()
		v.logger.Debug("metadata validated",
			zap.String("unique_id", uniqueID),
			zap.String("type", typeName),
			zap.Bool("valid", result.Valid),
			zap.Int("diagnostics", len(result.Diagnostics)),
		)
	}()

	result.Checks = append(result.Checks, domain.CheckSafety)
	normalized, diag, ok := v.checkSafety(metadata)
	if !ok {
		result.Diagnostics = append(result.Diagnostics, diag)
		return result
	}

	result.Checks = append(result.Checks, domain.CheckRequiredFields)
	missing := make(map[string]bool)
	for _, field := range domain.RequiredFields {
		if val, ok := normalized[field]; !ok || val == nil {
			missing[field] = true
			result.Diagnostics = append(result.Diagnostics, domain.Diagnostic{
				Check:   domain.CheckRequiredFields,
				Code:    domain.CodeMissingField,
				Level:   domain.LevelError,
				Field:   field,
				Message: field,
			})
		}
	}

	result.Checks = append(result.Checks, domain.CheckEnums)
	importanceInvalid := false
	if raw, ok := normalized[domain.FieldImportance]; ok && raw != nil {
		if s, isString := raw.(string); !isString || !domain.Importance(s).IsValid() {
			importanceInvalid = true
			result.Diagnostics = append(result.Diagnostics, domain.Diagnostic{
				Check:   domain.CheckEnums,
				Code:    domain.CodeInvalidEnum,
				Level:   domain.LevelError,
				Field:   domain.FieldImportance,
				Message: fmt.Sprintf("importance %s is not one of critical, high, medium, low", describe(raw)),
			})
		}
	}

	componentInvalid := false
	if raw, ok := normalized[domain.FieldComponent]; ok && raw != nil {
		if s, isString := raw.(string); !isString || !domain.IsValidComponent(s) {
			componentInvalid = true
			result.Diagnostics = append(result.Diagnostics, domain.Diagnostic{
				Check:   domain.CheckEnums,
				Code:    domain.CodeInvalidEnum,
				Level:   domain.LevelError,
				Field:   domain.FieldComponent,
				Message: fmt.Sprintf("component %s is not a known component", describe(raw)),
			})
		}
	}

	knowledgeType, typeOK := v.resolveType(normalized, missing, result)
	if !typeOK {
		return result
	}
	result.Type = knowledgeType
	spec, _ := domain.SpecFor(knowledgeType)

	result.Checks = append(result.Checks, domain.CheckIDFormat)
	prefixMismatch := false
	if id, ok := normalized[domain.FieldUniqueID].(string); ok && !spec.HasConventionalPrefix(id) {
		prefixMismatch = true
		result.Diagnostics = append(result.Diagnostics, domain.Diagnostic{
			Check:   domain.CheckIDFormat,
			Code:    domain.CodeFormatMismatch,
			Level:   domain.LevelWarning,
			Field:   domain.FieldUniqueID,
			Message: fmt.Sprintf("unique_id %q should start with %q for %s entries", id, spec.IDPrefix, knowledgeType),
		})
	}

	suffixMissing := false
	if id, ok := normalized[domain.FieldUniqueID].(string); ok && !spec.HasRequiredSuffix(id) {
		suffixMissing = true
		result.Diagnostics = append(result.Diagnostics, domain.Diagnostic{
			Check:   domain.CheckIDFormat,
			Code:    domain.CodeSchemaViolation,
			Level:   domain.LevelError,
			Field:   domain.FieldUniqueID,
			Message: fmt.Sprintf("unique_id %q must end with %q for %s entries", id, spec.RequiredSuffix, knowledgeType),
		})
	}

	result.Checks = append(result.Checks, domain.CheckSchema)
	result.Diagnostics = append(result.Diagnostics, v.checkSchema(ctx, knowledgeType, normalized, reported{
		missing:           missing,
		importanceInvalid: importanceInvalid,
		componentInvalid:  componentInvalid,
		prefixMismatch:    prefixMismatch,
		suffixMissing:     suffixMissing,
	})...)
	return result
}

// reported tracks findings earlier checks already surfaced, so the schema
// step does not repeat them.
type reported struct {
	missing           map[string]bool
	importanceInvalid bool
	componentInvalid  bool
	prefixMismatch    bool
	suffixMissing     bool
}

func (v *MetadataValidator) resolveType(normalized map[string]any, missing map[string]bool, result *ValidationResult) (domain.KnowledgeType, bool) {
	raw, present := normalized[domain.FieldType]
	if missing[domain.FieldType] || !present {
		result.Diagnostics = append(result.Diagnostics,
			domain.NewInfo(domain.CheckSchema, domain.CodeSkipped, "missing type, format and schema checks not run"))
		return "", false
	}

	s, isString := raw.(string)
	if !isString || !domain.KnowledgeType(s).IsValid() {
		result.Diagnostics = append(result.Diagnostics,
			domain.Diagnostic{
				Check:   domain.CheckEnums,
				Code:    domain.CodeInvalidType,
				Level:   domain.LevelError,
				Field:   domain.FieldType,
				Message: fmt.Sprintf("type %s is not one of %s", describe(raw), joinTypes()),
			},
			domain.NewInfo(domain.CheckSchema, domain.CodeSkipped, "invalid type, format and schema checks not run"),
		)
		return "", false
	}
	return domain.KnowledgeType(s), true
}

// checkSafety serializes metadata once, enforcing the size bound on the encoded
// bytes and the depth bound on the decoded tree.
func (v *MetadataValidator) checkSafety(metadata map[string]any) (map[string]any, domain.Diagnostic, bool) {
	if metadata == nil {
		return nil, domain.NewError(domain.CheckSafety, domain.CodeSchemaViolation, "metadata must be a JSON object"), false
	}

	// the decoder refuses nesting past 10000 levels, so bound the input first
	if depth, exceeded := nestingDepth(metadata, 0, v.cfg.MaxDepth); exceeded {
		return nil, tooDeep(v.cfg.MaxDepth, depth), false
	}

	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, domain.NewError(domain.CheckSafety, domain.CodeSchemaViolation,
			fmt.Sprintf("metadata is not serializable: %v", err)), false
	}
	if len(raw) > v.cfg.MaxMetadataBytes {
		return nil, domain.NewError(domain.CheckSafety, domain.CodeTooLarge,
			fmt.Sprintf("metadata is %d bytes, limit is %d", len(raw), v.cfg.MaxMetadataBytes)), false
	}

	var normalized map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&normalized); err != nil {
		return nil, domain.NewError(domain.CheckSafety, domain.CodeSchemaViolation,
			fmt.Sprintf("metadata is not a JSON object: %v", err)), false
	}

	if depth, exceeded := nestingDepth(normalized, 0, v.cfg.MaxDepth); exceeded {
		return nil, tooDeep(v.cfg.MaxDepth, depth), false
	}
	return normalized, domain.Diagnostic{}, true
}

func tooDeep(max, reached int) domain.Diagnostic {
	return domain.NewError(domain.CheckSafety, domain.CodeTooDeep,
		fmt.Sprintf("metadata nesting depth exceeds %d (reached %d)", max, reached))
}

// nestingDepth returns the deepest level reached below value, where value sits
// at depth. It stops descending as soon as max is exceeded.
func nestingDepth(value any, depth, max int) (int, bool) {
	if depth > max {
		return depth, true
	}
	deepest := depth
	visit := func(child any) bool {
		d, exceeded := nestingDepth(child, depth+1, max)
		if d > deepest {
			deepest = d
		}
		return exceeded
	}
	switch val := value.(type) {
	case map[string]any:
		for _, child := range val {
			if visit(child) {
				return deepest, true
			}
		}
	case []any:
		for _, child := range val {
			if visit(child) {
				return deepest, true
			}
		}
	}
	return deepest, false
}

func (v *MetadataValidator) checkSchema(ctx context.Context, t domain.KnowledgeType, doc map[string]any, seen reported) domain.Diagnostics {
	s, err := v.schemas.Load(ctx, t)
	if err != nil {
		code := domain.CodeSchemaNotFound
		if errors.Is(err, domain.ErrSchemaMalformed) {
			code = domain.CodeSchemaMalformed
		}
		v.logger.Error("schema unavailable", zap.String("type", string(t)), zap.Error(err))
		return domain.Diagnostics{domain.NewError(domain.CheckSchema, code, fmt.Sprintf("%s: %v", t, err))}
	}

	violations, err := s.Validate(doc)
	if err != nil {
		return domain.Diagnostics{domain.NewError(domain.CheckSchema, domain.CodeSchemaViolation, err.Error())}
	}

	var out domain.Diagnostics
	for _, violation := range violations {
		field := violationPath(violation)
		switch {
		case violation.Rule == "required":
			if seen.missing[field] {
				continue
			}
			seen.missing[field] = true
			out = append(out, domain.Diagnostic{
				Check:   domain.CheckSchema,
				Code:    domain.CodeMissingField,
				Level:   domain.LevelError,
				Field:   field,
				Message: field,
			})
		case field == domain.FieldImportance && seen.importanceInvalid,
			field == domain.FieldComponent && seen.componentInvalid:
			continue
		case field == domain.FieldUniqueID && violation.Rule == "pattern" && (seen.prefixMismatch || seen.suffixMissing):
			// already reported by the identifier checks
			continue
		default:
			out = append(out, domain.Diagnostic{
				Check:   domain.CheckSchema,
				Code:    domain.CodeSchemaViolation,
				Level:   domain.LevelError,
				Field:   field,
				Message: fmt.Sprintf("%s: %s (rule: %s)", field, violation.Description, violation.Rule),
			})
		}
	}
	return out
}

func violationPath(v schema.Violation) string {
	field := v.Field
	if field == "(root)" {
		field = ""
	}
	if v.Rule == "required" && v.Property != "" {
		if field == "" {
			return v.Property
		}
		return field + "." + v.Property
	}
	if field == "" {
		return "(root)"
	}
	return field
}

func describe(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v (%T)", v, v)
}

func joinTypes() string {
	types := domain.KnowledgeTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
