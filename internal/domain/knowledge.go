package domain

import (
	"sort"
	"strings"
)

// KnowledgeType is the discriminator of a knowledge entry's metadata.
type KnowledgeType string

const (
	KnowledgeTypeArchitectureDecision KnowledgeType = "architecture_decision"
	KnowledgeTypeAgentSpec            KnowledgeType = "agent_spec"
	KnowledgeTypeStoryOutcome         KnowledgeType = "story_outcome"
	KnowledgeTypeErrorPattern         KnowledgeType = "error_pattern"
	KnowledgeTypeDatabaseSchema       KnowledgeType = "database_schema"
	KnowledgeTypeConfigPattern        KnowledgeType = "config_pattern"
	KnowledgeTypeIntegrationExample   KnowledgeType = "integration_example"
	KnowledgeTypeBestPractice         KnowledgeType = "best_practice"
)

// Importance ranks how much an entry matters to retrieval.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceMedium   Importance = "medium"
	ImportanceLow      Importance = "low"
)

// CollectionClass selects which vector collection an entry belongs to.
type CollectionClass string

const (
	CollectionKnowledge     CollectionClass = "knowledge"
	CollectionBestPractices CollectionClass = "best_practices"
)

// Metadata keys every entry must carry regardless of type.
const (
	FieldUniqueID    = "unique_id"
	FieldType        = "type"
	FieldComponent   = "component"
	FieldImportance  = "importance"
	FieldCreatedAt   = "created_at"
	FieldContentHash = "content_hash"
	FieldStoredAt    = "stored_at"
)

// RequiredFields lists the universal metadata keys in reporting order.
var RequiredFields = []string{
	FieldUniqueID,
	FieldType,
	FieldComponent,
	FieldImportance,
	FieldCreatedAt,
}

// Components is the closed set of subsystem names accepted in "component".
var Components = []string{
	"agents",
	"api",
	"config",
	"database",
	"embeddings",
	"frontend",
	"general",
	"infrastructure",
	"metadata-validation",
	"neo4j",
	"postgres",
	"qdrant",
	"search",
	"security",
	"storage",
	"testing",
	"workflow",
}

// TypeSpec describes the per-type rules layered on top of the universal fields.
type TypeSpec struct {
	Type           KnowledgeType
	IDPrefix       string
	// RequiredSuffix is enforced regardless of prefix.
	RequiredSuffix string
	RequiredFields []string
	Collection     CollectionClass
}

var typeSpecs = map[KnowledgeType]TypeSpec{
	KnowledgeTypeArchitectureDecision: {
		Type:       KnowledgeTypeArchitectureDecision,
		IDPrefix:   "arch-decision-",
		Collection: CollectionKnowledge,
	},
	KnowledgeTypeAgentSpec: {
		Type:           KnowledgeTypeAgentSpec,
		IDPrefix:       "agent-",
		RequiredFields: []string{"agent_id", "agent_name"},
		Collection:     CollectionKnowledge,
	},
	KnowledgeTypeStoryOutcome: {
		Type:           KnowledgeTypeStoryOutcome,
		IDPrefix:       "story-",
		RequiredSuffix: "-complete",
		RequiredFields: []string{"story_id"},
		Collection:     CollectionKnowledge,
	},
	KnowledgeTypeErrorPattern: {
		Type:           KnowledgeTypeErrorPattern,
		IDPrefix:       "error-",
		RequiredFields: []string{"severity"},
		Collection:     CollectionKnowledge,
	},
	KnowledgeTypeDatabaseSchema: {
		Type:           KnowledgeTypeDatabaseSchema,
		IDPrefix:       "schema-",
		RequiredFields: []string{"table_name", "database"},
		Collection:     CollectionKnowledge,
	},
	KnowledgeTypeConfigPattern: {
		Type:       KnowledgeTypeConfigPattern,
		IDPrefix:   "config-",
		Collection: CollectionKnowledge,
	},
	KnowledgeTypeIntegrationExample: {
		Type:       KnowledgeTypeIntegrationExample,
		IDPrefix:   "integration-",
		Collection: CollectionKnowledge,
	},
	KnowledgeTypeBestPractice: {
		Type:           KnowledgeTypeBestPractice,
		IDPrefix:       "bp-",
		RequiredFields: []string{"domain", "technology", "category", "discovered_by"},
		Collection:     CollectionBestPractices,
	},
}

// KnowledgeTypes returns every known type in lexical order.
func KnowledgeTypes() []KnowledgeType {
	types := make([]KnowledgeType, 0, len(typeSpecs))
	for t := range typeSpecs {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// SpecFor returns the rules for t. ok is false for unknown types.
func SpecFor(t KnowledgeType) (TypeSpec, bool) {
	spec, ok := typeSpecs[t]
	return spec, ok
}

// IsValid reports whether t is one of the known knowledge types.
func (t KnowledgeType) IsValid() bool {
	_, ok := typeSpecs[t]
	return ok
}

// IsValid reports whether i is one of the four importance levels.
func (i Importance) IsValid() bool {
	switch i {
	case ImportanceCritical, ImportanceHigh, ImportanceMedium, ImportanceLow:
		return true
	default:
		return false
	}
}

// IsValidComponent reports whether name is in Components.
func IsValidComponent(name string) bool {
	for _, c := range Components {
		if c == name {
			return true
		}
	}
	return false
}

// HasConventionalPrefix reports whether id starts with the type's unique_id prefix.
func (s TypeSpec) HasConventionalPrefix(id string) bool {
	return strings.HasPrefix(id, s.IDPrefix)
}

// HasRequiredSuffix reports whether id ends with the type's mandatory suffix.
func (s TypeSpec) HasRequiredSuffix(id string) bool {
	return strings.HasSuffix(id, s.RequiredSuffix)
}

// Entry is a candidate knowledge entry awaiting a storage decision.
type Entry struct {
	Content  string
	Metadata map[string]any
}

// StoredEntry is the read model of an entry already committed to a store.
type StoredEntry struct {
	ID          string
	UniqueID    string
	Collection  string
	ContentHash string
	Content     string
	Metadata    map[string]any
}

// SimilarMatch is a stored entry whose content resembles a candidate.
type SimilarMatch struct {
	EntryID    string  `json:"entry_id"`
	UniqueID   string  `json:"unique_id,omitempty"`
	Collection string  `json:"collection,omitempty"`
	Score      float64 `json:"score"`
}

// StringField returns metadata[key] when it is a non-empty string.
func StringField(metadata map[string]any, key string) (string, bool) {
	v, ok := metadata[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
