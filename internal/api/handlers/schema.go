package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/api"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/domain"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/schema"
	"github.com/go-chi/chi/v5"
)

type SchemaCatalog interface {
	Types() []domain.KnowledgeType
	Load(ctx context.Context, t domain.KnowledgeType) (*schema.Schema, error)
}

type SchemaHandler struct {
	catalog SchemaCatalog
}

func NewSchemaHandler(catalog SchemaCatalog) *SchemaHandler {
	return &SchemaHandler{catalog: catalog}
}

type SchemaSummary struct {
	Type       string   `json:"type"`
	IDPrefix   string   `json:"id_prefix"`
	Required   []string `json:"required"`
	Collection string   `json:"collection"`
}

func (h *SchemaHandler) List(w http.ResponseWriter, r *http.Request) {
	types := h.catalog.Types()
	out := make([]SchemaSummary, 0, len(types))
	for _, t := range types {
		spec, ok := domain.SpecFor(t)
		if !ok {
			continue
		}
		required := append(append([]string{}, domain.RequiredFields...), spec.RequiredFields...)
		out = append(out, SchemaSummary{
			Type:       string(t),
			IDPrefix:   spec.IDPrefix,
			Required:   required,
			Collection: string(spec.Collection),
		})
	}
	api.Success(w, http.StatusOK, out)
}

// Get writes the raw JSON Schema document for the requested type.
func (h *SchemaHandler) Get(w http.ResponseWriter, r *http.Request) {
	t := domain.KnowledgeType(chi.URLParam(r, "type"))
	if !t.IsValid() {
		api.Error(w, http.StatusNotFound, "unknown knowledge type")
		return
	}

	s, err := h.catalog.Load(r.Context(), t)
	if err != nil {
		if errors.Is(err, domain.ErrSchemaNotFound) {
			api.Error(w, http.StatusNotFound, err.Error())
			return
		}
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, json.RawMessage(s.Raw()))
}
