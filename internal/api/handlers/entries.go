package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/api"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/service"
)

type KnowledgeService interface {
	Store(ctx context.Context, in service.StoreInput) (*service.StoreResult, error)
	Stats(ctx context.Context) ([]service.CollectionStats, error)
}

type EntryHandler struct {
	svc KnowledgeService
}

func NewEntryHandler(svc KnowledgeService) *EntryHandler {
	return &EntryHandler{svc: svc}
}

type CreateEntryRequest struct {
	Content  string          `json:"content"`
	Metadata map[string]any  `json:"metadata"`
	DryRun   bool            `json:"dry_run"`
	Options  EvaluateOptions `json:"options"`
}

type EntryResponse struct {
	ID         string         `json:"id"`
	UniqueID   string         `json:"unique_id"`
	Collection string         `json:"collection"`
	Metadata   map[string]any `json:"metadata"`
}

type CreateEntryResponse struct {
	Stored   bool              `json:"stored"`
	Decision *service.Decision `json:"decision"`
	Entry    *EntryResponse    `json:"entry,omitempty"`
}

// Create evaluates and stores an entry: 201 when written, 200 for an accepted
// dry run, 422 with the decision when the gate rejects it.
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.svc.Store(r.Context(), service.StoreInput{
		Content:  req.Content,
		Metadata: req.Metadata,
		DryRun:   req.DryRun,
		Options:  req.Options.toService(),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := &CreateEntryResponse{Stored: result.Stored, Decision: result.Decision}
	if e := result.Entry; e != nil {
		resp.Entry = &EntryResponse{ID: e.ID, UniqueID: e.UniqueID, Collection: e.Collection, Metadata: e.Metadata}
	}

	switch {
	case !result.Decision.Accepted:
		api.Success(w, http.StatusUnprocessableEntity, resp)
	case result.Stored:
		api.Success(w, http.StatusCreated, resp)
	default:
		api.Success(w, http.StatusOK, resp)
	}
}

func (h *EntryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, stats)
}
