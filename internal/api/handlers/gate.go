package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/api"
	"github.com/Hidden-History/bmad-qdrant-knowledge-management/internal/service"
)

type Gate interface {
	Evaluate(ctx context.Context, content string, metadata map[string]any, opts service.EvaluateOptions) *service.Decision
}

type MetadataValidator interface {
	Validate(ctx context.Context, metadata map[string]any) *service.ValidationResult
}

type GateHandler struct {
	gate      Gate
	validator MetadataValidator
}

func NewGateHandler(gate Gate, validator MetadataValidator) *GateHandler {
	return &GateHandler{gate: gate, validator: validator}
}

type EvaluateOptions struct {
	SkipDuplicateChecks bool `json:"skip_duplicate_checks"`
	SkipSimilarity      bool `json:"skip_similarity"`
}

func (o EvaluateOptions) toService() service.EvaluateOptions {
	return service.EvaluateOptions{
		SkipDuplicateChecks: o.SkipDuplicateChecks,
		SkipSimilarity:      o.SkipSimilarity,
	}
}

type EvaluateRequest struct {
	Content  string          `json:"content"`
	Metadata map[string]any  `json:"metadata"`
	Options  EvaluateOptions `json:"options"`
}

type ValidateRequest struct {
	Metadata map[string]any `json:"metadata"`
}

type ValidateResponse struct {
	Valid    bool     `json:"valid"`
	Type     string   `json:"type,omitempty"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Notes    []string `json:"notes"`
	Checks   []string `json:"checks"`
}

type FingerprintRequest struct {
	Content string `json:"content"`
}

type FingerprintResponse struct {
	ContentHash string `json:"content_hash"`
}

// Evaluate returns the gate decision. Rejection is a normal outcome and is
// reported with 200; only malformed requests fail.
func (h *GateHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.Metadata == nil {
		api.Error(w, http.StatusBadRequest, "metadata is required")
		return
	}

	decision := h.gate.Evaluate(r.Context(), req.Content, req.Metadata, req.Options.toService())
	api.Success(w, http.StatusOK, decision)
}

func (h *GateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Metadata == nil {
		api.Error(w, http.StatusBadRequest, "metadata is required")
		return
	}

	result := h.validator.Validate(r.Context(), req.Metadata)
	api.Success(w, http.StatusOK, &ValidateResponse{
		Valid:    result.Valid,
		Type:     string(result.Type),
		Errors:   nonNil(result.Errors()),
		Warnings: nonNil(result.Warnings()),
		Notes:    nonNil(result.Notes()),
		Checks:   nonNil(result.Checks),
	})
}

func (h *GateHandler) Fingerprint(w http.ResponseWriter, r *http.Request) {
	var req FingerprintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	api.Success(w, http.StatusOK, &FingerprintResponse{ContentHash: service.Fingerprint(req.Content)})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
