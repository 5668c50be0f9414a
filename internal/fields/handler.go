package fields

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/welldanyogia/fieldguard/internal/api"
	"github.com/welldanyogia/fieldguard/internal/repository"
)

// Handler handles HTTP requests for protected field endpoints
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Put handles PUT /api/v1/fields/{name}
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := api.OwnerID(w, r)
	if !ok {
		return
	}

	var req PutFieldRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}

	field, err := h.service.Put(r.Context(), ownerID, chi.URLParam(r, "name"), req.Value)
	if err != nil {
		h.handleError(w, err)
		return
	}

	api.WriteSuccess(w, http.StatusOK, field)
}

// Get handles GET /api/v1/fields/{name}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := api.OwnerID(w, r)
	if !ok {
		return
	}

	field, err := h.service.Get(r.Context(), ownerID, chi.URLParam(r, "name"))
	if err != nil {
		h.handleError(w, err)
		return
	}

	api.WriteSuccess(w, http.StatusOK, field)
}

// List handles GET /api/v1/fields
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := api.OwnerID(w, r)
	if !ok {
		return
	}

	list, err := h.service.List(r.Context(), ownerID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	api.WriteSuccess(w, http.StatusOK, list)
}

// Delete handles DELETE /api/v1/fields/{name}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := api.OwnerID(w, r)
	if !ok {
		return
	}

	name := chi.URLParam(r, "name")
	if err := h.service.Delete(r.Context(), ownerID, name); err != nil {
		h.handleError(w, err)
		return
	}

	api.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"name":    name,
		"deleted": true,
	})
}

func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidName):
		api.WriteError(w, http.StatusBadRequest, api.CodeValidationError, "Invalid field name", map[string][]string{
			"name": {"name must match [a-z0-9_] and be at most 64 characters"},
		})
	case errors.Is(err, repository.ErrFieldNotFound):
		api.WriteError(w, http.StatusNotFound, api.CodeNotFound, "Field not found", nil)
	default:
		h.logger.Error("protected field request failed", slog.String("error", err.Error()))
		api.WriteError(w, http.StatusInternalServerError, api.CodeInternalError, "An unexpected error occurred", nil)
	}
}
