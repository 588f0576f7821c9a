package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/remiblancher/qp12/internal/api/dto"
	apierrors "github.com/remiblancher/qp12/internal/api/errors"
	"github.com/remiblancher/qp12/internal/api/service"
)

// PKCS12Handler handles container HTTP requests.
type PKCS12Handler struct {
	service *service.PKCS12Service
}

// NewPKCS12Handler creates a new PKCS12Handler.
func NewPKCS12Handler(svc *service.PKCS12Service) *PKCS12Handler {
	return &PKCS12Handler{service: svc}
}

// Build handles POST /api/v1/pkcs12
func (h *PKCS12Handler) Build(w http.ResponseWriter, r *http.Request) {
	var req dto.BuildRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := h.service.Build(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, resp)
}

// Repassphrase handles POST /api/v1/pkcs12/repassphrase
func (h *PKCS12Handler) Repassphrase(w http.ResponseWriter, r *http.Request) {
	var req dto.RepassphraseRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := h.service.Repassphrase(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Inspect handles POST /api/v1/pkcs12/inspect
func (h *PKCS12Handler) Inspect(w http.ResponseWriter, r *http.Request) {
	var req dto.InspectRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := h.service.Inspect(r.Context(), &req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Providers handles GET /api/v1/providers
func (h *PKCS12Handler) Providers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.Providers(r.Context()))
}

// decodeRequest decodes a JSON body into v, answering 400 or 413 on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, apierrors.NewBadRequest("Request body too large"))
			return false
		}
		respondError(w, http.StatusBadRequest, apierrors.NewBadRequest("Invalid JSON request body: "+err.Error()))
		return false
	}
	return true
}

// handleServiceError maps a service error onto the response.
func handleServiceError(w http.ResponseWriter, err error) {
	status, apiErr := apierrors.MapError(err)
	respondError(w, status, apiErr)
}
