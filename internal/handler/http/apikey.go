package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/windfall/speech_portal/internal/service"
	"github.com/windfall/speech_portal/pkg/response"
)

// APIKeyHandler manages bearer keys.
type APIKeyHandler struct {
	log  zerolog.Logger
	keys *service.APIKeyService
}

// NewAPIKeyHandler creates a new API key handler.
func NewAPIKeyHandler(log zerolog.Logger, keys *service.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{log: log, keys: keys}
}

// List handles GET /api/apikeys
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context())
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"keys": keys,
	})
}

// Create handles POST /api/apikeys. The plaintext key is only ever returned here.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	created, err := h.keys.Create(r.Context())
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	h.log.Info().Str("id", created.ID).Str("masked", created.Masked).Msg("API key created")
	response.Created(w, created)
}

// Delete handles DELETE /api/apikeys/{id}
func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.keys.Delete(r.Context(), id); err != nil {
		handleError(w, h.log, err)
		return
	}
	h.log.Info().Str("id", id).Msg("API key deleted")
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"ok": true,
	})
}
