package http

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/windfall/speech_portal/internal/service"
	"github.com/windfall/speech_portal/pkg/response"
)

// UsageHandler serves the usage dashboards.
type UsageHandler struct {
	log   zerolog.Logger
	usage *service.UsageService
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(log zerolog.Logger, usage *service.UsageService) *UsageHandler {
	return &UsageHandler{log: log, usage: usage}
}

// Summary handles GET /api/usage/summary?month=YYYY-MM
func (h *UsageHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.usage.Summary(r.Context(), r.URL.Query().Get("month"))
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, summary)
}

// Overview handles GET /api/usage/overview. When the usage store is down it
// serves zeros with the configured limits.
func (h *UsageHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.usage.Overview(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("Falling back to static usage overview")
		overview = h.usage.FallbackOverview()
	}
	response.JSON(w, http.StatusOK, overview)
}
