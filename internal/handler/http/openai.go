package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/windfall/speech_portal/internal/errors"
	"github.com/windfall/speech_portal/internal/service"
	"github.com/windfall/speech_portal/pkg/response"
)

// OpenAIHandler exposes synthesis on the OpenAI audio API surface so OpenAI
// SDKs can be pointed at the portal.
type OpenAIHandler struct {
	log    zerolog.Logger
	speech *service.SpeechService
}

// NewOpenAIHandler creates a new OpenAI-compatible handler.
func NewOpenAIHandler(log zerolog.Logger, speech *service.SpeechService) *OpenAIHandler {
	return &OpenAIHandler{log: log, speech: speech}
}

// CreateSpeech handles POST /v1/audio/speech
func (h *OpenAIHandler) CreateSpeech(w http.ResponseWriter, r *http.Request) {
	var body openai.CreateSpeechRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handleError(w, h.log, errors.Validation("invalid request body"))
		return
	}

	req, err := service.FromOpenAISpeech(body)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	result, err := h.speech.Synthesize(r.Context(), req)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	if result.ArchiveURL != "" {
		w.Header().Set("X-Audio-URL", result.ArchiveURL)
	}
	response.Binary(w, http.StatusOK, result.Format.ContentType, result.Audio)
}
