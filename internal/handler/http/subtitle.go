package http

import (
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/windfall/speech_portal/internal/errors"
	"github.com/windfall/speech_portal/internal/subtitle"
	"github.com/windfall/speech_portal/pkg/response"
)

// SubtitleHandler renders SRT files for synthesized clips.
type SubtitleHandler struct {
	log zerolog.Logger
	now func() time.Time
}

// NewSubtitleHandler creates a new subtitle handler.
func NewSubtitleHandler(log zerolog.Logger) *SubtitleHandler {
	return &SubtitleHandler{log: log, now: time.Now}
}

// SubtitleRequest is the body of POST /api/subtitles. Duration is in seconds.
type SubtitleRequest struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
}

// Build handles POST /api/subtitles
func (h *SubtitleHandler) Build(w http.ResponseWriter, r *http.Request) {
	var req SubtitleRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := decodeJSON(r, &req); err != nil {
			handleError(w, h.log, err)
			return
		}
	} else {
		if err := parseForm(r); err != nil {
			handleError(w, h.log, err)
			return
		}
		req.Text = r.FormValue("text")
		if raw := strings.TrimSpace(r.FormValue("duration")); raw != "" {
			d, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				handleError(w, h.log, errors.Validation("duration must be a number"))
				return
			}
			req.Duration = d
		}
	}

	if strings.TrimSpace(req.Text) == "" {
		handleError(w, h.log, errors.Validation("text is required"))
		return
	}
	if req.Duration < 0 || math.IsNaN(req.Duration) || math.IsInf(req.Duration, 0) {
		handleError(w, h.log, errors.Validation("duration must be a non-negative number"))
		return
	}

	srt := subtitle.BuildSRT(req.Text, subtitle.DurationFromSeconds(req.Duration))
	response.Attachment(w, "text/plain; charset=utf-8", subtitle.Filename(req.Text, h.now(), "srt"), []byte(srt))
}
