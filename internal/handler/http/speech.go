package http

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/windfall/speech_portal/internal/audio"
	"github.com/windfall/speech_portal/internal/errors"
	"github.com/windfall/speech_portal/internal/service"
	"github.com/windfall/speech_portal/internal/ssml"
	"github.com/windfall/speech_portal/pkg/response"
)

const (
	// maxFormMemory is held in memory while parsing multipart bodies; the
	// rest spills to temp files.
	maxFormMemory = 10 << 20
	// maxUploadBytes caps a single recognition or assessment upload.
	maxUploadBytes = 25 << 20
	// maxBodyBytes caps synthesis and subtitle request bodies.
	maxBodyBytes = 1 << 20
)

// SpeechHandler serves text-to-speech, recognition and pronunciation routes.
type SpeechHandler struct {
	log    zerolog.Logger
	speech *service.SpeechService
}

// NewSpeechHandler creates a new speech handler.
func NewSpeechHandler(log zerolog.Logger, speech *service.SpeechService) *SpeechHandler {
	return &SpeechHandler{
		log:    log,
		speech: speech,
	}
}

// Voices handles GET /api/tts/voices
func (h *SpeechHandler) Voices(w http.ResponseWriter, r *http.Request) {
	filter := service.VoiceFilter{
		Locale:     r.URL.Query().Get("locale"),
		NeuralOnly: true,
	}
	if filter.Locale == "" {
		filter.Locale = r.URL.Query().Get("lang")
	}
	if raw := r.URL.Query().Get("neural_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			handleError(w, h.log, errors.Validation("neural_only must be a boolean"))
			return
		}
		filter.NeuralOnly = v
	}

	voices, err := h.speech.ListVoices(r.Context(), filter)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"voices": voices,
	})
}

// SynthesizeRequest is the JSON body accepted by the synthesis route. Form
// posts use the same field names.
type SynthesizeRequest struct {
	Text         string   `json:"text"`
	Voice        string   `json:"voice"`
	OutputFormat string   `json:"output_format"`
	Lang         string   `json:"lang"`
	Style        string   `json:"style"`
	Role         string   `json:"role"`
	StyleDegree  *float64 `json:"style_degree"`
	Rate         *int     `json:"rate"`
	Pitch        *int     `json:"pitch"`
	Volume       *int     `json:"volume"`
	PauseMs      *int     `json:"pause_ms"`
}

// UnmarshalJSON reads numeric fields as JSON numbers so that huge values
// saturate instead of failing to decode.
func (req *SynthesizeRequest) UnmarshalJSON(data []byte) error {
	type plain SynthesizeRequest
	aux := struct {
		*plain
		StyleDegree json.Number `json:"style_degree"`
		Rate        json.Number `json:"rate"`
		Pitch       json.Number `json:"pitch"`
		Volume      json.Number `json:"volume"`
		PauseMs     json.Number `json:"pause_ms"`
	}{plain: (*plain)(req)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if req.StyleDegree, err = parseFloat("style_degree", aux.StyleDegree.String()); err != nil {
		return err
	}
	ints := []struct {
		name string
		raw  json.Number
		dst  **int
	}{
		{"rate", aux.Rate, &req.Rate},
		{"pitch", aux.Pitch, &req.Pitch},
		{"volume", aux.Volume, &req.Volume},
		{"pause_ms", aux.PauseMs, &req.PauseMs},
	}
	for _, f := range ints {
		if *f.dst, err = parseInt(f.name, f.raw.String()); err != nil {
			return err
		}
	}
	return nil
}

// Synthesize handles POST /api/tts/synthesize and its /api/tts alias.
func (h *SpeechHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSynthesize(w, r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	result, err := h.speech.Synthesize(r.Context(), req.toService())
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	if result.ArchiveURL != "" {
		w.Header().Set("X-Audio-URL", result.ArchiveURL)
	}
	response.Attachment(w, result.Format.ContentType, result.Filename, result.Audio)
}

// Zero numeric fields mean "not set".
func (req SynthesizeRequest) toService() service.SynthesizeRequest {
	return service.SynthesizeRequest{
		Options: ssml.Options{
			Text:        req.Text,
			Voice:       req.Voice,
			Lang:        req.Lang,
			Style:       req.Style,
			Role:        req.Role,
			StyleDegree: nonZero(req.StyleDegree),
			Rate:        nonZero(req.Rate),
			Pitch:       nonZero(req.Pitch),
			Volume:      nonZero(req.Volume),
			PauseMs:     nonZero(req.PauseMs),
		},
		OutputFormat: req.OutputFormat,
	}
}

func nonZero[T int | float64](v *T) *T {
	if v == nil || *v == 0 {
		return nil
	}
	return v
}

func decodeSynthesize(w http.ResponseWriter, r *http.Request) (SynthesizeRequest, error) {
	var req SynthesizeRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := decodeJSON(r, &req); err != nil {
			return req, err
		}
		return req, nil
	}

	if err := parseForm(r); err != nil {
		return req, err
	}
	req.Text = r.FormValue("text")
	req.Voice = r.FormValue("voice")
	req.OutputFormat = r.FormValue("output_format")
	req.Lang = r.FormValue("lang")
	req.Style = r.FormValue("style")
	req.Role = r.FormValue("role")

	var err error
	if req.StyleDegree, err = parseFloat("style_degree", r.FormValue("style_degree")); err != nil {
		return req, err
	}
	for name, dst := range map[string]**int{
		"rate":     &req.Rate,
		"pitch":    &req.Pitch,
		"volume":   &req.Volume,
		"pause_ms": &req.PauseMs,
	} {
		if *dst, err = parseInt(name, r.FormValue(name)); err != nil {
			return req, err
		}
	}
	return req, nil
}

// decodeJSON decodes a body already capped with http.MaxBytesReader.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return nil
	}
	if tooLarge(err) {
		return errors.Validation("request body too large")
	}
	if appErr, ok := errors.As(err); ok {
		return appErr
	}
	return errors.Validation("invalid request body")
}

func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxFormMemory)
	switch {
	case err == nil, stderrors.Is(err, http.ErrNotMultipart):
		return nil
	case tooLarge(err):
		return errors.Validation("request body too large")
	default:
		return errors.Validation("invalid form body")
	}
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return stderrors.As(err, &maxErr)
}

// parseInt reads an optional integer field. Values beyond the int range
// saturate so the SSML builder clamps them like any other out-of-range input.
func parseInt(name, raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err == nil {
		return &v, nil
	}

	// Exponent forms ("1e20") and overflowing digits.
	f, ferr := strconv.ParseFloat(raw, 64)
	if (ferr != nil && !stderrors.Is(ferr, strconv.ErrRange)) || math.IsNaN(f) || f != math.Trunc(f) {
		return nil, errors.Validation(name + " must be an integer")
	}
	switch {
	case f >= math.MaxInt:
		v = math.MaxInt
	case f <= math.MinInt:
		v = math.MinInt
	default:
		v = int(f)
	}
	return &v, nil
}

// parseFloat reads an optional number field; overflow yields ±Inf, which the
// SSML builder clamps.
func parseFloat(name, raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if (err != nil && !stderrors.Is(err, strconv.ErrRange)) || math.IsNaN(v) {
		return nil, errors.Validation(name + " must be a number")
	}
	return &v, nil
}

// Recognize handles POST /api/stt/recognize
func (h *SpeechHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAudio(w, r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	result, err := h.speech.Recognize(r.Context(), req)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// Assess handles POST /api/pronunciation/assess
func (h *SpeechHandler) Assess(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAudio(w, r)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	result, err := h.speech.AssessPronunciation(r.Context(), req)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// decodeAudio reads a multipart upload. The file goes in "audio_file" (or
// "audio") and must be declared as WAV.
func decodeAudio(w http.ResponseWriter, r *http.Request) (service.AudioRequest, error) {
	var req service.AudioRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		if tooLarge(err) {
			return req, errors.Validation("audio file too large")
		}
		return req, errors.Validation("multipart form with an audio file is required")
	}

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		file, header, err = r.FormFile("audio")
	}
	if err != nil {
		return req, errors.Validation("audio file is required")
	}
	defer file.Close()

	if !audio.IsWAVContentType(header.Header.Get("Content-Type")) {
		return req, errors.UnsupportedMedia("Only WAV audio is supported")
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return req, errors.Validation("failed to read audio file")
	}

	req.Audio = data
	req.Language = r.FormValue("language")
	req.ReferenceText = r.FormValue("reference_text")
	if raw := strings.TrimSpace(r.FormValue("seconds")); raw != "" {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil || seconds < 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
			return req, errors.Validation("seconds must be a non-negative number")
		}
		req.Seconds = int64(math.Ceil(seconds))
	}
	return req, nil
}
