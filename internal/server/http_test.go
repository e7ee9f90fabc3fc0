package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windfall/speech_portal/internal/client"
	"github.com/windfall/speech_portal/internal/config"
	httphandler "github.com/windfall/speech_portal/internal/handler/http"
	"github.com/windfall/speech_portal/internal/logger"
	"github.com/windfall/speech_portal/internal/ratelimit"
	"github.com/windfall/speech_portal/internal/repository"
	"github.com/windfall/speech_portal/internal/service"
	"github.com/windfall/speech_portal/internal/usage"
)

type stubSpeech struct{}

func (stubSpeech) ListVoices(context.Context) ([]client.Voice, error) {
	return []client.Voice{{"ShortName": "en-US-JennyNeural", "Locale": "en-US", "VoiceType": "Neural"}}, nil
}

func (stubSpeech) Recognize(context.Context, []byte, string) (map[string]any, error) {
	return map[string]any{"DisplayText": "ok"}, nil
}

func (stubSpeech) AssessPronunciation(context.Context, []byte, string, client.PronunciationParams) (map[string]any, error) {
	return map[string]any{"NBest": []any{}}, nil
}

func (stubSpeech) Synthesize(context.Context, string, string) ([]byte, error) {
	return []byte("audio"), nil
}

func newTestRouter(t *testing.T, adminKey, openAIKey string, perMin int) http.Handler {
	t.Helper()
	log := logger.NewNop()
	cfg := &config.Config{
		MetricsEnabled:     true,
		OpenAITTSAPIKey:    openAIKey,
		CORSAllowedOrigins: []string{"*"},
		CORSAllowedMethods: []string{"GET", "POST", "DELETE"},
		CORSAllowedHeaders: []string{"Authorization", "Content-Type"},
	}

	usageRepo := repository.NewMemoryUsageRepository()
	usageSvc := service.NewUsageService(usageRepo, usage.Limits{TTSCharsLimit: 500000}, log)
	speechSvc := service.NewSpeechService(stubSpeech{}, usageSvc, time.Minute, log)
	keySvc, err := service.NewAPIKeyService(repository.NewMemoryAPIKeyRepository(), adminKey, "secret")
	require.NoError(t, err)

	return NewRouter(cfg, log, Handlers{
		Health:   httphandler.NewHealthHandler(usageSvc, log),
		Speech:   httphandler.NewSpeechHandler(log, speechSvc),
		Usage:    httphandler.NewUsageHandler(log, usageSvc),
		APIKeys:  httphandler.NewAPIKeyHandler(log, keySvc),
		Subtitle: httphandler.NewSubtitleHandler(log),
		OpenAI:   httphandler.NewOpenAIHandler(log, speechSvc),
	}, Guards{
		Auth:    keySvc,
		Limiter: ratelimit.NewMemoryLimiter(100),
		Policy:  ratelimit.NewPolicy(perMin, perMin, nil),
	})
}

func do(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_PublicRoutes(t *testing.T) {
	h := newTestRouter(t, "admin", "", 30)

	for _, path := range []string{"/health", "/ready", "/live", "/api/health", "/api/tts/voices", "/api/usage/overview", "/api/usage/summary", "/metrics", "/"} {
		assert.Equal(t, http.StatusOK, do(h, http.MethodGet, path, "", "").Code, path)
	}
}

func TestRouter_AuthRequired(t *testing.T) {
	h := newTestRouter(t, "admin", "", 30)

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/api/tts", "", "text=hi").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/apikeys", "wrong", "").Code)

	rec := do(h, http.MethodPost, "/api/tts/synthesize", "admin", "text=hi")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio", rec.Body.String())

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/apikeys", "admin", "").Code)
}

func TestRouter_AuthDisabledWithoutAdminKey(t *testing.T) {
	h := newTestRouter(t, "", "", 30)

	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/tts", "", "text=hi").Code)
}

func TestRouter_RateLimitsVendorRoutes(t *testing.T) {
	h := newTestRouter(t, "", "", 1)

	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/tts", "", "text=hi").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(h, http.MethodPost, "/api/tts", "", "text=hi").Code)

	// Read-only routes are not counted.
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/usage/overview", "", "").Code)
}

func TestRouter_RotatingTokensWithoutAuthShareIPBudget(t *testing.T) {
	h := newTestRouter(t, "", "", 2)

	allowed := 0
	for i := 0; i < 10; i++ {
		if do(h, http.MethodPost, "/api/tts/synthesize", fmt.Sprintf("junk-%d", i), "text=hi").Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}

func TestRouter_OpenAICompat(t *testing.T) {
	body := `{"model":"tts-1","input":"hi","voice":"alloy"}`

	disabled := newTestRouter(t, "", "", 30)
	assert.Equal(t, http.StatusNotFound, do(disabled, http.MethodPost, "/v1/audio/speech", "sk-x", body).Code)

	enabled := newTestRouter(t, "", "sk-x", 30)
	assert.Equal(t, http.StatusUnauthorized, do(enabled, http.MethodPost, "/v1/audio/speech", "", body).Code)
	rec := do(enabled, http.MethodPost, "/v1/audio/speech", "sk-x", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
}

func TestRouter_UnknownAPIRoute(t *testing.T) {
	h := newTestRouter(t, "", "", 30)

	rec := do(h, http.MethodGet, "/api/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<html")
}
