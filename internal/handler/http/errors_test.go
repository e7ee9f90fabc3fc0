package http

import (
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windfall/speech_portal/internal/errors"
	"github.com/windfall/speech_portal/internal/logger"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
		wantDetails map[string]interface{}
	}{
		{
			name:        "validation",
			err:         errors.Validation("rate must be an integer"),
			wantStatus:  http.StatusBadRequest,
			wantCode:    "VALIDATION_ERROR",
			wantMessage: "rate must be an integer",
		},
		{
			name:        "unsupported media",
			err:         errors.UnsupportedMedia("Only WAV audio is supported"),
			wantStatus:  http.StatusBadRequest,
			wantCode:    "UNSUPPORTED_MEDIA",
			wantMessage: "Only WAV audio is supported",
		},
		{
			name:        "upstream keeps details",
			err:         errors.Upstream(429, "too many requests"),
			wantStatus:  http.StatusBadGateway,
			wantCode:    "UPSTREAM_ERROR",
			wantMessage: "upstream returned 429: too many requests",
			wantDetails: map[string]interface{}{"upstream_status": float64(429)},
		},
		{
			name:        "wrapped cause is not exposed",
			err:         errors.Wrap(errors.ErrUsageStore, "usage store unavailable", stderrors.New("bolt: database not open")),
			wantStatus:  http.StatusServiceUnavailable,
			wantCode:    "USAGE_STORE_ERROR",
			wantMessage: "usage store unavailable",
		},
		{
			name:        "plain error",
			err:         stderrors.New("pgx: connection refused"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "INTERNAL_ERROR",
			wantMessage: "internal server error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleError(rec, logger.NewNop(), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeEnvelope(t, rec, nil)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantMessage, resp.Error.Message)
			assert.Equal(t, tt.wantDetails, resp.Error.Details)
			assert.NotContains(t, rec.Body.String(), "bolt:")
			assert.NotContains(t, rec.Body.String(), "pgx:")
		})
	}
}
