package http

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/windfall/speech_portal/internal/errors"
	"github.com/windfall/speech_portal/pkg/response"
)

// handleError writes err as the response envelope. Errors that are not an
// AppError are logged and hidden behind a generic 500. Wrapped causes are
// logged, never returned to the client.
func handleError(w http.ResponseWriter, log zerolog.Logger, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		log.Error().Err(err).Msg("Unhandled error")
		appErr = errors.Internal("internal server error")
	}

	status := appErr.HTTPStatus()
	if ok && status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("code", string(appErr.Code)).Msg("Request failed")
	}
	response.Error(w, status, &response.ErrorBody{
		Code:    string(appErr.Code),
		Message: appErr.Message,
		Details: appErr.Details,
	})
}
