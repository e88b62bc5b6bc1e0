package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/api/handlers"
	"github.com/stellar-insights/ledger-stream-service/internal/observability/metrics"
	"github.com/stellar-insights/ledger-stream-service/internal/types"
)

type ErrorResponse struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func newInternalServiceError() *ErrorResponse {
	return &ErrorResponse{
		ErrorCode: types.InternalServiceError.String(),
		Message:   "Internal service error",
	}
}

func (e *ErrorResponse) Error() string {
	return e.Message
}

// routeLabel is the matched route pattern, so path parameters never end up
// in metric labels.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func registerHandler(handlerFunc func(*http.Request) (*handlers.Result, *types.Error)) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.StartHttpRequestDurationTimer(routeLabel(r))
		logger := log.Ctx(r.Context())

		result, err := handlerFunc(r)
		if err != nil {
			if http.StatusText(err.StatusCode) == "" {
				logger.Error().Err(err).Int("status_code", err.StatusCode).Msg("invalid status code")
				err.StatusCode = http.StatusInternalServerError
			}

			errorResponse := &ErrorResponse{
				ErrorCode: err.ErrorCode.String(),
				Message:   err.Err.Error(),
			}
			if err.StatusCode >= http.StatusInternalServerError {
				logger.Error().Err(errorResponse).Msg("request failed with 5xx error")
				// the client only sees a generic message
				errorResponse.Message = "Internal service error"
			}
			timer(err.StatusCode)
			writeResponse(w, r, err.StatusCode, errorResponse)
			return
		}

		if result == nil || http.StatusText(result.Status) == "" {
			logger.Error().Msg("invalid success response, error returned")
			timer(http.StatusInternalServerError)
			writeResponse(w, r, http.StatusInternalServerError, newInternalServiceError())
			return
		}

		defer timer(result.Status)
		writeResponse(w, r, result.Status, result.Data)
	}
}

func writeResponse(w http.ResponseWriter, r *http.Request, statusCode int, res interface{}) {
	respBytes, err := json.Marshal(res)
	if err != nil {
		log.Ctx(r.Context()).Err(err).Msg("failed to marshal response")
		http.Error(w, "Failed to process the request. Please try again later.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(respBytes) // nolint:errcheck
}
