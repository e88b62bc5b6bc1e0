package handlers

import (
	"net/http"

	"github.com/stellar-insights/ledger-stream-service/internal/types"
)

// HealthCheck checks the storage, cache and dead-letter store
// @Summary Health check
// @Description Pings every store the service depends on.
// @Produce json
// @Success 200 {object} PublicResponse[string] "Server is up and running"
// @Failure 500 {object} types.Error "Error: Internal Server Error"
// @Router /healthcheck [get]
func (h *Handler) HealthCheck(request *http.Request) (*Result, *types.Error) {
	err := h.services.DoHealthCheck(request.Context())
	if err != nil {
		return nil, types.NewInternalServiceError(err)
	}

	return NewResult("Server is up and running"), nil
}
