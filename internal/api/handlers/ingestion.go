package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/types"
)

// GetIngestionStatus gets the progress of ledger ingestion
// @Summary Get ingestion status
// @Description Returns the persisted cursor, the current state of the ingestion loop and the number of live push connections.
// @Produce json
// @Success 200 {object} PublicResponse[services.IngestionStatusPublic] "Ingestion status"
// @Failure 500 {object} types.Error "Error: Internal Server Error"
// @Router /v1/ingestion/status [get]
func (h *Handler) GetIngestionStatus(request *http.Request) (*Result, *types.Error) {
	ctx := request.Context()
	stats, err := h.registry.Stats()
	if err != nil {
		// the registry is gone once shutdown closed the push connections
		log.Ctx(ctx).Warn().Err(err).Msg("failed to read push connection stats")
	}

	status, apiErr := h.services.GetIngestionStatus(ctx, h.loop.State().String(), stats.Connections)
	if apiErr != nil {
		return nil, apiErr
	}
	return NewResult(status), nil
}
