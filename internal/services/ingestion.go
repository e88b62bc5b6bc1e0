package services

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/observability/tracing"
	"github.com/stellar-insights/ledger-stream-service/internal/types"
)

type IngestionStatusPublic struct {
	LastSequence    uint32 `json:"last_sequence"`
	PagingToken     string `json:"paging_token"`
	UpdatedAt       int64  `json:"updated_at,omitempty"`
	LoopState       string `json:"loop_state"`
	LiveConnections int    `json:"live_connections"`
}

// GetIngestionStatus combines the persisted cursor with the live state of the
// ingestion loop and the push channel.
func (s *Services) GetIngestionStatus(
	ctx context.Context, loopState string, liveConnections int,
) (*IngestionStatusPublic, *types.Error) {
	cursor, err := tracing.WrapWithSpan(ctx, "get_cursor", func() (*types.Cursor, error) {
		return s.DbClient.GetCursor(ctx)
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("error while fetching ingestion cursor")
		return nil, types.NewError(http.StatusInternalServerError, types.InternalServiceError, err)
	}
	status := &IngestionStatusPublic{
		LastSequence:    cursor.LastSequence,
		PagingToken:     cursor.PagingToken,
		LoopState:       loopState,
		LiveConnections: liveConnections,
	}
	if !cursor.UpdatedAt.IsZero() {
		status.UpdatedAt = cursor.UpdatedAt.Unix()
	}
	return status, nil
}
