package clients

import (
	"github.com/stellar-insights/ledger-stream-service/internal/clients/horizon"
	"github.com/stellar-insights/ledger-stream-service/internal/config"
	"github.com/stellar-insights/ledger-stream-service/internal/webhooks"
)

type Clients struct {
	Horizon *horizon.HorizonClient
	Webhook *webhooks.EndpointClient
}

func New(cfg *config.Config) *Clients {
	horizonClient := horizon.NewHorizonClient(&cfg.Horizon)
	webhookClient := webhooks.NewEndpointClient(cfg.Webhook.RequestTimeout)

	return &Clients{
		Horizon: horizonClient,
		Webhook: webhookClient,
	}
}
