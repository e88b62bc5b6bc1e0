package webhooks

import (
	"context"
	"net/http"

	baseclient "github.com/stellar-insights/ledger-stream-service/internal/clients/base"
	"github.com/stellar-insights/ledger-stream-service/internal/types"
)

// EndpointClient posts signed envelopes. Endpoints are absolute URLs, so the
// base URL is empty and the endpoint goes in the request path.
type EndpointClient struct {
	defaultTimeout int
	httpClient     *http.Client
}

func NewEndpointClient(requestTimeout int) *EndpointClient {
	return &EndpointClient{
		defaultTimeout: requestTimeout,
		httpClient:     &http.Client{},
	}
}

// Necessary for the BaseClient interface
func (c *EndpointClient) GetBaseURL() string {
	return ""
}

func (c *EndpointClient) GetDefaultRequestTimeout() int {
	return c.defaultTimeout
}

func (c *EndpointClient) GetHttpClient() *http.Client {
	return c.httpClient
}

func (c *EndpointClient) Post(
	ctx context.Context, endpointURL string, headers map[string]string, payload []byte,
) *types.Error {
	opts := &baseclient.BaseClientOptions{
		Path:            endpointURL,
		Headers:         headers,
		RawBody:         payload,
		DiscardResponse: true,
	}
	_, err := baseclient.SendRequest[any, any](ctx, c, http.MethodPost, opts, nil)
	return err
}
