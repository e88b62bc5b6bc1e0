package baseclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stellar-insights/ledger-stream-service/internal/types"
)

var ALLOWED_METHODS = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}

type BaseClient interface {
	GetBaseURL() string
	GetDefaultRequestTimeout() int
	GetHttpClient() *http.Client
}

type BaseClientOptions struct {
	Timeout int
	Path    string
	Query   url.Values
	Headers map[string]string
	// RawBody is sent as-is instead of the JSON encoding of the input. Used
	// when the exact bytes matter, e.g. for signed payloads.
	RawBody []byte
	// DiscardResponse skips decoding the response body.
	DiscardResponse bool
}

func isAllowedMethods(method string) bool {
	for _, allowedMethod := range ALLOWED_METHODS {
		if method == allowedMethod {
			return true
		}
	}
	return false
}

func SendRequest[I any, R any](
	ctx context.Context, client BaseClient, method string, opts *BaseClientOptions, input *I,
) (*R, *types.Error) {
	if !isAllowedMethods(method) {
		return nil, types.NewInternalServiceError(fmt.Errorf("method %s is not allowed", method))
	}
	requestURL := fmt.Sprintf("%s%s", client.GetBaseURL(), opts.Path)
	if len(opts.Query) > 0 {
		requestURL = fmt.Sprintf("%s?%s", requestURL, opts.Query.Encode())
	}
	timeout := client.GetDefaultRequestTimeout()
	// If timeout is set, use it instead of the default
	if opts.Timeout != 0 {
		timeout = opts.Timeout
	}
	// Set a timeout for the request
	ctxWithTimeout, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Millisecond)
	defer cancel()

	body, bodyErr := requestBody(method, opts, input)
	if bodyErr != nil {
		return nil, bodyErr
	}
	req, requestError := http.NewRequestWithContext(ctxWithTimeout, method, requestURL, body)
	if requestError != nil {
		return nil, types.NewErrorWithMsg(
			http.StatusInternalServerError, types.InternalServiceError, requestError.Error(),
		)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Set headers
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.GetHttpClient().Do(req)
	if err != nil {
		if errors.Is(ctxWithTimeout.Err(), context.DeadlineExceeded) {
			return nil, types.NewErrorWithMsg(
				http.StatusRequestTimeout,
				types.RequestTimeout,
				fmt.Sprintf("request timeout after %d ms at %s", timeout, requestURL),
			)
		}
		log.Ctx(ctx).Warn().Err(err).Msgf(
			"failed to send request to %s", requestURL,
		)
		return nil, types.NewErrorWithMsg(
			http.StatusServiceUnavailable,
			types.ServiceUnavailable,
			fmt.Sprintf("failed to send request to %s: %v", requestURL, err),
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, types.NewErrorWithMsg(
			resp.StatusCode,
			types.TooManyRequests,
			fmt.Sprintf("rate limited when calling %s", requestURL),
		)
	} else if resp.StatusCode >= http.StatusInternalServerError {
		return nil, types.NewErrorWithMsg(
			resp.StatusCode,
			types.InternalServiceError,
			fmt.Sprintf("internal server error when calling %s", requestURL),
		)
	} else if resp.StatusCode >= http.StatusBadRequest {
		return nil, types.NewErrorWithMsg(
			resp.StatusCode,
			types.BadRequest,
			fmt.Sprintf("client error %d when calling %s", resp.StatusCode, requestURL),
		)
	}

	var output R
	if opts.DiscardResponse {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &output, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(&output); err != nil {
		return nil, types.NewErrorWithMsg(
			http.StatusBadGateway,
			types.InvalidResponse,
			fmt.Sprintf("failed to decode response from %s: %v", requestURL, err),
		)
	}

	return &output, nil
}

func requestBody[I any](method string, opts *BaseClientOptions, input *I) (io.Reader, *types.Error) {
	if method != http.MethodPost && method != http.MethodPut {
		return nil, nil
	}
	if opts.RawBody != nil {
		return bytes.NewReader(opts.RawBody), nil
	}
	if input == nil {
		return nil, nil
	}
	body, err := json.Marshal(input)
	if err != nil {
		return nil, types.NewErrorWithMsg(
			http.StatusInternalServerError,
			types.InternalServiceError,
			"failed to marshal request body",
		)
	}
	return bytes.NewReader(body), nil
}
