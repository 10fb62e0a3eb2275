// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-walletcore.
//
// go-walletcore is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jeremyhahn/go-walletcore/pkg/adapters/logger"
	"github.com/jeremyhahn/go-walletcore/pkg/correlation"
	"github.com/jeremyhahn/go-walletcore/pkg/metrics"
	"github.com/jeremyhahn/go-walletcore/pkg/validation"
)

// LinkPath is the endpoint that exchanges an API key for a link.
const LinkPath = "/v1/link"

// DefaultTimeout bounds a link request.
const DefaultTimeout = 15 * time.Second

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 64 << 10

// Config configures a RESTClient.
type Config struct {
	// BaseURL is the exchange API root, for example https://api.exchange.example.
	BaseURL string

	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// Transport overrides the HTTP transport. It is wrapped with metrics.
	Transport http.RoundTripper

	Logger logger.Logger
}

// RESTClient links accounts over the exchange's HTTP API.
type RESTClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     logger.Logger
}

var (
	_ Linker     = (*RESTClient)(nil)
	_ Endpointer = (*RESTClient)(nil)
)

type linkRequest struct {
	Client string `json:"client"`
}

type linkResponse struct {
	Linked    bool   `json:"linked"`
	AccountID string `json:"account_id,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewRESTClient creates a client. BaseURL is required.
func NewRESTClient(config *Config) (*RESTClient, error) {
	if config == nil || config.BaseURL == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	}
	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrInvalidConfig, config.BaseURL)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = "go-walletcore"
	}
	log := config.Logger
	if log == nil {
		log = logger.NopLogger{}
	}

	return &RESTClient{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: metrics.NewRoundTripper(config.Transport),
		},
		logger: log,
	}, nil
}

// Endpoint returns the exchange API root the client talks to.
func (c *RESTClient) Endpoint() string {
	return c.baseURL
}

// Link presents apiKey to the exchange as a bearer credential. It returns
// true when the exchange reports the account linked. A 401 or 403 returns
// an error wrapping ErrLinkRejected. Keys that could not be sent as a header
// fail with validation.ErrInvalidInput before any request. Requests are
// never retried.
func (c *RESTClient) Link(ctx context.Context, apiKey string) (bool, error) {
	if apiKey == "" {
		return false, ErrEmptyAPIKey
	}
	if err := validation.ValidateAPIKey(apiKey); err != nil {
		return false, err
	}

	body, err := json.Marshal(linkRequest{Client: c.userAgent})
	if err != nil {
		return false, fmt.Errorf("exchange: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+LinkPath, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("exchange: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if id := correlation.GetCorrelationID(ctx); id != "" {
		req.Header.Set(correlation.CorrelationIDHeader, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("exchange: request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.WarnContext(ctx, "failed to close response body", logger.Error(closeErr))
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return false, fmt.Errorf("exchange: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, fmt.Errorf("%w: %v", ErrLinkRejected, statusError(resp.StatusCode, respBody))
	case resp.StatusCode >= 400:
		return false, statusError(resp.StatusCode, respBody)
	}

	var out linkResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return false, fmt.Errorf("exchange: decode response: %w", err)
	}
	c.logger.DebugContext(ctx, "exchange link response",
		logger.Bool("linked", out.Linked),
		logger.String("account_id", out.AccountID))
	return out.Linked, nil
}

func statusError(code int, body []byte) *StatusError {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Error != "" {
			return &StatusError{StatusCode: code, Message: errResp.Error}
		}
		if errResp.Message != "" {
			return &StatusError{StatusCode: code, Message: errResp.Message}
		}
	}
	return &StatusError{StatusCode: code}
}
