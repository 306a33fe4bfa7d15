// Package microlink is a thin client for the microlink.io link unfurling API.
package microlink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkpreview/internal/metrics"
)

// DefaultBaseURL is the free microlink endpoint.
const DefaultBaseURL = "https://api.microlink.io"

// StatusSuccess is the only status that carries usable metadata.
const StatusSuccess = "success"

const maxResponseBytes = 1 << 20

// Config controls the client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Response is the decoded API envelope.
type Response struct {
	Status  string  `json:"status"`
	Code    string  `json:"code,omitempty"`
	Message string  `json:"message,omitempty"`
	Data    Payload `json:"data"`
}

// Client performs one unfurl request per Fetch call. It never retries or caches.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Fetch asks microlink to unfurl target. Transport failures and undecodable
// bodies are returned as errors; any decoded envelope is returned as-is,
// whatever its status.
func (c *Client) Fetch(ctx context.Context, target string) (Response, error) {
	endpoint, err := c.endpoint(target)
	if err != nil {
		return Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build microlink request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveMicrolinkFetch("transport_error")
		return Response{}, fmt.Errorf("microlink request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close microlink body", zap.Error(cerr))
		}
	}()

	var out Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		metrics.ObserveMicrolinkFetch("decode_error")
		return Response{}, fmt.Errorf("decode microlink response (HTTP %d): %w", resp.StatusCode, err)
	}
	metrics.ObserveMicrolinkFetch(out.Status)
	c.logger.Debug("microlink fetch complete",
		zap.String("url", target),
		zap.Int("http_status", resp.StatusCode),
		zap.String("status", out.Status),
	)
	return out, nil
}

func (c *Client) endpoint(target string) (string, error) {
	u, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("parse microlink base url: %w", err)
	}
	q := u.Query()
	q.Set("url", target)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
