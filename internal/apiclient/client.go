// Package apiclient talks to the linkpreview HTTP API on behalf of the
// terminal form.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/linkpreview/internal/linkpreview"
	"github.com/JakeFAU/linkpreview/internal/links"
)

// Config points the client at a server.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

// Client wraps the /v1/links endpoints.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New builds a Client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, errors.New("apiclient: base URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("apiclient: parse base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// CreateLink saves a new link.
func (c *Client) CreateLink(ctx context.Context, in links.Input) (linkpreview.Link, error) {
	var out linkpreview.Link
	err := c.do(ctx, http.MethodPost, "/v1/links", in, &out)
	return out, err
}

// UpdateLink replaces a link's URL and metadata.
func (c *Client) UpdateLink(ctx context.Context, id string, in links.Input) (linkpreview.Link, error) {
	var out linkpreview.Link
	err := c.do(ctx, http.MethodPut, "/v1/links/"+url.PathEscape(id), in, &out)
	return out, err
}

// GetLink fetches one link.
func (c *Client) GetLink(ctx context.Context, id string) (linkpreview.Link, error) {
	var out linkpreview.Link
	err := c.do(ctx, http.MethodGet, "/v1/links/"+url.PathEscape(id), nil, &out)
	return out, err
}

// ListLinks returns the newest links first.
func (c *Client) ListLinks(ctx context.Context, limit int) ([]linkpreview.Link, error) {
	path := "/v1/links"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Links []linkpreview.Link `json:"links"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Links, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload) == nil {
			apiErr.Message = payload.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
