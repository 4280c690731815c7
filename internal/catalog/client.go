package catalog

import (
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
)

// ErrUpstream wraps any failure of the catalogue API.
var ErrUpstream = errors.New("catalog: upstream unavailable")

const maxBodyBytes = 32 << 20

type Config struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client
}

// Client reads the public cargo and claims catalogue. Items are passed
// through untouched.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if _, err := url.ParseRequestURI(base); err != nil || base == "" {
		return nil, fmt.Errorf("catalog: invalid base url %q", cfg.BaseURL)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: base, http: httpClient}, nil
}

// Cargo returns the full cargo list.
func (c *Client) Cargo(ctx context.Context) ([]json.RawMessage, error) {
	var body struct {
		Cargos []json.RawMessage `json:"cargos"`
	}
	if err := c.get(ctx, "/cargo", nil, &body); err != nil {
		return nil, err
	}
	if body.Cargos == nil {
		return nil, fmt.Errorf("%w: cargo response has no cargos array", ErrUpstream)
	}
	return body.Cargos, nil
}

// ClaimsPage is one page of claims sorted by name. Count is the total
// across all pages.
type ClaimsPage struct {
	Count  int               `json:"count"`
	Claims []json.RawMessage `json:"claims"`
}

func (c *Client) Claims(ctx context.Context, page, limit int) (ClaimsPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	query.Set("sort", "name")
	query.Set("order", "asc")

	var body ClaimsPage
	if err := c.get(ctx, "/claims", query, &body); err != nil {
		return ClaimsPage{}, err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %w", ErrUpstream, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrUpstream, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: GET %s: HTTP %d", ErrUpstream, path, resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrUpstream, path, err)
	}
	return nil
}
