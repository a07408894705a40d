// Package jsonplaceholder fetches customer profiles from a JSONPlaceholder
// style users API.
package jsonplaceholder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/sales-data-etl/internal/domain"
	"github.com/couchcryptid/sales-data-etl/internal/observability"
)

// DefaultBaseURL is the public JSONPlaceholder API.
const DefaultBaseURL = "https://jsonplaceholder.typicode.com"

// maxBody caps response bodies read into memory.
const maxBody = 8 << 20

// Client implements domain.CustomerSource over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a customer API client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: metrics,
		logger:  logger,
	}
}

// FetchCustomer fetches one customer. A 404 returns an error wrapping
// domain.ErrNotFound.
func (c *Client) FetchCustomer(ctx context.Context, id int64) (domain.CustomerPayload, error) {
	body, err := c.get(ctx, "/users/"+strconv.FormatInt(id, 10), "customer")
	if err != nil {
		return domain.CustomerPayload{}, fmt.Errorf("customer %d: %w", id, err)
	}
	return domain.DecodeCustomer(body)
}

// FetchAll fetches every customer in one request and indexes them by id.
func (c *Client) FetchAll(ctx context.Context) (domain.CustomerDirectory, error) {
	body, err := c.get(ctx, "/users", "customer_bulk")
	if err != nil {
		return nil, fmt.Errorf("customer list: %w", err)
	}
	payloads, skipped, err := domain.DecodeCustomers(body)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		c.logger.Warn("skipped undecodable customers in bulk response", "skipped", skipped)
	}
	c.logger.Info("customer directory loaded", "customers", len(payloads))
	return domain.NewCustomerDirectory(payloads), nil
}

func (c *Client) get(ctx context.Context, path, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.LookupDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.LookupRequests.WithLabelValues(source, "error").Inc()
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.metrics.LookupRequests.WithLabelValues(source, "not_found").Inc()
		return nil, domain.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		c.metrics.LookupRequests.WithLabelValues(source, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("customer API error: status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		c.metrics.LookupRequests.WithLabelValues(source, "error").Inc()
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.metrics.LookupRequests.WithLabelValues(source, "success").Inc()
	return body, nil
}
