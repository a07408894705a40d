// Package openweather fetches current weather observations from the
// OpenWeatherMap API.
package openweather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/sales-data-etl/internal/domain"
	"github.com/couchcryptid/sales-data-etl/internal/observability"
)

// DefaultBaseURL is the OpenWeatherMap 2.5 API root.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

// Client implements domain.WeatherSource using the current weather endpoint.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an OpenWeatherMap client.
func NewClient(baseURL, apiKey string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: metrics,
		logger:  logger,
	}
}

// FetchWeather returns the current weather at geo. Coordinates are sent
// exactly as the customer source wrote them.
func (c *Client) FetchWeather(ctx context.Context, geo domain.GeoPoint) (domain.WeatherPayload, error) {
	params := url.Values{
		"lat":   {string(geo.Lat)},
		"lon":   {string(geo.Lng)},
		"appid": {c.apiKey},
	}
	return c.doRequest(ctx, c.baseURL+"/weather?"+params.Encode())
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.WeatherPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.WeatherPayload{}, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.LookupDuration.WithLabelValues("weather").Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.LookupRequests.WithLabelValues("weather", "error").Inc()
		return domain.WeatherPayload{}, fmt.Errorf("weather request: %w", redact(err, c.apiKey))
	}
	defer resp.Body.Close()
	c.logger.Debug("weather lookup", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode == http.StatusNotFound {
		c.metrics.LookupRequests.WithLabelValues("weather", "not_found").Inc()
		return domain.WeatherPayload{}, domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		c.metrics.LookupRequests.WithLabelValues("weather", "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.WeatherPayload{}, fmt.Errorf("openweather API error: status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.metrics.LookupRequests.WithLabelValues("weather", "error").Inc()
		return domain.WeatherPayload{}, fmt.Errorf("read response: %w", err)
	}
	payload, err := domain.DecodeWeather(body)
	if err != nil {
		c.metrics.LookupRequests.WithLabelValues("weather", "error").Inc()
		return domain.WeatherPayload{}, err
	}
	c.metrics.LookupRequests.WithLabelValues("weather", "success").Inc()
	return payload, nil
}

// redact keeps the API key out of transport errors, which embed the URL.
func redact(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), key, "REDACTED"))
}
