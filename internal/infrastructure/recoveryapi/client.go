package recoveryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/campaign"
	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/journey"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/security"
)

// APIError is returned when the remote service responds with a non-2xx status.
type APIError struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("recovery api %s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
}

// HTTPClient talks to the remote recovery service over JSON/HTTP. Timeouts
// live on the underlying http.Client.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     *security.TokenSource
	logger     *logging.ChanneledLogger
}

// Option configures the client.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// WithTokenSource attaches bearer tokens to every request.
func WithTokenSource(ts *security.TokenSource) Option {
	return func(c *HTTPClient) { c.tokens = ts }
}

// WithLogger attaches the channeled logger.
func WithLogger(logger *logging.ChanneledLogger) Option {
	return func(c *HTTPClient) { c.logger = logger }
}

// NewHTTPClient creates a client for baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = logging.NewDiscardLogger()
	}
	return c
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	start := time.Now()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.API().Warn("Recovery API request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("recovery api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.API().Debug("Recovery API request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Method: method, Path: path, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); err == nil {
			if payload.Message != "" {
				apiErr.Message = payload.Message
			} else if payload.Error != "" {
				apiErr.Message = payload.Error
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// GetCampaign calls GET /api/v1/abandoned-carts/campaign.
func (c *HTTPClient) GetCampaign(ctx context.Context) (campaign.Policy, error) {
	var out campaign.Policy
	err := c.do(ctx, http.MethodGet, "/api/v1/abandoned-carts/campaign", nil, nil, &out)
	return out, err
}

// UpdateCampaign calls PUT /api/v1/abandoned-carts/campaign. The service may
// clamp or extend the window further.
func (c *HTTPClient) UpdateCampaign(ctx context.Context, p campaign.Policy) (campaign.Policy, error) {
	var out campaign.Policy
	err := c.do(ctx, http.MethodPut, "/api/v1/abandoned-carts/campaign", nil, p, &out)
	return out, err
}

// GetInsights calls GET /api/v1/abandoned-carts/insights.
func (c *HTTPClient) GetInsights(ctx context.Context, rangeDays int) (Insights, error) {
	var out Insights
	q := url.Values{"rangeDays": {strconv.Itoa(rangeDays)}}
	err := c.do(ctx, http.MethodGet, "/api/v1/abandoned-carts/insights", q, nil, &out)
	if err == nil && out.RangeDays == 0 {
		out.RangeDays = rangeDays
	}
	return out, err
}

// GetOrderMetrics calls GET /api/v1/orders/metrics.
func (c *HTTPClient) GetOrderMetrics(ctx context.Context, query OrderMetricsQuery) (OrderMetrics, error) {
	var out OrderMetrics
	q := url.Values{"rangeDays": {strconv.Itoa(query.RangeDays)}}
	if query.Status != "" {
		q.Set("status", query.Status)
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/orders/metrics", q, nil, &out)
	if err == nil && out.RangeDays == 0 {
		out.RangeDays = query.RangeDays
		out.Status = query.Status
	}
	return out, err
}

// GetJourneys calls GET /api/v1/abandoned-carts/journeys.
func (c *HTTPClient) GetJourneys(ctx context.Context, query journey.Query) (JourneyPage, error) {
	q := url.Values{}
	if query.Status != "" {
		q.Set("status", query.Status)
	}
	if query.SortBy != "" {
		q.Set("sortBy", query.SortBy)
	}
	if query.Search != "" {
		q.Set("search", query.Search)
	}
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Offset > 0 {
		q.Set("offset", strconv.Itoa(query.Offset))
	}

	var out JourneyPage
	err := c.do(ctx, http.MethodGet, "/api/v1/abandoned-carts/journeys", q, nil, &out)
	return out, err
}

// GetJourneyTimeline calls GET /api/v1/abandoned-carts/journeys/{id}/timeline.
func (c *HTTPClient) GetJourneyTimeline(ctx context.Context, id string) (journey.Timeline, error) {
	var out journey.Timeline
	path := "/api/v1/abandoned-carts/journeys/" + url.PathEscape(id) + "/timeline"
	err := c.do(ctx, http.MethodGet, path, nil, nil, &out)
	return out, err
}

// RunRecoveryNow calls POST /api/v1/abandoned-carts/run-now.
func (c *HTTPClient) RunRecoveryNow(ctx context.Context, batchSize int) (RunResult, error) {
	var out RunResult
	body := map[string]int{"batchSize": batchSize}
	err := c.do(ctx, http.MethodPost, "/api/v1/abandoned-carts/run-now", nil, body, &out)
	return out, err
}
