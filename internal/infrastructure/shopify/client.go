package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/storesync/backend/internal/domain/integration"
	"github.com/storesync/backend/internal/infrastructure/telemetry"
)

// maxResponseSize is the maximum allowed response size from the platform (10MB)
const maxResponseSize = 10 * 1024 * 1024

// Client is a self-throttling GraphQL client. Every outbound call goes
// through Send; the retry and pacing sleeps happen synchronously because
// each sync job runs on its own background goroutine, never on a request
// thread.
type Client struct {
	config     *Config
	httpClient *http.Client
	metrics    *telemetry.SyncMetrics
	logger     *zap.Logger

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a client for one shop. Metrics may be nil.
func NewClient(config *Config, metrics *telemetry.SyncMetrics, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		metrics: metrics,
		logger:  logger,
		sleep:   sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Send posts one GraphQL document and returns the data payload.
//
// Post-response handling, in order:
//  1. HTTP 429/5xx and application-level throttle errors are retried with
//     exponential backoff, min(ceiling, base*2^attempt), up to MaxRetries.
//  2. On success, if the reported available cost budget dropped below
//     RequestBudgetMin, the client pauses until the budget restores,
//     max(floor, (min-available)/restoreRate), bounded by the ceiling.
//
// The hard-throttle counter increments only on the application-level
// signal; HTTP-level 429s are ordinary retries.
func (c *Client) Send(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("shopify: failed to encode request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		payload, retryable, err := c.doRequest(ctx, body)
		if err == nil {
			return payload, nil
		}
		if !retryable || attempt >= c.config.MaxRetries {
			return nil, err
		}

		backoff := c.backoff(attempt)
		c.logger.Warn("retrying storefront request",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if serr := c.sleep(ctx, backoff); serr != nil {
			return nil, serr
		}
	}
}

// doRequest performs one HTTP round trip. The second return value reports
// whether the failure is in the transient set.
func (c *Client) doRequest(ctx context.Context, body []byte) (json.RawMessage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("shopify: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.config.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", integration.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, false, fmt.Errorf("shopify: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, false, fmt.Errorf("%w: HTTP %d", integration.ErrPlatformAuthFailed, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("%w: HTTP 429", integration.ErrPlatformRateLimited)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: HTTP %d", integration.ErrPlatformUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("%w: HTTP %d", integration.ErrPlatformRequestFailed, resp.StatusCode)
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, false, fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}

	if len(envelope.Errors) > 0 {
		if envelope.throttled() {
			// Platform-declared back-pressure, not an HTTP 429.
			if c.metrics != nil {
				c.metrics.RecordHardThrottle(ctx)
			}
			return nil, true, fmt.Errorf("%w: %s", integration.ErrPlatformRateLimited, envelope.Errors[0].Message)
		}
		return nil, false, fmt.Errorf("%w: %s", integration.ErrPlatformRequestFailed, envelope.Errors[0].Message)
	}

	if err := c.pace(ctx, envelope.Extensions.Cost.ThrottleStatus); err != nil {
		return nil, false, err
	}

	return envelope.Data, false, nil
}

// pace pauses after a successful response when the reported cost budget is
// nearly exhausted, so the next request does not trip the throttle.
func (c *Client) pace(ctx context.Context, status *throttleStatus) error {
	if status == nil || status.RestoreRate <= 0 {
		return nil
	}
	if status.CurrentlyAvailable >= c.config.RequestBudgetMin {
		return nil
	}

	deficit := c.config.RequestBudgetMin - status.CurrentlyAvailable
	wait := time.Duration(deficit / status.RestoreRate * float64(time.Second))
	if wait < c.config.ThrottleFloor {
		wait = c.config.ThrottleFloor
	}
	if wait > c.config.ThrottleCeiling {
		wait = c.config.ThrottleCeiling
	}

	c.logger.Debug("pacing before next storefront request",
		zap.Float64("currently_available", status.CurrentlyAvailable),
		zap.Float64("restore_rate", status.RestoreRate),
		zap.Duration("wait", wait),
	)
	return c.sleep(ctx, wait)
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.config.RetryBase << uint(attempt)
	if d > c.config.ThrottleCeiling || d <= 0 {
		return c.config.ThrottleCeiling
	}
	return d
}
