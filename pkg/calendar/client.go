package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"calreach/pkg/calendar/types"
	"calreach/pkg/circuitbreaker"
	"calreach/pkg/constants"

	"github.com/sirupsen/logrus"
)

// CalendarClient talks to the provider's REST API. All calls are bounded by
// the configured timeout and guarded by a circuit breaker so a degraded
// provider cannot pin the dispatch loop.
type CalendarClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *logrus.Logger
}

func NewClient(cfg types.ClientConfig) types.Client {
	return NewClientWithLogger(cfg, logrus.New())
}

func NewClientWithLogger(cfg types.ClientConfig, logger *logrus.Logger) types.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeoutSec * time.Second
	}

	return &CalendarClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		breaker: circuitbreaker.NewWithLogger(
			"calendar-provider",
			constants.DefaultBreakerMaxFailures,
			constants.DefaultBreakerResetSec*time.Second,
			logger,
		),
		logger: logger,
	}
}

func (c *CalendarClient) SendInvite(ctx context.Context, accountID string, event types.EventDetails) (*types.SendInviteResponse, error) {
	endpoint := fmt.Sprintf("/v1/accounts/%s/events", accountID)

	var resp types.SendInviteResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, endpoint, event, &resp)
	})
	if err != nil {
		return nil, err
	}

	if resp.EventID == "" {
		return nil, &types.APIError{
			StatusCode: http.StatusOK,
			Endpoint:   endpoint,
			Message:    "provider returned empty event id",
		}
	}
	return &resp, nil
}

func (c *CalendarClient) GetEventResponseStatus(ctx context.Context, accountID, eventID string) (*types.ResponseStatusResult, error) {
	endpoint := fmt.Sprintf("/v1/accounts/%s/events/%s/response", accountID, eventID)

	var resp types.ResponseStatusResult
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, endpoint, nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *CalendarClient) CancelEvent(ctx context.Context, accountID, eventID string) error {
	endpoint := fmt.Sprintf("/v1/accounts/%s/events/%s", accountID, eventID)

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodDelete, endpoint, nil, nil)
	})
}

func (c *CalendarClient) doJSON(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.WithError(closeErr).Warn("Failed to close provider response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &types.APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Message:    string(message),
		}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}
