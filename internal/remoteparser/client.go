// Package remoteparser delegates order text parsing to an HTTP collaborator.
package remoteparser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"mailorder/internal"
	"mailorder/internal/config"
)

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 512

type Client struct {
	url         string
	maxAttempts int
	httpClient  *http.Client
	limiter     *RateLimiter
	logger      *slog.Logger
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		url:         cfg.ParserURL,
		maxAttempts: max(cfg.ParserMaxAttempts, 1),
		httpClient:  &http.Client{Timeout: time.Duration(cfg.ParserTimeoutMs) * time.Millisecond},
		limiter:     NewRateLimiter(cfg.ParserRateLimitRPS),
		logger:      slog.Default(),
	}
}

// Parse posts the catalog names and body text and decodes the answer.
// Transport failures and retryable statuses are retried with backoff; any
// other non-success status, or exhausting the attempts, fails with
// internal.ErrExternalService.
func (c *Client) Parse(ctx context.Context, products []string, text string) (internal.ParseResult, error) {
	if products == nil {
		products = []string{}
	}
	payload, err := json.Marshal(Request{Products: products, Text: text})
	if err != nil {
		return internal.ParseResult{}, err
	}

	body, err := c.post(ctx, payload)
	if err != nil {
		return internal.ParseResult{}, err
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return internal.ParseResult{}, fmt.Errorf("%w: decode parser response: %w", internal.ErrExternalService, err)
	}
	return resp.ParseResult(), nil
}

func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.WaitTurn(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", internal.ErrExternalService, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if err := c.backoff(ctx, attempt, err); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if err := c.backoff(ctx, attempt, readErr); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := fmt.Errorf("parser status=%d body=%s", resp.StatusCode, truncate(body, maxErrorBody))
			if !isRetryableStatus(resp.StatusCode) {
				return nil, fmt.Errorf("%w: %w", internal.ErrExternalService, statusErr)
			}
			lastErr = statusErr
			if err := c.backoff(ctx, attempt, statusErr); err != nil {
				return nil, err
			}
			continue
		}
		return body, nil
	}

	if lastErr == nil {
		lastErr = errors.New("parser request failed")
	}
	return nil, fmt.Errorf("%w: after %d attempts: %w", internal.ErrExternalService, c.maxAttempts, lastErr)
}

// backoff sleeps before the next attempt. It is a no-op after the last one.
func (c *Client) backoff(ctx context.Context, attempt int, cause error) error {
	if attempt >= c.maxAttempts {
		return nil
	}
	wait := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
	c.logger.Warn("Parser request failed, retrying", "attempt", attempt, "backoff", wait, "error", cause)
	return sleepCtx(ctx, wait)
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
