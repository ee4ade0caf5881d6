package fetch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/grafana/dskit/backoff"

	"reportql/internal/domain"
)

// Failure tags carried by TransientError.
const (
	TagConnection = "connection"
	TagTimeout    = "timeout"
)

// retryableCodes is the fixed taxonomy of service codes worth retrying.
var retryableCodes = map[int]bool{429: true, 502: true, 503: true, 504: true}

// Retryable reports whether a fetch failure is transient per the taxonomy:
// connection failures, timeouts, and HTTP 429/502/503/504. Everything else
// is terminal immediately.
func Retryable(err error) bool {
	var transient *domain.TransientError
	if !errors.As(err, &transient) {
		return false
	}
	switch transient.Tag {
	case TagConnection, TagTimeout:
		return true
	}
	return retryableCodes[transient.Code]
}

// DefaultBackoff is the outer orchestration retry policy: up to 3 retries
// with exponential backoff from 2s capped at 60s.
var DefaultBackoff = backoff.Config{
	MinBackoff: 2 * time.Second,
	MaxBackoff: 60 * time.Second,
	MaxRetries: 3,
}

// RetryingClient wraps a Client with the orchestration layer's retry
// policy. Streams are not restartable, so Query retries only the initial
// call; QueryOnce retries the whole materialized fetch.
type RetryingClient struct {
	inner  Client
	cfg    backoff.Config
	logger *slog.Logger
}

// NewRetryingClient wraps inner with the default policy.
func NewRetryingClient(inner Client, logger *slog.Logger) *RetryingClient {
	return &RetryingClient{inner: inner, cfg: DefaultBackoff, logger: logger}
}

// WithBackoff overrides the backoff configuration, chiefly for tests.
func (c *RetryingClient) WithBackoff(cfg backoff.Config) *RetryingClient {
	c.cfg = cfg
	return c
}

// Query opens the record stream, retrying transient failures of the open.
func (c *RetryingClient) Query(ctx context.Context, queryText, accountID string) (RecordStream, error) {
	var stream RecordStream
	err := c.retry(ctx, accountID, func() error {
		var openErr error
		stream, openErr = c.inner.Query(ctx, queryText, accountID)
		return openErr
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// QueryOnce materializes the result, retrying transient failures.
func (c *RetryingClient) QueryOnce(ctx context.Context, queryText, accountID string) ([]domain.Record, error) {
	var records []domain.Record
	err := c.retry(ctx, accountID, func() error {
		var fetchErr error
		records, fetchErr = c.inner.QueryOnce(ctx, queryText, accountID)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (c *RetryingClient) retry(ctx context.Context, accountID string, fn func() error) error {
	b := backoff.New(ctx, c.cfg)
	for {
		err := fn()
		if err == nil {
			return nil
		}
		// MaxRetries bounds the retries, not the initial attempt.
		if !Retryable(err) || !b.Ongoing() {
			return err
		}
		if c.logger != nil {
			c.logger.Warn("transient fetch failure, backing off",
				"account_id", accountID,
				"retry", b.NumRetries()+1,
				"error", err)
		}
		b.Wait()
	}
}
