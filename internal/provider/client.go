package provider

// #region imports
import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/bibo/internal/metrics"
)

// #endregion

// #region constants

const (
	defaultRetries   = 3 // 3 retries = 4 total attempts
	defaultBaseDelay = time.Second
)

// #endregion

// #region client-struct

// Client wraps a Backend with retry and exponential backoff.
// It holds no per-call state, so one Client may serve concurrent pipelines.
type Client struct {
	backend   Backend
	retries   int
	baseDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithRetries sets how many times a failed attempt is retried.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithBaseDelay sets the delay before the first retry. Each later retry doubles it.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.baseDelay = d
		}
	}
}

// WithLogger attaches a logger for retry diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics reports attempts and exhaustion to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient wraps backend with the default policy: 3 retries, 1s doubling.
func NewClient(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend:   backend,
		retries:   defaultRetries,
		baseDelay: defaultBaseDelay,
		sleep:     sleepContext,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backend returns the wrapped backend's name.
func (c *Client) Backend() string {
	return c.backend.Name()
}

// #endregion

// #region generate

// GenerateText runs req against the backend, retrying failed or empty
// attempts. After the last retry fails it returns an *ExhaustedError.
// Cancellation of ctx stops the loop at once and returns ctx.Err().
func (c *Client) GenerateText(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	name := c.backend.Name()
	delay := c.baseDelay
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, delay); err != nil {
				return "", err
			}
			delay *= 2
		}

		text, err := c.backend.Generate(ctx, req)
		if err == nil && text == "" {
			c.metrics.ProviderAttempt(name, string(req.Tier), "empty")
			err = errEmptyResponse
		} else if err != nil {
			c.metrics.ProviderAttempt(name, string(req.Tier), "error")
		}
		if err == nil {
			c.metrics.ProviderAttempt(name, string(req.Tier), "ok")
			return text, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		lastErr = err
		c.logger.Warn("generation attempt failed",
			zap.String("backend", name),
			zap.String("tier", string(req.Tier)),
			zap.Int("attempt", attempt+1),
			zap.Int("retries_left", c.retries-attempt),
			zap.Error(err))
	}

	c.metrics.ProviderExhausted(name)
	c.logger.Error("generation exhausted retries",
		zap.String("backend", name),
		zap.Int("attempts", c.retries+1),
		zap.Error(lastErr))
	return "", &ExhaustedError{Backend: name, Attempts: c.retries + 1, Err: lastErr}
}

// #endregion

// #region helpers

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// #endregion
