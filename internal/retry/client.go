// Package retry provides retry logic with exponential backoff for broker
// operations, following the teacher repo's retry client shape.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"
)

// Config contains retry configuration parameters.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultConfig provides sensible defaults for retry operations.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Client wraps an arbitrary operation with retry logic.
type Client struct {
	logger *log.Logger
	config Config
}

// NewClient creates a new retry client with optional config overrides.
func NewClient(logger *log.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}

	if logger == nil {
		logger = log.Default()
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig.MaxBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	return &Client{logger: logger, config: cfg}
}

// Do runs fn, retrying on transient errors with exponential backoff until
// MaxRetries is exhausted or ctx/the overall timeout expires. name is used
// only for logging.
func (c *Client) Do(ctx context.Context, name string, fn func(context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		select {
		case <-opCtx.Done():
			return fmt.Errorf("%s: timed out after %v: %w", name, c.config.Timeout, opCtx.Err())
		default:
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%s: canceled: %w", name, ctx.Err())
		}

		err := fn(opCtx)
		if err == nil {
			return nil
		}

		lastErr = err
		c.logger.Printf("%s: attempt %d/%d failed: %v", name, attempt+1, c.config.MaxRetries+1, err)

		if c.isTransientError(err) && attempt < c.config.MaxRetries {
			c.logger.Printf("%s: transient error, retrying in %v", name, backoff)
			select {
			case <-time.After(backoff):
				backoff = c.calculateNextBackoff(backoff)
			case <-opCtx.Done():
				return fmt.Errorf("%s: timed out during backoff: %w", name, opCtx.Err())
			case <-ctx.Done():
				return fmt.Errorf("%s: canceled during backoff: %w", name, ctx.Err())
			}
		} else {
			break
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, c.config.MaxRetries+1, lastErr)
}

func (c *Client) calculateNextBackoff(current time.Duration) time.Duration {
	backoff := time.Duration(float64(current) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			c.logger.Printf("failed to generate jitter: %v", err)
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

// ErrOpenCircuit lets callers mark a classified circuit-breaker error as
// transient without depending on the broker package (avoiding an import
// cycle), per the error taxonomy in §7.
var ErrOpenCircuit = errors.New("retry: circuit open")

func (c *Client) isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOpenCircuit) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"i/o timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"temporarily unavailable",
		"server error",
		"rate limit",
		"429",
		"502",
		"503",
		"504",
		"network",
		"dns",
		"tcp",
		"no such host",
		"deadline exceeded",
		"tls handshake",
		"broken pipe",
		"eof",
		"unavailable",
		"open state",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
