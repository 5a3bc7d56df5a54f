package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
)

const (
	defaultMaxWorkers = 4

	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 32 * time.Second

	// Anthropic reports overload with a non-standard status
	statusOverloaded = 529
)

// RateLimiter is a token bucket shared by every concurrent call against one
// provider account.
type RateLimiter struct {
	limiter    *rate.Limiter
	burst      int
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewRateLimiter(tokensPerSecond float64, burst, maxRetries int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RateLimiter{
		limiter:    rate.NewLimiter(rate.Limit(tokensPerSecond), burst),
		burst:      burst,
		maxRetries: maxRetries,
		baseDelay:  baseRetryDelay,
		maxDelay:   maxRetryDelay,
	}
}

// RateLimitedCall waits for rate limiter approval before calling fn and
// retries rate-limit errors with exponential backoff.
func RateLimitedCall[T any](ctx context.Context, rl *RateLimiter, estimatedTokens int, log logger.Logger, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	// WaitN fails outright when n exceeds the burst size
	if estimatedTokens > rl.burst {
		estimatedTokens = rl.burst
	}
	if estimatedTokens < 1 {
		estimatedTokens = 1
	}
	if err := rl.limiter.WaitN(ctx, estimatedTokens); err != nil {
		return zero, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= rl.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(rl.baseDelay) * math.Pow(2, float64(attempt-1)))
			if delay > rl.maxDelay {
				delay = rl.maxDelay
			}

			log.Info("Retry attempt %d/%d after %v delay", attempt, rl.maxRetries, delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				log.Info("Retry succeeded on attempt %d", attempt)
			}
			return result, nil
		}

		lastErr = err
		if !isRateLimitError(err) {
			return zero, err
		}

		log.Warn("Rate limit error on attempt %d/%d: %v", attempt+1, rl.maxRetries+1, err)
	}

	return zero, fmt.Errorf("max retries (%d) exceeded, last error: %w", rl.maxRetries, lastErr)
}

// isRateLimitError reports whether a provider rejected the call for load
// reasons rather than because of the request itself.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode == http.StatusTooManyRequests || anthropicErr.StatusCode == statusOverloaded
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode == http.StatusTooManyRequests
	}

	errStr := err.Error()
	for _, marker := range []string{"429", "rate limit", "rate_limit_exceeded", "Too Many Requests", "overloaded"} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// ParallelProcess runs processFn over items with at most maxWorkers in flight.
// Results keep the order of items. The first error cancels the remaining work.
func ParallelProcess[T any, R any](
	ctx context.Context,
	items []T,
	maxWorkers int,
	processFn func(context.Context, int, T) (R, error),
) ([]R, error) {
	if len(items) == 0 {
		return []R{}, nil
	}
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}

	results := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			val, err := processFn(gctx, i, item)
			if err != nil {
				return err
			}
			results[i] = val
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
