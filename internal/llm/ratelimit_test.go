package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Epistemic-Technology/production-breakdown/internal/logger"
	"github.com/Epistemic-Technology/production-breakdown/models"
)

func testLimiter() *RateLimiter {
	rl := NewRateLimiter(1e6, 1e6, 5)
	rl.baseDelay = time.Millisecond
	rl.maxDelay = 5 * time.Millisecond
	return rl
}

func TestRateLimitedCall_Success(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNoOpLogger()

	result, err := RateLimitedCall(ctx, testLimiter(), 100, log, func(ctx context.Context) (string, error) {
		return "success", nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result != "success" {
		t.Errorf("Expected 'success', got: %s", result)
	}
}

func TestRateLimitedCall_NonRateLimitError(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNoOpLogger()

	testErr := errors.New("some other error")
	calls := 0
	_, err := RateLimitedCall(ctx, testLimiter(), 100, log, func(ctx context.Context) (string, error) {
		calls++
		return "", testErr
	})

	if err != testErr {
		t.Errorf("Expected original error, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got: %d", calls)
	}
}

func TestRateLimitedCall_RateLimitRetry(t *testing.T) {
	ctx := context.Background()
	log := logger.NewNoOpLogger()

	callCount := 0
	result, err := RateLimitedCall(ctx, testLimiter(), 100, log, func(ctx context.Context) (string, error) {
		callCount++
		if callCount < 3 {
			return "", errors.New("429 Too Many Requests")
		}
		return "success after retry", nil
	})

	if err != nil {
		t.Fatalf("Expected no error after retry, got: %v", err)
	}
	if result != "success after retry" {
		t.Errorf("Expected 'success after retry', got: %s", result)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got: %d", callCount)
	}
}

func TestRateLimitedCall_RetriesExhausted(t *testing.T) {
	rl := testLimiter()
	rl.maxRetries = 2
	calls := 0
	_, err := RateLimitedCall(context.Background(), rl, 100, logger.NewNoOpLogger(), func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("overloaded")
	})
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got: %d", calls)
	}
}

func TestRateLimitedCall_EstimateAboveBurst(t *testing.T) {
	rl := NewRateLimiter(1e6, 10, 0)
	_, err := RateLimitedCall(context.Background(), rl, 5000, logger.NewNoOpLogger(), func(ctx context.Context) (int, error) {
		return 1, nil
	})
	if err != nil {
		t.Fatalf("Expected estimate to be clamped to burst, got: %v", err)
	}
}

func TestRateLimitedCall_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RateLimitedCall(ctx, testLimiter(), 100, logger.NewNoOpLogger(), func(ctx context.Context) (string, error) {
		return "should not reach here", nil
	})
	if err == nil {
		t.Fatal("Expected context cancellation error, got nil")
	}
}

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"429 error", errors.New("HTTP 429: Too Many Requests"), true},
		{"rate limit error", errors.New("rate limit exceeded"), true},
		{"rate_limit_exceeded", errors.New("error: rate_limit_exceeded"), true},
		{"overloaded", errors.New("529 overloaded_error: overloaded"), true},
		{"other error", errors.New("some other error"), false},
		{"500 error", errors.New("HTTP 500: Internal Server Error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRateLimitError(tt.err); got != tt.expected {
				t.Errorf("isRateLimitError(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestParallelProcess(t *testing.T) {
	ctx := context.Background()
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}

	var inFlight, peak int32
	results, err := ParallelProcess(ctx, items, 3, func(ctx context.Context, idx int, item int) (int, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		// later items finish first
		time.Sleep(time.Duration(len(items)-idx) * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return item * 2, nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	for i, r := range results {
		if r != items[i]*2 {
			t.Errorf("Result %d: expected %d, got %d", i, items[i]*2, r)
		}
	}
	if peak > 3 {
		t.Errorf("Expected at most 3 concurrent workers, saw %d", peak)
	}
}

func TestParallelProcess_Error(t *testing.T) {
	testErr := errors.New("processing error")
	_, err := ParallelProcess(context.Background(), []int{1, 2, 3, 4, 5}, 2, func(ctx context.Context, idx int, item int) (int, error) {
		if item == 3 {
			return 0, testErr
		}
		return item, nil
	})
	if !errors.Is(err, testErr) {
		t.Errorf("Expected processing error, got: %v", err)
	}
}

func TestParallelProcess_EmptyItems(t *testing.T) {
	results, err := ParallelProcess(context.Background(), []int{}, 2, func(ctx context.Context, idx int, item int) (int, error) {
		return item, nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected empty results, got: %d items", len(results))
	}
}

func TestEstimateTokens(t *testing.T) {
	req := Request{
		System: "12345678",
		Messages: []models.ConversationTurn{{
			Role:    models.RoleUser,
			Content: []models.ContentBlock{models.TextBlock("abcdefgh"), models.ImageBlock("image/png", "AAAA")},
		}},
		MaxOutputTokens: 100,
	}
	if got, want := EstimateTokens(req), 16/4+estimatedTokensPerImage+100; got != want {
		t.Errorf("EstimateTokens = %d, want %d", got, want)
	}
}
