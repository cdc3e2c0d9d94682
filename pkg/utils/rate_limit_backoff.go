package utils

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitBackoff decides whether a failed model request was rate limited
// and how long to wait before sending it again.
type RateLimitBackoff struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	BufferTime time.Duration
	outputFn   func(string)
}

// NewRateLimitBackoff creates a backoff with three retries starting at two seconds.
func NewRateLimitBackoff() *RateLimitBackoff {
	return &RateLimitBackoff{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		BufferTime: 2 * time.Second,
	}
}

// SetOutputFunc sets where wait notices are printed. nil silences them.
func (rlb *RateLimitBackoff) SetOutputFunc(fn func(string)) {
	rlb.outputFn = fn
}

func (rlb *RateLimitBackoff) print(msg string) {
	if rlb.outputFn != nil {
		rlb.outputFn(msg)
	}
}

func containsRateLimitPhrases(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "rate limit") ||
		strings.Contains(s, "ratelimit") ||
		strings.Contains(s, "requests per minute") ||
		strings.Contains(s, "rate exceeded") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "insufficient_quota") ||
		(strings.Contains(s, "quota") && strings.Contains(s, "exceeded")) ||
		strings.Contains(s, "current quota")
}

// IsRateLimitError checks if an error or HTTP response indicates a rate limit
func (rlb *RateLimitBackoff) IsRateLimitError(err error, resp *http.Response) bool {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "429") {
		return true
	}
	return containsRateLimitPhrases(errStr)
}

// CalculateBackoffDelay prefers the provider's reset headers and falls back
// to exponential backoff.
func (rlb *RateLimitBackoff) CalculateBackoffDelay(resp *http.Response, attempt int) time.Duration {
	if resp != nil {
		if delay := rlb.parseRateLimitHeaders(resp); delay > 0 {
			return delay
		}
	}
	return rlb.exponentialBackoff(attempt)
}

func (rlb *RateLimitBackoff) parseRateLimitHeaders(resp *http.Response) time.Duration {
	// OpenRouter reports the reset instant in epoch milliseconds.
	if resetHeader := resp.Header.Get("X-RateLimit-Reset"); resetHeader != "" {
		if resetTime, err := strconv.ParseInt(resetHeader, 10, 64); err == nil {
			resetAt := time.UnixMilli(resetTime)
			if waitTime := time.Until(resetAt); waitTime > 0 {
				return rlb.capDelay(waitTime + rlb.BufferTime)
			}
		}
	}
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			return rlb.capDelay(time.Duration(seconds)*time.Second + rlb.BufferTime)
		}
	}
	return 0
}

func (rlb *RateLimitBackoff) exponentialBackoff(attempt int) time.Duration {
	delay := rlb.BaseDelay * time.Duration(math.Pow(2, float64(attempt)))
	return rlb.capDelay(delay)
}

func (rlb *RateLimitBackoff) capDelay(delay time.Duration) time.Duration {
	if delay > rlb.MaxDelay {
		return rlb.MaxDelay
	}
	if delay < 0 {
		return rlb.BaseDelay
	}
	return delay
}

// ShouldRetry determines if we should retry based on attempt count
func (rlb *RateLimitBackoff) ShouldRetry(attempt int) bool {
	return attempt < rlb.MaxRetries
}

// LogRateLimit records a rate limit hit together with the provider's quota headers.
func (rlb *RateLimitBackoff) LogRateLimit(provider, model string, err error, resp *http.Response) {
	attrs := []any{"provider", provider, "model", model}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	if resp != nil {
		attrs = append(attrs, "status_code", resp.StatusCode)
		for _, h := range []string{"X-RateLimit-Remaining", "X-RateLimit-Limit", "X-RateLimit-Reset"} {
			if v := resp.Header.Get(h); v != "" {
				attrs = append(attrs, strings.ToLower(h), v)
			}
		}
	}
	GetLogger(true).Slog().Warn("rate limit hit", attrs...)
}

// Wait blocks for duration or until ctx is done.
func (rlb *RateLimitBackoff) Wait(ctx context.Context, duration time.Duration, provider string) error {
	if duration <= 0 {
		return nil
	}
	rlb.print(fmt.Sprintf("Rate limited by %s. Waiting %v before retry...\n", provider, duration.Round(time.Second)))
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
