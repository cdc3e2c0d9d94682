package utils

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimitError(t *testing.T) {
	rlb := NewRateLimitBackoff()
	cases := []struct {
		msg  string
		want bool
	}{
		{"You exceeded your current quota, please check your plan and billing details.", true},
		{"insufficient_quota", true},
		{"OpenRouter API error (status 429): Too many requests", true},
		{"HTTP 429", true},
		{"rate limit reached for requests", true},
		{"upstream error 502", false},
		{"connection refused", false},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			assert.Equal(t, tc.want, rlb.IsRateLimitError(errors.New(tc.msg), nil))
		})
	}

	assert.True(t, rlb.IsRateLimitError(nil, &http.Response{StatusCode: 429}))
	assert.False(t, rlb.IsRateLimitError(nil, &http.Response{StatusCode: 500}))
	assert.False(t, rlb.IsRateLimitError(nil, nil))
}

func TestCalculateBackoffDelay(t *testing.T) {
	rlb := NewRateLimitBackoff()

	assert.Equal(t, 2*time.Second, rlb.CalculateBackoffDelay(nil, 0))
	assert.Equal(t, 8*time.Second, rlb.CalculateBackoffDelay(nil, 2))
	assert.Equal(t, rlb.MaxDelay, rlb.CalculateBackoffDelay(nil, 10))

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", "5")
	assert.Equal(t, 7*time.Second, rlb.CalculateBackoffDelay(resp, 0))

	resp = &http.Response{Header: http.Header{}}
	resp.Header.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).UnixMilli(), 10))
	assert.Equal(t, rlb.MaxDelay, rlb.CalculateBackoffDelay(resp, 0))

	assert.True(t, rlb.ShouldRetry(2))
	assert.False(t, rlb.ShouldRetry(3))
}

func TestBackoffWaitHonoursContext(t *testing.T) {
	rlb := NewRateLimitBackoff()
	var notices []string
	rlb.SetOutputFunc(func(s string) { notices = append(notices, s) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := rlb.Wait(ctx, time.Minute, "openrouter")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, notices, 1)

	assert.NoError(t, rlb.Wait(context.Background(), time.Millisecond, "openrouter"))
	assert.NoError(t, rlb.Wait(context.Background(), 0, "openrouter"))
}
