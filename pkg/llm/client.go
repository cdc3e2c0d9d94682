// Package llm sends prompts to chat models and streams their answers back.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenFunc receives streamed fragments. reasoning is true for the model's
// thinking tokens, which are not part of the returned answer.
type TokenFunc func(fragment string, reasoning bool)

// Client sends a conversation to a model. The returned string is the whole
// answer in both streaming and blocking mode. When the call fails or ctx is
// cancelled part way through, whatever arrived is returned with the error.
type Client interface {
	SendPrompt(ctx context.Context, model string, messages []Message, stream bool, onToken TokenFunc) (string, error)
}

// UserPrompt wraps a single prompt as a one-message conversation.
func UserPrompt(prompt string) []Message {
	return []Message{{Role: "user", Content: prompt}}
}

// Category classifies a failed request.
type Category string

const (
	CategoryRateLimit  Category = "rate_limit"
	CategoryTimeout    Category = "timeout"
	CategoryConnection Category = "connection"
	CategoryOther      Category = "other"
)

// Categorize maps a request error to the category shown to the user.
func Categorize(err error) Category {
	if err == nil {
		return CategoryOther
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == 429 {
		return CategoryRateLimit
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return CategoryRateLimit
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) || strings.Contains(msg, "connection") || strings.Contains(msg, "no such host") {
		return CategoryConnection
	}
	return CategoryOther
}

// UserMessage renders err as the line shown in place of a model answer.
func UserMessage(err error) string {
	switch Categorize(err) {
	case CategoryRateLimit:
		return "Error: Rate limit exceeded. Please try again later."
	case CategoryTimeout:
		return "Error: Request timed out. The model may be overloaded."
	case CategoryConnection:
		return "Error: Connection failed. Please check your internet connection."
	default:
		return "Error: " + err.Error()
	}
}

// StatusError is a non-2xx answer from a model endpoint.
type StatusError struct {
	Provider string
	Code     int
	Message  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s error (%d): %s", e.Provider, e.Code, e.Message)
}

// clean strips carriage returns and backspaces that would garble the terminal.
func clean(fragment string) string {
	if !strings.ContainsAny(fragment, "\r\b") {
		return fragment
	}
	return strings.NewReplacer("\r", "", "\b", "").Replace(fragment)
}
