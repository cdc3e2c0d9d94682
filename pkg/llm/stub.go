package llm

import (
	"context"
	"fmt"
	"sync"
)

// StubClient replays canned responses in order. It records every prompt it
// receives, which makes it the model stand-in for tests and dry runs.
type StubClient struct {
	mu        sync.Mutex
	Responses []string
	// Reasoning, when set, is streamed as thinking tokens before each answer.
	Reasoning string
	// Err is returned once the responses run out. A nil Err yields an error
	// saying the stub is exhausted.
	Err     error
	Prompts [][]Message
}

// NewStubClient returns a stub answering with responses in order.
func NewStubClient(responses ...string) *StubClient {
	return &StubClient{Responses: responses}
}

// SendPrompt pops the next canned response.
func (s *StubClient) SendPrompt(ctx context.Context, model string, messages []Message, stream bool, onToken TokenFunc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompts = append(s.Prompts, messages)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.Responses) == 0 {
		if s.Err != nil {
			return "", s.Err
		}
		return "", fmt.Errorf("stub client has no response left for prompt %d", len(s.Prompts))
	}
	resp := s.Responses[0]
	s.Responses = s.Responses[1:]
	if stream && onToken != nil {
		if s.Reasoning != "" {
			onToken(s.Reasoning, true)
		}
		onToken(resp, false)
	}
	return resp, nil
}

// LastPrompt returns the content of the final message of the latest call.
func (s *StubClient) LastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Prompts) == 0 {
		return ""
	}
	msgs := s.Prompts[len(s.Prompts)-1]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Content
}
