package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alantheprice/xmlagent/pkg/utils"
)

// Provider describes an OpenAI-compatible chat endpoint.
type Provider struct {
	Name      string
	BaseURL   string
	APIKeyEnv string
}

// Providers maps a model id prefix to its endpoint.
var Providers = map[string]Provider{
	"openrouter": {Name: "OpenRouter", BaseURL: "https://openrouter.ai/api/v1", APIKeyEnv: "OPENROUTER_API_KEY"},
	"deepseek":   {Name: "DeepSeek", BaseURL: "https://api.deepseek.com/v1", APIKeyEnv: "DEEPSEEK_API_KEY"},
	"openai":     {Name: "OpenAI", BaseURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY"},
}

// DefaultProvider serves model ids without a known prefix.
const DefaultProvider = "openrouter"

// SplitModel separates the provider prefix from a model id such as
// "openrouter/deepseek/deepseek-r1". Ids without a known prefix go to
// DefaultProvider unchanged.
func SplitModel(model string) (provider, name string) {
	if i := strings.Index(model, "/"); i > 0 {
		if _, ok := Providers[model[:i]]; ok {
			return model[:i], model[i+1:]
		}
	}
	return DefaultProvider, model
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content,omitempty"`
			Reasoning        string `json:"reasoning,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content,omitempty"`
			ReasoningContent string `json:"reasoning_content,omitempty"`
			Reasoning        string `json:"reasoning,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// OpenAIClient talks to OpenAI-compatible chat completion endpoints.
type OpenAIClient struct {
	httpClient *http.Client
	backoff    *utils.RateLimitBackoff
	// BaseURLs overrides a provider's endpoint, mainly for tests.
	BaseURLs map[string]string
	// APIKeys overrides the key read from the provider's environment variable.
	APIKeys map[string]string
}

// NewOpenAIClient returns a client whose non-streaming requests time out
// after timeout. Streaming requests are bounded by the context only.
func NewOpenAIClient(timeout time.Duration) *OpenAIClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIClient{
		httpClient: &http.Client{Timeout: timeout},
		backoff:    utils.NewRateLimitBackoff(),
		BaseURLs:   map[string]string{},
		APIKeys:    map[string]string{},
	}
}

// SetBackoff replaces the rate limit policy.
func (c *OpenAIClient) SetBackoff(b *utils.RateLimitBackoff) {
	c.backoff = b
}

func (c *OpenAIClient) endpoint(provider string) (Provider, string, string) {
	p, ok := Providers[provider]
	if !ok {
		p = Providers[DefaultProvider]
	}
	base := p.BaseURL
	if override, ok := c.BaseURLs[provider]; ok {
		base = override
	}
	key := os.Getenv(p.APIKeyEnv)
	if override, ok := c.APIKeys[provider]; ok {
		key = override
	}
	return p, strings.TrimRight(base, "/"), key
}

// SendPrompt posts messages to the model's provider. Rate limited requests
// are retried with backoff as long as nothing has been streamed yet.
func (c *OpenAIClient) SendPrompt(ctx context.Context, model string, messages []Message, stream bool, onToken TokenFunc) (string, error) {
	providerName, modelName := SplitModel(model)
	provider, base, key := c.endpoint(providerName)
	logger := utils.GetLogger(true)

	body, err := json.Marshal(chatRequest{Model: modelName, Messages: messages, Stream: stream})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
		if stream {
			req.Header.Set("Accept", "text/event-stream")
		}

		client := c.httpClient
		if stream {
			client = &http.Client{Transport: c.httpClient.Transport}
		}
		logger.Logf("sending %d messages to %s model %s (stream=%t)", len(messages), provider.Name, modelName, stream)
		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("%s request failed: %w", provider.Name, err)
		}

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			statusErr := &StatusError{Provider: provider.Name, Code: resp.StatusCode, Message: errorMessage(data)}
			if c.backoff != nil && c.backoff.IsRateLimitError(statusErr, resp) && c.backoff.ShouldRetry(attempt) {
				c.backoff.LogRateLimit(provider.Name, modelName, statusErr, resp)
				if err := c.backoff.Wait(ctx, c.backoff.CalculateBackoffDelay(resp, attempt), provider.Name); err != nil {
					return "", err
				}
				continue
			}
			return "", statusErr
		}

		if stream {
			text, err := readStream(resp.Body, onToken)
			resp.Body.Close()
			if err != nil && ctx.Err() != nil {
				err = ctx.Err()
			}
			return text, err
		}
		text, err := readCompletion(resp.Body)
		resp.Body.Close()
		return text, err
	}
}

func errorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(body))
}

func readCompletion(r io.Reader) (string, error) {
	var resp chatResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("response contained no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// readStream consumes a server-sent event stream, passing cleaned fragments
// to onToken and returning the accumulated answer.
func readStream(r io.Reader, onToken TokenFunc) (string, error) {
	var answer strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			utils.GetLogger(true).Logf("skipping malformed stream chunk: %s", data)
			continue
		}
		for _, choice := range chunk.Choices {
			reasoning := choice.Delta.ReasoningContent
			if reasoning == "" {
				reasoning = choice.Delta.Reasoning
			}
			if reasoning != "" && onToken != nil {
				onToken(clean(reasoning), true)
			}
			if content := clean(choice.Delta.Content); content != "" {
				answer.WriteString(content)
				if onToken != nil {
					onToken(content, false)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return answer.String(), fmt.Errorf("stream interrupted: %w", err)
	}
	return answer.String(), nil
}
