package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"

	"github.com/alantheprice/xmlagent/pkg/utils"
)

// OllamaPrefix marks model ids served by a local Ollama daemon.
const OllamaPrefix = "ollama/"

// OllamaClient sends prompts to a local Ollama daemon.
type OllamaClient struct {
	client *ollama.Client
}

// NewOllamaClient connects to host, or to $OLLAMA_HOST when host is empty.
func NewOllamaClient(host string) (*OllamaClient, error) {
	if host == "" {
		client, err := ollama.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("could not create ollama client: %w", err)
		}
		return &OllamaClient{client: client}, nil
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	return &OllamaClient{client: ollama.NewClient(base, http.DefaultClient)}, nil
}

// Models lists the models available locally.
func (c *OllamaClient) Models(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	list, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list local models: %w", err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// SendPrompt runs a chat request. Thinking tokens are reported as reasoning.
func (c *OllamaClient) SendPrompt(ctx context.Context, model string, messages []Message, stream bool, onToken TokenFunc) (string, error) {
	model = strings.TrimPrefix(model, OllamaPrefix)

	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}
	req := &ollama.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": 0.1,
		},
	}

	utils.GetLogger(true).Logf("sending %d messages to ollama model %s (stream=%t)", len(messages), model, stream)

	var answer strings.Builder
	err := c.client.Chat(ctx, req, func(res ollama.ChatResponse) error {
		if thinking := clean(res.Message.Thinking); thinking != "" && onToken != nil && stream {
			onToken(thinking, true)
		}
		content := clean(res.Message.Content)
		if content == "" {
			return nil
		}
		answer.WriteString(content)
		if onToken != nil && stream {
			onToken(content, false)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return answer.String(), fmt.Errorf("ollama chat failed: %w", err)
	}
	return answer.String(), nil
}
