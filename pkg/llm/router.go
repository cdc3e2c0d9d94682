package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Router picks a client by model id: "ollama/..." goes to the local
// daemon, everything else to the OpenAI-compatible client.
type Router struct {
	OpenAI *OpenAIClient

	ollamaHost string
	once       sync.Once
	ollama     Client
	ollamaErr  error
}

// NewRouter builds a router. The Ollama client is created on first use.
func NewRouter(openai *OpenAIClient, ollamaHost string) *Router {
	return &Router{OpenAI: openai, ollamaHost: ollamaHost}
}

// SetOllama replaces the local client.
func (r *Router) SetOllama(c Client) {
	r.once.Do(func() {})
	r.ollama = c
	r.ollamaErr = nil
}

func (r *Router) local() (Client, error) {
	r.once.Do(func() {
		r.ollama, r.ollamaErr = NewOllamaClient(r.ollamaHost)
	})
	return r.ollama, r.ollamaErr
}

// SendPrompt forwards to the client serving model.
func (r *Router) SendPrompt(ctx context.Context, model string, messages []Message, stream bool, onToken TokenFunc) (string, error) {
	if strings.HasPrefix(model, OllamaPrefix) {
		c, err := r.local()
		if err != nil {
			return "", err
		}
		return c.SendPrompt(ctx, model, messages, stream, onToken)
	}
	if r.OpenAI == nil {
		return "", fmt.Errorf("no client configured for model %s", model)
	}
	return r.OpenAI.SendPrompt(ctx, model, messages, stream, onToken)
}

// ModelLister is implemented by clients that can enumerate their models.
type ModelLister interface {
	Models(ctx context.Context) ([]string, error)
}

// LocalModels lists the models pulled into the local Ollama daemon, as
// model ids the router accepts.
func (r *Router) LocalModels(ctx context.Context) ([]string, error) {
	c, err := r.local()
	if err != nil {
		return nil, err
	}
	lister, ok := c.(ModelLister)
	if !ok {
		return nil, fmt.Errorf("local client cannot list models")
	}
	names, err := lister.Models(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(names))
	for i, name := range names {
		ids[i] = OllamaPrefix + name
	}
	return ids, nil
}
