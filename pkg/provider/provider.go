package provider

import (
	"context"
	"fmt"
	"strings"
)

// Exchange is one completed prompt/response pair from an earlier turn
// of the conversation.
type Exchange struct {
	Prompt   string
	Response string
}

// Request is a normalized run request handed to a provider.
type Request struct {
	Prompt          string
	SystemPrompt    string
	Model           string
	Temperature     float64
	MaxTokens       int
	Servers         []ServerConfig
	Cwd             string
	ResumeSessionID string

	// History carries the conversation's prior exchanges, oldest
	// first. Providers replay it ahead of Prompt so a resumed
	// conversation keeps its context across turns.
	History []Exchange

	// OnEvent is invoked synchronously for every normalized event, in
	// stream order. It must not be nil during execution; the pipeline
	// always sets it.
	OnEvent func(Event)
}

// Result is the terminal outcome of one provider run.
type Result struct {
	Text         string
	Structured   any
	TotalCostUSD float64
	DurationMs   int64
	SessionID    string
}

// Provider executes one agent run against an external LLM backend,
// yielding an ordered, finite sequence of normalized events followed by
// a result.
type Provider interface {
	// Run executes the request, emitting events through req.OnEvent.
	Run(ctx context.Context, req Request) (Result, error)

	// Name returns the provider name.
	Name() string
}

// Factory selects a concrete provider per model identifier.
type Factory struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
}

// ForModel returns the provider responsible for the given model.
func (f *Factory) ForModel(model string) (Provider, error) {
	switch {
	case strings.HasPrefix(model, "gpt-") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3"):
		if f.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai api key is not configured")
		}
		return NewOpenAIProvider(f.OpenAIAPIKey), nil
	default:
		if f.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic api key is not configured")
		}
		return NewAnthropicProvider(f.AnthropicAPIKey), nil
	}
}
