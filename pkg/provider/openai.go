package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider executes runs against the OpenAI chat completions API.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Run streams one chat completion, emitting normalized events for each
// content delta and a final assistant/result pair.
func (p *OpenAIProvider) Run(ctx context.Context, req Request) (Result, error) {
	startedAt := time.Now()

	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, ex := range req.History {
		messages = append(messages,
			openai.UserMessage(ex.Prompt),
			openai.AssistantMessage(ex.Response))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	sessionID := req.ResumeSessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("sess_%s", uuid.NewString())
	}

	emit := func(msg Message) {
		msg.SessionID = sessionID
		if event, ok := Classify(msg); ok && req.OnEvent != nil {
			req.OnEvent(event)
		}
	}

	emit(Message{Kind: KindSystemInit, System: &SystemPayload{
		Cwd:        req.Cwd,
		Model:      req.Model,
		MCPServers: serverNames(req.Servers),
	}})

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			emit(Message{Kind: KindStreamEvent, Stream: &StreamPayload{
				Type:  "text_delta",
				Event: map[string]any{"text": delta},
			}})
		}
	}
	if err := stream.Err(); err != nil {
		return Result{}, fmt.Errorf("openai stream failed: %w", err)
	}
	if len(acc.Choices) == 0 {
		return Result{}, fmt.Errorf("no response choices returned")
	}

	text := acc.Choices[0].Message.Content
	emit(Message{Kind: KindAssistant, Assistant: &AssistantPayload{Text: text}})

	durationMs := time.Since(startedAt).Milliseconds()
	cost := EstimateCost(req.Model, acc.Usage.PromptTokens, acc.Usage.CompletionTokens)
	emit(Message{Kind: KindResult, Result: &ResultPayload{
		Subtype:      "success",
		TotalCostUSD: cost,
		DurationMs:   durationMs,
		StopReason:   string(acc.Choices[0].FinishReason),
	}})

	return Result{
		Text:         text,
		TotalCostUSD: cost,
		DurationMs:   durationMs,
		SessionID:    sessionID,
	}, nil
}
