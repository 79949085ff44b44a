package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
)

// AnthropicProvider executes runs against the Anthropic Messages API,
// translating the streamed event union into normalized run events.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Run streams one model turn through the beta Messages surface. Prior
// exchanges are replayed ahead of the prompt, and URL tool servers ride
// the request via the MCP connector; stdio servers have no connector
// representation and are omitted. Every recognized stream event is
// classified and handed to req.OnEvent in arrival order; unrecognized
// event shapes are skipped, never fatal.
func (p *AnthropicProvider) Run(ctx context.Context, req Request) (Result, error) {
	startedAt := time.Now()

	messages := make([]anthropic.BetaMessageParam, 0, 2*len(req.History)+1)
	for _, ex := range req.History {
		messages = append(messages,
			anthropic.NewBetaUserMessage(anthropic.NewBetaTextBlock(ex.Prompt)),
			anthropic.BetaMessageParam{
				Role:    anthropic.BetaMessageParamRoleAssistant,
				Content: []anthropic.BetaContentBlockParamUnion{anthropic.NewBetaTextBlock(ex.Response)},
			})
	}
	messages = append(messages, anthropic.NewBetaUserMessage(anthropic.NewBetaTextBlock(req.Prompt)))

	params := anthropic.BetaMessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  messages,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.BetaTextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if connectors := connectorServers(req.Servers); len(connectors) > 0 {
		params.MCPServers = connectors
		params.Betas = []anthropic.AnthropicBeta{anthropic.AnthropicBetaMCPClient2025_04_04}
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

	stream := p.client.Beta.Messages.NewStreaming(ctx, params)
	acc := anthropic.BetaMessage{}
	started := false

	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return Result{}, fmt.Errorf("failed to accumulate stream event: %w", err)
		}

		switch ev := event.AsAny().(type) {
		case anthropic.BetaRawMessageStartEvent:
			if !started {
				started = true
				emit(Message{Kind: KindSystemInit, System: &SystemPayload{
					Cwd:        req.Cwd,
					Model:      req.Model,
					MCPServers: serverNames(req.Servers),
				}})
			}

		case anthropic.BetaRawContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.BetaTextDelta:
				emit(Message{Kind: KindStreamEvent, Stream: &StreamPayload{
					Type:  "text_delta",
					Event: map[string]any{"text": delta.Text},
				}})
			}

		case anthropic.BetaRawContentBlockStopEvent:
			if int(ev.Index) >= len(acc.Content) {
				continue
			}
			switch block := acc.Content[ev.Index].AsAny().(type) {
			case anthropic.BetaToolUseBlock:
				var input map[string]any
				_ = json.Unmarshal([]byte(block.JSON.Input.Raw()), &input)
				emit(Message{Kind: KindToolCall, ToolCall: &ToolCallPayload{
					ToolUseID: block.ID,
					ToolName:  block.Name,
					Input:     input,
				}})
			case anthropic.BetaMCPToolUseBlock:
				var input map[string]any
				_ = json.Unmarshal([]byte(block.JSON.Input.Raw()), &input)
				emit(Message{Kind: KindToolCall, ToolCall: &ToolCallPayload{
					ToolUseID: block.ID,
					ToolName:  fmt.Sprintf("%s/%s", block.ServerName, block.Name),
					Input:     input,
				}})
			case anthropic.BetaMCPToolResultBlock:
				emit(Message{Kind: KindToolResult, ToolResult: &ToolResultPayload{
					ParentToolUseID: block.ToolUseID,
					Result:          block.Content,
				}})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return Result{}, fmt.Errorf("anthropic stream failed: %w", err)
	}

	text := ""
	for _, block := range acc.Content {
		if b, ok := block.AsAny().(anthropic.BetaTextBlock); ok {
			text += b.Text
		}
	}
	emit(Message{Kind: KindAssistant, Assistant: &AssistantPayload{Text: text}})

	durationMs := time.Since(startedAt).Milliseconds()
	cost := EstimateCost(req.Model, acc.Usage.InputTokens, acc.Usage.OutputTokens)
	emit(Message{Kind: KindResult, Result: &ResultPayload{
		Subtype:      "success",
		TotalCostUSD: cost,
		DurationMs:   durationMs,
		StopReason:   string(acc.StopReason),
	}})

	return Result{
		Text:         text,
		TotalCostUSD: cost,
		DurationMs:   durationMs,
		SessionID:    sessionID,
	}, nil
}

// connectorServers maps URL transports onto the MCP connector request
// shape. Stdio transports cannot cross the connector and are skipped.
func connectorServers(servers []ServerConfig) []anthropic.BetaRequestMCPServerURLDefinitionParam {
	var out []anthropic.BetaRequestMCPServerURLDefinitionParam
	for _, s := range servers {
		if s.Transport == TransportStdio {
			continue
		}
		def := anthropic.BetaRequestMCPServerURLDefinitionParam{
			Name: s.Name,
			URL:  s.URL,
		}
		if token := bearerToken(s.Headers); token != "" {
			def.AuthorizationToken = anthropic.String(token)
		}
		out = append(out, def)
	}
	return out
}

func bearerToken(headers map[string]string) string {
	const prefix = "Bearer "
	auth := headers["Authorization"]
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}
