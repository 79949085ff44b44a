package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyKnownKinds(t *testing.T) {
	tests := []struct {
		name     string
		msg      Message
		wantType string
	}{
		{
			name:     "system init",
			msg:      Message{Kind: KindSystemInit, System: &SystemPayload{Model: "claude-sonnet-4"}},
			wantType: "agent.system.init",
		},
		{
			name:     "compact boundary",
			msg:      Message{Kind: KindCompactBoundary, System: &SystemPayload{CompactMetadata: map[string]any{"trigger": "auto"}}},
			wantType: "agent.system.compact_boundary",
		},
		{
			name:     "hook started",
			msg:      Message{Kind: KindHookStarted, Hook: &HookPayload{HookID: "h1", HookName: "lint"}},
			wantType: "agent.hook.started",
		},
		{
			name:     "task notification",
			msg:      Message{Kind: KindTaskNotification, Task: &TaskPayload{TaskID: "t1", Status: "done"}},
			wantType: "agent.task.notification",
		},
		{
			name:     "files persisted",
			msg:      Message{Kind: KindFilesPersisted, Files: &FilesPayload{Files: []string{"a.txt"}}},
			wantType: "agent.files.persisted",
		},
		{
			name:     "assistant",
			msg:      Message{Kind: KindAssistant, Assistant: &AssistantPayload{Text: "hello"}},
			wantType: "agent.assistant",
		},
		{
			name:     "tool call",
			msg:      Message{Kind: KindToolCall, ToolCall: &ToolCallPayload{ToolUseID: "tu1", ToolName: "search"}},
			wantType: "agent.tool.call",
		},
		{
			name:     "tool result",
			msg:      Message{Kind: KindToolResult, ToolResult: &ToolResultPayload{Result: "ok"}},
			wantType: "agent.tool.result",
		},
		{
			name:     "auth status",
			msg:      Message{Kind: KindAuthStatus, AuthStatus: &AuthStatusPayload{Authenticating: true}},
			wantType: "agent.auth.status",
		},
		{
			name:     "stream event",
			msg:      Message{Kind: KindStreamEvent, Stream: &StreamPayload{Type: "text_delta"}},
			wantType: "agent.stream_event",
		},
		{
			name:     "result",
			msg:      Message{Kind: KindResult, Result: &ResultPayload{Subtype: "success", TotalCostUSD: 0.01}},
			wantType: "agent.result",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, ok := Classify(tt.msg)
			require.True(t, ok)
			assert.Equal(t, tt.wantType, event.Type)
			assert.NotNil(t, event.Payload)
		})
	}
}

func TestClassifySkipsUnknownAndEmpty(t *testing.T) {
	_, ok := Classify(Message{Kind: KindUnknown, Raw: map[string]any{"type": "mystery"}})
	assert.False(t, ok)

	_, ok = Classify(Message{Kind: MessageKind("made_up")})
	assert.False(t, ok)

	// An assistant message with no text carries no signal.
	_, ok = Classify(Message{Kind: KindAssistant, Assistant: &AssistantPayload{}})
	assert.False(t, ok)

	// A kind without its matching payload is malformed, not fatal.
	_, ok = Classify(Message{Kind: KindToolCall})
	assert.False(t, ok)
}

func TestClassifyPayloadFieldNames(t *testing.T) {
	event, ok := Classify(Message{Kind: KindResult, Result: &ResultPayload{
		Subtype:      "success",
		TotalCostUSD: 0.25,
		DurationMs:   1200,
	}})
	require.True(t, ok)
	assert.Equal(t, 0.25, event.Payload["totalCostUsd"])
	assert.Equal(t, float64(1200), event.Payload["durationMs"])
	assert.Equal(t, "success", event.Payload["subtype"])
}
