package provider

// MessageKind tags one provider-native message shape. The set is closed
// on our side; anything the upstream adds that we do not recognize is
// carried as KindUnknown and skipped by classification.
type MessageKind string

const (
	KindSystemInit       MessageKind = "system.init"
	KindSystemStatus     MessageKind = "system.status"
	KindCompactBoundary  MessageKind = "system.compact_boundary"
	KindHookStarted      MessageKind = "hook.started"
	KindHookProgress     MessageKind = "hook.progress"
	KindHookResponse     MessageKind = "hook.response"
	KindTaskNotification MessageKind = "task.notification"
	KindFilesPersisted   MessageKind = "files.persisted"
	KindAssistant        MessageKind = "assistant"
	KindToolCall         MessageKind = "tool.call"
	KindToolResult       MessageKind = "tool.result"
	KindToolProgress     MessageKind = "tool.progress"
	KindToolSummary      MessageKind = "tool.summary"
	KindAuthStatus       MessageKind = "auth.status"
	KindStreamEvent      MessageKind = "stream_event"
	KindResult           MessageKind = "result"
	KindUnknown          MessageKind = "unknown"
)

// Message is one provider-native message. Exactly one of the payload
// fields matching Kind is set; KindUnknown carries only Raw.
type Message struct {
	Kind      MessageKind
	SessionID string

	System       *SystemPayload
	Hook         *HookPayload
	Task         *TaskPayload
	Files        *FilesPayload
	Assistant    *AssistantPayload
	ToolCall     *ToolCallPayload
	ToolResult   *ToolResultPayload
	ToolProgress *ToolProgressPayload
	ToolSummary  *ToolSummaryPayload
	AuthStatus   *AuthStatusPayload
	Stream       *StreamPayload
	Result       *ResultPayload
	Raw          map[string]any
}

// SystemPayload covers init, status, and compact boundary messages.
type SystemPayload struct {
	Cwd             string         `json:"cwd,omitempty"`
	Model           string         `json:"model,omitempty"`
	Tools           []string       `json:"tools,omitempty"`
	MCPServers      []string       `json:"mcpServers,omitempty"`
	PermissionMode  string         `json:"permissionMode,omitempty"`
	Status          string         `json:"status,omitempty"`
	CompactMetadata map[string]any `json:"compactMetadata,omitempty"`
}

// HookPayload covers the three hook lifecycle phases.
type HookPayload struct {
	HookID    string `json:"hookId"`
	HookName  string `json:"hookName"`
	HookEvent string `json:"hookEvent"`
	Stdout    string `json:"stdout,omitempty"`
	Stderr    string `json:"stderr,omitempty"`
	Output    string `json:"output,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	ExitCode  *int   `json:"exitCode,omitempty"`
}

type TaskPayload struct {
	TaskID     string `json:"taskId"`
	Status     string `json:"status"`
	OutputFile string `json:"outputFile,omitempty"`
	Summary    string `json:"summary,omitempty"`
}

type FilesPayload struct {
	Files       []string `json:"files"`
	Failed      []string `json:"failed,omitempty"`
	ProcessedAt int64    `json:"processedAt"`
}

type AssistantPayload struct {
	Text            string `json:"text"`
	ParentToolUseID string `json:"parentToolUseId,omitempty"`
	Error           string `json:"error,omitempty"`
}

type ToolCallPayload struct {
	ToolUseID       string         `json:"toolUseId"`
	ToolName        string         `json:"toolName"`
	Input           map[string]any `json:"input,omitempty"`
	ParentToolUseID string         `json:"parentToolUseId,omitempty"`
}

type ToolResultPayload struct {
	ParentToolUseID string `json:"parentToolUseId,omitempty"`
	Result          any    `json:"toolUseResult"`
	Synthetic       bool   `json:"isSynthetic,omitempty"`
	Replay          bool   `json:"isReplay,omitempty"`
}

type ToolProgressPayload struct {
	ToolUseID       string  `json:"toolUseId"`
	ToolName        string  `json:"toolName"`
	ParentToolUseID string  `json:"parentToolUseId,omitempty"`
	ElapsedSeconds  float64 `json:"elapsedTimeSeconds"`
}

type ToolSummaryPayload struct {
	Summary             string   `json:"summary"`
	PrecedingToolUseIDs []string `json:"precedingToolUseIds,omitempty"`
}

type AuthStatusPayload struct {
	Authenticating bool   `json:"isAuthenticating"`
	Output         string `json:"output,omitempty"`
	Error          string `json:"error,omitempty"`
}

type StreamPayload struct {
	Type            string         `json:"type"`
	ParentToolUseID string         `json:"parentToolUseId,omitempty"`
	Event           map[string]any `json:"event,omitempty"`
}

type ResultPayload struct {
	Subtype       string   `json:"subtype"`
	IsError       bool     `json:"isError"`
	TotalCostUSD  float64  `json:"totalCostUsd"`
	DurationMs    int64    `json:"durationMs"`
	DurationAPIMs int64    `json:"durationApiMs,omitempty"`
	NumTurns      int      `json:"numTurns,omitempty"`
	StopReason    string   `json:"stopReason,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}
