package store

// MCPMode is the transport mode of a tool server binding.
type MCPMode string

const (
	MCPModeHTTP MCPMode = "http"
	MCPModeSSE  MCPMode = "sse"
	MCPModeUvx  MCPMode = "uvx"
	MCPModeNpx  MCPMode = "npx"
)

// RunStatus tracks the lifecycle of a run. Cancelled is reserved for a
// future cancellation mechanism and is never produced by the pipeline.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Agent is a configured persona that runs can target.
type Agent struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Enabled      bool    `json:"enabled"`
	Model        string  `json:"model"`
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	CreatedAt    int64   `json:"created_at"`
	UpdatedAt    int64   `json:"updated_at"`
}

// Skill is a reusable instruction bundle materialized into a run's
// working directory at execution time.
type Skill struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RootPath    string `json:"root_path"`
	SkillMDPath string `json:"skill_md_path"`
	Enabled     bool   `json:"enabled"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// MCP is an external tool server an agent may call during execution.
type MCP struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Mode       MCPMode           `json:"mode"`
	Enabled    bool              `json:"enabled"`
	Endpoint   string            `json:"endpoint,omitempty"`
	Command    string            `json:"command,omitempty"`
	Args       []string          `json:"args"`
	Env        map[string]string `json:"env"`
	Headers    map[string]string `json:"headers"`
	AuthConfig map[string]any    `json:"auth_config"`
	TimeoutMs  int64             `json:"timeout_ms"`
	CreatedAt  int64             `json:"created_at"`
	UpdatedAt  int64             `json:"updated_at"`
}

// SkillBinding associates a skill with an agent.
type SkillBinding struct {
	AgentID  string `json:"agent_id"`
	SkillID  string `json:"skill_id"`
	Enabled  bool   `json:"enabled"`
	Priority int    `json:"priority"`
}

// MCPBinding associates a tool server with an agent.
type MCPBinding struct {
	AgentID  string `json:"agent_id"`
	MCPID    string `json:"mcp_id"`
	Enabled  bool   `json:"enabled"`
	Priority int    `json:"priority"`
}

// Conversation is a multi-turn session owned by one agent. SessionID
// holds the provider-assigned resume key once the first turn succeeds.
type Conversation struct {
	ID        string  `json:"id"`
	AgentID   string  `json:"agent_id"`
	Title     string  `json:"title"`
	Cwd       string  `json:"cwd"`
	SessionID *string `json:"session_id"`
	CreatedAt int64   `json:"created_at"`
	UpdatedAt int64   `json:"updated_at"`
}

// RunInput is the deserialized invocation input.
type RunInput struct {
	Prompt   string         `json:"prompt"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RunOutput is the deserialized terminal output of a completed run.
type RunOutput struct {
	Text       string `json:"text"`
	Structured any    `json:"structured_output,omitempty"`
}

// RunCost carries cost accounting for a run.
type RunCost struct {
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// Run is one execution attempt of an agent against a prompt.
type Run struct {
	ID             string    `json:"id"`
	Source         string    `json:"source"`
	AgentID        string    `json:"agent_id"`
	ConversationID *string   `json:"conversation_id"`
	TurnIndex      int       `json:"turn_index"`
	SessionID      *string   `json:"session_id"`
	Status         RunStatus `json:"status"`
	Input          RunInput  `json:"input"`
	Output         *RunOutput `json:"output"`
	ErrorMsg       *string   `json:"error_msg"`
	StartedAt      int64     `json:"started_at"`
	EndedAt        *int64    `json:"ended_at"`
	LatencyMs      *int64    `json:"latency_ms"`
	Cost           RunCost   `json:"cost"`
}

// RunEvent is one sequenced record of run progress. Seq is assigned by
// the pipeline and is gapless and strictly increasing per run.
type RunEvent struct {
	ID        int64          `json:"id"`
	RunID     string         `json:"run_id"`
	Seq       int            `json:"seq"`
	Type      string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt int64          `json:"created_at"`
}

// Schedule triggers recurring runs of an agent via a cron expression.
type Schedule struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	CronExpr      string         `json:"cron_expr"`
	AgentID       string         `json:"agent_id"`
	InputTemplate map[string]any `json:"input_template"`
	Enabled       bool           `json:"enabled"`
	NextRunAt     *int64         `json:"next_run_at"`
	LastRunAt     *int64         `json:"last_run_at"`
}
