package run

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/neodify/neodify/internal/observability"
	"github.com/neodify/neodify/pkg/agent"
	"github.com/neodify/neodify/pkg/conversation"
	"github.com/neodify/neodify/pkg/provider"
	"github.com/neodify/neodify/pkg/skill"
	"github.com/neodify/neodify/pkg/store"
)

// Event types emitted by the pipeline itself. Provider events pass
// through with their own dotted types.
const (
	EventRunStarted           = "run.started"
	EventAgentResolved        = "agent.resolved"
	EventSkillRuntimePrepared = "skill.runtime_prepared"
	EventRunCompleted         = "run.completed"
	EventRunFailed            = "run.failed"
)

// ProviderSelector picks a concrete provider per model identifier.
type ProviderSelector interface {
	ForModel(model string) (provider.Provider, error)
}

// Input is one run invocation.
type Input struct {
	Source         string
	AgentID        string
	ConversationID string
	Title          string
	Prompt         string
	Metadata       map[string]any

	// RunID is an optional idempotency key. When empty the pipeline
	// generates one.
	RunID string
}

// Receipt is returned to the invoker as soon as the run is accepted.
type Receipt struct {
	RunID          string `json:"run_id"`
	ConversationID string `json:"conversation_id"`
}

// Config holds the pipeline's collaborators.
type Config struct {
	Store         *store.Store
	Resolver      *agent.Resolver
	Conversations *conversation.Tracker
	Runtime       *skill.Runtime
	Providers     ProviderSelector
	Bus           *Bus
	Guard         *Guard
	Logger        zerolog.Logger
}

// Service is the run execution pipeline. Execute accepts a run,
// records it and returns; the work itself proceeds on a detached
// goroutine that streams sequenced events to the store and the bus.
type Service struct {
	store         *store.Store
	resolver      *agent.Resolver
	conversations *conversation.Tracker
	runtime       *skill.Runtime
	providers     ProviderSelector
	bus           *Bus
	guard         *Guard
	logger        zerolog.Logger
}

// NewService creates the run pipeline.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if cfg.Conversations == nil {
		return nil, fmt.Errorf("conversation tracker is required")
	}
	if cfg.Runtime == nil {
		return nil, fmt.Errorf("skill runtime is required")
	}
	if cfg.Providers == nil {
		return nil, fmt.Errorf("provider selector is required")
	}
	if cfg.Bus == nil {
		return nil, fmt.Errorf("bus is required")
	}
	if cfg.Guard == nil {
		return nil, fmt.Errorf("guard is required")
	}
	return &Service{
		store:         cfg.Store,
		resolver:      cfg.Resolver,
		conversations: cfg.Conversations,
		runtime:       cfg.Runtime,
		providers:     cfg.Providers,
		bus:           cfg.Bus,
		guard:         cfg.Guard,
		logger:        cfg.Logger.With().Str("component", "run_service").Logger(),
	}, nil
}

// Execute accepts a run. The run record exists in running status and
// the run.started event is durable before Execute returns; everything
// after that happens asynchronously. A duplicate run id fails here
// with ErrRunInFlight and leaves the original run untouched.
func (s *Service) Execute(ctx context.Context, input Input) (Receipt, error) {
	if input.AgentID == "" {
		return Receipt{}, fmt.Errorf("agent id is required")
	}
	if input.Prompt == "" {
		return Receipt{}, fmt.Errorf("prompt is required")
	}
	if input.Source == "" {
		input.Source = "api"
	}
	switch input.Source {
	case "api", "cron":
	default:
		return Receipt{}, fmt.Errorf("invalid run source %q", input.Source)
	}

	runID := input.RunID
	if runID == "" {
		runID = fmt.Sprintf("run_%s", uuid.NewString())
	}

	if err := s.guard.Acquire(runID); err != nil {
		return Receipt{}, err
	}
	accepted := false
	defer func() {
		if !accepted {
			s.guard.Release(runID)
		}
	}()

	conv, err := s.conversations.Ensure(conversation.EnsureParams{
		ConversationID: input.ConversationID,
		AgentID:        input.AgentID,
		Title:          input.Title,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to ensure conversation: %w", err)
	}
	turnIndex, err := s.conversations.NextTurnIndex(conv.ID)
	if err != nil {
		return Receipt{}, err
	}

	startedAt := time.Now().UnixMilli()
	convID := conv.ID
	if err := s.store.CreateRun(store.Run{
		ID:             runID,
		Source:         input.Source,
		AgentID:        input.AgentID,
		ConversationID: &convID,
		TurnIndex:      turnIndex,
		SessionID:      conv.SessionID,
		Status:         store.RunStatusRunning,
		Input:          store.RunInput{Prompt: input.Prompt, Metadata: input.Metadata},
		StartedAt:      startedAt,
	}); err != nil {
		return Receipt{}, fmt.Errorf("failed to create run: %w", err)
	}

	seq := 0
	if err := s.appendEvent(runID, &seq, EventRunStarted, map[string]any{
		"agentId":        input.AgentID,
		"conversationId": conv.ID,
		"turnIndex":      turnIndex,
		"source":         input.Source,
	}); err != nil {
		return Receipt{}, err
	}

	accepted = true
	go s.processRun(runID, startedAt, seq, input, conv)

	return Receipt{RunID: runID, ConversationID: conv.ID}, nil
}

// processRun drives one run to a terminal state. It owns the guard
// slot and the sequence counter; a panic anywhere inside converts to a
// failed run instead of crashing the process.
func (s *Service) processRun(runID string, startedAt int64, seq int, input Input, conv *store.Conversation) {
	defer s.guard.Release(runID)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("run_id", runID).Interface("panic", r).Msg("run panicked")
			s.finishFailure(runID, startedAt, &seq, input.Source, "internal error")
		}
	}()

	resolved, err := s.resolver.Resolve(input.AgentID)
	if err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Str("agent_id", input.AgentID).Msg("agent resolution failed")
		s.finishFailure(runID, startedAt, &seq, input.Source, err.Error())
		return
	}
	if err := s.appendEvent(runID, &seq, EventAgentResolved, map[string]any{
		"agentId":    resolved.Agent.ID,
		"agentName":  resolved.Agent.Name,
		"model":      resolved.Agent.Model,
		"skillCount": len(resolved.Skills),
		"mcpCount":   len(resolved.MCPs),
	}); err != nil {
		s.abort(runID, startedAt, &seq, input.Source, err)
		return
	}

	runCwd, err := s.runtime.Prepare(conv.Cwd, resolved.Skills)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", runID).Msg("skill runtime preparation failed")
		s.finishFailure(runID, startedAt, &seq, input.Source, "failed to prepare skill runtime")
		return
	}
	if err := s.appendEvent(runID, &seq, EventSkillRuntimePrepared, map[string]any{
		"cwd":        runCwd,
		"skillCount": len(resolved.Skills),
	}); err != nil {
		s.abort(runID, startedAt, &seq, input.Source, err)
		return
	}

	prov, err := s.providers.ForModel(resolved.Agent.Model)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", runID).Str("model", resolved.Agent.Model).Msg("no provider for model")
		s.finishFailure(runID, startedAt, &seq, input.Source, err.Error())
		return
	}

	resume := ""
	if conv.SessionID != nil {
		resume = *conv.SessionID
	}

	// Chat APIs hold no server-side conversation state: continuity
	// comes from replaying the prior completed exchanges.
	exchanges, err := s.store.ListConversationExchanges(conv.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", runID).Msg("failed to load conversation history")
		s.finishFailure(runID, startedAt, &seq, input.Source, "failed to load conversation history")
		return
	}
	history := make([]provider.Exchange, 0, len(exchanges))
	for _, ex := range exchanges {
		history = append(history, provider.Exchange{Prompt: ex.Prompt, Response: ex.Response})
	}

	// Staged skill files are invisible to the model over a chat API,
	// so their content rides the system prompt.
	systemPrompt := resolved.Agent.SystemPrompt
	if instructions := skill.Instructions(resolved.Skills); instructions != "" {
		if systemPrompt != "" {
			systemPrompt += "\n\n"
		}
		systemPrompt += instructions
	}

	var appendErr error
	providerStart := time.Now()
	result, err := prov.Run(context.Background(), provider.Request{
		Prompt:          input.Prompt,
		SystemPrompt:    systemPrompt,
		Model:           resolved.Agent.Model,
		Temperature:     resolved.Agent.Temperature,
		MaxTokens:       resolved.Agent.MaxTokens,
		Servers:         provider.TranslateServers(resolved.MCPs),
		Cwd:             runCwd,
		ResumeSessionID: resume,
		History:         history,
		OnEvent: func(event provider.Event) {
			if appendErr != nil {
				return
			}
			appendErr = s.appendEvent(runID, &seq, event.Type, event.Payload)
		},
	})
	observability.RecordProviderRun(prov.Name(), time.Since(providerStart), err == nil)
	if appendErr != nil {
		s.abort(runID, startedAt, &seq, input.Source, appendErr)
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", runID).Msg("provider run failed")
		s.finishFailure(runID, startedAt, &seq, input.Source, err.Error())
		return
	}

	if result.SessionID != "" {
		sessionID := result.SessionID
		if err := s.conversations.UpdateSessionID(conv.ID, sessionID); err != nil {
			s.logger.Error().Err(err).Str("run_id", runID).Msg("failed to persist conversation session id")
		}
		if err := s.store.UpdateRunSessionID(runID, &sessionID); err != nil {
			s.logger.Error().Err(err).Str("run_id", runID).Msg("failed to persist run session id")
		}
	}

	endedAt := time.Now().UnixMilli()
	latency := endedAt - startedAt
	output := store.RunOutput{Text: result.Text, Structured: result.Structured}
	cost := store.RunCost{TotalCostUSD: result.TotalCostUSD}
	if err := s.store.FinishRunSuccess(runID, output, endedAt, latency, cost); err != nil {
		s.logger.Error().Err(err).Str("run_id", runID).Msg("failed to finalize run")
		return
	}
	if err := s.appendEvent(runID, &seq, EventRunCompleted, map[string]any{
		"latencyMs":    latency,
		"totalCostUsd": result.TotalCostUSD,
	}); err != nil {
		s.logger.Error().Err(err).Str("run_id", runID).Msg("failed to append terminal event")
	}

	observability.RecordRun(input.Source, string(store.RunStatusCompleted), time.Duration(latency)*time.Millisecond)
	s.logger.Info().
		Str("run_id", runID).
		Str("agent_id", input.AgentID).
		Int64("latency_ms", latency).
		Msg("run completed")
}

// finishFailure marks the run failed and emits the terminal event.
func (s *Service) finishFailure(runID string, startedAt int64, seq *int, source, message string) {
	endedAt := time.Now().UnixMilli()
	latency := endedAt - startedAt
	if err := s.store.FinishRunFailure(runID, message, endedAt, latency); err != nil {
		s.logger.Error().Err(err).Str("run_id", runID).Msg("failed to mark run failed")
		return
	}
	if err := s.appendEvent(runID, seq, EventRunFailed, map[string]any{
		"message":   message,
		"latencyMs": latency,
	}); err != nil {
		s.logger.Error().Err(err).Str("run_id", runID).Msg("failed to append failure event")
	}
	observability.RecordRun(source, string(store.RunStatusFailed), time.Duration(latency)*time.Millisecond)
}

// abort handles an event log write failure. The event stream can no
// longer be trusted, so the run fails without emitting further detail.
func (s *Service) abort(runID string, startedAt int64, seq *int, source string, err error) {
	s.logger.Error().Err(err).Str("run_id", runID).Msg("event append failed, aborting run")
	s.finishFailure(runID, startedAt, seq, source, "failed to persist run events")
}

// appendEvent assigns the next sequence number, persists the event and
// only then publishes it to live subscribers.
func (s *Service) appendEvent(runID string, seq *int, eventType string, payload map[string]any) error {
	*seq++
	event := store.RunEvent{
		RunID:     runID,
		Seq:       *seq,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := s.store.AppendEvent(event); err != nil {
		return err
	}
	observability.RecordRunEvent()
	s.bus.Publish(event)
	return nil
}
