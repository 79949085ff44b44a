package agent

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/neodify/neodify/pkg/store"
)

// SaveRequest is the full definition of an agent plus its binding sets.
// Binding sets are replaced wholesale on every save.
type SaveRequest struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Enabled      bool                 `json:"enabled"`
	Model        string               `json:"model"`
	SystemPrompt string               `json:"system_prompt"`
	Temperature  float64              `json:"temperature"`
	MaxTokens    int                  `json:"max_tokens"`
	Skills       []store.SkillBinding `json:"skills"`
	MCPs         []store.MCPBinding   `json:"mcps"`
}

// Detail is an agent together with its current binding sets.
type Detail struct {
	Agent  store.Agent          `json:"agent"`
	Skills []store.SkillBinding `json:"skills"`
	MCPs   []store.MCPBinding   `json:"mcps"`
}

// Service owns agent configuration: records and their skill and tool
// server bindings.
type Service struct {
	store  *store.Store
	logger zerolog.Logger
}

// NewService creates an agent configuration service.
func NewService(st *store.Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		logger: logger.With().Str("component", "agent_service").Logger(),
	}
}

// Save upserts the agent record and replaces both binding sets.
func (s *Service) Save(req SaveRequest) (*store.Agent, error) {
	if req.ID == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	if req.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if req.Model == "" {
		return nil, fmt.Errorf("agent model is required")
	}

	now := time.Now().UnixMilli()
	ag := store.Agent{
		ID:           req.ID,
		Name:         req.Name,
		Enabled:      req.Enabled,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if existing, err := s.store.GetAgent(req.ID); err != nil {
		return nil, err
	} else if existing != nil {
		ag.CreatedAt = existing.CreatedAt
	}

	if err := s.store.UpsertAgent(ag); err != nil {
		return nil, err
	}
	for i := range req.Skills {
		req.Skills[i].AgentID = req.ID
	}
	for i := range req.MCPs {
		req.MCPs[i].AgentID = req.ID
	}
	if err := s.store.ReplaceSkillBindings(req.ID, req.Skills); err != nil {
		return nil, err
	}
	if err := s.store.ReplaceMCPBindings(req.ID, req.MCPs); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("agent_id", req.ID).
		Int("skills", len(req.Skills)).
		Int("mcps", len(req.MCPs)).
		Msg("agent saved")
	return &ag, nil
}

// List returns all configured agents.
func (s *Service) List() ([]store.Agent, error) {
	return s.store.ListAgents()
}

// Get returns one agent, or nil when absent.
func (s *Service) Get(agentID string) (*store.Agent, error) {
	return s.store.GetAgent(agentID)
}
