package agent

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/neodify/neodify/pkg/store"
)

// ErrAgentUnavailable is returned when the target agent does not exist
// or is disabled. The two cases are deliberately indistinguishable.
var ErrAgentUnavailable = errors.New("agent is unavailable")

// Resolved is an execution view of an agent: the agent record plus its
// enabled skills and tool servers in binding priority order.
type Resolved struct {
	Agent  store.Agent
	Skills []store.Skill
	MCPs   []store.MCP
}

// Resolver assembles the execution view of an agent at run time.
type Resolver struct {
	store  *store.Store
	logger zerolog.Logger
}

// NewResolver creates a resolver over the given store.
func NewResolver(st *store.Store, logger zerolog.Logger) *Resolver {
	return &Resolver{
		store:  st,
		logger: logger.With().Str("component", "agent_resolver").Logger(),
	}
}

// Resolve loads the agent and its enabled bindings. A binding whose
// target record no longer exists or is disabled is dropped silently;
// only the agent itself being absent or disabled fails the resolve.
func (r *Resolver) Resolve(agentID string) (*Resolved, error) {
	ag, err := r.store.GetAgent(agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent %s: %w", agentID, err)
	}
	if ag == nil || !ag.Enabled {
		return nil, ErrAgentUnavailable
	}

	skillIDs, err := r.store.ListEnabledSkillIDs(agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load skill bindings: %w", err)
	}
	skills := make([]store.Skill, 0, len(skillIDs))
	for _, id := range skillIDs {
		sk, err := r.store.GetSkill(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load skill %s: %w", id, err)
		}
		if sk == nil || !sk.Enabled {
			r.logger.Debug().Str("skill_id", id).Msg("dropping dangling skill binding")
			continue
		}
		skills = append(skills, *sk)
	}

	mcpIDs, err := r.store.ListEnabledMCPIDs(agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mcp bindings: %w", err)
	}
	mcps := make([]store.MCP, 0, len(mcpIDs))
	for _, id := range mcpIDs {
		mcp, err := r.store.GetMCP(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load mcp %s: %w", id, err)
		}
		if mcp == nil || !mcp.Enabled {
			r.logger.Debug().Str("mcp_id", id).Msg("dropping dangling mcp binding")
			continue
		}
		mcps = append(mcps, *mcp)
	}

	return &Resolved{Agent: *ag, Skills: skills, MCPs: mcps}, nil
}
