package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// UpsertAgent inserts or updates an agent record.
func (s *Store) UpsertAgent(agent Agent) error {
	_, err := s.db.Exec(
		`INSERT INTO agents (id, name, enabled, model, system_prompt, temperature, max_tokens, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			model = excluded.model,
			system_prompt = excluded.system_prompt,
			temperature = excluded.temperature,
			max_tokens = excluded.max_tokens,
			updated_at = excluded.updated_at`,
		agent.ID, agent.Name, boolToInt(agent.Enabled), agent.Model, agent.SystemPrompt,
		agent.Temperature, agent.MaxTokens, agent.CreatedAt, agent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert agent: %w", err)
	}
	return nil
}

// GetAgent returns the agent with the given id, or nil when absent.
func (s *Store) GetAgent(agentID string) (*Agent, error) {
	row := s.db.QueryRow(
		`SELECT id, name, enabled, model, system_prompt, temperature, max_tokens, created_at, updated_at
		 FROM agents WHERE id = ?`, agentID)
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return agent, nil
}

// ListAgents returns all agents ordered by name.
func (s *Store) ListAgents() ([]Agent, error) {
	return s.listAgents(`SELECT id, name, enabled, model, system_prompt, temperature, max_tokens, created_at, updated_at
		FROM agents ORDER BY name ASC`)
}

// ListEnabledAgents returns enabled agents ordered by name.
func (s *Store) ListEnabledAgents() ([]Agent, error) {
	return s.listAgents(`SELECT id, name, enabled, model, system_prompt, temperature, max_tokens, created_at, updated_at
		FROM agents WHERE enabled = 1 ORDER BY name ASC`)
}

func (s *Store) listAgents(query string) ([]Agent, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*Agent, error) {
	var agent Agent
	var enabled int
	if err := row.Scan(&agent.ID, &agent.Name, &enabled, &agent.Model, &agent.SystemPrompt,
		&agent.Temperature, &agent.MaxTokens, &agent.CreatedAt, &agent.UpdatedAt); err != nil {
		return nil, err
	}
	agent.Enabled = enabled == 1
	return &agent, nil
}

// ReplaceSkillBindings atomically replaces the full skill binding set
// for an agent. Bindings are never patched individually.
func (s *Store) ReplaceSkillBindings(agentID string, bindings []SkillBinding) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM agent_skills WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("failed to clear skill bindings: %w", err)
	}
	for _, b := range bindings {
		if _, err := tx.Exec(
			`INSERT INTO agent_skills (agent_id, skill_id, enabled, priority) VALUES (?, ?, ?, ?)`,
			agentID, b.SkillID, boolToInt(b.Enabled), b.Priority,
		); err != nil {
			return fmt.Errorf("failed to insert skill binding: %w", err)
		}
	}
	return tx.Commit()
}

// ReplaceMCPBindings atomically replaces the full tool server binding
// set for an agent.
func (s *Store) ReplaceMCPBindings(agentID string, bindings []MCPBinding) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM agent_mcps WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("failed to clear mcp bindings: %w", err)
	}
	for _, b := range bindings {
		if _, err := tx.Exec(
			`INSERT INTO agent_mcps (agent_id, mcp_id, enabled, priority) VALUES (?, ?, ?, ?)`,
			agentID, b.MCPID, boolToInt(b.Enabled), b.Priority,
		); err != nil {
			return fmt.Errorf("failed to insert mcp binding: %w", err)
		}
	}
	return tx.Commit()
}

// ListSkillBindings returns all skill bindings for an agent, enabled
// or not, in priority order.
func (s *Store) ListSkillBindings(agentID string) ([]SkillBinding, error) {
	rows, err := s.db.Query(
		`SELECT agent_id, skill_id, enabled, priority FROM agent_skills
		 WHERE agent_id = ? ORDER BY priority ASC, skill_id ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list skill bindings: %w", err)
	}
	defer rows.Close()

	var bindings []SkillBinding
	for rows.Next() {
		var b SkillBinding
		var enabled int
		if err := rows.Scan(&b.AgentID, &b.SkillID, &enabled, &b.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan skill binding: %w", err)
		}
		b.Enabled = enabled == 1
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

// ListMCPBindings returns all tool server bindings for an agent in
// priority order.
func (s *Store) ListMCPBindings(agentID string) ([]MCPBinding, error) {
	rows, err := s.db.Query(
		`SELECT agent_id, mcp_id, enabled, priority FROM agent_mcps
		 WHERE agent_id = ? ORDER BY priority ASC, mcp_id ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mcp bindings: %w", err)
	}
	defer rows.Close()

	var bindings []MCPBinding
	for rows.Next() {
		var b MCPBinding
		var enabled int
		if err := rows.Scan(&b.AgentID, &b.MCPID, &enabled, &b.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan mcp binding: %w", err)
		}
		b.Enabled = enabled == 1
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

// ListEnabledSkillIDs returns the skill ids bound (and enabled) for an
// agent, ordered by priority then skill id for a deterministic result.
func (s *Store) ListEnabledSkillIDs(agentID string) ([]string, error) {
	return s.listBindingIDs(
		`SELECT skill_id FROM agent_skills WHERE agent_id = ? AND enabled = 1 ORDER BY priority ASC, skill_id ASC`,
		agentID)
}

// ListEnabledMCPIDs returns the tool server ids bound (and enabled) for
// an agent, ordered by priority then mcp id.
func (s *Store) ListEnabledMCPIDs(agentID string) ([]string, error) {
	return s.listBindingIDs(
		`SELECT mcp_id FROM agent_mcps WHERE agent_id = ? AND enabled = 1 ORDER BY priority ASC, mcp_id ASC`,
		agentID)
}

func (s *Store) listBindingIDs(query, agentID string) ([]string, error) {
	rows, err := s.db.Query(query, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bindings: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan binding: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
