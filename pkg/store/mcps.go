package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// UpsertMCP inserts or updates a tool server record. Args, env, headers
// and auth config are serialized at this boundary only.
func (s *Store) UpsertMCP(mcp MCP) error {
	argsJSON, err := marshalJSON(mcp.Args, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode mcp args: %w", err)
	}
	envJSON, err := marshalJSON(mcp.Env, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode mcp env: %w", err)
	}
	headersJSON, err := marshalJSON(mcp.Headers, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode mcp headers: %w", err)
	}
	authJSON, err := marshalJSON(mcp.AuthConfig, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode mcp auth config: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO mcps (id, name, mode, enabled, endpoint, command, args_json, env_json, headers_json,
			auth_config_json, timeout_ms, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			mode = excluded.mode,
			enabled = excluded.enabled,
			endpoint = excluded.endpoint,
			command = excluded.command,
			args_json = excluded.args_json,
			env_json = excluded.env_json,
			headers_json = excluded.headers_json,
			auth_config_json = excluded.auth_config_json,
			timeout_ms = excluded.timeout_ms,
			updated_at = excluded.updated_at`,
		mcp.ID, mcp.Name, string(mcp.Mode), boolToInt(mcp.Enabled),
		nullableString(mcp.Endpoint), nullableString(mcp.Command),
		argsJSON, envJSON, headersJSON, authJSON,
		mcp.TimeoutMs, mcp.CreatedAt, mcp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert mcp: %w", err)
	}
	return nil
}

// GetMCP returns the tool server with the given id, or nil when absent.
func (s *Store) GetMCP(mcpID string) (*MCP, error) {
	row := s.db.QueryRow(
		`SELECT id, name, mode, enabled, endpoint, command, args_json, env_json, headers_json,
			auth_config_json, timeout_ms, created_at, updated_at
		 FROM mcps WHERE id = ?`, mcpID)
	mcp, err := scanMCP(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mcp: %w", err)
	}
	return mcp, nil
}

// ListEnabledMCPs returns enabled tool servers ordered by name.
func (s *Store) ListEnabledMCPs() ([]MCP, error) {
	rows, err := s.db.Query(
		`SELECT id, name, mode, enabled, endpoint, command, args_json, env_json, headers_json,
			auth_config_json, timeout_ms, created_at, updated_at
		 FROM mcps WHERE enabled = 1 ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mcps: %w", err)
	}
	defer rows.Close()

	var mcps []MCP
	for rows.Next() {
		mcp, err := scanMCP(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mcp: %w", err)
		}
		mcps = append(mcps, *mcp)
	}
	return mcps, rows.Err()
}

func scanMCP(row rowScanner) (*MCP, error) {
	var mcp MCP
	var enabled int
	var mode string
	var endpoint, command sql.NullString
	var argsJSON, envJSON, headersJSON, authJSON string
	if err := row.Scan(&mcp.ID, &mcp.Name, &mode, &enabled, &endpoint, &command,
		&argsJSON, &envJSON, &headersJSON, &authJSON,
		&mcp.TimeoutMs, &mcp.CreatedAt, &mcp.UpdatedAt); err != nil {
		return nil, err
	}
	mcp.Mode = MCPMode(mode)
	mcp.Enabled = enabled == 1
	mcp.Endpoint = endpoint.String
	mcp.Command = command.String
	if err := json.Unmarshal([]byte(argsJSON), &mcp.Args); err != nil {
		return nil, fmt.Errorf("failed to decode mcp args: %w", err)
	}
	if err := json.Unmarshal([]byte(envJSON), &mcp.Env); err != nil {
		return nil, fmt.Errorf("failed to decode mcp env: %w", err)
	}
	if err := json.Unmarshal([]byte(headersJSON), &mcp.Headers); err != nil {
		return nil, fmt.Errorf("failed to decode mcp headers: %w", err)
	}
	if err := json.Unmarshal([]byte(authJSON), &mcp.AuthConfig); err != nil {
		return nil, fmt.Errorf("failed to decode mcp auth config: %w", err)
	}
	return &mcp, nil
}

func marshalJSON(value any, empty string) (string, error) {
	if value == nil {
		return empty, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
