package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertConversation inserts or updates a conversation record.
func (s *Store) UpsertConversation(conv Conversation) error {
	_, err := s.db.Exec(
		`INSERT INTO conversations (id, agent_id, title, cwd, session_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			agent_id = excluded.agent_id,
			title = excluded.title,
			cwd = excluded.cwd,
			session_id = excluded.session_id,
			updated_at = excluded.updated_at`,
		conv.ID, conv.AgentID, conv.Title, conv.Cwd, conv.SessionID, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}
	return nil
}

// GetConversation returns the conversation with the given id, or nil
// when absent.
func (s *Store) GetConversation(conversationID string) (*Conversation, error) {
	row := s.db.QueryRow(
		`SELECT id, agent_id, title, cwd, session_id, created_at, updated_at
		 FROM conversations WHERE id = ?`, conversationID)

	var conv Conversation
	var sessionID sql.NullString
	err := row.Scan(&conv.ID, &conv.AgentID, &conv.Title, &conv.Cwd, &sessionID,
		&conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if sessionID.Valid {
		conv.SessionID = &sessionID.String
	}
	return &conv, nil
}

// NextTurnIndex computes the next 1-based turn index for a conversation
// from the run history, so it stays consistent even across gaps.
func (s *Store) NextTurnIndex(conversationID string) (int, error) {
	row := s.db.QueryRow(
		`SELECT COALESCE(MAX(turn_index), 0) FROM runs WHERE conversation_id = ?`, conversationID)
	var maxTurn int
	if err := row.Scan(&maxTurn); err != nil {
		return 0, fmt.Errorf("failed to compute next turn index: %w", err)
	}
	return maxTurn + 1, nil
}

// UpdateConversationSessionID persists the provider-assigned session id
// so the next turn can resume.
func (s *Store) UpdateConversationSessionID(conversationID string, sessionID *string) error {
	_, err := s.db.Exec(
		`UPDATE conversations SET session_id = ?, updated_at = ? WHERE id = ?`,
		sessionID, time.Now().UnixMilli(), conversationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation session id: %w", err)
	}
	return nil
}
