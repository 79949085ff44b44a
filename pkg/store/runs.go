package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// CreateRun inserts a run record in running status. Input and cost are
// serialized at this boundary.
func (s *Store) CreateRun(run Run) error {
	inputJSON, err := json.Marshal(run.Input)
	if err != nil {
		return fmt.Errorf("failed to encode run input: %w", err)
	}
	costJSON, err := json.Marshal(run.Cost)
	if err != nil {
		return fmt.Errorf("failed to encode run cost: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO runs (id, source, agent_id, conversation_id, turn_index, session_id, status,
			input_json, output_json, error_msg, started_at, ended_at, latency_ms, cost_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, NULL, NULL, ?)`,
		run.ID, run.Source, run.AgentID, run.ConversationID, run.TurnIndex, run.SessionID,
		string(run.Status), string(inputJSON), run.StartedAt, string(costJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRunSuccess marks a run completed with its output and cost.
func (s *Store) FinishRunSuccess(runID string, output RunOutput, endedAt, latencyMs int64, cost RunCost) error {
	outputJSON, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to encode run output: %w", err)
	}
	costJSON, err := json.Marshal(cost)
	if err != nil {
		return fmt.Errorf("failed to encode run cost: %w", err)
	}

	_, err = s.db.Exec(
		`UPDATE runs SET status = ?, output_json = ?, ended_at = ?, latency_ms = ?, cost_json = ?
		 WHERE id = ? AND status = ?`,
		string(RunStatusCompleted), string(outputJSON), endedAt, latencyMs, string(costJSON),
		runID, string(RunStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// FinishRunFailure marks a run failed with its error message.
func (s *Store) FinishRunFailure(runID, errorMsg string, endedAt, latencyMs int64) error {
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, error_msg = ?, ended_at = ?, latency_ms = ?
		 WHERE id = ? AND status = ?`,
		string(RunStatusFailed), errorMsg, endedAt, latencyMs,
		runID, string(RunStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to fail run: %w", err)
	}
	return nil
}

// UpdateRunSessionID records the provider session id on the run.
func (s *Store) UpdateRunSessionID(runID string, sessionID *string) error {
	_, err := s.db.Exec(`UPDATE runs SET session_id = ? WHERE id = ?`, sessionID, runID)
	if err != nil {
		return fmt.Errorf("failed to update run session id: %w", err)
	}
	return nil
}

// Exchange is one completed prompt/response pair of a conversation.
type Exchange struct {
	Prompt   string
	Response string
}

// ListConversationExchanges returns the conversation's completed
// prompt/response pairs ordered by turn index, oldest first. Running
// and failed runs are excluded.
func (s *Store) ListConversationExchanges(conversationID string) ([]Exchange, error) {
	rows, err := s.db.Query(
		`SELECT input_json, output_json FROM runs
		 WHERE conversation_id = ? AND status = ? AND output_json IS NOT NULL
		 ORDER BY turn_index ASC, started_at ASC`,
		conversationID, string(RunStatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []Exchange
	for rows.Next() {
		var inputJSON, outputJSON string
		if err := rows.Scan(&inputJSON, &outputJSON); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		var input RunInput
		if err := json.Unmarshal([]byte(inputJSON), &input); err != nil {
			return nil, fmt.Errorf("failed to decode run input: %w", err)
		}
		var output RunOutput
		if err := json.Unmarshal([]byte(outputJSON), &output); err != nil {
			return nil, fmt.Errorf("failed to decode run output: %w", err)
		}
		exchanges = append(exchanges, Exchange{Prompt: input.Prompt, Response: output.Text})
	}
	return exchanges, rows.Err()
}

// GetRun returns the run with the given id, or nil when absent.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, source, agent_id, conversation_id, turn_index, session_id, status,
			input_json, output_json, error_msg, started_at, ended_at, latency_ms, cost_json
		 FROM runs WHERE id = ?`, runID)

	var run Run
	var conversationID, sessionID, outputJSON, errorMsg sql.NullString
	var endedAt, latencyMs sql.NullInt64
	var status, inputJSON, costJSON string
	err := row.Scan(&run.ID, &run.Source, &run.AgentID, &conversationID, &run.TurnIndex,
		&sessionID, &status, &inputJSON, &outputJSON, &errorMsg,
		&run.StartedAt, &endedAt, &latencyMs, &costJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.Status = RunStatus(status)
	if conversationID.Valid {
		run.ConversationID = &conversationID.String
	}
	if sessionID.Valid {
		run.SessionID = &sessionID.String
	}
	if errorMsg.Valid {
		run.ErrorMsg = &errorMsg.String
	}
	if endedAt.Valid {
		run.EndedAt = &endedAt.Int64
	}
	if latencyMs.Valid {
		run.LatencyMs = &latencyMs.Int64
	}
	if err := json.Unmarshal([]byte(inputJSON), &run.Input); err != nil {
		return nil, fmt.Errorf("failed to decode run input: %w", err)
	}
	if outputJSON.Valid {
		var output RunOutput
		if err := json.Unmarshal([]byte(outputJSON.String), &output); err != nil {
			return nil, fmt.Errorf("failed to decode run output: %w", err)
		}
		run.Output = &output
	}
	if err := json.Unmarshal([]byte(costJSON), &run.Cost); err != nil {
		return nil, fmt.Errorf("failed to decode run cost: %w", err)
	}
	return &run, nil
}
