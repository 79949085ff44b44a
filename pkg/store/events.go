package store

import (
	"encoding/json"
	"fmt"
)

// AppendEvent persists one run event. The UNIQUE(run_id, seq) constraint
// rejects any attempt to write a duplicate sequence number.
func (s *Store) AppendEvent(event RunEvent) error {
	payloadJSON, err := marshalJSON(event.Payload, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO run_events (run_id, seq, event_type, payload_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		event.RunID, event.Seq, event.Type, payloadJSON, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append run event: %w", err)
	}
	return nil
}

// ListEventsByRun returns all events for a run in sequence order.
func (s *Store) ListEventsByRun(runID string) ([]RunEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, seq, event_type, payload_json, created_at
		 FROM run_events WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var event RunEvent
		var payloadJSON string
		if err := rows.Scan(&event.ID, &event.RunID, &event.Seq, &event.Type,
			&payloadJSON, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run event: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode event payload: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
