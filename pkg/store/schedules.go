package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// UpsertSchedule inserts or updates a schedule record.
func (s *Store) UpsertSchedule(schedule Schedule) error {
	templateJSON, err := marshalJSON(schedule.InputTemplate, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode schedule input template: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO schedules (id, name, cron_expr, agent_id, input_template_json, enabled, next_run_at, last_run_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			cron_expr = excluded.cron_expr,
			agent_id = excluded.agent_id,
			input_template_json = excluded.input_template_json,
			enabled = excluded.enabled,
			next_run_at = excluded.next_run_at,
			last_run_at = excluded.last_run_at`,
		schedule.ID, schedule.Name, schedule.CronExpr, schedule.AgentID, templateJSON,
		boolToInt(schedule.Enabled), schedule.NextRunAt, schedule.LastRunAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert schedule: %w", err)
	}
	return nil
}

// GetSchedule returns a schedule by ID, or nil if it does not exist.
func (s *Store) GetSchedule(scheduleID string) (*Schedule, error) {
	row := s.db.QueryRow(
		`SELECT id, name, cron_expr, agent_id, input_template_json, enabled, next_run_at, last_run_at
		 FROM schedules WHERE id = ?`, scheduleID)

	var schedule Schedule
	var enabled int
	var templateJSON string
	var nextRunAt, lastRunAt sql.NullInt64
	err := row.Scan(&schedule.ID, &schedule.Name, &schedule.CronExpr, &schedule.AgentID,
		&templateJSON, &enabled, &nextRunAt, &lastRunAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	schedule.Enabled = enabled == 1
	if nextRunAt.Valid {
		schedule.NextRunAt = &nextRunAt.Int64
	}
	if lastRunAt.Valid {
		schedule.LastRunAt = &lastRunAt.Int64
	}
	if err := json.Unmarshal([]byte(templateJSON), &schedule.InputTemplate); err != nil {
		return nil, fmt.Errorf("failed to decode schedule input template: %w", err)
	}
	return &schedule, nil
}

// ListSchedules returns all schedules ordered by name.
func (s *Store) ListSchedules() ([]Schedule, error) {
	rows, err := s.db.Query(
		`SELECT id, name, cron_expr, agent_id, input_template_json, enabled, next_run_at, last_run_at
		 FROM schedules ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		var schedule Schedule
		var enabled int
		var templateJSON string
		var nextRunAt, lastRunAt sql.NullInt64
		if err := rows.Scan(&schedule.ID, &schedule.Name, &schedule.CronExpr, &schedule.AgentID,
			&templateJSON, &enabled, &nextRunAt, &lastRunAt); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedule.Enabled = enabled == 1
		if nextRunAt.Valid {
			schedule.NextRunAt = &nextRunAt.Int64
		}
		if lastRunAt.Valid {
			schedule.LastRunAt = &lastRunAt.Int64
		}
		if err := json.Unmarshal([]byte(templateJSON), &schedule.InputTemplate); err != nil {
			return nil, fmt.Errorf("failed to decode schedule input template: %w", err)
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

// UpdateScheduleRunTimes records the last and next fire times of a
// schedule after the runner triggers it.
func (s *Store) UpdateScheduleRunTimes(scheduleID string, lastRunAt, nextRunAt *int64) error {
	_, err := s.db.Exec(
		`UPDATE schedules SET last_run_at = ?, next_run_at = ? WHERE id = ?`,
		lastRunAt, nextRunAt, scheduleID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule run times: %w", err)
	}
	return nil
}
