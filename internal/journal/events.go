package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// RecordStep logs one step of a run
func (j *Journal) RecordStep(runID int64, step, status string, details map[string]interface{}) error {
	var detailsJSON string
	if details != nil {
		b, err := json.Marshal(details)
		if err == nil {
			detailsJSON = string(b)
		}
	}

	_, err := j.conn.Exec(`
		INSERT INTO run_events (run_id, step, status, details)
		VALUES (?, ?, ?, ?)
	`, runID, step, status, nullString(detailsJSON))

	if err != nil {
		return fmt.Errorf("failed to record step: %w", err)
	}

	return nil
}

// RunEvents returns the events recorded for a run, oldest first
func (j *Journal) RunEvents(runID int64, limit int) ([]*RunEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := j.conn.Query(`
		SELECT id, run_id, step, status, details, timestamp
		FROM run_events
		WHERE run_id = ?
		ORDER BY id ASC
		LIMIT ?
	`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run events: %w", err)
	}
	defer rows.Close()

	return scanRunEvents(rows)
}

// EventsSince returns events across all runs since a given timestamp
func (j *Journal) EventsSince(since time.Time) ([]*RunEvent, error) {
	rows, err := j.conn.Query(`
		SELECT id, run_id, step, status, details, timestamp
		FROM run_events
		WHERE timestamp > ?
		ORDER BY timestamp DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query events since: %w", err)
	}
	defer rows.Close()

	return scanRunEvents(rows)
}

func scanRunEvents(rows *sql.Rows) ([]*RunEvent, error) {
	var events []*RunEvent
	for rows.Next() {
		var event RunEvent
		var details sql.NullString

		err := rows.Scan(
			&event.ID, &event.RunID, &event.Step,
			&event.Status, &details, &event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.Details = details.String
		events = append(events, &event)
	}

	return events, rows.Err()
}
