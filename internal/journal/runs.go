package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// BeginRun inserts a new run row and returns its ID
func (j *Journal) BeginRun(kind, target string) (int64, error) {
	result, err := j.conn.Exec(`
		INSERT INTO runs (kind, target, status) VALUES (?, ?, ?)
	`, kind, nullString(target), StatusStarted)
	if err != nil {
		return 0, fmt.Errorf("failed to begin run: %w", err)
	}

	return result.LastInsertId()
}

// FinishRun marks a run finished with the given status. errMsg is stored
// for failed runs and ignored otherwise.
func (j *Journal) FinishRun(runID int64, status, errMsg string) error {
	if status != StatusFailed {
		errMsg = ""
	}

	_, err := j.conn.Exec(`
		UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?
	`, status, nullString(errMsg), time.Now(), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	return nil
}

// RecordSummary attaches the generation outcome to a run
func (j *Journal) RecordSummary(runID int64, smbios, bootArgs string, kextCount int, downgraded bool) error {
	_, err := j.conn.Exec(`
		UPDATE runs SET smbios = ?, boot_args = ?, kext_count = ?, security_downgraded = ?
		WHERE id = ?
	`, nullString(smbios), nullString(bootArgs), kextCount, boolToInt(downgraded), runID)
	if err != nil {
		return fmt.Errorf("failed to record summary: %w", err)
	}

	return nil
}

// GetRun returns a run by ID, or nil if it does not exist
func (j *Journal) GetRun(id int64) (*Run, error) {
	row := j.conn.QueryRow(`
		SELECT id, kind, target, smbios, boot_args, kext_count, security_downgraded,
			status, error, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)

	return scanRunRow(row)
}

// RecentRuns returns the most recent runs, newest first
func (j *Journal) RecentRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.conn.Query(`
		SELECT id, kind, target, smbios, boot_args, kext_count, security_downgraded,
			status, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRunRows(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// RunsByKind returns the most recent runs of one kind, newest first
func (j *Journal) RunsByKind(kind string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.conn.Query(`
		SELECT id, kind, target, smbios, boot_args, kext_count, security_downgraded,
			status, error, started_at, finished_at
		FROM runs
		WHERE kind = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs by kind: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRunRows(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// scanRunRow scans a single row into a Run
func scanRunRow(row *sql.Row) (*Run, error) {
	var run Run
	var target, smbios, bootArgs, errMsg sql.NullString
	var downgraded sql.NullInt64
	var finished sql.NullTime

	err := row.Scan(
		&run.ID, &run.Kind, &target, &smbios, &bootArgs,
		&run.KextCount, &downgraded, &run.Status, &errMsg,
		&run.StartedAt, &finished,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	fillRun(&run, target, smbios, bootArgs, errMsg, downgraded, finished)
	return &run, nil
}

// scanRunRows scans a row from Rows into a Run
func scanRunRows(rows *sql.Rows) (*Run, error) {
	var run Run
	var target, smbios, bootArgs, errMsg sql.NullString
	var downgraded sql.NullInt64
	var finished sql.NullTime

	err := rows.Scan(
		&run.ID, &run.Kind, &target, &smbios, &bootArgs,
		&run.KextCount, &downgraded, &run.Status, &errMsg,
		&run.StartedAt, &finished,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run row: %w", err)
	}

	fillRun(&run, target, smbios, bootArgs, errMsg, downgraded, finished)
	return &run, nil
}

func fillRun(run *Run, target, smbios, bootArgs, errMsg sql.NullString, downgraded sql.NullInt64, finished sql.NullTime) {
	run.Target = target.String
	run.SMBIOS = smbios.String
	run.BootArgs = bootArgs.String
	run.Error = errMsg.String
	run.SecurityDowngraded = downgraded.Int64 != 0
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
}

// Helper functions for nullable values
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
