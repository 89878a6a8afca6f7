package store

import (
	"context"
	"database/sql"
)

// InsertRun records the start of a run in the pending state.
func (s *Store) InsertRun(ctx context.Context, r *Run) error {
	if r.State == "" {
		r.State = RunPending
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO runs (id, retailer, state, started_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.Retailer, r.State, r.StartedAt)
	return err
}

// UpdateRunState advances a run through the state machine.
func (s *Store) UpdateRunState(ctx context.Context, runID, state string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE runs SET state = ? WHERE id = ?`, state, runID)
	return err
}

// FinishRun writes the terminal state, counts, and error text of a run.
func (s *Store) FinishRun(ctx context.Context, r *Run) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE runs SET state=?, observed=?, rejected=?, created=?, updated=?,
		reactivated=?, deactivated=?, history_written=?, drops=?, error=?, finished_at=?
		WHERE id=?`,
		r.State, r.Observed, r.Rejected, r.Created, r.Updated, r.Reactivated,
		r.Deactivated, r.HistoryWritten, r.Drops, r.Error, r.FinishedAt, r.ID)
	return err
}

const runColumns = `id, retailer, state, observed, rejected, created, updated,
	reactivated, deactivated, history_written, drops, error, started_at, finished_at`

// GetRun retrieves one run by id, or nil.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListRuns returns runs, optionally filtered by retailer, newest first.
func (s *Store) ListRuns(ctx context.Context, retailer string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if retailer != "" {
		q += ` WHERE retailer = ?`
		args = append(args, retailer)
	}
	q += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanRun(scan func(...any) error) (*Run, error) {
	var r Run
	var finished sql.NullInt64
	err := scan(&r.ID, &r.Retailer, &r.State, &r.Observed, &r.Rejected,
		&r.Created, &r.Updated, &r.Reactivated, &r.Deactivated,
		&r.HistoryWritten, &r.Drops, &r.Error, &r.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		r.FinishedAt = finished.Int64
	}
	return &r, nil
}
