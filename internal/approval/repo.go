package approval

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"kkn/internal/store"
)

// Repository persists the current decision per (team, student, week) and the
// log of every decision taken.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the stored decision or a pending placeholder. Reads never
// create rows.
func (r *Repository) Get(ctx context.Context, team, student, week string) (Approval, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`
		SELECT status, notes, reviewed_by, reviewed_at
		FROM weekly_approvals
		WHERE team_id = ? AND student_id = ? AND week = ?
	`), team, student, week)
	a := Approval{Team: team, Student: student, Week: week}
	var status string
	var reviewedAt time.Time
	if err := row.Scan(&status, &a.Notes, &a.ReviewedBy, &reviewedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			a.Status = StatusPending
			return a, nil
		}
		return Approval{}, err
	}
	a.Status = Status(status)
	a.ReviewedAt = &reviewedAt
	return a, nil
}

// StatusesForWeek maps student id to stored status for one team and week.
// Students without a row are absent from the map.
func (r *Repository) StatusesForWeek(ctx context.Context, team, week string) (map[string]Status, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(`
		SELECT student_id, status FROM weekly_approvals WHERE team_id = ? AND week = ?
	`), team, week)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]Status{}
	for rows.Next() {
		var student, status string
		if err := rows.Scan(&student, &status); err != nil {
			return nil, err
		}
		out[student] = Status(status)
	}
	return out, rows.Err()
}

// Upsert stores a decision. Repeating the stored decision leaves the row
// untouched and reports changed=false. Concurrent decisions are last write
// wins.
func (r *Repository) Upsert(ctx context.Context, a Approval) (bool, error) {
	reviewedAt := time.Now().UTC()
	if a.ReviewedAt != nil {
		reviewedAt = a.ReviewedAt.UTC()
	}
	res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO weekly_approvals (team_id, student_id, week, status, notes, reviewed_by, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (team_id, student_id, week) DO UPDATE SET
			status = EXCLUDED.status,
			notes = EXCLUDED.notes,
			reviewed_by = EXCLUDED.reviewed_by,
			reviewed_at = EXCLUDED.reviewed_at
		WHERE weekly_approvals.status <> EXCLUDED.status
			OR weekly_approvals.notes <> EXCLUDED.notes
			OR weekly_approvals.reviewed_by <> EXCLUDED.reviewed_by
	`), a.Team, a.Student, a.Week, string(a.Status), a.Notes, a.ReviewedBy, reviewedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AppendHistory writes a decision to the log. Entries are keyed by id so a
// redelivered event is stored once.
func (r *Repository) AppendHistory(ctx context.Context, e HistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.DecidedAt.IsZero() {
		e.DecidedAt = time.Now().UTC()
	}
	_, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO weekly_approval_history (id, team_id, student_id, week, status, notes, reviewed_by, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`), e.ID, e.Team, e.Student, e.Week, string(e.Status), e.Notes, e.ReviewedBy, e.DecidedAt.UTC())
	return err
}

// History lists logged decisions oldest first.
func (r *Repository) History(ctx context.Context, team, student, week string) ([]HistoryEntry, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(`
		SELECT id, status, notes, reviewed_by, decided_at
		FROM weekly_approval_history
		WHERE team_id = ? AND student_id = ? AND week = ?
		ORDER BY decided_at, id
	`), team, student, week)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []HistoryEntry{}
	for rows.Next() {
		e := HistoryEntry{Team: team, Student: student, Week: week}
		var status string
		if err := rows.Scan(&e.ID, &status, &e.Notes, &e.ReviewedBy, &e.DecidedAt); err != nil {
			return nil, err
		}
		e.Status = Status(status)
		out = append(out, e)
	}
	return out, rows.Err()
}
