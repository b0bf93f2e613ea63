package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"kkn/internal/apperror"
	"kkn/internal/store"
)

// Repository persists attendance records.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `team_id, user_id, date, recorded_at, status, excuse, latitude, longitude, photo_url, updated_by, updated_at`

// Insert stores a new record. The primary key on (team, user, date) decides
// concurrent double submits: the first writer wins and later ones get a
// ConflictError.
func (r *Repository) Insert(ctx context.Context, rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	res, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO attendance (team_id, user_id, date, recorded_at, status, excuse, latitude, longitude, photo_url, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (team_id, user_id, date) DO NOTHING
	`), rec.Team, rec.User, rec.Date, rec.Timestamp.UTC(), string(rec.Status), rec.Excuse, rec.Latitude, rec.Longitude, rec.PhotoURL, rec.UpdatedBy)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.Conflict("attendance already recorded for %s on %s in team %s", rec.User, rec.Date, rec.Team)
	}
	return nil
}

// Upsert writes rec in place of any existing record for its key. The
// original capture time is kept when a record is corrected.
func (r *Repository) Upsert(ctx context.Context, rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	now := time.Now().UTC()
	_, err := r.db.Client.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO attendance (team_id, user_id, date, recorded_at, status, excuse, latitude, longitude, photo_url, updated_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (team_id, user_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			excuse = EXCLUDED.excuse,
			latitude = COALESCE(EXCLUDED.latitude, attendance.latitude),
			longitude = COALESCE(EXCLUDED.longitude, attendance.longitude),
			photo_url = CASE WHEN EXCLUDED.photo_url = '' THEN attendance.photo_url ELSE EXCLUDED.photo_url END,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
	`), rec.Team, rec.User, rec.Date, rec.Timestamp.UTC(), string(rec.Status), rec.Excuse, rec.Latitude, rec.Longitude, rec.PhotoURL, rec.UpdatedBy, now)
	return err
}

// Get returns the record for the key, or nil when none exists.
func (r *Repository) Get(ctx context.Context, team, user, date string) (*Record, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`
		SELECT `+recordColumns+`
		FROM attendance
		WHERE team_id = ? AND user_id = ? AND date = ?
	`), team, user, date)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListRange returns a team's records with from <= date <= to, ordered by
// user, date and capture time.
func (r *Repository) ListRange(ctx context.Context, team, from, to string) ([]Record, error) {
	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(`
		SELECT `+recordColumns+`
		FROM attendance
		WHERE team_id = ? AND date >= ? AND date <= ?
		ORDER BY user_id, date, recorded_at
	`), team, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var rec Record
	var status string
	err := s.Scan(&rec.Team, &rec.User, &rec.Date, &rec.Timestamp, &status, &rec.Excuse,
		&rec.Latitude, &rec.Longitude, &rec.PhotoURL, &rec.UpdatedBy, &rec.UpdatedAt)
	rec.Status = Status(status)
	return rec, err
}
