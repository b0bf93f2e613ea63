package attendance

import (
	"strings"
	"time"

	"kkn/internal/apperror"
	"kkn/internal/week"
)

// Status is the outcome recorded for a student on a day.
type Status string

const (
	StatusPresent    Status = "present"
	StatusPermission Status = "permission"
	StatusAlpha      Status = "alpha"
)

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPresent, StatusPermission, StatusAlpha:
		return st, nil
	default:
		return "", apperror.Validation("unknown attendance status %q", s)
	}
}

// Record is one check-in of a student for a team on a calendar date.
type Record struct {
	Team      string     `json:"team"`
	User      string     `json:"user"`
	Date      string     `json:"date"`
	Timestamp time.Time  `json:"timestamp"`
	Status    Status     `json:"status"`
	Excuse    string     `json:"excuse,omitempty"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	PhotoURL  string     `json:"photoUrl,omitempty"`
	UpdatedBy string     `json:"updatedBy,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Validate checks the fields a stored record must satisfy.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Team) == "" || strings.TrimSpace(r.User) == "" {
		return apperror.Validation("team and user are required")
	}
	if _, err := week.ParseDate(r.Date); err != nil {
		return err
	}
	if _, err := ParseStatus(string(r.Status)); err != nil {
		return err
	}
	if r.Status == StatusPermission && strings.TrimSpace(r.Excuse) == "" {
		return apperror.Validation("an excuse is required when status is permission")
	}
	if (r.Latitude == nil) != (r.Longitude == nil) {
		return apperror.Validation("latitude and longitude must be given together")
	}
	if r.Latitude != nil {
		if *r.Latitude < -90 || *r.Latitude > 90 || *r.Longitude < -180 || *r.Longitude > 180 {
			return apperror.Validation("coordinates out of range")
		}
	}
	return nil
}
