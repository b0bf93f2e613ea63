// Package roster reads team composition owned by the registration system.
package roster

import (
	"context"
	"database/sql"
	"errors"

	"kkn/internal/apperror"
	"kkn/internal/store"
)

// Member is a student on a team roster.
type Member struct {
	UserID string `json:"user"`
	Name   string `json:"userName"`
}

// Roster is a team's leader, members in stored order and supervisor.
type Roster struct {
	TeamID       string   `json:"team"`
	TeamName     string   `json:"teamName"`
	Leader       Member   `json:"leader"`
	Members      []Member `json:"members"`
	SupervisorID string   `json:"supervisorId"`
}

// Team is a team's identity without its members.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Ordered returns the leader followed by the members in stored order. A
// leader that is also listed as a member appears once.
func (r *Roster) Ordered() []Member {
	out := make([]Member, 0, len(r.Members)+1)
	seen := make(map[string]struct{}, len(r.Members)+1)
	if r.Leader.UserID != "" {
		out = append(out, r.Leader)
		seen[r.Leader.UserID] = struct{}{}
	}
	for _, m := range r.Members {
		if _, dup := seen[m.UserID]; dup {
			continue
		}
		seen[m.UserID] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Find returns the roster entry for userID.
func (r *Roster) Find(userID string) (Member, bool) {
	if r.Leader.UserID == userID && userID != "" {
		return r.Leader, true
	}
	for _, m := range r.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

// Has reports whether userID is the leader or a member.
func (r *Roster) Has(userID string) bool {
	_, ok := r.Find(userID)
	return ok
}

// Source resolves rosters. Implementations return apperror NotFound for unknown teams.
type Source interface {
	GetTeamRoster(ctx context.Context, teamID string) (*Roster, error)
}

// Repository reads rosters from the shared registration tables.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

// GetTeamRoster loads the leader, members and supervisor of a team.
func (r *Repository) GetTeamRoster(ctx context.Context, teamID string) (*Roster, error) {
	row := r.db.Client.QueryRowContext(ctx, r.db.Rebind(`
		SELECT t.id, t.name, t.supervisor_id, t.leader_id, COALESCE(u.name, '')
		FROM teams t
		LEFT JOIN users u ON u.id = t.leader_id
		WHERE t.id = ?
	`), teamID)
	ros := Roster{}
	if err := row.Scan(&ros.TeamID, &ros.TeamName, &ros.SupervisorID, &ros.Leader.UserID, &ros.Leader.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("team %q not found", teamID)
		}
		return nil, err
	}
	ros.Leader.Name = displayName(ros.Leader)

	rows, err := r.db.Client.QueryContext(ctx, r.db.Rebind(`
		SELECT m.user_id, COALESCE(u.name, '')
		FROM team_members m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.team_id = ?
		ORDER BY m.position, m.user_id
	`), teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Name); err != nil {
			return nil, err
		}
		m.Name = displayName(m)
		ros.Members = append(ros.Members, m)
	}
	return &ros, rows.Err()
}

// ListTeams returns every team ordered by name.
func (r *Repository) ListTeams(ctx context.Context) ([]Team, error) {
	rows, err := r.db.Client.QueryContext(ctx, `SELECT id, name FROM teams ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var teams []Team
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func displayName(m Member) string {
	if m.Name != "" {
		return m.Name
	}
	return m.UserID
}
