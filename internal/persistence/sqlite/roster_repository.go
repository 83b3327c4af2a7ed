package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/team-attendance/internal/persistence"
)

// RosterRepository implements persistence.RosterRepository using SQLite.
type RosterRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewRosterRepository creates a new SQLite roster repository.
func NewRosterRepository(pool *ConnectionPool) *RosterRepository {
	return &RosterRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// UpsertTeamMember inserts or replaces one roster row.
func (r *RosterRepository) UpsertTeamMember(ctx context.Context, member persistence.TeamMember) error {
	if member.TeamID == "" || member.UserID == "" || member.Role == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO team_members (team_id, user_id, role, scope_group_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (team_id, user_id) DO UPDATE SET role = excluded.role, scope_group_id = excluded.scope_group_id
	`
	_, err := r.helper.Exec(ctx, query,
		member.TeamID,
		member.UserID,
		member.Role,
		nullString(member.ScopeGroupID),
		formatTime(member.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// GetTeamMember retrieves one roster row.
func (r *RosterRepository) GetTeamMember(ctx context.Context, teamID, userID string) (persistence.TeamMember, error) {
	query := `
		SELECT team_id, user_id, role, scope_group_id, created_at
		FROM team_members
		WHERE team_id = ? AND user_id = ?
	`
	return r.scanMember(r.helper.QueryRow(ctx, query, teamID, userID))
}

// ListTeamMembers returns the full roster ordered by user id.
func (r *RosterRepository) ListTeamMembers(ctx context.Context, teamID string) ([]persistence.TeamMember, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT team_id, user_id, role, scope_group_id, created_at FROM team_members WHERE team_id = ? ORDER BY user_id`,
		teamID,
	)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	members := make([]persistence.TeamMember, 0)
	for rows.Next() {
		var member persistence.TeamMember
		var scopeGroup sql.NullString
		var createdAt string
		if err := rows.Scan(&member.TeamID, &member.UserID, &member.Role, &scopeGroup, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		member.ScopeGroupID = stringPtr(scopeGroup)
		if member.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

func (r *RosterRepository) scanMember(row *sql.Row) (persistence.TeamMember, error) {
	var member persistence.TeamMember
	var scopeGroup sql.NullString
	var createdAt string

	err := row.Scan(&member.TeamID, &member.UserID, &member.Role, &scopeGroup, &createdAt)
	if err != nil {
		return persistence.TeamMember{}, r.mapper.MapError(err)
	}
	member.ScopeGroupID = stringPtr(scopeGroup)
	if member.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.TeamMember{}, err
	}
	return member, nil
}
