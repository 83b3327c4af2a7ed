package sqlite

import (
	"context"
	"time"

	"github.com/example/team-attendance/internal/persistence"
)

// GroupRepository implements persistence.GroupRepository using SQLite.
type GroupRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewGroupRepository creates a new SQLite group repository.
func NewGroupRepository(pool *ConnectionPool) *GroupRepository {
	return &GroupRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateGroup inserts an attendance group.
func (r *GroupRepository) CreateGroup(ctx context.Context, group persistence.Group) error {
	if group.ID == "" || group.TeamID == "" || group.Name == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx,
		`INSERT INTO attendance_groups (id, team_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		group.ID, group.TeamID, group.Name, formatTime(group.CreatedAt), formatTime(group.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetGroup retrieves a group by ID.
func (r *GroupRepository) GetGroup(ctx context.Context, id string) (persistence.Group, error) {
	var group persistence.Group
	var createdAt, updatedAt string

	err := r.helper.QueryRow(ctx,
		`SELECT id, team_id, name, created_at, updated_at FROM attendance_groups WHERE id = ?`, id,
	).Scan(&group.ID, &group.TeamID, &group.Name, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Group{}, r.mapper.MapError(err)
	}
	if group.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Group{}, err
	}
	if group.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Group{}, err
	}
	return group, nil
}

// AddGroupMember inserts one membership row; adding an existing member is a
// no-op.
func (r *GroupRepository) AddGroupMember(ctx context.Context, groupID, userID string, addedAt time.Time) error {
	if groupID == "" || userID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, userID, formatTime(addedAt),
	)
	return r.mapper.MapError(err)
}

// RemoveGroupMember deletes one membership row.
func (r *GroupRepository) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	result, err := r.helper.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return r.mapper.MapError(err)
	} else if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ListGroupMembers returns the user ids belonging to the group.
func (r *GroupRepository) ListGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT user_id FROM group_members WHERE group_id = ? ORDER BY user_id`, groupID,
	)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	users := make([]string, 0)
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, r.mapper.MapError(err)
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}

// ListUserGroups returns the group ids a user belongs to within a team.
func (r *GroupRepository) ListUserGroups(ctx context.Context, teamID, userID string) ([]string, error) {
	query := `
		SELECT gm.group_id
		FROM group_members gm
		JOIN attendance_groups g ON g.id = gm.group_id
		WHERE g.team_id = ? AND gm.user_id = ?
		ORDER BY gm.group_id
	`
	rows, err := r.helper.Query(ctx, query, teamID, userID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	groups := make([]string, 0)
	for rows.Next() {
		var groupID string
		if err := rows.Scan(&groupID); err != nil {
			return nil, r.mapper.MapError(err)
		}
		groups = append(groups, groupID)
	}
	return groups, rows.Err()
}
