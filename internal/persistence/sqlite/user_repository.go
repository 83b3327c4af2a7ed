package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/team-attendance/internal/persistence"
)

// UserRepository implements persistence.UserRepository using SQLite.
type UserRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewUserRepository creates a new SQLite user repository.
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const userColumns = `id, email, display_name, password_hash, disabled, created_at, updated_at`

// CreateUser inserts a new user account.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.Email == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.DisplayName,
		user.PasswordHash,
		boolToInt(user.Disabled),
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	return r.scanUser(r.helper.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
}

// GetUserByEmail retrieves a user by email address.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	return r.scanUser(r.helper.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email,
	))
}

func (r *UserRepository) scanUser(row *sql.Row) (persistence.User, error) {
	var user persistence.User
	var disabled int
	var createdAt, updatedAt string

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&disabled,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.User{}, r.mapper.MapError(err)
	}

	user.Disabled = disabled != 0
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.User{}, err
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.User{}, err
	}
	return user, nil
}
