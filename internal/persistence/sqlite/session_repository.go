package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/example/team-attendance/internal/persistence"
)

// SessionRepository implements persistence.SessionRepository using SQLite.
type SessionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const sessionColumns = `id, user_id, token, fingerprint, expires_at, created_at, updated_at, revoked_at`

// CreateSession inserts a new session.
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if session.ID == "" || session.UserID == "" || session.Token == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.Token,
		session.Fingerprint,
		formatTime(session.ExpiresAt),
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
		formatTimePtr(session.RevokedAt),
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	return session, nil
}

// GetSession retrieves a session by its opaque token.
func (r *SessionRepository) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	return r.scanSession(r.helper.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, token,
	))
}

// RevokeSession marks the session revoked and returns the updated row.
func (r *SessionRepository) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	result, err := r.helper.Exec(ctx,
		`UPDATE sessions SET revoked_at = ?, updated_at = ? WHERE token = ? AND revoked_at IS NULL`,
		formatTime(revokedAt), formatTime(revokedAt), token,
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	} else if affected == 0 {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return r.GetSession(ctx, token)
}

// DeleteExpiredSessions removes sessions whose expiry has passed.
func (r *SessionRepository) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	_, err := r.helper.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, formatTime(reference),
	)
	return r.mapper.MapError(err)
}

func (r *SessionRepository) scanSession(row *sql.Row) (persistence.Session, error) {
	var session persistence.Session
	var expiresAt, createdAt, updatedAt string
	var revokedAt sql.NullString

	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.Fingerprint,
		&expiresAt,
		&createdAt,
		&updatedAt,
		&revokedAt,
	)
	if err != nil {
		return persistence.Session{}, r.mapper.MapError(err)
	}

	if session.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return persistence.Session{}, err
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Session{}, err
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Session{}, err
	}
	if session.RevokedAt, err = parseTimePtr(revokedAt); err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}
