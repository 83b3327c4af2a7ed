package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/team-attendance/internal/persistence"
)

// ExpectedAttendeeRepository implements
// persistence.ExpectedAttendeeRepository using SQLite.
type ExpectedAttendeeRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewExpectedAttendeeRepository creates a new SQLite expected-attendee
// repository.
func NewExpectedAttendeeRepository(pool *ConnectionPool) *ExpectedAttendeeRepository {
	return &ExpectedAttendeeRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// ReplaceExpected swaps the expected set of one occurrence atomically.
func (r *ExpectedAttendeeRepository) ReplaceExpected(ctx context.Context, eventID, date string, attendees []persistence.ExpectedAttendee) error {
	if eventID == "" || date == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := r.helper.ExecTx(tx,
			`DELETE FROM expected_attendees WHERE event_id = ? AND date = ?`, eventID, date,
		); err != nil {
			return r.mapper.MapError(err)
		}
		for _, row := range attendees {
			if _, err := r.helper.ExecTx(tx,
				`INSERT INTO expected_attendees (event_id, date, user_id, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
				eventID, date, row.UserID, row.Reason, formatTime(row.CreatedAt),
			); err != nil {
				return r.mapper.MapError(err)
			}
		}
		return nil
	})
}

// ListExpected returns the expected set of one occurrence ordered by user.
func (r *ExpectedAttendeeRepository) ListExpected(ctx context.Context, eventID, date string) ([]persistence.ExpectedAttendee, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT event_id, date, user_id, reason, created_at FROM expected_attendees
		 WHERE event_id = ? AND date = ? ORDER BY user_id`,
		eventID, date,
	)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	attendees := make([]persistence.ExpectedAttendee, 0)
	for rows.Next() {
		var row persistence.ExpectedAttendee
		var createdAt string
		if err := rows.Scan(&row.EventID, &row.Date, &row.UserID, &row.Reason, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if row.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		attendees = append(attendees, row)
	}
	return attendees, rows.Err()
}

// DeleteExpectedFrom removes expected rows for occurrences on or after
// fromDate so they are recomputed with fresh group data.
func (r *ExpectedAttendeeRepository) DeleteExpectedFrom(ctx context.Context, eventID, fromDate string) error {
	_, err := r.helper.Exec(ctx,
		`DELETE FROM expected_attendees WHERE event_id = ? AND date >= ?`, eventID, fromDate,
	)
	return r.mapper.MapError(err)
}
