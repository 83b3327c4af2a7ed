package sqlite

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/example/team-attendance/internal/persistence"
)

// EventRepository implements persistence.EventRepository using SQLite.
type EventRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewEventRepository creates a new SQLite event repository.
func NewEventRepository(pool *ConnectionPool) *EventRepository {
	return &EventRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const eventColumns = `id, team_id, creator_id, title, start_time, end_time, latitude, longitude,
	radius_meters, frequency, weekdays, until_date, timezone, visibility, locked, created_at, updated_at`

// CreateEvent inserts an event definition with its group assignments.
func (r *EventRepository) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" || event.TeamID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO events (` + eventColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := r.helper.ExecTx(tx, query,
			event.ID,
			event.TeamID,
			event.CreatorID,
			event.Title,
			formatTime(event.Start),
			formatTime(event.End),
			nullFloat(event.Latitude),
			nullFloat(event.Longitude),
			event.RadiusMeters,
			event.Frequency,
			encodeWeekdays(event.Weekdays),
			formatTimePtr(event.Until),
			event.Timezone,
			event.Visibility,
			boolToInt(event.Locked),
			formatTime(event.CreatedAt),
			formatTime(event.UpdatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return r.replaceGroupsTx(tx, event.ID, event.GroupIDs)
	})
}

// GetEvent retrieves an event definition by ID, including its group
// assignments.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = ?`

	event, err := r.scanEvent(r.helper.QueryRow(ctx, query, id))
	if err != nil {
		return persistence.Event{}, err
	}

	rows, err := r.helper.Query(ctx, `SELECT group_id FROM event_groups WHERE event_id = ? ORDER BY group_id`, id)
	if err != nil {
		return persistence.Event{}, r.mapper.MapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var groupID string
		if err := rows.Scan(&groupID); err != nil {
			return persistence.Event{}, r.mapper.MapError(err)
		}
		event.GroupIDs = append(event.GroupIDs, groupID)
	}
	if err := rows.Err(); err != nil {
		return persistence.Event{}, r.mapper.MapError(err)
	}

	return event, nil
}

// UpdateEvent updates the mutable definition fields. Exceptions are keyed
// by absolute date and are untouched by definition edits.
func (r *EventRepository) UpdateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE events
			SET title = ?, start_time = ?, end_time = ?, latitude = ?, longitude = ?,
				radius_meters = ?, frequency = ?, weekdays = ?, until_date = ?, timezone = ?,
				visibility = ?, locked = ?, updated_at = ?
			WHERE id = ?
		`
		result, err := r.helper.ExecTx(tx, query,
			event.Title,
			formatTime(event.Start),
			formatTime(event.End),
			nullFloat(event.Latitude),
			nullFloat(event.Longitude),
			event.RadiusMeters,
			event.Frequency,
			encodeWeekdays(event.Weekdays),
			formatTimePtr(event.Until),
			event.Timezone,
			event.Visibility,
			boolToInt(event.Locked),
			formatTime(event.UpdatedAt),
			event.ID,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if affected, err := result.RowsAffected(); err != nil {
			return r.mapper.MapError(err)
		} else if affected == 0 {
			return persistence.ErrNotFound
		}
		return r.replaceGroupsTx(tx, event.ID, event.GroupIDs)
	})
}

// SetEventLocked toggles the locked flag only.
func (r *EventRepository) SetEventLocked(ctx context.Context, id string, locked bool, updatedAt time.Time) error {
	result, err := r.helper.Exec(ctx,
		`UPDATE events SET locked = ?, updated_at = ? WHERE id = ?`,
		boolToInt(locked), formatTime(updatedAt), id,
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

// DeleteEvent removes the event. Exceptions, group assignments and expected
// rows cascade via foreign keys, leaving no orphan rows.
func (r *EventRepository) DeleteEvent(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM events WHERE id = ?`, id)
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

// AssignEventGroups replaces the group assignment set for the event.
func (r *EventRepository) AssignEventGroups(ctx context.Context, eventID string, groupIDs []string, updatedAt time.Time) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := r.helper.ExecTx(tx, `UPDATE events SET updated_at = ? WHERE id = ?`, formatTime(updatedAt), eventID)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if affected, err := result.RowsAffected(); err != nil {
			return r.mapper.MapError(err)
		} else if affected == 0 {
			return persistence.ErrNotFound
		}
		return r.replaceGroupsTx(tx, eventID, groupIDs)
	})
}

// CreateException records the deletion of one recurring date.
func (r *EventRepository) CreateException(ctx context.Context, exception persistence.OccurrenceException) error {
	if exception.EventID == "" || exception.Date == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx,
		`INSERT INTO occurrence_exceptions (event_id, date, created_by, created_at) VALUES (?, ?, ?, ?)`,
		exception.EventID, exception.Date, exception.CreatedBy, formatTime(exception.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// ListExceptions returns the exception set for an event ordered by date.
func (r *EventRepository) ListExceptions(ctx context.Context, eventID string) ([]persistence.OccurrenceException, error) {
	rows, err := r.helper.Query(ctx,
		`SELECT event_id, date, created_by, created_at FROM occurrence_exceptions WHERE event_id = ? ORDER BY date`,
		eventID,
	)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	exceptions := make([]persistence.OccurrenceException, 0)
	for rows.Next() {
		var exc persistence.OccurrenceException
		var createdAt string
		if err := rows.Scan(&exc.EventID, &exc.Date, &exc.CreatedBy, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if exc.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		exceptions = append(exceptions, exc)
	}
	return exceptions, rows.Err()
}

func (r *EventRepository) replaceGroupsTx(tx *sql.Tx, eventID string, groupIDs []string) error {
	if _, err := r.helper.ExecTx(tx, `DELETE FROM event_groups WHERE event_id = ?`, eventID); err != nil {
		return r.mapper.MapError(err)
	}
	for _, groupID := range groupIDs {
		if _, err := r.helper.ExecTx(tx,
			`INSERT INTO event_groups (event_id, group_id) VALUES (?, ?)`,
			eventID, groupID,
		); err != nil {
			return r.mapper.MapError(err)
		}
	}
	return nil
}

func (r *EventRepository) scanEvent(row *sql.Row) (persistence.Event, error) {
	var event persistence.Event
	var startStr, endStr, createdStr, updatedStr, weekdays string
	var until sql.NullString
	var latitude, longitude sql.NullFloat64
	var locked int

	err := row.Scan(
		&event.ID,
		&event.TeamID,
		&event.CreatorID,
		&event.Title,
		&startStr,
		&endStr,
		&latitude,
		&longitude,
		&event.RadiusMeters,
		&event.Frequency,
		&weekdays,
		&until,
		&event.Timezone,
		&event.Visibility,
		&locked,
		&createdStr,
		&updatedStr,
	)
	if err != nil {
		return persistence.Event{}, r.mapper.MapError(err)
	}

	event.Latitude = floatPtr(latitude)
	event.Longitude = floatPtr(longitude)
	event.Locked = locked != 0
	if event.Weekdays, err = decodeWeekdays(weekdays); err != nil {
		return persistence.Event{}, err
	}
	if event.Until, err = parseTimePtr(until); err != nil {
		return persistence.Event{}, err
	}
	if event.Start, err = parseTime(startStr); err != nil {
		return persistence.Event{}, err
	}
	if event.End, err = parseTime(endStr); err != nil {
		return persistence.Event{}, err
	}
	if event.CreatedAt, err = parseTime(createdStr); err != nil {
		return persistence.Event{}, err
	}
	if event.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return persistence.Event{}, err
	}

	return event, nil
}

func encodeWeekdays(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, 0, len(days))
	for _, day := range days {
		parts = append(parts, strconv.Itoa(int(day)))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(value string) ([]time.Weekday, error) {
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	days := make([]time.Weekday, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		days = append(days, time.Weekday(n))
	}
	return days, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
