package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/team-attendance/internal/persistence"
)

// AttendanceRepository implements persistence.AttendanceRepository using
// SQLite. Audit entries are written only inside the commit paths of this
// repository; the package exposes no update or delete statement for them.
type AttendanceRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewAttendanceRepository creates a new SQLite attendance repository.
func NewAttendanceRepository(pool *ConnectionPool) *AttendanceRepository {
	return &AttendanceRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const recordColumns = `id, event_id, date, user_id, method, status, checked_in_at, checked_out_at,
	latitude, longitude, distance_meters, device_fingerprint, flagged, flag_reason, notes,
	deleted_at, created_at, updated_at`

// CreateRecord inserts the record, its audit entries and the consumed nonce
// in one transaction. The (event, date, user) uniqueness constraint decides
// races: exactly one caller creates the record, every other caller gets the
// surviving record back with created=false and writes nothing.
func (r *AttendanceRepository) CreateRecord(ctx context.Context, write persistence.AttendanceWrite) (persistence.AttendanceRecord, bool, error) {
	record := write.Record
	if record.ID == "" || record.EventID == "" || record.Date == "" || record.UserID == "" {
		return persistence.AttendanceRecord{}, false, persistence.ErrConstraintViolation
	}

	var result persistence.AttendanceRecord
	var created bool

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO attendance_records (` + recordColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (event_id, date, user_id) DO NOTHING
		`
		res, err := r.helper.ExecTx(tx, query,
			record.ID,
			record.EventID,
			record.Date,
			record.UserID,
			record.Method,
			record.Status,
			formatTime(record.CheckedInAt),
			formatTimePtr(record.CheckedOutAt),
			nullFloat(record.Latitude),
			nullFloat(record.Longitude),
			nullFloat(record.DistanceMeters),
			nullString(record.DeviceFingerprint),
			boolToInt(record.Flagged),
			nullString(record.FlagReason),
			nullString(record.Notes),
			formatTimePtr(record.DeletedAt),
			formatTime(record.CreatedAt),
			formatTime(record.UpdatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return r.mapper.MapError(err)
		}
		if affected == 0 {
			// Lost the race or re-submitted: return the survivor untouched.
			existing, err := r.scanRecordTx(tx, record.EventID, record.Date, record.UserID)
			if err != nil {
				return err
			}
			result = existing
			created = false
			return nil
		}

		if err := r.insertAuditTx(tx, write.Audit); err != nil {
			return err
		}
		if write.Nonce != nil {
			if err := r.insertNonceTx(tx, *write.Nonce); err != nil {
				return err
			}
		}

		result = record
		created = true
		return nil
	})
	if err != nil {
		return persistence.AttendanceRecord{}, false, err
	}

	return result, created, nil
}

// UpdateRecord applies a mutation plus its audit entries atomically. Both
// writes succeed or neither does.
func (r *AttendanceRepository) UpdateRecord(ctx context.Context, write persistence.AttendanceWrite) (persistence.AttendanceRecord, error) {
	record := write.Record
	if record.ID == "" {
		return persistence.AttendanceRecord{}, persistence.ErrConstraintViolation
	}

	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE attendance_records
			SET method = ?, status = ?, checked_in_at = ?, checked_out_at = ?, latitude = ?, longitude = ?,
				distance_meters = ?, device_fingerprint = ?, flagged = ?, flag_reason = ?, notes = ?,
				deleted_at = ?, updated_at = ?
			WHERE id = ?
		`
		res, err := r.helper.ExecTx(tx, query,
			record.Method,
			record.Status,
			formatTime(record.CheckedInAt),
			formatTimePtr(record.CheckedOutAt),
			nullFloat(record.Latitude),
			nullFloat(record.Longitude),
			nullFloat(record.DistanceMeters),
			nullString(record.DeviceFingerprint),
			boolToInt(record.Flagged),
			nullString(record.FlagReason),
			nullString(record.Notes),
			formatTimePtr(record.DeletedAt),
			formatTime(record.UpdatedAt),
			record.ID,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return r.mapper.MapError(err)
		} else if affected == 0 {
			return persistence.ErrNotFound
		}
		return r.insertAuditTx(tx, write.Audit)
	})
	if err != nil {
		return persistence.AttendanceRecord{}, err
	}

	return record, nil
}

// GetRecord retrieves the active record for an (occurrence, user) pair.
// Soft-deleted records are invisible to reads.
func (r *AttendanceRepository) GetRecord(ctx context.Context, eventID, date, userID string) (persistence.AttendanceRecord, error) {
	query := `
		SELECT ` + recordColumns + ` FROM attendance_records
		WHERE event_id = ? AND date = ? AND user_id = ? AND deleted_at IS NULL
	`
	return r.scanRecord(r.helper.QueryRow(ctx, query, eventID, date, userID))
}

// ListRecords returns the active records for one occurrence ordered by user.
func (r *AttendanceRepository) ListRecords(ctx context.Context, eventID, date string) ([]persistence.AttendanceRecord, error) {
	query := `
		SELECT ` + recordColumns + ` FROM attendance_records
		WHERE event_id = ? AND date = ? AND deleted_at IS NULL
		ORDER BY user_id
	`
	rows, err := r.helper.Query(ctx, query, eventID, date)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	records := make([]persistence.AttendanceRecord, 0)
	for rows.Next() {
		record, err := r.scanRecordRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// ListAudit returns the occurrence's audit entries ordered by timestamp
// ascending.
func (r *AttendanceRepository) ListAudit(ctx context.Context, eventID, date string) ([]persistence.AuditEntry, error) {
	query := `
		SELECT id, record_id, event_id, date, actor_id, action, field, old_value, new_value, created_at
		FROM audit_log
		WHERE event_id = ? AND date = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.helper.Query(ctx, query, eventID, date)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	entries := make([]persistence.AuditEntry, 0)
	for rows.Next() {
		var entry persistence.AuditEntry
		var createdAt string
		if err := rows.Scan(
			&entry.ID, &entry.RecordID, &entry.EventID, &entry.Date,
			&entry.ActorID, &entry.Action, &entry.Field, &entry.OldValue, &entry.NewValue, &createdAt,
		); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetConsumedNonce reports who consumed a token nonce, if anyone.
func (r *AttendanceRepository) GetConsumedNonce(ctx context.Context, nonce string) (persistence.ConsumedNonce, error) {
	var consumed persistence.ConsumedNonce
	var consumedAt string

	err := r.helper.QueryRow(ctx,
		`SELECT nonce, event_id, date, user_id, consumed_at FROM consumed_nonces WHERE nonce = ?`, nonce,
	).Scan(&consumed.Nonce, &consumed.EventID, &consumed.Date, &consumed.UserID, &consumedAt)
	if err != nil {
		return persistence.ConsumedNonce{}, r.mapper.MapError(err)
	}
	if consumed.ConsumedAt, err = parseTime(consumedAt); err != nil {
		return persistence.ConsumedNonce{}, err
	}
	return consumed, nil
}

// FingerprintFlagged reports whether the fingerprint appears on any
// previously flagged record, soft-deleted ones included.
func (r *AttendanceRepository) FingerprintFlagged(ctx context.Context, fingerprint string) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}
	var count int
	err := r.helper.QueryRow(ctx,
		`SELECT COUNT(1) FROM attendance_records WHERE device_fingerprint = ? AND flagged = 1`, fingerprint,
	).Scan(&count)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return count > 0, nil
}

func (r *AttendanceRepository) insertAuditTx(tx *sql.Tx, entries []persistence.AuditEntry) error {
	for _, entry := range entries {
		if entry.ID == "" || entry.RecordID == "" {
			return persistence.ErrConstraintViolation
		}
		if _, err := r.helper.ExecTx(tx,
			`INSERT INTO audit_log (id, record_id, event_id, date, actor_id, action, field, old_value, new_value, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.RecordID, entry.EventID, entry.Date,
			entry.ActorID, entry.Action, entry.Field, entry.OldValue, entry.NewValue, formatTime(entry.CreatedAt),
		); err != nil {
			return r.mapper.MapError(err)
		}
	}
	return nil
}

func (r *AttendanceRepository) insertNonceTx(tx *sql.Tx, nonce persistence.ConsumedNonce) error {
	_, err := r.helper.ExecTx(tx,
		`INSERT INTO consumed_nonces (nonce, event_id, date, user_id, consumed_at) VALUES (?, ?, ?, ?, ?)`,
		nonce.Nonce, nonce.EventID, nonce.Date, nonce.UserID, formatTime(nonce.ConsumedAt),
	)
	return r.mapper.MapError(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *AttendanceRepository) scanRecord(row *sql.Row) (persistence.AttendanceRecord, error) {
	return r.scanFrom(row)
}

func (r *AttendanceRepository) scanRecordRows(rows *sql.Rows) (persistence.AttendanceRecord, error) {
	return r.scanFrom(rows)
}

func (r *AttendanceRepository) scanRecordTx(tx *sql.Tx, eventID, date, userID string) (persistence.AttendanceRecord, error) {
	query := `
		SELECT ` + recordColumns + ` FROM attendance_records
		WHERE event_id = ? AND date = ? AND user_id = ?
	`
	return r.scanFrom(r.helper.QueryRowTx(tx, query, eventID, date, userID))
}

func (r *AttendanceRepository) scanFrom(scanner rowScanner) (persistence.AttendanceRecord, error) {
	var record persistence.AttendanceRecord
	var checkedIn, createdAt, updatedAt string
	var checkedOut, fingerprint, flagReason, notes, deletedAt sql.NullString
	var latitude, longitude, distance sql.NullFloat64
	var flagged int

	err := scanner.Scan(
		&record.ID,
		&record.EventID,
		&record.Date,
		&record.UserID,
		&record.Method,
		&record.Status,
		&checkedIn,
		&checkedOut,
		&latitude,
		&longitude,
		&distance,
		&fingerprint,
		&flagged,
		&flagReason,
		&notes,
		&deletedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.AttendanceRecord{}, r.mapper.MapError(err)
	}

	record.Latitude = floatPtr(latitude)
	record.Longitude = floatPtr(longitude)
	record.DistanceMeters = floatPtr(distance)
	record.DeviceFingerprint = stringPtr(fingerprint)
	record.FlagReason = stringPtr(flagReason)
	record.Notes = stringPtr(notes)
	record.Flagged = flagged != 0

	if record.CheckedInAt, err = parseTime(checkedIn); err != nil {
		return persistence.AttendanceRecord{}, err
	}
	if record.CheckedOutAt, err = parseTimePtr(checkedOut); err != nil {
		return persistence.AttendanceRecord{}, err
	}
	if record.DeletedAt, err = parseTimePtr(deletedAt); err != nil {
		return persistence.AttendanceRecord{}, err
	}
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.AttendanceRecord{}, err
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.AttendanceRecord{}, err
	}

	return record, nil
}
