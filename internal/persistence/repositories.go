package persistence

import (
	"context"
	"time"
)

// EventRepository stores event definitions and their per-date exceptions.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	UpdateEvent(ctx context.Context, event Event) error
	// SetEventLocked toggles the locked flag without touching other fields.
	SetEventLocked(ctx context.Context, id string, locked bool, updatedAt time.Time) error
	// DeleteEvent removes the event and cascades its exceptions, group
	// assignments and expected-attendee rows.
	DeleteEvent(ctx context.Context, id string) error
	// AssignEventGroups replaces the set of groups assigned to the event.
	AssignEventGroups(ctx context.Context, eventID string, groupIDs []string, updatedAt time.Time) error

	CreateException(ctx context.Context, exception OccurrenceException) error
	ListExceptions(ctx context.Context, eventID string) ([]OccurrenceException, error)
}

// RosterRepository exposes team membership reads and the minimal writes the
// admin surface needs.
type RosterRepository interface {
	UpsertTeamMember(ctx context.Context, member TeamMember) error
	GetTeamMember(ctx context.Context, teamID, userID string) (TeamMember, error)
	ListTeamMembers(ctx context.Context, teamID string) ([]TeamMember, error)
}

// GroupRepository stores attendance groups and their membership as rows,
// enabling constant-time membership checks.
type GroupRepository interface {
	CreateGroup(ctx context.Context, group Group) error
	GetGroup(ctx context.Context, id string) (Group, error)
	AddGroupMember(ctx context.Context, groupID, userID string, addedAt time.Time) error
	RemoveGroupMember(ctx context.Context, groupID, userID string) error
	ListGroupMembers(ctx context.Context, groupID string) ([]string, error)
	ListUserGroups(ctx context.Context, teamID, userID string) ([]string, error)
}

// ExpectedAttendeeRepository stores the precomputed expected set per
// occurrence.
type ExpectedAttendeeRepository interface {
	// ReplaceExpected swaps the expected set of one occurrence atomically.
	ReplaceExpected(ctx context.Context, eventID, date string, rows []ExpectedAttendee) error
	ListExpected(ctx context.Context, eventID, date string) ([]ExpectedAttendee, error)
	// DeleteExpectedFrom removes expected rows for occurrences on or after
	// the given date, forcing recomputation.
	DeleteExpectedFrom(ctx context.Context, eventID, fromDate string) error
}

// AttendanceWrite bundles the pieces of one atomic check-in commit: the
// record insert, its audit entries and the consumed token nonce, applied in
// a single transaction.
type AttendanceWrite struct {
	Record AttendanceRecord
	Audit  []AuditEntry
	Nonce  *ConsumedNonce
}

// AttendanceRepository owns attendance records and their audit trail. Audit
// entries can only be inserted through the commit paths here; no update or
// delete operation exists for them.
type AttendanceRepository interface {
	// CreateRecord performs an insert-or-conflict on the (event, date, user)
	// uniqueness constraint. When an active record already exists, created is
	// false and the existing record is returned unchanged; nothing else is
	// written in that case.
	CreateRecord(ctx context.Context, write AttendanceWrite) (record AttendanceRecord, created bool, err error)
	// UpdateRecord applies a mutation plus its audit entries atomically.
	UpdateRecord(ctx context.Context, write AttendanceWrite) (AttendanceRecord, error)
	GetRecord(ctx context.Context, eventID, date, userID string) (AttendanceRecord, error)
	ListRecords(ctx context.Context, eventID, date string) ([]AttendanceRecord, error)
	// ListAudit returns audit entries for the occurrence ordered by
	// timestamp ascending.
	ListAudit(ctx context.Context, eventID, date string) ([]AuditEntry, error)
	// GetConsumedNonce reports who consumed a token nonce, if anyone.
	GetConsumedNonce(ctx context.Context, nonce string) (ConsumedNonce, error)
	// FingerprintFlagged reports whether the device fingerprint appears on a
	// previously flagged record.
	FingerprintFlagged(ctx context.Context, fingerprint string) (bool, error)
}

// UserRepository exposes account lookups for authentication.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) error
}
