package persistence

import "time"

// Event represents an event definition as stored. The engine treats it as
// read-only input, except for the Locked flag.
type Event struct {
	ID           string
	TeamID       string
	CreatorID    string
	Title        string
	Start        time.Time
	End          time.Time
	Latitude     *float64
	Longitude    *float64
	RadiusMeters float64
	Frequency    string
	Weekdays     []time.Weekday
	Until        *time.Time
	Timezone     string
	Visibility   string
	GroupIDs     []string
	Locked       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OccurrenceException marks a specific recurring date as deleted. Unique per
// (event, date); removed only when the whole event is deleted.
type OccurrenceException struct {
	EventID   string
	Date      string
	CreatedBy string
	CreatedAt time.Time
}

// TeamMember is one roster row with its role kind and optional scoping
// group for position coaches.
type TeamMember struct {
	TeamID       string
	UserID       string
	Role         string
	ScopeGroupID *string
	CreatedAt    time.Time
}

// Group is a coach-defined attendance group.
type Group struct {
	ID        string
	TeamID    string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExpectedAttendee is one precomputed row of an occurrence's expected set.
type ExpectedAttendee struct {
	EventID   string
	Date      string
	UserID    string
	Reason    string
	CreatedAt time.Time
}

// AttendanceRecord is the per-(occurrence, user) attendance state. Records
// are soft-deleted only; DeletedAt is set instead of removing the row.
type AttendanceRecord struct {
	ID                string
	EventID           string
	Date              string
	UserID            string
	Method            string
	Status            string
	CheckedInAt       time.Time
	CheckedOutAt      *time.Time
	Latitude          *float64
	Longitude         *float64
	DistanceMeters    *float64
	DeviceFingerprint *string
	Flagged           bool
	FlagReason        *string
	Notes             *string
	DeletedAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AuditEntry is one append-only mutation record. The storage layer exposes
// no update or delete path for this entity.
type AuditEntry struct {
	ID        string
	RecordID  string
	EventID   string
	Date      string
	ActorID   string
	Action    string
	Field     string
	OldValue  string
	NewValue  string
	CreatedAt time.Time
}

// ConsumedNonce records a token nonce spent by a successful check-in.
type ConsumedNonce struct {
	Nonce      string
	EventID    string
	Date       string
	UserID     string
	ConsumedAt time.Time
}

// User represents an account able to authenticate against the engine.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session represents an authentication session persisted for a user.
type Session struct {
	ID          string
	UserID      string
	Token       string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RevokedAt   *time.Time
}
