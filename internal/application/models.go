package application

import "time"

// Principal represents the authenticated user invoking a service method.
// Team roles are resolved per request from the roster, not carried here.
type Principal struct {
	UserID string
}

// OccurrenceKey identifies one dated instance of an event. Date is a civil
// date in the event's timezone, formatted 2006-01-02.
type OccurrenceKey struct {
	EventID string
	Date    string
}

// Check-in methods.
const (
	MethodToken    = "token"
	MethodLocation = "location"
	MethodManual   = "manual"
)

// Attendance statuses. Flagging is a boolean plus reason alongside the
// status, not a status of its own.
const (
	StatusPresent  = "present"
	StatusLate10   = "late_10"
	StatusLate30   = "late_30"
	StatusVeryLate = "very_late"
	StatusAbsent   = "absent"
	StatusExcused  = "excused"
)

// Audit actions.
const (
	AuditActionCreated       = "created"
	AuditActionStatusChanged = "status_changed"
	AuditActionCheckedOut    = "checked_out"
)

// LatenessThresholds holds the minute boundaries for lateness
// classification. A check-in at most OnTime minutes late is present, at most
// Late10 minutes late is late_10, at most Late30 is late_30, anything later
// is very_late.
type LatenessThresholds struct {
	OnTime int
	Late10 int
	Late30 int
}

// DefaultLatenessThresholds are the 0/10/30 minute boundaries.
var DefaultLatenessThresholds = LatenessThresholds{OnTime: 0, Late10: 10, Late30: 30}

// EventInput captures caller provided event definition fields.
type EventInput struct {
	TeamID       string
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
}

// Event represents a persisted event definition.
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

// Occurrence is one resolved dated instance of an event.
type Occurrence struct {
	EventID string
	Date    string
	Start   time.Time
	End     time.Time
}

// ExpectedAttendee is one row of an occurrence's expected set.
type ExpectedAttendee struct {
	UserID string
	Reason string
}

// AttendanceRecord is the per-(occurrence, user) attendance state exposed to
// callers.
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
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AuditEntry is one append-only mutation record exposed to callers.
type AuditEntry struct {
	ID        string
	RecordID  string
	ActorID   string
	Action    string
	Field     string
	OldValue  string
	NewValue  string
	CreatedAt time.Time
}

// CreateEventParams wraps the data required to create an event definition.
type CreateEventParams struct {
	Principal Principal
	Input     EventInput
}

// UpdateEventParams wraps the data required to update an event definition.
type UpdateEventParams struct {
	Principal Principal
	EventID   string
	Input     EventInput
}

// ListOccurrencesParams bounds an occurrence query. Both ends are inclusive.
type ListOccurrencesParams struct {
	Principal Principal
	EventID   string
	From      time.Time
	To        time.Time
}

// DeleteOccurrenceParams identifies one recurring date to delete.
type DeleteOccurrenceParams struct {
	Principal Principal
	Key       OccurrenceKey
}

// IssueTokenParams wraps a check-in token request.
type IssueTokenParams struct {
	Principal Principal
	Key       OccurrenceKey
}

// IssueTokenResult carries the signed token and its expiry.
type IssueTokenResult struct {
	Token     string
	ExpiresAt time.Time
}

// CheckInParams wraps a check-in attempt. UserID is honoured only for the
// manual method; token and location check-ins always target the principal.
type CheckInParams struct {
	Principal         Principal
	Key               OccurrenceKey
	Method            string
	UserID            string
	Token             string
	Latitude          *float64
	Longitude         *float64
	AccuracyMeters    *float64
	DeviceFingerprint string
}

// CheckOutParams wraps a check-out request.
type CheckOutParams struct {
	Principal Principal
	Key       OccurrenceKey
}

// ManualSetStatusParams wraps a coach-driven status write.
type ManualSetStatusParams struct {
	Principal Principal
	Key       OccurrenceKey
	UserID    string
	Status    string
	Note      string
}

// GetAttendanceParams wraps an attendance read for one occurrence.
type GetAttendanceParams struct {
	Principal Principal
	Key       OccurrenceKey
}

// ListAuditLogParams wraps an audit read for one occurrence.
type ListAuditLogParams struct {
	Principal Principal
	Key       OccurrenceKey
}

// User represents an account exposed by the application services.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session represents an authenticated session issued to a user.
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

// AuthenticateParams captures the data required to authenticate a user.
type AuthenticateParams struct {
	Email       string
	Password    string
	Fingerprint string
}

// AuthenticateResult captures the outcome of a successful authentication attempt.
type AuthenticateResult struct {
	User    User
	Session Session
}
