package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/team-attendance/internal/application"
	"github.com/example/team-attendance/internal/persistence"
)

var (
	userCounter    uint64
	eventCounter   uint64
	groupCounter   uint64
	recordCounter  uint64
	sessionCounter uint64
)

var referenceTime = time.Date(2026, time.January, 6, 15, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
// It falls on a Tuesday so weekly recurrence fixtures resolve on their
// first day.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic account record.
type UserFixture struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Disabled     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic user fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := UserFixture{
		ID:           id,
		Email:        fmt.Sprintf("%s@example.com", id),
		DisplayName:  fmt.Sprintf("User %03d", idx),
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// WithUserPasswordHash overrides the generated password hash.
func WithUserPasswordHash(hash string) UserOption {
	return func(f *UserFixture) {
		f.PasswordHash = hash
	}
}

// WithUserDisabled marks the account disabled.
func WithUserDisabled() UserOption {
	return func(f *UserFixture) {
		f.Disabled = true
	}
}

// Persistence returns the fixture as a persistence.User value.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:           f.ID,
		Email:        f.Email,
		DisplayName:  f.DisplayName,
		PasswordHash: f.PasswordHash,
		Disabled:     f.Disabled,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

// Principal returns an application.Principal derived from the fixture.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID}
}

// Member returns a roster row placing the user on a team with the given role.
func (f UserFixture) Member(teamID, role string) persistence.TeamMember {
	return persistence.TeamMember{
		TeamID:    teamID,
		UserID:    f.ID,
		Role:      role,
		CreatedAt: f.CreatedAt,
	}
}

// ----------------------------- Event fixtures ----------------------------

// EventFixture represents a deterministic event definition.
type EventFixture struct {
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

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns a deterministic one-off event with a venue at a
// fixed city-centre location and a 100 metre radius.
func NewEventFixture(opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	id := fmt.Sprintf("event-%03d", idx)
	start := referenceTime.Add(time.Duration(idx) * 24 * time.Hour)
	lat, lon := 51.5, -0.12
	fixture := EventFixture{
		ID:           id,
		TeamID:       "team-001",
		CreatorID:    "user-001",
		Title:        fmt.Sprintf("Practice %03d", idx),
		Start:        start,
		End:          start.Add(2 * time.Hour),
		Latitude:     &lat,
		Longitude:    &lon,
		RadiusMeters: 100,
		Frequency:    "none",
		Timezone:     "UTC",
		Visibility:   "team",
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventID overrides the event ID.
func WithEventID(id string) EventOption {
	return func(f *EventFixture) {
		f.ID = id
	}
}

// WithEventTeam sets the owning team.
func WithEventTeam(teamID string) EventOption {
	return func(f *EventFixture) {
		f.TeamID = teamID
	}
}

// WithEventCreator sets the creator ID.
func WithEventCreator(userID string) EventOption {
	return func(f *EventFixture) {
		f.CreatorID = userID
	}
}

// WithEventStartEnd sets the start and end times.
func WithEventStartEnd(start, end time.Time) EventOption {
	return func(f *EventFixture) {
		f.Start = start
		f.End = end
	}
}

// WithEventVenue sets the venue coordinates and radius.
func WithEventVenue(lat, lon, radiusMeters float64) EventOption {
	return func(f *EventFixture) {
		latitude, longitude := lat, lon
		f.Latitude = &latitude
		f.Longitude = &longitude
		f.RadiusMeters = radiusMeters
	}
}

// WithoutEventVenue clears the venue coordinates.
func WithoutEventVenue() EventOption {
	return func(f *EventFixture) {
		f.Latitude = nil
		f.Longitude = nil
	}
}

// WithEventWeekly turns the fixture into a weekly series on the given days.
func WithEventWeekly(days ...time.Weekday) EventOption {
	return func(f *EventFixture) {
		f.Frequency = "weekly"
		f.Weekdays = append([]time.Weekday(nil), days...)
	}
}

// WithEventUntil sets the recurrence end date.
func WithEventUntil(t time.Time) EventOption {
	return func(f *EventFixture) {
		until := t
		f.Until = &until
	}
}

// WithEventVisibility sets the visibility rule.
func WithEventVisibility(visibility string) EventOption {
	return func(f *EventFixture) {
		f.Visibility = visibility
	}
}

// WithEventGroups assigns attendance groups to the event.
func WithEventGroups(groupIDs ...string) EventOption {
	return func(f *EventFixture) {
		f.GroupIDs = append([]string(nil), groupIDs...)
	}
}

// WithEventLocked marks the event locked.
func WithEventLocked() EventOption {
	return func(f *EventFixture) {
		f.Locked = true
	}
}

// Persistence returns the fixture as a persistence.Event value.
func (f EventFixture) Persistence() persistence.Event {
	var until *time.Time
	if f.Until != nil {
		t := *f.Until
		until = &t
	}
	return persistence.Event{
		ID:           f.ID,
		TeamID:       f.TeamID,
		CreatorID:    f.CreatorID,
		Title:        f.Title,
		Start:        f.Start,
		End:          f.End,
		Latitude:     copyFloatPtr(f.Latitude),
		Longitude:    copyFloatPtr(f.Longitude),
		RadiusMeters: f.RadiusMeters,
		Frequency:    f.Frequency,
		Weekdays:     append([]time.Weekday(nil), f.Weekdays...),
		Until:        until,
		Timezone:     f.Timezone,
		Visibility:   f.Visibility,
		GroupIDs:     append([]string(nil), f.GroupIDs...),
		Locked:       f.Locked,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

// Input returns the fixture as an application.EventInput.
func (f EventFixture) Input() application.EventInput {
	var until *time.Time
	if f.Until != nil {
		t := *f.Until
		until = &t
	}
	return application.EventInput{
		TeamID:       f.TeamID,
		Title:        f.Title,
		Start:        f.Start,
		End:          f.End,
		Latitude:     copyFloatPtr(f.Latitude),
		Longitude:    copyFloatPtr(f.Longitude),
		RadiusMeters: f.RadiusMeters,
		Frequency:    f.Frequency,
		Weekdays:     append([]time.Weekday(nil), f.Weekdays...),
		Until:        until,
		Timezone:     f.Timezone,
		Visibility:   f.Visibility,
		GroupIDs:     append([]string(nil), f.GroupIDs...),
	}
}

// Key returns the occurrence key for the fixture's first date.
func (f EventFixture) Key() application.OccurrenceKey {
	return application.OccurrenceKey{EventID: f.ID, Date: f.Start.Format("2006-01-02")}
}

// ----------------------------- Group fixtures ----------------------------

// GroupFixture represents a deterministic attendance group.
type GroupFixture struct {
	ID        string
	TeamID    string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GroupOption configures the generated group fixture.
type GroupOption func(*GroupFixture)

// NewGroupFixture returns a deterministic group fixture with optional overrides.
func NewGroupFixture(opts ...GroupOption) GroupFixture {
	idx := atomic.AddUint64(&groupCounter, 1)
	fixture := GroupFixture{
		ID:        fmt.Sprintf("group-%03d", idx),
		TeamID:    "team-001",
		Name:      fmt.Sprintf("Group %03d", idx),
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithGroupID overrides the group ID.
func WithGroupID(id string) GroupOption {
	return func(f *GroupFixture) {
		f.ID = id
	}
}

// WithGroupTeam sets the owning team.
func WithGroupTeam(teamID string) GroupOption {
	return func(f *GroupFixture) {
		f.TeamID = teamID
	}
}

// WithGroupName overrides the group name.
func WithGroupName(name string) GroupOption {
	return func(f *GroupFixture) {
		f.Name = name
	}
}

// Persistence returns the fixture as a persistence.Group value.
func (f GroupFixture) Persistence() persistence.Group {
	return persistence.Group{
		ID:        f.ID,
		TeamID:    f.TeamID,
		Name:      f.Name,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// ----------------------------- Record fixtures ---------------------------

// RecordFixture represents a deterministic attendance record.
type RecordFixture struct {
	ID          string
	EventID     string
	Date        string
	UserID      string
	Method      string
	Status      string
	CheckedInAt time.Time
	Flagged     bool
	Notes       *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RecordOption configures the generated record fixture.
type RecordOption func(*RecordFixture)

// NewRecordFixture returns a deterministic present, on-time attendance
// record with optional overrides.
func NewRecordFixture(opts ...RecordOption) RecordFixture {
	idx := atomic.AddUint64(&recordCounter, 1)
	fixture := RecordFixture{
		ID:          fmt.Sprintf("record-%03d", idx),
		EventID:     "event-001",
		Date:        referenceTime.Format("2006-01-02"),
		UserID:      fmt.Sprintf("user-%03d", idx),
		Method:      "manual",
		Status:      "present",
		CheckedInAt: referenceTime,
		CreatedAt:   referenceTime,
		UpdatedAt:   referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRecordID overrides the record ID.
func WithRecordID(id string) RecordOption {
	return func(f *RecordFixture) {
		f.ID = id
	}
}

// WithRecordOccurrence sets the occurrence the record belongs to.
func WithRecordOccurrence(eventID, date string) RecordOption {
	return func(f *RecordFixture) {
		f.EventID = eventID
		f.Date = date
	}
}

// WithRecordUser sets the attending user.
func WithRecordUser(userID string) RecordOption {
	return func(f *RecordFixture) {
		f.UserID = userID
	}
}

// WithRecordStatus sets the method and status.
func WithRecordStatus(method, status string) RecordOption {
	return func(f *RecordFixture) {
		f.Method = method
		f.Status = status
	}
}

// WithRecordCheckedInAt sets the check-in timestamp.
func WithRecordCheckedInAt(t time.Time) RecordOption {
	return func(f *RecordFixture) {
		f.CheckedInAt = t
	}
}

// WithRecordFlagged marks the record as flagged by the plausibility checks.
func WithRecordFlagged() RecordOption {
	return func(f *RecordFixture) {
		f.Flagged = true
	}
}

// WithRecordNotes sets the coach note on the record.
func WithRecordNotes(notes string) RecordOption {
	return func(f *RecordFixture) {
		value := notes
		f.Notes = &value
	}
}

// Persistence returns the fixture as a persistence.AttendanceRecord value.
func (f RecordFixture) Persistence() persistence.AttendanceRecord {
	var notes *string
	if f.Notes != nil {
		value := *f.Notes
		notes = &value
	}
	return persistence.AttendanceRecord{
		ID:          f.ID,
		EventID:     f.EventID,
		Date:        f.Date,
		UserID:      f.UserID,
		Method:      f.Method,
		Status:      f.Status,
		CheckedInAt: f.CheckedInAt,
		Flagged:     f.Flagged,
		Notes:       notes,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// ----------------------------- Session fixtures --------------------------

// SessionFixture represents a deterministic session record.
type SessionFixture struct {
	ID          string
	UserID      string
	Token       string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RevokedAt   *time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a deterministic session fixture with optional overrides.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	fixture := SessionFixture{
		ID:          fmt.Sprintf("session-%03d", idx),
		UserID:      fmt.Sprintf("user-%03d", idx),
		Token:       fmt.Sprintf("token-%03d", idx),
		Fingerprint: fmt.Sprintf("fingerprint-%03d", idx),
		ExpiresAt:   referenceTime.Add(8 * time.Hour),
		CreatedAt:   referenceTime,
		UpdatedAt:   referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionID overrides the session ID.
func WithSessionID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.ID = id
	}
}

// WithSessionUserID sets the user ID.
func WithSessionUserID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.UserID = id
	}
}

// WithSessionToken overrides the token value.
func WithSessionToken(token string) SessionOption {
	return func(f *SessionFixture) {
		f.Token = token
	}
}

// WithSessionExpiresAt sets the expiration timestamp.
func WithSessionExpiresAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.ExpiresAt = t
	}
}

// WithSessionRevokedAt sets the optional revoked timestamp.
func WithSessionRevokedAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		revoked := t
		f.RevokedAt = &revoked
	}
}

// Persistence returns the fixture as a persistence.Session value.
func (f SessionFixture) Persistence() persistence.Session {
	var revoked *time.Time
	if f.RevokedAt != nil {
		t := *f.RevokedAt
		revoked = &t
	}
	return persistence.Session{
		ID:          f.ID,
		UserID:      f.UserID,
		Token:       f.Token,
		Fingerprint: f.Fingerprint,
		ExpiresAt:   f.ExpiresAt,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
		RevokedAt:   revoked,
	}
}

// helper to deep copy optional floats.
func copyFloatPtr(src *float64) *float64 {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
