package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/team-attendance/internal/persistence"
)

// clockStub is a settable time source shared by a test's services.
type clockStub struct {
	mu  sync.Mutex
	now time.Time
}

func newClockStub(now time.Time) *clockStub {
	return &clockStub{now: now}
}

func (c *clockStub) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clockStub) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *clockStub) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// sequenceIDs returns deterministic ids id-1, id-2, ...
func sequenceIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

type memEvents struct {
	mu         sync.Mutex
	events     map[string]persistence.Event
	exceptions map[string][]persistence.OccurrenceException
}

func newMemEvents() *memEvents {
	return &memEvents{
		events:     make(map[string]persistence.Event),
		exceptions: make(map[string][]persistence.OccurrenceException),
	}
}

func (m *memEvents) CreateEvent(ctx context.Context, event persistence.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[event.ID]; ok {
		return persistence.ErrDuplicate
	}
	m.events[event.ID] = event
	return nil
}

func (m *memEvents) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return event, nil
}

func (m *memEvents) UpdateEvent(ctx context.Context, event persistence.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[event.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.events[event.ID] = event
	return nil
}

func (m *memEvents) SetEventLocked(ctx context.Context, id string, locked bool, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok {
		return persistence.ErrNotFound
	}
	event.Locked = locked
	event.UpdatedAt = updatedAt
	m.events[id] = event
	return nil
}

func (m *memEvents) DeleteEvent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.events, id)
	delete(m.exceptions, id)
	return nil
}

func (m *memEvents) AssignEventGroups(ctx context.Context, eventID string, groupIDs []string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[eventID]
	if !ok {
		return persistence.ErrNotFound
	}
	event.GroupIDs = groupIDs
	event.UpdatedAt = updatedAt
	m.events[eventID] = event
	return nil
}

func (m *memEvents) CreateException(ctx context.Context, exception persistence.OccurrenceException) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, exc := range m.exceptions[exception.EventID] {
		if exc.Date == exception.Date {
			return persistence.ErrDuplicate
		}
	}
	m.exceptions[exception.EventID] = append(m.exceptions[exception.EventID], exception)
	return nil
}

func (m *memEvents) ListExceptions(ctx context.Context, eventID string) ([]persistence.OccurrenceException, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]persistence.OccurrenceException, len(m.exceptions[eventID]))
	copy(out, m.exceptions[eventID])
	return out, nil
}

type memRoster struct {
	mu      sync.Mutex
	members map[string]persistence.TeamMember
}

func newMemRoster() *memRoster {
	return &memRoster{members: make(map[string]persistence.TeamMember)}
}

func rosterKey(teamID, userID string) string { return teamID + "|" + userID }

func (m *memRoster) UpsertTeamMember(ctx context.Context, member persistence.TeamMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[rosterKey(member.TeamID, member.UserID)] = member
	return nil
}

func (m *memRoster) GetTeamMember(ctx context.Context, teamID, userID string) (persistence.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[rosterKey(teamID, userID)]
	if !ok {
		return persistence.TeamMember{}, persistence.ErrNotFound
	}
	return member, nil
}

func (m *memRoster) ListTeamMembers(ctx context.Context, teamID string) ([]persistence.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]persistence.TeamMember, 0)
	for _, member := range m.members {
		if member.TeamID == teamID {
			out = append(out, member)
		}
	}
	return out, nil
}

type memGroups struct {
	mu      sync.Mutex
	groups  map[string]persistence.Group
	members map[string][]string
}

func newMemGroups() *memGroups {
	return &memGroups{
		groups:  make(map[string]persistence.Group),
		members: make(map[string][]string),
	}
}

func (m *memGroups) CreateGroup(ctx context.Context, group persistence.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[group.ID] = group
	return nil
}

func (m *memGroups) GetGroup(ctx context.Context, id string) (persistence.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	group, ok := m.groups[id]
	if !ok {
		return persistence.Group{}, persistence.ErrNotFound
	}
	return group, nil
}

func (m *memGroups) AddGroupMember(ctx context.Context, groupID, userID string, addedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.members[groupID] {
		if existing == userID {
			return nil
		}
	}
	m.members[groupID] = append(m.members[groupID], userID)
	return nil
}

func (m *memGroups) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := m.members[groupID]
	for i, existing := range members {
		if existing == userID {
			m.members[groupID] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return persistence.ErrNotFound
}

func (m *memGroups) ListGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.members[groupID]))
	copy(out, m.members[groupID])
	return out, nil
}

func (m *memGroups) ListUserGroups(ctx context.Context, teamID, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0)
	for groupID, members := range m.members {
		group, ok := m.groups[groupID]
		if !ok || group.TeamID != teamID {
			continue
		}
		for _, member := range members {
			if member == userID {
				out = append(out, groupID)
			}
		}
	}
	return out, nil
}

type memExpected struct {
	mu   sync.Mutex
	rows map[string][]persistence.ExpectedAttendee
}

func newMemExpected() *memExpected {
	return &memExpected{rows: make(map[string][]persistence.ExpectedAttendee)}
}

func expectedKey(eventID, date string) string { return eventID + "|" + date }

func (m *memExpected) ReplaceExpected(ctx context.Context, eventID, date string, rows []persistence.ExpectedAttendee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cloned := make([]persistence.ExpectedAttendee, len(rows))
	copy(cloned, rows)
	m.rows[expectedKey(eventID, date)] = cloned
	return nil
}

func (m *memExpected) ListExpected(ctx context.Context, eventID, date string) ([]persistence.ExpectedAttendee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.rows[expectedKey(eventID, date)]
	out := make([]persistence.ExpectedAttendee, len(stored))
	copy(out, stored)
	return out, nil
}

func (m *memExpected) DeleteExpectedFrom(ctx context.Context, eventID, fromDate string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, rows := range m.rows {
		if len(rows) > 0 && rows[0].EventID == eventID && rows[0].Date >= fromDate {
			delete(m.rows, key)
		}
	}
	return nil
}

type memAttendance struct {
	mu      sync.Mutex
	records map[string]persistence.AttendanceRecord
	audit   []persistence.AuditEntry
	nonces  map[string]persistence.ConsumedNonce
}

func newMemAttendance() *memAttendance {
	return &memAttendance{
		records: make(map[string]persistence.AttendanceRecord),
		nonces:  make(map[string]persistence.ConsumedNonce),
	}
}

func recordKey(eventID, date, userID string) string { return eventID + "|" + date + "|" + userID }

func (m *memAttendance) CreateRecord(ctx context.Context, write persistence.AttendanceWrite) (persistence.AttendanceRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey(write.Record.EventID, write.Record.Date, write.Record.UserID)
	if existing, ok := m.records[key]; ok {
		return existing, false, nil
	}
	if write.Nonce != nil {
		if _, ok := m.nonces[write.Nonce.Nonce]; ok {
			return persistence.AttendanceRecord{}, false, persistence.ErrDuplicate
		}
		m.nonces[write.Nonce.Nonce] = *write.Nonce
	}
	m.records[key] = write.Record
	m.audit = append(m.audit, write.Audit...)
	return write.Record, true, nil
}

func (m *memAttendance) UpdateRecord(ctx context.Context, write persistence.AttendanceWrite) (persistence.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey(write.Record.EventID, write.Record.Date, write.Record.UserID)
	if _, ok := m.records[key]; !ok {
		return persistence.AttendanceRecord{}, persistence.ErrNotFound
	}
	m.records[key] = write.Record
	m.audit = append(m.audit, write.Audit...)
	return write.Record, nil
}

func (m *memAttendance) GetRecord(ctx context.Context, eventID, date, userID string) (persistence.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[recordKey(eventID, date, userID)]
	if !ok || record.DeletedAt != nil {
		return persistence.AttendanceRecord{}, persistence.ErrNotFound
	}
	return record, nil
}

func (m *memAttendance) ListRecords(ctx context.Context, eventID, date string) ([]persistence.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]persistence.AttendanceRecord, 0)
	for _, record := range m.records {
		if record.EventID == eventID && record.Date == date && record.DeletedAt == nil {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *memAttendance) ListAudit(ctx context.Context, eventID, date string) ([]persistence.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]persistence.AuditEntry, 0)
	for _, entry := range m.audit {
		if entry.EventID == eventID && entry.Date == date {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *memAttendance) GetConsumedNonce(ctx context.Context, nonce string) (persistence.ConsumedNonce, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	consumed, ok := m.nonces[nonce]
	if !ok {
		return persistence.ConsumedNonce{}, persistence.ErrNotFound
	}
	return consumed, nil
}

func (m *memAttendance) FingerprintFlagged(ctx context.Context, fingerprint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.records {
		if record.Flagged && record.DeviceFingerprint != nil && *record.DeviceFingerprint == fingerprint {
			return true, nil
		}
	}
	return false, nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]persistence.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]persistence.User)}
}

func (m *memUsers) CreateUser(ctx context.Context, user persistence.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return persistence.ErrDuplicate
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *memUsers) GetUser(ctx context.Context, id string) (persistence.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return user, nil
}

func (m *memUsers) GetUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return persistence.User{}, persistence.ErrNotFound
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]persistence.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]persistence.Session)}
}

func (m *memSessions) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.Token] = session
	return session, nil
}

func (m *memSessions) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[token]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	return session, nil
}

func (m *memSessions) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[token]
	if !ok || session.RevokedAt != nil {
		return persistence.Session{}, persistence.ErrNotFound
	}
	session.RevokedAt = &revokedAt
	session.UpdatedAt = revokedAt
	m.sessions[token] = session
	return session, nil
}

func (m *memSessions) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, session := range m.sessions {
		if session.ExpiresAt.Before(reference) {
			delete(m.sessions, token)
		}
	}
	return nil
}

// engineFixture wires the full service graph over in-memory repositories
// with a settable clock.
type engineFixture struct {
	clock      *clockStub
	events     *memEvents
	roster     *memRoster
	groups     *memGroups
	expected   *memExpected
	attendance *memAttendance
	feed       *ChangeFeed
	tokens     *TokenService
	eventSvc   *EventService
	svc        *AttendanceService
}

func newEngineFixture(start time.Time) *engineFixture {
	clock := newClockStub(start)
	events := newMemEvents()
	roster := newMemRoster()
	groups := newMemGroups()
	expected := newMemExpected()
	attendance := newMemAttendance()
	feed := NewChangeFeed(64)
	tokens := NewTokenService([]byte("fixture-secret"), 4*time.Hour, sequenceIDs("nonce"), clock.Now)

	return &engineFixture{
		clock:      clock,
		events:     events,
		roster:     roster,
		groups:     groups,
		expected:   expected,
		attendance: attendance,
		feed:       feed,
		tokens:     tokens,
		eventSvc:   NewEventService(events, roster, groups, expected, sequenceIDs("gen-evt"), clock.Now, nil),
		svc: NewAttendanceService(events, roster, groups, attendance, tokens, feed,
			DefaultLatenessThresholds, sequenceIDs("id"), clock.Now, nil),
	}
}

func (f *engineFixture) addMember(teamID, userID, role string) {
	_ = f.roster.UpsertTeamMember(context.Background(), persistence.TeamMember{
		TeamID:    teamID,
		UserID:    userID,
		Role:      role,
		CreatedAt: f.clock.Now(),
	})
}

func (f *engineFixture) addEvent(event persistence.Event) {
	_ = f.events.CreateEvent(context.Background(), event)
}
