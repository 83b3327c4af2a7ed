package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/team-attendance/internal/eligibility"
	"github.com/example/team-attendance/internal/occurrence"
	"github.com/example/team-attendance/internal/persistence"
)

// EventService owns event definitions, occurrence resolution and expected
// attendee sets. The engine treats definitions as read-only input except for
// the locked flag; the write operations here are the thin administration
// surface that feeds it.
type EventService struct {
	events      persistence.EventRepository
	roster      persistence.RosterRepository
	groups      persistence.GroupRepository
	expected    persistence.ExpectedAttendeeRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewEventService constructs an EventService with the provided dependencies.
func NewEventService(events persistence.EventRepository, roster persistence.RosterRepository, groups persistence.GroupRepository, expected persistence.ExpectedAttendeeRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EventService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &EventService{
		events:      events,
		roster:      roster,
		groups:      groups,
		expected:    expected,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

func (s *EventService) viewerFor(ctx context.Context, teamID, userID string) (eligibility.Viewer, error) {
	return resolveViewer(ctx, s.roster, s.groups, teamID, userID)
}

// requireManager verifies the principal may administer attendance for the
// team and returns their viewer.
func (s *EventService) requireManager(ctx context.Context, teamID, userID string) (eligibility.Viewer, error) {
	viewer, err := s.viewerFor(ctx, teamID, userID)
	if err != nil {
		if errors.Is(err, ErrNotEligible) {
			return eligibility.Viewer{}, ErrUnauthorized
		}
		return eligibility.Viewer{}, err
	}
	if !viewer.Role.CanManageAttendance() {
		return eligibility.Viewer{}, ErrUnauthorized
	}
	return viewer, nil
}

// visibleEvent loads the event and enforces the visibility rules for the
// principal.
func (s *EventService) visibleEvent(ctx context.Context, eventID, userID string) (persistence.Event, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return persistence.Event{}, ErrNotFound
		}
		return persistence.Event{}, err
	}
	viewer, err := s.viewerFor(ctx, event.TeamID, userID)
	if err != nil {
		return persistence.Event{}, err
	}
	if !eligibility.IsVisible(eligibilityEvent(event), viewer) {
		return persistence.Event{}, ErrNotEligible
	}
	return event, nil
}

func validateEventInput(input EventInput) error {
	vErr := &ValidationError{}
	if input.TeamID == "" {
		vErr.add("team_id", "team id is required")
	}
	if input.Title == "" {
		vErr.add("title", "title is required")
	}
	if !input.End.After(input.Start) {
		vErr.add("end", "end must be after start")
	}
	if input.RadiusMeters < 0 {
		vErr.add("radius_meters", "radius must not be negative")
	}
	switch eligibility.Visibility(input.Visibility) {
	case eligibility.VisibilityPersonal, eligibility.VisibilityTeam,
		eligibility.VisibilityCoachesOnly, eligibility.VisibilityPlayersOnly:
	default:
		vErr.add("visibility", "unknown visibility kind")
	}
	if input.Timezone != "" {
		if _, err := time.LoadLocation(input.Timezone); err != nil {
			vErr.add("timezone", "unknown timezone")
		}
	}
	if vErr.HasErrors() {
		return vErr
	}

	freq, err := occurrence.ParseFrequency(input.Frequency)
	if err != nil {
		return err
	}
	rule := occurrence.Rule{Frequency: freq, Weekdays: input.Weekdays, Until: input.Until}
	return rule.Validate()
}

// CreateEvent validates and stores a new event definition.
func (s *EventService) CreateEvent(ctx context.Context, params CreateEventParams) (result Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateEvent", "team_id", params.Input.TeamID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "event creation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("event_id", result.ID).InfoContext(ctx, "event created")
	}()

	if _, err = s.requireManager(ctx, params.Input.TeamID, params.Principal.UserID); err != nil {
		return
	}
	if err = validateEventInput(params.Input); err != nil {
		return
	}

	now := s.now()
	event := persistence.Event{
		ID:           s.idGenerator(),
		TeamID:       params.Input.TeamID,
		CreatorID:    params.Principal.UserID,
		Title:        params.Input.Title,
		Start:        params.Input.Start,
		End:          params.Input.End,
		Latitude:     params.Input.Latitude,
		Longitude:    params.Input.Longitude,
		RadiusMeters: params.Input.RadiusMeters,
		Frequency:    params.Input.Frequency,
		Weekdays:     params.Input.Weekdays,
		Until:        params.Input.Until,
		Timezone:     params.Input.Timezone,
		Visibility:   params.Input.Visibility,
		GroupIDs:     params.Input.GroupIDs,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if event.Frequency == "" {
		event.Frequency = occurrence.FrequencyNone.String()
	}
	if event.Timezone == "" {
		event.Timezone = "UTC"
	}

	if err = s.events.CreateEvent(ctx, event); err != nil {
		return
	}
	result = toEvent(event)
	return
}

// UpdateEvent replaces the mutable definition fields. Per-date exceptions
// are untouched, so deleted instances stay deleted across edits.
func (s *EventService) UpdateEvent(ctx context.Context, params UpdateEventParams) (result Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateEvent", "event_id", params.EventID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "event update failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event updated")
	}()

	var event persistence.Event
	event, err = s.events.GetEvent(ctx, params.EventID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrNotFound
		}
		return
	}
	if _, err = s.requireManager(ctx, event.TeamID, params.Principal.UserID); err != nil {
		return
	}

	input := params.Input
	input.TeamID = event.TeamID
	if err = validateEventInput(input); err != nil {
		return
	}

	groupsChanged := !equalStringSets(event.GroupIDs, input.GroupIDs)

	event.Title = input.Title
	event.Start = input.Start
	event.End = input.End
	event.Latitude = input.Latitude
	event.Longitude = input.Longitude
	event.RadiusMeters = input.RadiusMeters
	event.Frequency = input.Frequency
	event.Weekdays = input.Weekdays
	event.Until = input.Until
	if input.Timezone != "" {
		event.Timezone = input.Timezone
	}
	event.Visibility = input.Visibility
	event.GroupIDs = input.GroupIDs
	event.UpdatedAt = s.now()

	if err = s.events.UpdateEvent(ctx, event); err != nil {
		return
	}
	if groupsChanged {
		err = s.invalidateUpcomingExpected(ctx, event)
		if err != nil {
			return
		}
	}
	result = toEvent(event)
	return
}

// GetEvent returns the event definition if the principal may see it.
func (s *EventService) GetEvent(ctx context.Context, principal Principal, eventID string) (Event, error) {
	if s == nil {
		return Event{}, fmt.Errorf("EventService is nil")
	}
	event, err := s.visibleEvent(ctx, eventID, principal.UserID)
	if err != nil {
		return Event{}, err
	}
	return toEvent(event), nil
}

// DeleteEvent removes the definition; exceptions, group assignments and
// expected rows cascade in storage.
func (s *EventService) DeleteEvent(ctx context.Context, principal Principal, eventID string) error {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteEvent", "event_id", eventID)

	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrNotFound
		}
		logger.ErrorContext(ctx, "event deletion failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	if _, err := s.requireManager(ctx, event.TeamID, principal.UserID); err != nil {
		logger.ErrorContext(ctx, "event deletion failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	if err := s.events.DeleteEvent(ctx, eventID); err != nil {
		logger.ErrorContext(ctx, "event deletion failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "event deleted")
	return nil
}

// ListOccurrences expands the event's recurrence within the window,
// excluding deleted instances.
func (s *EventService) ListOccurrences(ctx context.Context, params ListOccurrencesParams) ([]Occurrence, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}

	event, err := s.visibleEvent(ctx, params.EventID, params.Principal.UserID)
	if err != nil {
		return nil, err
	}

	def, err := eventDefinition(event)
	if err != nil {
		return nil, err
	}
	exceptions, err := s.events.ListExceptions(ctx, event.ID)
	if err != nil {
		return nil, err
	}

	resolved, err := occurrence.Resolve(def, occurrence.Window{From: params.From, To: params.To}, exceptionSet(exceptions))
	if err != nil {
		return nil, err
	}

	out := make([]Occurrence, 0, len(resolved))
	for _, occ := range resolved {
		out = append(out, Occurrence(occ))
	}
	return out, nil
}

// ResolveOccurrence returns the single dated occurrence named by key,
// honouring exceptions. ErrNotFound is returned for dates the series does
// not produce or that were deleted.
func (s *EventService) ResolveOccurrence(ctx context.Context, event persistence.Event, date string) (Occurrence, error) {
	return resolveOccurrence(ctx, s.events, event, date)
}

// DeleteOccurrence records an exception for one recurring date. The
// exception is keyed by absolute date and survives edits to the parent
// definition.
func (s *EventService) DeleteOccurrence(ctx context.Context, params DeleteOccurrenceParams) error {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteOccurrence",
		"event_id", params.Key.EventID,
		"date", params.Key.Date,
	)

	event, err := s.events.GetEvent(ctx, params.Key.EventID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrNotFound
		}
		logger.ErrorContext(ctx, "occurrence deletion failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	if _, err := s.requireManager(ctx, event.TeamID, params.Principal.UserID); err != nil {
		logger.ErrorContext(ctx, "occurrence deletion failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	def, err := eventDefinition(event)
	if err != nil {
		return err
	}
	contained, err := occurrence.ContainsDate(def, params.Key.Date)
	if err != nil || !contained {
		if err == nil {
			err = ErrNotFound
		}
		logger.ErrorContext(ctx, "occurrence deletion failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	exception := persistence.OccurrenceException{
		EventID:   event.ID,
		Date:      params.Key.Date,
		CreatedBy: params.Principal.UserID,
		CreatedAt: s.now(),
	}
	if err := s.events.CreateException(ctx, exception); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			// Deleting an already deleted instance is a no-op.
			return nil
		}
		logger.ErrorContext(ctx, "occurrence deletion failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	if err := s.expected.ReplaceExpected(ctx, event.ID, params.Key.Date, nil); err != nil {
		logger.ErrorContext(ctx, "failed to clear expected set", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "occurrence deleted")
	return nil
}

// SetEventLocked toggles the locked flag, freezing or unfreezing self
// check-ins.
func (s *EventService) SetEventLocked(ctx context.Context, principal Principal, eventID string, locked bool) error {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}

	logger := s.loggerWith(ctx, "SetEventLocked", "event_id", eventID, "locked", locked)

	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrNotFound
		}
		logger.ErrorContext(ctx, "lock toggle failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	if _, err := s.requireManager(ctx, event.TeamID, principal.UserID); err != nil {
		logger.ErrorContext(ctx, "lock toggle failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	if err := s.events.SetEventLocked(ctx, eventID, locked, s.now()); err != nil {
		logger.ErrorContext(ctx, "lock toggle failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "lock toggled")
	return nil
}

// AssignEventGroups replaces the event's assigned groups and invalidates
// expected sets for occurrences that have not started yet.
func (s *EventService) AssignEventGroups(ctx context.Context, principal Principal, eventID string, groupIDs []string) error {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}

	logger := s.loggerWith(ctx, "AssignEventGroups", "event_id", eventID)

	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrNotFound
		}
		logger.ErrorContext(ctx, "group assignment failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	if _, err := s.requireManager(ctx, event.TeamID, principal.UserID); err != nil {
		logger.ErrorContext(ctx, "group assignment failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	if err := s.events.AssignEventGroups(ctx, eventID, groupIDs, s.now()); err != nil {
		logger.ErrorContext(ctx, "group assignment failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	event.GroupIDs = groupIDs
	if err := s.invalidateUpcomingExpected(ctx, event); err != nil {
		logger.ErrorContext(ctx, "failed to invalidate expected sets", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "groups assigned")
	return nil
}

// GetExpectedAttendees returns the expected set for the next occurrence that
// has not started yet, computing and persisting it on first access.
func (s *EventService) GetExpectedAttendees(ctx context.Context, principal Principal, eventID string) ([]ExpectedAttendee, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}

	event, err := s.visibleEvent(ctx, eventID, principal.UserID)
	if err != nil {
		return nil, err
	}

	occ, err := s.nextOccurrence(ctx, event)
	if err != nil {
		return nil, err
	}
	return s.ExpectedAttendeesFor(ctx, event, occ.Date)
}

// ExpectedAttendeesFor returns the stored expected set for one occurrence,
// building it from the current roster and groups when absent.
func (s *EventService) ExpectedAttendeesFor(ctx context.Context, event persistence.Event, date string) ([]ExpectedAttendee, error) {
	stored, err := s.expected.ListExpected(ctx, event.ID, date)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		out := make([]ExpectedAttendee, 0, len(stored))
		for _, row := range stored {
			out = append(out, ExpectedAttendee{UserID: row.UserID, Reason: row.Reason})
		}
		return out, nil
	}

	built, err := s.buildExpectedSet(ctx, event)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rows := make([]persistence.ExpectedAttendee, 0, len(built))
	out := make([]ExpectedAttendee, 0, len(built))
	for _, attendee := range built {
		rows = append(rows, persistence.ExpectedAttendee{
			EventID:   event.ID,
			Date:      date,
			UserID:    attendee.UserID,
			Reason:    string(attendee.Reason),
			CreatedAt: now,
		})
		out = append(out, ExpectedAttendee{UserID: attendee.UserID, Reason: string(attendee.Reason)})
	}
	if err := s.expected.ReplaceExpected(ctx, event.ID, date, rows); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *EventService) buildExpectedSet(ctx context.Context, event persistence.Event) ([]eligibility.ExpectedAttendee, error) {
	members, err := s.roster.ListTeamMembers(ctx, event.TeamID)
	if err != nil {
		return nil, err
	}

	roster := make([]eligibility.Member, 0, len(members))
	groupsByUser := make(map[string][]string, len(members))
	for _, member := range members {
		role, err := eligibility.ParseRoleKind(member.Role)
		if err != nil {
			return nil, err
		}
		roster = append(roster, eligibility.Member{UserID: member.UserID, Role: role})
		groupIDs, err := s.groups.ListUserGroups(ctx, event.TeamID, member.UserID)
		if err != nil {
			return nil, err
		}
		groupsByUser[member.UserID] = groupIDs
	}

	return eligibility.BuildExpectedSet(eligibilityEvent(event), roster, groupsByUser), nil
}

// nextOccurrence finds the first occurrence starting at or after now,
// searching one year ahead.
func (s *EventService) nextOccurrence(ctx context.Context, event persistence.Event) (Occurrence, error) {
	def, err := eventDefinition(event)
	if err != nil {
		return Occurrence{}, err
	}
	exceptions, err := s.events.ListExceptions(ctx, event.ID)
	if err != nil {
		return Occurrence{}, err
	}

	now := s.now()
	from := now
	if def.Start.After(now) {
		from = def.Start
	}
	window := occurrence.Window{From: from.Add(-24 * time.Hour), To: from.AddDate(1, 0, 0)}
	resolved, err := occurrence.Resolve(def, window, exceptionSet(exceptions))
	if err != nil {
		return Occurrence{}, err
	}
	for _, occ := range resolved {
		if !occ.Start.Before(now) {
			return Occurrence(occ), nil
		}
	}
	return Occurrence{}, ErrNotFound
}

// invalidateUpcomingExpected drops stored expected rows for occurrences that
// have not started, so they are rebuilt with the new group assignment.
// Started occurrences keep their historical set.
func (s *EventService) invalidateUpcomingExpected(ctx context.Context, event persistence.Event) error {
	def, err := eventDefinition(event)
	if err != nil {
		return err
	}

	now := s.now()
	fromDate := occurrence.DateKey(now, def.Location)

	// Keep today's set when its occurrence is already underway.
	day, err := time.ParseInLocation(occurrence.DateFormat, fromDate, def.Location)
	if err == nil {
		window := occurrence.Window{From: day, To: day.Add(24*time.Hour - time.Second)}
		if resolved, rerr := occurrence.Resolve(def, window, nil); rerr == nil {
			for _, occ := range resolved {
				if occ.Date == fromDate && occ.Start.Before(now) {
					fromDate = occurrence.DateKey(now.AddDate(0, 0, 1), def.Location)
				}
			}
		}
	}

	return s.expected.DeleteExpectedFrom(ctx, event.ID, fromDate)
}

func equalStringSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, v := range a {
		set[v]++
	}
	for _, v := range b {
		set[v]--
		if set[v] < 0 {
			return false
		}
	}
	return true
}
