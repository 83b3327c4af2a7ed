package application

import (
	"context"
	"errors"
	"time"

	"github.com/example/team-attendance/internal/eligibility"
	"github.com/example/team-attendance/internal/occurrence"
	"github.com/example/team-attendance/internal/persistence"
)

func toEvent(event persistence.Event) Event {
	return Event{
		ID:           event.ID,
		TeamID:       event.TeamID,
		CreatorID:    event.CreatorID,
		Title:        event.Title,
		Start:        event.Start,
		End:          event.End,
		Latitude:     event.Latitude,
		Longitude:    event.Longitude,
		RadiusMeters: event.RadiusMeters,
		Frequency:    event.Frequency,
		Weekdays:     event.Weekdays,
		Until:        event.Until,
		Timezone:     event.Timezone,
		Visibility:   event.Visibility,
		GroupIDs:     event.GroupIDs,
		Locked:       event.Locked,
		CreatedAt:    event.CreatedAt,
		UpdatedAt:    event.UpdatedAt,
	}
}

func toAttendanceRecord(record persistence.AttendanceRecord) AttendanceRecord {
	return AttendanceRecord{
		ID:                record.ID,
		EventID:           record.EventID,
		Date:              record.Date,
		UserID:            record.UserID,
		Method:            record.Method,
		Status:            record.Status,
		CheckedInAt:       record.CheckedInAt,
		CheckedOutAt:      record.CheckedOutAt,
		Latitude:          record.Latitude,
		Longitude:         record.Longitude,
		DistanceMeters:    record.DistanceMeters,
		DeviceFingerprint: record.DeviceFingerprint,
		Flagged:           record.Flagged,
		FlagReason:        record.FlagReason,
		Notes:             record.Notes,
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         record.UpdatedAt,
	}
}

func toAuditEntry(entry persistence.AuditEntry) AuditEntry {
	return AuditEntry{
		ID:        entry.ID,
		RecordID:  entry.RecordID,
		ActorID:   entry.ActorID,
		Action:    entry.Action,
		Field:     entry.Field,
		OldValue:  entry.OldValue,
		NewValue:  entry.NewValue,
		CreatedAt: entry.CreatedAt,
	}
}

func toUser(user persistence.User) User {
	return User{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
}

func toSession(session persistence.Session) Session {
	return Session{
		ID:          session.ID,
		UserID:      session.UserID,
		Token:       session.Token,
		Fingerprint: session.Fingerprint,
		ExpiresAt:   session.ExpiresAt,
		CreatedAt:   session.CreatedAt,
		UpdatedAt:   session.UpdatedAt,
		RevokedAt:   session.RevokedAt,
	}
}

// eventDefinition projects a stored event onto the resolver's input,
// interpreting times in the event's IANA timezone (UTC when unset).
func eventDefinition(event persistence.Event) (occurrence.Definition, error) {
	loc := time.UTC
	if event.Timezone != "" {
		parsed, err := time.LoadLocation(event.Timezone)
		if err != nil {
			return occurrence.Definition{}, occurrence.ErrInvalidRecurrenceRule
		}
		loc = parsed
	}

	freq, err := occurrence.ParseFrequency(event.Frequency)
	if err != nil {
		return occurrence.Definition{}, err
	}

	return occurrence.Definition{
		EventID: event.ID,
		Start:   event.Start,
		End:     event.End,
		Rule: occurrence.Rule{
			Frequency: freq,
			Weekdays:  event.Weekdays,
			Until:     event.Until,
		},
		Location: loc,
	}, nil
}

func exceptionSet(exceptions []persistence.OccurrenceException) map[string]struct{} {
	if len(exceptions) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(exceptions))
	for _, exc := range exceptions {
		set[exc.Date] = struct{}{}
	}
	return set
}

// resolveOccurrence expands the event for a single civil date, honouring
// exceptions. Dates the series does not produce, or that were deleted,
// resolve to ErrNotFound.
func resolveOccurrence(ctx context.Context, events persistence.EventRepository, event persistence.Event, date string) (Occurrence, error) {
	def, err := eventDefinition(event)
	if err != nil {
		return Occurrence{}, err
	}
	day, err := time.ParseInLocation(occurrence.DateFormat, date, def.Location)
	if err != nil {
		vErr := &ValidationError{}
		vErr.add("date", "invalid occurrence date")
		return Occurrence{}, vErr
	}
	exceptions, err := events.ListExceptions(ctx, event.ID)
	if err != nil {
		return Occurrence{}, err
	}

	window := occurrence.Window{From: day, To: day.Add(24*time.Hour - time.Second)}
	resolved, err := occurrence.Resolve(def, window, exceptionSet(exceptions))
	if err != nil {
		return Occurrence{}, err
	}
	for _, occ := range resolved {
		if occ.Date == date {
			return Occurrence(occ), nil
		}
	}
	return Occurrence{}, ErrNotFound
}

// resolveViewer loads the user's role and group memberships for a team.
// Users not on the roster are reported as ErrNotEligible.
func resolveViewer(ctx context.Context, roster persistence.RosterRepository, groups persistence.GroupRepository, teamID, userID string) (eligibility.Viewer, error) {
	member, err := roster.GetTeamMember(ctx, teamID, userID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return eligibility.Viewer{}, ErrNotEligible
		}
		return eligibility.Viewer{}, err
	}
	role, err := eligibility.ParseRoleKind(member.Role)
	if err != nil {
		return eligibility.Viewer{}, err
	}
	groupIDs, err := groups.ListUserGroups(ctx, teamID, userID)
	if err != nil {
		return eligibility.Viewer{}, err
	}
	return eligibility.Viewer{UserID: userID, Role: role, GroupIDs: groupIDs}, nil
}

func eligibilityEvent(event persistence.Event) eligibility.Event {
	return eligibility.Event{
		CreatorID:        event.CreatorID,
		Visibility:       eligibility.Visibility(event.Visibility),
		AssignedGroupIDs: event.GroupIDs,
	}
}
