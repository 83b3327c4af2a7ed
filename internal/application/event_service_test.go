package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/team-attendance/internal/occurrence"
	"github.com/example/team-attendance/internal/persistence"
)

func weeklyInput() EventInput {
	until := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	return EventInput{
		TeamID:       "team-1",
		Title:        "Weekly practice",
		Start:        time.Date(2026, 1, 6, 15, 0, 0, 0, time.UTC),
		End:          time.Date(2026, 1, 6, 17, 0, 0, 0, time.UTC),
		RadiusMeters: 100,
		Frequency:    "weekly",
		Weekdays:     []time.Weekday{time.Tuesday, time.Thursday},
		Until:        &until,
		Timezone:     "UTC",
		Visibility:   "team",
	}
}

func TestEventService_CreateEvent_ValidatesInput(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()

	input := weeklyInput()
	input.Title = ""
	input.End = input.Start
	input.RadiusMeters = -5
	input.Visibility = "everyone"
	input.Timezone = "Mars/Olympus"

	var vErr *ValidationError
	_, err := f.eventSvc.CreateEvent(ctx, CreateEventParams{Principal: Principal{UserID: "coach-1"}, Input: input})
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"title", "end", "radius_meters", "visibility", "timezone"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Fatalf("expected field error for %q, got %v", field, vErr.FieldErrors)
		}
	}

	// Weekly without weekdays is an invalid recurrence rule.
	input = weeklyInput()
	input.Weekdays = nil
	_, err = f.eventSvc.CreateEvent(ctx, CreateEventParams{Principal: Principal{UserID: "coach-1"}, Input: input})
	if !errors.Is(err, occurrence.ErrInvalidRecurrenceRule) {
		t.Fatalf("expected ErrInvalidRecurrenceRule, got %v", err)
	}
}

func TestEventService_CreateEvent_RequiresManager(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()

	_, err := f.eventSvc.CreateEvent(ctx, CreateEventParams{Principal: Principal{UserID: "player-1"}, Input: weeklyInput()})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	created, err := f.eventSvc.CreateEvent(ctx, CreateEventParams{Principal: Principal{UserID: "coach-1"}, Input: weeklyInput()})
	if err != nil {
		t.Fatalf("CreateEvent returned error: %v", err)
	}
	if created.ID == "" || created.CreatorID != "coach-1" {
		t.Fatalf("unexpected event: %+v", created)
	}
}

func TestEventService_DeleteOccurrence_SurvivesParentEdit(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	coach := Principal{UserID: "coach-1"}

	created, err := f.eventSvc.CreateEvent(ctx, CreateEventParams{Principal: coach, Input: weeklyInput()})
	if err != nil {
		t.Fatalf("CreateEvent returned error: %v", err)
	}

	// Delete the Thursday instance on 2026-01-08.
	key := OccurrenceKey{EventID: created.ID, Date: "2026-01-08"}
	if err := f.eventSvc.DeleteOccurrence(ctx, DeleteOccurrenceParams{Principal: coach, Key: key}); err != nil {
		t.Fatalf("DeleteOccurrence returned error: %v", err)
	}
	// Deleting the same instance again is a no-op.
	if err := f.eventSvc.DeleteOccurrence(ctx, DeleteOccurrenceParams{Principal: coach, Key: key}); err != nil {
		t.Fatalf("repeat DeleteOccurrence returned error: %v", err)
	}
	// Dates the series does not produce cannot be deleted.
	badKey := OccurrenceKey{EventID: created.ID, Date: "2026-01-07"}
	if err := f.eventSvc.DeleteOccurrence(ctx, DeleteOccurrenceParams{Principal: coach, Key: badKey}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a Wednesday, got %v", err)
	}

	// Shift the series start; the deleted date must stay deleted.
	input := weeklyInput()
	input.Start = input.Start.Add(30 * time.Minute)
	input.End = input.End.Add(30 * time.Minute)
	if _, err := f.eventSvc.UpdateEvent(ctx, UpdateEventParams{Principal: coach, EventID: created.ID, Input: input}); err != nil {
		t.Fatalf("UpdateEvent returned error: %v", err)
	}

	occs, err := f.eventSvc.ListOccurrences(ctx, ListOccurrencesParams{
		Principal: coach,
		EventID:   created.ID,
		From:      time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		To:        time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("ListOccurrences returned error: %v", err)
	}
	for _, occ := range occs {
		if occ.Date == "2026-01-08" {
			t.Fatal("deleted instance reappeared after the parent was edited")
		}
	}
	want := []string{"2026-01-06", "2026-01-13", "2026-01-15"}
	if len(occs) != len(want) {
		t.Fatalf("occurrences = %d, want %d (%v)", len(occs), len(want), occs)
	}
	for i, date := range want {
		if occs[i].Date != date {
			t.Fatalf("occurrence[%d] = %q, want %q", i, occs[i].Date, date)
		}
		if occs[i].Start.Minute() != 30 {
			t.Fatalf("occurrence[%d] did not pick up the edited start: %v", i, occs[i].Start)
		}
	}
}

func TestEventService_GetEvent_EnforcesVisibility(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	coach := Principal{UserID: "coach-1"}

	input := weeklyInput()
	input.Visibility = "coaches_only"
	created, err := f.eventSvc.CreateEvent(ctx, CreateEventParams{Principal: coach, Input: input})
	if err != nil {
		t.Fatalf("CreateEvent returned error: %v", err)
	}

	if _, err := f.eventSvc.GetEvent(ctx, Principal{UserID: "player-1"}, created.ID); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible for a player, got %v", err)
	}
	if _, err := f.eventSvc.GetEvent(ctx, coach, created.ID); err != nil {
		t.Fatalf("GetEvent returned error: %v", err)
	}
	if _, err := f.eventSvc.GetEvent(ctx, coach, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEventService_GetExpectedAttendees_FullTeam(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	f.clock.Set(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	coach := Principal{UserID: "coach-1"}

	created, err := f.eventSvc.CreateEvent(ctx, CreateEventParams{Principal: coach, Input: weeklyInput()})
	if err != nil {
		t.Fatalf("CreateEvent returned error: %v", err)
	}

	expected, err := f.eventSvc.GetExpectedAttendees(ctx, coach, created.ID)
	if err != nil {
		t.Fatalf("GetExpectedAttendees returned error: %v", err)
	}
	if len(expected) != 3 {
		t.Fatalf("expected set size = %d, want full roster of 3", len(expected))
	}
	for _, attendee := range expected {
		if attendee.Reason != "full_team" {
			t.Fatalf("attendee %q reason = %q, want full_team", attendee.UserID, attendee.Reason)
		}
	}

	// The computed set is persisted for the next occurrence.
	rows, err := f.expected.ListExpected(ctx, created.ID, "2026-01-06")
	if err != nil {
		t.Fatalf("ListExpected returned error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("persisted rows = %d, want 3", len(rows))
	}
}

func TestEventService_AssignEventGroups_RebuildsExpectedSet(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	f.clock.Set(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	coach := Principal{UserID: "coach-1"}

	_ = f.groups.CreateGroup(ctx, persistence.Group{ID: "grp-backs", TeamID: "team-1", Name: "Backs"})
	_ = f.groups.AddGroupMember(ctx, "grp-backs", "player-1", f.clock.Now())

	created, err := f.eventSvc.CreateEvent(ctx, CreateEventParams{Principal: coach, Input: weeklyInput()})
	if err != nil {
		t.Fatalf("CreateEvent returned error: %v", err)
	}
	if _, err := f.eventSvc.GetExpectedAttendees(ctx, coach, created.ID); err != nil {
		t.Fatalf("GetExpectedAttendees returned error: %v", err)
	}

	if err := f.eventSvc.AssignEventGroups(ctx, coach, created.ID, []string{"grp-backs"}); err != nil {
		t.Fatalf("AssignEventGroups returned error: %v", err)
	}

	expected, err := f.eventSvc.GetExpectedAttendees(ctx, coach, created.ID)
	if err != nil {
		t.Fatalf("GetExpectedAttendees returned error: %v", err)
	}
	// Coaches remain expected; of the players only the group member stays.
	byUser := make(map[string]string, len(expected))
	for _, attendee := range expected {
		byUser[attendee.UserID] = attendee.Reason
	}
	if _, ok := byUser["player-2"]; ok {
		t.Fatal("player-2 must leave the expected set after group restriction")
	}
	if reason := byUser["player-1"]; reason != "group_assignment" {
		t.Fatalf("player-1 reason = %q, want group_assignment", reason)
	}
	if _, ok := byUser["coach-1"]; !ok {
		t.Fatal("coach-1 must stay in the expected set")
	}
}

func TestEventService_SetEventLocked_RequiresManager(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()

	if err := f.eventSvc.SetEventLocked(ctx, Principal{UserID: "player-1"}, "evt-1", true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.eventSvc.SetEventLocked(ctx, Principal{UserID: "coach-1"}, "evt-1", true); err != nil {
		t.Fatalf("SetEventLocked returned error: %v", err)
	}
	event, err := f.events.GetEvent(ctx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent returned error: %v", err)
	}
	if !event.Locked {
		t.Fatal("event was not locked")
	}
}

func TestEventService_DeleteEvent_RequiresManager(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()

	if err := f.eventSvc.DeleteEvent(ctx, Principal{UserID: "player-1"}, "evt-1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := f.eventSvc.DeleteEvent(ctx, Principal{UserID: "coach-1"}, "evt-1"); err != nil {
		t.Fatalf("DeleteEvent returned error: %v", err)
	}
	if _, err := f.events.GetEvent(ctx, "evt-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected the event to be gone, got %v", err)
	}
}
