package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/team-attendance/internal/persistence"
)

func practiceEvent() persistence.Event {
	lat := 51.5000
	lon := -0.1200
	created := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	return persistence.Event{
		ID:           "evt-1",
		TeamID:       "team-1",
		CreatorID:    "coach-1",
		Title:        "Tuesday practice",
		Start:        time.Date(2026, 1, 6, 15, 0, 0, 0, time.UTC),
		End:          time.Date(2026, 1, 6, 17, 0, 0, 0, time.UTC),
		Latitude:     &lat,
		Longitude:    &lon,
		RadiusMeters: 100,
		Frequency:    "none",
		Timezone:     "UTC",
		Visibility:   "team",
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

var practiceKey = OccurrenceKey{EventID: "evt-1", Date: "2026-01-06"}

func practiceFixture() *engineFixture {
	f := newEngineFixture(time.Date(2026, 1, 6, 14, 0, 0, 0, time.UTC))
	f.addMember("team-1", "coach-1", "head_coach")
	f.addMember("team-1", "player-1", "player")
	f.addMember("team-1", "player-2", "player")
	f.addEvent(practiceEvent())
	return f
}

func coordPtr(v float64) *float64 { return &v }

func locationCheckIn(userID string) CheckInParams {
	return CheckInParams{
		Principal: Principal{UserID: userID},
		Key:       practiceKey,
		Method:    MethodLocation,
		Latitude:  coordPtr(51.5000),
		Longitude: coordPtr(-0.1200),
	}
}

func TestAttendanceService_CheckIn_TokenLatenessRunsFromIssue(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()

	f.clock.Set(time.Date(2026, 1, 6, 14, 55, 0, 0, time.UTC))
	issued, err := f.svc.IssueToken(ctx, IssueTokenParams{Principal: Principal{UserID: "coach-1"}, Key: practiceKey})
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}
	if !issued.ExpiresAt.Equal(time.Date(2026, 1, 6, 17, 0, 0, 0, time.UTC)) {
		t.Fatalf("token ExpiresAt = %v, want occurrence end", issued.ExpiresAt)
	}

	f.clock.Set(time.Date(2026, 1, 6, 15, 2, 0, 0, time.UTC))
	record, err := f.svc.CheckIn(ctx, CheckInParams{
		Principal: Principal{UserID: "player-1"},
		Key:       practiceKey,
		Method:    MethodToken,
		Token:     issued.Token,
	})
	if err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}
	if record.Status != StatusPresent {
		t.Fatalf("status = %q, want %q", record.Status, StatusPresent)
	}
	if record.Method != MethodToken {
		t.Fatalf("method = %q, want %q", record.Method, MethodToken)
	}
	if !record.CheckedInAt.Equal(f.clock.Now()) {
		t.Fatalf("CheckedInAt = %v, want scan time %v", record.CheckedInAt, f.clock.Now())
	}
}

func TestAttendanceService_CheckIn_ClassifiesLatenessTiers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		userID string
		at     time.Time
		want   string
	}{
		{"player-1", time.Date(2026, 1, 6, 15, 0, 0, 0, time.UTC), StatusPresent},
		{"player-2", time.Date(2026, 1, 6, 15, 5, 0, 0, time.UTC), StatusLate10},
		{"player-3", time.Date(2026, 1, 6, 15, 25, 0, 0, time.UTC), StatusLate30},
		{"player-4", time.Date(2026, 1, 6, 15, 42, 0, 0, time.UTC), StatusVeryLate},
	}

	f := practiceFixture()
	f.addMember("team-1", "player-3", "player")
	f.addMember("team-1", "player-4", "player")
	ctx := context.Background()

	for _, tc := range cases {
		f.clock.Set(tc.at)
		record, err := f.svc.CheckIn(ctx, locationCheckIn(tc.userID))
		if err != nil {
			t.Fatalf("%s: CheckIn returned error: %v", tc.userID, err)
		}
		if record.Status != tc.want {
			t.Fatalf("%s at %v: status = %q, want %q", tc.userID, tc.at, record.Status, tc.want)
		}
	}
}

func TestAttendanceService_CheckIn_IsIdempotent(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	changes, cancel := f.feed.Subscribe()
	defer cancel()

	f.clock.Set(time.Date(2026, 1, 6, 15, 1, 0, 0, time.UTC))
	first, err := f.svc.CheckIn(ctx, locationCheckIn("player-1"))
	if err != nil {
		t.Fatalf("first CheckIn returned error: %v", err)
	}

	f.clock.Set(time.Date(2026, 1, 6, 15, 30, 0, 0, time.UTC))
	second, err := f.svc.CheckIn(ctx, locationCheckIn("player-1"))
	if !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("repeat attempt returned record %q, want surviving record %q", second.ID, first.ID)
	}
	if second.Status != first.Status {
		t.Fatalf("repeat attempt mutated status: %q -> %q", first.Status, second.Status)
	}

	audit, err := f.attendance.ListAudit(ctx, practiceKey.EventID, practiceKey.Date)
	if err != nil {
		t.Fatalf("ListAudit returned error: %v", err)
	}
	if len(audit) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit))
	}

	if got := len(changes); got != 1 {
		t.Fatalf("feed delivered %d changes, want exactly 1", got)
	}
	change := <-changes
	if change.Action != AuditActionCreated || change.UserID != "player-1" {
		t.Fatalf("unexpected change: %+v", change)
	}
}

func TestAttendanceService_CheckIn_ConcurrentAttemptsCreateOneRecord(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	f.clock.Set(time.Date(2026, 1, 6, 15, 0, 0, 0, time.UTC))

	const attempts = 50
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CheckIn(ctx, locationCheckIn("player-1"))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, duplicated := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAlreadyCheckedIn):
			duplicated++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || duplicated != attempts-1 {
		t.Fatalf("succeeded = %d, duplicated = %d, want 1 and %d", succeeded, duplicated, attempts-1)
	}

	records, err := f.attendance.ListRecords(ctx, practiceKey.EventID, practiceKey.Date)
	if err != nil {
		t.Fatalf("ListRecords returned error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	audit, err := f.attendance.ListAudit(ctx, practiceKey.EventID, practiceKey.Date)
	if err != nil {
		t.Fatalf("ListAudit returned error: %v", err)
	}
	if len(audit) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit))
	}
}

func TestAttendanceService_CheckIn_RejectsLockedEvent(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	f.clock.Set(time.Date(2026, 1, 6, 15, 0, 0, 0, time.UTC))
	if err := f.events.SetEventLocked(ctx, "evt-1", true, f.clock.Now()); err != nil {
		t.Fatalf("SetEventLocked returned error: %v", err)
	}

	_, err := f.svc.CheckIn(ctx, locationCheckIn("player-1"))
	if !errors.Is(err, ErrEventLocked) {
		t.Fatalf("expected ErrEventLocked, got %v", err)
	}

	// Manual check-ins are coach corrections and bypass the lock.
	record, err := f.svc.CheckIn(ctx, CheckInParams{
		Principal: Principal{UserID: "coach-1"},
		Key:       practiceKey,
		Method:    MethodManual,
		UserID:    "player-1",
	})
	if err != nil {
		t.Fatalf("manual CheckIn on locked event returned error: %v", err)
	}
	if record.UserID != "player-1" || record.Method != MethodManual {
		t.Fatalf("unexpected manual record: %+v", record)
	}
}

func TestAttendanceService_CheckIn_RejectsIneligibleUsers(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	f.clock.Set(time.Date(2026, 1, 6, 15, 0, 0, 0, time.UTC))

	if _, err := f.svc.CheckIn(ctx, locationCheckIn("stranger")); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible for non-roster user, got %v", err)
	}

	// Restrict the event to a group player-2 is not in.
	_ = f.groups.CreateGroup(ctx, persistence.Group{ID: "grp-backs", TeamID: "team-1", Name: "Backs"})
	_ = f.groups.AddGroupMember(ctx, "grp-backs", "player-1", f.clock.Now())
	if err := f.events.AssignEventGroups(ctx, "evt-1", []string{"grp-backs"}, f.clock.Now()); err != nil {
		t.Fatalf("AssignEventGroups returned error: %v", err)
	}

	if _, err := f.svc.CheckIn(ctx, locationCheckIn("player-2")); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible outside assigned groups, got %v", err)
	}
	if _, err := f.svc.CheckIn(ctx, locationCheckIn("player-1")); err != nil {
		t.Fatalf("group member CheckIn returned error: %v", err)
	}
}

func TestAttendanceService_CheckIn_VerifiesGeofence(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	f.clock.Set(time.Date(2026, 1, 6, 15, 0, 0, 0, time.UTC))

	// Roughly 89m north of the venue, inside the 100m radius.
	near := locationCheckIn("player-1")
	near.Latitude = coordPtr(51.5008)
	record, err := f.svc.CheckIn(ctx, near)
	if err != nil {
		t.Fatalf("CheckIn inside radius returned error: %v", err)
	}
	if record.DistanceMeters == nil || *record.DistanceMeters > 100 {
		t.Fatalf("expected recorded distance within radius, got %v", record.DistanceMeters)
	}

	// Roughly 220m north, outside the radius.
	far := locationCheckIn("player-2")
	far.Latitude = coordPtr(51.5020)
	if _, err := f.svc.CheckIn(ctx, far); !errors.Is(err, ErrOutOfRadius) {
		t.Fatalf("expected ErrOutOfRadius, got %v", err)
	}
	if _, getErr := f.attendance.GetRecord(ctx, practiceKey.EventID, practiceKey.Date, "player-2"); !errors.Is(getErr, persistence.ErrNotFound) {
		t.Fatalf("rejected attempt must not persist a record, got %v", getErr)
	}
}

func TestAttendanceService_CheckIn_RequiresCoordinates(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	f.clock.Set(time.Date(2026, 1, 6, 15, 0, 0, 0, time.UTC))

	params := locationCheckIn("player-1")
	params.Latitude = nil
	params.Longitude = nil
	if _, err := f.svc.CheckIn(ctx, params); !errors.Is(err, ErrLocationUnavailable) {
		t.Fatalf("expected ErrLocationUnavailable, got %v", err)
	}
}

func TestAttendanceService_CheckIn_RequiresVenueLocation(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	event := practiceEvent()
	event.ID = "evt-2"
	event.Latitude = nil
	event.Longitude = nil
	f.addEvent(event)
	f.clock.Set(time.Date(2026, 1, 6, 15, 0, 0, 0, time.UTC))

	params := locationCheckIn("player-1")
	params.Key = OccurrenceKey{EventID: "evt-2", Date: "2026-01-06"}
	if _, err := f.svc.CheckIn(ctx, params); !errors.Is(err, ErrEventLocationNotSet) {
		t.Fatalf("expected ErrEventLocationNotSet, got %v", err)
	}
}

func TestAttendanceService_CheckIn_ReplayedTokenRejectsOtherUsers(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	f.clock.Set(time.Date(2026, 1, 6, 14, 55, 0, 0, time.UTC))
	issued, err := f.svc.IssueToken(ctx, IssueTokenParams{Principal: Principal{UserID: "coach-1"}, Key: practiceKey})
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}

	f.clock.Set(time.Date(2026, 1, 6, 15, 0, 0, 0, time.UTC))
	scan := func(userID string) (AttendanceRecord, error) {
		return f.svc.CheckIn(ctx, CheckInParams{
			Principal: Principal{UserID: userID},
			Key:       practiceKey,
			Method:    MethodToken,
			Token:     issued.Token,
		})
	}

	if _, err := scan("player-1"); err != nil {
		t.Fatalf("first scan returned error: %v", err)
	}
	if _, err := scan("player-2"); !errors.Is(err, ErrTokenReplayed) {
		t.Fatalf("expected ErrTokenReplayed for a second user, got %v", err)
	}
	record, err := scan("player-1")
	if !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn for the owner's re-scan, got %v", err)
	}
	if record.UserID != "player-1" {
		t.Fatalf("re-scan returned record for %q, want player-1", record.UserID)
	}
}

func TestAttendanceService_CheckIn_RejectsExpiredToken(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	f.clock.Set(time.Date(2026, 1, 6, 14, 55, 0, 0, time.UTC))
	issued, err := f.svc.IssueToken(ctx, IssueTokenParams{Principal: Principal{UserID: "coach-1"}, Key: practiceKey})
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}

	f.clock.Set(time.Date(2026, 1, 6, 17, 1, 0, 0, time.UTC))
	_, err = f.svc.CheckIn(ctx, CheckInParams{
		Principal: Principal{UserID: "player-1"},
		Key:       practiceKey,
		Method:    MethodToken,
		Token:     issued.Token,
	})
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestAttendanceService_CheckIn_FlagsSuspiciousAccuracy(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	f.clock.Set(time.Date(2026, 1, 6, 15, 0, 0, 0, time.UTC))

	params := locationCheckIn("player-1")
	params.AccuracyMeters = coordPtr(0.2)
	record, err := f.svc.CheckIn(ctx, params)
	if err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}
	if !record.Flagged {
		t.Fatal("expected advisory flag for implausible accuracy")
	}
	if record.FlagReason == nil || *record.FlagReason == "" {
		t.Fatal("expected a flag reason on the record")
	}
	if record.Status != StatusPresent {
		t.Fatalf("flagging must not change status, got %q", record.Status)
	}
}

func TestAttendanceService_IssueToken_RequiresCoach(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	f.clock.Set(time.Date(2026, 1, 6, 14, 55, 0, 0, time.UTC))

	_, err := f.svc.IssueToken(ctx, IssueTokenParams{Principal: Principal{UserID: "player-1"}, Key: practiceKey})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	_, err = f.svc.IssueToken(ctx, IssueTokenParams{Principal: Principal{UserID: "coach-1"}, Key: OccurrenceKey{EventID: "missing", Date: "2026-01-06"}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown event, got %v", err)
	}
}

func TestAttendanceService_CheckOut_ClosesActiveRecord(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	f.clock.Set(time.Date(2026, 1, 6, 15, 0, 0, 0, time.UTC))

	out := CheckOutParams{Principal: Principal{UserID: "player-1"}, Key: practiceKey}
	if _, err := f.svc.CheckOut(ctx, out); !errors.Is(err, ErrNotCheckedIn) {
		t.Fatalf("expected ErrNotCheckedIn before check-in, got %v", err)
	}

	if _, err := f.svc.CheckIn(ctx, locationCheckIn("player-1")); err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}

	f.clock.Set(time.Date(2026, 1, 6, 16, 45, 0, 0, time.UTC))
	record, err := f.svc.CheckOut(ctx, out)
	if err != nil {
		t.Fatalf("CheckOut returned error: %v", err)
	}
	if record.CheckedOutAt == nil || !record.CheckedOutAt.Equal(f.clock.Now()) {
		t.Fatalf("CheckedOutAt = %v, want %v", record.CheckedOutAt, f.clock.Now())
	}

	if _, err := f.svc.CheckOut(ctx, out); !errors.Is(err, ErrNotCheckedIn) {
		t.Fatalf("expected ErrNotCheckedIn for a second check-out, got %v", err)
	}

	audit, err := f.attendance.ListAudit(ctx, practiceKey.EventID, practiceKey.Date)
	if err != nil {
		t.Fatalf("ListAudit returned error: %v", err)
	}
	if len(audit) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(audit))
	}
	if audit[1].Action != AuditActionCheckedOut {
		t.Fatalf("second audit action = %q, want %q", audit[1].Action, AuditActionCheckedOut)
	}
}

func TestAttendanceService_ManualSetStatus_CreatesAndUpdates(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	f.clock.Set(time.Date(2026, 1, 6, 17, 30, 0, 0, time.UTC))

	created, err := f.svc.ManualSetStatus(ctx, ManualSetStatusParams{
		Principal: Principal{UserID: "coach-1"},
		Key:       practiceKey,
		UserID:    "player-2",
		Status:    StatusExcused,
		Note:      "doctor's appointment",
	})
	if err != nil {
		t.Fatalf("ManualSetStatus returned error: %v", err)
	}
	if created.Method != MethodManual || created.Status != StatusExcused {
		t.Fatalf("unexpected created record: %+v", created)
	}
	if created.Notes == nil || *created.Notes != "doctor's appointment" {
		t.Fatalf("note not stored: %v", created.Notes)
	}

	updated, err := f.svc.ManualSetStatus(ctx, ManualSetStatusParams{
		Principal: Principal{UserID: "coach-1"},
		Key:       practiceKey,
		UserID:    "player-2",
		Status:    StatusAbsent,
	})
	if err != nil {
		t.Fatalf("second ManualSetStatus returned error: %v", err)
	}
	if updated.Status != StatusAbsent {
		t.Fatalf("status = %q, want %q", updated.Status, StatusAbsent)
	}
	if updated.ID != created.ID {
		t.Fatal("status change must mutate the existing record, not create a new one")
	}

	audit, err := f.attendance.ListAudit(ctx, practiceKey.EventID, practiceKey.Date)
	if err != nil {
		t.Fatalf("ListAudit returned error: %v", err)
	}
	if len(audit) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(audit))
	}
	change := audit[1]
	if change.Action != AuditActionStatusChanged || change.OldValue != StatusExcused || change.NewValue != StatusAbsent {
		t.Fatalf("unexpected status-change audit: %+v", change)
	}
}

func TestAttendanceService_ManualSetStatus_ScopesPositionCoaches(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	f.clock.Set(time.Date(2026, 1, 6, 17, 30, 0, 0, time.UTC))

	scope := "grp-backs"
	_ = f.roster.UpsertTeamMember(ctx, persistence.TeamMember{
		TeamID:       "team-1",
		UserID:       "coach-2",
		Role:         "position_coach",
		ScopeGroupID: &scope,
	})
	_ = f.groups.CreateGroup(ctx, persistence.Group{ID: scope, TeamID: "team-1", Name: "Backs"})
	_ = f.groups.AddGroupMember(ctx, scope, "player-1", f.clock.Now())
	_ = f.groups.AddGroupMember(ctx, scope, "coach-2", f.clock.Now())

	set := func(actor, target string) error {
		_, err := f.svc.ManualSetStatus(ctx, ManualSetStatusParams{
			Principal: Principal{UserID: actor},
			Key:       practiceKey,
			UserID:    target,
			Status:    StatusPresent,
		})
		return err
	}

	if err := set("player-1", "player-2"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("player actor: expected ErrUnauthorized, got %v", err)
	}
	if err := set("coach-2", "player-2"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("position coach outside scope: expected ErrUnauthorized, got %v", err)
	}
	if err := set("coach-2", "player-1"); err != nil {
		t.Fatalf("position coach inside scope returned error: %v", err)
	}
	if err := set("coach-1", "player-2"); err != nil {
		t.Fatalf("head coach returned error: %v", err)
	}
}

func TestAttendanceService_ManualSetStatus_ValidatesInput(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()

	var vErr *ValidationError
	_, err := f.svc.ManualSetStatus(ctx, ManualSetStatusParams{
		Principal: Principal{UserID: "coach-1"},
		Key:       practiceKey,
		UserID:    "player-1",
		Status:    "asleep",
	})
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for unknown status, got %v", err)
	}

	_, err = f.svc.ManualSetStatus(ctx, ManualSetStatusParams{
		Principal: Principal{UserID: "coach-1"},
		Key:       practiceKey,
		Status:    StatusAbsent,
	})
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for missing target, got %v", err)
	}
}

func TestAttendanceService_GetAttendance_ScopesPlayersToOwnRecord(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	f.clock.Set(time.Date(2026, 1, 6, 15, 0, 0, 0, time.UTC))

	if _, err := f.svc.CheckIn(ctx, locationCheckIn("player-1")); err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}
	if _, err := f.svc.CheckIn(ctx, locationCheckIn("player-2")); err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}

	own, err := f.svc.GetAttendance(ctx, GetAttendanceParams{Principal: Principal{UserID: "player-1"}, Key: practiceKey})
	if err != nil {
		t.Fatalf("GetAttendance returned error: %v", err)
	}
	if len(own) != 1 || own[0].UserID != "player-1" {
		t.Fatalf("player view = %+v, want only their own record", own)
	}

	all, err := f.svc.GetAttendance(ctx, GetAttendanceParams{Principal: Principal{UserID: "coach-1"}, Key: practiceKey})
	if err != nil {
		t.Fatalf("GetAttendance returned error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("coach view = %d records, want 2", len(all))
	}
}

func TestAttendanceService_ListAuditLog_RequiresCoach(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	f.clock.Set(time.Date(2026, 1, 6, 15, 0, 0, 0, time.UTC))
	if _, err := f.svc.CheckIn(ctx, locationCheckIn("player-1")); err != nil {
		t.Fatalf("CheckIn returned error: %v", err)
	}

	_, err := f.svc.ListAuditLog(ctx, ListAuditLogParams{Principal: Principal{UserID: "player-1"}, Key: practiceKey})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for a player, got %v", err)
	}

	entries, err := f.svc.ListAuditLog(ctx, ListAuditLogParams{Principal: Principal{UserID: "coach-1"}, Key: practiceKey})
	if err != nil {
		t.Fatalf("ListAuditLog returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != AuditActionCreated {
		t.Fatalf("unexpected audit entries: %+v", entries)
	}
}

func TestAttendanceService_CheckIn_UnknownDateResolvesNotFound(t *testing.T) {
	t.Parallel()

	f := practiceFixture()
	ctx := context.Background()
	f.clock.Set(time.Date(2026, 1, 7, 15, 0, 0, 0, time.UTC))

	params := locationCheckIn("player-1")
	params.Key = OccurrenceKey{EventID: "evt-1", Date: "2026-01-07"}
	if _, err := f.svc.CheckIn(ctx, params); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a date outside the series, got %v", err)
	}

	params.Key = OccurrenceKey{EventID: "evt-1", Date: "not-a-date"}
	var vErr *ValidationError
	if _, err := f.svc.CheckIn(ctx, params); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for a malformed date, got %v", err)
	}
}
