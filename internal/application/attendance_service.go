package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/team-attendance/internal/anticheat"
	"github.com/example/team-attendance/internal/eligibility"
	"github.com/example/team-attendance/internal/geo"
	"github.com/example/team-attendance/internal/persistence"
)

// AttendanceService is the attendance state machine. It owns the
// per-(occurrence, user) record lifecycle: idempotent check-in and
// check-out, lateness classification, advisory anti-cheat flagging and
// coach-driven status writes. Every committed mutation appends audit
// entries in the same transaction and publishes exactly one change on the
// feed.
type AttendanceService struct {
	events      persistence.EventRepository
	roster      persistence.RosterRepository
	groups      persistence.GroupRepository
	attendance  persistence.AttendanceRepository
	tokens      *TokenService
	feed        *ChangeFeed
	thresholds  LatenessThresholds
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewAttendanceService constructs an AttendanceService with the provided
// dependencies.
func NewAttendanceService(events persistence.EventRepository, roster persistence.RosterRepository, groups persistence.GroupRepository, attendance persistence.AttendanceRepository, tokens *TokenService, feed *ChangeFeed, thresholds LatenessThresholds, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AttendanceService {
	if thresholds == (LatenessThresholds{}) {
		thresholds = DefaultLatenessThresholds
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AttendanceService{
		events:      events,
		roster:      roster,
		groups:      groups,
		attendance:  attendance,
		tokens:      tokens,
		feed:        feed,
		thresholds:  thresholds,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *AttendanceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AttendanceService", operation, attrs...)
}

// classifyStatus maps minutes of lateness onto the four-tier status.
func classifyStatus(lateMinutes int, t LatenessThresholds) string {
	switch {
	case lateMinutes <= t.OnTime:
		return StatusPresent
	case lateMinutes <= t.Late10:
		return StatusLate10
	case lateMinutes <= t.Late30:
		return StatusLate30
	default:
		return StatusVeryLate
	}
}

// IssueToken produces a signed single-use check-in token for one
// occurrence. The actor must hold a coach or admin role for the event's
// team.
func (s *AttendanceService) IssueToken(ctx context.Context, params IssueTokenParams) (result IssueTokenResult, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}
	if s.tokens == nil {
		err = fmt.Errorf("token service not configured")
		return
	}

	logger := s.loggerWith(ctx, "IssueToken",
		"event_id", params.Key.EventID,
		"date", params.Key.Date,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "token issue failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "token issued")
	}()

	var event persistence.Event
	event, err = s.events.GetEvent(ctx, params.Key.EventID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrNotFound
		}
		return
	}
	if _, err = s.requireManager(ctx, event.TeamID, params.Principal.UserID); err != nil {
		return
	}

	var occ Occurrence
	occ, err = resolveOccurrence(ctx, s.events, event, params.Key.Date)
	if err != nil {
		return
	}

	scope := TokenScope{EventID: event.ID, Date: occ.Date, TeamID: event.TeamID}
	var token string
	var claims TokenClaims
	token, claims, err = s.tokens.Issue(scope, occ.End)
	if err != nil {
		return
	}
	result = IssueTokenResult{Token: token, ExpiresAt: claims.ExpiresAt}
	return
}

// CheckIn applies one check-in attempt. Repeated attempts after the first
// succeeding one return the surviving record unchanged together with
// ErrAlreadyCheckedIn.
func (s *AttendanceService) CheckIn(ctx context.Context, params CheckInParams) (record AttendanceRecord, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CheckIn",
		"event_id", params.Key.EventID,
		"date", params.Key.Date,
		"method", params.Method,
	)
	defer func() {
		if err != nil && !errors.Is(err, ErrAlreadyCheckedIn) {
			logger.ErrorContext(ctx, "check-in rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", record.UserID, "status", record.Status).InfoContext(ctx, "check-in handled")
	}()

	if params.Method != MethodToken && params.Method != MethodLocation && params.Method != MethodManual {
		vErr := &ValidationError{}
		vErr.add("method", "unknown check-in method")
		err = vErr
		return
	}

	var event persistence.Event
	event, err = s.events.GetEvent(ctx, params.Key.EventID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrNotFound
		}
		return
	}

	// Manual check-ins are coach actions and may target another user.
	targetUserID := params.Principal.UserID
	if params.Method == MethodManual {
		if _, err = s.requireManager(ctx, event.TeamID, params.Principal.UserID); err != nil {
			return
		}
		if params.UserID != "" {
			targetUserID = params.UserID
		}
	}

	if event.Locked && params.Method != MethodManual {
		err = ErrEventLocked
		return
	}

	var viewer eligibility.Viewer
	viewer, err = resolveViewer(ctx, s.roster, s.groups, event.TeamID, targetUserID)
	if err != nil {
		return
	}
	if !eligibility.IsVisible(eligibilityEvent(event), viewer) {
		err = ErrNotEligible
		return
	}

	var occ Occurrence
	occ, err = resolveOccurrence(ctx, s.events, event, params.Key.Date)
	if err != nil {
		return
	}

	// Advisory fast path; the insert conflict below is the authoritative
	// duplicate check.
	existing, getErr := s.attendance.GetRecord(ctx, event.ID, occ.Date, targetUserID)
	if getErr == nil {
		record = toAttendanceRecord(existing)
		err = ErrAlreadyCheckedIn
		return
	}
	if !errors.Is(getErr, persistence.ErrNotFound) {
		err = getErr
		return
	}

	now := s.now()
	checkInReference := now
	var nonce *persistence.ConsumedNonce
	var distance *float64

	switch params.Method {
	case MethodToken:
		var claims TokenClaims
		claims, err = s.tokens.Verify(params.Token, TokenScope{EventID: event.ID, Date: occ.Date, TeamID: event.TeamID})
		if err != nil {
			return
		}
		consumed, nonceErr := s.attendance.GetConsumedNonce(ctx, claims.Nonce)
		if nonceErr == nil {
			if consumed.UserID != targetUserID {
				err = ErrTokenReplayed
				return
			}
			// Same user re-scanning an already spent token lands on the
			// existing record via the insert conflict.
		} else if !errors.Is(nonceErr, persistence.ErrNotFound) {
			err = nonceErr
			return
		}
		nonce = &persistence.ConsumedNonce{
			Nonce:      claims.Nonce,
			EventID:    event.ID,
			Date:       occ.Date,
			UserID:     targetUserID,
			ConsumedAt: now,
		}
		// Lateness is measured from the moment the coach opened check-in,
		// not from the scan: queueing behind teammates is not lateness.
		if !claims.IssuedAt.IsZero() {
			checkInReference = claims.IssuedAt
		}
	case MethodLocation:
		if params.Latitude == nil || params.Longitude == nil {
			err = ErrLocationUnavailable
			return
		}
		if event.Latitude == nil || event.Longitude == nil {
			err = ErrEventLocationNotSet
			return
		}
		verdict := geo.Verify(*params.Latitude, *params.Longitude, *event.Latitude, *event.Longitude, event.RadiusMeters)
		distance = &verdict.DistanceMeters
		if !verdict.WithinRadius {
			err = fmt.Errorf("%w: %.0fm from venue", ErrOutOfRadius, verdict.DistanceMeters)
			return
		}
	}

	lateMinutes := 0
	if late := checkInReference.Sub(occ.Start); late > 0 {
		lateMinutes = int(late / time.Minute)
	}
	status := classifyStatus(lateMinutes, s.thresholds)

	flagged, flagReason := s.evaluateAntiCheat(ctx, params, event, distance)

	stored := persistence.AttendanceRecord{
		ID:             s.idGenerator(),
		EventID:        event.ID,
		Date:           occ.Date,
		UserID:         targetUserID,
		Method:         params.Method,
		Status:         status,
		CheckedInAt:    now,
		Latitude:       params.Latitude,
		Longitude:      params.Longitude,
		DistanceMeters: distance,
		Flagged:        flagged,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if params.DeviceFingerprint != "" {
		fp := params.DeviceFingerprint
		stored.DeviceFingerprint = &fp
	}
	if flagReason != "" {
		stored.FlagReason = &flagReason
	}

	write := persistence.AttendanceWrite{
		Record: stored,
		Audit: []persistence.AuditEntry{{
			ID:        s.idGenerator(),
			RecordID:  stored.ID,
			EventID:   event.ID,
			Date:      occ.Date,
			ActorID:   params.Principal.UserID,
			Action:    AuditActionCreated,
			Field:     "status",
			NewValue:  status,
			CreatedAt: now,
		}},
		Nonce: nonce,
	}

	persisted, created, createErr := s.attendance.CreateRecord(ctx, write)
	if createErr != nil {
		if errors.Is(createErr, persistence.ErrDuplicate) {
			// Nonce raced into the table after our pre-check.
			err = s.classifyNonceConflict(ctx, nonce, event.ID, occ.Date, targetUserID, &record)
			return
		}
		err = createErr
		return
	}
	record = toAttendanceRecord(persisted)
	if !created {
		err = ErrAlreadyCheckedIn
		return
	}

	s.feed.Publish(AttendanceChange{
		EventID:    event.ID,
		Date:       occ.Date,
		UserID:     targetUserID,
		Action:     AuditActionCreated,
		Status:     status,
		OccurredAt: now,
	})
	return
}

// classifyNonceConflict resolves a nonce uniqueness failure into the
// user-facing error: replay by another user, or the caller's own earlier
// check-in.
func (s *AttendanceService) classifyNonceConflict(ctx context.Context, nonce *persistence.ConsumedNonce, eventID, date, userID string, record *AttendanceRecord) error {
	if nonce != nil {
		consumed, err := s.attendance.GetConsumedNonce(ctx, nonce.Nonce)
		if err == nil && consumed.UserID != userID {
			return ErrTokenReplayed
		}
	}
	existing, err := s.attendance.GetRecord(ctx, eventID, date, userID)
	if err != nil {
		return err
	}
	*record = toAttendanceRecord(existing)
	return ErrAlreadyCheckedIn
}

func (s *AttendanceService) evaluateAntiCheat(ctx context.Context, params CheckInParams, event persistence.Event, distance *float64) (bool, string) {
	fingerprintFlagged := false
	if params.DeviceFingerprint != "" {
		known, err := s.attendance.FingerprintFlagged(ctx, params.DeviceFingerprint)
		if err == nil {
			fingerprintFlagged = known
		}
	}

	flags := anticheat.Evaluate(anticheat.Sample{
		AccuracyMeters:     params.AccuracyMeters,
		DistanceMeters:     distance,
		EventRadiusMeters:  event.RadiusMeters,
		TokenPresented:     params.Method == MethodToken,
		FingerprintFlagged: fingerprintFlagged,
	})
	if len(flags) == 0 {
		return false, ""
	}
	return true, anticheat.Reason(flags)
}

// CheckOut closes an active record. A record that was never created or is
// already checked out reports ErrNotCheckedIn.
func (s *AttendanceService) CheckOut(ctx context.Context, params CheckOutParams) (record AttendanceRecord, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CheckOut",
		"event_id", params.Key.EventID,
		"date", params.Key.Date,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "check-out rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "checked out")
	}()

	var existing persistence.AttendanceRecord
	existing, err = s.attendance.GetRecord(ctx, params.Key.EventID, params.Key.Date, params.Principal.UserID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrNotCheckedIn
		}
		return
	}
	if existing.CheckedOutAt != nil {
		err = ErrNotCheckedIn
		return
	}

	now := s.now()
	existing.CheckedOutAt = &now
	existing.UpdatedAt = now

	write := persistence.AttendanceWrite{
		Record: existing,
		Audit: []persistence.AuditEntry{{
			ID:        s.idGenerator(),
			RecordID:  existing.ID,
			EventID:   existing.EventID,
			Date:      existing.Date,
			ActorID:   params.Principal.UserID,
			Action:    AuditActionCheckedOut,
			CreatedAt: now,
		}},
	}

	var updated persistence.AttendanceRecord
	updated, err = s.attendance.UpdateRecord(ctx, write)
	if err != nil {
		return
	}
	record = toAttendanceRecord(updated)

	s.feed.Publish(AttendanceChange{
		EventID:    existing.EventID,
		Date:       existing.Date,
		UserID:     existing.UserID,
		Action:     AuditActionCheckedOut,
		Status:     existing.Status,
		OccurredAt: now,
	})
	return
}

// ManualSetStatus writes a coach-chosen status, creating the record when the
// user never checked in. absent and excused are reachable only through this
// path.
func (s *AttendanceService) ManualSetStatus(ctx context.Context, params ManualSetStatusParams) (record AttendanceRecord, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ManualSetStatus",
		"event_id", params.Key.EventID,
		"date", params.Key.Date,
		"target_user_id", params.UserID,
		"status", params.Status,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "manual status rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "manual status written")
	}()

	switch params.Status {
	case StatusPresent, StatusLate10, StatusLate30, StatusVeryLate, StatusAbsent, StatusExcused:
	default:
		vErr := &ValidationError{}
		vErr.add("status", "unknown attendance status")
		err = vErr
		return
	}
	if params.UserID == "" {
		vErr := &ValidationError{}
		vErr.add("user_id", "target user is required")
		err = vErr
		return
	}

	var event persistence.Event
	event, err = s.events.GetEvent(ctx, params.Key.EventID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			err = ErrNotFound
		}
		return
	}
	if err = s.requireEditRights(ctx, event.TeamID, params.Principal.UserID, params.UserID); err != nil {
		return
	}

	var occ Occurrence
	occ, err = resolveOccurrence(ctx, s.events, event, params.Key.Date)
	if err != nil {
		return
	}

	now := s.now()
	existing, getErr := s.attendance.GetRecord(ctx, event.ID, occ.Date, params.UserID)
	if getErr != nil {
		if !errors.Is(getErr, persistence.ErrNotFound) {
			err = getErr
			return
		}
		record, err = s.manualCreate(ctx, params, event.ID, occ.Date, now)
		return
	}

	oldStatus := existing.Status
	existing.Status = params.Status
	existing.UpdatedAt = now
	if params.Note != "" {
		note := params.Note
		existing.Notes = &note
	}

	write := persistence.AttendanceWrite{
		Record: existing,
		Audit: []persistence.AuditEntry{{
			ID:        s.idGenerator(),
			RecordID:  existing.ID,
			EventID:   existing.EventID,
			Date:      existing.Date,
			ActorID:   params.Principal.UserID,
			Action:    AuditActionStatusChanged,
			Field:     "status",
			OldValue:  oldStatus,
			NewValue:  params.Status,
			CreatedAt: now,
		}},
	}

	var updated persistence.AttendanceRecord
	updated, err = s.attendance.UpdateRecord(ctx, write)
	if err != nil {
		return
	}
	record = toAttendanceRecord(updated)

	s.feed.Publish(AttendanceChange{
		EventID:    existing.EventID,
		Date:       existing.Date,
		UserID:     existing.UserID,
		Action:     AuditActionStatusChanged,
		Status:     params.Status,
		OccurredAt: now,
	})
	return
}

func (s *AttendanceService) manualCreate(ctx context.Context, params ManualSetStatusParams, eventID, date string, now time.Time) (AttendanceRecord, error) {
	stored := persistence.AttendanceRecord{
		ID:          s.idGenerator(),
		EventID:     eventID,
		Date:        date,
		UserID:      params.UserID,
		Method:      MethodManual,
		Status:      params.Status,
		CheckedInAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if params.Note != "" {
		note := params.Note
		stored.Notes = &note
	}

	write := persistence.AttendanceWrite{
		Record: stored,
		Audit: []persistence.AuditEntry{{
			ID:        s.idGenerator(),
			RecordID:  stored.ID,
			EventID:   eventID,
			Date:      date,
			ActorID:   params.Principal.UserID,
			Action:    AuditActionCreated,
			Field:     "status",
			NewValue:  params.Status,
			CreatedAt: now,
		}},
	}

	persisted, created, err := s.attendance.CreateRecord(ctx, write)
	if err != nil {
		return AttendanceRecord{}, err
	}
	if !created {
		return toAttendanceRecord(persisted), ErrAlreadyCheckedIn
	}

	s.feed.Publish(AttendanceChange{
		EventID:    eventID,
		Date:       date,
		UserID:     params.UserID,
		Action:     AuditActionCreated,
		Status:     params.Status,
		OccurredAt: now,
	})
	return toAttendanceRecord(persisted), nil
}

// GetAttendance returns the occurrence's records. Coach and admin roles see
// every record; players see only their own.
func (s *AttendanceService) GetAttendance(ctx context.Context, params GetAttendanceParams) ([]AttendanceRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("AttendanceService is nil")
	}

	event, err := s.events.GetEvent(ctx, params.Key.EventID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	viewer, err := resolveViewer(ctx, s.roster, s.groups, event.TeamID, params.Principal.UserID)
	if err != nil {
		return nil, err
	}

	records, err := s.attendance.ListRecords(ctx, params.Key.EventID, params.Key.Date)
	if err != nil {
		return nil, err
	}

	out := make([]AttendanceRecord, 0, len(records))
	for _, stored := range records {
		if !viewer.Role.CanManageAttendance() && stored.UserID != params.Principal.UserID {
			continue
		}
		out = append(out, toAttendanceRecord(stored))
	}
	return out, nil
}

// ListAuditLog returns the occurrence's audit entries ordered by timestamp
// ascending. Coach and admin roles only.
func (s *AttendanceService) ListAuditLog(ctx context.Context, params ListAuditLogParams) ([]AuditEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("AttendanceService is nil")
	}

	event, err := s.events.GetEvent(ctx, params.Key.EventID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if _, err := s.requireManager(ctx, event.TeamID, params.Principal.UserID); err != nil {
		return nil, err
	}

	entries, err := s.attendance.ListAudit(ctx, params.Key.EventID, params.Key.Date)
	if err != nil {
		return nil, err
	}
	out := make([]AuditEntry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toAuditEntry(entry))
	}
	return out, nil
}

func (s *AttendanceService) requireManager(ctx context.Context, teamID, userID string) (eligibility.Viewer, error) {
	viewer, err := resolveViewer(ctx, s.roster, s.groups, teamID, userID)
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

// requireEditRights authorizes manual status writes: full coaches and team
// admins may edit anyone; position coaches only users inside their scoped
// group.
func (s *AttendanceService) requireEditRights(ctx context.Context, teamID, actorID, targetID string) error {
	member, err := s.roster.GetTeamMember(ctx, teamID, actorID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrUnauthorized
		}
		return err
	}
	role, err := eligibility.ParseRoleKind(member.Role)
	if err != nil {
		return err
	}
	if !role.CanManageAttendance() {
		return ErrUnauthorized
	}
	if role != eligibility.RolePositionCoach || member.ScopeGroupID == nil {
		return nil
	}

	targetGroups, err := s.groups.ListUserGroups(ctx, teamID, targetID)
	if err != nil {
		return err
	}
	for _, groupID := range targetGroups {
		if groupID == *member.ScopeGroupID {
			return nil
		}
	}
	return ErrUnauthorized
}
