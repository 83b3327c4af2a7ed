// Package eligibility decides event visibility and builds expected-attendee
// sets. Decisions are pure functions of identity, role and group membership;
// attendance history never influences the outcome.
package eligibility

import (
	"errors"
	"fmt"
)

// RoleKind is the closed set of team roles recognised by the engine.
type RoleKind int

const (
	// RoleUnspecified indicates an unknown or missing role.
	RoleUnspecified RoleKind = iota
	// RoleHeadCoach leads the team.
	RoleHeadCoach
	// RoleAssistantCoach supports the head coach across the full roster.
	RoleAssistantCoach
	// RolePositionCoach coaches a scoped subset of the roster.
	RolePositionCoach
	// RoleTeamAdmin administers the team without coaching duties.
	RoleTeamAdmin
	// RolePlayer is a rostered athlete.
	RolePlayer
)

// ErrUnknownRoleKind indicates a stored role label outside the closed set.
var ErrUnknownRoleKind = errors.New("eligibility: unknown role kind")

var roleLabels = map[RoleKind]string{
	RoleHeadCoach:      "head_coach",
	RoleAssistantCoach: "assistant_coach",
	RolePositionCoach:  "position_coach",
	RoleTeamAdmin:      "team_admin",
	RolePlayer:         "player",
}

// ParseRoleKind maps a stored role label onto the closed enum.
func ParseRoleKind(label string) (RoleKind, error) {
	for kind, l := range roleLabels {
		if l == label {
			return kind, nil
		}
	}
	return RoleUnspecified, fmt.Errorf("%w: %q", ErrUnknownRoleKind, label)
}

// String returns the stored label for the role kind.
func (k RoleKind) String() string {
	if label, ok := roleLabels[k]; ok {
		return label
	}
	return "unspecified"
}

// IsCoachKind reports whether the role is a coaching role. Team admins are
// not coaches for visibility purposes.
func (k RoleKind) IsCoachKind() bool {
	switch k {
	case RoleHeadCoach, RoleAssistantCoach, RolePositionCoach:
		return true
	default:
		return false
	}
}

// CanManageAttendance reports whether the role may issue tokens, set
// statuses manually and read full attendance for the team.
func (k RoleKind) CanManageAttendance() bool {
	return k.IsCoachKind() || k == RoleTeamAdmin
}

// Visibility is the closed set of event visibility kinds.
type Visibility string

const (
	VisibilityPersonal    Visibility = "personal"
	VisibilityTeam        Visibility = "team"
	VisibilityCoachesOnly Visibility = "coaches_only"
	VisibilityPlayersOnly Visibility = "players_only"
)

// Event carries the slice of an event definition visibility depends on.
type Event struct {
	CreatorID        string
	Visibility       Visibility
	AssignedGroupIDs []string
}

// Viewer describes the user whose visibility is being decided.
type Viewer struct {
	UserID   string
	Role     RoleKind
	GroupIDs []string
}

// IsVisible decides whether the viewer may see the event. Rules are
// evaluated in order; the first match wins:
//
//  1. The creator always sees their own event.
//  2. personal events are creator-only.
//  3. coaches_only requires a coach kind, and group membership when the
//     event is group-assigned.
//  4. players_only requires a non-coach kind, and group membership when the
//     event is group-assigned.
//  5. team events: coach kinds always see them; non-coaches see them when
//     the event is full-team or they belong to an assigned group.
func IsVisible(event Event, viewer Viewer) bool {
	if viewer.UserID != "" && viewer.UserID == event.CreatorID {
		return true
	}
	if event.Visibility == VisibilityPersonal {
		return false
	}

	hasGroups := len(event.AssignedGroupIDs) > 0
	inAssignedGroup := hasGroups && intersects(event.AssignedGroupIDs, viewer.GroupIDs)

	switch event.Visibility {
	case VisibilityCoachesOnly:
		if !viewer.Role.IsCoachKind() {
			return false
		}
		return !hasGroups || inAssignedGroup
	case VisibilityPlayersOnly:
		if viewer.Role.IsCoachKind() {
			return false
		}
		return !hasGroups || inAssignedGroup
	case VisibilityTeam:
		if viewer.Role.IsCoachKind() {
			return true
		}
		return !hasGroups || inAssignedGroup
	default:
		return false
	}
}

// Reason tags why a user landed in an expected-attendee set.
type Reason string

const (
	// ReasonFullTeam marks members expected because the event has no group
	// assignment.
	ReasonFullTeam Reason = "full_team"
	// ReasonGroupAssignment marks members expected through an assigned group.
	ReasonGroupAssignment Reason = "group_assignment"
	// ReasonManualAdd marks members added by a coach outside the rules.
	ReasonManualAdd Reason = "manual_add"
)

// Member pairs a roster entry with its role.
type Member struct {
	UserID string
	Role   RoleKind
}

// ExpectedAttendee is one row of a computed expected set.
type ExpectedAttendee struct {
	UserID string
	Reason Reason
}

// BuildExpectedSet applies the visibility rules to every roster member and
// returns the users expected to attend, tagged with the reason. The
// groupsByUser map carries each member's group ids within the team.
func BuildExpectedSet(event Event, roster []Member, groupsByUser map[string][]string) []ExpectedAttendee {
	expected := make([]ExpectedAttendee, 0, len(roster))
	hasGroups := len(event.AssignedGroupIDs) > 0

	for _, member := range roster {
		viewer := Viewer{
			UserID:   member.UserID,
			Role:     member.Role,
			GroupIDs: groupsByUser[member.UserID],
		}
		if !IsVisible(event, viewer) {
			continue
		}
		reason := ReasonFullTeam
		if hasGroups && intersects(event.AssignedGroupIDs, viewer.GroupIDs) {
			reason = ReasonGroupAssignment
		}
		expected = append(expected, ExpectedAttendee{UserID: member.UserID, Reason: reason})
	}

	return expected
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
