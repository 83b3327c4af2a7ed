package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/team-attendance/internal/application"
)

type eventService interface {
	CreateEvent(ctx context.Context, params application.CreateEventParams) (application.Event, error)
	UpdateEvent(ctx context.Context, params application.UpdateEventParams) (application.Event, error)
	GetEvent(ctx context.Context, principal application.Principal, eventID string) (application.Event, error)
	DeleteEvent(ctx context.Context, principal application.Principal, eventID string) error
	ListOccurrences(ctx context.Context, params application.ListOccurrencesParams) ([]application.Occurrence, error)
	DeleteOccurrence(ctx context.Context, params application.DeleteOccurrenceParams) error
	SetEventLocked(ctx context.Context, principal application.Principal, eventID string, locked bool) error
	AssignEventGroups(ctx context.Context, principal application.Principal, eventID string, groupIDs []string) error
	GetExpectedAttendees(ctx context.Context, principal application.Principal, eventID string) ([]application.ExpectedAttendee, error)
}

type EventHandler struct {
	service   eventService
	responder responder
}

func NewEventHandler(service eventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{service: service, responder: newResponder(logger)}
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := h.service.CreateEvent(r.Context(), application.CreateEventParams{
		Principal: principal,
		Input:     input,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toEventDTO(event))
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := h.service.GetEvent(r.Context(), principal, eventID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEventDTO(event))
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := h.service.UpdateEvent(r.Context(), application.UpdateEventParams{
		Principal: principal,
		EventID:   eventID,
		Input:     input,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEventDTO(event))
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteEvent(r.Context(), principal, eventID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *EventHandler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	query := r.URL.Query()
	from, err := parseQueryTime(query.Get("from"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, fmt.Errorf("invalid from: %v", err))
		return
	}
	to, err := parseQueryTime(query.Get("to"))
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, fmt.Errorf("invalid to: %v", err))
		return
	}
	if from.IsZero() || to.IsZero() {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errors.New("from and to query parameters are required"))
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	occurrences, err := h.service.ListOccurrences(r.Context(), application.ListOccurrencesParams{
		Principal: principal,
		EventID:   eventID,
		From:      from,
		To:        to,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]occurrenceDTO, 0, len(occurrences))
	for _, occ := range occurrences {
		out = append(out, toOccurrenceDTO(occ))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listOccurrencesResponse{Occurrences: out})
}

func (h *EventHandler) DeleteOccurrence(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	key, ok := occurrenceKeyFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteOccurrence(r.Context(), application.DeleteOccurrenceParams{
		Principal: principal,
		Key:       key,
	}); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *EventHandler) SetLocked(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.SetEventLocked(r.Context(), principal, eventID, req.Locked); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *EventHandler) AssignGroups(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	var req assignGroupsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.AssignEventGroups(r.Context(), principal, eventID, req.GroupIDs); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *EventHandler) ExpectedAttendees(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	expected, err := h.service.GetExpectedAttendees(r.Context(), principal, eventID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]expectedAttendeeDTO, 0, len(expected))
	for _, attendee := range expected {
		out = append(out, expectedAttendeeDTO{UserID: attendee.UserID, Reason: attendee.Reason})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, expectedAttendeesResponse{Attendees: out})
}

func occurrenceKeyFromContext(ctx context.Context) (application.OccurrenceKey, bool) {
	eventID, ok := EventIDFromContext(ctx)
	if !ok || strings.TrimSpace(eventID) == "" {
		return application.OccurrenceKey{}, false
	}
	date, ok := DateFromContext(ctx)
	if !ok || strings.TrimSpace(date) == "" {
		return application.OccurrenceKey{}, false
	}
	return application.OccurrenceKey{EventID: eventID, Date: date}, true
}

type eventRequest struct {
	TeamID       string   `json:"team_id"`
	Title        string   `json:"title"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	RadiusMeters float64  `json:"radius_meters"`
	Frequency    string   `json:"frequency"`
	Weekdays     []string `json:"weekdays,omitempty"`
	Until        string   `json:"until,omitempty"`
	Timezone     string   `json:"timezone,omitempty"`
	Visibility   string   `json:"visibility"`
	GroupIDs     []string `json:"group_ids,omitempty"`
}

func (req eventRequest) toInput() (application.EventInput, error) {
	start, err := parseRequestTime(req.Start)
	if err != nil {
		return application.EventInput{}, fmt.Errorf("invalid start: %v", err)
	}
	end, err := parseRequestTime(req.End)
	if err != nil {
		return application.EventInput{}, fmt.Errorf("invalid end: %v", err)
	}

	var until *time.Time
	if strings.TrimSpace(req.Until) != "" {
		parsed, err := parseRequestTime(req.Until)
		if err != nil {
			return application.EventInput{}, fmt.Errorf("invalid until: %v", err)
		}
		until = &parsed
	}

	weekdays := make([]time.Weekday, 0, len(req.Weekdays))
	for _, name := range req.Weekdays {
		day, err := parseWeekday(name)
		if err != nil {
			return application.EventInput{}, err
		}
		weekdays = append(weekdays, day)
	}

	return application.EventInput{
		TeamID:       req.TeamID,
		Title:        req.Title,
		Start:        start,
		End:          end,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		RadiusMeters: req.RadiusMeters,
		Frequency:    req.Frequency,
		Weekdays:     weekdays,
		Until:        until,
		Timezone:     req.Timezone,
		Visibility:   req.Visibility,
		GroupIDs:     req.GroupIDs,
	}, nil
}

type eventDTO struct {
	ID           string   `json:"id"`
	TeamID       string   `json:"team_id"`
	CreatorID    string   `json:"creator_id"`
	Title        string   `json:"title"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	RadiusMeters float64  `json:"radius_meters"`
	Frequency    string   `json:"frequency"`
	Weekdays     []string `json:"weekdays,omitempty"`
	Until        string   `json:"until,omitempty"`
	Timezone     string   `json:"timezone"`
	Visibility   string   `json:"visibility"`
	GroupIDs     []string `json:"group_ids,omitempty"`
	Locked       bool     `json:"locked"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

func toEventDTO(event application.Event) eventDTO {
	dto := eventDTO{
		ID:           event.ID,
		TeamID:       event.TeamID,
		CreatorID:    event.CreatorID,
		Title:        event.Title,
		Start:        formatTime(event.Start),
		End:          formatTime(event.End),
		Latitude:     event.Latitude,
		Longitude:    event.Longitude,
		RadiusMeters: event.RadiusMeters,
		Frequency:    event.Frequency,
		Timezone:     event.Timezone,
		Visibility:   event.Visibility,
		GroupIDs:     event.GroupIDs,
		Locked:       event.Locked,
		CreatedAt:    formatTime(event.CreatedAt),
		UpdatedAt:    formatTime(event.UpdatedAt),
	}
	for _, day := range event.Weekdays {
		dto.Weekdays = append(dto.Weekdays, strings.ToLower(day.String()))
	}
	if event.Until != nil {
		dto.Until = formatTime(*event.Until)
	}
	return dto
}

type occurrenceDTO struct {
	EventID string `json:"event_id"`
	Date    string `json:"date"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

func toOccurrenceDTO(occ application.Occurrence) occurrenceDTO {
	return occurrenceDTO{
		EventID: occ.EventID,
		Date:    occ.Date,
		Start:   formatTime(occ.Start),
		End:     formatTime(occ.End),
	}
}

type listOccurrencesResponse struct {
	Occurrences []occurrenceDTO `json:"occurrences"`
}

type expectedAttendeeDTO struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

type expectedAttendeesResponse struct {
	Attendees []expectedAttendeeDTO `json:"attendees"`
}

type lockRequest struct {
	Locked bool `json:"locked"`
}

type assignGroupsRequest struct {
	GroupIDs []string `json:"group_ids"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekday(name string) (time.Weekday, error) {
	day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", name)
	}
	return day, nil
}

func parseRequestTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(value))
}

// parseQueryTime accepts RFC 3339 timestamps and bare civil dates.
func parseQueryTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02", trimmed)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
