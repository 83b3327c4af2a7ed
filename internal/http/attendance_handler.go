package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/team-attendance/internal/application"
)

type attendanceService interface {
	IssueToken(ctx context.Context, params application.IssueTokenParams) (application.IssueTokenResult, error)
	CheckIn(ctx context.Context, params application.CheckInParams) (application.AttendanceRecord, error)
	CheckOut(ctx context.Context, params application.CheckOutParams) (application.AttendanceRecord, error)
	ManualSetStatus(ctx context.Context, params application.ManualSetStatusParams) (application.AttendanceRecord, error)
	GetAttendance(ctx context.Context, params application.GetAttendanceParams) ([]application.AttendanceRecord, error)
	ListAuditLog(ctx context.Context, params application.ListAuditLogParams) ([]application.AuditEntry, error)
}

type AttendanceHandler struct {
	service   attendanceService
	responder responder
}

func NewAttendanceHandler(service attendanceService, logger *slog.Logger) *AttendanceHandler {
	return &AttendanceHandler{service: service, responder: newResponder(logger)}
}

func (h *AttendanceHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
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
	result, err := h.service.IssueToken(r.Context(), application.IssueTokenParams{
		Principal: principal,
		Key:       key,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, tokenResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
}

// CheckIn handles every check-in method. A repeated attempt responds 200 with
// the surviving record instead of 409: the client asked for a state the user
// is already in.
func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	key, ok := occurrenceKeyFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
		return
	}

	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	record, err := h.service.CheckIn(r.Context(), application.CheckInParams{
		Principal:         principal,
		Key:               key,
		Method:            strings.TrimSpace(req.Method),
		UserID:            strings.TrimSpace(req.UserID),
		Token:             req.Token,
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
		AccuracyMeters:    req.AccuracyMeters,
		DeviceFingerprint: strings.TrimSpace(req.DeviceFingerprint),
	})
	if err != nil {
		if errors.Is(err, application.ErrAlreadyCheckedIn) {
			h.responder.writeJSON(r.Context(), w, http.StatusOK, toRecordDTO(record))
			return
		}
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toRecordDTO(record))
}

func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
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
	record, err := h.service.CheckOut(r.Context(), application.CheckOutParams{
		Principal: principal,
		Key:       key,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRecordDTO(record))
}

func (h *AttendanceHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	key, ok := occurrenceKeyFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
		return
	}
	userID, ok := TargetUserIDFromContext(r.Context())
	if !ok || strings.TrimSpace(userID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidUserID)
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	record, err := h.service.ManualSetStatus(r.Context(), application.ManualSetStatusParams{
		Principal: principal,
		Key:       key,
		UserID:    userID,
		Status:    strings.TrimSpace(req.Status),
		Note:      strings.TrimSpace(req.Note),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRecordDTO(record))
}

func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
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
	records, err := h.service.GetAttendance(r.Context(), application.GetAttendanceParams{
		Principal: principal,
		Key:       key,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]attendanceRecordDTO, 0, len(records))
	for _, record := range records {
		out = append(out, toRecordDTO(record))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listAttendanceResponse{Records: out})
}

func (h *AttendanceHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
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
	entries, err := h.service.ListAuditLog(r.Context(), application.ListAuditLogParams{
		Principal: principal,
		Key:       key,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]auditEntryDTO, 0, len(entries))
	for _, entry := range entries {
		out = append(out, toAuditEntryDTO(entry))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listAuditResponse{Entries: out})
}

type checkInRequest struct {
	Method            string   `json:"method"`
	UserID            string   `json:"user_id,omitempty"`
	Token             string   `json:"token,omitempty"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	AccuracyMeters    *float64 `json:"accuracy_meters,omitempty"`
	DeviceFingerprint string   `json:"device_fingerprint,omitempty"`
}

type setStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type attendanceRecordDTO struct {
	ID             string   `json:"id"`
	EventID        string   `json:"event_id"`
	Date           string   `json:"date"`
	UserID         string   `json:"user_id"`
	Method         string   `json:"method"`
	Status         string   `json:"status"`
	CheckedInAt    string   `json:"checked_in_at"`
	CheckedOutAt   string   `json:"checked_out_at,omitempty"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
	Flagged        bool     `json:"flagged"`
	FlagReason     string   `json:"flag_reason,omitempty"`
	Notes          string   `json:"notes,omitempty"`
}

func toRecordDTO(record application.AttendanceRecord) attendanceRecordDTO {
	dto := attendanceRecordDTO{
		ID:             record.ID,
		EventID:        record.EventID,
		Date:           record.Date,
		UserID:         record.UserID,
		Method:         record.Method,
		Status:         record.Status,
		CheckedInAt:    formatTime(record.CheckedInAt),
		DistanceMeters: record.DistanceMeters,
		Flagged:        record.Flagged,
	}
	if record.CheckedOutAt != nil {
		dto.CheckedOutAt = formatTime(*record.CheckedOutAt)
	}
	if record.FlagReason != nil {
		dto.FlagReason = *record.FlagReason
	}
	if record.Notes != nil {
		dto.Notes = *record.Notes
	}
	return dto
}

type listAttendanceResponse struct {
	Records []attendanceRecordDTO `json:"records"`
}

type auditEntryDTO struct {
	ID        string `json:"id"`
	RecordID  string `json:"record_id"`
	ActorID   string `json:"actor_id"`
	Action    string `json:"action"`
	Field     string `json:"field,omitempty"`
	OldValue  string `json:"old_value,omitempty"`
	NewValue  string `json:"new_value,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toAuditEntryDTO(entry application.AuditEntry) auditEntryDTO {
	return auditEntryDTO{
		ID:        entry.ID,
		RecordID:  entry.RecordID,
		ActorID:   entry.ActorID,
		Action:    entry.Action,
		Field:     entry.Field,
		OldValue:  entry.OldValue,
		NewValue:  entry.NewValue,
		CreatedAt: formatTime(entry.CreatedAt),
	}
}

type listAuditResponse struct {
	Entries []auditEntryDTO `json:"entries"`
}
