package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/team-attendance/internal/persistence"
)

func testRecord(id, userID string) persistence.AttendanceRecord {
	now := time.Date(2026, 1, 6, 18, 2, 0, 0, time.UTC)
	dist := 42.5
	return persistence.AttendanceRecord{
		ID:             id,
		EventID:        "evt1",
		Date:           "2026-01-06",
		UserID:         userID,
		Method:         "gps",
		Status:         "present",
		CheckedInAt:    now,
		DistanceMeters: &dist,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func testWrite(recordID, userID string) persistence.AttendanceWrite {
	record := testRecord(recordID, userID)
	return persistence.AttendanceWrite{
		Record: record,
		Audit: []persistence.AuditEntry{{
			ID:        recordID + "-audit",
			RecordID:  recordID,
			EventID:   record.EventID,
			Date:      record.Date,
			ActorID:   userID,
			Action:    "created",
			NewValue:  "present",
			CreatedAt: record.CheckedInAt,
		}},
		Nonce: &persistence.ConsumedNonce{
			Nonce:      recordID + "-nonce",
			EventID:    record.EventID,
			Date:       record.Date,
			UserID:     userID,
			ConsumedAt: record.CheckedInAt,
		},
	}
}

func TestAttendanceRepository_CreateRecord_CommitsAuditAndNonce(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewAttendanceRepository(pool)
	ctx := context.Background()

	record, created, err := repo.CreateRecord(ctx, testWrite("rec1", "player1"))
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	if !created {
		t.Fatal("Expected created=true for first check-in")
	}
	if record.Status != "present" {
		t.Errorf("Expected status 'present', got '%s'", record.Status)
	}

	entries, err := repo.ListAudit(ctx, "evt1", "2026-01-06")
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != "created" {
		t.Errorf("Expected one created audit entry, got %v", entries)
	}

	nonce, err := repo.GetConsumedNonce(ctx, "rec1-nonce")
	if err != nil {
		t.Fatalf("GetConsumedNonce failed: %v", err)
	}
	if nonce.UserID != "player1" {
		t.Errorf("Expected nonce consumed by player1, got '%s'", nonce.UserID)
	}
}

func TestAttendanceRepository_CreateRecord_DuplicateReturnsExisting(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewAttendanceRepository(pool)
	ctx := context.Background()

	first, created, err := repo.CreateRecord(ctx, testWrite("rec1", "player1"))
	if err != nil || !created {
		t.Fatalf("First CreateRecord failed: created=%v err=%v", created, err)
	}

	// A second attempt for the same (event, date, user) returns the original
	// record and writes no additional audit or nonce rows.
	second, created, err := repo.CreateRecord(ctx, testWrite("rec2", "player1"))
	if err != nil {
		t.Fatalf("Second CreateRecord failed: %v", err)
	}
	if created {
		t.Error("Expected created=false for duplicate check-in")
	}
	if second.ID != first.ID {
		t.Errorf("Expected the surviving record %s, got %s", first.ID, second.ID)
	}

	entries, err := repo.ListAudit(ctx, "evt1", "2026-01-06")
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected exactly one audit entry after duplicate attempt, got %d", len(entries))
	}
	if _, err := repo.GetConsumedNonce(ctx, "rec2-nonce"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("Expected the loser's nonce to remain unconsumed, got %v", err)
	}
}

func TestAttendanceRepository_CreateRecord_NonceConflictRollsBack(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewAttendanceRepository(pool)
	ctx := context.Background()

	if _, _, err := repo.CreateRecord(ctx, testWrite("rec1", "player1")); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	// A different user presenting the same nonce must fail entirely: the
	// nonce conflict rolls the whole transaction back, record included.
	write := testWrite("rec2", "player2")
	write.Nonce.Nonce = "rec1-nonce"
	_, _, err := repo.CreateRecord(ctx, write)
	if !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("Expected ErrDuplicate for reused nonce, got %v", err)
	}

	if _, err := repo.GetRecord(ctx, "evt1", "2026-01-06", "player2"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("Expected no record for player2 after rollback, got %v", err)
	}
	entries, err := repo.ListAudit(ctx, "evt1", "2026-01-06")
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected one audit entry after rollback, got %d", len(entries))
	}
}

func TestAttendanceRepository_ConcurrentCheckIns(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewAttendanceRepository(pool)
	ctx := context.Background()

	const attempts = 50
	var wg sync.WaitGroup
	results := make(chan bool, attempts)
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			write := testWrite(fmt.Sprintf("rec%d", n), "player1")
			_, created, err := repo.CreateRecord(ctx, write)
			if err != nil {
				errs <- err
				return
			}
			results <- created
		}(i)
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("CreateRecord failed under contention: %v", err)
	}

	createdCount := 0
	for created := range results {
		if created {
			createdCount++
		}
	}
	if createdCount != 1 {
		t.Errorf("Expected exactly 1 created record across %d racing attempts, got %d", attempts, createdCount)
	}

	records, err := repo.ListRecords(ctx, "evt1", "2026-01-06")
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected a single surviving record, got %d", len(records))
	}
	entries, err := repo.ListAudit(ctx, "evt1", "2026-01-06")
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected a single audit entry, got %d", len(entries))
	}
}

func TestAttendanceRepository_UpdateRecord_AppendsAudit(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewAttendanceRepository(pool)
	ctx := context.Background()

	record, _, err := repo.CreateRecord(ctx, testWrite("rec1", "player1"))
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	record.Status = "excused"
	record.UpdatedAt = record.UpdatedAt.Add(time.Minute)
	updated, err := repo.UpdateRecord(ctx, persistence.AttendanceWrite{
		Record: record,
		Audit: []persistence.AuditEntry{{
			ID:        "audit2",
			RecordID:  record.ID,
			EventID:   record.EventID,
			Date:      record.Date,
			ActorID:   "coach1",
			Action:    "status_changed",
			Field:     "status",
			OldValue:  "present",
			NewValue:  "excused",
			CreatedAt: record.UpdatedAt,
		}},
	})
	if err != nil {
		t.Fatalf("UpdateRecord failed: %v", err)
	}
	if updated.Status != "excused" {
		t.Errorf("Expected status 'excused', got '%s'", updated.Status)
	}

	entries, err := repo.ListAudit(ctx, "evt1", "2026-01-06")
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 audit entries, got %d", len(entries))
	}
	if entries[1].Action != "status_changed" || entries[1].OldValue != "present" {
		t.Errorf("Unexpected second audit entry: %+v", entries[1])
	}
}

func TestAttendanceRepository_SoftDeletedRecordsInvisible(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewAttendanceRepository(pool)
	ctx := context.Background()

	record, _, err := repo.CreateRecord(ctx, testWrite("rec1", "player1"))
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	deletedAt := record.UpdatedAt.Add(time.Minute)
	record.DeletedAt = &deletedAt
	record.UpdatedAt = deletedAt
	if _, err := repo.UpdateRecord(ctx, persistence.AttendanceWrite{
		Record: record,
		Audit: []persistence.AuditEntry{{
			ID: "audit2", RecordID: record.ID, EventID: record.EventID, Date: record.Date,
			ActorID: "coach1", Action: "delete", CreatedAt: deletedAt,
		}},
	}); err != nil {
		t.Fatalf("UpdateRecord failed: %v", err)
	}

	if _, err := repo.GetRecord(ctx, "evt1", "2026-01-06", "player1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("Expected soft-deleted record to be invisible, got %v", err)
	}
	records, err := repo.ListRecords(ctx, "evt1", "2026-01-06")
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no visible records, got %d", len(records))
	}

	// The audit trail of the deleted record stays readable.
	entries, err := repo.ListAudit(ctx, "evt1", "2026-01-06")
	if err != nil {
		t.Fatalf("ListAudit failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected audit trail to survive soft delete, got %d entries", len(entries))
	}
}

func TestAttendanceRepository_FingerprintFlagged(t *testing.T) {
	pool := setupTestPool(t)
	repo := NewAttendanceRepository(pool)
	ctx := context.Background()

	fingerprint := "device-abc"
	reason := "implausible_accuracy"
	write := testWrite("rec1", "player1")
	write.Record.DeviceFingerprint = &fingerprint
	write.Record.Flagged = true
	write.Record.FlagReason = &reason
	if _, _, err := repo.CreateRecord(ctx, write); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	flagged, err := repo.FingerprintFlagged(ctx, "device-abc")
	if err != nil {
		t.Fatalf("FingerprintFlagged failed: %v", err)
	}
	if !flagged {
		t.Error("Expected fingerprint to be flagged")
	}

	flagged, err = repo.FingerprintFlagged(ctx, "device-clean")
	if err != nil {
		t.Fatalf("FingerprintFlagged failed: %v", err)
	}
	if flagged {
		t.Error("Expected unknown fingerprint to be clean")
	}
}
