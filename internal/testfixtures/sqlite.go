package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/team-attendance/internal/persistence"
	"github.com/example/team-attendance/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite
// database for integration-style persistence tests.
type SQLiteHarness struct {
	Pool       *sqlite.ConnectionPool
	Events     persistence.EventRepository
	Roster     persistence.RosterRepository
	Groups     persistence.GroupRepository
	Expected   persistence.ExpectedAttendeeRepository
	Attendance persistence.AttendanceRepository
	Users      persistence.UserRepository
	Sessions   persistence.SessionRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness over a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// also registers a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "attendance.db")

	pool, err := sqlite.NewConnectionPool(path)
	if err != nil {
		tb.Fatalf("failed to open database: %v", err)
	}

	if err := sqlite.Migrate(context.Background(), pool); err != nil {
		_ = pool.Close()
		tb.Fatalf("failed to migrate database: %v", err)
	}

	harness := &SQLiteHarness{
		Pool:       pool,
		Events:     sqlite.NewEventRepository(pool),
		Roster:     sqlite.NewRosterRepository(pool),
		Groups:     sqlite.NewGroupRepository(pool),
		Expected:   sqlite.NewExpectedAttendeeRepository(pool),
		Attendance: sqlite.NewAttendanceRepository(pool),
		Users:      sqlite.NewUserRepository(pool),
		Sessions:   sqlite.NewSessionRepository(pool),
		cleanup: func() {
			_ = pool.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
