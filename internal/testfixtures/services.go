package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/team-attendance/internal/application"
	"github.com/example/team-attendance/internal/persistence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// NewTokenService builds a token service signing with the given secret. Zero
// maxLifetime falls back to four hours.
func (f *ServiceFactory) NewTokenService(secret []byte, maxLifetime time.Duration) *application.TokenService {
	if maxLifetime <= 0 {
		maxLifetime = 4 * time.Hour
	}
	return application.NewTokenService(secret, maxLifetime, f.IDGenerator.NextFunc(), f.Clock.NowFunc())
}

// EventServiceDeps captures dependencies for constructing an event service.
type EventServiceDeps struct {
	Events      persistence.EventRepository
	Roster      persistence.RosterRepository
	Groups      persistence.GroupRepository
	Expected    persistence.ExpectedAttendeeRepository
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewEventService builds an event service using the supplied dependencies
// combined with the factory defaults.
func (f *ServiceFactory) NewEventService(deps EventServiceDeps) *application.EventService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewEventService(
		deps.Events,
		deps.Roster,
		deps.Groups,
		deps.Expected,
		idGen,
		now,
		deps.Logger,
	)
}

// AttendanceServiceDeps captures dependencies for constructing an attendance
// service.
type AttendanceServiceDeps struct {
	Events      persistence.EventRepository
	Roster      persistence.RosterRepository
	Groups      persistence.GroupRepository
	Attendance  persistence.AttendanceRepository
	Tokens      *application.TokenService
	Feed        *application.ChangeFeed
	Thresholds  application.LatenessThresholds
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewAttendanceService builds an attendance service using the supplied
// dependencies combined with the factory defaults.
func (f *ServiceFactory) NewAttendanceService(deps AttendanceServiceDeps) *application.AttendanceService {
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewAttendanceService(
		deps.Events,
		deps.Roster,
		deps.Groups,
		deps.Attendance,
		deps.Tokens,
		deps.Feed,
		deps.Thresholds,
		idGen,
		now,
		deps.Logger,
	)
}

// AuthServiceDeps captures dependencies for constructing an auth service.
type AuthServiceDeps struct {
	Users          persistence.UserRepository
	Sessions       persistence.SessionRepository
	PasswordVerify application.PasswordVerifier
	TokenGenerator func() string
	Now            func() time.Time
	SessionTTL     time.Duration
	Logger         *slog.Logger
}

// NewAuthService builds an auth service using the supplied dependencies.
func (f *ServiceFactory) NewAuthService(deps AuthServiceDeps) *application.AuthService {
	token := deps.TokenGenerator
	if token == nil {
		token = f.IDGenerator.NextFunc()
	}
	now := deps.Now
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return application.NewAuthServiceWithLogger(
		deps.Users,
		deps.Sessions,
		deps.PasswordVerify,
		token,
		now,
		deps.SessionTTL,
		deps.Logger,
	)
}
