package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/example/team-attendance/internal/application"
	"github.com/example/team-attendance/internal/config"
	httptransport "github.com/example/team-attendance/internal/http"
	"github.com/example/team-attendance/internal/persistence/sqlite"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A .env file is optional; the environment wins when both are present.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	pool, err := sqlite.NewConnectionPool(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close database", "error", cerr)
		}
	}()

	if err := sqlite.Migrate(context.Background(), pool); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	idGenerator := uuid.NewString
	now := time.Now

	events := sqlite.NewEventRepository(pool)
	roster := sqlite.NewRosterRepository(pool)
	groups := sqlite.NewGroupRepository(pool)
	expected := sqlite.NewExpectedAttendeeRepository(pool)
	attendance := sqlite.NewAttendanceRepository(pool)
	users := sqlite.NewUserRepository(pool)
	sessions := sqlite.NewSessionRepository(pool)

	feed := application.NewChangeFeed(64)
	defer feed.Close()

	tokenService := application.NewTokenService([]byte(cfg.TokenSecret), cfg.TokenMaxLifetime, idGenerator, now)
	authService := application.NewAuthServiceWithLogger(users, sessions, nil, idGenerator, now, cfg.SessionTTL, logger)
	eventService := application.NewEventService(events, roster, groups, expected, idGenerator, now, logger)
	attendanceService := application.NewAttendanceService(events, roster, groups, attendance, tokenService, feed, cfg.Lateness, idGenerator, now, logger)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:       httptransport.NewAuthHandler(authService, logger),
		Events:     httptransport.NewEventHandler(eventService, logger),
		Attendance: httptransport.NewAttendanceHandler(attendanceService, logger),
	})

	// Logging in (POST /sessions) is the only route reachable without a
	// session; everything else sits behind the validator.
	protected := httptransport.RequireSession(authService, logger)(router)
	handler := httptransport.RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.EqualFold(r.URL.Path, "/sessions") {
			router.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	}))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("attendance API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}
