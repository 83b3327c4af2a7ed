package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/team-attendance/internal/persistence"
)

func authFixture(t *testing.T) (*AuthService, *memUsers, *memSessions, *clockStub) {
	t.Helper()

	clock := newClockStub(time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC))
	users := newMemUsers()
	sessions := newMemSessions()

	hash, err := CreatePasswordHash("correct horse battery staple", DefaultArgon2idParams)
	if err != nil {
		t.Fatalf("CreatePasswordHash returned error: %v", err)
	}
	if err := users.CreateUser(context.Background(), persistence.User{
		ID:           "user-1",
		Email:        "coach@example.com",
		DisplayName:  "Coach",
		PasswordHash: hash,
		CreatedAt:    clock.Now(),
		UpdatedAt:    clock.Now(),
	}); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	svc := NewAuthService(users, sessions, nil, sequenceIDs("tok"), clock.Now, time.Hour)
	return svc, users, sessions, clock
}

func TestAuthService_Authenticate_IssuesSession(t *testing.T) {
	t.Parallel()

	svc, _, _, clock := authFixture(t)
	ctx := context.Background()

	result, err := svc.Authenticate(ctx, AuthenticateParams{
		Email:    "  Coach@Example.COM ",
		Password: "correct horse battery staple",
	})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if result.User.ID != "user-1" {
		t.Fatalf("user = %q, want user-1", result.User.ID)
	}
	if result.Session.Token == "" {
		t.Fatal("expected a session token")
	}
	if !result.Session.ExpiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("session ExpiresAt = %v, want %v", result.Session.ExpiresAt, clock.Now().Add(time.Hour))
	}

	principal, err := svc.ValidateSession(ctx, result.Session.Token)
	if err != nil {
		t.Fatalf("ValidateSession returned error: %v", err)
	}
	if principal.UserID != "user-1" {
		t.Fatalf("principal = %q, want user-1", principal.UserID)
	}
}

func TestAuthService_Authenticate_RejectsBadCredentials(t *testing.T) {
	t.Parallel()

	svc, users, _, clock := authFixture(t)
	ctx := context.Background()

	cases := []AuthenticateParams{
		{Email: "coach@example.com", Password: "wrong"},
		{Email: "nobody@example.com", Password: "correct horse battery staple"},
		{Email: "", Password: "correct horse battery staple"},
		{Email: "coach@example.com", Password: ""},
	}
	for _, params := range cases {
		if _, err := svc.Authenticate(ctx, params); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%q/%q: expected ErrInvalidCredentials, got %v", params.Email, params.Password, err)
		}
	}

	disabledHash, err := CreatePasswordHash("pw", DefaultArgon2idParams)
	if err != nil {
		t.Fatalf("CreatePasswordHash returned error: %v", err)
	}
	_ = users.CreateUser(ctx, persistence.User{
		ID:           "user-2",
		Email:        "benched@example.com",
		PasswordHash: disabledHash,
		Disabled:     true,
		CreatedAt:    clock.Now(),
	})
	if _, err := svc.Authenticate(ctx, AuthenticateParams{Email: "benched@example.com", Password: "pw"}); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestAuthService_ValidateSession_ChecksLifecycle(t *testing.T) {
	t.Parallel()

	svc, _, _, clock := authFixture(t)
	ctx := context.Background()

	result, err := svc.Authenticate(ctx, AuthenticateParams{
		Email:    "coach@example.com",
		Password: "correct horse battery staple",
	})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	token := result.Session.Token

	if _, err := svc.ValidateSession(ctx, "unknown-token"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for unknown token, got %v", err)
	}
	if _, err := svc.ValidateSession(ctx, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty token, got %v", err)
	}

	clock.Advance(61 * time.Minute)
	if _, err := svc.ValidateSession(ctx, token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestAuthService_RevokeSession_InvalidatesToken(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := authFixture(t)
	ctx := context.Background()

	result, err := svc.Authenticate(ctx, AuthenticateParams{
		Email:    "coach@example.com",
		Password: "correct horse battery staple",
	})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	token := result.Session.Token

	if err := svc.RevokeSession(ctx, token); err != nil {
		t.Fatalf("RevokeSession returned error: %v", err)
	}
	if _, err := svc.ValidateSession(ctx, token); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
	if err := svc.RevokeSession(ctx, token); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for a second revoke, got %v", err)
	}
}
