package application

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenScope binds a check-in token to one occurrence of one team's event.
type TokenScope struct {
	EventID string
	Date    string
	TeamID  string
}

// TokenClaims is the verified content of a check-in token. IssuedAt marks
// the moment the coach opened check-in; lateness for token check-ins is
// classified against it rather than the scan time, so queueing to scan does
// not penalise attendees.
type TokenClaims struct {
	Scope     TokenScope
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type checkInClaims struct {
	EventID string `json:"eid"`
	Date    string `json:"dt"`
	TeamID  string `json:"tid"`
	Nonce   string `json:"nce"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies scoped, expiring, single-use check-in
// tokens. Single-use enforcement lives in the attendance path via consumed
// nonces; this service is a pure computation over the secret and the clock.
type TokenService struct {
	secret         []byte
	maxLifetime    time.Duration
	nonceGenerator func() string
	now            func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(secret []byte, maxLifetime time.Duration, nonceGenerator func() string, now func() time.Time) *TokenService {
	if maxLifetime <= 0 {
		maxLifetime = 2 * time.Hour
	}
	if nonceGenerator == nil {
		nonceGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &TokenService{
		secret:         secret,
		maxLifetime:    maxLifetime,
		nonceGenerator: nonceGenerator,
		now:            now,
	}
}

// Issue signs a token for the scope, expiring at the occurrence end or the
// configured max lifetime, whichever comes first.
func (s *TokenService) Issue(scope TokenScope, occurrenceEnd time.Time) (string, TokenClaims, error) {
	if s == nil || len(s.secret) == 0 {
		return "", TokenClaims{}, fmt.Errorf("token secret not configured")
	}

	now := s.now()
	expiresAt := now.Add(s.maxLifetime)
	if occurrenceEnd.Before(expiresAt) {
		expiresAt = occurrenceEnd
	}
	if !expiresAt.After(now) {
		return "", TokenClaims{}, ErrTokenExpired
	}

	claims := checkInClaims{
		EventID: scope.EventID,
		Date:    scope.Date,
		TeamID:  scope.TeamID,
		Nonce:   s.nonceGenerator(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", TokenClaims{}, err
	}

	return signed, TokenClaims{
		Scope:     scope,
		Nonce:     claims.Nonce,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks signature, expiry and scope, in that order. Expiry is
// evaluated against the injected clock rather than the library's, so tests
// and callers share one time source.
func (s *TokenService) Verify(token string, scope TokenScope) (TokenClaims, error) {
	if s == nil || len(s.secret) == 0 {
		return TokenClaims{}, fmt.Errorf("token secret not configured")
	}

	var claims checkInClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return TokenClaims{}, ErrTokenInvalidSignature
		}
		return TokenClaims{}, fmt.Errorf("%w: %v", ErrTokenInvalidSignature, err)
	}

	if claims.ExpiresAt == nil || s.now().After(claims.ExpiresAt.Time) {
		return TokenClaims{}, ErrTokenExpired
	}

	if claims.EventID != scope.EventID || claims.Date != scope.Date || claims.TeamID != scope.TeamID {
		return TokenClaims{}, ErrTokenScopeMismatch
	}

	result := TokenClaims{
		Scope:     TokenScope{EventID: claims.EventID, Date: claims.Date, TeamID: claims.TeamID},
		Nonce:     claims.Nonce,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}
	return result, nil
}
