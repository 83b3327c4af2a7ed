package application

import "errors"

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrNotEligible is returned when the eligibility rules deny the user
	// visibility of the target occurrence.
	ErrNotEligible = errors.New("application: not eligible")

	// ErrTokenExpired is returned when a check-in token is past its expiry.
	ErrTokenExpired = errors.New("application: token expired")
	// ErrTokenInvalidSignature is returned when a token fails signature or
	// structural validation.
	ErrTokenInvalidSignature = errors.New("application: token signature invalid")
	// ErrTokenScopeMismatch is returned when a token targets a different
	// occurrence or team than the request.
	ErrTokenScopeMismatch = errors.New("application: token scope mismatch")
	// ErrTokenReplayed is returned when a token nonce was already consumed by
	// a different user.
	ErrTokenReplayed = errors.New("application: token replayed")

	// ErrLocationUnavailable is returned when a location check-in carries no
	// coordinates.
	ErrLocationUnavailable = errors.New("application: location unavailable")
	// ErrEventLocationNotSet is returned when a location check-in targets an
	// event without coordinates.
	ErrEventLocationNotSet = errors.New("application: event location not set")
	// ErrOutOfRadius is returned when the supplied position falls outside the
	// event's check-in radius.
	ErrOutOfRadius = errors.New("application: out of radius")

	// ErrAlreadyCheckedIn is returned alongside the surviving record when an
	// active record already exists for the (occurrence, user) pair.
	ErrAlreadyCheckedIn = errors.New("application: already checked in")
	// ErrNotCheckedIn is returned when check-out finds no active record.
	ErrNotCheckedIn = errors.New("application: not checked in")
	// ErrEventLocked is returned when self check-in targets a locked event.
	ErrEventLocked = errors.New("application: event locked")

	// ErrInvalidCredentials is returned when login or session material does not match.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrAccountDisabled is returned when the account exists but is disabled.
	ErrAccountDisabled = errors.New("application: account disabled")
	// ErrSessionExpired is returned when the presented session is past its expiry.
	ErrSessionExpired = errors.New("application: session expired")
	// ErrSessionRevoked is returned when the presented session was revoked.
	ErrSessionRevoked = errors.New("application: session revoked")
	// ErrAlreadyExists is returned when a unique resource already exists.
	ErrAlreadyExists = errors.New("application: already exists")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
