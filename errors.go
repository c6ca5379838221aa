package usermgmt

import "errors"

// Sentinel errors returned by Engine operations. Callers branch with
// errors.Is; wrapped context (user IDs, store diagnostics) rides along
// via %w chains.
var (
	// ErrDuplicateCredential is returned by Register when the email is
	// already taken by another credential in the same tenant.
	ErrDuplicateCredential = errors.New("credential already exists")

	// ErrCredentialNotFound is returned when a credential lookup by ID
	// finds nothing. Login never returns it; a missing email maps to
	// ErrInvalidCredentials instead.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrInvalidCredentials covers both unknown email and wrong
	// password so that Login does not leak which half failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked is returned while a lockout window is open.
	ErrAccountLocked = errors.New("account temporarily locked")

	// ErrAccountInactive is returned for deactivated credentials.
	ErrAccountInactive = errors.New("account is inactive")

	// ErrTokenInvalid covers malformed, forged, revoked, or
	// wrong-kind tokens.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired is returned for structurally valid tokens whose
	// lifetime has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidOrExpiredToken is the uniform failure for one-time
	// action tokens (password reset, email verification). Unknown,
	// expired, and already-consumed tokens are indistinguishable.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	// ErrPasswordPolicy is returned when a candidate password fails
	// the configured policy.
	ErrPasswordPolicy = errors.New("password does not meet policy")

	// ErrPasswordReuse is returned by ChangePassword and ResetPassword
	// when the new password verifies against the current hash.
	ErrPasswordReuse = errors.New("new password must differ from current password")

	// ErrInvalidRole is returned by Register for a role outside the
	// known set.
	ErrInvalidRole = errors.New("invalid role")

	// ErrStorageUnavailable wraps credential store and session
	// registry infrastructure failures.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrEngineNotReady is returned by Build when required
	// dependencies are missing and by operations on a closed Engine.
	ErrEngineNotReady = errors.New("engine not ready")
)
