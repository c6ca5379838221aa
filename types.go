package usermgmt

import (
	"context"
	"time"

	"github.com/mcmanusbob/user-management-service/jwt"
	"github.com/mcmanusbob/user-management-service/lockout"
)

// Role classifies a credential within the platform. The engine treats
// roles as opaque beyond membership in the known set; authorization
// decisions belong to the caller.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return true
	}
	return false
}

// Credential is the persisted identity record. PasswordHash and the
// one-time token hashes are secrets; they carry `json:"-"` so a
// credential rendered by a transport layer never leaks them.
type Credential struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      Role   `json:"role"`

	PasswordHash string `json:"-"`

	IsActive        bool `json:"isActive"`
	IsEmailVerified bool `json:"isEmailVerified"`

	LoginAttempts int        `json:"-"`
	LockUntil     *time.Time `json:"-"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`

	PasswordResetTokenHash     string     `json:"-"`
	PasswordResetExpires       *time.Time `json:"-"`
	EmailVerificationTokenHash string     `json:"-"`
	EmailVerificationExpires   *time.Time `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LockState projects the credential's lockout fields into the pure
// state consumed by lockout.Policy.
func (c *Credential) LockState() lockout.State {
	s := lockout.State{Attempts: c.LoginAttempts}
	if c.LockUntil != nil {
		s.LockUntil = *c.LockUntil
	}
	return s
}

// TokenPair is the access/refresh pair returned by Register, Login and
// Refresh.
type TokenPair = jwt.Pair

// RegisterRequest carries the fields accepted by Register. Email is
// normalized (trimmed, lowercased) by the engine; an empty Role
// defaults to RoleStudent.
type RegisterRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      Role
}

// AuthResult is the outcome of ValidateAccess, the minimal identity a
// routing layer needs to guard a request.
type AuthResult struct {
	SubjectID string
	Role      Role
}

// CredentialStore is the persistence boundary for credentials. Both
// bundled implementations (store/memory, store/postgres) satisfy it;
// callers may bring their own.
//
// Implementations return ErrDuplicateCredential, ErrCredentialNotFound
// and ErrTokenNotFound-shaped misses as documented per method, and wrap
// infrastructure failures so the engine can map them to
// ErrStorageUnavailable.
type CredentialStore interface {
	// Create persists a new credential. The engine fills ID, hashes and
	// timestamps before calling. A normalized-email conflict returns
	// ErrDuplicateCredential.
	Create(ctx context.Context, cred *Credential) error

	// GetByEmail looks up by normalized email. Misses return
	// ErrCredentialNotFound.
	GetByEmail(ctx context.Context, email string) (*Credential, error)

	// GetByID looks up by credential ID. Misses return
	// ErrCredentialNotFound.
	GetByID(ctx context.Context, id string) (*Credential, error)

	// UpdatePasswordHash replaces the stored hash and clears any
	// pending password-reset token.
	UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error

	// RecordLoginFailure applies policy.Fail to the stored lockout
	// state atomically and returns the post-transition state.
	RecordLoginFailure(ctx context.Context, id string, policy lockout.Policy, now time.Time) (lockout.State, error)

	// RecordLoginSuccess resets the lockout state and stamps LastLogin.
	RecordLoginSuccess(ctx context.Context, id string, now time.Time) error

	// SetPasswordReset stores the reset token hash and its expiry,
	// replacing any previous pending token.
	SetPasswordReset(ctx context.Context, id, tokenHash string, expires time.Time) error

	// ConsumePasswordReset atomically matches an unexpired reset token
	// hash, clears it, and returns the owning credential. Unknown,
	// expired and already-consumed hashes all return
	// ErrCredentialNotFound.
	ConsumePasswordReset(ctx context.Context, tokenHash string, now time.Time) (*Credential, error)

	// SetEmailVerification stores the verification token hash and
	// expiry, replacing any previous pending token.
	SetEmailVerification(ctx context.Context, id, tokenHash string, expires time.Time) error

	// ConsumeEmailVerification atomically matches an unexpired
	// verification token hash, marks the credential verified, clears
	// the token, and returns the credential. Misses return
	// ErrCredentialNotFound.
	ConsumeEmailVerification(ctx context.Context, tokenHash string, now time.Time) (*Credential, error)

	// SetActive toggles the credential's active flag.
	SetActive(ctx context.Context, id string, active bool, now time.Time) error
}
