// Package memory provides an in-memory CredentialStore. It backs the
// module's own tests and is suitable for demos and single-process
// development; nothing survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	usermgmt "github.com/mcmanusbob/user-management-service"
	"github.com/mcmanusbob/user-management-service/lockout"
)

// Store keeps credentials in maps guarded by one RWMutex. Secondary
// indexes map normalized email and pending token hashes to IDs so the
// consume operations stay O(1).
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*usermgmt.Credential
	byEmail map[string]string
	byReset map[string]string
	byVerif map[string]string
}

func New() *Store {
	return &Store{
		byID:    make(map[string]*usermgmt.Credential),
		byEmail: make(map[string]string),
		byReset: make(map[string]string),
		byVerif: make(map[string]string),
	}
}

func clone(c *usermgmt.Credential) *usermgmt.Credential {
	out := *c
	if c.LockUntil != nil {
		t := *c.LockUntil
		out.LockUntil = &t
	}
	if c.LastLogin != nil {
		t := *c.LastLogin
		out.LastLogin = &t
	}
	if c.PasswordResetExpires != nil {
		t := *c.PasswordResetExpires
		out.PasswordResetExpires = &t
	}
	if c.EmailVerificationExpires != nil {
		t := *c.EmailVerificationExpires
		out.EmailVerificationExpires = &t
	}
	return &out
}

func (s *Store) Create(ctx context.Context, cred *usermgmt.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[cred.Email]; taken {
		return usermgmt.ErrDuplicateCredential
	}
	if _, taken := s.byID[cred.ID]; taken {
		return usermgmt.ErrDuplicateCredential
	}

	s.byID[cred.ID] = clone(cred)
	s.byEmail[cred.Email] = cred.ID
	return nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*usermgmt.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, usermgmt.ErrCredentialNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*usermgmt.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.byID[id]
	if !ok {
		return nil, usermgmt.ErrCredentialNotFound
	}
	return clone(cred), nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[id]
	if !ok {
		return usermgmt.ErrCredentialNotFound
	}

	cred.PasswordHash = hash
	s.clearResetLocked(cred)
	cred.UpdatedAt = now
	return nil
}

func (s *Store) RecordLoginFailure(ctx context.Context, id string, policy lockout.Policy, now time.Time) (lockout.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[id]
	if !ok {
		return lockout.State{}, usermgmt.ErrCredentialNotFound
	}

	state := policy.Fail(cred.LockState(), now)
	applyLockState(cred, state)
	cred.UpdatedAt = now
	return state, nil
}

func (s *Store) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[id]
	if !ok {
		return usermgmt.ErrCredentialNotFound
	}

	applyLockState(cred, lockout.State{})
	last := now
	cred.LastLogin = &last
	cred.UpdatedAt = now
	return nil
}

func (s *Store) SetPasswordReset(ctx context.Context, id, tokenHash string, expires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[id]
	if !ok {
		return usermgmt.ErrCredentialNotFound
	}

	s.clearResetLocked(cred)
	cred.PasswordResetTokenHash = tokenHash
	exp := expires
	cred.PasswordResetExpires = &exp
	s.byReset[tokenHash] = id
	return nil
}

func (s *Store) ConsumePasswordReset(ctx context.Context, tokenHash string, now time.Time) (*usermgmt.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byReset[tokenHash]
	if !ok {
		return nil, usermgmt.ErrCredentialNotFound
	}
	cred := s.byID[id]

	expired := cred.PasswordResetExpires == nil || !cred.PasswordResetExpires.After(now)
	s.clearResetLocked(cred)
	if expired {
		return nil, usermgmt.ErrCredentialNotFound
	}

	cred.UpdatedAt = now
	return clone(cred), nil
}

func (s *Store) SetEmailVerification(ctx context.Context, id, tokenHash string, expires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[id]
	if !ok {
		return usermgmt.ErrCredentialNotFound
	}

	s.clearVerificationLocked(cred)
	cred.EmailVerificationTokenHash = tokenHash
	exp := expires
	cred.EmailVerificationExpires = &exp
	s.byVerif[tokenHash] = id
	return nil
}

func (s *Store) ConsumeEmailVerification(ctx context.Context, tokenHash string, now time.Time) (*usermgmt.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byVerif[tokenHash]
	if !ok {
		return nil, usermgmt.ErrCredentialNotFound
	}
	cred := s.byID[id]

	expired := cred.EmailVerificationExpires == nil || !cred.EmailVerificationExpires.After(now)
	s.clearVerificationLocked(cred)
	if expired {
		return nil, usermgmt.ErrCredentialNotFound
	}

	cred.IsEmailVerified = true
	cred.UpdatedAt = now
	return clone(cred), nil
}

func (s *Store) SetActive(ctx context.Context, id string, active bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[id]
	if !ok {
		return usermgmt.ErrCredentialNotFound
	}

	cred.IsActive = active
	cred.UpdatedAt = now
	return nil
}

func (s *Store) clearResetLocked(cred *usermgmt.Credential) {
	if cred.PasswordResetTokenHash != "" {
		delete(s.byReset, cred.PasswordResetTokenHash)
	}
	cred.PasswordResetTokenHash = ""
	cred.PasswordResetExpires = nil
}

func (s *Store) clearVerificationLocked(cred *usermgmt.Credential) {
	if cred.EmailVerificationTokenHash != "" {
		delete(s.byVerif, cred.EmailVerificationTokenHash)
	}
	cred.EmailVerificationTokenHash = ""
	cred.EmailVerificationExpires = nil
}

func applyLockState(cred *usermgmt.Credential, state lockout.State) {
	cred.LoginAttempts = state.Attempts
	if state.LockUntil.IsZero() {
		cred.LockUntil = nil
	} else {
		until := state.LockUntil
		cred.LockUntil = &until
	}
}
