package usermgmt

import (
	"context"
	"errors"
	"log"
)

// LoginResult pairs the authenticated credential with its fresh
// tokens.
type LoginResult struct {
	Credential *Credential
	Tokens     *TokenPair
}

// Login authenticates by email and password. Unknown email and wrong
// password both return ErrInvalidCredentials; a locked account returns
// ErrAccountLocked even for the correct password, and failures while
// locked do not extend the window.
func (e *Engine) Login(ctx context.Context, email, plainPassword string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	cred, err := e.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, storeErr(err)
	}

	now := e.now()

	if cred.LockState().IsLocked(now) {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, cred.ID, ErrAccountLocked, nil)
		return nil, ErrAccountLocked
	}

	if !cred.IsActive {
		e.emitAudit(ctx, auditEventLoginFailure, false, cred.ID, ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	}

	ok, err := e.passwordHash.Verify(plainPassword, cred.PasswordHash)
	if err != nil {
		// Malformed stored hash. Treat as mismatch, never as success.
		log.Print("usermgmt: stored password hash unverifiable for ", cred.ID)
		ok = false
	}
	if !ok {
		state, ferr := e.store.RecordLoginFailure(ctx, cred.ID, e.lockPolicy, now)
		if ferr != nil {
			return nil, storeErr(ferr)
		}
		e.metricInc(MetricLoginFailure)
		if state.IsLocked(now) {
			e.emitAudit(ctx, auditEventLoginLocked, false, cred.ID, ErrInvalidCredentials, nil)
		} else {
			e.emitAudit(ctx, auditEventLoginFailure, false, cred.ID, ErrInvalidCredentials, nil)
		}
		return nil, ErrInvalidCredentials
	}

	if err := e.store.RecordLoginSuccess(ctx, cred.ID, now); err != nil {
		return nil, storeErr(err)
	}
	cred.LoginAttempts = 0
	cred.LockUntil = nil
	last := now
	cred.LastLogin = &last

	if e.config.Password.UpgradeOnLogin {
		e.maybeUpgradeHash(ctx, cred, plainPassword)
	}

	pair, err := e.issueSession(ctx, cred)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, cred.ID, nil, nil)

	return &LoginResult{Credential: cred, Tokens: pair}, nil
}

// maybeUpgradeHash rehashes the password when the stored digest was
// produced with weaker parameters than the current config. Failures
// are logged and swallowed; the login already succeeded.
func (e *Engine) maybeUpgradeHash(ctx context.Context, cred *Credential, plainPassword string) {
	upgrade, err := e.passwordHash.NeedsUpgrade(cred.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	newHash, err := e.passwordHash.Hash(plainPassword)
	if err != nil {
		return
	}
	if err := e.store.UpdatePasswordHash(ctx, cred.ID, newHash, e.now()); err != nil {
		log.Print("usermgmt: password hash upgrade failed for ", cred.ID)
		return
	}
	cred.PasswordHash = newHash
}
