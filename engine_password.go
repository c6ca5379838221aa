package usermgmt

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcmanusbob/user-management-service/internal"
)

// ChangePassword replaces the password of an authenticated subject
// after verifying the current one. Every session of the subject is
// revoked unless Config.Password.KeepCurrentSessionOnChange is set, in
// which case the presented refresh token survives.
func (e *Engine) ChangePassword(ctx context.Context, subjectID, currentPassword, newPassword, presentedRefreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	cred, err := e.store.GetByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return ErrCredentialNotFound
		}
		return storeErr(err)
	}

	ok, err := e.passwordHash.Verify(currentPassword, cred.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, subjectID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	if reuse, _ := e.passwordHash.Verify(newPassword, cred.PasswordHash); reuse {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, subjectID, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	if err := e.store.UpdatePasswordHash(ctx, subjectID, newHash, e.now()); err != nil {
		return storeErr(err)
	}

	if err := e.revokeAfterPasswordChange(ctx, subjectID, presentedRefreshToken); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, subjectID, nil, nil)

	return nil
}

func (e *Engine) revokeAfterPasswordChange(ctx context.Context, subjectID, presentedRefreshToken string) error {
	if !e.config.Password.KeepCurrentSessionOnChange || presentedRefreshToken == "" {
		return registryErr(e.registry.RemoveAll(ctx, subjectID))
	}

	// Revoke everything, then re-admit the caller's session.
	keepHash := internal.HashSessionToken(presentedRefreshToken)
	kept, err := e.registry.Contains(ctx, subjectID, keepHash, e.now())
	if err != nil {
		return registryErr(err)
	}
	if err := e.registry.RemoveAll(ctx, subjectID); err != nil {
		return registryErr(err)
	}
	if kept {
		if err := e.registry.Add(ctx, subjectID, keepHash, e.now()); err != nil {
			return registryErr(err)
		}
	}
	return nil
}

// SetAccountStatus activates or deactivates a credential. Deactivation
// revokes every session; tokens already issued fail at refresh time.
func (e *Engine) SetAccountStatus(ctx context.Context, subjectID string, active bool) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.store.SetActive(ctx, subjectID, active, e.now()); err != nil {
		return storeErr(err)
	}

	if !active {
		if err := e.registry.RemoveAll(ctx, subjectID); err != nil {
			return registryErr(err)
		}
		e.metricInc(MetricAccountDeactivated)
	}

	e.emitAudit(ctx, auditEventAccountStatusChange, true, subjectID, nil, func() map[string]string {
		if active {
			return map[string]string{"status": "active"}
		}
		return map[string]string{"status": "inactive"}
	})

	return nil
}
