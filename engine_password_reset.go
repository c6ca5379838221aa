package usermgmt

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcmanusbob/user-management-service/internal"
)

// ForgotPassword starts a password reset. The outcome is identical for
// known and unknown emails so callers cannot enumerate accounts; the
// raw token is returned only when Debug.ExposeTokens is set, otherwise
// delivery is the integrator's responsibility and the return is empty.
func (e *Engine) ForgotPassword(ctx context.Context, email string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	cred, err := e.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", nil, func() map[string]string {
				return map[string]string{"known": "false"}
			})
			return "", nil
		}
		return "", storeErr(err)
	}

	rawToken, err := internal.NewActionToken()
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}

	expires := e.now().Add(e.config.PasswordReset.TokenTTL)
	if err := e.store.SetPasswordReset(ctx, cred.ID, internal.HashActionToken(rawToken), expires); err != nil {
		return "", storeErr(err)
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, cred.ID, nil, nil)

	if e.config.Debug.ExposeTokens {
		return rawToken, nil
	}
	return "", nil
}

// ResetPassword consumes a reset token and installs the new password.
// Unknown, expired and already-used tokens return
// ErrInvalidOrExpiredToken. Success revokes every session of the
// subject.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	tokenHash := internal.HashActionToken(token)
	if token == "" || !internal.ValidTokenHash(tokenHash) {
		return ErrInvalidOrExpiredToken
	}

	cred, err := e.store.ConsumePasswordReset(ctx, tokenHash, e.now())
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			e.metricInc(MetricPasswordResetFailure)
			e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", ErrInvalidOrExpiredToken, nil)
			return ErrInvalidOrExpiredToken
		}
		return storeErr(err)
	}

	if reuse, _ := e.passwordHash.Verify(newPassword, cred.PasswordHash); reuse {
		e.metricInc(MetricPasswordResetFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, cred.ID, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	newHash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	if err := e.store.UpdatePasswordHash(ctx, cred.ID, newHash, e.now()); err != nil {
		return storeErr(err)
	}

	if err := e.registry.RemoveAll(ctx, cred.ID); err != nil {
		return registryErr(err)
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, cred.ID, nil, nil)

	return nil
}
