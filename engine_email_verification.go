package usermgmt

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcmanusbob/user-management-service/internal"
)

// RequestEmailVerification re-issues a verification token for the
// address. Unknown and already verified addresses both yield a silent
// success so the call cannot be used to probe accounts. The raw token
// is returned only when Debug.ExposeTokens is set.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	cred, err := e.store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return "", nil
		}
		return "", storeErr(err)
	}
	if cred.IsEmailVerified {
		return "", nil
	}

	rawToken, err := internal.NewActionToken()
	if err != nil {
		return "", fmt.Errorf("generate verification token: %w", err)
	}

	expires := e.now().Add(e.config.EmailVerification.TokenTTL)
	if err := e.store.SetEmailVerification(ctx, cred.ID, internal.HashActionToken(rawToken), expires); err != nil {
		return "", storeErr(err)
	}

	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(ctx, auditEventEmailVerificationRequest, true, cred.ID, nil, nil)

	if e.config.Debug.ExposeTokens {
		return rawToken, nil
	}
	return "", nil
}

// VerifyEmail consumes a verification token and marks the credential
// verified. Unknown, expired and already-used tokens return
// ErrInvalidOrExpiredToken.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	tokenHash := internal.HashActionToken(token)
	if token == "" || !internal.ValidTokenHash(tokenHash) {
		return ErrInvalidOrExpiredToken
	}

	cred, err := e.store.ConsumeEmailVerification(ctx, tokenHash, e.now())
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			e.metricInc(MetricEmailVerificationFailure)
			e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, "", ErrInvalidOrExpiredToken, nil)
			return ErrInvalidOrExpiredToken
		}
		return storeErr(err)
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, true, cred.ID, nil, nil)

	return nil
}
