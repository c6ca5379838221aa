package usermgmt

import (
	"context"
	"errors"

	"github.com/mcmanusbob/user-management-service/internal"
	"github.com/mcmanusbob/user-management-service/session"
)

// Refresh rotates a refresh token: the presented token is consumed
// and a fresh pair is issued in its place. A token that was already
// rotated, revoked or never issued returns ErrTokenInvalid; under
// concurrent presentation of the same token exactly one caller wins.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwtManager.VerifyRefresh(refreshToken)
	if err != nil {
		err = mapTokenError(err)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", err, nil)
		return nil, err
	}

	cred, err := e.store.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.Subject, ErrTokenInvalid, nil)
			return nil, ErrTokenInvalid
		}
		return nil, storeErr(err)
	}

	if !cred.IsActive {
		// A deactivated account keeps no sessions.
		_ = e.registry.RemoveAll(ctx, cred.ID)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, cred.ID, ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	}

	// Role is re-derived from the store, not echoed from the old
	// token, so role changes take effect on the next rotation.
	pair, err := e.jwtManager.IssuePair(cred.ID, string(cred.Role))
	if err != nil {
		return nil, err
	}

	oldHash := internal.HashSessionToken(refreshToken)
	newHash := internal.HashSessionToken(pair.RefreshToken)

	if err := e.registry.Rotate(ctx, cred.ID, oldHash, newHash, e.now()); err != nil {
		if errors.Is(err, session.ErrTokenNotFound) || errors.Is(err, session.ErrTokenExpiredEntry) {
			e.metricInc(MetricRefreshReplayDetected)
			e.emitAudit(ctx, auditEventRefreshReplayDetected, false, cred.ID, ErrTokenInvalid, nil)
			return nil, ErrTokenInvalid
		}
		return nil, registryErr(err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, cred.ID, nil, nil)

	return &pair, nil
}

// Logout revokes the presented refresh token. Unknown and already
// revoked tokens are a no-op; logout is idempotent.
func (e *Engine) Logout(ctx context.Context, subjectID, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	hash := internal.HashSessionToken(refreshToken)
	if err := e.registry.Remove(ctx, subjectID, hash); err != nil {
		return registryErr(err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, subjectID, nil, nil)

	return nil
}

// LogoutAll revokes every session of the subject.
func (e *Engine) LogoutAll(ctx context.Context, subjectID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	if err := e.registry.RemoveAll(ctx, subjectID); err != nil {
		return registryErr(err)
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, subjectID, nil, nil)

	return nil
}
