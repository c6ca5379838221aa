package usermgmt

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcmanusbob/user-management-service/internal"
)

// RegisterResult is returned by Register. VerificationToken carries
// the raw email verification token only when Debug.ExposeTokens is
// set; otherwise it is empty and delivery happens out of band.
type RegisterResult struct {
	Credential        *Credential
	Tokens            *TokenPair
	VerificationToken string
}

// Register creates a credential, issues its first token pair and
// mints an email verification token. A taken email returns
// ErrDuplicateCredential, an unknown role ErrInvalidRole and a policy
// failure ErrPasswordPolicy.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: email required", ErrInvalidCredentials)
	}

	role := req.Role
	if role == "" {
		role = e.config.Account.DefaultRole
	}
	if !role.Valid() {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrInvalidRole, nil)
		return nil, ErrInvalidRole
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrPasswordPolicy, nil)
		return nil, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	now := e.now()
	cred := &Credential{
		ID:           id.String(),
		Email:        email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         role,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := e.store.Create(ctx, cred); err != nil {
		err = storeErr(err)
		if errors.Is(err, ErrDuplicateCredential) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", err, func() map[string]string {
				return map[string]string{"email": email}
			})
		}
		return nil, err
	}

	result := &RegisterResult{Credential: cred}

	rawToken, err := internal.NewActionToken()
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}
	expires := now.Add(e.config.EmailVerification.TokenTTL)
	if err := e.store.SetEmailVerification(ctx, cred.ID, internal.HashActionToken(rawToken), expires); err != nil {
		return nil, storeErr(err)
	}
	if e.config.Debug.ExposeTokens {
		result.VerificationToken = rawToken
	}

	pair, err := e.issueSession(ctx, cred)
	if err != nil {
		return nil, err
	}
	result.Tokens = pair

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, cred.ID, nil, func() map[string]string {
		return map[string]string{"role": string(role)}
	})

	return result, nil
}

// issueSession mints a token pair and records the refresh hash in the
// session registry.
func (e *Engine) issueSession(ctx context.Context, cred *Credential) (*TokenPair, error) {
	pair, err := e.jwtManager.IssuePair(cred.ID, string(cred.Role))
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	hash := internal.HashSessionToken(pair.RefreshToken)
	if err := e.registry.Add(ctx, cred.ID, hash, e.now()); err != nil {
		return nil, registryErr(err)
	}

	return &pair, nil
}
