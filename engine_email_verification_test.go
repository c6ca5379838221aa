package usermgmt_test

import (
	"context"
	"errors"
	"testing"
	"time"

	usermgmt "github.com/mcmanusbob/user-management-service"
)

func TestVerifyEmailFlow(t *testing.T) {
	env := newTestEngine(t, nil)
	reg := registerAlice(t, env)
	ctx := context.Background()

	if reg.Credential.IsEmailVerified {
		t.Fatal("fresh credential must not be verified")
	}

	if err := env.engine.VerifyEmail(ctx, reg.VerificationToken); err != nil {
		t.Fatalf("verify email: %v", err)
	}

	cred, err := env.store.GetByID(ctx, reg.Credential.ID)
	if err != nil {
		t.Fatalf("reload credential: %v", err)
	}
	if !cred.IsEmailVerified {
		t.Fatal("expected credential marked verified")
	}
}

func TestVerifyEmailTokenSingleUse(t *testing.T) {
	env := newTestEngine(t, nil)
	reg := registerAlice(t, env)
	ctx := context.Background()

	if err := env.engine.VerifyEmail(ctx, reg.VerificationToken); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if err := env.engine.VerifyEmail(ctx, reg.VerificationToken); !errors.Is(err, usermgmt.ErrInvalidOrExpiredToken) {
		t.Fatalf("second verify: expected ErrInvalidOrExpiredToken, got %v", err)
	}
}

func TestVerifyEmailTokenExpires(t *testing.T) {
	env := newTestEngine(t, nil)
	reg := registerAlice(t, env)

	env.clock.Advance(25 * time.Hour)

	if err := env.engine.VerifyEmail(context.Background(), reg.VerificationToken); !errors.Is(err, usermgmt.ErrInvalidOrExpiredToken) {
		t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
	}
}

func TestRequestEmailVerificationReissues(t *testing.T) {
	env := newTestEngine(t, nil)
	reg := registerAlice(t, env)
	ctx := context.Background()

	token, err := env.engine.RequestEmailVerification(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("request verification: %v", err)
	}
	if token == "" {
		t.Fatal("expected exposed verification token in debug mode")
	}

	// The original token is superseded.
	if err := env.engine.VerifyEmail(ctx, reg.VerificationToken); !errors.Is(err, usermgmt.ErrInvalidOrExpiredToken) {
		t.Fatalf("superseded token: expected ErrInvalidOrExpiredToken, got %v", err)
	}
	if err := env.engine.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("reissued token: %v", err)
	}
}

func TestRequestEmailVerificationSilentForUnknownOrVerified(t *testing.T) {
	env := newTestEngine(t, nil)
	reg := registerAlice(t, env)
	ctx := context.Background()

	if token, err := env.engine.RequestEmailVerification(ctx, "nobody@example.com"); err != nil || token != "" {
		t.Fatalf("unknown email: expected silent success, got token=%q err=%v", token, err)
	}

	if err := env.engine.VerifyEmail(ctx, reg.VerificationToken); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if token, err := env.engine.RequestEmailVerification(ctx, "alice@example.com"); err != nil || token != "" {
		t.Fatalf("verified email: expected silent success, got token=%q err=%v", token, err)
	}
}
