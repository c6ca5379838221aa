package usermgmt_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	usermgmt "github.com/mcmanusbob/user-management-service"
)

func TestRefreshRotationSingleUse(t *testing.T) {
	env := newTestEngine(t, nil)
	reg := registerAlice(t, env)
	ctx := context.Background()

	r1 := reg.Tokens.RefreshToken

	pair2, err := env.engine.Refresh(ctx, r1)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if pair2.RefreshToken == r1 {
		t.Fatal("rotation returned the same refresh token")
	}

	// Replaying the consumed token must fail.
	if _, err := env.engine.Refresh(ctx, r1); !errors.Is(err, usermgmt.ErrTokenInvalid) {
		t.Fatalf("replay of rotated token: expected ErrTokenInvalid, got %v", err)
	}

	// The replacement keeps working.
	if _, err := env.engine.Refresh(ctx, pair2.RefreshToken); err != nil {
		t.Fatalf("refresh with rotated token: %v", err)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	env := newTestEngine(t, nil)
	reg := registerAlice(t, env)

	env.clock.Advance(8 * 24 * time.Hour)

	if _, err := env.engine.Refresh(context.Background(), reg.Tokens.RefreshToken); !errors.Is(err, usermgmt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRefreshGarbageToken(t *testing.T) {
	env := newTestEngine(t, nil)

	if _, err := env.engine.Refresh(context.Background(), "not-a-jwt"); !errors.Is(err, usermgmt.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestRefreshAccessTokenRejected(t *testing.T) {
	env := newTestEngine(t, nil)
	reg := registerAlice(t, env)

	if _, err := env.engine.Refresh(context.Background(), reg.Tokens.AccessToken); !errors.Is(err, usermgmt.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for access token, got %v", err)
	}
}

func TestRefreshInactiveAccountRevokesSessions(t *testing.T) {
	env := newTestEngine(t, nil)
	reg := registerAlice(t, env)
	ctx := context.Background()

	if err := env.engine.SetAccountStatus(ctx, reg.Credential.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, reg.Tokens.RefreshToken); !errors.Is(err, usermgmt.ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}

	// Reactivation does not resurrect the revoked session.
	if err := env.engine.SetAccountStatus(ctx, reg.Credential.ID, true); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, reg.Tokens.RefreshToken); !errors.Is(err, usermgmt.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid after reactivation, got %v", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	env := newTestEngine(t, nil)
	reg := registerAlice(t, env)
	ctx := context.Background()

	const workers = 16

	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = env.engine.Refresh(ctx, reg.Tokens.RefreshToken)
		}(i)
	}
	wg.Wait()

	var wins, replays int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, usermgmt.ErrTokenInvalid):
			replays++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if replays != workers-1 {
		t.Fatalf("expected %d replay failures, got %d", workers-1, replays)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEngine(t, nil)
	reg := registerAlice(t, env)
	ctx := context.Background()

	if err := env.engine.Logout(ctx, reg.Credential.ID, reg.Tokens.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := env.engine.Logout(ctx, reg.Credential.ID, reg.Tokens.RefreshToken); err != nil {
		t.Fatalf("second logout: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, reg.Tokens.RefreshToken); !errors.Is(err, usermgmt.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid after logout, got %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	env := newTestEngine(t, nil)
	reg := registerAlice(t, env)
	ctx := context.Background()

	login, err := env.engine.Login(ctx, "alice@example.com", "Abcd1234!")
	if err != nil {
		t.Fatalf("second session login: %v", err)
	}

	if err := env.engine.LogoutAll(ctx, reg.Credential.ID); err != nil {
		t.Fatalf("logout all: %v", err)
	}

	for _, token := range []string{reg.Tokens.RefreshToken, login.Tokens.RefreshToken} {
		if _, err := env.engine.Refresh(ctx, token); !errors.Is(err, usermgmt.ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid after logout all, got %v", err)
		}
	}
}

func TestSameInstantLoginsAreDistinctSessions(t *testing.T) {
	env := newTestEngine(t, nil)
	ctx := context.Background()
	registerAlice(t, env)

	// Two logins without the clock moving, as from two devices in the
	// same second. Revoking one session must not touch the other.
	first, err := env.engine.Login(ctx, "alice@example.com", "Abcd1234!")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := env.engine.Login(ctx, "alice@example.com", "Abcd1234!")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if first.Tokens.RefreshToken == second.Tokens.RefreshToken {
		t.Fatal("same-second logins issued the same refresh token")
	}

	if err := env.engine.Logout(ctx, first.Credential.ID, first.Tokens.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if _, err := env.engine.Refresh(ctx, first.Tokens.RefreshToken); !errors.Is(err, usermgmt.ErrTokenInvalid) {
		t.Fatalf("expected revoked session to be dead, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, second.Tokens.RefreshToken); err != nil {
		t.Fatalf("expected surviving session to refresh, got %v", err)
	}
}
