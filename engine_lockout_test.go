package usermgmt_test

import (
	"context"
	"errors"
	"testing"
	"time"

	usermgmt "github.com/mcmanusbob/user-management-service"
)

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	env := newTestEngine(t, nil)
	registerAlice(t, env)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := env.engine.Login(ctx, "alice@example.com", "WrongPass1!"); !errors.Is(err, usermgmt.ErrInvalidCredentials) {
			t.Fatalf("failure %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// The correct password is refused while the window is open.
	if _, err := env.engine.Login(ctx, "alice@example.com", "Abcd1234!"); !errors.Is(err, usermgmt.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestLockoutExpiresAndCounterResets(t *testing.T) {
	env := newTestEngine(t, nil)
	registerAlice(t, env)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		env.engine.Login(ctx, "alice@example.com", "WrongPass1!")
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "Abcd1234!"); !errors.Is(err, usermgmt.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	env.clock.Advance(16 * time.Minute)

	login, err := env.engine.Login(ctx, "alice@example.com", "Abcd1234!")
	if err != nil {
		t.Fatalf("login after lock expiry: %v", err)
	}
	if login.Credential.LoginAttempts != 0 {
		t.Fatalf("expected counter reset, got %d", login.Credential.LoginAttempts)
	}

	// A fresh failure starts counting from one, not from the old tally.
	for i := 0; i < 4; i++ {
		env.engine.Login(ctx, "alice@example.com", "WrongPass1!")
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "Abcd1234!"); err != nil {
		t.Fatalf("expected login below threshold to succeed, got %v", err)
	}
}

func TestFailuresWhileLockedDoNotExtendWindow(t *testing.T) {
	env := newTestEngine(t, nil)
	registerAlice(t, env)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		env.engine.Login(ctx, "alice@example.com", "WrongPass1!")
	}

	env.clock.Advance(10 * time.Minute)
	if _, err := env.engine.Login(ctx, "alice@example.com", "WrongPass1!"); !errors.Is(err, usermgmt.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	// Original deadline stands: 6 more minutes crosses it.
	env.clock.Advance(6 * time.Minute)
	if _, err := env.engine.Login(ctx, "alice@example.com", "Abcd1234!"); err != nil {
		t.Fatalf("expected unlock at original deadline, got %v", err)
	}
}

func TestSuccessfulLoginResetsCounter(t *testing.T) {
	env := newTestEngine(t, nil)
	registerAlice(t, env)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		env.engine.Login(ctx, "alice@example.com", "WrongPass1!")
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "Abcd1234!"); err != nil {
		t.Fatalf("login below threshold: %v", err)
	}

	// Counter is back to zero, so five more failures are needed to lock.
	for i := 0; i < 4; i++ {
		env.engine.Login(ctx, "alice@example.com", "WrongPass1!")
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "Abcd1234!"); err != nil {
		t.Fatalf("expected success after counter reset, got %v", err)
	}
}
