package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	usermgmt "github.com/mcmanusbob/user-management-service"
	"github.com/mcmanusbob/user-management-service/lockout"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func seedCredential(t *testing.T, s *Store, id, email string) *usermgmt.Credential {
	t.Helper()

	cred := &usermgmt.Credential{
		ID:           id,
		Email:        email,
		FirstName:    "Alice",
		LastName:     "Lidell",
		Role:         usermgmt.RoleStudent,
		PasswordHash: "hash-" + id,
		IsActive:     true,
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
	}
	if err := s.Create(context.Background(), cred); err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
	return cred
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	s := New()
	seedCredential(t, s, "u1", "alice@example.com")

	err := s.Create(context.Background(), &usermgmt.Credential{
		ID:    "u2",
		Email: "alice@example.com",
	})
	if !errors.Is(err, usermgmt.ErrDuplicateCredential) {
		t.Fatalf("expected ErrDuplicateCredential, got %v", err)
	}
}

func TestGetByEmailAndIDReturnCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedCredential(t, s, "u1", "alice@example.com")

	byEmail, err := s.GetByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	byEmail.PasswordHash = "tampered"

	byID, err := s.GetByID(ctx, "u1")
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID.PasswordHash != "hash-u1" {
		t.Fatal("mutating a returned credential leaked into the store")
	}

	if _, err := s.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, usermgmt.ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestRecordLoginFailureAppliesPolicy(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedCredential(t, s, "u1", "alice@example.com")

	policy := lockout.Policy{Threshold: 3, Duration: 10 * time.Minute}

	var state lockout.State
	var err error
	for i := 0; i < 3; i++ {
		state, err = s.RecordLoginFailure(ctx, "u1", policy, baseTime)
		if err != nil {
			t.Fatalf("failure %d: %v", i+1, err)
		}
	}
	if !state.IsLocked(baseTime) {
		t.Fatal("expected lock after third failure")
	}

	cred, err := s.GetByID(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cred.LoginAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", cred.LoginAttempts)
	}
	if cred.LockUntil == nil || !cred.LockUntil.Equal(baseTime.Add(10*time.Minute)) {
		t.Fatalf("unexpected lock deadline: %v", cred.LockUntil)
	}

	if err := s.RecordLoginSuccess(ctx, "u1", baseTime.Add(11*time.Minute)); err != nil {
		t.Fatalf("success: %v", err)
	}
	cred, _ = s.GetByID(ctx, "u1")
	if cred.LoginAttempts != 0 || cred.LockUntil != nil {
		t.Fatal("expected success to clear lockout state")
	}
	if cred.LastLogin == nil || !cred.LastLogin.Equal(baseTime.Add(11*time.Minute)) {
		t.Fatalf("unexpected last login: %v", cred.LastLogin)
	}
}

func TestConsumePasswordResetIsSingleUse(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedCredential(t, s, "u1", "alice@example.com")

	if err := s.SetPasswordReset(ctx, "u1", "reset-hash", baseTime.Add(10*time.Minute)); err != nil {
		t.Fatalf("set reset: %v", err)
	}

	cred, err := s.ConsumePasswordReset(ctx, "reset-hash", baseTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if cred.ID != "u1" {
		t.Fatalf("expected u1, got %s", cred.ID)
	}
	if !cred.UpdatedAt.Equal(baseTime.Add(time.Minute)) {
		t.Fatalf("expected consume to stamp UpdatedAt, got %v", cred.UpdatedAt)
	}

	if _, err := s.ConsumePasswordReset(ctx, "reset-hash", baseTime.Add(time.Minute)); !errors.Is(err, usermgmt.ErrCredentialNotFound) {
		t.Fatalf("expected second consume to miss, got %v", err)
	}
}

func TestConsumePasswordResetExpiredTokenMissesAndClears(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedCredential(t, s, "u1", "alice@example.com")

	if err := s.SetPasswordReset(ctx, "u1", "reset-hash", baseTime.Add(10*time.Minute)); err != nil {
		t.Fatalf("set reset: %v", err)
	}

	if _, err := s.ConsumePasswordReset(ctx, "reset-hash", baseTime.Add(10*time.Minute)); !errors.Is(err, usermgmt.ErrCredentialNotFound) {
		t.Fatalf("expected expired consume to miss, got %v", err)
	}

	cred, _ := s.GetByID(ctx, "u1")
	if cred.PasswordResetTokenHash != "" || cred.PasswordResetExpires != nil {
		t.Fatal("expected expired token to be cleared on presentation")
	}
}

func TestSetPasswordResetReplacesPendingToken(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedCredential(t, s, "u1", "alice@example.com")

	s.SetPasswordReset(ctx, "u1", "old-hash", baseTime.Add(10*time.Minute))
	s.SetPasswordReset(ctx, "u1", "new-hash", baseTime.Add(10*time.Minute))

	if _, err := s.ConsumePasswordReset(ctx, "old-hash", baseTime); !errors.Is(err, usermgmt.ErrCredentialNotFound) {
		t.Fatalf("expected replaced token to miss, got %v", err)
	}
	if _, err := s.ConsumePasswordReset(ctx, "new-hash", baseTime); err != nil {
		t.Fatalf("expected current token to consume, got %v", err)
	}
}

func TestUpdatePasswordHashClearsPendingReset(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedCredential(t, s, "u1", "alice@example.com")

	s.SetPasswordReset(ctx, "u1", "reset-hash", baseTime.Add(10*time.Minute))
	if err := s.UpdatePasswordHash(ctx, "u1", "new-hash", baseTime); err != nil {
		t.Fatalf("update: %v", err)
	}

	cred, _ := s.GetByID(ctx, "u1")
	if cred.PasswordHash != "new-hash" {
		t.Fatalf("expected new hash, got %s", cred.PasswordHash)
	}
	if _, err := s.ConsumePasswordReset(ctx, "reset-hash", baseTime); !errors.Is(err, usermgmt.ErrCredentialNotFound) {
		t.Fatalf("expected pending reset to be cleared, got %v", err)
	}
}

func TestConsumeEmailVerificationMarksVerified(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedCredential(t, s, "u1", "alice@example.com")

	s.SetEmailVerification(ctx, "u1", "verif-hash", baseTime.Add(24*time.Hour))

	cred, err := s.ConsumeEmailVerification(ctx, "verif-hash", baseTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !cred.IsEmailVerified {
		t.Fatal("expected credential marked verified")
	}

	stored, _ := s.GetByID(ctx, "u1")
	if !stored.IsEmailVerified {
		t.Fatal("expected verification persisted")
	}
	if _, err := s.ConsumeEmailVerification(ctx, "verif-hash", baseTime.Add(time.Hour)); !errors.Is(err, usermgmt.ErrCredentialNotFound) {
		t.Fatalf("expected second consume to miss, got %v", err)
	}
}

func TestSetActiveTogglesFlag(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedCredential(t, s, "u1", "alice@example.com")

	if err := s.SetActive(ctx, "u1", false, baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	cred, _ := s.GetByID(ctx, "u1")
	if cred.IsActive {
		t.Fatal("expected inactive credential")
	}

	if err := s.SetActive(ctx, "missing", false, baseTime); !errors.Is(err, usermgmt.ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}
