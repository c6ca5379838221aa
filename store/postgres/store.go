// Package postgres provides a CredentialStore over PostgreSQL using
// database/sql with the pgx stdlib driver. Schema management is
// handled by RunMigrations with embedded SQL files.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	usermgmt "github.com/mcmanusbob/user-management-service"
	"github.com/mcmanusbob/user-management-service/lockout"
)

const uniqueViolation = "23505"

// Store implements usermgmt.CredentialStore on a *sql.DB. The lockout
// read-modify-write runs inside a transaction with a row lock so
// concurrent failures for one credential serialize.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to the database, verifies the connection and applies
// pending migrations.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewStore(db), nil
}

// Close releases the underlying database handle. Callers that built
// the store over their own *sql.DB via NewStore keep ownership and
// should close that handle themselves instead.
func (s *Store) Close() error {
	return s.db.Close()
}

const credentialColumns = `
	id, email, first_name, last_name, role, password_hash,
	is_active, is_email_verified,
	login_attempts, lock_until, last_login,
	password_reset_token_hash, password_reset_expires,
	email_verification_token_hash, email_verification_expires,
	created_at, updated_at`

func scanCredential(row interface{ Scan(...any) error }) (*usermgmt.Credential, error) {
	var (
		cred      usermgmt.Credential
		lockUntil sql.NullTime
		lastLogin sql.NullTime
		resetHash sql.NullString
		resetExp  sql.NullTime
		verifHash sql.NullString
		verifExp  sql.NullTime
	)

	err := row.Scan(
		&cred.ID, &cred.Email, &cred.FirstName, &cred.LastName, &cred.Role, &cred.PasswordHash,
		&cred.IsActive, &cred.IsEmailVerified,
		&cred.LoginAttempts, &lockUntil, &lastLogin,
		&resetHash, &resetExp,
		&verifHash, &verifExp,
		&cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, usermgmt.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}

	if lockUntil.Valid {
		t := lockUntil.Time.UTC()
		cred.LockUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		cred.LastLogin = &t
	}
	cred.PasswordResetTokenHash = resetHash.String
	if resetExp.Valid {
		t := resetExp.Time.UTC()
		cred.PasswordResetExpires = &t
	}
	cred.EmailVerificationTokenHash = verifHash.String
	if verifExp.Valid {
		t := verifExp.Time.UTC()
		cred.EmailVerificationExpires = &t
	}

	return &cred, nil
}

func (s *Store) Create(ctx context.Context, cred *usermgmt.Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (
			id, email, first_name, last_name, role, password_hash,
			is_active, is_email_verified, login_attempts,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, cred.ID, cred.Email, cred.FirstName, cred.LastName, cred.Role, cred.PasswordHash,
		cred.IsActive, cred.IsEmailVerified, cred.LoginAttempts,
		cred.CreatedAt.UTC(), cred.UpdatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return usermgmt.ErrDuplicateCredential
		}
		return fmt.Errorf("insert credential: %w", err)
	}

	return nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*usermgmt.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+credentialColumns+`
		FROM credentials
		WHERE email = $1
	`, email)
	return scanCredential(row)
}

func (s *Store) GetByID(ctx context.Context, id string) (*usermgmt.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+credentialColumns+`
		FROM credentials
		WHERE id = $1
	`, id)
	return scanCredential(row)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials
		SET password_hash = $2,
			password_reset_token_hash = NULL,
			password_reset_expires = NULL,
			updated_at = $3
		WHERE id = $1
	`, id, hash, now.UTC())
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return requireRow(res)
}

func (s *Store) RecordLoginFailure(ctx context.Context, id string, policy lockout.Policy, now time.Time) (lockout.State, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lockout.State{}, fmt.Errorf("begin login failure tx: %w", err)
	}
	defer tx.Rollback()

	var attempts int
	var lockUntil sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT login_attempts, lock_until
		FROM credentials
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&attempts, &lockUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lockout.State{}, usermgmt.ErrCredentialNotFound
		}
		return lockout.State{}, fmt.Errorf("lock credential row: %w", err)
	}

	state := lockout.State{Attempts: attempts}
	if lockUntil.Valid {
		state.LockUntil = lockUntil.Time.UTC()
	}
	state = policy.Fail(state, now)

	var nextLock any
	if !state.LockUntil.IsZero() {
		nextLock = state.LockUntil.UTC()
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE credentials
		SET login_attempts = $2, lock_until = $3, updated_at = $4
		WHERE id = $1
	`, id, state.Attempts, nextLock, now.UTC())
	if err != nil {
		return lockout.State{}, fmt.Errorf("record login failure: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return lockout.State{}, fmt.Errorf("commit login failure tx: %w", err)
	}

	return state, nil
}

func (s *Store) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials
		SET login_attempts = 0, lock_until = NULL, last_login = $2, updated_at = $2
		WHERE id = $1
	`, id, now.UTC())
	if err != nil {
		return fmt.Errorf("record login success: %w", err)
	}
	return requireRow(res)
}

func (s *Store) SetPasswordReset(ctx context.Context, id, tokenHash string, expires time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials
		SET password_reset_token_hash = $2, password_reset_expires = $3
		WHERE id = $1
	`, id, tokenHash, expires.UTC())
	if err != nil {
		return fmt.Errorf("set password reset: %w", err)
	}
	return requireRow(res)
}

func (s *Store) ConsumePasswordReset(ctx context.Context, tokenHash string, now time.Time) (*usermgmt.Credential, error) {
	// The WHERE clause makes match and clear one atomic statement, so
	// two concurrent presentations of the same token give one winner.
	row := s.db.QueryRowContext(ctx, `
		UPDATE credentials
		SET password_reset_token_hash = NULL,
			password_reset_expires = NULL,
			updated_at = $2
		WHERE password_reset_token_hash = $1
		  AND password_reset_expires > $2
		RETURNING `+credentialColumns+`
	`, tokenHash, now.UTC())
	return scanCredential(row)
}

func (s *Store) SetEmailVerification(ctx context.Context, id, tokenHash string, expires time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials
		SET email_verification_token_hash = $2, email_verification_expires = $3
		WHERE id = $1
	`, id, tokenHash, expires.UTC())
	if err != nil {
		return fmt.Errorf("set email verification: %w", err)
	}
	return requireRow(res)
}

func (s *Store) ConsumeEmailVerification(ctx context.Context, tokenHash string, now time.Time) (*usermgmt.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE credentials
		SET is_email_verified = TRUE,
			email_verification_token_hash = NULL,
			email_verification_expires = NULL,
			updated_at = $2
		WHERE email_verification_token_hash = $1
		  AND email_verification_expires > $2
		RETURNING `+credentialColumns+`
	`, tokenHash, now.UTC())
	return scanCredential(row)
}

func (s *Store) SetActive(ctx context.Context, id string, active bool, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials
		SET is_active = $2, updated_at = $3
		WHERE id = $1
	`, id, active, now.UTC())
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return usermgmt.ErrCredentialNotFound
	}
	return nil
}
