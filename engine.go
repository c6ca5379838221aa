package usermgmt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mcmanusbob/user-management-service/jwt"
	"github.com/mcmanusbob/user-management-service/lockout"
	"github.com/mcmanusbob/user-management-service/password"
	"github.com/mcmanusbob/user-management-service/session"
)

// Engine orchestrates the credential and session lifecycle. Construct
// one through New().Build(); all methods are safe for concurrent use.
type Engine struct {
	config       Config
	store        CredentialStore
	registry     *session.Registry
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager
	lockPolicy   lockout.Policy
	audit        *auditDispatcher
	metrics      *Metrics
	now          func() time.Time
}

// Close flushes and stops background components. The engine must not
// be used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because
// the dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// ValidateAccess verifies an access token and returns the subject
// identity for the caller's routing layer. It is a pure claim check;
// no store or registry round trip.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := e.now()

	claims, err := e.jwtManager.VerifyAccess(token)
	if err != nil {
		return nil, mapTokenError(err)
	}

	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, e.now().Sub(start))
	}

	return &AuthResult{
		SubjectID: claims.Subject,
		Role:      Role(claims.Role),
	}, nil
}

// normalizeEmail is the single canonical form used for storage and
// lookup. Store implementations index the normalized value.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenInvalid):
		return ErrTokenInvalid
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}

// storeErr folds store infrastructure failures into the engine's
// taxonomy while letting taxonomy sentinels pass through untouched.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrDuplicateCredential),
		errors.Is(err, ErrCredentialNotFound):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}

// registryErr folds session registry failures. Rotation misses keep
// their meaning; Redis faults become ErrStorageUnavailable.
func registryErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, session.ErrTokenNotFound),
		errors.Is(err, session.ErrTokenExpiredEntry):
		return ErrTokenInvalid
	default:
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}
