package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrTokenExpired is returned when a token's signature and claims are valid
// but its expiry has passed.
var ErrTokenExpired = errors.New("token expired")

// ErrTokenInvalid is returned for every other verification failure: bad
// signature, wrong issuer or audience, malformed input, or a token of the
// wrong kind.
var ErrTokenInvalid = errors.New("token invalid")

const refreshAudienceSuffix = "/refresh"

// Config holds the signing material and claim parameters for both token
// kinds. Access and refresh tokens use distinct secrets and distinct
// audience values, so a token of one kind never verifies as the other.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration

	// Clock overrides the time source for issuance and verification.
	// Nil means time.Now. Tests inject a fixed clock here.
	Clock func() time.Time
}

// Manager issues and verifies HS256 access and refresh tokens. It is
// immutable after construction and safe for concurrent use.
type Manager struct {
	config Config
	now    func() time.Time
}

// Claims is the payload carried by both token kinds. Role is present only
// on access tokens; refresh tokens carry registered claims alone.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Pair bundles a freshly issued access and refresh token. ExpiresIn is the
// access-token lifetime in seconds.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// NewManager validates the configuration and returns a token manager.
// The two secrets must be non-empty and different from each other.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("access and refresh secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("issuer is required")
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("audience is required")
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Manager{config: cfg, now: now}, nil
}

// IssuePair signs a new access/refresh token pair for the subject. The
// access token carries the role claim; the refresh token does not, because
// role is re-derived from storage on every refresh.
func (m *Manager) IssuePair(subjectID, role string) (Pair, error) {
	issued := m.now()

	access, err := m.sign(subjectID, role, issued, m.config.AccessTTL, m.config.Audience, m.config.AccessSecret)
	if err != nil {
		return Pair{}, err
	}

	refresh, err := m.sign(subjectID, "", issued, m.config.RefreshTTL, m.refreshAudience(), m.config.RefreshSecret)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(m.config.AccessTTL.Seconds()),
	}, nil
}

// VerifyAccess parses and validates an access token. Pure expiry maps to
// [ErrTokenExpired]; every other failure maps to [ErrTokenInvalid].
func (m *Manager) VerifyAccess(tokenStr string) (*Claims, error) {
	return m.verify(tokenStr, m.config.Audience, m.config.AccessSecret)
}

// VerifyRefresh parses and validates a refresh token. A refresh token
// signed with the access secret, or vice versa, fails verification.
func (m *Manager) VerifyRefresh(tokenStr string) (*Claims, error) {
	return m.verify(tokenStr, m.refreshAudience(), m.config.RefreshSecret)
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration {
	return m.config.RefreshTTL
}

func (m *Manager) refreshAudience() string {
	return m.config.Audience + refreshAudienceSuffix
}

func (m *Manager) sign(subjectID, role string, issued time.Time, ttl time.Duration, audience string, secret []byte) (string, error) {
	// The jti makes every token unique even when two are minted for the
	// same subject within one second. Refresh rotation tracks tokens by
	// hash, so identical claims would collapse distinct sessions into
	// one registry entry.
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subjectID,
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (m *Manager) verify(tokenStr string, audience string, secret []byte) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(audience),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// ExtractBearer returns the token portion of an "Authorization: Bearer"
// header value, or "" when the header does not have that shape.
func ExtractBearer(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}

	token := strings.TrimSpace(header[len(prefix):])
	if token == "" || strings.ContainsAny(token, " \t") {
		return ""
	}
	return token
}
