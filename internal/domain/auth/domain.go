package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kzhama/todoauth/internal/secret"
)

// TokenKind separates access tokens from refresh tokens. A token presented
// with the wrong kind is rejected even when otherwise valid.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

func ParseTokenKind(s string) (TokenKind, error) {
	switch TokenKind(s) {
	case KindAccess:
		return KindAccess, nil
	case KindRefresh:
		return KindRefresh, nil
	default:
		return "", fmt.Errorf("%q is not a valid token kind", s)
	}
}

// PHCString is a self-describing password hash
// ($argon2id$v=19$m=..,t=..,p=..$salt$digest). The constructor is the only
// way to obtain one, so length bounds always hold.
type PHCString struct {
	v secret.String
}

const maxPHCLength = 255

func NewPHCString(v string) (PHCString, error) {
	if v == "" || len(v) > maxPHCLength {
		return PHCString{}, Validation(fmt.Sprintf("PHC string must be 1..%d bytes", maxPHCLength))
	}
	return PHCString{v: secret.New(v)}, nil
}

func (p PHCString) Expose() string { return p.v.Expose() }

func (p PHCString) String() string { return p.v.String() }

// TokenPair is the result of issuance: both tokens with absolute expiries.
type TokenPair struct {
	Access           secret.String
	AccessExpiresAt  time.Time
	Refresh          secret.String
	RefreshExpiresAt time.Time
}

// IssuedToken is a durable ledger entry. The ledger only drives bulk
// revocation at logout; the cache decides whether a token is usable.
type IssuedToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	Kind      TokenKind
	ExpiresAt time.Time
	CreatedAt time.Time
}

// LoginFailure is the per-user throttle counter. One row per user; created
// on the first failed attempt inside the window.
type LoginFailure struct {
	UserID           uuid.UUID
	Attempts         int
	FirstAttemptedAt time.Time
	UpdatedAt        time.Time
}

// Locked reports whether the failure record amounts to a lockout at the
// given instant. Lockout is always computed, never stored.
func Locked(f *LoginFailure, now time.Time, maxAttempts int, window time.Duration) bool {
	if f == nil || maxAttempts <= 0 {
		return false
	}
	return f.Attempts >= maxAttempts && now.Sub(f.FirstAttemptedAt) < window
}

// CachedTokenValue encodes the fast-store payload "<user_id>,<kind>".
func CachedTokenValue(userID uuid.UUID, kind TokenKind) string {
	return userID.String() + "," + string(kind)
}

// ParseCachedTokenValue is the inverse of CachedTokenValue.
func ParseCachedTokenValue(v string) (uuid.UUID, TokenKind, error) {
	id, kindRaw, ok := strings.Cut(v, ",")
	if !ok {
		return uuid.Nil, "", fmt.Errorf("malformed cached token value %q", v)
	}
	userID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("cached token user id: %w", err)
	}
	kind, err := ParseTokenKind(kindRaw)
	if err != nil {
		return uuid.Nil, "", err
	}
	return userID, kind, nil
}
