package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenLedger is the durable record of issued tokens, keyed by user.
type TokenLedger interface {
	Insert(ctx context.Context, t *IssuedToken) error
	// DeleteByUser removes every ledger entry for the user and returns the
	// token hashes that were removed (a destructive read). Deleting for a
	// user with no entries is a no-op, which keeps logout idempotent.
	DeleteByUser(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// TokenCache is the fast expiring store; it alone decides whether a token
// is currently usable.
type TokenCache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns ok=false on a plain miss; err is reserved for store
	// failures.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Del(ctx context.Context, keys ...string) error
}

// FailureRepo tracks consecutive failed logins per user.
type FailureRepo interface {
	// Get returns nil without error when the user has no record.
	Get(ctx context.Context, userID uuid.UUID) (*LoginFailure, error)
	// RecordFailure counts one failed attempt: it starts a fresh window at
	// now when no record exists or the previous window has elapsed, and
	// increments otherwise. Concurrent calls for one user must serialize so
	// no failure is lost.
	RecordFailure(ctx context.Context, userID uuid.UUID, now time.Time, window time.Duration) (*LoginFailure, error)
	// Clear removes the record; clearing an absent record is a no-op.
	Clear(ctx context.Context, userID uuid.UUID) error
}
