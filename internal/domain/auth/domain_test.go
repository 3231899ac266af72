package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestParseTokenKind(t *testing.T) {
	k, err := ParseTokenKind("access")
	require.NoError(t, err)
	require.Equal(t, KindAccess, k)

	k, err = ParseTokenKind("refresh")
	require.NoError(t, err)
	require.Equal(t, KindRefresh, k)

	_, err = ParseTokenKind("session")
	require.Error(t, err)
}

func TestNewPHCString(t *testing.T) {
	_, err := NewPHCString("")
	require.Error(t, err)

	_, err = NewPHCString(strings.Repeat("x", 256))
	require.Error(t, err)

	p, err := NewPHCString("$argon2id$v=19$m=12288,t=3,p=1$c2FsdA$ZGlnZXN0")
	require.NoError(t, err)
	require.Equal(t, "$argon2id$v=19$m=12288,t=3,p=1$c2FsdA$ZGlnZXN0", p.Expose())
	require.Equal(t, "[REDACTED]", p.String())
}

func TestLocked(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 5 * time.Minute

	require.False(t, Locked(nil, now, 3, window))

	rec := &LoginFailure{Attempts: 2, FirstAttemptedAt: now.Add(-time.Minute)}
	require.False(t, Locked(rec, now, 3, window))

	rec.Attempts = 3
	require.True(t, Locked(rec, now, 3, window))

	// Window elapsed: the stale record no longer locks.
	rec.FirstAttemptedAt = now.Add(-window)
	require.False(t, Locked(rec, now, 3, window))
}

func TestCachedTokenValueRoundTrip(t *testing.T) {
	id := uuid.New()
	v := CachedTokenValue(id, KindRefresh)
	require.Equal(t, id.String()+",refresh", v)

	gotID, kind, err := ParseCachedTokenValue(v)
	require.NoError(t, err)
	require.Equal(t, id, gotID)
	require.Equal(t, KindRefresh, kind)

	_, _, err = ParseCachedTokenValue("garbage")
	require.Error(t, err)
	_, _, err = ParseCachedTokenValue("not-a-uuid,access")
	require.Error(t, err)
	_, _, err = ParseCachedTokenValue(id.String() + ",banana")
	require.Error(t, err)
}
