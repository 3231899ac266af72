package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domain "github.com/kzhama/todoauth/internal/domain/auth"
	"github.com/kzhama/todoauth/internal/domain/user"
	"github.com/kzhama/todoauth/internal/secret"
)

// --- fakes -----------------------------------------------------------------

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*user.User
	hashes map[uuid.UUID]domain.PHCString
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[uuid.UUID]*user.User{}, hashes: map[uuid.UUID]domain.PHCString{}}
}

func (r *fakeUserRepo) Create(_ context.Context, u *user.User, hash domain.PHCString) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.users {
		if e.Email.String() == u.Email.String() {
			return domain.ErrEmailTaken
		}
	}
	cp := *u
	r.users[u.ID] = &cp
	r.hashes[u.ID] = hash
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email.String() == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (r *fakeUserRepo) HashedPassword(_ context.Context, id uuid.UUID) (domain.PHCString, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hashes[id]
	if !ok {
		return domain.PHCString{}, user.ErrNotFound
	}
	return h, nil
}

func (r *fakeUserRepo) UpdateHashedPassword(_ context.Context, id uuid.UUID, hash domain.PHCString) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.hashes[id]; !ok {
		return user.ErrNotFound
	}
	r.hashes[id] = hash
	return nil
}

func (r *fakeUserRepo) RecordLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

func (r *fakeUserRepo) setActive(id uuid.UUID, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id].Active = active
}

type fakeFailureRepo struct {
	mu   sync.Mutex
	recs map[uuid.UUID]*domain.LoginFailure
}

func newFakeFailureRepo() *fakeFailureRepo {
	return &fakeFailureRepo{recs: map[uuid.UUID]*domain.LoginFailure{}}
}

func (r *fakeFailureRepo) Get(_ context.Context, userID uuid.UUID) (*domain.LoginFailure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[userID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeFailureRepo) RecordFailure(_ context.Context, userID uuid.UUID, now time.Time, window time.Duration) (*domain.LoginFailure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[userID]
	if !ok || now.Sub(rec.FirstAttemptedAt) >= window {
		rec = &domain.LoginFailure{UserID: userID, Attempts: 1, FirstAttemptedAt: now, UpdatedAt: now}
	} else {
		rec.Attempts++
		rec.UpdatedAt = now
	}
	r.recs[userID] = rec
	cp := *rec
	return &cp, nil
}

func (r *fakeFailureRepo) Clear(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.recs, userID)
	return nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries map[uuid.UUID][]*domain.IssuedToken
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: map[uuid.UUID][]*domain.IssuedToken{}}
}

func (l *fakeLedger) Insert(_ context.Context, t *domain.IssuedToken) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *t
	l.entries[t.UserID] = append(l.entries[t.UserID], &cp)
	return nil
}

func (l *fakeLedger) DeleteByUser(_ context.Context, userID uuid.UUID) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var hashes []string
	for _, e := range l.entries[userID] {
		hashes = append(hashes, e.TokenHash)
	}
	delete(l.entries, userID)
	return hashes, nil
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

type fakeCache struct {
	mu    sync.Mutex
	clk   *clock
	items map[string]cacheEntry
}

func newFakeCache(clk *clock) *fakeCache {
	return &fakeCache{clk: clk, items: map[string]cacheEntry{}}
}

func (c *fakeCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheEntry{value: value, expiresAt: c.clk.Now().Add(ttl)}
	return nil
}

func (c *fakeCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok || !c.clk.Now().Before(e.expiresAt) {
		delete(c.items, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (c *fakeCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.items, k)
	}
	return nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- fixture ---------------------------------------------------------------

type fixture struct {
	svc      *Service
	users    *fakeUserRepo
	failures *fakeFailureRepo
	ledger   *fakeLedger
	cache    *fakeCache
	clk      *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	// Token signatures carry real expiry claims, so the test clock starts
	// at the wall clock and only moves forward from there.
	clk := &clock{now: time.Now().UTC().Truncate(time.Second)}
	users := newFakeUserRepo()
	failures := newFakeFailureRepo()
	ledger := newFakeLedger()
	cache := newFakeCache(clk)

	svc, err := NewService(users, failures, ledger, cache, passthroughTx{}, zap.NewNop(), Config{
		Password:       testPasswordConfig,
		JWTSecret:      secret.New("test-jwt-secret"),
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     24 * time.Hour,
		MaxAttempts:    3,
		AttemptsWindow: 5 * time.Minute,
		Now:            clk.Now,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, users: users, failures: failures, ledger: ledger, cache: cache, clk: clk}
}

func (f *fixture) register(t *testing.T, email, password string) *user.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{
		FamilyName: "Yamada",
		GivenName:  "Taro",
		Email:      email,
		Password:   secret.New(password),
	})
	require.NoError(t, err)
	return u
}

// --- tests -----------------------------------------------------------------

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{FamilyName: "Yamada", GivenName: "Taro", Email: "e@x.com", Password: secret.New("weak")})
	require.True(t, domain.IsValidation(err))

	_, err = f.svc.Register(ctx, RegisterInput{FamilyName: "", GivenName: "Taro", Email: "e@x.com", Password: secret.New("Valid1@Pass")})
	require.True(t, domain.IsValidation(err))

	_, err = f.svc.Register(ctx, RegisterInput{FamilyName: "Yamada", GivenName: "Taro", Email: "not-an-email", Password: secret.New("Valid1@Pass")})
	require.True(t, domain.IsValidation(err))

	f.register(t, "e@x.com", "Valid1@Pass")
	_, err = f.svc.Register(ctx, RegisterInput{FamilyName: "Yamada", GivenName: "Taro", Email: "e@x.com", Password: secret.New("Valid1@Pass")})
	require.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestLoginIssuesUsableTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "e@x.com", "Valid1@Pass")

	pair, err := f.svc.Login(ctx, "e@x.com", secret.New("Valid1@Pass"))
	require.NoError(t, err)
	require.Equal(t, f.clk.Now().Add(15*time.Minute), pair.AccessExpiresAt)
	require.Equal(t, f.clk.Now().Add(24*time.Hour), pair.RefreshExpiresAt)

	gotID, err := f.svc.Authenticate(ctx, pair.Access, domain.KindAccess)
	require.NoError(t, err)
	require.Equal(t, u.ID, gotID)

	// Kind mismatch: an access token where a refresh token is required.
	_, err = f.svc.Authenticate(ctx, pair.Access, domain.KindRefresh)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.svc.Authenticate(ctx, pair.Refresh, domain.KindAccess)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	// Last login stamped, failure record cleared, ledger holds both kinds.
	stored, err := f.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	require.Len(t, f.ledger.entries[u.ID], 2)
}

func TestLoginUnknownEmailOrWrongPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "e@x.com", "Valid1@Pass")

	_, err := f.svc.Login(ctx, "nobody@x.com", secret.New("Valid1@Pass"))
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "e@x.com", secret.New("Wrong1@Pass"))
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLoginThrottle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "e@x.com", "Valid1@Pass")

	// The first N-1 failures leave the account usable.
	for i := 0; i < 2; i++ {
		_, err := f.svc.Login(ctx, "e@x.com", secret.New("Wrong1@Pass"))
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}
	_, err := f.svc.Login(ctx, "e@x.com", secret.New("Valid1@Pass"))
	require.NoError(t, err)

	// Success cleared the counter: two more failures still do not lock.
	for i := 0; i < 2; i++ {
		_, err = f.svc.Login(ctx, "e@x.com", secret.New("Wrong1@Pass"))
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}

	// The Nth failure locks: the next attempt is rejected before
	// verification even with the correct password.
	_, err = f.svc.Login(ctx, "e@x.com", secret.New("Wrong1@Pass"))
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "e@x.com", secret.New("Valid1@Pass"))
	require.ErrorIs(t, err, domain.ErrAccountLocked)

	// Once the window elapses a failure resets the counter to 1.
	f.clk.Advance(5 * time.Minute)
	_, err = f.svc.Login(ctx, "e@x.com", secret.New("Wrong1@Pass"))
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	rec, err := f.failures.Get(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 1, rec.Attempts)

	_, err = f.svc.Login(ctx, "e@x.com", secret.New("Valid1@Pass"))
	require.NoError(t, err)
}

func TestLoginInactiveUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "e@x.com", "Valid1@Pass")
	f.users.setActive(u.ID, false)

	_, err := f.svc.Login(ctx, "e@x.com", secret.New("Valid1@Pass"))
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestAccessTokenExpiresFromCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "e@x.com", "Valid1@Pass")

	pair, err := f.svc.Login(ctx, "e@x.com", secret.New("Valid1@Pass"))
	require.NoError(t, err)

	f.clk.Advance(15 * time.Minute)
	_, err = f.svc.Authenticate(ctx, pair.Access, domain.KindAccess)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	// The refresh token outlives the access token.
	_, err = f.svc.Authenticate(ctx, pair.Refresh, domain.KindRefresh)
	require.NoError(t, err)
}

func TestRefreshRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "e@x.com", "Valid1@Pass")

	pair, err := f.svc.Login(ctx, "e@x.com", secret.New("Valid1@Pass"))
	require.NoError(t, err)

	f.clk.Advance(time.Minute)
	next, err := f.svc.Refresh(ctx, pair.Refresh)
	require.NoError(t, err)
	require.NotEqual(t, pair.Access.Expose(), next.Access.Expose())

	gotID, err := f.svc.Authenticate(ctx, next.Access, domain.KindAccess)
	require.NoError(t, err)
	require.Equal(t, u.ID, gotID)

	// Documented policy: the presented refresh token is not revoked by
	// rotation; its TTL governs reachability.
	_, err = f.svc.Authenticate(ctx, pair.Refresh, domain.KindRefresh)
	require.NoError(t, err)

	// An access token is not accepted by Refresh.
	_, err = f.svc.Refresh(ctx, pair.Access)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	// Nor is a signed token that the cache no longer knows.
	f.clk.Advance(24 * time.Hour)
	_, err = f.svc.Refresh(ctx, pair.Refresh)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestLogoutRevokesEverythingAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "e@x.com", "Valid1@Pass")

	first, err := f.svc.Login(ctx, "e@x.com", secret.New("Valid1@Pass"))
	require.NoError(t, err)
	f.clk.Advance(time.Minute)
	second, err := f.svc.Login(ctx, "e@x.com", secret.New("Valid1@Pass"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, u.ID))
	require.NoError(t, f.svc.Logout(ctx, u.ID), "second logout must not error")

	for _, tok := range []struct {
		t secret.String
		k domain.TokenKind
	}{
		{first.Access, domain.KindAccess},
		{first.Refresh, domain.KindRefresh},
		{second.Access, domain.KindAccess},
		{second.Refresh, domain.KindRefresh},
	} {
		_, err := f.svc.Authenticate(ctx, tok.t, tok.k)
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	}
	require.Empty(t, f.ledger.entries[u.ID])
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "e@x.com", "Valid1@Pass")

	require.True(t, domain.IsValidation(f.svc.ChangePassword(ctx, u.ID, secret.New("weak"))))
	require.NoError(t, f.svc.ChangePassword(ctx, u.ID, secret.New("Fresh2#Word")))

	_, err := f.svc.Login(ctx, "e@x.com", secret.New("Valid1@Pass"))
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "e@x.com", secret.New("Fresh2#Word"))
	require.NoError(t, err)
}

func TestEndToEndAuthLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "e@x.com", "Valid1@Pass")

	pair, err := f.svc.Login(ctx, "e@x.com", secret.New("Valid1@Pass"))
	require.NoError(t, err)

	gotID, err := f.svc.Authenticate(ctx, pair.Access, domain.KindAccess)
	require.NoError(t, err)
	require.Equal(t, u.ID, gotID)

	require.NoError(t, f.svc.Logout(ctx, u.ID))

	_, err = f.svc.Authenticate(ctx, pair.Access, domain.KindAccess)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}
