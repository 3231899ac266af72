package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	domain "github.com/kzhama/todoauth/internal/domain/auth"
	"github.com/kzhama/todoauth/internal/domain/user"
	"github.com/kzhama/todoauth/internal/obs"
	"github.com/kzhama/todoauth/internal/secret"
)

var tracer = otel.Tracer("todoauth/auth")

// Transactor runs a function inside one database transaction; the
// repositories pick the transaction up from the context.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Config struct {
	Password       PasswordConfig
	Policy         Policy
	JWTSecret      secret.String
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	MaxAttempts    int
	AttemptsWindow time.Duration
	Now            func() time.Time
}

// Service implements registration, login with throttling, token refresh,
// logout and request authentication on top of the two shared stores.
type Service struct {
	users    user.Repo
	failures domain.FailureRepo
	ledger   domain.TokenLedger
	cache    domain.TokenCache
	tx       Transactor
	log      *zap.Logger
	cfg      Config

	// dummyHash absorbs a password verification when the email is unknown,
	// so response timing does not reveal whether the account exists.
	dummyHash domain.PHCString
}

func NewService(users user.Repo, failures domain.FailureRepo, ledger domain.TokenLedger, cache domain.TokenCache, tx Transactor, log *zap.Logger, cfg Config) (*Service, error) {
	if cfg.JWTSecret.Empty() {
		return nil, errors.New("auth: jwt secret is required")
	}
	if cfg.Password.Pepper.Empty() {
		return nil, errors.New("auth: password pepper is required")
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}
	dummy, err := HashPassword(cfg.Password, secret.New(uuid.NewString()))
	if err != nil {
		return nil, fmt.Errorf("auth: prepare dummy hash: %w", err)
	}
	return &Service{
		users:     users,
		failures:  failures,
		ledger:    ledger,
		cache:     cache,
		tx:        tx,
		log:       log.Named("auth"),
		cfg:       cfg,
		dummyHash: dummy,
	}, nil
}

type RegisterInput struct {
	FamilyName string
	GivenName  string
	Email      string
	Password   secret.String
}

// Register validates the profile fields and the password policy, hashes the
// peppered password and stores the new user.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*user.User, error) {
	ctx, span := tracer.Start(ctx, "Register")
	defer span.End()

	family, err := user.NewFamilyName(in.FamilyName)
	if err != nil {
		return nil, err
	}
	given, err := user.NewGivenName(in.GivenName)
	if err != nil {
		return nil, err
	}
	email, err := user.NewEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := s.cfg.Policy.Validate(in.Password.Expose()); err != nil {
		countOp("register", "weak_password")
		return nil, err
	}

	hash, err := HashPassword(s.cfg.Password, in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &user.User{
		ID:         uuid.New(),
		FamilyName: family,
		GivenName:  given,
		Email:      email,
		Active:     true,
	}
	if err := s.users.Create(ctx, u, hash); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			countOp("register", "email_taken")
			return nil, domain.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	countOp("register", "ok")
	obs.WithTrace(ctx, s.log).Info("user registered", zap.String("user_id", u.ID.String()))
	return u, nil
}

// Login verifies credentials behind the throttle guard and issues a token
// pair. The lockout check runs before password verification so hash timing
// cannot leak account state.
func (s *Service) Login(ctx context.Context, email string, password secret.String) (*domain.TokenPair, error) {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	log := obs.WithTrace(ctx, s.log)
	now := s.cfg.Now()

	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			_, _ = VerifyPassword(s.cfg.Password.Pepper, password, s.dummyHash)
			countOp("login", "unknown_email")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	rec, err := s.failures.Get(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("login failures: %w", err)
	}
	if domain.Locked(rec, now, s.cfg.MaxAttempts, s.cfg.AttemptsWindow) {
		countOp("login", "locked")
		log.Warn("login rejected, account locked",
			zap.String("user_id", u.ID.String()),
			zap.Int("attempts", rec.Attempts))
		return nil, domain.ErrAccountLocked
	}
	if !u.Active {
		countOp("login", "inactive")
		return nil, domain.ErrInvalidCredentials
	}

	hash, err := s.users.HashedPassword(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("load password hash: %w", err)
	}
	ok, err := VerifyPassword(s.cfg.Password.Pepper, password, hash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		if _, ferr := s.failures.RecordFailure(ctx, u.ID, now, s.cfg.AttemptsWindow); ferr != nil {
			log.Error("record login failure", zap.Error(ferr), zap.String("user_id", u.ID.String()))
		}
		countOp("login", "invalid_password")
		return nil, domain.ErrInvalidCredentials
	}

	pair, entries, err := s.issuePair(ctx, u.ID, now)
	if err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, e := range entries {
			if err := s.ledger.Insert(ctx, e); err != nil {
				return err
			}
		}
		if err := s.users.RecordLogin(ctx, u.ID, now); err != nil {
			return err
		}
		return s.failures.Clear(ctx, u.ID)
	})
	if err != nil {
		// The cache entries already exist, so the pair works until its TTL
		// lapses but cannot be revoked through logout. Surfaced, not hidden.
		return nil, fmt.Errorf("commit login: %w", err)
	}

	countOp("login", "ok")
	log.Info("login succeeded", zap.String("user_id", u.ID.String()))
	return pair, nil
}

// Refresh verifies a presented refresh token (signature, cache liveness,
// kind) and issues a fresh pair. The presented token itself is not revoked;
// it stays reachable until its cache TTL lapses or the user logs out.
func (s *Service) Refresh(ctx context.Context, refreshToken secret.String) (*domain.TokenPair, error) {
	ctx, span := tracer.Start(ctx, "Refresh")
	defer span.End()

	subject, err := parseToken(s.cfg.JWTSecret, refreshToken.Expose())
	if err != nil {
		countOp("refresh", "invalid_token")
		return nil, domain.ErrUnauthorized
	}
	userID, err := s.Authenticate(ctx, refreshToken, domain.KindRefresh)
	if err != nil {
		countOp("refresh", "unauthorized")
		return nil, err
	}
	if userID != subject {
		countOp("refresh", "subject_mismatch")
		return nil, domain.ErrUnauthorized
	}

	pair, entries, err := s.issuePair(ctx, userID, s.cfg.Now())
	if err != nil {
		return nil, err
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, e := range entries {
			if err := s.ledger.Insert(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("commit refresh: %w", err)
	}

	countOp("refresh", "ok")
	return pair, nil
}

// Authenticate resolves a raw token to a user id via the fast store. A
// cache miss means expired-or-invalid; a kind mismatch is rejected even for
// an otherwise valid token.
func (s *Service) Authenticate(ctx context.Context, token secret.String, kind domain.TokenKind) (uuid.UUID, error) {
	ctx, span := tracer.Start(ctx, "Authenticate")
	defer span.End()

	value, ok, err := s.cache.Get(ctx, hashToken(token.Expose()))
	if err != nil {
		return uuid.Nil, fmt.Errorf("token cache: %w", err)
	}
	if !ok {
		countOp("authenticate", "miss")
		return uuid.Nil, domain.ErrUnauthorized
	}
	userID, gotKind, err := domain.ParseCachedTokenValue(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("token cache entry: %w", err)
	}
	if gotKind != kind {
		countOp("authenticate", "kind_mismatch")
		return uuid.Nil, domain.ErrUnauthorized
	}
	countOp("authenticate", "ok")
	return userID, nil
}

// Logout revokes every outstanding token for the user: a destructive read
// of the ledger followed by cache deletes. Missing rows and keys count as
// already deleted, so retrying is always safe.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "Logout")
	defer span.End()

	hashes, err := s.ledger.DeleteByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete token ledger: %w", err)
	}
	if len(hashes) > 0 {
		if err := s.cache.Del(ctx, hashes...); err != nil {
			// Ledger rows are gone; undeleted cache keys lapse by TTL.
			return fmt.Errorf("delete cached tokens: %w", err)
		}
	}
	countOp("logout", "ok")
	obs.WithTrace(ctx, s.log).Info("logout",
		zap.String("user_id", userID.String()),
		zap.Int("revoked", len(hashes)))
	return nil
}

// ChangePassword applies the strength policy and stores a fresh PHC string.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, raw secret.String) error {
	ctx, span := tracer.Start(ctx, "ChangePassword")
	defer span.End()

	if err := s.cfg.Policy.Validate(raw.Expose()); err != nil {
		return err
	}
	hash, err := HashPassword(s.cfg.Password, raw)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdateHashedPassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	countOp("change_password", "ok")
	return nil
}

func (s *Service) UserByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return s.users.GetByID(ctx, id)
}

// ResolveSession authenticates an access token and re-checks that the user
// is still active and not locked out. Every failure collapses into
// ErrUnauthorized so account state cannot be probed with stale tokens.
func (s *Service) ResolveSession(ctx context.Context, token secret.String) (*user.User, error) {
	ctx, span := tracer.Start(ctx, "ResolveSession")
	defer span.End()

	userID, err := s.Authenticate(ctx, token, domain.KindAccess)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !u.Active {
		return nil, domain.ErrUnauthorized
	}
	rec, err := s.failures.Get(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("login failures: %w", err)
	}
	if domain.Locked(rec, s.cfg.Now(), s.cfg.MaxAttempts, s.cfg.AttemptsWindow) {
		return nil, domain.ErrUnauthorized
	}
	return u, nil
}

// issuePair signs both tokens and writes them through to the fast store.
// The matching ledger entries are returned for the caller to commit; the
// cache is written first because it alone governs usability.
func (s *Service) issuePair(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.TokenPair, []*domain.IssuedToken, error) {
	accessExp := now.Add(s.cfg.AccessTTL)
	refreshExp := now.Add(s.cfg.RefreshTTL)

	access, err := signToken(s.cfg.JWTSecret, userID, accessExp)
	if err != nil {
		return nil, nil, err
	}
	refresh, err := signToken(s.cfg.JWTSecret, userID, refreshExp)
	if err != nil {
		return nil, nil, err
	}

	entries := []*domain.IssuedToken{
		{ID: uuid.New(), UserID: userID, TokenHash: hashToken(access.Expose()), Kind: domain.KindAccess, ExpiresAt: accessExp},
		{ID: uuid.New(), UserID: userID, TokenHash: hashToken(refresh.Expose()), Kind: domain.KindRefresh, ExpiresAt: refreshExp},
	}
	for _, e := range entries {
		value := domain.CachedTokenValue(userID, e.Kind)
		if err := s.cache.Set(ctx, e.TokenHash, value, e.ExpiresAt.Sub(now)); err != nil {
			return nil, nil, fmt.Errorf("cache token: %w", err)
		}
	}

	return &domain.TokenPair{
		Access:           access,
		AccessExpiresAt:  accessExp,
		Refresh:          refresh,
		RefreshExpiresAt: refreshExp,
	}, entries, nil
}
