package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kzhama/todoauth/internal/domain/auth"
	"github.com/kzhama/todoauth/internal/domain/user"
)

var _ user.Repo = (*UserRepo)(nil)

// UserRepo is the durable account store. The password hash is written and
// read here but never attached to the entity.
type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const (
	qUserInsert = `
INSERT INTO users (id, family_name, given_name, email, hashed_password, active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at;`

	qUserByID = `
SELECT id, family_name, given_name, email, active, last_login_at, created_at, updated_at
FROM users
WHERE id = $1;`

	qUserByEmail = `
SELECT id, family_name, given_name, email, active, last_login_at, created_at, updated_at
FROM users
WHERE email = $1;`

	qUserHashedPassword = `
SELECT hashed_password
FROM users
WHERE id = $1;`

	qUserSetHashedPassword = `
UPDATE users
SET hashed_password = $2,
    updated_at      = NOW()
WHERE id = $1;`

	qUserRecordLogin = `
UPDATE users
SET last_login_at = $2,
    updated_at    = NOW()
WHERE id = $1;`
)

func (r *UserRepo) Create(ctx context.Context, u *user.User, hash auth.PHCString) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	err := r.db.execQueryer(ctx).
		QueryRow(ctx, qUserInsert, u.ID, u.FamilyName.String(), u.GivenName.String(), u.Email.String(), hash.Expose(), u.Active).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if uniqueViolation(err) {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("user insert: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanUser(r.db.execQueryer(ctx).QueryRow(ctx, qUserByID, id))
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanUser(r.db.execQueryer(ctx).QueryRow(ctx, qUserByEmail, email))
}

func (r *UserRepo) HashedPassword(ctx context.Context, id uuid.UUID) (auth.PHCString, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var raw string
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qUserHashedPassword, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.PHCString{}, user.ErrNotFound
		}
		return auth.PHCString{}, fmt.Errorf("select hashed password: %w", err)
	}
	return auth.NewPHCString(raw)
}

func (r *UserRepo) UpdateHashedPassword(ctx context.Context, id uuid.UUID, hash auth.PHCString) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qUserSetHashedPassword, id, hash.Expose())
	if err != nil {
		return fmt.Errorf("update hashed password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UserRepo) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qUserRecordLogin, id, at)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*user.User, error) {
	var (
		u         user.User
		family    string
		given     string
		email     string
		lastLogin *time.Time
	)
	if err := row.Scan(&u.ID, &family, &given, &email, &u.Active, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	var err error
	if u.FamilyName, err = user.NewFamilyName(family); err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if u.GivenName, err = user.NewGivenName(given); err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if u.Email, err = user.NewEmail(email); err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.LastLoginAt = lastLogin
	return &u, nil
}
