package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kzhama/todoauth/internal/domain/auth"
)

var _ auth.FailureRepo = (*LoginFailureRepo)(nil)

// LoginFailureRepo keeps one row per user counting consecutive failed
// logins inside the throttle window.
type LoginFailureRepo struct {
	db *DB
}

func NewLoginFailureRepo(db *DB) *LoginFailureRepo { return &LoginFailureRepo{db: db} }

const (
	qFailureGet = `
SELECT user_id, attempts, first_attempted_at, updated_at
FROM login_failed_histories
WHERE user_id = $1;`

	// The upsert resets the counter in the same statement when the window
	// has elapsed ($3 is now minus the window), so concurrent failures
	// never lose an increment.
	qFailureRecord = `
INSERT INTO login_failed_histories (user_id, attempts, first_attempted_at, updated_at)
VALUES ($1, 1, $2, $2)
ON CONFLICT (user_id) DO UPDATE
SET attempts           = CASE WHEN login_failed_histories.first_attempted_at <= $3
                              THEN 1
                              ELSE login_failed_histories.attempts + 1 END,
    first_attempted_at = CASE WHEN login_failed_histories.first_attempted_at <= $3
                              THEN $2
                              ELSE login_failed_histories.first_attempted_at END,
    updated_at         = $2
RETURNING user_id, attempts, first_attempted_at, updated_at;`

	qFailureClear = `
DELETE FROM login_failed_histories
WHERE user_id = $1;`
)

func (r *LoginFailureRepo) Get(ctx context.Context, userID uuid.UUID) (*auth.LoginFailure, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var f auth.LoginFailure
	err := r.db.execQueryer(ctx).QueryRow(ctx, qFailureGet, userID).
		Scan(&f.UserID, &f.Attempts, &f.FirstAttemptedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select login failures: %w", err)
	}
	return &f, nil
}

func (r *LoginFailureRepo) RecordFailure(ctx context.Context, userID uuid.UUID, now time.Time, window time.Duration) (*auth.LoginFailure, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var f auth.LoginFailure
	err := r.db.execQueryer(ctx).QueryRow(ctx, qFailureRecord, userID, now, now.Add(-window)).
		Scan(&f.UserID, &f.Attempts, &f.FirstAttemptedAt, &f.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("record login failure: %w", err)
	}
	return &f, nil
}

func (r *LoginFailureRepo) Clear(ctx context.Context, userID uuid.UUID) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qFailureClear, userID); err != nil {
		return fmt.Errorf("clear login failures: %w", err)
	}
	return nil
}
