package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kzhama/todoauth/internal/domain/auth"
)

var _ auth.TokenLedger = (*TokenLedgerRepo)(nil)

// TokenLedgerRepo is the durable record of issued tokens. It exists so
// logout can discover and revoke every cache key belonging to a user; the
// cache alone decides whether a token is usable.
type TokenLedgerRepo struct {
	db *DB
}

func NewTokenLedgerRepo(db *DB) *TokenLedgerRepo { return &TokenLedgerRepo{db: db} }

const (
	qTokenInsert = `
INSERT INTO user_tokens (id, user_id, token_hash, kind, expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at;`

	qTokenDeleteByUser = `
DELETE FROM user_tokens
WHERE user_id = $1
RETURNING token_hash;`
)

func (r *TokenLedgerRepo) Insert(ctx context.Context, t *auth.IssuedToken) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	err := r.db.execQueryer(ctx).
		QueryRow(ctx, qTokenInsert, t.ID, t.UserID, t.TokenHash, string(t.Kind), t.ExpiresAt).
		Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("token insert: %w", err)
	}
	return nil
}

// DeleteByUser removes every ledger row for the user in one statement and
// hands back the cache keys that still need deleting. Zero rows is a valid
// outcome, which keeps logout idempotent.
func (r *TokenLedgerRepo) DeleteByUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qTokenDeleteByUser, userID)
	if err != nil {
		return nil, fmt.Errorf("delete tokens: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan token hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delete tokens: %w", err)
	}
	return hashes, nil
}
