package user

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kzhama/todoauth/internal/domain/auth"
)

type Repo interface {
	Create(ctx context.Context, u *User, hash auth.PHCString) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	HashedPassword(ctx context.Context, id uuid.UUID) (auth.PHCString, error)
	UpdateHashedPassword(ctx context.Context, id uuid.UUID, hash auth.PHCString) error
	// RecordLogin stamps last_login_at. It is transaction-aware so the
	// login-success commit can pair it with clearing the failure record.
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}
