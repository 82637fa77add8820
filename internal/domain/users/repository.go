package users

import (
	"context"

	"github.com/civicsquare/server/internal/domain/catalog"
	"github.com/google/uuid"
)

// Repository is the persistence contract for user accounts. Implementations
// return ErrNotFound and ErrEmailTaken from this package directly.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// Activate flips is_active for exactly the given id; ErrNotFound when absent.
	Activate(ctx context.Context, id uuid.UUID) error
	// JoinedEvents returns the events the user has registered for.
	JoinedEvents(ctx context.Context, userID uuid.UUID) ([]catalog.Event, error)
}

// SessionRepository stores server-side login sessions keyed by token hash.
type SessionRepository interface {
	Create(ctx context.Context, session Session) error
	// GetByTokenHash returns only sessions that have not expired.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context) (int64, error)
}
