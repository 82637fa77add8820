// Package storage groups data access by domain. Each domain package defines
// its own repository interfaces; Repository aggregates them and adds
// transaction scoping. Services depend on the domain interfaces, never on pgx
// directly.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/civicsquare/server/internal/auth"
	"github.com/civicsquare/server/internal/domain/catalog"
	"github.com/civicsquare/server/internal/domain/users"
)

// Generic sentinels for rows that have no domain package of their own, such
// as API keys. User and catalog repositories return their packages' sentinels
// instead.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

type APIKeyRepository interface {
	auth.APIKeyStore
	Create(ctx context.Context, key *auth.APIKey) error
	List(ctx context.Context) ([]auth.APIKey, error)
	Revoke(ctx context.Context, id string) error
}

type TokenRepository interface {
	auth.RevocationStore
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Repository interface {
	Users() users.Repository
	Sessions() users.SessionRepository
	Categories() catalog.CategoryRepository
	Events() catalog.EventRepository
	APIKeys() APIKeyRepository
	Tokens() TokenRepository

	// WithTx runs fn inside a single database transaction; every repository
	// obtained from the passed Repository shares that transaction.
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
