package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/civicsquare/server/internal/domain/catalog"
	"github.com/civicsquare/server/internal/domain/users"
	"github.com/civicsquare/server/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queryer is the subset of pgx shared by pools and transactions.
type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository implements storage.Repository against PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres repository: pool is nil")
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) db() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *Repository) Users() users.Repository {
	return &UserRepository{db: r.db()}
}

func (r *Repository) Sessions() users.SessionRepository {
	return &SessionRepository{db: r.db()}
}

func (r *Repository) Categories() catalog.CategoryRepository {
	return &CategoryRepository{db: r.db()}
}

func (r *Repository) Events() catalog.EventRepository {
	return &EventRepository{db: r.db()}
}

func (r *Repository) APIKeys() storage.APIKeyRepository {
	return &APIKeyRepository{db: r.db()}
}

func (r *Repository) Tokens() storage.TokenRepository {
	return &TokenRepository{db: r.db()}
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	wrapped := &Repository{pool: r.pool, tx: tx}
	if err := fn(ctx, wrapped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isForeignKeyViolation reports whether err is a Postgres FK constraint error.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
